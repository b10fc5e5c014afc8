// Package ledger owns the per-profile bookkeeping state: a pure reducer that
// applies actions to a State, and a Service that persists each committed
// transition and reverts to the store's snapshot when persisting fails.
package ledger

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"hisab/internal/core"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateID      = errors.New("duplicate id")
	ErrEmptyID          = errors.New("empty id")
	ErrCategoryExists   = errors.New("category already exists")
	ErrCategoryNotFound = errors.New("category not found")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrDefaultProfile   = errors.New("the default profile cannot be deleted")
	ErrUnknownAction    = errors.New("unknown action")
)

// Scope partitions data: one user may keep several independent profiles.
type Scope struct {
	UserID    string
	ProfileID string
}

// NewScope fills in the guest user and default profile for blank values.
func NewScope(userID, profileID string) Scope {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = core.GuestUserID
	}
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		profileID = core.DefaultProfileID
	}
	return Scope{UserID: userID, ProfileID: profileID}
}

// Guest reports whether the scope belongs to an account-less user.
func (s Scope) Guest() bool {
	return s.UserID == core.GuestUserID
}

// Key is a stable string form used for caching.
func (s Scope) Key() string {
	return url.PathEscape(s.UserID) + "/" + url.PathEscape(s.ProfileID)
}

func (s Scope) String() string {
	return s.Key()
}

// State is everything recorded under one scope. Transactions are kept newest first.
type State struct {
	Transactions []core.Transaction `json:"transactions"`
	Goals        []core.Goal        `json:"goals"`
	Categories   core.Categories    `json:"categories"`
}

// NewState returns an empty state with the seeded category lists.
func NewState() State {
	return State{
		Transactions: []core.Transaction{},
		Goals:        []core.Goal{},
		Categories:   core.DefaultCategories(),
	}
}

// Clone deep-copies the state so callers can never alias session data.
func (s State) Clone() State {
	out := State{
		Transactions: append([]core.Transaction{}, s.Transactions...),
		Goals:        append([]core.Goal{}, s.Goals...),
	}
	if s.Categories != nil {
		out.Categories = s.Categories.Clone()
	}
	return out
}

// Transaction finds a transaction by id.
func (s State) Transaction(id string) (core.Transaction, bool) {
	for _, tx := range s.Transactions {
		if tx.ID == id {
			return tx, true
		}
	}
	return core.Transaction{}, false
}

// Goal finds a goal by id.
func (s State) Goal(id string) (core.Goal, bool) {
	for _, g := range s.Goals {
		if g.ID == id {
			return g, true
		}
	}
	return core.Goal{}, false
}

// Validate checks every record, used before importing a snapshot.
func (s State) Validate() error {
	seen := map[string]struct{}{}
	for i, tx := range s.Transactions {
		if tx.ID == "" {
			return fmt.Errorf("transaction %d: %w", i, ErrEmptyID)
		}
		if _, ok := seen[tx.ID]; ok {
			return fmt.Errorf("transaction %s: %w", tx.ID, ErrDuplicateID)
		}
		seen[tx.ID] = struct{}{}
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
	}
	seen = map[string]struct{}{}
	for i, g := range s.Goals {
		if g.ID == "" {
			return fmt.Errorf("goal %d: %w", i, ErrEmptyID)
		}
		if _, ok := seen[g.ID]; ok {
			return fmt.Errorf("goal %s: %w", g.ID, ErrDuplicateID)
		}
		seen[g.ID] = struct{}{}
		if err := g.Validate(); err != nil {
			return fmt.Errorf("goal %s: %w", g.ID, err)
		}
	}
	for t := range s.Categories {
		if !t.Valid() {
			return fmt.Errorf("categories: %w", core.ErrInvalidType)
		}
	}
	return nil
}
