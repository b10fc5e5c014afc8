package ledger

import (
	"context"
	"fmt"

	"hisab/internal/core"
)

// Store persists ledger state. Load returns NewState() for a scope that has
// never been written. Commit must be atomic: either the whole change is
// persisted or none of it is.
type Store interface {
	Load(ctx context.Context, scope Scope) (State, error)
	Commit(ctx context.Context, scope Scope, change Change) error

	Profiles(ctx context.Context, userID string) ([]core.Profile, error)
	SaveProfile(ctx context.Context, userID string, p core.Profile) error
	// DeleteProfile removes the profile and every record stored under it.
	DeleteProfile(ctx context.Context, userID, profileID string) error

	// Settings reports found=false when the user never saved settings.
	Settings(ctx context.Context, userID string) (s core.Settings, found bool, err error)
	SaveSettings(ctx context.Context, userID string, s core.Settings) error

	Close() error
}

// Backends picks the store responsible for a user.
type Backends interface {
	For(userID string) Store
}

// Publisher announces committed changes. Failures never undo a commit.
type Publisher interface {
	PublishChange(ctx context.Context, userID, profileID, kind, entityID string) error
}

// CommitError reports that a transition was computed but could not be
// persisted. The session has been restored to the store's snapshot.
type CommitError struct {
	Scope Scope
	Kind  string
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s for %s: %v", e.Kind, e.Scope, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// SingleStore routes every user to the same store.
type SingleStore struct {
	Store Store
}

func (s SingleStore) For(string) Store {
	return s.Store
}
