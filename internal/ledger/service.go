package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hisab/internal/cache"
	"hisab/internal/core"
	"hisab/internal/currency"
	"hisab/internal/log"
	"hisab/internal/stats"
)

// session is the cached in-memory state of one scope. It is only touched
// while the scope's lock is held.
type session struct {
	loaded bool
	state  State
}

// scopeLock serialises access to one scope. It lives outside the session
// cache so evicting a session never lets a second writer in; refs counts the
// holders and waiters so idle locks can be dropped.
type scopeLock struct {
	mu   sync.Mutex
	refs int
}

// Service is the single entry point for reading and changing ledger data.
type Service struct {
	backends        Backends
	conv            currency.Converter
	sessions        *cache.LRUCache[*session]
	locksMu         sync.Mutex
	locks           map[string]*scopeLock
	publisher       Publisher
	logger          *log.Logger
	events          *log.StructuredLogger
	defaultCurrency string
	now             func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithSessionCache bounds how many scopes stay in memory and for how long.
func WithSessionCache(size int, ttl time.Duration) Option {
	return func(s *Service) { s.sessions = cache.NewLRUCache[*session](size, ttl) }
}

// WithDefaultCurrency sets the display currency of users without settings.
func WithDefaultCurrency(code string) Option {
	return func(s *Service) { s.defaultCurrency = core.NormalizeCurrency(code) }
}

func NewService(backends Backends, conv currency.Converter, opts ...Option) *Service {
	s := &Service{
		backends:        backends,
		conv:            conv,
		defaultCurrency: core.FallbackCurrency,
		locks:           map[string]*scopeLock{},
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = cache.NewLRUCache[*session](256, 30*time.Minute)
	}
	if s.logger == nil {
		s.logger = log.NewDiscard()
	}
	s.logger = s.logger.WithComponent(log.ComponentLedger)
	s.events = log.NewStructuredLogger(s.logger)
	return s
}

// Sessions exposes the session cache so a cache.Manager can expire it.
func (s *Service) Sessions() cache.Cleaner {
	return s.sessions
}

// SessionStats reports session cache usage.
func (s *Service) SessionStats() cache.Stats {
	return s.sessions.Stats()
}

func (s *Service) store(userID string) Store {
	return s.backends.For(userID)
}

// lockScope blocks until the caller is the only one working on key and
// returns the matching unlock.
func (s *Service) lockScope(key string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &scopeLock{}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.locksMu.Unlock()
	}
}

// acquire locks scope and returns its session, loading it on first use.
// Callers must call the returned unlock.
func (s *Service) acquire(ctx context.Context, scope Scope) (*session, func(), error) {
	unlock := s.lockScope(scope.Key())
	sess := s.sessions.GetOrCreate(scope.Key(), func() *session { return &session{} })
	if sess.loaded {
		return sess, unlock, nil
	}
	st, err := s.store(scope.UserID).Load(ctx, scope)
	if err != nil {
		unlock()
		return nil, nil, fmt.Errorf("load %s: %w", scope, err)
	}
	sess.state = st
	sess.loaded = true
	return sess, unlock, nil
}

// Snapshot returns a copy of the current state of scope.
func (s *Service) Snapshot(ctx context.Context, scope Scope) (State, error) {
	sess, unlock, err := s.acquire(ctx, scope)
	if err != nil {
		return State{}, err
	}
	defer unlock()
	return sess.state.Clone(), nil
}

// Dispatch reduces action against the session state, makes the result
// visible, then commits it. If the commit fails the session is replaced by
// the store's last known-good snapshot and a *CommitError is returned. The
// change event goes out after the scope is released.
func (s *Service) Dispatch(ctx context.Context, scope Scope, action Action) (State, error) {
	next, err := s.commit(ctx, scope, action)
	if err != nil {
		return State{}, err
	}
	s.publish(ctx, scope, action)
	return next, nil
}

func (s *Service) commit(ctx context.Context, scope Scope, action Action) (State, error) {
	sess, unlock, err := s.acquire(ctx, scope)
	if err != nil {
		return State{}, err
	}
	defer unlock()

	next, err := Reduce(sess.state, action)
	if err != nil {
		return State{}, err
	}

	prev := sess.state
	sess.state = next

	store := s.store(scope.UserID)
	if err := store.Commit(ctx, scope, Change{Action: action, Before: prev, After: next}); err != nil {
		s.revert(ctx, store, scope, sess, prev)
		s.events.LogChangeReverted(ctx, scope.UserID, scope.ProfileID, action.Kind(), err)
		return State{}, &CommitError{Scope: scope, Kind: action.Kind(), Err: err}
	}
	s.events.LogChangeCommitted(ctx, scope.UserID, scope.ProfileID, action.Kind(), action.EntityID())
	if tx, ok := transactionOf(action); ok {
		s.logger.DebugContext(ctx, "Transaction stored",
			log.NewFields().WithScope(scope.UserID, scope.ProfileID).
				WithTransaction(string(tx.Type), tx.Amount, tx.CurrencyOrFallback(), tx.Category).ToSlice()...)
	}
	return next.Clone(), nil
}

// transactionOf returns the record an add or update action writes.
func transactionOf(action Action) (core.Transaction, bool) {
	switch a := action.(type) {
	case AddTransaction:
		return a.Transaction, true
	case UpdateTransaction:
		return a.Transaction, true
	default:
		return core.Transaction{}, false
	}
}

// revert restores the persisted snapshot. When even that cannot be read the
// pre-transition state is kept and the session is dropped so the next access reloads.
func (s *Service) revert(ctx context.Context, store Store, scope Scope, sess *session, prev State) {
	st, err := store.Load(ctx, scope)
	if err != nil {
		s.logger.ErrorContext(ctx, "Reload after failed commit failed",
			log.NewFields().WithScope(scope.UserID, scope.ProfileID).WithError(err).WithOperation(log.OpRevert).ToSlice()...)
		sess.state = prev
		s.sessions.Delete(scope.Key())
		return
	}
	sess.state = st
}

func (s *Service) publish(ctx context.Context, scope Scope, action Action) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, scope.UserID, scope.ProfileID, action.Kind(), action.EntityID()); err != nil {
		s.logger.WarnContext(ctx, "Change event not published",
			log.NewFields().WithScope(scope.UserID, scope.ProfileID).WithAction(action.Kind(), action.EntityID()).
				WithError(err).WithOperation(log.OpPublish).ToSlice()...)
	}
}

// displayCurrency resolves an explicit currency or the user's configured one.
func (s *Service) displayCurrency(ctx context.Context, userID, requested string) (string, error) {
	if c := core.NormalizeCurrency(requested); c != "" {
		if !core.ValidCurrencyCode(c) {
			return "", core.ErrInvalidCurrency
		}
		return c, nil
	}
	settings, err := s.Settings(ctx, userID)
	if err != nil {
		return "", err
	}
	return settings.Currency, nil
}

// Stats recomputes the dashboard totals over every transaction of scope.
func (s *Service) Stats(ctx context.Context, scope Scope, displayCurrency string) (core.DashboardStats, string, error) {
	cur, err := s.displayCurrency(ctx, scope.UserID, displayCurrency)
	if err != nil {
		return core.DashboardStats{}, "", err
	}
	st, err := s.Snapshot(ctx, scope)
	if err != nil {
		return core.DashboardStats{}, "", err
	}
	return stats.Aggregate(st.Transactions, cur, s.conv), cur, nil
}

// Breakdown totals one transaction type per category in the display currency.
func (s *Service) Breakdown(ctx context.Context, scope Scope, t core.TransactionType, displayCurrency string) ([]stats.CategoryAmount, string, error) {
	if !t.Valid() {
		return nil, "", core.ErrInvalidType
	}
	cur, err := s.displayCurrency(ctx, scope.UserID, displayCurrency)
	if err != nil {
		return nil, "", err
	}
	st, err := s.Snapshot(ctx, scope)
	if err != nil {
		return nil, "", err
	}
	return stats.CategoryBreakdown(st.Transactions, t, cur, s.conv), cur, nil
}

// Insight computes the totals and expense breakdown of scope from one
// snapshot and turns them into a tip.
func (s *Service) Insight(ctx context.Context, scope Scope, displayCurrency, question string) (stats.Insight, string, error) {
	cur, err := s.displayCurrency(ctx, scope.UserID, displayCurrency)
	if err != nil {
		return stats.Insight{}, "", err
	}
	st, err := s.Snapshot(ctx, scope)
	if err != nil {
		return stats.Insight{}, "", err
	}
	totals := stats.Aggregate(st.Transactions, cur, s.conv)
	expenses := stats.CategoryBreakdown(st.Transactions, core.Expense, cur, s.conv)
	return stats.Suggest(totals, expenses, currency.SymbolOf(s.conv, cur), question), cur, nil
}

// Settings returns the user's settings or defaults when none were saved.
func (s *Service) Settings(ctx context.Context, userID string) (core.Settings, error) {
	settings, found, err := s.store(userID).Settings(ctx, userID)
	if err != nil {
		return core.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if !found {
		return core.DefaultSettings(s.defaultCurrency), nil
	}
	if settings.ActiveProfile == "" {
		settings.ActiveProfile = core.DefaultProfileID
	}
	return settings, nil
}

// UpdateSettings validates and persists settings. The active profile must exist.
func (s *Service) UpdateSettings(ctx context.Context, userID string, settings core.Settings) (core.Settings, error) {
	settings.Currency = core.NormalizeCurrency(settings.Currency)
	if settings.ActiveProfile == "" {
		settings.ActiveProfile = core.DefaultProfileID
	}
	if err := settings.Validate(); err != nil {
		return core.Settings{}, err
	}
	if _, err := s.profile(ctx, userID, settings.ActiveProfile); err != nil {
		return core.Settings{}, err
	}
	if err := s.store(userID).SaveSettings(ctx, userID, settings); err != nil {
		return core.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return settings, nil
}

// Profiles lists the user's profiles, the default one first.
func (s *Service) Profiles(ctx context.Context, userID string) ([]core.Profile, error) {
	stored, err := s.store(userID).Profiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]core.Profile, 0, len(stored)+1)
	out = append(out, core.Profile{ID: core.DefaultProfileID, Name: core.DefaultProfileName})
	for _, p := range stored {
		if p.ID == core.DefaultProfileID {
			out[0] = p
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) profile(ctx context.Context, userID, id string) (core.Profile, error) {
	profiles, err := s.Profiles(ctx, userID)
	if err != nil {
		return core.Profile{}, err
	}
	for _, p := range profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return core.Profile{}, fmt.Errorf("profile %s: %w", id, ErrProfileNotFound)
}

// CreateProfile adds an empty profile with a fresh id.
func (s *Service) CreateProfile(ctx context.Context, userID, name string) (core.Profile, error) {
	p := core.Profile{ID: core.NewID(), Name: strings.TrimSpace(name), CreatedAt: s.now().UTC()}
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	if err := s.store(userID).SaveProfile(ctx, userID, p); err != nil {
		return core.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}

// RenameProfile changes a profile's display name, including the default one.
func (s *Service) RenameProfile(ctx context.Context, userID, id, name string) (core.Profile, error) {
	p, err := s.profile(ctx, userID, id)
	if err != nil {
		return core.Profile{}, err
	}
	p.Name = strings.TrimSpace(name)
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	if err := s.store(userID).SaveProfile(ctx, userID, p); err != nil {
		return core.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}

// DeleteProfile removes a profile and its data. When it was active the user
// falls back to the default profile.
func (s *Service) DeleteProfile(ctx context.Context, userID, id string) error {
	if id == core.DefaultProfileID {
		return ErrDefaultProfile
	}
	if _, err := s.profile(ctx, userID, id); err != nil {
		return err
	}
	key := NewScope(userID, id).Key()
	unlock := s.lockScope(key)
	err := s.store(userID).DeleteProfile(ctx, userID, id)
	if err == nil {
		s.sessions.Delete(key)
	}
	unlock()
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	settings, err := s.Settings(ctx, userID)
	if err != nil {
		return err
	}
	if settings.ActiveProfile == id {
		settings.ActiveProfile = core.DefaultProfileID
		if err := s.store(userID).SaveSettings(ctx, userID, settings); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}
	return nil
}

// ActivateProfile makes id the profile used when a request names none.
func (s *Service) ActivateProfile(ctx context.Context, userID, id string) (core.Settings, error) {
	settings, err := s.Settings(ctx, userID)
	if err != nil {
		return core.Settings{}, err
	}
	settings.ActiveProfile = id
	return s.UpdateSettings(ctx, userID, settings)
}

// ResolveScope picks the profile a request works on: the explicit one if
// given and known, otherwise the user's active profile.
func (s *Service) ResolveScope(ctx context.Context, userID, profileID string) (Scope, error) {
	scope := NewScope(userID, profileID)
	if strings.TrimSpace(profileID) == "" {
		settings, err := s.Settings(ctx, scope.UserID)
		if err != nil {
			return Scope{}, err
		}
		scope.ProfileID = settings.ActiveProfile
	}
	if scope.ProfileID == core.DefaultProfileID {
		return scope, nil
	}
	if _, err := s.profile(ctx, scope.UserID, scope.ProfileID); err != nil {
		if errors.Is(err, ErrProfileNotFound) && strings.TrimSpace(profileID) == "" {
			scope.ProfileID = core.DefaultProfileID
			return scope, nil
		}
		return Scope{}, err
	}
	return scope, nil
}
