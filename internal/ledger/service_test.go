package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hisab/internal/core"
	"hisab/internal/currency"
)

// fakeStore keeps committed state per scope and can be told to fail commits.
type fakeStore struct {
	mu         sync.Mutex
	states     map[string]State
	profiles   map[string][]core.Profile
	settings   map[string]core.Settings
	failCommit error
	loads      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states:   map[string]State{},
		profiles: map[string][]core.Profile{},
		settings: map[string]core.Settings{},
	}
}

func (f *fakeStore) Load(_ context.Context, scope Scope) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if st, ok := f.states[scope.Key()]; ok {
		return st.Clone(), nil
	}
	return NewState(), nil
}

func (f *fakeStore) Commit(_ context.Context, scope Scope, c Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCommit != nil {
		return f.failCommit
	}
	f.states[scope.Key()] = c.After.Clone()
	return nil
}

func (f *fakeStore) Profiles(_ context.Context, userID string) ([]core.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Profile(nil), f.profiles[userID]...), nil
}

func (f *fakeStore) SaveProfile(_ context.Context, userID string, p core.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.profiles[userID] {
		if existing.ID == p.ID {
			f.profiles[userID][i] = p
			return nil
		}
	}
	f.profiles[userID] = append(f.profiles[userID], p)
	return nil
}

func (f *fakeStore) DeleteProfile(_ context.Context, userID, profileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []core.Profile
	for _, p := range f.profiles[userID] {
		if p.ID != profileID {
			kept = append(kept, p)
		}
	}
	f.profiles[userID] = kept
	delete(f.states, NewScope(userID, profileID).Key())
	return nil
}

func (f *fakeStore) Settings(_ context.Context, userID string) (core.Settings, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[userID]
	return s, ok, nil
}

func (f *fakeStore) SaveSettings(_ context.Context, userID string, s core.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[userID] = s
	return nil
}

func (f *fakeStore) Close() error { return nil }

type recordingPublisher struct {
	kinds []string
	err   error
}

func (p *recordingPublisher) PublishChange(_ context.Context, _, _, kind, _ string) error {
	p.kinds = append(p.kinds, kind)
	return p.err
}

func newTestService(store Store, opts ...Option) *Service {
	return NewService(SingleStore{Store: store}, currency.Default(), opts...)
}

func TestDispatchCommitsAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	pub := &recordingPublisher{}
	svc := newTestService(store, WithPublisher(pub))
	scope := NewScope("", "")

	st, err := svc.Dispatch(ctx, scope, AddTransaction{Transaction: sampleTx("a", 10, core.Income)})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(st.Transactions) != 1 {
		t.Fatalf("returned state = %+v", st)
	}
	if got := store.states[scope.Key()]; len(got.Transactions) != 1 {
		t.Errorf("store not committed: %+v", got)
	}
	if len(pub.kinds) != 1 || pub.kinds[0] != "transaction.added" {
		t.Errorf("published = %v", pub.kinds)
	}
}

func TestDispatchPublishFailureKeepsCommit(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store, WithPublisher(&recordingPublisher{err: errors.New("broker down")}))
	scope := NewScope("u1", "")

	if _, err := svc.Dispatch(ctx, scope, AddTransaction{Transaction: sampleTx("a", 10, core.Income)}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	st, _ := svc.Snapshot(ctx, scope)
	if len(st.Transactions) != 1 {
		t.Errorf("transactions = %d, want 1", len(st.Transactions))
	}
}

func TestDispatchRevertsOnCommitFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	scope := NewScope("u1", "")

	if _, err := svc.Dispatch(ctx, scope, AddTransaction{Transaction: sampleTx("a", 10, core.Income)}); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}

	cause := errors.New("disk full")
	store.failCommit = cause
	_, err := svc.Dispatch(ctx, scope, AddTransaction{Transaction: sampleTx("b", 20, core.Expense)})

	var ce *CommitError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CommitError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("CommitError should wrap the cause")
	}

	st, _ := svc.Snapshot(ctx, scope)
	if len(st.Transactions) != 1 || st.Transactions[0].ID != "a" {
		t.Errorf("session not reverted to last known-good state: %+v", st.Transactions)
	}
}

func TestDispatchValidationErrorLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	scope := NewScope("u1", "")

	_, err := svc.Dispatch(ctx, scope, DeleteTransaction{ID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, ok := store.states[scope.Key()]; ok {
		t.Error("store should not be touched by a rejected action")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())
	scope := NewScope("u1", "")
	if _, err := svc.Dispatch(ctx, scope, AddTransaction{Transaction: sampleTx("a", 10, core.Income)}); err != nil {
		t.Fatal(err)
	}

	st, _ := svc.Snapshot(ctx, scope)
	st.Transactions[0].Amount = 999

	again, _ := svc.Snapshot(ctx, scope)
	if again.Transactions[0].Amount != 10 {
		t.Error("caller mutation leaked into session state")
	}
}

func TestSessionEvictionReloads(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store, WithSessionCache(1, time.Hour))

	a, b := NewScope("u1", ""), NewScope("u2", "")
	if _, err := svc.Snapshot(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Snapshot(ctx, b); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Snapshot(ctx, a); err != nil {
		t.Fatal(err)
	}
	if store.loads != 3 {
		t.Errorf("loads = %d, want 3", store.loads)
	}
}

func TestStatsUsesSettingsCurrency(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	scope := NewScope("u1", "")

	tx := sampleTx("a", 117.5, core.Income)
	tx.Currency = "BDT"
	if _, err := svc.Dispatch(ctx, scope, AddTransaction{Transaction: tx}); err != nil {
		t.Fatal(err)
	}

	stats, cur, err := svc.Stats(ctx, scope, "")
	if err != nil {
		t.Fatal(err)
	}
	if cur != "USD" || stats.TotalIncome < 0.999 || stats.TotalIncome > 1.001 {
		t.Errorf("stats = %+v in %s", stats, cur)
	}

	if _, err := svc.UpdateSettings(ctx, "u1", core.Settings{Currency: "bdt", Language: "en", Theme: "dark"}); err != nil {
		t.Fatal(err)
	}
	stats, cur, _ = svc.Stats(ctx, scope, "")
	if cur != "BDT" || stats.TotalIncome != 117.5 {
		t.Errorf("stats = %+v in %s", stats, cur)
	}

	if _, _, err := svc.Stats(ctx, scope, "dollars"); !errors.Is(err, core.ErrInvalidCurrency) {
		t.Errorf("err = %v, want ErrInvalidCurrency", err)
	}
}

func TestProfileLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	profiles, err := svc.Profiles(ctx, "u1")
	if err != nil || len(profiles) != 1 || profiles[0].ID != core.DefaultProfileID {
		t.Fatalf("profiles = %+v, %v", profiles, err)
	}

	work, err := svc.CreateProfile(ctx, "u1", " Work ")
	if err != nil {
		t.Fatal(err)
	}
	if work.Name != "Work" {
		t.Errorf("name = %q", work.Name)
	}
	if _, err := svc.CreateProfile(ctx, "u1", ""); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("err = %v, want ErrEmptyName", err)
	}

	if _, err := svc.ActivateProfile(ctx, "u1", work.ID); err != nil {
		t.Fatal(err)
	}
	scope, err := svc.ResolveScope(ctx, "u1", "")
	if err != nil || scope.ProfileID != work.ID {
		t.Fatalf("scope = %+v, %v", scope, err)
	}

	if _, err := svc.Dispatch(ctx, scope, AddTransaction{Transaction: sampleTx("w", 5, core.Expense)}); err != nil {
		t.Fatal(err)
	}
	def, _ := svc.Snapshot(ctx, NewScope("u1", core.DefaultProfileID))
	if len(def.Transactions) != 0 {
		t.Error("profiles must not share transactions")
	}

	if err := svc.DeleteProfile(ctx, "u1", core.DefaultProfileID); !errors.Is(err, ErrDefaultProfile) {
		t.Errorf("err = %v, want ErrDefaultProfile", err)
	}
	if err := svc.DeleteProfile(ctx, "u1", work.ID); err != nil {
		t.Fatal(err)
	}
	settings, _ := svc.Settings(ctx, "u1")
	if settings.ActiveProfile != core.DefaultProfileID {
		t.Errorf("active profile = %q after delete", settings.ActiveProfile)
	}
	if _, err := svc.ResolveScope(ctx, "u1", work.ID); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("err = %v, want ErrProfileNotFound", err)
	}
}

func TestSettingsDefaults(t *testing.T) {
	svc := newTestService(newFakeStore(), WithDefaultCurrency("bdt"))
	s, err := svc.Settings(context.Background(), "guest")
	if err != nil {
		t.Fatal(err)
	}
	if s.Currency != "BDT" || s.Language != "en" || s.ActiveProfile != core.DefaultProfileID {
		t.Errorf("settings = %+v", s)
	}
	if _, err := svc.UpdateSettings(context.Background(), "guest", core.Settings{Currency: "BDT", Language: "fr", Theme: "light"}); !errors.Is(err, core.ErrInvalidLanguage) {
		t.Errorf("err = %v, want ErrInvalidLanguage", err)
	}
}

// gatedStore holds the first commit until release is closed.
type gatedStore struct {
	*fakeStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Commit(ctx context.Context, scope Scope, c Change) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.fakeStore.Commit(ctx, scope, c)
}

func TestDispatchSerialisesScopeAcrossEviction(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{fakeStore: newFakeStore(), entered: make(chan struct{}), release: make(chan struct{})}
	svc := newTestService(store, WithSessionCache(1, time.Hour))
	scope := NewScope("u1", "")

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Dispatch(ctx, scope, AddTransaction{Transaction: sampleTx("t1", 10, core.Income)})
		firstErr <- err
	}()
	<-store.entered

	// Pushes the in-flight session out of the one-slot cache.
	if _, err := svc.Snapshot(ctx, NewScope("u2", "")); err != nil {
		t.Fatal(err)
	}

	secondErr := make(chan error, 1)
	go func() {
		_, err := svc.Dispatch(ctx, scope, AddTransaction{Transaction: sampleTx("t2", 20, core.Income)})
		secondErr <- err
	}()

	select {
	case err := <-secondErr:
		t.Fatalf("second write finished while the first was still committing (err = %v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	if err := <-secondErr; err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}

	store.mu.Lock()
	persisted := store.states[scope.Key()]
	store.mu.Unlock()
	if len(persisted.Transactions) != 2 {
		t.Fatalf("persisted = %+v, want both transactions", persisted.Transactions)
	}
	if len(svc.locks) != 0 {
		t.Errorf("idle scope locks kept: %d", len(svc.locks))
	}
}

// slowPublisher blocks until release is closed.
type slowPublisher struct {
	release chan struct{}
}

func (p *slowPublisher) PublishChange(context.Context, string, string, string, string) error {
	<-p.release
	return nil
}

func TestPublishDoesNotHoldScope(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	pub := &slowPublisher{release: make(chan struct{})}
	defer close(pub.release)
	svc := newTestService(store, WithPublisher(pub))
	scope := NewScope("u1", "")

	go func() {
		_, _ = svc.Dispatch(ctx, scope, AddTransaction{Transaction: sampleTx("t1", 10, core.Income)})
	}()

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		committed := len(store.states[scope.Key()].Transactions) == 1
		store.mu.Unlock()
		if committed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("transaction never committed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// The publisher is still blocked here.
	done := make(chan State, 1)
	go func() {
		st, _ := svc.Snapshot(ctx, scope)
		done <- st
	}()
	select {
	case st := <-done:
		if len(st.Transactions) != 1 {
			t.Errorf("snapshot = %+v, want the committed transaction", st.Transactions)
		}
	case <-time.After(time.Second):
		t.Fatal("snapshot blocked while the change event was being published")
	}
}
