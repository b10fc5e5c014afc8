package storage

import (
	"context"
	"path/filepath"
	"testing"

	"hisab/internal/core"
	"hisab/internal/ledger"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "data", "hisab.db"), nil)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func commit(t *testing.T, s *LocalStore, scope ledger.Scope, a ledger.Action) {
	t.Helper()
	before, err := s.Load(context.Background(), scope)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	after, err := ledger.Reduce(before, a)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if err := s.Commit(context.Background(), scope, ledger.Change{Action: a, Before: before, After: after}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestKeyLayout(t *testing.T) {
	def := ledger.NewScope("guest", "")
	work := ledger.NewScope("guest", "p1")

	tests := []struct {
		got, want string
	}{
		{transactionsKey(def), "hisab_transactions_guest"},
		{transactionsKey(work), "hisab_transactions_guest/p1"},
		{goalsKey(work), "hisab_goals_guest/p1"},
		{transactionsKey(ledger.NewScope("a/b", "c")), "hisab_transactions_a%2Fb/c"},
		{categoriesKey(core.Expense, def), "hisab_categories_expense_guest"},
		{profilesKey("guest"), "hisab_profiles_guest"},
		{settingsKey("guest"), "hisab_settings_guest"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestScopeKeysDoNotCollide(t *testing.T) {
	scopes := []ledger.Scope{
		ledger.NewScope("a_b", ""),
		ledger.NewScope("a", "b"),
		ledger.NewScope("a_b", "c"),
		ledger.NewScope("a", "b_c"),
		ledger.NewScope("a/b", "c"),
		ledger.NewScope("a", "b/c"),
		ledger.NewScope("a%2Fb", "c"),
	}
	seen := map[string]ledger.Scope{}
	for _, sc := range scopes {
		for _, key := range []string{transactionsKey(sc), goalsKey(sc), categoriesKey(core.Income, sc)} {
			if prev, ok := seen[key]; ok {
				t.Errorf("%v and %v share key %q", prev, sc, key)
			}
			seen[key] = sc
		}
	}
}

func TestProfilesWithUnderscoresKeepSeparateData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	plain := ledger.NewScope("a_b", "")
	profiled := ledger.NewScope("a", "b")
	next := ledger.NewState()
	next.Transactions = []core.Transaction{{ID: "t1", Amount: 5, Category: "Salary", Date: core.NewDate(2024, 1, 2), Type: core.Income}}
	if err := s.Commit(ctx, plain, ledger.Change{After: next}); err != nil {
		t.Fatal(err)
	}

	st, err := s.Load(ctx, profiled)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Transactions) != 0 {
		t.Errorf("profile b of user a sees %+v", st.Transactions)
	}
}

func TestLoadEmptyScopeReturnsDefaults(t *testing.T) {
	s := newTestStore(t)
	st, err := s.Load(context.Background(), ledger.NewScope("guest", ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Transactions) != 0 || len(st.Goals) != 0 {
		t.Errorf("state = %+v", st)
	}
	if !st.Categories.Contains(core.Income, "Salary") {
		t.Error("default categories missing")
	}
}

func TestCommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	scope := ledger.NewScope("guest", "")

	commit(t, s, scope, ledger.AddTransaction{Transaction: core.Transaction{
		ID: "t1", Amount: 12.5, Category: "Salary", Type: core.Income,
		Date: core.NewDate(2024, 5, 2), Currency: "EUR",
	}})
	commit(t, s, scope, ledger.AddGoal{Goal: core.Goal{ID: "g1", Name: "Trip", TargetAmount: 300}})
	commit(t, s, scope, ledger.AddCategory{Type: core.Expense, Name: "Pets"})

	st, err := s.Load(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	tx, ok := st.Transaction("t1")
	if !ok || tx.Amount != 12.5 || tx.Currency != "EUR" || tx.Date.String() != "2024-05-02" {
		t.Errorf("transaction = %+v", tx)
	}
	if _, ok := st.Goal("g1"); !ok {
		t.Error("goal missing")
	}
	if !st.Categories.Contains(core.Expense, "Pets") {
		t.Error("custom category missing")
	}

	other, _ := s.Load(ctx, ledger.NewScope("guest", "p2"))
	if len(other.Transactions) != 0 {
		t.Error("profiles leaked into each other")
	}
}

func TestLoadReadsLegacyRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	legacy := `[{"id":"old","amount":5,"category":"Food & Dining","date":"2023-01-09T10:11:12.000Z","type":"expense"},{"amount":1}]`
	if err := s.kv.Set(ctx, "hisab_transactions_guest", legacy); err != nil {
		t.Fatal(err)
	}
	if err := s.kv.Set(ctx, "hisab_goals_guest", "not json"); err != nil {
		t.Fatal(err)
	}

	st, err := s.Load(ctx, ledger.NewScope("guest", ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Transactions) != 1 {
		t.Fatalf("transactions = %+v", st.Transactions)
	}
	tx := st.Transactions[0]
	if tx.Date.String() != "2023-01-09" || tx.CurrencyOrFallback() != core.FallbackCurrency {
		t.Errorf("legacy transaction = %+v", tx)
	}
	if len(st.Goals) != 0 {
		t.Error("corrupted goals should load as empty")
	}
}

func TestProfilesAndSettings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, found, err := s.Settings(ctx, "guest"); err != nil || found {
		t.Fatalf("found = %v, err = %v", found, err)
	}
	want := core.Settings{Currency: "BDT", Language: "bn", Theme: "dark", ActiveProfile: "p1"}
	if err := s.SaveSettings(ctx, "guest", want); err != nil {
		t.Fatal(err)
	}
	got, found, err := s.Settings(ctx, "guest")
	if err != nil || !found || got != want {
		t.Errorf("settings = %+v, %v, %v", got, found, err)
	}

	if err := s.SaveProfile(ctx, "guest", core.Profile{ID: "p1", Name: "Work"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveProfile(ctx, "guest", core.Profile{ID: "p1", Name: "Office"}); err != nil {
		t.Fatal(err)
	}
	scope := ledger.NewScope("guest", "p1")
	commit(t, s, scope, ledger.AddGoal{Goal: core.Goal{ID: "g", Name: "Laptop", TargetAmount: 10}})

	profiles, _ := s.Profiles(ctx, "guest")
	if len(profiles) != 1 || profiles[0].Name != "Office" {
		t.Errorf("profiles = %+v", profiles)
	}

	if err := s.DeleteProfile(ctx, "guest", "p1"); err != nil {
		t.Fatal(err)
	}
	profiles, _ = s.Profiles(ctx, "guest")
	if len(profiles) != 0 {
		t.Errorf("profiles = %+v", profiles)
	}
	keys, _ := s.kv.Keys(ctx, "hisab_goals_guest_p1")
	if len(keys) != 0 {
		t.Errorf("profile data left behind: %v", keys)
	}
}
