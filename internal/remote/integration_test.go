//go:build integration

package remote

import (
	"context"
	"os"
	"testing"

	"hisab/internal/core"
	"hisab/internal/ledger"
)

// Run with: HISAB_TEST_DATABASE_URL=postgres://... go test -tags=integration ./internal/remote

func TestIntegration_RemoteStoreRoundTrip(t *testing.T) {
	url := os.Getenv("HISAB_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HISAB_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	s, err := Open(ctx, url, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	scope := ledger.NewScope("it-"+core.NewID(), "")
	defer s.DeleteProfile(ctx, scope.UserID, scope.ProfileID)

	before, err := s.Load(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	a := ledger.AddTransaction{Transaction: core.Transaction{
		ID: "t1", Amount: 42.25, Category: "Salary", Type: core.Income,
		Date: core.NewDate(2024, 2, 29), Currency: "BDT",
	}}
	after, err := ledger.Reduce(before, a)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(ctx, scope, ledger.Change{Action: a, Before: before, After: after}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := s.Load(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	tx, ok := got.Transaction("t1")
	if !ok || tx.Amount != 42.25 || tx.Date.String() != "2024-02-29" || tx.Currency != "BDT" {
		t.Errorf("transaction = %+v", tx)
	}
}
