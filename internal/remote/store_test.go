package remote

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"hisab/internal/core"
	"hisab/internal/ledger"
)

// recordingTx captures the statements applyChange issues. Only Exec and
// SendBatch are used; the embedded interface panics on anything else.
type recordingTx struct {
	pgx.Tx
	stmts    []string
	batched  int
	affected int64
}

func (r *recordingTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.stmts = append(r.stmts, strings.Join(strings.Fields(sql), " "))
	return pgconn.NewCommandTag("UPDATE " + strconv.FormatInt(r.affected, 10)), nil
}

func (r *recordingTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	r.batched += b.Len()
	return closedBatch{}
}

type closedBatch struct{ pgx.BatchResults }

func (closedBatch) Close() error { return nil }

func change(t *testing.T, before ledger.State, a ledger.Action) ledger.Change {
	t.Helper()
	after, err := ledger.Reduce(before, a)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	return ledger.Change{Action: a, Before: before, After: after}
}

func TestApplyChangeStatements(t *testing.T) {
	ctx := context.Background()
	scope := ledger.NewScope("u1", "")
	base := ledger.NewState()
	tx := core.Transaction{ID: "t1", Amount: 5, Category: "Salary", Type: core.Income, Date: core.NewDate(2024, 1, 2)}
	withTx, _ := ledger.Reduce(base, ledger.AddTransaction{Transaction: tx})
	withGoal, _ := ledger.Reduce(withTx, ledger.AddGoal{Goal: core.Goal{ID: "g1", Name: "Car", TargetAmount: 10}})

	tests := []struct {
		name       string
		before     ledger.State
		action     ledger.Action
		wantPrefix []string
		wantBatch  int
	}{
		{"add transaction", base, ledger.AddTransaction{Transaction: tx}, []string{"INSERT INTO transactions"}, 0},
		{"update transaction", withTx, ledger.UpdateTransaction{Transaction: tx}, []string{"UPDATE transactions"}, 0},
		{"delete transaction", withTx, ledger.DeleteTransaction{ID: "t1"}, []string{"DELETE FROM transactions"}, 0},
		{"deposit", withGoal, ledger.DepositGoal{ID: "g1", Amount: 3}, []string{"UPDATE goals"}, 0},
		{"add category", base, ledger.AddCategory{Type: core.Income, Name: "Bonus"}, []string{"DELETE FROM categories"}, len(base.Categories[core.Income]) + 1},
		{"clear all", withGoal, ledger.ClearAll{}, []string{"DELETE FROM transactions", "DELETE FROM goals", "DELETE FROM categories", "DELETE FROM categories", "DELETE FROM categories"}, len(core.DefaultCategories()[core.Income]) + len(core.DefaultCategories()[core.Expense]) + len(core.DefaultCategories()[core.Savings])},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingTx{affected: 1}
			if err := applyChange(ctx, rec, scope, change(t, tt.before, tt.action)); err != nil {
				t.Fatalf("applyChange: %v", err)
			}
			if len(rec.stmts) != len(tt.wantPrefix) {
				t.Fatalf("statements = %v", rec.stmts)
			}
			for i, p := range tt.wantPrefix {
				if !strings.HasPrefix(rec.stmts[i], p) {
					t.Errorf("stmt %d = %q, want prefix %q", i, rec.stmts[i], p)
				}
			}
			if rec.batched != tt.wantBatch {
				t.Errorf("batched = %d, want %d", rec.batched, tt.wantBatch)
			}
		})
	}
}

func TestApplyChangeMissingRow(t *testing.T) {
	scope := ledger.NewScope("u1", "")
	tx := core.Transaction{ID: "t1", Amount: 5, Category: "Salary", Type: core.Income, Date: core.NewDate(2024, 1, 2)}
	before, _ := ledger.Reduce(ledger.NewState(), ledger.AddTransaction{Transaction: tx})

	rec := &recordingTx{affected: 0}
	err := applyChange(context.Background(), rec, scope, change(t, before, ledger.DeleteTransaction{ID: "t1"}))
	if !errors.Is(err, errNoRows) {
		t.Errorf("err = %v, want errNoRows", err)
	}
}
