package stats

import (
	"math"
	"sort"

	"hisab/internal/core"
)

// FilterType keeps the transactions of type t.
func FilterType(txs []core.Transaction, t core.TransactionType) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type == t {
			out = append(out, tx)
		}
	}
	return out
}

// FilterMonth keeps the transactions dated in the given year and month.
func FilterMonth(txs []core.Transaction, year, month int) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Date.Year() == year && int(tx.Date.Month()) == month {
			out = append(out, tx)
		}
	}
	return out
}

// SortNewestFirst orders by date descending, keeping insertion order for
// equal dates. The input is not modified.
func SortNewestFirst(txs []core.Transaction) []core.Transaction {
	out := append([]core.Transaction(nil), txs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date.Time)
	})
	return out
}

// Progress describes how far a goal is from its target.
type Progress struct {
	Percent   int     `json:"percent"`
	Completed bool    `json:"completed"`
	Remaining float64 `json:"remaining"`
}

// GoalProgress caps the percentage at 100.
func GoalProgress(g core.Goal) Progress {
	if g.TargetAmount <= 0 {
		return Progress{}
	}
	pct := int(math.Round(g.SavedAmount / g.TargetAmount * 100))
	if pct > 100 {
		pct = 100
	}
	remaining := g.TargetAmount - g.SavedAmount
	if remaining < 0 {
		remaining = 0
	}
	return Progress{Percent: pct, Completed: pct >= 100, Remaining: remaining}
}
