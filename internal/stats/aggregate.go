// Package stats reduces transaction sets into the figures shown on the
// dashboard. Every function is pure and recomputes from scratch.
package stats

import (
	"sort"

	"hisab/internal/core"
	"hisab/internal/currency"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Aggregate sums transactions per type in displayCurrency. Savings are
// reported in full, but only those that deduct from balance reduce Balance.
// Amounts are trusted to be positive; the type carries the sign.
func Aggregate(txs []core.Transaction, displayCurrency string, conv currency.Converter) core.DashboardStats {
	var stats core.DashboardStats
	var deductedSavings float64
	for _, tx := range txs {
		amount := conv.Convert(tx.Amount, tx.CurrencyOrFallback(), displayCurrency)
		switch tx.Type {
		case core.Income:
			stats.TotalIncome += amount
		case core.Expense:
			stats.TotalExpense += amount
		case core.Savings:
			stats.TotalSavings += amount
			if tx.DeductsFromBalance() {
				deductedSavings += amount
			}
		}
	}
	stats.Balance = stats.TotalIncome - stats.TotalExpense - deductedSavings
	return stats
}

// CategoryBreakdown sums the converted amounts of one type per category,
// largest first.
func CategoryBreakdown(txs []core.Transaction, t core.TransactionType, displayCurrency string, conv currency.Converter) []CategoryAmount {
	index := map[string]int{}
	var out []CategoryAmount
	for _, tx := range txs {
		if tx.Type != t {
			continue
		}
		amount := conv.Convert(tx.Amount, tx.CurrencyOrFallback(), displayCurrency)
		if i, ok := index[tx.Category]; ok {
			out[i].Amount += amount
			continue
		}
		index[tx.Category] = len(out)
		out = append(out, CategoryAmount{Name: tx.Category, Amount: amount})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Name < out[j].Name
	})
	return out
}
