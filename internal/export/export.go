// Package export writes a full, human-readable copy of one profile to an
// external destination. Every export rewrites the destination, so repeating
// one is harmless.
package export

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"hisab/internal/core"
	"hisab/internal/currency"
	"hisab/internal/stats"
)

// ProfileExport is everything an exporter needs about one scope.
type ProfileExport struct {
	UserID          string
	ProfileID       string
	ProfileName     string
	DisplayCurrency string
	Transactions    []core.Transaction
	Goals           []core.Goal
	Stats           core.DashboardStats
}

// Exporter publishes a profile and returns a reference to where it went.
type Exporter interface {
	ExportProfile(ctx context.Context, p ProfileExport) (ref string, err error)
}

var unsafeTitle = regexp.MustCompile(`[^A-Za-z0-9 _.-]+`)

// SheetTitle derives a stable destination name for a scope.
func SheetTitle(userID, profileID string) string {
	title := unsafeTitle.ReplaceAllString(userID+"-"+profileID, "_")
	if len(title) > 100 {
		title = title[:100]
	}
	return title
}

func money(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// BuildRows lays a profile out as a table: one row per transaction (newest
// first) with its amount converted to the display currency, then the totals,
// then the goals.
func BuildRows(p ProfileExport, conv currency.Converter) [][]any {
	display := core.NormalizeCurrency(p.DisplayCurrency)
	rows := [][]any{{"Date", "Type", "Category", "Note", "Amount", "Currency", "Amount (" + display + ")", "Excluded"}}

	for _, tx := range stats.SortNewestFirst(p.Transactions) {
		excluded := ""
		if tx.Type == core.Savings && tx.ExcludeFromBalance {
			excluded = "yes"
		}
		rows = append(rows, []any{
			tx.Date.String(),
			string(tx.Type),
			tx.Category,
			tx.Note,
			money(tx.Amount),
			tx.CurrencyOrFallback(),
			money(conv.Convert(tx.Amount, tx.CurrencyOrFallback(), display)),
			excluded,
		})
	}

	rows = append(rows,
		[]any{},
		[]any{"Summary", display},
		[]any{"Total income", money(p.Stats.TotalIncome)},
		[]any{"Total expense", money(p.Stats.TotalExpense)},
		[]any{"Total savings", money(p.Stats.TotalSavings)},
		[]any{"Balance", money(p.Stats.Balance)},
	)

	if len(p.Goals) > 0 {
		rows = append(rows, []any{}, []any{"Goal", "Saved", "Target", "Progress %"})
		for _, g := range p.Goals {
			rows = append(rows, []any{
				strings.TrimSpace(g.Name),
				money(g.SavedAmount),
				money(g.TargetAmount),
				stats.GoalProgress(g).Percent,
			})
		}
	}
	return rows
}
