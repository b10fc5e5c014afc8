package stats

import (
	"fmt"
	"strings"

	"hisab/internal/core"
)

// Insight topics.
const (
	TopicEmpty        = "empty"
	TopicOverspending = "overspending"
	TopicSavings      = "savings"
	TopicSpending     = "spending"
	TopicOnTrack      = "on_track"
)

// TargetSavingsRate is the share of income, in percent, a tip aims for.
const TargetSavingsRate = 20

// Insight is a short financial tip derived from the dashboard figures.
type Insight struct {
	Topic       string          `json:"topic"`
	Tip         string          `json:"tip"`
	SavingsRate float64         `json:"savingsRate"`
	TopExpense  *CategoryAmount `json:"topExpense,omitempty"`
}

// Suggest picks a tip from the totals and the expense breakdown (largest
// first). A question mentioning saving or spending steers the topic.
func Suggest(totals core.DashboardStats, expenses []CategoryAmount, symbol, question string) Insight {
	var in Insight
	if totals.TotalIncome > 0 {
		in.SavingsRate = totals.TotalSavings / totals.TotalIncome * 100
	}
	if len(expenses) > 0 {
		top := expenses[0]
		in.TopExpense = &top
	}
	money := func(v float64) string { return fmt.Sprintf("%s%.2f", symbol, v) }

	if totals.TotalIncome == 0 && totals.TotalExpense == 0 && totals.TotalSavings == 0 {
		in.Topic = TopicEmpty
		in.Tip = "Add a few transactions and ask again for a tip based on your own numbers."
		return in
	}

	q := strings.ToLower(question)
	switch {
	case containsAny(q, "save", "saving", "goal"):
		in.Topic = TopicSavings
	case containsAny(q, "spend", "expense", "cut", "budget"):
		in.Topic = TopicSpending
	case totals.TotalExpense > totals.TotalIncome:
		in.Topic = TopicOverspending
	case in.SavingsRate < TargetSavingsRate:
		in.Topic = TopicSavings
	default:
		in.Topic = TopicOnTrack
	}

	switch in.Topic {
	case TopicOverspending:
		in.Tip = fmt.Sprintf("You spent %s more than you earned.", money(totals.TotalExpense-totals.TotalIncome))
		if in.TopExpense != nil {
			in.Tip += fmt.Sprintf(" Start with %s, your largest expense at %s.", in.TopExpense.Name, money(in.TopExpense.Amount))
		}
	case TopicSpending:
		if in.TopExpense == nil {
			in.Tip = "You have no expenses recorded yet."
			break
		}
		in.Tip = fmt.Sprintf("%s is your largest expense at %s", in.TopExpense.Name, money(in.TopExpense.Amount))
		if totals.TotalExpense > 0 {
			in.Tip += fmt.Sprintf(", %.0f%% of all spending", in.TopExpense.Amount/totals.TotalExpense*100)
		}
		in.Tip += ". Trimming it by a tenth would free " + money(in.TopExpense.Amount/10) + "."
	case TopicSavings:
		if totals.TotalIncome == 0 {
			in.Tip = "Record your income to see how much of it you are saving."
			break
		}
		target := totals.TotalIncome * TargetSavingsRate / 100
		if totals.TotalSavings >= target {
			in.Tip = fmt.Sprintf("You are saving %.0f%% of your income, above the %d%% mark.", in.SavingsRate, TargetSavingsRate)
			break
		}
		in.Tip = fmt.Sprintf("You are saving %.0f%% of your income. Putting aside %s more would reach %d%%.",
			in.SavingsRate, money(target-totals.TotalSavings), TargetSavingsRate)
	default:
		in.Tip = fmt.Sprintf("You are saving %.0f%% of your income with a balance of %s. Keep it up.", in.SavingsRate, money(totals.Balance))
	}
	return in
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
