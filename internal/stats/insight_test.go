package stats

import (
	"strings"
	"testing"

	"hisab/internal/core"
)

func TestSuggest(t *testing.T) {
	expenses := []CategoryAmount{{Name: "Rent", Amount: 800}, {Name: "Food", Amount: 400}}

	tests := []struct {
		name     string
		totals   core.DashboardStats
		expenses []CategoryAmount
		question string
		topic    string
		contains []string
	}{
		{
			name:  "no data",
			topic: TopicEmpty,
		},
		{
			name:     "spending above income",
			totals:   core.DashboardStats{TotalIncome: 1000, TotalExpense: 1200, Balance: -200},
			expenses: expenses,
			topic:    TopicOverspending,
			contains: []string{"$200.00 more", "Rent", "$800.00"},
		},
		{
			name:     "low savings rate",
			totals:   core.DashboardStats{TotalIncome: 1000, TotalExpense: 300, TotalSavings: 100, Balance: 600},
			expenses: expenses[1:],
			topic:    TopicSavings,
			contains: []string{"10%", "$100.00 more", "20%"},
		},
		{
			name:     "healthy",
			totals:   core.DashboardStats{TotalIncome: 1000, TotalExpense: 300, TotalSavings: 300, Balance: 400},
			expenses: expenses[1:],
			topic:    TopicOnTrack,
			contains: []string{"30%", "$400.00"},
		},
		{
			name:     "question about spending",
			totals:   core.DashboardStats{TotalIncome: 5000, TotalExpense: 1200, TotalSavings: 2000, Balance: 1800},
			expenses: expenses,
			question: "Where can I CUT back?",
			topic:    TopicSpending,
			contains: []string{"Rent is your largest expense", "67%", "$80.00"},
		},
		{
			name:     "question about saving",
			totals:   core.DashboardStats{TotalIncome: 1000, TotalExpense: 300, TotalSavings: 300, Balance: 400},
			question: "am I saving enough",
			topic:    TopicSavings,
			contains: []string{"above the 20% mark"},
		},
		{
			name:     "spending question without expenses",
			totals:   core.DashboardStats{TotalIncome: 1000, Balance: 1000},
			question: "budget tips",
			topic:    TopicSpending,
			contains: []string{"no expenses"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Suggest(tt.totals, tt.expenses, "$", tt.question)
			if got.Topic != tt.topic {
				t.Errorf("topic = %q, want %q (tip %q)", got.Topic, tt.topic, got.Tip)
			}
			if got.Tip == "" {
				t.Error("empty tip")
			}
			for _, want := range tt.contains {
				if !strings.Contains(got.Tip, want) {
					t.Errorf("tip %q does not mention %q", got.Tip, want)
				}
			}
		})
	}
}

func TestSuggestIsDeterministic(t *testing.T) {
	totals := core.DashboardStats{TotalIncome: 900, TotalExpense: 450, TotalSavings: 90, Balance: 360}
	expenses := []CategoryAmount{{Name: "Transport", Amount: 450}}
	first := Suggest(totals, expenses, "€", "")
	for i := 0; i < 5; i++ {
		if got := Suggest(totals, expenses, "€", ""); got.Tip != first.Tip || got.Topic != first.Topic {
			t.Fatalf("run %d: %+v, want %+v", i, got, first)
		}
	}
	if first.TopExpense == nil || first.TopExpense.Name != "Transport" || first.SavingsRate != 10 {
		t.Errorf("insight = %+v", first)
	}
}
