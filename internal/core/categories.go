package core

import (
	"strings"

	"github.com/google/uuid"
)

var (
	defaultExpenseCategories = []string{
		"Food & Dining", "Rent & Housing", "Transportation", "Utilities",
		"Shopping", "Healthcare", "Education", "Travel", "Insurance",
		"Subscriptions", "Personal Care", "Gifts & Donations", "Taxes",
		"Debt Payments",
	}
	defaultIncomeCategories = []string{
		"Salary", "Freelance", "Investments", "Gifts", "Dividends",
		"Royalties", "Grants", "Rental Income", "Refunds", "Other Income",
	}
	defaultSavingsCategories = []string{
		"Emergency Fund", "Bank Deposit", "DPS", "Fixed Deposit", "Gold",
		"Stocks", "Crypto", "Retirement", "Cash Savings", "Goal Saving",
		"General Savings",
	}
)

// Categories holds the user-managed category list of each transaction type.
type Categories map[TransactionType][]string

// DefaultCategories returns a fresh copy of the seeded category lists.
func DefaultCategories() Categories {
	return Categories{
		Income:  append([]string(nil), defaultIncomeCategories...),
		Expense: append([]string(nil), defaultExpenseCategories...),
		Savings: append([]string(nil), defaultSavingsCategories...),
	}
}

// Clone deep-copies the lists.
func (c Categories) Clone() Categories {
	out := make(Categories, len(c))
	for t, list := range c {
		out[t] = append([]string(nil), list...)
	}
	return out
}

// Contains reports whether name is already in the list for t.
func (c Categories) Contains(t TransactionType, name string) bool {
	name = strings.TrimSpace(name)
	for _, v := range c[t] {
		if v == name {
			return true
		}
	}
	return false
}

// Dedupe trims, drops blanks and duplicates while preserving order.
func Dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// NewID returns an opaque identifier for a new record.
func NewID() string {
	return uuid.NewString()
}
