package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
	Savings TransactionType = "savings"
)

// FallbackCurrency is assumed for records stored without a currency code.
const FallbackCurrency = "USD"

// DefaultProfileID is the profile every user owns; it cannot be deleted.
const DefaultProfileID = "default"

// DefaultProfileName is shown for the default profile.
const DefaultProfileName = "Personal"

// GuestUserID identifies requests made without a remote account.
const GuestUserID = "guest"

const dateLayout = "2006-01-02"

type (
	TransactionType string

	// Date is a calendar date without a time component.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID                 string          `json:"id"`
		Amount             float64         `json:"amount"`
		Category           string          `json:"category"`
		Note               string          `json:"note,omitempty"`
		Date               Date            `json:"date"`
		Type               TransactionType `json:"type"`
		Currency           string          `json:"currency,omitempty"`
		ExcludeFromBalance bool            `json:"excludeFromBalance,omitempty"`
	}

	Goal struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		TargetAmount float64   `json:"targetAmount"`
		SavedAmount  float64   `json:"savedAmount"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	Profile struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Settings struct {
		Currency      string `json:"currency"`
		Language      string `json:"language"`
		Theme         string `json:"theme"`
		ActiveProfile string `json:"activeProfile"`
	}

	// DashboardStats is derived from the full transaction set and never stored.
	DashboardStats struct {
		TotalIncome  float64 `json:"totalIncome"`
		TotalExpense float64 `json:"totalExpense"`
		TotalSavings float64 `json:"totalSavings"`
		Balance      float64 `json:"balance"`
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidCurrency = errors.New("invalid currency code")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmptyCategory   = errors.New("empty category")
	ErrNoteTooLong     = errors.New("note too long (max 500 characters)")
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidLanguage = errors.New("invalid language")
	ErrInvalidTheme    = errors.New("invalid theme")
)

// Types lists every transaction type in display order.
func Types() []TransactionType {
	return []TransactionType{Income, Expense, Savings}
}

func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense, Savings:
		return true
	default:
		return false
	}
}

// ParseTransactionType accepts any letter case ("Income", "EXPENSE").
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current UTC calendar date.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	// Older records carried a full ISO timestamp.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCurrencyCode reports whether code looks like a three-letter ISO code.
func ValidCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// CurrencyOrFallback returns the stored currency, or the fallback for legacy records.
func (t Transaction) CurrencyOrFallback() string {
	if c := NormalizeCurrency(t.Currency); c != "" {
		return c
	}
	return FallbackCurrency
}

// DeductsFromBalance reports whether the transaction reduces the spendable
// balance as a savings movement. The exclude flag only means something on savings.
func (t Transaction) DeductsFromBalance() bool {
	return t.Type == Savings && !t.ExcludeFromBalance
}

// Normalized returns a copy with trimmed text, upper-case currency and the
// exclude flag cleared on non-savings transactions.
func (t Transaction) Normalized() Transaction {
	t.Category = strings.TrimSpace(t.Category)
	t.Note = strings.TrimSpace(t.Note)
	t.Currency = NormalizeCurrency(t.Currency)
	if t.Type != Savings {
		t.ExcludeFromBalance = false
	}
	return t
}

// Amounts are stored with six decimal places and at most fourteen integer
// digits.
const (
	MinAmount = 0.000001
	MaxAmount = 1e14
)

// ValidAmount reports whether v is a storable positive amount.
func ValidAmount(v float64) bool {
	return v >= MinAmount && v < MaxAmount
}

func (t Transaction) Validate() error {
	if !ValidAmount(t.Amount) {
		return ErrInvalidAmount
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(t.Note) > 500 {
		return ErrNoteTooLong
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if c := NormalizeCurrency(t.Currency); c != "" && !ValidCurrencyCode(c) {
		return ErrInvalidCurrency
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if !ValidAmount(g.TargetAmount) {
		return ErrInvalidAmount
	}
	if g.SavedAmount < 0 || g.SavedAmount >= MaxAmount || math.IsNaN(g.SavedAmount) {
		return ErrInvalidAmount
	}
	return nil
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// DefaultSettings returns the settings of a user who never changed anything.
func DefaultSettings(currency string) Settings {
	c := NormalizeCurrency(currency)
	if c == "" {
		c = FallbackCurrency
	}
	return Settings{
		Currency:      c,
		Language:      "en",
		Theme:         "light",
		ActiveProfile: DefaultProfileID,
	}
}

func (s Settings) Validate() error {
	if !ValidCurrencyCode(NormalizeCurrency(s.Currency)) {
		return ErrInvalidCurrency
	}
	switch s.Language {
	case "en", "bn":
	default:
		return ErrInvalidLanguage
	}
	switch s.Theme {
	case "light", "dark":
	default:
		return ErrInvalidTheme
	}
	if strings.TrimSpace(s.ActiveProfile) == "" {
		return ErrEmptyName
	}
	return nil
}
