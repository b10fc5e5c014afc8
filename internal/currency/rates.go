// Package currency holds the static exchange rate table and the converter
// used to express every aggregate in a single display currency.
package currency

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"hisab/internal/core"
)

// BaseCurrency is the unit every rate is expressed against.
const BaseCurrency = "USD"

// Info describes one supported currency.
type Info struct {
	Code   string  `json:"code"`
	Symbol string  `json:"symbol"`
	Rate   float64 `json:"rate"`
}

// Table maps an upper-case currency code to "units of this currency per one
// unit of BaseCurrency". The zero value is usable and treats every code as base.
type Table struct {
	rates   map[string]float64
	symbols map[string]string
}

var bundledRates = map[string]float64{
	"USD": 1,
	"EUR": 0.92,
	"GBP": 0.79,
	"BDT": 117.5,
	"INR": 83.2,
	"PKR": 278.5,
	"JPY": 151.4,
	"CNY": 7.23,
	"AUD": 1.52,
	"CAD": 1.36,
	"CHF": 0.9,
	"SGD": 1.35,
	"AED": 3.67,
	"SAR": 3.75,
	"MYR": 4.73,
	"NPR": 133.1,
	"LKR": 299.4,
	"KRW": 1338,
}

var bundledSymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"BDT": "৳",
	"INR": "₹",
	"PKR": "₨",
	"JPY": "¥",
	"CNY": "¥",
	"AUD": "A$",
	"CAD": "C$",
	"CHF": "CHF",
	"SGD": "S$",
	"AED": "د.إ",
	"SAR": "﷼",
	"MYR": "RM",
	"NPR": "रू",
	"LKR": "Rs",
	"KRW": "₩",
}

var ErrInvalidRate = errors.New("invalid rate")

// Default returns the bundled rate table.
func Default() *Table {
	t, _ := NewTable(bundledRates)
	for code, sym := range bundledSymbols {
		t.symbols[code] = sym
	}
	return t
}

// NewTable builds a table from code -> rate pairs. Codes are normalised and
// every rate must be positive.
func NewTable(rates map[string]float64) (*Table, error) {
	t := &Table{
		rates:   make(map[string]float64, len(rates)),
		symbols: make(map[string]string),
	}
	for code, rate := range rates {
		c := core.NormalizeCurrency(code)
		if !core.ValidCurrencyCode(c) {
			return nil, fmt.Errorf("%w: bad code %q", ErrInvalidRate, code)
		}
		if !(rate > 0) {
			return nil, fmt.Errorf("%w: %s=%v", ErrInvalidRate, c, rate)
		}
		t.rates[c] = rate
	}
	return t, nil
}

// Rate returns the rate for code, or 1 when the code is unknown so that
// legacy or malformed data never blocks rendering.
func (t *Table) Rate(code string) float64 {
	if t == nil {
		return 1
	}
	if r, ok := t.rates[core.NormalizeCurrency(code)]; ok {
		return r
	}
	return 1
}

// Known reports whether code has an explicit rate.
func (t *Table) Known(code string) bool {
	if t == nil {
		return false
	}
	_, ok := t.rates[core.NormalizeCurrency(code)]
	return ok
}

// Symbol returns the display symbol, falling back to the code itself.
func (t *Table) Symbol(code string) string {
	c := core.NormalizeCurrency(code)
	if t != nil {
		if s, ok := t.symbols[c]; ok {
			return s
		}
	}
	return c
}

// List returns every supported currency sorted by code.
func (t *Table) List() []Info {
	if t == nil {
		return nil
	}
	out := make([]Info, 0, len(t.rates))
	for code, rate := range t.rates {
		out = append(out, Info{Code: code, Symbol: t.Symbol(code), Rate: rate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ratesFile is the on-disk override layout.
type ratesFile struct {
	Base  string             `json:"base"`
	Pairs map[string]float64 `json:"pairs"`
}

// LoadFile reads a rate table from a JSON file. When the file's base is not
// BaseCurrency the pairs are rebased so BaseCurrency ends up at 1. Symbols of
// the bundled table are kept.
func LoadFile(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rates file: %w", err)
	}
	var rf ratesFile
	if err := json.Unmarshal(b, &rf); err != nil {
		return nil, fmt.Errorf("decode rates file: %w", err)
	}
	if len(rf.Pairs) == 0 {
		return nil, fmt.Errorf("%w: rates file has no pairs", ErrInvalidRate)
	}

	pairs := rf.Pairs
	base := core.NormalizeCurrency(rf.Base)
	if base != "" && base != BaseCurrency {
		usd, ok := pairs[BaseCurrency]
		if !ok || !(usd > 0) {
			return nil, fmt.Errorf("%w: rates based on %s must include %s", ErrInvalidRate, base, BaseCurrency)
		}
		rebased := make(map[string]float64, len(pairs)+1)
		for code, rate := range pairs {
			rebased[code] = rate / usd
		}
		rebased[base] = 1 / usd
		pairs = rebased
	}

	t, err := NewTable(pairs)
	if err != nil {
		return nil, err
	}
	t.rates[BaseCurrency] = 1
	for code, sym := range bundledSymbols {
		t.symbols[code] = sym
	}
	return t, nil
}
