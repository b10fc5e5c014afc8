package currency

import "hisab/internal/core"

// Convert expresses amount, recorded in from, in the to currency:
// amount / rate(from) * rate(to). Same-currency conversion returns amount
// untouched so rate drift can never perturb it. No rounding is applied.
func (t *Table) Convert(amount float64, from, to string) float64 {
	from, to = core.NormalizeCurrency(from), core.NormalizeCurrency(to)
	if from == to {
		return amount
	}
	return amount / t.Rate(from) * t.Rate(to)
}

// Converter is what aggregation needs from a rate table.
type Converter interface {
	Convert(amount float64, from, to string) float64
}

var _ Converter = (*Table)(nil)

// SymbolOf returns the display symbol of code when conv has one, else the
// normalised code.
func SymbolOf(conv Converter, code string) string {
	if s, ok := conv.(interface{ Symbol(string) string }); ok {
		return s.Symbol(code)
	}
	return core.NormalizeCurrency(code)
}
