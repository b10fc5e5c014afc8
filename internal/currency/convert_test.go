package currency

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestConvertIdentity(t *testing.T) {
	table := Default()
	amounts := []float64{0, 0.1, 1, 123.456, 1e9}
	for _, info := range table.List() {
		for _, x := range amounts {
			if got := table.Convert(x, info.Code, info.Code); got != x {
				t.Fatalf("convert(%v, %s, %s) = %v", x, info.Code, info.Code, got)
			}
		}
	}
	// Unknown and lower-case codes still short-circuit.
	if got := table.Convert(0.3, "xyz", "XYZ"); got != 0.3 {
		t.Fatalf("identity on unknown code: %v", got)
	}
}

func TestConvertRoundTrip(t *testing.T) {
	table := Default()
	codes := table.List()
	for _, a := range codes {
		for _, b := range codes {
			x := 1234.56
			back := table.Convert(table.Convert(x, a.Code, b.Code), b.Code, a.Code)
			if math.Abs(back-x) > 1e-9*x {
				t.Fatalf("round trip %s->%s->%s: %v", a.Code, b.Code, a.Code, back)
			}
		}
	}
}

func TestConvertWithCustomTable(t *testing.T) {
	table, err := NewTable(map[string]float64{"USD": 1, "EUR": 0.9})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	got := table.Convert(50, "EUR", "USD")
	if math.Abs(got-55.5555555) > 1e-6 {
		t.Fatalf("expected ~55.56, got %v", got)
	}
	if got := table.Convert(100, "USD", "EUR"); math.Abs(got-90) > 1e-9 {
		t.Fatalf("expected 90, got %v", got)
	}
}

func TestUnknownCurrencyFallsBackToBase(t *testing.T) {
	table, _ := NewTable(map[string]float64{"USD": 1, "EUR": 0.9})
	if r := table.Rate("XYZ"); r != 1 {
		t.Fatalf("unknown rate = %v, want 1", r)
	}
	if got := table.Convert(42, "XYZ", "USD"); got != 42 {
		t.Fatalf("unknown -> base = %v, want 42", got)
	}
	var nilTable *Table
	if got := nilTable.Convert(10, "EUR", "USD"); got != 10 {
		t.Fatalf("nil table must treat everything as base, got %v", got)
	}
}

func TestNewTableRejectsBadRates(t *testing.T) {
	for _, rates := range []map[string]float64{
		{"USD": 0},
		{"EUR": -1},
		{"EURO": 1},
	} {
		if _, err := NewTable(rates); err == nil {
			t.Fatalf("expected error for %v", rates)
		}
	}
}

func TestLoadFileRebases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rates.json")
	content := `{"base":"RUB","pairs":{"RUB":1,"USD":0.01,"EUR":0.009}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if table.Rate("USD") != 1 {
		t.Fatalf("USD must be rebased to 1, got %v", table.Rate("USD"))
	}
	if r := table.Rate("RUB"); math.Abs(r-100) > 1e-9 {
		t.Fatalf("RUB rate = %v, want 100", r)
	}
	if r := table.Rate("EUR"); math.Abs(r-0.9) > 1e-9 {
		t.Fatalf("EUR rate = %v, want 0.9", r)
	}
	if table.Symbol("EUR") != "€" {
		t.Fatalf("bundled symbols must be kept")
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

type plainConverter struct{}

func (plainConverter) Convert(amount float64, _, _ string) float64 { return amount }

func TestSymbolOf(t *testing.T) {
	if got := SymbolOf(Default(), "usd"); got != "$" {
		t.Errorf("table symbol = %q", got)
	}
	if got := SymbolOf(plainConverter{}, " eur "); got != "EUR" {
		t.Errorf("fallback symbol = %q", got)
	}
}
