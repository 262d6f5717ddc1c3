// Package shifts holds the configuration-driven shift type registry. Shift
// codes are not an enum: every aggregation map in the report pipeline is keyed
// by the registry's code set, and Excel column ordering follows registry order.
package shifts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shiftledger/shiftledger/internal/shared"
)

// Type describes one configured premium shift band.
type Type struct {
	Code     string
	Label    string
	Timing   string
	Currency string
}

// Registry is an ordered, immutable lookup of shift types plus their per-year
// rates. It is loaded once and shared read-only across requests.
type Registry struct {
	order []string
	types map[string]Type
	rates map[string]map[int]float64
}

// NewRegistry builds a registry from configured types. Codes are canonicalised
// to upper case; duplicates are rejected.
func NewRegistry(types []Type) (*Registry, error) {
	r := &Registry{
		types: make(map[string]Type, len(types)),
		rates: make(map[string]map[int]float64),
	}
	for _, t := range types {
		code := strings.ToUpper(shared.CleanString(t.Code))
		if code == "" {
			return nil, fmt.Errorf("shifts: empty shift code")
		}
		if _, dup := r.types[code]; dup {
			return nil, fmt.Errorf("shifts: duplicate shift code %s", code)
		}
		t.Code = code
		r.types[code] = t
		r.order = append(r.order, code)
	}
	return r, nil
}

// DefaultTypes mirrors the standard premium band configuration.
func DefaultTypes() []Type {
	return []Type{
		{Code: "PST_MST", Label: "PST/MST", Timing: "07 PM - 06 AM", Currency: "INR"},
		{Code: "US_INDIA", Label: "US/India", Timing: "04 PM - 01 AM", Currency: "INR"},
		{Code: "SG", Label: "SG - Singapore", Timing: "06 AM - 03 PM", Currency: "INR"},
		{Code: "ANZ", Label: "ANZ - Australia New Zealand", Timing: "03 AM - 12 PM", Currency: "INR"},
	}
}

// Keys returns shift codes in canonical registry order. The returned slice is
// a copy; callers may not mutate registry state.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Has reports whether a code belongs to the registry. The input is cleaned and
// upper-cased before lookup.
func (r *Registry) Has(code string) bool {
	_, ok := r.types[Canonical(code)]
	return ok
}

// Lookup returns the configured type for a code.
func (r *Registry) Lookup(code string) (Type, bool) {
	t, ok := r.types[Canonical(code)]
	return t, ok
}

// ShiftString renders the multi-line label/timing/rate text for a code, using
// the latest known rate. Unknown codes yield "".
func (r *Registry) ShiftString(code string) string {
	t, ok := r.Lookup(code)
	if !ok {
		return ""
	}
	line := t.Label + "\n(" + t.Timing + ")"
	if rate, ok := r.latestRate(t.Code); ok {
		line += fmt.Sprintf("\n%s %.0f", t.Currency, rate)
	}
	return line
}

// latestRate returns the newest configured rate for a code.
func (r *Registry) latestRate(code string) (float64, bool) {
	byYear, ok := r.rates[code]
	if !ok || len(byYear) == 0 {
		return 0, false
	}
	best, amount := 0, 0.0
	for y, a := range byYear {
		if y > best {
			best, amount = y, a
		}
	}
	return amount, true
}

// SetRates replaces the rate table, keyed by shift code then payroll year.
// Intended for process startup and for refresh after a rate upload.
func (r *Registry) SetRates(rates map[string]map[int]float64) {
	clean := make(map[string]map[int]float64, len(rates))
	for code, byYear := range rates {
		canonical := Canonical(code)
		if _, ok := r.types[canonical]; !ok {
			continue
		}
		yearly := make(map[int]float64, len(byYear))
		for year, amount := range byYear {
			yearly[year] = amount
		}
		clean[canonical] = yearly
	}
	r.rates = clean
}

// Rate returns the rate for a code in a payroll year. When the exact year is
// missing it falls back to the latest year on record, then to zero.
func (r *Registry) Rate(code string, year int) float64 {
	byYear, ok := r.rates[Canonical(code)]
	if !ok || len(byYear) == 0 {
		return 0
	}
	if amount, ok := byYear[year]; ok {
		return amount
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	return byYear[years[len(years)-1]]
}

// Canonical normalises a shift code for lookup.
func Canonical(code string) string {
	return strings.ToUpper(shared.CleanString(code))
}
