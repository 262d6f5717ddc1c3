package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shiftledger/shiftledger/internal/shared"
)

// RowFilter is the compiled, case-folded form of the request's content
// filters. Nil slices mean unrestricted. Clients and departments match
// exactly; partners and employee ids match by substring.
type RowFilter struct {
	clients     map[string]struct{}
	clientDepts map[string]map[string]struct{}
	departments map[string]struct{}
	shifts      map[string]struct{}
	empIDs      []string
	partners    []string
}

// CompileFilter folds a query's content filters into a single predicate
// source. Shift codes are validated against the registry's canonical keys.
func CompileFilter(q Query, validShift func(string) (string, bool)) (RowFilter, error) {
	f := RowFilter{}
	if q.Clients != nil {
		f.clients = foldSet(q.Clients)
	}
	if q.Departments != nil {
		f.departments = foldSet(q.Departments)
	}
	if q.ClientDepartments != nil {
		f.clientDepts = make(map[string]map[string]struct{}, len(q.ClientDepartments))
		for client, depts := range q.ClientDepartments {
			key := fold(client)
			if key == "" {
				continue
			}
			if shared.IsAll(depts) {
				f.clientDepts[key] = nil // all departments of this client
				continue
			}
			f.clientDepts[key] = foldSet(depts)
		}
	}
	if q.Shifts != nil {
		f.shifts = make(map[string]struct{}, len(q.Shifts))
		for _, s := range q.Shifts {
			code, ok := validShift(s)
			if !ok {
				return RowFilter{}, fmt.Errorf("%w: %q", ErrInvalidShiftType, s)
			}
			f.shifts[code] = struct{}{}
		}
	}
	for _, id := range q.EmpIDs {
		if v := fold(id); v != "" {
			f.empIDs = append(f.empIDs, v)
		}
	}
	for _, p := range q.Partners {
		if v := fold(p); v != "" {
			f.partners = append(f.partners, v)
		}
	}
	return f, nil
}

// Match reports whether a fact row passes every active filter.
func (f RowFilter) Match(r FactRow) bool {
	if f.clients != nil {
		if _, ok := f.clients[fold(r.Client)]; !ok {
			return false
		}
	}
	if f.clientDepts != nil {
		depts, ok := f.clientDepts[fold(r.Client)]
		if !ok {
			return false
		}
		if depts != nil {
			if _, ok := depts[fold(r.Department)]; !ok {
				return false
			}
		}
	}
	if f.departments != nil {
		if _, ok := f.departments[fold(r.Department)]; !ok {
			return false
		}
	}
	if f.shifts != nil {
		if _, ok := f.shifts[strings.ToUpper(shared.CleanString(r.ShiftCode))]; !ok {
			return false
		}
	}
	if len(f.empIDs) > 0 && !containsAny(fold(r.EmpID), f.empIDs) {
		return false
	}
	if len(f.partners) > 0 && !containsAny(fold(r.ClientPartner), f.partners) {
		return false
	}
	return true
}

// Empty reports whether no content filter is active.
func (f RowFilter) Empty() bool {
	return f.clients == nil && f.clientDepts == nil && f.departments == nil &&
		f.shifts == nil && len(f.empIDs) == 0 && len(f.partners) == 0
}

// ShiftCodes returns the selected canonical codes, or nil when unrestricted.
func (f RowFilter) ShiftCodes() []string {
	if f.shifts == nil {
		return nil
	}
	out := make([]string, 0, len(f.shifts))
	for c := range f.shifts {
		out = append(out, c)
	}
	return out
}

// ParseHeadcountRanges parses tokens like "1-5" or "7" into inclusive
// ranges. Unicode dashes are normalised first. Multiple ranges combine with
// OR semantics.
func ParseHeadcountRanges(values []string) ([]Range, error) {
	var out []Range
	for _, raw := range values {
		tok := shared.NormalizeDashes(shared.CleanString(raw))
		if tok == "" {
			continue
		}
		low, high, ok := splitRange(tok)
		if !ok || low < 1 || high < low {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHeadcountRange, raw)
		}
		out = append(out, Range{Low: low, High: high})
	}
	return out, nil
}

func splitRange(tok string) (low, high int, ok bool) {
	lo, hi, found := strings.Cut(tok, "-")
	l, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, false
	}
	if !found {
		return l, l, true
	}
	h, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, false
	}
	return l, h, true
}

// InRanges reports whether n falls inside any range. An empty range list is
// unrestricted.
func InRanges(n int, ranges []Range) bool {
	if len(ranges) == 0 {
		return true
	}
	for _, r := range ranges {
		if r.Contains(n) {
			return true
		}
	}
	return false
}

// PruneByHeadcount drops nodes whose group size misses every range; group
// semantics for tree-shaped reports.
func PruneByHeadcount(nodes []*Node, ranges []Range) []*Node {
	if len(ranges) == 0 {
		return nodes
	}
	out := nodes[:0]
	for _, n := range nodes {
		if InRanges(n.Headcount, ranges) {
			out = append(out, n)
		}
	}
	return out
}

// PositionWindow keeps employees whose 1-based position in the already
// sorted list falls inside any range; window semantics apply only to flat
// reports with no explicit client or department selection.
func PositionWindow(emps []Employee, ranges []Range) []Employee {
	if len(ranges) == 0 {
		return emps
	}
	out := emps[:0]
	for i, e := range emps {
		if InRanges(i+1, ranges) {
			out = append(out, e)
		}
	}
	return out
}

// GroupSizeWindow keeps employees whose group (keyed case-insensitively by
// groupOf) has a member count inside any range; the flat-report counterpart
// of PruneByHeadcount.
func GroupSizeWindow(emps []Employee, groupOf func(Employee) string, ranges []Range) []Employee {
	if len(ranges) == 0 {
		return emps
	}
	counts := make(map[string]int, len(emps))
	for _, e := range emps {
		counts[fold(groupOf(e))]++
	}
	out := emps[:0]
	for _, e := range emps {
		if InRanges(counts[fold(groupOf(e))], ranges) {
			out = append(out, e)
		}
	}
	return out
}

func fold(s string) string {
	return strings.ToLower(shared.CleanString(s))
}

func foldSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if f := fold(v); f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
