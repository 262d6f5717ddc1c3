// Package report implements the shift allowance aggregation and reporting
// engine: period resolution, filter compilation, the nested fold over fact
// rows, headcount-range pruning, type-aware sorting, and the latest-month
// result cache.
package report

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors surfaced as 400-class responses at the boundary.
var (
	ErrInvalidYear           = errors.New("report: invalid year")
	ErrInvalidMonth          = errors.New("report: invalid month")
	ErrInvalidQuarter        = errors.New("report: invalid quarter")
	ErrInvalidRange          = errors.New("report: start period after end period")
	ErrInvalidShiftType      = errors.New("report: invalid shift type")
	ErrInvalidHeadcountRange = errors.New("report: invalid headcount range")
	ErrInvalidFilterShape    = errors.New("report: invalid filter shape")
)

// ErrNoData signals an explicit period or filter selection that matched no
// rows. Default-mode requests never return it: they fall back with a notice.
var ErrNoData = errors.New("report: no data found")

// Period identifies one payroll month.
type Period struct {
	Year  int
	Month int
}

// String renders the canonical YYYY-MM form.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Before reports calendar order.
func (p Period) Before(q Period) bool {
	if p.Year != q.Year {
		return p.Year < q.Year
	}
	return p.Month < q.Month
}

// Prev returns the preceding month.
func (p Period) Prev() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Next returns the following month.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// ParsePeriod parses a YYYY-MM string.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: expected YYYY-MM, got %q", ErrInvalidRange, s)
	}
	return Period{Year: t.Year(), Month: int(t.Month())}, nil
}

// PeriodOf converts a time to its payroll period.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// FactRow is the unit of aggregation input: one employee x shift mapping x
// period contribution, with the rate already joined in.
type FactRow struct {
	EmpID         string
	EmpName       string
	Client        string
	Department    string
	ClientPartner string
	Period        Period
	ShiftCode     string
	Days          float64
	Rate          float64
}

// Amount is the monetary contribution of the row.
func (r FactRow) Amount() float64 {
	return r.Days * r.Rate
}

// Range is an inclusive numeric interval used by headcount filters.
type Range struct {
	Low  int
	High int
}

// Contains reports membership.
func (r Range) Contains(n int) bool {
	return n >= r.Low && n <= r.High
}

// SortSpec describes one level's ordering request.
type SortSpec struct {
	Field string
	Order string // "default" | "asc" | "desc"
}

// Query is the canonical, fully-deserialised request consumed by the
// pipeline. Filter slices follow the nil-means-unrestricted convention from
// internal/shared; an empty non-nil slice is never produced.
type Query struct {
	Clients           []string
	ClientDepartments map[string][]string
	Departments       []string
	Shifts            []string
	EmpIDs            []string
	Partners          []string

	Years    []int
	Months   []int
	Quarters []string
	Start    *Period
	End      *Period

	Headcounts []Range

	SortClients     SortSpec
	SortDepartments SortSpec
	SortPartners    SortSpec
	SortEmployees   SortSpec

	TopN   int // 0 means no truncation
	Offset int
	Limit  int
}

// ExplicitPeriods reports whether the caller selected any period dimension.
func (q Query) ExplicitPeriods() bool {
	return len(q.Years) > 0 || len(q.Months) > 0 || len(q.Quarters) > 0 ||
		q.Start != nil || q.End != nil
}

// Filtered reports whether any content filter is active.
func (q Query) Filtered() bool {
	return q.Clients != nil || q.ClientDepartments != nil || q.Departments != nil ||
		q.Shifts != nil || q.EmpIDs != nil || q.Partners != nil || q.Headcounts != nil
}

// DefaultRequest is the cacheable request class: latest period, no filters.
func (q Query) DefaultRequest() bool {
	return !q.ExplicitPeriods() && !q.Filtered()
}

// Employee is the finalized leaf record with one column per shift code.
type Employee struct {
	EmpID         string             `json:"emp_id"`
	EmpName       string             `json:"emp_name"`
	Client        string             `json:"client"`
	Department    string             `json:"department"`
	ClientPartner string             `json:"client_partner"`
	Shifts        map[string]float64 `json:"shifts"`
	Total         float64            `json:"total_allowance"`
}

// Node is one finalized aggregation tree node (period, client, department or
// partner level). Children preserve insertion order until sorted.
type Node struct {
	Key         string             `json:"key"`
	Headcount   int                `json:"headcount"`
	ShiftTotals map[string]float64 `json:"shift_totals"`
	Total       float64            `json:"total_allowance"`
	Children    []*Node            `json:"children,omitempty"`
	Employees   []Employee         `json:"employees,omitempty"`
}

// Child finds a direct child by key.
func (n *Node) Child(key string) *Node {
	for _, c := range n.Children {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// Tree is a finalized aggregation run: one node per period label, nested
// period -> client -> department -> partner, employees at the partner leaves.
type Tree struct {
	Periods   []*Node  `json:"periods"`
	ShiftKeys []string `json:"shift_keys"`
}

// Period finds a period node by label.
func (t *Tree) Period(label string) *Node {
	for _, p := range t.Periods {
		if p.Key == label {
			return p
		}
	}
	return nil
}
