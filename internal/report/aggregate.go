package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/shiftledger/shiftledger/internal/shared"
)

// quarterLabel buckets a period into its calendar quarter.
func quarterLabel(p Period) string {
	return fmt.Sprintf("%04d-Q%d", p.Year, (p.Month-1)/3+1)
}

// rangeLabel collapses every period into a single start..end bucket.
func rangeLabel(start, end Period) func(Period) string {
	label := start.String()
	if start != end {
		label = start.String() + ".." + end.String()
	}
	return func(Period) string { return label }
}

// Builder folds fact rows into the nested period -> client -> department ->
// client partner tree in one pass. It tolerates unordered input; each level
// preserves first-seen order until the sort stage runs.
type Builder struct {
	shiftKeys []string
	shiftSet  map[string]struct{}
	label     func(Period) string
	periods   map[string]*acc
	order     []string
}

type acc struct {
	members  map[string]struct{}
	shifts   map[string]float64
	children map[string]*acc
	order    []string
	emps     map[string]*empAcc
	empOrder []string
}

type empAcc struct {
	Employee
}

// NewBuilder prepares a fold over the given canonical shift codes. label
// maps each period to its grouping bucket (usually Period.String; quarter
// and range reports supply their own).
func NewBuilder(shiftKeys []string, label func(Period) string) *Builder {
	if label == nil {
		label = func(p Period) string { return p.String() }
	}
	set := make(map[string]struct{}, len(shiftKeys))
	for _, k := range shiftKeys {
		set[k] = struct{}{}
	}
	return &Builder{
		shiftKeys: append([]string(nil), shiftKeys...),
		shiftSet:  set,
		label:     label,
		periods:   make(map[string]*acc),
	}
}

func newAcc() *acc {
	return &acc{
		members:  make(map[string]struct{}),
		shifts:   make(map[string]float64),
		children: make(map[string]*acc),
	}
}

func (a *acc) child(key string) *acc {
	c, ok := a.children[key]
	if !ok {
		c = newAcc()
		a.children[key] = c
		a.order = append(a.order, key)
	}
	return c
}

// Add folds one row into the tree. Rows whose shift code is not registered
// are dropped; blank dimension values land in the UNKNOWN bucket.
func (b *Builder) Add(r FactRow) {
	code := strings.ToUpper(shared.CleanString(r.ShiftCode))
	if _, ok := b.shiftSet[code]; !ok {
		return
	}
	amount := r.Amount()

	client := shared.FallbackUnknown(shared.CleanString(r.Client))
	dept := shared.FallbackUnknown(shared.CleanString(r.Department))
	partner := shared.FallbackUnknown(shared.CleanString(r.ClientPartner))
	name := shared.FallbackUnknown(shared.CleanString(r.EmpName))

	empKey := shared.CleanString(r.EmpID)
	if empKey == "" {
		empKey = strings.Join([]string{name, client, dept, partner}, "|")
	}

	label := b.label(r.Period)
	pn, ok := b.periods[label]
	if !ok {
		pn = newAcc()
		b.periods[label] = pn
		b.order = append(b.order, label)
	}
	cn := pn.child(client)
	dn := cn.child(dept)
	gn := dn.child(partner)

	for _, level := range []*acc{pn, cn, dn, gn} {
		level.members[empKey] = struct{}{}
		level.shifts[code] += amount
	}

	if gn.emps == nil {
		gn.emps = make(map[string]*empAcc)
	}
	e, ok := gn.emps[empKey]
	if !ok {
		e = &empAcc{Employee: Employee{
			EmpID:         shared.CleanString(r.EmpID),
			EmpName:       name,
			Client:        client,
			Department:    dept,
			ClientPartner: partner,
			Shifts:        make(map[string]float64),
		}}
		gn.emps[empKey] = e
		gn.empOrder = append(gn.empOrder, empKey)
	}
	e.Shifts[code] += amount
}

// Finalize renders the accumulated state into an immutable tree. Monetary
// values are rounded to two decimals here and only here; headcounts are the
// distinct employee counts per node.
func (b *Builder) Finalize() *Tree {
	t := &Tree{ShiftKeys: append([]string(nil), b.shiftKeys...)}
	for _, label := range b.order {
		t.Periods = append(t.Periods, b.render(label, b.periods[label], true))
	}
	return t
}

func (b *Builder) render(key string, a *acc, nested bool) *Node {
	n := &Node{
		Key:         key,
		Headcount:   len(a.members),
		ShiftTotals: make(map[string]float64, len(b.shiftKeys)),
	}
	var total float64
	for _, code := range b.shiftKeys {
		v := round2(a.shifts[code])
		n.ShiftTotals[code] = v
		total += a.shifts[code]
	}
	n.Total = round2(total)
	for _, childKey := range a.order {
		n.Children = append(n.Children, b.render(childKey, a.children[childKey], nested))
	}
	for _, empKey := range a.empOrder {
		n.Employees = append(n.Employees, b.finishEmployee(a.emps[empKey]))
	}
	return n
}

func (b *Builder) finishEmployee(e *empAcc) Employee {
	out := e.Employee
	out.Shifts = make(map[string]float64, len(b.shiftKeys))
	var total float64
	for _, code := range b.shiftKeys {
		out.Shifts[code] = round2(e.Shifts[code])
		total += e.Shifts[code]
	}
	out.Total = round2(total)
	return out
}

// Flatten collects every employee leaf of the tree in period, then
// insertion, order. Used by the flat search and export paths.
func (t *Tree) Flatten() []Employee {
	var out []Employee
	var walk func(n *Node)
	walk = func(n *Node) {
		out = append(out, n.Employees...)
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, p := range t.Periods {
		walk(p)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
