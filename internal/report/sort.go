package report

import (
	"sort"
	"strings"

	"github.com/shiftledger/shiftledger/internal/shared"
)

// Level identifies which tier of the tree a sort spec applies to; each tier
// accepts a different field vocabulary.
type Level int

const (
	LevelClient Level = iota
	LevelDepartment
	LevelPartner
)

const (
	OrderDefault = "default"
	OrderAsc     = "asc"
	OrderDesc    = "desc"
)

// levelFields maps each tier's alphabetic field name and extra numeric
// fields beyond the always-valid headcount and total_allowance.
var levelFields = map[Level]struct {
	alpha        string
	countField   string // numeric child count alias, "" when absent
	defaultField string
}{
	LevelClient:     {alpha: "client", countField: "departments", defaultField: "total_allowance"},
	LevelDepartment: {alpha: "department", countField: "client_partner_count", defaultField: "total_allowance"},
	LevelPartner:    {alpha: "client_partner", countField: "", defaultField: "client_partner"},
}

// SortNodes orders one tier in place. Unknown fields fall back to the
// tier's default; shift columns are addressed as "shift:<CODE>" or the bare
// code. Numeric sorts break ties on the node key ascending; alphabetic
// sorts break ties on total allowance descending, in both cases regardless
// of the primary direction.
func SortNodes(nodes []*Node, spec SortSpec, level Level, shiftKeys map[string]struct{}) {
	meta := levelFields[level]
	field, numeric := resolveField(spec.Field, meta.alpha, meta.countField, meta.defaultField, shiftKeys)
	desc := resolveOrder(spec.Order, numeric)

	if numeric {
		metric := nodeMetric(field, meta.countField)
		sort.SliceStable(nodes, func(i, j int) bool {
			vi, vj := metric(nodes[i]), metric(nodes[j])
			if vi != vj {
				if desc {
					return vi > vj
				}
				return vi < vj
			}
			return foldKey(nodes[i].Key) < foldKey(nodes[j].Key)
		})
		return
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		ki, kj := foldKey(nodes[i].Key), foldKey(nodes[j].Key)
		if ki != kj {
			if desc {
				return ki > kj
			}
			return ki < kj
		}
		return nodes[i].Total > nodes[j].Total
	})
}

// SortEmployees orders a leaf list in place. The alphabetic field is
// emp_name; everything else resolves numerically against total_allowance or
// a shift column.
func SortEmployees(emps []Employee, spec SortSpec, shiftKeys map[string]struct{}) {
	field, numeric := resolveField(spec.Field, "emp_name", "", "total_allowance", shiftKeys)
	desc := resolveOrder(spec.Order, numeric)

	if numeric {
		metric := func(e Employee) float64 {
			if code, ok := shiftField(field, shiftKeys); ok {
				return e.Shifts[code]
			}
			return e.Total
		}
		sort.SliceStable(emps, func(i, j int) bool {
			vi, vj := metric(emps[i]), metric(emps[j])
			if vi != vj {
				if desc {
					return vi > vj
				}
				return vi < vj
			}
			return foldKey(emps[i].EmpName) < foldKey(emps[j].EmpName)
		})
		return
	}
	sort.SliceStable(emps, func(i, j int) bool {
		ki, kj := foldKey(emps[i].EmpName), foldKey(emps[j].EmpName)
		if ki != kj {
			if desc {
				return ki > kj
			}
			return ki < kj
		}
		return emps[i].Total > emps[j].Total
	})
}

// TopN keeps the first n nodes of an already sorted tier; n <= 0 keeps all.
func TopN(nodes []*Node, n int) []*Node {
	if n <= 0 || n >= len(nodes) {
		return nodes
	}
	return nodes[:n]
}

// ApplySort orders every tier of the tree per the query's specs, truncates
// the client tier to TopN, and finally orders the period buckets by label.
func ApplySort(t *Tree, q Query) {
	set := make(map[string]struct{}, len(t.ShiftKeys))
	for _, k := range t.ShiftKeys {
		set[k] = struct{}{}
	}
	sort.SliceStable(t.Periods, func(i, j int) bool {
		return t.Periods[i].Key < t.Periods[j].Key
	})
	for _, p := range t.Periods {
		SortNodes(p.Children, q.SortClients, LevelClient, set)
		p.Children = TopN(p.Children, q.TopN)
		for _, c := range p.Children {
			SortNodes(c.Children, q.SortDepartments, LevelDepartment, set)
			for _, d := range c.Children {
				SortNodes(d.Children, q.SortPartners, LevelPartner, set)
				for _, g := range d.Children {
					SortEmployees(g.Employees, q.SortEmployees, set)
				}
			}
		}
	}
}

// resolveField normalises the requested field and reports whether it sorts
// numerically. Unknown fields resolve to the tier default.
func resolveField(raw, alpha, countField, def string, shiftKeys map[string]struct{}) (string, bool) {
	f := strings.ToLower(shared.CleanString(raw))
	switch {
	case f == "":
		f = def
	case f == alpha, f == "headcount", f == "total_allowance":
	case countField != "" && f == countField:
	default:
		if _, ok := shiftField(f, shiftKeys); !ok {
			f = def
		}
	}
	return f, f != alpha
}

func resolveOrder(order string, numeric bool) (desc bool) {
	switch strings.ToLower(shared.CleanString(order)) {
	case OrderAsc:
		return false
	case OrderDesc:
		return true
	default:
		// Alphabetic fields default ascending, numeric descending.
		return numeric
	}
}

// shiftField resolves "shift:<CODE>" or a bare code against the registered
// keys, returning the canonical code.
func shiftField(f string, shiftKeys map[string]struct{}) (string, bool) {
	code := strings.ToUpper(strings.TrimPrefix(f, "shift:"))
	if _, ok := shiftKeys[code]; ok {
		return code, true
	}
	return "", false
}

func nodeMetric(field, countField string) func(*Node) float64 {
	switch field {
	case "headcount":
		return func(n *Node) float64 { return float64(n.Headcount) }
	case "total_allowance":
		return func(n *Node) float64 { return n.Total }
	case countField:
		return func(n *Node) float64 { return float64(len(n.Children)) }
	default:
		code := strings.ToUpper(strings.TrimPrefix(field, "shift:"))
		return func(n *Node) float64 { return n.ShiftTotals[code] }
	}
}

func foldKey(s string) string {
	return strings.ToLower(s)
}
