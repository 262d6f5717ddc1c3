package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shiftledger/shiftledger/internal/shared"
)

// Request is the wire payload for every report endpoint. Legacy clients
// send scalars, lists, "ALL" sentinels and numeric strings interchangeably;
// all of that tolerance lives in the Flex* unmarshalers so the rest of the
// pipeline only ever sees the canonical Query.
type Request struct {
	Clients       FlexClients `json:"clients"`
	Departments   FlexStrings `json:"departments"`
	Shifts        FlexStrings `json:"shifts"`
	EmpID         FlexStrings `json:"emp_id"`
	ClientPartner FlexStrings `json:"client_partner"`

	Years       FlexInts    `json:"years"`
	Months      FlexInts    `json:"months"`
	Quarters    FlexStrings `json:"quarters"`
	StartPeriod string      `json:"start_period"`
	EndPeriod   string      `json:"end_period"`

	Headcounts FlexStrings `json:"headcounts"`

	SortBy    string  `json:"sort_by"`
	SortOrder string  `json:"sort_order"`
	Top       FlexTop `json:"top"`

	Offset int `json:"offset" validate:"gte=0"`
	Limit  int `json:"limit" validate:"gte=0,lte=500"`
}

// Query validates and converts the payload into the canonical form. All
// shape errors surface here, before any storage or aggregation work.
func (r Request) Query() (Query, error) {
	q := Query{
		Clients:           shared.NormalizeFilter(r.Clients.list),
		ClientDepartments: normalizeClientDepts(r.Clients.byClient),
		Departments:       shared.NormalizeFilter(r.Departments),
		Shifts:            shared.NormalizeFilter(r.Shifts),
		EmpIDs:            shared.NormalizeFilter(r.EmpID),
		Partners:          shared.NormalizeFilter(r.ClientPartner),
		Quarters:          shared.NormalizeFilter(r.Quarters),
		Years:             r.Years,
		Months:            r.Months,
		TopN:              int(r.Top),
		Offset:            r.Offset,
		Limit:             r.Limit,
	}
	if s := shared.CleanString(r.StartPeriod); s != "" {
		p, err := ParsePeriod(s)
		if err != nil {
			return Query{}, err
		}
		q.Start = &p
	}
	if s := shared.CleanString(r.EndPeriod); s != "" {
		p, err := ParsePeriod(s)
		if err != nil {
			return Query{}, err
		}
		q.End = &p
	}
	if hc := shared.NormalizeFilter(r.Headcounts); hc != nil {
		ranges, err := ParseHeadcountRanges(hc)
		if err != nil {
			return Query{}, err
		}
		q.Headcounts = ranges
	}
	spec := SortSpec{Field: shared.CleanString(r.SortBy), Order: shared.CleanString(r.SortOrder)}
	q.SortClients = spec
	q.SortDepartments = spec
	q.SortPartners = spec
	q.SortEmployees = spec
	return q, nil
}

func normalizeClientDepts(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	out := make(map[string][]string, len(m))
	for client, depts := range m {
		key := shared.CleanString(client)
		if key == "" {
			continue
		}
		out[key] = shared.NormalizeFilter(depts)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FlexStrings accepts null, "ALL", a scalar string, or a list of strings
// and numbers.
type FlexStrings []string

func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	v, err := decodeStringList(data)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// FlexInts accepts null, a scalar, or a list of numbers and numeric
// strings.
type FlexInts []int

func (f *FlexInts) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilterShape, err)
	}
	items, ok := raw.([]interface{})
	if !ok {
		if raw == nil {
			*f = nil
			return nil
		}
		items = []interface{}{raw}
	}
	out := make([]int, 0, len(items))
	for _, it := range items {
		n, err := coerceInt(it)
		if err != nil {
			return err
		}
		out = append(out, n)
	}
	*f = out
	return nil
}

// FlexClients accepts everything FlexStrings does, plus the scoped
// map-of-client-to-departments form.
type FlexClients struct {
	list     []string
	byClient map[string][]string
}

func (f *FlexClients) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var m map[string]FlexStrings
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%w: clients map: %v", ErrInvalidFilterShape, err)
		}
		f.byClient = make(map[string][]string, len(m))
		for k, v := range m {
			f.byClient[k] = v
		}
		return nil
	}
	v, err := decodeStringList(data)
	if err != nil {
		return fmt.Errorf("%w: clients", ErrInvalidFilterShape)
	}
	f.list = v
	return nil
}

// FlexTop accepts "ALL" (no truncation), a positive integer, or a positive
// integer string.
type FlexTop int

func (f *FlexTop) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: top: %v", ErrInvalidFilterShape, err)
	}
	switch v := raw.(type) {
	case nil:
		*f = 0
		return nil
	case string:
		s := shared.CleanString(v)
		if s == "" || strings.EqualFold(s, "ALL") {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: top %q", ErrInvalidFilterShape, v)
		}
		*f = FlexTop(n)
		return nil
	case float64:
		if v != float64(int(v)) || v <= 0 {
			return fmt.Errorf("%w: top %v", ErrInvalidFilterShape, v)
		}
		*f = FlexTop(int(v))
		return nil
	default:
		return fmt.Errorf("%w: top", ErrInvalidFilterShape)
	}
}

func decodeStringList(data []byte) ([]string, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilterShape, err)
	}
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, it := range v {
			s, err := coerceString(it)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected string or list, got %T", ErrInvalidFilterShape, raw)
	}
}

func coerceString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), nil
		}
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: list element %T", ErrInvalidFilterShape, v)
	}
}

func coerceInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("%w: expected integer, got %v", ErrInvalidFilterShape, t)
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(shared.CleanString(t))
		if err != nil {
			return 0, fmt.Errorf("%w: expected integer, got %q", ErrInvalidFilterShape, t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: expected integer, got %T", ErrInvalidFilterShape, v)
	}
}
