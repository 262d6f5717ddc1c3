package report

import (
	"encoding/json"
	"errors"
	"testing"
)

func decode(t *testing.T, body string) Request {
	t.Helper()
	var r Request
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatalf("unmarshal %s: %v", body, err)
	}
	return r
}

func TestRequestScalarAndListForms(t *testing.T) {
	r := decode(t, `{
		"clients": "Acme",
		"departments": ["Finance", "HR"],
		"emp_id": "E10",
		"years": ["2025", 2024],
		"months": [1, "2"],
		"top": "5"
	}`)
	q, err := r.Query()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(q.Clients) != 1 || q.Clients[0] != "Acme" {
		t.Fatalf("clients: %v", q.Clients)
	}
	if len(q.Departments) != 2 || len(q.EmpIDs) != 1 {
		t.Fatalf("departments %v emp %v", q.Departments, q.EmpIDs)
	}
	if len(q.Years) != 2 || q.Years[0] != 2025 || q.Years[1] != 2024 {
		t.Fatalf("years: %v", q.Years)
	}
	if q.TopN != 5 {
		t.Fatalf("top: %d", q.TopN)
	}
}

func TestRequestAllSentinelMeansUnrestricted(t *testing.T) {
	r := decode(t, `{"clients": "ALL", "shifts": ["all"], "headcounts": "ALL", "top": "ALL"}`)
	q, err := r.Query()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if q.Clients != nil || q.Shifts != nil || q.Headcounts != nil || q.TopN != 0 {
		t.Fatalf("expected unrestricted query, got %+v", q)
	}
	if !q.DefaultRequest() {
		t.Fatal("ALL-only payload should be a default request")
	}
}

func TestRequestCSVSplitting(t *testing.T) {
	r := decode(t, `{"departments": "Finance, HR | Ops"}`)
	q, err := r.Query()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []string{"Finance", "HR", "Ops"}
	if len(q.Departments) != 3 {
		t.Fatalf("departments: %v", q.Departments)
	}
	for i, d := range want {
		if q.Departments[i] != d {
			t.Fatalf("departments: %v, want %v", q.Departments, want)
		}
	}
}

func TestRequestClientDepartmentMap(t *testing.T) {
	r := decode(t, `{"clients": {"Acme": ["Finance"], "Globo": "ALL"}}`)
	q, err := r.Query()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if q.Clients != nil {
		t.Fatalf("list form should be empty: %v", q.Clients)
	}
	if got := q.ClientDepartments["Acme"]; len(got) != 1 || got[0] != "Finance" {
		t.Fatalf("Acme depts: %v", got)
	}
	if got, ok := q.ClientDepartments["Globo"]; !ok || got != nil {
		t.Fatalf("Globo should be present and unrestricted: %v %v", got, ok)
	}
}

func TestRequestPeriodsAndHeadcounts(t *testing.T) {
	r := decode(t, `{"start_period": "2025-11", "end_period": "2026-01", "headcounts": ["1-5", "9"]}`)
	q, err := r.Query()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if q.Start == nil || q.End == nil || *q.Start != (Period{2025, 11}) || *q.End != (Period{2026, 1}) {
		t.Fatalf("range: %v %v", q.Start, q.End)
	}
	if len(q.Headcounts) != 2 || q.Headcounts[1] != (Range{9, 9}) {
		t.Fatalf("headcounts: %v", q.Headcounts)
	}
}

func TestRequestInvalidShapes(t *testing.T) {
	for _, body := range []string{
		`{"clients": 12.5}`,
		`{"departments": {"nested": "map"}}`,
		`{"years": ["twenty"]}`,
		`{"top": "-3"}`,
		`{"top": 2.5}`,
	} {
		var r Request
		err := json.Unmarshal([]byte(body), &r)
		if !errors.Is(err, ErrInvalidFilterShape) {
			t.Fatalf("%s: err = %v, want ErrInvalidFilterShape", body, err)
		}
	}
}

func TestRequestInvalidHeadcountSurfacesAtQuery(t *testing.T) {
	r := decode(t, `{"headcounts": ["5-2"]}`)
	if _, err := r.Query(); !errors.Is(err, ErrInvalidHeadcountRange) {
		t.Fatalf("err = %v, want ErrInvalidHeadcountRange", err)
	}
}

func TestRequestSortSpecPropagates(t *testing.T) {
	r := decode(t, `{"sort_by": "headcount", "sort_order": "asc"}`)
	q, err := r.Query()
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if q.SortClients.Field != "headcount" || q.SortClients.Order != "asc" {
		t.Fatalf("sort spec: %+v", q.SortClients)
	}
	if q.SortEmployees != q.SortClients {
		t.Fatal("sort spec should apply to every level")
	}
}
