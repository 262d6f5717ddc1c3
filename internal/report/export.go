package report

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ExportDocument is the renderer-agnostic flat sheet: a header row plus data
// rows in a stable column order. Excel rendering itself happens outside this
// package; the contract here is the column layout and cell values.
type ExportDocument struct {
	FileName string     `json:"file_name"`
	Columns  []string   `json:"columns"`
	Rows     [][]string `json:"rows"`
	Meta     Meta       `json:"meta"`
}

// exportFixedLead precedes the dynamic shift columns; the total closes the row.
var exportFixedLead = []string{"Period", "Client", "Client Partner", "Employee ID", "Department", "Head Count"}

const exportTotalColumn = "Total Allowance"

// ExportRows flattens the aggregation tree into export rows: one row per
// employee per period bucket, with the owning group's headcount repeated on
// each member row. Shift columns follow registry order so re-exports line up
// column for column. The default request is cached like the other default
// reports, so repeat exports of the latest month reuse the same document.
func (s *Service) ExportRows(ctx context.Context, q Query) (ExportDocument, error) {
	if !q.DefaultRequest() {
		doc, _, err := s.buildExport(ctx, q)
		return doc, err
	}
	return fetchCached(ctx, s, keyExport(), func(ctx context.Context) (ExportDocument, string, error) {
		return s.buildExport(ctx, q)
	})
}

func (s *Service) buildExport(ctx context.Context, q Query) (ExportDocument, string, error) {
	r, err := s.execute(ctx, q, periodLabel(q), true)
	if err != nil {
		return ExportDocument{}, "", err
	}

	columns := append([]string{}, exportFixedLead...)
	columns = append(columns, r.Tree.ShiftKeys...)
	columns = append(columns, exportTotalColumn)

	deptLevel := q.Departments != nil || q.ClientDepartments != nil
	var rows [][]string
	for _, p := range r.Tree.Periods {
		for _, c := range p.Children {
			for _, d := range c.Children {
				headcount := c.Headcount
				if deptLevel {
					headcount = d.Headcount
				}
				for _, g := range d.Children {
					for _, e := range g.Employees {
						rows = append(rows, exportRow(p.Key, e, headcount, r.Tree.ShiftKeys))
					}
				}
			}
		}
	}

	doc := ExportDocument{
		FileName: fmt.Sprintf("shift-allowances-%s.xlsx", uuid.NewString()),
		Columns:  columns,
		Rows:     rows,
		Meta:     s.meta(r),
	}
	return doc, latestOf(r.Resolution.Periods), nil
}

func exportRow(period string, e Employee, headcount int, shiftKeys []string) []string {
	row := make([]string, 0, len(exportFixedLead)+len(shiftKeys)+1)
	row = append(row,
		period,
		e.Client,
		e.ClientPartner,
		e.EmpID,
		e.Department,
		strconv.Itoa(headcount),
	)
	for _, k := range shiftKeys {
		row = append(row, formatAmount(e.Shifts[k]))
	}
	return append(row, formatAmount(e.Total))
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
