package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads allowance fact rows and rate tables from Postgres. The
// service treats it through the small interfaces it needs, so tests swap in
// fakes without touching SQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a report repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FactRows fetches the joined employee x shift-mapping x period rows for
// the given months. Content filters are deliberately NOT pushed into SQL
// beyond the period predicate: the filter semantics (substring matching,
// cleaned comparisons, UNKNOWN buckets) live in one place, the compiled
// RowFilter, and the monthly row volumes are small enough to filter in
// process.
func (r *Repository) FactRows(ctx context.Context, periods []Period) ([]FactRow, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("report repo not initialised")
	}
	if len(periods) == 0 {
		return nil, nil
	}
	pred, args := periodPredicate(periods, "sa.duration_month", 1)
	query := `
SELECT
    COALESCE(sa.emp_id, ''),
    COALESCE(sa.emp_name, ''),
    COALESCE(sa.client, ''),
    COALESCE(sa.department, ''),
    COALESCE(sa.client_partner, ''),
    EXTRACT(YEAR FROM sa.duration_month)::int,
    EXTRACT(MONTH FROM sa.duration_month)::int,
    COALESCE(sm.shift_type, ''),
    COALESCE(sm.days, 0)::float8,
    COALESCE(sr.amount, 0)::float8
FROM shift_allowances sa
JOIN shift_mappings sm ON sm.allowance_id = sa.id
LEFT JOIN shift_rates sr
    ON upper(btrim(sr.shift_type)) = upper(btrim(sm.shift_type))
   AND sr.payroll_year = EXTRACT(YEAR FROM sa.duration_month)::int
WHERE ` + pred + `
ORDER BY sa.duration_month, sa.client, sa.department, sa.client_partner, sa.emp_name`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fact rows: %w", err)
	}
	defer rows.Close()

	var out []FactRow
	for rows.Next() {
		var fr FactRow
		if err := rows.Scan(
			&fr.EmpID, &fr.EmpName, &fr.Client, &fr.Department, &fr.ClientPartner,
			&fr.Period.Year, &fr.Period.Month, &fr.ShiftCode, &fr.Days, &fr.Rate,
		); err != nil {
			return nil, fmt.Errorf("fact rows scan: %w", err)
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

// HasData reports whether any allowance row exists for the month.
func (r *Repository) HasData(ctx context.Context, p Period) (bool, error) {
	if r == nil || r.pool == nil {
		return false, fmt.Errorf("report repo not initialised")
	}
	const query = `
SELECT EXISTS (
    SELECT 1 FROM shift_allowances
    WHERE EXTRACT(YEAR FROM duration_month)::int = $1
      AND EXTRACT(MONTH FROM duration_month)::int = $2
)`
	var ok bool
	if err := r.pool.QueryRow(ctx, query, p.Year, p.Month).Scan(&ok); err != nil {
		return false, fmt.Errorf("has data: %w", err)
	}
	return ok, nil
}

// LatestPeriod returns the most recent month with any allowance row.
func (r *Repository) LatestPeriod(ctx context.Context) (Period, bool, error) {
	if r == nil || r.pool == nil {
		return Period{}, false, fmt.Errorf("report repo not initialised")
	}
	const query = `
SELECT EXTRACT(YEAR FROM duration_month)::int, EXTRACT(MONTH FROM duration_month)::int
FROM shift_allowances
ORDER BY duration_month DESC
LIMIT 1`
	var p Period
	if err := r.pool.QueryRow(ctx, query).Scan(&p.Year, &p.Month); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, false, nil
		}
		return Period{}, false, fmt.Errorf("latest period: %w", err)
	}
	return p, true, nil
}

// ShiftRates loads the per-year rate table keyed by canonical shift code.
func (r *Repository) ShiftRates(ctx context.Context) (map[string]map[int]float64, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("report repo not initialised")
	}
	const query = `
SELECT upper(btrim(shift_type)), payroll_year, amount::float8
FROM shift_rates`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("shift rates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[int]float64)
	for rows.Next() {
		var code string
		var year int
		var amount float64
		if err := rows.Scan(&code, &year, &amount); err != nil {
			return nil, fmt.Errorf("shift rates scan: %w", err)
		}
		byYear, ok := out[code]
		if !ok {
			byYear = make(map[int]float64)
			out[code] = byYear
		}
		byYear[year] = amount
	}
	return out, rows.Err()
}

// DistinctClients lists the cleaned client names present in the store,
// alphabetically. Feeds the filter dropdowns and the warmup job.
func (r *Repository) DistinctClients(ctx context.Context) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("report repo not initialised")
	}
	const query = `
SELECT DISTINCT btrim(client)
FROM shift_allowances
WHERE btrim(COALESCE(client, '')) <> ''
ORDER BY 1`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("distinct clients: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("distinct clients scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// periodPredicate builds a (year, month) tuple membership predicate.
func periodPredicate(periods []Period, col string, argOffset int) (string, []interface{}) {
	tuples := make([]string, 0, len(periods))
	args := make([]interface{}, 0, len(periods)*2)
	n := argOffset
	for _, p := range periods {
		tuples = append(tuples, fmt.Sprintf("($%d, $%d)", n, n+1))
		args = append(args, p.Year, p.Month)
		n += 2
	}
	pred := fmt.Sprintf(
		"(EXTRACT(YEAR FROM %s)::int, EXTRACT(MONTH FROM %s)::int) IN (%s)",
		col, col, strings.Join(tuples, ", "),
	)
	return pred, args
}
