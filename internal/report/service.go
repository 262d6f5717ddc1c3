package report

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shiftledger/shiftledger/internal/shared"
	"github.com/shiftledger/shiftledger/internal/shifts"
)

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests supply fakes.
type Store interface {
	FactRows(ctx context.Context, periods []Period) ([]FactRow, error)
	HasData(ctx context.Context, p Period) (bool, error)
	LatestPeriod(ctx context.Context) (Period, bool, error)
	ShiftRates(ctx context.Context) (map[string]map[int]float64, error)
	DistinctClients(ctx context.Context) ([]string, error)
}

// Service runs the report pipeline: resolve periods, compile filters, fetch,
// fold, prune, sort, cache.
type Service struct {
	store    Store
	registry *shifts.Registry
	cache    *Cache
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the report service.
func NewService(store Store, registry *shifts.Registry, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		registry: registry,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// Meta accompanies every report response.
type Meta struct {
	Periods        []string `json:"periods"`
	MissingPeriods []string `json:"missing_periods"`
	Notice         string   `json:"notice,omitempty"`
}

// ShiftDetail is the per-code display metadata block.
type ShiftDetail struct {
	Code     string  `json:"code"`
	Label    string  `json:"label"`
	Timing   string  `json:"timing"`
	Currency string  `json:"currency"`
	Rate     float64 `json:"rate"`
}

// SummaryResponse is the client summary tree, bucketed by month, quarter or
// explicit range depending on the request.
type SummaryResponse struct {
	Meta      Meta     `json:"meta"`
	ShiftKeys []string `json:"shift_keys"`
	Periods   []*Node  `json:"periods"`
}

// AnalyticsSummary is the roll-up header of the drilldown response.
type AnalyticsSummary struct {
	TotalClients    int     `json:"total_clients"`
	ClientDeptPairs int     `json:"client_department_pairs"`
	Headcount       int     `json:"headcount"`
	TotalAllowance  float64 `json:"total_allowance"`
}

// AnalyticsResponse is the client drilldown: full nesting plus shift display
// metadata.
type AnalyticsResponse struct {
	Meta         Meta             `json:"meta"`
	Summary      AnalyticsSummary `json:"summary"`
	ShiftDetails []ShiftDetail    `json:"shift_details"`
	ShiftKeys    []string         `json:"shift_keys"`
	Periods      []*Node          `json:"periods"`
}

// DashboardResponse is the landing-page block: latest period totals with
// previous-month comparison strings.
type DashboardResponse struct {
	Meta           Meta               `json:"meta"`
	Period         string             `json:"period"`
	Headcount      int                `json:"headcount"`
	Clients        int                `json:"clients"`
	TotalAllowance float64            `json:"total_allowance"`
	ShiftTotals    map[string]float64 `json:"shift_totals"`
	Changes        map[string]string  `json:"changes"`
}

// SearchResponse is the flat unique-employee list with pagination.
type SearchResponse struct {
	Meta         Meta               `json:"meta"`
	Total        int                `json:"total"`
	Offset       int                `json:"offset"`
	Limit        int                `json:"limit"`
	Employees    []Employee         `json:"employees"`
	ShiftSummary map[string]float64 `json:"shift_summary"`
	ShiftDetails []ShiftDetail      `json:"shift_details"`
}

// IntervalPoint is one month of the per-client graph feed.
type IntervalPoint struct {
	Period         string  `json:"period"`
	Headcount      int     `json:"headcount"`
	TotalAllowance float64 `json:"total_allowance"`
}

// IntervalResponse feeds the month-over-month client graph.
type IntervalResponse struct {
	Client string          `json:"client"`
	Points []IntervalPoint `json:"points"`
}

// run is the shared pipeline core up to the sorted, pruned tree.
type run struct {
	Tree       *Tree
	Resolution Resolution
	Missing    []string
	Rates      map[string]map[int]float64
}

func (s *Service) execute(ctx context.Context, q Query, label func(Period) string, pruneGroups bool) (*run, error) {
	res, err := ResolvePeriods(ctx, q, s.store, s.now())
	if err != nil {
		return nil, err
	}
	filter, err := CompileFilter(q, s.canonicalShift)
	if err != nil {
		return nil, err
	}

	var rows []FactRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.store.FactRows(gctx, res.Periods)
		return err
	})
	var rates map[string]map[int]float64
	g.Go(func() error {
		var err error
		rates, err = s.store.ShiftRates(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("report load: %w", err)
	}

	present := make(map[Period]struct{}, len(res.Periods))
	for _, r := range rows {
		present[r.Period] = struct{}{}
	}
	var missing []string
	for _, p := range res.Periods {
		if _, ok := present[p]; !ok {
			missing = append(missing, p.String())
		}
	}
	if len(present) == 0 && q.ExplicitPeriods() {
		return nil, fmt.Errorf("%w: no rows for %s..%s", ErrNoData,
			res.Periods[0], res.Periods[len(res.Periods)-1])
	}

	b := NewBuilder(s.registry.Keys(), label)
	matched := 0
	for _, r := range rows {
		if !filter.Match(r) {
			continue
		}
		b.Add(r)
		matched++
	}
	if matched == 0 && !filter.Empty() {
		return nil, fmt.Errorf("%w: filters matched no rows", ErrNoData)
	}

	tree := b.Finalize()
	if pruneGroups && len(q.Headcounts) > 0 {
		if kept := s.pruneHeadcount(tree, q); kept == 0 {
			return nil, fmt.Errorf("%w: no groups match the requested headcount range(s)", ErrNoData)
		}
	}
	ApplySort(tree, q)

	s.logger.DebugContext(ctx, "report pipeline",
		slog.Int("periods", len(res.Periods)),
		slog.Int("rows", len(rows)),
		slog.Int("matched", matched),
	)
	return &run{Tree: tree, Resolution: res, Missing: missing, Rates: rates}, nil
}

// pruneHeadcount applies group semantics: when departments were explicitly
// filtered the range applies to department groups, otherwise to clients. It
// returns how many groups survived across all period buckets.
func (s *Service) pruneHeadcount(t *Tree, q Query) int {
	deptLevel := q.Departments != nil || q.ClientDepartments != nil
	kept := 0
	for _, p := range t.Periods {
		if !deptLevel {
			p.Children = PruneByHeadcount(p.Children, q.Headcounts)
			kept += len(p.Children)
			continue
		}
		for _, c := range p.Children {
			c.Children = PruneByHeadcount(c.Children, q.Headcounts)
			kept += len(c.Children)
		}
	}
	return kept
}

func (s *Service) canonicalShift(code string) (string, bool) {
	c := shifts.Canonical(code)
	return c, s.registry.Has(c)
}

func (s *Service) meta(r *run) Meta {
	periods := make([]string, 0, len(r.Resolution.Periods))
	for _, p := range r.Resolution.Periods {
		periods = append(periods, p.String())
	}
	return Meta{Periods: periods, MissingPeriods: r.Missing, Notice: r.Resolution.Notice}
}

// periodLabel selects the bucketing for summary-style requests: quarters
// group by quarter, explicit ranges collapse into one bucket, everything
// else stays monthly.
func periodLabel(q Query) func(Period) string {
	switch {
	case q.Start != nil && q.End != nil:
		return rangeLabel(*q.Start, *q.End)
	case len(q.Quarters) > 0 && len(q.Months) == 0:
		return quarterLabel
	default:
		return nil
	}
}

// ClientSummary produces the period-bucketed summary tree. The default
// request is cached and staleness-checked against the latest loaded month.
func (s *Service) ClientSummary(ctx context.Context, q Query) (SummaryResponse, error) {
	build := func(ctx context.Context) (SummaryResponse, string, error) {
		r, err := s.execute(ctx, q, periodLabel(q), true)
		if err != nil {
			return SummaryResponse{}, "", err
		}
		resp := SummaryResponse{
			Meta:      s.meta(r),
			ShiftKeys: r.Tree.ShiftKeys,
			Periods:   r.Tree.Periods,
		}
		return resp, latestOf(r.Resolution.Periods), nil
	}
	if !q.DefaultRequest() {
		resp, _, err := build(ctx)
		return resp, err
	}
	return fetchCached(ctx, s, keySummary(), build)
}

// ClientAnalytics is the drilldown report with per-level sorting and shift
// display metadata. Partner and employee levels are exposed only when the
// request selects exactly one department; broader selections stop at the
// department level. Single-client default-period requests are cached.
func (s *Service) ClientAnalytics(ctx context.Context, q Query) (AnalyticsResponse, error) {
	build := func(ctx context.Context) (AnalyticsResponse, string, error) {
		r, err := s.execute(ctx, q, nil, true)
		if err != nil {
			return AnalyticsResponse{}, "", err
		}
		if !singleDepartment(q) {
			trimToDepartments(r.Tree)
		}
		resp := AnalyticsResponse{
			Meta:         s.meta(r),
			Summary:      summarize(r.Tree),
			ShiftDetails: s.shiftDetails(r.Resolution.Periods, r.Rates),
			ShiftKeys:    r.Tree.ShiftKeys,
			Periods:      r.Tree.Periods,
		}
		return resp, latestOf(r.Resolution.Periods), nil
	}
	client, cacheable := analyticsCacheKey(q)
	if !cacheable {
		resp, _, err := build(ctx)
		return resp, err
	}
	return fetchCached(ctx, s, keyAnalytics(client), build)
}

// Dashboard returns latest-period totals with previous-month deltas.
func (s *Service) Dashboard(ctx context.Context, q Query) (DashboardResponse, error) {
	build := func(ctx context.Context) (DashboardResponse, string, error) {
		res, err := ResolvePeriods(ctx, q, s.store, s.now())
		if err != nil {
			return DashboardResponse{}, "", err
		}
		latest := res.Periods[len(res.Periods)-1]
		prev := latest.Prev()
		rows, err := s.store.FactRows(ctx, []Period{prev, latest})
		if err != nil {
			return DashboardResponse{}, "", err
		}
		cur := s.periodStats(rows, latest)
		old := s.periodStats(rows, prev)
		resp := DashboardResponse{
			Meta:           Meta{Periods: []string{latest.String()}, Notice: res.Notice},
			Period:         latest.String(),
			Headcount:      cur.headcount,
			Clients:        cur.clients,
			TotalAllowance: cur.total,
			ShiftTotals:    cur.shiftTotals,
			Changes: map[string]string{
				"headcount":       formatChange(float64(old.headcount), float64(cur.headcount)),
				"clients":         formatChange(float64(old.clients), float64(cur.clients)),
				"total_allowance": formatChange(old.total, cur.total),
			},
		}
		return resp, latest.String(), nil
	}
	if !q.DefaultRequest() {
		resp, _, err := build(ctx)
		return resp, err
	}
	return fetchCached(ctx, s, keyDashboard(), build)
}

// Search returns the flat unique-employee list across the selected periods,
// with headcount filtering and pagination. Headcount ranges act on group
// sizes when departments or clients were explicitly selected, and on 1-based
// list positions otherwise.
func (s *Service) Search(ctx context.Context, q Query) (SearchResponse, error) {
	// One bucket across all periods: identities merge across months.
	r, err := s.execute(ctx, q, func(Period) string { return "all" }, false)
	if err != nil {
		return SearchResponse{}, err
	}
	emps := r.Tree.Flatten()
	set := make(map[string]struct{}, len(r.Tree.ShiftKeys))
	for _, k := range r.Tree.ShiftKeys {
		set[k] = struct{}{}
	}
	SortEmployees(emps, q.SortEmployees, set)
	emps = searchHeadcount(emps, q)
	if len(emps) == 0 && len(q.Headcounts) > 0 {
		return SearchResponse{}, fmt.Errorf("%w: no employees match the requested headcount range(s)", ErrNoData)
	}

	summary := make(map[string]float64, len(r.Tree.ShiftKeys))
	for _, k := range r.Tree.ShiftKeys {
		summary[k] = 0
	}
	for _, e := range emps {
		for k, v := range e.Shifts {
			summary[k] += v
		}
	}
	for k, v := range summary {
		summary[k] = round2(v)
	}

	total := len(emps)
	emps = paginate(emps, q.Offset, q.Limit)
	return SearchResponse{
		Meta:         s.meta(r),
		Total:        total,
		Offset:       q.Offset,
		Limit:        q.Limit,
		Employees:    emps,
		ShiftSummary: summary,
		ShiftDetails: s.shiftDetails(r.Resolution.Periods, r.Rates),
	}, nil
}

// IntervalSummary returns per-month totals for one client between two
// months, inclusive.
func (s *Service) IntervalSummary(ctx context.Context, client string, start, end Period) (IntervalResponse, error) {
	q := Query{Clients: []string{client}, Start: &start, End: &end}
	r, err := s.execute(ctx, q, nil, true)
	if err != nil {
		return IntervalResponse{}, err
	}
	points := make([]IntervalPoint, 0, len(r.Tree.Periods))
	for _, p := range r.Tree.Periods {
		points = append(points, IntervalPoint{
			Period:         p.Key,
			Headcount:      p.Headcount,
			TotalAllowance: p.Total,
		})
	}
	return IntervalResponse{Client: client, Points: points}, nil
}

// Clients lists known client names for filter dropdowns.
func (s *Service) Clients(ctx context.Context) ([]string, error) {
	return s.store.DistinctClients(ctx)
}

// Invalidate drops every cached report; called from the ingest-side job.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// WarmDefaults precomputes the cacheable default responses.
func (s *Service) WarmDefaults(ctx context.Context) error {
	if _, err := s.Dashboard(ctx, Query{}); err != nil {
		return fmt.Errorf("warm dashboard: %w", err)
	}
	if _, err := s.ClientSummary(ctx, Query{}); err != nil {
		return fmt.Errorf("warm summary: %w", err)
	}
	return nil
}

// fetchCached routes a build through the staleness-checked cache. The want
// period is resolved fresh so a newly ingested month forces a rebuild.
func fetchCached[T any](ctx context.Context, s *Service, keyParts []string, build func(context.Context) (T, string, error)) (T, error) {
	var zero T
	want, err := s.currentLatest(ctx)
	if err != nil {
		return zero, err
	}
	key, err := s.cache.BuildKey(ctx, keyParts...)
	if err != nil {
		return zero, err
	}
	var out T
	err = s.cache.FetchJSON(ctx, key, want, &out, func(ctx context.Context) (interface{}, string, error) {
		resp, period, err := build(ctx)
		if err != nil {
			return nil, "", err
		}
		return resp, period, nil
	})
	if err != nil {
		return zero, err
	}
	return out, nil
}

// currentLatest resolves what period a default request would serve now.
func (s *Service) currentLatest(ctx context.Context) (string, error) {
	res, err := ResolvePeriods(ctx, Query{}, s.store, s.now())
	if err != nil {
		return "", err
	}
	return latestOf(res.Periods), nil
}

func latestOf(periods []Period) string {
	if len(periods) == 0 {
		return ""
	}
	latest := periods[0]
	for _, p := range periods[1:] {
		if latest.Before(p) {
			latest = p
		}
	}
	return latest.String()
}

// analyticsCacheKey reports whether an analytics request is cacheable: no
// explicit periods and at most a single-client filter.
func analyticsCacheKey(q Query) (string, bool) {
	if q.ExplicitPeriods() || q.Headcounts != nil || q.Departments != nil ||
		q.ClientDepartments != nil || q.Shifts != nil || q.EmpIDs != nil || q.Partners != nil {
		return "", false
	}
	switch len(q.Clients) {
	case 0:
		return "all", true
	case 1:
		return q.Clients[0], true
	default:
		return "", false
	}
}

type stats struct {
	headcount   int
	clients     int
	total       float64
	shiftTotals map[string]float64
}

// periodStats folds one month's rows into headline numbers.
func (s *Service) periodStats(rows []FactRow, p Period) stats {
	b := NewBuilder(s.registry.Keys(), nil)
	for _, r := range rows {
		if r.Period == p {
			b.Add(r)
		}
	}
	tree := b.Finalize()
	node := tree.Period(p.String())
	if node == nil {
		return stats{shiftTotals: zeroTotals(s.registry.Keys())}
	}
	return stats{
		headcount:   node.Headcount,
		clients:     len(node.Children),
		total:       node.Total,
		shiftTotals: node.ShiftTotals,
	}
}

func zeroTotals(keys []string) map[string]float64 {
	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		out[k] = 0
	}
	return out
}

// summarize computes the drilldown header across all period buckets.
func summarize(t *Tree) AnalyticsSummary {
	clients := make(map[string]struct{})
	pairs := make(map[string]struct{})
	var out AnalyticsSummary
	for _, p := range t.Periods {
		out.Headcount += p.Headcount
		out.TotalAllowance = round2(out.TotalAllowance + p.Total)
		for _, c := range p.Children {
			clients[c.Key] = struct{}{}
			for _, d := range c.Children {
				pairs[c.Key+"|"+d.Key] = struct{}{}
			}
		}
	}
	out.TotalClients = len(clients)
	out.ClientDeptPairs = len(pairs)
	return out
}

// shiftDetails renders display metadata, preferring the latest in-scope
// payroll year's rate and falling back to the newest rate on record.
func (s *Service) shiftDetails(periods []Period, rates map[string]map[int]float64) []ShiftDetail {
	year := 0
	for _, p := range periods {
		if p.Year > year {
			year = p.Year
		}
	}
	keys := s.registry.Keys()
	out := make([]ShiftDetail, 0, len(keys))
	for _, code := range keys {
		t, ok := s.registry.Lookup(code)
		if !ok {
			continue
		}
		out = append(out, ShiftDetail{
			Code:     t.Code,
			Label:    t.Label,
			Timing:   t.Timing,
			Currency: t.Currency,
			Rate:     rateFor(rates, code, year),
		})
	}
	return out
}

// rateFor mirrors the registry's exact-year-then-latest fallback over a raw
// rate table.
func rateFor(rates map[string]map[int]float64, code string, year int) float64 {
	byYear := rates[code]
	if len(byYear) == 0 {
		return 0
	}
	if amount, ok := byYear[year]; ok {
		return amount
	}
	best, amount := 0, 0.0
	for y, a := range byYear {
		if y > best {
			best, amount = y, a
		}
	}
	return amount
}

// formatChange renders month-over-month movement. A zero baseline with any
// current value reads as a full increase.
func formatChange(prev, curr float64) string {
	if prev == 0 {
		if curr == 0 {
			return "no change"
		}
		return "100% increase"
	}
	pct := (curr - prev) / prev * 100
	if math.Abs(pct) < 0.005 {
		return "no change"
	}
	if pct > 0 {
		return fmt.Sprintf("%.0f%% increase", pct)
	}
	return fmt.Sprintf("%.0f%% decrease", -pct)
}

// singleDepartment reports whether the request pins down exactly one
// department, counting both the flat list and the per-client map.
func singleDepartment(q Query) bool {
	set := make(map[string]struct{})
	for _, d := range q.Departments {
		if v := fold(d); v != "" {
			set[v] = struct{}{}
		}
	}
	for _, depts := range q.ClientDepartments {
		if shared.IsAll(depts) {
			return false
		}
		for _, d := range depts {
			if v := fold(d); v != "" {
				set[v] = struct{}{}
			}
		}
	}
	return len(set) == 1
}

// trimToDepartments drops partner and employee nodes from the drilldown.
func trimToDepartments(t *Tree) {
	for _, p := range t.Periods {
		for _, c := range p.Children {
			for _, d := range c.Children {
				d.Children = nil
			}
		}
	}
}

// searchHeadcount picks the flat-list headcount semantics: group sizes by
// department when departments were explicitly selected, by client when only
// clients were, and list positions when neither was.
func searchHeadcount(emps []Employee, q Query) []Employee {
	switch {
	case q.Departments != nil || q.ClientDepartments != nil:
		return GroupSizeWindow(emps, func(e Employee) string { return e.Department }, q.Headcounts)
	case q.Clients != nil:
		return GroupSizeWindow(emps, func(e Employee) string { return e.Client }, q.Headcounts)
	default:
		return PositionWindow(emps, q.Headcounts)
	}
}

func paginate(emps []Employee, offset, limit int) []Employee {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(emps) {
		return nil
	}
	emps = emps[offset:]
	if limit > 0 && limit < len(emps) {
		emps = emps[:limit]
	}
	return emps
}
