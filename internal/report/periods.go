package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PeriodProbe answers the two data-availability questions the resolver needs
// when the request carries no usable period selection.
type PeriodProbe interface {
	HasData(ctx context.Context, p Period) (bool, error)
	LatestPeriod(ctx context.Context) (Period, bool, error)
}

// Resolution is the outcome of period resolution: the concrete months to
// aggregate, plus any notice the response should surface to the caller.
type Resolution struct {
	Periods  []Period
	Notice   string
	Fallback bool // true when the resolver had to pick periods itself
}

var quarterMonths = map[string][]int{
	"Q1": {1, 2, 3},
	"Q2": {4, 5, 6},
	"Q3": {7, 8, 9},
	"Q4": {10, 11, 12},
}

// fallbackLookback bounds the walk back from the current month when it has
// no data.
const fallbackLookback = 12

// ResolvePeriods turns the request's period dimensions into a sorted list of
// concrete months. Precedence: an explicit start/end range wins outright;
// then years and months (quarters expand into months first) combine; a bare
// year selection covers all twelve months; bare months land in the current
// year with future months dropped. With nothing usable left, the resolver
// probes backwards from the current month and finally asks the store for its
// latest loaded period.
func ResolvePeriods(ctx context.Context, q Query, probe PeriodProbe, now time.Time) (Resolution, error) {
	if err := validatePeriodInputs(q, now); err != nil {
		return Resolution{}, err
	}

	if q.Start != nil || q.End != nil {
		if q.Start == nil || q.End == nil {
			return Resolution{}, fmt.Errorf("%w: start and end must be given together", ErrInvalidRange)
		}
		if q.End.Before(*q.Start) {
			return Resolution{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange, q.Start, q.End)
		}
		var out []Period
		for p := *q.Start; !q.End.Before(p); p = p.Next() {
			out = append(out, p)
		}
		return Resolution{Periods: out}, nil
	}

	months := combineMonths(q.Months, q.Quarters)

	switch {
	case len(q.Years) > 0 && len(months) > 0:
		return Resolution{Periods: cross(q.Years, months)}, nil

	case len(q.Years) > 0:
		all := make([]int, 12)
		for i := range all {
			all[i] = i + 1
		}
		return Resolution{Periods: cross(q.Years, all)}, nil

	case len(months) > 0:
		year := now.Year()
		var kept []Period
		var dropped []string
		for _, m := range months {
			p := Period{Year: year, Month: m}
			if PeriodOf(now).Before(p) {
				dropped = append(dropped, p.String())
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) > 0 {
			res := Resolution{Periods: kept}
			if len(dropped) > 0 {
				res.Notice = "ignored future month(s): " + strings.Join(dropped, ", ")
			}
			return res, nil
		}
		// Every requested month is in the future: fall through to the
		// data-driven default with a notice.
		res, err := resolveDefault(ctx, probe, now)
		if err != nil {
			return Resolution{}, err
		}
		res.Notice = "ignored future month(s): " + strings.Join(dropped, ", ") +
			"; showing " + res.Periods[0].String()
		return res, nil
	}

	return resolveDefault(ctx, probe, now)
}

// resolveDefault picks the most recent month that actually has data.
func resolveDefault(ctx context.Context, probe PeriodProbe, now time.Time) (Resolution, error) {
	p := PeriodOf(now)
	for i := 0; i <= fallbackLookback; i++ {
		ok, err := probe.HasData(ctx, p)
		if err != nil {
			return Resolution{}, fmt.Errorf("probe %s: %w", p, err)
		}
		if ok {
			return Resolution{Periods: []Period{p}, Fallback: true}, nil
		}
		p = p.Prev()
	}
	latest, ok, err := probe.LatestPeriod(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("latest period: %w", err)
	}
	if ok {
		return Resolution{Periods: []Period{latest}, Fallback: true}, nil
	}
	return Resolution{
		Periods:  []Period{PeriodOf(now)},
		Notice:   "no allowance data loaded yet",
		Fallback: true,
	}, nil
}

func validatePeriodInputs(q Query, now time.Time) error {
	for _, y := range q.Years {
		if y <= 0 || y > now.Year() {
			return fmt.Errorf("%w: %d", ErrInvalidYear, y)
		}
	}
	for _, m := range q.Months {
		if m < 1 || m > 12 {
			return fmt.Errorf("%w: %d", ErrInvalidMonth, m)
		}
	}
	for _, qt := range q.Quarters {
		if _, ok := quarterMonths[strings.ToUpper(qt)]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidQuarter, qt)
		}
	}
	return nil
}

// combineMonths merges explicit months with quarter expansions, deduplicated
// and sorted.
func combineMonths(months []int, quarters []string) []int {
	seen := make(map[int]struct{})
	var out []int
	add := func(m int) {
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	for _, m := range months {
		add(m)
	}
	for _, q := range quarters {
		for _, m := range quarterMonths[strings.ToUpper(q)] {
			add(m)
		}
	}
	sort.Ints(out)
	return out
}

func cross(years, months []int) []Period {
	ys := append([]int(nil), years...)
	sort.Ints(ys)
	out := make([]Period, 0, len(ys)*len(months))
	for _, y := range ys {
		for _, m := range months {
			out = append(out, Period{Year: y, Month: m})
		}
	}
	return out
}
