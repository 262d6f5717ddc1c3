package report

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProbe struct {
	data   map[Period]bool
	latest *Period
	err    error
}

func (s *stubProbe) HasData(_ context.Context, p Period) (bool, error) {
	return s.data[p], s.err
}

func (s *stubProbe) LatestPeriod(_ context.Context) (Period, bool, error) {
	if s.latest == nil {
		return Period{}, false, s.err
	}
	return *s.latest, true, s.err
}

func mustResolve(t *testing.T, q Query, probe PeriodProbe, now time.Time) Resolution {
	t.Helper()
	res, err := ResolvePeriods(context.Background(), q, probe, now)
	if err != nil {
		t.Fatalf("ResolvePeriods: %v", err)
	}
	return res
}

func TestResolvePeriodsExplicitRange(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	start := Period{2025, 11}
	end := Period{2026, 2}
	res := mustResolve(t, Query{Start: &start, End: &end}, &stubProbe{}, now)
	want := []Period{{2025, 11}, {2025, 12}, {2026, 1}, {2026, 2}}
	if len(res.Periods) != len(want) {
		t.Fatalf("got %v, want %v", res.Periods, want)
	}
	for i, p := range want {
		if res.Periods[i] != p {
			t.Fatalf("period[%d] = %v, want %v", i, res.Periods[i], p)
		}
	}
}

func TestResolvePeriodsRangeInverted(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	start := Period{2026, 5}
	end := Period{2026, 1}
	_, err := ResolvePeriods(context.Background(), Query{Start: &start, End: &end}, &stubProbe{}, now)
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
}

func TestResolvePeriodsRangeHalfOpen(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	start := Period{2026, 5}
	_, err := ResolvePeriods(context.Background(), Query{Start: &start}, &stubProbe{}, now)
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
}

func TestResolvePeriodsYearsOnlyCoversTwelveMonths(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	res := mustResolve(t, Query{Years: []int{2026}}, &stubProbe{}, now)
	if len(res.Periods) != 12 {
		t.Fatalf("got %d periods, want 12", len(res.Periods))
	}
	if res.Periods[0] != (Period{2026, 1}) || res.Periods[11] != (Period{2026, 12}) {
		t.Fatalf("unexpected bounds: %v .. %v", res.Periods[0], res.Periods[11])
	}
}

func TestResolvePeriodsYearsTimesMonths(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	res := mustResolve(t, Query{Years: []int{2025, 2024}, Months: []int{3, 1}}, &stubProbe{}, now)
	want := []Period{{2024, 1}, {2024, 3}, {2025, 1}, {2025, 3}}
	for i, p := range want {
		if res.Periods[i] != p {
			t.Fatalf("period[%d] = %v, want %v", i, res.Periods[i], p)
		}
	}
}

func TestResolvePeriodsQuarterExpansion(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	res := mustResolve(t, Query{Years: []int{2025}, Quarters: []string{"q2"}}, &stubProbe{}, now)
	want := []Period{{2025, 4}, {2025, 5}, {2025, 6}}
	if len(res.Periods) != 3 {
		t.Fatalf("got %v", res.Periods)
	}
	for i, p := range want {
		if res.Periods[i] != p {
			t.Fatalf("period[%d] = %v, want %v", i, res.Periods[i], p)
		}
	}
}

func TestResolvePeriodsQuarterAndMonthsDeduplicate(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	res := mustResolve(t, Query{Years: []int{2025}, Quarters: []string{"Q1"}, Months: []int{2, 7}}, &stubProbe{}, now)
	want := []Period{{2025, 1}, {2025, 2}, {2025, 3}, {2025, 7}}
	if len(res.Periods) != len(want) {
		t.Fatalf("got %v, want %v", res.Periods, want)
	}
}

func TestResolvePeriodsMonthsOnlyDropsFuture(t *testing.T) {
	now := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	res := mustResolve(t, Query{Months: []int{3, 11}}, &stubProbe{}, now)
	if len(res.Periods) != 1 || res.Periods[0] != (Period{2026, 3}) {
		t.Fatalf("got %v", res.Periods)
	}
	if res.Notice == "" {
		t.Fatal("expected a future-month notice")
	}
}

func TestResolvePeriodsAllFutureMonthsFallBack(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	probe := &stubProbe{data: map[Period]bool{{2026, 3}: true}}
	res := mustResolve(t, Query{Months: []int{11, 12}}, probe, now)
	if len(res.Periods) != 1 || res.Periods[0] != (Period{2026, 3}) {
		t.Fatalf("got %v", res.Periods)
	}
	if !res.Fallback || res.Notice == "" {
		t.Fatalf("expected fallback with notice, got %+v", res)
	}
}

func TestResolvePeriodsDefaultWalksBack(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	probe := &stubProbe{data: map[Period]bool{{2026, 6}: true}}
	res := mustResolve(t, Query{}, probe, now)
	if len(res.Periods) != 1 || res.Periods[0] != (Period{2026, 6}) {
		t.Fatalf("got %v", res.Periods)
	}
	if !res.Fallback {
		t.Fatal("expected fallback resolution")
	}
}

func TestResolvePeriodsDefaultUsesLatestBeyondLookback(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	latest := Period{2024, 12}
	probe := &stubProbe{latest: &latest}
	res := mustResolve(t, Query{}, probe, now)
	if len(res.Periods) != 1 || res.Periods[0] != latest {
		t.Fatalf("got %v", res.Periods)
	}
}

func TestResolvePeriodsEmptyStore(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	res := mustResolve(t, Query{}, &stubProbe{}, now)
	if len(res.Periods) != 1 || res.Periods[0] != (Period{2026, 9}) {
		t.Fatalf("got %v", res.Periods)
	}
	if res.Notice == "" {
		t.Fatal("expected empty-store notice")
	}
}

func TestResolvePeriodsValidation(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		q    Query
		want error
	}{
		{Query{Years: []int{2031}}, ErrInvalidYear},
		{Query{Years: []int{0}}, ErrInvalidYear},
		{Query{Years: []int{-3}}, ErrInvalidYear},
		{Query{Months: []int{0}}, ErrInvalidMonth},
		{Query{Months: []int{13}}, ErrInvalidMonth},
		{Query{Quarters: []string{"Q5"}}, ErrInvalidQuarter},
	}
	for _, tc := range cases {
		_, err := ResolvePeriods(context.Background(), tc.q, &stubProbe{}, now)
		if !errors.Is(err, tc.want) {
			t.Fatalf("q=%+v err=%v, want %v", tc.q, err, tc.want)
		}
	}
}

func TestResolvePeriodsAcceptsPreMillenniumYears(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for _, y := range []int{1987, 1999} {
		res := mustResolve(t, Query{Years: []int{y}}, &stubProbe{}, now)
		if len(res.Periods) != 12 || res.Periods[0] != (Period{y, 1}) {
			t.Fatalf("year %d: got %v", y, res.Periods)
		}
	}
}
