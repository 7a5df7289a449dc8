package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fee-engine/billing"
)

// =============================================================================
// ORDINAL
// =============================================================================

func TestOrdinal_StrictlyMonotonicWithinKind(t *testing.T) {
	for _, kind := range []billing.PeriodKind{billing.KindMonth, billing.KindQuarter} {
		prev := -1
		for year := 2022; year <= 2025; year++ {
			for idx := 1; idx <= kind.UnitsPerYear(); idx++ {
				ord, err := billing.Period{Kind: kind, Index: idx, Year: year}.Ordinal()
				require.NoError(t, err)
				assert.Greater(t, ord, prev, "%s %d-%d", kind, idx, year)
				prev = ord
			}
		}
	}
}

func TestOrdinal_Formula(t *testing.T) {
	ord, err := billing.Quarter(3, 2024).Ordinal()
	require.NoError(t, err)
	assert.Equal(t, 2024*4+3, ord)

	ord, err = billing.Month(time.November, 2024).Ordinal()
	require.NoError(t, err)
	assert.Equal(t, 2024*12+11, ord)
}

func TestOrdinal_OutOfRangeIndex_InvalidPeriod(t *testing.T) {
	cases := []billing.Period{
		{Kind: billing.KindMonth, Index: 0, Year: 2024},
		{Kind: billing.KindMonth, Index: 13, Year: 2024},
		{Kind: billing.KindQuarter, Index: 5, Year: 2024},
		{Kind: "week", Index: 1, Year: 2024},
	}
	for _, p := range cases {
		_, err := p.Ordinal()
		assert.ErrorIs(t, err, billing.ErrInvalidPeriod, "%+v", p)
		var pe *billing.PeriodError
		assert.ErrorAs(t, err, &pe)
	}
}

// =============================================================================
// SPANS
// =============================================================================

func TestCountSpan_SinglePeriodIsOne(t *testing.T) {
	for _, p := range []billing.Period{billing.Quarter(1, 2024), billing.Month(time.December, 2023)} {
		n, err := billing.CountSpan(p, p)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
}

func TestCountSpan_AcrossYearBoundary(t *testing.T) {
	n, err := billing.CountSpan(billing.Quarter(3, 2023), billing.Quarter(2, 2024))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = billing.CountSpan(billing.Month(time.November, 2023), billing.Month(time.February, 2024))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestCountSpan_EndBeforeStart_InvalidRange(t *testing.T) {
	// GIVEN: a split range whose end precedes its start
	// WHEN: counting it
	// THEN: InvalidRange, carrying both ends
	start, end := billing.Quarter(2, 2024), billing.Quarter(1, 2024)

	_, err := billing.CountSpan(start, end)

	require.ErrorIs(t, err, billing.ErrInvalidRange)
	var re *billing.RangeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, start, re.Start)
	assert.Equal(t, end, re.End)
}

func TestCountSpan_MixedKinds_InvalidPeriod(t *testing.T) {
	_, err := billing.CountSpan(billing.Quarter(1, 2024), billing.Month(time.March, 2024))
	assert.ErrorIs(t, err, billing.ErrInvalidPeriod)
}

func TestRange_ExpandsAscending(t *testing.T) {
	got, err := billing.Range(billing.Quarter(4, 2023), billing.Quarter(2, 2024))
	require.NoError(t, err)
	assert.Equal(t, []billing.Period{
		billing.Quarter(4, 2023),
		billing.Quarter(1, 2024),
		billing.Quarter(2, 2024),
	}, got)
}

func TestNextPrev_WrapYears(t *testing.T) {
	assert.Equal(t, billing.Month(time.January, 2025), billing.Month(time.December, 2024).Next())
	assert.Equal(t, billing.Quarter(4, 2023), billing.Quarter(1, 2024).Prev())
}

// =============================================================================
// FORMATTING & PARSING
// =============================================================================

func TestLabel(t *testing.T) {
	assert.Equal(t, "Q1 2024", billing.Quarter(1, 2024).Label())
	assert.Equal(t, "January 2024", billing.Month(time.January, 2024).Label())
	assert.Equal(t, "Invalid Quarter (7) 2024", billing.Quarter(7, 2024).Label())
}

func TestRangeLabel(t *testing.T) {
	q1, q2 := billing.Quarter(1, 2024), billing.Quarter(2, 2024)
	assert.Equal(t, "Q1 2024", billing.RangeLabel(q1, q1))
	assert.Equal(t, "Q1 2024 - Q2 2024", billing.RangeLabel(q1, q2))
}

func TestParsePeriod_RoundTrip(t *testing.T) {
	for _, p := range []billing.Period{billing.Quarter(4, 2023), billing.Month(time.July, 2025)} {
		got, err := billing.ParsePeriod(p.Key(), p.Kind)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	assert.Equal(t, "3-2024", billing.Quarter(3, 2024).Key())
}

func TestParsePeriod_Malformed_ParseError(t *testing.T) {
	for _, in := range []string{"", "3", "Q3-2024", "3-twenty", "1-2-2024"} {
		_, err := billing.ParsePeriod(in, billing.KindQuarter)
		assert.ErrorIs(t, err, billing.ErrParse, "input %q", in)
		// Upstream treats a parse failure as an invalid period.
		assert.ErrorIs(t, err, billing.ErrInvalidPeriod, "input %q", in)
	}
}

func TestParsePeriod_OutOfRange_InvalidPeriod(t *testing.T) {
	_, err := billing.ParsePeriod("5-2024", billing.KindQuarter)
	assert.ErrorIs(t, err, billing.ErrInvalidPeriod)
	assert.NotErrorIs(t, err, billing.ErrParse)
}

// =============================================================================
// DATES & AVAILABLE PERIODS
// =============================================================================

func TestPeriodDates(t *testing.T) {
	q := billing.Quarter(2, 2024)
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), q.StartDate())
	assert.Equal(t, time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC), q.EndDate())

	m := billing.Month(time.February, 2024)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), m.EndDate())
}

func TestPeriodContaining(t *testing.T) {
	d := time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, billing.Quarter(3, 2024), billing.PeriodContaining(d, billing.KindQuarter))
	assert.Equal(t, billing.Month(time.August, 2024), billing.PeriodContaining(d, billing.KindMonth))
}

func TestAvailablePeriods_ArrearsNewestFirst(t *testing.T) {
	// GIVEN: a quarterly contract started in Feb 2024, today is 2024-11-05 (Q4)
	// THEN: Q3, Q2, Q1 2024 are billable, newest first; Q4 is not yet
	start := time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, time.November, 5, 0, 0, 0, 0, time.UTC)

	got := billing.AvailablePeriods(start, billing.KindQuarter, now)

	assert.Equal(t, []billing.Period{
		billing.Quarter(3, 2024),
		billing.Quarter(2, 2024),
		billing.Quarter(1, 2024),
	}, got)
}

func TestAvailablePeriods_MonthlyAcrossYear(t *testing.T) {
	start := time.Date(2023, time.November, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, time.February, 3, 0, 0, 0, 0, time.UTC)

	got := billing.AvailablePeriods(start, billing.KindMonth, now)

	assert.Equal(t, []billing.Period{
		billing.Month(time.January, 2024),
		billing.Month(time.December, 2023),
		billing.Month(time.November, 2023),
	}, got)
}

func TestAvailablePeriods_StartedThisPeriod_FallsBackToCurrent(t *testing.T) {
	start := time.Date(2024, time.October, 2, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, time.November, 5, 0, 0, 0, 0, time.UTC)

	got := billing.AvailablePeriods(start, billing.KindQuarter, now)

	assert.Equal(t, []billing.Period{billing.Quarter(4, 2024)}, got)
}
