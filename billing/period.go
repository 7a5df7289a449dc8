package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - The unit every fee is expressed against
// =============================================================================

// PeriodKind is the granularity of a billing period.
type PeriodKind string

const (
	KindMonth   PeriodKind = "month"
	KindQuarter PeriodKind = "quarter"
)

// UnitsPerYear returns how many periods of this kind fit in a year.
// Unknown kinds return 0.
func (k PeriodKind) UnitsPerYear() int {
	switch k {
	case KindMonth:
		return 12
	case KindQuarter:
		return 4
	default:
		return 0
	}
}

func (k PeriodKind) valid() bool { return k.UnitsPerYear() > 0 }

// KindFor returns the period kind matching a contract's native frequency.
func KindFor(f Frequency) PeriodKind {
	if f == Quarterly {
		return KindQuarter
	}
	return KindMonth
}

// Period is a month or quarter of a specific year.
// Periods are value objects: copy freely, never mutate.
//
// Examples:
//   - {KindMonth, 1, 2024}   January 2024
//   - {KindQuarter, 3, 2024} Q3 2024
type Period struct {
	Kind  PeriodKind
	Index int
	Year  int
}

// Month returns the monthly period for the given month and year.
func Month(m time.Month, year int) Period {
	return Period{Kind: KindMonth, Index: int(m), Year: year}
}

// Quarter returns the quarterly period for the given quarter (1-4) and year.
func Quarter(q, year int) Period {
	return Period{Kind: KindQuarter, Index: q, Year: year}
}

// Validate returns a *PeriodError if the kind is unknown or the index is
// outside [1, UnitsPerYear].
func (p Period) Validate() error {
	if !p.Kind.valid() {
		return &PeriodError{Period: p, Reason: "unknown period kind"}
	}
	if p.Index < 1 || p.Index > p.Kind.UnitsPerYear() {
		return &PeriodError{
			Period: p,
			Reason: fmt.Sprintf("index must be between 1 and %d", p.Kind.UnitsPerYear()),
		}
	}
	return nil
}

// Ordinal is the comparison key year*unitsPerYear + index.
func (p Period) Ordinal() (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return p.ordinal(), nil
}

func (p Period) ordinal() int { return p.Year*p.Kind.UnitsPerYear() + p.Index }

// fromOrdinal is the inverse of ordinal for a valid kind.
func fromOrdinal(kind PeriodKind, ord int) Period {
	n := kind.UnitsPerYear()
	year := ord / n
	index := ord % n
	if index == 0 {
		index = n
		year--
	}
	return Period{Kind: kind, Index: index, Year: year}
}

// Compare returns -1, 0 or +1. Both periods must be valid and of the same kind.
func (p Period) Compare(other Period) (int, error) {
	if err := sameKind(p, other); err != nil {
		return 0, err
	}
	a, b := p.ordinal(), other.ordinal()
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	default:
		return 0, nil
	}
}

// Before reports whether p sorts strictly before other.
// Invalid or mixed-kind periods are never before one another.
func (p Period) Before(other Period) bool {
	c, err := p.Compare(other)
	return err == nil && c < 0
}

// Next returns the period that follows p. Invalid periods are returned as is.
func (p Period) Next() Period {
	if p.Validate() != nil {
		return p
	}
	return fromOrdinal(p.Kind, p.ordinal()+1)
}

// Prev returns the period that precedes p. Invalid periods are returned as is.
func (p Period) Prev() Period {
	if p.Validate() != nil {
		return p
	}
	return fromOrdinal(p.Kind, p.ordinal()-1)
}

// StartDate returns the first calendar day of the period (UTC).
func (p Period) StartDate() time.Time {
	month := time.Month(p.Index)
	if p.Kind == KindQuarter {
		month = time.Month((p.Index-1)*3 + 1)
	}
	return time.Date(p.Year, month, 1, 0, 0, 0, 0, time.UTC)
}

// EndDate returns the last calendar day of the period (UTC).
func (p Period) EndDate() time.Time {
	months := 1
	if p.Kind == KindQuarter {
		months = 3
	}
	return p.StartDate().AddDate(0, months, -1)
}

// PeriodContaining returns the period of the given kind that contains date.
func PeriodContaining(date time.Time, kind PeriodKind) Period {
	if kind == KindQuarter {
		return Quarter((int(date.Month())-1)/3+1, date.Year())
	}
	return Month(date.Month(), date.Year())
}

// =============================================================================
// SPANS - Contiguous ranges used by split payments
// =============================================================================

// CountSpan returns the number of periods in [start, end], inclusive.
// A single-period span counts 1. Fails with *RangeError when end precedes start.
func CountSpan(start, end Period) (int, error) {
	if err := sameKind(start, end); err != nil {
		return 0, err
	}
	n := end.ordinal() - start.ordinal() + 1
	if n < 1 {
		return 0, &RangeError{Start: start, End: end}
	}
	return n, nil
}

// Range expands [start, end] into its periods in ascending order.
func Range(start, end Period) ([]Period, error) {
	n, err := CountSpan(start, end)
	if err != nil {
		return nil, err
	}
	out := make([]Period, 0, n)
	for p := start; len(out) < n; p = p.Next() {
		out = append(out, p)
	}
	return out, nil
}

func sameKind(a, b Period) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if a.Kind != b.Kind {
		return &PeriodError{Period: b, Reason: fmt.Sprintf("kind %s does not match %s", b.Kind, a.Kind)}
	}
	return nil
}

// =============================================================================
// FORMATTING & PARSING
// =============================================================================

// Label returns the display form: "Q1 2024" or "January 2024".
func (p Period) Label() string {
	if err := p.Validate(); err != nil {
		if p.Kind == KindQuarter {
			return fmt.Sprintf("Invalid Quarter (%d) %d", p.Index, p.Year)
		}
		return fmt.Sprintf("Invalid Month (%d) %d", p.Index, p.Year)
	}
	if p.Kind == KindQuarter {
		return fmt.Sprintf("Q%d %d", p.Index, p.Year)
	}
	return fmt.Sprintf("%s %d", time.Month(p.Index), p.Year)
}

func (p Period) String() string { return p.Label() }

// RangeLabel formats an applied range: a single label when start == end,
// otherwise "start - end".
func RangeLabel(start, end Period) string {
	if start == end {
		return start.Label()
	}
	return start.Label() + " - " + end.Label()
}

// Key returns the wire form "<index>-<year>". The kind travels separately.
func (p Period) Key() string {
	return strconv.Itoa(p.Index) + "-" + strconv.Itoa(p.Year)
}

// ParsePeriod parses the "<index>-<year>" wire form for the given kind.
// Malformed input yields a *ParseError; an out-of-range index yields a
// *PeriodError.
func ParsePeriod(s string, kind PeriodKind) (Period, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return Period{}, &ParseError{Input: s, Reason: `expected "<index>-<year>"`}
	}
	index, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, &ParseError{Input: s, Reason: "index is not an integer"}
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, &ParseError{Input: s, Reason: "year is not an integer"}
	}
	p := Period{Kind: kind, Index: index, Year: year}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// =============================================================================
// AVAILABLE PERIODS - What a payment may be applied to
// =============================================================================

// AvailablePeriods lists the periods a payment can be applied to, newest first.
//
// Fees are billed in arrears, so the list runs from the period containing
// contractStart through the period before the one containing now. When that
// range is empty (contract started this period) the current period is returned
// on its own. A zero contractStart means the beginning of now's year.
func AvailablePeriods(contractStart time.Time, kind PeriodKind, now time.Time) []Period {
	if contractStart.IsZero() {
		contractStart = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	current := PeriodContaining(now, kind)
	first := PeriodContaining(contractStart, kind)
	last := current.Prev()

	if last.ordinal() < first.ordinal() {
		return []Period{current}
	}

	out := make([]Period, 0, last.ordinal()-first.ordinal()+1)
	for p := last; p.ordinal() >= first.ordinal(); p = p.Prev() {
		out = append(out, p)
	}
	return out
}
