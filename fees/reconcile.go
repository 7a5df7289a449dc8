package fees

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VARIANCE BANDS
// =============================================================================

// Band classifies how far an actual payment is from its expected fee.
type Band string

const (
	BandExactMatch  Band = "exact_match"
	BandAcceptable  Band = "acceptable"  // within 5%
	BandBorderline  Band = "borderline"  // over 5%, within 15%
	BandSignificant Band = "significant" // over 15%
	BandUnknown     Band = "unknown"     // no usable expected fee
)

// Label is the display text for the band.
func (b Band) Label() string {
	switch b {
	case BandExactMatch:
		return "Exact match"
	case BandAcceptable:
		return "Acceptable"
	case BandBorderline:
		return "Borderline"
	case BandSignificant:
		return "Significant variance"
	default:
		return "Cannot calculate"
	}
}

// Inclusive upper bounds, in percent.
var (
	AcceptablePercent = decimal.NewFromInt(5)
	BorderlinePercent = decimal.NewFromInt(15)
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// RECONCILE
// =============================================================================

// Variance is the outcome of comparing an actual payment to its expected fee.
// Difference is signed (actual - expected); PercentDiff is absolute.
type Variance struct {
	Band        Band             `json:"band"`
	Difference  *decimal.Decimal `json:"difference"`
	PercentDiff *decimal.Decimal `json:"percent_diff"`
}

// Reconcile classifies actual against expected. A nil or zero expected fee
// yields BandUnknown. The result is for display and never blocks anything.
func Reconcile(actual decimal.Decimal, expected *decimal.Decimal) Variance {
	if expected == nil {
		return Variance{Band: BandUnknown}
	}
	diff := actual.Sub(*expected)
	if expected.IsZero() {
		return Variance{Band: BandUnknown, Difference: &diff}
	}

	pct := diff.Abs().Div(expected.Abs()).Mul(hundred)
	v := Variance{Difference: &diff, PercentDiff: &pct}
	switch {
	case diff.IsZero():
		v.Band = BandExactMatch
	case pct.LessThanOrEqual(AcceptablePercent):
		v.Band = BandAcceptable
	case pct.LessThanOrEqual(BorderlinePercent):
		v.Band = BandBorderline
	default:
		v.Band = BandSignificant
	}
	return v
}

// =============================================================================
// LARGE VARIANCE GUARD - Soft gate before creating a payment
// =============================================================================

// LargeChangeRatio is the fractional change from the previous payment above
// which a new payment needs explicit confirmation.
var LargeChangeRatio = decimal.RequireFromString("0.5")

// ErrLargeVariance is the sentinel behind LargeVarianceError.
var ErrLargeVariance = errors.New("payment differs significantly from previous payment")

// LargeVarianceError asks the caller to confirm an unusual amount. It is a
// prompt, not a failure: resubmitting with confirmation proceeds.
type LargeVarianceError struct {
	Amount   decimal.Decimal
	Previous decimal.Decimal
	Change   decimal.Decimal // fractional, 0.6 = 60%
}

func (e *LargeVarianceError) Error() string {
	return fmt.Sprintf(
		"this payment amount (%s) is significantly different (%s%% change) from the previous payment (%s)",
		FormatMoney(e.Amount), e.Change.Mul(hundred).StringFixed(0), FormatMoney(e.Previous))
}

func (e *LargeVarianceError) Unwrap() error { return ErrLargeVariance }

// CheckLargeVariance returns a *LargeVarianceError when amount differs from
// previous by more than LargeChangeRatio. A nil or non-positive previous
// amount never triggers the guard.
func CheckLargeVariance(amount decimal.Decimal, previous *decimal.Decimal) error {
	if previous == nil || !previous.IsPositive() {
		return nil
	}
	change := amount.Sub(*previous).Abs().Div(*previous)
	if change.GreaterThan(LargeChangeRatio) {
		return &LargeVarianceError{Amount: amount, Previous: *previous, Change: change}
	}
	return nil
}
