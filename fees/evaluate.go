package fees

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/warp/fee-engine/billing"
)

// =============================================================================
// EVALUATION - Everything a payment history row shows
// =============================================================================

// Applied is the payment-shaped input to Evaluate.
type Applied struct {
	Start       billing.Period
	End         billing.Period
	ActualFee   decimal.Decimal
	TotalAssets *decimal.Decimal // AUM recorded with the payment, optional
}

// Evaluation is recomputed on every read from current contract terms.
type Evaluation struct {
	PeriodLabel     string
	Periods         int
	IsSplit         bool
	Expected        *ExpectedFee // nil when rate data is missing
	Variance        Variance
	AmountPerPeriod decimal.Decimal
}

// Evaluate computes expected fee, variance and per-period allocation for a
// payment. Missing rate data degrades to a nil Expected and BandUnknown; only
// invalid periods or ranges return an error.
func Evaluate(c billing.Contract, a Applied) (Evaluation, error) {
	n, err := billing.CountSpan(a.Start, a.End)
	if err != nil {
		return Evaluation{}, err
	}
	perPeriod, err := Allocate(a.ActualFee, n)
	if err != nil {
		return Evaluation{}, err
	}

	ev := Evaluation{
		PeriodLabel:     billing.RangeLabel(a.Start, a.End),
		Periods:         n,
		IsSplit:         n > 1,
		AmountPerPeriod: perPeriod,
	}

	exp, err := ExpectedForRange(c, a.Start, a.End, ResolveAUM(a.TotalAssets, c.AUM))
	switch {
	case err == nil:
		ev.Expected = &exp
		ev.Variance = Reconcile(a.ActualFee, &exp.Amount)
	case errors.Is(err, billing.ErrMissingRateData):
		ev.Variance = Reconcile(a.ActualFee, nil)
	default:
		return Evaluation{}, err
	}
	return ev, nil
}
