package fees

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/warp/fee-engine/billing"
)

// =============================================================================
// EXPECTED FEE - What the contract says is owed for a period
// =============================================================================

// ExpectedFee is the fee a contract implies for one period or a contiguous
// range of periods. It is derived on demand and never stored, so a retroactive
// change of contract terms is always reflected.
type ExpectedFee struct {
	Amount    decimal.Decimal      // total across all periods
	PerPeriod decimal.Decimal      // fee for a single native period
	Periods   int                  // number of periods covered
	Structure billing.FeeStructure // which fee terms produced it
	Method    string               // human description of the calculation
}

// ExpectedFor returns the expected fee for a single period.
//
// Flat rate: the stored amount, which already covers one native period.
// Percentage: aum * percent / 100, applied directly per period. The stored
// percentage is already per native period, so there is no annualization.
//
// The period must be in the contract's native kind. Returns ErrMissingRateData
// when no dollar figure can be derived.
func ExpectedFor(c billing.Contract, p billing.Period, aum *decimal.Decimal) (ExpectedFee, error) {
	return ExpectedForRange(c, p, p, aum)
}

// ExpectedForRange returns the expected fee for [start, end]: the per-period
// fee times the number of periods.
func ExpectedForRange(c billing.Contract, start, end billing.Period, aum *decimal.Decimal) (ExpectedFee, error) {
	if err := checkNativeKind(c, start); err != nil {
		return ExpectedFee{}, err
	}
	if err := checkNativeKind(c, end); err != nil {
		return ExpectedFee{}, err
	}
	n, err := billing.CountSpan(start, end)
	if err != nil {
		return ExpectedFee{}, err
	}

	per, method, err := perPeriodFee(c, aum)
	if err != nil {
		return ExpectedFee{}, err
	}
	return ExpectedFee{
		Amount:    per.Mul(decimal.NewFromInt(int64(n))),
		PerPeriod: per,
		Periods:   n,
		Structure: c.Terms.Structure(),
		Method:    method,
	}, nil
}

func perPeriodFee(c billing.Contract, aum *decimal.Decimal) (decimal.Decimal, string, error) {
	switch t := c.Terms.(type) {
	case billing.FlatRate:
		return t.Amount, fmt.Sprintf("Flat fee (%s): %s", c.Frequency, FormatMoney(t.Amount)), nil

	case billing.PercentageOfAUM:
		if aum == nil {
			return decimal.Decimal{}, "", fmt.Errorf("%w: percentage fee requires assets under management", billing.ErrMissingRateData)
		}
		method := fmt.Sprintf("%s%% of %s", t.Percent.StringFixed(3), FormatMoney(*aum))
		return aum.Mul(t.Fraction()), method, nil

	default:
		return decimal.Decimal{}, "", fmt.Errorf("%w: %w", billing.ErrMissingRateData, billing.ErrMissingFeeTerms)
	}
}

func checkNativeKind(c billing.Contract, p billing.Period) error {
	if c.Frequency.PeriodsPerYear() == 0 {
		return fmt.Errorf("%w: unknown payment frequency %q", billing.ErrInvalidContract, c.Frequency)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if want := c.PeriodKind(); p.Kind != want {
		return &billing.PeriodError{
			Period: p,
			Reason: fmt.Sprintf("contract bills %s, period is a %s", c.Frequency, p.Kind),
		}
	}
	return nil
}

// =============================================================================
// ALLOCATION & AUM RESOLUTION
// =============================================================================

// Allocate spreads an actual payment evenly across n periods for display.
// This is the actual-per-period figure and is unrelated to the expected fee.
func Allocate(actual decimal.Decimal, n int) (decimal.Decimal, error) {
	if n < 1 {
		return decimal.Decimal{}, fmt.Errorf("%w: cannot allocate across %d periods", billing.ErrInvalidRange, n)
	}
	return actual.Div(decimal.NewFromInt(int64(n))), nil
}

// ResolveAUM picks the AUM figure for a calculation. AUM recorded with the
// payment takes precedence over the contract-level figure.
func ResolveAUM(paymentAUM, contractAUM *decimal.Decimal) *decimal.Decimal {
	if paymentAUM != nil {
		return paymentAUM
	}
	return contractAUM
}

// FormatMoney renders an amount as US dollars, e.g. "$1,963.34". The amount
// is rounded to cents before the sign is taken, so -0.001 is "$0.00".
func FormatMoney(d decimal.Decimal) string {
	r := d.Round(2)
	sign := ""
	if r.IsNegative() {
		sign = "-"
		r = r.Abs()
	}
	fixed := r.StringFixed(2)
	cents := fixed[strings.IndexByte(fixed, '.'):]
	return sign + "$" + humanize.BigComma(r.Truncate(0).BigInt()) + cents
}
