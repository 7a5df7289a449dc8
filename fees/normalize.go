// Package fees implements the advisory fee rules: normalization across
// cadences, expected fee per period, payment variance and compliance.
//
// Every function here is a pure function of its inputs. Nothing is cached and
// nothing is persisted, so the same contract, period and AUM always produce the
// same result.
package fees

import (
	"github.com/shopspring/decimal"
	"github.com/warp/fee-engine/billing"
)

// =============================================================================
// FEE BUNDLE - A contract's fee at every cadence
// =============================================================================

// FeeBundle holds a contract's fee converted to monthly, quarterly and annual
// figures. A nil field means "N/A": rates are nil for flat-rate contracts,
// amounts are nil for percentage contracts without AUM.
type FeeBundle struct {
	MonthlyRate   *decimal.Decimal `json:"monthly_rate"`
	QuarterlyRate *decimal.Decimal `json:"quarterly_rate"`
	AnnualRate    *decimal.Decimal `json:"annual_rate"`

	MonthlyAmount   *decimal.Decimal `json:"monthly_amount"`
	QuarterlyAmount *decimal.Decimal `json:"quarterly_amount"`
	AnnualAmount    *decimal.Decimal `json:"annual_amount"`

	HasAUM     bool `json:"has_aum"`
	IsFlatRate bool `json:"is_flat_rate"`
}

// Rate returns the percentage rate at granularity g, or nil.
func (b FeeBundle) Rate(g billing.Granularity) *decimal.Decimal {
	switch g {
	case billing.PerMonth:
		return b.MonthlyRate
	case billing.PerQuarter:
		return b.QuarterlyRate
	case billing.PerYear:
		return b.AnnualRate
	}
	return nil
}

// Amount returns the dollar amount at granularity g, or nil.
func (b FeeBundle) Amount(g billing.Granularity) *decimal.Decimal {
	switch g {
	case billing.PerMonth:
		return b.MonthlyAmount
	case billing.PerQuarter:
		return b.QuarterlyAmount
	case billing.PerYear:
		return b.AnnualAmount
	}
	return nil
}

// Normalize converts the contract's native-frequency fee into every cadence.
//
//	native Monthly A:   monthly A,   quarterly 3A, annual 12A
//	native Quarterly A: monthly A/3, quarterly A,  annual 4A
//
// Percentage rates scale the same way. Dollar amounts for percentage contracts
// are derived from the native per-period amount (AUM * percent / 100) and are
// only present when aum is non-nil. A malformed contract yields an empty bundle.
func Normalize(c billing.Contract, aum *decimal.Decimal) FeeBundle {
	b := FeeBundle{HasAUM: aum != nil}
	if c.Frequency.PeriodsPerYear() == 0 {
		return b
	}

	switch t := c.Terms.(type) {
	case billing.FlatRate:
		b.IsFlatRate = true
		b.MonthlyAmount, b.QuarterlyAmount, b.AnnualAmount = scaleAll(t.Amount, c.Frequency)

	case billing.PercentageOfAUM:
		b.MonthlyRate, b.QuarterlyRate, b.AnnualRate = scaleAll(t.Percent, c.Frequency)
		if aum != nil {
			native := aum.Mul(t.Fraction())
			b.MonthlyAmount, b.QuarterlyAmount, b.AnnualAmount = scaleAll(native, c.Frequency)
		}
	}
	return b
}

func scaleAll(v decimal.Decimal, native billing.Frequency) (monthly, quarterly, annual *decimal.Decimal) {
	m, _ := Scale(v, native, billing.PerMonth)
	q, _ := Scale(v, native, billing.PerQuarter)
	a, _ := Scale(v, native, billing.PerYear)
	return &m, &q, &a
}

// Scale converts a per-period figure at the native frequency into the target
// granularity. Returns false for an unknown frequency or granularity.
func Scale(v decimal.Decimal, native billing.Frequency, target billing.Granularity) (decimal.Decimal, bool) {
	from, to := native.PeriodsPerYear(), target.PeriodsPerYear()
	if from == 0 || to == 0 {
		return decimal.Decimal{}, false
	}
	switch {
	case from == to:
		return v, true
	case from%to == 0:
		// Longer target period: multiply (monthly -> quarterly is x3).
		return v.Mul(decimal.NewFromInt(int64(from / to))), true
	case to%from == 0:
		// Shorter target period: divide (quarterly -> monthly is /3).
		return v.Div(decimal.NewFromInt(int64(to / from))), true
	default:
		return v.Mul(decimal.NewFromInt(int64(from))).Div(decimal.NewFromInt(int64(to))), true
	}
}
