package payments

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fee-engine/billing"
)

// =============================================================================
// METRICS - Dashboard figures derived from payment history
// =============================================================================

// Metrics summarizes the Active payments of one contract. Nothing here is
// stored; it is recomputed from history on every read.
type Metrics struct {
	PaymentCount int

	LastPaymentDate   *time.Time
	LastPaymentAmount *decimal.Decimal
	LastPaymentPeriod string // range label of the latest payment

	// TotalYTD sums payments received in the calendar year of now.
	TotalYTD decimal.Decimal

	// AveragePerPeriod is the total received divided by the number of
	// periods those payments cover. Nil without payments.
	AveragePerPeriod *decimal.Decimal

	// LastRecordedAssets is the AUM recorded with the most recent payment
	// that carries one.
	LastRecordedAssets *decimal.Decimal
}

// Summarize computes Metrics over the Active payments in ps. A payment whose
// period range is invalid counts as one period.
func Summarize(ps []Payment, now time.Time) Metrics {
	active := activeNewestFirst(ps)
	m := Metrics{PaymentCount: len(active)}
	if len(active) == 0 {
		return m
	}

	last := active[0]
	date, amount := last.ReceivedDate, last.ActualFee
	m.LastPaymentDate = &date
	m.LastPaymentAmount = &amount
	m.LastPaymentPeriod = billing.RangeLabel(last.Start, last.End)

	total := decimal.Zero
	periods := 0
	for _, p := range active {
		total = total.Add(p.ActualFee)
		if applied, err := p.AppliedPeriods(); err == nil {
			periods += len(applied)
		} else {
			periods++
		}
		if p.ReceivedDate.Year() == now.Year() {
			m.TotalYTD = m.TotalYTD.Add(p.ActualFee)
		}
		if m.LastRecordedAssets == nil && p.TotalAssets != nil {
			v := *p.TotalAssets
			m.LastRecordedAssets = &v
		}
	}
	avg := total.Div(decimal.NewFromInt(int64(periods))).Round(2)
	m.AveragePerPeriod = &avg
	return m
}
