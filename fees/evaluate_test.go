package fees_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fee-engine/billing"
	"github.com/warp/fee-engine/fees"
)

func TestEvaluate_SplitPayment(t *testing.T) {
	// GIVEN: $2,500/quarter flat contract, one $10,000 payment for all of 2024
	// THEN: expected $10,000 for the range, $2,500 allocated per quarter
	c := flatContract("2500", billing.Quarterly)

	ev, err := fees.Evaluate(c, fees.Applied{
		Start:     billing.Quarter(1, 2024),
		End:       billing.Quarter(4, 2024),
		ActualFee: dec("10000"),
	})

	require.NoError(t, err)
	assert.True(t, ev.IsSplit)
	assert.Equal(t, 4, ev.Periods)
	assert.Equal(t, "Q1 2024 - Q4 2024", ev.PeriodLabel)
	assert.True(t, dec("2500").Equal(ev.AmountPerPeriod))
	require.NotNil(t, ev.Expected)
	assert.True(t, dec("10000").Equal(ev.Expected.Amount))
	assert.Equal(t, fees.BandExactMatch, ev.Variance.Band)
}

func TestEvaluate_ExpectedAndAllocationAreDistinct(t *testing.T) {
	c := flatContract("2000", billing.Quarterly)

	ev, err := fees.Evaluate(c, fees.Applied{
		Start:     billing.Quarter(1, 2024),
		End:       billing.Quarter(2, 2024),
		ActualFee: dec("4400"),
	})

	require.NoError(t, err)
	assert.True(t, dec("4000").Equal(ev.Expected.Amount))
	assert.True(t, dec("2200").Equal(ev.AmountPerPeriod))
	assert.Equal(t, fees.BandBorderline, ev.Variance.Band)
}

func TestEvaluate_PaymentAUMOverridesContractAUM(t *testing.T) {
	c := pctContract("0.5", billing.Monthly)
	c.AUM = decPtr("200000")

	ev, err := fees.Evaluate(c, fees.Applied{
		Start:       billing.Month(time.April, 2024),
		End:         billing.Month(time.April, 2024),
		ActualFee:   dec("500"),
		TotalAssets: decPtr("100000"),
	})

	require.NoError(t, err)
	assert.True(t, dec("500").Equal(ev.Expected.Amount))
	assert.Equal(t, fees.BandExactMatch, ev.Variance.Band)
}

func TestEvaluate_MissingAUM_DegradesToUnknown(t *testing.T) {
	c := pctContract("0.5", billing.Monthly)

	ev, err := fees.Evaluate(c, fees.Applied{
		Start:     billing.Month(time.April, 2024),
		End:       billing.Month(time.April, 2024),
		ActualFee: dec("500"),
	})

	require.NoError(t, err)
	assert.Nil(t, ev.Expected)
	assert.Equal(t, fees.BandUnknown, ev.Variance.Band)
	assert.True(t, dec("500").Equal(ev.AmountPerPeriod))
}

func TestEvaluate_InvertedRange_Error(t *testing.T) {
	c := flatContract("2000", billing.Quarterly)

	_, err := fees.Evaluate(c, fees.Applied{
		Start:     billing.Quarter(2, 2024),
		End:       billing.Quarter(1, 2024),
		ActualFee: dec("1"),
	})

	assert.ErrorIs(t, err, billing.ErrInvalidRange)
}
