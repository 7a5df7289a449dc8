package payments_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fee-engine/billing"
	"github.com/warp/fee-engine/fees"
	"github.com/warp/fee-engine/payments"
	"github.com/warp/fee-engine/payments/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var q = billing.Quarter

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type contractBook map[billing.ContractID]billing.Contract

func (b contractBook) Contract(_ context.Context, clientID billing.ClientID, id billing.ContractID) (billing.Contract, error) {
	c, ok := b[id]
	if !ok {
		return billing.Contract{}, fmt.Errorf("contract %s: %w", id, billing.ErrNotFound)
	}
	if err := c.CheckOwnership(clientID); err != nil {
		return billing.Contract{}, err
	}
	return c, nil
}

type fixedAUM struct{ v *decimal.Decimal }

func (f fixedAUM) LatestAUM(context.Context, billing.ClientID, billing.ContractID) (*decimal.Decimal, error) {
	return f.v, nil
}

func testContracts() contractBook {
	return contractBook{
		"ctr-flat": {
			ID:        "ctr-flat",
			ClientID:  "cl-1",
			StartDate: day(2023, time.July, 1),
			Terms:     billing.FlatRate{Amount: dec("2500")},
			Frequency: billing.Quarterly,
		},
		"ctr-pct": {
			ID:        "ctr-pct",
			ClientID:  "cl-2",
			StartDate: day(2024, time.January, 10),
			Terms:     billing.PercentageOfAUM{Percent: dec("0.5")},
			Frequency: billing.Monthly,
		},
	}
}

func newService(t *testing.T) (*payments.Service, *store.TxMemory) {
	t.Helper()
	st := store.NewTxMemory()
	svc := payments.NewService(st, testContracts())
	svc.Now = func() time.Time { return testNow }
	n := 0
	svc.NewID = func() billing.PaymentID {
		n++
		return billing.PaymentID(fmt.Sprintf("pay-%d", n))
	}
	return svc, st
}

func flatDraft(amount string, received time.Time, start, end billing.Period) payments.Draft {
	return payments.Draft{
		ClientID:     "cl-1",
		ContractID:   "ctr-flat",
		ReceivedDate: received,
		ActualFee:    dec(amount),
		Method:       "check",
		Start:        start,
		End:          end,
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_RecordsActivePayment(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	p, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), payments.SubmitOptions{})

	require.NoError(t, err)
	assert.Equal(t, payments.StatusActive, p.Status)
	assert.Equal(t, billing.PaymentID("pay-1"), p.ID)

	stored, err := st.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusActive, stored.Status)
}

func TestSubmit_OwnershipMismatch_NothingRecorded(t *testing.T) {
	// GIVEN: a draft naming cl-2 against cl-1's contract
	svc, st := newService(t)
	ctx := context.Background()
	d := flatDraft("2500", day(2024, time.April, 5), q(1, 2024), q(1, 2024))
	d.ClientID = "cl-2"

	p, err := svc.Submit(ctx, d, payments.SubmitOptions{})

	// THEN: typed mismatch, no payment
	assert.Nil(t, p)
	require.ErrorIs(t, err, billing.ErrOwnershipMismatch)
	var om *billing.OwnershipMismatchError
	require.ErrorAs(t, err, &om)
	assert.Equal(t, billing.ClientID("cl-1"), om.OwnerID)

	list, _ := st.List(ctx, "ctr-flat")
	assert.Empty(t, list)
}

func TestSubmit_UnknownContract_NotFound(t *testing.T) {
	svc, _ := newService(t)
	d := flatDraft("2500", day(2024, time.April, 5), q(1, 2024), q(1, 2024))
	d.ContractID = "ctr-missing"

	_, err := svc.Submit(context.Background(), d, payments.SubmitOptions{})

	assert.True(t, billing.IsNotFound(err))
}

func TestSubmit_ValidationFailures_Rejected(t *testing.T) {
	future := testNow.Add(24 * time.Hour)
	cases := []struct {
		name  string
		draft payments.Draft
		want  error
	}{
		{"inverted range", flatDraft("2500", day(2024, time.April, 5), q(3, 2024), q(1, 2024)), billing.ErrInvalidRange},
		{"zero fee", flatDraft("0", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), billing.ErrInvalidPayment},
		{"negative fee", flatDraft("-10", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), billing.ErrInvalidPayment},
		{"future date", flatDraft("2500", future, q(1, 2024), q(1, 2024)), billing.ErrInvalidPayment},
		{"missing date", flatDraft("2500", time.Time{}, q(1, 2024), q(1, 2024)), billing.ErrInvalidPayment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, st := newService(t)

			p, err := svc.Submit(context.Background(), tc.draft, payments.SubmitOptions{})

			assert.ErrorIs(t, err, tc.want)
			assert.True(t, billing.IsValidation(err))
			require.NotNil(t, p)
			assert.Equal(t, payments.StatusRejected, p.Status)

			list, _ := st.List(context.Background(), "ctr-flat")
			assert.Empty(t, list)
		})
	}
}

func TestSubmit_PeriodOutsideNativeKind_InvalidPeriod(t *testing.T) {
	svc, _ := newService(t)
	d := flatDraft("2500", day(2024, time.April, 5), q(1, 2024), q(1, 2024))
	d.Start = billing.Month(time.January, 2024)
	d.End = billing.Month(time.March, 2024)

	p, err := svc.Submit(context.Background(), d, payments.SubmitOptions{})

	assert.ErrorIs(t, err, billing.ErrInvalidPeriod)
	assert.Equal(t, payments.StatusRejected, p.Status)
}

// =============================================================================
// LARGE VARIANCE GUARD
// =============================================================================

func TestSubmit_LargeVariance_NeedsConfirmation(t *testing.T) {
	// GIVEN: a previous payment of $2,500
	svc, st := newService(t)
	ctx := context.Background()
	_, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.January, 5), q(4, 2023), q(4, 2023)), payments.SubmitOptions{})
	require.NoError(t, err)

	// WHEN: the next payment is $1,000 (60% lower)
	d := flatDraft("1000", day(2024, time.April, 5), q(1, 2024), q(1, 2024))
	p, err := svc.Submit(ctx, d, payments.SubmitOptions{})

	// THEN: a confirmation prompt, nothing recorded
	require.ErrorIs(t, err, fees.ErrLargeVariance)
	assert.False(t, billing.IsValidation(err))
	assert.Equal(t, payments.StatusSubmitted, p.Status)
	list, _ := st.List(ctx, "ctr-flat")
	assert.Len(t, list, 1)

	// WHEN: resubmitted with confirmation
	p, err = svc.Submit(ctx, d, payments.SubmitOptions{Confirmed: true})

	// THEN: recorded
	require.NoError(t, err)
	assert.Equal(t, payments.StatusActive, p.Status)
	list, _ = st.List(ctx, "ctr-flat")
	assert.Len(t, list, 2)
}

func TestSubmit_SmallChange_NoPrompt(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.January, 5), q(4, 2023), q(4, 2023)), payments.SubmitOptions{})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, flatDraft("2600", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), payments.SubmitOptions{})

	assert.NoError(t, err)
}

// =============================================================================
// UPDATE, REPLACE, DELETE
// =============================================================================

func TestUpdate_NonPeriodFields(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), payments.SubmitOptions{})
	require.NoError(t, err)

	// A large change on edit is not gated.
	notes := "corrected amount"
	updated, err := svc.Update(ctx, "cl-1", p.ID, payments.Update{ActualFee: decPtr("500"), Notes: &notes})

	require.NoError(t, err)
	assert.True(t, dec("500").Equal(updated.ActualFee))
	assert.Equal(t, "corrected amount", updated.Notes)
	assert.Equal(t, p.Start, updated.Start)
	assert.Equal(t, p.End, updated.End)
}

func TestUpdate_InvalidAmount(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), payments.SubmitOptions{})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "cl-1", p.ID, payments.Update{ActualFee: decPtr("0")})

	assert.ErrorIs(t, err, billing.ErrInvalidPayment)
}

func TestUpdate_OtherClient_OwnershipMismatch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), payments.SubmitOptions{})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "cl-2", p.ID, payments.Update{})

	assert.ErrorIs(t, err, billing.ErrOwnershipMismatch)
}

func TestReplacePeriods_DeletesAndRecreates(t *testing.T) {
	// GIVEN: a single-quarter payment
	svc, st := newService(t)
	ctx := context.Background()
	old, err := svc.Submit(ctx, flatDraft("5000", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), payments.SubmitOptions{})
	require.NoError(t, err)

	// WHEN: switched to a split payment over Q1-Q2
	next, err := svc.ReplacePeriods(ctx, "cl-1", old.ID, flatDraft("5000", day(2024, time.April, 5), q(1, 2024), q(2, 2024)))

	// THEN: old is Deleted, new is Active with a new ID
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, next.ID)
	assert.True(t, next.IsSplit())

	stale, err := st.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusDeleted, stale.Status)

	history, err := svc.History(ctx, "cl-1", "ctr-flat")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, next.ID, history[0].Payment.ID)
	assert.Equal(t, 2, history[0].Evaluation.Periods)
}

func TestReplacePeriods_FailureRollsBack(t *testing.T) {
	// GIVEN: the replacement would collide with an existing payment ID
	svc, st := newService(t)
	ctx := context.Background()
	old, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), payments.SubmitOptions{})
	require.NoError(t, err)
	svc.NewID = func() billing.PaymentID { return old.ID }

	// WHEN
	_, err = svc.ReplacePeriods(ctx, "cl-1", old.ID, flatDraft("2500", day(2024, time.April, 5), q(2, 2024), q(2, 2024)))

	// THEN: the delete was rolled back with the failed create
	require.ErrorIs(t, err, billing.ErrDuplicatePayment)
	stored, err := st.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusActive, stored.Status)
	assert.Equal(t, billing.Quarter(1, 2024), stored.Start)
}

func TestReplacePeriods_InvalidDraft_LeavesOldActive(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	old, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), payments.SubmitOptions{})
	require.NoError(t, err)

	p, err := svc.ReplacePeriods(ctx, "cl-1", old.ID, flatDraft("2500", day(2024, time.April, 5), q(4, 2024), q(2, 2024)))

	assert.ErrorIs(t, err, billing.ErrInvalidRange)
	assert.Equal(t, payments.StatusRejected, p.Status)
	stored, _ := st.Get(ctx, old.ID)
	assert.Equal(t, payments.StatusActive, stored.Status)
}

func TestDelete_Twice_InvalidTransition(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), payments.SubmitOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "cl-1", p.ID))
	err = svc.Delete(ctx, "cl-1", p.ID)

	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestStatus_Transitions(t *testing.T) {
	assert.True(t, payments.StatusDraft.CanTransition(payments.StatusSubmitted))
	assert.True(t, payments.StatusSubmitted.CanTransition(payments.StatusRejected))
	assert.True(t, payments.StatusActive.CanTransition(payments.StatusDeleted))
	assert.False(t, payments.StatusDraft.CanTransition(payments.StatusActive))
	assert.False(t, payments.StatusDeleted.CanTransition(payments.StatusActive))
	assert.True(t, payments.StatusDeleted.IsTerminal())
	assert.True(t, payments.StatusRejected.IsTerminal())
}

// =============================================================================
// READS
// =============================================================================

func TestHistory_NewestFirstWithEvaluations(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	first, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.January, 5), q(4, 2023), q(4, 2023)), payments.SubmitOptions{})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, flatDraft("2600", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), payments.SubmitOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "cl-1", first.ID))
	_, err = svc.Submit(ctx, flatDraft("5000", day(2024, time.May, 1), q(1, 2024), q(2, 2024)), payments.SubmitOptions{Confirmed: true})
	require.NoError(t, err)

	records, err := svc.History(ctx, "cl-1", "ctr-flat")

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, day(2024, time.May, 1), records[0].Payment.ReceivedDate)
	assert.Equal(t, fees.BandExactMatch, records[0].Evaluation.Variance.Band)
	assert.Equal(t, "Q1 2024 - Q2 2024", records[0].Evaluation.PeriodLabel)
	assert.Equal(t, fees.BandAcceptable, records[1].Evaluation.Variance.Band)
}

func TestHistory_OtherClient_OwnershipMismatch(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.History(context.Background(), "cl-2", "ctr-flat")

	assert.ErrorIs(t, err, billing.ErrOwnershipMismatch)
}

func TestHistory_UnevaluableRowDegrades(t *testing.T) {
	// GIVEN: a quarterly payment on a contract whose stored cadence is now monthly
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Submit(ctx, flatDraft("5000", day(2024, time.May, 1), q(1, 2024), q(2, 2024)), payments.SubmitOptions{})
	require.NoError(t, err)
	book := svc.Contracts.(contractBook)
	c := book["ctr-flat"]
	c.Frequency = billing.Monthly
	book["ctr-flat"] = c

	// WHEN
	records, err := svc.History(ctx, "cl-1", "ctr-flat")

	// THEN: the row is still listed, unclassified, with a warning
	require.NoError(t, err)
	require.Len(t, records, 1)
	r := records[0]
	assert.NotEmpty(t, r.Warning)
	assert.Nil(t, r.Evaluation.Expected)
	assert.Equal(t, fees.BandUnknown, r.Evaluation.Variance.Band)
	assert.Equal(t, "Q1 2024 - Q2 2024", r.Evaluation.PeriodLabel)
	assert.Equal(t, 2, r.Evaluation.Periods)
	assert.True(t, dec("2500").Equal(r.Evaluation.AmountPerPeriod))
}

func TestHistoryPage(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for i, period := range []billing.Period{q(3, 2023), q(4, 2023), q(1, 2024)} {
		_, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.Month(i+1), 5), period, period), payments.SubmitOptions{})
		require.NoError(t, err)
	}

	t.Run("second page of two", func(t *testing.T) {
		page, err := svc.HistoryPage(ctx, "cl-1", "ctr-flat", 2, 2)

		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, 2, page.Page)
		require.Len(t, page.Items, 1)
		assert.Equal(t, day(2024, time.January, 5), page.Items[0].Payment.ReceivedDate)
	})

	t.Run("out of range is empty", func(t *testing.T) {
		page, err := svc.HistoryPage(ctx, "cl-1", "ctr-flat", 5, 2)

		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Empty(t, page.Items)
	})

	t.Run("defaults and cap", func(t *testing.T) {
		page, err := svc.HistoryPage(ctx, "cl-1", "ctr-flat", 0, 1000)

		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, payments.MaxPageSize, page.PageSize)
		assert.Len(t, page.Items, 3)

		page, err = svc.HistoryPage(ctx, "cl-1", "ctr-flat", 1, 0)
		require.NoError(t, err)
		assert.Equal(t, payments.DefaultPageSize, page.PageSize)
	})

	t.Run("other client", func(t *testing.T) {
		_, err := svc.HistoryPage(ctx, "cl-2", "ctr-flat", 1, 10)

		assert.ErrorIs(t, err, billing.ErrOwnershipMismatch)
	})
}

func TestPayment_Detail(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), payments.SubmitOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "cl-1", p.ID))

	// WHEN: a deleted payment is read back by its owner
	r, err := svc.Payment(ctx, "cl-1", p.ID)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, payments.StatusDeleted, r.Payment.Status)
	assert.Equal(t, fees.BandExactMatch, r.Evaluation.Variance.Band)

	_, err = svc.Payment(ctx, "cl-2", p.ID)
	assert.ErrorIs(t, err, billing.ErrOwnershipMismatch)

	_, err = svc.Payment(ctx, "cl-1", "pay-missing")
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestMetrics_ForContract(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Submit(ctx, flatDraft("2500", day(2023, time.October, 5), q(3, 2023), q(3, 2023)), payments.SubmitOptions{})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, flatDraft("5000", day(2024, time.April, 5), q(4, 2023), q(1, 2024)), payments.SubmitOptions{Confirmed: true})
	require.NoError(t, err)

	m, err := svc.Metrics(ctx, "cl-1", "ctr-flat")

	require.NoError(t, err)
	assert.Equal(t, 2, m.PaymentCount)
	assert.Equal(t, "Q4 2023 - Q1 2024", m.LastPaymentPeriod)
	assert.True(t, dec("5000").Equal(m.TotalYTD))
	require.NotNil(t, m.AveragePerPeriod)
	assert.True(t, dec("2500").Equal(*m.AveragePerPeriod))

	_, err = svc.Metrics(ctx, "cl-2", "ctr-flat")
	assert.ErrorIs(t, err, billing.ErrOwnershipMismatch)
}

func TestCompliance(t *testing.T) {
	ctx := context.Background()

	t.Run("no history needs review", func(t *testing.T) {
		svc, _ := newService(t)

		r, err := svc.Compliance(ctx, "cl-1", "ctr-flat", fees.ReviewSignals{})

		require.NoError(t, err)
		assert.Equal(t, fees.StateIndeterminate, r.Dueness.State)
		assert.Equal(t, fees.StatusReviewNeeded, r.Status)
		assert.Nil(t, r.LastPayment)
	})

	t.Run("recent payment is compliant", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.April, 5), q(1, 2024), q(1, 2024)), payments.SubmitOptions{})
		require.NoError(t, err)

		r, err := svc.Compliance(ctx, "cl-1", "ctr-flat", fees.ReviewSignals{})

		require.NoError(t, err)
		assert.Equal(t, fees.StatusCompliant, r.Status)
		require.NotNil(t, r.Dueness.NextDue)
		assert.Equal(t, day(2024, time.July, 5), *r.Dueness.NextDue)
	})

	t.Run("stale payment is overdue", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.Submit(ctx, flatDraft("2500", day(2024, time.January, 5), q(4, 2023), q(4, 2023)), payments.SubmitOptions{})
		require.NoError(t, err)

		r, err := svc.Compliance(ctx, "cl-1", "ctr-flat", fees.ReviewSignals{NeedsReview: true})

		require.NoError(t, err)
		assert.Equal(t, fees.StatusOverdue, r.Status)
	})
}

func TestAvailablePeriods_DefaultsToContractStart(t *testing.T) {
	svc, _ := newService(t)

	got, err := svc.AvailablePeriods(context.Background(), "cl-1", "ctr-flat")

	// Contract starts Q3 2023, now is Q2 2024: billed in arrears through Q1 2024.
	require.NoError(t, err)
	assert.Equal(t, billing.KindQuarter, got.Kind)
	assert.Equal(t, []billing.Period{
		billing.Quarter(1, 2024),
		billing.Quarter(4, 2023),
		billing.Quarter(3, 2023),
	}, got.Periods)
}

func TestExpected_AUMResolution(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	may := billing.Month(time.May, 2024)

	// No AUM anywhere: missing rate data.
	_, err := svc.Expected(ctx, "cl-2", "ctr-pct", may, may, nil)
	assert.ErrorIs(t, err, billing.ErrMissingRateData)

	// Provider supplies AUM.
	svc.AUM = fixedAUM{v: decPtr("100000")}
	got, err := svc.Expected(ctx, "cl-2", "ctr-pct", may, may, nil)
	require.NoError(t, err)
	assert.True(t, dec("500").Equal(got.Amount))

	// Explicit AUM wins over the provider.
	got, err = svc.Expected(ctx, "cl-2", "ctr-pct", may, may, decPtr("200000"))
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(got.Amount))
}

func TestFeeSummary(t *testing.T) {
	svc, _ := newService(t)

	b, err := svc.FeeSummary(context.Background(), "cl-1", "ctr-flat")

	require.NoError(t, err)
	assert.True(t, b.IsFlatRate)
	require.NotNil(t, b.AnnualAmount)
	assert.True(t, dec("10000").Equal(*b.AnnualAmount))
}
