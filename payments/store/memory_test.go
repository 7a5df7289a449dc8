package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fee-engine/billing"
	"github.com/warp/fee-engine/payments"
	"github.com/warp/fee-engine/payments/store"
)

func payment(id billing.PaymentID, received time.Time) payments.Payment {
	return payments.Payment{
		ID:           id,
		ClientID:     "cl-1",
		ContractID:   "ctr-1",
		ReceivedDate: received,
		ActualFee:    decimal.NewFromInt(1000),
		Start:        billing.Month(time.January, 2024),
		End:          billing.Month(time.January, 2024),
		Status:       payments.StatusActive,
	}
}

func TestMemory_ListOrderedByReceivedDate(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, payment("b", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, m.Create(ctx, payment("a", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))))

	list, err := m.List(ctx, "ctr-1")

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, billing.PaymentID("a"), list[0].ID)
}

func TestMemory_DuplicateAndMissing(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	p := payment("a", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, m.Create(ctx, p))

	assert.ErrorIs(t, m.Create(ctx, p), billing.ErrDuplicatePayment)
	assert.ErrorIs(t, m.Update(ctx, payment("zzz", time.Now())), billing.ErrNotFound)
	_, err := m.Get(ctx, "zzz")
	assert.True(t, billing.IsNotFound(err))
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	tm := store.NewTxMemory()
	ctx := context.Background()
	require.NoError(t, tm.Create(ctx, payment("a", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))))

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(tx payments.Store) error {
		p, _ := tx.Get(ctx, "a")
		p.Status = payments.StatusDeleted
		require.NoError(t, tx.Update(ctx, p))
		require.NoError(t, tx.Create(ctx, payment("b", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))))
		return boom
	})

	require.ErrorIs(t, err, boom)
	got, err := tm.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusActive, got.Status)
	list, _ := tm.List(ctx, "ctr-1")
	assert.Len(t, list, 1)
}
