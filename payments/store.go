package payments

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/fee-engine/billing"
)

// =============================================================================
// STORE - Payment persistence
// =============================================================================

// Store persists payments. Payments are never removed: deletion is a status
// change written with Update.
type Store interface {
	// Create persists a new payment. Returns ErrDuplicatePayment if the ID exists.
	Create(ctx context.Context, p Payment) error

	// Update overwrites an existing payment. Returns ErrNotFound if missing.
	Update(ctx context.Context, p Payment) error

	// Get returns a payment by ID. Returns ErrNotFound if missing.
	Get(ctx context.Context, id billing.PaymentID) (Payment, error)

	// List returns every payment for a contract, in any status, ordered by
	// ReceivedDate then CreatedAt.
	List(ctx context.Context, contractID billing.ContractID) ([]Payment, error)
}

// TxStore wraps Store with transaction support.
// Use this when several writes must land together (e.g. replacing periods).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// PROVIDERS - Data the engine reads but does not own
// =============================================================================

// ContractProvider resolves a contract and checks, synchronously, that it
// belongs to the stated client. A mismatch returns *billing.OwnershipMismatchError.
type ContractProvider interface {
	Contract(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID) (billing.Contract, error)
}

// PeriodProvider lists the periods a payment may be applied to.
type PeriodProvider interface {
	AvailablePeriods(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID) (Periods, error)
}

// Periods is the ordered set of billable periods for a contract, newest
// first, with the contract's native kind.
type Periods struct {
	Kind    billing.PeriodKind
	Periods []billing.Period
}

// AUMProvider supplies the most recent assets-under-management figure for a
// contract. A nil result with a nil error means no figure is known.
type AUMProvider interface {
	LatestAUM(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID) (*decimal.Decimal, error)
}
