/*
payment.go - Fee payment records and their lifecycle

PURPOSE:
  A Payment is money received from a client against one contract, applied to
  one billing period or a contiguous range of periods (a split payment).
  Payments never carry an expected fee: that is recomputed on every read
  from current contract terms (see fees.Evaluate).

LIFECYCLE:
  ┌───────┐     ┌───────────┐     ┌────────┐     ┌─────────┐
  │ Draft │ ──▶ │ Submitted │ ──▶ │ Active │ ──▶ │ Deleted │
  └───────┘     └───────────┘     └────────┘     └─────────┘
                      │
                      ▼
                ┌──────────┐
                │ Rejected │
                └──────────┘

  Deleted and Rejected are terminal.

PERIOD CHANGES:
  The applied period range of an Active payment is never edited in place.
  Changing it (or switching between single and split mode) marks the old
  payment Deleted and submits a new one, atomically. See Service.ReplacePeriods.
  Update therefore has no period fields.

SEE ALSO:
  - service.go: Orchestrates submission, edits and replacement
  - store.go: Persistence and provider interfaces
*/
package payments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fee-engine/billing"
	"github.com/warp/fee-engine/fees"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusActive    Status = "active"
	StatusRejected  Status = "rejected"
	StatusDeleted   Status = "deleted"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusActive, StatusRejected},
	StatusActive:    {StatusDeleted},
}

// CanTransition reports whether the lifecycle allows s -> to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal is true for Deleted and Rejected.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// =============================================================================
// PAYMENT
// =============================================================================

type Payment struct {
	ID         billing.PaymentID
	ClientID   billing.ClientID
	ContractID billing.ContractID

	ReceivedDate time.Time
	ActualFee    decimal.Decimal
	TotalAssets  *decimal.Decimal // AUM at payment time, optional
	Method       string
	Notes        string

	// Applied periods, inclusive. Start == End for a single-period payment.
	Start billing.Period
	End   billing.Period

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppliedPeriods expands [Start, End].
func (p Payment) AppliedPeriods() ([]billing.Period, error) {
	return billing.Range(p.Start, p.End)
}

// IsSplit reports whether the payment covers more than one period.
func (p Payment) IsSplit() bool {
	return p.Start != p.End
}

// Applied is the view of the payment the fee rules need.
func (p Payment) Applied() fees.Applied {
	return fees.Applied{
		Start:       p.Start,
		End:         p.End,
		ActualFee:   p.ActualFee,
		TotalAssets: p.TotalAssets,
	}
}

func (p *Payment) transition(to Status, at time.Time) error {
	if !p.Status.CanTransition(to) {
		return fmt.Errorf("%w: payment %s is %s, cannot become %s", billing.ErrInvalidTransition, p.ID, p.Status, to)
	}
	p.Status = to
	p.UpdatedAt = at
	return nil
}

// =============================================================================
// INPUTS
// =============================================================================

// Draft is a payment as entered on the form, before submission.
type Draft struct {
	ClientID     billing.ClientID
	ContractID   billing.ContractID
	ReceivedDate time.Time
	ActualFee    decimal.Decimal
	TotalAssets  *decimal.Decimal
	Method       string
	Notes        string
	Start        billing.Period
	End          billing.Period
}

// Update edits the non-period fields of an Active payment. Nil fields are
// left unchanged.
type Update struct {
	ReceivedDate     *time.Time
	ActualFee        *decimal.Decimal
	TotalAssets      *decimal.Decimal
	ClearTotalAssets bool
	Method           *string
	Notes            *string
}

// SubmitOptions controls the soft gates on submission.
type SubmitOptions struct {
	// Confirmed skips the large-variance prompt. Set it when the user has
	// already acknowledged the warning.
	Confirmed bool
}

// Record is a payment with its evaluation against current contract terms.
// Warning is set when the payment could not be evaluated against those terms;
// Evaluation then carries only the label, allocation and BandUnknown.
type Record struct {
	Payment    Payment
	Evaluation fees.Evaluation
	Warning    string
}

// Page is one page of a payment history, newest first.
type Page struct {
	Items    []Record
	Total    int
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ComplianceReport is the compliance determination for one contract.
type ComplianceReport struct {
	ClientID    billing.ClientID
	ContractID  billing.ContractID
	Status      fees.Status
	Dueness     fees.Dueness
	LastPayment *time.Time
	Reasons     []string
}

// =============================================================================
// VALIDATION
// =============================================================================

// validate checks a submitted payment against its contract. Periods must be
// valid, in the contract's native kind and ascending; the fee must be
// positive; the received date must be set and not in the future.
func validate(p Payment, c billing.Contract, now time.Time) error {
	kind := c.PeriodKind()
	for _, period := range []billing.Period{p.Start, p.End} {
		if err := period.Validate(); err != nil {
			return err
		}
		if period.Kind != kind {
			return &billing.PeriodError{
				Period: period,
				Reason: fmt.Sprintf("contract bills %s, expected a %s period", c.Frequency, kind),
			}
		}
	}
	if _, err := billing.CountSpan(p.Start, p.End); err != nil {
		return err
	}
	return validateFields(p, now)
}

func validateFields(p Payment, now time.Time) error {
	if !p.ActualFee.IsPositive() {
		return &billing.FieldError{Field: "actual_fee", Message: "must be greater than zero", Err: billing.ErrInvalidPayment}
	}
	if p.ReceivedDate.IsZero() {
		return &billing.FieldError{Field: "received_date", Message: "is required", Err: billing.ErrInvalidPayment}
	}
	if p.ReceivedDate.After(now) {
		return &billing.FieldError{Field: "received_date", Message: "cannot be in the future", Err: billing.ErrInvalidPayment}
	}
	if p.TotalAssets != nil && p.TotalAssets.IsNegative() {
		return &billing.FieldError{Field: "total_assets", Message: "cannot be negative", Err: billing.ErrInvalidPayment}
	}
	return nil
}
