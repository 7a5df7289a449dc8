package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/fee-engine/billing"
	"github.com/warp/fee-engine/fees"
)

// =============================================================================
// SERVICE - Payment lifecycle over a store and the providers
// =============================================================================

// Service orchestrates the payment lifecycle. The fee rules it applies live in
// package fees; Service only fetches inputs, enforces ownership and the state
// machine, and persists.
//
// EXAMPLE:
//
//	svc := payments.NewService(store, contracts)
//	p, err := svc.Submit(ctx, draft, payments.SubmitOptions{})
//	if errors.Is(err, fees.ErrLargeVariance) {
//	    // ask the user, then resubmit with Confirmed: true
//	}
type Service struct {
	Store     TxStore
	Contracts ContractProvider
	Periods   PeriodProvider // optional, defaults to billing.AvailablePeriods
	AUM       AUMProvider    // optional, defaults to the contract-level AUM

	Now   func() time.Time
	NewID func() billing.PaymentID
	Log   zerolog.Logger
}

// NewService returns a Service with a wall clock, UUID payment IDs and a
// disabled logger.
func NewService(store TxStore, contracts ContractProvider) *Service {
	return &Service{
		Store:     store,
		Contracts: contracts,
		Now:       time.Now,
		NewID:     func() billing.PaymentID { return billing.PaymentID(uuid.NewString()) },
		Log:       zerolog.Nop(),
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) newID() billing.PaymentID {
	if s.NewID == nil {
		return billing.PaymentID(uuid.NewString())
	}
	return s.NewID()
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit validates a draft and persists it as Active.
//
//  1. The contract provider checks ownership. Mismatch or unknown contract
//     returns (nil, err) and nothing is recorded.
//  2. Validation failures return the payment in Rejected together with the
//     error. Rejected payments are not persisted.
//  3. Unless opts.Confirmed, an amount that moved more than 50% from the
//     latest active payment returns the Submitted payment and a
//     *fees.LargeVarianceError. Nothing is persisted.
func (s *Service) Submit(ctx context.Context, d Draft, opts SubmitOptions) (*Payment, error) {
	contract, err := s.Contracts.Contract(ctx, d.ClientID, d.ContractID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p, err := s.submitted(d, contract, now)
	if err != nil {
		return p, err
	}

	if !opts.Confirmed {
		history, err := s.Store.List(ctx, contract.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load payment history: %w", err)
		}
		if last := latestActive(history); last != nil {
			if err := fees.CheckLargeVariance(p.ActualFee, &last.ActualFee); err != nil {
				return p, err
			}
		}
	}

	if err := p.transition(StatusActive, now); err != nil {
		return nil, err
	}
	if err := s.Store.Create(ctx, *p); err != nil {
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}

	s.Log.Info().
		Str("payment_id", string(p.ID)).
		Str("client_id", string(p.ClientID)).
		Str("contract_id", string(p.ContractID)).
		Str("periods", billing.RangeLabel(p.Start, p.End)).
		Msg("payment recorded")
	return p, nil
}

// submitted builds a Draft payment, moves it to Submitted and validates it.
// On validation failure the payment is returned in Rejected.
func (s *Service) submitted(d Draft, contract billing.Contract, now time.Time) (*Payment, error) {
	p := &Payment{
		ID:           s.newID(),
		ClientID:     contract.ClientID,
		ContractID:   contract.ID,
		ReceivedDate: d.ReceivedDate,
		ActualFee:    d.ActualFee,
		TotalAssets:  d.TotalAssets,
		Method:       d.Method,
		Notes:        d.Notes,
		Start:        d.Start,
		End:          d.End,
		Status:       StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.transition(StatusSubmitted, now); err != nil {
		return nil, err
	}
	if err := validate(*p, contract, now); err != nil {
		_ = p.transition(StatusRejected, now)
		s.Log.Debug().Err(err).Str("contract_id", string(contract.ID)).Msg("payment rejected")
		return p, err
	}
	return p, nil
}

// =============================================================================
// EDIT, REPLACE, DELETE
// =============================================================================

// Update edits non-period fields of an Active payment. The variance guard is
// not applied to edits.
func (s *Service) Update(ctx context.Context, clientID billing.ClientID, id billing.PaymentID, u Update) (*Payment, error) {
	p, err := s.owned(ctx, s.Store, clientID, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusActive {
		return nil, fmt.Errorf("%w: payment %s is %s", billing.ErrInvalidTransition, p.ID, p.Status)
	}

	if u.ReceivedDate != nil {
		p.ReceivedDate = *u.ReceivedDate
	}
	if u.ActualFee != nil {
		p.ActualFee = *u.ActualFee
	}
	if u.ClearTotalAssets {
		p.TotalAssets = nil
	} else if u.TotalAssets != nil {
		v := *u.TotalAssets
		p.TotalAssets = &v
	}
	if u.Method != nil {
		p.Method = *u.Method
	}
	if u.Notes != nil {
		p.Notes = *u.Notes
	}

	now := s.now()
	if err := validateFields(p, now); err != nil {
		return nil, err
	}
	p.UpdatedAt = now
	if err := s.Store.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	return &p, nil
}

// ReplacePeriods changes the applied periods of an Active payment. The old
// payment is marked Deleted and d is submitted as a new payment in the same
// store transaction, so either both happen or neither does. The variance
// guard is not applied. ClientID and ContractID are taken from the old payment.
func (s *Service) ReplacePeriods(ctx context.Context, clientID billing.ClientID, id billing.PaymentID, d Draft) (*Payment, error) {
	old, err := s.owned(ctx, s.Store, clientID, id)
	if err != nil {
		return nil, err
	}
	contract, err := s.Contracts.Contract(ctx, clientID, old.ContractID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, err := s.submitted(d, contract, now)
	if err != nil {
		return next, err
	}
	if err := next.transition(StatusActive, now); err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx Store) error {
		current, err := tx.Get(ctx, old.ID)
		if err != nil {
			return err
		}
		if err := current.transition(StatusDeleted, now); err != nil {
			return err
		}
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		return tx.Create(ctx, *next)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace payment %s: %w", old.ID, err)
	}

	s.Log.Info().
		Str("payment_id", string(next.ID)).
		Str("replaces", string(old.ID)).
		Str("periods", billing.RangeLabel(next.Start, next.End)).
		Msg("payment periods replaced")
	return next, nil
}

// Delete marks an Active payment Deleted. Deleting twice is an
// ErrInvalidTransition.
func (s *Service) Delete(ctx context.Context, clientID billing.ClientID, id billing.PaymentID) error {
	p, err := s.owned(ctx, s.Store, clientID, id)
	if err != nil {
		return err
	}
	if err := p.transition(StatusDeleted, s.now()); err != nil {
		return err
	}
	if err := s.Store.Update(ctx, p); err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	s.Log.Info().Str("payment_id", string(id)).Msg("payment deleted")
	return nil
}

// owned loads a payment and checks it belongs to clientID.
func (s *Service) owned(ctx context.Context, st Store, clientID billing.ClientID, id billing.PaymentID) (Payment, error) {
	p, err := st.Get(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if p.ClientID != clientID {
		return Payment{}, &billing.OwnershipMismatchError{
			ContractID: p.ContractID,
			ClientID:   clientID,
			OwnerID:    p.ClientID,
		}
	}
	return p, nil
}

// =============================================================================
// READS - Everything derived is recomputed from current contract terms
// =============================================================================

// History returns the Active payments of a contract, newest first, each
// evaluated against the contract's current terms. A row that cannot be
// evaluated is still returned, with a Warning.
func (s *Service) History(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID) ([]Record, error) {
	contract, err := s.Contracts.Contract(ctx, clientID, contractID)
	if err != nil {
		return nil, err
	}
	all, err := s.Store.List(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	var records []Record
	for _, p := range activeNewestFirst(all) {
		records = append(records, s.evaluate(contract, p))
	}
	return records, nil
}

// HistoryPage returns one page of History. page starts at 1; pageSize
// defaults to DefaultPageSize and is capped at MaxPageSize. Only the rows on
// the page are evaluated.
func (s *Service) HistoryPage(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	contract, err := s.Contracts.Contract(ctx, clientID, contractID)
	if err != nil {
		return Page{}, err
	}
	all, err := s.Store.List(ctx, contractID)
	if err != nil {
		return Page{}, fmt.Errorf("failed to load payments: %w", err)
	}

	active := activeNewestFirst(all)
	out := Page{Items: []Record{}, Total: len(active), Page: page, PageSize: pageSize}
	from := (page - 1) * pageSize
	if from >= len(active) {
		return out, nil
	}
	to := min(from+pageSize, len(active))
	for _, p := range active[from:to] {
		out.Items = append(out.Items, s.evaluate(contract, p))
	}
	return out, nil
}

// Payment returns one payment of clientID with its evaluation. Deleted
// payments are returned too, so a replaced payment can still be inspected.
func (s *Service) Payment(ctx context.Context, clientID billing.ClientID, id billing.PaymentID) (Record, error) {
	p, err := s.owned(ctx, s.Store, clientID, id)
	if err != nil {
		return Record{}, err
	}
	contract, err := s.Contracts.Contract(ctx, clientID, p.ContractID)
	if err != nil {
		return Record{}, err
	}
	return s.evaluate(contract, p), nil
}

// Metrics summarizes a contract's Active payments.
func (s *Service) Metrics(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID) (Metrics, error) {
	if _, err := s.Contracts.Contract(ctx, clientID, contractID); err != nil {
		return Metrics{}, err
	}
	all, err := s.Store.List(ctx, contractID)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to load payments: %w", err)
	}
	return Summarize(all, s.now()), nil
}

// evaluate never fails: a payment the fee rules reject (for example one
// recorded against periods of another cadence) degrades to BandUnknown with
// a Warning.
func (s *Service) evaluate(contract billing.Contract, p Payment) Record {
	ev, err := fees.Evaluate(contract, p.Applied())
	if err == nil {
		return Record{Payment: p, Evaluation: ev}
	}

	s.Log.Warn().Err(err).
		Str("payment_id", string(p.ID)).
		Str("contract_id", string(contract.ID)).
		Msg("payment cannot be evaluated against contract terms")

	ev = fees.Evaluation{
		PeriodLabel:     billing.RangeLabel(p.Start, p.End),
		Periods:         1,
		AmountPerPeriod: p.ActualFee,
		Variance:        fees.Reconcile(p.ActualFee, nil),
	}
	if n, err := billing.CountSpan(p.Start, p.End); err == nil {
		ev.Periods = n
		ev.IsSplit = n > 1
		if per, err := fees.Allocate(p.ActualFee, n); err == nil {
			ev.AmountPerPeriod = per
		}
	}
	return Record{Payment: p, Evaluation: ev, Warning: err.Error()}
}

// activeNewestFirst filters to Active payments ordered by received date, then
// creation time, newest first.
func activeNewestFirst(all []Payment) []Payment {
	active := make([]Payment, 0, len(all))
	for _, p := range all {
		if p.Status == StatusActive {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if !a.ReceivedDate.Equal(b.ReceivedDate) {
			return a.ReceivedDate.After(b.ReceivedDate)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return active
}

// Compliance classifies a contract from its latest Active payment.
func (s *Service) Compliance(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID, signals fees.ReviewSignals) (ComplianceReport, error) {
	contract, err := s.Contracts.Contract(ctx, clientID, contractID)
	if err != nil {
		return ComplianceReport{}, err
	}
	all, err := s.Store.List(ctx, contractID)
	if err != nil {
		return ComplianceReport{}, fmt.Errorf("failed to load payments: %w", err)
	}

	report := ComplianceReport{ClientID: clientID, ContractID: contractID, Reasons: signals.Reasons}
	if last := latestActive(all); last != nil {
		d := last.ReceivedDate
		report.LastPayment = &d
	}
	report.Dueness = fees.ClassifyOverdue(report.LastPayment, contract.Frequency, s.now())
	report.Status = fees.ClassifyCompliance(report.Dueness, signals)
	return report, nil
}

// AvailablePeriods lists the periods a new payment may cover, newest first.
func (s *Service) AvailablePeriods(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID) (Periods, error) {
	if s.Periods != nil {
		return s.Periods.AvailablePeriods(ctx, clientID, contractID)
	}
	contract, err := s.Contracts.Contract(ctx, clientID, contractID)
	if err != nil {
		return Periods{}, err
	}
	kind := contract.PeriodKind()
	return Periods{Kind: kind, Periods: billing.AvailablePeriods(contract.StartDate, kind, s.now())}, nil
}

// FeeSummary normalizes the contract's fee to every cadence using the best
// known AUM.
func (s *Service) FeeSummary(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID) (fees.FeeBundle, error) {
	contract, err := s.Contracts.Contract(ctx, clientID, contractID)
	if err != nil {
		return fees.FeeBundle{}, err
	}
	aum, err := s.resolveAUM(ctx, contract, nil)
	if err != nil {
		return fees.FeeBundle{}, err
	}
	return fees.Normalize(contract, aum), nil
}

// Expected computes the expected fee for [start, end]. aum, when given, takes
// precedence over any provider or contract figure. Missing rate data is
// returned as billing.ErrMissingRateData.
func (s *Service) Expected(ctx context.Context, clientID billing.ClientID, contractID billing.ContractID, start, end billing.Period, aum *decimal.Decimal) (fees.ExpectedFee, error) {
	contract, err := s.Contracts.Contract(ctx, clientID, contractID)
	if err != nil {
		return fees.ExpectedFee{}, err
	}
	resolved, err := s.resolveAUM(ctx, contract, aum)
	if err != nil {
		return fees.ExpectedFee{}, err
	}
	return fees.ExpectedForRange(contract, start, end, resolved)
}

func (s *Service) resolveAUM(ctx context.Context, c billing.Contract, explicit *decimal.Decimal) (*decimal.Decimal, error) {
	if explicit != nil {
		return explicit, nil
	}
	if s.AUM != nil {
		latest, err := s.AUM.LatestAUM(ctx, c.ClientID, c.ID)
		if err != nil && !errors.Is(err, billing.ErrNotFound) {
			return nil, fmt.Errorf("failed to load AUM: %w", err)
		}
		if latest != nil {
			return latest, nil
		}
	}
	return c.AUM, nil
}

// latestActive returns the most recent Active payment by received date.
func latestActive(ps []Payment) *Payment {
	var last *Payment
	for i := range ps {
		p := &ps[i]
		if p.Status != StatusActive {
			continue
		}
		if last == nil || p.ReceivedDate.After(last.ReceivedDate) ||
			(p.ReceivedDate.Equal(last.ReceivedDate) && p.CreatedAt.After(last.CreatedAt)) {
			last = p
		}
	}
	return last
}
