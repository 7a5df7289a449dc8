package fees

import (
	"time"

	"github.com/warp/fee-engine/billing"
)

// =============================================================================
// DUENESS - Is the next payment late?
// =============================================================================

// DuenessState is the classifier's only contribution to compliance.
type DuenessState string

const (
	StateOverdue       DuenessState = "overdue"
	StateNotOverdue    DuenessState = "not_overdue"
	StateIndeterminate DuenessState = "indeterminate" // no payment history
)

// Dueness is the overdue determination plus the date it was judged against.
type Dueness struct {
	State   DuenessState `json:"state"`
	NextDue *time.Time   `json:"next_due,omitempty"`
}

// NextDueDate is one billing cycle after the last payment: one calendar month
// for monthly contracts, three for quarterly.
func NextDueDate(last time.Time, f billing.Frequency) time.Time {
	months := 1
	if f == billing.Quarterly {
		months = 3
	}
	return last.AddDate(0, months, 0)
}

// ClassifyOverdue decides whether a contract is overdue at now.
// No payment history is indeterminate, never overdue.
func ClassifyOverdue(last *time.Time, f billing.Frequency, now time.Time) Dueness {
	if last == nil || last.IsZero() || f.PeriodsPerYear() == 0 {
		return Dueness{State: StateIndeterminate}
	}
	next := NextDueDate(*last, f)
	if next.Before(now) {
		return Dueness{State: StateOverdue, NextDue: &next}
	}
	return Dueness{State: StateNotOverdue, NextDue: &next}
}

// =============================================================================
// COMPLIANCE STATUS - Dueness merged with external review signals
// =============================================================================

type Status string

const (
	StatusCompliant    Status = "Compliant"
	StatusReviewNeeded Status = "Review Needed"
	StatusOverdue      Status = "Overdue"
)

// ReviewSignals are compliance flags raised outside the engine (manual flags,
// document checks). The engine only reads them.
type ReviewSignals struct {
	NeedsReview bool
	Reasons     []string
}

// ClassifyCompliance merges the overdue determination with review signals.
// Overdue wins; indeterminate history needs review; otherwise the signals
// decide between Compliant and Review Needed.
func ClassifyCompliance(d Dueness, signals ReviewSignals) Status {
	switch d.State {
	case StateOverdue:
		return StatusOverdue
	case StateIndeterminate:
		return StatusReviewNeeded
	}
	if signals.NeedsReview {
		return StatusReviewNeeded
	}
	return StatusCompliant
}
