/*
Package billing provides the value types every fee computation is built on.

PURPOSE:
  Contracts, fee terms, billing periods and the error taxonomy. Nothing in
  this package performs I/O; the fee math itself lives in package fees.

KEY CONCEPTS IN THIS FILE (types.go):
  - FeeTerms: Sealed sum type, FlatRate or PercentageOfAUM
  - Frequency: A contract's native billing cadence (monthly, quarterly)
  - Contract: Fee terms plus the client that owns them
  - Identifiers: Type-safe client / contract / payment IDs

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every amount and rate
  2. One shape per fee structure: a flat contract cannot carry a percentage
  3. Whole-percent rates: Percent 0.75 means 0.75%, divided by 100 before use

USAGE:
  c := billing.Contract{
      ID:        "ctr-1",
      ClientID:  "cl-1",
      Terms:     billing.PercentageOfAUM{Percent: decimal.RequireFromString("0.5")},
      Frequency: billing.Quarterly,
  }

SEE ALSO:
  - period.go: Period model and arithmetic
  - errors.go: Error taxonomy
  - fees/: Normalizer, expected fee, reconciliation, compliance
*/
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type ContractID string
type PaymentID string

// =============================================================================
// FREQUENCY & GRANULARITY
// =============================================================================

// Frequency is the cadence a contract bills at. Stored fee figures are
// expressed at this cadence.
type Frequency string

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
)

// PeriodsPerYear returns 12 for Monthly, 4 for Quarterly, 0 otherwise.
func (f Frequency) PeriodsPerYear() int {
	switch f {
	case Monthly:
		return 12
	case Quarterly:
		return 4
	default:
		return 0
	}
}

// ParseFrequency accepts "monthly"/"quarterly" in any case.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToLower(strings.TrimSpace(s))) {
	case Monthly:
		return Monthly, nil
	case Quarterly:
		return Quarterly, nil
	default:
		return "", fmt.Errorf("%w: unknown payment frequency %q", ErrInvalidContract, s)
	}
}

// Granularity is a target cadence for normalized figures.
type Granularity string

const (
	PerMonth   Granularity = "monthly"
	PerQuarter Granularity = "quarterly"
	PerYear    Granularity = "annual"
)

// PeriodsPerYear returns how many of this granularity fit in a year.
func (g Granularity) PeriodsPerYear() int {
	switch g {
	case PerMonth:
		return 12
	case PerQuarter:
		return 4
	case PerYear:
		return 1
	default:
		return 0
	}
}

// =============================================================================
// FEE TERMS - Sealed sum type over the two fee structures
// =============================================================================

// FeeStructure names a fee terms variant for storage and display.
type FeeStructure string

const (
	StructureFlatRate   FeeStructure = "flat"
	StructurePercentage FeeStructure = "percentage"
)

// FeeTerms is implemented only by FlatRate and PercentageOfAUM.
// Switch on the concrete type; the unexported method keeps the set closed.
type FeeTerms interface {
	Structure() FeeStructure
	// Value is the stored figure: a dollar amount or a whole-percent rate.
	Value() decimal.Decimal
	feeTerms()
}

// FlatRate is a fixed dollar fee per native period.
type FlatRate struct {
	Amount decimal.Decimal
}

func (FlatRate) Structure() FeeStructure  { return StructureFlatRate }
func (f FlatRate) Value() decimal.Decimal { return f.Amount }
func (FlatRate) feeTerms()                {}

// PercentageOfAUM is a whole-percent rate per native period applied to assets
// under management.
type PercentageOfAUM struct {
	Percent decimal.Decimal
}

func (PercentageOfAUM) Structure() FeeStructure  { return StructurePercentage }
func (p PercentageOfAUM) Value() decimal.Decimal { return p.Percent }
func (PercentageOfAUM) feeTerms()                {}

// Fraction returns the rate as a multiplier (0.5% -> 0.005).
func (p PercentageOfAUM) Fraction() decimal.Decimal {
	return p.Percent.Div(decimal.NewFromInt(100))
}

// NewFeeTerms builds the variant named by structure. "percent" is accepted as
// an alias of "percentage".
func NewFeeTerms(structure string, value decimal.Decimal) (FeeTerms, error) {
	switch strings.ToLower(strings.TrimSpace(structure)) {
	case string(StructureFlatRate):
		return FlatRate{Amount: value}, nil
	case string(StructurePercentage), "percent":
		return PercentageOfAUM{Percent: value}, nil
	default:
		return nil, fmt.Errorf("%w: unknown fee structure %q", ErrInvalidContract, structure)
	}
}

// =============================================================================
// CONTRACT
// =============================================================================

// Contract holds the fee terms for one client. Terms are immutable per
// contract version; a change of terms is a new contract version.
type Contract struct {
	ID        ContractID
	ClientID  ClientID
	Number    string
	Provider  string
	StartDate time.Time // zero if unknown
	Terms     FeeTerms  // nil only for malformed records
	Frequency Frequency
	NumPeople int

	// AUM is the contract-level assets figure, used when a payment carries none.
	AUM *decimal.Decimal
}

// PeriodKind returns the kind every period of this contract must have.
func (c Contract) PeriodKind() PeriodKind { return KindFor(c.Frequency) }

// IsFlatRate reports whether the contract bills a fixed amount.
func (c Contract) IsFlatRate() bool {
	_, ok := c.Terms.(FlatRate)
	return ok
}

// Validate checks the contract invariants.
func (c Contract) Validate() error {
	if c.Frequency.PeriodsPerYear() == 0 {
		return fmt.Errorf("%w: unknown payment frequency %q", ErrInvalidContract, c.Frequency)
	}
	switch t := c.Terms.(type) {
	case nil:
		return ErrMissingFeeTerms
	case FlatRate:
		if !t.Amount.IsPositive() {
			return fmt.Errorf("%w: flat fee must be positive, got %s", ErrInvalidContract, t.Amount)
		}
	case PercentageOfAUM:
		if !t.Percent.IsPositive() {
			return fmt.Errorf("%w: fee percentage must be positive, got %s", ErrInvalidContract, t.Percent)
		}
	}
	if c.AUM != nil && c.AUM.IsNegative() {
		return fmt.Errorf("%w: assets under management cannot be negative", ErrInvalidContract)
	}
	return nil
}

// CheckOwnership fails with *OwnershipMismatchError when the contract does not
// belong to clientID.
func (c Contract) CheckOwnership(clientID ClientID) error {
	if c.ClientID != clientID {
		return &OwnershipMismatchError{ContractID: c.ID, ClientID: clientID, OwnerID: c.ClientID}
	}
	return nil
}
