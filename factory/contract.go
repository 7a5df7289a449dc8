/*
Package factory provides JSON/YAML to Go contract conversion.

PURPOSE:
  Converts contract definitions as they arrive from the contract form, the
  data-fetch layer or a seed file into billing.Contract values. The wire
  shape carries fee_amount and fee_percentage side by side; the factory
  collapses them into the FeeTerms sum type so exactly one is ever set.

JSON SCHEMA:
  {
    "id": "ctr-134565",
    "client_id": "cl-acme",
    "contract_number": "134565",
    "provider": "John Hancock",
    "start_date": "2023-07-01",
    "fee_type": "percentage",
    "fee_percentage": 0.067,
    "payment_frequency": "quarterly",
    "num_people": 12,
    "aum": 2945059
  }

FEE TYPE:
  "flat" requires fee_amount, "percentage" (or "percent") requires
  fee_percentage. When fee_type is omitted it is inferred from whichever
  figure is present. Both present is an error.

USAGE:
  factory := NewContractFactory()
  contract, err := factory.ParseContract(jsonString)

SEE ALSO:
  - billing/types.go: Contract and FeeTerms
  - seed.go: YAML seed files built from the same shape
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fee-engine/billing"
)

const dateLayout = "2006-01-02"

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ContractJSON is the wire representation of a contract.
type ContractJSON struct {
	ID               string           `json:"id" yaml:"id"`
	ClientID         string           `json:"client_id" yaml:"client_id"`
	Number           string           `json:"contract_number,omitempty" yaml:"contract_number"`
	Provider         string           `json:"provider,omitempty" yaml:"provider"`
	StartDate        string           `json:"start_date,omitempty" yaml:"start_date"`
	FeeType          string           `json:"fee_type,omitempty" yaml:"fee_type"`
	FeeAmount        *decimal.Decimal `json:"fee_amount,omitempty" yaml:"fee_amount"`
	FeePercentage    *decimal.Decimal `json:"fee_percentage,omitempty" yaml:"fee_percentage"`
	PaymentFrequency string           `json:"payment_frequency" yaml:"payment_frequency"`
	NumPeople        int              `json:"num_people,omitempty" yaml:"num_people"`
	AUM              *decimal.Decimal `json:"aum,omitempty" yaml:"aum"`
}

// =============================================================================
// CONTRACT FACTORY
// =============================================================================

// ContractFactory converts wire contracts to billing.Contract.
type ContractFactory struct{}

// NewContractFactory creates a new contract factory.
func NewContractFactory() *ContractFactory {
	return &ContractFactory{}
}

// ParseContract parses a JSON string into a validated Contract.
func (f *ContractFactory) ParseContract(jsonStr string) (billing.Contract, error) {
	var cj ContractJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return billing.Contract{}, fmt.Errorf("failed to parse contract JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON converts ContractJSON to a validated billing.Contract.
func (f *ContractFactory) FromJSON(cj ContractJSON) (billing.Contract, error) {
	if cj.ID == "" {
		return billing.Contract{}, &billing.FieldError{Field: "id", Message: "is required", Err: billing.ErrInvalidContract}
	}
	if cj.ClientID == "" {
		return billing.Contract{}, &billing.FieldError{Field: "client_id", Message: "is required", Err: billing.ErrInvalidContract}
	}

	freq, err := billing.ParseFrequency(cj.PaymentFrequency)
	if err != nil {
		return billing.Contract{}, err
	}
	terms, err := parseFeeTerms(cj)
	if err != nil {
		return billing.Contract{}, err
	}

	c := billing.Contract{
		ID:        billing.ContractID(cj.ID),
		ClientID:  billing.ClientID(cj.ClientID),
		Number:    cj.Number,
		Provider:  cj.Provider,
		Terms:     terms,
		Frequency: freq,
		NumPeople: cj.NumPeople,
		AUM:       cj.AUM,
	}
	if cj.StartDate != "" {
		c.StartDate, err = time.Parse(dateLayout, cj.StartDate)
		if err != nil {
			return billing.Contract{}, &billing.FieldError{
				Field: "start_date", Message: fmt.Sprintf("%q is not YYYY-MM-DD", cj.StartDate), Err: billing.ErrInvalidContract,
			}
		}
	}

	if err := c.Validate(); err != nil {
		return billing.Contract{}, err
	}
	return c, nil
}

// ToJSON converts a Contract to ContractJSON.
func (f *ContractFactory) ToJSON(c billing.Contract) ContractJSON {
	cj := ContractJSON{
		ID:               string(c.ID),
		ClientID:         string(c.ClientID),
		Number:           c.Number,
		Provider:         c.Provider,
		PaymentFrequency: string(c.Frequency),
		NumPeople:        c.NumPeople,
		AUM:              c.AUM,
	}
	if !c.StartDate.IsZero() {
		cj.StartDate = c.StartDate.Format(dateLayout)
	}

	switch t := c.Terms.(type) {
	case billing.FlatRate:
		cj.FeeType = string(billing.StructureFlatRate)
		v := t.Amount
		cj.FeeAmount = &v
	case billing.PercentageOfAUM:
		cj.FeeType = string(billing.StructurePercentage)
		v := t.Percent
		cj.FeePercentage = &v
	}
	return cj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseFeeTerms(cj ContractJSON) (billing.FeeTerms, error) {
	if cj.FeeAmount != nil && cj.FeePercentage != nil {
		return nil, fmt.Errorf("%w: fee_amount and fee_percentage are mutually exclusive", billing.ErrInvalidContract)
	}

	feeType := strings.ToLower(strings.TrimSpace(cj.FeeType))
	if feeType == "" {
		switch {
		case cj.FeeAmount != nil:
			feeType = string(billing.StructureFlatRate)
		case cj.FeePercentage != nil:
			feeType = string(billing.StructurePercentage)
		default:
			return nil, billing.ErrMissingFeeTerms
		}
	}

	var value *decimal.Decimal
	switch feeType {
	case "flat":
		value = cj.FeeAmount
	case "percentage", "percent":
		value = cj.FeePercentage
	default:
		return nil, fmt.Errorf("%w: unknown fee_type %q", billing.ErrInvalidContract, cj.FeeType)
	}
	if value == nil {
		return nil, fmt.Errorf("%w: fee_type %q has no matching figure", billing.ErrMissingFeeTerms, feeType)
	}
	return billing.NewFeeTerms(feeType, *value)
}
