package factory

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fee-engine/billing"
	"github.com/warp/fee-engine/payments"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SEED FILES - Demo and fixture data in YAML
// =============================================================================
//
//	clients:
//	  - id: cl-acme
//	    name: Acme Dental
//	    contracts:
//	      - id: ctr-134565
//	        fee_type: flat
//	        fee_amount: 2500
//	        payment_frequency: quarterly
//	        start_date: "2023-07-01"
//	    payments:
//	      - contract_id: ctr-134565
//	        received_date: "2024-04-05"
//	        actual_fee: 5000
//	        start: 1-2024
//	        end: 2-2024
//
// Contracts inherit the client's id. Payment periods use the "<index>-<year>"
// key and are parsed in the contract's native kind.

// SeedFile is the YAML document shape.
type SeedFile struct {
	Clients []SeedClientYAML `yaml:"clients"`
}

type SeedClientYAML struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Contracts []ContractJSON    `yaml:"contracts"`
	Payments  []SeedPaymentYAML `yaml:"payments"`
}

type SeedPaymentYAML struct {
	ContractID   string           `yaml:"contract_id"`
	ReceivedDate string           `yaml:"received_date"`
	ActualFee    decimal.Decimal  `yaml:"actual_fee"`
	TotalAssets  *decimal.Decimal `yaml:"total_assets"`
	Method       string           `yaml:"method"`
	Notes        string           `yaml:"notes"`
	Start        string           `yaml:"start"`
	End          string           `yaml:"end"` // defaults to start
	Confirmed    bool             `yaml:"confirmed"`
}

// Seed is a parsed, validated seed file ready to load.
type Seed struct {
	Clients []SeedClient
}

type SeedClient struct {
	ID        billing.ClientID
	Name      string
	Contracts []billing.Contract
	Payments  []SeedPayment
}

type SeedPayment struct {
	Draft     payments.Draft
	Confirmed bool
}

// ParseSeed reads and validates a YAML seed document.
func (f *ContractFactory) ParseSeed(r io.Reader) (*Seed, error) {
	var doc SeedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}

	seed := &Seed{}
	for _, cy := range doc.Clients {
		if cy.ID == "" {
			return nil, fmt.Errorf("seed: client without id")
		}
		client := SeedClient{ID: billing.ClientID(cy.ID), Name: cy.Name}

		kinds := make(map[string]billing.PeriodKind, len(cy.Contracts))
		for _, cj := range cy.Contracts {
			cj.ClientID = cy.ID
			c, err := f.FromJSON(cj)
			if err != nil {
				return nil, fmt.Errorf("seed: client %s contract %s: %w", cy.ID, cj.ID, err)
			}
			client.Contracts = append(client.Contracts, c)
			kinds[cj.ID] = c.PeriodKind()
		}

		for i, py := range cy.Payments {
			kind, ok := kinds[py.ContractID]
			if !ok {
				return nil, fmt.Errorf("seed: client %s payment %d: contract %q: %w", cy.ID, i, py.ContractID, billing.ErrNotFound)
			}
			draft, err := seedDraft(client.ID, kind, py)
			if err != nil {
				return nil, fmt.Errorf("seed: client %s payment %d: %w", cy.ID, i, err)
			}
			client.Payments = append(client.Payments, SeedPayment{Draft: draft, Confirmed: py.Confirmed})
		}
		seed.Clients = append(seed.Clients, client)
	}
	return seed, nil
}

func seedDraft(clientID billing.ClientID, kind billing.PeriodKind, py SeedPaymentYAML) (payments.Draft, error) {
	received, err := time.Parse(dateLayout, py.ReceivedDate)
	if err != nil {
		return payments.Draft{}, &billing.FieldError{
			Field: "received_date", Message: fmt.Sprintf("%q is not YYYY-MM-DD", py.ReceivedDate), Err: billing.ErrInvalidPayment,
		}
	}
	start, err := billing.ParsePeriod(py.Start, kind)
	if err != nil {
		return payments.Draft{}, err
	}
	end := start
	if py.End != "" {
		if end, err = billing.ParsePeriod(py.End, kind); err != nil {
			return payments.Draft{}, err
		}
	}
	return payments.Draft{
		ClientID:     clientID,
		ContractID:   billing.ContractID(py.ContractID),
		ReceivedDate: received,
		ActualFee:    py.ActualFee,
		TotalAssets:  py.TotalAssets,
		Method:       py.Method,
		Notes:        py.Notes,
		Start:        start,
		End:          end,
	}, nil
}
