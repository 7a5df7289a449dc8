/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing and payments models from the wire contract the UI renders.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Client:
    ClientDTO, CreateClientRequest

  Contract:
    ContractDTO (wraps factory.ContractJSON), ReviseContractRequest,
    FeeSummaryDTO, ProviderGroupDTO, SnapshotDTO

  Periods:
    PeriodDTO, PeriodsDTO

  Fees:
    ExpectedFeeDTO, VarianceDTO, ReconcileRequest

  Payments:
    PaymentDTO, EvaluationDTO, PaymentPageDTO, MetricsDTO,
    SubmitPaymentRequest, UpdatePaymentRequest, ReplacePeriodsRequest

  Compliance:
    ComplianceDTO

MONEY:
  All amounts are decimal strings ("2500.00") so no float ever touches a
  fee. Display strings ("$2,500.00") are provided alongside where the UI
  shows them verbatim.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/contract.go: ContractJSON type
*/
package api

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/warp/fee-engine/billing"
	"github.com/warp/fee-engine/factory"
	"github.com/warp/fee-engine/fees"
	"github.com/warp/fee-engine/payments"
	"github.com/warp/fee-engine/store/sqlite"
)

const dateLayout = "2006-01-02"

// =============================================================================
// CLIENTS AND CONTRACTS
// =============================================================================

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateClientRequest is the request to create or rename a client.
type CreateClientRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ContractDTO represents a contract in API responses.
type ContractDTO struct {
	factory.ContractJSON
	PeriodKind string `json:"period_kind"`
	FeeDisplay string `json:"fee_display"`
}

// ReviseContractRequest replaces a contract's terms with a new version.
// EffectiveDate closes the old version; it defaults to the new start date.
type ReviseContractRequest struct {
	factory.ContractJSON
	EffectiveDate string `json:"effective_date,omitempty"`
}

// FeeSummaryDTO is a contract's fee at every cadence. Nil fields render "N/A".
type FeeSummaryDTO struct {
	ContractID string `json:"contract_id"`
	fees.FeeBundle
	Display     map[string]string `json:"display"`      // "monthly" -> "$833.33"
	RateDisplay map[string]string `json:"rate_display"` // "monthly" -> "0.042%"
}

// ProviderGroupDTO lists the clients served by one provider.
type ProviderGroupDTO struct {
	Provider string      `json:"provider"`
	Clients  []ClientDTO `json:"clients"`
}

// SnapshotDTO is a client's dashboard: open contracts and their metrics.
type SnapshotDTO struct {
	Client    ClientDTO             `json:"client"`
	Contracts []ContractDTO         `json:"contracts"`
	Metrics   map[string]MetricsDTO `json:"metrics"` // by contract id
}

// =============================================================================
// PERIODS
// =============================================================================

// PeriodDTO is one billable period.
type PeriodDTO struct {
	Key   string `json:"key"`   // "<index>-<year>"
	Label string `json:"label"` // "Q1 2024", "Jan 2024"
}

// PeriodsDTO lists the periods a payment may cover, newest first.
type PeriodsDTO struct {
	Kind    string      `json:"kind"`
	Periods []PeriodDTO `json:"periods"`
}

// =============================================================================
// FEES
// =============================================================================

// ExpectedFeeDTO is the expected fee for a period or range. When rate data
// is missing Amount is nil and Display is "N/A".
type ExpectedFeeDTO struct {
	Amount    *decimal.Decimal `json:"amount"`
	PerPeriod *decimal.Decimal `json:"per_period,omitempty"`
	Periods   int              `json:"periods"`
	Method    string           `json:"method,omitempty"`
	Display   string           `json:"display"`
}

// VarianceDTO is a reconciliation outcome.
type VarianceDTO struct {
	Band        string           `json:"band"`
	Label       string           `json:"label"`
	Difference  *decimal.Decimal `json:"difference"`
	PercentDiff *decimal.Decimal `json:"percent_diff"`
}

// ReconcileRequest compares an arbitrary actual figure to an expected one.
type ReconcileRequest struct {
	Actual   decimal.Decimal  `json:"actual"`
	Expected *decimal.Decimal `json:"expected"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents a payment with its evaluation.
type PaymentDTO struct {
	ID           string           `json:"id"`
	ClientID     string           `json:"client_id"`
	ContractID   string           `json:"contract_id"`
	ReceivedDate string           `json:"received_date"`
	ActualFee    decimal.Decimal  `json:"actual_fee"`
	TotalAssets  *decimal.Decimal `json:"total_assets,omitempty"`
	Method       string           `json:"method,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	Start        string           `json:"start"`
	End          string           `json:"end"`
	Status       string           `json:"status"`
	Received     string           `json:"received,omitempty"` // "3 days ago"
	Applied      []PeriodDTO      `json:"applied_periods,omitempty"`
	Evaluation   *EvaluationDTO   `json:"evaluation,omitempty"`
	Warning      string           `json:"warning,omitempty"`
}

// PaymentPageDTO is one page of a payment history.
type PaymentPageDTO struct {
	Items    []PaymentDTO `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// MetricsDTO summarizes a contract's payments.
type MetricsDTO struct {
	PaymentCount       int              `json:"payment_count"`
	LastPaymentDate    string           `json:"last_payment_date,omitempty"`
	LastPaymentAmount  *decimal.Decimal `json:"last_payment_amount"`
	LastPaymentPeriod  string           `json:"last_payment_period,omitempty"`
	TotalYTD           decimal.Decimal  `json:"total_ytd"`
	TotalYTDDisplay    string           `json:"total_ytd_display"`
	AveragePerPeriod   *decimal.Decimal `json:"average_per_period"`
	LastRecordedAssets *decimal.Decimal `json:"last_recorded_assets"`
}

// EvaluationDTO is everything a payment history row shows.
type EvaluationDTO struct {
	PeriodLabel     string          `json:"period_label"`
	Periods         int             `json:"periods"`
	IsSplit         bool            `json:"is_split"`
	Expected        ExpectedFeeDTO  `json:"expected"`
	Variance        VarianceDTO     `json:"variance"`
	AmountPerPeriod decimal.Decimal `json:"amount_per_period"`
}

// SubmitPaymentRequest records a new payment. Start and End use the
// "<index>-<year>" key in the contract's native kind; End defaults to Start.
type SubmitPaymentRequest struct {
	ContractID   string           `json:"contract_id"`
	ReceivedDate string           `json:"received_date"`
	ActualFee    decimal.Decimal  `json:"actual_fee"`
	TotalAssets  *decimal.Decimal `json:"total_assets,omitempty"`
	Method       string           `json:"method,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	Start        string           `json:"start"`
	End          string           `json:"end,omitempty"`
	Confirmed    bool             `json:"confirmed,omitempty"`
}

// UpdatePaymentRequest edits the non-period fields of a payment. Omitted
// fields are left unchanged.
type UpdatePaymentRequest struct {
	ReceivedDate     *string          `json:"received_date,omitempty"`
	ActualFee        *decimal.Decimal `json:"actual_fee,omitempty"`
	TotalAssets      *decimal.Decimal `json:"total_assets,omitempty"`
	ClearTotalAssets bool             `json:"clear_total_assets,omitempty"`
	Method           *string          `json:"method,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
}

// ReplacePeriodsRequest re-applies a payment to different periods. The full
// payment is resubmitted; the contract comes from the payment being replaced.
type ReplacePeriodsRequest struct {
	ReceivedDate string           `json:"received_date"`
	ActualFee    decimal.Decimal  `json:"actual_fee"`
	TotalAssets  *decimal.Decimal `json:"total_assets,omitempty"`
	Method       string           `json:"method,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	Start        string           `json:"start"`
	End          string           `json:"end,omitempty"`
}

// LargeVarianceResponse asks the UI to confirm an unusual amount. The
// payment has not been recorded; resubmit with confirmed=true.
type LargeVarianceResponse struct {
	Error    string          `json:"error"`
	Details  string          `json:"details"`
	Amount   decimal.Decimal `json:"amount"`
	Previous decimal.Decimal `json:"previous"`
	Change   decimal.Decimal `json:"change"`
}

// =============================================================================
// COMPLIANCE
// =============================================================================

// ComplianceDTO is the compliance determination for one contract.
type ComplianceDTO struct {
	ClientID    string   `json:"client_id"`
	ContractID  string   `json:"contract_id"`
	Status      string   `json:"status"`
	State       string   `json:"state"`
	NextDue     string   `json:"next_due,omitempty"`
	LastPayment string   `json:"last_payment,omitempty"`
	Reasons     []string `json:"reasons,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toClientDTO(c sqlite.Client) ClientDTO {
	return ClientDTO{ID: string(c.ID), Name: c.Name}
}

func toContractDTO(f *factory.ContractFactory, c billing.Contract) ContractDTO {
	dto := ContractDTO{ContractJSON: f.ToJSON(c), PeriodKind: string(c.PeriodKind())}
	switch t := c.Terms.(type) {
	case billing.FlatRate:
		dto.FeeDisplay = fees.FormatMoney(t.Amount) + " " + string(c.Frequency)
	case billing.PercentageOfAUM:
		dto.FeeDisplay = t.Percent.StringFixed(3) + "% " + string(c.Frequency)
	default:
		dto.FeeDisplay = "N/A"
	}
	return dto
}

var summaryGranularities = []billing.Granularity{billing.PerMonth, billing.PerQuarter, billing.PerYear}

func toFeeSummaryDTO(contractID billing.ContractID, b fees.FeeBundle) FeeSummaryDTO {
	dto := FeeSummaryDTO{
		ContractID:  string(contractID),
		FeeBundle:   b,
		Display:     make(map[string]string, len(summaryGranularities)),
		RateDisplay: make(map[string]string, len(summaryGranularities)),
	}
	for _, g := range summaryGranularities {
		dto.Display[string(g)] = "N/A"
		if amount := b.Amount(g); amount != nil {
			dto.Display[string(g)] = fees.FormatMoney(*amount)
		}
		dto.RateDisplay[string(g)] = "N/A"
		if rate := b.Rate(g); rate != nil {
			dto.RateDisplay[string(g)] = rate.StringFixed(3) + "%"
		}
	}
	return dto
}

func toProviderGroupDTO(g sqlite.ProviderGroup) ProviderGroupDTO {
	dto := ProviderGroupDTO{Provider: g.Provider, Clients: make([]ClientDTO, 0, len(g.Clients))}
	for _, c := range g.Clients {
		dto.Clients = append(dto.Clients, toClientDTO(c))
	}
	return dto
}

func toMetricsDTO(m payments.Metrics) MetricsDTO {
	dto := MetricsDTO{
		PaymentCount:       m.PaymentCount,
		LastPaymentAmount:  m.LastPaymentAmount,
		LastPaymentPeriod:  m.LastPaymentPeriod,
		TotalYTD:           m.TotalYTD,
		TotalYTDDisplay:    fees.FormatMoney(m.TotalYTD),
		AveragePerPeriod:   m.AveragePerPeriod,
		LastRecordedAssets: m.LastRecordedAssets,
	}
	if m.LastPaymentDate != nil {
		dto.LastPaymentDate = m.LastPaymentDate.Format(dateLayout)
	}
	return dto
}

func toPeriodsDTO(p payments.Periods) PeriodsDTO {
	out := PeriodsDTO{Kind: string(p.Kind), Periods: make([]PeriodDTO, 0, len(p.Periods))}
	for _, period := range p.Periods {
		out.Periods = append(out.Periods, PeriodDTO{Key: period.Key(), Label: period.Label()})
	}
	return out
}

func toExpectedDTO(e *fees.ExpectedFee) ExpectedFeeDTO {
	if e == nil {
		return ExpectedFeeDTO{Display: "N/A"}
	}
	amount, per := e.Amount, e.PerPeriod
	return ExpectedFeeDTO{
		Amount:    &amount,
		PerPeriod: &per,
		Periods:   e.Periods,
		Method:    e.Method,
		Display:   fees.FormatMoney(e.Amount),
	}
}

func toVarianceDTO(v fees.Variance) VarianceDTO {
	return VarianceDTO{
		Band:        string(v.Band),
		Label:       v.Band.Label(),
		Difference:  v.Difference,
		PercentDiff: v.PercentDiff,
	}
}

func toPaymentDTO(p payments.Payment, now time.Time) PaymentDTO {
	dto := PaymentDTO{
		ID:           string(p.ID),
		ClientID:     string(p.ClientID),
		ContractID:   string(p.ContractID),
		ReceivedDate: p.ReceivedDate.Format(dateLayout),
		ActualFee:    p.ActualFee,
		TotalAssets:  p.TotalAssets,
		Method:       p.Method,
		Notes:        p.Notes,
		Start:        p.Start.Key(),
		End:          p.End.Key(),
		Status:       string(p.Status),
	}
	if !p.ReceivedDate.IsZero() {
		dto.Received = humanize.RelTime(p.ReceivedDate, now, "ago", "from now")
	}
	if applied, err := p.AppliedPeriods(); err == nil {
		dto.Applied = make([]PeriodDTO, 0, len(applied))
		for _, period := range applied {
			dto.Applied = append(dto.Applied, PeriodDTO{Key: period.Key(), Label: period.Label()})
		}
	}
	return dto
}

func toRecordDTO(r payments.Record, now time.Time) PaymentDTO {
	dto := toPaymentDTO(r.Payment, now)
	ev := r.Evaluation
	dto.Evaluation = &EvaluationDTO{
		PeriodLabel:     ev.PeriodLabel,
		Periods:         ev.Periods,
		IsSplit:         ev.IsSplit,
		Expected:        toExpectedDTO(ev.Expected),
		Variance:        toVarianceDTO(ev.Variance),
		AmountPerPeriod: ev.AmountPerPeriod,
	}
	dto.Warning = r.Warning
	return dto
}

func toPageDTO(p payments.Page, now time.Time) PaymentPageDTO {
	dto := PaymentPageDTO{Items: make([]PaymentDTO, 0, len(p.Items)), Total: p.Total, Page: p.Page, PageSize: p.PageSize}
	for _, rec := range p.Items {
		dto.Items = append(dto.Items, toRecordDTO(rec, now))
	}
	return dto
}

func toComplianceDTO(r payments.ComplianceReport) ComplianceDTO {
	dto := ComplianceDTO{
		ClientID:   string(r.ClientID),
		ContractID: string(r.ContractID),
		Status:     string(r.Status),
		State:      string(r.Dueness.State),
		Reasons:    r.Reasons,
	}
	if r.Dueness.NextDue != nil {
		dto.NextDue = r.Dueness.NextDue.Format(dateLayout)
	}
	if r.LastPayment != nil {
		dto.LastPayment = r.LastPayment.Format(dateLayout)
	}
	return dto
}
