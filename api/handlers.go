/*
handlers.go - HTTP handlers for the fee engine API

PURPOSE:
  Thin translation layer between HTTP and the payments service. Handlers
  parse path/query/body, call the service or the pure fee functions, and map
  the result (or error) to JSON. No fee rule lives here.

ENDPOINT GROUPS:
  Clients:     list, create, group by provider, snapshot
  Contracts:   list, get, create (via factory.ContractFactory), revise, end
  Fees:        fee summary, available periods, expected fee, reconcile
  Payments:    history (optionally paged), detail, metrics, submit, update,
               replace periods, delete
  Compliance:  single contract, latest monitor sweep
  Seed:        load a YAML seed document

ERROR MAPPING:
  Validation (billing.IsValidation)      400
  Ownership mismatch                     403
  Not found                              404
  Large variance, needs confirmation     409 (LargeVarianceResponse)
  Duplicate payment, invalid transition  409
  Fee terms changed on a saved contract  409
  Anything else                          500

  Missing rate data is not an error at this layer: expected fees degrade
  to {"amount": null, "display": "N/A"} with status 200.

SEE ALSO:
  - server.go: Route definitions
  - dto.go: Request/response types
  - payments/service.go: The operations called here
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/fee-engine/billing"
	"github.com/warp/fee-engine/factory"
	"github.com/warp/fee-engine/fees"
	"github.com/warp/fee-engine/payments"
	"github.com/warp/fee-engine/store/sqlite"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Service *payments.Service
	Factory *factory.ContractFactory
	Monitor *ComplianceMonitor // optional
	Log     zerolog.Logger
}

// NewHandler creates a handler whose service reads contracts, periods and
// AUM from the store.
func NewHandler(store *sqlite.Store, log zerolog.Logger) *Handler {
	svc := payments.NewService(store, store)
	svc.Periods = store
	svc.AUM = store
	svc.Log = log.With().Str("component", "payments").Logger()
	return &Handler{
		Store:   store,
		Service: svc,
		Factory: factory.NewContractFactory(),
		Log:     log,
	}
}

func (h *Handler) now() time.Time {
	return h.Service.Now()
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CLIENT ENDPOINTS
// =============================================================================

// ListClients returns all clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, 0, len(clients))
	for _, c := range clients {
		dtos = append(dtos, toClientDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClient creates or renames a client.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	c := sqlite.Client{ID: billing.ClientID(req.ID), Name: req.Name}
	if err := h.Store.SaveClient(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save client", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(c))
}

// ClientsByProvider groups clients by the providers of their open contracts.
func (h *Handler) ClientsByProvider(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.ClientsByProvider(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to group clients", err)
		return
	}

	dtos := make([]ProviderGroupDTO, 0, len(groups))
	for _, g := range groups {
		dtos = append(dtos, toProviderGroupDTO(g))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSnapshot returns a client with its open contracts and their metrics.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := billing.ClientID(chi.URLParam(r, "clientID"))

	client, err := h.Store.GetClient(ctx, clientID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	contracts, err := h.Store.ListContractsByClient(ctx, clientID, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list contracts", err)
		return
	}

	snap := SnapshotDTO{
		Client:    toClientDTO(client),
		Contracts: make([]ContractDTO, 0, len(contracts)),
		Metrics:   make(map[string]MetricsDTO, len(contracts)),
	}
	for _, c := range contracts {
		m, err := h.Service.Metrics(ctx, clientID, c.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		snap.Contracts = append(snap.Contracts, toContractDTO(h.Factory, c))
		snap.Metrics[string(c.ID)] = toMetricsDTO(m)
	}
	writeJSON(w, http.StatusOK, snap)
}

// =============================================================================
// CONTRACT ENDPOINTS
// =============================================================================

// ListContracts returns a client's open contracts. With ?include_ended=true
// ended versions are listed too.
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	clientID := billing.ClientID(chi.URLParam(r, "clientID"))
	includeEnded := strings.EqualFold(r.URL.Query().Get("include_ended"), "true")

	contracts, err := h.Store.ListContractsByClient(r.Context(), clientID, includeEnded)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list contracts", err)
		return
	}

	dtos := make([]ContractDTO, 0, len(contracts))
	for _, c := range contracts {
		dtos = append(dtos, toContractDTO(h.Factory, c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetContract returns one contract after the ownership check.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	clientID, contractID := contractParams(r)

	c, err := h.Store.Contract(r.Context(), clientID, contractID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(h.Factory, c))
}

// CreateContract creates a contract from its JSON definition, or updates the
// descriptive fields of an existing one. The client in the path wins over any
// client_id in the body. A contract of another client is 403; changed fee
// terms or frequency are 409 and need a revision instead.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var cj factory.ContractJSON
	if err := json.NewDecoder(r.Body).Decode(&cj); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	cj.ClientID = chi.URLParam(r, "clientID")

	c, err := h.Factory.FromJSON(cj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contract", err)
		return
	}
	if err := h.Store.SaveContract(r.Context(), c); err != nil {
		writeServiceError(w, err)
		return
	}

	h.Log.Info().Str("client_id", string(c.ClientID)).Str("contract_id", string(c.ID)).Msg("contract saved")
	writeJSON(w, http.StatusCreated, toContractDTO(h.Factory, c))
}

// ReviseContract ends a contract and creates its successor with new terms.
// Payments stay with the version they were recorded under.
func (h *Handler) ReviseContract(w http.ResponseWriter, r *http.Request) {
	clientID, contractID := contractParams(r)

	var req ReviseContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	req.ClientID = string(clientID)

	next, err := h.Factory.FromJSON(req.ContractJSON)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contract", err)
		return
	}
	effective := next.StartDate
	if req.EffectiveDate != "" {
		if effective, err = parseContractDate("effective_date", req.EffectiveDate); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	if effective.IsZero() {
		effective = h.now()
	}

	if err := h.Store.ReviseContract(r.Context(), clientID, contractID, next, effective); err != nil {
		writeServiceError(w, err)
		return
	}

	h.Log.Info().
		Str("client_id", string(clientID)).
		Str("contract_id", string(contractID)).
		Str("successor", string(next.ID)).
		Msg("contract revised")
	writeJSON(w, http.StatusCreated, toContractDTO(h.Factory, next))
}

// EndContract closes a contract as of ?effective_date= (default today). Its
// payment history stays readable.
func (h *Handler) EndContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, contractID := contractParams(r)

	if _, err := h.Store.Contract(ctx, clientID, contractID); err != nil {
		writeServiceError(w, err)
		return
	}
	at := h.now()
	if raw := r.URL.Query().Get("effective_date"); raw != "" {
		d, err := parseContractDate("effective_date", raw)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		at = d
	}

	if err := h.Store.EndContract(ctx, contractID, at); err != nil {
		writeServiceError(w, err)
		return
	}
	h.Log.Info().Str("client_id", string(clientID)).Str("contract_id", string(contractID)).Msg("contract ended")
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// FEE ENDPOINTS
// =============================================================================

// GetFeeSummary returns the contract fee at monthly, quarterly and annual
// cadence.
func (h *Handler) GetFeeSummary(w http.ResponseWriter, r *http.Request) {
	clientID, contractID := contractParams(r)

	bundle, err := h.Service.FeeSummary(r.Context(), clientID, contractID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeeSummaryDTO(contractID, bundle))
}

// GetPeriods returns the periods a new payment may cover, newest first.
func (h *Handler) GetPeriods(w http.ResponseWriter, r *http.Request) {
	clientID, contractID := contractParams(r)

	periods, err := h.Service.AvailablePeriods(r.Context(), clientID, contractID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodsDTO(periods))
}

// GetExpectedFee computes the expected fee for ?start=&end= (end defaults to
// start). An optional ?aum= overrides any stored figure.
func (h *Handler) GetExpectedFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, contractID := contractParams(r)

	contract, err := h.Store.Contract(ctx, clientID, contractID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	q := r.URL.Query()
	start, end, err := parseRange(q.Get("start"), q.Get("end"), contract.PeriodKind())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var aum *decimal.Decimal
	if raw := q.Get("aum"); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid aum", err)
			return
		}
		aum = &v
	}

	exp, err := h.Service.Expected(ctx, clientID, contractID, start, end, aum)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toExpectedDTO(&exp))
	case errors.Is(err, billing.ErrMissingRateData):
		dto := toExpectedDTO(nil)
		dto.Periods, _ = billing.CountSpan(start, end)
		writeJSON(w, http.StatusOK, dto)
	default:
		writeServiceError(w, err)
	}
}

// Reconcile classifies an actual amount against an expected one.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	writeJSON(w, http.StatusOK, toVarianceDTO(fees.Reconcile(req.Actual, req.Expected)))
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

// ListPayments returns the active payment history of a contract, newest
// first, each evaluated against current terms. With ?page= or ?page_size=
// the response is a PaymentPageDTO instead of a plain list.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	clientID, contractID := contractParams(r)

	q := r.URL.Query()
	if q.Has("page") || q.Has("page_size") {
		page, err := queryInt(q.Get("page"), 1)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid page", err)
			return
		}
		size, err := queryInt(q.Get("page_size"), payments.DefaultPageSize)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid page_size", err)
			return
		}
		result, err := h.Service.HistoryPage(r.Context(), clientID, contractID, page, size)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPageDTO(result, h.now()))
		return
	}

	records, err := h.Service.History(r.Context(), clientID, contractID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	now := h.now()
	dtos := make([]PaymentDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toRecordDTO(rec, now))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMetrics summarizes a contract's payments.
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	clientID, contractID := contractParams(r)

	m, err := h.Service.Metrics(r.Context(), clientID, contractID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMetricsDTO(m))
}

// GetPayment returns one payment of the client with its evaluation.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	clientID := billing.ClientID(chi.URLParam(r, "clientID"))
	paymentID := billing.PaymentID(chi.URLParam(r, "paymentID"))

	rec, err := h.Service.Payment(r.Context(), clientID, paymentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec, h.now()))
}

// SubmitPayment records a payment. A large change from the previous payment
// returns 409 until the request is repeated with confirmed=true.
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := billing.ClientID(chi.URLParam(r, "clientID"))

	var req SubmitPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	contract, err := h.Store.Contract(ctx, clientID, billing.ContractID(req.ContractID))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	draft, err := buildDraft(req.ReceivedDate, req.Start, req.End, contract.PeriodKind())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	draft.ClientID = clientID
	draft.ContractID = contract.ID
	draft.ActualFee = req.ActualFee
	draft.TotalAssets = req.TotalAssets
	draft.Method = req.Method
	draft.Notes = req.Notes

	p, err := h.Service.Submit(ctx, draft, payments.SubmitOptions{Confirmed: req.Confirmed})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(*p, h.now()))
}

// UpdatePayment edits the non-period fields of a payment.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	clientID := billing.ClientID(chi.URLParam(r, "clientID"))
	paymentID := billing.PaymentID(chi.URLParam(r, "paymentID"))

	var req UpdatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	u := payments.Update{
		ActualFee:        req.ActualFee,
		TotalAssets:      req.TotalAssets,
		ClearTotalAssets: req.ClearTotalAssets,
		Method:           req.Method,
		Notes:            req.Notes,
	}
	if req.ReceivedDate != nil {
		d, err := parseDate("received_date", *req.ReceivedDate)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		u.ReceivedDate = &d
	}

	p, err := h.Service.Update(r.Context(), clientID, paymentID, u)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p, h.now()))
}

// ReplacePeriods re-applies a payment to different periods. The old payment
// is deleted and the new one recorded atomically.
func (h *Handler) ReplacePeriods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := billing.ClientID(chi.URLParam(r, "clientID"))
	paymentID := billing.PaymentID(chi.URLParam(r, "paymentID"))

	var req ReplacePeriodsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	old, err := h.Store.Get(ctx, paymentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	contract, err := h.Store.Contract(ctx, clientID, old.ContractID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	draft, err := buildDraft(req.ReceivedDate, req.Start, req.End, contract.PeriodKind())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	draft.ActualFee = req.ActualFee
	draft.TotalAssets = req.TotalAssets
	draft.Method = req.Method
	draft.Notes = req.Notes

	p, err := h.Service.ReplacePeriods(ctx, clientID, paymentID, draft)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*p, h.now()))
}

// DeletePayment marks a payment deleted.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	clientID := billing.ClientID(chi.URLParam(r, "clientID"))
	paymentID := billing.PaymentID(chi.URLParam(r, "paymentID"))

	if err := h.Service.Delete(r.Context(), clientID, paymentID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// COMPLIANCE ENDPOINTS
// =============================================================================

// GetCompliance classifies one contract. External review flags arrive as
// ?needs_review=true and repeated ?reason= parameters.
func (h *Handler) GetCompliance(w http.ResponseWriter, r *http.Request) {
	clientID, contractID := contractParams(r)
	q := r.URL.Query()
	signals := fees.ReviewSignals{
		NeedsReview: strings.EqualFold(q.Get("needs_review"), "true"),
		Reasons:     q["reason"],
	}

	report, err := h.Service.Compliance(r.Context(), clientID, contractID, signals)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toComplianceDTO(report))
}

// ListCompliance returns the latest compliance monitor sweep. With
// ?refresh=true the sweep runs synchronously first.
func (h *Handler) ListCompliance(w http.ResponseWriter, r *http.Request) {
	if h.Monitor == nil {
		writeError(w, http.StatusServiceUnavailable, "compliance monitor is not running", nil)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("refresh"), "true") {
		if err := h.Monitor.RunNow(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "compliance sweep failed", err)
			return
		}
	}

	reports, at := h.Monitor.Latest()
	dtos := make([]ComplianceDTO, 0, len(reports))
	for _, rep := range reports {
		dtos = append(dtos, toComplianceDTO(rep))
	}
	resp := map[string]any{
		"reports":  dtos,
		"next_run": h.Monitor.NextRunTime().UTC().Format(time.RFC3339),
	}
	if !at.IsZero() {
		resp["checked_at"] = at.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func contractParams(r *http.Request) (billing.ClientID, billing.ContractID) {
	return billing.ClientID(chi.URLParam(r, "clientID")), billing.ContractID(chi.URLParam(r, "contractID"))
}

func parseDate(field, s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &billing.FieldError{
			Field: field, Message: fmt.Sprintf("%q is not YYYY-MM-DD", s), Err: billing.ErrInvalidPayment,
		}
	}
	return d, nil
}

func parseContractDate(field, s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &billing.FieldError{
			Field: field, Message: fmt.Sprintf("%q is not YYYY-MM-DD", s), Err: billing.ErrInvalidContract,
		}
	}
	return d, nil
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// parseRange parses "<index>-<year>" keys; an empty end means a single period.
func parseRange(start, end string, kind billing.PeriodKind) (billing.Period, billing.Period, error) {
	s, err := billing.ParsePeriod(start, kind)
	if err != nil {
		return billing.Period{}, billing.Period{}, err
	}
	if end == "" {
		return s, s, nil
	}
	e, err := billing.ParsePeriod(end, kind)
	if err != nil {
		return billing.Period{}, billing.Period{}, err
	}
	return s, e, nil
}

func buildDraft(received, start, end string, kind billing.PeriodKind) (payments.Draft, error) {
	d, err := parseDate("received_date", received)
	if err != nil {
		return payments.Draft{}, err
	}
	s, e, err := parseRange(start, end, kind)
	if err != nil {
		return payments.Draft{}, err
	}
	return payments.Draft{ReceivedDate: d, Start: s, End: e}, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps engine errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var lv *fees.LargeVarianceError
	switch {
	case errors.As(err, &lv):
		writeJSON(w, http.StatusConflict, LargeVarianceResponse{
			Error:    "confirmation required",
			Details:  lv.Error(),
			Amount:   lv.Amount,
			Previous: lv.Previous,
			Change:   lv.Change,
		})
	case errors.Is(err, billing.ErrOwnershipMismatch):
		writeError(w, http.StatusForbidden, "contract does not belong to client", err)
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, billing.ErrDuplicatePayment), errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrTermsChanged):
		writeError(w, http.StatusConflict, "conflict", err)
	case billing.IsValidation(err):
		writeError(w, http.StatusBadRequest, "validation failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
