/*
handlers.go - HTTP API handlers for the payroll ledger

PURPOSE:
  Exposes the engine's command surface to the UI via REST. Handles HTTP
  request/response, JSON serialization and request validation, and
  delegates every rule to the engine.

ENDPOINTS:
  Workers:
    GET    /api/workers                       List workers
    POST   /api/workers                       Create worker (with first rate)
    GET    /api/workers/{id}                  Worker with salary history
    PUT    /api/workers/{id}/status           Activate / suspend
    POST   /api/workers/{id}/rates            Upsert a salary history entry
    GET    /api/workers/{id}/rate?date=       Rate in force on date
    GET    /api/workers/{id}/records?from=&to= Records in range
    GET    /api/workers/{id}/summary?from=&to= Period summary

  Days:
    GET    /api/days/{date}                   Records of a date
    PUT    /api/days/{date}                   Replace the date's records
    POST   /api/days/{date}/schedule          Default records for active workers
    POST   /api/days/{date}/merge             Additive same-day adjustment

  Records:
    GET    /api/records/{id}                  Record
    PATCH  /api/records/{id}                  Field-level edit
    GET    /api/records/{id}/pay              Net pay breakdown
    POST   /api/records/{id}/advances         File a deferred advance
    PUT    /api/records/{id}/advances/{entry} Edit a deferred advance
    DELETE /api/records/{id}/advances/{entry} Remove a deferred advance

  Accounts:
    GET    /api/accounts                      List accounts
    POST   /api/accounts                      Create account
    GET    /api/accounts/{id}                 Account
    GET    /api/accounts/{id}/balance?party=  Active-segment balance
    GET    /api/accounts/{id}/transactions    Full ordered log
    POST   /api/accounts/{id}/transactions    Add transaction
    PUT    /api/accounts/{id}/transactions/{tx}?force=  Edit
    DELETE /api/accounts/{id}/transactions/{tx}?force=  Delete
    POST   /api/accounts/{id}/transactions/{tx}/cash    Mark cheque cashed
    GET    /api/accounts/{id}/checkpoints     Reconciliation history
    GET    /api/accounts/{id}/segment         Entries counted by the balance
    GET    /api/accounts/{id}/cheques/pending Pending cheques
    POST   /api/accounts/{id}/reconcile       Reconcile as of today

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (locked checkpoint, duplicate id)
  - 500: Internal errors

  Commands that succeed with caveats answer 200/201 with a "warnings"
  array next to the result.

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/warp/payroll-ledger/accounts"
	"github.com/warp/payroll-ledger/advance"
	"github.com/warp/payroll-ledger/daily"
	"github.com/warp/payroll-ledger/engine"
	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/rates"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *engine.Engine
	Logger *slog.Logger

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler around the engine.
func NewHandler(e *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Engine:   e,
		Logger:   logger,
		validate: validator.New(),
	}
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.ListWorkers())
}

func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if !h.decode(w, r, &req) {
		return
	}
	worker, err := h.Engine.CreateWorker(r.Context(), rates.Worker{
		ID:     req.ID,
		Name:   req.Name,
		Legacy: req.Legacy,
	}, req.Rate.toEntry())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, worker)
}

func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	worker, err := h.Engine.GetWorker(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

func (h *Handler) SetWorkerStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	worker, err := h.Engine.SetWorkerStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

func (h *Handler) UpsertRateEntry(w http.ResponseWriter, r *http.Request) {
	var req RateEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	worker, err := h.Engine.UpsertRateEntry(r.Context(), chi.URLParam(r, "id"), req.toEntry())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

// ResolveRate answers with the entry in force on ?date= (default today).
func (h *Handler) ResolveRate(w http.ResponseWriter, r *http.Request) {
	date := h.Engine.Today()
	if s := r.URL.Query().Get("date"); s != "" {
		var err error
		if date, err = generic.ParseTimePoint(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
	}
	entry, err := h.Engine.ResolveRate(chi.URLParam(r, "id"), date)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) WorkerRecords(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r, h.Engine.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	records, err := h.Engine.RecordsByWorker(chi.URLParam(r, "id"), period)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if records == nil {
		records = []daily.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) WorkerSummary(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r, h.Engine.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	sum, err := h.Engine.Summarize(chi.URLParam(r, "id"), period)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryDTO{From: period.Start.String(), To: period.End.String(), Summary: sum})
}

// =============================================================================
// DAY HANDLERS
// =============================================================================

func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Engine.RecordsByDate(date))
}

func (h *Handler) ReplaceDay(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	var req ReplaceDayRequest
	if !h.decode(w, r, &req) {
		return
	}
	records := make([]daily.Record, len(req.Records))
	for i, rec := range req.Records {
		records[i] = rec.toRecord(date)
	}
	out, err := h.Engine.ReplaceDay(r.Context(), date, records)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ScheduleDay(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	var req ScheduleDayRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	created := h.Engine.ScheduleDay(r.Context(), date, req.ProjectID)
	if created == nil {
		created = []daily.Record{}
	}
	writeJSON(w, http.StatusOK, created)
}

func (h *Handler) MergeInto(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	var req MergeRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.Engine.MergeInto(r.Context(), req.WorkerID, date, req.Fields)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Engine.GetRecord(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req daily.Fields
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.Engine.UpdateRecord(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) GetPay(w http.ResponseWriter, r *http.Request) {
	pay, err := h.Engine.ComputeNetPay(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PayDTO{
		RecordID:   pay.Record.ID,
		WorkerID:   pay.Record.WorkerID,
		Date:       pay.Record.Date.String(),
		Rate:       pay.Rate,
		Gross:      pay.Gross,
		Deductions: pay.Deductions,
		Net:        pay.Net,
	})
}

func (h *Handler) AddDeferredAdvance(w http.ResponseWriter, r *http.Request) {
	var req AddAdvanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, entry, err := h.Engine.AddDeferredAdvance(r.Context(), chi.URLParam(r, "id"), advance.Entry{
		Date:   req.Date,
		Amount: req.Amount,
		Notes:  req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"record": rec, "entry": entry})
}

func (h *Handler) EditDeferredAdvance(w http.ResponseWriter, r *http.Request) {
	var req daily.AdvanceUpdate
	if !h.decode(w, r, &req) {
		return
	}
	rec, warnings, err := h.Engine.EditDeferredAdvance(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entryID"), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarnings(rec, warnings))
}

func (h *Handler) RemoveDeferredAdvance(w http.ResponseWriter, r *http.Request) {
	rec, warnings, err := h.Engine.RemoveDeferredAdvance(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entryID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarnings(rec, warnings))
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.ListAccounts())
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.Engine.CreateAccount(r.Context(), accounts.Account{
		ID:         req.ID,
		Name:       req.Name,
		Parties:    req.Parties,
		Currencies: req.Currencies,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.Engine.GetAccount(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GetBalance answers for ?party=, defaulting to the account's first party.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	party := r.URL.Query().Get("party")
	if party == "" {
		a, err := h.Engine.GetAccount(accountID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		party = a.Primary()
	}
	b, err := h.Engine.Balance(accountID, party)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(accountID, party, b))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	h.writeTransactions(w, r, h.Engine.Transactions)
}

func (h *Handler) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	h.writeTransactions(w, r, h.Engine.Checkpoints)
}

func (h *Handler) ListActiveSegment(w http.ResponseWriter, r *http.Request) {
	h.writeTransactions(w, r, h.Engine.ActiveSegment)
}

func (h *Handler) ListPendingCheques(w http.ResponseWriter, r *http.Request) {
	h.writeTransactions(w, r, h.Engine.PendingCheques)
}

func (h *Handler) writeTransactions(w http.ResponseWriter, r *http.Request, query func(string) ([]accounts.Transaction, error)) {
	txs, err := query(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if txs == nil {
		txs = []accounts.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *Handler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, warnings, err := h.Engine.AddTransaction(r.Context(), chi.URLParam(r, "id"), req.toDraft())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, withWarnings(tx, warnings))
}

func (h *Handler) EditTransaction(w http.ResponseWriter, r *http.Request) {
	opts, ok := editOptions(w, r)
	if !ok {
		return
	}
	var req TransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, warnings, err := h.Engine.EditTransaction(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "txID"), req.toDraft(), opts)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarnings(tx, warnings))
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	opts, ok := editOptions(w, r)
	if !ok {
		return
	}
	warnings, err := h.Engine.DeleteTransaction(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "txID"), opts)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarnings(nil, warnings))
}

func (h *Handler) MarkChequeCashed(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Engine.MarkChequeCashed(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "txID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	res, err := h.Engine.Reconcile(r.Context(), chi.URLParam(r, "id"), accounts.ReconcileInput{
		ExcludedChequeIDs: req.ExcludedChequeIDs,
		ManualOverride:    req.ManualOverride,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads the JSON body into v and validates it. On failure it has
// already written a 400 response.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func dateParam(w http.ResponseWriter, r *http.Request) (generic.TimePoint, bool) {
	date, err := generic.ParseTimePoint(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return generic.TimePoint{}, false
	}
	return date, true
}

// parsePeriod reads ?from=&to=. Without both, the current month is used.
func parsePeriod(r *http.Request, today generic.TimePoint) (generic.Period, error) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" && to == "" {
		return generic.MonthPeriod(today), nil
	}
	start, err := generic.ParseTimePoint(from)
	if err != nil {
		return generic.Period{}, err
	}
	end, err := generic.ParseTimePoint(to)
	if err != nil {
		return generic.Period{}, err
	}
	return generic.NewPeriod(start, end)
}

func editOptions(w http.ResponseWriter, r *http.Request) (accounts.EditOptions, bool) {
	s := r.URL.Query().Get("force")
	if s == "" {
		return accounts.EditOptions{}, true
	}
	force, err := strconv.ParseBool(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid force flag", err)
		return accounts.EditOptions{}, false
	}
	return accounts.EditOptions{Force: force}, true
}

// writeDomainError maps engine errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case generic.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		h.Logger.Error("request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Internal error: %v", err), err)
	}
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
