/*
engine.go - Session-scoped payroll ledger service

PURPOSE:
  Owns the three stores (worker registry, daily records, account ledger)
  and exposes every command and query over them. Commands are serialized
  by a single lock: one writer at a time, concurrent readers allowed.

PERSISTENCE:
  After every successful command the full state is written through the
  configured Persister. A failed write is logged and never turns a
  completed command into an error; in-memory state stays authoritative
  for the session. Restore loads the persisted state on startup.

WARNINGS:
  Commands that succeed with caveats (stale balances, clamped advances,
  forced checkpoint edits) return []generic.Warning next to the result.

SEE ALSO:
  - rates: salary history and resolution
  - daily: records, deferred advances, net pay
  - accounts: two-party ledger and reconciliation
  - store/sqlite, store/memory: Persister implementations
*/
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-ledger/accounts"
	"github.com/warp/payroll-ledger/advance"
	"github.com/warp/payroll-ledger/daily"
	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/rates"
)

// =============================================================================
// PERSISTENCE
// =============================================================================

// Persister stores and loads the full engine state.
type Persister interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
}

// Snapshot is the complete persisted state.
type Snapshot struct {
	Workers      []rates.Worker         `json:"workers"`
	Records      []daily.Record         `json:"records"`
	Accounts     []accounts.Account     `json:"accounts"`
	Transactions []accounts.Transaction `json:"transactions"`
}

// Clone returns a copy that shares no slices with s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Workers:      make([]rates.Worker, len(s.Workers)),
		Records:      make([]daily.Record, len(s.Records)),
		Accounts:     make([]accounts.Account, len(s.Accounts)),
		Transactions: make([]accounts.Transaction, len(s.Transactions)),
	}
	for i, w := range s.Workers {
		out.Workers[i] = w.Clone()
	}
	for i, r := range s.Records {
		out.Records[i] = r.Clone()
	}
	for i, a := range s.Accounts {
		out.Accounts[i] = a.Clone()
	}
	for i, tx := range s.Transactions {
		out.Transactions[i] = tx.Clone()
	}
	return out
}

// =============================================================================
// ENGINE
// =============================================================================

// Options configure a new Engine. Zero values pick defaults.
type Options struct {
	Persister Persister
	Logger    *slog.Logger

	// NotesSeparator joins notes merged into an existing record.
	NotesSeparator string

	// DefaultCurrencies apply to accounts created without currencies.
	DefaultCurrencies []accounts.Currency

	// Now supplies today's date for reconciliation.
	Now func() generic.TimePoint
}

type Engine struct {
	mu sync.RWMutex

	workers *rates.Registry
	records *daily.Store
	ledger  *accounts.Ledger

	persister  Persister
	logger     *slog.Logger
	separator  string
	currencies []accounts.Currency
	now        func() generic.TimePoint
}

func New(opts Options) *Engine {
	e := &Engine{
		persister:  opts.Persister,
		logger:     opts.Logger,
		separator:  opts.NotesSeparator,
		currencies: append([]accounts.Currency(nil), opts.DefaultCurrencies...),
		now:        opts.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.separator == "" {
		e.separator = daily.DefaultNotesSeparator
	}
	if e.now == nil {
		e.now = generic.Today
	}
	e.resetLocked()
	return e
}

func (e *Engine) resetLocked() {
	e.workers = rates.NewRegistry()
	e.records = daily.NewStore()
	e.records.NotesSeparator = e.separator
	e.ledger = accounts.NewLedger()
	e.ledger.Now = e.now
}

// Restore replaces the in-memory state with what the Persister holds.
func (e *Engine) Restore(ctx context.Context) error {
	if e.persister == nil {
		return nil
	}
	snap, err := e.persister.Load(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
	for _, w := range snap.Workers {
		e.workers.Restore(w.Clone())
	}
	for _, r := range snap.Records {
		e.records.Restore(r)
	}
	byAccount := make(map[string][]accounts.Transaction, len(snap.Accounts))
	for _, tx := range snap.Transactions {
		byAccount[tx.AccountID] = append(byAccount[tx.AccountID], tx)
	}
	for _, a := range snap.Accounts {
		e.ledger.Restore(a, byAccount[a.ID])
	}
	e.logger.Info("state restored",
		slog.Int("workers", len(snap.Workers)),
		slog.Int("records", len(snap.Records)),
		slog.Int("accounts", len(snap.Accounts)),
		slog.Int("transactions", len(snap.Transactions)),
	)
	return nil
}

// Reset clears all state and persists the empty state.
func (e *Engine) Reset(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
	e.flush(ctx, "reset")
}

// Today is the engine's current date, the one reconciliation uses.
func (e *Engine) Today() generic.TimePoint {
	return e.now()
}

// Snapshot returns a copy of the full state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Workers:  e.workers.List(),
		Records:  e.records.All(),
		Accounts: e.ledger.ListAccounts(),
	}
	for _, a := range snap.Accounts {
		txs, _ := e.ledger.Transactions(a.ID)
		snap.Transactions = append(snap.Transactions, txs...)
	}
	return snap
}

// flush persists the current state. Must be called with mu held.
func (e *Engine) flush(ctx context.Context, op string) {
	if e.persister == nil {
		return
	}
	if err := e.persister.Save(ctx, e.snapshotLocked()); err != nil {
		e.logger.Error("failed to persist state",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) logWarnings(op string, warnings []generic.Warning) {
	for _, w := range warnings {
		e.logger.Warn(w.Message, slog.String("op", op), slog.String("code", string(w.Code)))
	}
}

// =============================================================================
// WORKERS AND RATES
// =============================================================================

func (e *Engine) CreateWorker(ctx context.Context, w rates.Worker, initial rates.RateEntry) (rates.Worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	created, err := e.workers.Create(w, initial)
	if err != nil {
		return rates.Worker{}, err
	}
	e.logger.Info("worker created", slog.String("worker_id", created.ID))
	e.flush(ctx, "create_worker")
	return created, nil
}

func (e *Engine) GetWorker(id string) (rates.Worker, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.workers.Get(id)
}

func (e *Engine) ListWorkers() []rates.Worker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.workers.List()
}

func (e *Engine) SetWorkerStatus(ctx context.Context, id string, status rates.WorkerStatus) (rates.Worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, err := e.workers.SetStatus(id, status)
	if err != nil {
		return rates.Worker{}, err
	}
	e.flush(ctx, "set_worker_status")
	return w, nil
}

// UpsertRateEntry adds or overwrites (same effective date) a salary
// history entry.
func (e *Engine) UpsertRateEntry(ctx context.Context, workerID string, entry rates.RateEntry) (rates.Worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, err := e.workers.UpsertRateEntry(workerID, entry)
	if err != nil {
		return rates.Worker{}, err
	}
	e.logger.Info("rate entry upserted",
		slog.String("worker_id", workerID),
		slog.String("effective_date", entry.EffectiveDate.String()),
	)
	e.flush(ctx, "upsert_rate_entry")
	return w, nil
}

// ResolveRate returns the pay terms in force for the worker on date.
func (e *Engine) ResolveRate(workerID string, date generic.TimePoint) (rates.RateEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.workers.RateAt(workerID, date)
}

// =============================================================================
// DAILY RECORDS
// =============================================================================

// ReplaceDay replaces the date's records for the workers in records.
func (e *Engine) ReplaceDay(ctx context.Context, date generic.TimePoint, records []daily.Record) ([]daily.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		if _, err := e.workers.Get(r.WorkerID); err != nil {
			return nil, err
		}
	}
	out, err := e.records.ReplaceDay(date, records)
	if err != nil {
		return nil, err
	}
	e.logger.Info("day replaced", slog.String("date", date.String()), slog.Int("records", len(records)))
	e.flush(ctx, "replace_day")
	return out, nil
}

// ScheduleDay creates default records for active workers without one.
func (e *Engine) ScheduleDay(ctx context.Context, date generic.TimePoint, projectID string) []daily.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	created := e.records.ScheduleDay(date, projectID, e.workers.List())
	if len(created) > 0 {
		e.logger.Info("day scheduled", slog.String("date", date.String()), slog.Int("created", len(created)))
		e.flush(ctx, "schedule_day")
	}
	return created
}

// MergeInto applies an additive same-day adjustment.
func (e *Engine) MergeInto(ctx context.Context, workerID string, date generic.TimePoint, fields daily.Fields) (daily.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.workers.Get(workerID); err != nil {
		return daily.Record{}, err
	}
	r, err := e.records.MergeInto(workerID, date, fields)
	if err != nil {
		return daily.Record{}, err
	}
	e.flush(ctx, "merge_into")
	return r, nil
}

func (e *Engine) UpdateRecord(ctx context.Context, id string, fields daily.Fields) (daily.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, err := e.records.UpdateRecord(id, fields)
	if err != nil {
		return daily.Record{}, err
	}
	e.flush(ctx, "update_record")
	return r, nil
}

func (e *Engine) GetRecord(id string) (daily.Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.records.Get(id)
}

func (e *Engine) RecordsByDate(date generic.TimePoint) []daily.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.records.ListByDate(date)
}

func (e *Engine) RecordsByWorker(workerID string, period generic.Period) ([]daily.Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, err := e.workers.Get(workerID); err != nil {
		return nil, err
	}
	return e.records.ListByWorker(workerID, period), nil
}

// =============================================================================
// DEFERRED ADVANCES
// =============================================================================

func (e *Engine) AddDeferredAdvance(ctx context.Context, recordID string, entry advance.Entry) (daily.Record, advance.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, added, err := e.records.AddDeferredAdvance(recordID, entry)
	if err != nil {
		return daily.Record{}, advance.Entry{}, err
	}
	e.logger.Info("deferred advance added",
		slog.String("record_id", recordID),
		slog.String("entry_id", added.ID),
		slog.String("amount", added.Amount.String()),
	)
	e.flush(ctx, "add_deferred_advance")
	return r, added, nil
}

func (e *Engine) EditDeferredAdvance(ctx context.Context, recordID, entryID string, upd daily.AdvanceUpdate) (daily.Record, []generic.Warning, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, warnings, err := e.records.EditDeferredAdvance(recordID, entryID, upd)
	if err != nil {
		return daily.Record{}, nil, err
	}
	e.logWarnings("edit_deferred_advance", warnings)
	e.flush(ctx, "edit_deferred_advance")
	return r, warnings, nil
}

func (e *Engine) RemoveDeferredAdvance(ctx context.Context, recordID, entryID string) (daily.Record, []generic.Warning, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, removed, warnings, err := e.records.RemoveDeferredAdvance(recordID, entryID)
	if err != nil {
		return daily.Record{}, nil, err
	}
	e.logger.Info("deferred advance removed",
		slog.String("record_id", recordID),
		slog.String("entry_id", removed.ID),
	)
	e.logWarnings("remove_deferred_advance", warnings)
	e.flush(ctx, "remove_deferred_advance")
	return r, warnings, nil
}

// =============================================================================
// PAY
// =============================================================================

// Pay is the priced view of one record.
type Pay struct {
	Record     daily.Record    `json:"record"`
	Rate       rates.RateEntry `json:"rate"`
	Gross      decimal.Decimal `json:"gross"`
	Deductions decimal.Decimal `json:"deductions"`
	Net        decimal.Decimal `json:"net"`
}

// ComputeNetPay prices a record with the rate in force on its date.
func (e *Engine) ComputeNetPay(recordID string) (Pay, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, err := e.records.Get(recordID)
	if err != nil {
		return Pay{}, err
	}
	entry, err := e.workers.RateAt(r.WorkerID, r.Date)
	if err != nil {
		return Pay{}, err
	}
	return Pay{
		Record:     r,
		Rate:       entry,
		Gross:      daily.GrossPay(r, entry),
		Deductions: r.Deductions(),
		Net:        daily.NetPay(r, entry),
	}, nil
}

// Summarize aggregates the worker's records over period.
func (e *Engine) Summarize(workerID string, period generic.Period) (daily.Summary, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, err := e.workers.Get(workerID)
	if err != nil {
		return daily.Summary{}, err
	}
	return daily.Summarize(w, period, e.records.ListByWorker(workerID, period)), nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// CreateAccount opens an account. Without currencies it gets the defaults.
func (e *Engine) CreateAccount(ctx context.Context, a accounts.Account) (accounts.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(a.Currencies) == 0 {
		a.Currencies = append([]accounts.Currency(nil), e.currencies...)
	}
	created, err := e.ledger.CreateAccount(a)
	if err != nil {
		return accounts.Account{}, err
	}
	e.logger.Info("account created", slog.String("account_id", created.ID))
	e.flush(ctx, "create_account")
	return created, nil
}

func (e *Engine) GetAccount(id string) (accounts.Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.GetAccount(id)
}

func (e *Engine) ListAccounts() []accounts.Account {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.ListAccounts()
}

func (e *Engine) Transactions(accountID string) ([]accounts.Transaction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Transactions(accountID)
}

func (e *Engine) Checkpoints(accountID string) ([]accounts.Transaction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Checkpoints(accountID)
}

// ActiveSegment returns the entries the balance is computed over, carried
// cheques included.
func (e *Engine) ActiveSegment(accountID string) ([]accounts.Transaction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.ActiveSegment(accountID)
}

func (e *Engine) PendingCheques(accountID string) ([]accounts.Transaction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.PendingCheques(accountID)
}

// Balance returns party's per-currency balance over the active segment.
func (e *Engine) Balance(accountID, party string) (accounts.Balances, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Balance(accountID, party)
}

func (e *Engine) AddTransaction(ctx context.Context, accountID string, d accounts.Draft) (accounts.Transaction, []generic.Warning, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, warnings, err := e.ledger.AddTransaction(accountID, d)
	if err != nil {
		return accounts.Transaction{}, nil, err
	}
	e.logWarnings("add_transaction", warnings)
	e.flush(ctx, "add_transaction")
	return tx, warnings, nil
}

func (e *Engine) EditTransaction(ctx context.Context, accountID, txID string, d accounts.Draft, opts accounts.EditOptions) (accounts.Transaction, []generic.Warning, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, warnings, err := e.ledger.EditTransaction(accountID, txID, d, opts)
	if err != nil {
		return accounts.Transaction{}, nil, err
	}
	e.logWarnings("edit_transaction", warnings)
	e.flush(ctx, "edit_transaction")
	return tx, warnings, nil
}

func (e *Engine) DeleteTransaction(ctx context.Context, accountID, txID string, opts accounts.EditOptions) ([]generic.Warning, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	warnings, err := e.ledger.DeleteTransaction(accountID, txID, opts)
	if err != nil {
		return nil, err
	}
	e.logWarnings("delete_transaction", warnings)
	e.flush(ctx, "delete_transaction")
	return warnings, nil
}

func (e *Engine) MarkChequeCashed(ctx context.Context, accountID, txID string) (accounts.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.ledger.MarkChequeCashed(accountID, txID)
	if err != nil {
		return accounts.Transaction{}, err
	}
	e.flush(ctx, "mark_cheque_cashed")
	return tx, nil
}

// Reconcile settles the account's active segment as of today.
func (e *Engine) Reconcile(ctx context.Context, accountID string, in accounts.ReconcileInput) (accounts.ReconcileResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := e.ledger.Reconcile(accountID, in)
	if err != nil {
		return accounts.ReconcileResult{}, err
	}
	e.logger.Info("account reconciled",
		slog.String("account_id", accountID),
		slog.String("checkpoint_id", res.Checkpoint.ID),
		slog.Int("cashed", len(res.CashedCheques)),
		slog.Int("carried_forward", len(res.CarriedForward)),
	)
	e.flush(ctx, "reconcile")
	return res, nil
}
