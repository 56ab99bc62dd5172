/*
Package sqlite provides a SQLite-backed engine.Persister.

PURPOSE:
  Keeps the payroll ledger state across restarts. The engine writes the
  full state after every successful command; Save replaces the stored
  state inside one database transaction, so a crash never leaves a
  half-written mix of old and new rows.

KEY TABLES:
  workers:              Worker identity, status, legacy top-level rates
  rate_entries:         Salary history, one row per (worker, effective date)
  daily_records:        One row per (worker, date); notes keep deferred
                        advances embedded as PMA tokens
  accounts:             Two-party accounts (parties/currencies as JSON)
  account_transactions: Ordered account logs, checkpoints included

DEFERRED ADVANCES:
  daily_records.notes is written with advance.Join and read back with
  advance.Split. The column stays readable by tools that only know the
  legacy notes format.

MONEY:
  Decimal values are stored as TEXT and parsed with shopspring/decimal.
  Nothing passes through float64.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  eng := engine.New(engine.Options{Persister: store})

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-ledger/accounts"
	"github.com/warp/payroll-ledger/advance"
	"github.com/warp/payroll-ledger/daily"
	"github.com/warp/payroll-ledger/engine"
	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/rates"
)

// Store implements engine.Persister using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		legacy_json TEXT
	);

	CREATE TABLE IF NOT EXISTS rate_entries (
		worker_id TEXT NOT NULL REFERENCES workers(id) ON DELETE CASCADE,
		effective_date TEXT NOT NULL,
		payment_type TEXT NOT NULL,
		daily_rate TEXT NOT NULL,
		monthly_salary TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		overtime_mode TEXT NOT NULL,
		division_factor TEXT NOT NULL,
		overtime_rate TEXT NOT NULL,
		notes TEXT,
		PRIMARY KEY (worker_id, effective_date)
	);

	CREATE TABLE IF NOT EXISTS daily_records (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		date TEXT NOT NULL,
		project_id TEXT,
		status TEXT NOT NULL,
		work_day TEXT NOT NULL,
		overtime_hours TEXT NOT NULL,
		advance TEXT NOT NULL,
		smoking TEXT NOT NULL,
		expense TEXT NOT NULL,
		notes TEXT
	);

	-- One record per worker per day
	CREATE UNIQUE INDEX IF NOT EXISTS idx_daily_records_worker_date
		ON daily_records(worker_id, date);
	CREATE INDEX IF NOT EXISTS idx_daily_records_date
		ON daily_records(date);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		parties_json TEXT NOT NULL,
		currencies_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS account_transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		description TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		payer TEXT NOT NULL,
		payee TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		cheque_status TEXT,
		tx_type TEXT NOT NULL,
		carried_forward_json TEXT,
		seq INTEGER NOT NULL
	);

	-- Log order: date, then insertion sequence
	CREATE INDEX IF NOT EXISTS idx_account_transactions_order
		ON account_transactions(account_id, date, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SAVE
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save replaces the stored state with snap atomically.
func (s *Store) Save(ctx context.Context, snap engine.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	// Children first so foreign keys never dangle.
	for _, table := range []string{"account_transactions", "accounts", "daily_records", "rate_entries", "workers"} {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, w := range snap.Workers {
		if err := saveWorker(ctx, sqlTx, w); err != nil {
			return err
		}
	}
	for _, r := range snap.Records {
		if err := saveRecord(ctx, sqlTx, r); err != nil {
			return err
		}
	}
	for _, a := range snap.Accounts {
		if err := saveAccount(ctx, sqlTx, a); err != nil {
			return err
		}
	}
	for _, tx := range snap.Transactions {
		if err := saveTransaction(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func saveWorker(ctx context.Context, db execer, w rates.Worker) error {
	legacyJSON, err := json.Marshal(w.Legacy)
	if err != nil {
		return fmt.Errorf("failed to encode legacy rates: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO workers (id, name, status, legacy_json) VALUES (?, ?, ?, ?)`,
		w.ID, w.Name, string(w.Status), string(legacyJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save worker %s: %w", w.ID, err)
	}

	for _, e := range w.SalaryHistory {
		_, err := db.ExecContext(ctx, `
			INSERT INTO rate_entries
			(worker_id, effective_date, payment_type, daily_rate, monthly_salary, hourly_rate,
			 overtime_mode, division_factor, overtime_rate, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID,
			e.EffectiveDate.String(),
			string(e.PaymentType),
			e.DailyRate.String(),
			e.MonthlySalary.String(),
			e.HourlyRate.String(),
			string(e.OvertimeMode),
			e.DivisionFactor.String(),
			e.OvertimeRate.String(),
			nullString(e.Notes),
		)
		if err != nil {
			return fmt.Errorf("failed to save rate entry %s/%s: %w", w.ID, e.EffectiveDate, err)
		}
	}
	return nil
}

func saveRecord(ctx context.Context, db execer, r daily.Record) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO daily_records
		(id, worker_id, date, project_id, status, work_day, overtime_hours, advance, smoking, expense, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.WorkerID,
		r.Date.String(),
		nullString(r.ProjectID),
		string(r.Status),
		r.WorkDay.String(),
		r.OvertimeHours.String(),
		r.Advance.String(),
		r.Smoking.String(),
		r.Expense.String(),
		nullString(r.LegacyNotes()),
	)
	if err != nil {
		return fmt.Errorf("failed to save daily record %s: %w", r.ID, err)
	}
	return nil
}

func saveAccount(ctx context.Context, db execer, a accounts.Account) error {
	partiesJSON, err := json.Marshal(a.Parties)
	if err != nil {
		return err
	}
	currenciesJSON, err := json.Marshal(a.Currencies)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, parties_json, currencies_json) VALUES (?, ?, ?, ?)`,
		a.ID, a.Name, string(partiesJSON), string(currenciesJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", a.ID, err)
	}
	return nil
}

func saveTransaction(ctx context.Context, db execer, tx accounts.Transaction) error {
	var carried sql.NullString
	if len(tx.CarriedForward) > 0 {
		b, err := json.Marshal(tx.CarriedForward)
		if err != nil {
			return err
		}
		carried = nullString(string(b))
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO account_transactions
		(id, account_id, date, description, amount, currency, payer, payee,
		 payment_method, cheque_status, tx_type, carried_forward_json, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.AccountID,
		tx.Date.String(),
		nullString(tx.Description),
		tx.Amount.String(),
		string(tx.Currency),
		tx.Payer,
		tx.Payee,
		string(tx.PaymentMethod),
		nullString(string(tx.ChequeStatus)),
		string(tx.Type),
		carried,
		tx.Seq,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", tx.ID, err)
	}
	return nil
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the full stored state.
func (s *Store) Load(ctx context.Context) (engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		snap engine.Snapshot
		err  error
	)
	if snap.Workers, err = s.loadWorkers(ctx); err != nil {
		return engine.Snapshot{}, err
	}
	if snap.Records, err = s.loadRecords(ctx); err != nil {
		return engine.Snapshot{}, err
	}
	if snap.Accounts, err = s.loadAccounts(ctx); err != nil {
		return engine.Snapshot{}, err
	}
	if snap.Transactions, err = s.loadTransactions(ctx); err != nil {
		return engine.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) loadWorkers(ctx context.Context) ([]rates.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, status, legacy_json FROM workers ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var (
		workers []rates.Worker
		index   = make(map[string]int)
	)
	for rows.Next() {
		var (
			w          rates.Worker
			status     string
			legacyJSON sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.Name, &status, &legacyJSON); err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		w.Status = rates.WorkerStatus(status)
		if legacyJSON.Valid && legacyJSON.String != "" {
			if err := json.Unmarshal([]byte(legacyJSON.String), &w.Legacy); err != nil {
				return nil, fmt.Errorf("failed to decode legacy rates of %s: %w", w.ID, err)
			}
		}
		index[w.ID] = len(workers)
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entries, err := s.db.QueryContext(ctx, `
		SELECT worker_id, effective_date, payment_type, daily_rate, monthly_salary, hourly_rate,
		       overtime_mode, division_factor, overtime_rate, notes
		FROM rate_entries
		ORDER BY worker_id, effective_date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate entries: %w", err)
	}
	defer entries.Close()

	for entries.Next() {
		var (
			workerID, effective, paymentType, mode string
			dailyRate, monthly, hourly, factor, ot string
			notes                                  sql.NullString
		)
		if err := entries.Scan(&workerID, &effective, &paymentType, &dailyRate, &monthly, &hourly, &mode, &factor, &ot, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan rate entry: %w", err)
		}
		i, ok := index[workerID]
		if !ok {
			continue
		}
		date, err := generic.ParseTimePoint(effective)
		if err != nil {
			return nil, err
		}
		cols := decimalColumns{owner: "rate entry " + effective + " of " + workerID}
		entry := rates.RateEntry{
			EffectiveDate:  date,
			PaymentType:    rates.PaymentType(paymentType),
			DailyRate:      cols.parse("daily_rate", dailyRate),
			MonthlySalary:  cols.parse("monthly_salary", monthly),
			HourlyRate:     cols.parse("hourly_rate", hourly),
			OvertimeMode:   rates.OvertimeMode(mode),
			DivisionFactor: cols.parse("division_factor", factor),
			OvertimeRate:   cols.parse("overtime_rate", ot),
			Notes:          notes.String,
		}
		if cols.err != nil {
			return nil, cols.err
		}
		workers[i].SalaryHistory = append(workers[i].SalaryHistory, entry)
	}
	return workers, entries.Err()
}

func (s *Store) loadRecords(ctx context.Context) ([]daily.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, date, project_id, status, work_day, overtime_hours,
		       advance, smoking, expense, notes
		FROM daily_records
		ORDER BY date ASC, worker_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily records: %w", err)
	}
	defer rows.Close()

	var records []daily.Record
	for rows.Next() {
		var (
			r                                 daily.Record
			date, status                      string
			workDay, overtime, adv, smoke, ex string
			projectID, notes                  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.WorkerID, &date, &projectID, &status, &workDay, &overtime, &adv, &smoke, &ex, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan daily record: %w", err)
		}
		if r.Date, err = generic.ParseTimePoint(date); err != nil {
			return nil, err
		}
		r.ProjectID = projectID.String
		r.Status = daily.Status(status)
		cols := decimalColumns{owner: "daily record " + r.ID}
		r.WorkDay = cols.parse("work_day", workDay)
		r.OvertimeHours = cols.parse("overtime_hours", overtime)
		r.Advance = cols.parse("advance", adv)
		r.Smoking = cols.parse("smoking", smoke)
		r.Expense = cols.parse("expense", ex)
		if cols.err != nil {
			return nil, cols.err
		}
		r.Notes, r.DeferredAdvances = advance.Split(notes.String)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) loadAccounts(ctx context.Context) ([]accounts.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, parties_json, currencies_json FROM accounts ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []accounts.Account
	for rows.Next() {
		var (
			a                         accounts.Account
			partiesJSON, currencyJSON string
		)
		if err := rows.Scan(&a.ID, &a.Name, &partiesJSON, &currencyJSON); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if err := json.Unmarshal([]byte(partiesJSON), &a.Parties); err != nil {
			return nil, fmt.Errorf("failed to decode parties of %s: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(currencyJSON), &a.Currencies); err != nil {
			return nil, fmt.Errorf("failed to decode currencies of %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) loadTransactions(ctx context.Context) ([]accounts.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, date, description, amount, currency, payer, payee,
		       payment_method, cheque_status, tx_type, carried_forward_json, seq
		FROM account_transactions
		ORDER BY account_id, date ASC, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []accounts.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (accounts.Transaction, error) {
	var (
		tx                                  accounts.Transaction
		date, amount, currency, method, typ string
		description, chequeStatus, carried  sql.NullString
	)

	err := rows.Scan(
		&tx.ID, &tx.AccountID, &date, &description, &amount, &currency,
		&tx.Payer, &tx.Payee, &method, &chequeStatus, &typ, &carried, &tx.Seq,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Date, err = generic.ParseTimePoint(date); err != nil {
		return tx, err
	}
	tx.Description = description.String
	cols := decimalColumns{owner: "transaction " + tx.ID}
	if tx.Amount = cols.parse("amount", amount); cols.err != nil {
		return tx, cols.err
	}
	tx.Currency = accounts.Currency(currency)
	tx.PaymentMethod = accounts.PaymentMethod(method)
	tx.ChequeStatus = accounts.ChequeStatus(chequeStatus.String)
	tx.Type = accounts.TransactionType(typ)
	if carried.Valid && carried.String != "" {
		if err := json.Unmarshal([]byte(carried.String), &tx.CarriedForward); err != nil {
			return tx, fmt.Errorf("failed to decode carried cheques of %s: %w", tx.ID, err)
		}
	}
	return tx, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// decimalColumns decodes the decimal columns of one row and keeps the first
// failure. An empty column reads as zero.
type decimalColumns struct {
	owner string
	err   error
}

func (c *decimalColumns) parse(column, value string) decimal.Decimal {
	if c.err != nil || value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		c.err = fmt.Errorf("failed to decode %s of %s: %w", column, c.owner, err)
		return decimal.Zero
	}
	return d
}
