package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-ledger/accounts"
	"github.com/warp/payroll-ledger/advance"
	"github.com/warp/payroll-ledger/daily"
	"github.com/warp/payroll-ledger/engine"
	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/rates"
	"github.com/warp/payroll-ledger/store/sqlite"

	_ "github.com/mattn/go-sqlite3"
)

func date(s string) generic.TimePoint { return generic.MustParseTimePoint(s) }
func dec(s string) decimal.Decimal    { return decimal.RequireFromString(s) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSnapshot() engine.Snapshot {
	return engine.Snapshot{
		Workers: []rates.Worker{{
			ID:     "w1",
			Name:   "Dana",
			Status: rates.StatusActive,
			Legacy: rates.LegacyRates{PaymentType: rates.PaymentDaily, DailyRate: dec("90")},
			SalaryHistory: rates.History{
				{EffectiveDate: date("2024-01-01"), PaymentType: rates.PaymentDaily, DailyRate: dec("100"), OvertimeMode: rates.OvertimeAutomatic},
				{EffectiveDate: date("2024-03-01"), PaymentType: rates.PaymentHourly, HourlyRate: dec("15.5"), OvertimeMode: rates.OvertimeManual, OvertimeRate: dec("20"), Notes: "raise"},
			},
		}},
		Records: []daily.Record{{
			ID:            "r1",
			WorkerID:      "w1",
			Date:          date("2024-02-01"),
			ProjectID:     "site-9",
			Status:        daily.StatusPresent,
			WorkDay:       dec("1"),
			OvertimeHours: dec("2.5"),
			Advance:       dec("80"),
			Smoking:       dec("5"),
			Expense:       decimal.Zero,
			Notes:         "paid: cash",
			DeferredAdvances: []advance.Entry{
				{ID: "d1", Date: date("2024-02-10"), Amount: dec("30"), Notes: "bus [fare]"},
			},
		}},
		Accounts: []accounts.Account{{
			ID: "a1", Name: "family", Parties: []string{"A", "B"}, Currencies: []accounts.Currency{"ILS", "USD"},
		}},
		Transactions: []accounts.Transaction{
			{
				ID: "t1", AccountID: "a1", Date: date("2024-02-05"), Description: "rent",
				Amount: dec("200.25"), Currency: "ILS", Payer: "A", Payee: "B",
				PaymentMethod: accounts.MethodCheque, ChequeStatus: accounts.ChequePending,
				Type: accounts.TxStandard, Seq: 1,
			},
			{
				ID: "t2", AccountID: "a1", Date: date("2024-03-01"), Description: "Reconciliation",
				Amount: decimal.Zero, Currency: "ILS", Payer: "A", Payee: "B",
				PaymentMethod: accounts.MethodCash, Type: accounts.TxReconciliation,
				CarriedForward: []string{"t1"}, Seq: 2,
			},
		},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	want := sampleSnapshot()

	require.NoError(t, store.Save(ctx, want))
	got, err := store.Load(ctx)
	require.NoError(t, err)

	// Workers and history
	require.Len(t, got.Workers, 1)
	w := got.Workers[0]
	assert.Equal(t, "Dana", w.Name)
	assert.True(t, w.Legacy.DailyRate.Equal(dec("90")))
	require.Len(t, w.SalaryHistory, 2)
	assert.Equal(t, "2024-03-01", w.SalaryHistory[1].EffectiveDate.String())
	assert.True(t, w.SalaryHistory[1].HourlyRate.Equal(dec("15.5")))
	assert.Equal(t, rates.OvertimeManual, w.SalaryHistory[1].OvertimeMode)
	assert.Equal(t, "raise", w.SalaryHistory[1].Notes)

	// Records keep deferred advances through the notes column
	require.Len(t, got.Records, 1)
	r := got.Records[0]
	assert.Equal(t, "paid: cash", r.Notes)
	assert.Equal(t, "site-9", r.ProjectID)
	assert.True(t, r.OvertimeHours.Equal(dec("2.5")))
	require.Len(t, r.DeferredAdvances, 1)
	assert.Equal(t, "d1", r.DeferredAdvances[0].ID)
	assert.Equal(t, "bus [fare]", r.DeferredAdvances[0].Notes)
	assert.True(t, r.DeferredAdvances[0].Amount.Equal(dec("30")))

	// Accounts and logs
	require.Len(t, got.Accounts, 1)
	assert.Equal(t, []string{"A", "B"}, got.Accounts[0].Parties)
	assert.Equal(t, []accounts.Currency{"ILS", "USD"}, got.Accounts[0].Currencies)
	require.Len(t, got.Transactions, 2)
	assert.Equal(t, "t1", got.Transactions[0].ID)
	assert.True(t, got.Transactions[0].Amount.Equal(dec("200.25")))
	assert.Equal(t, accounts.ChequePending, got.Transactions[0].ChequeStatus)
	assert.True(t, got.Transactions[1].IsCheckpoint())
	assert.Equal(t, []string{"t1"}, got.Transactions[1].CarriedForward)
	assert.Equal(t, int64(2), got.Transactions[1].Seq)
}

func TestStore_SaveReplacesPreviousState(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Save(ctx, sampleSnapshot()))

	require.NoError(t, store.Save(ctx, engine.Snapshot{
		Workers: []rates.Worker{{ID: "w2", Name: "Eli", Status: rates.StatusSuspended}},
	}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Workers, 1)
	assert.Equal(t, "w2", got.Workers[0].ID)
	assert.Equal(t, rates.StatusSuspended, got.Workers[0].Status)
	assert.Empty(t, got.Records)
	assert.Empty(t, got.Accounts)
	assert.Empty(t, got.Transactions)
}

func TestStore_FailedSaveKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Save(ctx, sampleSnapshot()))

	// GIVEN: A snapshot violating the one-record-per-worker-per-day index
	bad := sampleSnapshot()
	dup := bad.Records[0].Clone()
	dup.ID = "r2"
	bad.Records = append(bad.Records, dup)

	// WHEN: Saving it
	err := store.Save(ctx, bad)

	// THEN: The write is rolled back
	require.Error(t, err)
	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "r1", got.Records[0].ID)
}

func TestStore_LoadRejectsMalformedDecimals(t *testing.T) {
	cases := map[string]string{
		"transaction amount": `UPDATE account_transactions SET amount = 'abc' WHERE id = 't1'`,
		"record advance":     `UPDATE daily_records SET advance = '12,5' WHERE id = 'r1'`,
		"rate entry":         `UPDATE rate_entries SET daily_rate = 'NaN?' WHERE worker_id = 'w1'`,
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "payroll.db")

			// GIVEN: A saved snapshot with one money column overwritten
			store, err := sqlite.New(path)
			require.NoError(t, err)
			require.NoError(t, store.Save(ctx, sampleSnapshot()))
			require.NoError(t, store.Close())

			raw, err := sql.Open("sqlite3", path)
			require.NoError(t, err)
			_, err = raw.Exec(corrupt)
			require.NoError(t, err)
			require.NoError(t, raw.Close())

			// WHEN: Loading it back
			store, err = sqlite.New(path)
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			_, err = store.Load(ctx)

			// THEN: The load fails instead of reading zero
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to decode")
		})
	}
}

func TestStore_BacksEngine(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := func() generic.TimePoint { return date("2024-03-01") }

	e := engine.New(engine.Options{Persister: store, Now: now, DefaultCurrencies: []accounts.Currency{"ILS"}})
	w, err := e.CreateWorker(ctx, rates.Worker{Name: "Gil"}, rates.RateEntry{
		EffectiveDate: date("2024-01-01"), PaymentType: rates.PaymentDaily, DailyRate: dec("100"),
	})
	require.NoError(t, err)
	recs, err := e.ReplaceDay(ctx, date("2024-02-01"), []daily.Record{{
		WorkerID: w.ID, Status: daily.StatusPresent, WorkDay: dec("1"),
	}})
	require.NoError(t, err)
	_, _, err = e.AddDeferredAdvance(ctx, recs[0].ID, advance.Entry{Date: date("2024-02-03"), Amount: dec("40")})
	require.NoError(t, err)

	restored := engine.New(engine.Options{Persister: store, Now: now})
	require.NoError(t, restored.Restore(ctx))

	pay, err := restored.ComputeNetPay(recs[0].ID)
	require.NoError(t, err)
	assert.True(t, pay.Net.Equal(dec("60")), "got %s", pay.Net)
}
