package accounts_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-ledger/accounts"
	"github.com/warp/payroll-ledger/generic"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	ILS accounts.Currency = "ILS"
	USD accounts.Currency = "USD"
)

func date(s string) generic.TimePoint { return generic.MustParseTimePoint(s) }
func dec(s string) decimal.Decimal    { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, note ...string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, note)
}

// newTestLedger returns a ledger whose clock is pinned to *today.
func newTestLedger(t *testing.T, today *generic.TimePoint) (*accounts.Ledger, accounts.Account) {
	t.Helper()
	l := accounts.NewLedger()
	l.Now = func() generic.TimePoint { return *today }
	a, err := l.CreateAccount(accounts.Account{
		Name:       "A & B",
		Parties:    []string{"A", "B"},
		Currencies: []accounts.Currency{ILS, USD},
	})
	require.NoError(t, err)
	return l, a
}

func cash(day, amount, payer, payee string, c accounts.Currency) accounts.Draft {
	return accounts.Draft{
		Date:          date(day),
		Amount:        dec(amount),
		Currency:      c,
		Payer:         payer,
		Payee:         payee,
		PaymentMethod: accounts.MethodCash,
	}
}

func cheque(day, amount, payer, payee string) accounts.Draft {
	d := cash(day, amount, payer, payee, ILS)
	d.PaymentMethod = accounts.MethodCheque
	return d
}

func add(t *testing.T, l *accounts.Ledger, accountID string, d accounts.Draft) accounts.Transaction {
	t.Helper()
	tx, _, err := l.AddTransaction(accountID, d)
	require.NoError(t, err)
	return tx
}

func balance(t *testing.T, l *accounts.Ledger, accountID, party string) accounts.Balances {
	t.Helper()
	b, err := l.Balance(accountID, party)
	require.NoError(t, err)
	return b
}

// =============================================================================
// BALANCE
// =============================================================================

func TestScenario_BalanceThenReconcile(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)

	// GIVEN: A pays B 200 ILS
	add(t, l, a.ID, cash("2024-02-10", "200", "A", "B", ILS))

	// THEN: A is +200, B is -200
	assertDec(t, "200", balance(t, l, a.ID, "A")[ILS])
	assertDec(t, "-200", balance(t, l, a.ID, "B")[ILS])

	// WHEN: Reconciling with no exclusions
	res, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)
	assertDec(t, "200", res.Balances[ILS])
	assert.Equal(t, "Reconciliation: B owes A 200.00 ILS; USD settled; 0 cheque(s) carried forward", res.Checkpoint.Description)
	assert.True(t, res.Checkpoint.Amount.IsZero())
	assert.Equal(t, "2024-03-01", res.Checkpoint.Date.String())

	// THEN: Both parties restart at zero, and new entries count from there
	assertDec(t, "0", balance(t, l, a.ID, "A")[ILS])
	assertDec(t, "0", balance(t, l, a.ID, "B")[ILS])

	today = date("2024-03-05")
	add(t, l, a.ID, cash("2024-03-05", "30", "B", "A", ILS))
	assertDec(t, "-30", balance(t, l, a.ID, "A")[ILS])
	assertDec(t, "30", balance(t, l, a.ID, "B")[ILS])
}

func TestBalance_AntisymmetryPerCurrency(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)

	add(t, l, a.ID, cash("2024-01-01", "100", "A", "B", ILS))
	add(t, l, a.ID, cash("2024-01-02", "40.5", "B", "A", ILS))
	add(t, l, a.ID, cash("2024-01-03", "70", "B", "A", USD))
	add(t, l, a.ID, cheque("2024-01-04", "15", "A", "B"))

	ba := balance(t, l, a.ID, "A")
	bb := balance(t, l, a.ID, "B")
	for _, c := range []accounts.Currency{ILS, USD} {
		assert.True(t, ba[c].Equal(bb[c].Neg()), "currency %s", c)
	}
	assertDec(t, "74.5", ba[ILS])
	assertDec(t, "-70", ba[USD])
}

func TestBalance_UnknownParty(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)

	_, err := l.Balance(a.ID, "C")
	assert.ErrorIs(t, err, generic.ErrInvalidParty)

	_, err = l.Balance("missing", "A")
	assert.ErrorIs(t, err, generic.ErrAccountNotFound)
}

// =============================================================================
// SEGMENT ISOLATION
// =============================================================================

func TestSegmentIsolation_PreCheckpointEntriesNeverCount(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)
	add(t, l, a.ID, cash("2024-02-01", "500", "A", "B", ILS))
	_, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)

	// WHEN: A back-dated entry is added into settled history
	tx, warnings, err := l.AddTransaction(a.ID, cash("2024-02-15", "80", "B", "A", ILS))
	require.NoError(t, err)

	// THEN: It does not affect the balance and the caller is warned
	require.Len(t, warnings, 1)
	assert.Equal(t, generic.WarnStaleBalances, warnings[0].Code)
	assertDec(t, "0", balance(t, l, a.ID, "A")[ILS])

	// Editing and deleting it also warn
	d := cash("2024-02-15", "90", "B", "A", ILS)
	_, warnings, err = l.EditTransaction(a.ID, tx.ID, d, accounts.EditOptions{})
	require.NoError(t, err)
	require.Len(t, warnings, 1)

	warnings, err = l.DeleteTransaction(a.ID, tx.ID, accounts.EditOptions{})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
}

func TestSameDateAsCheckpoint_AddedLaterIsActive(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)
	_, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)

	_, warnings, err := l.AddTransaction(a.ID, cash("2024-03-01", "10", "A", "B", ILS))
	require.NoError(t, err)

	assert.Empty(t, warnings)
	assertDec(t, "10", balance(t, l, a.ID, "A")[ILS])
}

// =============================================================================
// CHEQUES
// =============================================================================

func TestReconcile_ExcludedChequesCarryForward(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)

	add(t, l, a.ID, cash("2024-02-01", "100", "A", "B", ILS))
	kept := add(t, l, a.ID, cheque("2024-02-05", "300", "A", "B"))
	cleared := add(t, l, a.ID, cheque("2024-02-06", "50", "B", "A"))

	// WHEN: Reconciling with the 300 cheque excluded
	res, err := l.Reconcile(a.ID, accounts.ReconcileInput{ExcludedChequeIDs: []string{kept.ID}})
	require.NoError(t, err)

	// THEN: Balance skips it, the other cheque is cashed, the excluded one
	// keeps counting in the new segment
	assertDec(t, "50", res.Balances[ILS]) // 100 - 50
	assert.Equal(t, []string{cleared.ID}, res.CashedCheques)
	assert.Equal(t, []string{kept.ID}, res.CarriedForward)
	assert.Contains(t, res.Checkpoint.Description, "1 cheque(s) carried forward")

	txs, err := l.Transactions(a.ID)
	require.NoError(t, err)
	status := map[string]accounts.ChequeStatus{}
	for _, tx := range txs {
		status[tx.ID] = tx.ChequeStatus
	}
	assert.Equal(t, accounts.ChequePending, status[kept.ID])
	assert.Equal(t, accounts.ChequeCashed, status[cleared.ID])

	pending, err := l.PendingCheques(a.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, kept.ID, pending[0].ID)
	assertDec(t, "300", balance(t, l, a.ID, "A")[ILS])

	// Next reconciliation without exclusions settles it
	today = date("2024-04-01")
	res, err = l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)
	assertDec(t, "300", res.Balances[ILS])
	assert.Equal(t, []string{kept.ID}, res.CashedCheques)
	assertDec(t, "0", balance(t, l, a.ID, "A")[ILS])
}

func TestReconcile_RejectsUnknownExclusion(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)
	c := add(t, l, a.ID, cash("2024-02-01", "100", "A", "B", ILS))

	_, err := l.Reconcile(a.ID, accounts.ReconcileInput{ExcludedChequeIDs: []string{c.ID}})
	assert.ErrorIs(t, err, generic.ErrValidation)

	cps, err := l.Checkpoints(a.ID)
	require.NoError(t, err)
	assert.Empty(t, cps, "no partial mutation")
}

func TestReconcile_ManualOverride(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)
	add(t, l, a.ID, cash("2024-02-01", "100", "A", "B", ILS))
	chq := add(t, l, a.ID, cheque("2024-02-02", "20", "A", "B"))

	res, err := l.Reconcile(a.ID, accounts.ReconcileInput{
		ManualOverride: accounts.Balances{ILS: dec("-45")},
	})
	require.NoError(t, err)

	assert.Equal(t, "Reconciliation (manual): A owes B 45.00 ILS; USD settled; 0 cheque(s) carried forward", res.Checkpoint.Description)
	assert.Equal(t, []string{chq.ID}, res.CashedCheques)
}

func TestReconcile_FutureDatedEntriesStayActive(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)
	add(t, l, a.ID, cash("2024-02-01", "100", "A", "B", ILS))
	add(t, l, a.ID, cash("2024-03-10", "7", "A", "B", ILS))

	res, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)

	assertDec(t, "100", res.Balances[ILS])
	assertDec(t, "7", balance(t, l, a.ID, "A")[ILS])
}

func TestMarkChequeCashed(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)
	chq := add(t, l, a.ID, cheque("2024-02-02", "20", "A", "B"))
	c := add(t, l, a.ID, cash("2024-02-02", "20", "A", "B", ILS))

	tx, err := l.MarkChequeCashed(a.ID, chq.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.ChequeCashed, tx.ChequeStatus)

	_, err = l.MarkChequeCashed(a.ID, c.ID)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// CHECKPOINT GUARD
// =============================================================================

func TestCheckpointGuard_OnlyLatestEditable(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)
	first, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)
	today = date("2024-04-01")
	second, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)

	// Older checkpoint: rejected by default
	_, _, err = l.EditTransaction(a.ID, first.Checkpoint.ID, accounts.Draft{Description: "x"}, accounts.EditOptions{})
	var locked *generic.CheckpointLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, second.Checkpoint.ID, locked.LatestID)
	assert.True(t, generic.IsConflict(err))

	_, err = l.DeleteTransaction(a.ID, first.Checkpoint.ID, accounts.EditOptions{})
	assert.ErrorIs(t, err, generic.ErrCheckpointLocked)

	// Older checkpoint with override: allowed, with a warning
	edited, warnings, err := l.EditTransaction(a.ID, first.Checkpoint.ID, accounts.Draft{Description: "corrected"}, accounts.EditOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, "corrected", edited.Description)
	require.Len(t, warnings, 1)
	assert.Equal(t, generic.WarnForcedCheckpointEdit, warnings[0].Code)

	// Latest checkpoint: editable and deletable
	_, warnings, err = l.EditTransaction(a.ID, second.Checkpoint.ID, accounts.Draft{Description: "april"}, accounts.EditOptions{})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	_, err = l.DeleteTransaction(a.ID, second.Checkpoint.ID, accounts.EditOptions{})
	require.NoError(t, err)

	// The first checkpoint is now latest again
	_, err = l.DeleteTransaction(a.ID, first.Checkpoint.ID, accounts.EditOptions{})
	require.NoError(t, err)
}

func TestCheckpointDateEdit_KeepsCheckpointOrder(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)
	first, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)

	today = date("2024-04-01")
	add(t, l, a.ID, cash("2024-03-15", "40", "A", "B", ILS))
	second, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)
	assertDec(t, "0", balance(t, l, a.ID, "A")[ILS])

	// WHEN: The latest checkpoint is moved before the previous one
	_, _, err = l.EditTransaction(a.ID, second.Checkpoint.ID, accounts.Draft{Date: date("2024-01-01")}, accounts.EditOptions{})
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, _, err = l.EditTransaction(a.ID, second.Checkpoint.ID, accounts.Draft{Date: date("2024-03-01")}, accounts.EditOptions{})
	assert.ErrorIs(t, err, generic.ErrValidation)

	// THEN: Nothing moved; the older checkpoint is still locked
	assertDec(t, "0", balance(t, l, a.ID, "A")[ILS])
	_, _, err = l.EditTransaction(a.ID, first.Checkpoint.ID, accounts.Draft{Description: "x"}, accounts.EditOptions{})
	assert.ErrorIs(t, err, generic.ErrCheckpointLocked)

	// A forced edit of the older checkpoint cannot pass the newer one either
	_, _, err = l.EditTransaction(a.ID, first.Checkpoint.ID, accounts.Draft{Date: date("2024-04-02")}, accounts.EditOptions{Force: true})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestCheckpointDateEdit_AcrossEntriesWarnsStale(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)
	_, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)

	today = date("2024-04-01")
	add(t, l, a.ID, cash("2024-03-15", "40", "A", "B", ILS))
	second, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)

	// WHEN: The latest checkpoint moves back past the 40 entry
	edited, warnings, err := l.EditTransaction(a.ID, second.Checkpoint.ID, accounts.Draft{Date: date("2024-03-10")}, accounts.EditOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", edited.Date.String())

	// THEN: The entry is active again and the caller is warned
	require.Len(t, warnings, 1)
	assert.Equal(t, generic.WarnStaleBalances, warnings[0].Code)
	assertDec(t, "40", balance(t, l, a.ID, "A")[ILS])

	// Moving it within the same gap changes no segment and warns nothing
	_, warnings, err = l.EditTransaction(a.ID, second.Checkpoint.ID, accounts.Draft{Date: date("2024-03-12")}, accounts.EditOptions{})
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestReconcile_RejectsDateBeforeLatestCheckpoint(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)
	res, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)

	// GIVEN: The latest checkpoint was moved into the future
	_, _, err = l.EditTransaction(a.ID, res.Checkpoint.ID, accounts.Draft{Date: date("2024-06-01")}, accounts.EditOptions{})
	require.NoError(t, err)

	// WHEN: Reconciling on an earlier day
	today = date("2024-03-20")
	_, err = l.Reconcile(a.ID, accounts.ReconcileInput{})

	// THEN: Rejected, and no checkpoint was added
	assert.ErrorIs(t, err, generic.ErrValidation)
	cps, err := l.Checkpoints(a.ID)
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, res.Checkpoint.ID, cps[0].ID)

	// Same day as the latest checkpoint is fine; it sorts after it
	today = date("2024-06-01")
	again, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)
	cps, _ = l.Checkpoints(a.ID)
	assert.Equal(t, again.Checkpoint.ID, cps[len(cps)-1].ID)
}

func TestDeletingOnlyCheckpoint_ReopensAccount(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)
	add(t, l, a.ID, cash("2024-02-01", "100", "A", "B", ILS))
	res, err := l.Reconcile(a.ID, accounts.ReconcileInput{})
	require.NoError(t, err)
	assertDec(t, "0", balance(t, l, a.ID, "A")[ILS])

	_, err = l.DeleteTransaction(a.ID, res.Checkpoint.ID, accounts.EditOptions{})
	require.NoError(t, err)

	assertDec(t, "100", balance(t, l, a.ID, "A")[ILS])
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestAddTransaction_Validation(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)

	cases := map[string]struct {
		draft accounts.Draft
		want  error
	}{
		"zero amount":     {cash("2024-01-01", "0", "A", "B", ILS), generic.ErrInvalidAmount},
		"negative amount": {cash("2024-01-01", "-3", "A", "B", ILS), generic.ErrInvalidAmount},
		"stranger payer":  {cash("2024-01-01", "3", "C", "B", ILS), generic.ErrInvalidParty},
		"same party":      {cash("2024-01-01", "3", "A", "A", ILS), generic.ErrValidation},
		"unknown ccy":     {cash("2024-01-01", "3", "A", "B", "EUR"), generic.ErrValidation},
		"no date":         {accounts.Draft{Amount: dec("1"), Payer: "A", Payee: "B"}, generic.ErrValidation},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := l.AddTransaction(a.ID, tc.draft)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	txs, err := l.Transactions(a.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestAddTransaction_Defaults(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)

	tx := add(t, l, a.ID, accounts.Draft{Date: date("2024-01-01"), Amount: dec("5"), Payer: "A", Payee: "B", PaymentMethod: accounts.MethodCheque})
	assert.Equal(t, ILS, tx.Currency, "primary currency")
	assert.Equal(t, accounts.ChequePending, tx.ChequeStatus)
	assert.Equal(t, accounts.TxStandard, tx.Type)
}

func TestCreateAccount_Validation(t *testing.T) {
	l := accounts.NewLedger()

	_, err := l.CreateAccount(accounts.Account{Name: "solo", Parties: []string{"A"}, Currencies: []accounts.Currency{ILS}})
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = l.CreateAccount(accounts.Account{Name: "dup", Parties: []string{"A", "A"}, Currencies: []accounts.Currency{ILS}})
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = l.CreateAccount(accounts.Account{Name: "no ccy", Parties: []string{"A", "B"}})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestOrdering_DateThenInsertion(t *testing.T) {
	today := date("2024-03-01")
	l, a := newTestLedger(t, &today)
	late := add(t, l, a.ID, cash("2024-02-10", "1", "A", "B", ILS))
	early := add(t, l, a.ID, cash("2024-02-01", "2", "A", "B", ILS))
	sameDay := add(t, l, a.ID, cash("2024-02-10", "3", "A", "B", ILS))

	txs, err := l.Transactions(a.ID)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []string{early.ID, late.ID, sameDay.ID}, []string{txs[0].ID, txs[1].ID, txs[2].ID})
}
