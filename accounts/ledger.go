/*
ledger.go - Two-party account ledger with reconciliation checkpoints

STATE MACHINE (per account):
  open               no checkpoint; the whole log counts toward balance
  settled-as-of-T    a checkpoint at T; only entries after it count
  settled-as-of-T'   a later reconciliation moves the boundary forward
  Deleting the only checkpoint returns the account to open.

ORDERING:
  The log is ordered by date, then by insertion sequence. A checkpoint's
  position in this order is what splits settled history from the active
  segment, so every mutation keeps the log sorted.

CHECKPOINT GUARD:
  Checkpoints never change order: a date edit must keep a checkpoint after
  the previous one and before the next, and reconciliation never stamps a
  date earlier than the latest checkpoint. Moving a checkpoint across
  standard entries returns a stale-balances warning.
  Only the most recent checkpoint may be edited or deleted. Older ones are
  frozen snapshots that later balances were built on; changing them needs
  EditOptions.Force and returns a warning. Changes to standard entries in a
  settled segment are allowed but return a stale-balances warning, because
  checkpoints are never recomputed.

CARRY-FORWARD:
  Pending cheques excluded at reconciliation are listed on the checkpoint
  and stay in the following active segment until the next reconciliation.
*/
package accounts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-ledger/generic"
)

// Ledger owns accounts and their logs. It is not safe for concurrent use;
// the engine serializes every command.
type Ledger struct {
	// Now supplies the reconciliation date.
	Now func() generic.TimePoint

	accounts map[string]*Account
	logs     map[string][]Transaction // account -> sorted log
	txIndex  map[string]string        // transaction -> account
	seq      int64
}

func NewLedger() *Ledger {
	return &Ledger{
		Now:      generic.Today,
		accounts: make(map[string]*Account),
		logs:     make(map[string][]Transaction),
		txIndex:  make(map[string]string),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (l *Ledger) CreateAccount(a Account) (Account, error) {
	if err := a.validate(); err != nil {
		return Account{}, err
	}
	if a.ID == "" {
		a.ID = generic.NewID()
	}
	if _, exists := l.accounts[a.ID]; exists {
		return Account{}, fmt.Errorf("%w: account %s", generic.ErrDuplicate, a.ID)
	}
	stored := a.Clone()
	l.accounts[a.ID] = &stored
	return stored.Clone(), nil
}

func (l *Ledger) GetAccount(id string) (Account, error) {
	a, ok := l.accounts[id]
	if !ok {
		return Account{}, generic.NotFound(generic.ErrAccountNotFound, id)
	}
	return a.Clone(), nil
}

func (l *Ledger) ListAccounts() []Account {
	out := make([]Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// QUERIES
// =============================================================================

// Transactions returns the account log in order.
func (l *Ledger) Transactions(accountID string) ([]Transaction, error) {
	if _, err := l.account(accountID); err != nil {
		return nil, err
	}
	return cloneAll(l.logs[accountID]), nil
}

// Checkpoints returns the account's reconciliation entries in order.
func (l *Ledger) Checkpoints(accountID string) ([]Transaction, error) {
	if _, err := l.account(accountID); err != nil {
		return nil, err
	}
	var out []Transaction
	for _, tx := range l.logs[accountID] {
		if tx.IsCheckpoint() {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

// ActiveSegment returns the standard entries that count toward balance.
func (l *Ledger) ActiveSegment(accountID string) ([]Transaction, error) {
	if _, err := l.account(accountID); err != nil {
		return nil, err
	}
	return cloneAll(l.activeSegment(accountID)), nil
}

// PendingCheques returns pending cheques of the active segment.
func (l *Ledger) PendingCheques(accountID string) ([]Transaction, error) {
	if _, err := l.account(accountID); err != nil {
		return nil, err
	}
	var out []Transaction
	for _, tx := range l.activeSegment(accountID) {
		if tx.IsPendingCheque() {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

// Balance returns party's balance per currency over the active segment:
// what party paid minus what party received. Every account currency is
// present in the result, zero when untouched.
func (l *Ledger) Balance(accountID, party string) (Balances, error) {
	a, err := l.account(accountID)
	if err != nil {
		return nil, err
	}
	if !a.HasParty(party) {
		return nil, fmt.Errorf("%w: %q", generic.ErrInvalidParty, party)
	}
	return balanceOf(*a, party, l.activeSegment(accountID), nil), nil
}

func balanceOf(a Account, party string, txs []Transaction, skip map[string]bool) Balances {
	out := make(Balances, len(a.Currencies))
	for _, c := range a.Currencies {
		out[c] = decimal.Zero
	}
	for _, tx := range txs {
		if tx.IsCheckpoint() || skip[tx.ID] {
			continue
		}
		if tx.Payer == party {
			out[tx.Currency] = out[tx.Currency].Add(tx.Amount)
		}
		if tx.Payee == party {
			out[tx.Currency] = out[tx.Currency].Sub(tx.Amount)
		}
	}
	return out
}

// =============================================================================
// STANDARD TRANSACTIONS
// =============================================================================

// AddTransaction appends a standard entry. An entry dated before the latest
// checkpoint lands in settled history and returns a stale-balances warning.
func (l *Ledger) AddTransaction(accountID string, d Draft) (Transaction, []generic.Warning, error) {
	a, err := l.account(accountID)
	if err != nil {
		return Transaction{}, nil, err
	}
	tx := Transaction{ID: generic.NewID(), AccountID: accountID, Type: TxStandard}
	if err := applyDraft(*a, &tx, d); err != nil {
		return Transaction{}, nil, err
	}
	tx.Seq = l.nextSeq()
	l.insert(tx)

	var warnings []generic.Warning
	if l.inSettledSegment(accountID, tx) {
		warnings = append(warnings, staleWarning(tx))
	}
	return tx.Clone(), warnings, nil
}

// EditTransaction replaces an entry's content. For a checkpoint only the
// date and description change, under the checkpoint guard.
func (l *Ledger) EditTransaction(accountID, txID string, d Draft, opts EditOptions) (Transaction, []generic.Warning, error) {
	a, err := l.account(accountID)
	if err != nil {
		return Transaction{}, nil, err
	}
	i, err := l.find(accountID, txID)
	if err != nil {
		return Transaction{}, nil, err
	}
	current := l.logs[accountID][i]

	if current.IsCheckpoint() {
		warnings, err := l.guardCheckpoint(accountID, current, opts)
		if err != nil {
			return Transaction{}, nil, err
		}
		updated := current.Clone()
		if !d.Date.IsZero() && !d.Date.Equal(current.Date) {
			if err := l.checkCheckpointDate(accountID, i, d.Date); err != nil {
				return Transaction{}, nil, err
			}
			updated.Date = d.Date
		}
		if d.Description != "" {
			updated.Description = d.Description
		}
		before := l.segments(accountID)
		l.replace(accountID, i, updated)
		if moved := movedEntries(before, l.segments(accountID)); moved > 0 {
			warnings = append(warnings, generic.Warning{
				Code:    generic.WarnStaleBalances,
				Message: fmt.Sprintf("checkpoint %s moved to %s; %d transaction(s) changed settlement segment", current.ID, updated.Date, moved),
			})
		}
		return updated.Clone(), warnings, nil
	}

	updated := current.Clone()
	if err := applyDraft(*a, &updated, d); err != nil {
		return Transaction{}, nil, err
	}
	var warnings []generic.Warning
	if l.inSettledSegment(accountID, current) {
		warnings = append(warnings, staleWarning(current))
	}
	l.replace(accountID, i, updated)
	if len(warnings) == 0 && l.inSettledSegment(accountID, updated) {
		warnings = append(warnings, staleWarning(updated))
	}
	return updated.Clone(), warnings, nil
}

// DeleteTransaction removes an entry, under the checkpoint guard for
// checkpoints.
func (l *Ledger) DeleteTransaction(accountID, txID string, opts EditOptions) ([]generic.Warning, error) {
	if _, err := l.account(accountID); err != nil {
		return nil, err
	}
	i, err := l.find(accountID, txID)
	if err != nil {
		return nil, err
	}
	current := l.logs[accountID][i]

	var warnings []generic.Warning
	if current.IsCheckpoint() {
		if warnings, err = l.guardCheckpoint(accountID, current, opts); err != nil {
			return nil, err
		}
	} else if l.inSettledSegment(accountID, current) {
		warnings = append(warnings, staleWarning(current))
	}

	log := l.logs[accountID]
	l.logs[accountID] = append(log[:i:i], log[i+1:]...)
	delete(l.txIndex, txID)
	return warnings, nil
}

// MarkChequeCashed flips a pending cheque to cashed.
func (l *Ledger) MarkChequeCashed(accountID, txID string) (Transaction, error) {
	if _, err := l.account(accountID); err != nil {
		return Transaction{}, err
	}
	i, err := l.find(accountID, txID)
	if err != nil {
		return Transaction{}, err
	}
	tx := l.logs[accountID][i]
	if tx.PaymentMethod != MethodCheque || tx.IsCheckpoint() {
		return Transaction{}, generic.Invalid("transaction %s is not a cheque", txID)
	}
	tx.ChequeStatus = ChequeCashed
	l.logs[accountID][i] = tx
	return tx.Clone(), nil
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconcile settles the active segment up to today:
//  1. pending cheques named in ExcludedChequeIDs are carried forward
//  2. the balance of the rest is computed per currency, or taken from
//     ManualOverride when supplied
//  3. every other pending cheque in the segment is marked cashed
//  4. a zero-amount checkpoint describing the result is appended
//
// Entries dated after today stay in the next active segment.
func (l *Ledger) Reconcile(accountID string, in ReconcileInput) (ReconcileResult, error) {
	a, err := l.account(accountID)
	if err != nil {
		return ReconcileResult{}, err
	}
	today := l.Now()
	if last := l.latestCheckpoint(accountID); last >= 0 && today.Before(l.logs[accountID][last].Date) {
		latest := l.logs[accountID][last]
		return ReconcileResult{}, generic.Invalid("reconciliation date %s precedes latest checkpoint %s dated %s", today, latest.ID, latest.Date)
	}

	var segment []Transaction
	for _, tx := range l.activeSegment(accountID) {
		if !tx.Date.After(today) {
			segment = append(segment, tx)
		}
	}

	pending := make(map[string]bool)
	for _, tx := range segment {
		if tx.IsPendingCheque() {
			pending[tx.ID] = true
		}
	}
	excluded := make(map[string]bool, len(in.ExcludedChequeIDs))
	carried := make([]string, 0, len(in.ExcludedChequeIDs))
	for _, id := range in.ExcludedChequeIDs {
		if !pending[id] {
			return ReconcileResult{}, generic.Invalid("transaction %s is not a pending cheque in the active segment", id)
		}
		if !excluded[id] {
			excluded[id] = true
			carried = append(carried, id)
		}
	}
	for c := range in.ManualOverride {
		if !a.HasCurrency(c) {
			return ReconcileResult{}, generic.Invalid("override currency %s is not used by account", c)
		}
	}

	balances := balanceOf(*a, a.Primary(), segment, excluded)
	manual := in.ManualOverride != nil
	if manual {
		balances = make(Balances, len(a.Currencies))
		for _, c := range a.Currencies {
			balances[c] = decimal.Zero
		}
		for c, v := range in.ManualOverride {
			balances[c] = v
		}
	}

	var cashed []string
	for id := range pending {
		if excluded[id] {
			continue
		}
		i, _ := l.find(accountID, id)
		l.logs[accountID][i].ChequeStatus = ChequeCashed
		cashed = append(cashed, id)
	}
	sort.Strings(cashed)

	checkpoint := Transaction{
		ID:             generic.NewID(),
		AccountID:      accountID,
		Date:           today,
		Description:    describe(*a, balances, len(carried), manual),
		Amount:         decimal.Zero,
		Currency:       a.Currencies[0],
		Payer:          a.Parties[0],
		Payee:          a.Parties[1],
		PaymentMethod:  MethodCash,
		Type:           TxReconciliation,
		CarriedForward: carried,
		Seq:            l.nextSeq(),
	}
	l.insert(checkpoint)

	return ReconcileResult{
		Checkpoint:     checkpoint.Clone(),
		Balances:       balances,
		CashedCheques:  cashed,
		CarriedForward: append([]string(nil), carried...),
	}, nil
}

// describe renders a checkpoint summary from the primary party's view.
func describe(a Account, b Balances, carried int, manual bool) string {
	primary, other := a.Primary(), a.Counterparty(a.Primary())
	parts := make([]string, 0, len(a.Currencies))
	for _, c := range a.Currencies {
		v := b[c]
		switch {
		case v.IsPositive():
			parts = append(parts, fmt.Sprintf("%s owes %s %s %s", other, primary, v.StringFixed(2), c))
		case v.IsNegative():
			parts = append(parts, fmt.Sprintf("%s owes %s %s %s", primary, other, v.Neg().StringFixed(2), c))
		default:
			parts = append(parts, fmt.Sprintf("%s settled", c))
		}
	}
	prefix := "Reconciliation"
	if manual {
		prefix = "Reconciliation (manual)"
	}
	return fmt.Sprintf("%s: %s; %d cheque(s) carried forward", prefix, strings.Join(parts, "; "), carried)
}

// =============================================================================
// INTERNALS
// =============================================================================

// Restore loads a persisted account and its log.
func (l *Ledger) Restore(a Account, txs []Transaction) {
	stored := a.Clone()
	l.accounts[a.ID] = &stored
	for _, tx := range txs {
		tx.AccountID = a.ID
		if tx.Seq > l.seq {
			l.seq = tx.Seq
		}
		l.insert(tx.Clone())
	}
}

func (l *Ledger) account(id string) (*Account, error) {
	a, ok := l.accounts[id]
	if !ok {
		return nil, generic.NotFound(generic.ErrAccountNotFound, id)
	}
	return a, nil
}

func (l *Ledger) find(accountID, txID string) (int, error) {
	if l.txIndex[txID] == accountID {
		for i, tx := range l.logs[accountID] {
			if tx.ID == txID {
				return i, nil
			}
		}
	}
	return -1, generic.NotFound(generic.ErrTransactionNotFound, txID)
}

func (l *Ledger) nextSeq() int64 {
	l.seq++
	return l.seq
}

// insert places tx at its sorted position.
func (l *Ledger) insert(tx Transaction) {
	log := l.logs[tx.AccountID]
	i := sort.Search(len(log), func(i int) bool {
		return tx.before(log[i])
	})
	log = append(log, Transaction{})
	copy(log[i+1:], log[i:])
	log[i] = tx
	l.logs[tx.AccountID] = log
	l.txIndex[tx.ID] = tx.AccountID
}

// replace swaps the entry at i and restores ordering.
func (l *Ledger) replace(accountID string, i int, tx Transaction) {
	log := l.logs[accountID]
	log[i] = tx
	sort.SliceStable(log, func(i, j int) bool { return log[i].before(log[j]) })
}

// latestCheckpoint returns the index of the last checkpoint, or -1.
func (l *Ledger) latestCheckpoint(accountID string) int {
	log := l.logs[accountID]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].IsCheckpoint() {
			return i
		}
	}
	return -1
}

func (l *Ledger) activeSegment(accountID string) []Transaction {
	log := l.logs[accountID]
	last := l.latestCheckpoint(accountID)
	if last < 0 {
		return log
	}

	carried := make(map[string]bool, len(log[last].CarriedForward))
	for _, id := range log[last].CarriedForward {
		carried[id] = true
	}
	var out []Transaction
	for i, tx := range log {
		if tx.IsCheckpoint() {
			continue
		}
		if i > last || carried[tx.ID] {
			out = append(out, tx)
		}
	}
	return out
}

// inSettledSegment reports whether tx sits before the latest checkpoint
// without being carried forward by it.
func (l *Ledger) inSettledSegment(accountID string, tx Transaction) bool {
	last := l.latestCheckpoint(accountID)
	if last < 0 {
		return false
	}
	cp := l.logs[accountID][last]
	if cp.ID == tx.ID || !tx.before(cp) {
		return false
	}
	for _, id := range cp.CarriedForward {
		if id == tx.ID {
			return false
		}
	}
	return true
}

// checkCheckpointDate keeps the checkpoint at i strictly between its
// neighbouring checkpoints when moved to date.
func (l *Ledger) checkCheckpointDate(accountID string, i int, date generic.TimePoint) error {
	log := l.logs[accountID]
	for j := i - 1; j >= 0; j-- {
		if log[j].IsCheckpoint() {
			if !date.After(log[j].Date) {
				return generic.Invalid("checkpoint %s cannot move to %s: previous checkpoint %s is dated %s", log[i].ID, date, log[j].ID, log[j].Date)
			}
			break
		}
	}
	for j := i + 1; j < len(log); j++ {
		if log[j].IsCheckpoint() {
			if !date.Before(log[j].Date) {
				return generic.Invalid("checkpoint %s cannot move to %s: next checkpoint %s is dated %s", log[i].ID, date, log[j].ID, log[j].Date)
			}
			break
		}
	}
	return nil
}

// segments maps each standard entry to the number of checkpoints before it.
func (l *Ledger) segments(accountID string) map[string]int {
	out := make(map[string]int, len(l.logs[accountID]))
	n := 0
	for _, tx := range l.logs[accountID] {
		if tx.IsCheckpoint() {
			n++
			continue
		}
		out[tx.ID] = n
	}
	return out
}

func movedEntries(before, after map[string]int) int {
	moved := 0
	for id, seg := range before {
		if after[id] != seg {
			moved++
		}
	}
	return moved
}

func (l *Ledger) guardCheckpoint(accountID string, cp Transaction, opts EditOptions) ([]generic.Warning, error) {
	latest := l.logs[accountID][l.latestCheckpoint(accountID)]
	if latest.ID == cp.ID {
		return nil, nil
	}
	if !opts.Force {
		return nil, &generic.CheckpointLockedError{TransactionID: cp.ID, LatestID: latest.ID}
	}
	return []generic.Warning{{
		Code:    generic.WarnForcedCheckpointEdit,
		Message: fmt.Sprintf("checkpoint %s changed although %s is newer; balances settled since %s are stale", cp.ID, latest.ID, cp.Date),
	}}, nil
}

func applyDraft(a Account, tx *Transaction, d Draft) error {
	if d.Date.IsZero() {
		return generic.Invalid("transaction requires a date")
	}
	if !d.Amount.IsPositive() {
		return fmt.Errorf("transaction: %w", generic.ErrInvalidAmount)
	}
	currency := d.Currency
	if currency == "" {
		currency = a.Currencies[0]
	}
	if !a.HasCurrency(currency) {
		return generic.Invalid("currency %s is not used by account %s", currency, a.ID)
	}
	if !a.HasParty(d.Payer) {
		return fmt.Errorf("%w: payer %q", generic.ErrInvalidParty, d.Payer)
	}
	if !a.HasParty(d.Payee) {
		return fmt.Errorf("%w: payee %q", generic.ErrInvalidParty, d.Payee)
	}
	if d.Payer == d.Payee {
		return generic.Invalid("payer and payee must differ")
	}

	method := d.PaymentMethod
	if method == "" {
		method = MethodCash
	}
	status := d.ChequeStatus
	switch method {
	case MethodCash:
		status = ""
	case MethodCheque:
		if status == "" {
			status = ChequePending
		}
		if status != ChequePending && status != ChequeCashed {
			return generic.Invalid("unknown cheque status %q", status)
		}
	default:
		return generic.Invalid("unknown payment method %q", method)
	}

	tx.Date = d.Date
	tx.Description = d.Description
	tx.Amount = d.Amount
	tx.Currency = currency
	tx.Payer = d.Payer
	tx.Payee = d.Payee
	tx.PaymentMethod = method
	tx.ChequeStatus = status
	return nil
}

func staleWarning(tx Transaction) generic.Warning {
	return generic.Warning{
		Code:    generic.WarnStaleBalances,
		Message: fmt.Sprintf("transaction %s (%s) is in settled history; later checkpoints were not recomputed", tx.ID, tx.Date),
	}
}

func cloneAll(txs []Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	for i, tx := range txs {
		out[i] = tx.Clone()
	}
	return out
}
