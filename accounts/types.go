// Package accounts implements two-party personal accounts: an ordered
// transaction log per account, balances over the active segment, and
// reconciliation checkpoints that freeze everything before them.
package accounts

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-ledger/generic"
)

// =============================================================================
// ACCOUNT
// =============================================================================

// Currency is an ISO-style code. An account carries a primary and a
// secondary currency; Currencies[0] is primary.
type Currency string

// Account is a ledger between Parties. Parties[0] is the primary side for
// the balance sign convention.
type Account struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Parties    []string   `json:"parties"`
	Currencies []Currency `json:"currencies"`
}

func (a Account) Primary() string {
	return a.Parties[0]
}

// Counterparty returns the other side of a two-party account.
func (a Account) Counterparty(party string) string {
	for _, p := range a.Parties {
		if p != party {
			return p
		}
	}
	return ""
}

func (a Account) HasParty(name string) bool {
	for _, p := range a.Parties {
		if p == name {
			return true
		}
	}
	return false
}

func (a Account) HasCurrency(c Currency) bool {
	for _, cur := range a.Currencies {
		if cur == c {
			return true
		}
	}
	return false
}

func (a Account) validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return generic.Invalid("account name is required")
	}
	if len(a.Parties) < 2 {
		return generic.Invalid("account needs at least two parties")
	}
	seen := make(map[string]bool, len(a.Parties))
	for _, p := range a.Parties {
		if strings.TrimSpace(p) == "" {
			return generic.Invalid("party name is required")
		}
		if seen[p] {
			return generic.Invalid("duplicate party %q", p)
		}
		seen[p] = true
	}
	if len(a.Currencies) == 0 {
		return generic.Invalid("account needs at least one currency")
	}
	return nil
}

func (a Account) Clone() Account {
	a.Parties = append([]string(nil), a.Parties...)
	a.Currencies = append([]Currency(nil), a.Currencies...)
	return a
}

// =============================================================================
// TRANSACTION
// =============================================================================

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodCheque PaymentMethod = "cheque"
)

type ChequeStatus string

const (
	ChequePending ChequeStatus = "pending"
	ChequeCashed  ChequeStatus = "cashed"
)

type TransactionType string

const (
	TxStandard       TransactionType = "standard"
	TxReconciliation TransactionType = "reconciliation"
)

// Transaction is one entry of an account log.
//
// A reconciliation transaction has zero amount and marks a checkpoint.
// CarriedForward lists the pending cheques it excluded; they keep counting
// in the segment that follows it.
type Transaction struct {
	ID             string            `json:"id"`
	AccountID      string            `json:"accountId"`
	Date           generic.TimePoint `json:"date"`
	Description    string            `json:"description"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       Currency          `json:"currency"`
	Payer          string            `json:"payer"`
	Payee          string            `json:"payee"`
	PaymentMethod  PaymentMethod     `json:"paymentMethod"`
	ChequeStatus   ChequeStatus      `json:"chequeStatus,omitempty"`
	Type           TransactionType   `json:"transactionType"`
	CarriedForward []string          `json:"carriedForward,omitempty"`

	// Seq is the insertion order, the tiebreak for same-date entries.
	Seq int64 `json:"seq"`
}

func (t Transaction) IsCheckpoint() bool {
	return t.Type == TxReconciliation
}

func (t Transaction) IsPendingCheque() bool {
	return t.Type == TxStandard && t.PaymentMethod == MethodCheque && t.ChequeStatus == ChequePending
}

func (t Transaction) Clone() Transaction {
	t.CarriedForward = append([]string(nil), t.CarriedForward...)
	return t
}

// before orders the log: date, then insertion sequence.
func (t Transaction) before(other Transaction) bool {
	if c := t.Date.Compare(other.Date); c != 0 {
		return c < 0
	}
	return t.Seq < other.Seq
}

// Draft is the caller-supplied content of a new or edited transaction.
type Draft struct {
	Date          generic.TimePoint `json:"date"`
	Description   string            `json:"description"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      Currency          `json:"currency"`
	Payer         string            `json:"payer"`
	Payee         string            `json:"payee"`
	PaymentMethod PaymentMethod     `json:"paymentMethod"`
	ChequeStatus  ChequeStatus      `json:"chequeStatus,omitempty"`
}

// =============================================================================
// BALANCES
// =============================================================================

// Balances maps currency to a party's balance. Positive means the party
// paid more than it received in the active segment.
type Balances map[Currency]decimal.Decimal

// Neg returns the counterparty view.
func (b Balances) Neg() Balances {
	out := make(Balances, len(b))
	for c, v := range b {
		out[c] = v.Neg()
	}
	return out
}

// ReconcileInput configures a reconciliation.
type ReconcileInput struct {
	// ExcludedChequeIDs are pending cheques carried forward untouched.
	ExcludedChequeIDs []string `json:"excludedChequeIds"`

	// ManualOverride replaces the computed balance in the checkpoint
	// description with operator-supplied figures (primary party's view).
	ManualOverride Balances `json:"manualOverride,omitempty"`
}

// ReconcileResult reports what a reconciliation did.
type ReconcileResult struct {
	Checkpoint     Transaction `json:"checkpoint"`
	Balances       Balances    `json:"balances"`
	CashedCheques  []string    `json:"cashedCheques"`
	CarriedForward []string    `json:"carriedForward"`
}

// EditOptions relax the checkpoint guard.
type EditOptions struct {
	// Force allows changing a checkpoint that is not the most recent one.
	Force bool `json:"force"`
}
