/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request types carry
  validate tags checked by go-playground/validator before any command
  reaches the engine; domain rules (positive amounts, known parties,
  advance >= deferred total) are still enforced by the domain packages.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types returned to clients
  - Domain types (rates.Worker, daily.Record, accounts.Transaction) are
    returned as-is where their JSON shape is already the contract.

MONEY:
  Requests accept decimal amounts as JSON numbers or strings. Balance
  responses are rounded to 2 places; nothing else is rounded.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-ledger/accounts"
	"github.com/warp/payroll-ledger/advance"
	"github.com/warp/payroll-ledger/daily"
	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/rates"
)

// =============================================================================
// WORKERS
// =============================================================================

// RateEntryRequest is one salary history entry.
type RateEntryRequest struct {
	EffectiveDate  generic.TimePoint  `json:"effectiveDate"`
	PaymentType    rates.PaymentType  `json:"paymentType" validate:"required,oneof=daily monthly hourly"`
	DailyRate      decimal.Decimal    `json:"dailyRate"`
	MonthlySalary  decimal.Decimal    `json:"monthlySalary"`
	HourlyRate     decimal.Decimal    `json:"hourlyRate"`
	OvertimeMode   rates.OvertimeMode `json:"overtimeMode" validate:"omitempty,oneof=automatic manual"`
	DivisionFactor decimal.Decimal    `json:"divisionFactor"`
	OvertimeRate   decimal.Decimal    `json:"overtimeRate"`
	Notes          string             `json:"notes" validate:"max=500"`
}

func (r RateEntryRequest) toEntry() rates.RateEntry {
	return rates.RateEntry{
		EffectiveDate:  r.EffectiveDate,
		PaymentType:    r.PaymentType,
		DailyRate:      r.DailyRate,
		MonthlySalary:  r.MonthlySalary,
		HourlyRate:     r.HourlyRate,
		OvertimeMode:   r.OvertimeMode,
		DivisionFactor: r.DivisionFactor,
		OvertimeRate:   r.OvertimeRate,
		Notes:          r.Notes,
	}
}

// CreateWorkerRequest creates a worker with its first rate entry.
type CreateWorkerRequest struct {
	ID     string            `json:"id" validate:"omitempty,max=64"`
	Name   string            `json:"name" validate:"required,max=200"`
	Legacy rates.LegacyRates `json:"legacy"`
	Rate   RateEntryRequest  `json:"rate"`
}

type SetStatusRequest struct {
	Status rates.WorkerStatus `json:"status" validate:"required,oneof=active suspended"`
}

// =============================================================================
// DAILY RECORDS
// =============================================================================

// RecordRequest is one record of a ReplaceDay batch. Notes may still carry
// legacy PMA tokens; they are imported as deferred advances.
type RecordRequest struct {
	ID               string          `json:"id"`
	WorkerID         string          `json:"workerId" validate:"required"`
	ProjectID        string          `json:"projectId"`
	Status           daily.Status    `json:"status" validate:"omitempty,oneof=present absent paid-leave"`
	WorkDay          decimal.Decimal `json:"workDay"`
	OvertimeHours    decimal.Decimal `json:"overtimeHours"`
	Advance          decimal.Decimal `json:"advance"`
	Smoking          decimal.Decimal `json:"smoking"`
	Expense          decimal.Decimal `json:"expense"`
	Notes            string          `json:"notes"`
	DeferredAdvances []advance.Entry `json:"deferredAdvances"`
}

func (r RecordRequest) toRecord(date generic.TimePoint) daily.Record {
	return daily.Record{
		ID:               r.ID,
		WorkerID:         r.WorkerID,
		Date:             date,
		ProjectID:        r.ProjectID,
		Status:           r.Status,
		WorkDay:          r.WorkDay,
		OvertimeHours:    r.OvertimeHours,
		Advance:          r.Advance,
		Smoking:          r.Smoking,
		Expense:          r.Expense,
		Notes:            r.Notes,
		DeferredAdvances: r.DeferredAdvances,
	}
}

type ReplaceDayRequest struct {
	Records []RecordRequest `json:"records" validate:"dive"`
}

type ScheduleDayRequest struct {
	ProjectID string `json:"projectId"`
}

// MergeRequest adds a same-day adjustment to a worker's record.
type MergeRequest struct {
	WorkerID string `json:"workerId" validate:"required"`
	daily.Fields
}

type AddAdvanceRequest struct {
	Date   generic.TimePoint `json:"date"`
	Amount decimal.Decimal   `json:"amount"`
	Notes  string            `json:"notes" validate:"max=500"`
}

// PayDTO is the priced view of a record.
type PayDTO struct {
	RecordID   string          `json:"recordId"`
	WorkerID   string          `json:"workerId"`
	Date       string          `json:"date"`
	Rate       rates.RateEntry `json:"rate"`
	Gross      decimal.Decimal `json:"gross"`
	Deductions decimal.Decimal `json:"deductions"`
	Net        decimal.Decimal `json:"net"`
}

// SummaryDTO wraps daily.Summary with its period.
type SummaryDTO struct {
	From string `json:"from"`
	To   string `json:"to"`
	daily.Summary
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type CreateAccountRequest struct {
	ID         string              `json:"id" validate:"omitempty,max=64"`
	Name       string              `json:"name" validate:"required,max=200"`
	Parties    []string            `json:"parties" validate:"min=2,unique,dive,required"`
	Currencies []accounts.Currency `json:"currencies" validate:"omitempty,unique,dive,required,uppercase"`
}

// TransactionRequest adds or edits a transaction. Editing a checkpoint
// only uses Date and Description.
type TransactionRequest struct {
	Date          generic.TimePoint      `json:"date"`
	Description   string                 `json:"description" validate:"max=500"`
	Amount        decimal.Decimal        `json:"amount"`
	Currency      accounts.Currency      `json:"currency" validate:"omitempty,uppercase"`
	Payer         string                 `json:"payer"`
	Payee         string                 `json:"payee" validate:"omitempty,nefield=Payer"`
	PaymentMethod accounts.PaymentMethod `json:"paymentMethod" validate:"omitempty,oneof=cash cheque"`
	ChequeStatus  accounts.ChequeStatus  `json:"chequeStatus" validate:"omitempty,oneof=pending cashed"`
}

func (r TransactionRequest) toDraft() accounts.Draft {
	return accounts.Draft{
		Date:          r.Date,
		Description:   r.Description,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Payer:         r.Payer,
		Payee:         r.Payee,
		PaymentMethod: r.PaymentMethod,
		ChequeStatus:  r.ChequeStatus,
	}
}

type ReconcileRequest struct {
	ExcludedChequeIDs []string          `json:"excludedChequeIds" validate:"unique,dive,required"`
	ManualOverride    accounts.Balances `json:"manualOverride"`
}

// BalanceDTO is a party's per-currency balance, rounded for display.
type BalanceDTO struct {
	AccountID string            `json:"accountId"`
	Party     string            `json:"party"`
	Balances  map[string]string `json:"balances"`
}

func toBalanceDTO(accountID, party string, b accounts.Balances) BalanceDTO {
	out := BalanceDTO{AccountID: accountID, Party: party, Balances: make(map[string]string, len(b))}
	for c, v := range b {
		out.Balances[string(c)] = v.StringFixed(2)
	}
	return out
}

// =============================================================================
// COMMON
// =============================================================================

// ResultDTO carries a command result with its non-fatal warnings.
type ResultDTO struct {
	Result   any               `json:"result,omitempty"`
	Warnings []generic.Warning `json:"warnings"`
}

func withWarnings(result any, warnings []generic.Warning) ResultDTO {
	if warnings == nil {
		warnings = []generic.Warning{}
	}
	return ResultDTO{Result: result, Warnings: warnings}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}
