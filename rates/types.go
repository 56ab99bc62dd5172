// Package rates owns workers and their versioned pay terms.
// A worker's salary history is a date-indexed sequence of RateEntry values;
// the entry in force on a given day is found with Resolve.
package rates

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-ledger/generic"
)

// =============================================================================
// PAY TERMS
// =============================================================================

type PaymentType string

const (
	PaymentDaily   PaymentType = "daily"
	PaymentMonthly PaymentType = "monthly"
	PaymentHourly  PaymentType = "hourly"
)

type OvertimeMode string

const (
	OvertimeAutomatic OvertimeMode = "automatic"
	OvertimeManual    OvertimeMode = "manual"
)

// MonthlyDivisor converts a monthly salary into a per-work-day rate.
var MonthlyDivisor = decimal.NewFromInt(30)

// DefaultDivisionFactor is the hours-per-day used to derive an automatic
// overtime rate when the entry does not set one.
var DefaultDivisionFactor = decimal.NewFromInt(8)

// RateEntry is one version of a worker's pay terms, in force from
// EffectiveDate until the next entry's date.
type RateEntry struct {
	EffectiveDate  generic.TimePoint `json:"effectiveDate"`
	PaymentType    PaymentType       `json:"paymentType"`
	DailyRate      decimal.Decimal   `json:"dailyRate"`
	MonthlySalary  decimal.Decimal   `json:"monthlySalary"`
	HourlyRate     decimal.Decimal   `json:"hourlyRate"`
	OvertimeMode   OvertimeMode      `json:"overtimeMode"`
	DivisionFactor decimal.Decimal   `json:"divisionFactor"`
	OvertimeRate   decimal.Decimal   `json:"overtimeRate"`
	Notes          string            `json:"notes,omitempty"`
}

// UnitRate is the pay for one workDay unit: an hour for hourly pay,
// a day otherwise (monthly salary / 30).
func (e RateEntry) UnitRate() decimal.Decimal {
	switch e.PaymentType {
	case PaymentHourly:
		return e.HourlyRate
	case PaymentMonthly:
		return e.MonthlySalary.Div(MonthlyDivisor)
	default:
		return e.DailyRate
	}
}

// DailyEquivalentRate is the per-day rate for daily and monthly pay.
// For hourly pay it is the hourly rate times the division factor.
func (e RateEntry) DailyEquivalentRate() decimal.Decimal {
	if e.PaymentType == PaymentHourly {
		return e.HourlyRate.Mul(e.divisionFactor())
	}
	return e.UnitRate()
}

// OvertimeHourlyRate is the rate paid per overtime hour.
func (e RateEntry) OvertimeHourlyRate() decimal.Decimal {
	if e.OvertimeMode == OvertimeManual {
		return e.OvertimeRate
	}
	return e.DailyEquivalentRate().Div(e.divisionFactor())
}

func (e RateEntry) divisionFactor() decimal.Decimal {
	if e.DivisionFactor.IsPositive() {
		return e.DivisionFactor
	}
	return DefaultDivisionFactor
}

// Validate checks the entry carries a usable date, pay type and rates.
func (e RateEntry) Validate() error {
	if e.EffectiveDate.IsZero() {
		return generic.Invalid("rate entry requires an effective date")
	}
	switch e.PaymentType {
	case PaymentDaily, PaymentMonthly, PaymentHourly:
	default:
		return generic.Invalid("unknown payment type %q", e.PaymentType)
	}
	switch e.OvertimeMode {
	case OvertimeAutomatic, OvertimeManual, "":
	default:
		return generic.Invalid("unknown overtime mode %q", e.OvertimeMode)
	}
	for name, v := range map[string]decimal.Decimal{
		"dailyRate":      e.DailyRate,
		"monthlySalary":  e.MonthlySalary,
		"hourlyRate":     e.HourlyRate,
		"divisionFactor": e.DivisionFactor,
		"overtimeRate":   e.OvertimeRate,
	} {
		if v.IsNegative() {
			return generic.Invalid("%s must not be negative", name)
		}
	}
	return nil
}

// =============================================================================
// WORKER
// =============================================================================

type WorkerStatus string

const (
	StatusActive    WorkerStatus = "active"
	StatusSuspended WorkerStatus = "suspended"
)

// LegacyRates are the top-level rate fields of workers created before
// salary history existed. Used only when History is empty.
type LegacyRates struct {
	PaymentType    PaymentType     `json:"paymentType"`
	DailyRate      decimal.Decimal `json:"dailyRate"`
	MonthlySalary  decimal.Decimal `json:"monthlySalary"`
	HourlyRate     decimal.Decimal `json:"hourlyRate"`
	OvertimeMode   OvertimeMode    `json:"overtimeMode"`
	DivisionFactor decimal.Decimal `json:"divisionFactor"`
	OvertimeRate   decimal.Decimal `json:"overtimeRate"`
}

// Entry synthesizes a single-entry history fallback.
func (l LegacyRates) Entry() RateEntry {
	pt := l.PaymentType
	if pt == "" {
		pt = PaymentDaily
	}
	mode := l.OvertimeMode
	if mode == "" {
		mode = OvertimeAutomatic
	}
	return RateEntry{
		PaymentType:    pt,
		DailyRate:      l.DailyRate,
		MonthlySalary:  l.MonthlySalary,
		HourlyRate:     l.HourlyRate,
		OvertimeMode:   mode,
		DivisionFactor: l.DivisionFactor,
		OvertimeRate:   l.OvertimeRate,
		Notes:          "legacy rates",
	}
}

type Worker struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Status        WorkerStatus `json:"status"`
	Legacy        LegacyRates  `json:"legacy"`
	SalaryHistory History      `json:"salaryHistory"`
}

// IsActive reports whether the worker can be scheduled.
func (w Worker) IsActive() bool {
	return w.Status != StatusSuspended
}

// RateAt returns the pay terms in force on date, falling back to the
// legacy top-level fields when the history is empty.
func (w Worker) RateAt(date generic.TimePoint) RateEntry {
	if len(w.SalaryHistory) == 0 {
		return w.Legacy.Entry()
	}
	return Resolve(w.SalaryHistory, date)
}

// Clone returns a copy that shares no slices with w.
func (w Worker) Clone() Worker {
	w.SalaryHistory = append(History(nil), w.SalaryHistory...)
	return w
}
