package daily

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/rates"
)

// =============================================================================
// NET PAY - Derived, never stored
// =============================================================================

// GrossPay is the earned amount for the record under entry.
//
//	absent:         0
//	hourly:         workDay x hourlyRate
//	daily/monthly:  workDay x dailyEquivalent (monthly = salary / 30)
//	                + overtimeHours x overtimeRate, only when present
func GrossPay(r Record, entry rates.RateEntry) decimal.Decimal {
	if r.Status == StatusAbsent {
		return decimal.Zero
	}
	gross := r.WorkDay.Mul(entry.UnitRate())
	if entry.PaymentType == rates.PaymentHourly {
		return gross
	}
	if r.Status == StatusPresent {
		gross = gross.Add(r.OvertimeHours.Mul(entry.OvertimeHourlyRate()))
	}
	return gross
}

// NetPay is gross pay minus advance, smoking and expense.
// An absent day yields the negated deductions.
func NetPay(r Record, entry rates.RateEntry) decimal.Decimal {
	return GrossPay(r, entry).Sub(r.Deductions())
}

// =============================================================================
// PERIOD SUMMARY
// =============================================================================

// Summary aggregates a worker's records over a period. Each day is priced
// with the rate in force on that day.
type Summary struct {
	WorkerID         string          `json:"workerId"`
	Period           generic.Period  `json:"-"`
	Records          int             `json:"records"`
	DaysPresent      int             `json:"daysPresent"`
	DaysAbsent       int             `json:"daysAbsent"`
	DaysPaidLeave    int             `json:"daysPaidLeave"`
	WorkUnits        decimal.Decimal `json:"workUnits"`
	OvertimeHours    decimal.Decimal `json:"overtimeHours"`
	Gross            decimal.Decimal `json:"gross"`
	Advances         decimal.Decimal `json:"advances"`
	DeferredAdvances decimal.Decimal `json:"deferredAdvances"`
	Smoking          decimal.Decimal `json:"smoking"`
	Expenses         decimal.Decimal `json:"expenses"`
	Net              decimal.Decimal `json:"net"`
}

// Summarize prices records for worker. Records of other workers are ignored.
func Summarize(worker rates.Worker, period generic.Period, records []Record) Summary {
	sum := Summary{
		WorkerID:         worker.ID,
		Period:           period,
		WorkUnits:        decimal.Zero,
		OvertimeHours:    decimal.Zero,
		Gross:            decimal.Zero,
		Advances:         decimal.Zero,
		DeferredAdvances: decimal.Zero,
		Smoking:          decimal.Zero,
		Expenses:         decimal.Zero,
		Net:              decimal.Zero,
	}
	for _, r := range records {
		if r.WorkerID != worker.ID || !period.Contains(r.Date) {
			continue
		}
		entry := worker.RateAt(r.Date)
		sum.Records++
		switch r.Status {
		case StatusPresent:
			sum.DaysPresent++
		case StatusAbsent:
			sum.DaysAbsent++
		case StatusPaidLeave:
			sum.DaysPaidLeave++
		}
		if r.Status != StatusAbsent {
			sum.WorkUnits = sum.WorkUnits.Add(r.WorkDay)
		}
		if r.Status == StatusPresent {
			sum.OvertimeHours = sum.OvertimeHours.Add(r.OvertimeHours)
		}
		sum.Gross = sum.Gross.Add(GrossPay(r, entry))
		sum.Advances = sum.Advances.Add(r.Advance)
		sum.DeferredAdvances = sum.DeferredAdvances.Add(r.DeferredTotal())
		sum.Smoking = sum.Smoking.Add(r.Smoking)
		sum.Expenses = sum.Expenses.Add(r.Expense)
		sum.Net = sum.Net.Add(NetPay(r, entry))
	}
	return sum
}
