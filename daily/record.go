// Package daily owns the per-worker, per-day attendance and financial
// records, the deferred advances filed under them, and net-pay computation.
package daily

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-ledger/advance"
	"github.com/warp/payroll-ledger/generic"
)

type Status string

const (
	StatusPresent   Status = "present"
	StatusAbsent    Status = "absent"
	StatusPaidLeave Status = "paid-leave"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusPaidLeave:
		return true
	}
	return false
}

// Record is the single record for (WorkerID, Date).
//
// Advance is the total advance for the record: the same-day advance plus
// every deferred advance. It never drops below zero and never below the
// deferred total while the record is edited through the Store.
type Record struct {
	ID               string            `json:"id"`
	WorkerID         string            `json:"workerId"`
	Date             generic.TimePoint `json:"date"`
	ProjectID        string            `json:"projectId,omitempty"`
	Status           Status            `json:"status"`
	WorkDay          decimal.Decimal   `json:"workDay"`
	OvertimeHours    decimal.Decimal   `json:"overtimeHours"`
	Advance          decimal.Decimal   `json:"advance"`
	Smoking          decimal.Decimal   `json:"smoking"`
	Expense          decimal.Decimal   `json:"expense"`
	Notes            string            `json:"notes,omitempty"`
	DeferredAdvances []advance.Entry   `json:"deferredAdvances,omitempty"`
}

// DeferredTotal sums the deferred advances.
func (r Record) DeferredTotal() decimal.Decimal {
	return advance.Total(r.DeferredAdvances)
}

// SameDayAdvance is the part of Advance not attributable to a deferred entry.
func (r Record) SameDayAdvance() decimal.Decimal {
	return r.Advance.Sub(r.DeferredTotal())
}

// Deductions is advance + smoking + expense.
func (r Record) Deductions() decimal.Decimal {
	return generic.Sum(r.Advance, r.Smoking, r.Expense)
}

// LegacyNotes renders notes with deferred advances embedded as tokens.
func (r Record) LegacyNotes() string {
	return advance.Join(r.Notes, r.DeferredAdvances)
}

// Clone returns a copy that shares no slices with r.
func (r Record) Clone() Record {
	r.DeferredAdvances = append([]advance.Entry(nil), r.DeferredAdvances...)
	return r
}

// importLegacyNotes moves any tokens found in Notes into DeferredAdvances.
// separator is the merge separator, dropped together with the tokens.
func (r *Record) importLegacyNotes(separator string) {
	if !advance.ContainsTokens(r.Notes) {
		return
	}
	plain, entries := advance.SplitSeparated(r.Notes, separator)
	r.Notes = plain
	r.appendDeferred(entries)
}

// appendDeferred adds entries, giving a fresh id to any entry whose id is
// empty or already taken on r.
func (r *Record) appendDeferred(entries []advance.Entry) {
	for _, e := range entries {
		if e.ID == "" || advance.Index(r.DeferredAdvances, e.ID) >= 0 {
			e.ID = generic.NewID()
		}
		r.DeferredAdvances = append(r.DeferredAdvances, e)
	}
}

func (r Record) validate() error {
	if r.WorkerID == "" {
		return generic.Invalid("record requires a worker id")
	}
	if r.Date.IsZero() {
		return generic.Invalid("record requires a date")
	}
	if !r.Status.Valid() {
		return generic.Invalid("unknown record status %q", r.Status)
	}
	for name, v := range map[string]decimal.Decimal{
		"workDay":       r.WorkDay,
		"overtimeHours": r.OvertimeHours,
		"advance":       r.Advance,
		"smoking":       r.Smoking,
		"expense":       r.Expense,
	} {
		if v.IsNegative() {
			return generic.Invalid("%s must not be negative", name)
		}
	}
	ids := make(map[string]bool, len(r.DeferredAdvances))
	for _, e := range r.DeferredAdvances {
		if e.ID == "" {
			return generic.Invalid("deferred advance requires an id")
		}
		if ids[e.ID] {
			return generic.Invalid("deferred advance id %s appears twice", e.ID)
		}
		ids[e.ID] = true
		if !e.Amount.IsPositive() {
			return generic.Invalid("deferred advance %s: %v", e.ID, generic.ErrInvalidAmount)
		}
	}
	if r.Advance.LessThan(r.DeferredTotal()) {
		return generic.Invalid("advance %s is below deferred advances total %s", r.Advance, r.DeferredTotal())
	}
	return nil
}

// Fields is a partial record. Nil fields are left unchanged.
type Fields struct {
	ProjectID     *string          `json:"projectId,omitempty"`
	Status        *Status          `json:"status,omitempty"`
	WorkDay       *decimal.Decimal `json:"workDay,omitempty"`
	OvertimeHours *decimal.Decimal `json:"overtimeHours,omitempty"`
	Advance       *decimal.Decimal `json:"advance,omitempty"`
	Smoking       *decimal.Decimal `json:"smoking,omitempty"`
	Expense       *decimal.Decimal `json:"expense,omitempty"`
	Notes         *string          `json:"notes,omitempty"`
}

// apply overwrites every set field.
func (f Fields) apply(r *Record) {
	if f.ProjectID != nil {
		r.ProjectID = *f.ProjectID
	}
	if f.Status != nil {
		r.Status = *f.Status
	}
	if f.WorkDay != nil {
		r.WorkDay = *f.WorkDay
	}
	if f.OvertimeHours != nil {
		r.OvertimeHours = *f.OvertimeHours
	}
	if f.Advance != nil {
		r.Advance = *f.Advance
	}
	if f.Smoking != nil {
		r.Smoking = *f.Smoking
	}
	if f.Expense != nil {
		r.Expense = *f.Expense
	}
	if f.Notes != nil {
		r.Notes = *f.Notes
	}
}

// AdvanceUpdate edits a deferred advance. Nil fields are left unchanged.
type AdvanceUpdate struct {
	Date   *generic.TimePoint `json:"date,omitempty"`
	Amount *decimal.Decimal   `json:"amount,omitempty"`
	Notes  *string            `json:"notes,omitempty"`
}

func newRecord(workerID string, date generic.TimePoint) Record {
	return Record{
		ID:            generic.NewID(),
		WorkerID:      workerID,
		Date:          date,
		Status:        StatusPresent,
		WorkDay:       decimal.Zero,
		OvertimeHours: decimal.Zero,
		Advance:       decimal.Zero,
		Smoking:       decimal.Zero,
		Expense:       decimal.Zero,
	}
}
