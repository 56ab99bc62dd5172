/*
store.go - Daily record store

PURPOSE:
  Owns one Record per (worker, date) and applies the commands that change
  them. Every command validates fully before touching state, so a failed
  command leaves the store exactly as it was.

OPERATIONS:
  ReplaceDay:             Wholesale replacement of a date's records. Workers
                          missing from the incoming set keep their record.
  MergeInto:              Additive same-day adjustment (advance, smoking and
                          expense are summed; notes are concatenated).
  UpdateRecord:           Field-level edit (overwrite semantics).
  ScheduleDay:            Lazily create default records for active workers.
  Add/Edit/RemoveDeferredAdvance:
                          Deferred-advance sub-ledger; Advance mirrors
                          every change and is clamped at zero.

LEGACY NOTES:
  Notes arriving with embedded PMA tokens (see package advance) are split on
  the way in: the tokens become DeferredAdvances, the rest stays as Notes.
*/
package daily

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-ledger/advance"
	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/rates"
)

// DefaultNotesSeparator joins notes merged into an existing record.
const DefaultNotesSeparator = " | "

// DefaultHourlyWorkDay is the workDay given to hourly workers by ScheduleDay.
var DefaultHourlyWorkDay = decimal.NewFromInt(8)

// Store is not safe for concurrent use; the engine serializes commands.
type Store struct {
	NotesSeparator string

	byDate map[string]map[string]*Record // date -> worker -> record
	byID   map[string]*Record
}

func NewStore() *Store {
	return &Store{
		NotesSeparator: DefaultNotesSeparator,
		byDate:         make(map[string]map[string]*Record),
		byID:           make(map[string]*Record),
	}
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Store) Get(id string) (Record, error) {
	r, ok := s.byID[id]
	if !ok {
		return Record{}, generic.NotFound(generic.ErrRecordNotFound, id)
	}
	return r.Clone(), nil
}

// Find returns the record for (workerID, date).
func (s *Store) Find(workerID string, date generic.TimePoint) (Record, bool) {
	r, ok := s.byDate[date.String()][workerID]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// ListByDate returns the date's records ordered by worker id.
func (s *Store) ListByDate(date generic.TimePoint) []Record {
	day := s.byDate[date.String()]
	out := make([]Record, 0, len(day))
	for _, r := range day {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}

// ListByWorker returns the worker's records in period, ordered by date.
func (s *Store) ListByWorker(workerID string, period generic.Period) []Record {
	var out []Record
	for _, r := range s.byID {
		if r.WorkerID == workerID && period.Contains(r.Date) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// All returns every record ordered by date, then worker id.
func (s *Store) All() []Record {
	out := make([]Record, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].WorkerID < out[j].WorkerID
	})
	return out
}

// =============================================================================
// DAY-LEVEL COMMANDS
// =============================================================================

// ReplaceDay stores records as the new contents of date. Records already
// stored for workers absent from records are left untouched; other dates
// are never affected. An incoming record without an id takes over the id
// of the record it replaces.
func (s *Store) ReplaceDay(date generic.TimePoint, records []Record) ([]Record, error) {
	prepared := make([]Record, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, in := range records {
		r := in.Clone()
		if r.Date.IsZero() {
			r.Date = date
		}
		if !r.Date.Equal(date) {
			return nil, generic.Invalid("record for worker %s is dated %s, not %s", r.WorkerID, r.Date, date)
		}
		if r.Status == "" {
			r.Status = StatusPresent
		}
		for i := range r.DeferredAdvances {
			if r.DeferredAdvances[i].ID == "" {
				r.DeferredAdvances[i].ID = generic.NewID()
			}
		}
		r.importLegacyNotes(s.NotesSeparator)
		if err := r.validate(); err != nil {
			return nil, err
		}
		if seen[r.WorkerID] {
			return nil, generic.Invalid("worker %s appears twice on %s", r.WorkerID, date)
		}
		seen[r.WorkerID] = true
		if existing, ok := s.byDate[date.String()][r.WorkerID]; ok && r.ID == "" {
			r.ID = existing.ID
		}
		if r.ID == "" {
			r.ID = generic.NewID()
		}
		if other, ok := s.byID[r.ID]; ok && (other.WorkerID != r.WorkerID || !other.Date.Equal(date)) {
			return nil, fmt.Errorf("%w: record id %s belongs to another worker or date", generic.ErrDuplicate, r.ID)
		}
		prepared = append(prepared, r)
	}

	for _, r := range prepared {
		s.put(r)
	}
	return s.ListByDate(date), nil
}

// ScheduleDay creates a default record for every active worker that has
// none on date. Hourly workers get DefaultHourlyWorkDay hours, others one
// day. Returns the created records.
func (s *Store) ScheduleDay(date generic.TimePoint, projectID string, workers []rates.Worker) []Record {
	var created []Record
	for _, w := range workers {
		if !w.IsActive() {
			continue
		}
		if _, ok := s.byDate[date.String()][w.ID]; ok {
			continue
		}
		r := newRecord(w.ID, date)
		r.ProjectID = projectID
		r.WorkDay = decimal.NewFromInt(1)
		if w.RateAt(date).PaymentType == rates.PaymentHourly {
			r.WorkDay = DefaultHourlyWorkDay
		}
		s.put(r)
		created = append(created, r.Clone())
	}
	return created
}

// =============================================================================
// RECORD-LEVEL COMMANDS
// =============================================================================

// MergeInto applies an additional same-day adjustment. On an existing
// record advance, smoking and expense are added and notes appended with
// NotesSeparator; other set fields overwrite. Without a record, one is
// created from fields with zero defaults.
func (s *Store) MergeInto(workerID string, date generic.TimePoint, fields Fields) (Record, error) {
	incoming := newRecord(workerID, date)
	fields.apply(&incoming)
	incoming.importLegacyNotes(s.NotesSeparator)
	if err := incoming.validate(); err != nil {
		return Record{}, err
	}

	existing, ok := s.byDate[date.String()][workerID]
	if !ok {
		s.put(incoming)
		return incoming.Clone(), nil
	}

	merged := existing.Clone()
	if fields.ProjectID != nil {
		merged.ProjectID = incoming.ProjectID
	}
	if fields.Status != nil {
		merged.Status = incoming.Status
	}
	if fields.WorkDay != nil {
		merged.WorkDay = incoming.WorkDay
	}
	if fields.OvertimeHours != nil {
		merged.OvertimeHours = incoming.OvertimeHours
	}
	merged.Advance = merged.Advance.Add(incoming.Advance)
	merged.Smoking = merged.Smoking.Add(incoming.Smoking)
	merged.Expense = merged.Expense.Add(incoming.Expense)
	merged.Notes = s.joinNotes(merged.Notes, incoming.Notes)
	merged.appendDeferred(incoming.DeferredAdvances)

	if err := merged.validate(); err != nil {
		return Record{}, err
	}
	s.put(merged)
	return merged.Clone(), nil
}

// UpdateRecord overwrites the set fields of a record.
func (s *Store) UpdateRecord(id string, fields Fields) (Record, error) {
	existing, ok := s.byID[id]
	if !ok {
		return Record{}, generic.NotFound(generic.ErrRecordNotFound, id)
	}
	updated := existing.Clone()
	fields.apply(&updated)
	updated.importLegacyNotes(s.NotesSeparator)
	if err := updated.validate(); err != nil {
		return Record{}, err
	}
	s.put(updated)
	return updated.Clone(), nil
}

func (s *Store) joinNotes(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + s.NotesSeparator + b
	}
}

// =============================================================================
// DEFERRED ADVANCES
// =============================================================================

// AddDeferredAdvance files a new deferred advance under the record and
// raises Advance by its amount. The entry id is generated.
func (s *Store) AddDeferredAdvance(recordID string, e advance.Entry) (Record, advance.Entry, error) {
	r, ok := s.byID[recordID]
	if !ok {
		return Record{}, advance.Entry{}, generic.NotFound(generic.ErrRecordNotFound, recordID)
	}
	if !e.Amount.IsPositive() {
		return Record{}, advance.Entry{}, fmt.Errorf("deferred advance: %w", generic.ErrInvalidAmount)
	}
	if e.Date.IsZero() {
		return Record{}, advance.Entry{}, generic.Invalid("deferred advance requires a date")
	}

	e.ID = generic.NewID()
	updated := r.Clone()
	updated.DeferredAdvances = append(updated.DeferredAdvances, e)
	updated.Advance = updated.Advance.Add(e.Amount)
	s.put(updated)
	return updated.Clone(), e, nil
}

// EditDeferredAdvance rewrites an entry in place and moves Advance by the
// amount delta. Advance is clamped at zero, reported as a warning.
func (s *Store) EditDeferredAdvance(recordID, entryID string, upd AdvanceUpdate) (Record, []generic.Warning, error) {
	r, ok := s.byID[recordID]
	if !ok {
		return Record{}, nil, generic.NotFound(generic.ErrRecordNotFound, recordID)
	}
	i := advance.Index(r.DeferredAdvances, entryID)
	if i < 0 {
		return Record{}, nil, generic.NotFound(generic.ErrDeferredAdvanceNotFound, entryID)
	}
	if upd.Amount != nil && !upd.Amount.IsPositive() {
		return Record{}, nil, fmt.Errorf("deferred advance: %w", generic.ErrInvalidAmount)
	}
	if upd.Date != nil && upd.Date.IsZero() {
		return Record{}, nil, generic.Invalid("deferred advance requires a date")
	}

	updated := r.Clone()
	entry := updated.DeferredAdvances[i]
	delta := decimal.Zero
	if upd.Amount != nil {
		delta = upd.Amount.Sub(entry.Amount)
		entry.Amount = *upd.Amount
	}
	if upd.Date != nil {
		entry.Date = *upd.Date
	}
	if upd.Notes != nil {
		entry.Notes = *upd.Notes
	}
	updated.DeferredAdvances[i] = entry

	warnings := adjustAdvance(&updated, delta)
	s.put(updated)
	return updated.Clone(), warnings, nil
}

// RemoveDeferredAdvance deletes an entry and lowers Advance by its amount,
// floored at zero.
func (s *Store) RemoveDeferredAdvance(recordID, entryID string) (Record, advance.Entry, []generic.Warning, error) {
	r, ok := s.byID[recordID]
	if !ok {
		return Record{}, advance.Entry{}, nil, generic.NotFound(generic.ErrRecordNotFound, recordID)
	}
	i := advance.Index(r.DeferredAdvances, entryID)
	if i < 0 {
		return Record{}, advance.Entry{}, nil, generic.NotFound(generic.ErrDeferredAdvanceNotFound, entryID)
	}

	updated := r.Clone()
	removed := updated.DeferredAdvances[i]
	updated.DeferredAdvances = append(updated.DeferredAdvances[:i], updated.DeferredAdvances[i+1:]...)

	warnings := adjustAdvance(&updated, removed.Amount.Neg())
	s.put(updated)
	return updated.Clone(), removed, warnings, nil
}

// adjustAdvance moves Advance by delta, clamping at zero.
// TODO: confirm with payroll whether an over-large reduction should be
// rejected instead of clamped; clamping is the current behavior.
func adjustAdvance(r *Record, delta decimal.Decimal) []generic.Warning {
	next := r.Advance.Add(delta)
	r.Advance = generic.ClampZero(next)
	if !next.IsNegative() {
		return nil
	}
	return []generic.Warning{{
		Code:    generic.WarnAdvanceClamped,
		Message: fmt.Sprintf("advance on record %s would be %s; clamped to 0", r.ID, next),
	}}
}

// =============================================================================
// INTERNALS
// =============================================================================

// Restore loads a persisted record as-is, splitting legacy notes.
func (s *Store) Restore(r Record) {
	r = r.Clone()
	r.importLegacyNotes(s.NotesSeparator)
	s.put(r)
}

func (s *Store) put(r Record) {
	key := r.Date.String()
	day, ok := s.byDate[key]
	if !ok {
		day = make(map[string]*Record)
		s.byDate[key] = day
	}
	if old, ok := day[r.WorkerID]; ok && old.ID != r.ID {
		delete(s.byID, old.ID)
	}
	stored := r.Clone()
	day[r.WorkerID] = &stored
	s.byID[r.ID] = &stored
}
