package rates

import (
	"fmt"
	"sort"
	"strings"

	"github.com/warp/payroll-ledger/generic"
)

// Registry owns the worker set. It is not safe for concurrent use; the
// engine serializes every command.
type Registry struct {
	workers map[string]*Worker
}

func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*Worker)}
}

// Create adds a worker with one initial rate entry. An empty ID is generated.
func (r *Registry) Create(w Worker, initial RateEntry) (Worker, error) {
	if strings.TrimSpace(w.Name) == "" {
		return Worker{}, generic.Invalid("worker name is required")
	}
	if err := initial.Validate(); err != nil {
		return Worker{}, err
	}
	if w.ID == "" {
		w.ID = generic.NewID()
	}
	if _, exists := r.workers[w.ID]; exists {
		return Worker{}, fmt.Errorf("%w: worker %s", generic.ErrDuplicate, w.ID)
	}
	if w.Status == "" {
		w.Status = StatusActive
	}
	if initial.OvertimeMode == "" {
		initial.OvertimeMode = OvertimeAutomatic
	}
	w.SalaryHistory = History{initial}

	stored := w.Clone()
	r.workers[w.ID] = &stored
	return stored.Clone(), nil
}

// Restore loads a worker as persisted, normalizing its history order.
func (r *Registry) Restore(w Worker) {
	w.SalaryHistory = Normalize(w.SalaryHistory)
	r.workers[w.ID] = &w
}

func (r *Registry) Get(id string) (Worker, error) {
	w, ok := r.workers[id]
	if !ok {
		return Worker{}, generic.NotFound(generic.ErrWorkerNotFound, id)
	}
	return w.Clone(), nil
}

// List returns workers ordered by name, then id.
func (r *Registry) List() []Worker {
	out := make([]Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) SetStatus(id string, status WorkerStatus) (Worker, error) {
	if status != StatusActive && status != StatusSuspended {
		return Worker{}, generic.Invalid("unknown worker status %q", status)
	}
	w, ok := r.workers[id]
	if !ok {
		return Worker{}, generic.NotFound(generic.ErrWorkerNotFound, id)
	}
	w.Status = status
	return w.Clone(), nil
}

// UpsertRateEntry appends or overwrites (same date) a history entry.
// History is never truncated.
func (r *Registry) UpsertRateEntry(id string, entry RateEntry) (Worker, error) {
	w, ok := r.workers[id]
	if !ok {
		return Worker{}, generic.NotFound(generic.ErrWorkerNotFound, id)
	}
	if err := entry.Validate(); err != nil {
		return Worker{}, err
	}
	if entry.OvertimeMode == "" {
		entry.OvertimeMode = OvertimeAutomatic
	}
	w.SalaryHistory = w.SalaryHistory.Upsert(entry)
	return w.Clone(), nil
}

// RateAt resolves the worker's pay terms on date.
func (r *Registry) RateAt(id string, date generic.TimePoint) (RateEntry, error) {
	w, ok := r.workers[id]
	if !ok {
		return RateEntry{}, generic.NotFound(generic.ErrWorkerNotFound, id)
	}
	return w.RateAt(date), nil
}
