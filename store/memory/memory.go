// Package memory provides an in-memory Persister (for testing/dev).
package memory

import (
	"context"
	"sync"

	"github.com/warp/payroll-ledger/engine"
)

// =============================================================================
// MEMORY STORE - Keeps the last saved snapshot
// =============================================================================

type Store struct {
	mu    sync.RWMutex
	snap  engine.Snapshot
	saves int
	err   error
}

func New() *Store {
	return &Store{}
}

// Save replaces the stored snapshot with a copy of snap.
func (m *Store) Save(_ context.Context, snap engine.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.snap = snap.Clone()
	m.saves++
	return nil
}

// Load returns a copy of the last saved snapshot.
func (m *Store) Load(_ context.Context) (engine.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone(), nil
}

// Saves reports how many snapshots were written.
func (m *Store) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// FailWith makes every following Save return err. Nil restores normal saves.
func (m *Store) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
