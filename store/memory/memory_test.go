package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-ledger/engine"
	"github.com/warp/payroll-ledger/rates"
	"github.com/warp/payroll-ledger/store/memory"
)

func TestStore_SaveLoadIsolated(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	// GIVEN: A saved snapshot
	snap := engine.Snapshot{Workers: []rates.Worker{{ID: "w1", Name: "Dana"}}}
	require.NoError(t, m.Save(ctx, snap))

	// WHEN: The caller mutates its copy
	snap.Workers[0].Name = "changed"

	// THEN: The stored copy is unaffected
	loaded, err := m.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Workers, 1)
	assert.Equal(t, "Dana", loaded.Workers[0].Name)
	assert.Equal(t, 1, m.Saves())
}

func TestStore_FailWith(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	boom := errors.New("disk full")

	m.FailWith(boom)
	assert.ErrorIs(t, m.Save(ctx, engine.Snapshot{}), boom)
	assert.Equal(t, 0, m.Saves())

	m.FailWith(nil)
	assert.NoError(t, m.Save(ctx, engine.Snapshot{}))
	assert.Equal(t, 1, m.Saves())
}
