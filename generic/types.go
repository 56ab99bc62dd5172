/*
Package generic provides the primitives shared by the payroll ledger core.

KEY CONCEPTS:
  - TimePoint: a calendar day, the granularity of records and ledger entries
  - Period: an inclusive day range
  - Money helpers over decimal.Decimal (no floating point anywhere)
  - Warning: a non-fatal outcome returned next to a command result
  - Errors: sentinels and structured errors in errors.go

SEE ALSO:
  - rates: pay-rate history resolution
  - advance: deferred-advance token codec
  - daily: per-day attendance records
  - accounts: two-party ledger and reconciliation
*/
package generic

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// WARNINGS
// =============================================================================

type WarningCode string

const (
	// WarnStaleBalances: a change landed inside an already-settled segment;
	// checkpoints are frozen snapshots and were not recomputed.
	WarnStaleBalances WarningCode = "stale_balances"

	// WarnAdvanceClamped: an advance adjustment would have gone below zero.
	WarnAdvanceClamped WarningCode = "advance_clamped"

	// WarnForcedCheckpointEdit: an older checkpoint was changed under override.
	WarnForcedCheckpointEdit WarningCode = "forced_checkpoint_edit"
)

type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}
