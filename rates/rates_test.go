package rates_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/rates"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(s string) generic.TimePoint {
	return generic.MustParseTimePoint(s)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func daily(effective string, rate string) rates.RateEntry {
	return rates.RateEntry{
		EffectiveDate: date(effective),
		PaymentType:   rates.PaymentDaily,
		DailyRate:     dec(rate),
		OvertimeMode:  rates.OvertimeAutomatic,
	}
}

// =============================================================================
// RESOLUTION
// =============================================================================

func TestResolve_Monotonicity(t *testing.T) {
	// GIVEN: History with entries at d1 < d2 < d3
	history := rates.History{
		daily("2023-01-01", "100"),
		daily("2023-06-01", "120"),
		daily("2024-01-01", "150"),
	}

	cases := []struct {
		on   string
		want string
	}{
		{"2022-12-31", "100"}, // before history: earliest entry
		{"2023-01-01", "100"},
		{"2023-05-31", "100"},
		{"2023-06-01", "120"},
		{"2023-12-31", "120"},
		{"2024-01-01", "150"},
		{"2030-01-01", "150"},
	}

	for _, tc := range cases {
		t.Run(tc.on, func(t *testing.T) {
			got := rates.Resolve(history, date(tc.on))
			assert.True(t, dec(tc.want).Equal(got.DailyRate), "on %s got %s", tc.on, got.DailyRate)
		})
	}
}

func TestWorker_RateAt_EmptyHistoryUsesLegacy(t *testing.T) {
	// GIVEN: A worker migrated from before rate history existed
	w := rates.Worker{
		ID:     "w-1",
		Name:   "Legacy",
		Legacy: rates.LegacyRates{PaymentType: rates.PaymentMonthly, MonthlySalary: dec("6000")},
	}

	// WHEN: Resolving any date
	entry := w.RateAt(date("2024-03-10"))

	// THEN: The synthetic entry comes from the legacy fields
	assert.Equal(t, rates.PaymentMonthly, entry.PaymentType)
	assert.True(t, dec("200").Equal(entry.UnitRate()))
	assert.Equal(t, rates.OvertimeAutomatic, entry.OvertimeMode)
}

// =============================================================================
// UPSERT
// =============================================================================

func TestHistory_Upsert_KeepsOrderAndUniqueness(t *testing.T) {
	var h rates.History
	h = h.Upsert(daily("2023-06-01", "120"))
	h = h.Upsert(daily("2023-01-01", "100"))
	h = h.Upsert(daily("2024-01-01", "150"))

	require.Len(t, h, 3)
	assert.True(t, h.Sorted())
	assert.Equal(t, "2023-01-01", h[0].EffectiveDate.String())

	// Same date overwrites in place rather than appending
	h2 := h.Upsert(daily("2023-06-01", "130"))
	require.Len(t, h2, 3)
	assert.True(t, dec("130").Equal(h2[1].DailyRate))

	// Receiver is untouched
	assert.True(t, dec("120").Equal(h[1].DailyRate))
}

func TestNormalize_LaterEntryWinsOnDuplicateDate(t *testing.T) {
	h := rates.Normalize([]rates.RateEntry{
		daily("2024-01-01", "150"),
		daily("2023-01-01", "100"),
		daily("2024-01-01", "175"),
	})

	require.Len(t, h, 2)
	assert.True(t, h.Sorted())
	assert.True(t, dec("175").Equal(h[1].DailyRate))
}

// =============================================================================
// DERIVED RATES
// =============================================================================

func TestRateEntry_OvertimeHourlyRate(t *testing.T) {
	auto := daily("2023-01-01", "100")
	assert.True(t, dec("12.5").Equal(auto.OvertimeHourlyRate()), "100 / default factor 8")

	auto.DivisionFactor = dec("10")
	assert.True(t, dec("10").Equal(auto.OvertimeHourlyRate()))

	manual := daily("2023-01-01", "100")
	manual.OvertimeMode = rates.OvertimeManual
	manual.OvertimeRate = dec("20")
	assert.True(t, dec("20").Equal(manual.OvertimeHourlyRate()))

	monthly := rates.RateEntry{PaymentType: rates.PaymentMonthly, MonthlySalary: dec("4800"), OvertimeMode: rates.OvertimeAutomatic}
	assert.True(t, dec("160").Equal(monthly.DailyEquivalentRate()))
	assert.True(t, dec("20").Equal(monthly.OvertimeHourlyRate()))
}

func TestRateEntry_Validate(t *testing.T) {
	ok := daily("2023-01-01", "100")
	assert.NoError(t, ok.Validate())

	noDate := ok
	noDate.EffectiveDate = generic.TimePoint{}
	assert.ErrorIs(t, noDate.Validate(), generic.ErrValidation)

	badType := ok
	badType.PaymentType = "weekly"
	assert.ErrorIs(t, badType.Validate(), generic.ErrValidation)

	negative := ok
	negative.DailyRate = dec("-1")
	assert.ErrorIs(t, negative.Validate(), generic.ErrValidation)
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestRegistry_CreateAndUpsert(t *testing.T) {
	reg := rates.NewRegistry()

	w, err := reg.Create(rates.Worker{Name: "Ahmad"}, daily("2023-01-01", "100"))
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, rates.StatusActive, w.Status)
	require.Len(t, w.SalaryHistory, 1)

	w, err = reg.UpsertRateEntry(w.ID, daily("2023-07-01", "110"))
	require.NoError(t, err)
	require.Len(t, w.SalaryHistory, 2)

	entry, err := reg.RateAt(w.ID, date("2023-08-15"))
	require.NoError(t, err)
	assert.True(t, dec("110").Equal(entry.DailyRate))

	// Mutating the returned copy does not leak into the registry
	w.SalaryHistory[0].DailyRate = dec("999")
	stored, err := reg.Get(w.ID)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(stored.SalaryHistory[0].DailyRate))
}

func TestRegistry_Errors(t *testing.T) {
	reg := rates.NewRegistry()

	_, err := reg.Create(rates.Worker{Name: ""}, daily("2023-01-01", "100"))
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = reg.UpsertRateEntry("missing", daily("2023-01-01", "100"))
	assert.ErrorIs(t, err, generic.ErrWorkerNotFound)
	assert.True(t, generic.IsNotFound(err))

	_, err = reg.Create(rates.Worker{ID: "w-1", Name: "A"}, daily("2023-01-01", "100"))
	require.NoError(t, err)
	_, err = reg.Create(rates.Worker{ID: "w-1", Name: "B"}, daily("2023-01-01", "100"))
	assert.ErrorIs(t, err, generic.ErrDuplicate)

	_, err = reg.SetStatus("w-1", "retired")
	assert.ErrorIs(t, err, generic.ErrValidation)

	w, err := reg.SetStatus("w-1", rates.StatusSuspended)
	require.NoError(t, err)
	assert.False(t, w.IsActive())
}
