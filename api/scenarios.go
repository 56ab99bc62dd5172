/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the engine with realistic
	data for demos. Each scenario creates workers, records and accounts
	that demonstrate one feature end to end.

AVAILABLE SCENARIOS:

	deferred-advance: A day's net pay lowered by an advance filed later
	rate-change:      Mid-month raise, daily / monthly / hourly workers
	legacy-notes:     Records imported with PMA tokens in their notes
	shared-account:   Two-party account, cheques, reconciliation with carry-forward

HOW SCENARIOS WORK:
 1. Reset the engine (clear all state)
 2. Create workers and their salary history
 3. Write daily records and deferred advances
 4. Create accounts and transactions, optionally reconcile

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "shared-account"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset all state. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-ledger/accounts"
	"github.com/warp/payroll-ledger/advance"
	"github.com/warp/payroll-ledger/daily"
	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/rates"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "deferred-advance",
		Name:        "Deferred Advance",
		Description: "Advance paid on a later date but charged to an earlier working day",
		Category:    "payroll",
	},
	{
		ID:          "rate-change",
		Name:        "Rate Change",
		Description: "Raise effective mid-month; days before and after priced differently",
		Category:    "payroll",
	},
	{
		ID:          "legacy-notes",
		Name:        "Legacy Notes Import",
		Description: "Records whose notes still embed deferred advances as PMA tokens",
		Category:    "payroll",
	},
	{
		ID:          "shared-account",
		Name:        "Shared Account",
		Description: "Two parties, cash and cheques, reconciliation carrying a cheque forward",
		Category:    "accounts",
	},
}

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, map[string]any{"scenario": s})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
}

// LoadScenario resets all state and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "deferred-advance":
		load = h.loadDeferredAdvanceScenario
	case "rate-change":
		load = h.loadRateChangeScenario
	case "legacy-notes":
		load = h.loadLegacyNotesScenario
	case "shared-account":
		load = h.loadSharedAccountScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.Engine.Reset(ctx)
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetState clears all state.
func (h *Handler) ResetState(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Engine.Reset(r.Context())
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadDeferredAdvanceScenario(ctx context.Context) error {
	// 150/day; worked Feb 1 with a 50 same-day advance: net 100.
	w, err := h.Engine.CreateWorker(ctx, rates.Worker{ID: "yossi", Name: "Yossi"}, dailyEntry("2024-01-01", "150"))
	if err != nil {
		return err
	}
	recs, err := h.Engine.ReplaceDay(ctx, day("2024-02-01"), []daily.Record{
		presentRecord(w.ID, "1", "50", "site A"),
	})
	if err != nil {
		return err
	}

	// Another 50 handed over on Feb 10, charged to Feb 1: net 50.
	_, _, err = h.Engine.AddDeferredAdvance(ctx, recs[0].ID, advance.Entry{
		Date:   day("2024-02-10"),
		Amount: decimal.NewFromInt(50),
		Notes:  "paid at office",
	})
	return err
}

func (h *Handler) loadRateChangeScenario(ctx context.Context) error {
	miri, err := h.Engine.CreateWorker(ctx, rates.Worker{ID: "miri", Name: "Miri"}, dailyEntry("2024-01-01", "100"))
	if err != nil {
		return err
	}
	if _, err := h.Engine.UpsertRateEntry(ctx, miri.ID, dailyEntry("2024-02-15", "120")); err != nil {
		return err
	}

	avi, err := h.Engine.CreateWorker(ctx, rates.Worker{ID: "avi", Name: "Avi"}, rates.RateEntry{
		EffectiveDate: day("2024-01-01"),
		PaymentType:   rates.PaymentMonthly,
		MonthlySalary: decimal.NewFromInt(6000),
		OvertimeMode:  rates.OvertimeManual,
		OvertimeRate:  decimal.NewFromInt(30),
	})
	if err != nil {
		return err
	}

	dina, err := h.Engine.CreateWorker(ctx, rates.Worker{ID: "dina", Name: "Dina"}, rates.RateEntry{
		EffectiveDate: day("2024-01-01"),
		PaymentType:   rates.PaymentHourly,
		HourlyRate:    decimal.RequireFromString("42.5"),
	})
	if err != nil {
		return err
	}

	for _, d := range []string{"2024-02-13", "2024-02-14", "2024-02-15", "2024-02-16"} {
		date := day(d)
		h.Engine.ScheduleDay(ctx, date, "site B")
		two := decimal.NewFromInt(2)
		if _, err := h.Engine.MergeInto(ctx, avi.ID, date, daily.Fields{OvertimeHours: &two}); err != nil {
			return err
		}
	}

	absent := daily.StatusAbsent
	recs := h.Engine.RecordsByDate(day("2024-02-16"))
	for _, r := range recs {
		if r.WorkerID == dina.ID {
			if _, err := h.Engine.UpdateRecord(ctx, r.ID, daily.Fields{Status: &absent}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Handler) loadLegacyNotesScenario(ctx context.Context) error {
	w, err := h.Engine.CreateWorker(ctx, rates.Worker{ID: "eli", Name: "Eli"}, dailyEntry("2023-06-01", "130"))
	if err != nil {
		return err
	}

	tokens := advance.Serialize([]advance.Entry{
		{ID: "legacy-1", Date: day("2023-07-03"), Amount: decimal.NewFromInt(40), Notes: "fuel"},
		{ID: "legacy-2", Date: day("2023-07-05"), Amount: decimal.NewFromInt(25), Notes: "tools: hammer"},
	})
	rec := presentRecord(w.ID, "1", "100", "roof")
	rec.Notes = advance.Compose("left early", tokens)
	if _, err := h.Engine.ReplaceDay(ctx, day("2023-07-01"), []daily.Record{rec}); err != nil {
		return err
	}

	note := "stayed late " + advance.Token(advance.Entry{
		ID: "legacy-3", Date: day("2023-07-04"), Amount: decimal.NewFromInt(15),
	})
	fifteen := decimal.NewFromInt(15)
	_, err = h.Engine.MergeInto(ctx, w.ID, day("2023-07-02"), daily.Fields{Notes: &note, Advance: &fifteen})
	return err
}

func (h *Handler) loadSharedAccountScenario(ctx context.Context) error {
	a, err := h.Engine.CreateAccount(ctx, accounts.Account{
		ID:      "family",
		Name:    "Family",
		Parties: []string{"Rina", "Moshe"},
	})
	if err != nil {
		return err
	}

	drafts := []accounts.Draft{
		{Date: day("2024-01-05"), Description: "groceries", Amount: decimal.NewFromInt(200), Payer: "Rina", Payee: "Moshe"},
		{Date: day("2024-01-12"), Description: "rent share", Amount: decimal.NewFromInt(1500), Payer: "Moshe", Payee: "Rina", PaymentMethod: accounts.MethodCheque},
		{Date: day("2024-01-20"), Description: "car repair", Amount: decimal.NewFromInt(300), Payer: "Rina", Payee: "Moshe", PaymentMethod: accounts.MethodCheque},
	}
	var postdated accounts.Transaction
	for i, d := range drafts {
		tx, _, err := h.Engine.AddTransaction(ctx, a.ID, d)
		if err != nil {
			return err
		}
		if i == 2 {
			postdated = tx
		}
	}
	if _, err := h.Engine.Reconcile(ctx, a.ID, accounts.ReconcileInput{ExcludedChequeIDs: []string{postdated.ID}}); err != nil {
		return err
	}

	_, _, err = h.Engine.AddTransaction(ctx, a.ID, accounts.Draft{
		Date:        h.Engine.Today(),
		Description: "flight tickets",
		Amount:      decimal.NewFromInt(250),
		Currency:    secondaryCurrency(a),
		Payer:       "Moshe",
		Payee:       "Rina",
	})
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func day(s string) generic.TimePoint {
	return generic.MustParseTimePoint(s)
}

func dailyEntry(effective, rate string) rates.RateEntry {
	return rates.RateEntry{
		EffectiveDate: day(effective),
		PaymentType:   rates.PaymentDaily,
		DailyRate:     decimal.RequireFromString(rate),
	}
}

func presentRecord(workerID, workDay, adv, project string) daily.Record {
	return daily.Record{
		WorkerID:  workerID,
		ProjectID: project,
		Status:    daily.StatusPresent,
		WorkDay:   decimal.RequireFromString(workDay),
		Advance:   decimal.RequireFromString(adv),
	}
}

func secondaryCurrency(a accounts.Account) accounts.Currency {
	if len(a.Currencies) > 1 {
		return a.Currencies[1]
	}
	return a.Currencies[0]
}
