package observability_test

import (
	"testing"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/infra/observability"
)

func TestGetEngineSnapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.RecordFetch("success", 10*time.Millisecond)
	m.RecordFetch("success", 10*time.Millisecond)
	m.RecordFetch("failure", 10*time.Millisecond)
	m.RecordFetch("failure", 10*time.Millisecond)
	m.IncrTrigger(observability.TriggerStarted)
	m.IncrTrigger(observability.TriggerQueued)
	m.IncrTrigger(observability.TriggerCoalesced)
	m.IncrTrigger(observability.TriggerCoalesced)
	m.IncrStaleDiscarded()
	m.AddDropped(map[string]int{"bad_date": 2, "missing_id": 1})
	m.SetActiveEngines(4)

	snap := m.GetEngineSnapshot()

	if snap.FetchesSucceeded != 2 || snap.FetchesFailed != 2 {
		t.Errorf("unexpected fetch counts: %+v", snap)
	}
	if snap.FailureRate != 0.5 {
		t.Errorf("expected failure rate 0.5, got %v", snap.FailureRate)
	}
	if snap.TriggersStarted != 1 || snap.TriggersQueued != 1 || snap.TriggersCoalesced != 2 {
		t.Errorf("unexpected trigger counts: %+v", snap)
	}
	if snap.StaleDiscarded != 1 {
		t.Errorf("expected 1 stale discard, got %v", snap.StaleDiscarded)
	}
	if snap.RecordsDropped != 3 {
		t.Errorf("expected 3 dropped records, got %v", snap.RecordsDropped)
	}
	if snap.ActiveEngines != 4 {
		t.Errorf("expected 4 active engines, got %v", snap.ActiveEngines)
	}
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := observability.NewMetrics()
	b := observability.NewMetrics()

	a.RecordFetch("success", time.Millisecond)

	if b.GetEngineSnapshot().FetchesSucceeded != 0 {
		t.Error("metrics leaked across registries")
	}
}

func TestNewLogger_Levels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "bogus", ""} {
		if observability.NewLogger(lvl) == nil {
			t.Errorf("expected logger for level %q", lvl)
		}
	}
}
