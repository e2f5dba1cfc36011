package kb

import (
	"testing"
	"time"

	"github.com/carrywater/dronesim-ar-sub000/model"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type countingMetrics struct {
	counts map[string]int
}

func (m *countingMetrics) RecordBoardEvent(kind string) {
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[kind]++
}

func TestBoardPublishesEventsInOrder(t *testing.T) {
	clock := &fixedClock{now: time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)}
	mets := &countingMetrics{}
	b := New(clock, WithMetricsRecorder(mets))

	var kinds []EventKind
	b.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })

	b.StartSession("sess-1", 3, 99)
	b.StartScenario(model.ScenarioConfirm, 0)
	b.SetFlight(model.FlightIdle, model.FlightHover)
	b.SetStatus(model.HMIPromptConfirm)
	b.StartInteraction(model.InteractionConfirm)
	b.CompleteInteraction(model.InteractionConfirm)
	b.EndScenario(model.ScenarioConfirm, "completed")
	b.EndSession("completed")

	want := []EventKind{
		EventSessionStarted,
		EventScenarioStarted,
		EventFlightChanged,
		EventStatusChanged,
		EventInteractionStarted,
		EventInteractionCompleted,
		EventScenarioEnded,
		EventSessionEnded,
	}
	if len(kinds) != len(want) {
		t.Fatalf("saw %d events, want %d: %v", len(kinds), len(want), kinds)
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("event %d = %v, want %v", i, kinds[i], k)
		}
	}

	if mets.counts["flight-changed"] != 1 || mets.counts["status-changed"] != 1 {
		t.Errorf("metrics counts = %v, want one flight-changed and one status-changed", mets.counts)
	}

	if !b.InteractionCompleted(model.InteractionConfirm) {
		t.Errorf("InteractionCompleted(confirm) = false after completion")
	}
}

func TestBoardEventsCarrySimTime(t *testing.T) {
	clock := &fixedClock{now: time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)}
	b := New(clock)

	var got Event
	b.Subscribe(func(ev Event) { got = ev })

	clock.now = clock.now.Add(42 * time.Second)
	b.SetFlight(model.FlightHover, model.FlightCruise)

	if !got.At.Equal(clock.now) {
		t.Errorf("event At = %v, want %v", got.At, clock.now)
	}
	if got.FlightFrom != model.FlightHover || got.FlightTo != model.FlightCruise {
		t.Errorf("event carries %v->%v, want hover->cruise", got.FlightFrom, got.FlightTo)
	}
}

func TestBoardSnapshotIsIsolated(t *testing.T) {
	b := New(&fixedClock{})
	b.StartSession("sess-2", 1, 7)
	b.SetGuidedPoint(model.Coordinates{X: 1, Y: 0, Z: 2})
	b.StartInteraction(model.InteractionGuidance)

	snap := b.Snapshot()

	// Mutating the snapshot must not leak into the board.
	snap.InteractionsStarted[model.InteractionConfirm] = true
	*snap.GuidedPoint = model.Coordinates{X: 9, Y: 9, Z: 9}

	again := b.Snapshot()
	if again.InteractionsStarted[model.InteractionConfirm] {
		t.Errorf("snapshot map mutation leaked into the board")
	}
	if again.GuidedPoint == nil || again.GuidedPoint.X != 1 {
		t.Errorf("snapshot pointer mutation leaked into the board: %+v", again.GuidedPoint)
	}

	// And board clears must not affect an existing snapshot.
	b.ClearInteractions()
	if !snap.InteractionsStarted[model.InteractionGuidance] {
		t.Errorf("board clear wiped a previously taken snapshot")
	}
	if got, ok := b.GuidedPoint(); ok {
		t.Errorf("GuidedPoint after clear = %+v, want none", got)
	}
}

func TestBoardAttemptsResetPerScenario(t *testing.T) {
	b := New(&fixedClock{})
	b.StartScenario(model.ScenarioAbort, 0)
	b.RecordAttempt(1, 0.31)
	b.RecordAttempt(2, 0.55)
	if snap := b.Snapshot(); snap.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", snap.Attempts)
	}
	b.StartScenario(model.ScenarioConfirm, 1)
	if snap := b.Snapshot(); snap.Attempts != 0 {
		t.Fatalf("Attempts = %d after new scenario, want 0", snap.Attempts)
	}
}
