package tests

import (
	"context"
	"testing"
	"time"

	"github.com/carrywater/dronesim-ar-sub000/core"
	"github.com/carrywater/dronesim-ar-sub000/internal/hitl"
	"github.com/carrywater/dronesim-ar-sub000/internal/logging"
	"github.com/carrywater/dronesim-ar-sub000/internal/observability"
	"github.com/carrywater/dronesim-ar-sub000/internal/rng"
	"github.com/carrywater/dronesim-ar-sub000/internal/sched"
	"github.com/carrywater/dronesim-ar-sub000/kb"
	"github.com/carrywater/dronesim-ar-sub000/model"
	"github.com/carrywater/dronesim-ar-sub000/timectrl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// sessionEnv wires the full simulation stack the way the binary does and
// runs it accelerated, collecting every board event for inspection.
type sessionEnv struct {
	ctx    context.Context
	cancel context.CancelFunc

	ctrl      *timectrl.TimeController
	board     *kb.Board
	drone     *core.Drone
	orch      *core.Orchestrator
	engine    *core.Engine
	collector *observability.SimCollector

	events     []kb.Event
	guided     []model.Coordinates
	touchdowns []core.Vec3
}

func newSessionEnv(t *testing.T, cfg model.SessionConfig) *sessionEnv {
	t.Helper()

	start := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	ctrl := timectrl.NewTimeController(start, 50*time.Millisecond, timectrl.Accelerated)
	s := sched.New(ctrl)
	log := logging.Noop()

	collector, err := observability.NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	board := kb.New(ctrl, kb.WithMetricsRecorder(collector))
	rand := rng.New(cfg.Seed)

	drone := core.NewDrone(cfg.Drone, s, log,
		core.WithSway(core.NewSway(cfg.Sway, int64(rand.Split("sway").Uint32()))),
		core.WithFlightMetrics(collector),
	)
	hmi := core.NewHMI(hitl.NewConsoleCues(log), log, core.WithStatusMetrics(collector))
	part := hitl.NewParticipant(s, board, log,
		hitl.WithDelays(cfg.ConfirmDelay, cfg.GuidanceDelay),
		hitl.WithZonePicker(core.NewZonePicker(cfg.Zone, rand.Split("guidance"))),
	)

	ctx, cancel := context.WithCancel(context.Background())
	env := &sessionEnv{
		ctx:       ctx,
		cancel:    cancel,
		ctrl:      ctrl,
		board:     board,
		drone:     drone,
		collector: collector,
	}

	env.orch = core.NewOrchestrator(cfg, drone, hmi, part, board, s, log,
		core.WithZonePicker(core.NewZonePicker(cfg.Zone, rand.Split("zones"))),
		core.WithRand(rand.Split("confidence")),
		core.WithScenarioMetrics(collector),
		core.WithSessionDoneHook(func() {
			board.EndSession("completed")
			cancel()
		}),
	)
	env.engine = core.NewEngine(ctrl, s, env.orch, drone, hmi, board, log,
		core.WithEngineMetrics(collector))

	board.Subscribe(func(ev kb.Event) {
		env.events = append(env.events, ev)
		switch {
		case ev.Kind == kb.EventInteractionCompleted:
			if p, ok := board.GuidedPoint(); ok {
				env.guided = append(env.guided, p)
			}
		case ev.Kind == kb.EventFlightChanged &&
			ev.FlightFrom == model.FlightLanding && ev.FlightTo == model.FlightIdle:
			env.touchdowns = append(env.touchdowns, drone.BasePos())
		}
	})

	t.Cleanup(cancel)
	return env
}

// runSession drives the wired stack until the orchestrator reports done.
// The simulated budget is generous; hitting it means the session stalled.
func (env *sessionEnv) runSession(t *testing.T, participant int, seed uint64) {
	t.Helper()

	env.board.StartSession("sess-e2e", participant, seed)
	env.orch.StartSession()
	if err := env.engine.Run(env.ctx, 10*time.Minute); err != nil && err != context.Canceled {
		t.Fatalf("engine run: %v", err)
	}
	if !env.orch.Done() {
		t.Fatalf("session incomplete after 10 min of simulated time")
	}
}

func (env *sessionEnv) eventsOfKind(k kb.EventKind) []kb.Event {
	var out []kb.Event
	for _, ev := range env.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func TestEndToEndLatinSession(t *testing.T) {
	cfg := model.DefaultSessionConfig()
	cfg.ParticipantIndex = 2
	cfg.Seed = 11

	env := newSessionEnv(t, cfg)
	env.runSession(t, cfg.ParticipantIndex, cfg.Seed)

	wantOrder := []model.Scenario{model.ScenarioGuidance, model.ScenarioAbort, model.ScenarioConfirm}
	started := env.eventsOfKind(kb.EventScenarioStarted)
	if len(started) != len(wantOrder) {
		t.Fatalf("scenario count = %d, want %d", len(started), len(wantOrder))
	}
	for i, ev := range started {
		if ev.Scenario != wantOrder[i] || ev.Step != i {
			t.Errorf("scenario %d = %v step %d, want %v step %d", i, ev.Scenario, ev.Step, wantOrder[i], i)
		}
	}

	wantOutcomes := []string{"completed", "aborted", "completed"}
	ended := env.eventsOfKind(kb.EventScenarioEnded)
	if len(ended) != len(wantOutcomes) {
		t.Fatalf("scenario-ended count = %d, want %d", len(ended), len(wantOutcomes))
	}
	for i, ev := range ended {
		if ev.Outcome != wantOutcomes[i] {
			t.Errorf("scenario %d outcome = %q, want %q", i, ev.Outcome, wantOutcomes[i])
		}
	}

	attempts := env.eventsOfKind(kb.EventAttempt)
	if len(attempts) != cfg.MaxLandingAttempts {
		t.Fatalf("attempt count = %d, want %d", len(attempts), cfg.MaxLandingAttempts)
	}
	for i, ev := range attempts {
		if ev.Attempt != i+1 {
			t.Errorf("attempt %d numbered %d", i, ev.Attempt)
		}
		if ev.Scenario != model.ScenarioAbort {
			t.Errorf("attempt %d recorded under %v", i, ev.Scenario)
		}
		if ev.Confidence >= cfg.ConfidenceThreshold {
			t.Errorf("attempt %d confidence %v reached threshold %v", i, ev.Confidence, cfg.ConfidenceThreshold)
		}
	}

	last := env.events[len(env.events)-1]
	if last.Kind != kb.EventSessionEnded || last.Outcome != "completed" {
		t.Errorf("last event = %v %q, want session end with completed", last.Kind, last.Outcome)
	}
	for i := 1; i < len(env.events); i++ {
		if env.events[i].At.Before(env.events[i-1].At) {
			t.Fatalf("event %d timestamp went backwards", i)
		}
	}

	snap := env.board.Snapshot()
	if !snap.SessionDone || snap.SessionActive {
		t.Errorf("board session flags = done %v active %v", snap.SessionDone, snap.SessionActive)
	}
	if snap.Status != model.HMIIdle {
		t.Errorf("final status = %v, want idle", snap.Status)
	}
	if snap.Flight != model.FlightHover {
		t.Errorf("final flight = %v, want hover hold", snap.Flight)
	}

	if got := testutil.ToFloat64(env.collector.LandingAttempts.WithLabelValues("c0-abort", "aborted")); got != 3 {
		t.Errorf("aborted attempt counter = %v, want 3", got)
	}
	if got := testutil.ToFloat64(env.collector.LandingAttempts.WithLabelValues("c1-confirm", "completed")); got != 1 {
		t.Errorf("confirm landing counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(env.collector.LandingAttempts.WithLabelValues("c2-guidance", "completed")); got != 1 {
		t.Errorf("guidance landing counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(env.collector.BoardEvents.WithLabelValues("scenario-ended")); got != 3 {
		t.Errorf("board event counter = %v, want 3", got)
	}
	if got := testutil.ToFloat64(env.collector.SimTime); got <= 0 {
		t.Errorf("sim time gauge = %v, want positive", got)
	}
}

func TestEndToEndSingleGuidanceLandsAtDesignatedPoint(t *testing.T) {
	cfg := model.DefaultSessionConfig()
	cfg.Mode = model.ModeSingle
	cfg.Scenario = model.ScenarioGuidance
	cfg.Seed = 5

	env := newSessionEnv(t, cfg)
	env.runSession(t, 0, cfg.Seed)

	ended := env.eventsOfKind(kb.EventScenarioEnded)
	if len(ended) != 1 || ended[0].Scenario != model.ScenarioGuidance || ended[0].Outcome != "completed" {
		t.Fatalf("scenario endings = %+v, want one completed guidance run", ended)
	}

	if len(env.guided) != 1 {
		t.Fatalf("designated points = %d, want 1", len(env.guided))
	}
	pt := env.guided[0]
	if pt.X < cfg.Zone.MinX || pt.X > cfg.Zone.MaxX || pt.Z < cfg.Zone.MinZ || pt.Z > cfg.Zone.MaxZ {
		t.Errorf("designated point %+v outside zone %+v", pt, cfg.Zone)
	}
	if pt.Y != 0 {
		t.Errorf("designated point Y = %v, want ground level", pt.Y)
	}

	if len(env.touchdowns) != 1 {
		t.Fatalf("touchdowns = %d, want 1", len(env.touchdowns))
	}
	down := env.touchdowns[0]
	eps := cfg.Drone.ArrivalEpsilon
	if absDiff(down.X, pt.X) > eps || absDiff(down.Z, pt.Z) > eps {
		t.Errorf("touchdown at (%v, %v), designated (%v, %v)", down.X, down.Z, pt.X, pt.Z)
	}
}

func TestEndToEndFixedOrderSession(t *testing.T) {
	cfg := model.DefaultSessionConfig()
	cfg.Mode = model.ModeFixed
	cfg.Order = []model.Scenario{model.ScenarioConfirm, model.ScenarioAbort}
	cfg.Seed = 3
	cfg.ConfidenceScript = []float64{0.41, 0.52, 0.63}

	env := newSessionEnv(t, cfg)
	env.runSession(t, 0, cfg.Seed)

	started := env.eventsOfKind(kb.EventScenarioStarted)
	if len(started) != 2 {
		t.Fatalf("scenario count = %d, want 2", len(started))
	}
	if started[0].Scenario != model.ScenarioConfirm || started[1].Scenario != model.ScenarioAbort {
		t.Fatalf("order = %v, %v; want confirm then abort", started[0].Scenario, started[1].Scenario)
	}

	attempts := env.eventsOfKind(kb.EventAttempt)
	if len(attempts) != 3 {
		t.Fatalf("attempt count = %d, want 3", len(attempts))
	}
	for i, ev := range attempts {
		if ev.Confidence != cfg.ConfidenceScript[i] {
			t.Errorf("attempt %d confidence = %v, want scripted %v", i+1, ev.Confidence, cfg.ConfidenceScript[i])
		}
	}

	// The session ends on an abort climb-out, so no drone survives it.
	snap := env.board.Snapshot()
	if !snap.Destroyed {
		t.Errorf("final board shows a live drone after closing abort")
	}
	if snap.Flight != model.FlightAbort {
		t.Errorf("final flight = %v, want abort", snap.Flight)
	}
	if !snap.SessionDone {
		t.Errorf("session not marked done")
	}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
