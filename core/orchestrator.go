package core

import (
	"context"
	"time"

	"github.com/carrywater/dronesim-ar-sub000/internal/logging"
	"github.com/carrywater/dronesim-ar-sub000/internal/rng"
	"github.com/carrywater/dronesim-ar-sub000/internal/sched"
	"github.com/carrywater/dronesim-ar-sub000/kb"
	"github.com/carrywater/dronesim-ar-sub000/model"
)

// InteractionProvider is the participant-facing boundary. The orchestrator
// starts a task and polls its completion flag each tick; who completes it
// (scripted participant, replayed log, live gesture bridge) is not its
// concern.
type InteractionProvider interface {
	StartInteraction(k model.Interaction)
	InteractionCompleted(k model.Interaction) bool
	ClearInteraction()
}

// ScenarioMetrics is the narrow sink scenario outcomes are reported to.
type ScenarioMetrics interface {
	RecordScenarioDuration(scenario string, seconds float64)
	RecordLandingAttempt(scenario, outcome string)
}

// phase is one step of a scenario script. Every wait the study protocol
// used to express as a coroutine is a phase polled once per tick.
type phase int

const (
	phaseNone phase = iota
	phaseLaunch

	phaseC0Cruise
	phaseC0Gear
	phaseC0Descend
	phaseC0Recover
	phaseC0Retract
	phaseC0Retry
	phaseC0Climbout

	phaseC1Cruise
	phaseC1Await
	phaseC1Gear
	phaseC1Land

	phaseC2Cruise
	phaseC2Await
	phaseC2Gear
	phaseC2Land

	phaseResetHover
	phaseResetGear
	phaseResetDwell
)

func (p phase) String() string {
	switch p {
	case phaseNone:
		return "none"
	case phaseLaunch:
		return "launch"
	case phaseC0Cruise:
		return "c0-cruise"
	case phaseC0Gear:
		return "c0-gear"
	case phaseC0Descend:
		return "c0-descend"
	case phaseC0Recover:
		return "c0-recover"
	case phaseC0Retract:
		return "c0-retract"
	case phaseC0Retry:
		return "c0-retry"
	case phaseC0Climbout:
		return "c0-climbout"
	case phaseC1Cruise:
		return "c1-cruise"
	case phaseC1Await:
		return "c1-await"
	case phaseC1Gear:
		return "c1-gear"
	case phaseC1Land:
		return "c1-land"
	case phaseC2Cruise:
		return "c2-cruise"
	case phaseC2Await:
		return "c2-await"
	case phaseC2Gear:
		return "c2-gear"
	case phaseC2Land:
		return "c2-land"
	case phaseResetHover:
		return "reset-hover"
	case phaseResetGear:
		return "reset-gear"
	case phaseResetDwell:
		return "reset-dwell"
	}
	return "unknown"
}

// Orchestrator sequences the experimental conditions of one session,
// driving the flight FSM and HMI through each scripted protocol and
// waiting on participant interaction flags. Single writer: all methods run
// on the tick goroutine (watchdog callbacks included, via the scheduler).
type Orchestrator struct {
	cfg   model.SessionConfig
	log   logging.Logger
	sched sched.Scheduler

	drone *Drone
	hmi   *HMI
	inter InteractionProvider
	board *kb.Board
	zones *ZonePicker
	rand  *rng.Rand
	mets  ScenarioMetrics

	sessionActive bool
	done          bool
	order         []model.Scenario
	step          int

	scenario      model.Scenario
	scenarioStart time.Time

	phase        phase
	phaseWatchID string
	dwell        *Timer

	attempt      int
	landingPoint Vec3
	spawn        Vec3

	onDone func()
}

// OrchestratorOption customises construction.
type OrchestratorOption func(*Orchestrator)

// WithZonePicker swaps the delivery-zone picker.
func WithZonePicker(z *ZonePicker) OrchestratorOption {
	return func(o *Orchestrator) { o.zones = z }
}

// WithRand attaches the RNG stream used for confidence jitter.
func WithRand(r *rng.Rand) OrchestratorOption {
	return func(o *Orchestrator) { o.rand = r }
}

// WithScenarioMetrics attaches an outcome sink.
func WithScenarioMetrics(m ScenarioMetrics) OrchestratorOption {
	return func(o *Orchestrator) { o.mets = m }
}

// WithSpawnPoint sets where respawned drones appear.
func WithSpawnPoint(p Vec3) OrchestratorOption {
	return func(o *Orchestrator) { o.spawn = p }
}

// WithSessionDoneHook registers a callback fired once when the session
// driver finishes. The binary hooks its shutdown here.
func WithSessionDoneHook(fn func()) OrchestratorOption {
	return func(o *Orchestrator) { o.onDone = fn }
}

// NewOrchestrator wires a session driver over its collaborators.
func NewOrchestrator(cfg model.SessionConfig, d *Drone, h *HMI, inter InteractionProvider, board *kb.Board, s sched.Scheduler, log logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	if log == nil {
		log = logging.Noop()
	}
	o := &Orchestrator{
		cfg:   cfg,
		log:   log.With(logging.String("component", "orchestrator")),
		sched: s,
		drone: d,
		hmi:   h,
		inter: inter,
		board: board,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.zones == nil {
		o.zones = NewZonePicker(cfg.Zone, nil)
	}
	return o
}

// SessionActive reports whether a session is running.
func (o *Orchestrator) SessionActive() bool { return o.sessionActive }

// Done reports whether the session driver has finished.
func (o *Orchestrator) Done() bool { return o.done }

// CurrentScenario returns the scenario in progress, if any.
func (o *Orchestrator) CurrentScenario() (model.Scenario, bool) {
	if !o.sessionActive || o.phase == phaseNone {
		return 0, false
	}
	return o.scenario, true
}

// StartSession begins the session in the configured mode. Starting while a
// session runs is rejected with a logged warning.
func (o *Orchestrator) StartSession() {
	o.startWith(o.sessionOrder())
}

// StartScenario runs a single scenario outside the configured sequence.
// Subject to the same re-entrancy guard as StartSession.
func (o *Orchestrator) StartScenario(s model.Scenario) {
	o.startWith([]model.Scenario{s})
}

func (o *Orchestrator) sessionOrder() []model.Scenario {
	switch o.cfg.Mode {
	case model.ModeSingle:
		return []model.Scenario{o.cfg.Scenario}
	case model.ModeFixed:
		if len(o.cfg.Order) > 0 {
			return append([]model.Scenario(nil), o.cfg.Order...)
		}
		return []model.Scenario{model.ScenarioAbort, model.ScenarioConfirm, model.ScenarioGuidance}
	default:
		row := Sequencer{Participant: o.cfg.ParticipantIndex}.Order()
		return row[:]
	}
}

func (o *Orchestrator) startWith(order []model.Scenario) {
	if o.sessionActive {
		o.log.Warn(context.Background(), "scenario already running, start dropped",
			logging.String("phase", o.phase.String()))
		return
	}
	if len(order) == 0 {
		o.log.Warn(context.Background(), "empty scenario order, nothing to run")
		return
	}
	o.sessionActive = true
	o.done = false
	o.order = order
	o.step = 0
	o.spawnFromDrone()
	o.log.Info(context.Background(), "session starting",
		logging.Int("scenarios", len(order)),
		logging.String("mode", string(o.cfg.Mode)))
	o.startScenario(order[0])
}

// spawnFromDrone pins the respawn point to wherever the drone was wired,
// unless an explicit spawn point was configured.
func (o *Orchestrator) spawnFromDrone() {
	if o.spawn == (Vec3{}) && o.drone != nil {
		o.spawn = o.drone.BasePos().WithY(0)
	}
}

func (o *Orchestrator) startScenario(s model.Scenario) {
	o.scenario = s
	o.scenarioStart = o.sched.Now()
	o.attempt = 0
	o.board.StartScenario(s, o.step)
	o.log.Info(context.Background(), "scenario starting",
		logging.String("scenario", s.String()),
		logging.Int("step", o.step))
	o.drone.ReturnToHover()
	o.hmi.PlayLoop(LoopHum)
	o.setPhase(phaseLaunch)
}

// setPhase moves the script along and re-arms the stall watchdog. With
// PhaseTimeout zero the protocol keeps the source behavior of waiting
// forever on a wait that never completes.
func (o *Orchestrator) setPhase(p phase) {
	if o.phaseWatchID != "" {
		o.sched.Cancel(o.phaseWatchID)
		o.phaseWatchID = ""
	}
	o.phase = p
	if p == phaseNone || o.cfg.PhaseTimeout <= 0 {
		return
	}
	o.phaseWatchID = o.sched.After(o.cfg.PhaseTimeout, o.onPhaseTimeout)
}

func (o *Orchestrator) onPhaseTimeout() {
	o.phaseWatchID = ""
	if !o.sessionActive {
		return
	}
	o.log.Error(context.Background(), "phase stalled past timeout",
		logging.String("phase", o.phase.String()),
		logging.String("scenario", o.scenario.String()),
		logging.Duration("timeout", o.cfg.PhaseTimeout))
	switch o.phase {
	case phaseResetHover, phaseResetGear, phaseResetDwell:
		// The recovery path itself stalled. Clear what can be cleared and
		// move the session along rather than looping the barrier.
		o.resetClear()
		o.advanceSession()
	default:
		if o.mets != nil {
			o.mets.RecordLandingAttempt(o.scenario.String(), "timeout")
		}
		o.finishScenario("timeout")
	}
}

// Tick advances the current scenario script by one frame.
func (o *Orchestrator) Tick(now time.Time, dt float64) {
	if !o.sessionActive {
		return
	}

	switch o.phase {
	case phaseLaunch:
		if o.drone.Settled() {
			o.beginProtocol()
		}

	// C-0: land, lose confidence, retreat; abort for good after the
	// configured number of attempts.
	case phaseC0Cruise:
		if o.drone.Settled() {
			o.drone.ExtendLegs()
			o.setPhase(phaseC0Gear)
		}
	case phaseC0Gear:
		if o.drone.LegsExtended() {
			o.drone.BeginLanding(o.landingPoint)
			o.hmi.SetStatus(model.HMILanding)
			o.hmi.PlayLoop(LoopLanding)
			o.dwell = NewTimer(o.cfg.LandingDwell)
			o.setPhase(phaseC0Descend)
		}
	case phaseC0Descend:
		o.dwell.Advance(dt)
		if o.dwell.Done() {
			o.evaluateConfidence()
		}
	case phaseC0Recover:
		if o.drone.Settled() {
			o.drone.RetractLegs()
			o.setPhase(phaseC0Retract)
		}
	case phaseC0Retract:
		if o.drone.LegsRetracted() {
			o.dwell = NewTimer(o.cfg.RetryDwell)
			o.setPhase(phaseC0Retry)
		}
	case phaseC0Retry:
		o.dwell.Advance(dt)
		if o.dwell.Done() {
			if o.attempt < o.maxAttempts() {
				o.startC0Attempt(o.attempt + 1)
			} else {
				o.hmi.SetStatus(model.HMIAbort)
				o.drone.Abort()
				o.setPhase(phaseC0Climbout)
			}
		}
	case phaseC0Climbout:
		if o.drone.Destroyed() {
			o.finishScenario("aborted")
		}

	// C-1: prompt for confirmation, then land where the drone stands.
	case phaseC1Cruise:
		if o.drone.Settled() {
			o.hmi.SetStatus(model.HMIPromptConfirm)
			o.inter.StartInteraction(model.InteractionConfirm)
			o.setPhase(phaseC1Await)
		}
	case phaseC1Await:
		if o.inter.InteractionCompleted(model.InteractionConfirm) {
			o.hmi.SetStatus(model.HMISuccess)
			o.landingPoint = o.drone.BasePos().WithY(0)
			o.drone.ExtendLegs()
			o.setPhase(phaseC1Gear)
		}
	case phaseC1Gear:
		if o.drone.LegsExtended() {
			o.drone.BeginLanding(o.landingPoint)
			o.setPhase(phaseC1Land)
		}
	case phaseC1Land:
		if o.drone.State() == model.FlightIdle {
			if o.mets != nil {
				o.mets.RecordLandingAttempt(o.scenario.String(), "completed")
			}
			o.finishScenario("completed")
		}

	// C-2: prompt for guidance, then land at the designated point. While
	// waiting the hovering drone faces the participant on its own.
	case phaseC2Cruise:
		if o.drone.Settled() {
			o.hmi.SetStatus(model.HMIPromptGuide)
			o.inter.StartInteraction(model.InteractionGuidance)
			o.setPhase(phaseC2Await)
		}
	case phaseC2Await:
		if o.inter.InteractionCompleted(model.InteractionGuidance) {
			o.landingPoint = o.guidedPoint()
			o.hmi.SetStatus(model.HMISuccess)
			o.drone.ExtendLegs()
			o.setPhase(phaseC2Gear)
		}
	case phaseC2Gear:
		if o.drone.LegsExtended() {
			o.drone.BeginLanding(o.landingPoint)
			o.setPhase(phaseC2Land)
		}
	case phaseC2Land:
		if o.drone.State() == model.FlightIdle {
			if o.mets != nil {
				o.mets.RecordLandingAttempt(o.scenario.String(), "completed")
			}
			o.finishScenario("completed")
		}

	// Reset barrier between scenarios.
	case phaseResetHover:
		if o.drone.Settled() {
			o.drone.ExtendLegs()
			o.setPhase(phaseResetGear)
		}
	case phaseResetGear:
		if o.drone.LegsExtended() {
			o.resetClear()
			o.dwell = NewTimer(o.cfg.ResetDwell)
			o.setPhase(phaseResetDwell)
		}
	case phaseResetDwell:
		o.dwell.Advance(dt)
		if o.dwell.Done() {
			o.advanceSession()
		}
	}
}

func (o *Orchestrator) beginProtocol() {
	switch o.scenario {
	case model.ScenarioAbort:
		o.startC0Attempt(1)
	case model.ScenarioConfirm:
		o.drone.StartCruiseTo(o.zones.Center())
		o.setPhase(phaseC1Cruise)
	case model.ScenarioGuidance:
		o.drone.StartCruiseTo(o.zones.Center())
		o.setPhase(phaseC2Cruise)
	}
}

func (o *Orchestrator) startC0Attempt(n int) {
	o.attempt = n
	o.landingPoint = o.zones.Pick()
	o.log.Info(context.Background(), "landing attempt",
		logging.Int("attempt", n),
		logging.Float64("x", o.landingPoint.X),
		logging.Float64("z", o.landingPoint.Z))
	o.drone.StartCruiseTo(o.landingPoint)
	o.setPhase(phaseC0Cruise)
}

func (o *Orchestrator) maxAttempts() int {
	if o.cfg.MaxLandingAttempts < 1 {
		return 1
	}
	return o.cfg.MaxLandingAttempts
}

// evaluateConfidence closes one C-0 landing attempt. The scripted value
// must stay strictly below the threshold; a script that violates that is
// clamped and logged loudly, never obeyed.
func (o *Orchestrator) evaluateConfidence() {
	conf := o.confidenceFor(o.attempt)
	o.board.RecordAttempt(o.attempt, conf)
	o.log.Info(context.Background(), "confidence evaluated",
		logging.Int("attempt", o.attempt),
		logging.Float64("confidence", conf),
		logging.Float64("threshold", o.cfg.ConfidenceThreshold))

	o.hmi.SetStatus(model.HMIUncertain)
	if o.drone.State() == model.FlightLanding {
		o.drone.LandAbort()
	} else {
		// Touched down (or got yanked) before the evaluation fired.
		o.log.Warn(context.Background(), "descent ended before confidence evaluation",
			logging.String("state", o.drone.State().String()))
		o.drone.ReturnToHover()
	}
	o.hmi.StopLoop(LoopLanding)
	if o.mets != nil {
		o.mets.RecordLandingAttempt(o.scenario.String(), "aborted")
	}
	o.setPhase(phaseC0Recover)
}

func (o *Orchestrator) confidenceFor(attempt int) float64 {
	th := o.cfg.ConfidenceThreshold
	var v float64
	switch {
	case len(o.cfg.ConfidenceScript) > 0:
		v = o.cfg.ConfidenceScript[(attempt-1)%len(o.cfg.ConfidenceScript)]
	case o.rand != nil:
		v = o.rand.Range(0.2*th, 0.9*th)
	default:
		v = 0.5 * th
	}
	if v >= th {
		o.log.Error(context.Background(), "scripted confidence reached threshold, clamping below",
			logging.Float64("scripted", v),
			logging.Float64("threshold", th))
		v = 0.9 * th
	}
	return v
}

func (o *Orchestrator) guidedPoint() Vec3 {
	p, ok := o.board.GuidedPoint()
	if !ok {
		o.log.Warn(context.Background(), "no guided point designated, landing in place")
		return o.drone.BasePos().WithY(0)
	}
	return FromCoordinates(p).WithY(0)
}

func (o *Orchestrator) finishScenario(outcome string) {
	dur := o.sched.Now().Sub(o.scenarioStart).Seconds()
	if o.mets != nil {
		o.mets.RecordScenarioDuration(o.scenario.String(), dur)
	}
	o.board.EndScenario(o.scenario, outcome)
	o.log.Info(context.Background(), "scenario finished",
		logging.String("scenario", o.scenario.String()),
		logging.String("outcome", outcome),
		logging.Float64("duration_s", dur))
	o.enterReset()
}

// enterReset starts the mandatory barrier so the next scenario never
// inherits drone, cue or interaction state from this one.
func (o *Orchestrator) enterReset() {
	hasNext := o.step+1 < len(o.order)
	if o.drone.Destroyed() {
		if !hasNext {
			// Session over and the last scenario removed the drone; no
			// hover hold to restore, just clear the stage.
			o.resetClear()
			o.dwell = NewTimer(o.cfg.ResetDwell)
			o.setPhase(phaseResetDwell)
			return
		}
		o.drone.Respawn(o.spawn)
	}
	o.drone.ReturnToHover()
	o.setPhase(phaseResetHover)
}

func (o *Orchestrator) resetClear() {
	o.inter.ClearInteraction()
	o.hmi.StopAllLoops()
	o.hmi.SetStatus(model.HMIIdle)
}

func (o *Orchestrator) advanceSession() {
	o.step++
	if o.step < len(o.order) {
		o.startScenario(o.order[o.step])
		return
	}
	o.sessionActive = false
	o.done = true
	o.setPhase(phaseNone)
	o.log.Info(context.Background(), "session complete",
		logging.Int("scenarios", len(o.order)))
	if o.onDone != nil {
		o.onDone()
	}
}
