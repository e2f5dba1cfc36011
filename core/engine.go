package core

import (
	"context"
	"time"

	"github.com/carrywater/dronesim-ar-sub000/internal/logging"
	"github.com/carrywater/dronesim-ar-sub000/internal/sched"
	"github.com/carrywater/dronesim-ar-sub000/kb"
	"github.com/carrywater/dronesim-ar-sub000/model"
	"github.com/carrywater/dronesim-ar-sub000/timectrl"
)

// EngineMetrics is the narrow sink tick timings are reported to.
type EngineMetrics interface {
	ObserveTickDuration(seconds float64)
	SetSimTime(seconds float64)
}

// Engine fans one simulation step out to the components in a fixed order:
// due timers first, then the scenario script, then movement integration,
// then the board mirror and samplers. Commands issued by a timer or the
// script therefore take effect in the same tick's movement update, and a
// transition notification always precedes the movement it affects.
type Engine struct {
	ctrl  *timectrl.TimeController
	sched sched.Scheduler
	orch  *Orchestrator
	drone *Drone
	hmi   *HMI
	board *kb.Board
	log   logging.Logger
	mets  EngineMetrics

	dt       float64
	start    time.Time
	samplers []func(now time.Time)
}

// EngineOption customises Engine construction.
type EngineOption func(*Engine)

// WithEngineMetrics attaches a tick timing sink.
func WithEngineMetrics(m EngineMetrics) EngineOption {
	return func(e *Engine) { e.mets = m }
}

// NewEngine wires the glue between the time controller and the simulation
// components: it registers itself as the tick listener and mirrors flight
// and status changes onto the board.
func NewEngine(ctrl *timectrl.TimeController, s sched.Scheduler, orch *Orchestrator, d *Drone, h *HMI, board *kb.Board, log logging.Logger, opts ...EngineOption) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	e := &Engine{
		ctrl:  ctrl,
		sched: s,
		orch:  orch,
		drone: d,
		hmi:   h,
		board: board,
		log:   log.With(logging.String("component", "engine")),
		dt:    ctrl.Tick.Seconds(),
		start: ctrl.StartTime,
	}
	for _, opt := range opts {
		opt(e)
	}

	d.OnStateChanged(board.SetFlight)
	h.OnStatusChanged(func(s model.HMIStatus) { board.SetStatus(s) })
	ctrl.AddListener(e.TickOnce)
	return e
}

// AddSampler registers a per-tick observer that runs after the board
// mirror. The flight recorder hooks in here. Register before Run.
func (e *Engine) AddSampler(fn func(now time.Time)) {
	e.samplers = append(e.samplers, fn)
}

// TickOnce runs one simulation step at the given simulation time. The
// controller calls it once per tick; tests call it directly.
func (e *Engine) TickOnce(now time.Time) {
	started := time.Now()

	e.sched.RunDue()
	e.orch.Tick(now, e.dt)
	e.drone.Update(e.dt)

	e.mirror()
	for _, fn := range e.samplers {
		fn(now)
	}

	if e.mets != nil {
		e.mets.ObserveTickDuration(time.Since(started).Seconds())
		e.mets.SetSimTime(now.Sub(e.start).Seconds())
	}
}

// mirror refreshes the high-frequency board fields from the drone.
func (e *Engine) mirror() {
	pose, yaw := e.drone.Pose()
	base := e.drone.BasePos()
	e.board.SetPose(pose.Coordinates(), yaw, pose.Sub(base).Coordinates())
	e.board.SetGear(e.drone.LegAngleDeg(), e.drone.RotorFrac())
	e.board.SetDestroyed(e.drone.Destroyed())
}

// Run drives the controller until d of simulated time has elapsed or the
// context is cancelled. A zero d runs until cancellation.
func (e *Engine) Run(ctx context.Context, d time.Duration) error {
	e.log.Info(ctx, "engine starting",
		logging.Duration("tick", e.ctrl.Tick),
		logging.Duration("sim_duration", d))
	<-e.ctrl.Start(ctx, d)
	e.log.Info(ctx, "engine stopped")
	return ctx.Err()
}
