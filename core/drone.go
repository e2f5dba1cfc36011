package core

import (
	"context"
	"time"

	"github.com/carrywater/dronesim-ar-sub000/internal/logging"
	"github.com/carrywater/dronesim-ar-sub000/internal/sched"
	"github.com/carrywater/dronesim-ar-sub000/model"
)

// FlightMetrics is the narrow sink transition counts are reported to.
type FlightMetrics interface {
	RecordTransition(from, to string)
}

// Drone is the flight state machine. It owns the drone's pose, landing
// gear, rotors and the hover watchdog. Everything here runs on the tick
// goroutine: commands come from the orchestrator (or a watchdog callback,
// which the scheduler also runs on the tick goroutine), movement is
// integrated in Update.
//
// Transition discipline: exit actions run before entry actions, and the
// state-changed notification fires synchronously inside the transition,
// so subscribers always observe the new state before the next movement
// update touches the pose.
type Drone struct {
	cfg   model.DroneConfig
	log   logging.Logger
	sched sched.Scheduler

	arrival ArrivalDetector
	sway    *Sway
	mets    FlightMetrics

	state     model.FlightState
	destroyed bool

	pos    Vec3 // base position, sway excluded
	yawDeg float64
	faceAt Vec3 // participant position to face while hovering

	target Vec3 // pending cruise target
	move   *Transition

	hoverTimerID string
	hoverArmed   bool

	legAngle   float64
	legTarget  float64
	rotor      float64 // 0 stopped .. 1 full speed
	rotorGoal  float64

	subs []func(from, to model.FlightState)
}

// DroneOption customises Drone construction.
type DroneOption func(*Drone)

// WithStartPosition places the drone somewhere other than the origin.
func WithStartPosition(p Vec3) DroneOption {
	return func(d *Drone) { d.pos = p }
}

// WithArrivalDetector swaps the arrival predicate.
func WithArrivalDetector(a ArrivalDetector) DroneOption {
	return func(d *Drone) { d.arrival = a }
}

// WithSway attaches a hover sway generator.
func WithSway(s *Sway) DroneOption {
	return func(d *Drone) { d.sway = s }
}

// WithFlightMetrics attaches a transition counter sink.
func WithFlightMetrics(m FlightMetrics) DroneOption {
	return func(d *Drone) { d.mets = m }
}

// WithParticipantAt sets where the hovering drone turns to face.
func WithParticipantAt(p Vec3) DroneOption {
	return func(d *Drone) { d.faceAt = p }
}

// NewDrone builds a grounded, idle drone.
func NewDrone(cfg model.DroneConfig, s sched.Scheduler, log logging.Logger, opts ...DroneOption) *Drone {
	if log == nil {
		log = logging.Noop()
	}
	d := &Drone{
		cfg:     cfg,
		log:     log.With(logging.String("component", "drone")),
		sched:   s,
		arrival: EpsilonArrival{Epsilon: cfg.ArrivalEpsilon},
		state:   model.FlightIdle,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.legAngle = cfg.LegRetractedDeg
	d.legTarget = cfg.LegRetractedDeg
	return d
}

// OnStateChanged registers a subscriber for flight transitions. Register
// during wiring; the list is not synchronised.
func (d *Drone) OnStateChanged(fn func(from, to model.FlightState)) {
	d.subs = append(d.subs, fn)
}

// State returns the current flight state.
func (d *Drone) State() model.FlightState { return d.state }

// Settled reports whether the drone hovers with its entry climb finished,
// holding position. Scenario scripts wait on this before the next command.
func (d *Drone) Settled() bool { return d.state == model.FlightHover && d.move == nil }

// Destroyed reports whether the abort climb-out finished and the drone
// left the scene. A destroyed drone ignores everything.
func (d *Drone) Destroyed() bool { return d.destroyed }

// Pose returns the rendered position and heading, sway included.
func (d *Drone) Pose() (Vec3, float64) {
	if d.sway == nil {
		return d.pos, d.yawDeg
	}
	return d.pos.Add(d.sway.Offset()), normalizeDeg(d.yawDeg + d.sway.YawOffsetDeg())
}

// BasePos returns the position the state machine steers, sway excluded.
func (d *Drone) BasePos() Vec3 { return d.pos }

// LegAngleDeg returns the current landing gear angle.
func (d *Drone) LegAngleDeg() float64 { return d.legAngle }

// RotorFrac returns rotor speed as a fraction of full.
func (d *Drone) RotorFrac() float64 { return d.rotor }

// SetParticipantPosition moves the point a hovering drone faces.
func (d *Drone) SetParticipantPosition(p Vec3) { d.faceAt = p }

// ---- Commands ----

// SetCruiseTarget stores the pending cruise target without moving. Legal
// in any state.
func (d *Drone) SetCruiseTarget(p Vec3) {
	d.target = p
}

// StartCruiseTo sets the cruise target and leaves hover toward it.
func (d *Drone) StartCruiseTo(p Vec3) {
	if d.dropInvalid("StartCruiseTo", model.FlightHover) {
		return
	}
	d.target = p
	d.transitionTo(model.FlightCruise)
}

// BeginLanding descends from hover toward the given point.
func (d *Drone) BeginLanding(p Vec3) {
	if d.dropInvalid("BeginLanding", model.FlightHover) {
		return
	}
	d.target = p
	d.transitionTo(model.FlightLanding)
}

// LandAbort cancels a descent and climbs back to hover height.
func (d *Drone) LandAbort() {
	if d.dropInvalid("LandAbort", model.FlightLanding) {
		return
	}
	d.transitionTo(model.FlightLandAbort)
}

// Abort starts the terminal climb-out. Legal from any airborne state.
func (d *Drone) Abort() {
	if d.destroyed {
		d.log.Debug(context.Background(), "command ignored, drone destroyed", logging.String("command", "Abort"))
		return
	}
	switch d.state {
	case model.FlightHover, model.FlightCruise, model.FlightLanding, model.FlightLandAbort:
		d.transitionTo(model.FlightAbort)
	default:
		d.log.Warn(context.Background(), "command invalid in state, dropped",
			logging.String("command", "Abort"),
			logging.String("state", d.state.String()))
	}
}

// ReturnToHover forces the drone back to hover from any state, cancelling
// pending timers and transitions. It doubles as takeoff from idle and as
// the recovery hook the reset barrier uses between scenarios.
func (d *Drone) ReturnToHover() {
	if d.destroyed {
		d.log.Debug(context.Background(), "command ignored, drone destroyed", logging.String("command", "ReturnToHover"))
		return
	}
	d.transitionTo(model.FlightHover)
}

// Respawn resets a destroyed drone to a fresh grounded instance at the
// given point. The study flies one drone instance per scenario; after an
// abort climb-out removed it, the reset barrier respawns the next one
// here instead of rebuilding the wiring.
func (d *Drone) Respawn(at Vec3) {
	d.cancelHoverTimer()
	d.destroyed = false
	d.pos = at
	d.yawDeg = 0
	d.target = Vec3{}
	d.move = nil
	d.legAngle = d.cfg.LegRetractedDeg
	d.legTarget = d.cfg.LegRetractedDeg
	d.rotor = 0
	d.rotorGoal = 0
	d.log.Info(context.Background(), "drone respawned")
	if d.state != model.FlightIdle {
		d.transitionTo(model.FlightIdle)
	}
}

// ExtendLegs starts the landing gear toward its extended angle. The gear
// animates independently of flight states.
func (d *Drone) ExtendLegs() {
	if d.destroyed {
		return
	}
	d.legTarget = d.cfg.LegExtendedDeg
}

// RetractLegs starts the landing gear toward its retracted angle.
func (d *Drone) RetractLegs() {
	if d.destroyed {
		return
	}
	d.legTarget = d.cfg.LegRetractedDeg
}

// LegsAnimating reports whether the gear is still moving.
func (d *Drone) LegsAnimating() bool { return d.legAngle != d.legTarget }

// LegsExtended reports whether the gear has reached its extended angle.
func (d *Drone) LegsExtended() bool {
	return d.legAngle == d.cfg.LegExtendedDeg && !d.LegsAnimating()
}

// LegsRetracted reports whether the gear has reached its retracted angle.
func (d *Drone) LegsRetracted() bool {
	return d.legAngle == d.cfg.LegRetractedDeg && !d.LegsAnimating()
}

// dropInvalid logs and reports commands issued in the wrong state. A bad
// command never panics a session; it is dropped and the protocol's own
// watchdogs deal with the consequences.
func (d *Drone) dropInvalid(command string, want model.FlightState) bool {
	if d.destroyed {
		d.log.Debug(context.Background(), "command ignored, drone destroyed", logging.String("command", command))
		return true
	}
	if d.state != want {
		d.log.Warn(context.Background(), "command invalid in state, dropped",
			logging.String("command", command),
			logging.String("state", d.state.String()),
			logging.String("want", want.String()))
		return true
	}
	return false
}

// ---- Transitions ----

func (d *Drone) transitionTo(to model.FlightState) {
	from := d.state
	d.exitState(from)
	d.state = to
	d.enterState(to)

	if d.mets != nil {
		d.mets.RecordTransition(from.String(), to.String())
	}
	d.log.Debug(context.Background(), "flight transition",
		logging.String("from", from.String()),
		logging.String("to", to.String()))
	for _, fn := range d.subs {
		fn(from, to)
	}
}

func (d *Drone) exitState(from model.FlightState) {
	if from == model.FlightHover {
		d.cancelHoverTimer()
	}
}

func (d *Drone) enterState(to model.FlightState) {
	switch to {
	case model.FlightIdle:
		d.rotorGoal = 0
		d.move = nil
		d.swayEnable(false)

	case model.FlightHover:
		d.rotorGoal = 1
		d.swayEnable(true)
		d.hoverArmed = false
		dest := d.pos.WithY(d.cfg.HoverHeight)
		d.move = BeginTransition(d.pos, dest, d.climbDuration(dest, d.cfg.DescentSpeed), CurveSettle)

	case model.FlightCruise:
		d.rotorGoal = 1
		d.swayEnable(false)
		dest := d.target.WithY(d.cfg.HoverHeight)
		dur := durationFor(d.pos.PlanarDistanceTo(dest), d.cfg.CruiseSpeed)
		d.move = BeginTransition(d.pos, dest, dur, CurveSmooth)

	case model.FlightLanding:
		d.swayEnable(false)
		dur := durationFor(d.pos.DistanceTo(d.target), d.cfg.LandingSpeed)
		d.move = BeginTransition(d.pos, d.target, dur, CurveSettle)

	case model.FlightLandAbort:
		d.swayEnable(false)
		dest := d.pos.WithY(d.cfg.HoverHeight)
		d.move = BeginTransition(d.pos, dest, d.climbDuration(dest, d.cfg.DescentSpeed), CurveClimb)

	case model.FlightAbort:
		d.rotorGoal = 1
		d.swayEnable(false)
		dest := d.pos.WithY(d.cfg.AbortClimbHeight)
		d.move = BeginTransition(d.pos, dest, d.climbDuration(dest, d.cfg.CruiseSpeed), CurveClimb)
	}
}

func (d *Drone) swayEnable(on bool) {
	if d.sway != nil {
		d.sway.SetEnabled(on)
	}
}

func (d *Drone) climbDuration(dest Vec3, speed float64) time.Duration {
	return durationFor(absFloat(dest.Y-d.pos.Y), speed)
}

func durationFor(dist, speed float64) time.Duration {
	if speed <= 0 || dist <= 0 {
		return 0
	}
	return time.Duration(dist / speed * float64(time.Second))
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ---- Hover watchdog ----

func (d *Drone) armHoverTimer() {
	if d.hoverArmed || d.cfg.HoverAbortTimeout <= 0 || d.sched == nil {
		d.hoverArmed = true
		return
	}
	d.hoverArmed = true
	d.hoverTimerID = d.sched.After(d.cfg.HoverAbortTimeout, d.onHoverTimeout)
}

func (d *Drone) cancelHoverTimer() {
	if d.hoverTimerID != "" && d.sched != nil {
		d.sched.Cancel(d.hoverTimerID)
	}
	d.hoverTimerID = ""
	d.hoverArmed = false
}

func (d *Drone) onHoverTimeout() {
	d.hoverTimerID = ""
	if d.destroyed || d.state != model.FlightHover {
		return
	}
	d.log.Info(context.Background(), "hover watchdog elapsed, aborting",
		logging.Duration("timeout", d.cfg.HoverAbortTimeout))
	d.Abort()
}

// ---- Per-tick integration ----

// Update advances movement, gear, rotors and sway by dt seconds. Arrival
// transitions happen at the end of the update, after the pose settles.
func (d *Drone) Update(dt float64) {
	if d.destroyed || dt <= 0 {
		return
	}

	d.updateGear(dt)
	if d.sway != nil {
		d.sway.Update(dt)
	}

	switch d.state {
	case model.FlightIdle:
		// grounded, nothing to integrate

	case model.FlightHover:
		if d.move != nil {
			d.pos = d.move.Advance(dt)
			if d.move.Done() && d.arrival.Arrived(d.pos, d.move.Target()) {
				d.move = nil
				d.armHoverTimer()
			}
		}
		want := HeadingDeg(d.pos, d.faceAt)
		d.yawDeg = YawToward(d.yawDeg, want, d.cfg.YawRateDeg*dt)

	case model.FlightCruise:
		d.pos = d.move.Advance(dt)
		want := HeadingDeg(d.pos, d.move.Target())
		d.yawDeg = YawToward(d.yawDeg, want, d.cfg.YawRateDeg*dt)
		if d.move.Done() && d.arrival.Arrived(d.pos, d.move.Target()) {
			d.transitionTo(model.FlightHover)
		}

	case model.FlightLanding:
		d.pos = d.move.Advance(dt)
		if d.move.Done() && d.arrival.Arrived(d.pos, d.move.Target()) {
			d.transitionTo(model.FlightIdle)
		}

	case model.FlightLandAbort:
		d.pos = d.move.Advance(dt)
		if d.move.Done() && d.arrival.Arrived(d.pos, d.move.Target()) {
			d.transitionTo(model.FlightHover)
		}

	case model.FlightAbort:
		d.pos = d.move.Advance(dt)
		if d.move.Done() {
			d.destroyed = true
			d.move = nil
			d.log.Info(context.Background(), "abort climb complete, drone removed")
		}
	}
}

func (d *Drone) updateGear(dt float64) {
	if d.legAngle != d.legTarget {
		step := d.cfg.LegSpeedDeg * dt
		diff := d.legTarget - d.legAngle
		if absFloat(diff) <= step {
			d.legAngle = d.legTarget
		} else if diff > 0 {
			d.legAngle += step
		} else {
			d.legAngle -= step
		}
	}

	if d.rotor != d.rotorGoal {
		spinup := d.cfg.RotorSpinupTime.Seconds()
		step := dt
		if spinup > 0 {
			step = dt / spinup
		}
		diff := d.rotorGoal - d.rotor
		if absFloat(diff) <= step {
			d.rotor = d.rotorGoal
		} else if diff > 0 {
			d.rotor += step
		} else {
			d.rotor -= step
		}
	}
}
