package core

import (
	"time"

	"github.com/fogleman/ease"
)

// Curve reshapes normalised progress. Implementations map [0,1] to [0,1]
// with f(0) = 0 and f(1) = 1.
type Curve func(t float64) float64

// The curves movement transitions actually use. Cruise legs accelerate and
// settle (CurveSmooth), landings bleed speed near the ground (CurveSettle),
// climb-outs start gently (CurveClimb).
var (
	CurveLinear Curve = ease.Linear
	CurveSmooth Curve = ease.InOutQuad
	CurveSettle Curve = ease.OutCubic
	CurveClimb  Curve = ease.InOutSine
)

// Timer accumulates frame deltas into clamped progress over a fixed
// duration. A zero or negative duration is complete immediately.
type Timer struct {
	duration float64 // seconds
	elapsed  float64
}

// NewTimer returns a timer over d.
func NewTimer(d time.Duration) *Timer {
	return &Timer{duration: d.Seconds()}
}

// Advance adds dt seconds to the timer.
func (t *Timer) Advance(dt float64) {
	if dt > 0 {
		t.elapsed += dt
	}
}

// Progress reports elapsed/duration clamped to [0,1].
func (t *Timer) Progress() float64 {
	if t.duration <= 0 {
		return 1
	}
	p := t.elapsed / t.duration
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Done reports whether the timer has run its duration.
func (t *Timer) Done() bool {
	return t.Progress() >= 1
}

// Reset rewinds the timer and optionally gives it a new duration.
func (t *Timer) Reset(d time.Duration) {
	t.duration = d.Seconds()
	t.elapsed = 0
}

// Transition is one movement interpolation between two points. The
// position is always the curved lerp of clamped progress, so a transition
// can never overshoot its target no matter how large a frame delta gets.
type Transition struct {
	start  Vec3
	target Vec3
	curve  Curve
	timer  Timer
}

// BeginTransition starts a move from start to target over d.
func BeginTransition(start, target Vec3, d time.Duration, curve Curve) *Transition {
	if curve == nil {
		curve = CurveLinear
	}
	return &Transition{
		start:  start,
		target: target,
		curve:  curve,
		timer:  Timer{duration: d.Seconds()},
	}
}

// Advance integrates dt seconds and returns the new position.
func (tr *Transition) Advance(dt float64) Vec3 {
	tr.timer.Advance(dt)
	return tr.Pos()
}

// Pos returns the position at current progress.
func (tr *Transition) Pos() Vec3 {
	return Lerp(tr.start, tr.target, tr.curve(tr.timer.Progress()))
}

// Progress reports clamped progress in [0,1].
func (tr *Transition) Progress() float64 {
	return tr.timer.Progress()
}

// Done reports whether the move has used up its duration.
func (tr *Transition) Done() bool {
	return tr.timer.Done()
}

// Target returns the transition's destination.
func (tr *Transition) Target() Vec3 {
	return tr.target
}

// ArrivalDetector decides when a position counts as having reached a
// target. It is deliberately separate from the interpolation: movement
// owns where the drone is, arrival owns whether that is close enough.
type ArrivalDetector interface {
	Arrived(pos, target Vec3) bool
}

// EpsilonArrival is the default detector: a plain distance threshold.
type EpsilonArrival struct {
	Epsilon float64 // metres
}

func (e EpsilonArrival) Arrived(pos, target Vec3) bool {
	return pos.DistanceTo(target) <= e.Epsilon
}
