package core

import (
	"context"

	"github.com/carrywater/dronesim-ar-sub000/internal/logging"
	"github.com/carrywater/dronesim-ar-sub000/model"
)

// Loop cue identifiers. Loops persist across status changes until stopped
// explicitly, so they are driven separately from SetStatus.
const (
	LoopHum     = "loop.hum"
	LoopLanding = "loop.landing"
)

// CueRenderer receives the fire-and-forget cue triggers. The binary wires a
// console renderer, tests wire capturing fakes.
type CueRenderer interface {
	SetStatus(s model.HMIStatus)
	PlayLoop(id string)
	StopLoop(id string)
}

// StatusMetrics is the narrow sink status changes are reported to.
type StatusMetrics interface {
	RecordStatus(status string)
}

// HMI translates status requests into cue triggers. It is purely reactive:
// it never transitions itself, holds no timers, and keeps no state beyond
// the current status and which loops are running.
type HMI struct {
	renderer CueRenderer
	log      logging.Logger
	mets     StatusMetrics

	status model.HMIStatus
	loops  map[string]bool
	subs   []func(model.HMIStatus)
}

// HMIOption customises HMI construction.
type HMIOption func(*HMI)

// WithStatusMetrics attaches a status counter sink.
func WithStatusMetrics(m StatusMetrics) HMIOption {
	return func(h *HMI) { h.mets = m }
}

// NewHMI builds an HMI in the Idle status with no loops playing.
func NewHMI(r CueRenderer, log logging.Logger, opts ...HMIOption) *HMI {
	if log == nil {
		log = logging.Noop()
	}
	h := &HMI{
		renderer: r,
		log:      log.With(logging.String("component", "hmi")),
		status:   model.HMIIdle,
		loops:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnStatusChanged registers a subscriber for status changes. Register during
// wiring; the list is not synchronised.
func (h *HMI) OnStatusChanged(fn func(model.HMIStatus)) {
	h.subs = append(h.subs, fn)
}

// Status returns the current status.
func (h *HMI) Status() model.HMIStatus { return h.status }

// SetStatus requests a status change. Setting the current status again is a
// no-op: the cue for a status fires exactly once per change.
func (h *HMI) SetStatus(s model.HMIStatus) {
	if s == h.status {
		return
	}
	h.status = s
	if h.renderer != nil {
		h.renderer.SetStatus(s)
	}
	if h.mets != nil {
		h.mets.RecordStatus(s.String())
	}
	h.log.Debug(context.Background(), "hmi status", logging.String("status", s.String()))
	for _, fn := range h.subs {
		fn(s)
	}
}

// PlayLoop starts a looping cue. Starting a loop that is already playing is
// a no-op.
func (h *HMI) PlayLoop(id string) {
	if h.loops[id] {
		return
	}
	h.loops[id] = true
	if h.renderer != nil {
		h.renderer.PlayLoop(id)
	}
}

// StopLoop stops a looping cue. Stopping a loop that is not playing is a
// no-op.
func (h *HMI) StopLoop(id string) {
	if !h.loops[id] {
		return
	}
	delete(h.loops, id)
	if h.renderer != nil {
		h.renderer.StopLoop(id)
	}
}

// LoopPlaying reports whether a looping cue is currently running.
func (h *HMI) LoopPlaying(id string) bool { return h.loops[id] }

// StopAllLoops stops every running loop. The reset barrier between
// scenarios uses it so no cue leaks into the next condition.
func (h *HMI) StopAllLoops() {
	for id := range h.loops {
		delete(h.loops, id)
		if h.renderer != nil {
			h.renderer.StopLoop(id)
		}
	}
}
