// Package hitl provides a scripted stand-in for the human side of a
// session, so a headless run completes every interaction a live
// participant would perform through the AR front end.
package hitl

import (
	"context"
	"time"

	"github.com/carrywater/dronesim-ar-sub000/core"
	"github.com/carrywater/dronesim-ar-sub000/internal/logging"
	"github.com/carrywater/dronesim-ar-sub000/internal/sched"
	"github.com/carrywater/dronesim-ar-sub000/kb"
	"github.com/carrywater/dronesim-ar-sub000/model"
)

// Participant completes interactions after a configured amount of
// simulated time. Confirmations simply flip the completion flag on the
// board; guidance first designates a landing point, either a configured
// one or a random point inside the delivery zone.
type Participant struct {
	sched sched.Scheduler
	board *kb.Board
	log   logging.Logger

	confirmDelay  time.Duration
	guidanceDelay time.Duration
	zones         *core.ZonePicker
	fixedPoint    *model.Coordinates

	pending map[model.Interaction]string
}

// Option customises Participant construction.
type Option func(*Participant)

// WithDelays overrides the per-interaction response delays.
func WithDelays(confirm, guidance time.Duration) Option {
	return func(p *Participant) {
		p.confirmDelay = confirm
		p.guidanceDelay = guidance
	}
}

// WithZonePicker sets the picker used to draw guided landing points.
func WithZonePicker(z *core.ZonePicker) Option {
	return func(p *Participant) { p.zones = z }
}

// WithGuidedPoint pins the guided landing point instead of drawing one.
func WithGuidedPoint(pt model.Coordinates) Option {
	return func(p *Participant) { p.fixedPoint = &pt }
}

// NewParticipant builds a scripted participant over the given scheduler
// and board. Defaults match the field-study response delays.
func NewParticipant(s sched.Scheduler, board *kb.Board, log logging.Logger, opts ...Option) *Participant {
	if log == nil {
		log = logging.Noop()
	}
	defaults := model.DefaultSessionConfig()
	p := &Participant{
		sched:         s,
		board:         board,
		log:           log.With(logging.String("component", "participant")),
		confirmDelay:  defaults.ConfirmDelay,
		guidanceDelay: defaults.GuidanceDelay,
		pending:       make(map[model.Interaction]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.zones == nil {
		p.zones = core.NewZonePicker(defaults.Zone, nil)
	}
	return p
}

// StartInteraction flags the task as started on the board and schedules
// its completion. Starting a task that is already pending reschedules it.
func (p *Participant) StartInteraction(k model.Interaction) {
	ctx := context.Background()

	if id, ok := p.pending[k]; ok {
		p.sched.Cancel(id)
	}

	p.board.StartInteraction(k)

	delay := p.confirmDelay
	if k == model.InteractionGuidance {
		delay = p.guidanceDelay
	}

	p.log.Info(ctx, "interaction started",
		logging.String("interaction", k.String()),
		logging.Duration("response_delay", delay))

	p.pending[k] = p.sched.After(delay, func() { p.complete(k) })
}

func (p *Participant) complete(k model.Interaction) {
	delete(p.pending, k)

	if k == model.InteractionGuidance {
		point := p.guidedPoint()
		p.board.SetGuidedPoint(point)
		p.log.Info(context.Background(), "landing point designated",
			logging.Float64("x", point.X),
			logging.Float64("z", point.Z))
	}

	p.board.CompleteInteraction(k)
	p.log.Info(context.Background(), "interaction completed",
		logging.String("interaction", k.String()))
}

func (p *Participant) guidedPoint() model.Coordinates {
	if p.fixedPoint != nil {
		return *p.fixedPoint
	}
	return p.zones.Pick().Coordinates()
}

// InteractionCompleted reports whether the task has been completed.
func (p *Participant) InteractionCompleted(k model.Interaction) bool {
	return p.board.InteractionCompleted(k)
}

// ClearInteraction cancels pending completions and wipes the board's
// task flags. Called from the between-scenario reset barrier.
func (p *Participant) ClearInteraction() {
	for k, id := range p.pending {
		p.sched.Cancel(id)
		delete(p.pending, k)
	}
	p.board.ClearInteractions()
}
