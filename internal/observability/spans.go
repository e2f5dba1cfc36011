package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/carrywater/dronesim-ar-sub000/internal/logging"
	"github.com/carrywater/dronesim-ar-sub000/kb"
)

// SessionTracer turns session board events into OpenTelemetry spans: one
// span per session with one child span per scenario, plus span events for
// attempts, interactions, and status changes. Span timestamps come from the
// simulation clock carried on each event, so accelerated runs still produce
// traces on the simulated timeline.
type SessionTracer struct {
	tracer trace.Tracer
	log    logging.Logger

	root  context.Context
	board *kb.Board

	sessionCtx   context.Context
	sessionSpan  trace.Span
	scenarioSpan trace.Span
}

// NewSessionTracer builds a tracer rooted at ctx. Call Observe to attach it
// to a board before the session starts.
func NewSessionTracer(ctx context.Context, log logging.Logger) *SessionTracer {
	if log == nil {
		log = logging.Noop()
	}
	return &SessionTracer{
		tracer: otel.Tracer("dronesim/session"),
		log:    log,
		root:   ctx,
	}
}

// Observe subscribes the tracer to board events. The board pointer is kept
// so session identity can be read into span attributes.
func (st *SessionTracer) Observe(board *kb.Board) {
	st.board = board
	board.Subscribe(st.handle)
}

func (st *SessionTracer) handle(ev kb.Event) {
	switch ev.Kind {
	case kb.EventSessionStarted:
		attrs := []attribute.KeyValue{}
		if st.board != nil {
			snap := st.board.Snapshot()
			attrs = append(attrs,
				attribute.String("session.id", snap.SessionID),
				attribute.Int("participant", snap.Participant),
				attribute.Int64("seed", int64(snap.Seed)),
			)
		}
		st.sessionCtx, st.sessionSpan = st.tracer.Start(st.root, "session",
			append(startOpts(ev), trace.WithAttributes(attrs...))...)

	case kb.EventScenarioStarted:
		parent := st.root
		if st.sessionCtx != nil {
			parent = st.sessionCtx
		}
		_, st.scenarioSpan = st.tracer.Start(parent, "scenario."+ev.Scenario.String(),
			append(startOpts(ev), trace.WithAttributes(attribute.Int("step", ev.Step)))...)

	case kb.EventScenarioEnded:
		if st.scenarioSpan == nil {
			return
		}
		st.scenarioSpan.SetAttributes(attribute.String("outcome", ev.Outcome))
		st.scenarioSpan.End(endOpts(ev)...)
		st.scenarioSpan = nil

	case kb.EventSessionEnded:
		if st.scenarioSpan != nil {
			st.scenarioSpan.End(endOpts(ev)...)
			st.scenarioSpan = nil
		}
		if st.sessionSpan == nil {
			return
		}
		st.sessionSpan.SetAttributes(attribute.String("outcome", ev.Outcome))
		st.sessionSpan.End(endOpts(ev)...)
		st.sessionSpan = nil
		st.sessionCtx = nil

	case kb.EventAttempt:
		st.addEvent("attempt", ev,
			attribute.Int("attempt.n", ev.Attempt),
			attribute.Float64("attempt.confidence", ev.Confidence))

	case kb.EventStatusChanged:
		st.addEvent("hmi."+ev.Status.String(), ev)

	case kb.EventFlightChanged:
		st.addEvent("flight."+ev.FlightTo.String(), ev,
			attribute.String("from", ev.FlightFrom.String()))

	case kb.EventInteractionStarted:
		st.addEvent("interaction.started", ev,
			attribute.String("interaction", ev.Interaction.String()))

	case kb.EventInteractionCompleted:
		st.addEvent("interaction.completed", ev,
			attribute.String("interaction", ev.Interaction.String()))
	}
}

// addEvent attaches a span event to the innermost open span.
func (st *SessionTracer) addEvent(name string, ev kb.Event, attrs ...attribute.KeyValue) {
	span := st.scenarioSpan
	if span == nil {
		span = st.sessionSpan
	}
	if span == nil {
		return
	}
	opts := []trace.EventOption{trace.WithAttributes(attrs...)}
	if !ev.At.IsZero() {
		opts = append(opts, trace.WithTimestamp(ev.At))
	}
	span.AddEvent(name, opts...)
}

func startOpts(ev kb.Event) []trace.SpanStartOption {
	if ev.At.IsZero() {
		return nil
	}
	return []trace.SpanStartOption{trace.WithTimestamp(ev.At)}
}

func endOpts(ev kb.Event) []trace.SpanEndOption {
	if ev.At.IsZero() {
		return nil
	}
	return []trace.SpanEndOption{trace.WithTimestamp(ev.At)}
}
