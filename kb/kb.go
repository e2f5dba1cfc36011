package kb

import (
	"context"
	"sync"
	"time"

	"github.com/brunoga/deep"

	"github.com/carrywater/dronesim-ar-sub000/internal/logging"
	"github.com/carrywater/dronesim-ar-sub000/model"
	"github.com/carrywater/dronesim-ar-sub000/timectrl"
)

// EventKind indicates what kind of change happened on the board.
type EventKind int

const (
	EventSessionStarted EventKind = iota
	EventSessionEnded
	EventScenarioStarted
	EventScenarioEnded
	EventFlightChanged
	EventStatusChanged
	EventAttempt
	EventInteractionStarted
	EventInteractionCompleted
)

func (k EventKind) String() string {
	switch k {
	case EventSessionStarted:
		return "session-started"
	case EventSessionEnded:
		return "session-ended"
	case EventScenarioStarted:
		return "scenario-started"
	case EventScenarioEnded:
		return "scenario-ended"
	case EventFlightChanged:
		return "flight-changed"
	case EventStatusChanged:
		return "status-changed"
	case EventAttempt:
		return "attempt"
	case EventInteractionStarted:
		return "interaction-started"
	case EventInteractionCompleted:
		return "interaction-completed"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when something interesting happens.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind
	At   time.Time // simulation time

	FlightFrom  model.FlightState
	FlightTo    model.FlightState
	Status      model.HMIStatus
	Scenario    model.Scenario
	Step        int
	Attempt     int
	Confidence  float64
	Interaction model.Interaction
	Outcome     string
}

// Metrics is the narrow sink the board reports event counts to.
type Metrics interface {
	RecordBoardEvent(kind string)
}

// Snapshot is a consistent copy of everything on the board. It shares no
// memory with the live board, so observers on other goroutines can hold
// one as long as they like.
type Snapshot struct {
	SessionID   string
	Participant int
	Seed        uint64

	Flight      model.FlightState
	Pose        model.Coordinates
	YawDeg      float64
	Sway        model.Coordinates
	LegAngleDeg float64
	RotorFrac   float64
	Destroyed   bool

	Status model.HMIStatus

	Scenario       model.Scenario
	ScenarioActive bool
	Step           int
	Attempts       int

	InteractionsStarted   map[model.Interaction]bool
	InteractionsCompleted map[model.Interaction]bool
	GuidedPoint           *model.Coordinates

	SessionActive bool
	SessionDone   bool
}

// Board is the authoritative, thread-safe mirror of session state. The
// tick loop writes; the recorder, tracer and console read. Subscribers
// are notified synchronously, in subscription order, after each write,
// outside the lock.
type Board struct {
	mu sync.RWMutex

	clock timectrl.SimClock
	log   logging.Logger
	mets  Metrics

	snap Snapshot

	subs []func(Event)
}

// Option customises Board construction.
type Option func(*Board)

// WithLogger attaches a structured logger for board-level events.
func WithLogger(l logging.Logger) Option {
	return func(b *Board) { b.log = l }
}

// WithMetricsRecorder attaches an optional recorder for event counts.
func WithMetricsRecorder(m Metrics) Option {
	return func(b *Board) { b.mets = m }
}

// New constructs an empty board reading timestamps from clock.
func New(clock timectrl.SimClock, opts ...Option) *Board {
	b := &Board{
		clock: clock,
		log:   logging.Noop(),
		snap: Snapshot{
			InteractionsStarted:   make(map[model.Interaction]bool),
			InteractionsCompleted: make(map[model.Interaction]bool),
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a callback for every board event. Register before
// the session starts; subscription is not synchronised against delivery.
func (b *Board) Subscribe(fn func(Event)) {
	b.subs = append(b.subs, fn)
}

func (b *Board) publish(ev Event) {
	if b.mets != nil {
		b.mets.RecordBoardEvent(ev.Kind.String())
	}
	for _, fn := range b.subs {
		fn(ev)
	}
}

func (b *Board) now() time.Time {
	if b.clock == nil {
		return time.Time{}
	}
	return b.clock.Now()
}

// StartSession records session identity and emits EventSessionStarted.
func (b *Board) StartSession(id string, participant int, seed uint64) {
	b.mu.Lock()
	b.snap.SessionID = id
	b.snap.Participant = participant
	b.snap.Seed = seed
	b.snap.SessionActive = true
	b.snap.SessionDone = false
	ev := Event{Kind: EventSessionStarted, At: b.now()}
	b.mu.Unlock()

	b.log.Info(context.Background(), "session started",
		logging.String("session_id", id),
		logging.Int("participant", participant))
	b.publish(ev)
}

// EndSession marks the session finished with an outcome label.
func (b *Board) EndSession(outcome string) {
	b.mu.Lock()
	b.snap.SessionActive = false
	b.snap.SessionDone = true
	ev := Event{Kind: EventSessionEnded, At: b.now(), Outcome: outcome}
	b.mu.Unlock()

	b.publish(ev)
}

// StartScenario records the active scenario and resets per-scenario state.
func (b *Board) StartScenario(s model.Scenario, step int) {
	b.mu.Lock()
	b.snap.Scenario = s
	b.snap.ScenarioActive = true
	b.snap.Step = step
	b.snap.Attempts = 0
	ev := Event{Kind: EventScenarioStarted, At: b.now(), Scenario: s, Step: step}
	b.mu.Unlock()

	b.publish(ev)
}

// EndScenario marks the active scenario finished with an outcome label.
func (b *Board) EndScenario(s model.Scenario, outcome string) {
	b.mu.Lock()
	b.snap.ScenarioActive = false
	ev := Event{Kind: EventScenarioEnded, At: b.now(), Scenario: s, Step: b.snap.Step, Outcome: outcome}
	b.mu.Unlock()

	b.publish(ev)
}

// SetFlight mirrors a flight state transition.
func (b *Board) SetFlight(from, to model.FlightState) {
	b.mu.Lock()
	b.snap.Flight = to
	ev := Event{Kind: EventFlightChanged, At: b.now(), FlightFrom: from, FlightTo: to}
	b.mu.Unlock()

	b.publish(ev)
}

// SetPose mirrors the drone's rendered pose. High-frequency, no event;
// the recorder samples poses from snapshots instead.
func (b *Board) SetPose(pos model.Coordinates, yawDeg float64, sway model.Coordinates) {
	b.mu.Lock()
	b.snap.Pose = pos
	b.snap.YawDeg = yawDeg
	b.snap.Sway = sway
	b.mu.Unlock()
}

// SetGear mirrors the mechanical sub-state. No event.
func (b *Board) SetGear(legAngleDeg, rotorFrac float64) {
	b.mu.Lock()
	b.snap.LegAngleDeg = legAngleDeg
	b.snap.RotorFrac = rotorFrac
	b.mu.Unlock()
}

// SetDestroyed mirrors the end of an abort climb-out. No event; the
// scenario outcome carries the fact.
func (b *Board) SetDestroyed(v bool) {
	b.mu.Lock()
	b.snap.Destroyed = v
	b.mu.Unlock()
}

// SetStatus mirrors the HMI status.
func (b *Board) SetStatus(s model.HMIStatus) {
	b.mu.Lock()
	b.snap.Status = s
	ev := Event{Kind: EventStatusChanged, At: b.now(), Status: s}
	b.mu.Unlock()

	b.publish(ev)
}

// RecordAttempt notes one C-0 landing attempt and its scripted confidence.
func (b *Board) RecordAttempt(n int, confidence float64) {
	b.mu.Lock()
	b.snap.Attempts = n
	ev := Event{Kind: EventAttempt, At: b.now(), Attempt: n, Confidence: confidence, Scenario: b.snap.Scenario}
	b.mu.Unlock()

	b.publish(ev)
}

// StartInteraction flags a participant task as running.
func (b *Board) StartInteraction(k model.Interaction) {
	b.mu.Lock()
	b.snap.InteractionsStarted[k] = true
	b.snap.InteractionsCompleted[k] = false
	ev := Event{Kind: EventInteractionStarted, At: b.now(), Interaction: k}
	b.mu.Unlock()

	b.publish(ev)
}

// CompleteInteraction flags a participant task as done.
func (b *Board) CompleteInteraction(k model.Interaction) {
	b.mu.Lock()
	b.snap.InteractionsCompleted[k] = true
	ev := Event{Kind: EventInteractionCompleted, At: b.now(), Interaction: k}
	b.mu.Unlock()

	b.publish(ev)
}

// InteractionCompleted reports whether a task has been completed.
func (b *Board) InteractionCompleted(k model.Interaction) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap.InteractionsCompleted[k]
}

// ClearInteractions wipes task flags and the guided point. Part of the
// between-scenario reset barrier.
func (b *Board) ClearInteractions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.InteractionsStarted = make(map[model.Interaction]bool)
	b.snap.InteractionsCompleted = make(map[model.Interaction]bool)
	b.snap.GuidedPoint = nil
}

// SetGuidedPoint stores the participant-designated landing point.
func (b *Board) SetGuidedPoint(p model.Coordinates) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.GuidedPoint = &p
}

// GuidedPoint returns the designated landing point, if any.
func (b *Board) GuidedPoint() (model.Coordinates, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.snap.GuidedPoint == nil {
		return model.Coordinates{}, false
	}
	return *b.snap.GuidedPoint, true
}

// Flight returns the mirrored flight state.
func (b *Board) Flight() model.FlightState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap.Flight
}

// Status returns the mirrored HMI status.
func (b *Board) Status() model.HMIStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap.Status
}

// Snapshot returns a deep copy of the board.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return deep.MustCopy(b.snap)
}
