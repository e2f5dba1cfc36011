// Package recorder captures a session to a replayable stream: one pose
// row per sampled tick plus every event published on the session board.
package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/carrywater/dronesim-ar-sub000/internal/logging"
	"github.com/carrywater/dronesim-ar-sub000/kb"
)

// Row is one sampled line of drone and session state.
type Row struct {
	// SessionID ties the row to a run.
	SessionID string `json:"session_id" msgpack:"sid"`

	// Tick is the engine tick index the row was sampled at.
	Tick uint64 `json:"tick" msgpack:"t"`

	// SimMS is simulated milliseconds since the session clock started.
	SimMS int64 `json:"sim_ms" msgpack:"ms"`

	// Scenario, Flight and Status are the board labels at sample time.
	Scenario string `json:"scenario" msgpack:"sc"`
	Flight   string `json:"flight" msgpack:"fl"`
	Status   string `json:"status" msgpack:"st"`

	// X, Y, Z is the rendered drone position in metres.
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`

	// YawDeg is the rendered heading in degrees.
	YawDeg float64 `json:"yaw_deg" msgpack:"yaw"`

	// SwayX, SwayY, SwayZ is the hover-realism offset baked into the pose.
	SwayX float64 `json:"sway_x" msgpack:"swx"`
	SwayY float64 `json:"sway_y" msgpack:"swy"`
	SwayZ float64 `json:"sway_z" msgpack:"swz"`

	// LegAngleDeg and RotorFrac mirror the mechanical sub-state.
	LegAngleDeg float64 `json:"leg_angle_deg" msgpack:"leg"`
	RotorFrac   float64 `json:"rotor_frac" msgpack:"rot"`

	// Attempts is the landing attempt count of the active scenario.
	Attempts int `json:"attempts" msgpack:"att"`
}

// Event is one board event line.
type Event struct {
	SimMS  int64  `json:"sim_ms" msgpack:"ms"`
	Kind   string `json:"kind" msgpack:"k"`
	Detail string `json:"detail" msgpack:"d"`
}

// Record is the stream envelope. Exactly one of Row or Event is set.
type Record struct {
	Row   *Row   `json:"row,omitempty" msgpack:"row,omitempty"`
	Event *Event `json:"event,omitempty" msgpack:"event,omitempty"`
}

// Recorder samples the session board into a Writer. Sampling runs on the
// tick goroutine; the recorder is not safe for concurrent use.
type Recorder struct {
	w     Writer
	log   logging.Logger
	board *kb.Board

	start       time.Time
	sampleEvery int

	tick     uint64
	writeErr error
}

// Option customises Recorder construction.
type Option func(*Recorder)

// WithSampleEvery decimates pose rows to one every n ticks. Events are
// never decimated.
func WithSampleEvery(n int) Option {
	return func(r *Recorder) { r.sampleEvery = n }
}

// NewRecorder builds a recorder writing to w. start anchors the simulated
// millisecond column; pass the session clock's start time.
func NewRecorder(w Writer, start time.Time, log logging.Logger, opts ...Option) *Recorder {
	if log == nil {
		log = logging.Noop()
	}
	r := &Recorder{
		w:           w,
		log:         log.With(logging.String("component", "recorder")),
		start:       start,
		sampleEvery: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sampleEvery < 1 {
		r.sampleEvery = 1
	}
	return r
}

// Observe attaches the recorder to a board: events stream out as they are
// published, and Sample reads pose snapshots from it.
func (r *Recorder) Observe(board *kb.Board) {
	r.board = board
	board.Subscribe(r.handleEvent)
}

// Sample writes one pose row for the current tick, subject to decimation.
// Wire it to the engine as a per-tick sampler.
func (r *Recorder) Sample(now time.Time) {
	r.tick++
	if r.board == nil {
		return
	}
	if (r.tick-1)%uint64(r.sampleEvery) != 0 {
		return
	}

	snap := r.board.Snapshot()
	row := Row{
		SessionID:   snap.SessionID,
		Tick:        r.tick,
		SimMS:       now.Sub(r.start).Milliseconds(),
		Scenario:    snap.Scenario.String(),
		Flight:      snap.Flight.String(),
		Status:      snap.Status.String(),
		X:           snap.Pose.X,
		Y:           snap.Pose.Y,
		Z:           snap.Pose.Z,
		YawDeg:      snap.YawDeg,
		SwayX:       snap.Sway.X,
		SwayY:       snap.Sway.Y,
		SwayZ:       snap.Sway.Z,
		LegAngleDeg: snap.LegAngleDeg,
		RotorFrac:   snap.RotorFrac,
		Attempts:    snap.Attempts,
	}
	r.write(Record{Row: &row})
}

func (r *Recorder) handleEvent(ev kb.Event) {
	rec := Event{
		SimMS:  ev.At.Sub(r.start).Milliseconds(),
		Kind:   ev.Kind.String(),
		Detail: eventDetail(ev),
	}
	r.write(Record{Event: &rec})
}

func (r *Recorder) write(rec Record) {
	if err := r.w.Write(rec); err != nil {
		if r.writeErr == nil {
			r.writeErr = err
		}
		r.log.Warn(context.Background(), "record write failed", logging.Err(err))
	}
}

// Close flushes and closes the underlying writer. The first write error
// seen during the run, if any, takes precedence over the close error.
func (r *Recorder) Close() error {
	closeErr := r.w.Close()
	if r.writeErr != nil {
		return r.writeErr
	}
	return closeErr
}

func eventDetail(ev kb.Event) string {
	switch ev.Kind {
	case kb.EventSessionStarted:
		return "session started"
	case kb.EventSessionEnded:
		return ev.Outcome
	case kb.EventScenarioStarted:
		return fmt.Sprintf("%s step %d", ev.Scenario, ev.Step)
	case kb.EventScenarioEnded:
		return fmt.Sprintf("%s %s", ev.Scenario, ev.Outcome)
	case kb.EventFlightChanged:
		return fmt.Sprintf("%s->%s", ev.FlightFrom, ev.FlightTo)
	case kb.EventStatusChanged:
		return ev.Status.String()
	case kb.EventAttempt:
		return fmt.Sprintf("attempt %d confidence %.2f", ev.Attempt, ev.Confidence)
	case kb.EventInteractionStarted, kb.EventInteractionCompleted:
		return ev.Interaction.String()
	default:
		return ""
	}
}
