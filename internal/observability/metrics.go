package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles the Prometheus metrics for one simulation process.
// Its recording methods match the narrow metrics interfaces declared next
// to the components that call them, so a single collector can be handed to
// the drone, the HMI, the orchestrator, the engine, and the session board.
type SimCollector struct {
	gatherer prometheus.Gatherer

	FlightTransitions *prometheus.CounterVec
	StatusChanges     *prometheus.CounterVec
	ScenarioDurations *prometheus.HistogramVec
	LandingAttempts   *prometheus.CounterVec
	BoardEvents       *prometheus.CounterVec
	TickDurations     prometheus.Histogram
	SimTime           prometheus.Gauge
}

// NewSimCollector registers the simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drone_flight_transitions_total",
		Help: "Total number of drone flight state transitions, labeled by source and destination state.",
	}, []string{"from", "to"})
	transitions, err := registerCounterVec(reg, transitions, "drone_flight_transitions_total")
	if err != nil {
		return nil, err
	}

	statuses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hmi_status_changes_total",
		Help: "Total number of HMI status changes, labeled by the status entered.",
	}, []string{"status"})
	statuses, err = registerCounterVec(reg, statuses, "hmi_status_changes_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scenario_duration_seconds",
		Help:    "Wall-clock simulation time spent per scenario, labeled by condition.",
		Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180, 300},
	}, []string{"scenario"})
	durations, err = registerHistogramVec(reg, durations, "scenario_duration_seconds")
	if err != nil {
		return nil, err
	}

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "landing_attempts_total",
		Help: "Total number of landing attempts, labeled by scenario and outcome.",
	}, []string{"scenario", "outcome"})
	attempts, err = registerCounterVec(reg, attempts, "landing_attempts_total")
	if err != nil {
		return nil, err
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_board_events_total",
		Help: "Total number of events published on the session board, labeled by kind.",
	}, []string{"kind"})
	events, err = registerCounterVec(reg, events, "session_board_events_total")
	if err != nil {
		return nil, err
	}

	ticks := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_tick_duration_seconds",
		Help:    "Wall-clock duration of one engine tick.",
		Buckets: []float64{0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
	})
	ticks, err = registerHistogram(reg, ticks, "engine_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_time_seconds",
		Help: "Simulated seconds elapsed since the session clock started.",
	}), "sim_time_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:          gatherer,
		FlightTransitions: transitions,
		StatusChanges:     statuses,
		ScenarioDurations: durations,
		LandingAttempts:   attempts,
		BoardEvents:       events,
		TickDurations:     ticks,
		SimTime:           simTime,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := prometheus.Gatherer(prometheus.DefaultGatherer)
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordTransition counts one flight state transition.
func (c *SimCollector) RecordTransition(from, to string) {
	if c == nil || c.FlightTransitions == nil {
		return
	}
	c.FlightTransitions.WithLabelValues(from, to).Inc()
}

// RecordStatus counts one HMI status change.
func (c *SimCollector) RecordStatus(status string) {
	if c == nil || c.StatusChanges == nil {
		return
	}
	c.StatusChanges.WithLabelValues(status).Inc()
}

// RecordScenarioDuration records how long one scenario ran, in simulated
// seconds.
func (c *SimCollector) RecordScenarioDuration(scenario string, seconds float64) {
	if c == nil || c.ScenarioDurations == nil {
		return
	}
	c.ScenarioDurations.WithLabelValues(scenario).Observe(seconds)
}

// RecordLandingAttempt counts one landing attempt with its outcome.
func (c *SimCollector) RecordLandingAttempt(scenario, outcome string) {
	if c == nil || c.LandingAttempts == nil {
		return
	}
	c.LandingAttempts.WithLabelValues(scenario, outcome).Inc()
}

// RecordBoardEvent counts one session board event.
func (c *SimCollector) RecordBoardEvent(kind string) {
	if c == nil || c.BoardEvents == nil {
		return
	}
	c.BoardEvents.WithLabelValues(kind).Inc()
}

// ObserveTickDuration records the wall-clock cost of one engine tick.
func (c *SimCollector) ObserveTickDuration(seconds float64) {
	if c == nil || c.TickDurations == nil {
		return
	}
	c.TickDurations.Observe(seconds)
}

// SetSimTime updates the simulated-time gauge.
func (c *SimCollector) SetSimTime(seconds float64) {
	if c == nil || c.SimTime == nil {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	c.SimTime.Set(seconds)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
