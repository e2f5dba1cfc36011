package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestSimCollectorCountsRecordedEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.RecordTransition("idle", "hover")
	collector.RecordTransition("idle", "hover")
	collector.RecordTransition("hover", "cruise")
	collector.RecordStatus("prompt-confirm")
	collector.RecordLandingAttempt("c0-abort", "aborted")
	collector.RecordBoardEvent("attempt")
	collector.RecordBoardEvent("attempt")

	if got := testutil.ToFloat64(collector.FlightTransitions.WithLabelValues("idle", "hover")); got != 2 {
		t.Fatalf("drone_flight_transitions_total{idle,hover} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.FlightTransitions.WithLabelValues("hover", "cruise")); got != 1 {
		t.Fatalf("drone_flight_transitions_total{hover,cruise} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.StatusChanges.WithLabelValues("prompt-confirm")); got != 1 {
		t.Fatalf("hmi_status_changes_total{prompt-confirm} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.LandingAttempts.WithLabelValues("c0-abort", "aborted")); got != 1 {
		t.Fatalf("landing_attempts_total{c0-abort,aborted} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.BoardEvents.WithLabelValues("attempt")); got != 2 {
		t.Fatalf("session_board_events_total{attempt} = %v, want 2", got)
	}
}

func TestSimCollectorObservesDurations(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.RecordScenarioDuration("c1-confirm", 21.5)
	collector.RecordScenarioDuration("c1-confirm", 24.0)
	collector.ObserveTickDuration(0.0003)
	collector.SetSimTime(45.5)

	if count := histogramSampleCount(t, reg, "scenario_duration_seconds", map[string]string{
		"scenario": "c1-confirm",
	}); count != 2 {
		t.Fatalf("scenario_duration_seconds sample_count = %d, want 2", count)
	}
	if count := histogramSampleCount(t, reg, "engine_tick_duration_seconds", nil); count != 1 {
		t.Fatalf("engine_tick_duration_seconds sample_count = %d, want 1", count)
	}
	if got := testutil.ToFloat64(collector.SimTime); got != 45.5 {
		t.Fatalf("sim_time_seconds = %v, want 45.5", got)
	}
}

func TestSimCollectorToleratesDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector (second): %v", err)
	}

	first.RecordTransition("idle", "hover")
	second.RecordTransition("idle", "hover")

	if got := testutil.ToFloat64(second.FlightTransitions.WithLabelValues("idle", "hover")); got != 2 {
		t.Fatalf("shared counter after re-registration = %v, want 2", got)
	}
}

func TestMetricsHandlerExposesSimMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.RecordTransition("idle", "hover")
	collector.RecordStatus("landing")
	collector.RecordScenarioDuration("c2-guidance", 30)
	collector.RecordLandingAttempt("c2-guidance", "completed")
	collector.RecordBoardEvent("scenario-started")
	collector.ObserveTickDuration(0.0001)
	collector.SetSimTime(12)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"drone_flight_transitions_total",
		"hmi_status_changes_total",
		"scenario_duration_seconds",
		"landing_attempts_total",
		"session_board_events_total",
		"engine_tick_duration_seconds",
		"sim_time_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestNilCollectorRecordsAreSafe(t *testing.T) {
	var collector *SimCollector
	collector.RecordTransition("idle", "hover")
	collector.RecordStatus("idle")
	collector.RecordScenarioDuration("c0-abort", 1)
	collector.RecordLandingAttempt("c0-abort", "aborted")
	collector.RecordBoardEvent("attempt")
	collector.ObserveTickDuration(0.001)
	collector.SetSimTime(1)
	if collector.Gatherer() != nil {
		t.Fatalf("nil collector gatherer = %v, want nil", collector.Gatherer())
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
