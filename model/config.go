package model

import (
	"fmt"
	"time"
)

// Coordinates is a point in scene space, metres, Y up.
type Coordinates struct {
	X float64
	Y float64
	Z float64
}

// ZoneBounds is the rectangular delivery zone on the ground plane (Y = 0).
type ZoneBounds struct {
	MinX float64
	MaxX float64
	MinZ float64
	MaxZ float64
}

// DroneConfig holds the flight envelope of the simulated drone.
type DroneConfig struct {
	// CruiseSpeed is the horizontal travel speed in m/s.
	CruiseSpeed float64
	// LandingSpeed is the descent speed toward a landing point in m/s.
	LandingSpeed float64
	// DescentSpeed sizes the climb back out of a cancelled landing in m/s.
	DescentSpeed float64
	// HoverHeight is the working altitude in metres.
	HoverHeight float64
	// AbortClimbHeight is the altitude at which an aborting drone leaves the scene.
	AbortClimbHeight float64
	// ArrivalEpsilon is the distance in metres below which a move counts as arrived.
	ArrivalEpsilon float64
	// HoverAbortTimeout arms the hover watchdog that ends a stalled approach.
	// Zero disables the timer.
	HoverAbortTimeout time.Duration

	LegExtendedDeg float64
	LegRetractedDeg float64
	// LegSpeedDeg is the landing-gear angular speed in degrees per second.
	LegSpeedDeg float64
	// YawRateDeg limits how fast the drone turns toward a demanded heading.
	YawRateDeg float64
	// RotorSpinupTime is how long rotors take to reach full speed from idle.
	RotorSpinupTime time.Duration
}

// SwayConfig parameterises the hover-realism offset generator.
type SwayConfig struct {
	// Amplitude is the maximum positional wander in metres.
	Amplitude float64
	// YawAmplitudeDeg is the maximum heading wander in degrees.
	YawAmplitudeDeg float64
	// Frequency is how fast the noise field is traversed, in Hz.
	Frequency float64

	PerlinAlpha   float64
	PerlinBeta    float64
	PerlinOctaves int32

	// PID gains pulling the offset toward the wandering noise target.
	KP float64
	KI float64
	KD float64
	// OutputLimit clamps the per-axis correction velocity in m/s.
	OutputLimit float64
	// IntegralLimit bounds the accumulated integral term.
	IntegralLimit float64
}

// SessionConfig describes one full study session.
type SessionConfig struct {
	ParticipantIndex int
	// Seed drives every random stream of the run. Zero derives a fresh seed
	// at startup so the run is still replayable from the logged value.
	Seed uint64

	Mode ScenarioMode
	// Scenario is the condition run when Mode == ModeSingle.
	Scenario Scenario
	// Order is the condition order run when Mode == ModeFixed.
	Order []Scenario

	// MaxLandingAttempts bounds the C-0 land/abort loop.
	MaxLandingAttempts int
	// ConfidenceThreshold is the landing-confidence bar. C-0's scripted
	// confidence stays strictly below it.
	ConfidenceThreshold float64
	// ConfidenceScript optionally fixes the per-attempt confidence values.
	// When shorter than MaxLandingAttempts the remainder is drawn at random
	// below the threshold.
	ConfidenceScript []float64

	// ConfirmDelay and GuidanceDelay are how long the scripted participant
	// takes to complete each interaction, in simulated time.
	ConfirmDelay  time.Duration
	GuidanceDelay time.Duration

	Zone ZoneBounds

	// LandingDwell is the mid-descent pause while confidence is evaluated.
	LandingDwell time.Duration
	// RetryDwell separates C-0 attempts.
	RetryDwell time.Duration
	// ResetDwell pads the between-scenario reset barrier.
	ResetDwell time.Duration
	// PhaseTimeout bounds any single wait inside a scenario. Zero means
	// wait forever, which reproduces the behaviour of a drone that never
	// reports arrival.
	PhaseTimeout time.Duration

	Drone DroneConfig
	Sway  SwayConfig

	// SampleEvery decimates the flight recorder: a row every Nth tick.
	SampleEvery int
}

// DefaultSessionConfig mirrors the field-study parameter set.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ParticipantIndex: 0,
		Mode:             ModeLatin,
		Scenario:         ScenarioConfirm,

		MaxLandingAttempts:  3,
		ConfidenceThreshold: 0.7,

		ConfirmDelay:  4 * time.Second,
		GuidanceDelay: 6 * time.Second,

		Zone: ZoneBounds{MinX: -4, MaxX: 4, MinZ: 2, MaxZ: 10},

		LandingDwell: 2 * time.Second,
		RetryDwell:   3 * time.Second,
		ResetDwell:   2 * time.Second,
		PhaseTimeout: 120 * time.Second,

		Drone: DroneConfig{
			CruiseSpeed:       2.0,
			LandingSpeed:      0.6,
			DescentSpeed:      0.8,
			HoverHeight:       2.5,
			AbortClimbHeight:  8.0,
			ArrivalEpsilon:    0.05,
			HoverAbortTimeout: 12 * time.Second,
			LegExtendedDeg:    85,
			LegRetractedDeg:   0,
			LegSpeedDeg:       120,
			YawRateDeg:        90,
			RotorSpinupTime:   1500 * time.Millisecond,
		},
		Sway: SwayConfig{
			Amplitude:       0.08,
			YawAmplitudeDeg: 4,
			Frequency:       0.35,
			PerlinAlpha:     2,
			PerlinBeta:      2,
			PerlinOctaves:   3,
			KP:              3.5,
			KI:              0.4,
			KD:              0.25,
			OutputLimit:     0.5,
			IntegralLimit:   0.2,
		},

		SampleEvery: 1,
	}
}

func errUnknownLabel(kind, got string) error {
	return fmt.Errorf("unknown %s %q", kind, got)
}
