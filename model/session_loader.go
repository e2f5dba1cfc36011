package model

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// File shapes are kept unexported so they can evolve freely. Durations are
// plain seconds in the file; study staff edit these by hand.
type sessionConfigJSON struct {
	ParticipantIndex *int     `json:"participant_index"`
	Seed             *uint64  `json:"seed"`
	Mode             string   `json:"mode"`     // "single" | "fixed" | "latin"
	Scenario         string   `json:"scenario"` // used when mode == "single"
	Order            []string `json:"order"`    // used when mode == "fixed"

	MaxLandingAttempts  int       `json:"max_landing_attempts"`
	ConfidenceThreshold float64   `json:"confidence_threshold"`
	ConfidenceScript    []float64 `json:"confidence_script"`

	ConfirmDelaySec  float64 `json:"confirm_delay_sec"`
	GuidanceDelaySec float64 `json:"guidance_delay_sec"`

	Zone *zoneJSON `json:"zone"`

	LandingDwellSec float64  `json:"landing_dwell_sec"`
	RetryDwellSec   float64  `json:"retry_dwell_sec"`
	ResetDwellSec   float64  `json:"reset_dwell_sec"`
	PhaseTimeoutSec *float64 `json:"phase_timeout_sec"` // explicit 0 waits forever

	Drone *droneJSON `json:"drone"`
	Sway  *swayJSON  `json:"sway"`

	SampleEvery *int `json:"sample_every"`
}

type zoneJSON struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinZ float64 `json:"min_z"`
	MaxZ float64 `json:"max_z"`
}

type droneJSON struct {
	CruiseSpeed          float64  `json:"cruise_speed"`
	LandingSpeed         float64  `json:"landing_speed"`
	DescentSpeed         float64  `json:"descent_speed"`
	HoverHeight          float64  `json:"hover_height"`
	AbortClimbHeight     float64  `json:"abort_climb_height"`
	ArrivalEpsilon       float64  `json:"arrival_epsilon"`
	HoverAbortTimeoutSec *float64 `json:"hover_abort_timeout_sec"` // explicit 0 disarms
	LegExtendedDeg       float64  `json:"leg_extended_deg"`
	LegRetractedDeg      *float64 `json:"leg_retracted_deg"`
	LegSpeedDeg          float64  `json:"leg_speed_deg"`
	YawRateDeg           float64  `json:"yaw_rate_deg"`
	RotorSpinupSec       float64  `json:"rotor_spinup_sec"`
}

type swayJSON struct {
	Amplitude       float64 `json:"amplitude"`
	YawAmplitudeDeg float64 `json:"yaw_amplitude_deg"`
	Frequency       float64 `json:"frequency"`
	PerlinAlpha     float64 `json:"perlin_alpha"`
	PerlinBeta      float64 `json:"perlin_beta"`
	PerlinOctaves   int32   `json:"perlin_octaves"`
	KP              float64 `json:"kp"`
	KI              float64 `json:"ki"`
	KD              float64 `json:"kd"`
	OutputLimit     float64 `json:"output_limit"`
	IntegralLimit   float64 `json:"integral_limit"`
}

// LoadSessionConfig reads a session configuration from r, overlaying it on
// DefaultSessionConfig.
//
// It deliberately fails only on JSON / structural errors. Unknown enum
// labels and out-of-range numbers are replaced by their defaults and
// reported in the returned warnings so the caller can log them; a bad
// config should degrade a session, never kill it.
func LoadSessionConfig(r io.Reader) (SessionConfig, []string, error) {
	cfg := DefaultSessionConfig()

	var raw sessionConfigJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return cfg, nil, fmt.Errorf("decoding session config: %w", err)
	}

	var warns []string
	warnf := func(format string, args ...any) {
		warns = append(warns, fmt.Sprintf(format, args...))
	}

	if raw.ParticipantIndex != nil {
		if *raw.ParticipantIndex < 0 {
			warnf("participant_index %d is negative, using %d", *raw.ParticipantIndex, cfg.ParticipantIndex)
		} else {
			cfg.ParticipantIndex = *raw.ParticipantIndex
		}
	}
	if raw.Seed != nil {
		cfg.Seed = *raw.Seed
	}
	if raw.Mode != "" {
		mode, err := ParseMode(raw.Mode)
		if err != nil {
			warnf("%v, using %q", err, mode)
		}
		cfg.Mode = mode
	}
	if raw.Scenario != "" {
		sc, err := ParseScenario(raw.Scenario)
		if err != nil {
			warnf("%v, using %q", err, sc)
		}
		cfg.Scenario = sc
	}
	if len(raw.Order) > 0 {
		order := make([]Scenario, 0, len(raw.Order))
		for _, label := range raw.Order {
			sc, err := ParseScenario(label)
			if err != nil {
				warnf("order entry: %v, using %q", err, sc)
			}
			order = append(order, sc)
		}
		cfg.Order = order
	}

	if raw.MaxLandingAttempts > 0 {
		cfg.MaxLandingAttempts = raw.MaxLandingAttempts
	} else if raw.MaxLandingAttempts < 0 {
		warnf("max_landing_attempts %d is negative, using %d", raw.MaxLandingAttempts, cfg.MaxLandingAttempts)
	}
	if raw.ConfidenceThreshold > 0 && raw.ConfidenceThreshold <= 1 {
		cfg.ConfidenceThreshold = raw.ConfidenceThreshold
	} else if raw.ConfidenceThreshold != 0 {
		warnf("confidence_threshold %v outside (0,1], using %v", raw.ConfidenceThreshold, cfg.ConfidenceThreshold)
	}
	if len(raw.ConfidenceScript) > 0 {
		cfg.ConfidenceScript = raw.ConfidenceScript
	}

	cfg.ConfirmDelay = overlaySeconds(cfg.ConfirmDelay, raw.ConfirmDelaySec, "confirm_delay_sec", warnf)
	cfg.GuidanceDelay = overlaySeconds(cfg.GuidanceDelay, raw.GuidanceDelaySec, "guidance_delay_sec", warnf)
	cfg.LandingDwell = overlaySeconds(cfg.LandingDwell, raw.LandingDwellSec, "landing_dwell_sec", warnf)
	cfg.RetryDwell = overlaySeconds(cfg.RetryDwell, raw.RetryDwellSec, "retry_dwell_sec", warnf)
	cfg.ResetDwell = overlaySeconds(cfg.ResetDwell, raw.ResetDwellSec, "reset_dwell_sec", warnf)
	if raw.PhaseTimeoutSec != nil {
		if *raw.PhaseTimeoutSec < 0 {
			warnf("phase_timeout_sec %v is negative, using %v", *raw.PhaseTimeoutSec, cfg.PhaseTimeout.Seconds())
		} else {
			cfg.PhaseTimeout = secondsToDuration(*raw.PhaseTimeoutSec)
		}
	}

	if raw.Zone != nil {
		z := ZoneBounds{MinX: raw.Zone.MinX, MaxX: raw.Zone.MaxX, MinZ: raw.Zone.MinZ, MaxZ: raw.Zone.MaxZ}
		if z.MaxX <= z.MinX || z.MaxZ <= z.MinZ {
			warnf("zone bounds %+v are degenerate, using %+v", z, cfg.Zone)
		} else {
			cfg.Zone = z
		}
	}

	if raw.Drone != nil {
		overlayDrone(&cfg.Drone, raw.Drone, warnf)
	}
	if raw.Sway != nil {
		overlaySway(&cfg.Sway, raw.Sway, warnf)
	}

	if raw.SampleEvery != nil {
		if *raw.SampleEvery < 1 {
			warnf("sample_every %d is below 1, using %d", *raw.SampleEvery, cfg.SampleEvery)
		} else {
			cfg.SampleEvery = *raw.SampleEvery
		}
	}

	return cfg, warns, nil
}

func overlayDrone(dst *DroneConfig, raw *droneJSON, warnf func(string, ...any)) {
	dst.CruiseSpeed = overlayPositive(dst.CruiseSpeed, raw.CruiseSpeed, "drone.cruise_speed", warnf)
	dst.LandingSpeed = overlayPositive(dst.LandingSpeed, raw.LandingSpeed, "drone.landing_speed", warnf)
	dst.DescentSpeed = overlayPositive(dst.DescentSpeed, raw.DescentSpeed, "drone.descent_speed", warnf)
	dst.HoverHeight = overlayPositive(dst.HoverHeight, raw.HoverHeight, "drone.hover_height", warnf)
	dst.AbortClimbHeight = overlayPositive(dst.AbortClimbHeight, raw.AbortClimbHeight, "drone.abort_climb_height", warnf)
	dst.ArrivalEpsilon = overlayPositive(dst.ArrivalEpsilon, raw.ArrivalEpsilon, "drone.arrival_epsilon", warnf)
	if raw.HoverAbortTimeoutSec != nil {
		if *raw.HoverAbortTimeoutSec < 0 {
			warnf("drone.hover_abort_timeout_sec %v is negative, using %v", *raw.HoverAbortTimeoutSec, dst.HoverAbortTimeout.Seconds())
		} else {
			dst.HoverAbortTimeout = secondsToDuration(*raw.HoverAbortTimeoutSec)
		}
	}
	dst.LegExtendedDeg = overlayPositive(dst.LegExtendedDeg, raw.LegExtendedDeg, "drone.leg_extended_deg", warnf)
	if raw.LegRetractedDeg != nil {
		dst.LegRetractedDeg = *raw.LegRetractedDeg
	}
	dst.LegSpeedDeg = overlayPositive(dst.LegSpeedDeg, raw.LegSpeedDeg, "drone.leg_speed_deg", warnf)
	dst.YawRateDeg = overlayPositive(dst.YawRateDeg, raw.YawRateDeg, "drone.yaw_rate_deg", warnf)
	if raw.RotorSpinupSec > 0 {
		dst.RotorSpinupTime = secondsToDuration(raw.RotorSpinupSec)
	} else if raw.RotorSpinupSec < 0 {
		warnf("drone.rotor_spinup_sec %v is negative, using %v", raw.RotorSpinupSec, dst.RotorSpinupTime.Seconds())
	}
}

func overlaySway(dst *SwayConfig, raw *swayJSON, warnf func(string, ...any)) {
	dst.Amplitude = overlayPositive(dst.Amplitude, raw.Amplitude, "sway.amplitude", warnf)
	dst.YawAmplitudeDeg = overlayPositive(dst.YawAmplitudeDeg, raw.YawAmplitudeDeg, "sway.yaw_amplitude_deg", warnf)
	dst.Frequency = overlayPositive(dst.Frequency, raw.Frequency, "sway.frequency", warnf)
	dst.PerlinAlpha = overlayPositive(dst.PerlinAlpha, raw.PerlinAlpha, "sway.perlin_alpha", warnf)
	dst.PerlinBeta = overlayPositive(dst.PerlinBeta, raw.PerlinBeta, "sway.perlin_beta", warnf)
	if raw.PerlinOctaves > 0 {
		dst.PerlinOctaves = raw.PerlinOctaves
	} else if raw.PerlinOctaves < 0 {
		warnf("sway.perlin_octaves %d is negative, using %d", raw.PerlinOctaves, dst.PerlinOctaves)
	}
	dst.KP = overlayPositive(dst.KP, raw.KP, "sway.kp", warnf)
	if raw.KI != 0 {
		dst.KI = raw.KI
	}
	if raw.KD != 0 {
		dst.KD = raw.KD
	}
	dst.OutputLimit = overlayPositive(dst.OutputLimit, raw.OutputLimit, "sway.output_limit", warnf)
	dst.IntegralLimit = overlayPositive(dst.IntegralLimit, raw.IntegralLimit, "sway.integral_limit", warnf)
}

// overlayPositive keeps def when raw is zero (unset) and warns on negatives.
func overlayPositive(def, raw float64, name string, warnf func(string, ...any)) float64 {
	if raw > 0 {
		return raw
	}
	if raw < 0 {
		warnf("%s %v is negative, using %v", name, raw, def)
	}
	return def
}

func overlaySeconds(def time.Duration, rawSec float64, name string, warnf func(string, ...any)) time.Duration {
	if rawSec > 0 {
		return secondsToDuration(rawSec)
	}
	if rawSec < 0 {
		warnf("%s %v is negative, using %v", name, rawSec, def.Seconds())
	}
	return def
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
