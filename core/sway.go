package core

import (
	"github.com/aquilax/go-perlin"

	"github.com/carrywater/dronesim-ar-sub000/model"
)

// pid is one axis of the sway controller. The integral is clamped so a
// long disable period cannot wind up a kick for re-enable.
type pid struct {
	kp, ki, kd float64
	outLimit   float64
	intLimit   float64

	integral float64
	lastErr  float64
}

func (p *pid) update(err, dt float64) float64 {
	p.integral += err * dt
	p.integral = clamp(p.integral, -p.intLimit, p.intLimit)

	deriv := 0.0
	if dt > 0 {
		deriv = (err - p.lastErr) / dt
	}
	p.lastErr = err

	return clamp(p.kp*err+p.ki*p.integral+p.kd*deriv, -p.outLimit, p.outLimit)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Sway generates the small wandering offset that keeps a hovering drone
// from looking nailed to a rail. A Perlin field sampled along advancing
// time gives each axis a smooth roaming target; a PID per axis chases it.
// Disabling doesn't zero the offset, it zeroes the target, so the offset
// decays through the same controller instead of snapping.
type Sway struct {
	cfg     model.SwayConfig
	noise   *perlin.Perlin
	enabled bool

	t    float64
	axes [4]pid // x, y, z, yaw

	offset Vec3
	yawDeg float64
}

// Channel offsets into the noise field, far enough apart that the axes
// don't visibly correlate.
var swayChannels = [4]float64{0, 17.31, 41.7, 63.9}

// NewSway builds a sway generator. Equal (cfg, seed) pairs replay the
// same offsets for the same tick sequence.
func NewSway(cfg model.SwayConfig, seed int64) *Sway {
	s := &Sway{
		cfg:   cfg,
		noise: perlin.NewPerlin(cfg.PerlinAlpha, cfg.PerlinBeta, cfg.PerlinOctaves, seed),
	}
	for i := range s.axes {
		s.axes[i] = pid{
			kp:       cfg.KP,
			ki:       cfg.KI,
			kd:       cfg.KD,
			outLimit: cfg.OutputLimit,
			intLimit: cfg.IntegralLimit,
		}
	}
	return s
}

// SetEnabled turns target generation on or off.
func (s *Sway) SetEnabled(on bool) {
	s.enabled = on
}

// Enabled reports whether the generator is chasing noise targets.
func (s *Sway) Enabled() bool {
	return s.enabled
}

// Update advances the field by dt seconds and returns the new offset.
func (s *Sway) Update(dt float64) (Vec3, float64) {
	if dt <= 0 {
		return s.offset, s.yawDeg
	}
	s.t += dt * s.cfg.Frequency

	var targets [4]float64
	if s.enabled {
		for i, ch := range swayChannels {
			n := clamp(s.noise.Noise2D(s.t, ch), -1, 1)
			if i == 3 {
				targets[i] = n * s.cfg.YawAmplitudeDeg
			} else {
				targets[i] = n * s.cfg.Amplitude
			}
		}
	}

	cur := [4]float64{s.offset.X, s.offset.Y, s.offset.Z, s.yawDeg}
	for i := range cur {
		vel := s.axes[i].update(targets[i]-cur[i], dt)
		cur[i] += vel * dt
	}
	s.offset = Vec3{X: cur[0], Y: cur[1], Z: cur[2]}
	s.yawDeg = cur[3]
	return s.offset, s.yawDeg
}

// Offset returns the last computed positional offset.
func (s *Sway) Offset() Vec3 {
	return s.offset
}

// YawOffsetDeg returns the last computed heading offset.
func (s *Sway) YawOffsetDeg() float64 {
	return s.yawDeg
}
