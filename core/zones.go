package core

import (
	"github.com/carrywater/dronesim-ar-sub000/internal/rng"
	"github.com/carrywater/dronesim-ar-sub000/model"
)

// ZonePicker hands out delivery points inside a rectangular ground-level
// zone. Randomized picks come from the session RNG, so a replayed seed
// reproduces the same attempt positions.
type ZonePicker struct {
	bounds model.ZoneBounds
	rand   *rng.Rand
}

// NewZonePicker builds a picker over the given bounds. A nil rand makes
// Pick degrade to Center, which keeps a misconfigured run alive.
func NewZonePicker(bounds model.ZoneBounds, r *rng.Rand) *ZonePicker {
	return &ZonePicker{bounds: bounds, rand: r}
}

// Pick returns a uniformly random point inside the zone at ground level.
func (z *ZonePicker) Pick() Vec3 {
	if z.rand == nil {
		return z.Center()
	}
	return Vec3{
		X: z.rand.Range(z.bounds.MinX, z.bounds.MaxX),
		Z: z.rand.Range(z.bounds.MinZ, z.bounds.MaxZ),
	}
}

// Center returns the zone's middle at ground level.
func (z *ZonePicker) Center() Vec3 {
	return Vec3{
		X: (z.bounds.MinX + z.bounds.MaxX) / 2,
		Z: (z.bounds.MinZ + z.bounds.MaxZ) / 2,
	}
}

// Contains reports whether a point lies inside the zone, height ignored.
func (z *ZonePicker) Contains(p Vec3) bool {
	return p.X >= z.bounds.MinX && p.X <= z.bounds.MaxX &&
		p.Z >= z.bounds.MinZ && p.Z <= z.bounds.MaxZ
}
