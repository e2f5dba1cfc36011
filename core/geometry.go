package core

import (
	"math"

	"github.com/carrywater/dronesim-ar-sub000/model"
)

// Vec3 is a point or offset in scene space, metres, Y up.
type Vec3 struct {
	X, Y, Z float64
}

// FromCoordinates converts the plain data form used in configs and
// telemetry into a workable vector.
func FromCoordinates(c model.Coordinates) Vec3 {
	return Vec3{X: c.X, Y: c.Y, Z: c.Z}
}

// Coordinates returns the plain data form of v.
func (v Vec3) Coordinates() model.Coordinates {
	return model.Coordinates{X: v.X, Y: v.Y, Z: v.Z}
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// PlanarDistanceTo returns the ground-plane (XZ) distance between two
// points, ignoring altitude.
func (v Vec3) PlanarDistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// WithY returns v with its altitude replaced.
func (v Vec3) WithY(y float64) Vec3 {
	return Vec3{X: v.X, Y: y, Z: v.Z}
}

// Lerp returns the linear interpolation between a and b at t. The caller
// is responsible for clamping t; Lerp itself extrapolates.
func Lerp(a, b Vec3, t float64) Vec3 {
	return Vec3{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
	}
}

// HeadingDeg returns the ground-plane heading from `from` toward `to` in
// degrees, where 0° faces +Z and angles grow clockwise when seen from
// above. Coincident points (in XZ) report 0.
func HeadingDeg(from, to Vec3) float64 {
	dx := to.X - from.X
	dz := to.Z - from.Z
	if dx == 0 && dz == 0 {
		return 0
	}
	deg := math.Atan2(dx, dz) * 180.0 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// YawToward moves the heading `cur` toward `want` by at most maxStep
// degrees, taking the short way around the circle. All values in degrees.
func YawToward(cur, want, maxStep float64) float64 {
	diff := math.Mod(want-cur, 360)
	if diff > 180 {
		diff -= 360
	} else if diff < -180 {
		diff += 360
	}
	if math.Abs(diff) <= maxStep {
		return normalizeDeg(want)
	}
	if diff > 0 {
		return normalizeDeg(cur + maxStep)
	}
	return normalizeDeg(cur - maxStep)
}

func normalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
