package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/carrywater/dronesim-ar-sub000/internal/logging"
	"github.com/carrywater/dronesim-ar-sub000/internal/sched"
	"github.com/carrywater/dronesim-ar-sub000/model"
)

type testClock struct {
	mu  sync.RWMutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// capturingLogger records warn/error messages for assertions.
type capturingLogger struct {
	warns  []string
	errors []string
}

func (l *capturingLogger) Debug(context.Context, string, ...logging.Field) {}
func (l *capturingLogger) Info(context.Context, string, ...logging.Field)  {}
func (l *capturingLogger) Warn(_ context.Context, msg string, _ ...logging.Field) {
	l.warns = append(l.warns, msg)
}
func (l *capturingLogger) Error(_ context.Context, msg string, _ ...logging.Field) {
	l.errors = append(l.errors, msg)
}
func (l *capturingLogger) With(...logging.Field) logging.Logger { return l }

type transitionRecorder struct {
	transitions []string
}

func (r *transitionRecorder) RecordTransition(from, to string) {
	r.transitions = append(r.transitions, from+"->"+to)
}

type droneRig struct {
	clock *testClock
	sched sched.Scheduler
	drone *Drone
	log   *capturingLogger
	mets  *transitionRecorder
}

func newDroneRig(cfg model.DroneConfig, opts ...DroneOption) *droneRig {
	clock := &testClock{now: time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)}
	s := sched.New(clock)
	log := &capturingLogger{}
	mets := &transitionRecorder{}
	opts = append(opts, WithFlightMetrics(mets))
	return &droneRig{
		clock: clock,
		sched: s,
		drone: NewDrone(cfg, s, log, opts...),
		log:   log,
		mets:  mets,
	}
}

// step runs n ticks of dt, in engine order: timers first, then movement.
func (r *droneRig) step(dt time.Duration, n int) {
	for i := 0; i < n; i++ {
		r.clock.Advance(dt)
		r.sched.RunDue()
		r.drone.Update(dt.Seconds())
	}
}

// stepUntil steps until cond holds or the tick budget runs out.
func (r *droneRig) stepUntil(t *testing.T, dt time.Duration, maxTicks int, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		if cond() {
			return
		}
		r.step(dt, 1)
	}
	if !cond() {
		t.Fatalf("%s did not happen within %d ticks (state %v)", what, maxTicks, r.drone.State())
	}
}

func testDroneConfig() model.DroneConfig {
	cfg := model.DefaultSessionConfig().Drone
	cfg.HoverAbortTimeout = 0 // most tests don't want the watchdog
	return cfg
}

const tick = 50 * time.Millisecond

func TestTakeoffCruiseLandCycle(t *testing.T) {
	r := newDroneRig(testDroneConfig())
	d := r.drone

	if d.State() != model.FlightIdle {
		t.Fatalf("initial state = %v, want idle", d.State())
	}

	d.ReturnToHover()
	if d.State() != model.FlightHover {
		t.Fatalf("state after ReturnToHover = %v, want hover", d.State())
	}
	r.stepUntil(t, tick, 200, "hover climb", func() bool {
		pos := d.BasePos()
		return pos.Y > 2.4
	})

	target := Vec3{X: 3, Y: 0, Z: 4}
	d.StartCruiseTo(target)
	if d.State() != model.FlightCruise {
		t.Fatalf("state after StartCruiseTo = %v, want cruise", d.State())
	}
	r.stepUntil(t, tick, 400, "cruise arrival", func() bool {
		return d.State() == model.FlightHover
	})
	pos := d.BasePos()
	if pos.PlanarDistanceTo(target) > 0.05 {
		t.Fatalf("after cruise, planar distance to target = %v", pos.PlanarDistanceTo(target))
	}
	if pos.Y < 2.4 {
		t.Fatalf("cruise left hover height: y = %v", pos.Y)
	}

	d.BeginLanding(target)
	if d.State() != model.FlightLanding {
		t.Fatalf("state after BeginLanding = %v, want landing", d.State())
	}
	r.stepUntil(t, tick, 400, "touchdown", func() bool {
		return d.State() == model.FlightIdle
	})
	if got := d.BasePos().DistanceTo(target); got > 0.05 {
		t.Fatalf("landed %v away from the landing point", got)
	}
}

func TestLandAbortClimbsBackToHover(t *testing.T) {
	r := newDroneRig(testDroneConfig())
	d := r.drone

	d.ReturnToHover()
	r.stepUntil(t, tick, 200, "takeoff", func() bool { return d.BasePos().Y > 2.4 })

	spot := d.BasePos().WithY(0)
	d.BeginLanding(spot)
	r.step(tick, 20) // partway down
	if d.State() != model.FlightLanding {
		t.Fatalf("state = %v, want landing", d.State())
	}
	midY := d.BasePos().Y
	if midY >= 2.5 || midY <= 0 {
		t.Fatalf("mid-descent altitude = %v, want inside (0, 2.5)", midY)
	}

	d.LandAbort()
	if d.State() != model.FlightLandAbort {
		t.Fatalf("state after LandAbort = %v, want land-abort", d.State())
	}
	r.stepUntil(t, tick, 400, "climb back", func() bool { return d.State() == model.FlightHover })
	if y := d.BasePos().Y; y < 2.4 {
		t.Fatalf("back at hover but y = %v", y)
	}
}

func TestReturnToHoverFromEveryState(t *testing.T) {
	// Put the drone in each state, then force it home.
	prepare := map[string]func(r *droneRig){
		"idle": func(r *droneRig) {},
		"hover": func(r *droneRig) {
			r.drone.ReturnToHover()
			r.step(tick, 100)
		},
		"cruise": func(r *droneRig) {
			r.drone.ReturnToHover()
			r.step(tick, 100)
			r.drone.StartCruiseTo(Vec3{X: 10, Z: 10})
			r.step(tick, 5)
		},
		"landing": func(r *droneRig) {
			r.drone.ReturnToHover()
			r.step(tick, 100)
			r.drone.BeginLanding(r.drone.BasePos().WithY(0))
			r.step(tick, 5)
		},
		"land-abort": func(r *droneRig) {
			r.drone.ReturnToHover()
			r.step(tick, 100)
			r.drone.BeginLanding(r.drone.BasePos().WithY(0))
			r.step(tick, 20)
			r.drone.LandAbort()
			r.step(tick, 2)
		},
		"abort": func(r *droneRig) {
			r.drone.ReturnToHover()
			r.step(tick, 100)
			r.drone.Abort()
			r.step(tick, 2)
		},
	}

	for name, setup := range prepare {
		cfg := testDroneConfig()
		cfg.HoverAbortTimeout = 30 * time.Second
		r := newDroneRig(cfg)
		setup(r)

		r.drone.ReturnToHover()
		if got := r.drone.State(); got != model.FlightHover {
			t.Errorf("from %s: state after ReturnToHover = %v, want hover", name, got)
			continue
		}
		// No stale timer or transition may yank it out of hover within the
		// watchdog window once home; the fresh watchdog would fire at 30s,
		// so probe well below that.
		r.step(tick, 100) // 5 s
		if got := r.drone.State(); got != model.FlightHover {
			t.Errorf("from %s: drone left hover to %v after forced return", name, got)
		}
		if r.drone.Destroyed() {
			t.Errorf("from %s: drone destroyed after forced return", name)
		}
	}
}

func TestHoverWatchdogAborts(t *testing.T) {
	cfg := testDroneConfig()
	cfg.HoverAbortTimeout = 2 * time.Second
	r := newDroneRig(cfg)
	d := r.drone

	d.ReturnToHover()
	r.stepUntil(t, tick, 200, "takeoff", func() bool { return d.BasePos().Y > 2.4 })

	// Sit in hover past the timeout: the watchdog must fire the abort.
	r.stepUntil(t, tick, 100, "watchdog abort", func() bool {
		return d.State() == model.FlightAbort
	})

	r.stepUntil(t, tick, 400, "climb-out", func() bool { return d.Destroyed() })
	if y := d.BasePos().Y; y < 7.9 {
		t.Fatalf("destroyed at y = %v, want ~8", y)
	}

	// A destroyed drone ignores everything.
	d.ReturnToHover()
	if d.State() != model.FlightAbort || !d.Destroyed() {
		t.Fatalf("destroyed drone accepted a command")
	}
}

func TestHoverWatchdogCancelledByExit(t *testing.T) {
	cfg := testDroneConfig()
	cfg.HoverAbortTimeout = 2 * time.Second
	r := newDroneRig(cfg)
	d := r.drone

	d.ReturnToHover()
	// Takeoff takes 2.5 m / 0.8 m/s ~ 3.1 s; 80 ticks of 50 ms puts the
	// drone settled in hover with the watchdog armed.
	r.step(tick, 80)
	if d.State() != model.FlightHover {
		t.Fatalf("not hovering after takeoff, state = %v", d.State())
	}

	// Leave hover before the timeout; the pending watchdog must not fire
	// later in cruise or the following hover.
	d.StartCruiseTo(Vec3{X: 2, Z: 2})
	r.step(tick, 60) // old deadline passes mid-cruise
	if d.State() == model.FlightAbort {
		t.Fatalf("stale watchdog fired after hover exit")
	}
	r.stepUntil(t, tick, 400, "arrival", func() bool { return d.State() == model.FlightHover })
	if d.Destroyed() {
		t.Fatalf("drone destroyed by stale watchdog")
	}
}

func TestLegsAnimateIndependently(t *testing.T) {
	r := newDroneRig(testDroneConfig())
	d := r.drone

	if !d.LegsRetracted() {
		t.Fatalf("legs not retracted at start")
	}
	d.ExtendLegs()
	if !d.LegsAnimating() {
		t.Fatalf("legs not animating after ExtendLegs")
	}
	// 85 deg at 120 deg/s is ~0.71 s.
	r.step(tick, 20)
	if !d.LegsExtended() {
		t.Fatalf("legs not extended after 1 s, angle = %v", d.LegAngleDeg())
	}

	// Gear keeps animating while grounded and while flying.
	d.RetractLegs()
	d.ReturnToHover()
	r.step(tick, 20)
	if !d.LegsRetracted() {
		t.Fatalf("legs not retracted after 1 s, angle = %v", d.LegAngleDeg())
	}
}

func TestInvalidCommandsAreDroppedWithWarning(t *testing.T) {
	r := newDroneRig(testDroneConfig())
	d := r.drone

	d.StartCruiseTo(Vec3{X: 1}) // idle: invalid
	if d.State() != model.FlightIdle {
		t.Fatalf("invalid StartCruiseTo changed state to %v", d.State())
	}
	d.LandAbort() // not landing: invalid
	d.Abort()     // idle: invalid
	if len(r.log.warns) != 3 {
		t.Fatalf("want 3 warnings for 3 invalid commands, got %d: %v", len(r.log.warns), r.log.warns)
	}
}

func TestTransitionNotificationsAndMetrics(t *testing.T) {
	r := newDroneRig(testDroneConfig())
	d := r.drone

	var seen []string
	d.OnStateChanged(func(from, to model.FlightState) {
		seen = append(seen, from.String()+"->"+to.String())
		// The notification runs inside the transition: the drone must
		// already report the new state.
		if d.State() != to {
			t.Errorf("subscriber saw State() = %v during transition to %v", d.State(), to)
		}
	})

	d.ReturnToHover()
	r.stepUntil(t, tick, 200, "takeoff", func() bool { return d.BasePos().Y > 2.4 })
	d.StartCruiseTo(Vec3{X: 1, Z: 1})
	r.stepUntil(t, tick, 400, "arrival", func() bool { return d.State() == model.FlightHover })

	want := []string{"idle->hover", "hover->cruise", "cruise->hover"}
	if len(seen) != len(want) {
		t.Fatalf("notifications = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notification %d = %q, want %q", i, seen[i], want[i])
		}
	}
	if len(r.mets.transitions) != len(want) {
		t.Errorf("metrics recorded %v, want %d transitions", r.mets.transitions, len(want))
	}
}

func TestPoseIncludesSwayInHover(t *testing.T) {
	cfg := model.DefaultSessionConfig()
	r := newDroneRig(testDroneConfig(), WithSway(NewSway(cfg.Sway, 5)))
	d := r.drone

	d.ReturnToHover()
	r.stepUntil(t, tick, 200, "takeoff", func() bool { return d.BasePos().Y > 2.4 })
	r.step(tick, 100)

	pose, _ := d.Pose()
	if pose == d.BasePos() {
		t.Fatalf("hover pose identical to base position; sway never applied")
	}
	off := pose.Sub(d.BasePos())
	if off.Norm() > cfg.Sway.Amplitude*2 {
		t.Fatalf("sway offset %v larger than plausible bound", off.Norm())
	}
}
