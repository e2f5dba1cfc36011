package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is an interface for reading simulation time. Components that
// schedule or compare times (event scheduler, orchestrator, recorder)
// depend on this abstraction rather than the concrete controller, which
// keeps them steppable from tests with a fake clock.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime paces ticks against wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

// TimeController drives simulation time in fixed steps and notifies
// registered listeners once per tick. Simulation time only ever moves by
// whole ticks, so a run produces the same tick sequence in either mode.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// AddListener registers a callback invoked on every tick, in registration
// order, after simulation time has advanced. Register everything before
// the controller starts stepping.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.listeners = append(tc.listeners, fn)
}

// Step advances simulation time by n ticks synchronously, notifying
// listeners after each. Tests drive the controller this way instead of
// racing a goroutine.
func (tc *TimeController) Step(n int) {
	for i := 0; i < n; i++ {
		tc.step()
	}
}

func (tc *TimeController) step() {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	simTime := tc.currentTime
	tc.mu.Unlock()

	for _, fn := range tc.listeners {
		fn(simTime)
	}
}

// Start runs the controller in a separate goroutine until the given
// amount of simulation time has elapsed or the context is cancelled. A
// duration of zero runs until cancellation. The returned channel is
// closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.Tick)
			defer ticker.Stop()
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if tc.Mode == RealTime {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			} else if ctx.Err() != nil {
				return
			}

			tc.step()
			elapsed += tc.Tick
		}
	}()
	return done
}
