package sched

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carrywater/dronesim-ar-sub000/timectrl"
)

// Scheduler runs callbacks at specific simulation times. It is what turns
// "wait 3 seconds, then retract the legs" into something the tick loop can
// execute: the hover watchdog, scenario dwells and the scripted
// participant's response delays all live here.
//
// The engine advances simulation time and calls RunDue once per tick,
// before any component logic, so a timer due at tick N acts at tick N.
type Scheduler interface {
	// Schedule registers f to run at simulation time 'at'. It returns an
	// opaque ID usable with Cancel. Times at or before Now() fire on the
	// next RunDue.
	Schedule(at time.Time, f func()) (id string)

	// After registers f to run d after Now().
	After(d time.Duration, f func()) (id string)

	// Cancel drops a pending event. Unknown or already-run IDs are a no-op.
	Cancel(id string)

	// Now returns the current simulation time from the underlying clock.
	Now() time.Time

	// RunDue executes every pending event whose time is <= Now(), in time
	// order. Events scheduled by a running callback are picked up in the
	// same call if already due.
	RunDue()

	// Len reports the number of pending events.
	Len() int
}

type event struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

type scheduler struct {
	clock timectrl.SimClock

	mu      sync.Mutex
	counter uint64
	events  []*event // ordered by 'when', earliest first
	index   map[string]*event
}

// New returns a scheduler backed by the given simulation clock. Tests pass
// a fake clock and step it by hand.
func New(clock timectrl.SimClock) Scheduler {
	return &scheduler{
		clock: clock,
		index: make(map[string]*event),
	}
}

func (s *scheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("sched-%d", s.counter)

	ev := &event{id: id, when: at, f: f}

	idx := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].when.Before(ev.when)
	})
	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev

	s.index[id] = ev
	return id
}

func (s *scheduler) After(d time.Duration, f func()) (id string) {
	return s.Schedule(s.clock.Now().Add(d), f)
}

func (s *scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}
	ev.cancelled = true
	delete(s.index, id)
	// Removal from s.events is lazy; RunDue skips cancelled entries.
}

func (s *scheduler) Now() time.Time {
	return s.clock.Now()
}

// popDueLocked removes and returns the earliest live event due at now, or
// nil. Caller holds s.mu.
func (s *scheduler) popDueLocked(now time.Time) *event {
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events = s.events[1:]
			continue
		}
		if ev.when.After(now) {
			return nil
		}
		s.events = s.events[1:]
		delete(s.index, ev.id)
		return ev
	}
	return nil
}

func (s *scheduler) RunDue() {
	for {
		now := s.clock.Now()

		s.mu.Lock()
		ev := s.popDueLocked(now)
		s.mu.Unlock()

		if ev == nil {
			return
		}
		// Run outside the lock so callbacks can schedule and cancel freely.
		if ev.f != nil {
			ev.f()
		}
	}
}

func (s *scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, ev := range s.events {
		if !ev.cancelled {
			n++
		}
	}
	return n
}
