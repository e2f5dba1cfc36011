package timectrl

import (
	"context"
	"testing"
	"time"
)

func TestTimeControllerStepAdvancesAndNotifies(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, RealTime)

	var seen []time.Time
	tc.AddListener(func(now time.Time) { seen = append(seen, now) })

	tc.Step(3)

	want := start.Add(3 * time.Second)
	if got := tc.Now(); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
	if len(seen) != 3 {
		t.Fatalf("listener saw %d ticks, want 3", len(seen))
	}
	for i, ts := range seen {
		wantTick := start.Add(time.Duration(i+1) * time.Second)
		if !ts.Equal(wantTick) {
			t.Errorf("tick %d at %v, want %v", i, ts, wantTick)
		}
	}
}

func TestTimeControllerStartUpdatesNow(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 5*time.Millisecond, Accelerated)

	done := tc.Start(context.Background(), 15*time.Millisecond)
	<-done

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
}

func TestTimeControllerStartStopsOnCancel(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Millisecond, Accelerated)

	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	tc.AddListener(func(time.Time) {
		ticks++
		if ticks >= 10 {
			cancel()
		}
	})

	done := tc.Start(ctx, 0) // unbounded: only the context stops it
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("controller did not stop after cancel")
	}
	if ticks < 10 {
		t.Fatalf("stopped after %d ticks, want at least 10", ticks)
	}
}
