package sched

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"
)

func newManual() (*Scheduler, *ManualClock) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	return New(clock), clock
}

func TestTickRunsInDeadlineOrder(t *testing.T) {
	s, clock := newManual()
	var got []string
	s.After(300*time.Millisecond, func() { got = append(got, "c") })
	s.After(100*time.Millisecond, func() { got = append(got, "a") })
	s.After(100*time.Millisecond, func() { got = append(got, "b") })
	s.After(time.Second, func() { got = append(got, "late") })

	clock.Add(50 * time.Millisecond)
	if n := s.Tick(); n != 0 {
		t.Fatalf("nothing due yet, ran %d", n)
	}
	clock.Add(250 * time.Millisecond)
	if n := s.Tick(); n != 3 {
		t.Fatalf("expected 3 callbacks, ran %d", n)
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order got %v want %v", got, want)
	}
	if s.Pending() != 1 {
		t.Fatalf("pending got %d want 1", s.Pending())
	}
}

func TestCancel(t *testing.T) {
	s, clock := newManual()
	fired := false
	tok := s.After(time.Second, func() { fired = true })
	if !s.Cancel(tok) {
		t.Fatalf("cancel should report removal")
	}
	if s.Cancel(tok) {
		t.Fatalf("second cancel should be a no-op")
	}
	clock.Add(2 * time.Second)
	s.Tick()
	if fired {
		t.Fatalf("cancelled callback fired")
	}
	if s.Cancel(0) {
		t.Fatalf("zero token cancelled something")
	}
}

func TestCancelFromInsideCallback(t *testing.T) {
	s, clock := newManual()
	fired := false
	var second Token
	s.After(time.Second, func() { s.Cancel(second) })
	second = s.After(time.Second, func() { fired = true })
	clock.Add(time.Second)
	s.Tick()
	if fired {
		t.Fatalf("callback cancelled by an earlier one still fired")
	}
}

func TestCallbackCanReschedule(t *testing.T) {
	s, clock := newManual()
	count := 0
	var step func()
	step = func() {
		count++
		if count < 3 {
			s.After(time.Second, step)
		}
	}
	s.After(time.Second, step)
	for i := 0; i < 5; i++ {
		clock.Add(time.Second)
		s.Tick()
	}
	if count != 3 {
		t.Fatalf("count got %d want 3", count)
	}
}

func TestEveryDropsMissedPeriodsAndStops(t *testing.T) {
	s, clock := newManual()
	ticks := 0
	tok := s.Every(250*time.Millisecond, func() { ticks++ })
	clock.Add(time.Second)
	s.Tick()
	if ticks != 1 {
		t.Fatalf("ticks got %d want 1 after a stall", ticks)
	}
	next, ok := s.Next()
	if !ok || !next.Equal(clock.Now().Add(250*time.Millisecond)) {
		t.Fatalf("next run at %v, want one period after now", next)
	}
	clock.Add(250 * time.Millisecond)
	s.Tick()
	if ticks != 2 {
		t.Fatalf("ticks got %d want 2", ticks)
	}
	s.Cancel(tok)
	clock.Add(time.Second)
	s.Tick()
	if ticks != 2 {
		t.Fatalf("cancelled repeating callback kept firing: %d", ticks)
	}
}

func TestEveryCancelledFromItsOwnCallback(t *testing.T) {
	s, clock := newManual()
	ticks := 0
	var tok Token
	tok = s.Every(time.Second, func() {
		ticks++
		s.Cancel(tok)
	})
	clock.Add(5 * time.Second)
	s.Tick()
	if ticks != 1 || s.Pending() != 0 {
		t.Fatalf("ticks=%d pending=%d", ticks, s.Pending())
	}
}

func TestCloseDropsEverything(t *testing.T) {
	s, clock := newManual()
	fired := false
	s.After(time.Second, func() { fired = true })
	s.Close()
	if tok := s.After(time.Second, func() { fired = true }); tok != 0 {
		t.Fatalf("closed scheduler issued token %d", tok)
	}
	clock.Add(time.Minute)
	s.Tick()
	if fired || s.Pending() != 0 || !s.Closed() {
		t.Fatalf("closed scheduler still active")
	}
}

func TestRunFiresOnWallClock(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	s.After(10*time.Millisecond, wg.Done)
	wg.Wait()

	s.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after close")
	}
}
