package sched

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Clock supplies the scheduler's notion of now.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// ManualClock only moves when told to. Tests pair it with Scheduler.Tick.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Add moves the clock forward and returns the new time.
func (c *ManualClock) Add(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Token identifies a scheduled callback. The zero Token is never issued.
type Token uint64

type item struct {
	token  Token
	at     time.Time
	seq    uint64
	period time.Duration
	fn     func()
	index  int
}

type timerHeap []*item

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].at.Equal(h[j].at) {
		return h[i].at.Before(h[j].at)
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Scheduler is a cooperative timer queue. Callbacks run one at a time, in
// deadline order with ties broken by scheduling order, on whichever goroutine
// calls Tick or Run. Callbacks may schedule and cancel freely.
type Scheduler struct {
	mu     sync.Mutex
	clock  Clock
	queue  timerHeap
	items  map[Token]*item
	seq    uint64
	closed bool
	wake   chan struct{}
}

func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		clock: clock,
		items: make(map[Token]*item),
		wake:  make(chan struct{}, 1),
	}
}

func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// After runs fn once, d from now. A closed scheduler drops fn and returns the
// zero Token.
func (s *Scheduler) After(d time.Duration, fn func()) Token {
	return s.schedule(d, 0, fn)
}

// Every runs fn every d, first at now+d, until the token is cancelled.
func (s *Scheduler) Every(d time.Duration, fn func()) Token {
	if d <= 0 {
		return 0
	}
	return s.schedule(d, d, fn)
}

func (s *Scheduler) schedule(d, period time.Duration, fn func()) Token {
	if fn == nil {
		return 0
	}
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.seq++
	it := &item{
		token:  Token(s.seq),
		at:     s.clock.Now().Add(d),
		seq:    s.seq,
		period: period,
		fn:     fn,
	}
	heap.Push(&s.queue, it)
	s.items[it.token] = it
	s.mu.Unlock()
	s.poke()
	return it.token
}

// Cancel removes a pending callback. It reports whether anything was removed.
// A one-shot callback that has already started cannot be cancelled; a
// repeating one stops after its current run.
func (s *Scheduler) Cancel(tok Token) bool {
	if tok == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[tok]
	if !ok {
		return false
	}
	delete(s.items, tok)
	if it.index >= 0 {
		heap.Remove(&s.queue, it.index)
	}
	return true
}

// Tick runs every callback due at the clock's current time and returns how
// many ran. A repeating callback that fell behind runs once and resumes at its
// first period after now; missed periods are dropped.
func (s *Scheduler) Tick() int {
	now := s.clock.Now()
	ran := 0
	for {
		s.mu.Lock()
		if s.closed || len(s.queue) == 0 || s.queue[0].at.After(now) {
			s.mu.Unlock()
			return ran
		}
		it := heap.Pop(&s.queue).(*item)
		if it.period == 0 {
			delete(s.items, it.token)
		}
		s.mu.Unlock()

		it.fn()
		ran++

		if it.period > 0 {
			s.mu.Lock()
			if !s.closed && s.items[it.token] == it {
				s.seq++
				it.seq = s.seq
				it.at = it.at.Add(it.period)
				if !it.at.After(now) {
					missed := now.Sub(it.at)/it.period + 1
					it.at = it.at.Add(missed * it.period)
				}
				heap.Push(&s.queue, it)
			}
			s.mu.Unlock()
		}
	}
}

// Pending reports how many callbacks are queued.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Next reports the earliest pending deadline.
func (s *Scheduler) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].at, true
}

// Run drives the queue from the wall clock until ctx is done or the scheduler
// is closed.
func (s *Scheduler) Run(ctx context.Context) error {
	const idle = time.Minute
	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		s.Tick()

		s.mu.Lock()
		closed := s.closed
		wait := idle
		if len(s.queue) > 0 {
			wait = s.queue[0].at.Sub(s.clock.Now())
		}
		s.mu.Unlock()
		if closed {
			return nil
		}
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-s.wake:
		}
	}
}

// Close drops every pending callback and rejects new ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.items = make(map[Token]*item)
	s.mu.Unlock()
	s.poke()
}

func (s *Scheduler) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
