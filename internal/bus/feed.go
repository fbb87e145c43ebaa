package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"lootfun/internal/sched"
)

const (
	DefaultFeedCapacity   = 20
	DefaultFeedLifetime   = 3500 * time.Millisecond
	DefaultTickerCapacity = 12
)

type FeedEntry struct {
	Event
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type feedItem struct {
	entry FeedEntry
	token sched.Token
}

type FeedOptions struct {
	Capacity int
	Lifetime time.Duration // zero keeps entries until they are evicted
	WinsOnly bool
}

// Feed is a bounded, newest-first buffer of recent events. Entries drop off
// when they outlive Lifetime or when newer entries push them out.
type Feed struct {
	mu    sync.Mutex
	sched *sched.Scheduler
	opts  FeedOptions
	items []feedItem
}

func NewFeed(s *sched.Scheduler, opts FeedOptions) *Feed {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultFeedCapacity
	}
	if opts.Lifetime < 0 {
		opts.Lifetime = 0
	}
	return &Feed{sched: s, opts: opts}
}

// NewTicker keeps the last few wins with no expiry.
func NewTicker(s *sched.Scheduler) *Feed {
	return NewFeed(s, FeedOptions{Capacity: DefaultTickerCapacity, WinsOnly: true})
}

func (f *Feed) Attach(b *Bus, name string) Subscription {
	return b.Subscribe(name, f.Apply)
}

func (f *Feed) Apply(e Event) {
	if f.opts.WinsOnly && !e.Win {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	item := feedItem{entry: FeedEntry{Event: e}}
	if f.opts.Lifetime > 0 && f.sched != nil {
		id := e.ID
		exp := f.sched.Now().Add(f.opts.Lifetime)
		item.entry.ExpiresAt = &exp
		item.token = f.sched.After(f.opts.Lifetime, func() { f.remove(id) })
	}
	f.items = append([]feedItem{item}, f.items...)
	for len(f.items) > f.opts.Capacity {
		last := f.items[len(f.items)-1]
		if f.sched != nil {
			f.sched.Cancel(last.token)
		}
		f.items = f.items[:len(f.items)-1]
	}
}

func (f *Feed) remove(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, it := range f.items {
		if it.entry.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return
		}
	}
}

// Entries returns the buffer newest first.
func (f *Feed) Entries() []FeedEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FeedEntry, 0, len(f.items))
	for _, it := range f.items {
		out = append(out, it.entry)
	}
	return out
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
