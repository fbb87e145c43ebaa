package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"lootfun/internal/game"
)

// Event is one settled round as seen by everyone else at the table.
type Event struct {
	ID           uuid.UUID `json:"id"`
	Identity     string    `json:"identity"`
	Game         game.Kind `json:"game"`
	Win          bool      `json:"win"`
	AmountMicros int64     `json:"amount_micros"` // signed balance change
	Multiplier   *float64  `json:"multiplier,omitempty"`
	At           time.Time `json:"at"`
	Simulated    bool      `json:"simulated,omitempty"`
}

// RoundEvent builds the event for a settled round. Only wins carry a
// multiplier.
func RoundEvent(identity string, res game.RoundResult, at time.Time) Event {
	e := Event{
		ID:           uuid.New(),
		Identity:     identity,
		Game:         res.Game,
		Win:          res.Win,
		AmountMicros: res.DeltaMicros(),
		At:           at,
	}
	if res.Win {
		m := res.Multiplier
		e.Multiplier = &m
	}
	return e
}

type Handler func(Event)

// Subscription is the handle returned by Subscribe.
type Subscription uint64

type subscriber struct {
	id   Subscription
	name string
	fn   Handler
}

// Bus delivers events synchronously, one publish at a time, to the handlers
// registered when the publish began. Handlers must not publish.
type Bus struct {
	pub  sync.Mutex
	mu   sync.Mutex
	subs []subscriber
	next Subscription
	log  *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{log: logger}
}

func (b *Bus) Subscribe(name string, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs = append(b.subs, subscriber{id: b.next, name: name, fn: fn})
	return b.next
}

// Unsubscribe is safe to call from inside a handler. It reports whether the
// subscription was still registered.
func (b *Bus) Unsubscribe(id Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish fills in a missing ID or timestamp and hands the event to every
// subscriber in registration order.
func (b *Bus) Publish(e Event) Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.pub.Lock()
	defer b.pub.Unlock()

	b.mu.Lock()
	snapshot := b.subs
	b.mu.Unlock()

	for _, s := range snapshot {
		b.deliver(s, e)
	}
	return e
}

func (b *Bus) deliver(s subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("bus subscriber panicked", "subscriber", s.name, "event_id", e.ID.String(), "panic", r)
		}
	}()
	s.fn(e)
}
