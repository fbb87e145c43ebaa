package bus

import (
	"math"
	"time"

	"lootfun/internal/game"
	"lootfun/internal/sched"
)

const (
	DefaultCrowdEvery   = 1100 * time.Millisecond
	DefaultCrowdWinRate = 0.46
)

var syllables = []string{
	"ash", "bane", "cy", "dra", "eld", "fyr", "grim", "hex", "ion", "jyn",
	"kor", "lyr", "morn", "nyx", "orn", "pyre", "quin", "rukh", "sy", "tha",
	"umb", "vyr", "wyr", "xen", "yul", "zeth",
}

var seedNames = []string{
	"gryphon", "dusk", "ember", "runic", "shade", "ivy", "bramble", "hollow", "quill", "sable",
}

// Crowd publishes rounds from simulated other players so the leaderboard and
// feed have company.
type Crowd struct {
	bus     *Bus
	rng     game.RandomSource
	winRate float64
}

func NewCrowd(b *Bus, rng game.RandomSource) *Crowd {
	if rng == nil {
		rng = game.DefaultRNG()
	}
	return &Crowd{bus: b, rng: rng, winRate: DefaultCrowdWinRate}
}

func (c *Crowd) Name() string {
	a := syllables[int(c.rng.Float64()*float64(len(syllables)))%len(syllables)]
	b := syllables[int(c.rng.Float64()*float64(len(syllables)))%len(syllables)]
	return a + b
}

// Event draws one simulated round. Amounts are rounded to four decimals and
// doubled one time in five.
func (c *Crowd) Event(at time.Time) Event {
	win := c.rng.Float64() < c.winRate
	var amount float64
	if win {
		amount = 0.01 + c.rng.Float64()*0.06
	} else {
		amount = -0.005 - c.rng.Float64()*0.06
	}
	if c.rng.Float64() < 0.2 {
		amount *= 2
	}
	e := Event{
		Identity:     c.Name(),
		Game:         game.KindDungeon,
		Win:          win,
		AmountMicros: int64(math.Round(amount*1e4)) * 100,
		At:           at,
		Simulated:    true,
	}
	if win {
		m := game.RoundMultiplier(1 + c.rng.Float64()*5)
		e.Multiplier = &m
	}
	return e
}

// Start publishes a simulated round every interval until the token is
// cancelled or the scheduler closes.
func (c *Crowd) Start(s *sched.Scheduler, every time.Duration) sched.Token {
	if every <= 0 {
		every = DefaultCrowdEvery
	}
	return s.Every(every, func() {
		c.bus.Publish(c.Event(s.Now()))
	})
}

// SeedLeaders registers a fixed cast with random opening totals.
func SeedLeaders(l *Leaderboard, rng game.RandomSource) {
	for _, name := range seedNames {
		pnl := (rng.Float64() - 0.3) * 1.2
		l.Add(name, game.UnitsToMicros(pnl))
	}
}
