package game

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Stats summarizes a batch of simulated rounds at unit stake.
type Stats struct {
	Game          Kind    `json:"game"`
	Rounds        int     `json:"rounds"`
	RTP           float64 `json:"rtp"`
	HitRate       float64 `json:"hit_rate"`
	Mean          float64 `json:"mean"`
	StdDev        float64 `json:"std_dev"`
	P50           float64 `json:"p50"`
	P90           float64 `json:"p90"`
	P99           float64 `json:"p99"`
	MaxMultiplier float64 `json:"max_multiplier"`
}

func calcStats(kind Kind, xs []float64) Stats {
	n := len(xs)
	if n == 0 {
		return Stats{Game: kind}
	}
	var sum float64
	hits := 0
	for _, v := range xs {
		sum += v
		if v >= 1 {
			hits++
		}
	}
	mean := sum / float64(n)
	var acc float64
	for _, v := range xs {
		d := v - mean
		acc += d * d
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	percentile := func(p float64) float64 {
		idx := int(math.Ceil(p*float64(n))) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		return sorted[idx]
	}
	return Stats{
		Game:          kind,
		Rounds:        n,
		RTP:           mean,
		HitRate:       float64(hits) / float64(n),
		Mean:          mean,
		StdDev:        math.Sqrt(acc / float64(n)),
		P50:           percentile(0.50),
		P90:           percentile(0.90),
		P99:           percentile(0.99),
		MaxMultiplier: sorted[n-1],
	}
}

// SimPolicy is the fixed player strategy used for multi-step games.
type SimPolicy struct {
	CashOutLevel  int           `json:"cash_out_level"`  // dungeon: cash out after this many survived levels
	CashOutRounds int           `json:"cash_out_rounds"` // orbital: cash out after this many locks
	HoldFor       time.Duration `json:"hold_for"`        // pulse: sell after this long unless rugged
}

func DefaultSimPolicy() SimPolicy {
	return SimPolicy{CashOutLevel: 3, CashOutRounds: 2, HoldFor: 10 * time.Second}
}

// Simulate plays rounds of one game with the given policy and reports the
// multiplier distribution. Loot rounds assume no streak or hot bonus.
func Simulate(kind Kind, t Tuning, policy SimPolicy, rounds int, rng RandomSource) (Stats, error) {
	if rounds <= 0 {
		return Stats{}, fmt.Errorf("%w: rounds must be > 0", ErrConfiguration)
	}
	if err := t.Validate(); err != nil {
		return Stats{}, err
	}
	xs := make([]float64, 0, rounds)
	for i := 0; i < rounds; i++ {
		var m float64
		switch kind {
		case KindLoot:
			m = SampleLoot(t.Loot, rng, 0).Multiplier
		case KindDungeon:
			m = simulateDungeon(t.Dungeon, policy, rng)
		case KindOrbital:
			m = simulateOrbital(t.Orbital, policy, rng)
		case KindPulse:
			m = simulatePulse(t.Pulse, policy, rng)
		default:
			return Stats{}, fmt.Errorf("%w: %q", ErrUnknownGame, kind)
		}
		xs = append(xs, m)
	}
	return calcStats(kind, xs), nil
}

func simulateDungeon(rules DungeonRules, policy SimPolicy, rng RandomSource) float64 {
	run := NewDungeonRun(rules, rng)
	target := policy.CashOutLevel
	if target < 1 {
		target = 1
	}
	for run.Level <= target && !run.Cleared() {
		step, err := run.Choose(Intn(rng, run.Doors))
		if err != nil || !step.Survived {
			return 0
		}
	}
	return run.PostEdge
}

func simulateOrbital(g OrbitalGeometry, policy SimPolicy, rng RandomSource) float64 {
	st := NewOrbitalState(g, time.Time{})
	target := policy.CashOutRounds
	if target < 1 {
		target = 1
	}
	for st.Round < target {
		// A blind lock: the pointer lands uniformly around the ring.
		_, st = Lock(g, st, rng.Float64()*360, st.Anchor, rng)
		if st.Busted {
			return 0
		}
	}
	return RoundMultiplier(st.Multiplier * (1 - g.HouseEdge))
}

func simulatePulse(d PulseDynamics, policy SimPolicy, rng RandomSource) float64 {
	hold := policy.HoldFor
	if hold <= 0 || hold > d.RideDuration {
		hold = d.RideDuration
	}
	ticks := int(hold / d.TickEvery)
	entry := d.clamp(MicrosPerUnit)
	price := entry
	for i := 0; i < ticks; i++ {
		price = d.NextPrice(price, rng)
		if d.Rugged(entry, price) {
			return 0
		}
	}
	return d.RideMultiplier(entry, price)
}
