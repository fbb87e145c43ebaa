package game

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// PulseDynamics drives the token random walk and ride settlement.
type PulseDynamics struct {
	TickEvery      time.Duration `yaml:"tick_every" json:"tick_every"`
	RideDuration   time.Duration `yaml:"ride_duration" json:"ride_duration"`
	BaseVol        float64       `yaml:"base_vol" json:"base_vol"`
	VolSpread      float64       `yaml:"vol_spread" json:"vol_spread"`
	DriftCenter    float64       `yaml:"drift_center" json:"drift_center"`
	JumpProb       float64       `yaml:"jump_prob" json:"jump_prob"`
	SpikeScale     float64       `yaml:"spike_scale" json:"spike_scale"`
	DumpScale      float64       `yaml:"dump_scale" json:"dump_scale"`
	MinPriceMicros int64         `yaml:"min_price_micros" json:"min_price_micros"`
	MaxPriceMicros int64         `yaml:"max_price_micros" json:"max_price_micros"`
	RugBps         int64         `yaml:"rug_bps" json:"rug_bps"`
	HouseEdge      float64       `yaml:"house_edge" json:"house_edge"`
	LongWindow     int           `yaml:"long_window" json:"long_window"`
	ShortWindow    int           `yaml:"short_window" json:"short_window"`
}

func DefaultPulseDynamics() PulseDynamics {
	return PulseDynamics{
		TickEvery:      250 * time.Millisecond,
		RideDuration:   20 * time.Second,
		BaseVol:        0.006,
		VolSpread:      0.012,
		DriftCenter:    0.48, // slightly above 0.5 biases the walk downward
		JumpProb:       0.015,
		SpikeScale:     0.15,
		DumpScale:      0.12,
		MinPriceMicros: 300_000,
		MaxPriceMicros: 3_000_000,
		RugBps:         3_500,
		HouseEdge:      0.03,
		LongWindow:     60,
		ShortWindow:    10,
	}
}

func (d PulseDynamics) Validate() error {
	switch {
	case d.TickEvery <= 0 || d.RideDuration <= 0:
		return fmt.Errorf("%w: pulse tick and ride durations must be > 0", ErrConfiguration)
	case d.BaseVol < 0 || d.VolSpread < 0:
		return fmt.Errorf("%w: pulse volatility must be >= 0", ErrConfiguration)
	case d.JumpProb < 0 || d.JumpProb > 1:
		return fmt.Errorf("%w: pulse jump probability outside [0,1]", ErrConfiguration)
	case d.DumpScale < 0 || d.DumpScale >= 1 || d.SpikeScale < 0:
		return fmt.Errorf("%w: pulse jump scales are invalid", ErrConfiguration)
	case d.MinPriceMicros <= 0 || d.MaxPriceMicros < d.MinPriceMicros:
		return fmt.Errorf("%w: pulse price band is invalid", ErrConfiguration)
	case d.RugBps <= 0 || d.RugBps >= 10_000:
		return fmt.Errorf("%w: pulse rug threshold must be in (0,10000) bps", ErrConfiguration)
	case d.LongWindow < 1 || d.ShortWindow < 1:
		return fmt.Errorf("%w: pulse windows must be >= 1", ErrConfiguration)
	}
	return ValidateHouseEdge(d.HouseEdge)
}

// NextPrice applies one tick of the walk: a bounded drift, an occasional
// spike or dump, then the price band.
func (d PulseDynamics) NextPrice(priceMicros int64, rng RandomSource) int64 {
	vol := d.BaseVol + rng.Float64()*d.VolSpread
	drift := (rng.Float64() - d.DriftCenter) * vol
	next := float64(priceMicros) * (1 + drift)
	if rng.Float64() < d.JumpProb {
		if rng.Float64() < 0.5 {
			next *= 1 + d.SpikeScale
		} else {
			next *= 1 - d.DumpScale
		}
	}
	return d.clamp(int64(math.Round(next)))
}

func (d PulseDynamics) clamp(p int64) int64 {
	if p < d.MinPriceMicros {
		return d.MinPriceMicros
	}
	if p > d.MaxPriceMicros {
		return d.MaxPriceMicros
	}
	return p
}

// Rugged reports whether price has fallen RugBps or more below entry. The
// comparison is done in integers so the boundary is exact.
func (d PulseDynamics) Rugged(entryMicros, priceMicros int64) bool {
	if entryMicros <= 0 {
		return false
	}
	return priceMicros*10_000 <= entryMicros*(10_000-d.RugBps)
}

// RideMultiplier is max(0, price/entry * (1 - edge)).
func (d PulseDynamics) RideMultiplier(entryMicros, priceMicros int64) float64 {
	if entryMicros <= 0 || priceMicros <= 0 {
		return 0
	}
	return RoundMultiplier(math.Max(0, float64(priceMicros)/float64(entryMicros)*(1-d.HouseEdge)))
}

// Token is a read-only view of one simulated token.
type Token struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	PriceMicros int64   `json:"price_micros"`
	Change1m    float64 `json:"change_1m"`
	Change5s    float64 `json:"change_5s"`
	Volume      float64 `json:"volume"`
}

type tokenState struct {
	Token
	long  []int64
	short []int64
}

// TokenSeed names a starter token.
type TokenSeed struct {
	Symbol string  `yaml:"symbol" json:"symbol"`
	Name   string  `yaml:"name" json:"name"`
	Volume float64 `yaml:"volume" json:"volume"`
}

func DefaultTokens() []TokenSeed {
	return []TokenSeed{
		{Symbol: "WIF", Name: "whiff", Volume: 1200},
		{Symbol: "OMG", Name: "comeback", Volume: 860},
		{Symbol: "PRK", Name: "parkify", Volume: 540},
		{Symbol: "KOK", Name: "KOKOK", Volume: 320},
		{Symbol: "ETH", Name: "ETH", Volume: 5000},
	}
}

// Market is a set of tokens walking independently. It is safe for concurrent
// use; a pulse session owns one and ticks it from its scheduler.
type Market struct {
	mu     sync.RWMutex
	dyn    PulseDynamics
	rng    RandomSource
	order  []string
	tokens map[string]*tokenState
}

func NewMarket(dyn PulseDynamics, seeds []TokenSeed, rng RandomSource) *Market {
	m := &Market{dyn: dyn, rng: rng, tokens: make(map[string]*tokenState, len(seeds))}
	for _, s := range seeds {
		sym := strings.ToUpper(strings.TrimSpace(s.Symbol))
		if sym == "" {
			continue
		}
		if _, dup := m.tokens[sym]; dup {
			continue
		}
		price := dyn.clamp(MicrosPerUnit)
		st := &tokenState{
			Token: Token{Symbol: sym, Name: s.Name, PriceMicros: price, Volume: s.Volume},
			long:  filled(dyn.LongWindow, price),
			short: filled(dyn.ShortWindow, price),
		}
		m.tokens[sym] = st
		m.order = append(m.order, sym)
	}
	return m
}

func filled(n int, v int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Tick advances every token by one step of the walk.
func (m *Market) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sym := range m.order {
		st := m.tokens[sym]
		m.record(st, m.dyn.NextPrice(st.PriceMicros, m.rng))
		st.Volume = math.Max(0, st.Volume+(m.rng.Float64()-0.4)*5)
	}
}

// Inject forces prices for the named tokens, bypassing the walk but not the
// rolling windows. Either every price is applied or none is.
func (m *Market) Inject(prices map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var unknown []string
	for sym, p := range prices {
		if _, ok := m.tokens[strings.ToUpper(sym)]; !ok {
			unknown = append(unknown, sym)
			continue
		}
		if p <= 0 {
			return fmt.Errorf("%w: injected price for %s must be > 0", ErrConfiguration, sym)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown tokens %s", ErrConfiguration, strings.Join(unknown, ","))
	}
	for sym, p := range prices {
		m.record(m.tokens[strings.ToUpper(sym)], p)
	}
	return nil
}

func (m *Market) record(st *tokenState, price int64) {
	st.PriceMicros = price
	st.long = append(st.long[1:], price)
	st.short = append(st.short[1:], price)
	st.Change1m = pctChange(st.long[0], price)
	st.Change5s = pctChange(st.short[0], price)
}

func pctChange(base, now int64) float64 {
	if base <= 0 {
		return 0
	}
	return (float64(now)/float64(base) - 1) * 100
}

func (m *Market) Price(symbol string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.tokens[strings.ToUpper(symbol)]
	if !ok {
		return 0, false
	}
	return st.PriceMicros, true
}

func (m *Market) Has(symbol string) bool {
	_, ok := m.Price(symbol)
	return ok
}

// Tokens lists every token in seed order.
func (m *Market) Tokens() []Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Token, 0, len(m.order))
	for _, sym := range m.order {
		out = append(out, m.tokens[sym].Token)
	}
	return out
}

func (m *Market) Dynamics() PulseDynamics {
	return m.dyn
}

// Ride is an open position. Entry is a frozen copy taken at ride start; P&L is
// always measured against it, never against a live reference.
type Ride struct {
	Symbol      string    `json:"symbol"`
	EntryMicros int64     `json:"entry_micros"`
	StartedAt   time.Time `json:"started_at"`
	Deadline    time.Time `json:"deadline"`
}

func (r Ride) Remaining(now time.Time) time.Duration {
	if now.After(r.Deadline) {
		return 0
	}
	return r.Deadline.Sub(now)
}
