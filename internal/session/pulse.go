package session

import (
	"fmt"
	"strings"

	"lootfun/internal/game"
	"lootfun/internal/sched"
)

// pulseGame rides one token of a private market. The market keeps ticking
// between rides so the board stays live.
type pulseGame struct {
	market      *game.Market
	ride        *game.Ride
	tickTok     sched.Token
	deadlineTok sched.Token
}

func newPulseGame(s *Session) *pulseGame {
	p := &pulseGame{market: game.NewMarket(s.tuning.Pulse, s.tuning.Tokens, s.rng)}
	p.tickTok = s.sched.Every(s.tuning.Pulse.TickEvery, s.guard(always, func() {
		p.market.Tick()
		p.watch(s)
	}))
	return p
}

func (p *pulseGame) dynamics(s *Session) game.PulseDynamics {
	d := s.tuning.Pulse
	d.HouseEdge = s.opts.HouseEdge
	return d
}

// begin freezes the entry price. The ride is measured against this copy,
// never against the live token.
func (p *pulseGame) begin(s *Session) Outcome {
	symbol := strings.ToUpper(s.opts.Token)
	price, ok := p.market.Price(symbol)
	if !ok {
		s.phase = PhaseIdle
		return s.ignored(ActionStart, fmt.Sprintf("unknown token %s", symbol))
	}
	now := s.sched.Now()
	p.ride = &game.Ride{
		Symbol:      symbol,
		EntryMicros: price,
		StartedAt:   now,
		Deadline:    now.Add(s.tuning.Pulse.RideDuration),
	}
	p.deadlineTok = s.afterRound(s.tuning.Pulse.RideDuration, func() {
		if p.ride != nil {
			p.sell(s, ActionSell, "time")
		}
	})
	return s.outcome(ActionStart)
}

func (p *pulseGame) act(s *Session, m Move) Outcome {
	if m.Action != ActionSell {
		return s.ignored(m.Action, fmt.Sprintf("%s is not a pulse move", m.Action))
	}
	return p.sell(s, ActionSell, "sell")
}

func (p *pulseGame) sell(s *Session, action Action, reason string) Outcome {
	ride := p.ride
	price, _ := p.market.Price(ride.Symbol)
	m := p.dynamics(s).RideMultiplier(ride.EntryMicros, price)
	p.endRide(s)
	return s.settle(action, m, reason, reason != "time", false)
}

func (p *pulseGame) endRide(s *Session) {
	s.sched.Cancel(p.deadlineTok)
	p.deadlineTok = 0
	p.ride = nil
}

// watch runs after every price change. A rug ends the ride at zero no matter
// how much time is left.
func (p *pulseGame) watch(s *Session) {
	if s.phase != PhaseActive || p.ride == nil {
		return
	}
	price, _ := p.market.Price(p.ride.Symbol)
	d := p.dynamics(s)
	if d.Rugged(p.ride.EntryMicros, price) {
		p.endRide(s)
		s.settle(ActionSell, 0, "rug", false, false)
		return
	}
	if pct := s.opts.AutoSellPct; pct > 0 {
		gain := (float64(price)/float64(p.ride.EntryMicros) - 1) * 100
		if gain >= pct {
			p.sell(s, ActionSell, "auto_sell")
		}
	}
}

func (p *pulseGame) autoStep(*Session) {}

func (p *pulseGame) fill(s *Session, snap *Snapshot) {
	view := &PulseView{
		Token:  strings.ToUpper(s.opts.Token),
		Tokens: p.market.Tokens(),
	}
	view.PriceMicros, _ = p.market.Price(view.Token)
	if p.ride != nil {
		ride := *p.ride
		view.Ride = &ride
		view.PriceMicros, _ = p.market.Price(ride.Symbol)
		view.Multiplier = p.dynamics(s).RideMultiplier(ride.EntryMicros, view.PriceMicros)
		view.RemainingMs = ride.Remaining(s.sched.Now()).Milliseconds()
	}
	snap.Pulse = view
}

func (p *pulseGame) configure(s *Session, next Options) error {
	if !p.market.Has(next.Token) {
		return fmt.Errorf("%w: unknown token %q", game.ErrConfiguration, next.Token)
	}
	return nil
}

func (p *pulseGame) close(s *Session) {
	s.sched.Cancel(p.tickTok)
	p.endRide(s)
}

// InjectPrices forces token prices on a pulse session, then applies the same
// checks a market tick would.
func (s *Session) InjectPrices(prices map[string]int64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, game.ErrSessionClosed
	}
	p, ok := s.v.(*pulseGame)
	if !ok {
		return s.snapshot(), fmt.Errorf("%w: %s has no market", game.ErrInvalidAction, s.kind)
	}
	if err := p.market.Inject(prices); err != nil {
		return s.snapshot(), err
	}
	p.watch(s)
	return s.snapshot(), nil
}
