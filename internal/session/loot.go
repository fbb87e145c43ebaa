package session

import (
	"lootfun/internal/game"
	"lootfun/internal/sched"
)

// lootGame resolves on start: the charge-up is purely presentational.
type lootGame struct {
	hotTok sched.Token
}

func (l *lootGame) begin(s *Session) Outcome {
	draw := game.SampleLoot(s.tuning.Loot, s.rng, game.ComboBonus(s.streak, s.hot))
	res := game.Settle(s.kind, s.stake, draw.Multiplier, s.tuning.Tiers, "")
	res.RawMultiplier = game.RoundMultiplier(draw.Raw)
	res.ComboBonus = draw.Bonus
	return s.settleResult(ActionStart, res, false)
}

func (l *lootGame) act(s *Session, m Move) Outcome {
	return s.ignored(m.Action, "loot drops resolve on start")
}

func (l *lootGame) autoStep(*Session) {}

func (l *lootGame) fill(*Session, *Snapshot) {}

// configure arms the hot bonus the first time through. Every eight seconds
// the bonus is re-rolled.
func (l *lootGame) configure(s *Session, _ Options) error {
	if l.hotTok == 0 {
		l.hotTok = s.sched.Every(s.timing.HotBonusEvery, s.guard(always, func() {
			s.hot = s.tuning.HotBonus.Roll(s.rng)
		}))
	}
	return nil
}

func (l *lootGame) close(s *Session) {
	s.sched.Cancel(l.hotTok)
}

func always() bool { return true }
