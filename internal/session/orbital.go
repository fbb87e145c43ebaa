package session

import (
	"fmt"

	"lootfun/internal/game"
)

type orbitalGame struct {
	st      game.OrbitalState
	started bool
}

func (o *orbitalGame) geometry(s *Session) game.OrbitalGeometry {
	g := s.tuning.Orbital
	g.HouseEdge = s.opts.HouseEdge
	return g
}

// begin sets the pointer spinning from zero degrees at the current instant.
func (o *orbitalGame) begin(s *Session) Outcome {
	o.st = game.NewOrbitalState(o.geometry(s), s.sched.Now())
	o.started = true
	return s.outcome(ActionStart)
}

func (o *orbitalGame) act(s *Session, m Move) Outcome {
	switch m.Action {
	case ActionLock:
		return o.lock(s)
	case ActionCashOut:
		return o.cashOut(s)
	default:
		return s.ignored(m.Action, fmt.Sprintf("%s is not an orbital move", m.Action))
	}
}

func (o *orbitalGame) lock(s *Session) Outcome {
	now := s.sched.Now()
	step, next := game.Lock(o.geometry(s), o.st, o.st.PointerAt(now), now, s.rng)
	o.st = next
	s.lastStep = &step
	if !step.Survived {
		return s.settle(ActionLock, 0, "missed", false, step.NearMiss)
	}
	out := s.outcome(ActionLock)
	out.Step = &step
	return out
}

func (o *orbitalGame) cashOut(s *Session) Outcome {
	if !o.st.Accrued() {
		return s.ignored(ActionCashOut, "lock at least once before cashing out")
	}
	m := game.RoundMultiplier(o.st.Multiplier * (1 - s.opts.HouseEdge))
	return s.settle(ActionCashOut, m, "cashout", true, false)
}

func (o *orbitalGame) autoStep(s *Session) {
	if o.st.Round >= s.timing.AutoCashOutRounds {
		o.cashOut(s)
		return
	}
	o.lock(s)
}

func (o *orbitalGame) fill(s *Session, snap *Snapshot) {
	g := o.geometry(s)
	st := o.st
	if !o.started {
		st = game.NewOrbitalState(g, s.sched.Now())
	}
	angle := st.Angle
	if s.phase == PhaseActive {
		angle = st.PointerAt(s.sched.Now())
	}
	snap.Orbital = &OrbitalView{
		PointerAngle: angle,
		Speed:        st.Speed,
		ArcCenter:    st.ArcCenter,
		ArcWidth:     st.ArcWidth,
		Multiplier:   st.Multiplier,
		CashOut:      game.RoundMultiplier(st.Multiplier * (1 - g.HouseEdge)),
		Round:        st.Round,
		NextGrowth:   g.Growth(st.ArcWidth),
	}
}

func (o *orbitalGame) configure(*Session, Options) error { return nil }

func (o *orbitalGame) close(*Session) {}
