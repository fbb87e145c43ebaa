package session

import (
	"fmt"

	"lootfun/internal/game"
)

type dungeonGame struct {
	run *game.DungeonRun
}

func (d *dungeonGame) rules(s *Session) game.DungeonRules {
	return game.DungeonRules{
		Doors:     s.opts.Doors,
		Depth:     s.tuning.Dungeon.Depth,
		HouseEdge: s.opts.HouseEdge,
	}
}

// begin generates every trap for the run at once.
func (d *dungeonGame) begin(s *Session) Outcome {
	d.run = game.NewDungeonRun(d.rules(s), s.rng)
	return s.outcome(ActionStart)
}

func (d *dungeonGame) act(s *Session, m Move) Outcome {
	switch m.Action {
	case ActionChoose:
		return d.choose(s, m.Door)
	case ActionCashOut:
		return d.cashOut(s)
	default:
		return s.ignored(m.Action, fmt.Sprintf("%s is not a dungeon move", m.Action))
	}
}

func (d *dungeonGame) choose(s *Session, door int) Outcome {
	step, err := d.run.Choose(door)
	if err != nil {
		return s.ignored(ActionChoose, err.Error())
	}
	s.lastStep = &step
	switch {
	case !step.Survived:
		return s.settle(ActionChoose, 0, "trap", false, false)
	case d.run.Cleared():
		return s.settle(ActionChoose, d.run.PostEdge, "cleared", true, step.NearMiss)
	}
	out := s.outcome(ActionChoose)
	out.Step = &step
	return out
}

func (d *dungeonGame) cashOut(s *Session) Outcome {
	if !d.run.Accrued() {
		return s.ignored(ActionCashOut, "clear a level before cashing out")
	}
	return s.settle(ActionCashOut, d.run.PostEdge, "cashout", true, false)
}

func (d *dungeonGame) autoStep(s *Session) {
	if d.run.Level-1 >= s.timing.AutoCashOutLevel {
		d.cashOut(s)
		return
	}
	d.choose(s, game.Intn(s.rng, d.run.Doors))
}

func (d *dungeonGame) fill(s *Session, snap *Snapshot) {
	view := &DungeonView{
		Doors:             s.opts.Doors,
		Depth:             s.tuning.Dungeon.Depth,
		Level:             1,
		RowBase:           game.RowBase(s.opts.Doors),
		MultiplierPreEdge: 1,
		Multiplier:        1,
	}
	if d.run != nil {
		over := s.phase != PhaseActive
		view.Doors = d.run.Doors
		view.Depth = len(d.run.Rows)
		view.Level = d.run.Level
		view.RowBase = game.RowBase(d.run.Doors)
		view.MultiplierPreEdge = d.run.PreEdge
		view.Multiplier = d.run.PostEdge
		view.Rows = make([]DungeonRowView, len(d.run.Rows))
		for i, row := range d.run.Rows {
			rv := DungeonRowView{Level: i + 1}
			if row.Choice != nil {
				c, sv := *row.Choice, *row.Survived
				rv.Choice, rv.Survived = &c, &sv
			}
			if row.Choice != nil || over {
				trap := row.Trap
				rv.Trap = &trap
			}
			view.Rows[i] = rv
		}
	}
	snap.Dungeon = view
}

// configure refuses to change the door count in the middle of a run. Outside
// a run the next start builds a fresh one anyway.
func (d *dungeonGame) configure(s *Session, next Options) error {
	if s.phase == PhaseActive && d.run != nil && next.Doors != d.run.Doors {
		return fmt.Errorf("%w: door count cannot change mid-run", game.ErrConfiguration)
	}
	if s.phase != PhaseActive && d.run != nil && next.Doors != d.run.Doors {
		d.run = nil
	}
	return nil
}

func (d *dungeonGame) close(*Session) {}
