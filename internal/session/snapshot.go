package session

import (
	"time"

	"lootfun/internal/game"
)

// Snapshot is a read-only copy of a session for rendering.
type Snapshot struct {
	ID              string            `json:"id"`
	Game            game.Kind         `json:"game"`
	Identity        string            `json:"identity"`
	Phase           Phase             `json:"phase"`
	StakeMicros     int64             `json:"stake_micros"`
	BalanceMicros   int64             `json:"balance_micros"`
	Balance         string            `json:"balance"`
	Plays           int               `json:"plays"`
	Wins            int               `json:"wins"`
	Streak          int               `json:"streak"`
	BestMultiplier  float64           `json:"best_multiplier"`
	ComboBonus      float64           `json:"combo_bonus"` // fraction, 0.05 is +5%
	HotBonus        float64           `json:"hot_bonus"`
	AutoplayEnabled bool              `json:"autoplay_enabled"`
	AutoplayStopped string            `json:"autoplay_stopped,omitempty"`
	LossLimitMicros int64             `json:"loss_limit_micros"`
	BreakShown      bool              `json:"break_shown"`
	BreakThreshold  int               `json:"break_threshold"`
	Options         Options           `json:"options"`
	Last            *game.RoundResult `json:"last,omitempty"`
	LastStep        *game.StepResult  `json:"last_step,omitempty"`
	Closed          bool              `json:"closed,omitempty"`
	At              time.Time         `json:"at"`

	Dungeon *DungeonView `json:"dungeon,omitempty"`
	Orbital *OrbitalView `json:"orbital,omitempty"`
	Pulse   *PulseView   `json:"pulse,omitempty"`
}

type DungeonRowView struct {
	Level    int   `json:"level"`
	Choice   *int  `json:"choice,omitempty"`
	Survived *bool `json:"survived,omitempty"`
	Trap     *int  `json:"trap,omitempty"` // only once the row is opened or the run is over
}

type DungeonView struct {
	Doors             int              `json:"doors"`
	Depth             int              `json:"depth"`
	Level             int              `json:"level"`
	RowBase           float64          `json:"row_base"`
	MultiplierPreEdge float64          `json:"multiplier_pre_edge"`
	Multiplier        float64          `json:"multiplier"`
	Rows              []DungeonRowView `json:"rows,omitempty"`
}

type OrbitalView struct {
	PointerAngle float64 `json:"pointer_angle"`
	Speed        float64 `json:"speed"`
	ArcCenter    float64 `json:"arc_center"`
	ArcWidth     float64 `json:"arc_width"`
	Multiplier   float64 `json:"multiplier"`
	CashOut      float64 `json:"cash_out"`
	Round        int     `json:"round"`
	NextGrowth   float64 `json:"next_growth"`
}

type PulseView struct {
	Token       string       `json:"token"`
	Tokens      []game.Token `json:"tokens"`
	Ride        *game.Ride   `json:"ride,omitempty"`
	PriceMicros int64        `json:"price_micros"`
	Multiplier  float64      `json:"multiplier,omitempty"` // what selling now would pay
	RemainingMs int64        `json:"remaining_ms,omitempty"`
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:              s.id,
		Game:            s.kind,
		Identity:        s.identity,
		Phase:           s.phase,
		StakeMicros:     s.opts.StakeMicros,
		BalanceMicros:   s.balance,
		Balance:         game.FormatAmount(s.balance),
		Plays:           s.plays,
		Wins:            s.wins,
		Streak:          s.streak,
		BestMultiplier:  s.best,
		ComboBonus:      game.ComboBonus(s.streak, s.hot),
		HotBonus:        s.hot,
		AutoplayEnabled: s.opts.Autoplay,
		AutoplayStopped: s.stopReason,
		LossLimitMicros: s.opts.LossLimitMicros,
		BreakShown:      s.breakShown,
		BreakThreshold:  s.opts.BreakThreshold,
		Options:         s.opts,
		Closed:          s.closed,
		At:              s.sched.Now(),
	}
	if s.last != nil {
		last := *s.last
		snap.Last = &last
	}
	if s.lastStep != nil {
		step := *s.lastStep
		snap.LastStep = &step
	}
	s.v.fill(s, &snap)
	return snap
}
