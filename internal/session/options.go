package session

import (
	"fmt"
	"time"

	"lootfun/internal/game"
)

// Options are the player-adjustable settings of one session.
type Options struct {
	StakeMicros     int64   `json:"stake_micros"`
	LossLimitMicros int64   `json:"loss_limit_micros"`
	BreakThreshold  int     `json:"break_threshold"`
	Autoplay        bool    `json:"autoplay"`
	Doors           int     `json:"doors,omitempty"`
	HouseEdge       float64 `json:"house_edge"`
	Token           string  `json:"token,omitempty"`
	AutoSellPct     float64 `json:"auto_sell_pct,omitempty"` // pulse: sell once the gross gain reaches this percentage, 0 disables
}

func DefaultOptions(kind game.Kind, t game.Tuning) Options {
	o := Options{
		StakeMicros:     game.DefaultStakeMicros,
		LossLimitMicros: game.DefaultLossLimitMicros,
		BreakThreshold:  game.DefaultBreakThreshold,
		HouseEdge:       t.HouseEdge(kind),
	}
	switch kind {
	case game.KindDungeon:
		o.Doors = t.Dungeon.Doors
	case game.KindPulse:
		if len(t.Tokens) > 0 {
			o.Token = t.Tokens[0].Symbol
		}
	}
	return o
}

// LossLimitChoices are the loss-limit presets listed next to the games.
var LossLimitChoices = []int64{-50_000, -100_000, -250_000, -500_000, -1_000_000}

// Limits bound what Configure accepts.
type Limits struct {
	MinStakeMicros int64
	MaxStakeMicros int64
}

func DefaultLimits() Limits {
	return Limits{MinStakeMicros: game.DefaultMinStakeMicros, MaxStakeMicros: game.DefaultMaxStakeMicros}
}

func (o Options) validate(kind game.Kind, lim Limits) error {
	if err := game.ValidateStake(o.StakeMicros, lim.MinStakeMicros, lim.MaxStakeMicros); err != nil {
		return err
	}
	if o.LossLimitMicros >= 0 {
		return fmt.Errorf("%w: loss limit must be negative", game.ErrConfiguration)
	}
	if o.BreakThreshold < 1 {
		return fmt.Errorf("%w: break threshold must be >= 1", game.ErrConfiguration)
	}
	if err := game.ValidateHouseEdge(o.HouseEdge); err != nil {
		return err
	}
	if o.AutoSellPct < 0 {
		return fmt.Errorf("%w: auto-sell percentage must be >= 0", game.ErrConfiguration)
	}
	if kind == game.KindDungeon {
		if err := game.ValidateDoors(o.Doors); err != nil {
			return err
		}
	}
	return nil
}

// Timing holds the scheduler delays a session uses.
type Timing struct {
	SettleDelay       time.Duration
	ResetDelay        time.Duration
	AutoplayEvery     time.Duration
	AutoStep          time.Duration
	HotBonusEvery     time.Duration
	AutoCashOutLevel  int
	AutoCashOutRounds int
}

func DefaultTiming() Timing {
	return Timing{
		SettleDelay:       1200 * time.Millisecond,
		ResetDelay:        300 * time.Millisecond,
		AutoplayEvery:     3500 * time.Millisecond,
		AutoStep:          900 * time.Millisecond,
		HotBonusEvery:     8 * time.Second,
		AutoCashOutLevel:  3,
		AutoCashOutRounds: 2,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.SettleDelay <= 0 {
		t.SettleDelay = d.SettleDelay
	}
	if t.ResetDelay <= 0 {
		t.ResetDelay = d.ResetDelay
	}
	if t.AutoplayEvery <= 0 {
		t.AutoplayEvery = d.AutoplayEvery
	}
	if t.AutoStep <= 0 {
		t.AutoStep = d.AutoStep
	}
	if t.HotBonusEvery <= 0 {
		t.HotBonusEvery = d.HotBonusEvery
	}
	if t.AutoCashOutLevel <= 0 {
		t.AutoCashOutLevel = d.AutoCashOutLevel
	}
	if t.AutoCashOutRounds <= 0 {
		t.AutoCashOutRounds = d.AutoCashOutRounds
	}
	return t
}
