package game

import "fmt"

type Tier string

const (
	TierBust      Tier = "bust"
	TierCommon    Tier = "common"
	TierRare      Tier = "rare"
	TierEpic      Tier = "epic"
	TierLegendary Tier = "legendary"
)

// Tiers holds the inclusive lower breakpoints of each winning tier.
type Tiers struct {
	Common    float64 `yaml:"common" json:"common"`
	Rare      float64 `yaml:"rare" json:"rare"`
	Epic      float64 `yaml:"epic" json:"epic"`
	Legendary float64 `yaml:"legendary" json:"legendary"`
}

func DefaultTiers() Tiers {
	return Tiers{Common: 1, Rare: 2, Epic: 5, Legendary: 20}
}

func (t Tiers) Classify(m float64) Tier {
	switch {
	case m < t.Common:
		return TierBust
	case m < t.Rare:
		return TierCommon
	case m < t.Epic:
		return TierRare
	case m < t.Legendary:
		return TierEpic
	default:
		return TierLegendary
	}
}

func (t Tiers) Validate() error {
	if !(t.Common > 0 && t.Common < t.Rare && t.Rare < t.Epic && t.Epic < t.Legendary) {
		return fmt.Errorf("%w: tier breakpoints must be positive and strictly ascending", ErrConfiguration)
	}
	return nil
}

// RoundResult is the settled outcome of one round. It is never mutated after
// Settle builds it.
type RoundResult struct {
	Game         Kind    `json:"game"`
	Multiplier   float64 `json:"multiplier"`
	StakeMicros  int64   `json:"stake_micros"`
	PayoutMicros int64   `json:"payout_micros"`
	Win          bool    `json:"win"`
	Tier         Tier    `json:"tier"`
	Legendary    bool    `json:"legendary"`
	NearMiss     bool    `json:"near_miss,omitempty"`
	Reason       string  `json:"reason,omitempty"`

	// loot only: the table draw before the combo bonus, and the bonus applied
	RawMultiplier float64 `json:"raw_multiplier,omitempty"`
	ComboBonus    float64 `json:"combo_bonus,omitempty"`
}

// DeltaMicros is the signed balance change the round applies.
func (r RoundResult) DeltaMicros() int64 {
	return r.PayoutMicros - r.StakeMicros
}

// Settle builds the round result for a stake at the given multiplier.
func Settle(kind Kind, stakeMicros int64, multiplier float64, tiers Tiers, reason string) RoundResult {
	m := RoundMultiplier(multiplier)
	tier := tiers.Classify(m)
	return RoundResult{
		Game:         kind,
		Multiplier:   m,
		StakeMicros:  stakeMicros,
		PayoutMicros: PayoutMicros(stakeMicros, m),
		Win:          m >= 1,
		Tier:         tier,
		Legendary:    tier == TierLegendary,
		Reason:       reason,
	}
}

// StepResult reports one intermediate move of a multi-step episode: a dungeon
// door pick or an orbital lock attempt.
type StepResult struct {
	Level             int     `json:"level"`
	Choice            int     `json:"choice"`
	Trap              int     `json:"trap"`
	Angle             float64 `json:"angle,omitempty"`
	Survived          bool    `json:"survived"`
	NearMiss          bool    `json:"near_miss"`
	MultiplierPreEdge float64 `json:"multiplier_pre_edge"`
	Multiplier        float64 `json:"multiplier"`
}
