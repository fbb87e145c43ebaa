package game

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MicrosPerUnit = int64(1_000_000)

	DefaultStakeMicros     = int64(10_000)  // 0.01
	DefaultMinStakeMicros  = int64(1_000)   // 0.001
	DefaultMaxStakeMicros  = int64(200_000) // 0.2
	DefaultLossLimitMicros = int64(-250_000)

	DefaultBreakThreshold = 50

	amountPlaces = 6
)

var (
	ErrInvalidStake  = errors.New("invalid stake")
	ErrInvalidAction = errors.New("invalid action")
	ErrConfiguration = errors.New("configuration error")
	ErrUnknownGame   = errors.New("unknown game")
	ErrSessionClosed = errors.New("session closed")
)

// Kind names one of the four game variants.
type Kind string

const (
	KindLoot    Kind = "loot"
	KindDungeon Kind = "dungeon"
	KindOrbital Kind = "orbital"
	KindPulse   Kind = "pulse"
)

var kinds = []Kind{KindLoot, KindDungeon, KindOrbital, KindPulse}

func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGame, s)
}

// ParseAmount converts a decimal string such as "0.01" or "-0.25" into micros.
// More than six fractional digits is rejected rather than silently rounded.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(amountPlaces)) {
		return 0, fmt.Errorf("amount %q has more than %d decimals", s, amountPlaces)
	}
	return d.Shift(amountPlaces).IntPart(), nil
}

func FormatAmount(micros int64) string {
	return decimal.New(micros, -amountPlaces).StringFixed(amountPlaces)
}

func UnitsToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerUnit)))
}

func MicrosToUnits(v int64) float64 {
	return float64(v) / float64(MicrosPerUnit)
}

// RoundMultiplier snaps a multiplier to six decimals so repeated compounding
// cannot drift.
func RoundMultiplier(m float64) float64 {
	if m <= 0 || math.IsNaN(m) {
		return 0
	}
	return math.Round(m*1e6) / 1e6
}

// PayoutMicros is stake*multiplier rounded half away from zero to the micro.
func PayoutMicros(stakeMicros int64, multiplier float64) int64 {
	if stakeMicros <= 0 || multiplier <= 0 {
		return 0
	}
	return int64(math.Round(float64(stakeMicros) * multiplier))
}

func ValidateStake(stakeMicros, minMicros, maxMicros int64) error {
	if stakeMicros <= 0 {
		return fmt.Errorf("%w: must be > 0", ErrInvalidStake)
	}
	if stakeMicros < minMicros {
		return fmt.Errorf("%w: %s below minimum %s", ErrInvalidStake, FormatAmount(stakeMicros), FormatAmount(minMicros))
	}
	if maxMicros > 0 && stakeMicros > maxMicros {
		return fmt.Errorf("%w: %s above maximum %s", ErrInvalidStake, FormatAmount(stakeMicros), FormatAmount(maxMicros))
	}
	return nil
}

// ComboBonus is the streak uplift (1% per consecutive win, capped at 10%) plus
// any transient hot bonus. It is never negative.
func ComboBonus(streak int, hot float64) float64 {
	if streak < 0 {
		streak = 0
	}
	bonus := math.Min(float64(streak)*0.01, 0.10)
	if hot > 0 {
		bonus += hot
	}
	return bonus
}
