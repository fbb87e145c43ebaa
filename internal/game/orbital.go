package game

import (
	"fmt"
	"math"
	"time"
)

// OrbitalGeometry holds the arena constants. Angles are degrees, speeds are
// degrees per second.
type OrbitalGeometry struct {
	InitialArc    float64 `yaml:"initial_arc" json:"initial_arc"`
	InitialCenter float64 `yaml:"initial_center" json:"initial_center"`
	InitialSpeed  float64 `yaml:"initial_speed" json:"initial_speed"`
	MinArc        float64 `yaml:"min_arc" json:"min_arc"`
	ShrinkFactor  float64 `yaml:"shrink_factor" json:"shrink_factor"`
	GrowthScale   float64 `yaml:"growth_scale" json:"growth_scale"`
	GrowthCap     float64 `yaml:"growth_cap" json:"growth_cap"`
	NearMiss      float64 `yaml:"near_miss" json:"near_miss"`
	MinSpeed      float64 `yaml:"min_speed" json:"min_speed"`
	MaxSpeed      float64 `yaml:"max_speed" json:"max_speed"`
	HouseEdge     float64 `yaml:"house_edge" json:"house_edge"`
}

func DefaultOrbitalGeometry() OrbitalGeometry {
	return OrbitalGeometry{
		InitialArc:    126,
		InitialCenter: 90,
		InitialSpeed:  160,
		MinArc:        12,
		ShrinkFactor:  0.8,
		GrowthScale:   0.2,
		GrowthCap:     1.2,
		NearMiss:      4,
		MinSpeed:      115,
		MaxSpeed:      344,
		HouseEdge:     0.03,
	}
}

func (g OrbitalGeometry) Validate() error {
	switch {
	case g.MinArc <= 0 || g.InitialArc < g.MinArc || g.InitialArc > 360:
		return fmt.Errorf("%w: orbital arcs must satisfy 0 < min <= initial <= 360", ErrConfiguration)
	case g.ShrinkFactor <= 0 || g.ShrinkFactor > 1:
		return fmt.Errorf("%w: orbital shrink factor must be in (0,1]", ErrConfiguration)
	case g.GrowthScale <= 0 || g.GrowthCap <= 0:
		return fmt.Errorf("%w: orbital growth scale and cap must be > 0", ErrConfiguration)
	case g.MinSpeed <= 0 || g.MaxSpeed < g.MinSpeed:
		return fmt.Errorf("%w: orbital speed range is invalid", ErrConfiguration)
	case g.NearMiss < 0:
		return fmt.Errorf("%w: orbital near-miss tolerance must be >= 0", ErrConfiguration)
	}
	return ValidateHouseEdge(g.HouseEdge)
}

// Growth is the multiplicative factor paid for a successful lock on an arc of
// the given width: 1 + min(scale*180/max(width, minArc), cap).
func (g OrbitalGeometry) Growth(arcWidth float64) float64 {
	add := g.GrowthScale * (180 / math.Max(arcWidth, g.MinArc))
	return RoundMultiplier(1 + math.Min(add, g.GrowthCap))
}

type OrbitalState struct {
	Angle      float64   `json:"angle"` // pointer angle at Anchor
	Anchor     time.Time `json:"anchor"`
	Speed      float64   `json:"speed"`
	ArcCenter  float64   `json:"arc_center"`
	ArcWidth   float64   `json:"arc_width"`
	Multiplier float64   `json:"multiplier"`
	Round      int       `json:"round"` // successful locks so far
	Busted     bool      `json:"busted"`
}

func NewOrbitalState(g OrbitalGeometry, now time.Time) OrbitalState {
	return OrbitalState{
		Anchor:     now,
		Speed:      g.InitialSpeed,
		ArcCenter:  g.InitialCenter,
		ArcWidth:   g.InitialArc,
		Multiplier: 1,
	}
}

// PointerAt returns the pointer angle at t, normalized to [0,360).
func (s OrbitalState) PointerAt(t time.Time) float64 {
	return NormalizeAngle(s.Angle + s.Speed*t.Sub(s.Anchor).Seconds())
}

// Accrued reports whether at least one lock has succeeded.
func (s OrbitalState) Accrued() bool {
	return !s.Busted && s.Round > 0
}

// Lock evaluates a lock attempt with the pointer at angle, as sampled at time
// at. On success the returned state carries the grown multiplier, the shrunk
// and re-centred arc, and a freshly drawn speed; the pointer is re-anchored
// at the lock instant so it keeps spinning continuously.
func Lock(g OrbitalGeometry, s OrbitalState, angle float64, at time.Time, rng RandomSource) (StepResult, OrbitalState) {
	dist := AngularDistance(angle, s.ArcCenter)
	half := s.ArcWidth / 2
	step := StepResult{
		Level: s.Round + 1,
		Angle: NormalizeAngle(angle),
	}
	if dist <= half {
		next := s
		next.Multiplier = RoundMultiplier(s.Multiplier * g.Growth(s.ArcWidth))
		next.ArcWidth = math.Max(s.ArcWidth*g.ShrinkFactor, g.MinArc)
		next.ArcCenter = rng.Float64() * 360
		next.Speed = between(rng, g.MinSpeed, g.MaxSpeed)
		next.Angle = NormalizeAngle(angle)
		next.Anchor = at
		next.Round++
		step.Survived = true
		step.MultiplierPreEdge = next.Multiplier
		step.Multiplier = RoundMultiplier(next.Multiplier * (1 - g.HouseEdge))
		return step, next
	}
	next := s
	next.Busted = true
	next.Multiplier = 0
	next.Angle = NormalizeAngle(angle)
	next.Anchor = at
	step.NearMiss = dist-half < g.NearMiss
	return step, next
}

func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// AngularDistance is the absolute shortest arc between two angles, in [0,180].
func AngularDistance(a, b float64) float64 {
	d := math.Abs(NormalizeAngle(a) - NormalizeAngle(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}
