package game

import "fmt"

// LootBucket maps draws below Upper (and at or above the previous bucket's
// Upper) onto a multiplier drawn uniformly from [Min, Max).
type LootBucket struct {
	Name  string  `yaml:"name" json:"name"`
	Upper float64 `yaml:"upper" json:"upper"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
}

type LootTable struct {
	Buckets []LootBucket `yaml:"buckets" json:"buckets"`
}

func DefaultLootTable() LootTable {
	return LootTable{Buckets: []LootBucket{
		{Name: "heavy_loss", Upper: 0.25, Min: 0.1, Max: 0.5},
		{Name: "small_loss", Upper: 0.55, Min: 0.5, Max: 0.99},
		{Name: "common", Upper: 0.80, Min: 1.0, Max: 2.0},
		{Name: "rare", Upper: 0.94, Min: 2.0, Max: 5.0},
		{Name: "epic", Upper: 0.985, Min: 5.0, Max: 20.0},
		{Name: "legendary", Upper: 1.0, Min: 20.0, Max: 100.0},
	}}
}

func (t LootTable) Validate() error {
	if len(t.Buckets) == 0 {
		return fmt.Errorf("%w: loot table is empty", ErrConfiguration)
	}
	prev := 0.0
	for i, b := range t.Buckets {
		if b.Upper <= prev || b.Upper > 1 {
			return fmt.Errorf("%w: loot bucket %d upper %.4f must ascend within (0,1]", ErrConfiguration, i, b.Upper)
		}
		if b.Min < 0 || b.Max < b.Min {
			return fmt.Errorf("%w: loot bucket %d range [%.4f,%.4f) is invalid", ErrConfiguration, i, b.Min, b.Max)
		}
		prev = b.Upper
	}
	if prev != 1 {
		return fmt.Errorf("%w: last loot bucket must end at 1", ErrConfiguration)
	}
	return nil
}

// Bucket returns the index of the bucket that owns draw r.
func (t LootTable) Bucket(r float64) int {
	for i, b := range t.Buckets {
		if r < b.Upper {
			return i
		}
	}
	return len(t.Buckets) - 1
}

// RawMultiplier consumes two draws: one to pick the bucket, one to place the
// value inside it.
func (t LootTable) RawMultiplier(rng RandomSource) float64 {
	b := t.Buckets[t.Bucket(rng.Float64())]
	return between(rng, b.Min, b.Max)
}

// LootDraw is the pre-settlement outcome of a loot drop.
type LootDraw struct {
	Raw        float64
	Multiplier float64
	Bonus      float64
}

// SampleLoot draws a loot multiplier. The combo bonus scales wins only.
func SampleLoot(t LootTable, rng RandomSource, comboBonus float64) LootDraw {
	raw := t.RawMultiplier(rng)
	m := raw
	applied := 0.0
	if m >= 1 && comboBonus > 0 {
		m *= 1 + comboBonus
		applied = comboBonus
	}
	return LootDraw{Raw: raw, Multiplier: RoundMultiplier(m), Bonus: applied}
}

// HotBonus is the periodic "variable ratio" uplift available to loot drops.
type HotBonus struct {
	Chance float64 `yaml:"chance" json:"chance"`
	Pct    float64 `yaml:"pct" json:"pct"`
}

func DefaultHotBonus() HotBonus {
	return HotBonus{Chance: 0.2, Pct: 0.03}
}

// Roll returns the transient bonus for the next pulse window.
func (h HotBonus) Roll(rng RandomSource) float64 {
	if h.Pct <= 0 || rng.Float64() >= h.Chance {
		return 0
	}
	return h.Pct
}
