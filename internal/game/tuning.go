package game

// Tuning gathers every probability table and geometry constant so they can be
// loaded from a file and swapped out in tests.
type Tuning struct {
	Tiers    Tiers           `yaml:"tiers" json:"tiers"`
	Loot     LootTable       `yaml:"loot" json:"loot"`
	HotBonus HotBonus        `yaml:"hot_bonus" json:"hot_bonus"`
	Dungeon  DungeonRules    `yaml:"dungeon" json:"dungeon"`
	Orbital  OrbitalGeometry `yaml:"orbital" json:"orbital"`
	Pulse    PulseDynamics   `yaml:"pulse" json:"pulse"`
	Tokens   []TokenSeed     `yaml:"tokens" json:"tokens"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Tiers:    DefaultTiers(),
		Loot:     DefaultLootTable(),
		HotBonus: DefaultHotBonus(),
		Dungeon:  DefaultDungeonRules(),
		Orbital:  DefaultOrbitalGeometry(),
		Pulse:    DefaultPulseDynamics(),
		Tokens:   DefaultTokens(),
	}
}

func (t Tuning) Validate() error {
	checks := []func() error{
		t.Tiers.Validate,
		t.Loot.Validate,
		t.Dungeon.Validate,
		t.Orbital.Validate,
		t.Pulse.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// HouseEdge returns the default edge for a game. Loot drops carry their edge
// inside the bucket table and report zero here.
func (t Tuning) HouseEdge(kind Kind) float64 {
	switch kind {
	case KindDungeon:
		return t.Dungeon.HouseEdge
	case KindOrbital:
		return t.Orbital.HouseEdge
	case KindPulse:
		return t.Pulse.HouseEdge
	default:
		return 0
	}
}
