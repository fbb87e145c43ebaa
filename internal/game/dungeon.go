package game

import "fmt"

const (
	MinDoors = 3
	MaxDoors = 10
)

type DungeonRules struct {
	Doors     int     `yaml:"doors" json:"doors"`
	Depth     int     `yaml:"depth" json:"depth"`
	HouseEdge float64 `yaml:"house_edge" json:"house_edge"`
}

func DefaultDungeonRules() DungeonRules {
	return DungeonRules{Doors: 5, Depth: 18, HouseEdge: 0.05}
}

func (r DungeonRules) Validate() error {
	if err := ValidateDoors(r.Doors); err != nil {
		return err
	}
	if r.Depth < 1 {
		return fmt.Errorf("%w: dungeon depth must be >= 1", ErrConfiguration)
	}
	return ValidateHouseEdge(r.HouseEdge)
}

func ValidateDoors(n int) error {
	if n < MinDoors || n > MaxDoors {
		return fmt.Errorf("%w: door count %d outside [%d,%d]", ErrConfiguration, n, MinDoors, MaxDoors)
	}
	return nil
}

func ValidateHouseEdge(edge float64) error {
	if edge < 0 || edge >= 1 {
		return fmt.Errorf("%w: house edge %.4f outside [0,1)", ErrConfiguration, edge)
	}
	return nil
}

// RowBase is the fair per-level multiplier 1/(1-1/doors).
func RowBase(doors int) float64 {
	return RoundMultiplier(1 / (1 - 1/float64(doors)))
}

type DungeonRow struct {
	Trap     int   `json:"trap"`
	Choice   *int  `json:"choice,omitempty"`
	Survived *bool `json:"survived,omitempty"`
}

type DungeonRun struct {
	Doors     int          `json:"doors"`
	Rows      []DungeonRow `json:"rows"`
	Level     int          `json:"level"` // 1-based
	PreEdge   float64      `json:"multiplier_pre_edge"`
	PostEdge  float64      `json:"multiplier"`
	HouseEdge float64      `json:"house_edge"`
	Busted    bool         `json:"busted"`
}

// NewDungeonRun draws every trap up front, one uniform door per level.
func NewDungeonRun(rules DungeonRules, rng RandomSource) *DungeonRun {
	rows := make([]DungeonRow, rules.Depth)
	for i := range rows {
		rows[i].Trap = Intn(rng, rules.Doors)
	}
	return &DungeonRun{
		Doors:     rules.Doors,
		Rows:      rows,
		Level:     1,
		PreEdge:   1,
		PostEdge:  1,
		HouseEdge: rules.HouseEdge,
	}
}

// Cleared reports whether every generated level has been survived.
func (r *DungeonRun) Cleared() bool {
	return !r.Busted && r.Level > len(r.Rows)
}

// Accrued reports whether at least one level has been survived.
func (r *DungeonRun) Accrued() bool {
	return !r.Busted && r.Level > 1
}

// Choose opens a door on the current level. Choosing consumes no randomness;
// it is compared with the trap drawn when the run was generated.
func (r *DungeonRun) Choose(door int) (StepResult, error) {
	if r.Busted || r.Cleared() {
		return StepResult{}, fmt.Errorf("%w: run is over", ErrInvalidAction)
	}
	if door < 0 || door >= r.Doors {
		return StepResult{}, fmt.Errorf("%w: door %d outside [0,%d)", ErrInvalidAction, door, r.Doors)
	}
	row := &r.Rows[r.Level-1]
	survived := row.Trap != door
	row.Choice = &door
	row.Survived = &survived

	step := StepResult{
		Level:    r.Level,
		Choice:   door,
		Trap:     row.Trap,
		Survived: survived,
		NearMiss: survived && absInt(row.Trap-door) == 1,
	}
	if !survived {
		r.Busted = true
		r.PreEdge = 0
		r.PostEdge = 0
		return step, nil
	}
	r.PreEdge = RoundMultiplier(r.PreEdge * RowBase(r.Doors))
	r.PostEdge = RoundMultiplier(r.PreEdge * (1 - r.HouseEdge))
	r.Level++
	step.MultiplierPreEdge = r.PreEdge
	step.Multiplier = r.PostEdge
	return step, nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
