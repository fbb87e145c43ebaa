package game

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestLootBucketBoundaries(t *testing.T) {
	table := DefaultLootTable()
	tests := []struct {
		r    float64
		want string
	}{
		{r: 0, want: "heavy_loss"},
		{r: 0.2499999, want: "heavy_loss"},
		{r: 0.25, want: "small_loss"},
		{r: 0.55, want: "common"},
		{r: 0.80, want: "rare"},
		{r: 0.94, want: "epic"},
		{r: 0.985, want: "legendary"},
		{r: 0.9999999, want: "legendary"},
	}
	for _, tc := range tests {
		got := table.Buckets[table.Bucket(tc.r)].Name
		if got != tc.want {
			t.Fatalf("r=%.7f got=%s want=%s", tc.r, got, tc.want)
		}
	}
}

func TestSampleLootComboAppliesToWinsOnly(t *testing.T) {
	table := DefaultLootTable()

	win := SampleLoot(table, NewScriptedRNG(0.55, 0.5), 0.05)
	if win.Raw != 1.5 {
		t.Fatalf("raw got %.6f want 1.5", win.Raw)
	}
	if win.Multiplier != 1.575 || win.Bonus != 0.05 {
		t.Fatalf("win got m=%.6f bonus=%.2f", win.Multiplier, win.Bonus)
	}

	loss := SampleLoot(table, NewScriptedRNG(0.1, 0.5), 0.10)
	if loss.Multiplier != 0.3 || loss.Bonus != 0 {
		t.Fatalf("loss was amplified: m=%.6f bonus=%.2f", loss.Multiplier, loss.Bonus)
	}
}

func TestLootTableValidate(t *testing.T) {
	bad := []LootTable{
		{},
		{Buckets: []LootBucket{{Upper: 0.5, Min: 0, Max: 1}}},
		{Buckets: []LootBucket{{Upper: 0.5, Min: 0, Max: 1}, {Upper: 0.4, Min: 0, Max: 1}, {Upper: 1, Min: 0, Max: 1}}},
		{Buckets: []LootBucket{{Upper: 1, Min: 2, Max: 1}}},
	}
	for i, table := range bad {
		if err := table.Validate(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("case %d: expected ErrConfiguration, got %v", i, err)
		}
	}
}

func TestHotBonusRoll(t *testing.T) {
	h := DefaultHotBonus()
	if got := h.Roll(NewScriptedRNG(0.19)); got != 0.03 {
		t.Fatalf("got %.2f want 0.03", got)
	}
	if got := h.Roll(NewScriptedRNG(0.2)); got != 0 {
		t.Fatalf("got %.2f want 0", got)
	}
}

func TestDungeonRowBase(t *testing.T) {
	if got := RowBase(5); got != 1.25 {
		t.Fatalf("rowBase(5) got %.6f want 1.25", got)
	}
	if got := RowBase(4); got != 1.333333 {
		t.Fatalf("rowBase(4) got %.6f", got)
	}
}

func TestDungeonSurvivalRate(t *testing.T) {
	rules := DefaultDungeonRules()
	rng := NewSeededRNG(7)
	const runs = 20_000
	survived := 0
	for i := 0; i < runs; i++ {
		run := NewDungeonRun(rules, rng)
		step, err := run.Choose(2)
		if err != nil {
			t.Fatalf("choose: %v", err)
		}
		if step.Survived {
			survived++
		}
	}
	rate := float64(survived) / runs
	if math.Abs(rate-0.8) > 0.02 {
		t.Fatalf("survival rate %.4f not near 0.8", rate)
	}
}

func TestDungeonChooseCompoundsAndBusts(t *testing.T) {
	rules := DungeonRules{Doors: 5, Depth: 3, HouseEdge: 0.05}
	// traps at doors 4, 0, 2
	run := NewDungeonRun(rules, NewScriptedRNG(0.9, 0.1, 0.5))

	step, err := run.Choose(1)
	if err != nil || !step.Survived {
		t.Fatalf("level 1: step=%+v err=%v", step, err)
	}
	if step.MultiplierPreEdge != 1.25 || step.Multiplier != 1.1875 {
		t.Fatalf("level 1 multipliers %+v", step)
	}
	if step.NearMiss {
		t.Fatalf("door 1 vs trap 4 is not a near miss")
	}

	step, _ = run.Choose(1)
	if !step.Survived || !step.NearMiss {
		t.Fatalf("level 2 should survive as a near miss: %+v", step)
	}
	if run.PreEdge != 1.5625 || run.Level != 3 {
		t.Fatalf("after 2 levels pre=%.6f level=%d", run.PreEdge, run.Level)
	}

	if _, err := run.Choose(5); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("door out of range should be invalid, got %v", err)
	}
	if run.Level != 3 {
		t.Fatalf("invalid choice mutated level")
	}

	step, _ = run.Choose(2)
	if step.Survived || run.PreEdge != 0 || run.PostEdge != 0 || !run.Busted {
		t.Fatalf("trap should zero totals: step=%+v run=%+v", step, run)
	}
	if _, err := run.Choose(0); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("choose after bust should be invalid")
	}
}

func TestDungeonClearedRun(t *testing.T) {
	run := NewDungeonRun(DungeonRules{Doors: 3, Depth: 2, HouseEdge: 0}, NewScriptedRNG(0))
	for i := 0; i < 2; i++ {
		if step, _ := run.Choose(2); !step.Survived {
			t.Fatalf("level %d should survive", i+1)
		}
	}
	if !run.Cleared() || !run.Accrued() {
		t.Fatalf("run should be cleared and accrued")
	}
}

func TestOrbitalGrowthAtNinetyDegrees(t *testing.T) {
	g := DefaultOrbitalGeometry()
	if got := g.Growth(90); got != 1.4 {
		t.Fatalf("growth(90) got %.6f want 1.4", got)
	}
	if got := g.Growth(5); got != 2.2 {
		t.Fatalf("growth caps at 1+cap, got %.6f", got)
	}
}

func TestOrbitalLock(t *testing.T) {
	g := DefaultOrbitalGeometry()
	now := time.Unix(1_700_000_000, 0)
	start := NewOrbitalState(g, now)

	tests := []struct {
		angle    float64
		survived bool
		nearMiss bool
	}{
		{angle: 90, survived: true},
		{angle: 153, survived: true}, // exactly on the edge
		{angle: 27, survived: true},
		{angle: 155, survived: false, nearMiss: true},
		{angle: 24, survived: false, nearMiss: true},
		{angle: 170, survived: false},
		{angle: 270, survived: false},
	}
	for _, tc := range tests {
		step, next := Lock(g, start, tc.angle, now, NewScriptedRNG(0.5, 0))
		if step.Survived != tc.survived || step.NearMiss != tc.nearMiss {
			t.Fatalf("angle=%.1f got survived=%v near=%v", tc.angle, step.Survived, step.NearMiss)
		}
		if !tc.survived {
			if !next.Busted || next.Multiplier != 0 {
				t.Fatalf("angle=%.1f failed lock should bust to 0", tc.angle)
			}
			continue
		}
		if next.Round != 1 || math.Abs(next.ArcWidth-100.8) > 1e-9 {
			t.Fatalf("angle=%.1f next state %+v", tc.angle, next)
		}
		if next.ArcCenter != 180 || next.Speed != g.MinSpeed {
			t.Fatalf("angle=%.1f redraw got center=%.1f speed=%.1f", tc.angle, next.ArcCenter, next.Speed)
		}
	}
}

func TestOrbitalArcFloor(t *testing.T) {
	g := DefaultOrbitalGeometry()
	s := NewOrbitalState(g, time.Time{})
	s.ArcWidth = 13
	s.ArcCenter = 0
	_, next := Lock(g, s, 0, time.Time{}, NewScriptedRNG(0))
	if next.ArcWidth != g.MinArc {
		t.Fatalf("arc width %.2f should floor at %.2f", next.ArcWidth, g.MinArc)
	}
}

func TestOrbitalPointerAt(t *testing.T) {
	s := OrbitalState{Angle: 350, Speed: 160, Anchor: time.Unix(0, 0)}
	got := s.PointerAt(time.Unix(0, 0).Add(500 * time.Millisecond))
	if math.Abs(got-70) > 1e-9 {
		t.Fatalf("pointer got %.6f want 70", got)
	}
	if d := AngularDistance(350, 10); d != 20 {
		t.Fatalf("distance across zero got %.2f", d)
	}
}

func TestPulseRugBoundary(t *testing.T) {
	d := DefaultPulseDynamics()
	entry := int64(1_000_000)
	if !d.Rugged(entry, 650_000) {
		t.Fatalf("exactly -35%% must rug")
	}
	if d.Rugged(entry, 650_001) {
		t.Fatalf("just above -35%% must not rug")
	}
	if got := d.RideMultiplier(entry, 1_200_000); got != 1.164 {
		t.Fatalf("ride multiplier got %.6f want 1.164", got)
	}
}

func TestPulseNextPriceStaysInBand(t *testing.T) {
	d := DefaultPulseDynamics()
	rng := NewSeededRNG(99)
	price := d.clamp(MicrosPerUnit)
	for i := 0; i < 50_000; i++ {
		price = d.NextPrice(price, rng)
		if price < d.MinPriceMicros || price > d.MaxPriceMicros {
			t.Fatalf("tick %d price %d outside band", i, price)
		}
	}
}

func TestMarketInjectAndWindows(t *testing.T) {
	m := NewMarket(DefaultPulseDynamics(), DefaultTokens(), NewSeededRNG(1))
	if len(m.Tokens()) != 5 {
		t.Fatalf("expected five starter tokens")
	}
	if err := m.Inject(map[string]int64{"wif": 1_100_000}); err != nil {
		t.Fatalf("inject: %v", err)
	}
	p, ok := m.Price("WIF")
	if !ok || p != 1_100_000 {
		t.Fatalf("price got %d ok=%v", p, ok)
	}
	tok := m.Tokens()[0]
	if math.Abs(tok.Change5s-10) > 1e-9 || math.Abs(tok.Change1m-10) > 1e-9 {
		t.Fatalf("change got 5s=%.4f 1m=%.4f", tok.Change5s, tok.Change1m)
	}
	if err := m.Inject(map[string]int64{"NOPE": 1}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("unknown token should fail, got %v", err)
	}
}

func TestMarketInjectIsAllOrNothing(t *testing.T) {
	cases := []map[string]int64{
		{"WIF": 600_000, "NOPE": 1},
		{"WIF": 600_000, "BONK": 0},
	}
	for _, prices := range cases {
		m := NewMarket(DefaultPulseDynamics(), DefaultTokens(), NewSeededRNG(1))
		before := m.Tokens()
		if err := m.Inject(prices); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("inject %v should fail, got %v", prices, err)
		}
		after := m.Tokens()
		for i := range before {
			if before[i] != after[i] {
				t.Fatalf("inject %v changed %s: %+v -> %+v", prices, before[i].Symbol, before[i], after[i])
			}
		}
	}
}

func TestFairRNGDeterministic(t *testing.T) {
	a, err := NewFairRNG("server-seed", "client", 3)
	if err != nil {
		t.Fatalf("new fair rng: %v", err)
	}
	b, _ := NewFairRNG("server-seed", "client", 3)
	c, _ := NewFairRNG("server-seed", "client", 4)

	same := true
	for i := 0; i < 20; i++ {
		x, y, z := a.Float64(), b.Float64(), c.Float64()
		if x != y {
			t.Fatalf("draw %d differs for identical seeds", i)
		}
		if x < 0 || x >= 1 {
			t.Fatalf("draw %d out of range: %f", i, x)
		}
		if x != z {
			same = false
		}
	}
	if same {
		t.Fatalf("different nonce produced identical stream")
	}
	if _, err := NewFairRNG("", "client", 0); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("empty server seed should fail")
	}
}
