package session

import (
	"errors"
	"testing"
	"time"

	"lootfun/internal/game"
)

func TestDungeonCashOutAndHiddenTraps(t *testing.T) {
	// every trap behind door 4
	h := newHarness(t, game.KindDungeon, game.NewScriptedRNG(0.9), func(o *Options) { o.StakeMicros = 100_000 })
	h.play(t, Move{Action: ActionStart})
	out := h.play(t, Move{Action: ActionChoose, Door: 0})
	if out.Step == nil || !out.Step.Survived || out.Step.Multiplier != 1.1875 {
		t.Fatalf("step %+v", out.Step)
	}
	rows := out.Snapshot.Dungeon.Rows
	if rows[0].Trap == nil || *rows[0].Trap != 4 {
		t.Fatalf("opened row should reveal its trap")
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Trap != nil {
			t.Fatalf("row %d leaked its trap during the run", i+1)
		}
	}

	cash := h.play(t, Move{Action: ActionCashOut})
	if cash.Result == nil || cash.Result.Multiplier != 1.1875 || cash.Result.PayoutMicros != 118_750 {
		t.Fatalf("cash out result %+v", cash.Result)
	}
	if cash.Snapshot.Phase != PhaseEscaped || cash.Snapshot.BalanceMicros != 18_750 {
		t.Fatalf("after cash out phase=%s balance=%d", cash.Snapshot.Phase, cash.Snapshot.BalanceMicros)
	}
	for i, row := range cash.Snapshot.Dungeon.Rows {
		if row.Trap == nil {
			t.Fatalf("row %d should be revealed once the run is over", i+1)
		}
	}
}

func TestDungeonTrapLosesStake(t *testing.T) {
	h := newHarness(t, game.KindDungeon, game.NewScriptedRNG(0.9), func(o *Options) { o.StakeMicros = 100_000 })
	h.play(t, Move{Action: ActionStart})
	h.play(t, Move{Action: ActionChoose, Door: 3}) // near miss, survives
	out := h.play(t, Move{Action: ActionChoose, Door: 4})
	if out.Result == nil || out.Result.Win || out.Result.PayoutMicros != 0 || out.Result.Reason != "trap" {
		t.Fatalf("trap result %+v", out.Result)
	}
	if out.Snapshot.BalanceMicros != -100_000 || out.Snapshot.Phase != PhaseBust {
		t.Fatalf("balance=%d phase=%s", out.Snapshot.BalanceMicros, out.Snapshot.Phase)
	}
	if out.Snapshot.Dungeon.MultiplierPreEdge != 0 || out.Snapshot.Dungeon.Multiplier != 0 {
		t.Fatalf("trap should zero both totals: %+v", out.Snapshot.Dungeon)
	}
}

func TestDungeonClearingEveryRowForcesCashOut(t *testing.T) {
	h := newHarness(t, game.KindDungeon, game.NewScriptedRNG(0.9), func(o *Options) { o.HouseEdge = 0 })
	h.play(t, Move{Action: ActionStart})
	var out Outcome
	for i := 0; i < game.DefaultDungeonRules().Depth; i++ {
		out = h.play(t, Move{Action: ActionChoose, Door: 0})
	}
	if out.Result == nil || out.Result.Reason != "cleared" || out.Snapshot.Phase != PhaseEscaped {
		t.Fatalf("clearing the dungeon should cash out: %+v", out)
	}
}

func TestDungeonAutoplayCashesOutAtLevelThree(t *testing.T) {
	h := newHarness(t, game.KindDungeon, game.NewScriptedRNG(0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9,
		0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0), func(o *Options) {
		o.StakeMicros = 100_000
		o.Autoplay = true
	})
	// traps are all on door 4, every automatic pick is door 0
	h.advance(7 * time.Second)
	snap := h.s.Snapshot()
	if snap.Plays < 1 || snap.Last == nil || snap.Last.Reason != "cashout" {
		t.Fatalf("expected an automatic cash out, got %+v", snap.Last)
	}
	want := game.RoundMultiplier(1.953125 * 0.95)
	if snap.Last.Multiplier != want {
		t.Fatalf("cash out multiplier got %.6f want %.6f", snap.Last.Multiplier, want)
	}
}

func TestOrbitalLockAndCashOut(t *testing.T) {
	h := newHarness(t, game.KindOrbital, game.NewScriptedRNG(0.5), func(o *Options) { o.StakeMicros = 100_000 })
	h.play(t, Move{Action: ActionStart})

	// 160 deg/s for 562.5ms puts the pointer on the arc centre at 90 deg
	h.clock.Add(562500 * time.Microsecond)
	out := h.play(t, Move{Action: ActionLock})
	if out.Step == nil || !out.Step.Survived {
		t.Fatalf("lock at the arc centre should hold: %+v", out.Step)
	}
	growth := game.DefaultOrbitalGeometry().Growth(126)
	if out.Step.MultiplierPreEdge != growth {
		t.Fatalf("pre-edge multiplier got %.6f want %.6f", out.Step.MultiplierPreEdge, growth)
	}
	orb := out.Snapshot.Orbital
	if orb.Round != 1 || orb.ArcCenter != 180 || orb.Speed != 229.5 {
		t.Fatalf("arena after lock %+v", orb)
	}

	cash := h.play(t, Move{Action: ActionCashOut})
	want := game.RoundMultiplier(growth * 0.97)
	if cash.Result == nil || cash.Result.Multiplier != want || !cash.Result.Win {
		t.Fatalf("cash out %+v want multiplier %.6f", cash.Result, want)
	}
	if cash.Snapshot.Phase != PhaseEscaped {
		t.Fatalf("phase got %s", cash.Snapshot.Phase)
	}
}

func TestOrbitalMissBusts(t *testing.T) {
	h := newHarness(t, game.KindOrbital, game.NewScriptedRNG(0.5), nil)
	h.play(t, Move{Action: ActionStart})
	if out := h.play(t, Move{Action: ActionCashOut}); !out.Ignored {
		t.Fatalf("cash out before any lock should be ignored")
	}
	// pointer still at 0 deg, 90 deg from the centre
	out := h.play(t, Move{Action: ActionLock})
	if out.Result == nil || out.Result.Win || out.Result.Multiplier != 0 || out.Result.NearMiss {
		t.Fatalf("miss result %+v", out.Result)
	}
	if out.Snapshot.Phase != PhaseBust {
		t.Fatalf("phase got %s", out.Snapshot.Phase)
	}
}

func TestOrbitalNearMiss(t *testing.T) {
	h := newHarness(t, game.KindOrbital, game.NewScriptedRNG(0.5), nil)
	h.play(t, Move{Action: ActionStart})
	// 25 deg: two degrees short of the arc's leading edge at 27 deg
	h.clock.Add(156250 * time.Microsecond)
	out := h.play(t, Move{Action: ActionLock})
	if out.Result == nil || !out.Result.NearMiss {
		t.Fatalf("expected a near miss, got %+v", out.Result)
	}
}

func TestPulseRugAtExactlyThirtyFivePercent(t *testing.T) {
	h := newHarness(t, game.KindPulse, game.NewSeededRNG(2), func(o *Options) {
		o.Token = "WIF"
		o.StakeMicros = 100_000
	})
	start := h.play(t, Move{Action: ActionStart})
	if start.Snapshot.Pulse.Ride == nil || start.Snapshot.Pulse.Ride.EntryMicros != 1_000_000 {
		t.Fatalf("ride %+v", start.Snapshot.Pulse.Ride)
	}

	snap, err := h.s.InjectPrices(map[string]int64{"WIF": 650_001})
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if snap.Phase != PhaseActive {
		t.Fatalf("-34.9999%% must not rug, phase=%s", snap.Phase)
	}

	snap, err = h.s.InjectPrices(map[string]int64{"WIF": 650_000})
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if snap.Phase != PhaseBust || snap.Last == nil || snap.Last.Reason != "rug" || snap.Last.Multiplier != 0 {
		t.Fatalf("-35%% should rug: phase=%s last=%+v", snap.Phase, snap.Last)
	}
	if snap.BalanceMicros != -100_000 {
		t.Fatalf("balance got %d", snap.BalanceMicros)
	}

	h.advance(25 * time.Second)
	if got := h.s.Snapshot().Plays; got != 1 {
		t.Fatalf("ride deadline fired after the rug: plays=%d", got)
	}
}

func TestPulseRejectedInjectLeavesRideUntouched(t *testing.T) {
	h := newHarness(t, game.KindPulse, game.NewSeededRNG(2), func(o *Options) {
		o.Token = "WIF"
		o.StakeMicros = 100_000
	})
	h.play(t, Move{Action: ActionStart})

	snap, err := h.s.InjectPrices(map[string]int64{"WIF": 600_000, "NOPE": 1})
	if !errors.Is(err, game.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if snap.Phase != PhaseActive || snap.Plays != 0 {
		t.Fatalf("rejected inject settled the ride: phase=%s plays=%d", snap.Phase, snap.Plays)
	}
	if snap.Pulse.PriceMicros != 1_000_000 {
		t.Fatalf("rejected inject moved the price to %d", snap.Pulse.PriceMicros)
	}
}

func TestPulseSellUsesFrozenEntry(t *testing.T) {
	h := newHarness(t, game.KindPulse, game.NewSeededRNG(2), func(o *Options) {
		o.Token = "OMG"
		o.StakeMicros = 100_000
	})
	h.play(t, Move{Action: ActionStart})
	if _, err := h.s.InjectPrices(map[string]int64{"OMG": 1_200_000}); err != nil {
		t.Fatalf("inject: %v", err)
	}
	out := h.play(t, Move{Action: ActionSell})
	if out.Result == nil || out.Result.Multiplier != 1.164 || out.Result.PayoutMicros != 116_400 {
		t.Fatalf("sell result %+v", out.Result)
	}
	if out.Snapshot.Phase != PhaseEscaped || out.Snapshot.Pulse.Ride != nil {
		t.Fatalf("after sell phase=%s ride=%+v", out.Snapshot.Phase, out.Snapshot.Pulse.Ride)
	}
	if again := h.play(t, Move{Action: ActionSell}); !again.Ignored {
		t.Fatalf("second sell should be ignored")
	}
}

func TestPulseForcedSaleAtDeadline(t *testing.T) {
	h := newHarness(t, game.KindPulse, game.NewSeededRNG(4), func(o *Options) { o.Token = "ETH" })
	h.play(t, Move{Action: ActionStart})
	h.advance(19 * time.Second)
	snap := h.s.Snapshot()
	if snap.Phase == PhaseActive && (snap.Pulse.RemainingMs <= 0 || snap.Pulse.RemainingMs > 1_000) {
		t.Fatalf("remaining got %dms", snap.Pulse.RemainingMs)
	}
	h.advance(2 * time.Second)
	snap = h.s.Snapshot()
	if snap.Plays != 1 || snap.Last == nil {
		t.Fatalf("ride did not settle by its deadline: %+v", snap)
	}
	if snap.Last.Reason != "time" && snap.Last.Reason != "rug" {
		t.Fatalf("reason got %q", snap.Last.Reason)
	}
	if snap.Last.Reason == "time" && snap.Last.Win && snap.Phase != PhaseWon {
		t.Fatalf("winning forced sale should be won, got %s", snap.Phase)
	}
}

func TestPulseAutoSell(t *testing.T) {
	h := newHarness(t, game.KindPulse, game.NewSeededRNG(2), func(o *Options) {
		o.Token = "PRK"
		o.AutoSellPct = 10
	})
	h.play(t, Move{Action: ActionStart})
	snap, err := h.s.InjectPrices(map[string]int64{"PRK": 1_100_000})
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if snap.Last == nil || snap.Last.Reason != "auto_sell" {
		t.Fatalf("expected auto sell, got %+v", snap.Last)
	}
}

func TestPulseConfigureUnknownToken(t *testing.T) {
	h := newHarness(t, game.KindPulse, game.NewSeededRNG(2), nil)
	next := h.s.Options()
	next.Token = "DOGE"
	if _, err := h.s.Configure(next); !errors.Is(err, game.ErrConfiguration) {
		t.Fatalf("unknown token got %v", err)
	}
	if _, err := h.s.InjectPrices(map[string]int64{"DOGE": 1}); !errors.Is(err, game.ErrConfiguration) {
		t.Fatalf("inject unknown token got %v", err)
	}
}

func TestInjectPricesNeedsPulse(t *testing.T) {
	h := newHarness(t, game.KindLoot, game.NewSeededRNG(2), nil)
	if _, err := h.s.InjectPrices(map[string]int64{"WIF": 1}); !errors.Is(err, game.ErrInvalidAction) {
		t.Fatalf("got %v", err)
	}
}
