package session

import (
	"errors"
	"testing"
	"time"

	"lootfun/internal/bus"
	"lootfun/internal/game"
	"lootfun/internal/sched"
)

type harness struct {
	s     *Session
	clock *sched.ManualClock
	bus   *bus.Bus
	board *bus.Leaderboard
}

func newHarness(t *testing.T, kind game.Kind, rng game.RandomSource, tweak func(*Options)) *harness {
	t.Helper()
	b := bus.New(nil)
	board := bus.NewLeaderboard()
	board.Attach(b)
	clock := sched.NewManualClock(time.Unix(1_700_000_000, 0))
	tuning := game.DefaultTuning()
	opts := DefaultOptions(kind, tuning)
	if tweak != nil {
		tweak(&opts)
	}
	s, err := New(kind, "tester", Deps{Bus: b, Clock: clock, RNG: rng, Tuning: tuning}, &opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Close)
	return &harness{s: s, clock: clock, bus: b, board: board}
}

// advance moves the clock in small steps so timers scheduled by other timers
// fire at their own deadlines.
func (h *harness) advance(d time.Duration) {
	const step = 50 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		h.clock.Add(step)
		h.s.Scheduler().Tick()
	}
}

func (h *harness) play(t *testing.T, m Move) Outcome {
	t.Helper()
	out, err := h.s.Play(m)
	if err != nil {
		t.Fatalf("play %s: %v", m.Action, err)
	}
	return out
}

func TestBalanceConservation(t *testing.T) {
	h := newHarness(t, game.KindLoot, game.NewSeededRNG(42), func(o *Options) {
		o.StakeMicros = 100_000
		o.BreakThreshold = 1_000
	})
	for i := 0; i < 300; i++ {
		before := h.s.Snapshot()
		out := h.play(t, Move{Action: ActionStart})
		if out.Ignored || out.Result == nil {
			t.Fatalf("round %d ignored: %s", i, out.Reason)
		}
		after := out.Snapshot
		if after.BalanceMicros != before.BalanceMicros-out.Result.StakeMicros+out.Result.PayoutMicros {
			t.Fatalf("round %d: balance %d -> %d with stake %d payout %d", i,
				before.BalanceMicros, after.BalanceMicros, out.Result.StakeMicros, out.Result.PayoutMicros)
		}
		if after.Plays != before.Plays+1 {
			t.Fatalf("round %d: plays %d -> %d", i, before.Plays, after.Plays)
		}
	}
	if pnl, _ := h.board.Get("tester"); pnl != h.s.Snapshot().BalanceMicros {
		t.Fatalf("leaderboard total %d does not match session balance %d", pnl, h.s.Snapshot().BalanceMicros)
	}
}

func TestStreakAndComboCap(t *testing.T) {
	rng := game.NewScriptedRNG()
	for i := 0; i < 12; i++ {
		rng.Push(0.6, 0.5) // common bucket, raw 1.5
	}
	rng.Push(0.1, 0.5) // heavy loss, raw 0.3
	h := newHarness(t, game.KindLoot, rng, func(o *Options) { o.StakeMicros = 100_000 })

	var last Outcome
	for i := 1; i <= 12; i++ {
		last = h.play(t, Move{Action: ActionStart})
		if last.Snapshot.Streak != i {
			t.Fatalf("round %d streak got %d", i, last.Snapshot.Streak)
		}
	}
	if last.Result.Multiplier != 1.65 {
		t.Fatalf("capped combo should give 1.65, got %.6f", last.Result.Multiplier)
	}
	if last.Result.RawMultiplier != 1.5 || last.Result.ComboBonus != 0.10 {
		t.Fatalf("result should carry the draw: raw=%.6f bonus=%.4f", last.Result.RawMultiplier, last.Result.ComboBonus)
	}
	if last.Snapshot.ComboBonus != 0.10 {
		t.Fatalf("combo bonus got %.4f want 0.10", last.Snapshot.ComboBonus)
	}

	loss := h.play(t, Move{Action: ActionStart})
	if loss.Result.Multiplier != 0.3 || loss.Result.ComboBonus != 0 {
		t.Fatalf("loss was amplified: %.6f bonus %.4f", loss.Result.Multiplier, loss.Result.ComboBonus)
	}
	if loss.Snapshot.Streak != 0 || loss.Snapshot.Phase != PhaseBust {
		t.Fatalf("after loss streak=%d phase=%s", loss.Snapshot.Streak, loss.Snapshot.Phase)
	}
	if loss.Snapshot.Wins != 12 || loss.Snapshot.BestMultiplier != 1.65 {
		t.Fatalf("wins=%d best=%.6f", loss.Snapshot.Wins, loss.Snapshot.BestMultiplier)
	}
}

func TestLossLimitHaltsAutoplay(t *testing.T) {
	// every trap and every automatic pick lands on door 0
	h := newHarness(t, game.KindDungeon, game.NewScriptedRNG(0), func(o *Options) {
		o.StakeMicros = 100_000
		o.LossLimitMicros = -250_000
		o.Autoplay = true
	})
	h.advance(30 * time.Second)

	snap := h.s.Snapshot()
	if snap.AutoplayEnabled {
		t.Fatalf("autoplay still enabled at balance %s", snap.Balance)
	}
	if snap.BalanceMicros != -300_000 || snap.Plays != 3 {
		t.Fatalf("balance=%d plays=%d, want -300000 after 3 plays", snap.BalanceMicros, snap.Plays)
	}
	if snap.AutoplayStopped != "loss_limit" {
		t.Fatalf("stop reason got %q", snap.AutoplayStopped)
	}

	h.advance(time.Minute)
	if got := h.s.Snapshot().Plays; got != 3 {
		t.Fatalf("a round ran after autoplay stopped: plays=%d", got)
	}
	if _, err := h.s.SetAutoplay(true); !errors.Is(err, game.ErrInvalidAction) {
		t.Fatalf("re-enabling past the loss limit should fail, got %v", err)
	}
}

func TestAutoplayStallStartsOneRound(t *testing.T) {
	h := newHarness(t, game.KindLoot, game.NewScriptedRNG(0.3), func(o *Options) {
		o.Autoplay = true
		o.BreakThreshold = 1_000
	})
	h.clock.Add(35 * time.Second)
	h.s.Scheduler().Tick()
	if got := h.s.Snapshot().Plays; got != 1 {
		t.Fatalf("one stalled tick started %d rounds, want 1", got)
	}
}

func TestAutoplayWaitsForIdle(t *testing.T) {
	clock := sched.NewManualClock(time.Unix(1_700_000_000, 0))
	tuning := game.DefaultTuning()
	opts := DefaultOptions(game.KindLoot, tuning)
	opts.Autoplay = true
	opts.BreakThreshold = 1_000
	s, err := New(game.KindLoot, "tester", Deps{
		Bus:    bus.New(nil),
		Clock:  clock,
		RNG:    game.NewScriptedRNG(0.3),
		Tuning: tuning,
		// settle plus reset takes 1.5s, longer than the autoplay cadence
		Timing: Timing{AutoplayEvery: time.Second},
	}, &opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Close)
	advance := func(d time.Duration) {
		for elapsed := time.Duration(0); elapsed < d; elapsed += 50 * time.Millisecond {
			clock.Add(50 * time.Millisecond)
			s.Scheduler().Tick()
		}
	}

	advance(1050 * time.Millisecond)
	if snap := s.Snapshot(); snap.Plays != 1 || snap.Phase == PhaseIdle {
		t.Fatalf("first round: plays=%d phase=%s", snap.Plays, snap.Phase)
	}
	// the 2s tick lands before the session is idle again at 2.5s
	advance(time.Second)
	if got := s.Snapshot().Plays; got != 1 {
		t.Fatalf("autoplay started a round before idle: plays=%d", got)
	}
	advance(time.Second)
	if got := s.Snapshot().Plays; got != 2 {
		t.Fatalf("autoplay should resume once idle: plays=%d", got)
	}
}

func TestLegendaryStopsAutoplay(t *testing.T) {
	h := newHarness(t, game.KindLoot, game.NewScriptedRNG(0.99, 0.5), func(o *Options) { o.Autoplay = true })
	h.advance(4 * time.Second)
	snap := h.s.Snapshot()
	if snap.Plays != 1 || !snap.Last.Legendary {
		t.Fatalf("plays=%d last=%+v", snap.Plays, snap.Last)
	}
	if snap.AutoplayEnabled || snap.AutoplayStopped != "legendary" {
		t.Fatalf("legendary should stop autoplay: enabled=%v reason=%q", snap.AutoplayEnabled, snap.AutoplayStopped)
	}
	h.advance(10 * time.Second)
	if h.s.Snapshot().Plays != 1 {
		t.Fatalf("autoplay kept running after a legendary drop")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	h := newHarness(t, game.KindDungeon, game.NewScriptedRNG(0.9), nil)
	first := h.play(t, Move{Action: ActionStart})
	if first.Ignored || first.Snapshot.Phase != PhaseActive {
		t.Fatalf("first start: %+v", first)
	}
	second := h.play(t, Move{Action: ActionStart})
	if !second.Ignored || !errors.Is(second.Err(), game.ErrInvalidAction) {
		t.Fatalf("second start should be ignored, got %+v", second)
	}
	if second.Snapshot.Plays != 0 || second.Snapshot.Dungeon.Level != 1 || second.Snapshot.BalanceMicros != 0 {
		t.Fatalf("second start changed state: %+v", second.Snapshot)
	}
}

func TestSettleThenIdle(t *testing.T) {
	h := newHarness(t, game.KindLoot, game.NewScriptedRNG(0.6, 0.5), nil)
	out := h.play(t, Move{Action: ActionStart})
	if out.Snapshot.Phase != PhaseWon {
		t.Fatalf("phase got %s", out.Snapshot.Phase)
	}
	h.advance(1200 * time.Millisecond)
	if got := h.s.Snapshot().Phase; got != PhaseSettled {
		t.Fatalf("phase after settle delay got %s", got)
	}
	h.advance(300 * time.Millisecond)
	if got := h.s.Snapshot().Phase; got != PhaseIdle {
		t.Fatalf("phase after reset delay got %s", got)
	}
}

func TestRestartCancelsPendingSettle(t *testing.T) {
	h := newHarness(t, game.KindDungeon, game.NewScriptedRNG(0.9), nil)
	h.play(t, Move{Action: ActionStart})
	h.play(t, Move{Action: ActionChoose, Door: 4}) // trap
	h.play(t, Move{Action: ActionStart})
	h.advance(2 * time.Second)
	if got := h.s.Snapshot().Phase; got != PhaseActive {
		t.Fatalf("stale settle timer moved a live round to %s", got)
	}
}

func TestBreakNotice(t *testing.T) {
	h := newHarness(t, game.KindLoot, game.NewSeededRNG(1), func(o *Options) { o.BreakThreshold = 3 })
	for i := 0; i < 3; i++ {
		h.play(t, Move{Action: ActionStart})
	}
	out := h.play(t, Move{Action: ActionStart})
	if !out.Ignored || !out.Snapshot.BreakShown || out.Snapshot.Plays != 3 {
		t.Fatalf("break notice not raised: %+v", out.Snapshot)
	}
	if _, err := h.s.SetAutoplay(true); !errors.Is(err, game.ErrInvalidAction) {
		t.Fatalf("autoplay should be refused during a break, got %v", err)
	}
	if again := h.play(t, Move{Action: ActionStart}); !again.Ignored {
		t.Fatalf("start should stay blocked until acknowledged")
	}

	if snap := h.s.AcknowledgeBreak(); snap.BreakShown {
		t.Fatalf("acknowledge did not clear the notice")
	}
	if after := h.play(t, Move{Action: ActionStart}); after.Ignored || after.Snapshot.Plays != 4 {
		t.Fatalf("play after acknowledge: %+v", after)
	}
}

func TestBreakDisablesAutoplay(t *testing.T) {
	h := newHarness(t, game.KindLoot, game.NewScriptedRNG(0.3, 0.5), func(o *Options) {
		o.BreakThreshold = 2
		o.Autoplay = true
	})
	h.advance(20 * time.Second)
	snap := h.s.Snapshot()
	if snap.Plays != 2 || !snap.BreakShown || snap.AutoplayEnabled || snap.AutoplayStopped != "break" {
		t.Fatalf("snapshot %+v", snap)
	}
}

func TestRejectedAutoplayKeepsFinishedRun(t *testing.T) {
	h := newHarness(t, game.KindDungeon, game.NewScriptedRNG(0), func(o *Options) {
		o.StakeMicros = 100_000
		o.LossLimitMicros = -50_000
	})
	h.play(t, Move{Action: ActionStart})
	bust := h.play(t, Move{Action: ActionChoose, Door: 0})
	if bust.Snapshot.Phase != PhaseBust || bust.Snapshot.Dungeon == nil || len(bust.Snapshot.Dungeon.Rows) == 0 {
		t.Fatalf("expected a bust, got %s", bust.Snapshot.Phase)
	}
	rows := len(bust.Snapshot.Dungeon.Rows)

	next := h.s.Options()
	next.Doors = 7
	next.Autoplay = true
	snap, err := h.s.Configure(next)
	if !errors.Is(err, game.ErrInvalidAction) {
		t.Fatalf("autoplay past the loss limit should fail, got %v", err)
	}
	if snap.Dungeon == nil || len(snap.Dungeon.Rows) != rows || snap.Dungeon.Doors != bust.Snapshot.Dungeon.Doors {
		t.Fatalf("rejected configure dropped the finished run: %+v", snap.Dungeon)
	}
}

func TestConfigureRejectsWholeCall(t *testing.T) {
	h := newHarness(t, game.KindDungeon, game.NewSeededRNG(3), nil)
	prev := h.s.Options()

	bad := []struct {
		name   string
		mutate func(*Options)
		want   error
	}{
		{name: "doors", mutate: func(o *Options) { o.Doors = 11; o.StakeMicros = 50_000 }, want: game.ErrConfiguration},
		{name: "stake", mutate: func(o *Options) { o.StakeMicros = 0 }, want: game.ErrInvalidStake},
		{name: "stake above max", mutate: func(o *Options) { o.StakeMicros = 300_000 }, want: game.ErrInvalidStake},
		{name: "loss limit", mutate: func(o *Options) { o.LossLimitMicros = 10_000 }, want: game.ErrConfiguration},
		{name: "edge", mutate: func(o *Options) { o.HouseEdge = 1 }, want: game.ErrConfiguration},
		{name: "threshold", mutate: func(o *Options) { o.BreakThreshold = 0 }, want: game.ErrConfiguration},
	}
	for _, tc := range bad {
		next := prev
		tc.mutate(&next)
		if _, err := h.s.Configure(next); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
		if got := h.s.Options(); got != prev {
			t.Fatalf("%s: options changed after rejected configure: %+v", tc.name, got)
		}
	}

	next := prev
	next.Doors = 3
	next.StakeMicros = 50_000
	snap, err := h.s.Configure(next)
	if err != nil {
		t.Fatalf("valid configure: %v", err)
	}
	if snap.StakeMicros != 50_000 || snap.Dungeon.Doors != 3 || snap.Dungeon.RowBase != 1.5 {
		t.Fatalf("configure not applied: %+v", snap.Dungeon)
	}

	h.play(t, Move{Action: ActionStart})
	mid := next
	mid.Doors = 4
	if _, err := h.s.Configure(mid); !errors.Is(err, game.ErrConfiguration) {
		t.Fatalf("changing doors mid-run should fail, got %v", err)
	}
}

func TestInvalidActionsAreNoOps(t *testing.T) {
	h := newHarness(t, game.KindDungeon, game.NewScriptedRNG(0.9), nil)
	if out := h.play(t, Move{Action: ActionCashOut}); !out.Ignored {
		t.Fatalf("cash out with no round should be ignored")
	}
	h.play(t, Move{Action: ActionStart})
	if out := h.play(t, Move{Action: ActionCashOut}); !out.Ignored || out.Snapshot.Phase != PhaseActive {
		t.Fatalf("cash out before any level should be ignored: %+v", out)
	}
	if out := h.play(t, Move{Action: ActionChoose, Door: 9}); !out.Ignored || out.Snapshot.Dungeon.Level != 1 {
		t.Fatalf("out of range door should be ignored: %+v", out)
	}
	if out := h.play(t, Move{Action: ActionLock}); !out.Ignored {
		t.Fatalf("lock is not a dungeon move")
	}
}

func TestTeardownStopsEveryTimer(t *testing.T) {
	h := newHarness(t, game.KindDungeon, game.NewSeededRNG(9), func(o *Options) { o.Autoplay = true })
	h.advance(5 * time.Second)
	played := h.s.Snapshot().Plays
	h.s.Close()
	h.s.Close()

	h.advance(time.Minute)
	if got := h.s.Snapshot().Plays; got != played {
		t.Fatalf("timer fired after teardown: plays %d -> %d", played, got)
	}
	if h.s.Scheduler().Pending() != 0 {
		t.Fatalf("scheduler still holds %d callbacks", h.s.Scheduler().Pending())
	}
	if _, err := h.s.Play(Move{Action: ActionStart}); !errors.Is(err, game.ErrSessionClosed) {
		t.Fatalf("play after close got %v", err)
	}
}

func TestRoundPublishesEvent(t *testing.T) {
	h := newHarness(t, game.KindLoot, game.NewScriptedRNG(0.6, 0.5), func(o *Options) { o.StakeMicros = 100_000 })
	var got []bus.Event
	h.bus.Subscribe("recorder", func(e bus.Event) { got = append(got, e) })
	h.play(t, Move{Action: ActionStart})
	if len(got) != 1 {
		t.Fatalf("expected one event, got %d", len(got))
	}
	e := got[0]
	if e.Identity != "tester" || e.Game != game.KindLoot || !e.Win || e.AmountMicros != 50_000 {
		t.Fatalf("event %+v", e)
	}
	if e.Multiplier == nil || *e.Multiplier != 1.5 {
		t.Fatalf("event multiplier %v", e.Multiplier)
	}
}

func TestDefaultIdentity(t *testing.T) {
	b := bus.New(nil)
	s, err := New(game.KindLoot, "", Deps{Bus: b, Clock: sched.NewManualClock(time.Unix(0, 0)), Tuning: game.DefaultTuning()}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()
	id := s.Identity()
	if len(id) != 8 || id[:4] != "you_" {
		t.Fatalf("identity got %q", id)
	}
	if _, err := New(game.Kind("slots"), "", Deps{Bus: b, Tuning: game.DefaultTuning()}, nil); !errors.Is(err, game.ErrUnknownGame) {
		t.Fatalf("unknown game got %v", err)
	}
}
