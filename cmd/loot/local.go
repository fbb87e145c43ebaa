package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"lootfun/internal/bus"
	"lootfun/internal/game"
	"lootfun/internal/sched"
	"lootfun/internal/session"
)

type localGame struct {
	Kind     game.Kind
	Identity string
	Tuning   game.Tuning
	Options  session.Options
	RNG      game.RandomSource
	Crowd    bool
}

// runLocal wires an in-process table (bus, leaderboard, wins ticker and an
// optional crowd) around one session and reads moves from stdin.
func runLocal(parent context.Context, g localGame) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	clock := sched.SystemClock()
	b := bus.New(logger)
	board := bus.NewLeaderboard()
	board.Attach(b)

	table := sched.New(clock)
	defer table.Close()
	ticker := bus.NewTicker(table)
	ticker.Attach(b, "ticker")
	if g.Crowd {
		bus.SeedLeaders(board, g.RNG)
		bus.NewCrowd(b, g.RNG).Start(table, bus.DefaultCrowdEvery)
	}
	go func() { _ = table.Run(ctx) }()

	sess, err := session.New(g.Kind, g.Identity, session.Deps{
		Bus:    b,
		Clock:  clock,
		RNG:    g.RNG,
		Tuning: g.Tuning,
		Logger: logger,
	}, &g.Options)
	if err != nil {
		return err
	}
	defer sess.Close()
	go func() { _ = sess.Run(ctx) }()

	accent.Printf("\n%s as %s\n", strings.ToUpper(string(g.Kind)), sess.Identity())
	printLocalHelp(g.Kind)
	renderSnapshot(sess.Snapshot())

	for {
		line, err := promptLine(">")
		if err != nil {
			return nil
		}
		fields := strings.Fields(strings.ToLower(line))
		if len(fields) == 0 {
			renderSnapshot(sess.Snapshot())
			continue
		}
		switch fields[0] {
		case "q", "quit", "exit":
			snap := sess.Snapshot()
			printInfo(fmt.Sprintf("Played %d rounds, balance %s.", snap.Plays, signedAmount(snap.BalanceMicros)))
			renderLeaderboard(board.Rows(10), board.TotalPayoutsMicros())
			return nil
		case "h", "help", "?":
			printLocalHelp(g.Kind)
		case "a", "auto":
			snap, err := sess.SetAutoplay(!sess.Options().Autoplay)
			if err != nil {
				printWarn(err.Error())
			}
			renderSnapshot(snap)
		case "k", "ack":
			renderSnapshot(sess.AcknowledgeBreak())
		case "b", "board":
			renderLeaderboard(board.Rows(10), board.TotalPayoutsMicros())
		case "w", "wins":
			renderFeed("Big wins", ticker.Entries())
		case "stake":
			if len(fields) < 2 {
				printWarn("usage: stake 0.02")
				continue
			}
			v, err := game.ParseAmount(fields[1])
			if err != nil {
				printWarn(err.Error())
				continue
			}
			next := sess.Options()
			next.StakeMicros = v
			snap, err := sess.Configure(next)
			if err != nil {
				printWarn(err.Error())
			}
			renderSnapshot(snap)
		default:
			move, ok := localMove(fields)
			if !ok {
				printWarn("Unknown command, type h for help.")
				continue
			}
			out, err := sess.Play(move)
			if err != nil {
				printError(err.Error())
				continue
			}
			renderOutcome(out)
		}
	}
}

func localMove(fields []string) (session.Move, bool) {
	if n, err := strconv.Atoi(fields[0]); err == nil && n >= 1 {
		return session.Move{Action: session.ActionChoose, Door: n - 1}, true
	}
	switch fields[0] {
	case "s", "start", "go":
		return session.Move{Action: session.ActionStart}, true
	case "l", "lock":
		return session.Move{Action: session.ActionLock}, true
	case "c", "cash", "cashout":
		return session.Move{Action: session.ActionCashOut}, true
	case "x", "sell":
		return session.Move{Action: session.ActionSell}, true
	case "d", "door":
		if len(fields) < 2 {
			return session.Move{}, false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return session.Move{}, false
		}
		return session.Move{Action: session.ActionChoose, Door: n - 1}, true
	}
	return session.Move{}, false
}

func printLocalHelp(kind game.Kind) {
	moves := map[game.Kind]string{
		game.KindLoot:    "s open a drop",
		game.KindDungeon: "s enter, 1..n pick a door, c cash out",
		game.KindOrbital: "s launch, l lock, c cash out",
		game.KindPulse:   "s buy in, x sell",
	}
	neutral.Printf("moves: %s | a autoplay, k ack break, stake N, b board, w wins, enter refresh, q quit\n", moves[kind])
}
