package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "lootfun/internal/cli"
	"lootfun/internal/config"
	"lootfun/internal/game"
	"lootfun/internal/session"

	"github.com/spf13/cobra"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "loot",
		Short:        "Loot drops, dungeons, orbital locks and pulse rides",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL for remote commands")

	root.AddCommand(
		newGamesCmd(),
		newSimCmd(),
		newPlayCmd(),
		newRemoteCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newGamesCmd() *cobra.Command {
	var tuningFile string
	cmd := &cobra.Command{
		Use:   "games",
		Short: "List the games and their default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			tuning, err := config.LoadTuning(tuningFile)
			if err != nil {
				return err
			}
			renderGames(tuning)
			return nil
		},
	}
	cmd.Flags().StringVar(&tuningFile, "tuning", "", "YAML tuning file")
	return cmd
}

func newSimCmd() *cobra.Command {
	var (
		rounds     int
		seed       uint64
		tuningFile string
		policy     = game.DefaultSimPolicy()
	)
	cmd := &cobra.Command{
		Use:   "sim <game>",
		Short: "Estimate return-to-player with a local Monte Carlo run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := game.ParseKind(args[0])
			if err != nil {
				return err
			}
			tuning, err := config.LoadTuning(tuningFile)
			if err != nil {
				return err
			}
			rng := game.DefaultRNG()
			if cmd.Flags().Changed("seed") {
				rng = game.NewSeededRNG(seed)
			}
			started := time.Now()
			stats, err := game.Simulate(kind, tuning, policy, rounds, rng)
			if err != nil {
				return err
			}
			renderStats(stats, policy, time.Since(started))
			return nil
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 100_000, "rounds to simulate")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for a reproducible run")
	cmd.Flags().StringVar(&tuningFile, "tuning", "", "YAML tuning file")
	cmd.Flags().IntVar(&policy.CashOutLevel, "level", policy.CashOutLevel, "dungeon: cash out after this many levels")
	cmd.Flags().IntVar(&policy.CashOutRounds, "locks", policy.CashOutRounds, "orbital: cash out after this many locks")
	cmd.Flags().DurationVar(&policy.HoldFor, "hold", policy.HoldFor, "pulse: sell after holding this long")
	return cmd
}

func newPlayCmd() *cobra.Command {
	var (
		identity   string
		seed       uint64
		tuningFile string
		crowd      bool
		flags      optionFlags
	)
	cmd := &cobra.Command{
		Use:   "play <game>",
		Short: "Play a local session in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := game.ParseKind(args[0])
			if err != nil {
				return err
			}
			tuning, err := config.LoadTuning(tuningFile)
			if err != nil {
				return err
			}
			rng := game.DefaultRNG()
			if cmd.Flags().Changed("seed") {
				rng = game.NewSeededRNG(seed)
			}
			opts, err := flags.apply(session.DefaultOptions(kind, tuning))
			if err != nil {
				return err
			}
			return runLocal(cmd.Context(), localGame{
				Kind:     kind,
				Identity: identity,
				Tuning:   tuning,
				Options:  opts,
				RNG:      rng,
				Crowd:    crowd,
			})
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "name shown on the leaderboard")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for reproducible rounds")
	cmd.Flags().StringVar(&tuningFile, "tuning", "", "YAML tuning file")
	cmd.Flags().BoolVar(&crowd, "crowd", true, "simulate other players on the leaderboard")
	flags.register(cmd)
	return cmd
}

// optionFlags are the session options settable from the command line.
type optionFlags struct {
	stake     string
	lossLimit string
	breakAt   int
	doors     int
	token     string
	autoSell  float64
	autoplay  bool
	houseEdge float64
}

func (f *optionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.stake, "stake", "", "stake per round, e.g. 0.01")
	cmd.Flags().StringVar(&f.lossLimit, "loss-limit", "", "stop autoplay at this balance, e.g. -0.25")
	cmd.Flags().IntVar(&f.breakAt, "break", 0, "plays before a break notice")
	cmd.Flags().IntVar(&f.doors, "doors", 0, "dungeon: doors per level")
	cmd.Flags().StringVar(&f.token, "token", "", "pulse: token to ride")
	cmd.Flags().Float64Var(&f.autoSell, "auto-sell", 0, "pulse: sell once up this many percent")
	cmd.Flags().BoolVar(&f.autoplay, "autoplay", false, "start with autoplay on")
	cmd.Flags().Float64Var(&f.houseEdge, "house-edge", -1, "override the house edge")
}

func (f *optionFlags) apply(o session.Options) (session.Options, error) {
	var err error
	if f.stake != "" {
		if o.StakeMicros, err = game.ParseAmount(f.stake); err != nil {
			return o, err
		}
	}
	if f.lossLimit != "" {
		if o.LossLimitMicros, err = game.ParseAmount(f.lossLimit); err != nil {
			return o, err
		}
	}
	if f.breakAt > 0 {
		o.BreakThreshold = f.breakAt
	}
	if f.doors > 0 {
		o.Doors = f.doors
	}
	if f.token != "" {
		o.Token = strings.ToUpper(f.token)
	}
	if f.autoSell > 0 {
		o.AutoSellPct = f.autoSell
	}
	if f.houseEdge >= 0 {
		o.HouseEdge = f.houseEdge
	}
	o.Autoplay = o.Autoplay || f.autoplay
	return o, nil
}

// patch converts only the flags the user set.
func (f *optionFlags) patch(cmd *cobra.Command) cl.OptionsPatch {
	var p cl.OptionsPatch
	changed := cmd.Flags().Changed
	if changed("stake") {
		p.Stake = &f.stake
	}
	if changed("loss-limit") {
		p.LossLimit = &f.lossLimit
	}
	if changed("break") {
		p.BreakThreshold = &f.breakAt
	}
	if changed("doors") {
		p.Doors = &f.doors
	}
	if changed("token") {
		p.Token = &f.token
	}
	if changed("auto-sell") {
		p.AutoSellPct = &f.autoSell
	}
	if changed("autoplay") {
		p.Autoplay = &f.autoplay
	}
	if changed("house-edge") {
		p.HouseEdge = &f.houseEdge
	}
	return p
}

func newRemoteCmd(apiBase *string) *cobra.Command {
	remote := &cobra.Command{
		Use:   "remote",
		Short: "Play against a lootfun API server",
	}
	remote.AddCommand(
		newRemoteNewCmd(apiBase),
		newRemoteStateCmd(apiBase),
		newRemotePlayCmd(apiBase),
		newRemoteConfigCmd(apiBase),
		newRemoteAutoplayCmd(apiBase),
		newRemoteAckCmd(apiBase),
		newRemoteCloseCmd(apiBase),
		newRemoteLeaderboardCmd(apiBase),
		newRemoteFeedCmd(apiBase),
		newRemoteSimCmd(apiBase),
		newHistoryCmd(),
	)
	return remote
}

func newRemoteNewCmd(apiBase *string) *cobra.Command {
	var (
		identity   string
		clientSeed string
		flags      optionFlags
	)
	cmd := &cobra.Command{
		Use:   "new <game>",
		Short: "Open a session on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := game.ParseKind(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.CreateSession(ctx, kind, identity, clientSeed, flags.patch(cmd))
			if err != nil {
				return err
			}
			saved := cl.Session{
				ID:         out.Session.ID,
				Game:       out.Session.Game,
				Identity:   out.Session.Identity,
				APIBaseURL: client.BaseURL,
			}
			if out.Fair != nil {
				saved.ClientSeed = out.Fair.ClientSeed
				saved.Nonce = out.Fair.Nonce
				printInfo(fmt.Sprintf("Fairness: server seed hash %s, client seed %s, nonce %d",
					out.Fair.ServerSeedHash, out.Fair.ClientSeed, out.Fair.Nonce))
			}
			if err := cl.SaveSession(saved); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Session %s opened as %s.", truncate(saved.ID, 8), saved.Identity))
			renderSnapshot(out.Session)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "name shown on the leaderboard")
	cmd.Flags().StringVar(&clientSeed, "client-seed", "", "client seed for provably fair draws")
	flags.register(cmd)
	return cmd
}

// remoteSession loads the saved session and a client pointed at the server
// it was opened on.
func remoteSession(apiBase *string) (cl.Session, *cl.Client, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, nil, err
	}
	base := *apiBase
	if sess.APIBaseURL != "" {
		base = sess.APIBaseURL
	}
	return sess, newClient(&base), nil
}

func newRemoteStateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, client, err := remoteSession(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			snap, err := client.State(ctx, sess.ID)
			if err != nil {
				return forgetIfGone(err)
			}
			renderSnapshot(snap)
			return nil
		},
	}
}

func newRemotePlayCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "play <start|choose|lock|cashout|sell> [door]",
		Short: "Send one move",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			move, err := moveFromArgs(args)
			if err != nil {
				return err
			}
			sess, client, err := remoteSession(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.Play(ctx, sess.ID, move)
			if err != nil {
				return forgetIfGone(err)
			}
			renderOutcome(out)
			if out.Result != nil {
				if err := cl.AppendHistory(cl.Record{
					SessionID: sess.ID,
					Identity:  sess.Identity,
					Result:    *out.Result,
					At:        time.Now(),
				}); err != nil {
					printWarn(fmt.Sprintf("history not saved: %v", err))
				}
			}
			return nil
		},
	}
}

func moveFromArgs(args []string) (session.Move, error) {
	move := session.Move{Action: session.Action(strings.ToLower(strings.TrimSpace(args[0])))}
	switch move.Action {
	case session.ActionStart, session.ActionLock, session.ActionCashOut, session.ActionSell:
	case session.ActionChoose:
		if len(args) < 2 {
			return move, errors.New("choose needs a door number")
		}
		door, err := strconv.Atoi(strings.TrimSpace(args[1]))
		if err != nil || door < 1 {
			return move, fmt.Errorf("invalid door %q", args[1])
		}
		move.Door = door - 1
	default:
		return move, fmt.Errorf("unknown move %q", args[0])
	}
	return move, nil
}

func newRemoteConfigCmd(apiBase *string) *cobra.Command {
	var flags optionFlags
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Change session options",
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := flags.patch(cmd)
			if patch.Empty() {
				return errors.New("nothing to change, pass at least one option flag")
			}
			sess, client, err := remoteSession(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			snap, err := client.Configure(ctx, sess.ID, patch)
			if err != nil {
				return forgetIfGone(err)
			}
			printSuccess("Options updated.")
			renderSnapshot(snap)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newRemoteAutoplayCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:       "autoplay <on|off>",
		Short:     "Turn autoplay on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[0]) {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			sess, client, err := remoteSession(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			snap, err := client.SetAutoplay(ctx, sess.ID, enabled)
			if err != nil {
				return forgetIfGone(err)
			}
			renderSnapshot(snap)
			return nil
		},
	}
}

func newRemoteAckCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge the break notice",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, client, err := remoteSession(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			snap, err := client.AcknowledgeBreak(ctx, sess.ID)
			if err != nil {
				return forgetIfGone(err)
			}
			printSuccess("Break acknowledged.")
			renderSnapshot(snap)
			return nil
		},
	}
}

func newRemoteCloseCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Close the session on the server and forget it locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, client, err := remoteSession(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			snap, err := client.CloseSession(ctx, sess.ID)
			if err != nil {
				return forgetIfGone(err)
			}
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Session closed after %d plays, balance %s.", snap.Plays, signedAmount(snap.BalanceMicros)))
			return nil
		},
	}
}

func newRemoteLeaderboardCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the table leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Leaderboard(ctx, limit)
			if err != nil {
				return err
			}
			renderLeaderboard(out.Rows, out.TotalPayoutsMicros)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "rows to show")
	return cmd
}

func newRemoteFeedCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "Show recent rounds and the wins ticker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Feed(ctx)
			if err != nil {
				return err
			}
			renderFeed("Recent rounds", out.Feed)
			renderFeed("Big wins", out.Ticker)
			return nil
		},
	}
}

func newRemoteSimCmd(apiBase *string) *cobra.Command {
	var (
		rounds int
		seed   uint64
	)
	cmd := &cobra.Command{
		Use:   "sim <game>",
		Short: "Ask the server for a Monte Carlo estimate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := game.ParseKind(args[0])
			if err != nil {
				return err
			}
			var seedPtr *uint64
			if cmd.Flags().Changed("seed") {
				seedPtr = &seed
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			started := time.Now()
			out, err := newClient(apiBase).Simulate(ctx, kind, rounds, seedPtr)
			if err != nil {
				return err
			}
			renderStats(out.Stats, out.Policy, time.Since(started))
			return nil
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 10_000, "rounds to simulate")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for a reproducible run")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show rounds settled through this CLI",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := cl.LoadHistory()
			if err != nil {
				return err
			}
			if limit > 0 && len(records) > limit {
				records = records[len(records)-limit:]
			}
			renderHistory(records)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "rounds to show")
	return cmd
}

// forgetIfGone drops the saved session once the server says it is closed or
// unknown, so the next `remote new` starts clean.
func forgetIfGone(err error) error {
	var apiErr *cl.APIError
	if errors.As(err, &apiErr) && (apiErr.Status == 404 || apiErr.Status == 410) {
		_ = cl.ClearSession()
		return fmt.Errorf("%s (local session cleared)", apiErr.Message)
	}
	return err
}
