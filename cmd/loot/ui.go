package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"lootfun/internal/bus"
	cl "lootfun/internal/cli"
	"lootfun/internal/game"
	"lootfun/internal/session"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
	legendary   = color.New(color.FgMagenta, color.Bold)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptLine(prefix string) (string, error) {
	fmt.Printf("%s ", prefix)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func renderGames(t game.Tuning) {
	accent.Println("\n== GAMES ==")
	fmt.Printf("%-9s %-10s %-10s %s\n", "GAME", "EDGE", "STAKE", "NOTES")
	for _, k := range game.Kinds() {
		o := session.DefaultOptions(k, t)
		notes := ""
		switch k {
		case game.KindLoot:
			notes = fmt.Sprintf("%d buckets, streak combo up to +%.0f%%", len(t.Loot.Buckets), game.ComboBonus(1_000, 0)*100)
		case game.KindDungeon:
			notes = fmt.Sprintf("%d levels, %d doors", t.Dungeon.Depth, o.Doors)
		case game.KindOrbital:
			notes = fmt.Sprintf("arc %.0f deg shrinking by %.0f%%", t.Orbital.InitialArc, (1-t.Orbital.ShrinkFactor)*100)
		case game.KindPulse:
			notes = fmt.Sprintf("ride %s on %s, rug at -%d.%02d%%", t.Pulse.RideDuration, o.Token, t.Pulse.RugBps/100, t.Pulse.RugBps%100)
		}
		fmt.Printf("%-9s %-10s %-10s %s\n", k, fmt.Sprintf("%.1f%%", o.HouseEdge*100), game.FormatAmount(o.StakeMicros), notes)
	}
	choices := make([]string, 0, len(session.LossLimitChoices))
	for _, v := range session.LossLimitChoices {
		choices = append(choices, game.FormatAmount(v))
	}
	neutral.Printf("loss limit presets: %s\n\n", strings.Join(choices, "  "))
}

func renderStats(s game.Stats, p game.SimPolicy, took time.Duration) {
	accent.Printf("\n== %s RTP (%d rounds, %s) ==\n", strings.ToUpper(string(s.Game)), s.Rounds, took.Round(time.Millisecond))
	switch s.Game {
	case game.KindDungeon:
		neutral.Printf("policy: cash out after level %d\n", p.CashOutLevel)
	case game.KindOrbital:
		neutral.Printf("policy: cash out after %d locks\n", p.CashOutRounds)
	case game.KindPulse:
		neutral.Printf("policy: sell after %s\n", p.HoldFor)
	}
	fmt.Printf("%-10s %s\n", "rtp", colorizeRTP(s.RTP))
	fmt.Printf("%-10s %.2f%%\n", "hit rate", s.HitRate*100)
	fmt.Printf("%-10s %.4f\n", "std dev", s.StdDev)
	fmt.Printf("%-10s %.4fx / %.4fx / %.4fx\n", "p50/90/99", s.P50, s.P90, s.P99)
	fmt.Printf("%-10s %.4fx\n\n", "max", s.MaxMultiplier)
}

func colorizeRTP(v float64) string {
	text := fmt.Sprintf("%.4f%%", v*100)
	if v > 1 {
		return danger.Sprint(text + " (player edge)")
	}
	return success.Sprint(text)
}

func renderSnapshot(s session.Snapshot) {
	phase := string(s.Phase)
	switch s.Phase {
	case session.PhaseBust:
		phase = danger.Sprint(phase)
	case session.PhaseWon, session.PhaseEscaped:
		phase = success.Sprint(phase)
	case session.PhaseActive:
		phase = accent.Sprint(phase)
	}
	fmt.Printf("[%s] %s  balance %s  stake %s  plays %d  wins %d  streak %d",
		s.Game, phase, colorizeAmount(s.BalanceMicros), game.FormatAmount(s.StakeMicros), s.Plays, s.Wins, s.Streak)
	if s.ComboBonus > 0 {
		fmt.Printf("  combo +%.0f%%", s.ComboBonus*100)
	}
	if s.HotBonus > 0 {
		warn.Printf("  HOT +%.0f%%", s.HotBonus*100)
	}
	fmt.Println()

	switch {
	case s.Dungeon != nil:
		renderDungeon(*s.Dungeon)
	case s.Orbital != nil:
		o := s.Orbital
		fmt.Printf("  pointer %5.1f  arc %5.1f +/- %4.1f  speed %5.1f  x%.4f (cash %.4f)  next x%.4f\n",
			o.PointerAngle, o.ArcCenter, o.ArcWidth/2, o.Speed, o.Multiplier, o.CashOut, o.NextGrowth)
	case s.Pulse != nil:
		renderPulse(*s.Pulse)
	}

	if s.AutoplayEnabled {
		accent.Println("  autoplay on")
	} else if s.AutoplayStopped != "" {
		warn.Printf("  autoplay stopped: %s\n", s.AutoplayStopped)
	}
	if s.BreakShown {
		warn.Printf("  %d plays this stretch. Take a break? (k to continue)\n", s.BreakThreshold)
	}
	if s.Closed {
		neutral.Println("  session closed")
	}
}

func renderDungeon(d session.DungeonView) {
	fmt.Printf("  level %d/%d  x%.4f (cash %.4f)\n", min(d.Level, d.Depth), d.Depth, d.MultiplierPreEdge, d.Multiplier)
	for i := len(d.Rows) - 1; i >= 0; i-- {
		row := d.Rows[i]
		var b strings.Builder
		for door := 0; door < d.Doors; door++ {
			switch {
			case row.Choice != nil && *row.Choice == door && row.Survived != nil && !*row.Survived:
				b.WriteString(danger.Sprint("[X]"))
			case row.Choice != nil && *row.Choice == door:
				b.WriteString(success.Sprint("[o]"))
			case row.Trap != nil && *row.Trap == door:
				b.WriteString(warn.Sprint("[x]"))
			default:
				b.WriteString("[ ]")
			}
		}
		marker := "  "
		if row.Level == d.Level {
			marker = "> "
		}
		fmt.Printf("  %s%2d %s\n", marker, row.Level, b.String())
	}
}

func renderPulse(p session.PulseView) {
	for _, t := range p.Tokens {
		marker := "  "
		if t.Symbol == p.Token {
			marker = "> "
		}
		fmt.Printf("  %s%-4s %10s  1m %s  5s %s\n", marker, t.Symbol, game.FormatAmount(t.PriceMicros),
			colorizePercent(t.Change1m), colorizePercent(t.Change5s))
	}
	if p.Ride != nil {
		fmt.Printf("  riding %s from %s, now x%.4f, %.1fs left\n", p.Ride.Symbol,
			game.FormatAmount(p.Ride.EntryMicros), p.Multiplier, float64(p.RemainingMs)/1000)
	}
}

func renderOutcome(o session.Outcome) {
	if o.Ignored {
		warn.Printf("%s ignored: %s\n", o.Action, o.Reason)
		return
	}
	if o.Step != nil && o.Result == nil {
		st := o.Step
		if st.Survived {
			success.Printf("level %d cleared, x%.4f\n", st.Level, st.MultiplierPreEdge)
		}
	}
	if r := o.Result; r != nil {
		line := fmt.Sprintf("%s x%.4f  %s  %s", strings.ToUpper(string(r.Tier)), r.Multiplier,
			signedAmount(r.DeltaMicros()), r.Reason)
		if r.ComboBonus > 0 {
			line += fmt.Sprintf("  (x%.4f +%.0f%% combo)", r.RawMultiplier, r.ComboBonus*100)
		}
		switch {
		case r.Legendary:
			legendary.Println(line)
		case r.Win:
			success.Println(line)
		default:
			danger.Println(line)
		}
		if r.NearMiss {
			warn.Println("so close!")
		}
	}
	renderSnapshot(o.Snapshot)
}

func renderLeaderboard(rows []bus.LeaderRow, totalPayouts int64) {
	accent.Println("\n== LEADERBOARD ==")
	if len(rows) == 0 {
		printInfo("No rounds yet.")
		return
	}
	fmt.Printf("%-6s %-18s %14s\n", "RANK", "PLAYER", "P&L")
	for _, row := range rows {
		fmt.Printf("%-6d %-18s %14s\n", row.Rank, truncate(row.Identity, 18), colorizeAmount(row.PnLMicros))
	}
	neutral.Printf("total payouts %s\n\n", game.FormatAmount(totalPayouts))
}

func renderFeed(title string, entries []bus.FeedEntry) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(title))
	if len(entries) == 0 {
		printInfo("Nothing yet.")
		return
	}
	for _, e := range entries {
		mult := ""
		if e.Multiplier != nil {
			mult = fmt.Sprintf("x%.2f", *e.Multiplier)
		}
		fmt.Printf("%s %-14s %-8s %-8s %s\n", e.At.Format("15:04:05"), truncate(e.Identity, 14), e.Game, mult, colorizeAmount(e.AmountMicros))
	}
	fmt.Println()
}

func renderHistory(records []cl.Record) {
	accent.Println("\n== HISTORY ==")
	if len(records) == 0 {
		printInfo("No rounds recorded yet.")
		return
	}
	var net int64
	for _, r := range records {
		net += r.Result.DeltaMicros()
		fmt.Printf("%s %-8s %-10s x%-8.4f %s\n", r.At.Format("01-02 15:04:05"), r.Result.Game, r.Result.Tier,
			r.Result.Multiplier, colorizeAmount(r.Result.DeltaMicros()))
	}
	neutral.Printf("net %s over %d rounds\n\n", signedAmount(net), len(records))
}

func colorizeAmount(v int64) string {
	text := signedAmount(v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func signedAmount(v int64) string {
	if v > 0 {
		return "+" + game.FormatAmount(v)
	}
	return game.FormatAmount(v)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
