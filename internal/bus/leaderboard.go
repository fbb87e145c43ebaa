package bus

import (
	"sort"
	"strings"
	"sync"

	"lootfun/internal/game"
)

type LeaderRow struct {
	Rank      int64  `json:"rank"`
	Identity  string `json:"identity"`
	PnLMicros int64  `json:"pnl_micros"`
	PnL       string `json:"pnl"`
}

type leader struct {
	identity string
	pnl      int64
	seq      uint64
}

// Leaderboard keeps a running P&L per identity, ranked descending. Equal
// totals rank the identity registered first ahead.
type Leaderboard struct {
	mu     sync.Mutex
	rows   []*leader
	byName map[string]*leader
	seq    uint64
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{byName: make(map[string]*leader)}
}

// Attach subscribes the leaderboard to b.
func (l *Leaderboard) Attach(b *Bus) Subscription {
	return b.Subscribe("leaderboard", l.Apply)
}

func (l *Leaderboard) Apply(e Event) {
	l.Add(e.Identity, e.AmountMicros)
}

// Add finds or creates the identity's row and adds a signed amount to it.
func (l *Leaderboard) Add(identity string, amountMicros int64) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.byName[identity]
	if !ok {
		l.seq++
		row = &leader{identity: identity, seq: l.seq}
		l.byName[identity] = row
		l.rows = append(l.rows, row)
	}
	row.pnl += amountMicros
	sort.SliceStable(l.rows, func(i, j int) bool {
		if l.rows[i].pnl != l.rows[j].pnl {
			return l.rows[i].pnl > l.rows[j].pnl
		}
		return l.rows[i].seq < l.rows[j].seq
	})
}

// Rows returns up to limit ranked rows; limit <= 0 returns all of them.
func (l *Leaderboard) Rows(limit int) []LeaderRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.rows)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]LeaderRow, 0, n)
	for i := 0; i < n; i++ {
		r := l.rows[i]
		out = append(out, LeaderRow{
			Rank:      int64(i + 1),
			Identity:  r.identity,
			PnLMicros: r.pnl,
			PnL:       game.FormatAmount(r.pnl),
		})
	}
	return out
}

func (l *Leaderboard) Get(identity string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.byName[identity]
	if !ok {
		return 0, false
	}
	return row.pnl, true
}

// TotalPayoutsMicros sums every positive running total.
func (l *Leaderboard) TotalPayoutsMicros() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, r := range l.rows {
		if r.pnl > 0 {
			total += r.pnl
		}
	}
	return total
}
