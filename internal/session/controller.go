package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"lootfun/internal/bus"
	"lootfun/internal/game"
	"lootfun/internal/sched"
)

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseActive  Phase = "active"
	PhaseBust    Phase = "bust"
	PhaseWon     Phase = "won"
	PhaseEscaped Phase = "escaped"
	PhaseSettled Phase = "settled"
)

type Action string

const (
	ActionStart   Action = "start"
	ActionChoose  Action = "choose"
	ActionLock    Action = "lock"
	ActionCashOut Action = "cashout"
	ActionSell    Action = "sell"
)

// Move is one player input.
type Move struct {
	Action Action `json:"action"`
	Door   int    `json:"door,omitempty"`
}

// Outcome is what Play returns. Ignored outcomes changed nothing.
type Outcome struct {
	Action   Action            `json:"action"`
	Ignored  bool              `json:"ignored,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Step     *game.StepResult  `json:"step,omitempty"`
	Result   *game.RoundResult `json:"result,omitempty"`
	Snapshot Snapshot          `json:"snapshot"`
}

func (o Outcome) Err() error {
	if !o.Ignored {
		return nil
	}
	return fmt.Errorf("%w: %s", game.ErrInvalidAction, o.Reason)
}

// Deps are the collaborators a session is built with.
type Deps struct {
	Bus    *bus.Bus
	Clock  sched.Clock
	RNG    game.RandomSource
	Tuning game.Tuning
	Timing Timing
	Limits Limits
	Logger *slog.Logger
}

// variant is the per-game part of a session. Every method runs with the
// session lock held.
type variant interface {
	begin(s *Session) Outcome
	act(s *Session, m Move) Outcome
	autoStep(s *Session)
	fill(s *Session, snap *Snapshot)
	configure(s *Session, next Options) error
	close(s *Session)
}

// Session is one player at one game. All state changes, from API calls and
// timer callbacks alike, serialize on mu, so a round is never evaluated twice
// at once.
type Session struct {
	mu       sync.Mutex
	id       string
	kind     game.Kind
	identity string
	bus      *bus.Bus
	sched    *sched.Scheduler
	rng      game.RandomSource
	tuning   game.Tuning
	timing   Timing
	limits   Limits
	log      *slog.Logger
	v        variant

	opts       Options
	phase      Phase
	balance    int64
	plays      int
	wins       int
	streak     int
	best       float64
	hot        float64
	playsAtAck int
	breakShown bool
	stopReason string
	stake      int64
	last       *game.RoundResult
	lastStep   *game.StepResult
	closed     bool

	// round is bumped by every start and by Close; timers belonging to an
	// older round do nothing when they fire. autoGen does the same for
	// autoplay.
	round     uint64
	autoGen   uint64
	settleTok sched.Token
	resetTok  sched.Token
	autoTok   sched.Token
	stepTok   sched.Token
}

// New builds a session. The caller drives its timers with Run, or with
// Scheduler().Tick under a manual clock.
func New(kind game.Kind, identity string, deps Deps, opts *Options) (*Session, error) {
	if _, err := game.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if deps.Bus == nil {
		return nil, fmt.Errorf("%w: session needs a bus", game.ErrConfiguration)
	}
	if deps.RNG == nil {
		deps.RNG = game.DefaultRNG()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Limits == (Limits{}) {
		deps.Limits = DefaultLimits()
	}
	if err := deps.Tuning.Validate(); err != nil {
		return nil, err
	}
	if identity == "" {
		identity = DefaultIdentity()
	}

	o := DefaultOptions(kind, deps.Tuning)
	if opts != nil {
		o = *opts
	}
	if err := o.validate(kind, deps.Limits); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := &Session{
		id:       id,
		kind:     kind,
		identity: identity,
		bus:      deps.Bus,
		sched:    sched.New(deps.Clock),
		rng:      deps.RNG,
		tuning:   deps.Tuning,
		timing:   deps.Timing.withDefaults(),
		limits:   deps.Limits,
		log:      deps.Logger.With("session_id", id, "game", string(kind), "identity", identity),
		phase:    PhaseIdle,
	}

	switch kind {
	case game.KindLoot:
		s.v = &lootGame{}
	case game.KindDungeon:
		s.v = &dungeonGame{}
	case game.KindOrbital:
		s.v = &orbitalGame{}
	case game.KindPulse:
		s.v = newPulseGame(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.v.configure(s, o); err != nil {
		s.sched.Close()
		return nil, err
	}
	s.opts = o
	if o.Autoplay {
		s.startAutoplay()
	}
	s.log.Info("session created", "stake", game.FormatAmount(o.StakeMicros))
	return s, nil
}

// DefaultIdentity is the "you_xxxx" label given to anonymous players.
func DefaultIdentity() string {
	return "you_" + uuid.NewString()[:4]
}

func (s *Session) ID() string { return s.id }

func (s *Session) Kind() game.Kind { return s.kind }

func (s *Session) Identity() string { return s.identity }

func (s *Session) Scheduler() *sched.Scheduler { return s.sched }

// Run drives the session's timers until ctx is done or the session closes.
func (s *Session) Run(ctx context.Context) error {
	return s.sched.Run(ctx)
}

// Play applies one move. Invalid moves come back as ignored outcomes; the
// error return is reserved for a closed session and an unplayable stake.
func (s *Session) Play(m Move) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Outcome{}, game.ErrSessionClosed
	}
	var (
		out Outcome
		err error
	)
	if m.Action == ActionStart {
		out, err = s.start()
		if err != nil {
			return Outcome{}, err
		}
	} else if s.phase != PhaseActive {
		out = s.ignored(m.Action, "no active round")
	} else {
		out = s.v.act(s, m)
	}
	out.Snapshot = s.snapshot()
	return out, nil
}

func (s *Session) start() (Outcome, error) {
	if s.phase == PhaseActive {
		return s.ignored(ActionStart, "round already active"), nil
	}
	if err := game.ValidateStake(s.opts.StakeMicros, s.limits.MinStakeMicros, s.limits.MaxStakeMicros); err != nil {
		return Outcome{}, err
	}
	if s.breakShown {
		return s.ignored(ActionStart, "take a break: acknowledge to continue"), nil
	}
	if s.plays-s.playsAtAck >= s.opts.BreakThreshold {
		s.breakShown = true
		s.stopAutoplay("break")
		s.log.Info("break suggested", "plays", s.plays)
		return s.ignored(ActionStart, fmt.Sprintf("take a break: %d plays this session", s.plays)), nil
	}

	s.sched.Cancel(s.settleTok)
	s.sched.Cancel(s.resetTok)
	s.settleTok, s.resetTok = 0, 0
	s.round++
	s.stake = s.opts.StakeMicros
	s.phase = PhaseActive
	s.lastStep = nil
	return s.v.begin(s), nil
}

// completeRound settles the active round. Stop conditions are checked before
// the event goes out so autoplay is already off by the time anyone hears
// about the round.
func (s *Session) completeRound(res game.RoundResult, escaped bool) *game.RoundResult {
	s.balance += res.DeltaMicros()
	s.plays++
	if res.Win {
		s.wins++
		s.streak++
		if res.Multiplier > s.best {
			s.best = res.Multiplier
		}
	} else {
		s.streak = 0
	}
	switch {
	case !res.Win:
		s.phase = PhaseBust
	case escaped:
		s.phase = PhaseEscaped
	default:
		s.phase = PhaseWon
	}
	s.last = &res

	if s.opts.Autoplay {
		if s.balance <= s.opts.LossLimitMicros {
			s.stopAutoplay("loss_limit")
		} else if res.Legendary {
			s.stopAutoplay("legendary")
		}
	}

	s.bus.Publish(bus.RoundEvent(s.identity, res, s.sched.Now()))

	s.settleTok = s.afterRound(s.timing.SettleDelay, func() {
		s.phase = PhaseSettled
		s.resetTok = s.afterRound(s.timing.ResetDelay, func() {
			s.phase = PhaseIdle
		})
	})
	return s.last
}

// settle is the common tail for variants: settle at multiplier m and report
// the round in the outcome.
func (s *Session) settle(action Action, m float64, reason string, escaped, nearMiss bool) Outcome {
	res := game.Settle(s.kind, s.stake, m, s.tuning.Tiers, reason)
	res.NearMiss = nearMiss
	return s.settleResult(action, res, escaped)
}

func (s *Session) settleResult(action Action, res game.RoundResult, escaped bool) Outcome {
	out := s.outcome(action)
	out.Result = s.completeRound(res, escaped)
	out.Step = s.lastStep
	return out
}

// afterRound schedules fn for the current round only.
func (s *Session) afterRound(d time.Duration, fn func()) sched.Token {
	round := s.round
	return s.sched.After(d, s.guard(func() bool { return s.round == round }, fn))
}

// everyRound repeats fn while the current round lasts.
func (s *Session) everyRound(d time.Duration, fn func()) sched.Token {
	round := s.round
	return s.sched.Every(d, s.guard(func() bool { return s.round == round }, fn))
}

// guard wraps a timer callback so it takes the session lock and does nothing
// once the session is closed or live() turns false.
func (s *Session) guard(live func() bool, fn func()) func() {
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || !live() {
			return
		}
		fn()
	}
}

func (s *Session) outcome(action Action) Outcome {
	return Outcome{Action: action}
}

func (s *Session) ignored(action Action, reason string) Outcome {
	return Outcome{Action: action, Ignored: true, Reason: reason}
}

// Configure replaces the session options. Any invalid field rejects the
// whole call and the previous options stay in force.
func (s *Session) Configure(next Options) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, game.ErrSessionClosed
	}
	if err := next.validate(s.kind, s.limits); err != nil {
		return s.snapshot(), err
	}
	if next.Autoplay && !s.opts.Autoplay {
		if err := s.canAutoplay(); err != nil {
			return s.snapshot(), err
		}
	}
	// last check: the variant may act on the new options once it accepts them
	if err := s.v.configure(s, next); err != nil {
		return s.snapshot(), err
	}

	prev := s.opts
	s.opts = next
	switch {
	case next.Autoplay && !prev.Autoplay:
		s.startAutoplay()
	case !next.Autoplay && prev.Autoplay:
		s.stopAutoplay("disabled")
	case next.Autoplay && (next.StakeMicros != prev.StakeMicros || next.Doors != prev.Doors):
		s.rebindAutoplay()
	}
	return s.snapshot(), nil
}

func (s *Session) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// AcknowledgeBreak clears the break notice and restarts the play count the
// notice is measured against.
func (s *Session) AcknowledgeBreak() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.breakShown {
		s.breakShown = false
		s.playsAtAck = s.plays
		s.log.Info("break acknowledged", "plays", s.plays)
	}
	return s.snapshot()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Close stops every timer the session owns. It is safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.round++
	s.autoGen++
	s.opts.Autoplay = false
	s.v.close(s)
	s.sched.Close()
	s.log.Info("session closed", "plays", s.plays, "balance", game.FormatAmount(s.balance))
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
