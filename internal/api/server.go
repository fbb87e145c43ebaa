package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"lootfun/internal/bus"
	"lootfun/internal/config"
	"lootfun/internal/game"
	"lootfun/internal/sched"
	"lootfun/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	defaultLeaderLimit = 10
	maxLeaderLimit     = 100
	defaultSimRounds   = 10_000
	maxSimRounds       = 200_000
)

// Deps are the shared pieces every session publishes into. When Scheduler is
// set, idle sessions are swept on it.
type Deps struct {
	Bus         *bus.Bus
	Leaderboard *bus.Leaderboard
	Feed        *bus.Feed
	Ticker      *bus.Feed
	Clock       sched.Clock
	Scheduler   *sched.Scheduler
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	deps     Deps
	sessions *registry
	ctx      context.Context
	nonce    atomic.Uint64
	mux      *chi.Mux
}

// New builds the HTTP surface. Session timers run until ctx is done or the
// session is deleted.
func New(ctx context.Context, cfg config.APIConfig, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Bus == nil {
		deps.Bus = bus.New(logger)
	}
	if deps.Clock == nil {
		deps.Clock = sched.SystemClock()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		deps:     deps,
		sessions: newRegistry(),
		ctx:      ctx,
		mux:      chi.NewRouter(),
	}
	s.routes()
	if deps.Scheduler != nil && cfg.SessionIdleTTL > 0 {
		every := max(cfg.SessionIdleTTL/4, time.Second)
		deps.Scheduler.Every(every, func() { s.SweepIdle() })
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Close tears down every live session.
func (s *Server) Close() {
	for _, sess := range s.sessions.drain() {
		sess.Close()
	}
}

// SweepIdle closes sessions nobody has called for SessionIdleTTL and reports
// how many it closed.
func (s *Server) SweepIdle() int {
	if s.cfg.SessionIdleTTL <= 0 {
		return 0
	}
	idle := s.sessions.idle(s.deps.Clock.Now().Add(-s.cfg.SessionIdleTTL))
	for _, sess := range idle {
		sess.Close()
		s.log.Info("idle session closed", "session_id", sess.ID(), "identity", sess.Identity())
	}
	return len(idle)
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           900,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": s.sessions.len()})
	})

	r.Route("/v1", func(r chi.Router) {
		// Streams outlive any request timeout.
		r.Get("/feed/ws", s.handleFeedStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/games", s.handleGames)
			r.Get("/games/{game}/rtp", s.handleSimulate)

			r.Post("/sessions", s.handleCreateSession)
			r.Get("/sessions/{id}", s.handleSessionState)
			r.Delete("/sessions/{id}", s.handleCloseSession)
			r.Post("/sessions/{id}/configure", s.handleConfigure)
			r.Post("/sessions/{id}/play", s.handlePlay)
			r.Post("/sessions/{id}/autoplay", s.handleAutoplay)
			r.Post("/sessions/{id}/break/ack", s.handleBreakAck)
			r.Post("/sessions/{id}/prices", s.handleInjectPrices)

			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/feed", s.handleFeed)
		})
	})
}

func (s *Server) handleGames(w http.ResponseWriter, _ *http.Request) {
	type gameInfo struct {
		Game      game.Kind `json:"game"`
		HouseEdge float64   `json:"house_edge"`
		Options   any       `json:"default_options"`
	}
	out := make([]gameInfo, 0, len(game.Kinds()))
	for _, k := range game.Kinds() {
		out = append(out, gameInfo{Game: k, HouseEdge: s.cfg.Tuning.HouseEdge(k), Options: s.defaultOptions(k)})
	}
	lossLimits := make([]string, 0, len(session.LossLimitChoices))
	for _, v := range session.LossLimitChoices {
		lossLimits = append(lossLimits, game.FormatAmount(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": out, "limits": map[string]any{
		"min_stake":          game.FormatAmount(s.cfg.Limits.MinStakeMicros),
		"max_stake":          game.FormatAmount(s.cfg.Limits.MaxStakeMicros),
		"loss_limit_choices": lossLimits,
	}})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	kind, err := game.ParseKind(chi.URLParam(r, "game"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	q := r.URL.Query()
	rounds, err := queryInt(q.Get("rounds"), defaultSimRounds)
	if err != nil || rounds < 1 || rounds > maxSimRounds {
		writeError(w, http.StatusBadRequest, "rounds must be between 1 and "+strconv.Itoa(maxSimRounds))
		return
	}
	policy := game.DefaultSimPolicy()
	if policy.CashOutLevel, err = queryInt(q.Get("level"), policy.CashOutLevel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid level")
		return
	}
	if policy.CashOutRounds, err = queryInt(q.Get("locks"), policy.CashOutRounds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid locks")
		return
	}
	if raw := strings.TrimSpace(q.Get("hold")); raw != "" {
		if policy.HoldFor, err = time.ParseDuration(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid hold duration")
			return
		}
	}

	rng := game.DefaultRNG()
	if raw := strings.TrimSpace(q.Get("seed")); raw != "" {
		seed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid seed")
			return
		}
		rng = game.NewSeededRNG(seed)
	}

	stats, err := game.Simulate(kind, s.cfg.Tuning, policy, rounds, rng)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats, "policy": policy})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.Leaderboard == nil {
		writeError(w, http.StatusServiceUnavailable, "leaderboard disabled")
		return
	}
	limit, err := queryInt(r.URL.Query().Get("limit"), defaultLeaderLimit)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxLeaderLimit {
		limit = maxLeaderLimit
	}
	total := s.deps.Leaderboard.TotalPayoutsMicros()
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":                 s.deps.Leaderboard.Rows(limit),
		"total_payouts_micros": total,
		"total_payouts":        game.FormatAmount(total),
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, _ *http.Request) {
	feed := []bus.FeedEntry{}
	ticker := []bus.FeedEntry{}
	if s.deps.Feed != nil {
		feed = s.deps.Feed.Entries()
	}
	if s.deps.Ticker != nil {
		ticker = s.deps.Ticker.Entries()
	}
	writeJSON(w, http.StatusOK, map[string]any{"feed": feed, "ticker": ticker})
}

// fairness describes how a session's draws can be replayed. The server seed
// itself stays private; its hash is the commitment.
type fairness struct {
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"`
}

func (s *Server) sessionRNG(clientSeed string) (game.RandomSource, *fairness, error) {
	if s.cfg.ServerSeed == "" {
		return game.DefaultRNG(), nil, nil
	}
	clientSeed = strings.TrimSpace(clientSeed)
	if clientSeed == "" {
		clientSeed = strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}
	nonce := s.nonce.Add(1)
	rng, err := game.NewFairRNG(s.cfg.ServerSeed, clientSeed, nonce)
	if err != nil {
		return nil, nil, err
	}
	sum := blake2b.Sum256([]byte(s.cfg.ServerSeed))
	return rng, &fairness{
		ServerSeedHash: hex.EncodeToString(sum[:]),
		ClientSeed:     clientSeed,
		Nonce:          nonce,
	}, nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrSessionClosed):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, game.ErrInvalidStake), errors.Is(err, game.ErrConfiguration), errors.Is(err, game.ErrUnknownGame):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrInvalidAction):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func queryInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
