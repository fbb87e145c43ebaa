package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"lootfun/internal/game"
	"lootfun/internal/session"

	"github.com/go-chi/chi/v5"
)

var errSessionNotFound = errors.New("session not found")

type registry struct {
	mu   sync.RWMutex
	byID map[string]*session.Session
	seen map[string]time.Time
}

func newRegistry() *registry {
	return &registry{
		byID: make(map[string]*session.Session),
		seen: make(map[string]time.Time),
	}
}

func (r *registry) add(s *session.Session, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID()] = s
	r.seen[s.ID()] = at
}

// touch records a request against the session.
func (r *registry) touch(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		r.seen[id] = at
	}
}

// idle removes and returns every session last seen before cutoff.
func (r *registry) idle(cutoff time.Time) []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session.Session
	for id, at := range r.seen {
		if at.Before(cutoff) {
			out = append(out, r.byID[id])
			delete(r.byID, id)
			delete(r.seen, id)
		}
	}
	return out
}

func (r *registry) get(id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errSessionNotFound, id)
	}
	return s, nil
}

func (r *registry) remove(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		delete(r.seen, id)
	}
	return s, ok
}

func (r *registry) drain() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session.Session, 0, len(r.byID))
	for id, s := range r.byID {
		out = append(out, s)
		delete(r.byID, id)
		delete(r.seen, id)
	}
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// optionsInput is a partial update; nil fields keep their current value.
// Amounts travel as decimal strings.
type optionsInput struct {
	Stake          *string  `json:"stake,omitempty"`
	LossLimit      *string  `json:"loss_limit,omitempty"`
	BreakThreshold *int     `json:"break_threshold,omitempty"`
	Autoplay       *bool    `json:"autoplay,omitempty"`
	Doors          *int     `json:"doors,omitempty"`
	HouseEdge      *float64 `json:"house_edge,omitempty"`
	Token          *string  `json:"token,omitempty"`
	AutoSellPct    *float64 `json:"auto_sell_pct,omitempty"`
}

func (in *optionsInput) apply(base session.Options) (session.Options, error) {
	if in == nil {
		return base, nil
	}
	out := base
	if in.Stake != nil {
		v, err := game.ParseAmount(*in.Stake)
		if err != nil {
			return base, fmt.Errorf("%w: %v", game.ErrInvalidStake, err)
		}
		out.StakeMicros = v
	}
	if in.LossLimit != nil {
		v, err := game.ParseAmount(*in.LossLimit)
		if err != nil {
			return base, fmt.Errorf("%w: loss limit: %v", game.ErrConfiguration, err)
		}
		out.LossLimitMicros = v
	}
	if in.BreakThreshold != nil {
		out.BreakThreshold = *in.BreakThreshold
	}
	if in.Autoplay != nil {
		out.Autoplay = *in.Autoplay
	}
	if in.Doors != nil {
		out.Doors = *in.Doors
	}
	if in.HouseEdge != nil {
		out.HouseEdge = *in.HouseEdge
	}
	if in.Token != nil {
		out.Token = strings.ToUpper(strings.TrimSpace(*in.Token))
	}
	if in.AutoSellPct != nil {
		out.AutoSellPct = *in.AutoSellPct
	}
	return out, nil
}

func (s *Server) defaultOptions(kind game.Kind) session.Options {
	o := session.DefaultOptions(kind, s.cfg.Tuning)
	if s.cfg.BreakAfter > 0 {
		o.BreakThreshold = s.cfg.BreakAfter
	}
	return o
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	s.sessions.touch(sess.ID(), s.deps.Clock.Now())
	return sess, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Game       string        `json:"game"`
		Identity   string        `json:"identity"`
		ClientSeed string        `json:"client_seed"`
		Options    *optionsInput `json:"options"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := game.ParseKind(in.Game)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	opts, err := in.Options.apply(s.defaultOptions(kind))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rng, fair, err := s.sessionRNG(in.ClientSeed)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sess, err := session.New(kind, strings.TrimSpace(in.Identity), session.Deps{
		Bus:    s.deps.Bus,
		Clock:  s.deps.Clock,
		RNG:    rng,
		Tuning: s.cfg.Tuning,
		Timing: s.cfg.Timing,
		Limits: s.cfg.Limits,
		Logger: s.log,
	}, &opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.sessions.add(sess, s.deps.Clock.Now())
	go func() {
		if err := sess.Run(s.ctx); err != nil {
			s.log.Error("session timers stopped", "session_id", sess.ID(), "error", err)
		}
	}()
	writeJSON(w, http.StatusCreated, map[string]any{"session": sess.Snapshot(), "fair": fair})
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.remove(chi.URLParam(r, "id"))
	if !ok {
		writeDomainError(w, errSessionNotFound)
		return
	}
	sess.Close()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var in optionsInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	next, err := in.apply(sess.Options())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	snap, err := sess.Configure(next)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var in struct {
		Action string `json:"action"`
		Door   int    `json:"door"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := sess.Play(session.Move{
		Action: session.Action(strings.ToLower(strings.TrimSpace(in.Action))),
		Door:   in.Door,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAutoplay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var in struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := sess.SetAutoplay(in.Enabled)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBreakAck(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if sess.Closed() {
		writeDomainError(w, game.ErrSessionClosed)
		return
	}
	writeJSON(w, http.StatusOK, sess.AcknowledgeBreak())
}

func (s *Server) handleInjectPrices(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AllowInject {
		writeError(w, http.StatusForbidden, "price injection is disabled")
		return
	}
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var in struct {
		Prices map[string]string `json:"prices"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prices := make(map[string]int64, len(in.Prices))
	for sym, raw := range in.Prices {
		v, err := game.ParseAmount(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("price for %s: %v", sym, err))
			return
		}
		prices[sym] = v
	}
	snap, err := sess.InjectPrices(prices)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
