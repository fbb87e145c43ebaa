package session

import (
	"fmt"

	"lootfun/internal/game"
)

// SetAutoplay turns autoplay on or off. Enabling is refused while a break
// notice is pending or the loss limit is already breached.
func (s *Session) SetAutoplay(enabled bool) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, game.ErrSessionClosed
	}
	switch {
	case enabled && !s.opts.Autoplay:
		if err := s.canAutoplay(); err != nil {
			return s.snapshot(), err
		}
		s.opts.Autoplay = true
		s.startAutoplay()
	case !enabled && s.opts.Autoplay:
		s.stopAutoplay("disabled")
	}
	return s.snapshot(), nil
}

func (s *Session) canAutoplay() error {
	if s.breakShown {
		return fmt.Errorf("%w: acknowledge the break first", game.ErrInvalidAction)
	}
	if s.balance <= s.opts.LossLimitMicros {
		return fmt.Errorf("%w: loss limit reached", game.ErrInvalidAction)
	}
	return nil
}

// startAutoplay arms two repeating timers: one that starts a round while the
// session is idle, and one that makes the next move of a running round.
func (s *Session) startAutoplay() {
	s.autoGen++
	gen := s.autoGen
	live := func() bool { return s.autoGen == gen && s.opts.Autoplay }
	s.stopReason = ""

	s.autoTok = s.sched.Every(s.timing.AutoplayEvery, s.guard(live, func() {
		if s.phase != PhaseIdle {
			return
		}
		out, err := s.start()
		if err != nil {
			s.stopAutoplay("invalid_stake")
			s.log.Warn("autoplay start failed", "err", err)
			return
		}
		if out.Ignored {
			s.log.Debug("autoplay start ignored", "reason", out.Reason)
		}
	}))
	s.stepTok = s.sched.Every(s.timing.AutoStep, s.guard(live, func() {
		if s.phase == PhaseActive {
			s.v.autoStep(s)
		}
	}))
	s.log.Info("autoplay enabled")
}

// stopAutoplay is called synchronously from round completion, so no queued
// autoplay callback can act after it returns.
func (s *Session) stopAutoplay(reason string) {
	wasOn := s.opts.Autoplay
	s.opts.Autoplay = false
	s.autoGen++
	s.sched.Cancel(s.autoTok)
	s.sched.Cancel(s.stepTok)
	s.autoTok, s.stepTok = 0, 0
	if wasOn {
		s.stopReason = reason
		s.log.Info("autoplay stopped", "reason", reason, "balance", game.FormatAmount(s.balance))
	}
}

func (s *Session) rebindAutoplay() {
	s.sched.Cancel(s.autoTok)
	s.sched.Cancel(s.stepTok)
	s.startAutoplay()
}
