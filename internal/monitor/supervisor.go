package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/bluelock/internal/logic"
)

// DefaultStopGrace bounds how long Supervisor waits for a loop to exit.
const DefaultStopGrace = 5 * time.Second

// Supervisor owns at most one monitoring session at a time. Starting a new
// session fully stops the previous one first, so two loops never act
// concurrently.
type Supervisor struct {
	base    context.Context
	prober  Prober
	actions Actions
	opts    []Option

	// StopGrace bounds each stop. Zero means DefaultStopGrace.
	StopGrace time.Duration

	ctl     sync.Mutex // serializes Start/Stop
	mu      sync.RWMutex
	current *Handle
	last    Snapshot
}

// NewSupervisor creates a supervisor. Sessions run until base is cancelled
// or they are stopped; opts apply to every session.
func NewSupervisor(base context.Context, prober Prober, actions Actions, opts ...Option) *Supervisor {
	return &Supervisor{
		base:    base,
		prober:  prober,
		actions: actions,
		opts:    opts,
	}
}

// Start stops any running session, then starts a new one for cfg. An
// invalid cfg is rejected before the current session is touched. ctx
// bounds the wait for the previous session.
func (s *Supervisor) Start(ctx context.Context, cfg logic.Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.ctl.Lock()
	defer s.ctl.Unlock()

	if err := s.stopLocked(ctx); err != nil {
		return nil, fmt.Errorf("stop previous session: %w", err)
	}

	h, err := Start(s.base, cfg, s.prober, s.actions, s.opts...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = h
	s.mu.Unlock()
	return h, nil
}

// Stop stops the running session, if any. Stopping when nothing runs is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	return s.stopLocked(ctx)
}

func (s *Supervisor) stopLocked(ctx context.Context) error {
	s.mu.RLock()
	h := s.current
	s.mu.RUnlock()
	if h == nil {
		return nil
	}

	grace := s.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	stopCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := h.Stop(stopCtx); err != nil {
		// Keep the handle so a later Stop can wait on it again.
		return err
	}

	s.mu.Lock()
	s.current = nil
	s.last = h.Snapshot()
	s.mu.Unlock()
	return nil
}

// Current returns the running session's handle, or nil.
func (s *Supervisor) Current() *Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Running reports whether a session loop is active.
func (s *Supervisor) Running() bool {
	h := s.Current()
	return h != nil && h.State() == LifecycleRunning
}

// Snapshot returns the running session's snapshot. With no session it
// returns the last stopped session's snapshot, or a NOT_STARTED one.
// The bool reports whether a session handle exists.
func (s *Supervisor) Snapshot() (Snapshot, bool) {
	s.mu.RLock()
	h := s.current
	last := s.last
	s.mu.RUnlock()

	if h != nil {
		return h.Snapshot(), true
	}
	if last.SessionID == "" {
		return Snapshot{Lifecycle: LifecycleNotStarted}, false
	}
	return cloneSnapshot(last), false
}
