// Package monitor runs the presence state machine on a fixed cadence.
//
// A session probes the target once at start to seed the phase, then runs a
// single goroutine that repeats probe -> decide -> act -> sleep until it is
// stopped. The goroutine is the sole writer of session state; readers get
// copies through Handle.Snapshot.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/bluelock/internal/logic"
)

// Prober answers whether the target is present right now. Implementations
// must return within a bounded time; timeouts belong to the prober.
type Prober interface {
	Probe(ctx context.Context, targetID string) logic.Result
}

// Preflighter is implemented by probers that can verify up front that the
// probe mechanism works at all (privileges, adapter, platform support).
type Preflighter interface {
	Preflight(ctx context.Context) error
}

// Actions performs the transition side effects. Both methods must be
// idempotent.
type Actions interface {
	ApplyAbsent(ctx context.Context) error
	ApplyPresent(ctx context.Context) error
}

// Lifecycle is the state of the monitoring loop itself.
type Lifecycle string

const (
	LifecycleNotStarted Lifecycle = "NOT_STARTED"
	LifecycleRunning    Lifecycle = "RUNNING"
	LifecycleStopped    Lifecycle = "STOPPED"
)

// TimeFormat is the human-readable format of Snapshot.LastTickText.
const TimeFormat = "15:04:05"

// Snapshot is a point-in-time copy of a session's state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	SessionID         string
	TargetID          string
	Lifecycle         Lifecycle
	Phase             logic.Phase
	LastSignal        *int
	ConsecutiveMisses int
	ConsecutiveHits   int
	LastResult        logic.ResultKind
	LastError         string
	LastTick          time.Time
	LastTickText      string
	StartedAt         time.Time
	Counts            logic.Counts
	Config            logic.Config

	// LastEvent is the most recent transition of this session, if any.
	LastEvent       *logic.Event
	LastActionError string
}

// ErrStopTimeout is returned by Stop when the loop did not exit within the
// grace period. The loop is then considered abandoned; it is never killed.
var ErrStopTimeout = errors.New("monitor did not stop within grace period")

// PreflightError reports that the probe mechanism cannot work at all.
type PreflightError struct {
	Err error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("probe preflight failed: %v", e.Err)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// ActionError reports a failed lock or wake action.
type ActionError struct {
	Action logic.Action
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// DefaultActionTimeout bounds a single action adapter call.
const DefaultActionTimeout = 10 * time.Second

type options struct {
	logger        *slog.Logger
	now           func() time.Time
	sink          Sink
	ticks         <-chan time.Time
	actionTimeout time.Duration
	maxTicks      int
	heartbeat     time.Duration
}

// Option configures a monitoring session.
type Option func(*options)

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides time.Now for tick timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSink registers the status side channel.
func WithSink(s Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithTicks replaces the poll-interval timer with an external tick source.
// A closed channel stops the loop.
func WithTicks(ticks <-chan time.Time) Option {
	return func(o *options) { o.ticks = ticks }
}

// WithActionTimeout bounds each action adapter call.
func WithActionTimeout(d time.Duration) Option {
	return func(o *options) { o.actionTimeout = d }
}

// WithMaxTicks stops the loop after n ticks (not counting the seed probe).
// Zero means unlimited.
func WithMaxTicks(n int) Option {
	return func(o *options) { o.maxTicks = n }
}

// WithHeartbeat emits heartbeats to sinks implementing HeartbeatSink every
// interval. Zero disables heartbeats.
func WithHeartbeat(interval time.Duration) Option {
	return func(o *options) { o.heartbeat = interval }
}

// Handle controls one running monitoring session.
type Handle struct {
	id      string
	cfg     logic.Config
	prober  Prober
	actions Actions
	opts    options
	logger  *slog.Logger

	// actionCtx carries the caller's values but is never cancelled, so a
	// stop request cannot interrupt an action mid-flight.
	actionCtx context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	mu   sync.RWMutex
	snap Snapshot
}

// Start validates cfg, runs the prober's preflight check and a seed probe,
// then starts the monitoring loop. The loop runs until ctx is cancelled,
// Stop is called, or the tick limit is reached.
func Start(ctx context.Context, cfg logic.Config, prober Prober, actions Actions, opts ...Option) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prober == nil {
		return nil, errors.New("monitor: prober must not be nil")
	}

	o := options{
		logger:        slog.Default(),
		now:           time.Now,
		actionTimeout: DefaultActionTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if pf, ok := prober.(Preflighter); ok {
		if err := pf.Preflight(ctx); err != nil {
			return nil, &PreflightError{Err: err}
		}
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:        id,
		cfg:       cfg,
		prober:    prober,
		actions:   actions,
		opts:      o,
		logger:    o.logger.With("session", id[:8], "target", cfg.TargetID),
		actionCtx: context.WithoutCancel(ctx),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	seed := prober.Probe(runCtx, cfg.TargetID)
	if err := runCtx.Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("seed probe: %w", err)
	}

	started := o.now()
	detector := logic.NewDetector(cfg, seed, started)
	h.snap = Snapshot{
		SessionID: id,
		TargetID:  cfg.TargetID,
		StartedAt: started,
		Config:    cfg,
	}
	h.update(detector, LifecycleRunning, nil, nil)

	h.logger.Info("monitoring started",
		"phase", detector.Phase(),
		"seed", seed.String(),
		"poll", cfg.PollInterval,
		"miss_threshold", cfg.MissThreshold,
		"hit_threshold", cfg.HitThreshold,
		"lock", cfg.Actions.LockEnabled,
		"wake", cfg.Actions.WakeEnabled,
	)

	go h.run(runCtx, detector)
	return h, nil
}

// ID returns the session id.
func (h *Handle) ID() string { return h.id }

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// State returns the loop's lifecycle state.
func (h *Handle) State() Lifecycle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap.Lifecycle
}

// Snapshot returns a copy of the current session state.
func (h *Handle) Snapshot() Snapshot {
	h.mu.RLock()
	s := h.snap
	h.mu.RUnlock()
	return cloneSnapshot(s)
}

// Stop requests cancellation and waits for the loop to exit. If ctx expires
// first, ErrStopTimeout is returned and the loop is left to finish on its own.
func (h *Handle) Stop(ctx context.Context) error {
	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStopTimeout, ctx.Err())
	}
}

// run is the loop goroutine. Ticks are strictly sequential.
func (h *Handle) run(ctx context.Context, d *logic.Detector) {
	defer close(h.done)
	defer h.cancel()
	defer func() {
		h.mu.Lock()
		h.snap.Lifecycle = LifecycleStopped
		snap := cloneSnapshot(h.snap)
		h.mu.Unlock()
		if h.opts.sink != nil {
			h.opts.sink.Tick(snap)
		}
		h.logger.Info("monitoring stopped", "phase", d.Phase())
	}()

	ticks := 0
	for {
		if !h.wait(ctx) {
			return
		}
		if ctx.Err() != nil {
			return
		}

		result := h.prober.Probe(ctx, h.cfg.TargetID)
		if ctx.Err() != nil {
			// Stopping is not a presence transition: drop the result.
			return
		}

		now := h.opts.now()
		event := d.Process(logic.Input{Result: result, Time: now})
		state := d.State()
		h.logger.Debug("tick",
			"result", result.String(),
			"phase", state.Phase,
			"misses", state.ConsecutiveMisses,
			"hits", state.ConsecutiveHits,
		)
		if result.Kind == logic.ResultProbeError {
			h.logger.Warn("probe failed", "error", result.Err, "misses", state.ConsecutiveMisses)
		}

		var actionErr error
		if event != nil && d.Pending() {
			actionErr = h.apply(*event)
			d.MarkApplied()
		}
		h.update(d, LifecycleRunning, event, actionErr)

		if event != nil && h.opts.sink != nil {
			h.opts.sink.Transition(*event, actionErr)
		}
		h.heartbeat(d, now)

		ticks++
		if h.opts.maxTicks > 0 && ticks >= h.opts.maxTicks {
			h.logger.Info("tick limit reached", "ticks", ticks)
			return
		}
	}
}

// wait blocks until the next tick is due. Returns false if the loop
// should exit.
func (h *Handle) wait(ctx context.Context) bool {
	if h.opts.ticks != nil {
		select {
		case <-ctx.Done():
			return false
		case _, ok := <-h.opts.ticks:
			return ok
		}
	}
	return sleepCtx(ctx, h.cfg.PollInterval)
}

// apply invokes the action adapter for a transition. The error is logged
// and returned for the side channel, never retried.
func (h *Handle) apply(event logic.Event) error {
	h.logger.Info("phase changed",
		"event", event.Type,
		"action", event.Action,
		"misses", event.Misses,
		"hits", event.Hits,
	)
	if event.Action == logic.ActionNone || h.actions == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(h.actionCtx, h.opts.actionTimeout)
	defer cancel()

	var err error
	switch event.Action {
	case logic.ActionLock:
		err = h.actions.ApplyAbsent(ctx)
	case logic.ActionWake:
		err = h.actions.ApplyPresent(ctx)
	}
	if err != nil {
		aerr := &ActionError{Action: event.Action, Err: err}
		h.logger.Error("action failed, not retrying for this transition", "action", event.Action, "error", err)
		return aerr
	}
	h.logger.Info("action applied", "action", event.Action)
	return nil
}

func (h *Handle) heartbeat(d *logic.Detector, now time.Time) {
	hs, ok := h.opts.sink.(HeartbeatSink)
	if !ok {
		return
	}
	hb := d.CheckHeartbeat(now, h.opts.heartbeat)
	if hb == nil {
		return
	}
	hs.Heartbeat(*hb, h.Snapshot())
}

// update copies detector state into the shared snapshot and notifies the sink.
func (h *Handle) update(d *logic.Detector, lc Lifecycle, event *logic.Event, actionErr error) {
	state := d.State()

	h.mu.Lock()
	h.snap.Lifecycle = lc
	h.snap.Phase = state.Phase
	h.snap.LastSignal = state.LastSignal
	h.snap.ConsecutiveMisses = state.ConsecutiveMisses
	h.snap.ConsecutiveHits = state.ConsecutiveHits
	h.snap.LastResult = state.LastResult
	h.snap.LastError = state.LastError
	h.snap.LastTick = state.LastTick
	h.snap.LastTickText = state.LastTick.Format(TimeFormat)
	h.snap.Counts = state.Counts
	if event != nil {
		e := *event
		h.snap.LastEvent = &e
		h.snap.LastActionError = ""
		if actionErr != nil {
			h.snap.LastActionError = actionErr.Error()
		}
	}
	snap := cloneSnapshot(h.snap)
	h.mu.Unlock()

	if h.opts.sink != nil {
		h.opts.sink.Tick(snap)
	}
}

// cloneSnapshot deep-copies the pointer fields so callers cannot alias
// loop-owned memory.
func cloneSnapshot(s Snapshot) Snapshot {
	if s.LastSignal != nil {
		v := *s.LastSignal
		s.LastSignal = &v
	}
	if s.LastEvent != nil {
		e := *s.LastEvent
		if e.Signal != nil {
			v := *e.Signal
			e.Signal = &v
		}
		s.LastEvent = &e
	}
	return s
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
