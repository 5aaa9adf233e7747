package logic

import "time"

// Detector tracks presence and detects debounced phase transitions.
// Not safe for concurrent use: the monitor loop is its only caller.
type Detector struct {
	cfg           Config
	phase         Phase
	misses        int
	hits          int
	lastSignal    *int
	actionApplied bool
	lastResult    ResultKind
	lastErr       string
	lastTick      time.Time
	startTime     time.Time
	counts        Counts
	lastHeartbeat time.Time
}

// NewDetector creates a detector seeded from an initial probe.
// A present seed starts IN_RANGE, anything else starts OUT_OF_RANGE. The
// seed phase is a baseline, not a transition, so no event is produced and
// the action for it is considered applied.
func NewDetector(cfg Config, seed Result, startTime time.Time) *Detector {
	d := &Detector{
		cfg:           cfg,
		phase:         PhaseInRange,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
	d.record(seed, startTime)
	if !seed.IsHit() {
		d.phase = PhaseOutOfRange
	}
	d.actionApplied = true
	return d
}

// Process takes a new probe sample and returns the transition event, if the
// sample flipped the phase. Returns nil otherwise.
func (d *Detector) Process(input Input) *Event {
	d.record(input.Result, input.Time)

	var event *Event
	if input.Result.IsHit() {
		if d.phase == PhaseOutOfRange && d.hits >= d.cfg.HitThreshold {
			d.phase = PhaseInRange
			d.actionApplied = false
			d.counts.InRange++
			event = d.newEvent(EventInRange, input.Time)
		}
	} else {
		if d.phase == PhaseInRange && d.misses >= d.cfg.MissThreshold {
			d.phase = PhaseOutOfRange
			d.actionApplied = false
			d.counts.OutOfRange++
			event = d.newEvent(EventOutOfRange, input.Time)
		}
	}
	return event
}

// record updates the counters for one result. A hit zeroes misses and a
// miss zeroes hits, so exactly one of them is nonzero afterwards.
func (d *Detector) record(r Result, now time.Time) {
	d.counts.Probes++
	d.lastResult = r.Kind
	d.lastTick = now
	d.lastErr = ""

	if r.IsHit() {
		d.misses = 0
		d.hits++
		d.counts.Hits++
		if r.Signal != nil {
			v := *r.Signal
			d.lastSignal = &v
		}
		return
	}

	d.hits = 0
	d.misses++
	d.counts.Misses++
	if r.Kind == ResultProbeError {
		d.counts.ProbeErrors++
		if r.Err != nil {
			d.lastErr = r.Err.Error()
		}
	}
}

func (d *Detector) newEvent(t EventType, now time.Time) *Event {
	return &Event{
		Timestamp: now,
		Type:      t,
		Phase:     d.phase,
		Action:    d.actionFor(t),
		Signal:    copyInt(d.lastSignal),
		Misses:    d.misses,
		Hits:      d.hits,
	}
}

// actionFor maps a transition to its action, honouring the gates.
func (d *Detector) actionFor(t EventType) Action {
	switch t {
	case EventOutOfRange:
		if d.cfg.Actions.LockEnabled {
			return ActionLock
		}
	case EventInRange:
		if d.cfg.Actions.WakeEnabled {
			return ActionWake
		}
	}
	return ActionNone
}

// MarkApplied records that the action for the current phase was attempted.
// Called after the action adapter returns, whatever its outcome.
func (d *Detector) MarkApplied() {
	d.actionApplied = true
}

// Pending reports whether the current phase's action has not been attempted yet.
func (d *Detector) Pending() bool {
	return !d.actionApplied
}

// Phase returns the current debounced phase.
func (d *Detector) Phase() Phase {
	return d.phase
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// State returns a copy of the detector state.
func (d *Detector) State() State {
	return State{
		Phase:             d.phase,
		ConsecutiveMisses: d.misses,
		ConsecutiveHits:   d.hits,
		LastSignal:        copyInt(d.lastSignal),
		ActionApplied:     d.actionApplied,
		LastResult:        d.lastResult,
		LastError:         d.lastErr,
		LastTick:          d.lastTick,
		Counts:            d.counts,
	}
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.counts,
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
