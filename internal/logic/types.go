// Package logic contains the pure presence-detection state machine.
// This package has NO external dependencies (no D-Bus, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"fmt"
	"time"
)

// Phase is the debounced presence judgment for the target device.
type Phase string

const (
	PhaseInRange    Phase = "IN_RANGE"
	PhaseOutOfRange Phase = "OUT_OF_RANGE"
)

// ResultKind classifies a single probe outcome.
type ResultKind string

const (
	ResultPresent    ResultKind = "PRESENT"
	ResultAbsent     ResultKind = "ABSENT"
	ResultProbeError ResultKind = "PROBE_ERROR"
)

// Result is the outcome of one probe of the target device.
type Result struct {
	Kind ResultKind
	// Signal is the signal strength in dBm, if the probe reported one.
	Signal *int
	// Err is set for ResultProbeError.
	Err error
}

// Present returns a present result carrying a signal reading.
func Present(dbm int) Result {
	return Result{Kind: ResultPresent, Signal: &dbm}
}

// PresentNoSignal returns a present result without a signal reading.
func PresentNoSignal() Result {
	return Result{Kind: ResultPresent}
}

// Absent returns an absent result.
func Absent() Result {
	return Result{Kind: ResultAbsent}
}

// Failed returns a probe-error result wrapping err.
func Failed(err error) Result {
	if err == nil {
		err = errors.New("probe failed")
	}
	return Result{Kind: ResultProbeError, Err: err}
}

// IsHit reports whether the result counts as a hit. Absent and
// ProbeError are both misses.
func (r Result) IsHit() bool {
	return r.Kind == ResultPresent
}

func (r Result) String() string {
	switch {
	case r.Kind == ResultPresent && r.Signal != nil:
		return fmt.Sprintf("%s(%ddBm)", r.Kind, *r.Signal)
	case r.Kind == ResultProbeError && r.Err != nil:
		return fmt.Sprintf("%s(%v)", r.Kind, r.Err)
	default:
		return string(r.Kind)
	}
}

// ActionGates independently enable the two transition actions.
type ActionGates struct {
	LockEnabled bool
	WakeEnabled bool
}

// Config is immutable for one monitoring session.
type Config struct {
	TargetID      string
	PollInterval  time.Duration
	MissThreshold int
	HitThreshold  int
	Actions       ActionGates
}

// Default thresholds: two consecutive misses/hits filter single-tick glitches.
const (
	DefaultMissThreshold = 2
	DefaultHitThreshold  = 2
	DefaultPollInterval  = 3 * time.Second
)

// ErrConfig is matched by every *ConfigError.
var ErrConfig = errors.New("invalid monitor config")

// ConfigError reports an invalid Config field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid monitor config: %s %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrConfig) true for any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// Validate checks the config. The returned error is a *ConfigError.
func (c Config) Validate() error {
	if c.TargetID == "" {
		return &ConfigError{Field: "target_id", Reason: "must not be empty"}
	}
	if c.PollInterval <= 0 {
		return &ConfigError{Field: "poll_interval", Reason: fmt.Sprintf("must be > 0, got %v", c.PollInterval)}
	}
	if c.MissThreshold < 1 {
		return &ConfigError{Field: "miss_threshold", Reason: fmt.Sprintf("must be >= 1, got %d", c.MissThreshold)}
	}
	if c.HitThreshold < 1 {
		return &ConfigError{Field: "hit_threshold", Reason: fmt.Sprintf("must be >= 1, got %d", c.HitThreshold)}
	}
	return nil
}

// EventType identifies a phase transition.
type EventType string

const (
	EventOutOfRange EventType = "OUT_OF_RANGE"
	EventInRange    EventType = "IN_RANGE"
)

// Action is the side effect a transition asks for.
type Action string

const (
	ActionLock Action = "LOCK"
	ActionWake Action = "WAKE"
	// ActionNone means the transition's action is disabled by its gate.
	ActionNone Action = "NONE"
)

// Event represents a phase transition to be acted on and published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Phase     Phase
	Action    Action
	// Signal is the last signal reading at the time of the transition.
	Signal *int
	// Misses and Hits are the counters at the moment of the transition.
	Misses int
	Hits   int
}

// Input represents a single probe sample.
type Input struct {
	Result Result
	Time   time.Time
}

// Counts tracks cumulative probe and transition totals since the session started.
type Counts struct {
	Probes      int
	Hits        int
	Misses      int
	ProbeErrors int
	OutOfRange  int // transitions to OUT_OF_RANGE
	InRange     int // transitions back to IN_RANGE
}

// DetectionRate returns the share of probes that were hits, in percent.
func (c Counts) DetectionRate() float64 {
	if c.Probes == 0 {
		return 0
	}
	return float64(c.Hits) * 100 / float64(c.Probes)
}

// State is a value copy of the detector's mutable state.
type State struct {
	Phase             Phase
	ConsecutiveMisses int
	ConsecutiveHits   int
	LastSignal        *int
	ActionApplied     bool
	LastResult        ResultKind
	LastError         string
	LastTick          time.Time
	Counts            Counts
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
