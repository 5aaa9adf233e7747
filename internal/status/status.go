// Package status provides a thread-safe status tracker for the bluelock daemon.
// It is fed by the monitor loop and read by HTTP handlers, the TUI and MQTT
// status events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/bluelock/internal/logic"
	"github.com/sweeney/bluelock/internal/monitor"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs        int64
	MissThreshold int
	HitThreshold  int
	LockEnabled   bool
	WakeEnabled   bool
	HeartbeatMs   int64
	Probe         string
	Actions       string
	Broker        string
	HTTPAddr      string
}

// Transition is the most recent phase change seen by the tracker.
type Transition struct {
	Event       logic.Event
	ActionError string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Monitor        monitor.Snapshot
	TargetName     string
	LastTransition *Transition
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Running reports whether a monitoring session is active.
func (s Snapshot) Running() bool {
	return s.Monitor.Lifecycle == monitor.LifecycleRunning
}

// Tracker holds mutable daemon state behind an RWMutex. It implements
// monitor.Sink.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	subs map[chan struct{}]struct{}
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Monitor:   monitor.Snapshot{Lifecycle: monitor.LifecycleNotStarted},
			StartTime: startTime,
			Config:    cfg,
		},
		subs: make(map[chan struct{}]struct{}),
	}
}

// Tick stores the latest monitor snapshot. Called from the monitor loop.
func (t *Tracker) Tick(s monitor.Snapshot) {
	t.mu.Lock()
	t.snap.Monitor = s
	t.mu.Unlock()
	t.notify()
}

// Transition records the latest phase change.
func (t *Tracker) Transition(e logic.Event, actionErr error) {
	tr := &Transition{Event: e}
	if actionErr != nil {
		tr.ActionError = actionErr.Error()
	}
	t.mu.Lock()
	t.snap.LastTransition = tr
	t.mu.Unlock()
	t.notify()
}

// SetTargetName sets the display name of the monitored device.
func (t *Tracker) SetTargetName(name string) {
	t.mu.Lock()
	t.snap.TargetName = name
	t.mu.Unlock()
	t.notify()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	changed := t.snap.MQTTConnected != connected
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()

	if s.Monitor.LastSignal != nil {
		v := *s.Monitor.LastSignal
		s.Monitor.LastSignal = &v
	}
	if s.LastTransition != nil {
		tr := *s.LastTransition
		s.LastTransition = &tr
	}
	s.Now = time.Now()
	return s
}

// Subscribe returns a channel that receives a value whenever the state
// changes. Notifications coalesce; a slow reader sees the latest state on
// its next Snapshot. Call the returned func to unsubscribe.
func (t *Tracker) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	return ch, func() {
		t.mu.Lock()
		delete(t.subs, ch)
		t.mu.Unlock()
	}
}

func (t *Tracker) notify() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
