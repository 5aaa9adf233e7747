package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/bluelock/internal/logic"
	"github.com/sweeney/bluelock/internal/monitor"
)

func intPtr(v int) *int { return &v }

func runningSnapshot() monitor.Snapshot {
	tick := time.Date(2026, 1, 15, 10, 0, 6, 0, time.UTC)
	return monitor.Snapshot{
		SessionID:         "5f0c1d2e-aaaa-bbbb-cccc-000000000001",
		TargetID:          "AA:BB:CC:DD:EE:FF",
		Lifecycle:         monitor.LifecycleRunning,
		Phase:             logic.PhaseInRange,
		LastSignal:        intPtr(-55),
		ConsecutiveHits:   3,
		LastResult:        logic.ResultPresent,
		LastTick:          tick,
		LastTickText:      tick.Format(monitor.TimeFormat),
		StartedAt:         tick.Add(-6 * time.Second),
		Counts:            logic.Counts{Probes: 4, Hits: 3, Misses: 1},
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{PollMs: 3000, MissThreshold: 2, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.PollMs != 3000 {
		t.Errorf("Config.PollMs: got %d, want 3000", snap.Config.PollMs)
	}
	if snap.Config.HTTPAddr != ":8080" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8080")
	}
	if snap.Running() {
		t.Error("expected Running=false initially")
	}
	if snap.Monitor.Lifecycle != monitor.LifecycleNotStarted {
		t.Errorf("Lifecycle: got %q, want NOT_STARTED", snap.Monitor.Lifecycle)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestTickAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Tick(runningSnapshot())

	snap := tr.Snapshot()
	if !snap.Running() {
		t.Error("expected Running=true")
	}
	if snap.Monitor.Phase != logic.PhaseInRange {
		t.Errorf("Phase: got %q, want IN_RANGE", snap.Monitor.Phase)
	}
	if snap.Monitor.Counts.Hits != 3 {
		t.Errorf("Counts.Hits: got %d, want 3", snap.Monitor.Counts.Hits)
	}
}

func TestTransitionRecordsActionError(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	e := logic.Event{Type: logic.EventOutOfRange, Phase: logic.PhaseOutOfRange, Action: logic.ActionLock}
	tr.Transition(e, errors.New("logind unavailable"))

	snap := tr.Snapshot()
	if snap.LastTransition == nil {
		t.Fatal("expected LastTransition")
	}
	if snap.LastTransition.Event.Action != logic.ActionLock {
		t.Errorf("Action: got %q, want LOCK", snap.LastTransition.Event.Action)
	}
	if snap.LastTransition.ActionError != "logind unavailable" {
		t.Errorf("ActionError: got %q", snap.LastTransition.ActionError)
	}

	tr.Transition(logic.Event{Type: logic.EventInRange, Action: logic.ActionWake}, nil)
	if got := tr.Snapshot().LastTransition.ActionError; got != "" {
		t.Errorf("ActionError after success: got %q, want empty", got)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Tick(runningSnapshot())

	snap := tr.Snapshot()
	*snap.Monitor.LastSignal = 0

	if got := *tr.Snapshot().Monitor.LastSignal; got != -55 {
		t.Errorf("LastSignal changed through snapshot: got %d", got)
	}
}

func TestSubscribeNotifiesAndCoalesces(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	ch, cancel := tr.Subscribe()

	tr.Tick(runningSnapshot())
	tr.Tick(runningSnapshot())

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a notification")
	}
	select {
	case <-ch:
		t.Fatal("expected notifications to coalesce")
	default:
	}

	cancel()
	tr.SetTargetName("headphones")
	select {
	case <-ch:
		t.Fatal("unexpected notification after unsubscribe")
	default:
	}
}

func TestSetMQTTConnectedUnchangedDoesNotNotify(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	ch, cancel := tr.Subscribe()
	defer cancel()

	tr.SetMQTTConnected(false)
	select {
	case <-ch:
		t.Fatal("unexpected notification")
	default:
	}
}

func TestUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(90 * time.Second)}
	if snap.Uptime() != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", snap.Uptime())
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	ch, cancel := tr.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Tick(runningSnapshot())
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.SetMQTTConnected(j%2 == 0)
				tr.Transition(logic.Event{Type: logic.EventInRange}, nil)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = tr.Snapshot()
				select {
				case <-ch:
				default:
				}
			}
		}()
	}
	wg.Wait()
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Monitor:       runningSnapshot(),
		TargetName:    "WH-1000XM4",
		StartTime:     start,
		Now:           start.Add(time.Hour + 500*time.Millisecond),
		MQTTConnected: true,
		Config:        Config{PollMs: 3000, MissThreshold: 2, HitThreshold: 2, LockEnabled: true, Probe: "bluez", Actions: "logind", Broker: "tcp://localhost:1883"},
	}

	var out StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s := out.Status
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected no event/reason, got %q/%q", s.Event, s.Reason)
	}
	if !s.Running || s.Lifecycle != "RUNNING" {
		t.Errorf("lifecycle: running=%v lifecycle=%q", s.Running, s.Lifecycle)
	}
	if s.Target.ID != "AA:BB:CC:DD:EE:FF" || s.Target.Name != "WH-1000XM4" {
		t.Errorf("target: got %+v", s.Target)
	}
	if s.Phase != "IN_RANGE" {
		t.Errorf("phase: got %q", s.Phase)
	}
	if s.SignalDBm == nil || *s.SignalDBm != -55 {
		t.Errorf("signal_dbm: got %v", s.SignalDBm)
	}
	if s.LastCheck != "10:00:06" {
		t.Errorf("last_check: got %q, want 10:00:06", s.LastCheck)
	}
	if s.UptimeSeconds != 3600 {
		t.Errorf("uptime_seconds: got %d, want 3600", s.UptimeSeconds)
	}
	if s.Counts.DetectionRate != 75 {
		t.Errorf("detection_rate: got %v, want 75", s.Counts.DetectionRate)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("mqtt: got %+v", s.MQTT)
	}
	if s.Config.PollMs != 3000 || !s.Config.LockEnabled || s.Config.Probe != "bluez" {
		t.Errorf("config: got %+v", s.Config)
	}
	if s.LastTransition != nil {
		t.Errorf("expected no last_transition, got %+v", s.LastTransition)
	}
}

func TestFormatJSONNotStarted(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	var raw map[string]map[string]any
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s := raw["status"]
	if s["lifecycle"] != "NOT_STARTED" {
		t.Errorf("lifecycle: got %v", s["lifecycle"])
	}
	if s["phase"] != "UNKNOWN" {
		t.Errorf("phase: got %v", s["phase"])
	}
	if v, ok := s["signal_dbm"]; !ok || v != nil {
		t.Errorf("signal_dbm: expected explicit null, got %v (present=%v)", v, ok)
	}
	if _, ok := s["last_check"]; ok {
		t.Error("expected last_check to be omitted before the first tick")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Tick(runningSnapshot())
	tr.Transition(logic.Event{
		Timestamp: time.Date(2026, 1, 15, 10, 0, 6, 0, time.UTC),
		Type:      logic.EventOutOfRange,
		Action:    logic.ActionLock,
	}, errors.New("boom"))

	var out StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(tr.Snapshot(), "SHUTDOWN", "SIGTERM"), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Status.Event != "SHUTDOWN" || out.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %q/%q", out.Status.Event, out.Status.Reason)
	}
	lt := out.Status.LastTransition
	if lt == nil {
		t.Fatal("expected last_transition")
	}
	if lt.Event != "OUT_OF_RANGE" || lt.Action != "LOCK" || lt.ActionError != "boom" {
		t.Errorf("last_transition: got %+v", lt)
	}
	if lt.Timestamp != "2026-01-15T10:00:06Z" {
		t.Errorf("last_transition.timestamp: got %q", lt.Timestamp)
	}
}
