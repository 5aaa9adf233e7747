package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/bluelock/internal/monitor"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event             string          `json:"event,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	Running           bool            `json:"running"`
	Lifecycle         string          `json:"lifecycle"`
	Session           string          `json:"session,omitempty"`
	Target            TargetJSON      `json:"target"`
	Phase             string          `json:"phase"`
	SignalDBm         *int            `json:"signal_dbm"`
	ConsecutiveMisses int             `json:"consecutive_misses"`
	ConsecutiveHits   int             `json:"consecutive_hits"`
	LastResult        string          `json:"last_result,omitempty"`
	LastError         string          `json:"last_error,omitempty"`
	LastCheck         string          `json:"last_check,omitempty"`
	LastCheckTime     string          `json:"last_check_time,omitempty"`
	UptimeSeconds     int64           `json:"uptime_seconds"`
	StartTime         string          `json:"start_time"`
	Timestamp         string          `json:"timestamp"`
	MQTT              MQTTStatus      `json:"mqtt"`
	Counts            CountsJSON      `json:"counts"`
	LastTransition    *TransitionJSON `json:"last_transition,omitempty"`
	Config            ConfigJSON      `json:"config"`
}

// TargetJSON identifies the monitored device.
type TargetJSON struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of session counts.
type CountsJSON struct {
	Probes        int     `json:"probes"`
	Hits          int     `json:"hits"`
	Misses        int     `json:"misses"`
	ProbeErrors   int     `json:"probe_errors"`
	OutOfRange    int     `json:"out_of_range"`
	InRange       int     `json:"in_range"`
	DetectionRate float64 `json:"detection_rate"`
}

// TransitionJSON is the JSON representation of the last transition.
type TransitionJSON struct {
	Timestamp   string `json:"timestamp"`
	Event       string `json:"event"`
	Action      string `json:"action"`
	ActionError string `json:"action_error,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs        int64  `json:"poll_ms"`
	MissThreshold int    `json:"miss_threshold"`
	HitThreshold  int    `json:"hit_threshold"`
	LockEnabled   bool   `json:"lock_enabled"`
	WakeEnabled   bool   `json:"wake_enabled"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Probe         string `json:"probe"`
	Actions       string `json:"actions"`
	Broker        string `json:"broker"`
	HTTPAddr      string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	m := snap.Monitor
	phase := string(m.Phase)
	if phase == "" {
		phase = "UNKNOWN"
	}
	lifecycle := string(m.Lifecycle)
	if lifecycle == "" {
		lifecycle = string(monitor.LifecycleNotStarted)
	}

	inner := StatusInner{
		Running:           snap.Running(),
		Lifecycle:         lifecycle,
		Session:           m.SessionID,
		Target:            TargetJSON{ID: m.TargetID, Name: snap.TargetName},
		Phase:             phase,
		SignalDBm:         m.LastSignal,
		ConsecutiveMisses: m.ConsecutiveMisses,
		ConsecutiveHits:   m.ConsecutiveHits,
		LastResult:        string(m.LastResult),
		LastError:         m.LastError,
		UptimeSeconds:     int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:         snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:         snap.Now.UTC().Format(time.RFC3339),
		MQTT:              MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Probes:        m.Counts.Probes,
			Hits:          m.Counts.Hits,
			Misses:        m.Counts.Misses,
			ProbeErrors:   m.Counts.ProbeErrors,
			OutOfRange:    m.Counts.OutOfRange,
			InRange:       m.Counts.InRange,
			DetectionRate: m.Counts.DetectionRate(),
		},
		Config: ConfigJSON{
			PollMs:        snap.Config.PollMs,
			MissThreshold: snap.Config.MissThreshold,
			HitThreshold:  snap.Config.HitThreshold,
			LockEnabled:   snap.Config.LockEnabled,
			WakeEnabled:   snap.Config.WakeEnabled,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Probe:         snap.Config.Probe,
			Actions:       snap.Config.Actions,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
		},
	}
	if !m.LastTick.IsZero() {
		inner.LastCheck = m.LastTickText
		inner.LastCheckTime = m.LastTick.UTC().Format(time.RFC3339)
	}
	if tr := snap.LastTransition; tr != nil {
		inner.LastTransition = &TransitionJSON{
			Timestamp:   tr.Event.Timestamp.UTC().Format(time.RFC3339),
			Event:       string(tr.Event.Type),
			Action:      string(tr.Event.Action),
			ActionError: tr.ActionError,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
