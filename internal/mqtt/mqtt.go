// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/bluelock/internal/logic"
)

// Topic is the MQTT topic for presence transitions.
const Topic = "bluelock/presence/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "bluelock/presence/system"

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
	EventOffline     = "OFFLINE"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a presence transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event PresenceEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// PresenceEvent is a transition with the session it belongs to.
type PresenceEvent struct {
	logic.Event
	SessionID   string
	TargetID    string
	ActionError string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Presence PresencePayload `json:"presence"`
}

// PresencePayload contains the transition details.
type PresencePayload struct {
	Timestamp   string `json:"timestamp"`
	Event       string `json:"event"`
	Phase       string `json:"phase"`
	Action      string `json:"action"`
	Target      string `json:"target"`
	Session     string `json:"session,omitempty"`
	Signal      *int   `json:"signal_dbm,omitempty"`
	ActionError string `json:"action_error,omitempty"`
}

// FormatPayload creates the JSON payload for a presence transition.
func FormatPayload(event PresenceEvent) ([]byte, error) {
	payload := Payload{
		Presence: PresencePayload{
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339),
			Event:       string(event.Type),
			Phase:       string(event.Phase),
			Action:      string(event.Action),
			Target:      event.TargetID,
			Session:     event.SessionID,
			Signal:      event.Signal,
			ActionError: event.ActionError,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// WillPayload is the retained last-will message the broker publishes if
// the daemon disappears without a clean shutdown.
func WillPayload() []byte {
	payload, _ := FormatSystemPayload(SystemEvent{Event: EventOffline, Reason: "MQTT_DISCONNECT"})
	return payload
}
