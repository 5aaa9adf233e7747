package mqtt

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/bluelock/internal/logic"
	"github.com/sweeney/bluelock/internal/monitor"
)

// StatusFormatter renders a full status payload for a system event.
type StatusFormatter func(event string, now time.Time) ([]byte, error)

// Sink publishes monitor transitions and heartbeats. Publishing happens on
// a single worker goroutine so the monitor loop never waits on the broker;
// order is preserved.
type Sink struct {
	pub    Publisher
	format StatusFormatter
	logger *slog.Logger

	mu      sync.Mutex
	session string
	target  string
	closed  bool

	queue chan func()
	done  chan struct{}
}

// NewSink starts a publishing sink. format may be nil, in which case
// heartbeats carry no status snapshot. Call Close to flush and stop.
func NewSink(pub Publisher, format StatusFormatter, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		pub:    pub,
		format: format,
		logger: logger.With("component", "mqtt"),
		queue:  make(chan func(), 64),
		done:   make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *Sink) worker() {
	defer close(s.done)
	for fn := range s.queue {
		fn()
	}
}

// enqueue drops fn once the sink is closed; an abandoned session loop may
// still report a transition after shutdown.
func (s *Sink) enqueue(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Debug("sink closed, dropping message")
		return
	}
	select {
	case s.queue <- fn:
	default:
		s.logger.Warn("publish queue full, dropping message")
	}
}

// Tick remembers the session the following transitions belong to.
func (s *Sink) Tick(snap monitor.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = snap.SessionID
	s.target = snap.TargetID
}

// Transition publishes the event on Topic.
func (s *Sink) Transition(e logic.Event, actionErr error) {
	s.mu.Lock()
	ev := PresenceEvent{Event: e, SessionID: s.session, TargetID: s.target}
	s.mu.Unlock()
	if actionErr != nil {
		ev.ActionError = actionErr.Error()
	}

	s.enqueue(func() {
		if err := s.pub.Publish(ev); err != nil {
			s.logger.Warn("failed to publish transition", "event", ev.Type, "error", err)
			return
		}
		s.logger.Debug("published transition", "event", ev.Type, "action", ev.Action)
	})
}

// Heartbeat publishes a retained HEARTBEAT on TopicSystem.
func (s *Sink) Heartbeat(hb logic.HeartbeatData, snap monitor.Snapshot) {
	event := SystemEvent{Timestamp: hb.Timestamp, Event: EventHeartbeat, Retained: true}
	if s.format != nil {
		payload, err := s.format(EventHeartbeat, hb.Timestamp)
		if err != nil {
			s.logger.Warn("failed to format heartbeat", "error", err)
		} else {
			event.RawPayload = payload
		}
	}

	s.enqueue(func() {
		if err := s.pub.PublishSystem(event); err != nil {
			s.logger.Warn("failed to publish heartbeat", "error", err)
		}
	})
}

// Close flushes queued messages and stops the worker. Safe to call twice.
func (s *Sink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}
