package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/bluelock/internal/logic"
	"github.com/sweeney/bluelock/internal/monitor"
)

// Transition is one recorded phase change.
type Transition struct {
	ID          int64           `json:"id"`
	SessionID   string          `json:"session_id"`
	TargetID    string          `json:"target_id"`
	Event       logic.EventType `json:"event"`
	Action      logic.Action    `json:"action"`
	Signal      *int            `json:"signal,omitempty"`
	ActionError string          `json:"action_error,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// RecordTransition appends a transition to the history.
func (s *Store) RecordTransition(t Transition) error {
	var signal sql.NullInt64
	if t.Signal != nil {
		signal = sql.NullInt64{Int64: int64(*t.Signal), Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO transitions (session_id, target_id, event, action, signal, action_error, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.TargetID, string(t.Event), string(t.Action), signal, t.ActionError,
		t.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// RecentTransitions returns up to limit transitions, newest first.
func (s *Store) RecentTransitions(limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, session_id, target_id, event, action, signal, action_error, occurred_at
		 FROM transitions ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	result := []Transition{}
	for rows.Next() {
		var (
			t        Transition
			event    string
			action   string
			signal   sql.NullInt64
			occurred string
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &t.TargetID, &event, &action, &signal, &t.ActionError, &occurred); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Event = logic.EventType(event)
		t.Action = logic.Action(action)
		if signal.Valid {
			v := int(signal.Int64)
			t.Signal = &v
		}
		if ts, err := time.Parse(time.RFC3339Nano, occurred); err == nil {
			t.OccurredAt = ts
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// historyQueue bounds the writes waiting for the database.
const historyQueue = 64

// HistorySink records every transition of a monitoring session. Writes
// happen on a worker goroutine so the monitor loop never waits on SQLite.
type HistorySink struct {
	store  *Store
	logger *slog.Logger

	mu      sync.Mutex
	session string
	target  string
	closed  bool

	queue chan Transition
	done  chan struct{}
}

// NewHistorySink starts a sink writing to s. Call Close to flush and stop.
func NewHistorySink(s *Store, logger *slog.Logger) *HistorySink {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HistorySink{
		store:  s,
		logger: logger.With("component", "history"),
		queue:  make(chan Transition, historyQueue),
		done:   make(chan struct{}),
	}
	go h.worker()
	return h
}

func (h *HistorySink) worker() {
	defer close(h.done)
	for t := range h.queue {
		if err := h.store.RecordTransition(t); err != nil {
			h.logger.Warn("failed to record transition", "event", t.Event, "error", err)
		}
	}
}

// Tick remembers which session the following transitions belong to.
func (h *HistorySink) Tick(snap monitor.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.session = snap.SessionID
	h.target = snap.TargetID
}

// Transition queues the event for writing. Write failures are logged, not
// propagated; transitions after Close are dropped.
func (h *HistorySink) Transition(e logic.Event, actionErr error) {
	t := Transition{
		Event:      e.Type,
		Action:     e.Action,
		Signal:     e.Signal,
		OccurredAt: e.Timestamp,
	}
	if actionErr != nil {
		t.ActionError = actionErr.Error()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	t.SessionID = h.session
	t.TargetID = h.target
	if h.closed {
		h.logger.Debug("history closed, dropping transition", "event", t.Event)
		return
	}
	select {
	case h.queue <- t:
	default:
		h.logger.Warn("history queue full, dropping transition", "event", t.Event)
	}
}

// Close flushes queued transitions and stops the worker. Safe to call twice.
func (h *HistorySink) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.queue)
	}
	h.mu.Unlock()
	<-h.done
}
