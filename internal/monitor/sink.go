package monitor

import "github.com/sweeney/bluelock/internal/logic"

// Sink receives the loop's side-channel output. Calls are made from the loop
// goroutine, so implementations must not block for long.
type Sink interface {
	// Tick is called with a fresh snapshot after every state change.
	Tick(Snapshot)
	// Transition is called once per phase change, after the action ran.
	// actionErr is nil if the action succeeded or was disabled.
	Transition(event logic.Event, actionErr error)
}

// HeartbeatSink is implemented by sinks that want periodic liveness updates.
type HeartbeatSink interface {
	Heartbeat(hb logic.HeartbeatData, snap Snapshot)
}

// Sinks fans out to several sinks in order. Nil entries are skipped.
func Sinks(sinks ...Sink) Sink {
	var m multiSink
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

type multiSink []Sink

func (m multiSink) Tick(s Snapshot) {
	for _, sink := range m {
		sink.Tick(cloneSnapshot(s))
	}
}

func (m multiSink) Transition(e logic.Event, err error) {
	for _, sink := range m {
		sink.Transition(e, err)
	}
}

func (m multiSink) Heartbeat(hb logic.HeartbeatData, s Snapshot) {
	for _, sink := range m {
		if hs, ok := sink.(HeartbeatSink); ok {
			hs.Heartbeat(hb, cloneSnapshot(s))
		}
	}
}
