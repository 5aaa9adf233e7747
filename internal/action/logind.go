package action

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	logindBus     = "org.freedesktop.login1"
	logindPath    = dbus.ObjectPath("/org/freedesktop/login1")
	logindManager = "org.freedesktop.login1.Manager"
)

// Caller is the subset of a D-Bus object the logind action uses.
type Caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Logind locks and unlocks all sessions through systemd-logind.
// Screen lockers listening on the session Lock signal blank the display.
type Logind struct {
	obj  Caller
	conn *dbus.Conn // owned connection, closed by Close
}

// NewLogind binds to logind on conn.
func NewLogind(conn *dbus.Conn) *Logind {
	return &Logind{obj: conn.Object(logindBus, logindPath)}
}

// ConnectLogind opens its own system bus connection.
func ConnectLogind() (*Logind, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	l := NewLogind(conn)
	l.conn = conn
	return l, nil
}

// Close releases the connection opened by ConnectLogind. A Logind built
// with NewLogind leaves its connection to the caller.
func (l *Logind) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}

// ApplyAbsent calls Manager.LockSessions.
func (l *Logind) ApplyAbsent(ctx context.Context) error {
	if err := l.obj.CallWithContext(ctx, logindManager+".LockSessions", 0).Err; err != nil {
		return fmt.Errorf("lock sessions: %w", err)
	}
	return nil
}

// ApplyPresent calls Manager.UnlockSessions.
func (l *Logind) ApplyPresent(ctx context.Context) error {
	if err := l.obj.CallWithContext(ctx, logindManager+".UnlockSessions", 0).Err; err != nil {
		return fmt.Errorf("unlock sessions: %w", err)
	}
	return nil
}
