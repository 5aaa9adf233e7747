package bluez

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// ErrNotRunning is returned when org.bluez is not on the system bus.
var ErrNotRunning = errors.New("org.bluez not found on system bus, is bluetooth.service running?")

// Client wraps a system D-Bus connection for BlueZ operations.
type Client struct {
	conn    *dbus.Conn
	adapter string
}

// Connect opens the system bus and checks that BlueZ is on it.
// An empty adapter means DefaultAdapter.
func Connect(ctx context.Context, adapter string) (*Client, error) {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	c := &Client{conn: conn, adapter: adapter}
	if err := c.CheckRunning(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Adapter returns the adapter name, e.g. "hci0".
func (c *Client) Adapter() string { return c.adapter }

// Conn exposes the bus connection for other system services (logind).
func (c *Client) Conn() *dbus.Conn { return c.conn }

// Close closes the private bus connection.
func (c *Client) Close() error { return c.conn.Close() }

// CheckRunning verifies org.bluez is registered on the bus.
func (c *Client) CheckRunning(ctx context.Context) error {
	var names []string
	if err := c.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return fmt.Errorf("list bus names: %w", err)
	}
	for _, n := range names {
		if n == busName {
			return nil
		}
	}
	return ErrNotRunning
}

func (c *Client) getProp(ctx context.Context, path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	obj := c.conn.Object(busName, path)
	var v dbus.Variant
	err := obj.CallWithContext(ctx, propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (c *Client) getBool(ctx context.Context, path dbus.ObjectPath, iface, prop string) (bool, error) {
	v, err := c.getProp(ctx, path, iface, prop)
	if err != nil {
		return false, err
	}
	val, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s is not bool", prop)
	}
	return val, nil
}

// AdapterPowered reports whether the adapter is powered on.
func (c *Client) AdapterPowered(ctx context.Context) (bool, error) {
	return c.getBool(ctx, AdapterPath(c.adapter), adapterIface, "Powered")
}

// Connected reads Device1.Connected for addr.
func (c *Client) Connected(ctx context.Context, addr string) (bool, error) {
	return c.getBool(ctx, DevicePath(c.adapter, addr), deviceIface, "Connected")
}

// RSSI reads Device1.RSSI for addr. ok is false when BlueZ has no current
// reading, which is normal outside discovery.
func (c *Client) RSSI(ctx context.Context, addr string) (rssi int, ok bool, err error) {
	v, err := c.getProp(ctx, DevicePath(c.adapter, addr), deviceIface, "RSSI")
	if err != nil {
		if isMissingProperty(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	n, ok := variantInt(v)
	if !ok {
		return 0, false, fmt.Errorf("property RSSI has type %s", v.Signature())
	}
	return n, true, nil
}

func variantInt(v dbus.Variant) (int, bool) {
	switch n := v.Value().(type) {
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}
