// Package bluez talks to the BlueZ daemon over the system D-Bus.
package bluez

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	busName       = "org.bluez"
	adapterIface  = "org.bluez.Adapter1"
	deviceIface   = "org.bluez.Device1"
	propsIface    = "org.freedesktop.DBus.Properties"
	objectManager = "org.freedesktop.DBus.ObjectManager"

	// DefaultAdapter is the adapter used when none is configured.
	DefaultAdapter = "hci0"
)

var macPattern = regexp.MustCompile(`^[0-9A-F]{2}(:[0-9A-F]{2}){5}$`)

// NormalizeMAC upper-cases a MAC address and accepts '-' or '_' separators.
func NormalizeMAC(addr string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(addr))
	s = strings.NewReplacer("-", ":", "_", ":").Replace(s)
	if !macPattern.MatchString(s) {
		return "", fmt.Errorf("invalid bluetooth address %q", addr)
	}
	return s, nil
}

// AdapterPath returns the object path of an adapter such as "hci0".
func AdapterPath(adapter string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

// DevicePath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func DevicePath(adapter, addr string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(strings.ToUpper(addr), ":", "_")
	return dbus.ObjectPath(string(AdapterPath(adapter)) + "/dev_" + escaped)
}

// MACFromPath extracts a MAC address from a device object path under
// adapter. Returns "" for paths that are not direct device children.
func MACFromPath(adapter string, path dbus.ObjectPath) string {
	s := string(path)
	prefix := string(AdapterPath(adapter)) + "/dev_"
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	rest := s[len(prefix):]
	if strings.Contains(rest, "/") {
		return ""
	}
	return strings.ReplaceAll(rest, "_", ":")
}

// IsUnknownObject reports whether err says the device object does not
// exist, which BlueZ returns for devices it has never seen or has removed.
func IsUnknownObject(err error) bool {
	return hasErrorName(err, "org.freedesktop.DBus.Error.UnknownObject", "org.freedesktop.DBus.Error.UnknownMethod", "org.bluez.Error.DoesNotExist")
}

// isMissingProperty reports whether a property read failed because the
// property is currently unset (RSSI outside discovery, for example).
func isMissingProperty(err error) bool {
	return hasErrorName(err, "org.freedesktop.DBus.Error.InvalidArgs", "org.freedesktop.DBus.Error.UnknownProperty")
}

func hasErrorName(err error, names ...string) bool {
	var name string
	var derr dbus.Error
	var perr *dbus.Error
	switch {
	case errors.As(err, &derr):
		name = derr.Name
	case errors.As(err, &perr) && perr != nil:
		name = perr.Name
	default:
		return false
	}
	for _, n := range names {
		if name == n {
			return true
		}
	}
	return false
}
