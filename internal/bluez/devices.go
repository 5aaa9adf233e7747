package bluez

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

// Device is a BlueZ device known to the adapter.
type Device struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Icon      string `json:"icon,omitempty"`
	Paired    bool   `json:"paired"`
	Connected bool   `json:"connected"`
	RSSI      *int   `json:"rssi,omitempty"`
	Priority  int    `json:"priority"`
	Kind      string `json:"kind"`
}

// Devices lists the adapter's devices via ObjectManager.GetManagedObjects,
// ranked for target selection.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	obj := c.conn.Object(busName, "/")
	if err := obj.CallWithContext(ctx, objectManager+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}

	var devices []Device
	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		addr := MACFromPath(c.adapter, path)
		if addr == "" {
			continue
		}
		devices = append(devices, deviceFromProps(addr, props))
	}
	return Rank(devices), nil
}

func deviceFromProps(addr string, props map[string]dbus.Variant) Device {
	d := Device{Address: addr}
	if v, ok := props["Address"]; ok {
		if s, ok := v.Value().(string); ok {
			d.Address = s
		}
	}
	// Alias falls back to Name in BlueZ, so prefer it.
	for _, key := range []string{"Alias", "Name"} {
		if v, ok := props[key]; ok {
			if s, ok := v.Value().(string); ok && s != "" {
				d.Name = s
				break
			}
		}
	}
	if v, ok := props["Icon"]; ok {
		d.Icon, _ = v.Value().(string)
	}
	if v, ok := props["Paired"]; ok {
		d.Paired, _ = v.Value().(bool)
	}
	if v, ok := props["Connected"]; ok {
		d.Connected, _ = v.Value().(bool)
	}
	if v, ok := props["RSSI"]; ok {
		if n, ok := variantInt(v); ok {
			d.RSSI = &n
		}
	}
	return d
}

type keywordRule struct {
	words    []string
	priority int
	kind     string
}

// Earlier rules win, so "headphone" is audio rather than phone.
var priorityRules = []keywordRule{
	{[]string{"buds", "airpods", "headphone", "earphone"}, 10, "audio"},
	{[]string{"audio", "sound", "speaker"}, 8, "speaker"},
	{[]string{"watch", "band"}, 7, "watch"},
	{[]string{"mouse", "keyboard"}, 5, "input"},
	{[]string{"phone", "mobile"}, 3, "phone"},
}

// Classify returns the selection priority and a coarse kind for a device name.
// Wearables carried on the body rank highest since they track the user best.
func Classify(name string) (int, string) {
	lower := strings.ToLower(name)
	for _, r := range priorityRules {
		for _, w := range r.words {
			if strings.Contains(lower, w) {
				return r.priority, r.kind
			}
		}
	}
	return 1, "device"
}

// Rank fills Priority and Kind and sorts devices best first: priority,
// then connected, then name. The input slice is sorted in place.
func Rank(devices []Device) []Device {
	for i := range devices {
		devices[i].Priority, devices[i].Kind = Classify(devices[i].Name)
	}
	sort.SliceStable(devices, func(i, j int) bool {
		a, b := devices[i], devices[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Connected != b.Connected {
			return a.Connected
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Address < b.Address
	})
	return devices
}

// Best returns the highest ranked paired device, if any.
func Best(devices []Device) (Device, bool) {
	for _, d := range Rank(devices) {
		if d.Paired {
			return d, true
		}
	}
	return Device{}, false
}
