package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sweeney/bluelock/internal/bluez"
	"github.com/sweeney/bluelock/internal/logic"
)

var (
	addrStyle = lipgloss.NewStyle().Foreground(colorCyan).Width(19)
	nameStyle = lipgloss.NewStyle().Foreground(colorWhite).Width(28)
	kindStyle = lipgloss.NewStyle().Foreground(colorMagenta).Width(8)
)

// RenderDevices formats a device list, one device per line, in the order given.
func RenderDevices(devices []bluez.Device) string {
	if len(devices) == 0 {
		return helpStyle.Render("no devices known to the adapter") + "\n"
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Devices") + "\n")
	for i, d := range devices {
		var flags []string
		if d.Paired {
			flags = append(flags, "paired")
		}
		if d.Connected {
			flags = append(flags, okStyle.Render("connected"))
		}
		if d.RSSI != nil {
			flags = append(flags, fmt.Sprintf("%d dBm", *d.RSSI))
		}
		fmt.Fprintf(&sb, "%2d. %s%s%s%s\n", i+1,
			addrStyle.Render(d.Address),
			nameStyle.Render(d.Name),
			kindStyle.Render(d.Kind),
			helpStyle.Render(strings.Join(flags, ", ")),
		)
	}
	return sb.String()
}

// RenderResult formats a single probe result for target.
func RenderResult(target string, r logic.Result) string {
	var state string
	switch r.Kind {
	case logic.ResultPresent:
		state = okStyle.Render("PRESENT")
	case logic.ResultAbsent:
		state = critStyle.Render("ABSENT")
	default:
		state = warnStyle.Render("PROBE_ERROR")
	}
	line := titleStyle.Render(target) + "  " + state
	if r.Signal != nil {
		line += "  " + signalBar(*r.Signal, 10) + " " + valueStyle.Render(fmt.Sprintf("%d dBm", *r.Signal))
	}
	if r.Err != nil {
		line += "  " + helpStyle.Render(r.Err.Error())
	}
	return line + "\n"
}
