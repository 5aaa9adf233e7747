package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorRed     = lipgloss.Color("#FF5555")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorMagenta = lipgloss.Color("#FF79C6")
	colorWhite   = lipgloss.Color("#F8F8F2")
	colorGray    = lipgloss.Color("#6272A4")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	headerStyle = lipgloss.NewStyle().Foreground(colorMagenta).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(colorGray).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	helpStyle   = lipgloss.NewStyle().Foreground(colorGray)
)

// Signal readings are mapped onto this dBm range for the bar.
const (
	signalFloor = -100
	signalCeil  = -30
)

// signalPct maps a dBm reading to 0..100.
func signalPct(dbm int) float64 {
	pct := float64(dbm-signalFloor) * 100 / float64(signalCeil-signalFloor)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// signalBar renders a signal strength bar; stronger is greener.
func signalBar(dbm int, width int) string {
	if width < 1 {
		width = 10
	}
	pct := signalPct(dbm)
	filled := int(pct / 100 * float64(width))
	b := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	switch {
	case pct < 25:
		return critStyle.Render(b)
	case pct < 50:
		return warnStyle.Render(b)
	default:
		return okStyle.Render(b)
	}
}
