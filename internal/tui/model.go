// Package tui is the terminal front-end for a running bluelock daemon.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sweeney/bluelock/internal/logic"
	"github.com/sweeney/bluelock/internal/status"
)

// DefaultInterval is how often the view refreshes.
const DefaultInterval = time.Second

// Source provides the daemon state to display.
type Source interface {
	Snapshot() status.Snapshot
}

type tickMsg time.Time

// Model is the bubbletea model for the status view.
type Model struct {
	src      Source
	interval time.Duration
	snap     status.Snapshot
	width    int
	quitting bool
}

// New creates a Model reading from src.
func New(src Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return Model{src: src, interval: interval, snap: src.Snapshot()}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick(m.interval)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		m.snap = m.src.Snapshot()
		return m, tick(m.interval)
	}
	return m, nil
}

// Quitting reports whether the user asked to quit.
func (m Model) Quitting() bool { return m.quitting }

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	s := m.snap
	mon := s.Monitor

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("bluelock") + "  " + helpStyle.Render(string(mon.Lifecycle)) + "\n\n")

	target := "none"
	if mon.TargetID != "" {
		target = mon.TargetID
		if s.TargetName != "" {
			target += " (" + s.TargetName + ")"
		}
	}

	var presence strings.Builder
	presence.WriteString(headerStyle.Render("Presence") + "\n")
	presence.WriteString(row("Target", valueStyle.Render(target)))
	presence.WriteString(row("Phase", phaseStyle(mon.Phase)))
	presence.WriteString(row("Signal", signalText(mon.LastSignal)))
	presence.WriteString(row("Misses/Hits", valueStyle.Render(fmt.Sprintf("%d / %d", mon.ConsecutiveMisses, mon.ConsecutiveHits))))
	last := "never"
	if mon.LastTickText != "" {
		last = mon.LastTickText
	}
	presence.WriteString(row("Last check", valueStyle.Render(last)))
	if mon.LastError != "" {
		presence.WriteString(row("Last error", warnStyle.Render(mon.LastError)))
	}

	var counts strings.Builder
	counts.WriteString(headerStyle.Render("Session") + "\n")
	counts.WriteString(row("Probes", valueStyle.Render(fmt.Sprintf("%d (%.0f%% hits)", mon.Counts.Probes, mon.Counts.DetectionRate()))))
	counts.WriteString(row("Probe errors", valueStyle.Render(fmt.Sprintf("%d", mon.Counts.ProbeErrors))))
	counts.WriteString(row("Locks/Wakes", valueStyle.Render(fmt.Sprintf("%d / %d", mon.Counts.OutOfRange, mon.Counts.InRange))))
	if tr := s.LastTransition; tr != nil {
		line := fmt.Sprintf("%s %s at %s", tr.Event.Type, tr.Event.Action, tr.Event.Timestamp.Format("15:04:05"))
		if tr.ActionError != "" {
			counts.WriteString(row("Last", critStyle.Render(line+" (failed)")))
		} else {
			counts.WriteString(row("Last", valueStyle.Render(line)))
		}
	}
	mqtt := critStyle.Render("disconnected")
	if s.MQTTConnected {
		mqtt = okStyle.Render("connected")
	} else if s.Config.Broker == "" {
		mqtt = helpStyle.Render("disabled")
	}
	counts.WriteString(row("MQTT", mqtt))

	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(strings.TrimRight(presence.String(), "\n")),
		panelStyle.Render(strings.TrimRight(counts.String(), "\n")),
	)
	if m.width > 0 && lipgloss.Width(panels) > m.width {
		panels = lipgloss.JoinVertical(lipgloss.Left,
			panelStyle.Render(strings.TrimRight(presence.String(), "\n")),
			panelStyle.Render(strings.TrimRight(counts.String(), "\n")),
		)
	}
	sb.WriteString(panels + "\n")
	sb.WriteString(helpStyle.Render("q: quit") + "\n")
	return sb.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}

func phaseStyle(p logic.Phase) string {
	switch p {
	case logic.PhaseInRange:
		return okStyle.Render(string(p))
	case logic.PhaseOutOfRange:
		return critStyle.Render(string(p))
	default:
		return warnStyle.Render("UNKNOWN")
	}
}

func signalText(dbm *int) string {
	if dbm == nil {
		return helpStyle.Render("n/a")
	}
	return signalBar(*dbm, 10) + " " + valueStyle.Render(fmt.Sprintf("%d dBm", *dbm))
}

// Run shows the status view until the user quits or ctx is cancelled.
func Run(ctx context.Context, src Source) error {
	p := tea.NewProgram(New(src, DefaultInterval), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
