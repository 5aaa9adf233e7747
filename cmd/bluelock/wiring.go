package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sweeney/bluelock/internal/action"
	"github.com/sweeney/bluelock/internal/bluez"
	"github.com/sweeney/bluelock/internal/config"
	"github.com/sweeney/bluelock/internal/monitor"
	"github.com/sweeney/bluelock/internal/probe"
	"github.com/sweeney/bluelock/internal/status"
	"github.com/sweeney/bluelock/internal/store"
)

// buildProber creates the configured probe. The BlueZ client is returned
// when one was opened; the caller closes it.
func buildProber(ctx context.Context, cfg *config.Config) (monitor.Prober, *bluez.Client, error) {
	cmd := probe.NewCommand(cfg.Probe.Command, cfg.Probe.Timeout)

	if cfg.Probe.Kind == config.ProbeCommand {
		return cmd, nil, nil
	}

	client, err := bluez.Connect(ctx, cfg.Probe.Adapter)
	if err != nil {
		return nil, nil, err
	}
	bz := probe.NewBlueZ(client)
	bz.Timeout = cfg.Probe.Timeout
	bz.MinRSSI = cfg.Probe.MinRSSI
	bz.AssumedRSSI = cfg.Probe.AssumedRSSI

	if cfg.Probe.Kind == config.ProbeChain {
		return probe.Chain{bz, cmd}, client, nil
	}
	return bz, client, nil
}

// newSessionSupervisor builds the supervisor that runs monitoring sessions
// against the configured adapters. The detector already fires each action
// once per transition, so adapters are called directly.
func newSessionSupervisor(ctx context.Context, prober monitor.Prober, acts *actionSet, opts ...monitor.Option) *monitor.Supervisor {
	return monitor.NewSupervisor(ctx, prober, acts.Appliers, opts...)
}

// preflight runs the prober's readiness check, if it has one.
func preflight(ctx context.Context, p monitor.Prober) error {
	pf, ok := p.(monitor.Preflighter)
	if !ok {
		return nil
	}
	if err := pf.Preflight(ctx); err != nil {
		return &monitor.PreflightError{Err: err}
	}
	return nil
}

// actionSet is the configured action adapters. Appliers runs every adapter
// on each call and backs both monitoring sessions and manual locks.
type actionSet struct {
	Appliers action.Multi
	closers  []io.Closer
}

func (a *actionSet) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildActions creates the configured action adapters. A nil client
// makes logind open its own bus connection.
func buildActions(cfg *config.Config, client *bluez.Client, logger *slog.Logger) (*actionSet, error) {
	set := &actionSet{}
	for _, kind := range cfg.Actions.Kinds() {
		switch kind {
		case config.ActionNone:
		case config.ActionLogind:
			if client != nil {
				set.Appliers = append(set.Appliers, action.NewLogind(client.Conn()))
				continue
			}
			l, err := action.ConnectLogind()
			if err != nil {
				set.Close()
				return nil, err
			}
			set.Appliers = append(set.Appliers, l)
			set.closers = append(set.closers, l)
		case config.ActionCommand:
			set.Appliers = append(set.Appliers, action.NewCommand(cfg.Actions.LockCommand, cfg.Actions.WakeCommand))
		case config.ActionGPIO:
			g, err := action.OpenGPIO(cfg.Actions.GPIOChip, cfg.Actions.GPIOLine, cfg.Actions.GPIOActiveLow)
			if err != nil {
				set.Close()
				return nil, fmt.Errorf("open gpio: %w", err)
			}
			set.Appliers = append(set.Appliers, g)
			set.closers = append(set.closers, g)
		default:
			set.Close()
			return nil, fmt.Errorf("unknown action kind %q", kind)
		}
	}
	logger.Debug("actions configured", "count", len(set.Appliers), "kinds", cfg.Actions.Kinds())
	return set, nil
}

// resolveTarget picks the device to monitor: the configured one, then the
// saved selection, then (with a lister) the best paired device, which is
// saved for next time.
func resolveTarget(ctx context.Context, cfg *config.Config, st *store.Store, lister deviceLister, logger *slog.Logger) (store.Target, bool, error) {
	if cfg.Target.ID != "" {
		return store.Target{ID: normalizeTarget(cfg.Target.ID), Name: cfg.Target.Name}, true, nil
	}

	t, ok, err := st.LoadTarget()
	if err != nil {
		return store.Target{}, false, fmt.Errorf("load saved target: %w", err)
	}
	if ok {
		return t, true, nil
	}

	if lister == nil {
		return store.Target{}, false, nil
	}
	devices, err := lister.Devices(ctx)
	if err != nil {
		logger.Warn("device discovery failed", "error", err)
		return store.Target{}, false, nil
	}
	best, ok := bluez.Best(devices)
	if !ok {
		return store.Target{}, false, nil
	}
	t = store.Target{ID: best.Address, Name: best.Name}
	if err := st.SaveTarget(t); err != nil {
		return store.Target{}, false, err
	}
	logger.Info("auto-selected target", "target", t.ID, "name", t.Name, "kind", best.Kind)
	return t, true, nil
}

// normalizeTarget canonicalizes Bluetooth addresses. Other ids, as used by
// command probes, are only trimmed.
func normalizeTarget(id string) string {
	id = strings.TrimSpace(id)
	if mac, err := bluez.NormalizeMAC(id); err == nil {
		return mac
	}
	return id
}

type deviceLister interface {
	Devices(ctx context.Context) ([]bluez.Device, error)
}

// statusConfig is the display config for the status tracker.
func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		PollMs:        cfg.PollInterval.Milliseconds(),
		MissThreshold: cfg.MissThreshold,
		HitThreshold:  cfg.HitThreshold,
		LockEnabled:   cfg.LockEnabled,
		WakeEnabled:   cfg.WakeEnabled,
		HeartbeatMs:   cfg.MQTT.Heartbeat.Milliseconds(),
		Probe:         cfg.Probe.Kind,
		Actions:       strings.Join(cfg.Actions.Kinds(), ","),
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP.Listen,
	}
}
