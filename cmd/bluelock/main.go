// Command bluelock locks the session when a paired Bluetooth device walks
// away and wakes it when the device comes back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sweeney/bluelock/internal/bluez"
	"github.com/sweeney/bluelock/internal/config"
	"github.com/sweeney/bluelock/internal/store"
	"github.com/sweeney/bluelock/internal/tui"
)

// options holds the command-line flags. Flags that were set override the
// config file.
type options struct {
	configPath string

	target        string
	name          string
	poll          time.Duration
	missThreshold int
	hitThreshold  int
	noLock        bool
	noWake        bool
	probe         string
	actions       string
	broker        string
	httpAddr      string
	database      string
	logLevel      string

	list       bool
	selectBest bool
	forget     bool
	printState bool
	once       bool
	maxChecks  int
	tui        bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, map[string]bool, error) {
	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "Config file path (default: search ./bluelock.yaml, ~/.config/bluelock, /etc/bluelock)")
	fs.StringVar(&o.target, "target", "", "Target device address (overrides the saved selection)")
	fs.StringVar(&o.name, "name", "", "Display name of the target device")
	fs.DurationVar(&o.poll, "poll", 0, "Probe interval")
	fs.IntVar(&o.missThreshold, "miss-threshold", 0, "Consecutive misses before locking")
	fs.IntVar(&o.hitThreshold, "hit-threshold", 0, "Consecutive hits before waking")
	fs.BoolVar(&o.noLock, "no-lock", false, "Disable the lock action")
	fs.BoolVar(&o.noWake, "no-wake", false, "Disable the wake action")
	fs.StringVar(&o.probe, "probe", "", "Probe kind: bluez, command, chain")
	fs.StringVar(&o.actions, "actions", "", "Action kinds, comma separated: logind, command, gpio, none")
	fs.StringVar(&o.broker, "broker", "", `MQTT broker address ("off" disables)`)
	fs.StringVar(&o.httpAddr, "http", "", `HTTP status address ("off" disables)`)
	fs.StringVar(&o.database, "db", "", "SQLite database path")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")

	fs.BoolVar(&o.list, "list", false, "List known devices, best candidates first, and exit")
	fs.BoolVar(&o.selectBest, "select", false, "Save the best paired device as the target and exit")
	fs.BoolVar(&o.forget, "forget", false, "Clear the saved target selection and exit")
	fs.BoolVar(&o.printState, "print-state", false, "Probe the target once, print the result and exit")
	fs.BoolVar(&o.once, "once", false, "Run a single check after the seed probe, then exit")
	fs.IntVar(&o.maxChecks, "max-checks", 0, "Exit after this many checks (0 = run forever)")
	fs.BoolVar(&o.tui, "tui", false, "Show the terminal status view")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return o, set, nil
}

// applyOverrides copies explicitly set flags onto cfg.
func applyOverrides(cfg *config.Config, o *options, set map[string]bool) {
	if set["target"] {
		cfg.Target.ID = o.target
	}
	if set["name"] {
		cfg.Target.Name = o.name
	}
	if set["poll"] {
		cfg.PollInterval = o.poll
	}
	if set["miss-threshold"] {
		cfg.MissThreshold = o.missThreshold
	}
	if set["hit-threshold"] {
		cfg.HitThreshold = o.hitThreshold
	}
	if o.noLock {
		cfg.LockEnabled = false
	}
	if o.noWake {
		cfg.WakeEnabled = false
	}
	if set["probe"] {
		cfg.Probe.Kind = o.probe
	}
	if set["actions"] {
		cfg.Actions.Kind = o.actions
	}
	if set["broker"] {
		cfg.MQTT.Broker = offToEmpty(o.broker)
	}
	if set["http"] {
		cfg.HTTP.Listen = offToEmpty(o.httpAddr)
	}
	if set["db"] {
		cfg.Database = o.database
	}
	if set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
}

func offToEmpty(s string) string {
	if s == "off" {
		return ""
	}
	return s
}

// checkLimit returns the number of checks to run, or 0 for no limit.
func (o *options) checkLimit() int {
	if o.once {
		return 1
	}
	return o.maxChecks
}

func main() {
	o, set, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if err := run(o, set); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(o *options, set map[string]bool) error {
	path, err := config.FindConfig(o.configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOverrides(cfg, o, set)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if o.maxChecks < 0 {
		return errors.New("-max-checks must be >= 0")
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	var logOut io.Writer = os.Stderr
	if o.tui {
		// The alt screen owns the terminal; log to a file next to the database.
		f, err := openLogFile(cfg.Database)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	logger := config.NewLogger(logOut, level)
	slog.SetDefault(logger)
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch {
	case o.list:
		return runList(ctx, cfg, os.Stdout)
	case o.selectBest:
		return runSelect(ctx, cfg, os.Stdout)
	case o.forget:
		return runForget(cfg, os.Stdout)
	case o.printState:
		return runPrintState(ctx, cfg, logger, os.Stdout)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runDaemon(ctx, cfg, logger, daemonOptions{
		maxChecks: o.checkLimit(),
		tui:       o.tui,
		sig:       sigCh,
	})
}

func openLogFile(dbPath string) (*os.File, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "bluelock.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func openStore(dbPath string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	return store.NewStore(dbPath)
}

func runList(ctx context.Context, cfg *config.Config, w io.Writer) error {
	client, err := bluez.Connect(ctx, cfg.Probe.Adapter)
	if err != nil {
		return err
	}
	defer client.Close()

	devices, err := client.Devices(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(w, tui.RenderDevices(devices))
	return nil
}

func runSelect(ctx context.Context, cfg *config.Config, w io.Writer) error {
	client, err := bluez.Connect(ctx, cfg.Probe.Adapter)
	if err != nil {
		return err
	}
	defer client.Close()

	devices, err := client.Devices(ctx)
	if err != nil {
		return err
	}
	best, ok := bluez.Best(devices)
	if !ok {
		return errors.New("no paired devices; pair one with bluetoothctl first")
	}

	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SaveTarget(store.Target{ID: best.Address, Name: best.Name}); err != nil {
		return err
	}
	fmt.Fprintf(w, "selected %s (%s)\n", best.Address, best.Name)
	return nil
}

func runForget(cfg *config.Config, w io.Writer) error {
	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	t, ok, err := st.LoadTarget()
	if err != nil {
		return err
	}
	if err := st.ClearTarget(); err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(w, "forgot %s (%s)\n", t.ID, t.Name)
	} else {
		fmt.Fprintln(w, "no saved target")
	}
	return nil
}

func runPrintState(ctx context.Context, cfg *config.Config, logger *slog.Logger, w io.Writer) error {
	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	target, ok, err := resolveTarget(ctx, cfg, st, nil, logger)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no target: pass -target or run -select first")
	}

	prober, client, err := buildProber(ctx, cfg)
	if err != nil {
		return err
	}
	if client != nil {
		defer client.Close()
	}

	if err := preflight(ctx, prober); err != nil {
		return err
	}
	fmt.Fprint(w, tui.RenderResult(target.ID, prober.Probe(ctx, target.ID)))
	return nil
}
