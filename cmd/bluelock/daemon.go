package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/bluelock/internal/action"
	"github.com/sweeney/bluelock/internal/config"
	"github.com/sweeney/bluelock/internal/monitor"
	"github.com/sweeney/bluelock/internal/mqtt"
	"github.com/sweeney/bluelock/internal/status"
	"github.com/sweeney/bluelock/internal/store"
	"github.com/sweeney/bluelock/internal/tui"
	"github.com/sweeney/bluelock/internal/web"
)

// statusRefresh is how often MQTT connectivity is copied into the tracker.
const statusRefresh = 5 * time.Second

type daemonOptions struct {
	maxChecks int
	tui       bool
	sig       <-chan os.Signal
}

// daemon owns the long-lived pieces and implements web.Controller.
type daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	sup     *monitor.Supervisor
	store   *store.Store
	tracker *status.Tracker
	history *store.HistorySink
	manual  action.Applier

	// pub, conn and sink are nil when MQTT is disabled.
	pub  mqtt.Publisher
	conn mqtt.ConnectionStatus
	sink *mqtt.Sink
}

// StartTarget restarts monitoring on t and saves it as the selection.
func (d *daemon) StartTarget(ctx context.Context, t store.Target) error {
	t.ID = normalizeTarget(t.ID)
	h, err := d.sup.Start(ctx, d.cfg.Monitor(t.ID))
	if err != nil {
		return err
	}
	d.tracker.SetTargetName(t.Name)
	if err := d.store.SaveTarget(t); err != nil {
		d.logger.Warn("failed to save target", "target", t.ID, "error", err)
	}
	d.logger.Info("session started", "session", h.ID(), "target", t.ID, "name", t.Name)
	return nil
}

// StopMonitoring stops the running session.
func (d *daemon) StopMonitoring(ctx context.Context) error {
	return d.sup.Stop(ctx)
}

// ForgetTarget stops monitoring and clears the saved selection, so the next
// start auto-selects again unless a target is configured.
func (d *daemon) ForgetTarget(ctx context.Context) error {
	if err := d.sup.Stop(ctx); err != nil {
		return err
	}
	if err := d.store.ClearTarget(); err != nil {
		return err
	}
	d.tracker.SetTargetName("")
	d.logger.Info("target selection cleared")
	return nil
}

// LockNow applies the absent action immediately, outside the monitor.
func (d *daemon) LockNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, monitor.DefaultActionTimeout)
	defer cancel()
	return d.manual.ApplyAbsent(ctx)
}

func (d *daemon) refresh() {
	if d.conn != nil {
		d.tracker.SetMQTTConnected(d.conn.IsConnected())
	}
}

// statusPayload renders the tracker state for a system event.
func (d *daemon) statusPayload(event string, _ time.Time) ([]byte, error) {
	d.refresh()
	return status.FormatStatusEvent(d.tracker.Snapshot(), event, ""), nil
}

func (d *daemon) publishSystem(event, reason string) {
	if d.pub == nil {
		return
	}
	d.refresh()
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.pub.PublishSystem(ev); err != nil {
		d.logger.Warn("failed to publish system event", "event", event, "error", err)
		return
	}
	d.logger.Info("published system event", "event", event, "reason", reason)
}

// runLoop waits for a reason to shut down, refreshing status on each tick.
// It returns the shutdown reason.
func (d *daemon) runLoop(ctx context.Context, tick <-chan time.Time, sig <-chan os.Signal, sessionDone, quit <-chan struct{}) string {
	for {
		select {
		case s := <-sig:
			d.logger.Info("received signal, shutting down", "signal", s)
			return signalName(s)
		case <-ctx.Done():
			return "CONTEXT"
		case <-sessionDone:
			d.logger.Info("check limit reached, shutting down")
			return "COMPLETE"
		case <-quit:
			return "QUIT"
		case <-tick:
			d.refresh()
		}
	}
}

// shutdown stops the session, flushes queued transitions to the history
// and the broker, and publishes SHUTDOWN.
func (d *daemon) shutdown(reason string) {
	grace := d.sup.StopGrace
	if grace <= 0 {
		grace = monitor.DefaultStopGrace
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := d.sup.Stop(ctx); err != nil {
		d.logger.Warn("session did not stop in time", "error", err)
	}
	if d.history != nil {
		d.history.Close()
	}
	if d.sink != nil {
		d.sink.Close()
	}
	d.publishSystem(mqtt.EventShutdown, reason)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts daemonOptions) error {
	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	prober, client, err := buildProber(ctx, cfg)
	if err != nil {
		return err
	}
	if client != nil {
		defer client.Close()
	}

	actions, err := buildActions(cfg, client, logger)
	if err != nil {
		return err
	}
	defer actions.Close()

	d := &daemon{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		tracker: status.NewTracker(time.Now(), statusConfig(cfg)),
		manual:  actions.Appliers,
	}

	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		d.pub = pub
		d.conn = pub
		d.sink = mqtt.NewSink(pub, d.statusPayload, logger)
		defer d.sink.Close()
	}

	d.history = store.NewHistorySink(st, logger)
	defer d.history.Close()

	sinks := []monitor.Sink{d.tracker, d.history}
	if d.sink != nil {
		sinks = append(sinks, d.sink)
	}
	monOpts := []monitor.Option{
		monitor.WithLogger(logger),
		monitor.WithSink(monitor.Sinks(sinks...)),
		monitor.WithHeartbeat(cfg.MQTT.Heartbeat),
	}
	if opts.maxChecks > 0 {
		monOpts = append(monOpts, monitor.WithMaxTicks(opts.maxChecks))
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	d.sup = newSessionSupervisor(runCtx, prober, actions, monOpts...)

	d.publishSystem(mqtt.EventStartup, "")

	var lister deviceLister
	if client != nil {
		lister = client
	}
	target, ok, err := resolveTarget(ctx, cfg, st, lister, logger)
	if err != nil {
		return err
	}
	oneShot := opts.maxChecks > 0
	switch {
	case ok:
		if err := d.StartTarget(ctx, target); err != nil {
			if oneShot || cfg.HTTP.Listen == "" {
				return fmt.Errorf("start monitoring %s: %w", target.ID, err)
			}
			logger.Error("monitoring not started; fix and restart it via the API", "target", target.ID, "error", err)
		}
	case oneShot:
		return errors.New("no target: pass -target or run -select first")
	default:
		logger.Warn("no target selected; use -select, -target or POST /api/start")
	}

	var sessionDone <-chan struct{}
	if h := d.sup.Current(); oneShot && h != nil {
		sessionDone = h.Done()
	}

	var srv *web.Server
	if cfg.HTTP.Listen != "" {
		webOpts := []web.Option{
			web.WithController(d),
			web.WithHistory(st),
			web.WithLogger(logger),
		}
		if client != nil {
			webOpts = append(webOpts, web.WithDevices(client))
		}
		srv = web.New(cfg.HTTP.Listen, d.tracker, webOpts...)
	}

	g, gctx := errgroup.WithContext(runCtx)

	var quit chan struct{}
	if opts.tui {
		quit = make(chan struct{})
		g.Go(func() error {
			defer close(quit)
			return tui.Run(gctx, d.tracker)
		})
	}

	if srv != nil {
		g.Go(func() error {
			logger.Info("http status server listening", "addr", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(statusRefresh)
		defer ticker.Stop()

		reason := d.runLoop(gctx, ticker.C, opts.sig, sessionDone, quit)
		d.shutdown(reason)

		if srv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}
		cancelRun()
		return nil
	})

	return g.Wait()
}
