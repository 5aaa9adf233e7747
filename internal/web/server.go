// Package web provides the HTTP status page and control API for bluelock.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sweeney/bluelock/internal/bluez"
	"github.com/sweeney/bluelock/internal/status"
	"github.com/sweeney/bluelock/internal/store"
)

// Controller drives the monitoring session on behalf of API requests.
type Controller interface {
	// StartTarget (re)starts monitoring of t and remembers it.
	StartTarget(ctx context.Context, t store.Target) error
	// StopMonitoring stops the running session, if any.
	StopMonitoring(ctx context.Context) error
	// LockNow applies the absent action immediately.
	LockNow(ctx context.Context) error
	// ForgetTarget stops monitoring and clears the saved selection.
	ForgetTarget(ctx context.Context) error
}

// DeviceLister lists known Bluetooth devices, best candidates first.
type DeviceLister interface {
	Devices(ctx context.Context) ([]bluez.Device, error)
}

// HistoryReader returns recorded transitions, newest first.
type HistoryReader interface {
	RecentTransitions(limit int) ([]store.Transition, error)
}

// Server serves the status page and API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctl        Controller
	devices    DeviceLister
	history    HistoryReader
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithController enables the start, stop and lock endpoints.
func WithController(c Controller) Option { return func(s *Server) { s.ctl = c } }

// WithDevices enables /api/devices.
func WithDevices(d DeviceLister) Option { return func(s *Server) { s.devices = d } }

// WithHistory enables /api/history.
func WithHistory(h HistoryReader) Option { return func(s *Server) { s.history = h } }

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts ...Option) *Server {
	s := &Server{tracker: tracker, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("GET /api/status", s.handleJSON)
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("POST /api/lock", s.handleLock)
	mux.HandleFunc("DELETE /api/target", s.handleForget)
	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's HTTP handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.logger.Warn("render index", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
