package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/bluelock/internal/bluez"
	"github.com/sweeney/bluelock/internal/logic"
	"github.com/sweeney/bluelock/internal/monitor"
	"github.com/sweeney/bluelock/internal/status"
	"github.com/sweeney/bluelock/internal/store"
)

type fakeController struct {
	mu        sync.Mutex
	started   []store.Target
	stops     int
	locks     int
	forgets   int
	startErr  error
	lockErr   error
	forgetErr error
}

func (f *fakeController) StartTarget(_ context.Context, t store.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, t)
	return nil
}

func (f *fakeController) StopMonitoring(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeController) ForgetTarget(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forgetErr != nil {
		return f.forgetErr
	}
	f.forgets++
	return nil
}

func (f *fakeController) LockNow(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return f.lockErr
	}
	f.locks++
	return nil
}

type fakeDevices struct {
	devices []bluez.Device
	err     error
}

func (f fakeDevices) Devices(context.Context) ([]bluez.Device, error) { return f.devices, f.err }

type fakeHistory struct {
	transitions []store.Transition
	lastLimit   int
}

func (f *fakeHistory) RecentTransitions(limit int) ([]store.Transition, error) {
	f.lastLimit = limit
	return f.transitions, nil
}

type testEnv struct {
	ts      *httptest.Server
	tracker *status.Tracker
	ctl     *fakeController
	history *fakeHistory
}

func newTestServer(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		PollMs:        3000,
		MissThreshold: 2,
		HitThreshold:  2,
		LockEnabled:   true,
		WakeEnabled:   true,
		HeartbeatMs:   900000,
		Probe:         "bluez",
		Actions:       "logind",
		Broker:        "tcp://192.168.1.200:1883",
		HTTPAddr:      ":8080",
	}
	env := &testEnv{
		tracker: status.NewTracker(start, cfg),
		ctl:     &fakeController{},
		history: &fakeHistory{},
	}
	all := append([]Option{WithController(env.ctl), WithHistory(env.history)}, opts...)
	srv := New(":0", env.tracker, all...)
	env.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func intPtr(v int) *int { return &v }

func runningSnapshot() monitor.Snapshot {
	return monitor.Snapshot{
		SessionID:       "0b7e4f0c-1111-2222-3333-444455556666",
		TargetID:        "AA:BB:CC:DD:EE:FF",
		Lifecycle:       monitor.LifecycleRunning,
		Phase:           logic.PhaseInRange,
		LastSignal:      intPtr(-60),
		ConsecutiveHits: 2,
		Counts:          logic.Counts{Probes: 2, Hits: 2},
	}
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var r Response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return r
}

func TestJSONEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.tracker.Tick(runningSnapshot())
	env.tracker.SetMQTTConnected(true)

	resp, err := http.Get(env.ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Phase != "IN_RANGE" {
		t.Errorf("Phase: got %q, want IN_RANGE", sj.Status.Phase)
	}
	if !sj.Status.Running {
		t.Error("expected Running=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Config.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("Config.Broker: got %q", sj.Status.Config.Broker)
	}
}

func TestAPIStatusMatchesIndexJSON(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Lifecycle != "NOT_STARTED" {
		t.Errorf("Lifecycle: got %q, want NOT_STARTED", sj.Status.Lifecycle)
	}
	if sj.Status.Phase != "UNKNOWN" {
		t.Errorf("Phase: got %q, want UNKNOWN", sj.Status.Phase)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	env := newTestServer(t)
	env.tracker.Tick(runningSnapshot())
	env.tracker.SetTargetName("WH-1000XM4")

	resp, err := http.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	for _, want := range []string{"IN_RANGE", "AA:BB:CC:DD:EE:FF", "WH-1000XM4", "-60 dBm"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStartRestartsAndNamesTarget(t *testing.T) {
	env := newTestServer(t)

	resp := postJSON(t, env.ts.URL+"/api/start", `{"target_id":" AA:BB:CC:DD:EE:FF ","name":"Buds"}`)
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if r := decodeResponse(t, resp); !r.OK {
		t.Errorf("expected ok, got %+v", r)
	}

	if len(env.ctl.started) != 1 {
		t.Fatalf("expected 1 start, got %d", len(env.ctl.started))
	}
	if got := env.ctl.started[0]; got.ID != "AA:BB:CC:DD:EE:FF" || got.Name != "Buds" {
		t.Errorf("started target: got %+v", got)
	}
	if env.tracker.Snapshot().TargetName != "Buds" {
		t.Errorf("TargetName: got %q, want Buds", env.tracker.Snapshot().TargetName)
	}
}

func TestStartValidation(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"missing target", `{"name":"Buds"}`},
		{"blank target", `{"target_id":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, env.ts.URL+"/api/start", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", resp.StatusCode)
			}
			if r := decodeResponse(t, resp); r.OK || r.Error == "" {
				t.Errorf("expected error response, got %+v", r)
			}
		})
	}
	if len(env.ctl.started) != 0 {
		t.Errorf("expected no starts, got %d", len(env.ctl.started))
	}
}

func TestStartConfigErrorIsBadRequest(t *testing.T) {
	env := newTestServer(t)
	env.ctl.startErr = &logic.ConfigError{Field: "poll_interval", Reason: "must be > 0"}

	resp := postJSON(t, env.ts.URL+"/api/start", `{"target_id":"AA:BB:CC:DD:EE:FF"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestStartPreflightErrorIsServerError(t *testing.T) {
	env := newTestServer(t)
	env.ctl.startErr = &monitor.PreflightError{Err: errors.New("bluetoothd not running")}

	resp := postJSON(t, env.ts.URL+"/api/start", `{"target_id":"AA:BB:CC:DD:EE:FF"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
	if r := decodeResponse(t, resp); !strings.Contains(r.Error, "bluetoothd not running") {
		t.Errorf("error: got %q", r.Error)
	}
}

func TestStopAndLock(t *testing.T) {
	env := newTestServer(t)

	resp := postJSON(t, env.ts.URL+"/api/stop", `{}`)
	if r := decodeResponse(t, resp); !r.OK {
		t.Errorf("stop: got %+v", r)
	}
	resp = postJSON(t, env.ts.URL+"/api/lock", `{}`)
	if r := decodeResponse(t, resp); !r.OK {
		t.Errorf("lock: got %+v", r)
	}
	if env.ctl.stops != 1 || env.ctl.locks != 1 {
		t.Errorf("stops=%d locks=%d, want 1/1", env.ctl.stops, env.ctl.locks)
	}
}

func TestLockFailureReported(t *testing.T) {
	env := newTestServer(t)
	env.ctl.lockErr = errors.New("logind unavailable")

	resp := postJSON(t, env.ts.URL+"/api/lock", `{}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
	if r := decodeResponse(t, resp); r.Error != "logind unavailable" {
		t.Errorf("error: got %q", r.Error)
	}
}

func deleteReq(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", url, err)
	}
	return resp
}

func TestForgetTarget(t *testing.T) {
	env := newTestServer(t)
	env.tracker.SetTargetName("Buds")

	resp := deleteReq(t, env.ts.URL+"/api/target")
	if r := decodeResponse(t, resp); !r.OK {
		t.Fatalf("forget: got %+v", r)
	}
	if env.ctl.forgets != 1 {
		t.Errorf("forgets: got %d, want 1", env.ctl.forgets)
	}
	if name := env.tracker.Snapshot().TargetName; name != "" {
		t.Errorf("target name after forget: got %q", name)
	}

	get, err := http.Get(env.ts.URL + "/api/target")
	if err != nil {
		t.Fatalf("GET /api/target: %v", err)
	}
	get.Body.Close()
	if get.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/target: got %d, want 405", get.StatusCode)
	}
}

func TestForgetTargetFailureReported(t *testing.T) {
	env := newTestServer(t)
	env.ctl.forgetErr = errors.New("database locked")

	resp := deleteReq(t, env.ts.URL+"/api/target")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
	if r := decodeResponse(t, resp); r.Error != "database locked" {
		t.Errorf("error: got %q", r.Error)
	}
}

func TestControlEndpointsRequirePOST(t *testing.T) {
	env := newTestServer(t)

	for _, path := range []string{"/api/start", "/api/stop", "/api/lock"} {
		resp, err := http.Get(env.ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("GET %s: got %d, want 405", path, resp.StatusCode)
		}
	}
}

func TestControlUnavailableWithoutController(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	ts := httptest.NewServer(New(":0", tr).Handler())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/stop", `{}`)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDevicesEndpoint(t *testing.T) {
	devices := bluez.Rank([]bluez.Device{
		{Address: "11:11:11:11:11:11", Name: "Pixel 8", Paired: true},
		{Address: "22:22:22:22:22:22", Name: "WH-1000XM4 Headphones", Paired: true, Connected: true},
	})
	env := newTestServer(t, WithDevices(fakeDevices{devices: devices}))

	resp, err := http.Get(env.ts.URL + "/api/devices")
	if err != nil {
		t.Fatalf("GET /api/devices: %v", err)
	}
	defer resp.Body.Close()

	var dr DevicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dr.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(dr.Devices))
	}
	if dr.Devices[0].Address != "22:22:22:22:22:22" {
		t.Errorf("first device: got %q, want headphones", dr.Devices[0].Address)
	}
}

func TestDevicesError(t *testing.T) {
	env := newTestServer(t, WithDevices(fakeDevices{err: errors.New("no adapter")}))

	resp, err := http.Get(env.ts.URL + "/api/devices")
	if err != nil {
		t.Fatalf("GET /api/devices: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status: got %d, want 502", resp.StatusCode)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.history.transitions = []store.Transition{
		{ID: 2, Event: logic.EventInRange, Action: logic.ActionWake},
		{ID: 1, Event: logic.EventOutOfRange, Action: logic.ActionLock},
	}

	resp, err := http.Get(env.ts.URL + "/api/history?limit=10")
	if err != nil {
		t.Fatalf("GET /api/history: %v", err)
	}
	defer resp.Body.Close()

	var hr HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hr.Transitions) != 2 || hr.Transitions[0].ID != 2 {
		t.Errorf("transitions: got %+v", hr.Transitions)
	}
	if env.history.lastLimit != 10 {
		t.Errorf("limit: got %d, want 10", env.history.lastLimit)
	}

	bad, err := http.Get(env.ts.URL + "/api/history?limit=-1")
	if err != nil {
		t.Fatalf("GET /api/history: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status: got %d, want 400", bad.StatusCode)
	}
}

func TestWebSocketPushesUpdates(t *testing.T) {
	env := newTestServer(t)

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() status.StatusInner {
		t.Helper()
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var sj status.StatusJSON
		if err := json.Unmarshal(data, &sj); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return sj.Status
	}

	if first := read(); first.Lifecycle != "NOT_STARTED" {
		t.Errorf("initial lifecycle: got %q", first.Lifecycle)
	}

	env.tracker.Tick(runningSnapshot())
	if next := read(); next.Phase != "IN_RANGE" {
		t.Errorf("pushed phase: got %q, want IN_RANGE", next.Phase)
	}
}
