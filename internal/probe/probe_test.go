package probe

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/sweeney/bluelock/internal/logic"
)

type fakeDevice struct {
	running    error
	powered    bool
	powerErr   error
	connected  bool
	connErr    error
	rssi       int
	haveRSSI   bool
	rssiErr    error
	lastTarget string
}

func (f *fakeDevice) CheckRunning(ctx context.Context) error { return f.running }

func (f *fakeDevice) AdapterPowered(ctx context.Context) (bool, error) {
	return f.powered, f.powerErr
}

func (f *fakeDevice) Connected(ctx context.Context, addr string) (bool, error) {
	f.lastTarget = addr
	return f.connected, f.connErr
}

func (f *fakeDevice) RSSI(ctx context.Context, addr string) (int, bool, error) {
	return f.rssi, f.haveRSSI, f.rssiErr
}

func TestFakeRepeatsLast(t *testing.T) {
	f := NewFake(logic.Present(-50), logic.Absent())
	ctx := context.Background()

	want := []logic.ResultKind{logic.ResultPresent, logic.ResultAbsent, logic.ResultAbsent}
	for i, w := range want {
		if got := f.Probe(ctx, "AA").Kind; got != w {
			t.Errorf("call %d: got %s, want %s", i, got, w)
		}
	}
	if f.Calls() != 3 {
		t.Errorf("calls: got %d, want 3", f.Calls())
	}
}

func TestFakeNoResults(t *testing.T) {
	f := NewFake()
	if got := f.Probe(context.Background(), "AA").Kind; got != logic.ResultProbeError {
		t.Errorf("got %s, want PROBE_ERROR", got)
	}
}

func TestFakeDelayHonoursCancel(t *testing.T) {
	f := NewFake(logic.Absent())
	f.Delay = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	f.Probe(ctx, "AA")
	if time.Since(start) > time.Second {
		t.Error("delayed probe ignored cancellation")
	}
}

func TestBlueZProbe(t *testing.T) {
	unknown := dbus.Error{Name: "org.freedesktop.DBus.Error.UnknownObject"}
	noReply := dbus.Error{Name: "org.freedesktop.DBus.Error.NoReply"}

	tests := []struct {
		name       string
		dev        fakeDevice
		assumed    int
		wantKind   logic.ResultKind
		wantSignal *int
	}{
		{"connected with rssi", fakeDevice{connected: true, rssi: -55, haveRSSI: true}, 0, logic.ResultPresent, intp(-55)},
		{"connected no rssi", fakeDevice{connected: true}, 0, logic.ResultPresent, nil},
		{"connected assumed rssi", fakeDevice{connected: true}, -65, logic.ResultPresent, intp(-65)},
		{"connected weak rssi", fakeDevice{connected: true, rssi: -85, haveRSSI: true}, 0, logic.ResultPresent, intp(-85)},
		{"connected just below threshold", fakeDevice{connected: true, rssi: -75, haveRSSI: true}, 0, logic.ResultPresent, intp(-75)},
		{"advertising weak", fakeDevice{rssi: -85, haveRSSI: true}, 0, logic.ResultAbsent, nil},
		{"advertising nearby", fakeDevice{rssi: -60, haveRSSI: true}, 0, logic.ResultPresent, intp(-60)},
		{"disconnected silent", fakeDevice{}, 0, logic.ResultAbsent, nil},
		{"unknown device", fakeDevice{connErr: unknown}, 0, logic.ResultAbsent, nil},
		{"bus failure", fakeDevice{connErr: noReply}, 0, logic.ResultProbeError, nil},
		{"rssi failure while connected", fakeDevice{connected: true, rssiErr: noReply}, 0, logic.ResultPresent, nil},
		{"rssi failure while disconnected", fakeDevice{rssiErr: noReply}, 0, logic.ResultProbeError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := tt.dev
			p := NewBlueZ(&dev)
			p.AssumedRSSI = tt.assumed

			r := p.Probe(context.Background(), "AA:BB:CC:DD:EE:FF")
			if r.Kind != tt.wantKind {
				t.Fatalf("kind: got %s, want %s", r.Kind, tt.wantKind)
			}
			switch {
			case tt.wantSignal == nil && r.Signal != nil:
				t.Errorf("signal: got %d, want none", *r.Signal)
			case tt.wantSignal != nil && (r.Signal == nil || *r.Signal != *tt.wantSignal):
				t.Errorf("signal: got %v, want %d", r.Signal, *tt.wantSignal)
			}
			if dev.lastTarget != "AA:BB:CC:DD:EE:FF" {
				t.Errorf("target: got %q", dev.lastTarget)
			}
		})
	}
}

func TestBlueZMinRSSIDisabled(t *testing.T) {
	dev := fakeDevice{rssi: -90, haveRSSI: true}
	p := NewBlueZ(&dev)
	p.MinRSSI = 0

	if r := p.Probe(context.Background(), "AA"); r.Kind != logic.ResultPresent {
		t.Errorf("got %s, want PRESENT", r.Kind)
	}
}

func TestBlueZPreflight(t *testing.T) {
	ctx := context.Background()

	if err := NewBlueZ(&fakeDevice{powered: true}).Preflight(ctx); err != nil {
		t.Errorf("healthy: unexpected error %v", err)
	}
	if err := NewBlueZ(&fakeDevice{}).Preflight(ctx); err == nil {
		t.Error("powered off: expected error")
	}
	notRunning := errors.New("org.bluez missing")
	if err := NewBlueZ(&fakeDevice{running: notRunning}).Preflight(ctx); !errors.Is(err, notRunning) {
		t.Errorf("not running: got %v", err)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name  string
		chain Chain
		want  logic.ResultKind
	}{
		{"first present wins", Chain{NewFake(logic.Present(-40)), NewFake(logic.Failed(boom))}, logic.ResultPresent},
		{"falls through to present", Chain{NewFake(logic.Failed(boom)), NewFake(logic.Absent()), NewFake(logic.PresentNoSignal())}, logic.ResultPresent},
		{"absent beats errors", Chain{NewFake(logic.Failed(boom)), NewFake(logic.Absent())}, logic.ResultAbsent},
		{"all failed", Chain{NewFake(logic.Failed(boom)), NewFake(logic.Failed(boom))}, logic.ResultProbeError},
		{"empty", Chain{}, logic.ResultProbeError},
	}
	for _, tt := range tests {
		if got := tt.chain.Probe(ctx, "AA").Kind; got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestChainStopsAtFirstPresent(t *testing.T) {
	second := NewFake(logic.Absent())
	c := Chain{NewFake(logic.Present(-40)), second}
	c.Probe(context.Background(), "AA")
	if second.Calls() != 0 {
		t.Errorf("second strategy called %d times, want 0", second.Calls())
	}
}

func TestChainPreflight(t *testing.T) {
	bad := NewFake()
	bad.PreflightErr = errors.New("no adapter")
	c := Chain{NewFake(), bad}
	if err := c.Preflight(context.Background()); !errors.Is(err, bad.PreflightErr) {
		t.Errorf("got %v, want wrapped preflight error", err)
	}
}

func TestCommandProbe(t *testing.T) {
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	ctx := context.Background()

	tests := []struct {
		name       string
		command    string
		wantKind   logic.ResultKind
		wantSignal *int
	}{
		{"present with signal", `echo -63`, logic.ResultPresent, intp(-63)},
		{"present no signal", `true`, logic.ResultPresent, nil},
		{"present text output", `echo connected`, logic.ResultPresent, nil},
		{"absent", `exit 1`, logic.ResultAbsent, nil},
		{"error exit", `echo oops >&2; exit 3`, logic.ResultProbeError, nil},
		{"target passed as arg", `test "$1" = "AA:BB"`, logic.ResultPresent, nil},
	}
	for _, tt := range tests {
		r := NewCommand(tt.command, 5*time.Second).Probe(ctx, "AA:BB")
		if r.Kind != tt.wantKind {
			t.Errorf("%s: kind got %s, want %s (%v)", tt.name, r.Kind, tt.wantKind, r.Err)
			continue
		}
		if tt.wantSignal != nil && (r.Signal == nil || *r.Signal != *tt.wantSignal) {
			t.Errorf("%s: signal got %v, want %d", tt.name, r.Signal, *tt.wantSignal)
		}
	}
}

func TestCommandProbeTimeout(t *testing.T) {
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	start := time.Now()
	r := NewCommand("sleep 10", 100*time.Millisecond).Probe(context.Background(), "AA")
	if r.Kind != logic.ResultProbeError {
		t.Errorf("kind: got %s, want PROBE_ERROR", r.Kind)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout not enforced")
	}
}

func TestCommandPreflightEmpty(t *testing.T) {
	if err := NewCommand("  ", 0).Preflight(context.Background()); err == nil {
		t.Error("expected error for empty command")
	}
}

func intp(v int) *int { return &v }
