package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/bluelock/internal/bluez"
	"github.com/sweeney/bluelock/internal/logic"
)

// DeviceReader is the subset of the BlueZ client the probe needs.
type DeviceReader interface {
	CheckRunning(ctx context.Context) error
	AdapterPowered(ctx context.Context) (bool, error)
	Connected(ctx context.Context, addr string) (bool, error)
	RSSI(ctx context.Context, addr string) (int, bool, error)
}

// Defaults for the BlueZ probe.
const (
	DefaultTimeout = 2 * time.Second
	DefaultMinRSSI = -70
)

// BlueZ probes a device through the BlueZ D-Bus API. A connected device is
// present whatever its signal; a disconnected one is present only if BlueZ
// has a fresh RSSI for it at or above MinRSSI.
type BlueZ struct {
	dev DeviceReader

	// Timeout bounds one probe. Zero means DefaultTimeout.
	Timeout time.Duration
	// MinRSSI turns weaker readings from a disconnected device into Absent.
	// Zero disables it.
	MinRSSI int
	// AssumedRSSI is reported for a connected device with no RSSI reading.
	// Zero reports no signal.
	AssumedRSSI int
}

// NewBlueZ creates a BlueZ probe with the default timeout and threshold.
func NewBlueZ(dev DeviceReader) *BlueZ {
	return &BlueZ{dev: dev, Timeout: DefaultTimeout, MinRSSI: DefaultMinRSSI}
}

// Preflight checks that BlueZ is running and the adapter is powered.
func (b *BlueZ) Preflight(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout())
	defer cancel()

	if err := b.dev.CheckRunning(ctx); err != nil {
		return err
	}
	powered, err := b.dev.AdapterPowered(ctx)
	if err != nil {
		return fmt.Errorf("read adapter power: %w", err)
	}
	if !powered {
		return errors.New("bluetooth adapter is powered off")
	}
	return nil
}

// Probe checks Connected, then RSSI.
func (b *BlueZ) Probe(ctx context.Context, targetID string) logic.Result {
	ctx, cancel := context.WithTimeout(ctx, b.timeout())
	defer cancel()

	connected, err := b.dev.Connected(ctx, targetID)
	if err != nil {
		if bluez.IsUnknownObject(err) {
			return logic.Absent()
		}
		return logic.Failed(fmt.Errorf("read Connected: %w", err))
	}

	rssi, haveRSSI, err := b.dev.RSSI(ctx, targetID)
	if err != nil {
		if !connected {
			if bluez.IsUnknownObject(err) {
				return logic.Absent()
			}
			return logic.Failed(fmt.Errorf("read RSSI: %w", err))
		}
		// Connected is authoritative; the signal is a bonus.
		haveRSSI = false
	}

	if !connected && haveRSSI && b.MinRSSI != 0 && rssi < b.MinRSSI {
		return logic.Absent()
	}
	switch {
	case haveRSSI:
		return logic.Present(rssi)
	case connected && b.AssumedRSSI != 0:
		return logic.Present(b.AssumedRSSI)
	case connected:
		return logic.PresentNoSignal()
	default:
		return logic.Absent()
	}
}

func (b *BlueZ) timeout() time.Duration {
	if b.Timeout <= 0 {
		return DefaultTimeout
	}
	return b.Timeout
}
