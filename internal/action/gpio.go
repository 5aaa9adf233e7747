package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Line is a single GPIO output line.
type Line interface {
	SetValue(value int) error
	Close() error
}

// GPIO drives an output line (relay, indicator LED): inactive when the
// user is absent, active when present.
type GPIO struct {
	line Line
	// ActiveLow inverts the output, for relay boards that switch on low.
	ActiveLow bool
}

// NewGPIO wraps an already requested output line.
func NewGPIO(line Line) *GPIO {
	return &GPIO{line: line}
}

func (g *GPIO) ApplyAbsent(ctx context.Context) error {
	return g.set(false)
}

func (g *GPIO) ApplyPresent(ctx context.Context) error {
	return g.set(true)
}

func (g *GPIO) set(active bool) error {
	v := 0
	if active != g.ActiveLow {
		v = 1
	}
	if err := g.line.SetValue(v); err != nil {
		return fmt.Errorf("set gpio line to %d: %w", v, err)
	}
	return nil
}

// Close releases the line.
func (g *GPIO) Close() error {
	return g.line.Close()
}

// FakeLine is a test double that records written values.
type FakeLine struct {
	mu sync.Mutex

	// SetErr, if set, is returned by SetValue.
	SetErr error

	values []int
	closed bool
}

func (f *FakeLine) SetValue(value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("line closed")
	}
	if f.SetErr != nil {
		return f.SetErr
	}
	f.values = append(f.values, value)
	return nil
}

func (f *FakeLine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Values returns the values written so far.
func (f *FakeLine) Values() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.values...)
}

// Closed reports whether Close was called.
func (f *FakeLine) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
