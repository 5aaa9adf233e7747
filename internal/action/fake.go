package action

import (
	"context"
	"sync"
	"time"
)

// Fake records action calls. Safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	// AbsentErr and PresentErr, if set, are returned by the matching call.
	AbsentErr  error
	PresentErr error

	// Delay makes each call take this long, regardless of ctx.
	Delay time.Duration

	calls []Direction
}

// NewFake creates a Fake.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) ApplyAbsent(ctx context.Context) error {
	return f.record(DirectionAbsent)
}

func (f *Fake) ApplyPresent(ctx context.Context) error {
	return f.record(DirectionPresent)
}

func (f *Fake) record(dir Direction) error {
	f.mu.Lock()
	delay := f.Delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dir)
	if dir == DirectionAbsent {
		return f.AbsentErr
	}
	return f.PresentErr
}

// SetAbsentErr changes AbsentErr while the fake is in use.
func (f *Fake) SetAbsentErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AbsentErr = err
}

// Calls returns the directions applied, in order.
func (f *Fake) Calls() []Direction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Direction(nil), f.calls...)
}

// Count returns how many times dir was applied.
func (f *Fake) Count(dir Direction) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == dir {
			n++
		}
	}
	return n
}
