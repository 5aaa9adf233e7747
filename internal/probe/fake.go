// Package probe answers "is the target device present right now?".
// Each adapter bounds its own latency; none of them keep state between
// calls beyond what the underlying system caches.
package probe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sweeney/bluelock/internal/logic"
)

// Fake is a test double that returns scripted probe results.
// Safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	// Results contains scripted results. Each call to Probe consumes the
	// next one; when exhausted, the last result repeats.
	Results []logic.Result

	// Delay makes each Probe block for the given time or until ctx is done.
	Delay time.Duration

	// PreflightErr, if set, is returned by Preflight.
	PreflightErr error

	index   int
	calls   int
	targets []string
}

// NewFake creates a Fake with the given results.
func NewFake(results ...logic.Result) *Fake {
	return &Fake{Results: results}
}

// Probe returns the next scripted result.
func (f *Fake) Probe(ctx context.Context, targetID string) logic.Result {
	f.mu.Lock()
	delay := f.Delay
	f.calls++
	f.targets = append(f.targets, targetID)
	var r logic.Result
	if len(f.Results) == 0 {
		r = logic.Failed(errors.New("no results configured"))
	} else {
		r = f.Results[f.index]
		if f.index < len(f.Results)-1 {
			f.index++
		}
	}
	f.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	return r
}

// Preflight returns PreflightErr.
func (f *Fake) Preflight(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PreflightErr
}

// SetDelay changes Delay while the fake is in use.
func (f *Fake) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Delay = d
}

// Calls returns how many times Probe was called.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Targets returns the target ids Probe was called with.
func (f *Fake) Targets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.targets...)
}

// Reset rewinds the script.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.calls = 0
	f.targets = nil
}
