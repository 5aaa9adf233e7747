package probe

import (
	"context"
	"errors"

	"github.com/sweeney/bluelock/internal/logic"
)

// Strategy is one way of probing the target. Matches monitor.Prober.
type Strategy interface {
	Probe(ctx context.Context, targetID string) logic.Result
}

// Chain tries strategies in order. The first Present wins. If every
// strategy failed the result is a probe error, otherwise Absent.
type Chain []Strategy

// Probe runs the chain.
func (c Chain) Probe(ctx context.Context, targetID string) logic.Result {
	if len(c) == 0 {
		return logic.Failed(errors.New("empty probe chain"))
	}
	var errs []error
	for _, s := range c {
		r := s.Probe(ctx, targetID)
		switch r.Kind {
		case logic.ResultPresent:
			return r
		case logic.ResultProbeError:
			errs = append(errs, r.Err)
		}
	}
	if len(errs) == len(c) {
		return logic.Failed(errors.Join(errs...))
	}
	return logic.Absent()
}

// Preflight runs every strategy's preflight check.
func (c Chain) Preflight(ctx context.Context) error {
	var errs []error
	for _, s := range c {
		if pf, ok := s.(interface {
			Preflight(context.Context) error
		}); ok {
			if err := pf.Preflight(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
