// Package action performs the side effects of presence transitions:
// locking the session when the user leaves and waking it when they return.
package action

import (
	"context"
	"errors"
	"fmt"
)

// Applier is the action contract the monitor calls. Both methods must be
// idempotent: repeating one is harmless. The monitor calls each at most
// once per transition.
type Applier interface {
	ApplyAbsent(ctx context.Context) error
	ApplyPresent(ctx context.Context) error
}

// Direction is the last action applied.
type Direction string

const (
	DirectionNone    Direction = ""
	DirectionAbsent  Direction = "absent"
	DirectionPresent Direction = "present"
)

// Multi fans out to several appliers in order. Every applier runs even if
// an earlier one fails; the errors are joined.
type Multi []Applier

func (m Multi) ApplyAbsent(ctx context.Context) error {
	var errs []error
	for i, a := range m {
		if err := a.ApplyAbsent(ctx); err != nil {
			errs = append(errs, fmt.Errorf("action %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) ApplyPresent(ctx context.Context) error {
	var errs []error
	for i, a := range m {
		if err := a.ApplyPresent(ctx); err != nil {
			errs = append(errs, fmt.Errorf("action %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
