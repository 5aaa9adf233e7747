//go:build linux

package action

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// chipLine is an output line on a Linux GPIO character device.
type chipLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// OpenGPIO requests offset on chip (e.g. "gpiochip0") as an output,
// initially active.
func OpenGPIO(chipName string, offset int, activeLow bool) (*GPIO, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	initial := 1
	if activeLow {
		initial = 0
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(initial))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}

	g := NewGPIO(&chipLine{chip: chip, line: line})
	g.ActiveLow = activeLow
	return g, nil
}

func (c *chipLine) SetValue(value int) error {
	return c.line.SetValue(value)
}

// Close reconfigures the line to input with pull-down (the Pi boot default)
// before releasing it, so attached hardware sees a known state.
func (c *chipLine) Close() error {
	var errs []error

	if c.line != nil {
		if err := c.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
		}
		if err := c.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
