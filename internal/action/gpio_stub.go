//go:build !linux

package action

import "errors"

// OpenGPIO is not available on non-Linux platforms.
func OpenGPIO(chipName string, offset int, activeLow bool) (*GPIO, error) {
	return nil, errors.New("gpio actions are only supported on Linux")
}
