//go:build !linux

package scan

import (
	"fmt"
	"runtime"

	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// GPIO is only available on Linux.
type GPIO struct{}

// OpenGPIO reports that gpiochips are not supported on this platform.
func OpenGPIO(cfg GPIOConfig) (*GPIO, error) {
	return nil, fmt.Errorf("gpio on %s: %w", runtime.GOOS, surfaceerr.ErrUnsupported)
}

// Scan implements Source.
func (*GPIO) Scan(*Frame) error { return surfaceerr.ErrUnsupported }

// Close is a no-op.
func (*GPIO) Close() error { return nil }
