package scan

import (
	"errors"
	"fmt"

	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// GPIOConfig assigns gpiochip line offsets to the scan frame. Encoders
// holds the A and B line of each encoder in order.
type GPIOConfig struct {
	Chip            string   `toml:"chip" json:"chip"`
	Encoders        [][2]int `toml:"encoders" json:"encoders,omitempty"`
	EncoderSwitches []int    `toml:"encoder_switches" json:"encoder_switches,omitempty"`
	SideSwitches    []int    `toml:"side_switches" json:"side_switches,omitempty"`
}

// Validate checks the pin lists against the board size.
func (c GPIOConfig) Validate(encoders, sides int) error {
	var errs []error
	if c.Chip == "" {
		errs = append(errs, fmt.Errorf("gpio: no chip: %w", surfaceerr.ErrBadParameter))
	}
	if len(c.Encoders) != encoders {
		errs = append(errs, fmt.Errorf("gpio: %d encoder pin pairs for %d encoders: %w", len(c.Encoders), encoders, surfaceerr.ErrBadParameter))
	}
	if len(c.EncoderSwitches) > encoders {
		errs = append(errs, fmt.Errorf("gpio: %d encoder switch pins for %d encoders: %w", len(c.EncoderSwitches), encoders, surfaceerr.ErrBadParameter))
	}
	if len(c.SideSwitches) > sides {
		errs = append(errs, fmt.Errorf("gpio: %d side switch pins for %d switches: %w", len(c.SideSwitches), sides, surfaceerr.ErrBadParameter))
	}
	seen := make(map[int]bool)
	for _, pin := range c.offsets() {
		if seen[pin] {
			errs = append(errs, fmt.Errorf("gpio: line %d used twice: %w", pin, surfaceerr.ErrDuplicate))
		}
		seen[pin] = true
	}
	return errors.Join(errs...)
}

// offsets lists every line: encoder pairs, then encoder switches, then
// side switches.
func (c GPIOConfig) offsets() []int {
	out := make([]int, 0, 2*len(c.Encoders)+len(c.EncoderSwitches)+len(c.SideSwitches))
	for _, p := range c.Encoders {
		out = append(out, p[0], p[1])
	}
	out = append(out, c.EncoderSwitches...)
	return append(out, c.SideSwitches...)
}

// fill decodes line values, ordered as offsets, into f.
func (c GPIOConfig) fill(values []int, f *Frame) {
	if cap(f.Phases) < len(c.Encoders) {
		f.Phases = make([]Phase, len(c.Encoders))
	}
	f.Phases = f.Phases[:len(c.Encoders)]
	for i := range c.Encoders {
		f.Phases[i] = Phase{A: values[2*i] != 0, B: values[2*i+1] != 0}
	}
	n := 2 * len(c.Encoders)

	f.EncoderSwitches = 0
	for i := range c.EncoderSwitches {
		if values[n+i] != 0 {
			f.EncoderSwitches |= 1 << uint(i)
		}
	}
	n += len(c.EncoderSwitches)

	f.SideSwitches = 0
	for i := range c.SideSwitches {
		if values[n+i] != 0 {
			f.SideSwitches |= 1 << uint(i)
		}
	}
}
