//go:build linux

package scan

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIO samples encoder and switch lines of a gpiochip on every scan.
// Encoder phases are read as levels with pull-ups; switches are active low
// so a closed contact reads as pressed.
type GPIO struct {
	cfg    GPIOConfig
	phases *gpiocdev.Lines
	sw     *gpiocdev.Lines
	values []int
}

// OpenGPIO requests every configured line as an input.
func OpenGPIO(cfg GPIOConfig) (*GPIO, error) {
	if err := cfg.Validate(len(cfg.Encoders), len(cfg.SideSwitches)); err != nil {
		return nil, err
	}
	offsets := cfg.offsets()
	nPhase := 2 * len(cfg.Encoders)

	g := &GPIO{cfg: cfg, values: make([]int, len(offsets))}
	var err error
	g.phases, err = gpiocdev.RequestLines(cfg.Chip, offsets[:nPhase],
		gpiocdev.AsInput,
		gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("failed to request encoder lines on %s: %w", cfg.Chip, err)
	}
	if nPhase < len(offsets) {
		g.sw, err = gpiocdev.RequestLines(cfg.Chip, offsets[nPhase:],
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.AsActiveLow)
		if err != nil {
			g.phases.Close()
			return nil, fmt.Errorf("failed to request switch lines on %s: %w", cfg.Chip, err)
		}
	}
	return g, nil
}

// Scan implements Source.
func (g *GPIO) Scan(f *Frame) error {
	nPhase := 2 * len(g.cfg.Encoders)
	if err := g.phases.Values(g.values[:nPhase]); err != nil {
		return fmt.Errorf("read encoder lines: %w", err)
	}
	if g.sw != nil {
		if err := g.sw.Values(g.values[nPhase:]); err != nil {
			return fmt.Errorf("read switch lines: %w", err)
		}
	}
	g.cfg.fill(g.values, f)
	return nil
}

// Close releases the lines.
func (g *GPIO) Close() error {
	err := g.phases.Close()
	if g.sw != nil {
		if serr := g.sw.Close(); err == nil {
			err = serr
		}
	}
	return err
}
