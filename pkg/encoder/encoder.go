// Package encoder turns decoded rotation steps into a bounded absolute value
// with velocity and acceleration.
package encoder

import (
	"fmt"

	"github.com/james-see/twister2midi/pkg/quadrature"
	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// Value domain of an encoder.
const (
	Min int32 = 0
	Max int32 = 65535
	Mid int32 = Max / 2
)

// Config tunes the motion model. Use DefaultConfig and override fields.
type Config struct {
	// Accelerate enables the velocity model. When false every detent moves
	// the value by exactly FixedStep, which may not exceed MaxVelocity.
	Accelerate bool
	FixedStep  int32

	// AccelTable holds the velocity increments; the acceleration counter
	// indexes it and also multiplies the increment.
	AccelTable []int32
	// MaxVelocity bounds the magnitude of velocity and of every step.
	MaxVelocity int32
	// MinStep is the smallest magnitude of a non-idle step.
	MinStep int32

	// DecayShift is the right shift applied to velocity on every idle tick.
	DecayShift uint
	// SnapThreshold is the magnitude under which idle velocity becomes zero.
	SnapThreshold int32
	// AccelHoldTicks is the number of idle ticks per acceleration counter
	// decrement. Once the counter is zero and velocity has decayed, one more
	// such window ends the rotation and the next step starts from rest.
	AccelHoldTicks int

	// FineDivisor divides the step while fine adjust is active.
	FineDivisor int32
}

// DefaultConfig returns the stock motion tuning.
func DefaultConfig() Config {
	return Config{
		Accelerate:     true,
		FixedStep:      512, // one 7-bit step per detent
		AccelTable:     []int32{2, 10, 20, 40, 80},
		MaxVelocity:    600,
		MinStep:        128,
		DecayShift:     3,
		SnapThreshold:  4,
		AccelHoldTicks: 16,
		FineDivisor:    8,
	}
}

// Validate reports whether the configuration can drive a State.
func (c Config) Validate() error {
	if c.Accelerate && len(c.AccelTable) == 0 {
		return fmt.Errorf("accel table is empty: %w", surfaceerr.ErrBadParameter)
	}
	if c.MaxVelocity <= 0 || c.MaxVelocity > Max {
		return fmt.Errorf("max velocity %d out of range: %w", c.MaxVelocity, surfaceerr.ErrBadParameter)
	}
	if !c.Accelerate && (c.FixedStep <= 0 || c.FixedStep > c.MaxVelocity) {
		return fmt.Errorf("fixed step %d outside 1..%d: %w", c.FixedStep, c.MaxVelocity, surfaceerr.ErrBadParameter)
	}
	if c.MinStep < 0 || c.SnapThreshold < 0 || c.AccelHoldTicks < 0 {
		return fmt.Errorf("negative decay tuning: %w", surfaceerr.ErrBadParameter)
	}
	if c.MinStep > c.MaxVelocity {
		return fmt.Errorf("min step %d above max velocity %d: %w", c.MinStep, c.MaxVelocity, surfaceerr.ErrBadParameter)
	}
	if c.FineDivisor < 1 {
		return fmt.Errorf("fine divisor %d must be at least 1: %w", c.FineDivisor, surfaceerr.ErrBadParameter)
	}
	return nil
}

// State is the motion state of one logical encoder.
type State struct {
	cfg Config

	value    int32
	previous int32
	velocity int32
	accel    int
	lastDir  quadrature.Direction
	idle     int

	// Detent stops a step that crosses Mid exactly at Mid.
	Detent bool
	// Fine divides motion by Config.FineDivisor.
	Fine bool

	// Quad is the decoder feeding this encoder. Encoders in different banks
	// that share a physical control share the decoder.
	Quad *quadrature.Decoder
}

// New returns a State at value initial. A nil decoder gets a private one.
func New(cfg Config, initial uint16, quad *quadrature.Decoder) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if quad == nil {
		quad = new(quadrature.Decoder)
	}
	return &State{
		cfg:      cfg,
		value:    int32(initial),
		previous: int32(initial),
		Quad:     quad,
	}, nil
}

// Decode feeds the phase signals to the decoder and applies the result.
func (s *State) Decode(a, b bool) (uint16, bool) {
	return s.Update(s.Quad.Decode(a, b))
}

// Update applies one scan cycle of motion and returns the new value and
// whether it differs from the value before the call.
func (s *State) Update(dir quadrature.Direction) (uint16, bool) {
	s.previous = s.value

	if dir == quadrature.None {
		s.decay()
		return uint16(s.value), false
	}
	s.idle = 0

	var step int32
	if s.cfg.Accelerate {
		// lastDir stays set while the rotation keeps momentum, see decay
		if dir == s.lastDir {
			if s.accel < len(s.cfg.AccelTable)-1 {
				s.accel++
			}
			s.velocity += s.cfg.AccelTable[s.accel] * int32(s.accel) * int32(dir)
		} else {
			s.accel = 0
			s.velocity = s.cfg.AccelTable[0] * int32(dir)
		}
		s.velocity = clamp(s.velocity, -s.cfg.MaxVelocity, s.cfg.MaxVelocity)
		step = s.velocity
		if abs(step) < s.cfg.MinStep {
			step = s.cfg.MinStep * int32(dir)
		}
	} else {
		s.velocity = clamp(s.cfg.FixedStep*int32(dir), -s.cfg.MaxVelocity, s.cfg.MaxVelocity)
		step = s.velocity
	}
	s.lastDir = dir

	if s.Fine {
		step /= s.cfg.FineDivisor
		if step == 0 {
			step = int32(dir)
		}
	}

	next := clamp(s.value+step, Min, Max)
	if s.Detent && crosses(s.value, next, Mid) {
		next = Mid
	}
	s.value = next
	return uint16(s.value), s.value != s.previous
}

// decay runs on idle ticks. Velocity shrinks every tick, equally in both
// directions. The acceleration counter drops once per AccelHoldTicks, so
// the idle samples between detents of a fast turn do not reset it.
func (s *State) decay() {
	if s.velocity != 0 {
		mag := abs(s.velocity)
		d := mag >> s.cfg.DecayShift
		if d == 0 {
			d = 1
		}
		mag -= d
		if mag < s.cfg.SnapThreshold {
			mag = 0
		}
		s.velocity = mag * sign(s.velocity)
	}
	if s.lastDir == quadrature.None {
		return
	}
	s.idle++
	if s.idle < s.cfg.AccelHoldTicks {
		return
	}
	s.idle = 0
	switch {
	case s.accel > 0:
		s.accel--
	case s.velocity == 0:
		s.lastDir = quadrature.None
	}
}

// Set moves the encoder to v without motion, clearing velocity.
func (s *State) Set(v uint16) {
	s.previous = s.value
	s.value = int32(v)
	s.velocity = 0
	s.accel = 0
	s.idle = 0
	s.lastDir = quadrature.None
}

// Value returns the current value.
func (s *State) Value() uint16 { return uint16(s.value) }

// Previous returns the value before the last Update or Set.
func (s *State) Previous() uint16 { return uint16(s.previous) }

// Velocity returns the signed velocity.
func (s *State) Velocity() int32 { return s.velocity }

// Accel returns the acceleration counter.
func (s *State) Accel() int { return s.accel }

// Direction returns the direction of the current rotation, or None once the
// encoder has come to rest.
func (s *State) Direction() quadrature.Direction { return s.lastDir }

// Config returns the motion tuning of the encoder.
func (s *State) Config() Config { return s.cfg }

func crosses(from, to, mark int32) bool {
	return (from < mark && to > mark) || (from > mark && to < mark)
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sign(v int32) int32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
