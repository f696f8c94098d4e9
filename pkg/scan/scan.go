// Package scan is the boundary to the hardware that samples the controls
// once per main loop iteration.
package scan

import (
	"fmt"
	"sync"

	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// Phase is one sample of an encoder's quadrature signals.
type Phase struct {
	A, B bool
}

// Frame is everything sampled in one scan.
type Frame struct {
	// Phases holds one entry per physical encoder.
	Phases []Phase
	// EncoderSwitches has bit i set while encoder i is pushed.
	EncoderSwitches uint16
	// SideSwitches has bit i set while side switch i is held.
	SideSwitches uint8
}

// Source fills a frame. Implementations are called from the main loop only.
type Source interface {
	Scan(f *Frame) error
}

// Simulator is a Source driven by scripted gestures. Turns are expanded
// into the phase sequence a real detented encoder produces, one sample per
// scan. It is safe for concurrent use.
type Simulator struct {
	mu       sync.Mutex
	level    []Phase
	pending  [][]Phase
	encSw    uint16
	sideSw   uint8
	numSides int
}

// NewSimulator returns a simulator with encoders quadrature inputs and
// sides side switches, all at rest.
func NewSimulator(encoders, sides int) (*Simulator, error) {
	if encoders < 1 || encoders > 16 || sides < 0 || sides > 8 {
		return nil, fmt.Errorf("simulator %d encoders %d side switches: %w", encoders, sides, surfaceerr.ErrBadParameter)
	}
	s := &Simulator{
		level:    make([]Phase, encoders),
		pending:  make([][]Phase, encoders),
		numSides: sides,
	}
	for i := range s.level {
		s.level[i] = Phase{A: true, B: true}
	}
	return s, nil
}

// Turn queues detents clicks on encoder enc. Positive is clockwise.
func (s *Simulator) Turn(enc, detents int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enc < 0 || enc >= len(s.level) {
		return fmt.Errorf("turn encoder %d: %w", enc, surfaceerr.ErrBadParameter)
	}

	rest := s.level[enc]
	if n := len(s.pending[enc]); n > 0 {
		rest = s.pending[enc][n-1]
	}
	cw := detents > 0
	if detents < 0 {
		detents = -detents
	}
	for i := 0; i < detents; i++ {
		high := rest.A && rest.B
		var seq [2]Phase
		switch {
		case high && cw:
			seq = [2]Phase{{A: true}, {}}
		case high:
			seq = [2]Phase{{B: true}, {}}
		case cw:
			seq = [2]Phase{{B: true}, {A: true, B: true}}
		default:
			seq = [2]Phase{{A: true}, {A: true, B: true}}
		}
		s.pending[enc] = append(s.pending[enc], seq[:]...)
		rest = seq[1]
	}
	return nil
}

// PressEncoder holds or releases the push switch of encoder enc.
func (s *Simulator) PressEncoder(enc int, down bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enc < 0 || enc >= 16 {
		return fmt.Errorf("press encoder %d: %w", enc, surfaceerr.ErrBadParameter)
	}
	if down {
		s.encSw |= 1 << uint(enc)
	} else {
		s.encSw &^= 1 << uint(enc)
	}
	return nil
}

// PressSide holds or releases side switch i.
func (s *Simulator) PressSide(i int, down bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= s.numSides {
		return fmt.Errorf("press side switch %d: %w", i, surfaceerr.ErrBadParameter)
	}
	if down {
		s.sideSw |= 1 << uint(i)
	} else {
		s.sideSw &^= 1 << uint(i)
	}
	return nil
}

// Idle reports whether every queued turn has been scanned out.
func (s *Simulator) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pending {
		if len(p) > 0 {
			return false
		}
	}
	return true
}

// Scan implements Source.
func (s *Simulator) Scan(f *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cap(f.Phases) < len(s.level) {
		f.Phases = make([]Phase, len(s.level))
	}
	f.Phases = f.Phases[:len(s.level)]
	for i := range s.level {
		if q := s.pending[i]; len(q) > 0 {
			s.level[i] = q[0]
			s.pending[i] = q[1:]
		}
		f.Phases[i] = s.level[i]
	}
	f.EncoderSwitches = s.encSw
	f.SideSwitches = s.sideSw
	return nil
}
