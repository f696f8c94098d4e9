// Package virtmap maps the raw value of a physical control onto protocol
// parameters. A control can carry several maps, each converting the same
// raw value into its own output range.
package virtmap

import (
	"fmt"

	"github.com/james-see/twister2midi/pkg/protocol"
	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// Relative CC ticks.
const (
	RelativeUp   uint8 = 0x41
	RelativeDown uint8 = 0x3F
)

const (
	maxCC   = 127
	maxCC14 = 16383
)

// Position is the sub-range of the raw domain a map covers on the
// indicator.
type Position struct {
	Start uint16 `json:"start" toml:"start"`
	Stop  uint16 `json:"stop" toml:"stop"`
}

// Contains reports whether v lies in the position.
func (p Position) Contains(v uint16) bool { return v >= p.Start && v <= p.Stop }

// Range is the output domain. Lower above Upper inverts the polarity.
type Range struct {
	Lower int32 `json:"lower" toml:"lower"`
	Upper int32 `json:"upper" toml:"upper"`
}

// Inverted reports whether the range descends.
func (r Range) Inverted() bool { return r.Lower > r.Upper }

// EmitFunc receives the protocol events produced by a map.
type EmitFunc func(protocol.Event) error

// Map is one virtual parameter mapping.
type Map struct {
	Position Position        `json:"position"`
	Range    Range           `json:"range"`
	Proto    protocol.Config `json:"proto"`

	last int32
}

// New returns a map with no emission history.
func New(pos Position, rng Range, proto protocol.Config) Map {
	return Map{Position: pos, Range: rng, Proto: proto, last: -1}
}

// Validate checks the map's static configuration.
func (m *Map) Validate() error {
	if m.Position.Start > m.Position.Stop {
		return fmt.Errorf("position %d..%d: %w", m.Position.Start, m.Position.Stop, surfaceerr.ErrBadParameter)
	}
	return m.Proto.Validate()
}

// Convert linearly rescales v from [inMin, inMax] to [outMin, outMax]. A
// descending output range yields a descending result. An empty input span
// maps everything to outMin.
func Convert(v, inMin, inMax, outMin, outMax int32) int32 {
	if inMax == inMin {
		return outMin
	}
	num := (int64(v) - int64(inMin)) * (int64(outMax) - int64(outMin))
	return int32(num/(int64(inMax)-int64(inMin)) + int64(outMin))
}

// Value converts a raw device value into the map's output range. The raw
// value is clamped to the map's position first.
func (m *Map) Value(raw uint16) int32 {
	v := raw
	if v < m.Position.Start {
		v = m.Position.Start
	}
	if v > m.Position.Stop {
		v = m.Position.Stop
	}
	return Convert(int32(v), int32(m.Position.Start), int32(m.Position.Stop), m.Range.Lower, m.Range.Upper)
}

// Inverse converts an output value back into the raw domain.
func (m *Map) Inverse(out int32) uint16 {
	lo, hi := m.Range.Lower, m.Range.Upper
	if lo > hi {
		lo, hi = hi, lo
	}
	if out < lo {
		out = lo
	}
	if out > hi {
		out = hi
	}
	return uint16(Convert(out, m.Range.Lower, m.Range.Upper, int32(m.Position.Start), int32(m.Position.Stop)))
}

// Last returns the last absolute value the map emitted, or -1.
func (m *Map) Last() int32 { return m.last }

// Reset forgets the emission history so the next value is always sent.
func (m *Map) Reset() { m.last = -1 }

// Emit converts a change of the raw value from prev to curr into protocol
// events. Absolute modes suppress values equal to the last one sent. A note
// map sends NoteOff instead of NoteOn with velocity 0 when its value drops
// to zero.
func (m *Map) Emit(prev, curr uint16, emit EmitFunc) error {
	if !m.Proto.Emits() {
		return nil
	}
	cfg := m.Proto.MIDI

	switch cfg.Mode {
	case protocol.ModeCC:
		v := clamp(m.Value(curr), 0, maxCC)
		if v == m.last {
			return nil
		}
		m.last = v
		return emit(protocol.Event{Type: protocol.ControlChange, Channel: cfg.Channel, Control: cfg.Number, Value: uint8(v)})

	case protocol.ModeCC14:
		v := clamp(m.Value(curr), 0, maxCC14)
		if v == m.last {
			return nil
		}
		m.last = v
		if err := emit(protocol.Event{Type: protocol.ControlChange, Channel: cfg.Channel, Control: cfg.Number, Value: uint8(v >> 7)}); err != nil {
			return err
		}
		return emit(protocol.Event{Type: protocol.ControlChange, Channel: cfg.Channel, Control: cfg.Number + 32, Value: uint8(v & 0x7F)})

	case protocol.ModeRelativeCC:
		if curr == prev {
			return nil
		}
		up := curr > prev
		if m.Range.Inverted() {
			up = !up
		}
		tick := RelativeDown
		if up {
			tick = RelativeUp
		}
		return emit(protocol.Event{Type: protocol.ControlChange, Channel: cfg.Channel, Control: cfg.Number, Value: tick})

	case protocol.ModeNote:
		v := clamp(m.Value(curr), 0, maxCC)
		if v == m.last {
			return nil
		}
		m.last = v
		if v == 0 {
			return emit(protocol.Event{Type: protocol.NoteOff, Channel: cfg.Channel, Control: cfg.Number})
		}
		return emit(protocol.Event{Type: protocol.NoteOn, Channel: cfg.Channel, Control: cfg.Number, Value: uint8(v)})
	}
	return nil
}

// Feedback applies an inbound message addressed to this map. It returns the
// raw position matching the message and records the value as sent so it is
// not echoed back.
func (m *Map) Feedback(evt protocol.Event) (uint16, bool) {
	if m.Proto.Kind != protocol.KindMIDI || evt.Channel != m.Proto.MIDI.Channel {
		return 0, false
	}
	cfg := m.Proto.MIDI
	var out int32
	switch {
	case evt.Type == protocol.ControlChange && cfg.Mode == protocol.ModeCC && evt.Control == cfg.Number:
		out = int32(evt.Value)
	case evt.Type == protocol.ControlChange && cfg.Mode == protocol.ModeCC14 && evt.Control == cfg.Number:
		out = int32(evt.Value) << 7
	case evt.Type == protocol.NoteOn && cfg.Mode == protocol.ModeNote && evt.Control == cfg.Number:
		out = int32(evt.Value)
	case evt.Type == protocol.NoteOff && cfg.Mode == protocol.ModeNote && evt.Control == cfg.Number:
		out = 0
	default:
		return 0, false
	}
	raw := m.Inverse(out)
	// re-derive from the raw value so integer rounding cannot cause an echo
	m.last = m.Value(raw)
	if cfg.Mode != protocol.ModeCC14 {
		m.last = clamp(m.last, 0, maxCC)
	}
	return raw, true
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
