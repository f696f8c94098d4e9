package protocol

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"

	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// EventType tags an Event.
type EventType uint8

const (
	ControlChange EventType = iota + 1
	NoteOn
	NoteOff
	SysEx
)

func (t EventType) String() string {
	switch t {
	case ControlChange:
		return "cc"
	case NoteOn:
		return "note-on"
	case NoteOff:
		return "note-off"
	case SysEx:
		return "sysex"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *EventType) UnmarshalText(b []byte) error {
	for c := ControlChange; c <= SysEx; c++ {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("event type %q: %w", b, surfaceerr.ErrBadParameter)
}

// Event is one protocol message travelling to or from the MIDI transport.
type Event struct {
	Type    EventType `json:"type"`
	Channel uint8     `json:"channel"`
	// Control is the controller number or the key.
	Control uint8 `json:"control"`
	// Value is the controller value or the velocity.
	Value uint8 `json:"value"`
	// Data is the SysEx payload without the F0/F7 framing.
	Data []byte `json:"data,omitempty"`
}

// Message encodes the event for gomidi.
func (e Event) Message() (midi.Message, error) {
	switch e.Type {
	case ControlChange:
		return midi.ControlChange(e.Channel, e.Control, e.Value), nil
	case NoteOn:
		return midi.NoteOn(e.Channel, e.Control, e.Value), nil
	case NoteOff:
		return midi.NoteOff(e.Channel, e.Control), nil
	case SysEx:
		return midi.SysEx(e.Data), nil
	default:
		return nil, fmt.Errorf("encode event type %d: %w", e.Type, surfaceerr.ErrBadParameter)
	}
}

// FromMessage decodes the messages the surface understands.
func FromMessage(msg midi.Message) (Event, bool) {
	var ch, a, b uint8
	var data []byte
	switch {
	case msg.GetControlChange(&ch, &a, &b):
		return Event{Type: ControlChange, Channel: ch, Control: a, Value: b}, true
	case msg.GetNoteOn(&ch, &a, &b):
		if b == 0 {
			return Event{Type: NoteOff, Channel: ch, Control: a}, true
		}
		return Event{Type: NoteOn, Channel: ch, Control: a, Value: b}, true
	case msg.GetNoteOff(&ch, &a, &b):
		return Event{Type: NoteOff, Channel: ch, Control: a}, true
	case msg.GetSysEx(&data):
		return Event{Type: SysEx, Data: append([]byte(nil), data...)}, true
	}
	return Event{}, false
}

func (e Event) String() string {
	switch e.Type {
	case SysEx:
		return fmt.Sprintf("sysex % X", e.Data)
	case ControlChange:
		return fmt.Sprintf("cc ch%d #%d=%d", e.Channel+1, e.Control, e.Value)
	default:
		return fmt.Sprintf("%s ch%d key=%d vel=%d", e.Type, e.Channel+1, e.Control, e.Value)
	}
}
