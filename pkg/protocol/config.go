// Package protocol describes the output protocols a mapping can drive and
// the events exchanged with the MIDI transport.
package protocol

import (
	"fmt"
	"strings"

	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// Kind selects the protocol family of a mapping.
type Kind uint8

const (
	KindNone Kind = iota
	KindMIDI
	KindOSC
)

func (k Kind) String() string {
	switch k {
	case KindMIDI:
		return "midi"
	case KindOSC:
		return "osc"
	default:
		return "none"
	}
}

// Mode is the MIDI message style a mapping emits.
type Mode uint8

const (
	ModeCC Mode = iota
	ModeRelativeCC
	ModeNote
	ModeCC14
	ModeDisabled
)

var modeNames = map[Mode]string{
	ModeCC:         "cc",
	ModeRelativeCC: "relative-cc",
	ModeNote:       "note",
	ModeCC14:       "cc14",
	ModeDisabled:   "disabled",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode parses the names produced by Mode.String.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown midi mode %q: %w", s, surfaceerr.ErrBadParameter)
}

// MIDIConfig addresses one controller or note.
type MIDIConfig struct {
	Channel uint8 `json:"channel" toml:"channel"`
	Mode    Mode  `json:"mode" toml:"mode"`
	// Number is the controller number, or the key in note mode.
	Number uint8 `json:"number" toml:"number"`
}

// Config is the protocol half of a mapping.
type Config struct {
	Kind Kind       `json:"kind" toml:"kind"`
	MIDI MIDIConfig `json:"midi" toml:"midi"`
}

// CC returns a MIDI control change configuration.
func CC(channel, number uint8) Config {
	return Config{Kind: KindMIDI, MIDI: MIDIConfig{Channel: channel, Mode: ModeCC, Number: number}}
}

// Validate checks the configuration against MIDI limits.
func (c Config) Validate() error {
	switch c.Kind {
	case KindNone, KindOSC:
		return nil
	case KindMIDI:
	default:
		return fmt.Errorf("protocol kind %d: %w", c.Kind, surfaceerr.ErrBadParameter)
	}
	m := c.MIDI
	if m.Channel > 15 {
		return fmt.Errorf("midi channel %d: %w", m.Channel, surfaceerr.ErrBadParameter)
	}
	if m.Number > 127 {
		return fmt.Errorf("midi number %d: %w", m.Number, surfaceerr.ErrBadParameter)
	}
	if _, ok := modeNames[m.Mode]; !ok {
		return fmt.Errorf("%s: %w", m.Mode, surfaceerr.ErrBadParameter)
	}
	if m.Mode == ModeCC14 && m.Number >= 32 {
		return fmt.Errorf("14-bit controller %d must be below 32: %w", m.Number, surfaceerr.ErrBadParameter)
	}
	return nil
}

// Emits reports whether the configuration produces any output.
func (c Config) Emits() bool {
	return c.Kind == KindMIDI && c.MIDI.Mode != ModeDisabled
}

func (c Config) String() string {
	if c.Kind != KindMIDI {
		return c.Kind.String()
	}
	return fmt.Sprintf("midi %s ch%d #%d", c.MIDI.Mode, c.MIDI.Channel+1, c.MIDI.Number)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "none", "":
		*k = KindNone
	case "midi":
		*k = KindMIDI
	case "osc":
		*k = KindOSC
	default:
		return fmt.Errorf("unknown protocol kind %q: %w", b, surfaceerr.ErrBadParameter)
	}
	return nil
}
