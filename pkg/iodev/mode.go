package iodev

import (
	"fmt"
	"strings"

	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// SwitchMode is what an encoder's push switch does.
type SwitchMode uint8

const (
	SwitchNone SwitchMode = iota
	SwitchVmapCycle
	SwitchVmapHold
	SwitchResetOnPress
	SwitchResetOnRelease
	SwitchFineAdjustToggle
	SwitchFineAdjustHold

	numSwitchModes
)

var switchModeNames = [numSwitchModes]string{
	"none",
	"vmap-cycle",
	"vmap-hold",
	"reset-on-press",
	"reset-on-release",
	"fine-adjust-toggle",
	"fine-adjust-hold",
}

func (m SwitchMode) String() string {
	if m < numSwitchModes {
		return switchModeNames[m]
	}
	return fmt.Sprintf("switch-mode(%d)", uint8(m))
}

// Valid reports whether m is a known mode.
func (m SwitchMode) Valid() bool { return m < numSwitchModes }

// ParseSwitchMode parses the names produced by SwitchMode.String.
func ParseSwitchMode(s string) (SwitchMode, error) {
	for i, name := range switchModeNames {
		if strings.EqualFold(s, name) {
			return SwitchMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown switch mode %q: %w", s, surfaceerr.ErrBadParameter)
}

// MarshalText implements encoding.TextMarshaler.
func (m SwitchMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SwitchMode) UnmarshalText(b []byte) error {
	v, err := ParseSwitchMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
