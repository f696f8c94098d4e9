package virtmap

import (
	"fmt"
	"strings"

	"github.com/james-see/twister2midi/pkg/protocol"
	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// Mode selects which maps of a list emit.
type Mode uint8

const (
	// Overlay converts the value through every map.
	Overlay Mode = iota
	// Single only emits through the active map.
	Single
)

func (m Mode) String() string {
	if m == Single {
		return "single"
	}
	return "overlay"
}

// List is the set of maps assigned to one control, stored in a fixed
// capacity slice. The active map is the one at the head offset and Toggle
// advances the head, so rotation never moves a map.
type List struct {
	maps []Map
	head int
	Mode Mode
}

// NewList returns an empty list with room for capacity maps.
func NewList(capacity int) (*List, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("virtmap list capacity %d: %w", capacity, surfaceerr.ErrBadParameter)
	}
	return &List{maps: make([]Map, 0, capacity)}, nil
}

// Assign appends m in assignment order. The active map does not change.
func (l *List) Assign(m Map) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if len(l.maps) == cap(l.maps) {
		return fmt.Errorf("virtmap list full (%d): %w", cap(l.maps), surfaceerr.ErrBadParameter)
	}
	m.last = -1
	l.maps = append(l.maps, m)
	return nil
}

// Len returns the number of assigned maps.
func (l *List) Len() int { return len(l.maps) }

// Cap returns the list capacity.
func (l *List) Cap() int { return cap(l.maps) }

// Active returns the active map, or nil when the list is empty.
func (l *List) Active() *Map {
	if len(l.maps) == 0 {
		return nil
	}
	return &l.maps[l.head]
}

// At returns the i'th map in rotation order, counting from the active one.
func (l *List) At(i int) *Map {
	if i < 0 || i >= len(l.maps) {
		return nil
	}
	return &l.maps[(l.head+i)%len(l.maps)]
}

// Toggle makes the next map active, wrapping at the end.
func (l *List) Toggle() {
	if len(l.maps) > 1 {
		l.head = (l.head + 1) % len(l.maps)
	}
}

// ActiveIndex returns the assignment index of the active map.
func (l *List) ActiveIndex() int { return l.head }

// SetActive makes the i'th assigned map active.
func (l *List) SetActive(i int) error {
	if i < 0 || i >= len(l.maps) {
		return fmt.Errorf("virtmap index %d of %d: %w", i, len(l.maps), surfaceerr.ErrBadParameter)
	}
	l.head = i
	return nil
}

// Handle converts a raw value change through the emitting maps. Errors
// from emit stop the walk and are returned.
func (l *List) Handle(prev, curr uint16, emit EmitFunc) error {
	if len(l.maps) == 0 {
		return nil
	}
	if l.Mode == Single {
		return l.Active().Emit(prev, curr, emit)
	}
	for i := range l.maps {
		if err := l.At(i).Emit(prev, curr, emit); err != nil {
			return err
		}
	}
	return nil
}

// Feedback offers an inbound event to each map, active first, and returns
// the raw position from the first that accepts it.
func (l *List) Feedback(evt protocol.Event) (uint16, bool) {
	for i := range l.maps {
		if raw, ok := l.At(i).Feedback(evt); ok {
			return raw, true
		}
	}
	return 0, false
}

// Illuminated returns the indices, counted from the active map, of the
// maps whose position contains v.
func (l *List) Illuminated(v uint16) []int {
	var out []int
	for i := range l.maps {
		if l.At(i).Position.Contains(v) {
			out = append(out, i)
		}
	}
	return out
}

// Reset clears the emission history of every map.
func (l *List) Reset() {
	for i := range l.maps {
		l.maps[i].Reset()
	}
}

// ParseMode parses "overlay" or "single".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "overlay", "":
		return Overlay, nil
	case "single":
		return Single, nil
	}
	return 0, fmt.Errorf("unknown virtmap mode %q: %w", s, surfaceerr.ErrBadParameter)
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
