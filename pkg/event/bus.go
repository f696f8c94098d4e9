// Package event implements the bounded, priority dispatched event channels
// that connect the scan, mapping and transport stages of the surface.
package event

import (
	"fmt"

	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// ChannelID identifies one of the fixed channels of a Bus.
type ChannelID uint8

const (
	Core ChannelID = iota
	IO
	MIDIIn
	MIDIOut

	NumChannels = 4
)

var channelNames = [NumChannels]string{"core", "io", "midi-in", "midi-out"}

func (id ChannelID) String() string {
	if int(id) < NumChannels {
		return channelNames[id]
	}
	return fmt.Sprintf("channel(%d)", uint8(id))
}

// Processor is the untyped view of a Channel the Bus drives.
type Processor interface {
	Name() string
	Process() int
	Len() int
	Cap() int
	Drops() uint64
	Dispatched() uint64
}

// Stats is a snapshot of a channel's counters.
type Stats struct {
	ID         ChannelID `json:"id"`
	Name       string    `json:"name"`
	Queued     int       `json:"queued"`
	Capacity   int       `json:"capacity"`
	Drops      uint64    `json:"drops"`
	Dispatched uint64    `json:"dispatched"`
}

// Bus holds one channel per ChannelID, each registered once.
type Bus struct {
	channels [NumChannels]Processor
}

// Register installs ch under id.
func (b *Bus) Register(id ChannelID, ch Processor) error {
	if int(id) >= NumChannels {
		return fmt.Errorf("register %s: %w", id, surfaceerr.ErrBadParameter)
	}
	if ch == nil {
		return fmt.Errorf("register %s: %w", id, surfaceerr.ErrNullReference)
	}
	if b.channels[id] != nil {
		return fmt.Errorf("register %s: %w", id, surfaceerr.ErrDuplicate)
	}
	b.channels[id] = ch
	return nil
}

// Channel returns the processor registered under id, or nil.
func (b *Bus) Channel(id ChannelID) Processor {
	if int(id) >= NumChannels {
		return nil
	}
	return b.channels[id]
}

// Lookup returns the typed channel registered under id.
func Lookup[T any](b *Bus, id ChannelID) (*Channel[T], error) {
	p := b.Channel(id)
	if p == nil {
		return nil, fmt.Errorf("lookup %s: %w", id, surfaceerr.ErrNullReference)
	}
	ch, ok := p.(*Channel[T])
	if !ok {
		return nil, fmt.Errorf("lookup %s: event type mismatch: %w", id, surfaceerr.ErrBadParameter)
	}
	return ch, nil
}

// ProcessAll drains every registered channel once, in id order, and returns
// the number of events dispatched. An event a handler posts to a channel
// later in the order is dispatched in the same call. One posted to the
// handler's own channel or an earlier one waits for the next call.
func (b *Bus) ProcessAll() int {
	n := 0
	for _, ch := range b.channels {
		if ch != nil {
			n += ch.Process()
		}
	}
	return n
}

// Pending reports whether any channel has queued events.
func (b *Bus) Pending() bool {
	for _, ch := range b.channels {
		if ch != nil && ch.Len() > 0 {
			return true
		}
	}
	return false
}

// Stats returns counters for every registered channel.
func (b *Bus) Stats() []Stats {
	var out []Stats
	for id, ch := range b.channels {
		if ch == nil {
			continue
		}
		out = append(out, Stats{
			ID:         ChannelID(id),
			Name:       ch.Name(),
			Queued:     ch.Len(),
			Capacity:   ch.Cap(),
			Drops:      ch.Drops(),
			Dispatched: ch.Dispatched(),
		})
	}
	return out
}
