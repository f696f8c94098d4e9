// Package iodev gives every physical control a uniform device handle: a
// kind, a hardware index, a kind specific context and the virtual maps
// assigned to it.
package iodev

import (
	"fmt"

	"github.com/james-see/twister2midi/pkg/encoder"
	"github.com/james-see/twister2midi/pkg/surfaceerr"
	"github.com/james-see/twister2midi/pkg/virtmap"
)

// Kind is the type of a physical control.
type Kind uint8

const (
	KindEncoder Kind = iota
	KindSwitch
	KindEncoderSwitch

	NumKinds = 3
)

func (k Kind) String() string {
	switch k {
	case KindEncoder:
		return "encoder"
	case KindSwitch:
		return "switch"
	case KindEncoderSwitch:
		return "encoder-switch"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Switch values carried by IO events.
const (
	Released uint16 = 0
	Pressed  uint16 = 0xFFFF
)

// Context is the kind specific state of a device. It is one of
// *EncoderContext, *SwitchContext or *EncoderSwitchContext.
type Context interface {
	kind() Kind
}

// EncoderContext wraps a motion model.
type EncoderContext struct {
	Motion *encoder.State
}

func (*EncoderContext) kind() Kind { return KindEncoder }

// Edger is the part of a debounced switch group a device reads.
type Edger interface {
	Edge(i int) (changed, held bool)
}

// SwitchContext is one bit of a debounced switch group.
type SwitchContext struct {
	Group Edger
	Bit   int
}

func (*SwitchContext) kind() Kind { return KindSwitch }

// EncoderSwitchContext is the push switch of an encoder.
type EncoderSwitchContext struct {
	SwitchContext
	Encoder *Device
	Mode    SwitchMode
}

func (*EncoderSwitchContext) kind() Kind { return KindEncoderSwitch }

// Device is the handle of one physical control.
type Device struct {
	kind  Kind
	index int
	ctx   Context

	// Maps holds the virtual maps assigned to the device.
	Maps *virtmap.List
}

// Event reports a changed device value.
type Event struct {
	Kind     Kind    `json:"kind"`
	Index    int     `json:"index"`
	Value    uint16  `json:"value"`
	Previous uint16  `json:"previous"`
	Device   *Device `json:"-"`
}

// Poster accepts IO events, typically the IO event channel.
type Poster interface {
	Post(Event) error
}

// Input is the raw scan data for one device in one cycle. Only encoders
// read it; switches read their debounced group.
type Input struct {
	A, B bool
}

// Init binds ctx to a device. Encoders post their current value so
// consumers start from a known state.
func Init(kind Kind, ctx Context, index int, maps *virtmap.List, post Poster) (*Device, error) {
	if kind >= NumKinds {
		return nil, fmt.Errorf("init device: %s: %w", kind, surfaceerr.ErrBadParameter)
	}
	if ctx == nil || post == nil {
		return nil, fmt.Errorf("init %s %d: %w", kind, index, surfaceerr.ErrNullReference)
	}
	if ctx.kind() != kind {
		return nil, fmt.Errorf("init %s %d with %s context: %w", kind, index, ctx.kind(), surfaceerr.ErrBadParameter)
	}
	if index < 0 {
		return nil, fmt.Errorf("init %s: index %d: %w", kind, index, surfaceerr.ErrBadParameter)
	}

	d := &Device{kind: kind, index: index, ctx: ctx, Maps: maps}
	switch c := ctx.(type) {
	case *EncoderContext:
		if c.Motion == nil {
			return nil, fmt.Errorf("init encoder %d: no motion state: %w", index, surfaceerr.ErrNullReference)
		}
		v := c.Motion.Value()
		if err := post.Post(Event{Kind: kind, Index: index, Value: v, Previous: v, Device: d}); err != nil {
			return d, fmt.Errorf("init encoder %d: %w", index, err)
		}
	case *SwitchContext:
		if c.Group == nil {
			return nil, fmt.Errorf("init switch %d: no group: %w", index, surfaceerr.ErrNullReference)
		}
	case *EncoderSwitchContext:
		if c.Group == nil || c.Encoder == nil {
			return nil, fmt.Errorf("init encoder switch %d: %w", index, surfaceerr.ErrNullReference)
		}
	}
	return d, nil
}

// Kind returns the device kind.
func (d *Device) Kind() Kind { return d.kind }

// Index returns the hardware index.
func (d *Device) Index() int { return d.index }

// Context returns the kind specific context.
func (d *Device) Context() Context { return d.ctx }

// Encoder returns the motion state of an encoder device, or nil.
func (d *Device) Encoder() *encoder.State {
	if c, ok := d.ctx.(*EncoderContext); ok {
		return c.Motion
	}
	return nil
}

// Value returns the current value of the device.
func (d *Device) Value() uint16 {
	switch c := d.ctx.(type) {
	case *EncoderContext:
		return c.Motion.Value()
	case *SwitchContext:
		return switchValue(c)
	case *EncoderSwitchContext:
		return switchValue(&c.SwitchContext)
	}
	return 0
}

func switchValue(c *SwitchContext) uint16 {
	if s, ok := c.Group.(interface{ State(int) bool }); ok && s.State(c.Bit) {
		return Pressed
	}
	return Released
}

// Update runs one scan cycle for the device and posts an event when its
// value changed. Switch groups must already be debounced for this cycle.
func (d *Device) Update(in Input, post Poster) error {
	var evt Event
	switch c := d.ctx.(type) {
	case *EncoderContext:
		v, changed := c.Motion.Decode(in.A, in.B)
		if !changed {
			return nil
		}
		evt = Event{Value: v, Previous: c.Motion.Previous()}
	case *SwitchContext:
		e, ok := switchEdge(c)
		if !ok {
			return nil
		}
		evt = e
	case *EncoderSwitchContext:
		e, ok := switchEdge(&c.SwitchContext)
		if !ok {
			return nil
		}
		evt = e
	default:
		return fmt.Errorf("update device %d: %w", d.index, surfaceerr.ErrBadParameter)
	}
	evt.Kind, evt.Index, evt.Device = d.kind, d.index, d
	return post.Post(evt)
}

func switchEdge(c *SwitchContext) (Event, bool) {
	changed, held := c.Group.Edge(c.Bit)
	if !changed {
		return Event{}, false
	}
	if held {
		return Event{Value: Pressed, Previous: Released}, true
	}
	return Event{Value: Released, Previous: Pressed}, true
}
