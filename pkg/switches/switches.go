// Package switches debounces groups of mechanical switches sampled as
// bitfields.
//
// Samples are pushed into a fixed-depth history every scan. Debounce is run
// once per scan cycle and takes the AND of the whole history, so a switch
// only reads as pressed after every buffered sample agreed.
package switches

import (
	"fmt"

	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// Bits is the width of a switch group.
type Bits interface {
	~uint8 | ~uint16
}

// Group is a debounced group of up to 8 or 16 switches.
type Group[T Bits] struct {
	buf      []T
	cursor   int
	width    int
	current  T
	previous T
	raw      T
}

type (
	Group8  = Group[uint8]
	Group16 = Group[uint16]
)

// NewGroup returns a group with a sample history of depth entries, all
// released.
func NewGroup[T Bits](depth int) (*Group[T], error) {
	if depth < 1 {
		return nil, fmt.Errorf("debounce depth %d: %w", depth, surfaceerr.ErrBadParameter)
	}
	width := 0
	for all := ^T(0); all != 0; all >>= 1 {
		width++
	}
	return &Group[T]{buf: make([]T, depth), width: width}, nil
}

// Width returns the number of switches in the group.
func (g *Group[T]) Width() int { return g.width }

// Depth returns the length of the sample history.
func (g *Group[T]) Depth() int { return len(g.buf) }

// Push stores a raw sample, one bit per switch with 1 meaning closed.
func (g *Group[T]) Push(sample T) {
	g.buf[g.cursor] = sample
	g.cursor++
	if g.cursor == len(g.buf) {
		g.cursor = 0
	}
}

// Debounce recomputes the stable state from the sample history and the edge
// bitfield against the previous stable state.
func (g *Group[T]) Debounce() {
	g.previous = g.current
	cur := ^T(0)
	for _, s := range g.buf {
		cur &= s
	}
	g.current = cur
	g.raw = g.current ^ g.previous
}

// States returns the debounced bitfield.
func (g *Group[T]) States() T { return g.current }

// Raw returns the bits that changed at the last Debounce.
func (g *Group[T]) Raw() T { return g.raw }

// State reports whether switch i is held.
func (g *Group[T]) State(i int) bool {
	return g.valid(i) && g.current&bit[T](i) != 0
}

// WasPressed reports whether switch i went down at the last Debounce.
func (g *Group[T]) WasPressed(i int) bool {
	return g.valid(i) && g.raw&g.current&bit[T](i) != 0
}

// WasReleased reports whether switch i went up at the last Debounce.
func (g *Group[T]) WasReleased(i int) bool {
	return g.valid(i) && g.raw&^g.current&bit[T](i) != 0
}

// Edge reports whether switch i changed at the last Debounce, and its state.
func (g *Group[T]) Edge(i int) (changed, held bool) {
	if !g.valid(i) {
		return false, false
	}
	return g.raw&bit[T](i) != 0, g.current&bit[T](i) != 0
}

// Reset clears history and state.
func (g *Group[T]) Reset() {
	clear(g.buf)
	g.cursor = 0
	g.current, g.previous, g.raw = 0, 0, 0
}

func (g *Group[T]) valid(i int) bool { return i >= 0 && i < g.width }

func bit[T Bits](i int) T { return T(1) << uint(i) }
