// Package quadrature decodes the two phase signals of a mechanical rotary
// encoder into rotation steps.
//
// The decoder is a half-step Gray code state machine (after Ben Buxton's
// rotary library): a step is only reported once the phases have passed
// through a complete half cycle, so a single glitching transition never
// produces a direction.
package quadrature

// Direction is the rotation reported by a decode. It doubles as the sign of
// the step, so it can be multiplied directly into velocity arithmetic.
type Direction int8

const (
	None Direction = 0
	CW   Direction = 1
	CCW  Direction = -1
)

// String returns a short name for the direction.
func (d Direction) String() string {
	switch d {
	case CW:
		return "cw"
	case CCW:
		return "ccw"
	default:
		return "none"
	}
}

// Decoder state register values. The low nibble selects the table row, the
// direction flags live in bits 4 and 5.
const (
	stateStart uint8 = iota
	stateCCW
	stateCW
	stateMiddle
	stateMidCW
	stateMidCCW
	numStates
)

const (
	flagCW    uint8 = 0x10
	flagCCW   uint8 = 0x20
	flagMask  uint8 = flagCW | flagCCW
	stateMask uint8 = 0x0F
)

// transitions is indexed by [current state][phase input], where the phase
// input is (b << 1) | a.
var transitions = [numStates][4]uint8{
	stateStart:  {stateMiddle, stateCW, stateCCW, stateStart},
	stateCCW:    {stateMiddle | flagCCW, stateStart, stateCCW, stateStart},
	stateCW:     {stateMiddle | flagCW, stateCW, stateStart, stateStart},
	stateMiddle: {stateMiddle, stateMidCCW, stateMidCW, stateStart},
	stateMidCW:  {stateMiddle, stateMiddle, stateMidCW, stateStart | flagCW},
	stateMidCCW: {stateMiddle, stateMidCCW, stateMiddle, stateStart | flagCCW},
}

// Decoder holds the Gray code state of one physical encoder. The zero value
// is ready to use and corresponds to the rest position with both phases high.
type Decoder struct {
	rot uint8
	dir Direction
}

// Decode feeds one sample of the phase signals into the state machine and
// returns the direction confirmed by this sample, or None.
func (d *Decoder) Decode(a, b bool) Direction {
	var in uint8
	if a {
		in |= 1
	}
	if b {
		in |= 2
	}

	row := d.rot & stateMask
	if row >= numStates {
		// unreachable through Decode, but a corrupted register must not
		// index out of the table
		row = stateStart
	}
	d.rot = transitions[row][in]

	switch d.rot & flagMask {
	case flagCW:
		d.dir = CW
	case flagCCW:
		d.dir = CCW
	default:
		d.dir = None
	}
	return d.dir
}

// Direction returns the direction resolved by the most recent Decode.
func (d *Decoder) Direction() Direction { return d.dir }

// State returns the raw state register, including direction flags.
func (d *Decoder) State() uint8 { return d.rot }

// Reset returns the decoder to the rest position.
func (d *Decoder) Reset() { *d = Decoder{} }
