package protocol

import (
	"errors"
	"fmt"

	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// SysEx framing bytes.
const (
	SysExStart = 0xF0
	SysExEnd   = 0xF7
)

// ManufacturerID prefixes every parameter message.
var ManufacturerID = [3]byte{0x53, 0x41, 0x4D}

// Command is the verb of a parameter message.
type Command uint8

const (
	CmdGet Command = iota
	CmdGetResponse
	CmdSet
	CmdSetResponse
	CmdStop
)

// Param selects the setting a parameter message addresses.
type Param uint8

const (
	ParamDetent Param = iota
	ParamDisplayMode
	ParamVmapDisplayMode
	ParamVmapMode
	ParamVmapActive
	ParamSwitchState
	ParamSwitchMode
	ParamSwitchProto
	ParamVmapRange
	ParamVmapPosition
	ParamVmapRGB
	ParamVmapRB
	ParamVmapProto
	ParamSideSwitch
	ParamActiveBank

	numParams
)

// Status values returned in response messages.
const (
	StatusOK    uint8 = 0
	StatusError uint8 = 1
)

// Request is a decoded parameter message.
type Request struct {
	Cmd     Command `json:"cmd"`
	Param   Param   `json:"param"`
	Bank    uint8   `json:"bank"`
	Encoder uint8   `json:"encoder"`
	Value   uint8   `json:"value"`
}

// request payload after F0: 3 id bytes, cmd, param, bank, encoder, value
const requestLen = 8

// ValidateSysEx checks framing and that every data byte is 7-bit.
func ValidateSysEx(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("sysex too short: %w", surfaceerr.ErrBadParameter)
	}
	if data[0] != SysExStart {
		return fmt.Errorf("invalid sysex: expected start byte 0x%02X, got 0x%02X: %w", SysExStart, data[0], surfaceerr.ErrBadParameter)
	}
	if data[len(data)-1] != SysExEnd {
		return fmt.Errorf("invalid sysex: expected end byte 0x%02X, got 0x%02X: %w", SysExEnd, data[len(data)-1], surfaceerr.ErrBadParameter)
	}
	for i := 1; i < len(data)-1; i++ {
		if data[i] > 127 {
			return fmt.Errorf("invalid sysex: byte at position %d is > 127 (0x%02X): %w", i, data[i], surfaceerr.ErrBadParameter)
		}
	}
	return nil
}

// Frame wraps a payload in F0/F7.
func Frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, SysExStart)
	out = append(out, payload...)
	return append(out, SysExEnd)
}

// ErrForeignSysEx is returned for well formed SysEx with another
// manufacturer id.
var ErrForeignSysEx = errors.New("sysex for another manufacturer")

// ParseRequest decodes a complete framed parameter message.
func ParseRequest(data []byte) (Request, error) {
	if err := ValidateSysEx(data); err != nil {
		return Request{}, err
	}
	body := data[1 : len(data)-1]
	if len(body) < 3 || [3]byte(body[:3]) != ManufacturerID {
		return Request{}, ErrForeignSysEx
	}
	if len(body) != requestLen {
		return Request{}, fmt.Errorf("parameter message length %d, want %d: %w", len(body), requestLen, surfaceerr.ErrBadParameter)
	}
	r := Request{
		Cmd:     Command(body[3]),
		Param:   Param(body[4]),
		Bank:    body[5],
		Encoder: body[6],
		Value:   body[7],
	}
	switch r.Cmd {
	case CmdGet, CmdSet, CmdStop:
	default:
		return Request{}, fmt.Errorf("sysex command %d: %w", r.Cmd, surfaceerr.ErrBadParameter)
	}
	if r.Param >= numParams {
		return Request{}, fmt.Errorf("sysex param %d: %w", r.Param, surfaceerr.ErrBadParameter)
	}
	return r, nil
}

// Bytes encodes the request as a framed message.
func (r Request) Bytes() []byte {
	return Frame([]byte{
		ManufacturerID[0], ManufacturerID[1], ManufacturerID[2],
		byte(r.Cmd), byte(r.Param), r.Bank, r.Encoder, r.Value,
	})
}

// Response builds the reply payload for r, without framing. Get replies
// carry the value, set replies the status.
func Response(r Request, value, status uint8) []byte {
	cmd := CmdSetResponse
	data := status
	if r.Cmd == CmdGet {
		cmd = CmdGetResponse
		if status == StatusOK {
			data = value
		}
	}
	return []byte{
		ManufacturerID[0], ManufacturerID[1], ManufacturerID[2],
		byte(cmd), byte(r.Param), r.Bank, r.Encoder, data & 0x7F,
	}
}
