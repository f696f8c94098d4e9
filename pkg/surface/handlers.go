package surface

import (
	"errors"
	"fmt"

	"github.com/james-see/twister2midi/pkg/encoder"
	"github.com/james-see/twister2midi/pkg/iodev"
	"github.com/james-see/twister2midi/pkg/protocol"
	"github.com/james-see/twister2midi/pkg/surfaceerr"
	"github.com/james-see/twister2midi/pkg/virtmap"
)

// emit posts a converted event to the MIDI out channel. Drops are already
// counted and reported by the channel.
func (s *Surface) emit(evt protocol.Event) error {
	if err := s.midiOut.Post(evt); err != nil && !errors.Is(err, surfaceerr.ErrQueueFull) {
		return err
	}
	return nil
}

func (s *Surface) handleIO(evt iodev.Event) error {
	switch evt.Kind {
	case iodev.KindEncoder:
		// Unchanged values only refresh consumers such as displays.
		if evt.Value == evt.Previous || evt.Device == nil || evt.Device.Maps == nil {
			return nil
		}
		return evt.Device.Maps.Handle(evt.Previous, evt.Value, s.emit)
	case iodev.KindEncoderSwitch:
		return s.encoderSwitch(evt)
	case iodev.KindSwitch:
		if evt.Value == iodev.Pressed && evt.Index < len(s.banks) {
			return s.SelectBank(evt.Index)
		}
	}
	return nil
}

func (s *Surface) encoderSwitch(evt iodev.Event) error {
	if evt.Device == nil {
		return fmt.Errorf("encoder switch %d: %w", evt.Index, surfaceerr.ErrNullReference)
	}
	ctx, ok := evt.Device.Context().(*iodev.EncoderSwitchContext)
	if !ok {
		return fmt.Errorf("encoder switch %d context: %w", evt.Index, surfaceerr.ErrBadParameter)
	}
	enc := ctx.Encoder
	motion := enc.Encoder()
	pressed := evt.Value == iodev.Pressed

	switch ctx.Mode {
	case iodev.SwitchVmapCycle:
		if pressed && enc.Maps != nil {
			enc.Maps.Toggle()
		}
	case iodev.SwitchVmapHold:
		if enc.Maps == nil {
			return nil
		}
		if pressed {
			s.holding[enc] = enc.Maps.ActiveIndex()
			enc.Maps.Toggle()
		} else if prev, ok := s.holding[enc]; ok {
			delete(s.holding, enc)
			return enc.Maps.SetActive(prev)
		}
	case iodev.SwitchResetOnPress:
		if pressed {
			s.resetEncoder(enc)
		}
	case iodev.SwitchResetOnRelease:
		if !pressed {
			s.resetEncoder(enc)
		}
	case iodev.SwitchFineAdjustToggle:
		if pressed {
			motion.Fine = !motion.Fine
		}
	case iodev.SwitchFineAdjustHold:
		motion.Fine = pressed
	}
	return nil
}

// resetEncoder returns an encoder to its rest value, the centre when it
// has a detent, and posts the change.
func (s *Surface) resetEncoder(enc *iodev.Device) {
	motion := enc.Encoder()
	prev := motion.Value()
	rest := uint16(encoder.Min)
	if motion.Detent {
		rest = uint16(encoder.Mid)
	}
	motion.Set(rest)
	if rest != prev {
		s.post(s.io.Post(iodev.Event{Kind: iodev.KindEncoder, Index: enc.Index(), Value: rest, Previous: prev, Device: enc}))
	}
}

// handleFeedback moves encoders, in every bank, to the position reported by
// an inbound controller or note. Encoders in motion keep their value.
func (s *Surface) handleFeedback(evt protocol.Event) error {
	switch evt.Type {
	case protocol.ControlChange, protocol.NoteOn, protocol.NoteOff:
	default:
		return nil
	}
	for _, bank := range s.banks {
		for _, enc := range bank.Devices(iodev.KindEncoder) {
			motion := enc.Encoder()
			if enc.Maps == nil || motion.Velocity() != 0 {
				continue
			}
			raw, ok := enc.Maps.Feedback(evt)
			if !ok {
				continue
			}
			motion.Set(raw)
			if bank.Index == s.active {
				s.post(s.io.Post(iodev.Event{Kind: iodev.KindEncoder, Index: enc.Index(), Value: raw, Previous: raw, Device: enc}))
			}
		}
	}
	return nil
}

func (s *Surface) handleSysEx(evt protocol.Event) error {
	if evt.Type != protocol.SysEx {
		return nil
	}
	req, err := protocol.ParseRequest(protocol.Frame(evt.Data))
	if errors.Is(err, protocol.ErrForeignSysEx) {
		return nil
	}
	if err != nil {
		return err
	}
	if req.Cmd == protocol.CmdStop {
		return nil
	}

	var value uint8
	if req.Cmd == protocol.CmdGet {
		value, err = s.getParam(req)
	} else {
		err = s.setParam(req)
	}
	status := protocol.StatusOK
	if err != nil {
		status = protocol.StatusError
		s.logger.Warn("sysex request failed",
			"cmd", req.Cmd, "param", req.Param,
			"bank", req.Bank, "encoder", req.Encoder, "error", err)
	}
	if postErr := s.emit(protocol.Event{Type: protocol.SysEx, Data: protocol.Response(req, value, status)}); postErr != nil {
		return postErr
	}
	if req.Cmd == protocol.CmdSet && err == nil {
		return s.PostSave()
	}
	return nil
}

// target resolves the encoder and push switch addressed by a request.
func (s *Surface) target(req protocol.Request) (*iodev.Device, *iodev.Device, error) {
	bank := s.Bank(int(req.Bank))
	if bank == nil {
		return nil, nil, fmt.Errorf("bank %d: %w", req.Bank, surfaceerr.ErrBadParameter)
	}
	enc, sw := bank.Encoder(int(req.Encoder)), bank.Switch(int(req.Encoder))
	if enc == nil || sw == nil {
		return nil, nil, fmt.Errorf("encoder %d: %w", req.Encoder, surfaceerr.ErrBadParameter)
	}
	return enc, sw, nil
}

func flag(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (s *Surface) getParam(req protocol.Request) (uint8, error) {
	if req.Param == protocol.ParamActiveBank {
		return uint8(s.active), nil
	}
	enc, sw, err := s.target(req)
	if err != nil {
		return 0, err
	}
	switch req.Param {
	case protocol.ParamDetent:
		return flag(enc.Encoder().Detent), nil
	case protocol.ParamVmapMode:
		return uint8(enc.Maps.Mode), nil
	case protocol.ParamVmapActive:
		return uint8(enc.Maps.ActiveIndex()), nil
	case protocol.ParamSwitchState:
		return flag(sw.Value() == iodev.Pressed), nil
	case protocol.ParamSwitchMode:
		return uint8(sw.Context().(*iodev.EncoderSwitchContext).Mode), nil
	}
	return 0, fmt.Errorf("get param %d: %w", req.Param, surfaceerr.ErrUnsupported)
}

func (s *Surface) setParam(req protocol.Request) error {
	if req.Param == protocol.ParamActiveBank {
		return s.SelectBank(int(req.Value))
	}
	enc, sw, err := s.target(req)
	if err != nil {
		return err
	}
	switch req.Param {
	case protocol.ParamDetent:
		enc.Encoder().Detent = req.Value != 0
	case protocol.ParamVmapMode:
		mode := virtmap.Mode(req.Value)
		if mode != virtmap.Overlay && mode != virtmap.Single {
			return fmt.Errorf("vmap mode %d: %w", req.Value, surfaceerr.ErrBadParameter)
		}
		enc.Maps.Mode = mode
	case protocol.ParamVmapActive:
		return enc.Maps.SetActive(int(req.Value))
	case protocol.ParamSwitchMode:
		mode := iodev.SwitchMode(req.Value)
		if !mode.Valid() {
			return fmt.Errorf("switch mode %d: %w", req.Value, surfaceerr.ErrBadParameter)
		}
		sw.Context().(*iodev.EncoderSwitchContext).Mode = mode
	default:
		return fmt.Errorf("set param %d: %w", req.Param, surfaceerr.ErrUnsupported)
	}
	return nil
}

func (s *Surface) handleCore(evt CoreEvent) error {
	switch evt.Type {
	case BankChanged:
		s.logger.Info("bank selected", "bank", evt.Bank)
	case SaveRequest:
		s.saves++
		s.logger.Debug("save requested", "bank", evt.Bank)
		if s.onSave != nil {
			s.onSave(evt)
		}
	}
	return nil
}
