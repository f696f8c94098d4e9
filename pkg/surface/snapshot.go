package surface

import (
	"github.com/james-see/twister2midi/pkg/event"
	"github.com/james-see/twister2midi/pkg/iodev"
)

// MapState describes one virtual map of an encoder.
type MapState struct {
	Start       uint16 `json:"start"`
	Stop        uint16 `json:"stop"`
	Lower       int32  `json:"lower"`
	Upper       int32  `json:"upper"`
	Proto       string `json:"proto"`
	Last        int32  `json:"last"`
	Illuminated bool   `json:"illuminated"`
}

// EncoderState describes one encoder of the active bank.
type EncoderState struct {
	Index      int        `json:"index"`
	Value      uint16     `json:"value"`
	Velocity   int32      `json:"velocity"`
	Detent     bool       `json:"detent"`
	Fine       bool       `json:"fine"`
	Pressed    bool       `json:"pressed"`
	SwitchMode string     `json:"switch_mode"`
	VmapMode   string     `json:"vmap_mode"`
	ActiveMap  int        `json:"active_map"`
	Maps       []MapState `json:"maps"`
}

// State is a point in time view of the surface.
type State struct {
	ActiveBank   int            `json:"active_bank"`
	Banks        int            `json:"banks"`
	Encoders     []EncoderState `json:"encoders"`
	SideSwitches []bool         `json:"side_switches"`
	Channels     []event.Stats  `json:"channels"`
	Sent         uint64         `json:"sent"`
	Failed       uint64         `json:"failed"`
	Ticks        uint64         `json:"ticks"`
	Saves        uint64         `json:"saves"`
}

// Snapshot captures the active bank. Call it from the loop goroutine, for
// example inside Do.
func (s *Surface) Snapshot() State {
	st := State{
		ActiveBank: s.active,
		Banks:      len(s.banks),
		Channels:   s.bus.Stats(),
		Sent:       s.serializer.Sent(),
		Failed:     s.serializer.Failed(),
		Ticks:      s.ticks,
		Saves:      s.saves,
	}
	bank := s.banks[s.active]
	for i, enc := range bank.Devices(iodev.KindEncoder) {
		motion := enc.Encoder()
		sw := bank.Switch(i)
		es := EncoderState{
			Index:      i,
			Value:      motion.Value(),
			Velocity:   motion.Velocity(),
			Detent:     motion.Detent,
			Fine:       motion.Fine,
			Pressed:    sw.Value() == iodev.Pressed,
			SwitchMode: sw.Context().(*iodev.EncoderSwitchContext).Mode.String(),
		}
		if enc.Maps != nil {
			es.VmapMode = enc.Maps.Mode.String()
			es.ActiveMap = enc.Maps.ActiveIndex()
			lit := make(map[int]bool)
			for _, idx := range enc.Maps.Illuminated(motion.Value()) {
				lit[idx] = true
			}
			for m := 0; m < enc.Maps.Len(); m++ {
				vm := enc.Maps.At(m)
				es.Maps = append(es.Maps, MapState{
					Start:       vm.Position.Start,
					Stop:        vm.Position.Stop,
					Lower:       vm.Range.Lower,
					Upper:       vm.Range.Upper,
					Proto:       vm.Proto.String(),
					Last:        vm.Last(),
					Illuminated: lit[m],
				})
			}
		}
		st.Encoders = append(st.Encoders, es)
	}
	for _, sw := range s.sides.Devices(iodev.KindSwitch) {
		st.SideSwitches = append(st.SideSwitches, sw.Value() == iodev.Pressed)
	}
	return st
}
