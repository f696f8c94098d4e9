package surface

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"

	"github.com/james-see/twister2midi/pkg/config"
	"github.com/james-see/twister2midi/pkg/encoder"
	"github.com/james-see/twister2midi/pkg/event"
	"github.com/james-see/twister2midi/pkg/iodev"
	"github.com/james-see/twister2midi/pkg/protocol"
	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

type capture struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (c *capture) Send(msg midi.Message) error {
	evt, ok := protocol.FromMessage(msg)
	if !ok {
		return errors.New("undecodable message")
	}
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
	return nil
}

func (c *capture) all() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Event(nil), c.events...)
}

// values returns the controller values sent on cc, in order.
func (c *capture) values(cc uint8) []uint8 {
	var out []uint8
	for _, evt := range c.all() {
		if evt.Type == protocol.ControlChange && evt.Control == cc {
			out = append(out, evt.Value)
		}
	}
	return out
}

func (c *capture) sysex() [][]byte {
	var out [][]byte
	for _, evt := range c.all() {
		if evt.Type == protocol.SysEx {
			out = append(out, evt.Data)
		}
	}
	return out
}

// fixedConfig moves encoders by a fixed 1500 per detent.
func fixedConfig() config.Config {
	cfg := config.Default()
	cfg.Motion.Accelerate = false
	cfg.Motion.FixedStep = 1500
	cfg.Motion.MaxVelocity = 1500
	return cfg
}

func newSurface(t *testing.T, cfg config.Config, opts ...Option) (*Surface, *capture) {
	t.Helper()
	c := &capture{}
	s, err := New(cfg, append([]Option{WithSinks(c)}, opts...)...)
	require.NoError(t, err)
	require.NotNil(t, s.Simulator())
	return s, c
}

func step(t *testing.T, s *Surface, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.Step())
	}
}

func turn(t *testing.T, s *Surface, enc, detents int) {
	t.Helper()
	require.NoError(t, s.Simulator().Turn(enc, detents))
	for !s.Simulator().Idle() {
		require.NoError(t, s.Step())
	}
	step(t, s, 2)
}

func pressEncoder(t *testing.T, s *Surface, enc int, down bool) {
	t.Helper()
	require.NoError(t, s.Simulator().PressEncoder(enc, down))
	step(t, s, s.Config().DebounceDepth+2)
}

func pressSide(t *testing.T, s *Surface, i int, down bool) {
	t.Helper()
	require.NoError(t, s.Simulator().PressSide(i, down))
	step(t, s, s.Config().DebounceDepth+2)
}

func sysexEvent(r protocol.Request) protocol.Event {
	b := r.Bytes()
	return protocol.Event{Type: protocol.SysEx, Data: b[1 : len(b)-1]}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Encoders = 0
	_, err := New(cfg)
	assert.ErrorIs(t, err, surfaceerr.ErrBadParameter)
}

func TestInitialEventsDoNotEmit(t *testing.T) {
	s, c := newSurface(t, config.Default())
	step(t, s, 3)

	assert.Empty(t, c.all())
	for _, st := range s.Bus().Stats() {
		assert.Zero(t, st.Drops, st.Name)
	}
	assert.Equal(t, uint16(0), s.Bank(0).Encoder(0).Value())
}

func TestTurnEmitsControlChange(t *testing.T) {
	s, c := newSurface(t, fixedConfig())

	turn(t, s, 3, 10)

	assert.Equal(t, uint16(15000), s.Bank(0).Encoder(3).Value())
	// encoder 3 of bank 0 owns controllers 6 and 7
	for _, cc := range []uint8{6, 7} {
		got := c.values(cc)
		require.Len(t, got, 10, "cc %d", cc)
		assert.Equal(t, uint8(2), got[0])
		assert.Equal(t, uint8(29), got[9])
	}
	assert.Len(t, c.all(), 20)
	assert.Equal(t, uint64(20), s.Serializer().Sent())
}

func TestAcceleratedRoundTripFromMidScale(t *testing.T) {
	cfg := config.Default()
	cfg.InitialValue = 32768
	s, c := newSurface(t, cfg)
	enc := s.Bank(0).Encoder(0)
	motion := enc.Encoder()

	turn(t, s, 0, 50)
	assert.Equal(t, len(cfg.Motion.AccelTable)-1, motion.Accel())
	assert.Greater(t, int32(enc.Value())-32768, 50*cfg.Motion.MinStep)
	up := c.values(0)
	require.NotEmpty(t, up)

	turn(t, s, 0, -50)
	assert.Equal(t, uint16(32768), enc.Value())
	all := c.values(0)
	down := all[len(up):]
	require.NotEmpty(t, down)

	assert.IsNonDecreasing(t, up)
	assert.IsNonIncreasing(t, down)
	assert.Greater(t, up[len(up)-1], up[0])
	assert.Equal(t, uint8(32768*127/65535), down[len(down)-1])
}

func TestTurnClampsAtLimits(t *testing.T) {
	s, c := newSurface(t, fixedConfig())

	turn(t, s, 0, 60)
	assert.Equal(t, uint16(encoder.Max), s.Bank(0).Encoder(0).Value())
	got := c.values(0)
	assert.Equal(t, uint8(127), got[len(got)-1])

	turn(t, s, 0, -60)
	assert.Equal(t, uint16(encoder.Min), s.Bank(0).Encoder(0).Value())
	got = c.values(0)
	assert.Equal(t, uint8(0), got[len(got)-1])
}

func TestSideSwitchSelectsBank(t *testing.T) {
	var saves []CoreEvent
	s, c := newSurface(t, fixedConfig(), WithSaveHook(func(e CoreEvent) { saves = append(saves, e) }))

	pressSide(t, s, 2, true)
	pressSide(t, s, 2, false)
	assert.Equal(t, 2, s.ActiveBank())
	assert.Empty(t, c.all(), "bank refresh must not emit")

	turn(t, s, 0, 1)
	assert.Equal(t, uint16(1500), s.Bank(2).Encoder(0).Value())
	assert.Equal(t, uint16(0), s.Bank(0).Encoder(0).Value())
	for _, evt := range c.all() {
		assert.Contains(t, []uint8{64, 65}, evt.Control)
	}
	assert.Len(t, c.all(), 2)
	assert.Empty(t, saves)
}

func TestSideSwitchBeyondBanksIgnored(t *testing.T) {
	s, _ := newSurface(t, config.Default())
	pressSide(t, s, 5, true)
	assert.Equal(t, 0, s.ActiveBank())
}

func TestSelectBankRange(t *testing.T) {
	s, _ := newSurface(t, config.Default())
	assert.ErrorIs(t, s.SelectBank(4), surfaceerr.ErrBadParameter)
	assert.ErrorIs(t, s.SelectBank(-1), surfaceerr.ErrBadParameter)
	require.NoError(t, s.SelectBank(3))
	assert.Equal(t, 3, s.ActiveBank())
}

func TestEncoderSwitchModes(t *testing.T) {
	t.Run("vmap cycle", func(t *testing.T) {
		s, _ := newSurface(t, config.Default())
		maps := s.Bank(0).Encoder(4).Maps

		pressEncoder(t, s, 4, true)
		assert.Equal(t, 1, maps.ActiveIndex())
		pressEncoder(t, s, 4, false)
		assert.Equal(t, 1, maps.ActiveIndex())
		pressEncoder(t, s, 4, true)
		assert.Equal(t, 0, maps.ActiveIndex())
	})

	t.Run("vmap hold", func(t *testing.T) {
		cfg := config.Default()
		cfg.SwitchMode = iodev.SwitchVmapHold
		s, _ := newSurface(t, cfg)
		maps := s.Bank(0).Encoder(4).Maps

		pressEncoder(t, s, 4, true)
		assert.Equal(t, 1, maps.ActiveIndex())
		pressEncoder(t, s, 4, false)
		assert.Equal(t, 0, maps.ActiveIndex())
	})

	t.Run("reset on press", func(t *testing.T) {
		cfg := fixedConfig()
		cfg.SwitchMode = iodev.SwitchResetOnPress
		cfg.Detent = true
		s, c := newSurface(t, cfg)
		enc := s.Bank(0).Encoder(1)
		require.Equal(t, uint16(encoder.Mid), enc.Value())

		turn(t, s, 1, 2)
		assert.Equal(t, uint16(encoder.Mid+3000), enc.Value())

		pressEncoder(t, s, 1, true)
		assert.Equal(t, uint16(encoder.Mid), enc.Value())
		got := c.values(2)
		assert.Equal(t, uint8(63), got[len(got)-1])
	})

	t.Run("reset on release", func(t *testing.T) {
		cfg := fixedConfig()
		cfg.SwitchMode = iodev.SwitchResetOnRelease
		s, _ := newSurface(t, cfg)
		enc := s.Bank(0).Encoder(1)

		turn(t, s, 1, 2)
		pressEncoder(t, s, 1, true)
		assert.Equal(t, uint16(3000), enc.Value())
		pressEncoder(t, s, 1, false)
		assert.Equal(t, uint16(encoder.Min), enc.Value())
	})

	t.Run("fine adjust toggle", func(t *testing.T) {
		cfg := fixedConfig()
		cfg.SwitchMode = iodev.SwitchFineAdjustToggle
		s, _ := newSurface(t, cfg)
		motion := s.Bank(0).Encoder(7).Encoder()

		pressEncoder(t, s, 7, true)
		pressEncoder(t, s, 7, false)
		assert.True(t, motion.Fine)

		turn(t, s, 7, 1)
		assert.Equal(t, uint16(1500/8), motion.Value())

		pressEncoder(t, s, 7, true)
		assert.False(t, motion.Fine)
	})

	t.Run("fine adjust hold", func(t *testing.T) {
		cfg := config.Default()
		cfg.SwitchMode = iodev.SwitchFineAdjustHold
		s, _ := newSurface(t, cfg)
		motion := s.Bank(0).Encoder(7).Encoder()

		pressEncoder(t, s, 7, true)
		assert.True(t, motion.Fine)
		pressEncoder(t, s, 7, false)
		assert.False(t, motion.Fine)
	})
}

func TestFeedbackMovesEncoderWithoutEcho(t *testing.T) {
	s, c := newSurface(t, fixedConfig())

	require.NoError(t, s.Inject(protocol.Event{Type: protocol.ControlChange, Control: 6, Value: 127}))
	step(t, s, 2)

	assert.Equal(t, uint16(encoder.Max), s.Bank(0).Encoder(3).Value())
	assert.Empty(t, c.all())

	turn(t, s, 3, -1)
	assert.Equal(t, uint16(encoder.Max-1500), s.Bank(0).Encoder(3).Value())
	assert.Equal(t, []uint8{124}, c.values(6))
}

func TestFeedbackReachesInactiveBanks(t *testing.T) {
	s, _ := newSurface(t, fixedConfig())

	// bank 3 encoder 15 owns controllers 126 and 127
	require.NoError(t, s.Inject(protocol.Event{Type: protocol.ControlChange, Control: 127, Value: 127}))
	step(t, s, 1)
	assert.Equal(t, uint16(encoder.Max), s.Bank(3).Encoder(15).Value())
}

func TestFeedbackSkipsMovingEncoder(t *testing.T) {
	s, _ := newSurface(t, fixedConfig())

	require.NoError(t, s.Simulator().Turn(3, 1))
	step(t, s, 2)
	require.NotZero(t, s.Bank(0).Encoder(3).Encoder().Velocity())

	require.NoError(t, s.Inject(protocol.Event{Type: protocol.ControlChange, Control: 6, Value: 127}))
	step(t, s, 1)
	assert.Equal(t, uint16(1500), s.Bank(0).Encoder(3).Value())
}

func TestInjectFull(t *testing.T) {
	cfg := config.Default()
	cfg.Queues.MIDIIn = 1
	s, _ := newSurface(t, cfg)

	require.NoError(t, s.Inject(protocol.Event{Type: protocol.ControlChange}))
	assert.ErrorIs(t, s.Inject(protocol.Event{Type: protocol.ControlChange}), surfaceerr.ErrQueueFull)
	step(t, s, 1)
	assert.NoError(t, s.Inject(protocol.Event{Type: protocol.ControlChange}))
}

func TestSysExGet(t *testing.T) {
	yes := true
	cfg := config.Default()
	cfg.Overrides = []config.Override{{Bank: 1, Index: 2, Detent: &yes}}
	s, c := newSurface(t, cfg)

	reqs := []protocol.Request{
		{Cmd: protocol.CmdGet, Param: protocol.ParamDetent, Bank: 1, Encoder: 2},
		{Cmd: protocol.CmdGet, Param: protocol.ParamDetent, Bank: 0, Encoder: 2},
		{Cmd: protocol.CmdGet, Param: protocol.ParamSwitchMode, Bank: 0, Encoder: 0},
		{Cmd: protocol.CmdGet, Param: protocol.ParamActiveBank},
		{Cmd: protocol.CmdGet, Param: protocol.ParamVmapRGB, Bank: 0, Encoder: 0},
	}
	for _, r := range reqs {
		require.NoError(t, s.Inject(sysexEvent(r)))
	}
	step(t, s, 1)

	assert.Equal(t, [][]byte{
		protocol.Response(reqs[0], 1, protocol.StatusOK),
		protocol.Response(reqs[1], 0, protocol.StatusOK),
		protocol.Response(reqs[2], uint8(iodev.SwitchVmapCycle), protocol.StatusOK),
		protocol.Response(reqs[3], 0, protocol.StatusOK),
		protocol.Response(reqs[4], 0, protocol.StatusError),
	}, c.sysex())
	assert.Zero(t, s.Saves())
}

func TestSysExSet(t *testing.T) {
	var saves []CoreEvent
	s, c := newSurface(t, config.Default(), WithSaveHook(func(e CoreEvent) { saves = append(saves, e) }))

	tests := []struct {
		name   string
		req    protocol.Request
		status uint8
		check  func(t *testing.T)
	}{
		{
			name:   "switch mode",
			req:    protocol.Request{Cmd: protocol.CmdSet, Param: protocol.ParamSwitchMode, Bank: 0, Encoder: 1, Value: uint8(iodev.SwitchFineAdjustHold)},
			status: protocol.StatusOK,
			check: func(t *testing.T) {
				ctx := s.Bank(0).Switch(1).Context().(*iodev.EncoderSwitchContext)
				assert.Equal(t, iodev.SwitchFineAdjustHold, ctx.Mode)
			},
		},
		{
			name:   "detent",
			req:    protocol.Request{Cmd: protocol.CmdSet, Param: protocol.ParamDetent, Bank: 2, Encoder: 9, Value: 1},
			status: protocol.StatusOK,
			check:  func(t *testing.T) { assert.True(t, s.Bank(2).Encoder(9).Encoder().Detent) },
		},
		{
			name:   "active map",
			req:    protocol.Request{Cmd: protocol.CmdSet, Param: protocol.ParamVmapActive, Bank: 0, Encoder: 3, Value: 1},
			status: protocol.StatusOK,
			check:  func(t *testing.T) { assert.Equal(t, 1, s.Bank(0).Encoder(3).Maps.ActiveIndex()) },
		},
		{
			name:   "active bank",
			req:    protocol.Request{Cmd: protocol.CmdSet, Param: protocol.ParamActiveBank, Value: 3},
			status: protocol.StatusOK,
			check:  func(t *testing.T) { assert.Equal(t, 3, s.ActiveBank()) },
		},
		{
			name:   "unsupported param",
			req:    protocol.Request{Cmd: protocol.CmdSet, Param: protocol.ParamVmapRGB, Bank: 0, Encoder: 0, Value: 1},
			status: protocol.StatusError,
		},
		{
			name:   "encoder out of range",
			req:    protocol.Request{Cmd: protocol.CmdSet, Param: protocol.ParamDetent, Bank: 0, Encoder: 20, Value: 1},
			status: protocol.StatusError,
		},
		{
			name:   "bad switch mode",
			req:    protocol.Request{Cmd: protocol.CmdSet, Param: protocol.ParamSwitchMode, Bank: 0, Encoder: 0, Value: 99},
			status: protocol.StatusError,
		},
	}

	ok := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(c.sysex())
			require.NoError(t, s.Inject(sysexEvent(tt.req)))
			step(t, s, 1)

			replies := c.sysex()
			require.Len(t, replies, before+1)
			assert.Equal(t, protocol.Response(tt.req, 0, tt.status), replies[before])
			if tt.check != nil {
				tt.check(t)
			}
		})
		if tt.status == protocol.StatusOK {
			ok++
		}
	}
	assert.Equal(t, uint64(ok), s.Saves())
	require.Len(t, saves, ok)
	assert.Equal(t, SaveRequest, saves[0].Type)
}

func TestSysExIgnoresForeignAndStop(t *testing.T) {
	s, c := newSurface(t, config.Default())

	require.NoError(t, s.Inject(protocol.Event{Type: protocol.SysEx, Data: []byte{0x7E, 0x00, 0x06, 0x01}}))
	require.NoError(t, s.Inject(sysexEvent(protocol.Request{Cmd: protocol.CmdStop})))
	step(t, s, 1)

	assert.Empty(t, c.sysex())
}

func TestMIDIOutDropsAreCounted(t *testing.T) {
	cfg := fixedConfig()
	cfg.Queues.MIDIOut = 1
	s, c := newSurface(t, cfg)

	turn(t, s, 0, 1)

	assert.Len(t, c.all(), 1)
	for _, st := range s.Bus().Stats() {
		if st.ID == event.MIDIOut {
			assert.Equal(t, uint64(1), st.Drops)
		}
	}
}

func TestSnapshot(t *testing.T) {
	s, _ := newSurface(t, fixedConfig())
	turn(t, s, 2, 4)
	pressEncoder(t, s, 5, true)

	st := s.Snapshot()
	assert.Equal(t, 0, st.ActiveBank)
	assert.Equal(t, 4, st.Banks)
	require.Len(t, st.Encoders, 16)
	require.Len(t, st.SideSwitches, 6)
	assert.Len(t, st.Channels, int(event.NumChannels))

	e := st.Encoders[2]
	assert.Equal(t, uint16(6000), e.Value)
	assert.Equal(t, "vmap-cycle", e.SwitchMode)
	assert.Equal(t, "overlay", e.VmapMode)
	require.Len(t, e.Maps, 2)
	assert.Equal(t, int32(11), e.Maps[0].Last)
	assert.True(t, e.Maps[0].Illuminated)

	assert.True(t, st.Encoders[5].Pressed)
	assert.Equal(t, 1, st.Encoders[5].ActiveMap)
	assert.Equal(t, uint64(8), st.Sent)
}

func TestRunAndDo(t *testing.T) {
	s, c := newSurface(t, fixedConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, s.Simulator().Turn(0, 5))
	require.Eventually(t, func() bool {
		var v uint16
		err := s.Do(ctx, func(s *Surface) error {
			v = s.Bank(0).Encoder(0).Value()
			return nil
		})
		return err == nil && v == 7500
	}, 2*time.Second, 5*time.Millisecond)

	sentinel := errors.New("boom")
	assert.ErrorIs(t, s.Do(ctx, func(*Surface) error { return sentinel }), sentinel)

	cancel()
	require.NoError(t, <-done)
	assert.Len(t, c.values(0), 5)

	assert.ErrorIs(t, s.Do(ctx, func(*Surface) error { return nil }), context.Canceled)
}
