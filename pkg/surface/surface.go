// Package surface assembles the control surface: scan source, devices,
// event channels, virtual maps and the MIDI transport, driven by a single
// main loop.
//
// All state is owned by the goroutine calling Step or Run. Other goroutines
// reach it through Do and Inject.
package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/james-see/twister2midi/pkg/config"
	"github.com/james-see/twister2midi/pkg/encoder"
	"github.com/james-see/twister2midi/pkg/event"
	"github.com/james-see/twister2midi/pkg/iodev"
	"github.com/james-see/twister2midi/pkg/protocol"
	"github.com/james-see/twister2midi/pkg/quadrature"
	"github.com/james-see/twister2midi/pkg/scan"
	"github.com/james-see/twister2midi/pkg/surfaceerr"
	"github.com/james-see/twister2midi/pkg/switches"
	"github.com/james-see/twister2midi/pkg/transport"
	"github.com/james-see/twister2midi/pkg/virtmap"
)

// CoreType tags a CoreEvent.
type CoreType uint8

const (
	BankChanged CoreType = iota + 1
	SaveRequest
)

func (t CoreType) String() string {
	switch t {
	case BankChanged:
		return "bank-changed"
	case SaveRequest:
		return "save-request"
	default:
		return "unknown"
	}
}

// CoreEvent is a surface wide state change.
type CoreEvent struct {
	Type CoreType `json:"type"`
	Bank int      `json:"bank"`
}

// Bank is one layer of encoders sharing the physical controls.
type Bank struct {
	Index int
	iodev.Registry
}

// Encoder returns encoder i of the bank, or nil.
func (b *Bank) Encoder(i int) *iodev.Device {
	d, err := b.Device(iodev.KindEncoder, i)
	if err != nil {
		return nil
	}
	return d
}

// Switch returns the push switch of encoder i, or nil.
func (b *Bank) Switch(i int) *iodev.Device {
	d, err := b.Device(iodev.KindEncoderSwitch, i)
	if err != nil {
		return nil
	}
	return d
}

// Surface is the whole input to protocol pipeline.
type Surface struct {
	cfg    config.Config
	logger *slog.Logger

	bus     event.Bus
	core    *event.Channel[CoreEvent]
	io      *event.Channel[iodev.Event]
	midiIn  *event.Channel[protocol.Event]
	midiOut *event.Channel[protocol.Event]

	sinks      []transport.Sink
	serializer *transport.Serializer
	drops      *event.DropReporter

	source scan.Source
	sim    *scan.Simulator
	frame  scan.Frame

	quads   []*quadrature.Decoder
	encSw   *switches.Group16
	sideSw  *switches.Group8
	banks   []*Bank
	sides   iodev.Registry
	active  int
	holding map[*iodev.Device]int

	inbox  chan command
	inject chan protocol.Event

	ticks  uint64
	saves  uint64
	onSave func(CoreEvent)
}

type command struct {
	fn   func(*Surface) error
	done chan error
}

// Option configures a Surface.
type Option func(*Surface)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Surface) { s.logger = l }
}

// WithSource replaces the default simulator with a hardware source.
func WithSource(src scan.Source) Option {
	return func(s *Surface) { s.source = src }
}

// WithSinks adds MIDI output sinks.
func WithSinks(sinks ...transport.Sink) Option {
	return func(s *Surface) { s.sinks = append(s.sinks, sinks...) }
}

// WithSaveHook is called for every save request.
func WithSaveHook(fn func(CoreEvent)) Option {
	return func(s *Surface) { s.onSave = fn }
}

// New builds a surface from cfg. Every encoder posts its initial value, so
// the first Step delivers a full state to IO subscribers.
func New(cfg config.Config, opts ...Option) (*Surface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Surface{
		cfg:     cfg,
		logger:  slog.Default(),
		holding: make(map[*iodev.Device]int),
		inbox:   make(chan command),
		inject:  make(chan protocol.Event, cfg.Queues.MIDIIn),
	}
	for _, o := range opts {
		o(s)
	}
	s.serializer = transport.NewSerializer(s.logger, s.sinks...)
	s.drops = event.NewDropReporter(s.logger, nil)

	if s.source == nil {
		sim, err := scan.NewSimulator(cfg.Encoders, cfg.SideSwitches)
		if err != nil {
			return nil, err
		}
		s.source, s.sim = sim, sim
	} else if sim, ok := s.source.(*scan.Simulator); ok {
		s.sim = sim
	}

	if err := s.initChannels(); err != nil {
		return nil, err
	}
	if err := s.initDevices(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Surface) initChannels() error {
	var err error
	q := s.cfg.Queues
	if s.core, err = event.NewChannel(event.Core.String(), q.Core,
		event.WithLogger[CoreEvent](s.logger), event.WithDropHook[CoreEvent](s.drops.Report)); err != nil {
		return err
	}
	if s.io, err = event.NewChannel(event.IO.String(), q.IO,
		event.WithLogger[iodev.Event](s.logger), event.WithDropHook[iodev.Event](s.drops.Report)); err != nil {
		return err
	}
	if s.midiIn, err = event.NewChannel(event.MIDIIn.String(), q.MIDIIn,
		event.WithLogger[protocol.Event](s.logger), event.WithDropHook[protocol.Event](s.drops.Report)); err != nil {
		return err
	}
	if s.midiOut, err = event.NewChannel(event.MIDIOut.String(), q.MIDIOut,
		event.WithSingleConsumer[protocol.Event](s.serializer.Handle),
		event.WithLogger[protocol.Event](s.logger), event.WithDropHook[protocol.Event](s.drops.Report)); err != nil {
		return err
	}

	for _, reg := range []struct {
		id event.ChannelID
		ch event.Processor
	}{
		{event.Core, s.core},
		{event.IO, s.io},
		{event.MIDIIn, s.midiIn},
		{event.MIDIOut, s.midiOut},
	} {
		if err := s.bus.Register(reg.id, reg.ch); err != nil {
			return err
		}
	}

	subs := []error{
		s.core.Subscribe("core", 0, s.handleCore),
		s.io.Subscribe("virtmap", 10, s.handleIO),
		s.midiIn.Subscribe("sysex", 2, s.handleSysEx),
		s.midiIn.Subscribe("feedback", 0, s.handleFeedback),
	}
	return errors.Join(subs...)
}

func (s *Surface) initDevices() error {
	var err error
	if s.encSw, err = switches.NewGroup[uint16](s.cfg.DebounceDepth); err != nil {
		return err
	}
	if s.sideSw, err = switches.NewGroup[uint8](s.cfg.DebounceDepth); err != nil {
		return err
	}

	s.quads = make([]*quadrature.Decoder, s.cfg.Encoders)
	for i := range s.quads {
		s.quads[i] = new(quadrature.Decoder)
	}

	motion := s.cfg.EncoderConfig()
	post := initPoster{s}
	for b := 0; b < s.cfg.Banks; b++ {
		bank := &Bank{Index: b}
		encs := make([]*iodev.Device, s.cfg.Encoders)
		sws := make([]*iodev.Device, s.cfg.Encoders)
		for e := range encs {
			detent, swMode, vmapMode := s.cfg.EncoderSettings(b, e)
			maps, err := virtmap.NewList(s.cfg.MapsPerEncoder)
			if err != nil {
				return err
			}
			maps.Mode = vmapMode
			for i, m := range s.cfg.Maps(b, e) {
				if err := maps.Assign(virtmap.New(m.Position, m.Range, m.Proto)); err != nil {
					return fmt.Errorf("bank %d encoder %d map %d: %w", b, e, i, err)
				}
			}

			state, err := encoder.New(motion, s.initialValue(detent), s.quads[e])
			if err != nil {
				return err
			}
			state.Detent = detent
			if encs[e], err = iodev.Init(iodev.KindEncoder, &iodev.EncoderContext{Motion: state}, e, maps, post); err != nil {
				return err
			}
			if sws[e], err = iodev.Init(iodev.KindEncoderSwitch, &iodev.EncoderSwitchContext{
				SwitchContext: iodev.SwitchContext{Group: s.encSw, Bit: e},
				Encoder:       encs[e],
				Mode:          swMode,
			}, e, nil, post); err != nil {
				return err
			}
		}
		if err := bank.Register(iodev.KindEncoder, encs); err != nil {
			return err
		}
		if err := bank.Register(iodev.KindEncoderSwitch, sws); err != nil {
			return err
		}
		s.banks = append(s.banks, bank)
	}

	sides := make([]*iodev.Device, s.cfg.SideSwitches)
	for i := range sides {
		if sides[i], err = iodev.Init(iodev.KindSwitch, &iodev.SwitchContext{Group: s.sideSw, Bit: i}, i, nil, post); err != nil {
			return err
		}
	}
	return s.sides.Register(iodev.KindSwitch, sides)
}

func (s *Surface) initialValue(detent bool) uint16 {
	if s.cfg.InitialValue == 0 && detent {
		return uint16(encoder.Mid)
	}
	return s.cfg.InitialValue
}

// initPoster keeps room in the IO queue while devices are created, since
// every encoder of every bank posts an initial event.
type initPoster struct{ s *Surface }

func (p initPoster) Post(evt iodev.Event) error {
	if p.s.io.Len() == p.s.io.Cap() {
		p.s.bus.ProcessAll()
	}
	return p.s.io.Post(evt)
}

// Step runs one main loop iteration: scan, decode and debounce, then
// dispatch every channel.
func (s *Surface) Step() error {
	s.drainInject()

	if err := s.source.Scan(&s.frame); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	s.encSw.Push(s.frame.EncoderSwitches)
	s.sideSw.Push(s.frame.SideSwitches)
	s.encSw.Debounce()
	s.sideSw.Debounce()

	bank := s.banks[s.active]
	for i, enc := range bank.Devices(iodev.KindEncoder) {
		var in iodev.Input
		if i < len(s.frame.Phases) {
			in = iodev.Input{A: s.frame.Phases[i].A, B: s.frame.Phases[i].B}
		}
		s.post(enc.Update(in, s.io))
	}
	for _, sw := range bank.Devices(iodev.KindEncoderSwitch) {
		s.post(sw.Update(iodev.Input{}, s.io))
	}
	for _, sw := range s.sides.Devices(iodev.KindSwitch) {
		s.post(sw.Update(iodev.Input{}, s.io))
	}

	s.bus.ProcessAll()
	s.ticks++
	return nil
}

// post logs posting failures other than drops, which the drop reporter
// already accounts for.
func (s *Surface) post(err error) {
	if err != nil && !errors.Is(err, surfaceerr.ErrQueueFull) {
		s.logger.Warn("post failed", "error", err)
	}
}

func (s *Surface) drainInject() {
	for {
		select {
		case evt := <-s.inject:
			s.post(s.midiIn.Post(evt))
		default:
			return
		}
	}
}

// Run steps the surface every scan interval until ctx is done, executing
// commands from Do between steps.
func (s *Surface) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.logger.Info("surface running",
		"encoders", s.cfg.Encoders,
		"banks", s.cfg.Banks,
		"scan_interval", s.cfg.ScanInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("surface stopped", "ticks", s.ticks)
			return nil
		case cmd := <-s.inbox:
			cmd.done <- cmd.fn(s)
		case <-ticker.C:
			if err := s.Step(); err != nil {
				s.logger.Error("step failed", "error", err)
			}
		}
	}
}

// Do runs fn on the goroutine executing Run and returns its error. It
// blocks until Run picks it up or ctx is done.
func (s *Surface) Do(ctx context.Context, fn func(*Surface) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case s.inbox <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inject queues an inbound protocol event from any goroutine. It never
// blocks; a full inbox returns surfaceerr.ErrQueueFull.
func (s *Surface) Inject(evt protocol.Event) error {
	select {
	case s.inject <- evt:
		return nil
	default:
		s.drops.Report("midi-in inbox", 0)
		return surfaceerr.ErrQueueFull
	}
}

// PostSave requests a save of the current state, delivered synchronously to
// the core channel handlers.
func (s *Surface) PostSave() error {
	return s.core.PostImmediate(CoreEvent{Type: SaveRequest, Bank: s.active})
}

// SelectBank makes bank b the one updated by scans.
func (s *Surface) SelectBank(b int) error {
	if b < 0 || b >= len(s.banks) {
		return fmt.Errorf("select bank %d of %d: %w", b, len(s.banks), surfaceerr.ErrBadParameter)
	}
	if b == s.active {
		return nil
	}
	s.active = b
	s.post(s.core.Post(CoreEvent{Type: BankChanged, Bank: b}))
	for _, enc := range s.banks[b].Devices(iodev.KindEncoder) {
		v := enc.Value()
		s.post(s.io.Post(iodev.Event{Kind: iodev.KindEncoder, Index: enc.Index(), Value: v, Previous: v, Device: enc}))
	}
	return nil
}

// ActiveBank returns the selected bank index.
func (s *Surface) ActiveBank() int { return s.active }

// Bank returns bank b, or nil.
func (s *Surface) Bank(b int) *Bank {
	if b < 0 || b >= len(s.banks) {
		return nil
	}
	return s.banks[b]
}

// Config returns the configuration the surface was built from.
func (s *Surface) Config() config.Config { return s.cfg }

// Simulator returns the scripted source, or nil with a hardware source.
func (s *Surface) Simulator() *scan.Simulator { return s.sim }

// Bus returns the event bus.
func (s *Surface) Bus() *event.Bus { return &s.bus }

// Serializer returns the MIDI output serializer.
func (s *Surface) Serializer() *transport.Serializer { return s.serializer }

// Ticks returns the number of completed steps.
func (s *Surface) Ticks() uint64 { return s.ticks }

// Saves returns the number of save requests handled.
func (s *Surface) Saves() uint64 { return s.saves }
