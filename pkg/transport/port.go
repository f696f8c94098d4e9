package transport

import (
	"fmt"
	"log/slog"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/james-see/twister2midi/pkg/protocol"
)

// PortSink sends to a MIDI output port through the registered driver.
type PortSink struct {
	out  drivers.Out
	send func(midi.Message) error
}

// NewPortSink opens out for sending.
func NewPortSink(out drivers.Out) (*PortSink, error) {
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", out.String(), err)
	}
	return &PortSink{out: out, send: send}, nil
}

// OpenPortSink finds an output port by name and opens it.
func OpenPortSink(name string) (*PortSink, error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("find output %q: %w", name, err)
	}
	return NewPortSink(out)
}

// Send implements Sink.
func (p *PortSink) Send(msg midi.Message) error { return p.send(msg) }

// Name returns the port name.
func (p *PortSink) Name() string { return p.out.String() }

// Close closes the port.
func (p *PortSink) Close() error { return p.out.Close() }

// Ports lists the names of the available MIDI ports.
func Ports() (ins, outs []string) {
	for _, in := range midi.GetInPorts() {
		ins = append(ins, in.String())
	}
	for _, out := range midi.GetOutPorts() {
		outs = append(outs, out.String())
	}
	return ins, outs
}

// Listen feeds the messages arriving on the input port named name to
// inject until stop is called. Messages the surface does not understand are
// ignored.
func Listen(name string, inject func(protocol.Event) error, logger *slog.Logger) (stop func(), err error) {
	if logger == nil {
		logger = slog.Default()
	}
	in, err := midi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("find input %q: %w", name, err)
	}
	return ListenTo(in, inject, logger)
}

// ListenTo is Listen on an already resolved port.
func ListenTo(in drivers.In, inject func(protocol.Event) error, logger *slog.Logger) (stop func(), err error) {
	name := in.String()
	stop, err = midi.ListenTo(in, func(msg midi.Message, _ int32) {
		evt, ok := protocol.FromMessage(msg)
		if !ok {
			logger.Debug("midi in: ignored message", "port", name, "message", msg.String())
			return
		}
		if err := inject(evt); err != nil {
			logger.Warn("midi in: dropped", "port", name, "event", evt.String(), "error", err)
		}
	}, midi.UseSysEx(), midi.HandleError(func(err error) {
		logger.Warn("midi in: listener error", "port", name, "error", err)
	}))
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", name, err)
	}
	return stop, nil
}

// MatchPort returns the first name containing substr, case insensitive.
func MatchPort(names []string, substr string) (string, bool) {
	substr = strings.ToLower(substr)
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), substr) {
			return n, true
		}
	}
	return "", false
}
