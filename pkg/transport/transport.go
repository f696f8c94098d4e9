// Package transport drains protocol events from the surface and delivers
// them to MIDI ports, recordings and monitors.
package transport

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"gitlab.com/gomidi/midi/v2"

	"github.com/james-see/twister2midi/pkg/protocol"
)

// Sink receives encoded MIDI messages.
type Sink interface {
	Send(msg midi.Message) error
}

// SinkFunc adapts a function, such as the sender returned by midi.SendTo,
// to a Sink.
type SinkFunc func(msg midi.Message) error

// Send implements Sink.
func (f SinkFunc) Send(msg midi.Message) error { return f(msg) }

// Serializer encodes protocol events and fans them out to every sink. A
// failing sink is logged and does not stop delivery to the others.
type Serializer struct {
	sinks  []Sink
	logger *slog.Logger

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewSerializer returns a serializer delivering to sinks.
func NewSerializer(logger *slog.Logger, sinks ...Sink) *Serializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Serializer{sinks: sinks, logger: logger}
}

// Add appends a sink. Call before the surface starts running.
func (s *Serializer) Add(sink Sink) { s.sinks = append(s.sinks, sink) }

// Handle encodes evt and sends it. It is the single consumer of the MIDI
// out channel.
func (s *Serializer) Handle(evt protocol.Event) error {
	msg, err := evt.Message()
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("serialize %s: %w", evt, err)
	}
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Send(msg); err != nil {
			s.logger.Warn("midi send failed", "message", msg.String(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		s.failed.Add(1)
		return firstErr
	}
	s.sent.Add(1)
	return nil
}

// Sent returns the number of events delivered to every sink.
func (s *Serializer) Sent() uint64 { return s.sent.Load() }

// Failed returns the number of events that failed to encode or send.
func (s *Serializer) Failed() uint64 { return s.failed.Load() }
