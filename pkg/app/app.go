// Package app wires a configured surface to its scan source, MIDI ports and
// recorder.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/james-see/twister2midi/pkg/config"
	"github.com/james-see/twister2midi/pkg/scan"
	"github.com/james-see/twister2midi/pkg/surface"
	"github.com/james-see/twister2midi/pkg/surfaceerr"
	"github.com/james-see/twister2midi/pkg/transport"
)

// monitorSize is the number of sent messages kept for display.
const monitorSize = 64

// Options adjust Build.
type Options struct {
	Logger *slog.Logger
	// OpenVirtual creates a virtual output port. Nil disables virtual
	// ports.
	OpenVirtual func(name string) (drivers.Out, error)
	// Simulate scans the simulator even when gpio lines are configured.
	Simulate bool
	// OnSave is called for every save request.
	OnSave func(surface.CoreEvent)
}

// App is a surface with its open resources.
type App struct {
	Surface  *surface.Surface
	Monitor  *transport.Monitor
	Recorder *transport.Recorder

	cfg     config.Config
	logger  *slog.Logger
	closers []func() error
}

// Build opens everything cfg asks for. On error, whatever was opened is
// closed again.
func Build(cfg config.Config, opts Options) (_ *App, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Monitor: transport.NewMonitor(monitorSize),
		cfg:     cfg,
		logger:  logger,
	}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	sinks := []transport.Sink{a.Monitor}
	if cfg.MIDI.Record != "" {
		a.Recorder = transport.NewRecorder(cfg.MIDI.Tempo)
		sinks = append(sinks, a.Recorder)
	}
	if cfg.MIDI.Output != "" {
		_, outs := transport.Ports()
		name, ok := transport.MatchPort(outs, cfg.MIDI.Output)
		if !ok {
			return nil, fmt.Errorf("output port %q not found (available: %s)", cfg.MIDI.Output, strings.Join(outs, ", "))
		}
		out, err := transport.OpenPortSink(name)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, out.Close)
		sinks = append(sinks, out)
		logger.Info("midi output opened", "port", out.Name())
	}
	if cfg.MIDI.Virtual != "" {
		if opts.OpenVirtual == nil {
			return nil, fmt.Errorf("virtual port %q: %w", cfg.MIDI.Virtual, surfaceerr.ErrUnsupported)
		}
		port, err := opts.OpenVirtual(cfg.MIDI.Virtual)
		if err != nil {
			return nil, fmt.Errorf("failed to open virtual port %q: %w", cfg.MIDI.Virtual, err)
		}
		out, err := transport.NewPortSink(port)
		if err != nil {
			port.Close()
			return nil, err
		}
		a.closers = append(a.closers, out.Close)
		sinks = append(sinks, out)
		logger.Info("virtual midi output opened", "port", cfg.MIDI.Virtual)
	}

	sopts := []surface.Option{surface.WithLogger(logger), surface.WithSinks(sinks...)}
	if opts.OnSave != nil {
		sopts = append(sopts, surface.WithSaveHook(opts.OnSave))
	}
	if cfg.GPIO.Chip != "" && !opts.Simulate {
		g, err := scan.OpenGPIO(cfg.GPIO)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		sopts = append(sopts, surface.WithSource(g))
		logger.Info("gpio source opened", "chip", cfg.GPIO.Chip, "encoders", len(cfg.GPIO.Encoders))
	}

	if a.Surface, err = surface.New(cfg, sopts...); err != nil {
		return nil, err
	}

	if cfg.MIDI.Input != "" {
		ins, _ := transport.Ports()
		name, ok := transport.MatchPort(ins, cfg.MIDI.Input)
		if !ok {
			return nil, fmt.Errorf("input port %q not found (available: %s)", cfg.MIDI.Input, strings.Join(ins, ", "))
		}
		stop, err := transport.Listen(name, a.Surface.Inject, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { stop(); return nil })
		logger.Info("midi input opened", "port", name)
	}
	return a, nil
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Close releases ports and lines and writes the recording, if any.
func (a *App) Close() error {
	err := a.closeAll()
	if a.Recorder != nil && a.Recorder.Len() > 0 {
		if werr := a.Recorder.WriteMIDIFile(a.cfg.MIDI.Record); werr != nil {
			err = errors.Join(err, werr)
		} else {
			a.logger.Info("recording written", "file", a.cfg.MIDI.Record, "messages", a.Recorder.Len())
		}
	}
	return err
}
