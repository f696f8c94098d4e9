// Package config holds the board configuration of the surface and loads it
// from TOML files.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/james-see/twister2midi/pkg/encoder"
	"github.com/james-see/twister2midi/pkg/iodev"
	"github.com/james-see/twister2midi/pkg/protocol"
	"github.com/james-see/twister2midi/pkg/scan"
	"github.com/james-see/twister2midi/pkg/surfaceerr"
	"github.com/james-see/twister2midi/pkg/virtmap"
)

// Hardware limits of the scan frame.
const (
	MaxEncoders     = 16
	MaxSideSwitches = 8
)

// Config describes the board and how its controls are mapped.
type Config struct {
	Encoders       int           `toml:"encoders" json:"encoders"`
	Banks          int           `toml:"banks" json:"banks"`
	MapsPerEncoder int           `toml:"maps_per_encoder" json:"maps_per_encoder"`
	SideSwitches   int           `toml:"side_switches" json:"side_switches"`
	DebounceDepth  int           `toml:"debounce_depth" json:"debounce_depth"`
	ScanInterval   time.Duration `toml:"scan_interval" json:"scan_interval"`

	InitialValue uint16           `toml:"initial_value" json:"initial_value"`
	Detent       bool             `toml:"detent" json:"detent"`
	SwitchMode   iodev.SwitchMode `toml:"switch_mode" json:"switch_mode"`
	VmapMode     virtmap.Mode     `toml:"vmap_mode" json:"vmap_mode"`

	Queues Queues          `toml:"queues" json:"queues"`
	Motion Motion          `toml:"motion" json:"motion"`
	MIDI   MIDI            `toml:"midi" json:"midi"`
	API    API             `toml:"api" json:"api"`
	GPIO   scan.GPIOConfig `toml:"gpio" json:"gpio"`

	// Overrides replace the generated settings of single encoders.
	Overrides []Override `toml:"encoder" json:"encoder,omitempty"`
}

// Queues sizes the event channels.
type Queues struct {
	Core    int `toml:"core" json:"core"`
	IO      int `toml:"io" json:"io"`
	MIDIIn  int `toml:"midi_in" json:"midi_in"`
	MIDIOut int `toml:"midi_out" json:"midi_out"`
}

// Motion tunes the encoder motion model.
type Motion struct {
	Accelerate  bool    `toml:"accelerate" json:"accelerate"`
	FixedStep   int32   `toml:"fixed_step" json:"fixed_step"`
	AccelTable  []int32 `toml:"accel_table" json:"accel_table"`
	MaxVelocity int32   `toml:"max_velocity" json:"max_velocity"`
	MinStep     int32   `toml:"min_step" json:"min_step"`
	FineDivisor int32   `toml:"fine_divisor" json:"fine_divisor"`
}

// MIDI selects channels, numbering and ports.
type MIDI struct {
	Channel uint8 `toml:"channel" json:"channel"`
	// FirstCC is the controller of the first map of the first encoder of
	// the first bank; following maps count up from it.
	FirstCC uint8   `toml:"first_cc" json:"first_cc"`
	Output  string  `toml:"output" json:"output"`
	Input   string  `toml:"input" json:"input"`
	Virtual string  `toml:"virtual" json:"virtual"`
	Record  string  `toml:"record" json:"record"`
	Tempo   float64 `toml:"tempo" json:"tempo"`
}

// API configures the HTTP server.
type API struct {
	Port int `toml:"port" json:"port"`
}

// Override configures one encoder of one bank.
type Override struct {
	Bank       int               `toml:"bank" json:"bank"`
	Index      int               `toml:"index" json:"index"`
	Detent     *bool             `toml:"detent" json:"detent,omitempty"`
	SwitchMode *iodev.SwitchMode `toml:"switch_mode" json:"switch_mode,omitempty"`
	VmapMode   *virtmap.Mode     `toml:"vmap_mode" json:"vmap_mode,omitempty"`
	Maps       []Map             `toml:"map" json:"map,omitempty"`
}

// Map is the static description of one virtual map.
type Map struct {
	Position virtmap.Position `toml:"position" json:"position"`
	Range    virtmap.Range    `toml:"range" json:"range"`
	Proto    protocol.Config  `toml:"proto" json:"proto"`
}

// Default returns the stock board: sixteen encoders in four banks with two
// maps each, six side switches.
func Default() Config {
	m := encoder.DefaultConfig()
	return Config{
		Encoders:       16,
		Banks:          4,
		MapsPerEncoder: 2,
		SideSwitches:   6,
		DebounceDepth:  10,
		ScanInterval:   time.Millisecond,
		SwitchMode:     iodev.SwitchVmapCycle,
		VmapMode:       virtmap.Overlay,
		Queues: Queues{
			Core:    8,
			IO:      32,
			MIDIIn:  16,
			MIDIOut: 64,
		},
		Motion: Motion{
			Accelerate:  m.Accelerate,
			FixedStep:   m.FixedStep,
			AccelTable:  m.AccelTable,
			MaxVelocity: m.MaxVelocity,
			MinStep:     m.MinStep,
			FineDivisor: m.FineDivisor,
		},
		MIDI: MIDI{Tempo: 120},
		API:  API{Port: 8080},
	}
}

// Load reads a TOML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return Config{}, fmt.Errorf("config %s: unknown key %q: %w", path, undec[0].String(), surfaceerr.ErrBadParameter)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Write encodes cfg as TOML to path.
func Write(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes cfg as TOML to w.
func Encode(w io.Writer, cfg Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// EncoderConfig returns the motion model configuration.
func (c Config) EncoderConfig() encoder.Config {
	m := encoder.DefaultConfig()
	m.Accelerate = c.Motion.Accelerate
	m.FixedStep = c.Motion.FixedStep
	m.AccelTable = c.Motion.AccelTable
	m.MaxVelocity = c.Motion.MaxVelocity
	m.MinStep = c.Motion.MinStep
	m.FineDivisor = c.Motion.FineDivisor
	return m
}

// Validate checks sizes and every override.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format+": %w", append(args, surfaceerr.ErrBadParameter)...))
		}
	}

	check(c.Encoders >= 1 && c.Encoders <= MaxEncoders, "encoders %d not in 1..%d", c.Encoders, MaxEncoders)
	check(c.Banks >= 1, "banks %d", c.Banks)
	check(c.MapsPerEncoder >= 1, "maps per encoder %d", c.MapsPerEncoder)
	check(c.SideSwitches >= 0 && c.SideSwitches <= MaxSideSwitches, "side switches %d not in 0..%d", c.SideSwitches, MaxSideSwitches)
	check(c.DebounceDepth >= 1, "debounce depth %d", c.DebounceDepth)
	check(c.ScanInterval > 0, "scan interval %s", c.ScanInterval)
	check(c.SwitchMode.Valid(), "switch mode %s", c.SwitchMode)
	check(c.Queues.Core >= 1 && c.Queues.IO >= 1 && c.Queues.MIDIIn >= 1 && c.Queues.MIDIOut >= 1, "queue sizes %+v", c.Queues)
	check(c.MIDI.Channel <= 15, "midi channel %d", c.MIDI.Channel)
	check(c.MIDI.Tempo > 0, "tempo %g", c.MIDI.Tempo)
	check(c.API.Port >= 0 && c.API.Port <= 65535, "api port %d", c.API.Port)
	if err := c.EncoderConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	for i, o := range c.Overrides {
		check(o.Bank >= 0 && o.Bank < c.Banks, "encoder override %d: bank %d", i, o.Bank)
		check(o.Index >= 0 && o.Index < c.Encoders, "encoder override %d: index %d", i, o.Index)
		check(len(o.Maps) <= c.MapsPerEncoder, "encoder override %d: %d maps, at most %d", i, len(o.Maps), c.MapsPerEncoder)
		if o.SwitchMode != nil {
			check(o.SwitchMode.Valid(), "encoder override %d: switch mode %s", i, o.SwitchMode)
		}
		for j, m := range o.Maps {
			vm := virtmap.New(m.Position, m.Range, m.Proto)
			if err := vm.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("encoder override %d map %d: %w", i, j, err))
			}
		}
	}

	if c.GPIO.Chip != "" {
		if err := c.GPIO.Validate(c.Encoders, c.SideSwitches); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Maps returns the maps of encoder index in bank. Overridden encoders use
// their configured maps; the rest get absolute CC maps over the full
// encoder range, numbered consecutively from FirstCC across banks.
func (c Config) Maps(bank, index int) []Map {
	if o := c.override(bank, index); o != nil && len(o.Maps) > 0 {
		return o.Maps
	}
	out := make([]Map, c.MapsPerEncoder)
	base := (bank*c.Encoders + index) * c.MapsPerEncoder
	for v := range out {
		out[v] = Map{
			Position: virtmap.Position{Start: uint16(encoder.Min), Stop: uint16(encoder.Max)},
			Range:    virtmap.Range{Lower: 0, Upper: 127},
			Proto:    protocol.CC(c.MIDI.Channel, uint8((int(c.MIDI.FirstCC)+base+v)%128)),
		}
	}
	return out
}

// EncoderSettings returns the detent, switch mode and map mode of encoder
// index in bank.
func (c Config) EncoderSettings(bank, index int) (detent bool, sw iodev.SwitchMode, mode virtmap.Mode) {
	detent, sw, mode = c.Detent, c.SwitchMode, c.VmapMode
	if o := c.override(bank, index); o != nil {
		if o.Detent != nil {
			detent = *o.Detent
		}
		if o.SwitchMode != nil {
			sw = *o.SwitchMode
		}
		if o.VmapMode != nil {
			mode = *o.VmapMode
		}
	}
	return
}

func (c Config) override(bank, index int) *Override {
	for i := range c.Overrides {
		if c.Overrides[i].Bank == bank && c.Overrides[i].Index == index {
			return &c.Overrides[i]
		}
	}
	return nil
}
