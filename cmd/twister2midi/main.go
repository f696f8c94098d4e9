// Package main is the entry point for the twister2midi CLI
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/james-see/twister2midi/pkg/api"
	"github.com/james-see/twister2midi/pkg/app"
	"github.com/james-see/twister2midi/pkg/config"
	"github.com/james-see/twister2midi/pkg/transport"
	"github.com/james-see/twister2midi/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFile  string
	debug       bool
	outputPort  string
	inputPort   string
	virtualPort string
	recordFile  string
	serverPort  int
	simulate    bool
)

var logger *slog.Logger

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "twister2midi",
	Short: "Turn encoder and switch input into MIDI",
	Long: `twister2midi runs a MIDI control surface: quadrature encoders with
acceleration, debounced switches, banks of virtual maps and a SysEx
parameter protocol, sending to hardware, virtual or recorded MIDI ports.

Examples:
  twister2midi run --config board.toml --output "IAC Driver"
  twister2midi run --virtual twister --record session.mid
  twister2midi tui
  twister2midi serve --port 8080
  twister2midi config init board.toml`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(debug)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the surface until interrupted",
	RunE:  runRun,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive surface simulator",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the surface with the API server",
	RunE:  runServe,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI ports",
	RunE:  runPorts,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and check board configurations",
}

var configInitCmd = &cobra.Command{
	Use:   "init <file.toml>",
	Short: "Write the default configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigInit,
}

var configCheckCmd = &cobra.Command{
	Use:   "check <file.toml>",
	Short: "Validate a configuration and print it resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigCheck,
}

var decodeCmd = &cobra.Command{
	Use:   "decode <file.mid>",
	Short: "Print the events of a recording",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecode,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Board configuration (TOML)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug logging")

	// Surface commands
	for _, cmd := range []*cobra.Command{runCmd, tuiCmd, serveCmd} {
		cmd.Flags().StringVarP(&outputPort, "output", "o", "", "MIDI output port (substring match)")
		cmd.Flags().StringVarP(&inputPort, "input", "i", "", "MIDI input port for feedback and SysEx")
		cmd.Flags().StringVar(&virtualPort, "virtual", "", "Create a virtual MIDI output port")
		cmd.Flags().StringVarP(&recordFile, "record", "r", "", "Record sent MIDI to a file")
	}
	runCmd.Flags().BoolVar(&simulate, "simulate", false, "Scan the simulator instead of gpio lines")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port (default from config)")

	// Add commands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(decodeCmd)
}

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// loadConfig reads --config over the defaults and applies the port flags.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return config.Config{}, err
		}
	}
	if outputPort != "" {
		cfg.MIDI.Output = outputPort
	}
	if inputPort != "" {
		cfg.MIDI.Input = inputPort
	}
	if virtualPort != "" {
		cfg.MIDI.Virtual = virtualPort
	}
	if recordFile != "" {
		cfg.MIDI.Record = recordFile
	}
	if serverPort != 0 {
		cfg.API.Port = serverPort
	}
	return cfg, nil
}

// openVirtual creates a virtual output with the rtmidi driver.
func openVirtual(name string) (drivers.Out, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	return drv.OpenVirtualOut(name)
}

func build(simulated bool) (*app.App, config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	a, err := app.Build(cfg, app.Options{
		Logger:      logger,
		OpenVirtual: openVirtual,
		Simulate:    simulated,
	})
	return a, cfg, err
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, _, err := build(simulate)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()
	return a.Surface.Run(ctx)
}

func runTUI(cmd *cobra.Command, args []string) error {
	// the TUI owns the terminal
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	slog.SetDefault(logger)

	a, _, err := build(true)
	if err != nil {
		return err
	}
	defer a.Close()
	return tui.Run(a.Surface, a.Monitor)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, cfg, err := build(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           api.New(a.Surface, a.Monitor, a.Recorder).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	done := make(chan error, 1)
	go func() { done <- a.Surface.Run(ctx) }()

	logger.Info("api server listening",
		"port", cfg.API.Port,
		"swagger", fmt.Sprintf("http://localhost:%d/swagger/index.html", cfg.API.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-done
		return err
	}
	return <-done
}

func runPorts(cmd *cobra.Command, args []string) error {
	ins, outs := transport.Ports()
	fmt.Println("Inputs:")
	for _, name := range ins {
		fmt.Printf("  %s\n", name)
	}
	fmt.Println("Outputs:")
	for _, name := range outs {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(args[0]); err == nil {
		return fmt.Errorf("%s already exists", args[0])
	}
	if err := config.Write(args[0], config.Default()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", args[0])
	return nil
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	return config.Encode(os.Stdout, cfg)
}

func runDecode(cmd *cobra.Command, args []string) error {
	entries, err := transport.ParseMIDIFile(args[0])
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%8d  %s\n", e.Tick, e.Event)
	}
	fmt.Printf("%d events\n", len(entries))
	return nil
}
