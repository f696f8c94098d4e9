// Package main is the entry point for the twister2midi API server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/james-see/twister2midi/pkg/api"
	"github.com/james-see/twister2midi/pkg/app"
	"github.com/james-see/twister2midi/pkg/config"
)

func main() {
	port := flag.Int("port", 0, "Server port (default from config)")
	configFile := flag.String("config", "", "Board configuration (TOML)")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
			os.Exit(1)
		}
	}
	if *port != 0 {
		cfg.API.Port = *port
	}

	a, err := app.Build(cfg, app.Options{Simulate: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Surface error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	go func() {
		if err := a.Surface.Run(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Surface stopped: %v\n", err)
		}
	}()

	fmt.Printf("Starting twister2midi API server on port %d...\n", cfg.API.Port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", cfg.API.Port)

	if err := api.New(a.Surface, a.Monitor, a.Recorder).StartServer(cfg.API.Port); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
