package main

import (
	"fmt"
	"os"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was
// handled.
func RunCLI(args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("huddle hub %s\n", Version)
		return true
	case "check-config":
		return cliCheckConfig(args[1:])
	default:
		return false
	}
}

// cliCheckConfig validates a YAML config file and prints the resulting
// endpoint layout.
func cliCheckConfig(args []string) bool {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: hub check-config <file>")
		os.Exit(1)
	}
	cfg, err := LoadConfig(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("config OK\n")
	fmt.Printf("  control        %s\n", cfg.addr(cfg.ControlPort))
	fmt.Printf("  video          %s\n", cfg.addr(cfg.VideoPort))
	fmt.Printf("  audio          %s\n", cfg.addr(cfg.AudioPort))
	fmt.Printf("  screen-control %s\n", cfg.addr(cfg.ScreenControlPort))
	fmt.Printf("  screen-data    %s\n", cfg.addr(cfg.ScreenDataPort))
	fmt.Printf("  file           %s\n", cfg.addr(cfg.FilePort))
	if cfg.APIAddr != "" {
		fmt.Printf("  api            %s\n", cfg.APIAddr)
	}
	return true
}
