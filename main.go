package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	charmlog "github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"huddle/hub/store"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	configPath := flag.String("config", "", "YAML config file path")
	host := flag.String("host", "", "Bind host (overrides config)")
	apiAddr := flag.String("api-addr", "", "Diagnostics HTTP address (overrides config; \"none\" disables)")
	dbPath := flag.String("db", "", "Store path (overrides config; default in-memory)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "hub",
	})
	if *debug {
		logger.SetLevel(charmlog.DebugLevel)
	}
	slog.SetDefault(slog.New(logger))

	if *showVersion {
		logger.Print("huddle hub " + Version)
		return
	}
	if RunCLI(flag.Args()) {
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfig(*configPath)
		if err != nil {
			slog.Error("load config", "path", *configPath, "err", err)
			os.Exit(1)
		}
	}
	if *host != "" {
		cfg.Host = *host
	}
	switch *apiAddr {
	case "":
	case "none":
		cfg.APIAddr = ""
	default:
		cfg.APIAddr = *apiAddr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	slog.Info("starting hub", "version", Version, "host", cfg.Host, "db", cfg.DBPath)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open store", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("close store", "err", err)
		}
	}()

	hub := NewHub(cfg, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("received interrupt, shutting down")
		cancel()
	}()

	if cfg.APIAddr != "" {
		api := NewAPIServer(hub)
		go api.Run(ctx, cfg.APIAddr)
	}

	if err := hub.Run(ctx); err != nil {
		slog.Error("hub error", "err", err)
		os.Exit(1)
	}
}
