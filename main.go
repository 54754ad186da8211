package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/postfixrelay/relayconf/internal/api"
	"github.com/postfixrelay/relayconf/internal/audit"
	"github.com/postfixrelay/relayconf/internal/config"
	"github.com/postfixrelay/relayconf/internal/reconciler"
	"github.com/postfixrelay/relayconf/internal/system"
)

func main() {
	// CLI flags
	serve := flag.Bool("serve", false, "Keep running: serve the status API and re-reconcile on SIGHUP")
	flag.Parse()

	// Initialize logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_FORMAT") != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set log level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("Starting relayconf")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	store, err := audit.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audit database")
	}
	defer store.Close()

	ctl := system.Exec{}
	rec := reconciler.New(cfg, ctl, store)

	runOnce := func() {
		rawConfig, err := loadDesiredState(cfg.StatePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read desired state")
		}
		result, err := rec.Run(rawConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("Reconciliation failed")
		}
		log.Info().
			Str("status", result.Status).
			Int("changed_files", result.ChangedFiles).
			Msg("Reconciliation finished")
	}

	runOnce()

	if !*serve {
		return
	}

	server := api.NewServer(store, ctl)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Status API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Reconcile again on SIGHUP, shut down on SIGINT/SIGTERM. Signals are
	// delivered serially here, so passes never overlap.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for sig := range signals {
		if sig == syscall.SIGHUP {
			log.Info().Msg("SIGHUP received, reconciling")
			runOnce()
			continue
		}
		break
	}

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
}

// loadDesiredState reads the flat desired-state document. A missing file
// means an all-defaults state, not an error.
func loadDesiredState(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("Desired-state document not found, using defaults")
			return map[string]any{}, nil
		}
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}
