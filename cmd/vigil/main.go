// Package main provides the vigil watchdog entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/vigil/internal/config"
	"github.com/thebtf/vigil/internal/db/sqlite"
	"github.com/thebtf/vigil/internal/languages"
	"github.com/thebtf/vigil/internal/metrics"
	"github.com/thebtf/vigil/internal/watchdog"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// Parse flags
	debug := flag.Bool("debug", false, "Enable debug logging")
	logFormat := flag.String("log-format", "console", "Log format: console or json")
	flag.Parse()

	// Setup logging
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if *logFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
	}

	if flag.NArg() != 1 {
		log.Fatal().Msg("usage: vigil [flags] <project-root>")
	}
	root, err := filepath.Abs(flag.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid project root")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Shutting down watchdog")
		cancel()
	}()

	// Open the assistant's project store; the watchdog never creates it
	projectStore, err := sqlite.NewStore(sqlite.StoreConfig{Path: config.ProjectDBPath(root)})
	if err != nil {
		log.Fatal().Err(err).Msg("Project store unavailable")
	}
	defer projectStore.Close()
	projects := sqlite.NewProjectStore(projectStore)

	// Preferences are optional
	var prefs *sqlite.PreferenceStore
	prefStore, err := sqlite.NewStore(sqlite.StoreConfig{Path: config.PreferencesDBPath(root), ReadOnly: true})
	if err != nil {
		log.Warn().Err(err).Msg("Preferences store unavailable, using defaults")
	} else {
		defer prefStore.Close()
		prefs = sqlite.NewPreferenceStore(prefStore)
	}

	// Language registry with optional per-project overrides
	registry, err := languages.Load(config.LanguagesPath(root))
	if err != nil {
		log.Warn().Err(err).Msg("Language overrides unreadable, using builtins")
		registry = languages.Builtin()
	}

	cfg, err := config.Resolve(ctx, root, projects, prefs, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve configuration")
	}

	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create working directory")
	}

	watch, err := metrics.NewWatch()
	if err != nil {
		log.Warn().Err(err).Msg("Metrics unavailable")
	}

	runner, err := watchdog.New(cfg, projects, watch)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build watch pipeline")
	}

	log.Info().Str("project", root).Str("version", Version).Msg("Starting watchdog")
	if err := runner.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Watchdog error")
	}
}
