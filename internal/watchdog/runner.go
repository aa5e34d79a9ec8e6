// Package watchdog wires the event source, orchestrator, analyzer,
// and reminder store into one supervised pipeline for the life of a
// watch session.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/vigil/internal/analyzer"
	"github.com/thebtf/vigil/internal/config"
	"github.com/thebtf/vigil/internal/daemon"
	"github.com/thebtf/vigil/internal/db/sqlite"
	"github.com/thebtf/vigil/internal/metrics"
	"github.com/thebtf/vigil/internal/reminders"
	"github.com/thebtf/vigil/internal/watcher"
)

// heartbeatInterval is how often the supervisor confirms the event
// source is still delivering.
const heartbeatInterval = time.Second

// ErrSourceDied reports that the event delivery loop stopped without
// being asked to.
var ErrSourceDied = errors.New("event source stopped unexpectedly")

// Runner owns one watch session over a project.
type Runner struct {
	cfg       *config.Config
	reminders *reminders.Store
	orch      *watcher.Orchestrator
	source    *watcher.Source
}

// New wires the full pipeline for the resolved configuration. watch
// may be nil to run without instruments.
func New(cfg *config.Config, projects *sqlite.ProjectStore, watch *metrics.Watch) (*Runner, error) {
	rem := reminders.NewStore(cfg.ReminderLogPath)
	an := analyzer.New(cfg, projects, rem, watch)

	orch := watcher.NewOrchestrator(watcher.OrchestratorConfig{
		WatchRoot:  cfg.WatchRoot,
		Exclusions: cfg.Exclusions,
		MovePolicy: cfg.MovePolicy,
		Debounce:   cfg.Debounce,
		Handler: func(event watcher.FileChangeEvent) {
			an.Analyze(context.Background(), event)
		},
		Metrics: watch,
	})

	source, err := watcher.NewSource(cfg.WatchRoot, cfg.Exclusions, orch.Handle)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:       cfg,
		reminders: rem,
		orch:      orch,
		source:    source,
	}, nil
}

// Run starts the session and blocks until ctx is cancelled or the
// event source dies. The reminder log is reset exactly once here, at
// session start; shutdown drops pending debounce entries so nothing is
// appended past the stop.
func (r *Runner) Run(ctx context.Context) error {
	livePID, err := daemon.LivePID(r.cfg.PIDFilePath)
	if err != nil {
		log.Warn().Err(err).Msg("PID file unreadable, replacing it")
	}
	if livePID != 0 && livePID != os.Getpid() {
		return fmt.Errorf("watchdog already running for this project (pid %d)", livePID)
	}
	if err := daemon.WritePIDFile(r.cfg.PIDFilePath); err != nil {
		return err
	}
	defer func() {
		if err := daemon.RemovePIDFile(r.cfg.PIDFilePath); err != nil {
			log.Warn().Err(err).Msg("Failed to remove pid file")
		}
	}()

	if err := r.reminders.Clear(); err != nil {
		return fmt.Errorf("reset reminder log: %w", err)
	}

	if err := r.source.Start(); err != nil {
		return fmt.Errorf("start watching: %w", err)
	}
	defer func() {
		if err := r.source.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop event source")
		}
		r.orch.Close()
	}()

	log.Info().
		Int("pid", os.Getpid()).
		Str("watch_root", r.cfg.WatchRoot).
		Str("reminder_log", r.cfg.ReminderLogPath).
		Msg("Watchdog running")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-groupCtx.Done()
		return groupCtx.Err()
	})
	group.Go(func() error {
		return r.heartbeat(groupCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// heartbeat wakes every second so the process stays responsive to
// cancellation and notices a dead event source instead of blocking on
// a single join.
func (r *Runner) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !r.source.IsRunning() {
				return ErrSourceDied
			}
		}
	}
}

// Reminders exposes the session's reminder store.
func (r *Runner) Reminders() *reminders.Store {
	return r.reminders
}
