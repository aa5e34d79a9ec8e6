package watcher

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/vigil/internal/config"
	"github.com/thebtf/vigil/internal/metrics"
)

// Handler receives events after they settle.
type Handler func(FileChangeEvent)

// OrchestratorConfig wires a debounced orchestrator.
type OrchestratorConfig struct {
	WatchRoot  string
	Exclusions *config.ExclusionConfig
	MovePolicy config.MovePolicy
	Debounce   time.Duration
	Handler    Handler
	Metrics    *metrics.Watch
}

type pendingEvent struct {
	event FileChangeEvent
	timer *time.Timer
}

// Orchestrator coalesces bursts of events per path. Creations and
// modifications wait out a quiet period before dispatch, with the most
// recent kind winning; deletions dispatch immediately and cancel
// whatever was pending for the path.
type Orchestrator struct {
	watchRoot  string
	exclusions *config.ExclusionConfig
	policy     config.MovePolicy
	debounce   time.Duration
	handler    Handler
	metrics    *metrics.Watch

	mu      sync.Mutex
	pending map[string]*pendingEvent
	closed  bool
}

// NewOrchestrator builds an orchestrator. A zero Debounce falls back
// to the default quiet period.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = config.DefaultDebounce
	}
	return &Orchestrator{
		watchRoot:  filepath.Clean(cfg.WatchRoot),
		exclusions: cfg.Exclusions,
		policy:     cfg.MovePolicy,
		debounce:   debounce,
		handler:    cfg.Handler,
		metrics:    cfg.Metrics,
		pending:    make(map[string]*pendingEvent),
	}
}

// Handle ingests one event from the source. Excluded paths are
// discarded before any debounce state is created for them.
func (o *Orchestrator) Handle(event FileChangeEvent) {
	if o.metrics != nil {
		o.metrics.EventsReceived.Add(context.Background(), 1)
	}

	switch event.Kind {
	case Moved:
		o.handleMoved(event)
	case Deleted:
		if o.excluded(event.Path) {
			o.countExcluded()
			return
		}
		o.cancelPending(event.Path)
		o.dispatch(event)
	default:
		if o.excluded(event.Path) {
			o.countExcluded()
			return
		}
		o.schedule(event)
	}
}

// handleMoved applies the move policy. Under the recreate policy a
// move is split into an immediate deletion at the source and a
// debounced creation at the destination. Under the rename policy the
// move is debounced whole, keyed by its destination; a move into
// excluded space still surfaces the source-side deletion.
func (o *Orchestrator) handleMoved(event FileChangeEvent) {
	srcVisible := event.OldPath != "" && !o.excluded(event.OldPath)
	dstVisible := !o.excluded(event.Path)

	if !srcVisible && !dstVisible {
		o.countExcluded()
		return
	}

	if o.policy == config.MoveRename && dstVisible {
		if !srcVisible {
			event.OldPath = ""
			event.Kind = Created
		}
		o.schedule(event)
		return
	}

	if srcVisible {
		o.cancelPending(event.OldPath)
		o.dispatch(FileChangeEvent{Path: event.OldPath, Kind: Deleted, Time: event.Time})
	}
	if dstVisible && o.policy == config.MoveRecreate {
		o.schedule(FileChangeEvent{Path: event.Path, Kind: Created, Time: event.Time})
	}
}

// Flush settles every pending path immediately, in event-time order.
func (o *Orchestrator) Flush() {
	o.mu.Lock()
	events := make([]FileChangeEvent, 0, len(o.pending))
	for path, p := range o.pending {
		p.timer.Stop()
		events = append(events, p.event)
		delete(o.pending, path)
	}
	o.mu.Unlock()

	sort.Slice(events, func(i, j int) bool {
		if events[i].Time.Equal(events[j].Time) {
			return events[i].Path < events[j].Path
		}
		return events[i].Time.Before(events[j].Time)
	})
	for _, event := range events {
		o.dispatch(event)
	}
}

// Close drops all pending events without dispatching them and refuses
// further scheduling.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for path, p := range o.pending {
		p.timer.Stop()
		delete(o.pending, path)
	}
}

// Pending returns the number of paths waiting out their quiet period.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

func (o *Orchestrator) schedule(event FileChangeEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if p, ok := o.pending[event.Path]; ok {
		p.event = event
		p.timer.Reset(o.debounce)
		return
	}
	p := &pendingEvent{event: event}
	path := event.Path
	p.timer = time.AfterFunc(o.debounce, func() {
		o.settle(path)
	})
	o.pending[path] = p
}

// settle fires when a path's quiet period elapses. A stale timer that
// lost the race with a reset or cancel finds no entry and does nothing.
func (o *Orchestrator) settle(path string) {
	o.mu.Lock()
	p, ok := o.pending[path]
	if !ok {
		o.mu.Unlock()
		return
	}
	delete(o.pending, path)
	event := p.event
	o.mu.Unlock()

	o.dispatch(event)
}

func (o *Orchestrator) cancelPending(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.pending[path]; ok {
		p.timer.Stop()
		delete(o.pending, path)
	}
}

func (o *Orchestrator) dispatch(event FileChangeEvent) {
	log.Debug().
		Str("path", event.Path).
		Str("kind", event.Kind.String()).
		Msg("Dispatching file change")
	if o.handler != nil {
		o.handler(event)
	}
}

// excluded tests a path against the exclusion rules using its
// watch-root-relative form.
func (o *Orchestrator) excluded(path string) bool {
	if o.exclusions == nil {
		return false
	}
	rel, err := filepath.Rel(o.watchRoot, path)
	if err != nil {
		return false
	}
	return o.exclusions.Excludes(rel)
}

func (o *Orchestrator) countExcluded() {
	if o.metrics != nil {
		o.metrics.EventsExcluded.Add(context.Background(), 1)
	}
}
