package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/vigil/internal/config"
)

// renamePairWindow is how long a rename-away notification is held
// waiting for the matching creation before it degrades to a deletion.
const renamePairWindow = 50 * time.Millisecond

// Source watches a directory tree and forwards normalized change
// events to a callback. The callback runs on the source's background
// goroutines, never on the caller's.
type Source struct {
	root       string
	exclusions *config.ExclusionConfig
	onEvent    func(FileChangeEvent)

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc

	mu            sync.Mutex
	running       bool
	renamePending string
	renameTimer   *time.Timer
}

// NewSource prepares a watcher over root. Events under excluded
// directories are never delivered because those directories are not
// watched; extension filtering is left to the consumer.
func NewSource(root string, exclusions *config.ExclusionConfig, onEvent func(FileChangeEvent)) (*Source, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Source{
		root:       filepath.Clean(root),
		exclusions: exclusions,
		onEvent:    onEvent,
		watcher:    fsw,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start registers watches for the whole tree and begins delivering
// events. Calling Start on a running source is a no-op.
func (s *Source) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	dirs, err := s.addRecursive(s.root)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	go s.watchLoop()

	log.Info().
		Str("root", s.root).
		Int("directories", dirs).
		Msg("File watching started")
	return nil
}

// Stop shuts the source down. Safe to call multiple times and before
// Start.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	if s.renameTimer != nil {
		s.renameTimer.Stop()
		s.renamePending = ""
	}
	s.mu.Unlock()

	s.cancel()
	err := s.watcher.Close()

	log.Info().Str("root", s.root).Msg("File watching stopped")
	return err
}

// IsRunning reports whether the delivery loop is still alive.
func (s *Source) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Root returns the watched directory.
func (s *Source) Root() string {
	return s.root
}

func (s *Source) watchLoop() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleRaw(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("File watcher error")
		}
	}
}

// handleRaw translates one fsnotify notification. Chmod-only events
// are dropped. Rename notifications only name the source path, so the
// event is held briefly and paired with the next file creation; if
// none arrives the rename degrades to a deletion.
func (s *Source) handleRaw(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	switch {
	case event.Op&fsnotify.Create != 0:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			s.watchNewDir(path)
			return
		}
		if old, ok := s.takePendingRename(); ok {
			s.emit(FileChangeEvent{Path: path, OldPath: old, Kind: Moved, Time: time.Now()})
			return
		}
		s.emit(FileChangeEvent{Path: path, Kind: Created, Time: time.Now()})

	case event.Op&fsnotify.Write != 0:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return
		}
		s.emit(FileChangeEvent{Path: path, Kind: Modified, Time: time.Now()})

	case event.Op&fsnotify.Remove != 0:
		s.emit(FileChangeEvent{Path: path, Kind: Deleted, Time: time.Now()})

	case event.Op&fsnotify.Rename != 0:
		s.holdRename(path)
	}
}

// watchNewDir adds a directory created after startup, unless it is
// excluded. Files already written inside it before the watch lands are
// picked up by the recursive add.
func (s *Source) watchNewDir(path string) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || s.excludedRel(rel) {
		return
	}
	if _, err := s.addRecursive(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to watch new directory")
		return
	}
	log.Debug().Str("path", path).Msg("Watching new directory")
}

// holdRename parks a rename-away path until either a creation pairs
// with it or the window expires. A second rename before the window
// closes flushes the first as a deletion.
func (s *Source) holdRename(path string) {
	s.mu.Lock()
	if s.renamePending != "" {
		prev := s.renamePending
		s.renameTimer.Stop()
		s.renamePending = ""
		s.mu.Unlock()
		s.emit(FileChangeEvent{Path: prev, Kind: Deleted, Time: time.Now()})
		s.mu.Lock()
	}
	s.renamePending = path
	s.renameTimer = time.AfterFunc(renamePairWindow, func() {
		s.mu.Lock()
		if s.renamePending != path {
			s.mu.Unlock()
			return
		}
		s.renamePending = ""
		s.mu.Unlock()
		s.emit(FileChangeEvent{Path: path, Kind: Deleted, Time: time.Now()})
	})
	s.mu.Unlock()
}

func (s *Source) takePendingRename() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renamePending == "" {
		return "", false
	}
	old := s.renamePending
	s.renamePending = ""
	s.renameTimer.Stop()
	return old, true
}

func (s *Source) emit(event FileChangeEvent) {
	if s.onEvent != nil {
		s.onEvent(event)
	}
}

// addRecursive walks dir and registers a watch on every directory that
// is not excluded. Returns the number of directories watched.
func (s *Source) addRecursive(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		if rel != "." && s.excludedRel(rel) {
			return filepath.SkipDir
		}
		if err := s.watcher.Add(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("walk %s: %w", dir, err)
	}
	return count, nil
}

// excludedRel reports whether any segment of the root-relative path
// names an excluded directory.
func (s *Source) excludedRel(rel string) bool {
	if s.exclusions == nil {
		return false
	}
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		if segment == "" || segment == "." || segment == ".." {
			continue
		}
		if s.exclusions.ExcludesDir(segment) {
			return true
		}
	}
	return false
}
