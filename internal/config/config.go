// Package config resolves the watchdog's runtime configuration: watch
// paths, exclusion sets, the declaration pattern for the project's
// primary language, and user preference overrides.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/vigil/internal/db/sqlite"
	"github.com/thebtf/vigil/internal/languages"
)

// MovePolicy selects how a move/rename event is analyzed.
type MovePolicy string

const (
	// MoveRecreate treats a move as a deletion at the source path plus
	// a creation at the destination.
	MoveRecreate MovePolicy = "recreate"
	// MoveRename keeps the file's identity and diffs only the
	// destination content.
	MoveRename MovePolicy = "rename"
)

// DefaultDebounce is the quiet period a path must hold before its last
// event is analyzed.
const DefaultDebounce = 2 * time.Second

// DefaultExcludedDirs are directory names never watched or analyzed
// unless the user overrides the set.
var DefaultExcludedDirs = []string{
	".git",
	".hg",
	".svn",
	".idea",
	".vscode",
	".vigil",
	".cache",
	".venv",
	"venv",
	"__pycache__",
	"node_modules",
	"vendor",
	"dist",
	"build",
	"target",
}

// DefaultExcludedExtensions are file extensions never analyzed unless
// the user overrides the set.
var DefaultExcludedExtensions = []string{
	".pyc",
	".pyo",
	".class",
	".o",
	".so",
	".exe",
	".bin",
	".db",
	".log",
	".tmp",
	".swp",
	".bak",
}

// Preference keys read from the preferences store.
const (
	PrefExcludedDirs       = "watchdog_excluded_dirs"
	PrefExcludedExtensions = "watchdog_excluded_extensions"
	PrefMovePolicy         = "watchdog_move_policy"
	PrefDebounceSeconds    = "watchdog_debounce_seconds"
)

// ExclusionConfig decides which paths the watchdog ignores. Directory
// entries are matched per path segment; plain names match exactly and
// glob metacharacters are honored. Extensions are matched on the final
// path element, case-insensitively.
type ExclusionConfig struct {
	dirs     []string
	exts     []string
	compiled []glob.Glob
	extSet   map[string]struct{}
}

// NewExclusionConfig compiles an exclusion set. Returns an error if a
// directory pattern does not compile.
func NewExclusionConfig(dirs, exts []string) (*ExclusionConfig, error) {
	e := &ExclusionConfig{
		dirs:   dirs,
		exts:   exts,
		extSet: make(map[string]struct{}, len(exts)),
	}
	for _, d := range dirs {
		g, err := glob.Compile(d)
		if err != nil {
			return nil, fmt.Errorf("exclusion pattern %q: %w", d, err)
		}
		e.compiled = append(e.compiled, g)
	}
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		e.extSet[ext] = struct{}{}
	}
	return e, nil
}

// defaultExclusions compiles the builtin sets. The builtins are plain
// names, so compilation cannot fail.
func defaultExclusions() *ExclusionConfig {
	e, err := NewExclusionConfig(DefaultExcludedDirs, DefaultExcludedExtensions)
	if err != nil {
		panic(err)
	}
	return e
}

// ExcludesDir reports whether a single directory name is excluded.
func (e *ExclusionConfig) ExcludesDir(name string) bool {
	for _, g := range e.compiled {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Excludes reports whether a watch-root-relative path is excluded,
// either by extension or by any of its path segments.
func (e *ExclusionConfig) Excludes(relPath string) bool {
	if ext := strings.ToLower(filepath.Ext(relPath)); ext != "" {
		if _, ok := e.extSet[ext]; ok {
			return true
		}
	}
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		if e.ExcludesDir(seg) {
			return true
		}
	}
	return false
}

// Config is the fully-resolved watchdog configuration. It is built
// once at startup and read-only afterwards.
type Config struct {
	ProjectRoot     string
	WatchRoot       string
	WorkDir         string
	ReminderLogPath string
	PIDFilePath     string
	PrimaryLanguage string
	Pattern         *regexp.Regexp // nil when the language is unrecognized
	Exclusions      *ExclusionConfig
	MovePolicy      MovePolicy
	Debounce        time.Duration
}

// VigilDir returns the assistant's data directory for a project.
func VigilDir(root string) string {
	return filepath.Join(root, ".vigil")
}

// ProjectDBPath returns the project database location.
func ProjectDBPath(root string) string {
	return filepath.Join(VigilDir(root), "project.db")
}

// PreferencesDBPath returns the preferences database location.
func PreferencesDBPath(root string) string {
	return filepath.Join(VigilDir(root), "preferences.db")
}

// WatchdogDir returns the watchdog's working directory for a project.
func WatchdogDir(root string) string {
	return filepath.Join(VigilDir(root), "watchdog")
}

// ReminderLogPath returns the reminder log location.
func ReminderLogPath(root string) string {
	return filepath.Join(WatchdogDir(root), "reminders.json")
}

// PIDFilePath returns the pid file location.
func PIDFilePath(root string) string {
	return filepath.Join(WatchdogDir(root), "watchdog.pid")
}

// LanguagesPath returns the optional per-project pattern override file.
func LanguagesPath(root string) string {
	return filepath.Join(WatchdogDir(root), "languages.yml")
}

// Resolve builds the watchdog configuration for a project. The project
// store is required; prefs may be nil when no preferences database
// exists. Missing or malformed preferences fall back to defaults and
// never fail resolution.
func Resolve(ctx context.Context, root string, project *sqlite.ProjectStore, prefs *sqlite.PreferenceStore, reg *languages.Registry) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	srcDir, found, err := project.InfrastructureValue(ctx, "source_directory")
	if err != nil {
		return nil, fmt.Errorf("read source_directory: %w", err)
	}
	if !found || strings.TrimSpace(srcDir) == "" {
		return nil, fmt.Errorf("source_directory is not set in the infrastructure table")
	}

	watchRoot := srcDir
	if !filepath.IsAbs(watchRoot) {
		watchRoot = filepath.Join(absRoot, srcDir)
	}
	watchRoot = filepath.Clean(watchRoot)

	info, err := os.Stat(watchRoot)
	if err != nil {
		return nil, fmt.Errorf("watch root %s: %w", watchRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", watchRoot)
	}

	cfg := &Config{
		ProjectRoot:     absRoot,
		WatchRoot:       watchRoot,
		WorkDir:         WatchdogDir(absRoot),
		ReminderLogPath: ReminderLogPath(absRoot),
		PIDFilePath:     PIDFilePath(absRoot),
		MovePolicy:      MoveRecreate,
		Debounce:        DefaultDebounce,
	}

	lang, found, err := project.InfrastructureValue(ctx, "primary_language")
	if err != nil {
		return nil, fmt.Errorf("read primary_language: %w", err)
	}
	cfg.PrimaryLanguage = lang
	if found {
		if re, ok := reg.Get(lang); ok {
			cfg.Pattern = re
		} else {
			log.Warn().Str("language", lang).Msg("No declaration pattern for primary language, function diffs disabled")
		}
	} else {
		log.Warn().Msg("primary_language is not set, function diffs disabled")
	}

	dirs := DefaultExcludedDirs
	exts := DefaultExcludedExtensions
	if override, ok := listPreference(ctx, prefs, PrefExcludedDirs); ok {
		dirs = override
	}
	if override, ok := listPreference(ctx, prefs, PrefExcludedExtensions); ok {
		exts = override
	}

	exclusions, err := NewExclusionConfig(dirs, exts)
	if err != nil {
		log.Warn().Err(err).Msg("User exclusion set rejected, using defaults")
		exclusions = defaultExclusions()
	}
	cfg.Exclusions = exclusions

	if raw, ok := stringPreference(ctx, prefs, PrefMovePolicy); ok {
		switch MovePolicy(strings.ToLower(strings.TrimSpace(raw))) {
		case MoveRecreate:
			cfg.MovePolicy = MoveRecreate
		case MoveRename:
			cfg.MovePolicy = MoveRename
		default:
			log.Warn().Str("value", raw).Msg("Unknown move policy, using recreate")
		}
	}

	if raw, ok := stringPreference(ctx, prefs, PrefDebounceSeconds); ok {
		if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			if secs < 1 {
				secs = 1
			}
			if secs > 60 {
				secs = 60
			}
			cfg.Debounce = time.Duration(secs) * time.Second
		} else {
			log.Warn().Str("value", raw).Msg("Unparseable debounce preference, using default")
		}
	}

	return cfg, nil
}

// stringPreference reads a raw preference value. Store errors are
// logged and treated as an unset preference.
func stringPreference(ctx context.Context, prefs *sqlite.PreferenceStore, key string) (string, bool) {
	if prefs == nil {
		return "", false
	}
	value, found, err := prefs.Value(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Preference lookup failed, using default")
		return "", false
	}
	return value, found
}

// listPreference reads a JSON string-array preference. Malformed JSON
// is logged and treated as an unset preference.
func listPreference(ctx context.Context, prefs *sqlite.PreferenceStore, key string) ([]string, bool) {
	raw, found := stringPreference(ctx, prefs, key)
	if !found {
		return nil, false
	}

	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Malformed preference JSON, using default")
		return nil, false
	}
	return values, true
}
