// Package analyzer compares settled file changes against the
// assistant's persisted model of the project and turns any drift into
// reminder records.
package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/vigil/internal/config"
	"github.com/thebtf/vigil/internal/db/sqlite"
	"github.com/thebtf/vigil/internal/metrics"
	"github.com/thebtf/vigil/internal/reminders"
	"github.com/thebtf/vigil/internal/watcher"
	"github.com/thebtf/vigil/pkg/models"
)

// Analyzer inspects one settled event at a time. It reads the project
// store but writes only the per-file modification marker; every other
// discrepancy becomes a reminder for the assistant to act on. The
// result for an event is a pure function of the file text, the
// pattern, and the persisted record at the moment of settling.
type Analyzer struct {
	projectRoot string
	pattern     *regexp.Regexp
	projects    *sqlite.ProjectStore
	reminders   *reminders.Store
	metrics     *metrics.Watch
}

// New builds an analyzer bound to the resolved configuration and the
// session's stores. watch may be nil.
func New(cfg *config.Config, projects *sqlite.ProjectStore, rem *reminders.Store, watch *metrics.Watch) *Analyzer {
	return &Analyzer{
		projectRoot: cfg.ProjectRoot,
		pattern:     cfg.Pattern,
		projects:    projects,
		reminders:   rem,
		metrics:     watch,
	}
}

// Analyze inspects one settled event, appends any resulting reminders
// to the log, and returns them. Store failures and files that vanished
// before inspection are logged and skipped, never fatal.
func (a *Analyzer) Analyze(ctx context.Context, event watcher.FileChangeEvent) []models.ReminderRecord {
	if a.metrics != nil {
		a.metrics.Analyses.Add(ctx, 1)
	}

	var records []models.ReminderRecord
	switch event.Kind {
	case watcher.Deleted:
		records = a.analyzeDeleted(ctx, event.Path)
	case watcher.Moved:
		records = a.analyzeMoved(ctx, event)
	default:
		records = a.analyzeChanged(ctx, event.Path)
	}

	if len(records) == 0 {
		return nil
	}
	a.append(ctx, records)
	return records
}

// analyzeChanged handles created and modified files.
func (a *Analyzer) analyzeChanged(ctx context.Context, path string) []models.ReminderRecord {
	key := a.storeKey(path)

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", key).Msg("File vanished before analysis")
		} else {
			log.Warn().Err(err).Str("path", key).Msg("Failed to read file")
		}
		return nil
	}

	record, err := a.projects.FileByPath(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("path", key).Msg("File lookup failed")
		return nil
	}
	if record == nil {
		return []models.ReminderRecord{models.NewReminder(
			models.SeverityInfo,
			models.ReminderNewFile,
			fmt.Sprintf("New file %s is not tracked in the project database", key),
			key,
			"",
		)}
	}

	return a.diffAgainstRecord(ctx, path, key, content, record)
}

// analyzeDeleted reports the removal of a tracked file. The record
// itself is left for the assistant to clean up.
func (a *Analyzer) analyzeDeleted(ctx context.Context, path string) []models.ReminderRecord {
	key := a.storeKey(path)

	record, err := a.projects.FileByPath(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("path", key).Msg("File lookup failed")
		return nil
	}
	if record == nil {
		return nil
	}

	return []models.ReminderRecord{models.NewReminder(
		models.SeverityWarning,
		models.ReminderFileDeleted,
		fmt.Sprintf("Tracked file %s was deleted from disk", key),
		key,
		"",
	)}
}

// analyzeMoved resolves the record by the source path and diffs the
// destination content against it; the record's stored path is the
// assistant's to update. A move with no record behind it is just a
// creation at the destination.
func (a *Analyzer) analyzeMoved(ctx context.Context, event watcher.FileChangeEvent) []models.ReminderRecord {
	oldKey := a.storeKey(event.OldPath)

	record, err := a.projects.FileByPath(ctx, oldKey)
	if err != nil {
		log.Warn().Err(err).Str("path", oldKey).Msg("File lookup failed")
		return nil
	}
	if record == nil {
		return a.analyzeChanged(ctx, event.Path)
	}

	content, err := os.ReadFile(event.Path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", a.storeKey(event.Path)).Msg("File vanished before analysis")
		} else {
			log.Warn().Err(err).Str("path", a.storeKey(event.Path)).Msg("Failed to read file")
		}
		return nil
	}

	return a.diffAgainstRecord(ctx, event.Path, a.storeKey(event.Path), content, record)
}

// diffAgainstRecord computes the function-level drift between the
// file's declared names and the record's finalized names. When there
// is none and the file on disk is newer than the stored marker, the
// marker is brought forward so trivial re-saves stop looking stale.
func (a *Analyzer) diffAgainstRecord(ctx context.Context, path, key string, content []byte, record *models.FileRecord) []models.ReminderRecord {
	declared := a.declaredNames(content)

	finalized, err := a.projects.FinalizedFunctionNames(ctx, record.ID)
	if err != nil {
		log.Warn().Err(err).Str("path", key).Msg("Function lookup failed")
		return nil
	}
	finalizedSet := make(map[string]struct{}, len(finalized))
	for _, name := range finalized {
		finalizedSet[name] = struct{}{}
	}

	var records []models.ReminderRecord
	for _, name := range sortedNames(declared) {
		if _, ok := finalizedSet[name]; ok {
			continue
		}
		records = append(records, models.NewReminder(
			models.SeverityWarning,
			models.ReminderMissingFunction,
			fmt.Sprintf("Function %s in %s is not tracked in the project database", name, key),
			key,
			name,
		))
	}
	for _, name := range finalized {
		if _, ok := declared[name]; ok {
			continue
		}
		records = append(records, models.NewReminder(
			models.SeverityWarning,
			models.ReminderMissingDBFunction,
			fmt.Sprintf("Function %s is tracked for %s but no longer found in the source", name, key),
			key,
			name,
		))
	}
	if len(records) > 0 {
		return records
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	diskMS := info.ModTime().UnixMilli()
	if diskMS <= record.ModifiedAtEpoch {
		return nil
	}
	if err := a.projects.UpdateFileMarker(ctx, record.ID, diskMS); err != nil {
		log.Warn().Err(err).Str("path", key).Msg("Failed to sync modification marker")
		return nil
	}
	return []models.ReminderRecord{models.NewReminder(
		models.SeverityInfo,
		models.ReminderTimestampSynced,
		fmt.Sprintf("Modification time for %s synced to the project database", key),
		key,
		"",
	)}
}

func (a *Analyzer) append(ctx context.Context, records []models.ReminderRecord) {
	if err := a.reminders.Append(records...); err != nil {
		if a.metrics != nil {
			a.metrics.LogWriteFailures.Add(ctx, 1)
		}
		log.Error().Err(err).Int("count", len(records)).Msg("Failed to append reminders")
		return
	}
	if a.metrics != nil {
		a.metrics.RemindersAppended.Add(ctx, int64(len(records)))
	}
	log.Info().Int("count", len(records)).Str("path", records[0].FilePath).Msg("Reminders recorded")
}

// declaredNames extracts the set of function names the pattern finds
// in the file content. No pattern means no extraction.
func (a *Analyzer) declaredNames(content []byte) map[string]struct{} {
	names := make(map[string]struct{})
	if a.pattern == nil {
		return names
	}
	for _, match := range a.pattern.FindAllSubmatch(content, -1) {
		if len(match) > 1 && len(match[1]) > 0 {
			names[string(match[1])] = struct{}{}
		}
	}
	return names
}

// storeKey converts an absolute path to the project-root-relative,
// forward-slash form the assistant's store uses.
func (a *Analyzer) storeKey(path string) string {
	rel, err := filepath.Rel(a.projectRoot, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
