// Package reminders persists drift findings as a single JSON array
// that the assistant re-reads on its own schedule.
package reminders

import (
	"fmt"
	"os"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/vigil/pkg/models"
)

// Store manages the reminder log file. Every write serializes the full
// array to a temporary file in the same directory and renames it over
// the target, so a concurrent reader sees either the old array or the
// new one, never a partial file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a reminder store writing to path. The file itself
// appears on the first Clear or Append.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the log file location.
func (s *Store) Path() string {
	return s.path
}

// Append adds records to the log in call order.
func (s *Store) Append(records ...models.ReminderRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readLocked()
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Reminder log unreadable, starting fresh")
		existing = nil
	}

	return s.writeLocked(append(existing, records...))
}

// Clear resets the log to an empty array. Called once at watch-session
// start to discard reminders from a prior session; safe to call again.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeLocked([]models.ReminderRecord{})
}

// Read returns the current log contents. An absent file reads as an
// empty log.
func (s *Store) Read() ([]models.ReminderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readLocked()
}

func (s *Store) readLocked() ([]models.ReminderRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []models.ReminderRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return records, nil
}

func (s *Store) writeLocked(records []models.ReminderRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode reminder log: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
