package sqlite

import (
	"context"
	"database/sql"
)

// PreferenceStore provides queries over the user preferences database.
// Preferences are plain key/value strings; JSON-valued preferences are
// decoded by the caller.
type PreferenceStore struct {
	store *Store
}

// NewPreferenceStore creates a new preference store.
func NewPreferenceStore(store *Store) *PreferenceStore {
	return &PreferenceStore{store: store}
}

// Value returns the raw value for a preference key. The second return
// is false when the key is not present.
func (s *PreferenceStore) Value(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM preferences WHERE key = ? LIMIT 1`

	var value string
	err := s.store.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
