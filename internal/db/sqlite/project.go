package sqlite

import (
	"context"
	"database/sql"

	"github.com/thebtf/vigil/pkg/models"
)

// ProjectStore provides queries over the assistant's project database:
// the infrastructure table and the file/function records.
type ProjectStore struct {
	store *Store
}

// NewProjectStore creates a new project store.
func NewProjectStore(store *Store) *ProjectStore {
	return &ProjectStore{store: store}
}

// InfrastructureValue returns the value for an infrastructure key.
// The second return is false when the key is not present.
func (s *ProjectStore) InfrastructureValue(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM infrastructure WHERE key = ? LIMIT 1`

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

// FileByPath retrieves a file record by its project-relative path.
// Returns (nil, nil) when no record exists.
func (s *ProjectStore) FileByPath(ctx context.Context, path string) (*models.FileRecord, error) {
	const query = `
		SELECT id, path, is_reserved, is_finalized, modified_at_epoch,
		       COALESCE(created_at, ''), COALESCE(updated_at, '')
		FROM files
		WHERE path = ?
		LIMIT 1
	`

	var file models.FileRecord
	err := s.store.QueryRowContext(ctx, query, path).Scan(
		&file.ID, &file.Path, &file.IsReserved, &file.IsFinalized,
		&file.ModifiedAtEpoch, &file.CreatedAt, &file.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// FinalizedFunctionNames returns the names of all finalized functions
// recorded for a file, in name order.
func (s *ProjectStore) FinalizedFunctionNames(ctx context.Context, fileID int64) ([]string, error) {
	const query = `
		SELECT name
		FROM functions
		WHERE file_id = ? AND is_finalized = 1
		ORDER BY name ASC
	`

	rows, err := s.store.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// UpdateFileMarker fast-forwards a file's stored modification marker.
// This is the only write the watchdog performs against the project
// database.
func (s *ProjectStore) UpdateFileMarker(ctx context.Context, fileID int64, epochMS int64) error {
	const query = `UPDATE files SET modified_at_epoch = ? WHERE id = ?`

	_, err := s.store.ExecContext(ctx, query, epochMS, fileID)
	return err
}
