package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testDB creates a file-backed test database and returns the raw
// connection, its path, and a cleanup function.
func testDB(t *testing.T) (*sql.DB, string, func()) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	return db, path, func() { _ = db.Close() }
}

// createProjectTables creates the schema the assistant's CRUD layer
// owns in production. Tests build it so the read-side queries have
// something to run against.
func createProjectTables(t *testing.T, db *sql.DB) {
	t.Helper()

	const schema = `
		CREATE TABLE IF NOT EXISTS infrastructure (
			key TEXT PRIMARY KEY,
			value TEXT
		);
		CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			is_reserved INTEGER NOT NULL DEFAULT 0,
			is_finalized INTEGER NOT NULL DEFAULT 0,
			modified_at_epoch INTEGER NOT NULL DEFAULT 0,
			created_at TEXT,
			updated_at TEXT
		);
		CREATE TABLE IF NOT EXISTS functions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id INTEGER NOT NULL REFERENCES files(id),
			name TEXT NOT NULL,
			is_reserved INTEGER NOT NULL DEFAULT 0,
			is_finalized INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT
		);
	`
	_, err := db.Exec(schema)
	require.NoError(t, err)
}

// seedInfrastructure inserts an infrastructure key/value pair.
func seedInfrastructure(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()

	_, err := db.Exec(`INSERT OR REPLACE INTO infrastructure (key, value) VALUES (?, ?)`, key, value)
	require.NoError(t, err)
}

// seedFile inserts a file record and returns its id.
func seedFile(t *testing.T, db *sql.DB, path string, finalized bool, modifiedEpoch int64) int64 {
	t.Helper()

	res, err := db.Exec(
		`INSERT INTO files (path, is_reserved, is_finalized, modified_at_epoch, created_at, updated_at)
		 VALUES (?, 0, ?, ?, datetime('now'), datetime('now'))`,
		path, finalized, modifiedEpoch,
	)
	require.NoError(t, err)

	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// seedFunction inserts a function record for a file.
func seedFunction(t *testing.T, db *sql.DB, fileID int64, name string, finalized bool) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO functions (file_id, name, is_reserved, is_finalized) VALUES (?, ?, 0, ?)`,
		fileID, name, finalized,
	)
	require.NoError(t, err)
}

// seedPreference inserts a preference key/value pair.
func seedPreference(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()

	_, err := db.Exec(`INSERT OR REPLACE INTO preferences (key, value) VALUES (?, ?)`, key, value)
	require.NoError(t, err)
}
