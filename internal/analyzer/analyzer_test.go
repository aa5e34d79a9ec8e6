package analyzer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	_ "modernc.org/sqlite"

	"github.com/thebtf/vigil/internal/config"
	"github.com/thebtf/vigil/internal/db/sqlite"
	"github.com/thebtf/vigil/internal/languages"
	"github.com/thebtf/vigil/internal/reminders"
	"github.com/thebtf/vigil/internal/watcher"
	"github.com/thebtf/vigil/pkg/models"
)

type AnalyzerSuite struct {
	suite.Suite
	root     string
	db       *sql.DB
	store    *sqlite.Store
	projects *sqlite.ProjectStore
	rem      *reminders.Store
	analyzer *Analyzer
}

func (s *AnalyzerSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.Require().NoError(os.MkdirAll(filepath.Join(s.root, "src"), 0755))

	dbPath := filepath.Join(s.root, "project.db")
	db, err := sql.Open("sqlite", dbPath)
	s.Require().NoError(err)
	s.db = db

	_, err = db.Exec(`
		CREATE TABLE files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			is_reserved INTEGER NOT NULL DEFAULT 0,
			is_finalized INTEGER NOT NULL DEFAULT 0,
			modified_at_epoch INTEGER NOT NULL DEFAULT 0,
			created_at TEXT,
			updated_at TEXT
		);
		CREATE TABLE functions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			is_reserved INTEGER NOT NULL DEFAULT 0,
			is_finalized INTEGER NOT NULL DEFAULT 0
		);
	`)
	s.Require().NoError(err)

	store, err := sqlite.NewStore(sqlite.StoreConfig{Path: dbPath})
	s.Require().NoError(err)
	s.store = store
	s.projects = sqlite.NewProjectStore(store)

	s.rem = reminders.NewStore(filepath.Join(s.T().TempDir(), "reminders.json"))
	s.analyzer = s.newAnalyzer("python")
}

func (s *AnalyzerSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
	s.Require().NoError(s.db.Close())
}

func (s *AnalyzerSuite) newAnalyzer(language string) *Analyzer {
	cfg := &config.Config{ProjectRoot: s.root}
	if language != "" {
		pattern, ok := languages.Builtin().Get(language)
		s.Require().True(ok)
		cfg.Pattern = pattern
	}
	return New(cfg, s.projects, s.rem, nil)
}

func (s *AnalyzerSuite) seedFile(path string, marker int64) int64 {
	res, err := s.db.Exec(
		`INSERT INTO files (path, is_reserved, is_finalized, modified_at_epoch, created_at, updated_at)
		 VALUES (?, 0, 1, ?, '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z')`,
		path, marker,
	)
	s.Require().NoError(err)
	id, err := res.LastInsertId()
	s.Require().NoError(err)
	return id
}

func (s *AnalyzerSuite) seedFunction(fileID int64, name string) {
	_, err := s.db.Exec(
		`INSERT INTO functions (file_id, name, is_reserved, is_finalized) VALUES (?, ?, 0, 1)`,
		fileID, name,
	)
	s.Require().NoError(err)
}

func (s *AnalyzerSuite) writeSource(rel, content string) string {
	path := filepath.Join(s.root, filepath.FromSlash(rel))
	s.Require().NoError(os.WriteFile(path, []byte(content), 0644))
	return path
}

func (s *AnalyzerSuite) marker(path string) int64 {
	var marker int64
	err := s.db.QueryRow(`SELECT modified_at_epoch FROM files WHERE path = ?`, path).Scan(&marker)
	s.Require().NoError(err)
	return marker
}

func (s *AnalyzerSuite) TestNewFileReminder() {
	path := s.writeSource("src/new.py", "def alpha():\n    pass\n")

	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path: path, Kind: watcher.Created, Time: time.Now(),
	})

	s.Require().Len(records, 1)
	s.Equal(models.ReminderNewFile, records[0].Kind)
	s.Equal(models.SeverityInfo, records[0].Severity)
	s.Equal("src/new.py", records[0].FilePath)
	s.Empty(records[0].FunctionName)

	logged, err := s.rem.Read()
	s.Require().NoError(err)
	s.Len(logged, 1)
}

func (s *AnalyzerSuite) TestDeterministicDiff() {
	path := s.writeSource("src/app.py", "def a():\n    pass\n\ndef b():\n    pass\n\ndef c():\n    pass\n")
	fileID := s.seedFile("src/app.py", 1000)
	s.seedFunction(fileID, "a")
	s.seedFunction(fileID, "b")

	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path: path, Kind: watcher.Modified, Time: time.Now(),
	})

	s.Require().Len(records, 1)
	s.Equal(models.ReminderMissingFunction, records[0].Kind)
	s.Equal(models.SeverityWarning, records[0].Severity)
	s.Equal("c", records[0].FunctionName)
	s.Equal("src/app.py", records[0].FilePath)

	s.Equal(int64(1000), s.marker("src/app.py"), "drift must not move the marker")
}

func (s *AnalyzerSuite) TestMissingDBFunction() {
	path := s.writeSource("src/app.py", "def a():\n    pass\n")
	fileID := s.seedFile("src/app.py", 1000)
	s.seedFunction(fileID, "a")
	s.seedFunction(fileID, "b")

	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path: path, Kind: watcher.Modified, Time: time.Now(),
	})

	s.Require().Len(records, 1)
	s.Equal(models.ReminderMissingDBFunction, records[0].Kind)
	s.Equal(models.SeverityWarning, records[0].Severity)
	s.Equal("b", records[0].FunctionName)
}

func (s *AnalyzerSuite) TestDriftInBothDirections() {
	path := s.writeSource("src/app.py", "def a():\n    pass\n\ndef c():\n    pass\n")
	fileID := s.seedFile("src/app.py", 1000)
	s.seedFunction(fileID, "a")
	s.seedFunction(fileID, "b")

	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path: path, Kind: watcher.Modified, Time: time.Now(),
	})

	s.Require().Len(records, 2)
	s.Equal(models.ReminderMissingFunction, records[0].Kind)
	s.Equal("c", records[0].FunctionName)
	s.Equal(models.ReminderMissingDBFunction, records[1].Kind)
	s.Equal("b", records[1].FunctionName)
}

func (s *AnalyzerSuite) TestTimestampSync() {
	path := s.writeSource("src/app.py", "def a():\n    pass\n")
	fileID := s.seedFile("src/app.py", 1000)
	s.seedFunction(fileID, "a")

	info, err := os.Stat(path)
	s.Require().NoError(err)

	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path: path, Kind: watcher.Modified, Time: time.Now(),
	})

	s.Require().Len(records, 1)
	s.Equal(models.ReminderTimestampSynced, records[0].Kind)
	s.Equal(models.SeverityInfo, records[0].Severity)
	s.Equal(info.ModTime().UnixMilli(), s.marker("src/app.py"))
}

func (s *AnalyzerSuite) TestNoSyncWhenMarkerCurrent() {
	path := s.writeSource("src/app.py", "def a():\n    pass\n")
	future := time.Now().Add(time.Hour).UnixMilli()
	fileID := s.seedFile("src/app.py", future)
	s.seedFunction(fileID, "a")

	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path: path, Kind: watcher.Modified, Time: time.Now(),
	})

	s.Empty(records)
	s.Equal(future, s.marker("src/app.py"))
}

func (s *AnalyzerSuite) TestDeletedTrackedFile() {
	s.seedFile("src/app.py", 1000)

	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path: filepath.Join(s.root, "src", "app.py"), Kind: watcher.Deleted, Time: time.Now(),
	})

	s.Require().Len(records, 1)
	s.Equal(models.ReminderFileDeleted, records[0].Kind)
	s.Equal(models.SeverityWarning, records[0].Severity)
	s.Equal("src/app.py", records[0].FilePath)

	var count int
	s.Require().NoError(s.db.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&count))
	s.Equal(1, count, "deletion must not mutate the store")

	// Once the assistant drops the record, recreation reads as a new file.
	_, err := s.db.Exec(`DELETE FROM files WHERE path = ?`, "src/app.py")
	s.Require().NoError(err)
	path := s.writeSource("src/app.py", "def a():\n    pass\n")

	records = s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path: path, Kind: watcher.Created, Time: time.Now(),
	})
	s.Require().Len(records, 1)
	s.Equal(models.ReminderNewFile, records[0].Kind)
}

func (s *AnalyzerSuite) TestDeletedUntrackedFile() {
	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path: filepath.Join(s.root, "src", "ghost.py"), Kind: watcher.Deleted, Time: time.Now(),
	})

	s.Empty(records)
	logged, err := s.rem.Read()
	s.Require().NoError(err)
	s.Empty(logged)
}

func (s *AnalyzerSuite) TestVanishedFile() {
	s.seedFile("src/app.py", 1000)

	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path: filepath.Join(s.root, "src", "app.py"), Kind: watcher.Modified, Time: time.Now(),
	})

	s.Empty(records)
}

func (s *AnalyzerSuite) TestNoPatternTreatsFileAsDeclaringNothing() {
	path := s.writeSource("src/app.py", "def a():\n    pass\n")
	fileID := s.seedFile("src/app.py", 1000)
	s.seedFunction(fileID, "a")

	analyzer := s.newAnalyzer("")
	records := analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path: path, Kind: watcher.Modified, Time: time.Now(),
	})

	s.Require().Len(records, 1)
	s.Equal(models.ReminderMissingDBFunction, records[0].Kind)
	s.Equal("a", records[0].FunctionName)
}

func (s *AnalyzerSuite) TestMovedDiffsDestination() {
	fileID := s.seedFile("src/old.py", 1000)
	s.seedFunction(fileID, "alpha")
	newPath := s.writeSource("src/new.py", "def beta():\n    pass\n")

	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path:    newPath,
		OldPath: filepath.Join(s.root, "src", "old.py"),
		Kind:    watcher.Moved,
		Time:    time.Now(),
	})

	s.Require().Len(records, 2)
	s.Equal(models.ReminderMissingFunction, records[0].Kind)
	s.Equal("beta", records[0].FunctionName)
	s.Equal("src/new.py", records[0].FilePath)
	s.Equal(models.ReminderMissingDBFunction, records[1].Kind)
	s.Equal("alpha", records[1].FunctionName)
}

func (s *AnalyzerSuite) TestMovedWithoutDriftSyncsMarker() {
	fileID := s.seedFile("src/old.py", 1000)
	s.seedFunction(fileID, "alpha")
	newPath := s.writeSource("src/new.py", "def alpha():\n    pass\n")

	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path:    newPath,
		OldPath: filepath.Join(s.root, "src", "old.py"),
		Kind:    watcher.Moved,
		Time:    time.Now(),
	})

	s.Require().Len(records, 1)
	s.Equal(models.ReminderTimestampSynced, records[0].Kind)
	s.Equal("src/new.py", records[0].FilePath)
	s.Greater(s.marker("src/old.py"), int64(1000), "marker lives on the source record")
}

func (s *AnalyzerSuite) TestMovedWithoutRecordFallsBackToCreate() {
	newPath := s.writeSource("src/new.py", "def alpha():\n    pass\n")

	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path:    newPath,
		OldPath: filepath.Join(s.root, "src", "old.py"),
		Kind:    watcher.Moved,
		Time:    time.Now(),
	})

	s.Require().Len(records, 1)
	s.Equal(models.ReminderNewFile, records[0].Kind)
	s.Equal("src/new.py", records[0].FilePath)
}

func (s *AnalyzerSuite) TestLogWriteFailureDoesNotBlockAnalysis() {
	path := s.writeSource("src/new.py", "def alpha():\n    pass\n")
	s.analyzer.reminders = reminders.NewStore(filepath.Join(s.root, "no-such-dir", "reminders.json"))

	records := s.analyzer.Analyze(context.Background(), watcher.FileChangeEvent{
		Path: path, Kind: watcher.Created, Time: time.Now(),
	})

	s.Require().Len(records, 1, "analysis result survives a failed append")
}

func TestAnalyzerSuite(t *testing.T) {
	suite.Run(t, new(AnalyzerSuite))
}
