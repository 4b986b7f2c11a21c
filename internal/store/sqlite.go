// Package store persists leads in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"leadscout/internal/lead"
	"leadscout/internal/logging"
)

// LeadStore is the persistence contract used by the pipeline and the API.
type LeadStore interface {
	FindByDedupeKey(ctx context.Context, key string) (lead.Lead, error)
	MarkDuplicate(ctx context.Context, id int64) error
	Insert(ctx context.Context, l *lead.Lead) error
	List(ctx context.Context, f lead.Filter) ([]lead.Lead, error)
	All(ctx context.Context) ([]lead.Lead, error)
	Metrics(ctx context.Context) (lead.Metrics, error)
	Close() error
}

// SQLiteStore implements LeadStore on a single SQLite database.
//
// Usage:
//
//	s, err := store.Open("data/leads.db", logger)
//	if err != nil { ... }
//	defer s.Close()
//	err = s.Insert(ctx, &l)
//	leads, err := s.List(ctx, lead.Filter{Role: "electrician"})
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex // serialises find-then-write sequences
	path   string
	logger *zap.Logger
}

var _ LeadStore = (*SQLiteStore)(nil)

// Open initializes the SQLite database at path. ":memory:" gives a private
// in-memory database.
func Open(path string, logger *zap.Logger) (*SQLiteStore, error) {
	log := logging.For(logger, logging.CategoryStore)
	timer := logging.StartTimer(log, "store.Open")
	defer timer.Stop()

	if !isMemory(path) {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: a :memory: database exists per connection, and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	if err := RunMigrations(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info("lead store ready", zap.String("path", path))
	return &SQLiteStore{db: db, path: path, logger: log}, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
