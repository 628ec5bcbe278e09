// Package store persists memory documents, code chunks, and execution
// state in SQLite, with a vec0 ANN index (cosine) over content vectors and
// an FTS5 inverted index over searchable text. Both indices are filterable
// by project.
//
// Concurrent writers to the same document are not reconciled: last writer
// wins. The vector dimension is fixed when the store is opened and writes
// with a different dimension are rejected.
package store

import (
	"database/sql"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

const (
	provisionAttempts = 5
	provisionInterval = 200 * time.Millisecond
)

// Store is the SQLite-backed document store.
type Store struct {
	db        *sql.DB
	logger    zerolog.Logger
	dimension int
}

// Config holds store configuration.
type Config struct {
	Path      string // database file path, or ":memory:"
	Dimension int    // embedding dimension, fixed for the store lifetime
	Logger    zerolog.Logger
}

// Open opens the database and provisions the schema. Virtual-table
// provisioning is retried a bounded number of times at a fixed short
// interval; exhaustion surfaces ErrIndexNotReady.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("store: embedding dimension is required")
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL for better concurrency across independent invocations.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger, dimension: cfg.Dimension}

	var provisionErr error
	for attempt := 0; attempt < provisionAttempts; attempt++ {
		if provisionErr = s.initSchema(); provisionErr == nil {
			break
		}
		s.logger.Warn().Err(provisionErr).Int("attempt", attempt+1).Msg("Index provisioning failed, retrying")
		time.Sleep(provisionInterval)
	}
	if provisionErr != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrIndexNotReady, provisionErr)
	}

	s.logger.Info().Str("path", cfg.Path).Int("dimension", cfg.Dimension).Msg("Store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memory_documents (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			memory_name TEXT NOT NULL,
			class TEXT NOT NULL DEFAULT 'core',
			content TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			access_count INTEGER NOT NULL DEFAULT 0,
			last_modified INTEGER NOT NULL,
			last_accessed_at INTEGER,
			expires_at INTEGER,
			has_vector INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(project_id, memory_name)
		);
		CREATE INDEX IF NOT EXISTS idx_documents_project ON memory_documents(project_id);
		CREATE INDEX IF NOT EXISTS idx_documents_expires ON memory_documents(expires_at);

		CREATE TABLE IF NOT EXISTS code_chunks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			codebase_map_id TEXT NOT NULL,
			file_path TEXT NOT NULL,
			chunk_type TEXT NOT NULL,
			name TEXT NOT NULL,
			signature TEXT NOT NULL,
			content TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			searchable_text TEXT NOT NULL,
			dependencies TEXT NOT NULL DEFAULT '[]',
			exports TEXT NOT NULL DEFAULT '[]',
			patterns TEXT NOT NULL DEFAULT '[]',
			size_bytes INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_project ON code_chunks(project_id);
		CREATE INDEX IF NOT EXISTS idx_chunks_file ON code_chunks(project_id, file_path);

		CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
			doc_id UNINDEXED,
			project_id UNINDEXED,
			content,
			tokenize='porter unicode61'
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_fts USING fts5(
			chunk_id UNINDEXED,
			project_id UNINDEXED,
			searchable_text,
			tokenize='porter unicode61'
		);

		CREATE TABLE IF NOT EXISTS executions (
			project_id TEXT NOT NULL,
			task_name TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			status TEXT NOT NULL,
			call_count INTEGER NOT NULL DEFAULT 1,
			last_called INTEGER NOT NULL,
			total_steps INTEGER NOT NULL DEFAULT 0,
			completed_steps TEXT NOT NULL DEFAULT '[]',
			terminal_at INTEGER,
			PRIMARY KEY (project_id, task_name)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS memory_vectors USING vec0(
			doc_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.dimension, s.dimension)
	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector tables: %w", err)
	}
	return nil
}

// Dimension returns the fixed embedding dimension of this store.
func (s *Store) Dimension() int {
	return s.dimension
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableTime(ts sql.NullInt64) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := time.Unix(ts.Int64, 0).UTC()
	return &t
}
