// Package eidosstore is the SQLite-backed persistence layer for EIDOS:
// episodes, steps, and distillations in eidos.db. It is grounded directly
// on the teacher's data.Store (pure-Go modernc.org/sqlite, WAL pragmas,
// embedded-migration runner, local-path validation), adapted away from
// that package's global-store singleton per the capability-bundle design:
// callers construct a Store explicitly and pass it to internal/eidos.
package eidosstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/normanking/kaitd/internal/kaitkerr"
)

const component = "eidosstore"

//go:embed migrations/001_episodes_steps_distillations.sql
var initialSchema string

// Store wraps the SQLite connection used for episodes/steps/distillations.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open creates (or attaches to) eidos.db under dataDir and runs migrations.
func Open(dataDir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, kaitkerr.Fatal(component, "mkdir", err)
	}
	if err := validateLocalPath(dataDir); err != nil {
		return nil, kaitkerr.Fatal(component, "validate_path", err)
	}

	dbPath := filepath.Join(dataDir, "eidos.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, kaitkerr.Fatal(component, "open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, log: log.With().Str("component", component).Logger()}

	if err := s.initPragmas(); err != nil {
		db.Close()
		return nil, kaitkerr.Fatal(component, "init_pragmas", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, kaitkerr.Fatal(component, "migrate", err)
	}
	return s, nil
}

func (s *Store) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 268435456",
		"PRAGMA page_size = 4096",
		"PRAGMA auto_vacuum = INCREMENTAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("execute %s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	return s.runMigration("episodes_steps_distillations", initialSchema)
}

func (s *Store) runMigration(name, schema string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range splitSQL(schema) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || strings.HasPrefix(stmt, "--") {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %s statement %d: %w", name, i+1, err)
		}
	}
	return tx.Commit()
}

// Health verifies the connection is alive.
func (s *Store) Health(ctx context.Context) error {
	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return kaitkerr.Transient(component, "health", err)
	}
	return nil
}

// Close flushes the WAL and closes the connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.Warn().Err(err).Msg("wal checkpoint failed during close")
	}
	return s.db.Close()
}

// DB exposes the underlying *sql.DB. No package in this module calls it;
// the store's own methods run every query.
func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn inside a transaction, committing on success and rolling
// back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kaitkerr.Transient(component, "begin_tx", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return kaitkerr.Transient(component, "commit", err)
	}
	return nil
}

// validateLocalPath rejects common network-mount path prefixes; SQLite's
// locking protocol is unreliable over NFS/SMB and can corrupt the database
// under concurrent access.
func validateLocalPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	networkPrefixes := []string{"//", "\\\\", "/mnt/", "/net/", "/Volumes/"}
	for _, prefix := range networkPrefixes {
		if strings.HasPrefix(absPath, prefix) {
			return fmt.Errorf("network path detected: %s (SQLite requires local filesystem)", absPath)
		}
	}

	testFile := filepath.Join(path, ".kaitd-write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}
	os.Remove(testFile)
	return nil
}

// splitSQL splits a multi-statement SQL string into individual statements,
// skipping comment and blank lines. The schema here has no trigger
// BEGIN...END blocks, so this is a simpler pass than one that would need
// to track nested blocks.
func splitSQL(schema string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(schema, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements
}
