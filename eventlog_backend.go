// eventlog_backend.go: Storage backends for the event log
//
// Two backends behind one interface: a SQLite database for queryable event
// history (preferred) and line-delimited JSON for environments where SQLite
// is unavailable or the operator wants grep-able files. Backend selection
// degrades gracefully: SQLite, then JSONL, then error, so event logging
// never prevents startup by itself.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// eventBackend abstracts the storage mechanism for event batches.
type eventBackend interface {
	// Write persists a batch of events. Must be safe for concurrent use.
	Write(events []Event) error

	// Flush commits pending writes to durable storage.
	Flush() error

	// Close releases resources. The backend must not be used afterwards.
	Close() error

	// Maintenance performs backend-specific upkeep: retention cleanup and
	// optimization for SQLite, nothing for JSONL.
	Maintenance() error

	// GetStats reports backend statistics for monitoring and the CLI.
	GetStats() (*EventLogStats, error)
}

// createEventBackend selects a backend for the configuration: explicit
// .jsonl paths get the JSONL backend, everything else tries SQLite first
// and falls back to JSONL.
func createEventBackend(config EventLogConfig) (eventBackend, error) {
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".jsonl" {
		return newJSONLEventBackend(config)
	}

	backend, err := newSQLiteEventBackend(config)
	if err == nil {
		return backend, nil
	}

	jsonlBackend, jsonlErr := newJSONLEventBackend(config)
	if jsonlErr != nil {
		return nil, fmt.Errorf("all event log backends failed - SQLite: %w, JSONL: %v", err, jsonlErr)
	}
	return jsonlBackend, nil
}

// defaultEventDBPath is where the SQLite backend stores events when no
// output file is configured.
func defaultEventDBPath() string {
	return filepath.Join(os.TempDir(), "aether", "events.db")
}

// sqliteEventBackend stores events in a SQLite database with a versioned
// schema and batched transactional inserts.
type sqliteEventBackend struct {
	db         *sql.DB
	dbPath     string
	insertStmt *sql.Stmt
	mu         sync.RWMutex
	closed     bool
}

func newSQLiteEventBackend(config EventLogConfig) (*sqliteEventBackend, error) {
	dbPath := defaultEventDBPath()
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".db" {
		dbPath = config.OutputFile
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create event database directory: %w", err)
	}

	// WAL keeps writers from blocking the occasional reader; NORMAL sync
	// tolerates losing the last moments of events on power loss, which is
	// acceptable for an operational trail.
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=1000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open event database: %w", err)
	}
	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping event database (close error: %v): %w", closeErr, err)
		}
		return nil, fmt.Errorf("failed to ping event database: %w", err)
	}

	backend := &sqliteEventBackend{db: db, dbPath: dbPath}

	if err := backend.ensureSchemaVersion(); err != nil {
		if closeErr := backend.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema (close error: %v): %w", closeErr, err)
		}
		return nil, fmt.Errorf("failed to initialize event database schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		if closeErr := backend.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to prepare statements (close error: %v): %w", closeErr, err)
		}
		return nil, fmt.Errorf("failed to prepare event database statements: %w", err)
	}

	// Startup maintenance trims old entries; not critical if it fails.
	_ = backend.performMaintenance()

	return backend, nil
}

// ensureSchemaVersion checks the schema version and migrates if needed.
// Version 1 is the event table, version 2 adds query indexes.
func (s *sqliteEventBackend) ensureSchemaVersion() error {
	const currentSchemaVersion = 2

	createSchemaInfoSQL := `
	CREATE TABLE IF NOT EXISTS schema_info (
		version INTEGER PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := s.db.Exec(createSchemaInfoSQL); err != nil {
		return fmt.Errorf("failed to create schema_info table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		if err == sql.ErrNoRows {
			version = 0
		} else {
			return fmt.Errorf("failed to check schema version: %w", err)
		}
	}

	if version < currentSchemaVersion {
		if err := s.migrateSchema(version, currentSchemaVersion); err != nil {
			return fmt.Errorf("schema migration from v%d to v%d failed: %w", version, currentSchemaVersion, err)
		}
		if _, err := s.db.Exec(`
			INSERT OR REPLACE INTO schema_info (version, updated_at)
			VALUES (?, CURRENT_TIMESTAMP)
		`, currentSchemaVersion); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}
	return nil
}

// migrateSchema applies incremental migrations inside one transaction.
func (s *sqliteEventBackend) migrateSchema(oldVersion, newVersion int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for version := oldVersion; version < newVersion; version++ {
		switch version {
		case 0:
			if err = s.migrateToV1(tx); err != nil {
				return fmt.Errorf("migration to v1 failed: %w", err)
			}
		case 1:
			if err = s.migrateToV2(tx); err != nil {
				return fmt.Errorf("migration to v2 failed: %w", err)
			}
		default:
			return fmt.Errorf("unknown migration path from version %d", version)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}
	return nil
}

func (s *sqliteEventBackend) migrateToV1(tx *sql.Tx) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		level TEXT NOT NULL,
		event TEXT NOT NULL,
		process_id INTEGER NOT NULL,
		process_name TEXT NOT NULL,
		fields TEXT, -- JSON blob for structured metadata
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := tx.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	basicIndexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_events_level ON events(level)",
		"CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at)",
	}
	for _, indexSQL := range basicIndexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create basic index: %w", err)
		}
	}
	return nil
}

func (s *sqliteEventBackend) migrateToV2(tx *sql.Tx) error {
	compositeIndexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_events_level_time ON events(level, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_events_event_time ON events(event, timestamp)",
	}
	for _, indexSQL := range compositeIndexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create composite index: %w", err)
		}
	}
	return nil
}

// performMaintenance trims events past the retention window and nudges the
// query planner.
func (s *sqliteEventBackend) performMaintenance() error {
	const defaultRetentionDays = 90

	if _, err := s.db.Exec(`
		DELETE FROM events
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`, defaultRetentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old events: %w", err)
	}

	optimizationTasks := []string{
		"PRAGMA optimize",
		"PRAGMA wal_checkpoint(FULL)",
	}
	for _, task := range optimizationTasks {
		if _, err := s.db.Exec(task); err != nil {
			continue
		}
	}
	return nil
}

func (s *sqliteEventBackend) prepareStatements() error {
	insertSQL := `
	INSERT INTO events (
		timestamp, level, event, process_id, process_name, fields
	) VALUES (?, ?, ?, ?, ?, ?)`

	stmt, err := s.db.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	s.insertStmt = stmt
	return nil
}

// EventLogStats summarizes the stored event history.
type EventLogStats struct {
	TotalEvents   int64            `json:"total_events"`
	EventsByLevel map[string]int64 `json:"events_by_level"`
	OldestEvent   *time.Time       `json:"oldest_event"`
	NewestEvent   *time.Time       `json:"newest_event"`
	DatabaseSize  int64            `json:"database_size_bytes"`
	SchemaVersion int              `json:"schema_version"`
}

// Write persists a batch inside one transaction.
func (s *sqliteEventBackend) Write(events []Event) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("cannot write to closed SQLite event backend")
	}
	s.mu.RUnlock()

	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin event transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				fmt.Fprintf(os.Stderr, "Failed to rollback event transaction: %v\n", rollbackErr)
			}
		}
	}()

	txStmt := tx.Stmt(s.insertStmt)
	defer func() {
		if closeErr := txStmt.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to close transaction statement: %v\n", closeErr)
		}
	}()

	for _, ev := range events {
		fieldsJSON := ""
		if ev.Fields != nil {
			data, merr := json.Marshal(ev.Fields)
			if merr != nil {
				err = fmt.Errorf("failed to serialize event fields: %w", merr)
				return err
			}
			fieldsJSON = string(data)
		}
		if _, err = txStmt.Exec(
			ev.Timestamp.Format(time.RFC3339Nano),
			ev.Level.String(),
			ev.Event,
			ev.ProcessID,
			ev.ProcessName,
			fieldsJSON,
		); err != nil {
			err = fmt.Errorf("failed to insert event: %w", err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return nil
}

// Flush forces a WAL checkpoint for durability of recent transactions.
func (s *sqliteEventBackend) Flush() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to flush SQLite event backend: %w", err)
	}
	return nil
}

func (s *sqliteEventBackend) Maintenance() error {
	return s.performMaintenance()
}

// GetStats gathers counts and time range from the database.
func (s *sqliteEventBackend) GetStats() (*EventLogStats, error) {
	stats := &EventLogStats{EventsByLevel: make(map[string]int64)}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to get total event count: %w", err)
	}

	rows, err := s.db.Query("SELECT level, COUNT(*) FROM events GROUP BY level")
	if err != nil {
		return nil, fmt.Errorf("failed to get events by level: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan level stats: %w", err)
		}
		stats.EventsByLevel[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading level stats: %w", err)
	}

	var oldestStr, newestStr sql.NullString
	err = s.db.QueryRow(`
		SELECT MIN(created_at), MAX(created_at) FROM events
	`).Scan(&oldestStr, &newestStr)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get event time range: %w", err)
	}
	if oldestStr.Valid {
		if oldest, perr := time.Parse("2006-01-02 15:04:05", oldestStr.String); perr == nil {
			stats.OldestEvent = &oldest
		}
	}
	if newestStr.Valid {
		if newest, perr := time.Parse("2006-01-02 15:04:05", newestStr.String); perr == nil {
			stats.NewestEvent = &newest
		}
	}

	if err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&stats.SchemaVersion); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get schema version: %w", err)
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}

// Close flushes and releases the statement and connection. Safe to call
// more than once.
func (s *sqliteEventBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	var errs []error

	// Final flush so WAL data is committed before the connection goes.
	s.mu.Unlock()
	if err := s.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush event backend during close: %w", err))
	}
	s.mu.Lock()

	if s.insertStmt != nil {
		if err := s.insertStmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close insert statement: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	s.closed = true
	if len(errs) > 0 {
		return fmt.Errorf("errors closing SQLite event backend: %v", errs)
	}
	return nil
}

// jsonlEventBackend appends one JSON object per event to a flat file.
type jsonlEventBackend struct {
	file       *os.File
	sourceFile string
	mu         sync.Mutex
	closed     bool
}

func newJSONLEventBackend(config EventLogConfig) (*jsonlEventBackend, error) {
	if config.OutputFile == "" {
		return nil, fmt.Errorf("JSONL backend requires OutputFile to be specified")
	}
	if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0750); err != nil {
		return nil, fmt.Errorf("failed to create JSONL event log directory: %w", err)
	}
	file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 -- path comes from the operator's config
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL event log file: %w", err)
	}
	return &jsonlEventBackend{file: file, sourceFile: config.OutputFile}, nil
}

func (j *jsonlEventBackend) Write(events []Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return fmt.Errorf("cannot write to closed JSONL event backend")
	}
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to serialize event: %w", err)
		}
		if _, err := j.file.Write(data); err != nil {
			return fmt.Errorf("failed to write event to JSONL: %w", err)
		}
		if _, err := j.file.Write([]byte("\n")); err != nil {
			return fmt.Errorf("failed to write event newline: %w", err)
		}
	}
	return nil
}

func (j *jsonlEventBackend) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync JSONL event file: %w", err)
	}
	return nil
}

// Maintenance is a no-op for flat files.
func (j *jsonlEventBackend) Maintenance() error {
	return nil
}

func (j *jsonlEventBackend) GetStats() (*EventLogStats, error) {
	stats := &EventLogStats{
		EventsByLevel: make(map[string]int64),
		SchemaVersion: 1,
	}
	if info, err := os.Stat(j.sourceFile); err == nil {
		stats.DatabaseSize = info.Size()
	}
	// Counting events would mean parsing the whole file; not worth it for
	// a stats call.
	return stats, nil
}

func (j *jsonlEventBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	var err error
	if j.file != nil {
		err = j.file.Close()
	}
	j.closed = true
	return err
}
