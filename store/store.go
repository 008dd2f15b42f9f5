// Package store holds hub state backed by an embedded SQLite database: the
// shared-file exchange and the append-only chat history. The database is
// in-memory by default, so nothing survives a restart; operators may point
// it at a file instead.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string — never edit or reorder existing entries.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors callers branch on.
var (
	ErrFileNotFound = errors.New("file not found")
	ErrNotUploader  = errors.New("only the uploader may delete a file")
)

// migrations holds the ordered list of DDL statements that bring the schema
// up to date. Index i corresponds to version i+1.
var migrations = []string{
	// v1 — shared files, bytes inline
	`CREATE TABLE IF NOT EXISTS files (
		id            INTEGER PRIMARY KEY,
		name          TEXT NOT NULL,
		size          INTEGER NOT NULL,
		uploader_id   INTEGER NOT NULL,
		uploader_name TEXT NOT NULL,
		data          BLOB NOT NULL,
		created_at    INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v2 — chat history (kept, never replayed)
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id   INTEGER NOT NULL,
		sender_name TEXT NOT NULL,
		body        TEXT NOT NULL,
		sent_at     INTEGER NOT NULL
	)`,
	// v3 — history queries by time
	`CREATE INDEX IF NOT EXISTS idx_chat_sent ON chat_messages(sent_at)`,
}

// Store wraps the SQLite database and exposes hub-state operations.
type Store struct {
	db *sql.DB

	mu         sync.Mutex
	nextFileID int64 // file IDs start at 0 and are process-unique
}

// Open opens (or creates) the database at path and applies any pending
// migrations. Use ":memory:" for the default ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection: an in-memory database exists per connection, and
	// one writer is plenty for a 10-participant hub.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		slog.Warn("store busy_timeout", "err", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := db.QueryRow(
		`SELECT COALESCE(MAX(id)+1, 0) FROM files`,
	).Scan(&s.nextFileID); err != nil {
		db.Close()
		return nil, fmt.Errorf("read file id counter: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema_migrations table (if absent) and applies any
// migrations whose version number exceeds the current maximum.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
	}
	return nil
}

// File is a shared file record, bytes included.
type File struct {
	ID           int64
	Name         string
	Size         int64
	UploaderID   uint32
	UploaderName string
	Data         []byte
	CreatedAt    time.Time
}

// FileInfo is a File without its bytes, for listings.
type FileInfo struct {
	ID           int64
	Name         string
	Size         int64
	UploaderID   uint32
	UploaderName string
}

// AddFile stores a completed upload and returns its ID.
func (s *Store) AddFile(name string, uploaderID uint32, uploaderName string, data []byte) (int64, error) {
	s.mu.Lock()
	id := s.nextFileID
	s.nextFileID++
	s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO files(id, name, size, uploader_id, uploader_name, data)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		id, name, int64(len(data)), uploaderID, uploaderName, data,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	return id, nil
}

// GetFile returns the file with the given ID, bytes included.
func (s *Store) GetFile(id int64) (*File, error) {
	var f File
	var created int64
	err := s.db.QueryRow(
		`SELECT id, name, size, uploader_id, uploader_name, data, created_at
		 FROM files WHERE id = ?`, id,
	).Scan(&f.ID, &f.Name, &f.Size, &f.UploaderID, &f.UploaderName, &f.Data, &created)
	if err == sql.ErrNoRows {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	f.CreatedAt = time.Unix(created, 0)
	return &f, nil
}

// DeleteFile removes a file if requesterID matches the stored uploader.
func (s *Store) DeleteFile(id int64, requesterID uint32) error {
	var uploader uint32
	err := s.db.QueryRow(
		`SELECT uploader_id FROM files WHERE id = ?`, id,
	).Scan(&uploader)
	if err == sql.ErrNoRows {
		return ErrFileNotFound
	}
	if err != nil {
		return err
	}
	if uploader != requesterID {
		return ErrNotUploader
	}
	_, err = s.db.Exec(`DELETE FROM files WHERE id = ?`, id)
	return err
}

// ListFiles returns all shared files without their bytes, oldest first.
func (s *Store) ListFiles() ([]FileInfo, error) {
	rows, err := s.db.Query(
		`SELECT id, name, size, uploader_id, uploader_name FROM files ORDER BY id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileInfo
	for rows.Next() {
		var f FileInfo
		if err := rows.Scan(&f.ID, &f.Name, &f.Size, &f.UploaderID, &f.UploaderName); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FileCount returns the number of stored files.
func (s *Store) FileCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&n)
	return n, err
}

// AppendChat records one public chat message in the history. The history is
// append-only and is never replayed to joiners.
func (s *Store) AppendChat(senderID uint32, senderName, body string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO chat_messages(sender_id, sender_name, body, sent_at)
		 VALUES(?, ?, ?, ?)`,
		senderID, senderName, body, at.Unix(),
	)
	return err
}

// ChatCount returns the number of recorded chat messages.
func (s *Store) ChatCount() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM chat_messages`).Scan(&n)
	return n, err
}
