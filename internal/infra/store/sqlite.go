// Package store provides a SQLite-backed key/value store for persisted
// player state such as the playlist.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// DefaultDBPath is the default path for the store database.
	DefaultDBPath = "data/ampcast.db"
)

// ErrNotOpen is returned when the database has not been opened.
var ErrNotOpen = errors.New("database not open")

// DB is a key/value store grouped by store name.
type DB struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Stats describes the store contents.
type Stats struct {
	SchemaVersion string
	Stores        int
	Keys          int
	LastUpdated   time.Time
}

// NewDB creates a new store database instance.
func NewDB(path string) *DB {
	if path == "" {
		path = DefaultDBPath
	}
	return &DB{path: path}
}

// Open opens the database and initializes the schema.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open store database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d.db = db

	if err := d.initSchema(); err != nil {
		d.db.Close()
		d.db = nil
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", d.path).Msg("Store database opened")
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		return err
	}
	return nil
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		store TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (store, key)
	);

	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	version, err := d.getMeta("schema_version")
	if err != nil {
		return err
	}
	if version != "" && version != CurrentSchemaVersion {
		log.Info().
			Str("current", version).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating store schema")
	}
	return d.setMeta("schema_version", CurrentSchemaVersion)
}

func (d *DB) setMeta(key, value string) error {
	_, err := d.db.Exec(`
		INSERT INTO store_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (d *DB) getMeta(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM store_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// Get returns the value under store and key, and whether it exists.
func (d *DB) Get(store, key string) ([]byte, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, false, ErrNotOpen
	}

	var value []byte
	err := d.db.QueryRow("SELECT value FROM kv WHERE store = ? AND key = ?", store, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s/%s: %w", store, key, err)
	}
	return value, true, nil
}

// Set stores value under store and key.
func (d *DB) Set(store, key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return ErrNotOpen
	}
	if value == nil {
		value = []byte{}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := d.db.Exec(`
		INSERT INTO kv (store, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(store, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, store, key, value, now)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", store, key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (d *DB) Delete(store, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return ErrNotOpen
	}
	if _, err := d.db.Exec("DELETE FROM kv WHERE store = ? AND key = ?", store, key); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", store, key, err)
	}
	return nil
}

// Keys returns the keys of a store in order.
func (d *DB) Keys(store string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := d.db.Query("SELECT key FROM kv WHERE store = ? ORDER BY key", store)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", store, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Clear removes every key of a store.
func (d *DB) Clear(store string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return ErrNotOpen
	}
	if _, err := d.db.Exec("DELETE FROM kv WHERE store = ?", store); err != nil {
		return fmt.Errorf("failed to clear %s: %w", store, err)
	}

	log.Info().Str("store", store).Msg("Store cleared")
	return nil
}

// GetStats returns store statistics.
func (d *DB) GetStats() (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrNotOpen
	}

	stats := &Stats{}
	if err := d.db.QueryRow("SELECT COUNT(DISTINCT store), COUNT(*) FROM kv").Scan(&stats.Stores, &stats.Keys); err != nil {
		return nil, err
	}

	var last sql.NullString
	if err := d.db.QueryRow("SELECT MAX(updated_at) FROM kv").Scan(&last); err != nil {
		return nil, err
	}
	if last.Valid {
		stats.LastUpdated, _ = time.Parse(time.RFC3339Nano, last.String)
	}

	stats.SchemaVersion, _ = d.getMeta("schema_version")
	return stats, nil
}
