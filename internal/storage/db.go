package storage

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// DB is the local sqlite store for the whitelist and cached pool reserves.
type DB struct {
	db *sql.DB
}

func Open(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// one connection keeps :memory: databases alive and serialises writers
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// stats for monitoring
func (d *DB) GetStats() (map[string]int64, error) {
	stats := make(map[string]int64)

	var count int64
	if err := d.db.QueryRow("SELECT COUNT(*) FROM base_tokens").Scan(&count); err != nil {
		return nil, err
	}
	stats["base_tokens"] = count

	if err := d.db.QueryRow("SELECT COUNT(*) FROM pool_reserves").Scan(&count); err != nil {
		return nil, err
	}
	stats["reserve_entries"] = count

	return stats, nil
}
