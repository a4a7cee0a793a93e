package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewConnection opens the SQLite database at dbPath, creating the parent
// directory if needed. A store that cannot be opened (corrupt file, wrong
// format) is moved aside and replaced with an empty one: losing the ledger
// degrades the service to "resend everything", which beats crash-looping.
func NewConnection(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := open(dbPath)
	if err != nil {
		slog.Warn("Database unreadable, starting with an empty store", "path", dbPath, "error", err)

		quarantine := fmt.Sprintf("%s.corrupt-%d", dbPath, time.Now().Unix())
		if renameErr := os.Rename(dbPath, quarantine); renameErr != nil && !os.IsNotExist(renameErr) {
			return nil, fmt.Errorf("failed to move corrupt database aside: %w", renameErr)
		}

		db, err = open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	return db, nil
}

func open(dbPath string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent workers.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var result string
	if err := sqlDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil || result != "ok" {
		sqlDB.Close()
		if err == nil {
			err = fmt.Errorf("integrity check returned %q", result)
		}
		return nil, fmt.Errorf("database integrity check failed: %w", err)
	}

	return &DB{sqlDB}, nil
}
