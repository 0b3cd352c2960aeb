// Package db keeps the engine mutation journal in DuckDB.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	mu     sync.Mutex
	shared *Journal
)

// Config locates the database file.
type Config struct {
	DataDir string
	DBName  string
}

// Path is <data-dir>/duckdb/<name>.duckdb.
func (c Config) Path() string {
	return filepath.Join(c.DataDir, "duckdb", c.DBName+".duckdb")
}

// Open returns the process-wide journal, opening the database and creating
// the journal schema on first use. A failed open is retried by the next call.
func Open(ctx context.Context, cfg Config) (*Journal, error) {
	mu.Lock()
	defer mu.Unlock()
	if shared != nil {
		return shared, nil
	}

	path := cfg.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating duckdb directory: %w", err)
	}
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	j, err := NewJournal(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	shared = j
	return j, nil
}

// Close closes the database behind the shared journal.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if shared == nil {
		return nil
	}
	err := shared.db.Close()
	shared = nil
	return err
}
