// Package sqlite provides the SQLite ledger.
//
// SQLite keeps the ledger in a single local file next to the results, which
// makes it the default for single-machine runs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oceanbase/plmteb-go/pkg/ledger"
)

var _ ledger.Ledger = (*Client)(nil)

// Client implements ledger.Ledger on SQLite.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// table is the name of the table storing completed pairs.
	table string
}

// Config contains configuration for the SQLite ledger.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the table to use (default "completed_pairs").
	TableName string
}

// NewClient opens (and if needed creates) the ledger database.
//
// The parent directory of DBPath is created, the database is opened in WAL
// mode and the ledger table is created if it does not exist.
//
// Args:
//   - cfg: SQLite configuration with DBPath and an optional TableName
//
// Returns:
//   - *Client: The SQLite ledger
//   - error: Error if the directory, connection or table cannot be created
func NewClient(cfg *Config) (*Client, error) {
	table, err := ledger.TableName(cfg.TableName)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteLedger: %w", err)
	}

	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteLedger: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteLedger: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewSQLiteLedger: %w", err)
	}

	client := &Client{db: db, table: table}
	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			model TEXT NOT NULL,
			task TEXT NOT NULL,
			split TEXT NOT NULL,
			completed_at DATETIME NOT NULL,
			UNIQUE (model, task)
		)
	`, c.table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}
	return nil
}

// IsCompleted reports whether the pair is recorded.
func (c *Client) IsCompleted(ctx context.Context, model, task string) (bool, error) {
	query := fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE model = ? AND task = ?`, c.table)
	var n int
	if err := c.db.QueryRowContext(ctx, query, model, task).Scan(&n); err != nil {
		return false, fmt.Errorf("IsCompleted: %w", err)
	}
	return n > 0, nil
}

// MarkCompleted upserts entry.
func (c *Client) MarkCompleted(ctx context.Context, entry *ledger.Entry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, run_id, model, task, split, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (model, task) DO UPDATE SET
			id = excluded.id,
			run_id = excluded.run_id,
			split = excluded.split,
			completed_at = excluded.completed_at
	`, c.table)
	_, err := c.db.ExecContext(ctx, query,
		entry.ID, entry.RunID, entry.Model, entry.Task, entry.Split, entry.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("MarkCompleted: %w", err)
	}
	return nil
}

// List returns the entries of model, or all entries when model is empty.
func (c *Client) List(ctx context.Context, model string) ([]*ledger.Entry, error) {
	query := fmt.Sprintf(`SELECT id, run_id, model, task, split, completed_at FROM %s`, c.table)
	var args []interface{}
	if model != "" {
		query += " WHERE model = ?"
		args = append(args, model)
	}
	query += " ORDER BY completed_at, id"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries, err := ledger.ScanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return entries, nil
}

// Reset deletes the entries of model, or all entries when model is empty.
func (c *Client) Reset(ctx context.Context, model string) error {
	query := fmt.Sprintf(`DELETE FROM %s`, c.table)
	var args []interface{}
	if model != "" {
		query += " WHERE model = ?"
		args = append(args, model)
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("Reset: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}
