// Package postgres provides the PostgreSQL ledger.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/oceanbase/plmteb-go/pkg/ledger"
)

var _ ledger.Ledger = (*Client)(nil)

// Client is a PostgreSQL ledger client.
type Client struct {
	db    *sql.DB
	table string
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	TableName string
	SSLMode   string
}

// NewClient connects to PostgreSQL and creates the ledger table.
//
// Args:
//   - cfg: connection settings; SSLMode defaults to "disable"
//
// Returns:
//   - *Client: The PostgreSQL ledger
//   - error: Error if the connection, ping or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresLedger: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewPostgresLedger: %w", err)
	}

	client, err := NewClientWithDB(context.Background(), db, cfg.TableName)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return client, nil
}

// NewClientWithDB wraps an open connection and creates the ledger table.
// The client takes ownership of db and closes it in Close.
func NewClientWithDB(ctx context.Context, db *sql.DB, tableName string) (*Client, error) {
	table, err := ledger.TableName(tableName)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresLedger: %w", err)
	}
	client := &Client{db: db, table: table}
	if err := client.initTables(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			model VARCHAR(255) NOT NULL,
			task VARCHAR(255) NOT NULL,
			split VARCHAR(255) NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL,
			UNIQUE (model, task)
		)
	`, c.table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: create table: %w", err)
	}
	return nil
}

// IsCompleted reports whether the pair is recorded.
func (c *Client) IsCompleted(ctx context.Context, model, task string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE model = $1 AND task = $2)`, c.table)
	var ok bool
	if err := c.db.QueryRowContext(ctx, query, model, task).Scan(&ok); err != nil {
		return false, fmt.Errorf("IsCompleted: %w", err)
	}
	return ok, nil
}

// MarkCompleted upserts entry.
func (c *Client) MarkCompleted(ctx context.Context, entry *ledger.Entry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, run_id, model, task, split, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (model, task) DO UPDATE SET
			id = EXCLUDED.id,
			run_id = EXCLUDED.run_id,
			split = EXCLUDED.split,
			completed_at = EXCLUDED.completed_at
	`, c.table)
	_, err := c.db.ExecContext(ctx, query,
		entry.ID, entry.RunID, entry.Model, entry.Task, entry.Split, entry.CompletedAt)
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
		query += " WHERE model = $1"
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
		query += " WHERE model = $1"
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
