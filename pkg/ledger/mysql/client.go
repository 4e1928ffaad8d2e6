// Package mysql provides the MySQL ledger. OceanBase in MySQL mode is served
// by the same client.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	driver "github.com/go-sql-driver/mysql"

	"github.com/oceanbase/plmteb-go/pkg/ledger"
)

var _ ledger.Ledger = (*Client)(nil)

// Client is a MySQL ledger client.
type Client struct {
	db    *sql.DB
	table string
}

// Config contains MySQL configuration.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	TableName string
}

// DSN renders cfg as a go-sql-driver data source name.
func (cfg *Config) DSN() string {
	mc := driver.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	return mc.FormatDSN()
}

// NewClient connects to MySQL and creates the ledger table.
//
// Args:
//   - cfg: connection settings
//
// Returns:
//   - *Client: The MySQL ledger
//   - error: Error if the connection, ping or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("NewMySQLLedger: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewMySQLLedger: %w", err)
	}

	client, err := NewClientWithDB(context.Background(), db, cfg.TableName)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return client, nil
}

// NewClientWithDB wraps an open connection and creates the ledger table.
func NewClientWithDB(ctx context.Context, db *sql.DB, tableName string) (*Client, error) {
	table, err := ledger.TableName(tableName)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLLedger: %w", err)
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
			completed_at DATETIME(6) NOT NULL,
			UNIQUE KEY uk_model_task (model, task)
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
		ON DUPLICATE KEY UPDATE
			id = VALUES(id),
			run_id = VALUES(run_id),
			split = VALUES(split),
			completed_at = VALUES(completed_at)
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
