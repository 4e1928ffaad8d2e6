// Package ledger records which (model, task) pairs have finished so an
// interrupted evaluation can resume where it stopped.
//
// Pairs are keyed by model short name and task name. Marking a pair that is
// already present replaces the stored entry.
package ledger

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/bwmarrin/snowflake"
)

// DefaultTableName is the table used when none is configured.
const DefaultTableName = "completed_pairs"

// Entry is one completed (model, task) pair.
type Entry struct {
	// ID is a snowflake id unique to this completion.
	ID int64

	// RunID identifies the evaluation run that completed the pair.
	RunID string

	// Model is the model short name.
	Model string

	// Task is the task name.
	Task string

	// Split lists the evaluated splits, comma separated.
	Split string

	// CompletedAt is when the pair finished.
	CompletedAt time.Time
}

// Ledger stores completed pairs.
type Ledger interface {
	// IsCompleted reports whether model has finished task.
	IsCompleted(ctx context.Context, model, task string) (bool, error)

	// MarkCompleted records entry, replacing any entry for the same pair.
	MarkCompleted(ctx context.Context, entry *Entry) error

	// List returns the entries of model ordered by completion time.
	// An empty model lists every entry.
	List(ctx context.Context, model string) ([]*Entry, error)

	// Reset forgets every entry of model. An empty model forgets all entries.
	Reset(ctx context.Context, model string) error

	// Close releases the underlying connection.
	Close() error
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableName validates name for interpolation into SQL and applies the default.
func TableName(name string) (string, error) {
	if name == "" {
		return DefaultTableName, nil
	}
	if !tableName.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}

// IDGenerator issues entry and run ids.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator creates a generator for the given snowflake node (0-1023).
func NewIDGenerator(node int64) (*IDGenerator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("NewIDGenerator: %w", err)
	}
	return &IDGenerator{node: n}, nil
}

// NextID returns a new entry id.
func (g *IDGenerator) NextID() int64 {
	return g.node.Generate().Int64()
}

// NewRunID returns a new run id in base36.
func (g *IDGenerator) NewRunID() string {
	return g.node.Generate().Base36()
}

// Rows is the subset of *sql.Rows read by ScanEntries.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// ScanEntries reads rows of (id, run_id, model, task, split, completed_at).
func ScanEntries(rows Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.RunID, &e.Model, &e.Task, &e.Split, &e.CompletedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
