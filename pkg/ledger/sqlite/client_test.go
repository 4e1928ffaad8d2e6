package sqlite_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/plmteb-go/pkg/ledger"
	"github.com/oceanbase/plmteb-go/pkg/ledger/sqlite"
)

func newClient(t *testing.T) *sqlite.Client {
	t.Helper()
	c, err := sqlite.NewClient(&sqlite.Config{DBPath: filepath.Join(t.TempDir(), "state", "ledger.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMarkAndQuery(t *testing.T) {
	ctx := t.Context()
	c := newClient(t)

	done, err := c.IsCompleted(ctx, "sdadas__mmlw-e5-small", "CDSC-E")
	require.NoError(t, err)
	assert.False(t, done)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.MarkCompleted(ctx, &ledger.Entry{ID: 1, RunID: "r1", Model: "sdadas__mmlw-e5-small", Task: "CDSC-E", Split: "test", CompletedAt: at}))
	require.NoError(t, c.MarkCompleted(ctx, &ledger.Entry{ID: 2, RunID: "r1", Model: "sdadas__mmlw-e5-small", Task: "MSMARCO-PL", Split: "validation", CompletedAt: at.Add(time.Minute)}))
	require.NoError(t, c.MarkCompleted(ctx, &ledger.Entry{ID: 3, RunID: "r1", Model: "other", Task: "CDSC-E", Split: "test", CompletedAt: at}))

	done, err = c.IsCompleted(ctx, "sdadas__mmlw-e5-small", "CDSC-E")
	require.NoError(t, err)
	assert.True(t, done)

	entries, err := c.List(ctx, "sdadas__mmlw-e5-small")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "CDSC-E", entries[0].Task)
	assert.Equal(t, "validation", entries[1].Split)
	assert.True(t, at.Equal(entries[0].CompletedAt))

	all, err := c.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMarkTwiceReplaces(t *testing.T) {
	ctx := t.Context()
	c := newClient(t)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.MarkCompleted(ctx, &ledger.Entry{ID: 1, RunID: "r1", Model: "m", Task: "PSC", Split: "test", CompletedAt: at}))
	require.NoError(t, c.MarkCompleted(ctx, &ledger.Entry{ID: 2, RunID: "r2", Model: "m", Task: "PSC", Split: "test", CompletedAt: at.Add(time.Hour)}))

	entries, err := c.List(ctx, "m")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ID)
	assert.Equal(t, "r2", entries[0].RunID)
}

func TestReset(t *testing.T) {
	ctx := t.Context()
	c := newClient(t)

	now := time.Now().UTC()
	require.NoError(t, c.MarkCompleted(ctx, &ledger.Entry{ID: 1, RunID: "r", Model: "a", Task: "PSC", Split: "test", CompletedAt: now}))
	require.NoError(t, c.MarkCompleted(ctx, &ledger.Entry{ID: 2, RunID: "r", Model: "b", Task: "PSC", Split: "test", CompletedAt: now}))

	require.NoError(t, c.Reset(ctx, "a"))
	all, err := c.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].Model)

	require.NoError(t, c.Reset(ctx, ""))
	all, err = c.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	c, err := sqlite.NewClient(&sqlite.Config{DBPath: path, TableName: "pairs"})
	require.NoError(t, err)
	require.NoError(t, c.MarkCompleted(t.Context(), &ledger.Entry{ID: 1, RunID: "r", Model: "a", Task: "CBD", Split: "test", CompletedAt: time.Now()}))
	require.NoError(t, c.Close())

	c, err = sqlite.NewClient(&sqlite.Config{DBPath: path, TableName: "pairs"})
	require.NoError(t, err)
	defer c.Close()
	done, err := c.IsCompleted(t.Context(), "a", "CBD")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestInvalidTableName(t *testing.T) {
	_, err := sqlite.NewClient(&sqlite.Config{DBPath: filepath.Join(t.TempDir(), "x.db"), TableName: "bad name"})
	assert.Error(t, err)
}
