package mysql_test

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/plmteb-go/pkg/ledger"
	"github.com/oceanbase/plmteb-go/pkg/ledger/mysql"
)

func newMock(t *testing.T) (*mysql.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS pairs")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	c, err := mysql.NewClientWithDB(t.Context(), db, "pairs")
	require.NoError(t, err)
	return c, mock
}

func TestDSN(t *testing.T) {
	cfg := &mysql.Config{Host: "127.0.0.1", Port: 2881, User: "root@test", Password: "secret", DBName: "plmteb"}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "tcp(127.0.0.1:2881)/plmteb")
	assert.Contains(t, dsn, "parseTime=true")
	assert.True(t, strings.HasPrefix(dsn, "root@test:secret@"), dsn)
}

func TestIsCompleted(t *testing.T) {
	c, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(1) FROM pairs WHERE model = ? AND task = ?")).
		WithArgs("m", "PPC").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	ok, err := c.IsCompleted(t.Context(), "m", "PPC")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompletedUpserts(t *testing.T) {
	c, mock := newMock(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE")).
		WithArgs(int64(9), "run", "m", "PPC", "test", at).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, c.MarkCompleted(t.Context(), &ledger.Entry{ID: 9, RunID: "run", Model: "m", Task: "PPC", Split: "test", CompletedAt: at}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAndReset(t *testing.T) {
	c, mock := newMock(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, run_id, model, task, split, completed_at FROM pairs ORDER BY completed_at, id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "run_id", "model", "task", "split", "completed_at"}).
			AddRow(int64(1), "run", "a", "CBD", "test", at))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM pairs WHERE model = ?")).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entries, err := c.List(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Model)

	require.NoError(t, c.Reset(t.Context(), "a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
