package postgres_test

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/plmteb-go/pkg/ledger"
	"github.com/oceanbase/plmteb-go/pkg/ledger/postgres"
)

func newMock(t *testing.T) (*postgres.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS completed_pairs")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	c, err := postgres.NewClientWithDB(t.Context(), db, "")
	require.NoError(t, err)
	return c, mock
}

func TestIsCompleted(t *testing.T) {
	c, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM completed_pairs WHERE model = $1 AND task = $2)")).
		WithArgs("m", "CDSC-E").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := c.IsCompleted(t.Context(), "m", "CDSC-E")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompletedUpserts(t *testing.T) {
	c, mock := newMock(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (model, task) DO UPDATE")).
		WithArgs(int64(7), "run", "m", "MSMARCO-PL", "validation", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := c.MarkCompleted(t.Context(), &ledger.Entry{ID: 7, RunID: "run", Model: "m", Task: "MSMARCO-PL", Split: "validation", CompletedAt: at})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	c, mock := newMock(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM completed_pairs WHERE model = $1 ORDER BY completed_at, id")).
		WithArgs("m").
		WillReturnRows(sqlmock.NewRows([]string{"id", "run_id", "model", "task", "split", "completed_at"}).
			AddRow(int64(1), "run", "m", "CBD", "test", at).
			AddRow(int64(2), "run", "m", "PSC", "test", at.Add(time.Second)))

	entries, err := c.List(t.Context(), "m")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "PSC", entries[1].Task)
	assert.Equal(t, at, entries[0].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetAll(t *testing.T) {
	c, mock := newMock(t)

	mock.ExpectExec("^DELETE FROM completed_pairs$").WillReturnResult(sqlmock.NewResult(0, 3))
	require.NoError(t, c.Reset(t.Context(), ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorsAreWrapped(t *testing.T) {
	c, mock := newMock(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery("SELECT EXISTS").WillReturnError(boom)
	_, err := c.IsCompleted(t.Context(), "m", "t")
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewClientWithDBRejectsBadTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = postgres.NewClientWithDB(t.Context(), db, "x;y")
	assert.Error(t, err)
}
