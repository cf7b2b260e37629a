package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return FromDB(db), mock
}

func TestWithTxCommits(t *testing.T) {
	c, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM mapping_runs").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := c.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM mapping_runs WHERE started_at < now() - interval '30 days'")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	c, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	errDup := errors.New("duplicate disease id")
	err := c.WithTx(context.Background(), func(*sql.Tx) error { return errDup })
	assert.ErrorIs(t, err, errDup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	c, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "bad row", func() {
		_ = c.WithTx(context.Background(), func(*sql.Tx) error { panic("bad row") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxBeginFails(t *testing.T) {
	c, mock := newMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err := c.WithTx(context.Background(), func(*sql.Tx) error { called = true; return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many connections")
	assert.False(t, called)
}
