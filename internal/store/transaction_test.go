package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestRunInTransaction_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	called := false
	err := RunInTransaction(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransaction_FunctionErrorRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := RunInTransaction(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return ErrCardNotFound
	})

	assert.Equal(t, ErrCardNotFound, err, "the function error is returned unwrapped")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransaction_Failures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(mock sqlmock.Sqlmock, cause error)
		fnErr    error
		contains string
	}{
		{
			name: "begin fails",
			setup: func(mock sqlmock.Sqlmock, cause error) {
				mock.ExpectBegin().WillReturnError(cause)
			},
			contains: "failed to begin transaction",
		},
		{
			name: "commit fails",
			setup: func(mock sqlmock.Sqlmock, cause error) {
				mock.ExpectBegin()
				mock.ExpectCommit().WillReturnError(cause)
			},
			contains: "failed to commit transaction",
		},
		{
			name: "rollback fails",
			setup: func(mock sqlmock.Sqlmock, cause error) {
				mock.ExpectBegin()
				mock.ExpectRollback().WillReturnError(cause)
			},
			fnErr:    ErrConflict,
			contains: "error rolling back transaction",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			cause := errors.New("driver failure")
			tc.setup(mock, cause)

			err := RunInTransaction(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
				return tc.fnErr
			})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.contains)
			if tc.fnErr != nil {
				assert.ErrorIs(t, err, tc.fnErr)
			} else {
				assert.ErrorIs(t, err, cause)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRunInTransaction_PanicRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = RunInTransaction(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
