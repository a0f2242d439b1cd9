package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const advisoryLockQuery = "SELECT pg_advisory_xact_lock(hashtext($1))"

func TestTxManagerCommitsAndLocksInOrder(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	tm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(advisoryLockQuery)).WithArgs("trainee:a@example.com").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(advisoryLockQuery)).WithArgs("trainee:b@example.com").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := tm.WithinTx(context.Background(), func(exec sqlx.ExtContext) error {
		return tm.Lock(context.Background(), exec, LockTrainee, "b@example.com", "a@example.com", "b@example.com", "")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	tm := NewTxManager(db)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := tm.WithinTx(context.Background(), func(exec sqlx.ExtContext) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerRollsBackOnPanic(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	tm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = tm.WithinTx(context.Background(), func(exec sqlx.ExtContext) error { panic("boom") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerLockRequiresTransaction(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()

	err := NewTxManager(db).Lock(context.Background(), nil, LockSessionDate, "2025-06-01")
	assert.Error(t, err)
}
