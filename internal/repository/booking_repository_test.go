package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fitclass-api/internal/models"
)

func TestBookingRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(sqlmock.AnyArg(), "s-1", "kim@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	booking := &models.Booking{SessionID: "s-1", TraineeEmail: "kim@example.com"}
	require.NoError(t, repo.Create(context.Background(), nil, booking))
	assert.NotEmpty(t, booking.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec("INSERT INTO bookings").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_session_trainee_uniq"})

	err := repo.Create(context.Background(), nil, &models.Booking{SessionID: "s-1", TraineeEmail: "kim@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateBooking)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryFindForUpdateAndDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, session_id, trainee_email, created_at FROM bookings WHERE id = $1 FOR UPDATE")).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "trainee_email", "created_at"}).AddRow("b-1", "s-1", "kim@example.com", now))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bookings WHERE id = $1")).
		WithArgs("b-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	booking, err := repo.FindForUpdate(context.Background(), nil, "b-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", booking.SessionID)
	require.NoError(t, repo.Delete(context.Background(), nil, "b-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryFindForUpdateMalformedID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = $1 FOR UPDATE")).
		WithArgs("abc").
		WillReturnError(&pq.Error{Code: "22P02"})

	_, err := repo.FindForUpdate(context.Background(), nil, "abc")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCountsAndTrainees(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE session_id = $1")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT trainee_email FROM bookings WHERE session_id = $1")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"trainee_email"}).AddRow("a@example.com").AddRow("b@example.com"))

	total, err := repo.CountBySession(context.Background(), nil, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	emails, err := repo.ListTraineesBySession(context.Background(), nil, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, emails)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListByTrainee(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "session_id", "trainee_email", "created_at",
		"session.id", "session.session_date", "session.start_time", "session.end_time",
		"session.trainer_id", "session.seat_count", "session.created_at", "session.updated_at",
	}).AddRow("b-1", "s-1", "kim@example.com", now, "s-1", "2025-06-01", int64(600), int64(720), nil, int64(1), now, now)
	mock.ExpectQuery("FROM bookings b JOIN class_sessions s").
		WithArgs("kim@example.com").
		WillReturnRows(rows)

	list, err := repo.ListByTrainee(context.Background(), "kim@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b-1", list[0].ID)
	assert.Equal(t, "s-1", list[0].Session.ID)
	assert.Equal(t, "10:00 AM", list[0].Session.StartTime.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
