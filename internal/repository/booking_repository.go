package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/fitclass-api/internal/models"
)

// ErrDuplicateBooking is returned when the trainee already holds a seat in the session.
var ErrDuplicateBooking = errors.New("booking already exists")

const bookingColumns = `id, session_id, trainee_email, created_at`

// BookingRepository provides persistence for bookings.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) ext(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec == nil {
		return r.db
	}
	return exec
}

// FindForUpdate loads a booking and locks its row. Missing rows surface as sql.ErrNoRows.
func (r *BookingRepository) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	var booking models.Booking
	if err := sqlx.GetContext(ctx, r.ext(exec), &booking, query, id); err != nil {
		return nil, noRowsOnMalformedID(err)
	}
	return &booking, nil
}

// Create stores a booking. A second booking for the same session and trainee
// returns ErrDuplicateBooking.
func (r *BookingRepository) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO bookings (id, session_id, trainee_email, created_at) VALUES (:id, :session_id, :trainee_email, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext(exec), query, booking); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

// Delete removes a booking by id.
func (r *BookingRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.ext(exec).ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return nil
}

// CountBySession returns how many bookings reference a session.
func (r *BookingRepository) CountBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.ext(exec), &total, `SELECT COUNT(*) FROM bookings WHERE session_id = $1`, sessionID); err != nil {
		return 0, fmt.Errorf("count bookings by session: %w", err)
	}
	return total, nil
}

// ListTraineesBySession returns the emails of trainees booked into a session.
func (r *BookingRepository) ListTraineesBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]string, error) {
	var emails []string
	if err := sqlx.SelectContext(ctx, r.ext(exec), &emails, `SELECT trainee_email FROM bookings WHERE session_id = $1 ORDER BY trainee_email ASC`, sessionID); err != nil {
		return nil, fmt.Errorf("list trainees by session: %w", err)
	}
	return emails, nil
}

// ListByTrainee returns a trainee's bookings with their sessions, soonest first.
func (r *BookingRepository) ListByTrainee(ctx context.Context, traineeEmail string) ([]models.BookingDetail, error) {
	const query = `SELECT b.id, b.session_id, b.trainee_email, b.created_at,
s.id AS "session.id", s.session_date::text AS "session.session_date", s.start_time AS "session.start_time",
s.end_time AS "session.end_time", s.trainer_id AS "session.trainer_id", s.seat_count AS "session.seat_count",
s.created_at AS "session.created_at", s.updated_at AS "session.updated_at"
FROM bookings b JOIN class_sessions s ON s.id = b.session_id
WHERE b.trainee_email = $1
ORDER BY s.session_date ASC, s.start_time ASC`
	var bookings []models.BookingDetail
	if err := r.db.SelectContext(ctx, &bookings, query, traineeEmail); err != nil {
		return nil, fmt.Errorf("list bookings by trainee: %w", err)
	}
	return bookings, nil
}
