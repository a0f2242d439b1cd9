package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/pkg/pagination"
)

const sessionColumns = `id, session_date::text AS session_date, start_time, end_time, trainer_id, seat_count, created_at, updated_at`

// startTimeText renders start_time the way clients write it, e.g. "09:30 AM".
const startTimeText = `to_char(make_time(start_time / 60, start_time % 60, 0), 'HH12:MI AM')`

var sessionSortColumns = map[string]string{
	"created_at": "created_at",
	"date":       "session_date",
	"start_time": "start_time",
	"seat_count": "seat_count",
}

// SessionRepository provides persistence for class sessions. Methods taking an
// exec run inside the caller's transaction; a nil exec uses the pool.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) ext(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec == nil {
		return r.db
	}
	return exec
}

// List returns sessions with optional filtering and pagination.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter, params pagination.Params) ([]models.ClassSession, int, error) {
	base := "FROM class_sessions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Date != "" {
		conditions = append(conditions, fmt.Sprintf("session_date = $%d", len(args)+1))
		args = append(args, filter.Date)
	}
	if filter.StartTime != nil {
		conditions = append(conditions, fmt.Sprintf("start_time = $%d", len(args)+1))
		args = append(args, filter.StartTime.Minutes())
	}
	if filter.TrainerID != "" {
		conditions = append(conditions, fmt.Sprintf("trainer_id = $%d", len(args)+1))
		args = append(args, filter.TrainerID)
	}
	if term := strings.TrimSpace(filter.SearchTerm); term != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(session_date::text ILIKE $%d OR %s ILIKE $%d)", n, startTimeText, n))
		args = append(args, "%"+term+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	orderBy := "created_at DESC"
	if column, ok := sessionSortColumns[params.SortBy]; ok {
		order := "ASC"
		if params.SortOrder == "desc" {
			order = "DESC"
		}
		orderBy = fmt.Sprintf("%s %s, id ASC", column, order)
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s LIMIT %d OFFSET %d", sessionColumns, base, orderBy, params.Limit, params.Offset)
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	return sessions, total, nil
}

// LockByID loads a session and holds its row lock until the transaction ends.
// Missing rows and malformed ids surface as sql.ErrNoRows.
func (r *SessionRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE id = $1 FOR UPDATE`
	var session models.ClassSession
	if err := sqlx.GetContext(ctx, r.ext(exec), &session, query, id); err != nil {
		return nil, noRowsOnMalformedID(err)
	}
	return &session, nil
}

// CountByDate returns the number of sessions scheduled on a date.
func (r *SessionRepository) CountByDate(ctx context.Context, exec sqlx.ExtContext, date string) (int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.ext(exec), &total, `SELECT COUNT(*) FROM class_sessions WHERE session_date = $1`, date); err != nil {
		return 0, fmt.Errorf("count sessions by date: %w", err)
	}
	return total, nil
}

// ListByTrainerOnDate returns the trainer's sessions on a date, skipping excludeID.
func (r *SessionRepository) ListByTrainerOnDate(ctx context.Context, exec sqlx.ExtContext, trainerID, date, excludeID string) ([]models.ClassSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE trainer_id = $1 AND session_date = $2`
	args := []interface{}{trainerID, date}
	if excludeID != "" {
		query += ` AND id <> $3`
		args = append(args, excludeID)
	}
	query += ` ORDER BY start_time ASC`

	var sessions []models.ClassSession
	if err := sqlx.SelectContext(ctx, r.ext(exec), &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list trainer sessions on date: %w", err)
	}
	return sessions, nil
}

// ListByTrainer returns every session assigned to a trainer ordered by date and start.
func (r *SessionRepository) ListByTrainer(ctx context.Context, trainerID string) ([]models.ClassSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE trainer_id = $1 ORDER BY session_date ASC, start_time ASC`
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, trainerID); err != nil {
		return nil, fmt.Errorf("list sessions by trainer: %w", err)
	}
	return sessions, nil
}

// ListBookedByTrainee returns sessions on a date the trainee holds a booking
// for, skipping excludeID.
func (r *SessionRepository) ListBookedByTrainee(ctx context.Context, exec sqlx.ExtContext, traineeEmail, date, excludeID string) ([]models.ClassSession, error) {
	query := `SELECT s.id, s.session_date::text AS session_date, s.start_time, s.end_time, s.trainer_id, s.seat_count, s.created_at, s.updated_at
FROM class_sessions s JOIN bookings b ON b.session_id = s.id
WHERE b.trainee_email = $1 AND s.session_date = $2`
	args := []interface{}{traineeEmail, date}
	if excludeID != "" {
		query += ` AND s.id <> $3`
		args = append(args, excludeID)
	}
	query += ` ORDER BY s.start_time ASC`

	var sessions []models.ClassSession
	if err := sqlx.SelectContext(ctx, r.ext(exec), &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions booked by trainee: %w", err)
	}
	return sessions, nil
}

// Create stores a new session record.
func (r *SessionRepository) Create(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO class_sessions (id, session_date, start_time, end_time, trainer_id, seat_count, created_at, updated_at) VALUES (:id, :session_date, :start_time, :end_time, :trainer_id, :seat_count, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext(exec), query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update writes the schedule fields of a session. seat_count is left to the
// booking counters.
func (r *SessionRepository) Update(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_sessions SET session_date = :session_date, start_time = :start_time, end_time = :end_time, trainer_id = :trainer_id, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.ext(exec), query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Delete removes a session by id.
func (r *SessionRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.ext(exec).ExecContext(ctx, `DELETE FROM class_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// IncrementSeats takes one seat if fewer than maxSeats are taken. It reports
// false when the session was already full.
func (r *SessionRepository) IncrementSeats(ctx context.Context, exec sqlx.ExtContext, id string, maxSeats int) (bool, error) {
	res, err := r.ext(exec).ExecContext(ctx, `UPDATE class_sessions SET seat_count = seat_count + 1, updated_at = NOW() WHERE id = $1 AND seat_count < $2`, id, maxSeats)
	if err != nil {
		return false, fmt.Errorf("increment seats: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment seats rows affected: %w", err)
	}
	return affected == 1, nil
}

// DecrementSeats releases one seat, never going below zero.
func (r *SessionRepository) DecrementSeats(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.ext(exec).ExecContext(ctx, `UPDATE class_sessions SET seat_count = GREATEST(seat_count - 1, 0), updated_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("decrement seats: %w", err)
	}
	return nil
}
