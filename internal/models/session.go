package models

import (
	"time"

	"github.com/noah-isme/fitclass-api/internal/scheduling"
)

// ClassSession is a single scheduled class on a calendar date.
type ClassSession struct {
	ID        string           `db:"id" json:"id"`
	Date      string           `db:"session_date" json:"date"`
	StartTime scheduling.Clock `db:"start_time" json:"start_time"`
	EndTime   scheduling.Clock `db:"end_time" json:"end_time"`
	TrainerID *string          `db:"trainer_id" json:"trainer_id"`
	SeatCount int              `db:"seat_count" json:"seat_count"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// Interval returns the occupied span of the session.
func (s ClassSession) Interval() scheduling.Interval {
	return scheduling.Interval{Ref: s.ID, Date: s.Date, Start: s.StartTime, End: s.EndTime}
}

// HasTrainer reports whether a trainer is assigned.
func (s ClassSession) HasTrainer() bool {
	return s.TrainerID != nil && *s.TrainerID != ""
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	Date       string
	StartTime  *scheduling.Clock
	TrainerID  string
	SearchTerm string
}

// CreateSessionRequest is the payload for scheduling a new session.
type CreateSessionRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required"`
}

// UpdateSessionRequest changes only the fields that are set.
type UpdateSessionRequest struct {
	Date      *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime *string `json:"start_time" validate:"omitempty"`
	TrainerID *string `json:"trainer_id" validate:"omitempty,uuid"`
}

// AssignTrainerRequest sets the trainer of a session.
type AssignTrainerRequest struct {
	TrainerID string `json:"trainer_id" validate:"required,uuid"`
}

// Conflict subjects.
const (
	ConflictTrainer = "trainer"
	ConflictTrainee = "trainee"
)

// ScheduleConflict describes the existing session that collides with a request.
type ScheduleConflict struct {
	SessionID string `json:"session_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Subject   string `json:"subject"`
	SubjectID string `json:"subject_id"`
}

// NewScheduleConflict describes a collision with the given interval.
func NewScheduleConflict(existing scheduling.Interval, subject, subjectID string) ScheduleConflict {
	return ScheduleConflict{
		SessionID: existing.Ref,
		Date:      existing.Date,
		StartTime: existing.Start.String(),
		EndTime:   existing.End.String(),
		Subject:   subject,
		SubjectID: subjectID,
	}
}
