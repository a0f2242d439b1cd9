package models

import "time"

// Booking reserves one seat of a session for a trainee.
type Booking struct {
	ID           string    `db:"id" json:"id"`
	SessionID    string    `db:"session_id" json:"session_id"`
	TraineeEmail string    `db:"trainee_email" json:"trainee_email"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// BookingDetail is a booking joined with its session, used for listings.
type BookingDetail struct {
	Booking
	Session ClassSession `db:"session" json:"session"`
}

// BookSessionRequest is the payload for reserving a seat.
type BookSessionRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
}
