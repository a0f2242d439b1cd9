package scheduling

import "time"

// Defaults for Policy fields left unset.
const (
	DefaultMaxSeats          = 10
	DefaultMaxSessionsPerDay = 5
	DefaultSessionDuration   = 120 * time.Minute
)

// Policy holds the tunable capacity limits.
type Policy struct {
	MaxSeats          int
	MaxSessionsPerDay int
	SessionDuration   time.Duration
}

// DefaultPolicy returns the stock limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxSeats:          DefaultMaxSeats,
		MaxSessionsPerDay: DefaultMaxSessionsPerDay,
		SessionDuration:   DefaultSessionDuration,
	}
}

// Normalize replaces non-positive values with defaults.
func (p Policy) Normalize() Policy {
	if p.MaxSeats <= 0 {
		p.MaxSeats = DefaultMaxSeats
	}
	if p.MaxSessionsPerDay <= 0 {
		p.MaxSessionsPerDay = DefaultMaxSessionsPerDay
	}
	if p.SessionDuration < time.Minute {
		p.SessionDuration = DefaultSessionDuration
	}
	return p
}

// CanCreateSession reports whether another session fits on a date that
// already holds existingCountForDate sessions.
func (p Policy) CanCreateSession(existingCountForDate int) bool {
	return existingCountForDate < p.MaxSessionsPerDay
}

// CanAcceptBooking reports whether a session with the given seat count has room.
func (p Policy) CanAcceptBooking(currentSeatCount int) bool {
	return currentSeatCount < p.MaxSeats
}

// EndFor computes a session end from its start.
func (p Policy) EndFor(start Clock) (Clock, error) {
	return start.Add(int(p.SessionDuration / time.Minute))
}
