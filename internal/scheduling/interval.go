package scheduling

import (
	"errors"
	"fmt"
)

// ErrEmptyInterval is returned when an interval does not end after it starts.
var ErrEmptyInterval = errors.New("interval must end after it starts")

// Interval is a half-open [Start, End) span on a calendar date. Ref carries the
// identifier of whatever occupies the span, usually a session id.
type Interval struct {
	Ref   string
	Date  string
	Start Clock
	End   Clock
}

// NewInterval validates and builds an interval.
func NewInterval(ref, date string, start, end Clock) (Interval, error) {
	if start >= end {
		return Interval{}, fmt.Errorf("%w: %s-%s", ErrEmptyInterval, start, end)
	}
	return Interval{Ref: ref, Date: date, Start: start, End: end}, nil
}

// Duration returns the interval length in minutes.
func (i Interval) Duration() int {
	return int(i.End - i.Start)
}

// Overlaps reports whether both intervals share at least one instant. A span
// ending exactly when the other begins does not overlap.
func (i Interval) Overlaps(other Interval) bool {
	if i.Date != other.Date {
		return false
	}
	return max(i.Start, other.Start) < min(i.End, other.End)
}

func (i Interval) String() string {
	return fmt.Sprintf("%s %s-%s", i.Date, i.Start, i.End)
}
