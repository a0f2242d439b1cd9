package scheduling

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MinutesPerDay is the exclusive upper bound of a start time and the inclusive
// upper bound of an end time.
const MinutesPerDay = 24 * 60

var (
	// ErrInvalidTimeFormat is returned when a time string is not "hh:mm AM|PM".
	ErrInvalidTimeFormat = errors.New("invalid time format, expected hh:mm AM/PM")
	// ErrSpansMidnight is returned when arithmetic leaves the calendar day.
	ErrSpansMidnight = errors.New("time range crosses midnight")
)

var clockPattern = regexp.MustCompile(`(?i)^(0?[1-9]|1[0-2]):([0-5][0-9]) ?(AM|PM)$`)

// Clock is a time of day expressed as minutes since midnight.
type Clock int

// ParseClock converts a 12-hour time such as "9:30 am" or "11:00 PM" into a Clock.
func ParseClock(raw string) (Clock, error) {
	match := clockPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	hour, _ := strconv.Atoi(match[1])
	minute, _ := strconv.Atoi(match[2])

	hour %= 12
	if strings.EqualFold(match[3], "PM") {
		hour += 12
	}
	return Clock(hour*60 + minute), nil
}

// MustParseClock is ParseClock for literals known to be valid.
func MustParseClock(raw string) Clock {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// Add shifts the clock forward (or back) by the given minutes. The result must
// stay inside the same day; 1440 is allowed and denotes the end of the day.
func (c Clock) Add(minutes int) (Clock, error) {
	next := int(c) + minutes
	if next < 0 || next > MinutesPerDay {
		return 0, fmt.Errorf("%w: %s %+d minutes", ErrSpansMidnight, c, minutes)
	}
	return Clock(next), nil
}

// Minutes returns the raw minute offset.
func (c Clock) Minutes() int {
	return int(c)
}

// String renders the clock as "hh:mm AM|PM".
func (c Clock) String() string {
	offset := int(c) % MinutesPerDay
	if offset < 0 {
		offset += MinutesPerDay
	}
	hour, minute := offset/60, offset%60

	meridiem := "AM"
	if hour >= 12 {
		meridiem = "PM"
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%02d:%02d %s", hour, minute, meridiem)
}

// MarshalJSON encodes the clock in its human form.
func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts the human form produced by MarshalJSON.
func (c *Clock) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseClock(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value stores the clock as an integer column.
func (c Clock) Value() (driver.Value, error) {
	return int64(c), nil
}

// Scan reads an integer minute column.
func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*c = Clock(v)
	case int32:
		*c = Clock(v)
	case int:
		*c = Clock(v)
	case []byte:
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return fmt.Errorf("scan clock: %w", err)
		}
		*c = Clock(n)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("scan clock: %w", err)
		}
		*c = Clock(n)
	default:
		return fmt.Errorf("scan clock: unsupported type %T", src)
	}
	return nil
}
