package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// LocalTime is a wall-clock time of day with minute precision, stored as
// minutes since midnight.
type LocalTime int

const minutesPerDay = 24 * 60

// ParseLocalTime parses a 24-hour "HH:MM" string.
func ParseLocalTime(s string) (LocalTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return LocalTime(t.Hour()*60 + t.Minute()), nil
}

// MustLocalTime is ParseLocalTime for literals known to be valid.
func MustLocalTime(s string) LocalTime {
	lt, err := ParseLocalTime(s)
	if err != nil {
		panic(err)
	}
	return lt
}

// LocalTimeOf returns the time of day of t in t's location, truncated to the minute.
func LocalTimeOf(t time.Time) LocalTime {
	return LocalTime(t.Hour()*60 + t.Minute())
}

// AddMinutes shifts the time of day, wrapping around midnight.
func (lt LocalTime) AddMinutes(m int) LocalTime {
	v := (int(lt) + m) % minutesPerDay
	if v < 0 {
		v += minutesPerDay
	}
	return LocalTime(v)
}

// On places the time of day on the calendar date of day, in day's location.
func (lt LocalTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(lt)/60, int(lt)%60, 0, 0, day.Location())
}

func (lt LocalTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(lt)/60, int(lt)%60)
}

func (lt LocalTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(lt.String())
}

func (lt *LocalTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseLocalTime(s)
	if err != nil {
		return err
	}
	*lt = v
	return nil
}
