package model

import "time"

// TimeSlot is one named period of the school day, e.g. "period 3".
// Its index in the slot table is the slot number courses refer to.
type TimeSlot struct {
	Name  string    `json:"name"`
	Start LocalTime `json:"start"`
	End   LocalTime `json:"end"`
}

// Course is a single weekly timetable entry.
type Course struct {
	ID       int    `json:"id"`
	Name     string `json:"name" validate:"required"`
	Teacher  string `json:"teacher"`
	Location string `json:"location"`

	// Subject is an explicit subject tag used for color lookup.
	Subject string `json:"subject,omitempty"`

	// Weeks lists the 1-based academic weeks the course runs in.
	Weeks []int `json:"weeks" validate:"dive,min=1"`

	// Day is 0 for Monday through 6 for Sunday.
	Day int `json:"day" validate:"min=0,max=6"`

	// Slot indexes the time slot table; Duration counts consecutive slots.
	Slot     int `json:"slot" validate:"min=0"`
	Duration int `json:"duration" validate:"min=1"`

	// Color is derived from Subject and never persisted.
	Color string `json:"-"`
}

// InWeek reports whether the course runs in academic week w.
func (c Course) InWeek(w int) bool {
	for _, x := range c.Weeks {
		if x == w {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot alias the repository's slices.
func (c Course) Clone() Course {
	out := c
	if c.Weeks != nil {
		out.Weeks = append([]int(nil), c.Weeks...)
	}
	return out
}

// ReminderEvent is produced by the reminder engine for a course whose
// armed window has been entered.
type ReminderEvent struct {
	ID         string    `json:"id"`
	CourseID   int       `json:"course_id"`
	CourseName string    `json:"course_name"`
	Location   string    `json:"location"`
	Teacher    string    `json:"teacher"`
	StartTime  string    `json:"start_time"`
	FiredAt    time.Time `json:"fired_at"`
}

// Weekday converts a time.Weekday to the Monday=0 convention used by Course.Day.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
