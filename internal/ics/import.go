package ics

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "classboard/internal/log"
	"classboard/internal/model"
	"classboard/internal/settings"
	"classboard/internal/timetable"
)

// maxOccurrencesPerEvent caps RRULE expansion for unbounded rules.
const maxOccurrencesPerEvent = 1000

// ImportResult holds the courses built from a calendar. Courses carry no
// id; the repository assigns one on insert.
type ImportResult struct {
	Courses []model.Course
	// Skipped counts events that matched no slot or fell outside the
	// semester.
	Skipped int
}

// Import maps VEVENTs onto the slot table. An event becomes a course when
// its start time equals a slot start; its duration is the number of slots
// that begin before DTEND, and its weeks come from expanding the RRULE
// (minus EXDATEs) over the semester. Events sharing name, weekday and slot
// are merged into one course.
func Import(body []byte, sc settings.Schedule, slots Slots, loc *time.Location) (ImportResult, error) {
	var res ImportResult
	if loc == nil {
		loc = time.Local
	}

	semStart, err := timetable.WeekStart(sc, 1, loc)
	if err != nil {
		return res, err
	}
	semEnd := semStart.AddDate(1, 0, 0)
	if sc.TotalWeeks > 0 {
		semEnd = semStart.AddDate(0, 0, sc.TotalWeeks*7)
	}

	events, err := parseCalendar(body, loc)
	if err != nil {
		return res, err
	}

	starts := slotStarts(slots)
	index := make(map[string]int)

	for _, ev := range events {
		if ev.AllDay {
			res.Skipped++
			continue
		}
		slot := slices.Index(starts, model.LocalTimeOf(ev.Start))
		if slot < 0 {
			appLog.Debug("ics import: no slot starts at event time", "summary", ev.Summary, "start", ev.Start)
			res.Skipped++
			continue
		}

		weeks := eventWeeks(ev, sc, semStart, semEnd)
		if len(weeks) == 0 {
			appLog.Debug("ics import: event outside semester", "summary", ev.Summary, "start", ev.Start)
			res.Skipped++
			continue
		}

		c := model.Course{
			Name:     ev.Summary,
			Teacher:  teacherFrom(ev.Description),
			Location: ev.Location,
			Subject:  ev.Category,
			Weeks:    weeks,
			Day:      model.Weekday(ev.Start),
			Slot:     slot,
			Duration: slotSpan(slots, slot, model.LocalTimeOf(ev.End)),
		}

		key := mergeKey(c)
		if i, ok := index[key]; ok {
			merged := &res.Courses[i]
			merged.Weeks = uniqueWeeks(append(merged.Weeks, c.Weeks...))
			merged.Duration = max(merged.Duration, c.Duration)
			continue
		}
		index[key] = len(res.Courses)
		res.Courses = append(res.Courses, c)
	}

	appLog.Info("ics import completed", "courses", len(res.Courses), "skipped", res.Skipped)
	return res, nil
}

// eventWeeks lists the semester weeks the event occurs in.
func eventWeeks(ev parsedEvent, sc settings.Schedule, semStart, semEnd time.Time) []int {
	occurrences := []time.Time{ev.Start}

	if ev.RawRRule != "" {
		r, err := rrule.StrToRRule(ev.RawRRule)
		if err != nil {
			appLog.Error("ics import: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		} else {
			r.DTStart(ev.Start)
			var set rrule.Set
			set.RRule(r)
			for _, ex := range ev.ExDates {
				set.ExDate(ex.In(ev.Start.Location()))
			}
			occurrences = set.Between(semStart, semEnd, true)
			if len(occurrences) > maxOccurrencesPerEvent {
				appLog.Error("ics import: truncated occurrences", errors.New("max occurrences reached"),
					"uid", ev.UID, "cap", maxOccurrencesPerEvent)
				occurrences = occurrences[:maxOccurrencesPerEvent]
			}
		}
	}

	weeks := make([]int, 0, len(occurrences))
	for _, t := range occurrences {
		if t.Before(semStart) || !t.Before(semEnd) {
			continue
		}
		weeks = append(weeks, timetable.WeekAt(sc, t))
	}
	return uniqueWeeks(weeks)
}

func slotStarts(slots Slots) []model.LocalTime {
	n := slots.SlotCount()
	out := make([]model.LocalTime, n)
	for i := range n {
		if s, ok := slots.Slot(i); ok {
			out[i] = s.Start
		} else {
			out[i] = -1
		}
	}
	return out
}

// slotSpan counts consecutive slots from first that start before end.
func slotSpan(slots Slots, first int, end model.LocalTime) int {
	n := 1
	for i := first + 1; i < slots.SlotCount(); i++ {
		s, ok := slots.Slot(i)
		if !ok || s.Start >= end {
			break
		}
		n++
	}
	return n
}

func mergeKey(c model.Course) string {
	return fmt.Sprintf("%s|%d|%d", c.Name, c.Day, c.Slot)
}

// teacherFrom reads the teacher back out of an exported DESCRIPTION.
func teacherFrom(desc string) string {
	t, ok := strings.CutPrefix(desc, teacherPrefix)
	if !ok {
		return ""
	}
	return strings.TrimSpace(t)
}
