// Package ics converts between the course table and iCalendar files.
package ics

import (
	"fmt"
	"slices"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "classboard/internal/log"
	"classboard/internal/model"
	"classboard/internal/settings"
	"classboard/internal/timetable"
)

const (
	prodID        = "-//classboard//timetable//CN"
	utcLayout     = "20060102T150405Z"
	teacherPrefix = "教师: "
)

// Slots is the configured slot table.
type Slots interface {
	SlotCount() int
	Slot(i int) (model.TimeSlot, bool)
}

// Export renders courses as a calendar with one recurring VEVENT per course.
// A course spanning weeks 1..16 with gaps becomes a weekly RRULE over the
// whole range plus an EXDATE for every missing week. Courses whose slot or
// weeks cannot be resolved are skipped.
func Export(courses []model.Course, sc settings.Schedule, slots Slots, loc *time.Location, now time.Time) ([]byte, error) {
	if loc == nil {
		loc = time.Local
	}
	if _, err := timetable.WeekStart(sc, 1, loc); err != nil {
		return nil, err
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)
	cal.SetName("课程表")

	exported := 0
	for _, c := range courses {
		if err := addCourse(cal, c, sc, slots, loc, now); err != nil {
			appLog.Warn("ics export: course skipped", "course_id", c.ID, "name", c.Name, "reason", err.Error())
			continue
		}
		exported++
	}

	appLog.Info("ics export completed", "courses", exported, "skipped", len(courses)-exported)
	return []byte(cal.Serialize()), nil
}

func addCourse(cal *ical.Calendar, c model.Course, sc settings.Schedule, slots Slots, loc *time.Location, now time.Time) error {
	weeks := uniqueWeeks(c.Weeks)
	if len(weeks) == 0 {
		return fmt.Errorf("no weeks")
	}
	first, last := weeks[0], weeks[len(weeks)-1]

	startSlot, ok := slots.Slot(c.Slot)
	if !ok {
		return fmt.Errorf("slot %d not configured", c.Slot)
	}
	endSlot, ok := slots.Slot(c.Slot + max(c.Duration, 1) - 1)
	if !ok {
		endSlot = startSlot
	}

	day, err := timetable.DateOf(sc, first, c.Day, loc)
	if err != nil {
		return err
	}
	start := startSlot.Start.On(day)
	end := endSlot.End.On(day)

	ev := cal.AddEvent(fmt.Sprintf("course-%d@classboard", c.ID))
	ev.SetDtStampTime(now)
	ev.SetSummary(c.Name)
	if c.Location != "" {
		ev.SetLocation(c.Location)
	}
	if c.Teacher != "" {
		ev.SetDescription(teacherPrefix + c.Teacher)
	}
	if c.Subject != "" {
		ev.SetProperty(ical.ComponentPropertyCategories, c.Subject)
	}
	ev.SetStartAt(start)
	ev.SetEndAt(end)

	if last > first {
		opt := rrule.ROption{Freq: rrule.WEEKLY, Count: last - first + 1}
		ev.AddProperty(ical.ComponentPropertyRrule, opt.RRuleString())

		for w := first + 1; w < last; w++ {
			if slices.Contains(weeks, w) {
				continue
			}
			skipped := start.AddDate(0, 0, (w-first)*7)
			ev.AddProperty(ical.ComponentPropertyExdate, skipped.UTC().Format(utcLayout))
		}
	}
	return nil
}

func uniqueWeeks(weeks []int) []int {
	out := make([]int, 0, len(weeks))
	for _, w := range weeks {
		if w >= 1 {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
