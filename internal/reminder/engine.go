// Package reminder decides, once per tick, which of today's courses need a
// "class starts soon" reminder and hands those events to a Sink.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "classboard/internal/log"
	"classboard/internal/model"
	"classboard/internal/settings"
)

// DefaultCooldown is the minimum gap between two reminders for one course.
const DefaultCooldown = 300 * time.Second

const secondsPerDay = 24 * 60 * 60

// Timetable is the part of the schedule repository the engine reads.
type Timetable interface {
	WeekOf(now time.Time) int
	CoursesForWeek(week int) []model.Course
	Slot(i int) (model.TimeSlot, bool)
}

// Preferences supplies the notification.* settings.
type Preferences interface {
	GetBool(key string, def bool) bool
	GetInt(key string, def int) int
}

// fired records the last reminder for one course id.
type fired struct {
	at     time.Time
	window string
}

// Engine is safe for concurrent use, but ticks are expected to be serialized
// by the scheduler.
type Engine struct {
	mu       sync.Mutex
	table    Timetable
	prefs    Preferences
	sink     Sink
	cooldown time.Duration
	lastFire map[int]fired
	newID    func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(e *Engine) {
		e.cooldown = d
	}
}

// WithIDFunc overrides the event id generator.
func WithIDFunc(f func() string) Option {
	return func(e *Engine) {
		e.newID = f
	}
}

func NewEngine(table Timetable, prefs Preferences, sink Sink, opts ...Option) *Engine {
	e := &Engine{
		table:    table,
		prefs:    prefs,
		sink:     sink,
		cooldown: DefaultCooldown,
		lastFire: make(map[int]fired),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tick evaluates every course scheduled today against now and emits a
// reminder for each course whose armed window [start-advance, start]
// contains now.
//
// A course fires at most once per armed window (keyed by date and slot
// start) and never twice within the cooldown. Sink failures are logged and
// do not stop the remaining courses.
func (e *Engine) Tick(ctx context.Context, now time.Time) []model.ReminderEvent {
	if !e.prefs.GetBool(settings.KeyNotificationEnable, true) {
		return nil
	}
	advance := e.prefs.GetInt(settings.KeyNotificationAdvance, 10)

	week := e.table.WeekOf(now)
	today := model.Weekday(now)
	cur := secondsOfDay(now)

	e.mu.Lock()
	defer e.mu.Unlock()

	var events []model.ReminderEvent
	for _, c := range e.table.CoursesForWeek(week) {
		if c.Day != today {
			continue
		}
		slot, ok := e.table.Slot(c.Slot)
		if !ok {
			appLog.Debug("reminder: slot not in slot table, skipping", "course_id", c.ID, "slot", c.Slot)
			continue
		}

		start := int(slot.Start) * 60
		remindAt := mod(start-advance*60, secondsPerDay)
		if !inWindow(cur, remindAt, start) {
			continue
		}

		window := now.Format("2006-01-02") + "@" + slot.Start.String()
		if last, ok := e.lastFire[c.ID]; ok {
			if now.Sub(last.at) < e.cooldown || last.window == window {
				continue
			}
		}

		ev := model.ReminderEvent{
			ID:         e.newID(),
			CourseID:   c.ID,
			CourseName: c.Name,
			Location:   c.Location,
			Teacher:    c.Teacher,
			StartTime:  slot.Start.String(),
			FiredAt:    now,
		}
		e.deliver(ctx, ev)
		e.lastFire[c.ID] = fired{at: now, window: window}
		events = append(events, ev)
	}
	return events
}

// LastFired reports when a course last produced a reminder.
func (e *Engine) LastFired(courseID int) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.lastFire[courseID]
	return f.at, ok
}

func (e *Engine) deliver(ctx context.Context, ev model.ReminderEvent) {
	defer func() {
		if r := recover(); r != nil {
			appLog.Error("reminder sink panicked", fmt.Errorf("%v", r), "course_id", ev.CourseID)
		}
	}()
	if err := e.sink.Notify(ctx, ev); err != nil {
		appLog.Error("reminder delivery failed", err, "course_id", ev.CourseID, "course", ev.CourseName)
		return
	}
	appLog.Info("reminder sent", "course_id", ev.CourseID, "course", ev.CourseName, "start", ev.StartTime)
}

// inWindow reports whether cur lies in [from, to]. When from > to the window
// spans midnight.
func inWindow(cur, from, to int) bool {
	if from <= to {
		return from <= cur && cur <= to
	}
	return cur >= from || cur <= to
}

func secondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
