// Package timetable owns course records and the slot table and answers
// week/day queries against them.
package timetable

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	appLog "classboard/internal/log"
	"classboard/internal/model"
	"classboard/internal/settings"
)

var (
	// ErrPersistence wraps failures writing courses.json.
	ErrPersistence = errors.New("timetable: persist failed")
	// ErrInvalidCourse wraps validation failures on add/update.
	ErrInvalidCourse = errors.New("timetable: invalid course")
)

// ScheduleSource provides the timetable.* settings.
type ScheduleSource interface {
	Schedule() settings.Schedule
}

// Repository holds the course list in memory and mirrors every mutation to
// a JSON file. Readers get copies; the internal slice is never exposed.
type Repository struct {
	mu       sync.RWMutex
	src      ScheduleSource
	path     string
	courses  []model.Course
	now      func() time.Time
	validate *validator.Validate
}

// Option customizes a Repository.
type Option func(*Repository)

// WithClock overrides time.Now, e.g. to pin the display timezone or in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// Open loads courses from path. A missing file is seeded with example
// courses; a corrupt one is logged and the examples are used in memory only.
func Open(path string, src ScheduleSource, opts ...Option) (*Repository, error) {
	if path == "" {
		return nil, errors.New("courses path is empty")
	}
	r := &Repository{
		src:      src,
		path:     path,
		now:      time.Now,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(r)
	}

	courses, err := loadCourses(path)
	switch {
	case err == nil:
		appLog.Info("courses loaded", "path", path, "count", len(courses))
		r.courses = courses
	case isNotExist(err):
		appLog.Info("courses file missing, creating example data", "path", path)
		r.courses = exampleCourses()
		if err := saveCourses(path, r.courses); err != nil {
			appLog.Error("save example courses failed", err, "path", path)
			return r, err
		}
	default:
		appLog.Error("load courses failed, using example data", err, "path", path)
		r.courses = exampleCourses()
	}
	return r, nil
}

// Now is the repository's clock.
func (r *Repository) Now() time.Time {
	return r.now()
}

// CurrentWeek derives the academic week from the semester start date. It is
// recomputed on every call.
func (r *Repository) CurrentWeek() int {
	return WeekAt(r.src.Schedule(), r.now())
}

// WeekOf is CurrentWeek evaluated at an arbitrary instant.
func (r *Repository) WeekOf(now time.Time) int {
	return WeekAt(r.src.Schedule(), now)
}

// WeekAt computes the academic week containing now.
//
// The result is floor(days since start / 7) + 1 clamped to [1, total_weeks].
// A non-positive total_weeks disables the upper clamp. An unparsable start
// date falls back to the stored current_week.
func WeekAt(sc settings.Schedule, now time.Time) int {
	start, err := time.ParseInLocation(settings.DateLayout, sc.SemesterStart, now.Location())
	if err != nil {
		appLog.Error("parse semester start failed, using stored current week", err,
			"semester_start_date", sc.SemesterStart,
			"current_week", sc.CurrentWeek,
		)
		return sc.CurrentWeek
	}

	week := floorDiv(daysBetween(start, now), 7) + 1
	if week < 1 {
		week = 1
	}
	if sc.TotalWeeks > 0 && week > sc.TotalWeeks {
		week = sc.TotalWeeks
	}
	return week
}

// WeekStart returns the date on which academic week w begins,
// counting from the semester start date.
func WeekStart(sc settings.Schedule, w int, loc *time.Location) (time.Time, error) {
	start, err := time.ParseInLocation(settings.DateLayout, sc.SemesterStart, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse semester start %q: %w", sc.SemesterStart, err)
	}
	return start.AddDate(0, 0, (w-1)*7), nil
}

// DateOf returns the calendar date in academic week w that falls on day
// (Monday=0). It agrees with WeekAt: WeekAt(sc, DateOf(...)) == w.
func DateOf(sc settings.Schedule, w, day int, loc *time.Location) (time.Time, error) {
	ws, err := WeekStart(sc, w, loc)
	if err != nil {
		return time.Time{}, err
	}
	offset := (day - model.Weekday(ws) + 7) % 7
	return ws.AddDate(0, 0, offset), nil
}

// daysBetween counts calendar days from a to b, ignoring clock time and DST.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Courses returns every course in insertion order.
func (r *Repository) Courses() []model.Course {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Course, 0, len(r.courses))
	for _, c := range r.courses {
		out = append(out, colored(c))
	}
	return out
}

// Course looks up a single course by id.
func (r *Repository) Course(id int) (model.Course, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return colored(r.courses[i]), true
	}
	return model.Course{}, false
}

// CoursesForWeek returns the courses that run in week w, in insertion order,
// with Color filled in.
func (r *Repository) CoursesForWeek(w int) []model.Course {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Course, 0)
	for _, c := range r.courses {
		if c.InWeek(w) {
			out = append(out, colored(c))
		}
	}
	return out
}

// CoursesForToday returns this week's courses on today's weekday sorted by slot.
func (r *Repository) CoursesForToday() []model.Course {
	now := r.now()
	return r.coursesOn(WeekAt(r.src.Schedule(), now), model.Weekday(now))
}

func (r *Repository) coursesOn(week, day int) []model.Course {
	var out []model.Course
	for _, c := range r.CoursesForWeek(week) {
		if c.Day == day {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// NextCourse returns the first course today whose slot has not yet ended.
func (r *Repository) NextCourse() (model.Course, bool) {
	now := r.now()
	cur := model.LocalTimeOf(now)
	for _, c := range r.coursesOn(WeekAt(r.src.Schedule(), now), model.Weekday(now)) {
		slot, ok := r.Slot(c.Slot)
		if !ok {
			continue
		}
		if cur < slot.End {
			return c, true
		}
	}
	return model.Course{}, false
}

// SlotCount is the length of the configured slot table.
func (r *Repository) SlotCount() int {
	return len(r.src.Schedule().TimeSlots)
}

// Slot resolves slot index i. It reports false when i is out of range or
// the stored times do not parse.
func (r *Repository) Slot(i int) (model.TimeSlot, bool) {
	return resolveSlot(r.src.Schedule().TimeSlots, i)
}

func resolveSlot(specs []settings.SlotSpec, i int) (model.TimeSlot, bool) {
	if i < 0 || i >= len(specs) {
		return model.TimeSlot{}, false
	}
	spec := specs[i]
	start, err := model.ParseLocalTime(spec.Start)
	if err != nil {
		appLog.Error("bad slot start time", err, "slot", i, "value", spec.Start)
		return model.TimeSlot{}, false
	}
	end, err := model.ParseLocalTime(spec.End)
	if err != nil {
		appLog.Error("bad slot end time", err, "slot", i, "value", spec.End)
		return model.TimeSlot{}, false
	}
	return model.TimeSlot{Name: spec.Name, Start: start, End: end}, true
}

// AddCourse assigns the next id (max existing + 1), appends data and persists.
func (r *Repository) AddCourse(data model.Course) (model.Course, error) {
	if err := r.check(data); err != nil {
		return model.Course{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	maxID := 0
	for _, c := range r.courses {
		if c.ID > maxID {
			maxID = c.ID
		}
	}
	nc := data.Clone()
	nc.ID = maxID + 1
	nc.Color = ""

	prev := r.courses
	r.courses = append(append(make([]model.Course, 0, len(prev)+1), prev...), nc)
	if err := saveCourses(r.path, r.courses); err != nil {
		r.courses = prev
		appLog.Error("add course failed", err, "name", nc.Name)
		return model.Course{}, err
	}
	appLog.Info("course added", "id", nc.ID, "name", nc.Name)
	return colored(nc), nil
}

// AddCourses adds a batch in one write. Every course is validated before
// anything changes; courses whose name, day and slot match an existing
// course (or an earlier one in the batch) are skipped and counted. On a
// write failure nothing is kept.
func (r *Repository) AddCourses(batch []model.Course) ([]model.Course, int, error) {
	for _, c := range batch {
		if err := r.check(c); err != nil {
			return nil, 0, fmt.Errorf("course %q: %w", c.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(r.courses)+len(batch))
	maxID := 0
	for _, c := range r.courses {
		seen[identity(c)] = true
		if c.ID > maxID {
			maxID = c.ID
		}
	}

	prev := r.courses
	next := append(make([]model.Course, 0, len(prev)+len(batch)), prev...)
	added := make([]model.Course, 0, len(batch))
	dup := 0
	for _, c := range batch {
		key := identity(c)
		if seen[key] {
			dup++
			continue
		}
		seen[key] = true
		maxID++
		nc := c.Clone()
		nc.ID = maxID
		nc.Color = ""
		next = append(next, nc)
		added = append(added, colored(nc))
	}
	if len(added) == 0 {
		return added, dup, nil
	}

	r.courses = next
	if err := saveCourses(r.path, r.courses); err != nil {
		r.courses = prev
		appLog.Error("add courses failed", err, "count", len(added))
		return nil, 0, err
	}
	appLog.Info("courses added", "count", len(added), "duplicates", dup)
	return added, dup, nil
}

// identity is what makes two courses the same entry for AddCourses.
func identity(c model.Course) string {
	return fmt.Sprintf("%s|%d|%d", strings.TrimSpace(c.Name), c.Day, c.Slot)
}

// UpdateCourse replaces the course with the given id, keeping the id.
// It returns false when no such course exists.
func (r *Repository) UpdateCourse(id int, data model.Course) (bool, error) {
	if err := r.check(data); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		appLog.Warn("update course: not found", "id", id)
		return false, nil
	}
	uc := data.Clone()
	uc.ID = id
	uc.Color = ""

	prev := r.courses[i]
	r.courses[i] = uc
	if err := saveCourses(r.path, r.courses); err != nil {
		r.courses[i] = prev
		appLog.Error("update course failed", err, "id", id)
		return false, err
	}
	appLog.Info("course updated", "id", id, "name", uc.Name)
	return true, nil
}

// DeleteCourse removes the course with the given id. It returns false when
// no such course exists.
func (r *Repository) DeleteCourse(id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		appLog.Warn("delete course: not found", "id", id)
		return false, nil
	}

	prev := r.courses
	next := make([]model.Course, 0, len(prev)-1)
	next = append(next, prev[:i]...)
	next = append(next, prev[i+1:]...)
	r.courses = next
	if err := saveCourses(r.path, r.courses); err != nil {
		r.courses = prev
		appLog.Error("delete course failed", err, "id", id)
		return false, err
	}
	appLog.Info("course deleted", "id", id)
	return true, nil
}

// check validates field ranges and that the slot exists in the slot table.
func (r *Repository) check(c model.Course) error {
	if err := r.validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCourse, err)
	}
	if n := r.SlotCount(); c.Slot >= n {
		return fmt.Errorf("%w: slot %d outside slot table of %d", ErrInvalidCourse, c.Slot, n)
	}
	return nil
}

// indexOf must be called with mu held.
func (r *Repository) indexOf(id int) int {
	for i, c := range r.courses {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func colored(c model.Course) model.Course {
	out := c.Clone()
	out.Color = ColorFor(c.Subject)
	return out
}
