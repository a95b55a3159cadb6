package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"classboard/internal/ics"
	appLog "classboard/internal/log"
	"classboard/internal/model"
	"classboard/internal/plugin"
	"classboard/internal/settings"
	"classboard/internal/timetable"
	"classboard/internal/weather"
	"classboard/internal/xlsx"
)

var dayNames = [7]string{"周一", "周二", "周三", "周四", "周五", "周六", "周日"}

const maxImportBody = 4 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorBody{Error: msg})
}

// courseDTO is a course plus its display color.
type courseDTO struct {
	model.Course
	Color string `json:"color"`
}

func toDTOs(cs []model.Course) []courseDTO {
	out := make([]courseDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, courseDTO{Course: c, Color: c.Color})
	}
	return out
}

// courseRequest is the body of POST/PUT /api/courses.
type courseRequest struct {
	Name     string `json:"name" binding:"required"`
	Teacher  string `json:"teacher"`
	Location string `json:"location"`
	Subject  string `json:"subject"`
	Weeks    []int  `json:"weeks" binding:"dive,min=1"`
	Day      *int   `json:"day" binding:"required,min=0,max=6"`
	Slot     *int   `json:"slot" binding:"required,min=0"`
	Duration int    `json:"duration" binding:"omitempty,min=1"`
}

func (r courseRequest) course() model.Course {
	c := model.Course{
		Name:     strings.TrimSpace(r.Name),
		Teacher:  r.Teacher,
		Location: r.Location,
		Subject:  r.Subject,
		Weeks:    r.Weeks,
		Day:      *r.Day,
		Slot:     *r.Slot,
		Duration: r.Duration,
	}
	if c.Duration == 0 {
		c.Duration = 1
	}
	if c.Weeks == nil {
		c.Weeks = []int{}
	}
	return c
}

type slotDTO struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s *Server) slots() []slotDTO {
	n := s.deps.Timetable.SlotCount()
	out := make([]slotDTO, 0, n)
	for i := range n {
		ts, ok := s.deps.Timetable.Slot(i)
		if !ok {
			continue
		}
		out = append(out, slotDTO{Index: i, Name: ts.Name, Start: ts.Start.String(), End: ts.End.String()})
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleNow(c *gin.Context) {
	now := s.deps.Timetable.Now().In(s.deps.Location)
	day := model.Weekday(now)
	c.JSON(http.StatusOK, gin.H{
		"time":         now.Format("15:04:05"),
		"date":         now.Format("2006年01月02日"),
		"weekday":      day,
		"weekday_name": dayNames[day],
		"week":         s.deps.Timetable.CurrentWeek(),
	})
}

// handleSubjects lists the subject tags a course may carry and their colors.
func (s *Server) handleSubjects(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"subjects": timetable.Subjects(),
		"default":  timetable.DefaultColor,
	})
}

// weekParam reads ?week=, defaulting to the current week.
func (s *Server) weekParam(c *gin.Context) (int, bool) {
	raw := c.Query("week")
	if raw == "" {
		return s.deps.Timetable.CurrentWeek(), true
	}
	w, err := strconv.Atoi(raw)
	if err != nil || w < 1 {
		writeError(c, http.StatusBadRequest, "week must be a positive integer")
		return 0, false
	}
	return w, true
}

func (s *Server) handleWeek(c *gin.Context) {
	week, ok := s.weekParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"week":    week,
		"days":    dayNames,
		"slots":   s.slots(),
		"courses": toDTOs(s.deps.Timetable.CoursesForWeek(week)),
	})
}

func (s *Server) handleToday(c *gin.Context) {
	now := s.deps.Timetable.Now().In(s.deps.Location)
	c.JSON(http.StatusOK, gin.H{
		"week":    s.deps.Timetable.CurrentWeek(),
		"weekday": model.Weekday(now),
		"courses": toDTOs(s.deps.Timetable.CoursesForToday()),
	})
}

func (s *Server) handleNext(c *gin.Context) {
	next, ok := s.deps.Timetable.NextCourse()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"course": nil})
		return
	}
	resp := gin.H{"course": courseDTO{Course: next, Color: next.Color}}
	if ts, ok := s.deps.Timetable.Slot(next.Slot); ok {
		resp["start"] = ts.Start.String()
		resp["end"] = ts.End.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListCourses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"courses": toDTOs(s.deps.Timetable.Courses())})
}

func courseID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "course id must be an integer")
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetCourse(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	course, found := s.deps.Timetable.Course(id)
	if !found {
		writeError(c, http.StatusNotFound, "course not found")
		return
	}
	c.JSON(http.StatusOK, courseDTO{Course: course, Color: course.Color})
}

func (s *Server) handleCreateCourse(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid course: "+err.Error())
		return
	}
	created, err := s.deps.Timetable.AddCourse(req.course())
	if err != nil {
		s.courseError(c, err)
		return
	}
	c.JSON(http.StatusCreated, courseDTO{Course: created, Color: created.Color})
}

func (s *Server) handleUpdateCourse(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid course: "+err.Error())
		return
	}
	found, err := s.deps.Timetable.UpdateCourse(id, req.course())
	if err != nil {
		s.courseError(c, err)
		return
	}
	if !found {
		writeError(c, http.StatusNotFound, "course not found")
		return
	}
	updated, _ := s.deps.Timetable.Course(id)
	c.JSON(http.StatusOK, courseDTO{Course: updated, Color: updated.Color})
}

func (s *Server) handleDeleteCourse(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	found, err := s.deps.Timetable.DeleteCourse(id)
	if err != nil {
		s.courseError(c, err)
		return
	}
	if !found {
		writeError(c, http.StatusNotFound, "course not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) courseError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, timetable.ErrInvalidCourse):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "failed to save courses")
	}
}

// handleImportCourses accepts an ICS body, or ?url= to fetch a subscribed
// calendar, and appends the resulting courses.
func (s *Server) handleImportCourses(c *gin.Context) {
	var body []byte
	if src := c.Query("url"); src != "" {
		if s.deps.Fetcher == nil || !ics.IsURL(src) {
			writeError(c, http.StatusBadRequest, "url import not available")
			return
		}
		res, err := s.deps.Fetcher.Fetch(c.Request.Context(), src)
		if err != nil {
			_ = c.Error(err)
			writeError(c, http.StatusBadGateway, "fetch calendar failed")
			return
		}
		body = res.Body
	} else {
		b, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBody))
		if err != nil {
			writeError(c, http.StatusBadRequest, "read body failed")
			return
		}
		body = b
	}

	res, err := ics.Import(body, s.deps.Settings.Schedule(), s.deps.Timetable, s.deps.Location)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid calendar: "+err.Error())
		return
	}

	created, dup, err := s.deps.Timetable.AddCourses(res.Courses)
	if err != nil {
		appLog.Error("import: add courses failed", err, "count", len(res.Courses))
		s.courseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"imported":   toDTOs(created),
		"skipped":    res.Skipped,
		"duplicates": dup,
	})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusOK, s.deps.Settings.All())
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": s.deps.Settings.Get(key, nil)})
}

type settingRequest struct {
	Key   string `json:"key" binding:"required"`
	Value any    `json:"value"`
}

func (s *Server) handlePutSetting(c *gin.Context) {
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "key is required")
		return
	}
	if err := s.deps.Settings.Set(req.Key, req.Value); err != nil {
		if errors.Is(err, settings.ErrPersistence) {
			_ = c.Error(err)
			writeError(c, http.StatusInternalServerError, "setting applied but not saved")
			return
		}
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": req.Key, "value": s.deps.Settings.Get(req.Key, nil)})
}

func (s *Server) handleWeather(c *gin.Context) {
	if s.deps.Weather == nil {
		writeError(c, http.StatusNotFound, "weather not configured")
		return
	}
	report, err := s.deps.Weather.Current(c.Request.Context())
	switch {
	case errors.Is(err, weather.ErrDisabled):
		writeError(c, http.StatusNotFound, "weather disabled")
	case err != nil:
		_ = c.Error(err)
		writeError(c, http.StatusBadGateway, "weather unavailable")
	default:
		c.JSON(http.StatusOK, report)
	}
}

func (s *Server) handleReminders(c *gin.Context) {
	if s.deps.Reminders == nil {
		c.JSON(http.StatusOK, gin.H{"reminders": []model.ReminderEvent{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	c.JSON(http.StatusOK, gin.H{"reminders": s.deps.Reminders.Recent(limit)})
}

func (s *Server) pluginsOr404(c *gin.Context) (Plugins, bool) {
	if s.deps.Plugins == nil {
		writeError(c, http.StatusNotFound, "plugins not available")
		return nil, false
	}
	return s.deps.Plugins, true
}

func (s *Server) pluginError(c *gin.Context, err error) {
	if errors.Is(err, plugin.ErrUnknownPlugin) {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	writeError(c, http.StatusBadRequest, err.Error())
}

func (s *Server) handleListPlugins(c *gin.Context) {
	p, ok := s.pluginsOr404(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"plugins": p.List()})
}

func (s *Server) handleGetPluginSettings(c *gin.Context) {
	p, ok := s.pluginsOr404(c)
	if !ok {
		return
	}
	view, err := p.Settings(c.Param("name"))
	if err != nil {
		s.pluginError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handlePutPluginSettings(c *gin.Context) {
	p, ok := s.pluginsOr404(c)
	if !ok {
		return
	}
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil {
		writeError(c, http.StatusBadRequest, "settings must be a JSON object")
		return
	}
	name := c.Param("name")
	if err := p.SaveSettings(name, values); err != nil {
		s.pluginError(c, err)
		return
	}
	view, _ := p.Settings(name)
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleEnablePlugin(c *gin.Context) {
	p, ok := s.pluginsOr404(c)
	if !ok {
		return
	}
	if err := p.Enable(c.Request.Context(), c.Param("name")); err != nil {
		s.pluginError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDisablePlugin(c *gin.Context) {
	p, ok := s.pluginsOr404(c)
	if !ok {
		return
	}
	if err := p.Disable(c.Param("name")); err != nil {
		s.pluginError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExportICS(c *gin.Context) {
	body, err := ics.Export(s.deps.Timetable.Courses(), s.deps.Settings.Schedule(), s.deps.Timetable, s.deps.Location, time.Now())
	if err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "export failed")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="timetable.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", body)
}

func (s *Server) handleExportXLSX(c *gin.Context) {
	week, ok := s.weekParam(c)
	if !ok {
		return
	}
	buf, filename, err := xlsx.Export(week, s.deps.Timetable.CoursesForWeek(week), s.deps.Timetable)
	if err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "export failed")
		return
	}
	const mime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.QueryEscape(filename)))
	c.Data(http.StatusOK, mime, buf.Bytes())
}
