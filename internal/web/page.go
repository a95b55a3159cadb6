package web

import (
	"bytes"
	"embed"
	"net/http"

	"github.com/gin-gonic/gin"

	"classboard/internal/model"
	"classboard/internal/weather"
)

//go:embed templates/timetable.html
var templateFS embed.FS

type pageCourse struct {
	Name     string
	Location string
	Teacher  string
	Color    string
	// Continued is set on the second and later slots of a multi-slot course.
	Continued bool
}

type pageRow struct {
	Slot  slotDTO
	Cells [7][]pageCourse
}

type pageData struct {
	Week    int
	Today   int
	Current bool
	Days    [7]string
	Rows    []pageRow
	Weather *weather.Report
}

// handleTimetablePage renders the week grid. The root element carries
// data-ready="true" once rendered so the snapshot tool knows when to shoot.
func (s *Server) handleTimetablePage(c *gin.Context) {
	week, ok := s.weekParam(c)
	if !ok {
		return
	}
	now := s.deps.Timetable.Now().In(s.deps.Location)

	data := pageData{
		Week:    week,
		Today:   model.Weekday(now),
		Current: week == s.deps.Timetable.CurrentWeek(),
		Days:    dayNames,
		Rows:    s.pageRows(week),
	}
	if s.deps.Weather != nil {
		if r, err := s.deps.Weather.Current(c.Request.Context()); err == nil {
			data.Weather = &r
		}
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) pageRows(week int) []pageRow {
	slots := s.slots()
	rows := make([]pageRow, len(slots))
	byIndex := make(map[int]int, len(slots))
	for i, sl := range slots {
		rows[i].Slot = sl
		byIndex[sl.Index] = i
	}

	for _, c := range s.deps.Timetable.CoursesForWeek(week) {
		i, ok := byIndex[c.Slot]
		if !ok || c.Day < 0 || c.Day > 6 {
			continue
		}
		span := min(max(c.Duration, 1), len(rows)-i)
		for j := i; j < i+span; j++ {
			rows[j].Cells[c.Day] = append(rows[j].Cells[c.Day], pageCourse{
				Name:      c.Name,
				Location:  c.Location,
				Teacher:   c.Teacher,
				Color:     c.Color,
				Continued: j > i,
			})
		}
	}
	return rows
}
