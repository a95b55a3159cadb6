package web

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classboard/internal/config"
	"classboard/internal/ics"
	appLog "classboard/internal/log"
	"classboard/internal/model"
	"classboard/internal/plugin"
	"classboard/internal/settings"
	"classboard/internal/weather"
)

// Timetable is the course repository as seen by the viewer.
type Timetable interface {
	Now() time.Time
	CurrentWeek() int
	Courses() []model.Course
	Course(id int) (model.Course, bool)
	CoursesForWeek(w int) []model.Course
	CoursesForToday() []model.Course
	NextCourse() (model.Course, bool)
	SlotCount() int
	Slot(i int) (model.TimeSlot, bool)
	AddCourse(data model.Course) (model.Course, error)
	AddCourses(batch []model.Course) ([]model.Course, int, error)
	UpdateCourse(id int, data model.Course) (bool, error)
	DeleteCourse(id int) (bool, error)
}

// Settings is the runtime settings store.
type Settings interface {
	Get(key string, def any) any
	All() map[string]any
	Set(key string, value any) error
	Schedule() settings.Schedule
}

type Weather interface {
	Current(ctx context.Context) (weather.Report, error)
}

type ReminderFeed interface {
	Recent(n int) []model.ReminderEvent
}

type Plugins interface {
	List() []plugin.Info
	Settings(id string) (map[string]any, error)
	SaveSettings(id string, values map[string]any) error
	Enable(ctx context.Context, id string) error
	Disable(id string) error
}

// Deps are the components the viewer reads from. Weather, Reminders,
// Plugins and Fetcher may be nil; their endpoints then answer 404.
type Deps struct {
	Timetable Timetable
	Settings  Settings
	Weather   Weather
	Reminders ReminderFeed
	Plugins   Plugins
	Fetcher   *ics.Fetcher
	Location  *time.Location
}

// Server exposes the timetable over HTTP: a JSON API, the printable
// /timetable page and calendar/spreadsheet exports.
type Server struct {
	cfg    *config.Config
	deps   Deps
	engine *gin.Engine
	page   *template.Template
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		page: template.Must(template.ParseFS(templateFS, "templates/timetable.html")),
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLogger())
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		s.engine.Use(basicAuth(s.cfg.BasicAuth.Username, s.cfg.BasicAuth.Password))
	}
	s.registerRoutes()
	return s
}

// Handler returns the gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) basicAuthEnabled() bool {
	return s.cfg != nil && s.cfg.BasicAuth != nil &&
		s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) registerRoutes() {
	r := s.engine
	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	api.GET("/now", s.handleNow)
	api.GET("/week", s.handleWeek)
	api.GET("/today", s.handleToday)
	api.GET("/next", s.handleNext)

	api.GET("/courses", s.handleListCourses)
	api.POST("/courses", s.handleCreateCourse)
	api.POST("/courses/import", s.handleImportCourses)
	api.GET("/courses/:id", s.handleGetCourse)
	api.PUT("/courses/:id", s.handleUpdateCourse)
	api.DELETE("/courses/:id", s.handleDeleteCourse)

	api.GET("/subjects", s.handleSubjects)

	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handlePutSetting)

	api.GET("/weather", s.handleWeather)
	api.GET("/reminders", s.handleReminders)

	api.GET("/plugins", s.handleListPlugins)
	api.GET("/plugins/:name/settings", s.handleGetPluginSettings)
	api.PUT("/plugins/:name/settings", s.handlePutPluginSettings)
	api.POST("/plugins/:name/enable", s.handleEnablePlugin)
	api.POST("/plugins/:name/disable", s.handleDisablePlugin)

	r.GET("/timetable", s.handleTimetablePage)
	r.GET("/timetable.ics", s.handleExportICS)
	r.GET("/timetable.xlsx", s.handleExportXLSX)
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}
