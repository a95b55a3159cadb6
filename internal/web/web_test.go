package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"classboard/internal/config"
	"classboard/internal/ics"
	"classboard/internal/model"
	"classboard/internal/plugin"
	"classboard/internal/plugin/hello"
	"classboard/internal/reminder"
	"classboard/internal/settings"
	"classboard/internal/timetable"
	"classboard/internal/weather"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Monday of academic week 6 when the semester starts 2026-09-07.
var testNow = time.Date(2026, 10, 12, 7, 55, 0, 0, time.UTC)

type fakeWeather struct {
	report weather.Report
	err    error
}

func (f fakeWeather) Current(context.Context) (weather.Report, error) { return f.report, f.err }

type fixture struct {
	srv   *Server
	repo  *timetable.Repository
	store *settings.Store
	feed  *reminder.FeedSink
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := settings.Open(filepath.Join(dir, "settings.json"))
	if err != nil {
		t.Fatalf("settings.Open() error = %v", err)
	}
	if err := store.Set(settings.KeySemesterStart, "2026-09-07"); err != nil {
		t.Fatal(err)
	}

	repo, err := timetable.Open(filepath.Join(dir, "courses.json"), store,
		timetable.WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("timetable.Open() error = %v", err)
	}

	reg := plugin.NewRegistry(store)
	if err := reg.Register(hello.ID, hello.New); err != nil {
		t.Fatal(err)
	}

	feed := reminder.NewFeedSink(10)
	if cfg == nil {
		cfg = &config.Config{Listen: "127.0.0.1:0"}
	}
	srv := NewServer(cfg, Deps{
		Timetable: repo,
		Settings:  store,
		Weather:   fakeWeather{report: weather.Report{City: "北京", Temperature: "21", Condition: "晴"}},
		Reminders: feed,
		Plugins:   reg,
		Fetcher:   ics.NewFetcher(filepath.Join(dir, "ics-cache")),
		Location:  time.UTC,
	})
	return &fixture{srv: srv, repo: repo, store: store, feed: feed}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestBasicAuth_HealthIsOpen(t *testing.T) {
	f := newFixture(t, &config.Config{
		Listen:    "127.0.0.1:0",
		BasicAuth: &config.BasicAuthConfig{Username: "admin", Password: "secret"},
	})

	if w := f.do(t, http.MethodGet, "/health", nil); w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("/health = %d %q", w.Code, w.Body.String())
	}
	w := f.do(t, http.MethodGet, "/api/courses", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("/api/courses without auth = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("/api/courses with auth = %d", rec.Code)
	}
}

func TestNowTodayNext(t *testing.T) {
	f := newFixture(t, nil)

	now := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/now", nil))
	if now["week"] != float64(6) || now["weekday"] != float64(0) || now["weekday_name"] != "周一" {
		t.Errorf("/api/now = %v", now)
	}
	if now["time"] != "07:55:00" {
		t.Errorf("time = %v", now["time"])
	}

	today := decode[struct {
		Courses []courseDTO `json:"courses"`
	}](t, f.do(t, http.MethodGet, "/api/today", nil))
	if len(today.Courses) != 2 || today.Courses[0].Name != "高等数学" || today.Courses[1].Name != "大学英语" {
		t.Errorf("/api/today = %+v", today.Courses)
	}
	if today.Courses[0].Color == "" {
		t.Error("course color missing")
	}

	next := decode[struct {
		Course *courseDTO `json:"course"`
		Start  string     `json:"start"`
	}](t, f.do(t, http.MethodGet, "/api/next", nil))
	if next.Course == nil || next.Course.Name != "高等数学" || next.Start != "08:00" {
		t.Errorf("/api/next = %+v", next)
	}
}

func TestWeek(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		query       string
		wantStatus  int
		wantCourses int
	}{
		{"", http.StatusOK, 6},
		{"?week=3", http.StatusOK, 6},
		{"?week=17", http.StatusOK, 0},
		{"?week=0", http.StatusBadRequest, 0},
		{"?week=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/week"+tt.query, nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			resp := decode[struct {
				Slots   []slotDTO   `json:"slots"`
				Courses []courseDTO `json:"courses"`
			}](t, w)
			if len(resp.Courses) != tt.wantCourses {
				t.Errorf("courses = %d, want %d", len(resp.Courses), tt.wantCourses)
			}
			if len(resp.Slots) != 10 {
				t.Errorf("slots = %d, want 10", len(resp.Slots))
			}
		})
	}
}

func TestCourseCRUD(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/courses", map[string]any{
		"name": "线性代数", "teacher": "周教授", "subject": "数学", "weeks": []int{1, 2}, "day": 5, "slot": 1, "duration": 2,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	created := decode[courseDTO](t, w)
	if created.ID != 7 {
		t.Errorf("new id = %d, want 7", created.ID)
	}

	for name, body := range map[string]map[string]any{
		"missing day":   {"name": "x", "slot": 0},
		"missing name":  {"day": 0, "slot": 0},
		"day too large": {"name": "x", "day": 7, "slot": 0},
		"bad week":      {"name": "x", "day": 0, "slot": 0, "weeks": []int{0}},
		"slot overflow": {"name": "x", "day": 0, "slot": 99},
	} {
		if w := f.do(t, http.MethodPost, "/api/courses", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}

	w = f.do(t, http.MethodPut, "/api/courses/7", map[string]any{"name": "线性代数II", "day": 5, "slot": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d %s", w.Code, w.Body.String())
	}
	if got := decode[courseDTO](t, w); got.Name != "线性代数II" || got.ID != 7 || got.Duration != 1 {
		t.Errorf("updated = %+v", got)
	}

	if w := f.do(t, http.MethodGet, "/api/courses/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d", w.Code)
	}
	if w := f.do(t, http.MethodPut, "/api/courses/99", map[string]any{"name": "x", "day": 0, "slot": 0}); w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/api/courses/7", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/api/courses/7", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", w.Code)
	}
	if n := len(f.repo.Courses()); n != 6 {
		t.Errorf("courses after delete = %d, want 6", n)
	}
}

func TestImportCourses(t *testing.T) {
	f := newFixture(t, nil)

	src := []model.Course{{ID: 1, Name: "形势与政策", Location: "礼堂", Weeks: []int{2, 4}, Day: 6, Slot: 4, Duration: 1}}
	body, err := ics.Export(src, f.store.Schedule(), f.repo, time.UTC, testNow)
	if err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodPost, "/api/courses/import", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("import = %d %s", w.Code, w.Body.String())
	}
	resp := decode[struct {
		Imported []courseDTO `json:"imported"`
		Skipped  int         `json:"skipped"`
	}](t, w)
	if len(resp.Imported) != 1 || resp.Imported[0].Day != 6 || resp.Imported[0].Slot != 4 {
		t.Errorf("imported = %+v", resp.Imported)
	}
	if n := len(f.repo.Courses()); n != 7 {
		t.Errorf("courses = %d, want 7", n)
	}

	again := decode[struct {
		Imported   []courseDTO `json:"imported"`
		Duplicates int         `json:"duplicates"`
	}](t, f.do(t, http.MethodPost, "/api/courses/import", string(body)))
	if len(again.Imported) != 0 || again.Duplicates != 1 {
		t.Errorf("re-import = %d imported, %d duplicates, want 0 and 1", len(again.Imported), again.Duplicates)
	}
	if n := len(f.repo.Courses()); n != 7 {
		t.Errorf("courses after re-import = %d, want 7", n)
	}

	if w := f.do(t, http.MethodPost, "/api/courses/import", "not a calendar"); w.Code != http.StatusBadRequest {
		t.Errorf("garbage import = %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/courses/import?url=ftp://x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad url import = %d", w.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPut, "/api/settings", map[string]any{"key": settings.KeyNotificationAdvance, "value": 15})
	if w.Code != http.StatusOK {
		t.Fatalf("put = %d %s", w.Code, w.Body.String())
	}
	if got := f.store.GetInt(settings.KeyNotificationAdvance, 0); got != 15 {
		t.Errorf("advance_time = %d, want 15", got)
	}

	got := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/settings?key="+settings.KeyNotificationAdvance, nil))
	if got["value"] != float64(15) {
		t.Errorf("get = %v", got)
	}

	all := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/settings", nil))
	if _, ok := all["timetable"]; !ok {
		t.Errorf("all settings missing timetable section: %v", all)
	}

	if w := f.do(t, http.MethodPut, "/api/settings", map[string]any{"value": 1}); w.Code != http.StatusBadRequest {
		t.Errorf("missing key = %d", w.Code)
	}
}

func TestSubjects(t *testing.T) {
	f := newFixture(t, nil)

	got := decode[struct {
		Subjects map[string]string `json:"subjects"`
		Default  string            `json:"default"`
	}](t, f.do(t, http.MethodGet, "/api/subjects", nil))
	if got.Default != timetable.DefaultColor {
		t.Errorf("default = %q, want %q", got.Default, timetable.DefaultColor)
	}
	if got.Subjects["数学"] != timetable.ColorFor("数学") {
		t.Errorf("subjects[数学] = %q, want %q", got.Subjects["数学"], timetable.ColorFor("数学"))
	}
}

func TestWeatherAndReminders(t *testing.T) {
	f := newFixture(t, nil)

	rep := decode[weather.Report](t, f.do(t, http.MethodGet, "/api/weather", nil))
	if rep.City != "北京" {
		t.Errorf("weather = %+v", rep)
	}

	f.srv.deps.Weather = fakeWeather{err: weather.ErrDisabled}
	if w := f.do(t, http.MethodGet, "/api/weather", nil); w.Code != http.StatusNotFound {
		t.Errorf("disabled weather = %d", w.Code)
	}

	_ = f.feed.Notify(context.Background(), model.ReminderEvent{ID: "a", CourseName: "高等数学"})
	_ = f.feed.Notify(context.Background(), model.ReminderEvent{ID: "b", CourseName: "大学英语"})
	resp := decode[struct {
		Reminders []model.ReminderEvent `json:"reminders"`
	}](t, f.do(t, http.MethodGet, "/api/reminders?limit=1", nil))
	if len(resp.Reminders) != 1 || resp.Reminders[0].ID != "b" {
		t.Errorf("reminders = %+v", resp.Reminders)
	}
}

func TestPlugins(t *testing.T) {
	f := newFixture(t, nil)

	list := decode[struct {
		Plugins []plugin.Info `json:"plugins"`
	}](t, f.do(t, http.MethodGet, "/api/plugins", nil))
	if len(list.Plugins) != 1 || list.Plugins[0].ID != hello.ID || list.Plugins[0].Enabled {
		t.Errorf("plugins = %+v", list.Plugins)
	}

	w := f.do(t, http.MethodPut, "/api/plugins/hello/settings", map[string]any{"message": "早上好"})
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d %s", w.Code, w.Body.String())
	}
	if got := decode[map[string]any](t, w); got["message"] != "早上好" {
		t.Errorf("saved = %v", got)
	}

	if w := f.do(t, http.MethodPut, "/api/plugins/hello/settings", map[string]any{"show_message": "yes"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid settings = %d", w.Code)
	}
	if w := f.do(t, http.MethodPut, "/api/plugins/nope/settings", map[string]any{}); w.Code != http.StatusNotFound {
		t.Errorf("unknown plugin = %d", w.Code)
	}

	if w := f.do(t, http.MethodPost, "/api/plugins/hello/enable", nil); w.Code != http.StatusNoContent {
		t.Fatalf("enable = %d %s", w.Code, w.Body.String())
	}
	list = decode[struct {
		Plugins []plugin.Info `json:"plugins"`
	}](t, f.do(t, http.MethodGet, "/api/plugins", nil))
	if !list.Plugins[0].Enabled {
		t.Error("hello not enabled")
	}
}

func TestTimetablePageAndExports(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/timetable?week=6", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/timetable = %d", w.Code)
	}
	page := w.Body.String()
	for _, want := range []string{`data-ready="true"`, "第6周", "高等数学", "北京", `class="today"`} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}

	w = f.do(t, http.MethodGet, "/timetable.ics", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/calendar") {
		t.Fatalf("/timetable.ics = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if n := strings.Count(w.Body.String(), "BEGIN:VEVENT"); n != 6 {
		t.Errorf("VEVENT count = %d, want 6", n)
	}

	w = f.do(t, http.MethodGet, "/timetable.xlsx?week=2", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("/timetable.xlsx = %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "attachment") {
		t.Errorf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
	}
}
