package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"classboard/internal/capture"
	"classboard/internal/config"
	"classboard/internal/ics"
	appLog "classboard/internal/log"
	"classboard/internal/plugin"
	"classboard/internal/plugin/hello"
	"classboard/internal/reminder"
	"classboard/internal/scheduler"
	"classboard/internal/settings"
	"classboard/internal/timetable"
	"classboard/internal/weather"
	"classboard/internal/web"
	"classboard/internal/xlsx"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	snapshot   string
	week       int
	chrome     string
	tricolor   bool
	exportICS  string
	exportXLSX string
	importICS  string
}

// app bundles the wired components.
type app struct {
	cfg     *config.Config
	loc     *time.Location
	now     func() time.Time
	store   *settings.Store
	repo    *timetable.Repository
	feed    *reminder.FeedSink
	plugins *plugin.Registry
	engine  *reminder.Engine
	weather *weather.Client
	fetcher *ics.Fetcher
	viewer  *web.Server
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		appLog.Error("load .env failed", err)
	}

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := appLog.Setup(conf.Log.Level, conf.Log.Format); err != nil {
		appLog.Error("invalid log config", err)
		os.Exit(1)
	}
	defer appLog.Sync()

	appLog.Info("classboard starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"data_dir", conf.DataDir,
		"timezone", conf.Timezone,
		"tick", conf.TickSpec,
		"basic_auth", conf.BasicAuth != nil,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := build(conf)
	if err != nil {
		appLog.Error("startup failed", err)
		os.Exit(1)
	}

	if done, err := runOneShot(ctx, a, flags); done {
		if err != nil {
			appLog.Error("command failed", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, a); err != nil {
		appLog.Error("classboard exited with error", err)
		os.Exit(1)
	}
	appLog.Info("classboard exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one reminder check and exit")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Write a PNG of the week grid to this path and exit")
	flag.IntVar(&cfg.week, "week", 0, "Academic week for -snapshot/-export-xlsx (0 = current)")
	flag.StringVar(&cfg.chrome, "chrome", "", "Chromium binary for -snapshot")
	flag.BoolVar(&cfg.tricolor, "tricolor", false, "Reduce -snapshot to black/white/red for e-paper panels")
	flag.StringVar(&cfg.exportICS, "export-ics", "", "Write all courses as an iCalendar file and exit")
	flag.StringVar(&cfg.exportXLSX, "export-xlsx", "", "Write the week grid as a spreadsheet and exit")
	flag.StringVar(&cfg.importICS, "import-ics", "", "Import courses from an .ics file or URL and exit")

	flag.Parse()
	return cfg
}

func build(conf *config.Config) (*app, error) {
	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", conf.Timezone)
		loc = time.Local
	}
	now := func() time.Time { return time.Now().In(loc) }

	store, err := settings.Open(filepath.Join(conf.DataDir, "settings.json"))
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	repo, err := timetable.Open(filepath.Join(conf.DataDir, "courses.json"), store, timetable.WithClock(now))
	if err != nil {
		return nil, fmt.Errorf("open courses: %w", err)
	}

	plugins := plugin.NewRegistry(store)
	if err := plugins.Register(hello.ID, hello.New); err != nil {
		return nil, err
	}

	feed := reminder.NewFeedSink(50)
	sink := reminder.MultiSink{reminder.LogSink{}, feed, plugins.Sink()}
	engine := reminder.NewEngine(repo, store, sink)

	wc := weather.NewClient(conf.WeatherBaseURL, filepath.Join(conf.DataDir, "weather_cache.json"), store)
	fetcher := ics.NewFetcher(filepath.Join(conf.DataDir, "ics-cache"))

	a := &app{
		cfg:     conf,
		loc:     loc,
		now:     now,
		store:   store,
		repo:    repo,
		feed:    feed,
		plugins: plugins,
		engine:  engine,
		weather: wc,
		fetcher: fetcher,
	}
	a.viewer = web.NewServer(conf, web.Deps{
		Timetable: repo,
		Settings:  store,
		Weather:   wc,
		Reminders: feed,
		Plugins:   plugins,
		Fetcher:   fetcher,
		Location:  loc,
	})
	return a, nil
}

// runOneShot handles the flags that do one job and exit. It reports
// whether a one-shot command ran.
func runOneShot(ctx context.Context, a *app, flags flagConfig) (bool, error) {
	week := flags.week
	if week <= 0 {
		week = a.repo.CurrentWeek()
	}

	switch {
	case flags.importICS != "":
		return true, importCalendar(ctx, a, flags.importICS)

	case flags.exportICS != "":
		body, err := ics.Export(a.repo.Courses(), a.store.Schedule(), a.repo, a.loc, a.now())
		if err != nil {
			return true, err
		}
		if err := config.WriteFileAtomic(flags.exportICS, body, 0o644); err != nil {
			return true, err
		}
		appLog.Info("calendar exported", "path", flags.exportICS)
		return true, nil

	case flags.exportXLSX != "":
		buf, _, err := xlsx.Export(week, a.repo.CoursesForWeek(week), a.repo)
		if err != nil {
			return true, err
		}
		if err := config.WriteFileAtomic(flags.exportXLSX, buf.Bytes(), 0o644); err != nil {
			return true, err
		}
		appLog.Info("spreadsheet exported", "path", flags.exportXLSX, "week", week)
		return true, nil

	case flags.snapshot != "":
		return true, snapshot(ctx, a, flags, week)

	case flags.once:
		a.plugins.StartAll(ctx)
		defer a.plugins.StopAll()
		evs := a.engine.Tick(ctx, a.now())
		appLog.Info("reminder check done", "fired", len(evs))
		return true, nil
	}
	return false, nil
}

func importCalendar(ctx context.Context, a *app, src string) error {
	var body []byte
	if ics.IsURL(src) {
		res, err := a.fetcher.Fetch(ctx, src)
		if err != nil {
			return err
		}
		body = res.Body
	} else {
		b, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		body = b
	}

	res, err := ics.Import(body, a.store.Schedule(), a.repo, a.loc)
	if err != nil {
		return err
	}
	added, dup, err := a.repo.AddCourses(res.Courses)
	if err != nil {
		return fmt.Errorf("add imported courses: %w", err)
	}
	appLog.Info("calendar imported",
		"source", src,
		"courses", len(added),
		"duplicates", dup,
		"skipped", res.Skipped,
	)
	return nil
}

// snapshot serves the viewer on a loopback port just long enough to
// capture /timetable.
func snapshot(ctx context.Context, a *app, flags flagConfig, week int) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: a.viewer.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("snapshot server failed", err)
		}
	}()
	defer srv.Close()

	opts := capture.Options{
		URL:      fmt.Sprintf("http://%s/timetable?week=%d", ln.Addr(), week),
		ExecPath: flags.chrome,
		Tricolor: flags.tricolor,
	}
	if a.cfg.BasicAuth != nil {
		opts.Username = a.cfg.BasicAuth.Username
		opts.Password = a.cfg.BasicAuth.Password
	}
	if err := capture.SnapshotToFile(ctx, opts, flags.snapshot); err != nil {
		return err
	}
	appLog.Info("snapshot written", "path", flags.snapshot, "week", week)
	return nil
}

// serve runs plugins, the scheduler and the viewer until ctx ends.
func serve(ctx context.Context, a *app) error {
	a.plugins.StartAll(ctx)
	defer a.plugins.StopAll()

	sched := scheduler.New(ctx, a.loc, a.now)
	if err := sched.AddTicker(a.cfg.TickSpec, a.engine); err != nil {
		return err
	}
	if err := sched.AddRefresher("weather", a.weather.Interval(), a.weather); err != nil {
		return err
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	return a.viewer.Run(ctx)
}
