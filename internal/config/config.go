package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the process-level bootstrap configuration: where data lives,
// how to log and where the viewer listens. User-facing preferences
// (timetable, notifications, weather) live in the settings store under
// DataDir instead.

// BasicAuthConfig holds HTTP Basic Auth credentials for the viewer.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LogConfig selects the log level and encoder.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format" json:"format"`
}

// Config is the top-level bootstrap configuration.
type Config struct {
	// Listen is the HTTP listen address for the viewer.
	Listen string `yaml:"listen" json:"listen"`

	// DataDir holds settings.json, courses.json and weather_cache.json.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Timezone is the IANA zone wall-clock decisions are made in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// TickSpec is the cron spec driving the reminder engine.
	TickSpec string `yaml:"tick" json:"tick"`

	// WeatherBaseURL is the weather endpoint without the query string.
	WeatherBaseURL string `yaml:"weather_base_url" json:"weather_base_url"`

	Log LogConfig `yaml:"log" json:"log"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen         = "127.0.0.1:8080"
	defaultDataDir        = "./data"
	defaultTimezone       = "Asia/Shanghai"
	defaultTickSpec       = "@every 1s"
	defaultWeatherBaseURL = "http://wthrcdn.etouch.cn/weather_mini"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         defaultListen,
		DataDir:        defaultDataDir,
		Timezone:       defaultTimezone,
		TickSpec:       defaultTickSpec,
		WeatherBaseURL: defaultWeatherBaseURL,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values so partially-filled files still
// behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.TickSpec == "" {
		c.TickSpec = defaultTickSpec
	}
	if c.WeatherBaseURL == "" {
		c.WeatherBaseURL = defaultWeatherBaseURL
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		c.Log.Level = strings.ToLower(c.Log.Level)
	default:
		c.Log.Level = "info"
	}
	switch c.Log.Format {
	case "console", "json":
		// ok
	default:
		c.Log.Format = "console"
	}

	// Empty credentials mean no auth.
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		c.BasicAuth = nil
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled over the defaults and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path as YAML, atomically and with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never observe a half-written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
