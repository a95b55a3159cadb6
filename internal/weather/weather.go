// Package weather fetches the current conditions for a city code and keeps
// the last good report in a JSON cache file.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"classboard/internal/config"
	appLog "classboard/internal/log"
	"classboard/internal/settings"
)

// ErrDisabled is returned by Current when weather.enable is false.
var ErrDisabled = errors.New("weather: disabled")

const (
	statusOK        = 1000
	defaultInterval = 3600
	defaultCityCode = "101010100"
	maxBodySize     = 1 << 20
)

// Report is the normalized current weather.
type Report struct {
	City          string    `json:"city"`
	Temperature   string    `json:"temperature"`
	Condition     string    `json:"condition"`
	WindDirection string    `json:"wind_direction"`
	WindStrength  string    `json:"wind_strength"`
	Humidity      string    `json:"humidity"`
	Icon          string    `json:"icon"`
	UpdatedAt     time.Time `json:"update_time"`
}

// cacheFile is the on-disk shape of weather_cache.json.
type cacheFile struct {
	Timestamp int64   `json:"timestamp"`
	Data      *Report `json:"data"`
}

// upstream response of the weather_mini endpoint.
type miniResponse struct {
	Status int    `json:"status"`
	Desc   string `json:"desc"`
	Data   struct {
		City     string `json:"city"`
		Wendu    string `json:"wendu"`
		Forecast []struct {
			Type      string `json:"type"`
			Fengxiang string `json:"fengxiang"`
			Fengli    string `json:"fengli"`
		} `json:"forecast"`
	} `json:"data"`
}

// Preferences supplies the weather.* settings.
type Preferences interface {
	GetBool(key string, def bool) bool
	GetInt(key string, def int) int
	GetString(key string, def string) string
}

// Client is safe for concurrent use.
type Client struct {
	mu        sync.Mutex
	http      *http.Client
	baseURL   string
	cachePath string
	prefs     Preferences
	now       func() time.Time

	report    *Report
	fetchedAt time.Time
}

// NewClient creates a client and loads any cached report from cachePath.
func NewClient(baseURL, cachePath string, prefs Preferences) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   baseURL,
		cachePath: cachePath,
		prefs:     prefs,
		now:       time.Now,
	}
	c.loadCache()
	return c
}

// Interval is the configured refresh period.
func (c *Client) Interval() time.Duration {
	secs := c.prefs.GetInt(settings.KeyWeatherInterval, defaultInterval)
	if secs <= 0 {
		secs = defaultInterval
	}
	return time.Duration(secs) * time.Second
}

// Current returns the cached report when it is younger than Interval and
// fetches otherwise. If the fetch fails and a stale report exists, the
// stale report is returned.
func (c *Client) Current(ctx context.Context) (Report, error) {
	if !c.prefs.GetBool(settings.KeyWeatherEnable, true) {
		return Report{}, ErrDisabled
	}

	c.mu.Lock()
	cached, fetchedAt := c.report, c.fetchedAt
	c.mu.Unlock()

	if cached != nil && c.now().Sub(fetchedAt) <= c.Interval() {
		return *cached, nil
	}

	if err := c.Refresh(ctx); err != nil {
		if cached != nil {
			appLog.Error("weather refresh failed, serving stale cache", err, "fetched_at", fetchedAt)
			return *cached, nil
		}
		return Report{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.report, nil
}

// Refresh fetches a fresh report unconditionally and rewrites the cache.
func (c *Client) Refresh(ctx context.Context) error {
	if !c.prefs.GetBool(settings.KeyWeatherEnable, true) {
		return nil
	}
	code := c.prefs.GetString(settings.KeyWeatherCityCode, defaultCityCode)

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("weather: bad base url: %w", err)
	}
	q := u.Query()
	q.Set("citykey", code)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	appLog.Debug("weather fetch start", "city_code", code)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("weather: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather: fetch: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("weather: read body: %w", err)
	}

	var mr miniResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return fmt.Errorf("weather: decode: %w", err)
	}
	if mr.Status != statusOK {
		return fmt.Errorf("weather: upstream status %d: %s", mr.Status, mr.Desc)
	}

	now := c.now()
	report := toReport(mr, now)

	c.mu.Lock()
	c.report = &report
	c.fetchedAt = now
	c.mu.Unlock()

	if err := c.saveCache(report, now); err != nil {
		// Log but keep the fresh report.
		appLog.Error("weather cache save failed", err, "path", c.cachePath)
	}

	appLog.Info("weather updated", "city", report.City, "temperature", report.Temperature, "condition", report.Condition)
	return nil
}

func toReport(mr miniResponse, now time.Time) Report {
	r := Report{
		City:        orDefault(mr.Data.City, "未知"),
		Temperature: orDefault(mr.Data.Wendu, "0"),
		Condition:   "未知",
		UpdatedAt:   now,
	}
	if len(mr.Data.Forecast) > 0 {
		today := mr.Data.Forecast[0]
		r.Condition = orDefault(today.Type, "未知")
		r.WindDirection = today.Fengxiang
		r.WindStrength = stripCDATA(today.Fengli)
	}
	r.Icon = IconFor(r.Condition)
	return r
}

func stripCDATA(s string) string {
	s = strings.ReplaceAll(s, "<![CDATA[", "")
	return strings.ReplaceAll(s, "]]>", "")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (c *Client) loadCache() {
	if c.cachePath == "" {
		return
	}
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			appLog.Error("weather cache load failed", err, "path", c.cachePath)
		}
		return
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		appLog.Error("weather cache decode failed", err, "path", c.cachePath)
		return
	}
	if cf.Data == nil {
		return
	}
	c.report = cf.Data
	c.fetchedAt = time.Unix(cf.Timestamp, 0)
	appLog.Info("weather cache loaded", "path", c.cachePath, "city", cf.Data.City)
}

func (c *Client) saveCache(r Report, at time.Time) error {
	if c.cachePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(cacheFile{Timestamp: at.Unix(), Data: &r}, "", "    ")
	if err != nil {
		return err
	}
	return config.WriteFileAtomic(c.cachePath, data, 0o600)
}
