// Package settings is the runtime key/value store for user preferences.
// Keys are dotted paths ("timetable.total_weeks"); every Set rewrites the
// whole JSON file.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"classboard/internal/config"
	appLog "classboard/internal/log"
)

// ErrPersistence is returned when the settings file cannot be written.
var ErrPersistence = errors.New("settings: persist failed")

const envPrefix = "CLASSBOARD"

// Store wraps a viper instance holding defaults, the settings file and
// CLASSBOARD_* environment overrides.
type Store struct {
	mu   sync.RWMutex
	v    *viper.Viper
	path string
}

// Open loads the settings file at path. A missing file is created from the
// defaults; an unreadable one is logged and the defaults are used.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("settings path is empty")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyDefaults(v, Defaults(time.Now()))

	s := &Store{v: v, path: path}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		appLog.Info("settings file missing, writing defaults", "path", path)
		if err := s.persist(); err != nil {
			return s, err
		}
		return s, nil
	}

	if err := v.ReadInConfig(); err != nil {
		appLog.Error("settings load failed, using defaults", err, "path", path)
		return s, nil
	}
	appLog.Info("settings loaded", "path", path)
	return s, nil
}

// Get returns the value at key, or def when the key is unset.
func (s *Store) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.v.IsSet(key) {
		return def
	}
	val := s.v.Get(key)
	if m, ok := val.(map[string]any); ok && len(m) == 0 {
		return def
	}
	return val
}

func (s *Store) GetBool(key string, def bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.v.IsSet(key) {
		return def
	}
	return s.v.GetBool(key)
}

func (s *Store) GetInt(key string, def int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.v.IsSet(key) {
		return def
	}
	return s.v.GetInt(key)
}

func (s *Store) GetString(key string, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.v.IsSet(key) {
		return def
	}
	return s.v.GetString(key)
}

func (s *Store) GetStringSlice(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.v.IsSet(key) {
		return nil
	}
	return s.v.GetStringSlice(key)
}

// GetMap returns the sub-tree at key as a map; nil when unset.
func (s *Store) GetMap(key string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.v.IsSet(key) {
		return nil
	}
	return s.v.GetStringMap(key)
}

// Set stores value at key and rewrites the settings file. On a write
// failure the in-memory value is kept and an ErrPersistence error returned.
func (s *Store) Set(key string, value any) error {
	if key == "" {
		return errors.New("settings: empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(key, value)
	if err := s.persist(); err != nil {
		appLog.Error("settings save failed", err, "key", key)
		return err
	}
	appLog.Debug("settings saved", "key", key)
	return nil
}

// All returns a snapshot of every effective setting.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.AllSettings()
}

// persist must be called with mu held (or before the store is shared).
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.v.AllSettings(), "", "    ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := config.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// applyDefaults registers every leaf of tree as a viper default under its
// dotted path. Lists are leaves.
func applyDefaults(v *viper.Viper, tree map[string]any) {
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
				walk(key, sub)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
}
