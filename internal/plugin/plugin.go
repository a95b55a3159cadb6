// Package plugin holds the compile-time plugin registry. Plugins are
// registered by id, enabled through the plugins.enabled setting and keep
// their own settings under plugins.settings.<id>.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	appLog "classboard/internal/log"
	"classboard/internal/model"
	"classboard/internal/reminder"
	"classboard/internal/settings"
)

var (
	ErrUnknownPlugin = errors.New("plugin: unknown id")
	ErrDuplicate     = errors.New("plugin: already registered")
)

// Info describes a plugin for listings.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Enabled     bool   `json:"enabled"`
}

type Plugin interface {
	Info() Info
	Initialize(ctx context.Context) error
	Terminate() error
	// SettingsView is the current settings as shown to the user.
	SettingsView() map[string]any
	// SaveSettings applies and validates new settings. The registry
	// persists the returned view.
	SaveSettings(values map[string]any) error
}

// ReminderHook is implemented by plugins that want to see every reminder.
type ReminderHook interface {
	OnReminder(ctx context.Context, ev model.ReminderEvent) error
}

// Factory builds a plugin from its persisted settings (nil on first use).
type Factory func(saved map[string]any) Plugin

// Store is the subset of the settings store the registry needs.
type Store interface {
	GetStringSlice(key string) []string
	GetMap(key string) map[string]any
	Set(key string, value any) error
}

type Registry struct {
	mu        sync.RWMutex
	store     Store
	factories map[string]Factory
	running   map[string]Plugin
}

func NewRegistry(store Store) *Registry {
	return &Registry{
		store:     store,
		factories: make(map[string]Factory),
		running:   make(map[string]Plugin),
	}
}

// Register adds a factory under id.
func (r *Registry) Register(id string, f Factory) error {
	if id == "" || f == nil {
		return errors.New("plugin: empty id or nil factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	r.factories[id] = f
	return nil
}

// StartAll initializes every plugin listed in plugins.enabled. Unknown ids
// and failing plugins are logged and skipped.
func (r *Registry) StartAll(ctx context.Context) {
	for _, id := range r.enabledIDs() {
		if err := r.start(ctx, id); err != nil {
			appLog.Error("plugin start failed", err, "plugin", id)
		}
	}
	r.mu.RLock()
	n := len(r.running)
	r.mu.RUnlock()
	appLog.Info("plugins loaded", "count", n)
}

// StopAll terminates running plugins.
func (r *Registry) StopAll() {
	r.mu.Lock()
	running := r.running
	r.running = make(map[string]Plugin)
	r.mu.Unlock()

	for id, p := range running {
		if err := p.Terminate(); err != nil {
			appLog.Error("plugin terminate failed", err, "plugin", id)
		}
	}
}

// Enable adds id to plugins.enabled and starts it.
func (r *Registry) Enable(ctx context.Context, id string) error {
	if !r.known(id) {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	ids := r.enabledIDs()
	if !slices.Contains(ids, id) {
		ids = append(ids, id)
		if err := r.store.Set(settings.KeyPluginsEnabled, ids); err != nil {
			return err
		}
	}
	return r.start(ctx, id)
}

// Disable removes id from plugins.enabled and terminates it if running.
func (r *Registry) Disable(id string) error {
	if !r.known(id) {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	ids := slices.DeleteFunc(r.enabledIDs(), func(s string) bool { return s == id })
	if err := r.store.Set(settings.KeyPluginsEnabled, ids); err != nil {
		return err
	}

	r.mu.Lock()
	p, ok := r.running[id]
	delete(r.running, id)
	r.mu.Unlock()
	if ok {
		return p.Terminate()
	}
	return nil
}

// Get returns a running plugin.
func (r *Registry) Get(id string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.running[id]
	return p, ok
}

// List describes every registered plugin, sorted by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.factories))
	for id, f := range r.factories {
		var info Info
		if p, ok := r.running[id]; ok {
			info = p.Info()
			info.Enabled = true
		} else {
			info = f(nil).Info()
		}
		info.ID = id
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Settings returns the persisted settings of id.
func (r *Registry) Settings(id string) (map[string]any, error) {
	if !r.known(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	if p, ok := r.Get(id); ok {
		return p.SettingsView(), nil
	}
	return r.saved(id), nil
}

// SaveSettings applies values to the plugin and persists the result under
// plugins.settings.<id>. A stopped plugin is built just to validate values.
func (r *Registry) SaveSettings(id string, values map[string]any) error {
	r.mu.RLock()
	f, known := r.factories[id]
	p, running := r.running[id]
	r.mu.RUnlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	if !running {
		p = f(r.saved(id))
	}
	if err := p.SaveSettings(values); err != nil {
		return err
	}
	return r.store.Set(settings.KeyPluginsSettings+"."+id, p.SettingsView())
}

// Sink forwards reminders to every running plugin that implements
// ReminderHook. A failing plugin does not stop the others.
func (r *Registry) Sink() reminder.Sink {
	return reminder.SinkFunc(func(ctx context.Context, ev model.ReminderEvent) error {
		r.mu.RLock()
		hooks := make(map[string]ReminderHook)
		for id, p := range r.running {
			if h, ok := p.(ReminderHook); ok {
				hooks[id] = h
			}
		}
		r.mu.RUnlock()

		var errs []error
		for id, h := range hooks {
			if err := h.OnReminder(ctx, ev); err != nil {
				errs = append(errs, fmt.Errorf("plugin %s: %w", id, err))
			}
		}
		return errors.Join(errs...)
	})
}

func (r *Registry) start(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[id]; ok {
		return nil
	}
	f, ok := r.factories[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	p := f(r.saved(id))
	if err := p.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize %s: %w", id, err)
	}
	r.running[id] = p
	appLog.Info("plugin started", "plugin", id)
	return nil
}

func (r *Registry) known(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

func (r *Registry) enabledIDs() []string {
	return slices.Clone(r.store.GetStringSlice(settings.KeyPluginsEnabled))
}

func (r *Registry) saved(id string) map[string]any {
	all := r.store.GetMap(settings.KeyPluginsSettings)
	if m, ok := all[id].(map[string]any); ok {
		return m
	}
	return nil
}
