// Package hello is the example plugin: it logs a greeting with every
// reminder.
package hello

import (
	"context"
	"errors"
	"sync"

	appLog "classboard/internal/log"
	"classboard/internal/model"
	"classboard/internal/plugin"
)

const ID = "hello"

const defaultMessage = "你好，世界！"

type Plugin struct {
	mu          sync.RWMutex
	message     string
	showMessage bool
}

// New is the plugin.Factory for hello.
func New(saved map[string]any) plugin.Plugin {
	p := &Plugin{message: defaultMessage, showMessage: true}
	if saved != nil {
		_ = p.apply(saved)
	}
	return p
}

func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		ID:          ID,
		Name:        "Hello World",
		Version:     "1.0.0",
		Description: "一个简单的示例插件，展示插件系统的基本功能",
		Author:      "classboard",
	}
}

func (p *Plugin) Initialize(context.Context) error {
	appLog.Info("Hello World 插件已启动")
	return nil
}

func (p *Plugin) Terminate() error {
	appLog.Info("Hello World 插件已停止")
	return nil
}

func (p *Plugin) SettingsView() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return map[string]any{
		"message":      p.message,
		"show_message": p.showMessage,
	}
}

func (p *Plugin) SaveSettings(values map[string]any) error {
	return p.apply(values)
}

func (p *Plugin) OnReminder(_ context.Context, ev model.ReminderEvent) error {
	p.mu.RLock()
	msg, show := p.message, p.showMessage
	p.mu.RUnlock()
	if show {
		appLog.Info(msg, "plugin", ID, "course", ev.CourseName)
	}
	return nil
}

// apply validates every value before changing anything.
func (p *Plugin) apply(values map[string]any) error {
	msg, hasMsg := values["message"]
	show, hasShow := values["show_message"]

	var (
		newMsg  string
		newShow bool
	)
	if hasMsg {
		s, ok := msg.(string)
		if !ok || s == "" {
			return errors.New("hello: message must be a non-empty string")
		}
		newMsg = s
	}
	if hasShow {
		b, ok := show.(bool)
		if !ok {
			return errors.New("hello: show_message must be a boolean")
		}
		newShow = b
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if hasMsg {
		p.message = newMsg
	}
	if hasShow {
		p.showMessage = newShow
	}
	return nil
}
