package hello

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appLog "classboard/internal/log"
	"classboard/internal/model"
)

func TestNew_Defaults(t *testing.T) {
	p := New(nil)
	view := p.SettingsView()
	if view["message"] != defaultMessage || view["show_message"] != true {
		t.Errorf("SettingsView() = %v", view)
	}
	if p.Info().Name != "Hello World" {
		t.Errorf("Info() = %+v", p.Info())
	}
}

func TestSaveSettings_Validation(t *testing.T) {
	p := New(map[string]any{"message": "早上好"})
	if err := p.SaveSettings(map[string]any{"message": 42}); err == nil {
		t.Error("SaveSettings() accepted a non-string message")
	}
	if err := p.SaveSettings(map[string]any{"message": "ok", "show_message": "yes"}); err == nil {
		t.Error("SaveSettings() accepted a non-bool show_message")
	}
	// A rejected batch leaves the old values.
	if got := p.SettingsView()["message"]; got != "早上好" {
		t.Errorf("message = %v, want unchanged", got)
	}
}

func TestOnReminder_LogsGreeting(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	appLog.Use(zap.New(core))

	p := New(map[string]any{"message": "上课啦"}).(*Plugin)
	if err := p.OnReminder(context.Background(), model.ReminderEvent{CourseName: "英语"}); err != nil {
		t.Fatal(err)
	}
	if logs.FilterMessage("上课啦").Len() != 1 {
		t.Errorf("greeting not logged: %v", logs.All())
	}

	_ = p.SaveSettings(map[string]any{"show_message": false})
	_ = p.OnReminder(context.Background(), model.ReminderEvent{CourseName: "英语"})
	if logs.FilterMessage("上课啦").Len() != 1 {
		t.Error("greeting logged while show_message=false")
	}
}
