package log

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorAttachesErrField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))
	defer Use(zap.NewNop())

	Error("save failed", errors.New("disk full"), "path", "/tmp/x.json")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["error"] != "disk full" {
		t.Errorf("error field = %v, want disk full", fields["error"])
	}
	if fields["path"] != "/tmp/x.json" {
		t.Errorf("path field = %v", fields["path"])
	}
}

func TestCallerPointsAtCaller(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core, append(facadeOptions(), zap.AddCaller())...))
	defer Use(zap.NewNop())

	Info("reminder sent")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if got := filepath.Base(entries[0].Caller.File); got != "log_test.go" {
		t.Errorf("caller file = %s, want log_test.go", got)
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if err := Setup("loud", "json"); err == nil {
		t.Fatal("Setup() error = nil, want error for unknown level")
	}
}

func TestCronLoggerDemotesInfo(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Use(zap.New(core))
	defer Use(zap.NewNop())

	l := CronLogger()
	l.Info("wake", "now", 1)
	l.Error(errors.New("boom"), "job panic")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want only the error", len(entries))
	}
	if entries[0].Message != "cron: job panic" {
		t.Errorf("message = %q", entries[0].Message)
	}
}
