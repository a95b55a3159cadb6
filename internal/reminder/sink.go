package reminder

//go:generate mockgen -source=sink.go -destination=mock_sink_test.go -package=reminder

import (
	"context"
	"errors"
	"sync"

	appLog "classboard/internal/log"
	"classboard/internal/model"
)

// Sink presents a reminder to the user. The engine does not care how.
type Sink interface {
	Notify(ctx context.Context, ev model.ReminderEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev model.ReminderEvent) error

func (f SinkFunc) Notify(ctx context.Context, ev model.ReminderEvent) error {
	return f(ctx, ev)
}

// LogSink writes each reminder as a structured log line.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, ev model.ReminderEvent) error {
	appLog.Info("课程提醒: "+ev.CourseName,
		"start", ev.StartTime,
		"location", ev.Location,
		"teacher", ev.Teacher,
		"event_id", ev.ID,
	)
	return nil
}

// MultiSink fans out to every sink, continuing past failures.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, ev model.ReminderEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FeedSink keeps the most recent reminders in memory for the viewer.
type FeedSink struct {
	mu   sync.RWMutex
	size int
	buf  []model.ReminderEvent
}

func NewFeedSink(size int) *FeedSink {
	if size <= 0 {
		size = 50
	}
	return &FeedSink{size: size}
}

func (f *FeedSink) Notify(_ context.Context, ev model.ReminderEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = append(f.buf, ev)
	if over := len(f.buf) - f.size; over > 0 {
		f.buf = append([]model.ReminderEvent(nil), f.buf[over:]...)
	}
	return nil
}

// Recent returns up to n reminders, newest first. n <= 0 returns all.
func (f *FeedSink) Recent(n int) []model.ReminderEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if n <= 0 || n > len(f.buf) {
		n = len(f.buf)
	}
	out := make([]model.ReminderEvent, 0, n)
	for i := len(f.buf) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, f.buf[i])
	}
	return out
}
