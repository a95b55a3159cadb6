package log

import "github.com/robfig/cron/v3"

// cronLogger routes robfig/cron's internal logging through this package.
// cron's Info chatter (every schedule/wake) is demoted to debug.
type cronLogger struct{}

// CronLogger returns a cron.Logger writing to the process logger.
func CronLogger() cron.Logger {
	return cronLogger{}
}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	Error("cron: "+msg, err, keysAndValues...)
}
