package obslog

import (
	"fmt"

	"go.uber.org/zap"
)

// CronLogger adapts zap to robfig/cron's Logger interface.
type CronLogger struct {
	l *zap.Logger
}

func NewCronLogger(l *zap.Logger) CronLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return CronLogger{l: l.Named("cron")}
}

// Info is only emitted at debug level; cron reports every wake-up here.
func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, fields(keysAndValues)...)
}

func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(kv []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, zap.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	if len(kv)%2 == 1 {
		out = append(out, zap.Any("extra", kv[len(kv)-1]))
	}
	return out
}
