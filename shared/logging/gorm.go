package logging

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes GORM's statement log through logrus. Not-found results
// are expected outcomes and are not logged as errors.
type GormLogger struct {
	log           logrus.FieldLogger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func NewGormLogger(log logrus.FieldLogger, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{log: log, level: gormlogger.Warn, slowThreshold: slowThreshold}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) entry(ctx context.Context) logrus.FieldLogger {
	if ctx != nil {
		if e, ok := ctx.Value(entryKey).(*logrus.Entry); ok {
			return e
		}
	}
	return l.log
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.entry(ctx).Infof(msg, args...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.entry(ctx).Warnf(msg, args...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.entry(ctx).Errorf(msg, args...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.entry(ctx).WithFields(logrus.Fields{"sql": sql, "rows": rows, "elapsed": elapsed}).WithError(err).Error("Query failed")
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.entry(ctx).WithFields(logrus.Fields{"sql": sql, "rows": rows, "elapsed": elapsed}).Warn("Slow query")
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.entry(ctx).WithFields(logrus.Fields{"sql": sql, "rows": rows, "elapsed": elapsed}).Debug("Query")
	}
}
