package database

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tienda-delivery/api/internal/platform/requestctx"
)

// GormLogger forwards gorm diagnostics to zap, preferring the request-scoped logger.
type GormLogger struct {
	base          *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger returns a gorm logger that reports errors and slow queries.
func NewGormLogger(base *zap.Logger, slowThreshold time.Duration) *GormLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &GormLogger{base: base, level: gormlogger.Warn, slowThreshold: slowThreshold}
}

// LogMode implements gormlogger.Interface.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) logger(ctx context.Context) *zap.Logger {
	return requestctx.LoggerOr(ctx, l.base)
}

// Info implements gormlogger.Interface.
func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger(ctx).Sugar().Infof(msg, args...)
	}
}

// Warn implements gormlogger.Interface.
func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger(ctx).Sugar().Warnf(msg, args...)
	}
}

// Error implements gormlogger.Interface.
func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger(ctx).Sugar().Errorf(msg, args...)
	}
}

// Trace implements gormlogger.Interface.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gormlogger.ErrRecordNotFound):
		sql, rows := fc()
		l.logger(ctx).Error("db.query.failed",
			zap.Error(err),
			zap.Duration("elapsed", elapsed),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
		)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.logger(ctx).Warn("db.query.slow",
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", l.slowThreshold),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
		)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.logger(ctx).Debug("db.query",
			zap.Duration("elapsed", elapsed),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
		)
	}
}
