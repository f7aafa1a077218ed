package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/referral/pkg/db"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger sends gorm output to the context logger. Statements are logged
// without their bound parameters, which carry identities and codes.
type GormLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewGormLogger(level gormlogger.LogLevel, slow time.Duration) *GormLogger {
	return &GormLogger{level: level, slow: slow}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &GormLogger{level: level, slow: l.slow}
}

func (l *GormLogger) emit(ctx context.Context, at gormlogger.LogLevel, msg string, data []interface{}) {
	if l.level < at {
		return
	}
	log := FromContext(ctx).With(zap.String("component", "gorm"))
	fields := []zap.Field{zap.Any("data", data)}
	switch at {
	case gormlogger.Error:
		log.Error(msg, fields...)
	case gormlogger.Warn:
		log.Warn(msg, fields...)
	default:
		log.Info(msg, fields...)
	}
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Info, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Warn, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Error, msg, data)
}

// Trace logs failed statements at error and slow ones at warn. Missing rows and
// unique violations are expected outcomes (lookups, award and signup races).
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level == gormlogger.Silent {
		return
	}
	if errors.Is(err, gormlogger.ErrRecordNotFound) || db.IsDuplicateKeyErr(err) {
		err = nil
	}
	elapsed := time.Since(begin)
	slow := l.slow > 0 && elapsed > l.slow

	var level gormlogger.LogLevel
	switch {
	case err != nil:
		level = gormlogger.Error
	case slow:
		level = gormlogger.Warn
	default:
		level = gormlogger.Info
	}
	if l.level < level {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("operation", operationFromSQL(sql)),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Int64("rows_affected", rows),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	log := FromContext(ctx)
	switch level {
	case gormlogger.Error:
		log.Error("db.query", append(fields, zap.Error(err))...)
	case gormlogger.Warn:
		log.Warn("db.query.slow", fields...)
	default:
		log.Debug("db.query", fields...)
	}
}

func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		switch op := strings.Trim(token, "();"); op {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return op
		}
	}
	return "OTHER"
}

var _ gormlogger.Interface = (*GormLogger)(nil)
