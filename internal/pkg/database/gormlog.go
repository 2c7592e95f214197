package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

var gormLevels = map[string]gormlogger.LogLevel{
	"silent": gormlogger.Silent,
	"error":  gormlogger.Error,
	"warn":   gormlogger.Warn,
	"info":   gormlogger.Info,
}

// gormLogger 将 gorm 日志输出到 zap，并附带请求 ID 与上传 ID
type gormLogger struct {
	logger *logger.Logger
	level  gormlogger.LogLevel
	slow   time.Duration
}

func newGormLogger(log *logger.Logger, cfg *Config) gormlogger.Interface {
	level, ok := gormLevels[cfg.LogLevel]
	if !ok {
		level = gormlogger.Warn
	}
	return &gormLogger{logger: log, level: level, slow: cfg.SlowThreshold}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger.WithContext(ctx).Info(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger.WithContext(ctx).Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger.WithContext(ctx).Error(fmt.Sprintf(msg, args...))
	}
}

// Trace 记录失败与慢查询。删除前的查找找不到记录属于正常情况，不记录
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !IsRecordNotFoundError(err)
	slow := l.slow > 0 && elapsed > l.slow

	if !failed && !slow && l.level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	log := l.logger.WithContext(ctx).With(
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	)
	switch {
	case failed && l.level >= gormlogger.Error:
		log.Error("sql failed", zap.Error(err))
	case slow && l.level >= gormlogger.Warn:
		log.Warn("sql slow", zap.Duration("threshold", l.slow))
	case l.level >= gormlogger.Info:
		log.Debug("sql")
	}
}
