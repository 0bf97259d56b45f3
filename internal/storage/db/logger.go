package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nhpbrowser/internal/logger"

	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
)

// SlowThreshold 慢查询阈值
const SlowThreshold = time.Second

// Logger 对接项目统一日志系统的 GORM logger
type Logger struct {
	internalLogger logger.Logger
	LogLevel       glog.LogLevel
}

// NewLogger 创建新的 Logger 实例
func NewLogger(l logger.Logger) *Logger {
	if l == nil {
		l = logger.NewNop()
	}
	return &Logger{
		internalLogger: l.With("module", "gorm"),
		LogLevel:       glog.Warn,
	}
}

// LogMode 实现 logger.Interface 接口
func (l *Logger) LogMode(level glog.LogLevel) glog.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// Info 打印 info 级别日志
func (l *Logger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Info {
		l.internalLogger.Info(fmt.Sprintf(msg, data...))
	}
}

// Warn 打印 warn 级别日志
func (l *Logger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Warn {
		l.internalLogger.Warn(fmt.Sprintf(msg, data...))
	}
}

// Error 打印 error 级别日志
func (l *Logger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Error {
		l.internalLogger.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace 打印 SQL 执行详情，记录不存在不算错误
func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= glog.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []any{
		"sql", sql,
		"rows", rows,
		"timeMs", float64(elapsed.Nanoseconds()) / 1e6,
	}

	switch {
	case err != nil && l.LogLevel >= glog.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.internalLogger.Err(err, "SQL执行错误", fields...)
	case elapsed > SlowThreshold && l.LogLevel >= glog.Warn:
		l.internalLogger.Warn("慢SQL查询", append(fields, "threshold", SlowThreshold.String())...)
	case l.LogLevel == glog.Info:
		l.internalLogger.Debug("SQL执行", fields...)
	}
}
