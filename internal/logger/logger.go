package logger

import (
	"io"
	"os"
	"path/filepath"
	"runtime"

	"nhpbrowser/internal/config"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AppName 应用数据目录名
const AppName = "nhpbrowser"

// Logger 定义日志接口
type Logger interface {
	// Debug 记录调试信息
	Debug(msg string, fields ...any)

	// Info 记录一般信息
	Info(msg string, fields ...any)

	// Warn 记录警告信息
	Warn(msg string, fields ...any)

	// Error 记录错误信息
	Error(msg string, fields ...any)

	// Err 记录错误信息
	Err(err error, msg string, fields ...any)

	// With 返回携带固定字段的子日志器
	With(fields ...any) Logger
}

// Options 日志选项
type Options struct {
	Level   string   // debug / info / warn / error
	Writers []string // console / file
	Output  io.Writer
}

// ZeroLogger 日志组件
type ZeroLogger struct {
	logger zerolog.Logger
}

// NewZeroLogger 根据应用配置创建日志组件
func NewZeroLogger(cfg *config.Config) *ZeroLogger {
	if cfg == nil {
		return NewNop()
	}
	return New(Options{Level: cfg.Log.Level, Writers: cfg.Log.Writer})
}

// New 创建日志组件，Output 非空时追加为额外输出
func New(opts Options) *ZeroLogger {
	writers := make([]io.Writer, 0, len(opts.Writers)+1)
	for _, writer := range opts.Writers {
		switch writer {
		case "console":
			writers = append(writers, os.Stderr)
		case "file":
			filename, err := getLogPath()
			if err != nil {
				continue
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   filename,
				MaxSize:    1,
				MaxAge:     30,
				MaxBackups: 3,
				LocalTime:  true,
				Compress:   false,
			})
		}
	}
	if opts.Output != nil {
		writers = append(writers, opts.Output)
	}

	if len(writers) == 0 {
		return NewNop()
	}

	zerolog.TimeFieldFormat = "2006-01-02 15:04:05"
	logger := zerolog.New(io.MultiWriter(writers...)).
		With().
		Caller().
		Timestamp().
		Logger().
		Level(parseLevel(opts.Level))

	return &ZeroLogger{logger: logger}
}

// NewNop 创建一个空的日志记录器
func NewNop() *ZeroLogger { return &ZeroLogger{logger: zerolog.Nop()} }

func parseLevel(level string) zerolog.Level {
	switch level {
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.DebugLevel
	}
}

// Info 记录信息
func (z *ZeroLogger) Info(msg string, fields ...any) {
	z.logger.Info().CallerSkipFrame(1).Fields(fields).Msg(msg)
}

// Error 记录错误
func (z *ZeroLogger) Error(msg string, fields ...any) {
	z.logger.Error().CallerSkipFrame(1).Fields(fields).Msg(msg)
}

// Debug 记录调试信息
func (z *ZeroLogger) Debug(msg string, fields ...any) {
	z.logger.Debug().CallerSkipFrame(1).Fields(fields).Msg(msg)
}

// Warn 记录警告
func (z *ZeroLogger) Warn(msg string, fields ...any) {
	z.logger.Warn().CallerSkipFrame(1).Fields(fields).Msg(msg)
}

// Err 记录错误信息
func (z *ZeroLogger) Err(err error, msg string, fields ...any) {
	z.logger.Err(err).CallerSkipFrame(1).Fields(fields).Msg(msg)
}

// With 返回携带固定字段的子日志器
func (z *ZeroLogger) With(fields ...any) Logger {
	return &ZeroLogger{logger: z.logger.With().Fields(fields).Logger()}
}

// GetDataDir 获取应用数据目录
func GetDataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(home, "Library", "Application Support")
	default:
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(home, ".local", "share")
		}
	}

	return filepath.Join(baseDir, AppName), nil
}

// GetLogDir 获取日志目录
func GetLogDir() (string, error) {
	dir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// getLogPath 获取日志文件路径
func getLogPath() (string, error) {
	dir, err := GetLogDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "app.log"), nil
}
