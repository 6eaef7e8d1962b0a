/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type (
	alwaysLevel     struct{}
	loggerComposite struct {
		debug  *zap.Logger
		debugS *zap.SugaredLogger
		info   *zap.Logger
		infoS  *zap.SugaredLogger
		warn   *zap.Logger
		warnS  *zap.SugaredLogger
		error  *zap.Logger
		errorS *zap.SugaredLogger
	}
	// LogConfig controls where logs go once SetupZapLogger is called.
	LogConfig struct {
		// Dir is the directory of debug.log/info.log/warn.log/error.log. Empty means console only.
		Dir string
		// Console keeps a copy of every line on stdout when Dir is set.
		Console bool
		// MaxSizeMB is the size of a log file before it is rotated.
		MaxSizeMB int
		// MaxBackups is the count of rotated files to retain.
		MaxBackups int
		// MaxAgeDays is the max age of rotated files.
		MaxAgeDays int
	}
)

var (
	zapLogger    *loggerComposite
	DebugEnabled = false

	mutex   sync.Mutex
	writers []*lumberjack.Logger
)

const (
	defaultMaxSizeMB  = 1024
	defaultMaxBackups = 7
)

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:          "time",
	LevelKey:         "level",
	NameKey:          "logger",
	CallerKey:        "caller",
	MessageKey:       "msg",
	StacktraceKey:    "stacktrace",
	ConsoleSeparator: " ",
	LineEnding:       zapcore.DefaultLineEnding,
	EncodeLevel:      zapcore.LowercaseLevelEncoder,
	EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
	EncodeDuration:   zapcore.StringDurationEncoder,
}

// init initializes default loggers (to console)
func init() {
	setupConsoleLogger()
}

func setupConsoleLogger() {
	console := func(level string) *zap.Logger {
		return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), alwaysLevel{})).Named(level)
	}
	zapLogger = newComposite(console)
}

func newComposite(build func(level string) *zap.Logger) *loggerComposite {
	c := &loggerComposite{
		debug: build("debug"),
		info:  build("info"),
		warn:  build("warn"),
		error: build("error"),
	}
	c.debugS = c.debug.Sugar()
	c.infoS = c.info.Sugar()
	c.warnS = c.warn.Sugar()
	c.errorS = c.error.Sugar()
	return c
}

func (a alwaysLevel) Enabled(level zapcore.Level) bool {
	return true
}

// SetupZapLogger replaces the console loggers with loggers writing to cfg.Dir.
func SetupZapLogger(cfg LogConfig) error {
	if cfg.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return err
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = defaultMaxBackups
	}

	mutex.Lock()
	defer mutex.Unlock()

	var created []*lumberjack.Logger
	build := func(level string) *zap.Logger {
		w := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, level+".log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		}
		created = append(created, w)
		fileCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), alwaysLevel{})
		if cfg.Console {
			return zap.New(zapcore.NewTee(
				fileCore,
				zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), alwaysLevel{}),
			)).Named(level)
		}
		return zap.New(fileCore).Named(level)
	}

	zapLogger = newComposite(build)
	old := writers
	writers = created
	for _, w := range old {
		w.Close()
	}
	return nil
}

// Close flushes and closes log files opened by SetupZapLogger.
func Close() {
	mutex.Lock()
	defer mutex.Unlock()

	zapLogger.debug.Sync()
	zapLogger.info.Sync()
	zapLogger.warn.Sync()
	zapLogger.error.Sync()
	for _, w := range writers {
		w.Close()
	}
	writers = nil
}

func Debugz(msg string, fields ...zap.Field) {
	if DebugEnabled {
		zapLogger.debug.Info(msg, fields...)
	}
}
func Infoz(msg string, fields ...zap.Field) {
	zapLogger.info.Info(msg, fields...)
}
func Warnz(msg string, fields ...zap.Field) {
	zapLogger.warn.Info(msg, fields...)
}
func Errorz(msg string, fields ...zap.Field) {
	zapLogger.error.Info(msg, fields...)
}

func Debugw(msg string, keyAndValues ...interface{}) {
	if DebugEnabled {
		zapLogger.debugS.Infow(msg, keyAndValues...)
	}
}
func Infow(msg string, keyAndValues ...interface{}) {
	zapLogger.infoS.Infow(msg, keyAndValues...)
}
func Warnw(msg string, keyAndValues ...interface{}) {
	zapLogger.warnS.Infow(msg, keyAndValues...)
}
func Errorw(msg string, keyAndValues ...interface{}) {
	zapLogger.errorS.Infow(msg, keyAndValues...)
}

func Debugf(msg string, args ...interface{}) {
	if DebugEnabled {
		zapLogger.debugS.Infof(msg, args...)
	}
}
func Infof(msg string, args ...interface{}) {
	zapLogger.infoS.Infof(msg, args...)
}
func Warnf(msg string, args ...interface{}) {
	zapLogger.warnS.Infof(msg, args...)
}
func Errorf(msg string, args ...interface{}) {
	zapLogger.errorS.Infof(msg, args...)
}

func IsDebugEnabled() bool {
	return DebugEnabled
}

// TestMode enables debug output so tests show the full picture.
func TestMode() {
	if !DebugEnabled {
		DebugEnabled = true
	}
}
