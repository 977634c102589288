package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	sugar *zap.SugaredLogger
	// outer skips one more frame for the package-level helpers.
	outer *zap.SugaredLogger
}

func wrap(sugar *zap.SugaredLogger) *Logger {
	return &Logger{sugar: sugar, outer: sugar.WithOptions(zap.AddCallerSkip(1))}
}

// New builds a production JSON logger at the given level ("debug", "info",
// "warn", "error"). Development mode switches to the console encoder.
func New(level string, development bool) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return wrap(base.Sugar()), nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return wrap(zap.NewNop().Sugar())
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
	_ = l.sugar.Sync()
	os.Exit(1)
}

// With returns a child logger carrying the given key/value pairs on every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return wrap(l.sugar.With(keysAndValues...))
}

func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Global logger instance
var GlobalLogger = mustDefault()

func mustDefault() *Logger {
	l, err := New("info", false)
	if err != nil {
		return Nop()
	}
	return l
}

// Init replaces the global logger using the configured level and mode.
func Init(level string, development bool) error {
	l, err := New(level, development)
	if err != nil {
		return err
	}
	GlobalLogger = l
	return nil
}

// Convenience functions
func Info(format string, v ...interface{}) {
	GlobalLogger.outer.Infof(format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.outer.Warnf(format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.outer.Errorf(format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.outer.Debugf(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.outer.Errorf(format, v...)
	_ = GlobalLogger.Sync()
	os.Exit(1)
}

// With returns a child of the global logger carrying the given key/value
// pairs.
func With(keysAndValues ...interface{}) *Logger {
	return GlobalLogger.With(keysAndValues...)
}

func Sync() error {
	return GlobalLogger.Sync()
}
