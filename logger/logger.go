// Package logger provides the process-wide structured logger.
//
// It wraps a single global *zap.SugaredLogger, initialized once at process
// startup via Initialize. Callers anywhere in the module use the package
// level Info/Infow/Warn/Warnw/Error/Errorw/Debug/Debugw functions rather
// than threading a logger through every constructor.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global logger. It is nil until Initialize is called; the
// package-level helper functions below silently no-op on a nil Log so that
// packages can log during early init without a strict ordering requirement.
var Log *zap.SugaredLogger

// Initialize builds the global logger. jsonOutput selects a production JSON
// encoder (suitable for log aggregation); otherwise a compact
// human-readable console encoder is used (suitable for a terminal).
func Initialize(jsonOutput bool, level string) error {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.Set(level); err != nil {
			return err
		}
	}

	var core zapcore.Core
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		built, err := cfg.Build()
		if err != nil {
			return err
		}
		Log = built.Sugar()
		return nil
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	core = zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	Log = zap.New(core, zap.AddCaller()).Sugar()
	return nil
}

// Sync flushes any buffered log entries. Call once at shutdown.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

func Info(args ...interface{}) {
	if Log != nil {
		Log.Info(args...)
	}
}

func Infof(template string, args ...interface{}) {
	if Log != nil {
		Log.Infof(template, args...)
	}
}

func Infow(msg string, keysAndValues ...interface{}) {
	if Log != nil {
		Log.Infow(msg, keysAndValues...)
	}
}

func Warn(args ...interface{}) {
	if Log != nil {
		Log.Warn(args...)
	}
}

func Warnw(msg string, keysAndValues ...interface{}) {
	if Log != nil {
		Log.Warnw(msg, keysAndValues...)
	}
}

func Error(args ...interface{}) {
	if Log != nil {
		Log.Error(args...)
	}
}

func Errorw(msg string, keysAndValues ...interface{}) {
	if Log != nil {
		Log.Errorw(msg, keysAndValues...)
	}
}

func Debug(args ...interface{}) {
	if Log != nil {
		Log.Debug(args...)
	}
}

func Debugw(msg string, keysAndValues ...interface{}) {
	if Log != nil {
		Log.Debugw(msg, keysAndValues...)
	}
}
