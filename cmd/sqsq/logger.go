package main

import (
	"fmt"

	"github.com/slackmgr/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger adapts a zap sugared logger to types.Logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

var _ types.Logger = (*zapLogger)(nil)

func newLogger(level string, jsonOutput bool) (*zapLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewDevelopmentConfig()
	if jsonOutput {
		cfg = zap.NewProductionConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &zapLogger{sugar: logger.Sugar()}, nil
}

//nolint:ireturn // Must return interface to implement types.Logger
func (l *zapLogger) WithField(key string, value any) types.Logger {
	return &zapLogger{sugar: l.sugar.With(key, value)}
}

//nolint:ireturn // Must return interface to implement types.Logger
func (l *zapLogger) WithFields(fields map[string]any) types.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	return &zapLogger{sugar: l.sugar.With(args...)}
}

func (l *zapLogger) Debug(msg string)                  { l.sugar.Debug(msg) }
func (l *zapLogger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Info(msg string)                   { l.sugar.Info(msg) }
func (l *zapLogger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warn(msg string)                   { l.sugar.Warn(msg) }
func (l *zapLogger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Error(msg string)                  { l.sugar.Error(msg) }
func (l *zapLogger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Fatal(msg string)                  { l.sugar.Fatal(msg) }
func (l *zapLogger) Fatalf(format string, args ...any) { l.sugar.Fatalf(format, args...) }

func (l *zapLogger) sync() {
	_ = l.sugar.Sync()
}
