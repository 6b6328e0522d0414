package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger passed to every component. Packages log
// through it and the field helpers below, never through zap directly.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)

	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)

	// With returns a child logger that adds fields to every entry.
	With(fields ...zap.Field) Logger

	Sync() error
}

type zapLogger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

func wrap(z *zap.Logger) Logger {
	return &zapLogger{Logger: z, sugar: z.Sugar()}
}

// New builds the process logger. pretty selects the colored console encoder,
// otherwise JSON with ISO8601 timestamps. Unknown levels fall back to info.
func New(level string, pretty bool) Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]any{"service": "snaps"}
	if pretty {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

	z, err := cfg.Build(zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		panic(err)
	}
	return wrap(z)
}

func parseLevel(lvl string) zapcore.Level {
	l, err := zapcore.ParseLevel(strings.TrimSpace(lvl))
	if err != nil || lvl == "" {
		return zapcore.InfoLevel
	}
	return l
}

func (l *zapLogger) Debugf(t string, args ...any) { l.sugar.Debugf(t, args...) }
func (l *zapLogger) Infof(t string, args ...any)  { l.sugar.Infof(t, args...) }
func (l *zapLogger) Warnf(t string, args ...any)  { l.sugar.Warnf(t, args...) }
func (l *zapLogger) Errorf(t string, args ...any) { l.sugar.Errorf(t, args...) }

func (l *zapLogger) With(fields ...zap.Field) Logger { return wrap(l.Logger.With(fields...)) }

// Nop discards everything.
func Nop() Logger { return wrap(zap.NewNop()) }

// Component tags entries with the emitting subsystem.
func Component(name string) zap.Field { return zap.String("component", name) }

func String(key, val string) zap.Field                 { return zap.String(key, val) }
func Int(key string, val int) zap.Field                { return zap.Int(key, val) }
func Int64(key string, val int64) zap.Field            { return zap.Int64(key, val) }
func Bool(key string, val bool) zap.Field              { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) zap.Field { return zap.Duration(key, val) }
func Time(key string, val time.Time) zap.Field         { return zap.Time(key, val) }
func Error(err error) zap.Field                        { return zap.Error(err) }
