package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultLogLevel = "info"

// LoggerConfig selects level and identity of the process logger.
type LoggerConfig struct {
	Service     string
	Version     string
	Level       string
	Development bool
}

// NewLogger builds a JSON zap logger whose keys line up with Cloud Logging.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(cfg.Level)))); err != nil || strings.TrimSpace(cfg.Level) == "" {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey: "message",
		TimeKey:    "timestamp",
		LevelKey:   "severity",
		EncodeTime: zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(level.String()))
		},
		EncodeDuration: zapcore.MillisDurationEncoder,
		CallerKey:      "caller",
		EncodeCaller:   zapcore.ShortCallerEncoder,
		StacktraceKey:  "stacktrace",
	}

	encoding := "json"
	if cfg.Development {
		encoding = "console"
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zcfg := zap.Config{
		Level:             level,
		Development:       cfg.Development,
		Encoding:          encoding,
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	fields := make([]zap.Field, 0, 2)
	if service := strings.TrimSpace(cfg.Service); service != "" {
		fields = append(fields, zap.String("service", service))
	}
	if version := strings.TrimSpace(cfg.Version); version != "" {
		fields = append(fields, zap.String("version", version))
	}
	return logger.With(fields...), nil
}

// WithRequestFields augments the logger with request scoped fields.
func WithRequestFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(fields...)
}
