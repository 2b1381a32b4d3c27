package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger: JSON in production, colored console otherwise.
func New(environment string) (*zap.Logger, error) {
	if environment == "production" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

// Recover logs a recovered panic. Use as `defer logger.Recover(log, "what")` in goroutines.
func Recover(log *zap.Logger, where string) {
	if r := recover(); r != nil {
		log.Error("recovered from panic", zap.String("where", where), zap.Any("panic", r), zap.Stack("stack"))
	}
}
