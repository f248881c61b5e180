package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stock-sim-go/internal/config"
)

// New builds the service logger from its configuration section. An empty
// level means info; "json" selects the production encoder, anything else the
// development console encoder.
func New(cfg config.Logger) (*zap.Logger, error) {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	zapCfg.Level = zap.NewAtomicLevelAt(logLevel)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build()
}
