package logger

import "go.uber.org/zap"

// New builds the process logger. Anything other than production gets the
// development config.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	cfg := zap.NewDevelopmentConfig()
	return cfg.Build()
}
