package logging

import "go.uber.org/zap"

// New builds the service logger. Debug switches to the development
// encoder with debug-level output.
func New(serviceName string, debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", serviceName)), nil
}
