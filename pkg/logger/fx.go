package logger

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides logger for fx dependency injection.
var Module = fx.Module("logger",
	fx.Provide(ProvideLogger),
)

// ProvideLogger provides a logger instance built from application config.
// The config package supplies LoggerSettings via fx so that log level and
// output path follow the loaded configuration.
func ProvideLogger(lc fx.Lifecycle, cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	log, err := New(cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Logger initialized",
				zap.String("level", string(cfg.Level)),
				zap.String("output", cfg.OutputPath))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Sync can fail on stdout; not actionable at shutdown.
			_ = log.Sync()
			return nil
		},
	})

	return log, nil
}
