package config

import (
	"go.uber.org/fx"

	"tendbot/pkg/logger"
)

// Params carries CLI-provided configuration inputs into the fx graph.
type Params struct {
	ConfigPath string
	Debug      bool
}

// Module provides configuration for fx dependency injection.
var Module = fx.Module("config",
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLoggerConfig),
)

// ProvideConfig loads the application configuration.
func ProvideConfig(params Params) (*Config, error) {
	loader := NewLoader()
	cfg, err := loader.Load(params.ConfigPath)
	if err != nil {
		return nil, err
	}
	if params.Debug {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	return cfg, nil
}

// ProvideLoggerConfig derives the logger configuration from app config.
func ProvideLoggerConfig(cfg *Config) *logger.Config {
	logCfg := logger.DefaultConfig()
	if cfg.Log.Level != "" {
		logCfg.Level = logger.Level(cfg.Log.Level)
	}
	if cfg.Log.OutputPath != "" {
		logCfg.OutputPath = cfg.Log.OutputPath
	}
	logCfg.Development = cfg.Log.Development
	return logCfg
}
