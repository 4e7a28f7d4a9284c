// Package providers contains dependency injection providers for livewatch.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/livewatch/internal/config"
	"github.com/listenupapp/livewatch/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	flags := do.MustInvoke[config.Flags](i)
	return config.LoadConfig(flags)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.Logger.Level == "debug",
		Environment: cfg.App.Environment,
	})

	log.Debug("Starting livewatch",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"root", cfg.App.Root,
		"config_file", cfg.App.ConfigFile,
	)

	return log, nil
}
