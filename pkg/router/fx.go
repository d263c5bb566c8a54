package router

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"tendbot/pkg/config"
	"tendbot/pkg/logger"
)

// Module provides the message router with command-table hot reload.
var Module = fx.Module("router",
	fx.Provide(NewFromConfig),
	fx.Invoke(StartTableWatcher),
)

// NewFromConfig builds the router from the configured command table,
// merging in an external table file when one is set.
func NewFromConfig(log *logger.Logger, cfg *config.Config) *Router {
	entries := cfg.Commands.Table

	if cfg.Commands.TableFile != "" {
		extra, err := config.LoadCommandTable(cfg.Commands.TableFile)
		if err == nil {
			entries = append(append([]config.CommandEntry{}, entries...), extra...)
		}
	}

	return New(log, entries)
}

// StartTableWatcher hot-reloads the routing table when the external
// table file changes. The configured base entries always stay routable.
func StartTableWatcher(lc fx.Lifecycle, log *logger.Logger, cfg *config.Config, r *Router) {
	if cfg.Commands.TableFile == "" {
		return
	}

	watcher := config.NewTableWatcher(cfg.Commands.TableFile)
	watcher.AddHandler(func(extra []config.CommandEntry) error {
		merged := append(append([]config.CommandEntry{}, cfg.Commands.Table...), extra...)
		r.SetTable(merged)
		log.Info("Reloaded command table",
			zap.String("file", cfg.Commands.TableFile),
			zap.Int("entries", len(merged)))
		return nil
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return watcher.Start()
		},
		OnStop: func(ctx context.Context) error {
			watcher.Stop()
			return nil
		},
	})
}
