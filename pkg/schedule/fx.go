package schedule

import (
	"context"

	"go.uber.org/fx"

	"tendbot/pkg/bus"
	"tendbot/pkg/config"
	"tendbot/pkg/flow"
	"tendbot/pkg/logger"
)

// Module is the fx module for scheduled prompts.
var Module = fx.Module("schedule",
	fx.Provide(NewScheduler),
	fx.Invoke(func(*Scheduler) {}),
)

// NewScheduler creates the scheduler for fx.
func NewScheduler(
	lc fx.Lifecycle,
	log *logger.Logger,
	messageBus bus.Bus,
	flows *flow.Manager,
	cfg *config.Config,
) *Scheduler {
	s := New(log, messageBus, flows, cfg)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop()
		},
	})

	return s
}
