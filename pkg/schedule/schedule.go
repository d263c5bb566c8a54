// Package schedule triggers proactive flow prompts on cron schedules.
package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tendbot/pkg/bus"
	"tendbot/pkg/config"
	"tendbot/pkg/flow"
	"tendbot/pkg/logger"
)

const beginTimeout = 30 * time.Second

// Scheduler starts configured flows proactively, so check-ins can reach
// the user without them asking first.
type Scheduler struct {
	log       *logger.Logger
	bus       bus.Bus
	flows     *flow.Manager
	scheduler *cron.Cron
	prompts   []config.ScheduledPrompt
}

// New creates a scheduler over the configured prompts.
func New(log *logger.Logger, messageBus bus.Bus, flows *flow.Manager, cfg *config.Config) *Scheduler {
	return &Scheduler{
		log:       log,
		bus:       messageBus,
		flows:     flows,
		scheduler: cron.New(),
		prompts:   cfg.Schedule.Prompts,
	}
}

// Start validates and registers every prompt, then starts the cron
// scheduler. Invalid entries are skipped with a logged error so one bad
// line does not take down the rest.
func (s *Scheduler) Start() error {
	scheduled := 0
	for _, p := range s.prompts {
		prompt := p
		if _, err := cron.ParseStandard(prompt.Cron); err != nil {
			s.log.Error("Invalid schedule entry, skipping",
				zap.String("cron", prompt.Cron),
				zap.String("flow", prompt.Flow),
				zap.Error(err))
			continue
		}

		if _, err := s.scheduler.AddFunc(prompt.Cron, func() {
			s.fire(prompt)
		}); err != nil {
			s.log.Error("Failed to schedule prompt",
				zap.String("cron", prompt.Cron),
				zap.Error(err))
			continue
		}
		scheduled++
	}

	if scheduled > 0 {
		s.log.Info("Scheduler started", zap.Int("prompts", scheduled))
	}
	s.scheduler.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() error {
	ctx := s.scheduler.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
	return nil
}

// fire begins the configured flow for the target user and pushes the
// opening prompt out through the normal delivery path.
func (s *Scheduler) fire(p config.ScheduledPrompt) {
	ctx, cancel := context.WithTimeout(context.Background(), beginTimeout)
	defer cancel()

	resp, err := s.flows.Begin(ctx, p.Flow, p.UserID, p.Channel, p.ChatID)
	if err != nil {
		s.log.Error("Scheduled flow failed to start",
			zap.String("flow", p.Flow),
			zap.String("user_id", p.UserID),
			zap.Error(err))
		return
	}

	out := &bus.Message{
		ID:        uuid.NewString(),
		ChannelID: p.Channel,
		ChatID:    p.ChatID,
		UserID:    p.UserID,
		Type:      bus.MessageTypeNotice,
		Timestamp: time.Now(),
		Response:  resp,
	}

	if err := s.bus.SendOutbound(out); err != nil {
		s.log.Error("Failed to send scheduled prompt",
			zap.String("channel", p.Channel),
			zap.Error(err))
	}
}
