package schedule

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tendbot/pkg/bus"
	"tendbot/pkg/config"
	"tendbot/pkg/flow"
	"tendbot/pkg/logger"
)

func testScheduler(t *testing.T, prompts ...config.ScheduledPrompt) (*Scheduler, *flow.Manager, bus.Bus) {
	t.Helper()

	log := logger.NewNop()
	b := bus.NewLocalBus(log, 16)
	if err := b.Start(); err != nil {
		t.Fatalf("starting bus: %v", err)
	}
	t.Cleanup(func() { b.Stop() })

	flows := flow.NewManager(log, time.Minute)
	if err := flows.RegisterFlow(flow.NewCheckinFlow()); err != nil {
		t.Fatalf("register flow: %v", err)
	}

	cfg := &config.Config{Schedule: config.ScheduleConfig{Prompts: prompts}}
	return New(log, b, flows, cfg), flows, b
}

func TestFireStartsFlowAndSendsPrompt(t *testing.T) {
	s, flows, b := testScheduler(t)

	var mu sync.Mutex
	var got *bus.Message
	signal := make(chan struct{}, 1)
	b.RegisterOutbound("telegram", func(ctx context.Context, msg *bus.Message) error {
		mu.Lock()
		got = msg
		mu.Unlock()
		signal <- struct{}{}
		return nil
	})

	s.fire(config.ScheduledPrompt{
		Cron:    "0 9 * * *",
		Channel: "telegram",
		ChatID:  "12345",
		UserID:  "12345",
		Flow:    "checkin",
	})

	select {
	case <-signal:
	case <-time.After(2 * time.Second):
		t.Fatal("prompt never delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.ChatID != "12345" || got.Response == nil {
		t.Fatalf("unexpected outbound message: %+v", got)
	}
	if !strings.Contains(got.Response.Text, "check in") {
		t.Errorf("unexpected prompt: %q", got.Response.Text)
	}
	if flows.State("12345") != flow.StateAwaitingInput {
		t.Errorf("scheduled flow not awaiting input, state=%s", flows.State("12345"))
	}
}

func TestFireUnknownFlowIsDropped(t *testing.T) {
	s, flows, _ := testScheduler(t)

	s.fire(config.ScheduledPrompt{Channel: "telegram", ChatID: "1", UserID: "1", Flow: "missing"})

	if flows.State("1") != flow.StateNone {
		t.Error("unknown flow must not create state")
	}
}

func TestStartSkipsInvalidCron(t *testing.T) {
	s, _, _ := testScheduler(t,
		config.ScheduledPrompt{Cron: "not a cron", Flow: "checkin"},
		config.ScheduledPrompt{Cron: "0 9 * * *", Channel: "telegram", ChatID: "1", UserID: "1", Flow: "checkin"},
	)

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if got := len(s.scheduler.Entries()); got != 1 {
		t.Errorf("expected 1 scheduled entry, got %d", got)
	}
}
