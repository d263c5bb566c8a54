package channels

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"tendbot/pkg/bus"
	"tendbot/pkg/channels/core"
	"tendbot/pkg/delivery"
	"tendbot/pkg/logger"
)

// fakeChannel is a controllable Channel for manager tests.
type fakeChannel struct {
	*core.StatusTracker

	id      string
	enabled bool
	sendErr error
	sent    atomic.Int64
	started atomic.Bool
	stopped atomic.Bool
}

func newFakeChannel(id string, enabled bool) *fakeChannel {
	return &fakeChannel{StatusTracker: core.NewStatusTracker(), id: id, enabled: enabled}
}

func (f *fakeChannel) ID() string      { return f.id }
func (f *fakeChannel) Name() string    { return strings.ToUpper(f.id) }
func (f *fakeChannel) IsEnabled() bool { return f.enabled }

func (f *fakeChannel) Start(ctx context.Context) error {
	f.started.Store(true)
	f.SetState(core.StateConnected, "")
	return nil
}

func (f *fakeChannel) Stop(ctx context.Context) error {
	f.stopped.Store(true)
	f.SetState(core.StateDisconnected, "")
	return nil
}

func (f *fakeChannel) Send(ctx context.Context, msg *bus.Message) error {
	f.sent.Add(1)
	return f.sendErr
}

func testManager(t *testing.T) (*Manager, bus.Bus) {
	t.Helper()

	log := logger.NewNop()
	b := bus.NewLocalBus(log, 16)
	if err := b.Start(); err != nil {
		t.Fatalf("starting bus: %v", err)
	}
	t.Cleanup(func() { b.Stop() })

	retries := delivery.NewManager(log, delivery.Config{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	})
	t.Cleanup(retries.Stop)

	return NewManager(log, b, retries), b
}

func outbound(channelID, chatID, text string) *bus.Message {
	return &bus.Message{
		ID:        "m1",
		ChannelID: channelID,
		ChatID:    chatID,
		Response:  &bus.Response{Text: text},
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	m, _ := testManager(t)

	if err := m.Register(newFakeChannel("discord", true)); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := m.Register(newFakeChannel("discord", true)); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestStartOnlyEnabledChannels(t *testing.T) {
	m, _ := testManager(t)

	enabled := newFakeChannel("discord", true)
	disabled := newFakeChannel("telegram", false)
	m.Register(enabled)
	m.Register(disabled)

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	deadline := time.After(time.Second)
	for !enabled.started.Load() {
		select {
		case <-deadline:
			t.Fatal("enabled channel never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if disabled.started.Load() {
		t.Error("disabled channel should not start")
	}
}

func TestOutboundDeliveredThroughChannel(t *testing.T) {
	m, b := testManager(t)

	ch := newFakeChannel("discord", true)
	m.Register(ch)
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	if err := b.SendOutbound(outbound("discord", "chat-1", "hello")); err != nil {
		t.Fatalf("send outbound: %v", err)
	}

	deadline := time.After(time.Second)
	for ch.sent.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("message never reached the channel")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestOutboundWithoutResponseRejected(t *testing.T) {
	m, _ := testManager(t)

	ch := newFakeChannel("discord", true)
	err := m.deliver(context.Background(), ch, &bus.Message{ID: "m1", ChatID: "c1"})
	if err == nil {
		t.Fatal("expected error for message without response")
	}
	if ch.sent.Load() != 0 {
		t.Error("channel should not be invoked without a response payload")
	}
}

func TestDeliverSurfacesTerminalFailure(t *testing.T) {
	m, _ := testManager(t)

	ch := newFakeChannel("discord", true)
	ch.sendErr = delivery.PermissionDenied(errors.New("dms closed"))

	err := m.deliver(context.Background(), ch, outbound("discord", "u1", "hi"))
	if err == nil {
		t.Fatal("expected terminal failure to surface")
	}
	if ch.sent.Load() != 1 {
		t.Errorf("expected exactly one attempt, got %d", ch.sent.Load())
	}
}

func TestStatusesReportsHealthPerChannel(t *testing.T) {
	m, _ := testManager(t)

	healthy := newFakeChannel("discord", true)
	healthy.SetState(core.StateConnected, "")
	degraded := newFakeChannel("email", true)
	degraded.SetState(core.StateDegraded, "smtp timeout")
	m.Register(healthy)
	m.Register(degraded)

	statuses := m.Statuses()
	if statuses["discord"] != "connected" {
		t.Errorf("unexpected discord status: %q", statuses["discord"])
	}
	if statuses["email"] != "degraded (smtp timeout)" {
		t.Errorf("unexpected email status: %q", statuses["email"])
	}
}

func TestStopStopsEveryChannel(t *testing.T) {
	m, _ := testManager(t)

	ch := newFakeChannel("discord", true)
	m.Register(ch)
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !ch.stopped.Load() {
		t.Error("channel not stopped")
	}
}

func TestDescribeMultibyteTruncation(t *testing.T) {
	msg := &bus.Message{
		ID:       "m1",
		ChatID:   "c1",
		Response: &bus.Response{Text: strings.Repeat("メッセージ", 20)},
	}

	got := describe(msg)
	if !utf8.ValidString(got) {
		t.Errorf("describe produced invalid UTF-8: %q", got)
	}
}
