package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tendbot/pkg/bus"
	"tendbot/pkg/logger"
)

// scriptedFlow is a two-step flow for manager tests.
type scriptedFlow struct {
	name     string
	beginErr error
	stepErr  error
}

func (f *scriptedFlow) Name() string { return f.name }

func (f *scriptedFlow) Begin(ctx context.Context, s *Session) (*bus.Response, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &bus.Response{Text: "step one?"}, nil
}

func (f *scriptedFlow) HandleReply(ctx context.Context, s *Session, input string) (*bus.Response, bool, error) {
	if f.stepErr != nil {
		return nil, false, f.stepErr
	}
	s.Data["answer"] = input
	if s.Step == 0 {
		s.Step++
		return &bus.Response{Text: "step two?"}, false, nil
	}
	return &bus.Response{Text: "done"}, true, nil
}

func newTestManager(t *testing.T, flows ...Flow) *Manager {
	t.Helper()
	m := NewManager(logger.NewNop(), time.Minute)
	for _, f := range flows {
		if err := m.RegisterFlow(f); err != nil {
			t.Fatalf("register flow: %v", err)
		}
	}
	return m
}

func begin(t *testing.T, m *Manager, flowName, userID string) *bus.Response {
	t.Helper()
	resp, err := m.Begin(context.Background(), flowName, userID, "discord", "chat-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return resp
}

func TestFullFlowLifecycle(t *testing.T) {
	m := newTestManager(t, &scriptedFlow{name: "quiz"})

	if m.State("u1") != StateNone {
		t.Fatal("fresh user should be in NONE")
	}

	resp := begin(t, m, "quiz", "u1")
	if resp.Text != "step one?" {
		t.Errorf("unexpected opening prompt: %q", resp.Text)
	}
	if m.State("u1") != StateAwaitingInput {
		t.Fatalf("expected awaiting input, got %s", m.State("u1"))
	}

	resp, handled, err := m.HandleReply(context.Background(), "u1", "first")
	if err != nil || !handled {
		t.Fatalf("first reply: handled=%v err=%v", handled, err)
	}
	if resp.Text != "step two?" {
		t.Errorf("unexpected mid prompt: %q", resp.Text)
	}

	resp, handled, _ = m.HandleReply(context.Background(), "u1", "second")
	if !handled || resp.Text != "done" {
		t.Fatalf("final reply: handled=%v resp=%+v", handled, resp)
	}
	if m.State("u1") != StateNone {
		t.Error("completed flow should return to NONE")
	}
}

func TestHandleReplyWithoutSession(t *testing.T) {
	m := newTestManager(t, &scriptedFlow{name: "quiz"})

	resp, handled, err := m.HandleReply(context.Background(), "nobody", "hello")
	if handled || resp != nil || err != nil {
		t.Errorf("expected pass-through, got handled=%v resp=%v err=%v", handled, resp, err)
	}
}

func TestCancelIsUnconditional(t *testing.T) {
	m := newTestManager(t, &scriptedFlow{name: "quiz"})
	begin(t, m, "quiz", "u1")

	resp := m.Cancel("u1")
	if !strings.Contains(resp.Text, "cancelled") {
		t.Errorf("unexpected cancel ack: %q", resp.Text)
	}
	if m.State("u1") != StateNone {
		t.Error("cancel must reset state to NONE")
	}

	// Cancelling with nothing active still succeeds.
	resp = m.Cancel("u1")
	if !strings.Contains(resp.Text, "Nothing to cancel") {
		t.Errorf("unexpected idle cancel ack: %q", resp.Text)
	}
}

func TestStepFailureResetsState(t *testing.T) {
	f := &scriptedFlow{name: "quiz"}
	m := newTestManager(t, f)
	begin(t, m, "quiz", "u1")

	f.stepErr = errors.New("storage unavailable")
	resp, handled, err := m.HandleReply(context.Background(), "u1", "first")
	if err != nil {
		t.Fatalf("step failure must not propagate: %v", err)
	}
	if !handled {
		t.Fatal("failed step still consumed the reply")
	}
	if !strings.Contains(resp.Text, "Sorry") {
		t.Errorf("expected generic apology, got %q", resp.Text)
	}
	if m.State("u1") != StateNone {
		t.Error("failed step must reset state to NONE")
	}
}

func TestBeginFailureResetsState(t *testing.T) {
	m := newTestManager(t, &scriptedFlow{name: "quiz", beginErr: errors.New("boom")})

	resp, err := m.Begin(context.Background(), "quiz", "u1", "discord", "chat-1")
	if err != nil {
		t.Fatalf("begin failure must not propagate: %v", err)
	}
	if !strings.Contains(resp.Text, "Sorry") {
		t.Errorf("expected generic apology, got %q", resp.Text)
	}
	if m.State("u1") != StateNone {
		t.Error("failed begin must leave user in NONE")
	}
}

func TestBeginUnknownFlow(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Begin(context.Background(), "missing", "u1", "discord", "c1"); err == nil {
		t.Fatal("expected error for unknown flow")
	}
}

func TestLazyExpiry(t *testing.T) {
	m := newTestManager(t, &scriptedFlow{name: "quiz"})
	begin(t, m, "quiz", "u1")

	// No expiry inside the window.
	if notice := m.ExpiredNotice("u1"); notice != nil {
		t.Fatalf("unexpected notice inside window: %+v", notice)
	}

	base := time.Now()
	m.now = func() time.Time { return base.Add(2 * time.Minute) }

	notice := m.ExpiredNotice("u1")
	if notice == nil {
		t.Fatal("expected expiry notice")
	}
	if !strings.Contains(notice.Text, "expired") {
		t.Errorf("unexpected notice text: %q", notice.Text)
	}
	if m.State("u1") != StateNone {
		t.Error("expired session must reset state to NONE")
	}

	// Second check is a no-op.
	if notice := m.ExpiredNotice("u1"); notice != nil {
		t.Errorf("expiry notice emitted twice: %+v", notice)
	}
}

func TestBeginReplacesActiveFlow(t *testing.T) {
	m := newTestManager(t, &scriptedFlow{name: "quiz"}, NewCheckinFlow())
	begin(t, m, "quiz", "u1")

	resp := begin(t, m, "checkin", "u1")
	if !strings.Contains(resp.Text, "check in") {
		t.Errorf("expected check-in prompt, got %q", resp.Text)
	}

	// Replies now go to the check-in flow.
	resp, handled, _ := m.HandleReply(context.Background(), "u1", "great")
	if !handled || !strings.Contains(resp.Text, "get done today") {
		t.Errorf("reply did not reach replacement flow: %+v", resp)
	}
}

func TestCheckinFlowCollectsSummary(t *testing.T) {
	m := newTestManager(t, NewCheckinFlow())
	begin(t, m, "checkin", "u1")

	m.HandleReply(context.Background(), "u1", "great")
	m.HandleReply(context.Background(), "u1", "finish the report")
	resp, handled, _ := m.HandleReply(context.Background(), "u1", "nothing")

	if !handled {
		t.Fatal("final reply not handled")
	}
	if resp.Rich == nil || resp.Rich.Title != "Daily check-in" {
		t.Fatalf("expected summary rich data, got %+v", resp)
	}
	for _, f := range resp.Rich.Fields {
		if f.Name == "Blockers" {
			t.Error("'nothing' should not produce a blockers field")
		}
	}
	if m.State("u1") != StateNone {
		t.Error("completed check-in should return to NONE")
	}
}
