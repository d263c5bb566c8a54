// Package flow manages per-user multi-turn conversations.
package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tendbot/pkg/bus"
	"tendbot/pkg/logger"
)

// State is the conversation state of a single user.
type State string

const (
	StateNone          State = "none"
	StateAwaitingInput State = "awaiting_input"
	StateProcessing    State = "processing"
)

// Flow is one multi-turn conversation definition. Implementations keep
// no per-user state of their own; everything lives in the Session.
type Flow interface {
	// Name identifies the flow in the command table and schedule config.
	Name() string

	// Begin produces the opening prompt for a fresh session.
	Begin(ctx context.Context, s *Session) (*bus.Response, error)

	// HandleReply consumes one user reply. done reports whether the
	// flow finished with this step.
	HandleReply(ctx context.Context, s *Session, input string) (resp *bus.Response, done bool, err error)
}

// Session is the per-user conversation state. A user has at most one.
type Session struct {
	UserID   string
	Channel  string
	ChatID   string
	FlowName string
	Step     int
	Data     map[string]string

	StartedAt time.Time
	LastReply time.Time
}

type userState struct {
	session *Session
	state   State
}

// Manager tracks conversation state per user. Expiry is lazy: stale
// sessions are noticed on the next interaction, there is no background
// timer.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu    sync.Mutex
	flows map[string]Flow
	users map[string]*userState

	now func() time.Time
}

const defaultTimeout = 15 * time.Minute

// NewManager creates a flow manager. A non-positive timeout falls back
// to the default window.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Manager{
		log:     log,
		timeout: timeout,
		flows:   make(map[string]Flow),
		users:   make(map[string]*userState),
		now:     time.Now,
	}
}

// RegisterFlow registers a flow definition by name.
func (m *Manager) RegisterFlow(f Flow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := f.Name()
	if _, exists := m.flows[name]; exists {
		return fmt.Errorf("flow %s already registered", name)
	}
	m.flows[name] = f
	return nil
}

// State returns the user's current conversation state without touching
// the session.
func (m *Manager) State(userID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[userID]; ok {
		return u.state
	}
	return StateNone
}

// ExpiredNotice lazily checks whether the user's session timed out. If
// so it clears the state and returns the notice to deliver before the
// current interaction is handled normally.
func (m *Manager) ExpiredNotice(userID string) *bus.Response {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok || u.state != StateAwaitingInput {
		return nil
	}
	if m.now().Sub(u.session.LastReply) < m.timeout {
		return nil
	}

	flowName := u.session.FlowName
	delete(m.users, userID)
	m.log.Info("Flow expired",
		zap.String("user_id", userID),
		zap.String("flow", flowName))

	return &bus.Response{
		Text: fmt.Sprintf("Your %s session expired, so I closed it. Start again whenever you like.", flowName),
	}
}

// Begin starts a flow for a user. An existing session is discarded; the
// new flow takes over.
func (m *Manager) Begin(ctx context.Context, flowName, userID, channel, chatID string) (*bus.Response, error) {
	m.mu.Lock()
	f, ok := m.flows[flowName]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("unknown flow: %s", flowName)
	}

	if old, exists := m.users[userID]; exists {
		m.log.Info("Replacing active flow",
			zap.String("user_id", userID),
			zap.String("old_flow", old.session.FlowName),
			zap.String("new_flow", flowName))
	}

	now := m.now()
	session := &Session{
		UserID:    userID,
		Channel:   channel,
		ChatID:    chatID,
		FlowName:  flowName,
		Data:      make(map[string]string),
		StartedAt: now,
		LastReply: now,
	}
	m.users[userID] = &userState{session: session, state: StateProcessing}
	m.mu.Unlock()

	resp, err := f.Begin(ctx, session)
	if err != nil {
		m.clear(userID)
		m.log.Error("Flow begin failed",
			zap.String("flow", flowName),
			zap.String("user_id", userID),
			zap.Error(err))
		return apology(), nil
	}

	m.setState(userID, StateAwaitingInput)
	return resp, nil
}

// HandleReply feeds one user reply into the active flow. handled is
// false when the user has no active session and the input should go
// through normal routing instead.
func (m *Manager) HandleReply(ctx context.Context, userID, input string) (resp *bus.Response, handled bool, err error) {
	m.mu.Lock()
	u, ok := m.users[userID]
	if !ok || u.state != StateAwaitingInput {
		m.mu.Unlock()
		return nil, false, nil
	}
	u.state = StateProcessing
	session := u.session
	f := m.flows[session.FlowName]
	m.mu.Unlock()

	if f == nil {
		m.clear(userID)
		return nil, false, nil
	}

	resp, done, err := f.HandleReply(ctx, session, input)
	if err != nil {
		m.clear(userID)
		m.log.Error("Flow step failed",
			zap.String("flow", session.FlowName),
			zap.String("user_id", userID),
			zap.Int("step", session.Step),
			zap.Error(err))
		return apology(), true, nil
	}

	if done {
		m.clear(userID)
		return resp, true, nil
	}

	m.mu.Lock()
	if u, ok := m.users[userID]; ok {
		u.state = StateAwaitingInput
		u.session.LastReply = m.now()
	}
	m.mu.Unlock()

	return resp, true, nil
}

// Cancel unconditionally ends the user's flow. It succeeds even while a
// step is mid-processing; only the acknowledgement goes through normal
// delivery.
func (m *Manager) Cancel(userID string) *bus.Response {
	m.mu.Lock()
	u, ok := m.users[userID]
	if ok {
		delete(m.users, userID)
	}
	m.mu.Unlock()

	if !ok {
		return &bus.Response{Text: "Nothing to cancel right now."}
	}

	m.log.Info("Flow cancelled",
		zap.String("user_id", userID),
		zap.String("flow", u.session.FlowName))
	return &bus.Response{
		Text: fmt.Sprintf("Okay, I cancelled the %s.", u.session.FlowName),
	}
}

func (m *Manager) clear(userID string) {
	m.mu.Lock()
	delete(m.users, userID)
	m.mu.Unlock()
}

func (m *Manager) setState(userID string, state State) {
	m.mu.Lock()
	if u, ok := m.users[userID]; ok {
		u.state = state
	}
	m.mu.Unlock()
}

func apology() *bus.Response {
	return &bus.Response{
		Text: "Sorry, something went wrong there. The session was closed; feel free to start over.",
	}
}
