// Package interaction is the top of the inbound pipeline: it receives
// normalized messages from every channel, consults the router and the
// flow manager, runs the matched handler, and hands responses back to
// the bus for delivery.
package interaction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tendbot/pkg/bus"
	"tendbot/pkg/commands"
	"tendbot/pkg/flow"
	"tendbot/pkg/format"
	"tendbot/pkg/logger"
	"tendbot/pkg/router"
)

// Responder handles conversational text that matched no command and no
// active flow.
type Responder interface {
	Respond(ctx context.Context, msg *bus.Message) (*bus.Response, error)
}

// DefaultResponder is the fallback when no conversational backend is
// wired.
type DefaultResponder struct{}

// Respond implements Responder.
func (DefaultResponder) Respond(ctx context.Context, msg *bus.Message) (*bus.Response, error) {
	return &bus.Response{
		Text:        "I wasn't sure what to do with that. Try /help to see what I can do.",
		Suggestions: []string{"/help", "/checkin", "/tasks"},
	}, nil
}

const (
	workerQueueDepth = 64
	handleTimeout    = 60 * time.Second
)

// Manager serializes message handling per user and arbitrates between
// the router, the flow manager, and the command registries. Messages
// from different users are processed concurrently; messages from the
// same user strictly in arrival order.
type Manager struct {
	log        *logger.Logger
	bus        bus.Bus
	router     *router.Router
	flows      *flow.Manager
	registries *commands.Registries
	responder  Responder

	mu      sync.Mutex
	workers map[string]chan *bus.Message
	closed  bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates an interaction manager.
func NewManager(
	log *logger.Logger,
	messageBus bus.Bus,
	r *router.Router,
	flows *flow.Manager,
	registries *commands.Registries,
	responder Responder,
) *Manager {
	if responder == nil {
		responder = DefaultResponder{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		log:        log,
		bus:        messageBus,
		router:     r,
		flows:      flows,
		registries: registries,
		responder:  responder,
		workers:    make(map[string]chan *bus.Message),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to inbound traffic from every channel.
func (m *Manager) Start() error {
	m.bus.RegisterInbound(bus.InboundWildcard, m.enqueue)
	m.log.Info("Interaction manager started")
	return nil
}

// Stop drains the per-user workers.
func (m *Manager) Stop() error {
	m.cancel()

	m.mu.Lock()
	m.closed = true
	for _, ch := range m.workers {
		close(ch)
	}
	m.workers = make(map[string]chan *bus.Message)
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info("Interaction manager stopped")
	return nil
}

// enqueue routes an inbound message to its user's worker, creating the
// worker on first contact.
func (m *Manager) enqueue(ctx context.Context, msg *bus.Message) error {
	if msg == nil || msg.UserID == "" {
		return fmt.Errorf("inbound message missing user ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("interaction manager stopped")
	}
	ch, ok := m.workers[msg.UserID]
	if !ok {
		ch = make(chan *bus.Message, workerQueueDepth)
		m.workers[msg.UserID] = ch
		m.wg.Add(1)
		go m.worker(ch)
	}

	// The send stays under the lock so Stop cannot close the channel
	// between the lookup and the send. It never blocks; the queue is
	// buffered and overflow drops the message.
	select {
	case ch <- msg:
		return nil
	default:
		m.log.Warn("Dropping inbound message, user queue full",
			zap.String("user_id", msg.UserID),
			zap.String("channel", msg.ChannelID))
		return fmt.Errorf("user %s queue full", msg.UserID)
	}
}

func (m *Manager) worker(ch <-chan *bus.Message) {
	defer m.wg.Done()
	for msg := range ch {
		m.Process(msg)
	}
}

// Process handles one inbound message end to end. Exported for the
// scheduler, which injects synthetic prompts through the same path.
func (m *Manager) Process(msg *bus.Message) {
	ctx, cancel := context.WithTimeout(m.ctx, handleTimeout)
	defer cancel()

	// A timed-out flow is noticed here, on the next interaction, and the
	// message then proceeds through normal routing.
	if notice := m.flows.ExpiredNotice(msg.UserID); notice != nil {
		m.send(msg, notice)
	}

	res := m.router.Route(msg.Content)

	switch {
	case res.Kind == router.KindFlowCommand && res.CommandName == router.CancelCommand:
		// Cancellation resets state synchronously; only the ack goes
		// through the delivery path.
		m.send(msg, m.flows.Cancel(msg.UserID))
		return

	case res.Kind == router.KindFlowCommand:
		resp, err := m.flows.Begin(ctx, res.CommandName, msg.UserID, msg.ChannelID, msg.ChatID)
		if err != nil {
			m.log.Error("Starting flow failed",
				zap.String("flow", res.CommandName),
				zap.Error(err))
			m.send(msg, format.ErrorResponse("/"+res.CommandName))
			return
		}
		m.send(msg, resp)
		return
	}

	// Unprefixed text feeds an active flow before anything else.
	if res.Kind == router.KindStructuredCommand {
		if resp, handled, _ := m.flows.HandleReply(ctx, msg.UserID, msg.Content); handled {
			m.send(msg, resp)
			return
		}
	}

	if resp := m.runCommand(ctx, msg, res); resp != nil {
		m.send(msg, resp)
		return
	}

	// Conversational fallback.
	resp, err := m.responder.Respond(ctx, msg)
	if err != nil {
		m.log.Error("Responder failed", zap.Error(err))
		resp = format.ErrorResponse("that")
	}
	m.send(msg, resp)
}

// runCommand executes a registry command when the message resolves to
// one. It returns nil when the message should fall through to the
// conversational responder.
func (m *Manager) runCommand(ctx context.Context, msg *bus.Message, res router.Result) *bus.Response {
	name := res.CommandName
	if name == "" {
		// The table missed, but registry aliases (like "h") may still
		// resolve the raw token.
		name = commandToken(msg.Content)
		if name == "" {
			return nil
		}
	}

	reg := m.registries.ForChannel(msg.ChannelID)
	def, ok := reg.Get(name)
	if !ok {
		return nil
	}
	if !def.Enabled {
		return &bus.Response{Text: fmt.Sprintf("The %s command is currently disabled.", def.Name)}
	}
	if !reg.Authorized(def, nil) {
		m.log.Warn("Unauthorized command attempt",
			zap.String("command", def.Name),
			zap.String("user_id", msg.UserID))
		return &bus.Response{Text: fmt.Sprintf("You don't have permission to use %s.", def.Name)}
	}
	if wait, ok := reg.ReserveCooldown(def, msg.UserID); !ok {
		return &bus.Response{
			Text: fmt.Sprintf("Easy there. Try %s again in %s.", def.Name, wait.Round(time.Second)),
		}
	}

	m.log.Info("Executing command",
		zap.String("command", def.Name),
		zap.String("channel", msg.ChannelID),
		zap.String("user_id", msg.UserID))

	resp, err := def.Handler(ctx, commands.Request{
		Channel:  msg.ChannelID,
		ChatID:   msg.ChatID,
		UserID:   msg.UserID,
		Username: msg.Username,
		Command:  def.Name,
		Action:   res.MappedAction,
		Args:     res.Args,
		Metadata: map[string]string{"message_id": msg.ID},
	})
	if err != nil {
		m.log.Error("Command failed",
			zap.String("command", def.Name),
			zap.Error(err))
		return format.ErrorResponse("/" + def.Name)
	}
	return resp
}

// send wraps a response into an outbound message addressed back to the
// originating conversation.
func (m *Manager) send(inbound *bus.Message, resp *bus.Response) {
	if resp == nil {
		return
	}

	out := &bus.Message{
		ID:        uuid.NewString(),
		ChannelID: inbound.ChannelID,
		ChatID:    inbound.ChatID,
		ThreadID:  inbound.ThreadID,
		UserID:    inbound.UserID,
		Username:  inbound.Username,
		Type:      bus.MessageTypeText,
		Timestamp: time.Now(),
		ReplyTo:   platformMessageID(inbound),
		Response:  resp,
	}

	if err := m.bus.SendOutbound(out); err != nil {
		m.log.Error("Failed to send outbound message",
			zap.String("channel", inbound.ChannelID),
			zap.Error(err))
	}
}

// platformMessageID strips the channel prefix from a normalized message
// ID, recovering the platform-native ID for reply references.
func platformMessageID(msg *bus.Message) string {
	prefix := msg.ChannelID + ":"
	if strings.HasPrefix(msg.ID, prefix) {
		return strings.TrimPrefix(msg.ID, prefix)
	}
	return ""
}

// commandToken extracts the lower-cased command token from prefixed
// text, without the prefix.
func commandToken(content string) string {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < 2 || (trimmed[0] != '/' && trimmed[0] != '!') {
		return ""
	}
	token := trimmed[1:]
	if idx := strings.IndexAny(token, " \t\n\r"); idx >= 0 {
		token = token[:idx]
	}
	return strings.ToLower(token)
}
