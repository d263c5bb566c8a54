package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tendbot/pkg/logger"
)

// LocalBus is an in-process message bus using Go channels.
type LocalBus struct {
	log      *logger.Logger
	inbound  map[string][]Handler // Channel ID -> inbound handlers
	outbound map[string][]Handler // Channel ID -> outbound handlers
	mu       sync.RWMutex

	// Channels for message flow
	inboundCh  chan *Message
	outboundCh chan *Message

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	messagesIn  uint64
	messagesOut uint64
	errors      uint64
	metricsLock sync.RWMutex
}

// NewLocalBus creates a new local message bus.
func NewLocalBus(log *logger.Logger, bufferSize int) *LocalBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &LocalBus{
		log:        log,
		inbound:    make(map[string][]Handler),
		outbound:   make(map[string][]Handler),
		inboundCh:  make(chan *Message, bufferSize),
		outboundCh: make(chan *Message, bufferSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the message bus processing loops.
func (b *LocalBus) Start() error {
	b.log.Info("Starting message bus")

	b.wg.Add(1)
	go b.processInbound()

	b.wg.Add(1)
	go b.processOutbound()

	return nil
}

// Stop stops the message bus and waits for all processing to complete.
func (b *LocalBus) Stop() error {
	b.log.Info("Stopping message bus")

	b.cancel()
	close(b.inboundCh)
	close(b.outboundCh)
	b.wg.Wait()

	b.log.Info("Message bus stopped")
	return nil
}

// RegisterInbound registers a handler for inbound messages from a channel.
// Multiple handlers can be registered for the same channel ID.
func (b *LocalBus) RegisterInbound(channelID string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inbound[channelID] = append(b.inbound[channelID], handler)
	b.log.Info("Registered inbound handler", zap.String("channel", channelID))
}

// RegisterOutbound registers a handler for outbound messages to a channel.
func (b *LocalBus) RegisterOutbound(channelID string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.outbound[channelID] = append(b.outbound[channelID], handler)
	b.log.Info("Registered outbound handler", zap.String("channel", channelID))
}

// UnregisterChannel removes all handlers bound to a channel ID.
func (b *LocalBus) UnregisterChannel(channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.inbound, channelID)
	delete(b.outbound, channelID)
	b.log.Info("Unregistered handlers", zap.String("channel", channelID))
}

// SendInbound sends an inbound message (from adapter to pipeline).
func (b *LocalBus) SendInbound(msg *Message) error {
	select {
	case b.inboundCh <- msg:
		b.incrementMessagesIn()
		return nil
	case <-b.ctx.Done():
		return fmt.Errorf("bus is shutting down")
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout sending inbound message")
	}
}

// SendOutbound sends an outbound message (from pipeline to adapter).
func (b *LocalBus) SendOutbound(msg *Message) error {
	select {
	case b.outboundCh <- msg:
		b.incrementMessagesOut()
		return nil
	case <-b.ctx.Done():
		return fmt.Errorf("bus is shutting down")
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout sending outbound message")
	}
}

// processInbound processes inbound messages.
func (b *LocalBus) processInbound() {
	defer b.wg.Done()

	for {
		select {
		case msg, ok := <-b.inboundCh:
			if !ok {
				return
			}
			b.dispatch(msg, b.inboundHandlers(msg.ChannelID), "inbound")

		case <-b.ctx.Done():
			return
		}
	}
}

// processOutbound processes outbound messages.
func (b *LocalBus) processOutbound() {
	defer b.wg.Done()

	for {
		select {
		case msg, ok := <-b.outboundCh:
			if !ok {
				return
			}
			b.dispatch(msg, b.outboundHandlers(msg.ChannelID), "outbound")

		case <-b.ctx.Done():
			return
		}
	}
}

func (b *LocalBus) inboundHandlers(channelID string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]Handler, 0, len(b.inbound[channelID])+len(b.inbound[InboundWildcard]))
	handlers = append(handlers, b.inbound[channelID]...)
	handlers = append(handlers, b.inbound[InboundWildcard]...)
	return handlers
}

func (b *LocalBus) outboundHandlers(channelID string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.outbound[channelID]
}

// dispatch delivers a message to the given handlers.
func (b *LocalBus) dispatch(msg *Message, handlers []Handler, direction string) {
	if len(handlers) == 0 {
		b.log.Warn("No handlers registered for channel",
			zap.String("channel", msg.ChannelID),
			zap.String("direction", direction),
			zap.String("message_id", msg.ID))
		return
	}

	b.log.Debug("Processing message",
		zap.String("channel", msg.ChannelID),
		zap.String("direction", direction),
		zap.String("message_id", msg.ID),
		zap.String("chat", msg.ChatID))

	for _, handler := range handlers {
		if err := handler(b.ctx, msg); err != nil {
			b.incrementErrors()
			b.log.Error("Handler error",
				zap.String("channel", msg.ChannelID),
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}
}

// GetMetrics returns current bus metrics.
func (b *LocalBus) GetMetrics() map[string]uint64 {
	b.metricsLock.RLock()
	defer b.metricsLock.RUnlock()

	return map[string]uint64{
		"messages_in":  b.messagesIn,
		"messages_out": b.messagesOut,
		"errors":       b.errors,
	}
}

func (b *LocalBus) incrementMessagesIn() {
	b.metricsLock.Lock()
	b.messagesIn++
	b.metricsLock.Unlock()
}

func (b *LocalBus) incrementMessagesOut() {
	b.metricsLock.Lock()
	b.messagesOut++
	b.metricsLock.Unlock()
}

func (b *LocalBus) incrementErrors() {
	b.metricsLock.Lock()
	b.errors++
	b.metricsLock.Unlock()
}
