package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tendbot/pkg/logger"
)

// RedisBus is a Redis-based message bus using pub/sub. It allows the
// interaction pipeline and channel adapters to run in separate processes.
type RedisBus struct {
	log    *logger.Logger
	client *redis.Client
	prefix string

	inbound  map[string][]Handler
	outbound map[string][]Handler
	mu       sync.RWMutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pubsub *redis.PubSub

	// Metrics
	messagesIn  uint64
	messagesOut uint64
	errors      uint64
	metricsLock sync.RWMutex
}

// RedisBusConfig configures the Redis bus.
type RedisBusConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisBus creates a new Redis-based message bus.
func NewRedisBus(log *logger.Logger, cfg *RedisBusConfig) (*RedisBus, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "tendbot:bus:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &RedisBus{
		log:      log,
		client:   client,
		prefix:   cfg.Prefix,
		inbound:  make(map[string][]Handler),
		outbound: make(map[string][]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}

	log.Info("Redis bus initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("prefix", cfg.Prefix))

	return b, nil
}

// Start starts the Redis bus.
func (b *RedisBus) Start() error {
	b.log.Info("Starting Redis message bus")

	b.pubsub = b.client.PSubscribe(b.ctx, b.prefix+"*")

	b.wg.Add(1)
	go b.processMessages()

	return nil
}

// Stop stops the Redis bus.
func (b *RedisBus) Stop() error {
	b.log.Info("Stopping Redis message bus")

	b.cancel()

	if b.pubsub != nil {
		b.pubsub.Close()
	}

	b.wg.Wait()
	b.client.Close()

	b.log.Info("Redis message bus stopped")
	return nil
}

// RegisterInbound registers a handler for inbound messages from a channel.
func (b *RedisBus) RegisterInbound(channelID string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inbound[channelID] = append(b.inbound[channelID], handler)
	b.log.Info("Registered inbound handler", zap.String("channel", channelID))
}

// RegisterOutbound registers a handler for outbound messages to a channel.
func (b *RedisBus) RegisterOutbound(channelID string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.outbound[channelID] = append(b.outbound[channelID], handler)
	b.log.Info("Registered outbound handler", zap.String("channel", channelID))
}

// UnregisterChannel removes all handlers bound to a channel ID.
func (b *RedisBus) UnregisterChannel(channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.inbound, channelID)
	delete(b.outbound, channelID)
	b.log.Info("Unregistered handlers", zap.String("channel", channelID))
}

// SendInbound publishes an inbound message.
func (b *RedisBus) SendInbound(msg *Message) error {
	if err := b.publish("inbound:", msg); err != nil {
		return err
	}
	b.incrementMessagesIn()
	return nil
}

// SendOutbound publishes an outbound message.
func (b *RedisBus) SendOutbound(msg *Message) error {
	if err := b.publish("outbound:", msg); err != nil {
		return err
	}
	b.incrementMessagesOut()
	return nil
}

func (b *RedisBus) publish(direction string, msg *Message) error {
	channel := b.prefix + direction + msg.ChannelID

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	if err := b.client.Publish(b.ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to Redis: %w", err)
	}

	return nil
}

// GetMetrics returns current bus metrics.
func (b *RedisBus) GetMetrics() map[string]uint64 {
	b.metricsLock.RLock()
	defer b.metricsLock.RUnlock()

	return map[string]uint64{
		"messages_in":  b.messagesIn,
		"messages_out": b.messagesOut,
		"errors":       b.errors,
	}
}

// processMessages processes messages from Redis pub/sub.
func (b *RedisBus) processMessages() {
	defer b.wg.Done()

	ch := b.pubsub.Channel()

	for {
		select {
		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			b.handleRedisMessage(redisMsg)

		case <-b.ctx.Done():
			return
		}
	}
}

// handleRedisMessage handles a Redis pub/sub message.
func (b *RedisBus) handleRedisMessage(redisMsg *redis.Message) {
	var msg Message
	if err := json.Unmarshal([]byte(redisMsg.Payload), &msg); err != nil {
		b.log.Error("Failed to unmarshal message", zap.Error(err))
		b.incrementErrors()
		return
	}

	// Determine direction from channel name
	var handlers []Handler
	var direction string
	switch {
	case strings.HasPrefix(redisMsg.Channel, b.prefix+"inbound:"):
		direction = "inbound"
		b.mu.RLock()
		handlers = append(handlers, b.inbound[msg.ChannelID]...)
		handlers = append(handlers, b.inbound[InboundWildcard]...)
		b.mu.RUnlock()
	case strings.HasPrefix(redisMsg.Channel, b.prefix+"outbound:"):
		direction = "outbound"
		b.mu.RLock()
		handlers = append(handlers, b.outbound[msg.ChannelID]...)
		b.mu.RUnlock()
	default:
		b.log.Warn("Unknown channel format", zap.String("channel", redisMsg.Channel))
		return
	}

	if len(handlers) == 0 {
		b.log.Debug("No handlers registered for channel",
			zap.String("channel", msg.ChannelID),
			zap.String("direction", direction))
		return
	}

	b.log.Debug("Processing message",
		zap.String("channel", msg.ChannelID),
		zap.String("direction", direction),
		zap.String("message_id", msg.ID))

	for _, handler := range handlers {
		if err := handler(b.ctx, &msg); err != nil {
			b.incrementErrors()
			b.log.Error("Handler error",
				zap.String("channel", msg.ChannelID),
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}
}

func (b *RedisBus) incrementMessagesIn() {
	b.metricsLock.Lock()
	b.messagesIn++
	b.metricsLock.Unlock()
}

func (b *RedisBus) incrementMessagesOut() {
	b.metricsLock.Lock()
	b.messagesOut++
	b.metricsLock.Unlock()
}

func (b *RedisBus) incrementErrors() {
	b.metricsLock.Lock()
	b.errors++
	b.metricsLock.Unlock()
}
