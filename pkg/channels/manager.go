// Package channels provides the orchestrator that owns channel adapter
// lifecycle, health reporting, and outbound delivery.
package channels

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"tendbot/pkg/bus"
	"tendbot/pkg/channels/core"
	"tendbot/pkg/delivery"
	"tendbot/pkg/logger"
)

// Manager orchestrates all channel adapters. Outbound messages pass
// through the retry manager so each adapter only has to classify its
// platform errors.
type Manager struct {
	log      *logger.Logger
	bus      bus.Bus
	retries  *delivery.Manager
	channels map[string]core.Channel
	mu       sync.RWMutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a channel manager.
func NewManager(log *logger.Logger, messageBus bus.Bus, retries *delivery.Manager) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		log:      log,
		bus:      messageBus,
		retries:  retries,
		channels: make(map[string]core.Channel),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register registers a channel with the manager.
func (m *Manager) Register(channel core.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := channel.ID()
	if _, exists := m.channels[id]; exists {
		return fmt.Errorf("channel %s already registered", id)
	}

	m.channels[id] = channel
	m.log.Info("Registered channel",
		zap.String("id", id),
		zap.String("name", channel.Name()))

	return nil
}

// Unregister removes a channel from the manager.
func (m *Manager) Unregister(channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.channels[channelID]; !exists {
		return fmt.Errorf("channel %s not found", channelID)
	}

	delete(m.channels, channelID)
	m.log.Info("Unregistered channel", zap.String("id", channelID))

	return nil
}

// Start starts all enabled channels and binds their outbound handlers.
func (m *Manager) Start() error {
	m.log.Info("Starting channel manager")

	m.mu.RLock()
	channels := make([]core.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		if ch.IsEnabled() {
			channels = append(channels, ch)
		}
	}
	m.mu.RUnlock()

	for _, ch := range channels {
		channel := ch // Capture for goroutine

		m.bus.RegisterOutbound(channel.ID(), func(ctx context.Context, msg *bus.Message) error {
			return m.deliver(ctx, channel, msg)
		})

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()

			m.log.Info("Starting channel",
				zap.String("id", channel.ID()),
				zap.String("name", channel.Name()))

			if err := channel.Start(m.ctx); err != nil {
				m.log.Error("Channel start failed",
					zap.String("channel", channel.ID()),
					zap.Error(err))
			}
		}()
	}

	if len(channels) == 0 {
		m.log.Warn("No channels enabled")
	} else {
		m.log.Info("Started channels", zap.Int("count", len(channels)))
	}

	return nil
}

// deliver hands an outbound message to the retry manager, keyed by
// recipient so one slow recipient never blocks another.
func (m *Manager) deliver(ctx context.Context, channel core.Channel, msg *bus.Message) error {
	if msg.Response == nil {
		return fmt.Errorf("outbound message %s has no response payload", msg.ID)
	}

	key := delivery.Key{Channel: channel.ID(), Recipient: msg.ChatID}
	res := m.retries.Enqueue(ctx, key, describe(msg), func(ctx context.Context) error {
		return channel.Send(ctx, msg)
	})

	switch res.Outcome {
	case delivery.OutcomeFailed:
		m.log.Warn("Delivery failed",
			zap.String("channel", channel.ID()),
			zap.String("recipient", msg.ChatID),
			zap.String("kind", string(res.Kind)),
			zap.Error(res.Err))
		return res.Err
	case delivery.OutcomeQueued:
		m.log.Debug("Delivery queued for retry",
			zap.String("channel", channel.ID()),
			zap.String("recipient", msg.ChatID))
	}
	return nil
}

func describe(msg *bus.Message) string {
	text := msg.Response.Text
	if text == "" && msg.Response.Rich != nil {
		text = msg.Response.Rich.Title
	}
	if utf8.RuneCountInString(text) > 48 {
		text = string([]rune(text)[:48])
	}
	return fmt.Sprintf("msg %s to %s: %s", msg.ID, msg.ChatID, text)
}

// Stop stops all channels gracefully.
func (m *Manager) Stop() error {
	m.log.Info("Stopping channel manager")

	m.cancel()

	m.mu.RLock()
	channels := make([]core.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, ch := range channels {
		if err := ch.Stop(ctx); err != nil {
			m.log.Error("Error stopping channel",
				zap.String("channel", ch.ID()),
				zap.Error(err))
		}

		m.bus.UnregisterChannel(ch.ID())
	}

	m.wg.Wait()

	m.log.Info("Channel manager stopped")
	return nil
}

// GetChannel returns a channel by ID.
func (m *Manager) GetChannel(channelID string) (core.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	channel, exists := m.channels[channelID]
	if !exists {
		return nil, fmt.Errorf("channel %s not found", channelID)
	}

	return channel, nil
}

// ListChannels returns all registered channels.
func (m *Manager) ListChannels() []core.Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	channels := make([]core.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}

	return channels
}

// Statuses reports connection state per channel for the status command.
func (m *Manager) Statuses() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.channels))
	for id, ch := range m.channels {
		h := ch.Health()
		s := string(h.State)
		if h.Detail != "" {
			s += " (" + h.Detail + ")"
		}
		out[id] = s
	}
	return out
}
