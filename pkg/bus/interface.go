// Package bus provides message routing between channel adapters and the
// interaction pipeline.
package bus

import (
	"context"
	"time"
)

// MessageType represents the type of message.
type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeCommand MessageType = "command"
	MessageTypeNotice  MessageType = "notice"
)

// Attachment describes a file attached to an inbound message.
type Attachment struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Field is one structured field inside rich response data.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// RichData carries optional structured response metadata. Formatters
// render it per channel (embed for chat, HTML table for email).
type RichData struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Fields      []Field    `json:"fields,omitempty"`
	Footer      string     `json:"footer,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

// MaxSuggestions caps how many suggestions a formatter renders as
// interactive elements. Chat platforms limit action rows to five.
const MaxSuggestions = 5

// Response is the channel-agnostic result of handling an interaction.
// It is produced by a command or flow handler and consumed exactly once
// by a formatter.
type Response struct {
	Text        string    `json:"text"`
	Rich        *RichData `json:"rich,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// Message represents a message flowing through the bus. Inbound messages
// are normalized platform events; outbound messages carry a Response to
// deliver.
type Message struct {
	ID          string       `json:"id"`                  // Unique message ID
	ChannelID   string       `json:"channel_id"`          // Source/target channel adapter
	ChatID      string       `json:"chat_id"`             // Conversation/recipient within the channel
	ThreadID    string       `json:"thread_id,omitempty"` // Guild/thread scope, when the platform has one
	UserID      string       `json:"user_id"`             // User identifier
	Username    string       `json:"username"`            // User display name
	Type        MessageType  `json:"type"`                // Message type
	Content     string       `json:"content"`             // Raw text content
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	ReplyTo     string       `json:"reply_to,omitempty"` // Platform ID of the message being replied to
	Response    *Response    `json:"response,omitempty"` // Outbound only
}

// Handler is a function that processes messages.
type Handler func(ctx context.Context, msg *Message) error

// InboundWildcard subscribes a handler to inbound traffic from every
// channel adapter.
const InboundWildcard = "*"

// Bus is the interface for message routing. Inbound and outbound handler
// sets are kept separate so an adapter's send path never sees its own
// inbound events.
type Bus interface {
	// Start starts the message bus.
	Start() error

	// Stop stops the message bus.
	Stop() error

	// RegisterInbound registers a handler for inbound messages from the
	// given channel ID (or InboundWildcard for all channels).
	RegisterInbound(channelID string, handler Handler)

	// RegisterOutbound registers a handler for outbound messages
	// targeting the given channel ID.
	RegisterOutbound(channelID string, handler Handler)

	// UnregisterChannel removes all handlers bound to a channel ID.
	UnregisterChannel(channelID string)

	// SendInbound sends an inbound message (from adapter to pipeline).
	SendInbound(msg *Message) error

	// SendOutbound sends an outbound message (from pipeline to adapter).
	SendOutbound(msg *Message) error

	// GetMetrics returns current bus metrics.
	GetMetrics() map[string]uint64
}
