// Package telegram provides the Telegram channel adapter.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"tendbot/pkg/bus"
	"tendbot/pkg/channels/core"
	"tendbot/pkg/commands"
	"tendbot/pkg/config"
	"tendbot/pkg/delivery"
	"tendbot/pkg/format"
	"tendbot/pkg/logger"
)

const suggestPrefix = "suggest:"

// Channel implements the Telegram channel adapter.
type Channel struct {
	*core.StatusTracker

	log    *logger.Logger
	bus    bus.Bus
	config config.TelegramConfig
	pacer  *core.Pacer

	bot      *tgbotapi.BotAPI
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	boundMu sync.Mutex
	bound   map[string]commands.Definition
}

// New creates a Telegram channel adapter.
func New(log *logger.Logger, cfg config.TelegramConfig, messageBus bus.Bus) (*Channel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Channel{
		StatusTracker: core.NewStatusTracker(),
		log:           log,
		bus:           messageBus,
		config:        cfg,
		pacer:         core.NewPacer(time.Duration(cfg.MinSendIntervalMS) * time.Millisecond),
		ctx:           ctx,
		cancel:        cancel,
		bound:         make(map[string]commands.Definition),
	}, nil
}

// ID returns the channel identifier.
func (c *Channel) ID() string {
	return "telegram"
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "Telegram"
}

// IsEnabled returns whether the channel is enabled.
func (c *Channel) IsEnabled() bool {
	return c.config.Enabled
}

// Start connects the bot and long-polls for updates until the context
// is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	c.log.Info("Starting Telegram channel")
	c.SetState(core.StateConnecting, "")

	// Keep HTTP timeout longer than long-poll timeout to avoid periodic
	// forced reconnects.
	httpClient := &http.Client{Timeout: 75 * time.Second}

	bot, err := tgbotapi.NewBotAPIWithClient(c.config.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		c.SetState(core.StateDisconnected, err.Error())
		return fmt.Errorf("creating telegram bot: %w", err)
	}

	c.bot = bot
	c.stopOnce = sync.Once{}
	c.bot.Debug = false
	c.SetState(core.StateConnected, "")

	c.log.Info("Telegram bot connected",
		zap.String("username", bot.Self.UserName))
	c.syncBoundCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.pollTimeout()

	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			c.handleUpdate(update)

		case <-ctx.Done():
			c.log.Info("Telegram channel stopping")
			c.stopReceivingUpdates()
			return nil

		case <-c.ctx.Done():
			c.log.Info("Telegram channel stopping")
			c.stopReceivingUpdates()
			return nil
		}
	}
}

// Stop stops the Telegram channel.
func (c *Channel) Stop(ctx context.Context) error {
	c.log.Info("Stopping Telegram channel")
	c.cancel()
	c.stopReceivingUpdates()
	c.SetState(core.StateDisconnected, "")

	return nil
}

func (c *Channel) stopReceivingUpdates() {
	if c.bot == nil {
		return
	}
	c.stopOnce.Do(func() {
		c.bot.StopReceivingUpdates()
	})
}

func (c *Channel) pollTimeout() int {
	if c.config.TimeoutSeconds > 0 {
		return c.config.TimeoutSeconds
	}
	return 50
}

// handleUpdate processes a Telegram update.
func (c *Channel) handleUpdate(update tgbotapi.Update) {
	if update.Message != nil {
		msg := *update.Message
		go c.handleMessage(&msg)
		return
	}
	if update.CallbackQuery != nil {
		cb := *update.CallbackQuery
		go c.handleCallback(&cb)
	}
}

// handleMessage normalizes an incoming message onto the bus.
func (c *Channel) handleMessage(message *tgbotapi.Message) {
	if message.From == nil {
		return
	}
	if !c.isAllowed(message.From.ID, message.From.UserName) {
		c.log.Warn("Unauthorized access attempt",
			zap.Int64("user_id", message.From.ID),
			zap.String("username", message.From.UserName))
		return
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		return
	}

	msgType := bus.MessageTypeText
	if message.IsCommand() {
		msgType = bus.MessageTypeCommand
	}

	busMsg := &bus.Message{
		ID:        fmt.Sprintf("telegram:%d", message.MessageID),
		ChannelID: c.ID(),
		ChatID:    strconv.FormatInt(message.Chat.ID, 10),
		UserID:    strconv.FormatInt(message.From.ID, 10),
		Username:  message.From.UserName,
		Type:      msgType,
		Content:   content,
		Timestamp: time.Unix(int64(message.Date), 0),
	}
	if message.ReplyToMessage != nil {
		busMsg.ReplyTo = strconv.Itoa(message.ReplyToMessage.MessageID)
	}

	if err := c.bus.SendInbound(busMsg); err != nil {
		c.log.Error("Failed to send inbound message", zap.Error(err))
	}
}

// handleCallback treats a suggestion button press like typed text.
func (c *Channel) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || !strings.HasPrefix(cb.Data, suggestPrefix) {
		return
	}
	if !c.isAllowed(cb.From.ID, cb.From.UserName) {
		return
	}

	// Ack so the client stops the loading spinner.
	if _, err := c.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		c.log.Warn("Failed to ack callback query", zap.Error(err))
	}

	chatID := ""
	if cb.Message != nil {
		chatID = strconv.FormatInt(cb.Message.Chat.ID, 10)
	}

	busMsg := &bus.Message{
		ID:        fmt.Sprintf("telegram:cb:%s", cb.ID),
		ChannelID: c.ID(),
		ChatID:    chatID,
		UserID:    strconv.FormatInt(cb.From.ID, 10),
		Username:  cb.From.UserName,
		Type:      bus.MessageTypeText,
		Content:   strings.TrimPrefix(cb.Data, suggestPrefix),
		Timestamp: time.Now(),
	}

	if err := c.bus.SendInbound(busMsg); err != nil {
		c.log.Error("Failed to send inbound callback", zap.Error(err))
	}
}

// Send delivers an outbound message as Markdown with an inline keyboard
// for suggestions. Platform errors are returned pre-classified.
func (c *Channel) Send(ctx context.Context, msg *bus.Message) error {
	if c.bot == nil {
		return delivery.Terminal(fmt.Errorf("telegram bot not initialized"))
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return delivery.Transient(err)
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return delivery.UnknownRecipient(fmt.Errorf("invalid chat ID %q: %w", msg.ChatID, err))
	}

	reply := tgbotapi.NewMessage(chatID, format.Markdown(msg.Response))
	reply.ParseMode = tgbotapi.ModeMarkdown
	if msg.ReplyTo != "" {
		if msgID, err := strconv.Atoi(msg.ReplyTo); err == nil {
			reply.ReplyToMessageID = msgID
		}
	}
	if keyboard := buildKeyboard(msg.Response); keyboard != nil {
		reply.ReplyMarkup = keyboard
	}

	_, err = c.bot.Send(reply)
	if err != nil && isParseError(err) {
		// User-derived text can contain stray markup characters the
		// Markdown parser rejects. Resend as plain text rather than
		// losing the message.
		c.log.Warn("Markdown rejected, resending as plain text",
			zap.String("chat_id", msg.ChatID),
			zap.Error(err))
		reply.Text = format.PlainText(msg.Response)
		reply.ParseMode = ""
		_, err = c.bot.Send(reply)
	}
	if err != nil {
		classified := classify(err)
		if delivery.Classify(classified) == delivery.KindTransient {
			c.SetState(core.StateDegraded, err.Error())
		}
		return classified
	}

	c.SetState(core.StateConnected, "")
	return nil
}

// BindCommand records a command and re-syncs the bot command list.
// Telegram takes the full list in one call, so the binder accumulates.
func (c *Channel) BindCommand(ctx context.Context, def *commands.Definition) error {
	c.boundMu.Lock()
	c.bound[def.Name] = *def
	c.boundMu.Unlock()

	c.syncBoundCommands()
	return nil
}

// UnbindCommand removes a command and re-syncs the bot command list.
func (c *Channel) UnbindCommand(ctx context.Context, name string) error {
	c.boundMu.Lock()
	delete(c.bound, name)
	c.boundMu.Unlock()

	c.syncBoundCommands()
	return nil
}

func (c *Channel) syncBoundCommands() {
	if c.bot == nil {
		return
	}

	c.boundMu.Lock()
	defs := make([]commands.Definition, 0, len(c.bound))
	for _, def := range c.bound {
		defs = append(defs, def)
	}
	c.boundMu.Unlock()

	telegramCmds := make([]tgbotapi.BotCommand, 0, len(defs))
	for _, def := range defs {
		name := sanitizeCommandName(def.Name)
		if name == "" {
			continue
		}

		desc := strings.TrimSpace(def.Description)
		if desc == "" {
			desc = strings.TrimSpace(def.Usage)
		}
		if desc == "" {
			desc = "Command"
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}

		telegramCmds = append(telegramCmds, tgbotapi.BotCommand{
			Command:     name,
			Description: desc,
		})
	}

	if len(telegramCmds) == 0 {
		return
	}

	// Telegram supports at most 100 commands.
	sort.Slice(telegramCmds, func(i, j int) bool {
		return telegramCmds[i].Command < telegramCmds[j].Command
	})
	if len(telegramCmds) > 100 {
		telegramCmds = telegramCmds[:100]
	}

	if _, err := c.bot.Request(tgbotapi.NewSetMyCommands(telegramCmds...)); err != nil {
		c.log.Warn("Failed to sync Telegram commands", zap.Error(err))
		return
	}

	c.log.Info("Synced Telegram commands", zap.Int("count", len(telegramCmds)))
}

func sanitizeCommandName(name string) string {
	normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if normalized == "" {
		return ""
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range normalized {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
			lastUnderscore = false
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '-' || r == '_':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		default:
			// Ignore unsupported characters.
		}

		if b.Len() >= 32 {
			break
		}
	}

	return strings.Trim(b.String(), "_")
}

// isAllowed checks if a user is allowed to use the bot.
func (c *Channel) isAllowed(userID int64, username string) bool {
	if len(c.config.AllowFrom) == 0 {
		return true
	}

	id := strconv.FormatInt(userID, 10)
	for _, allowed := range c.config.AllowFrom {
		if allowed == "*" || allowed == id {
			return true
		}
		if username != "" && strings.EqualFold(allowed, username) {
			return true
		}
	}

	return false
}

// isParseError reports whether the API rejected the message markup.
func isParseError(err error) bool {
	apiErr, ok := err.(*tgbotapi.Error)
	if !ok {
		return false
	}
	return apiErr.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "can't parse entities")
}

// classify maps Telegram API errors onto the delivery failure taxonomy.
func classify(err error) error {
	apiErr, ok := err.(*tgbotapi.Error)
	if !ok {
		// Network level failures are worth retrying.
		return delivery.Transient(err)
	}

	switch {
	case apiErr.Code == http.StatusForbidden:
		// Bot blocked by the user or kicked from the chat.
		return delivery.PermissionDenied(err)
	case apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "chat not found"):
		return delivery.UnknownRecipient(err)
	case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500:
		return delivery.Transient(err)
	}

	return delivery.Terminal(err)
}

func buildKeyboard(resp *bus.Response) *tgbotapi.InlineKeyboardMarkup {
	labels := format.Suggestions(resp)
	if len(labels) == 0 {
		return nil
	}

	row := make([]tgbotapi.InlineKeyboardButton, 0, len(labels))
	for _, label := range labels {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, suggestPrefix+label))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(row)
	return &keyboard
}
