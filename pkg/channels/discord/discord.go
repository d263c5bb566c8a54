// Package discord provides the Discord channel adapter.
package discord

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"tendbot/pkg/bus"
	"tendbot/pkg/channels/core"
	"tendbot/pkg/commands"
	"tendbot/pkg/config"
	"tendbot/pkg/delivery"
	"tendbot/pkg/format"
	"tendbot/pkg/logger"
)

// suggestPrefix namespaces the CustomID of suggestion buttons so the
// component handler only acts on its own messages.
const suggestPrefix = "suggest:"

// Channel implements the Discord channel adapter.
type Channel struct {
	*core.StatusTracker

	log     *logger.Logger
	config  config.DiscordConfig
	bus     bus.Bus
	session *discordgo.Session
	pacer   *core.Pacer

	boundMu sync.Mutex
	bound   map[string]string // command name -> application command ID
}

// New creates a Discord channel adapter.
func New(log *logger.Logger, cfg config.DiscordConfig, b bus.Bus) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	return &Channel{
		StatusTracker: core.NewStatusTracker(),
		log:           log,
		config:        cfg,
		bus:           b,
		session:       session,
		pacer:         core.NewPacer(time.Duration(cfg.MinSendIntervalMS) * time.Millisecond),
		bound:         make(map[string]string),
	}, nil
}

// ID returns the channel identifier.
func (c *Channel) ID() string {
	return "discord"
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "Discord"
}

// IsEnabled returns whether the channel is enabled.
func (c *Channel) IsEnabled() bool {
	return c.config.Enabled
}

// Start opens the gateway connection and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	c.log.Info("Starting Discord channel")
	c.SetState(core.StateConnecting, "")

	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleInteraction)

	c.session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	if err := c.session.Open(); err != nil {
		c.SetState(core.StateDisconnected, err.Error())
		return fmt.Errorf("opening discord connection: %w", err)
	}

	c.SetState(core.StateConnected, "")

	botUser, err := c.session.User("@me")
	if err != nil {
		c.log.Warn("Failed to get bot user", zap.Error(err))
	} else {
		c.log.Info("Discord bot connected",
			zap.String("username", botUser.Username),
			zap.String("user_id", botUser.ID))
	}

	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(ctx context.Context) error {
	c.log.Info("Stopping Discord channel")
	c.SetState(core.StateDisconnected, "")

	if c.session != nil {
		if err := c.session.Close(); err != nil {
			return fmt.Errorf("closing discord session: %w", err)
		}
	}

	return nil
}

// handleMessage normalizes incoming Discord messages onto the bus.
func (c *Channel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore bot's own messages
	if m.Author.ID == s.State.User.ID {
		return
	}

	if !c.isAllowed(m.Author.ID) {
		c.log.Warn("Unauthorized user",
			zap.String("user_id", m.Author.ID),
			zap.String("username", m.Author.Username))
		return
	}

	content := strings.TrimSpace(m.Content)
	if content == "" && len(m.Attachments) == 0 {
		return
	}

	msgType := bus.MessageTypeText
	if strings.HasPrefix(content, "/") || strings.HasPrefix(content, "!") {
		msgType = bus.MessageTypeCommand
	}

	msg := &bus.Message{
		ID:          fmt.Sprintf("discord:%s", m.ID),
		ChannelID:   "discord",
		ChatID:      m.ChannelID,
		ThreadID:    m.GuildID,
		UserID:      m.Author.ID,
		Username:    m.Author.Username,
		Type:        msgType,
		Content:     content,
		Attachments: normalizeAttachments(m.Attachments),
		Timestamp:   time.Now(),
	}
	if m.ReferencedMessage != nil {
		msg.ReplyTo = m.ReferencedMessage.ID
	}

	if err := c.bus.SendInbound(msg); err != nil {
		c.log.Error("Failed to send inbound message", zap.Error(err))
	}
}

// handleInteraction turns slash command invocations and suggestion
// button clicks into normalized inbound messages.
func (c *Channel) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i == nil {
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		c.handleSlashCommand(s, i)
	case discordgo.InteractionMessageComponent:
		c.handleComponent(s, i)
	}
}

func (c *Channel) handleSlashCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID, username := interactionUser(i)
	if userID == "" || !c.isAllowed(userID) {
		return
	}

	data := i.ApplicationCommandData()
	content := "/" + data.Name
	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			content += " " + opt.StringValue()
		}
	}

	// Ack immediately; the reply arrives as a regular channel message.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		c.log.Warn("Failed to ack slash command", zap.Error(err))
	}

	msg := &bus.Message{
		ID:        fmt.Sprintf("discord:%s", i.ID),
		ChannelID: "discord",
		ChatID:    i.ChannelID,
		ThreadID:  i.GuildID,
		UserID:    userID,
		Username:  username,
		Type:      bus.MessageTypeCommand,
		Content:   content,
		Timestamp: time.Now(),
	}

	if err := c.bus.SendInbound(msg); err != nil {
		c.log.Error("Failed to send inbound slash command", zap.Error(err))
	}
}

// handleComponent treats a suggestion button click exactly like the
// user typing the button's label.
func (c *Channel) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	if !strings.HasPrefix(data.CustomID, suggestPrefix) {
		return
	}

	userID, username := interactionUser(i)
	if userID == "" || !c.isAllowed(userID) {
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		c.log.Warn("Failed to ack component click", zap.Error(err))
	}

	msg := &bus.Message{
		ID:        fmt.Sprintf("discord:%s", i.ID),
		ChannelID: "discord",
		ChatID:    i.ChannelID,
		ThreadID:  i.GuildID,
		UserID:    userID,
		Username:  username,
		Type:      bus.MessageTypeText,
		Content:   strings.TrimPrefix(data.CustomID, suggestPrefix),
		Timestamp: time.Now(),
	}

	if err := c.bus.SendInbound(msg); err != nil {
		c.log.Error("Failed to send inbound button click", zap.Error(err))
	}
}

// Send delivers an outbound message as an embed with suggestion
// buttons. Platform errors are returned pre-classified.
func (c *Channel) Send(ctx context.Context, msg *bus.Message) error {
	if c.session == nil {
		return delivery.Terminal(fmt.Errorf("session not initialized"))
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return delivery.Transient(err)
	}

	send := &discordgo.MessageSend{
		Content:    msg.Response.Text,
		Embeds:     buildEmbeds(msg.Response.Rich),
		Components: buildComponents(msg.Response),
	}
	if msg.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{
			MessageID: msg.ReplyTo,
			ChannelID: msg.ChatID,
		}
	}

	if _, err := c.session.ChannelMessageSendComplex(msg.ChatID, send); err != nil {
		classified := classify(err)
		if delivery.Classify(classified) == delivery.KindTransient {
			c.SetState(core.StateDegraded, err.Error())
		}
		return classified
	}

	c.SetState(core.StateConnected, "")
	c.log.Debug("Sent Discord message",
		zap.String("chat_id", msg.ChatID),
		zap.Int("length", len(msg.Response.Text)))

	return nil
}

// BindCommand registers a command as a native slash command. Implements
// the platform binder for the discord command registry.
func (c *Channel) BindCommand(ctx context.Context, def *commands.Definition) error {
	description := def.Description
	if description == "" {
		description = def.Name
	}

	cmd, err := c.session.ApplicationCommandCreate(c.session.State.User.ID, c.config.GuildID, &discordgo.ApplicationCommand{
		Name:        def.Name,
		Description: description,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "input",
				Description: "Additional input",
				Required:    false,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("binding slash command %s: %w", def.Name, err)
	}

	c.boundMu.Lock()
	c.bound[def.Name] = cmd.ID
	c.boundMu.Unlock()

	c.log.Debug("Bound slash command", zap.String("command", def.Name))
	return nil
}

// UnbindCommand removes a previously bound slash command.
func (c *Channel) UnbindCommand(ctx context.Context, name string) error {
	c.boundMu.Lock()
	id, ok := c.bound[name]
	delete(c.bound, name)
	c.boundMu.Unlock()
	if !ok {
		return nil
	}

	if err := c.session.ApplicationCommandDelete(c.session.State.User.ID, c.config.GuildID, id); err != nil {
		return fmt.Errorf("unbinding slash command %s: %w", name, err)
	}
	return nil
}

// isAllowed checks if a user is allowed to use the bot.
func (c *Channel) isAllowed(userID string) bool {
	if len(c.config.AllowFrom) == 0 {
		return true
	}

	for _, allowed := range c.config.AllowFrom {
		if allowed == userID || allowed == "*" {
			return true
		}
	}

	return false
}

// classify maps Discord API errors onto the delivery failure taxonomy.
func classify(err error) error {
	restErr, ok := err.(*discordgo.RESTError)
	if !ok {
		// Network level failures are worth retrying.
		return delivery.Transient(err)
	}

	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeCannotSendMessagesToThisUser:
			return delivery.PermissionDenied(err)
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownUser:
			return delivery.UnknownRecipient(err)
		}
	}

	if restErr.Response != nil {
		switch {
		case restErr.Response.StatusCode == http.StatusForbidden:
			return delivery.PermissionDenied(err)
		case restErr.Response.StatusCode == http.StatusNotFound:
			return delivery.UnknownRecipient(err)
		case restErr.Response.StatusCode == http.StatusTooManyRequests,
			restErr.Response.StatusCode >= 500:
			return delivery.Transient(err)
		}
	}

	return delivery.Terminal(err)
}

func buildEmbeds(rich *bus.RichData) []*discordgo.MessageEmbed {
	if rich == nil {
		return nil
	}

	embed := &discordgo.MessageEmbed{
		Title:       rich.Title,
		Description: rich.Description,
	}
	for _, f := range rich.Fields {
		if f.Name == "" && f.Value == "" {
			continue
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if rich.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: rich.Footer}
	}
	if rich.Timestamp != nil {
		embed.Timestamp = rich.Timestamp.Format(time.RFC3339)
	}

	return []*discordgo.MessageEmbed{embed}
}

func buildComponents(resp *bus.Response) []discordgo.MessageComponent {
	labels := format.Suggestions(resp)
	if len(labels) == 0 {
		return nil
	}

	row := discordgo.ActionsRow{}
	for _, label := range labels {
		row.Components = append(row.Components, discordgo.Button{
			Label:    label,
			Style:    discordgo.SecondaryButton,
			CustomID: suggestPrefix + label,
		})
	}

	return []discordgo.MessageComponent{row}
}

func normalizeAttachments(in []*discordgo.MessageAttachment) []bus.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]bus.Attachment, 0, len(in))
	for _, att := range in {
		if att == nil {
			continue
		}
		out = append(out, bus.Attachment{
			Name:        att.Filename,
			URL:         att.URL,
			ContentType: att.ContentType,
			Size:        int64(att.Size),
		})
	}
	return out
}

func interactionUser(i *discordgo.InteractionCreate) (string, string) {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID, i.Member.User.Username
	}
	if i.User != nil {
		return i.User.ID, i.User.Username
	}
	return "", ""
}
