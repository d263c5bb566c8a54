package email

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"tendbot/pkg/bus"
	"tendbot/pkg/channels/core"
)

const defaultPollInterval = 60 * time.Second

// pollLoop fetches unseen mail on a fixed interval until the context is
// cancelled. Each cycle uses a fresh IMAP connection; mail servers drop
// idle connections aggressively.
func (c *Channel) pollLoop(ctx context.Context) {
	interval := defaultPollInterval
	if c.config.PollIntervalSeconds > 0 {
		interval = time.Duration(c.config.PollIntervalSeconds) * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.log.Info("Email poller started",
		zap.String("host", c.config.IMAPHost),
		zap.Duration("interval", interval))

	for {
		if err := c.pollOnce(); err != nil {
			c.SetState(core.StateDegraded, err.Error())
			c.log.Warn("Email poll failed", zap.Error(err))
		} else {
			c.SetState(core.StateConnected, "")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			c.log.Info("Email poller stopped")
			return
		}
	}
}

// pollOnce fetches and normalizes every unseen message in the mailbox.
func (c *Channel) pollOnce() error {
	addr := fmt.Sprintf("%s:%d", c.config.IMAPHost, c.config.IMAPPort)
	cl, err := client.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("dialing imap: %w", err)
	}
	defer cl.Logout()

	if err := cl.Login(c.config.IMAPUsername, c.config.IMAPPassword); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}

	mailbox := c.config.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := cl.Select(mailbox, false); err != nil {
		return fmt.Errorf("selecting mailbox %s: %w", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := cl.Search(criteria)
	if err != nil {
		return fmt.Errorf("searching unseen mail: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	// Fetching the body section without peek marks messages seen.
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, len(ids))
	fetchErr := make(chan error, 1)
	go func() {
		fetchErr <- cl.Fetch(seqset, items, messages)
	}()

	for msg := range messages {
		c.handleMail(msg, section)
	}

	return <-fetchErr
}

// handleMail normalizes one fetched mail onto the bus.
func (c *Channel) handleMail(msg *imap.Message, section *imap.BodySectionName) {
	if msg == nil || msg.Envelope == nil || len(msg.Envelope.From) == 0 {
		return
	}

	from := msg.Envelope.From[0]
	sender := from.Address()
	if !c.isAllowed(sender) {
		c.log.Warn("Mail from unauthorized sender", zap.String("from", sender))
		return
	}

	body := msg.GetBody(section)
	if body == nil {
		return
	}

	text, err := extractText(body)
	if err != nil {
		c.log.Warn("Failed to parse mail body",
			zap.String("from", sender),
			zap.Error(err))
	}

	content := stripReply(text)
	if content == "" {
		content = strings.TrimSpace(msg.Envelope.Subject)
	}
	if content == "" {
		return
	}

	username := from.PersonalName
	if username == "" {
		username = sender
	}

	busMsg := &bus.Message{
		ID:        fmt.Sprintf("email:%s", msg.Envelope.MessageId),
		ChannelID: c.ID(),
		ChatID:    sender,
		UserID:    sender,
		Username:  username,
		Type:      bus.MessageTypeText,
		Content:   content,
		Timestamp: msg.Envelope.Date,
	}
	if strings.HasPrefix(content, "/") || strings.HasPrefix(content, "!") {
		busMsg.Type = bus.MessageTypeCommand
	}
	if len(msg.Envelope.InReplyTo) > 0 {
		busMsg.ReplyTo = msg.Envelope.InReplyTo
	}

	if err := c.bus.SendInbound(busMsg); err != nil {
		c.log.Error("Failed to send inbound mail", zap.Error(err))
	}
}

// extractText returns the first text part of a MIME message.
func extractText(body io.Reader) (string, error) {
	mr, err := mail.CreateReader(body)
	if err != nil {
		return "", err
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return "", err
		}

		if _, ok := part.Header.(*mail.InlineHeader); ok {
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return "", err
			}
			return string(data), nil
		}
	}
}

// stripReply drops quoted reply lines and everything after a signature
// marker, keeping only what the sender actually wrote.
func stripReply(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if strings.TrimSpace(trimmed) == "--" {
			break
		}
		if strings.HasPrefix(strings.TrimSpace(trimmed), ">") {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(trimmed), "On ") && strings.HasSuffix(strings.TrimSpace(trimmed), "wrote:") {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
