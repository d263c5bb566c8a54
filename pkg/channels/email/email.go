// Package email provides the email channel adapter. Outbound mail goes
// through SMTP, inbound mail is collected by polling an IMAP mailbox.
package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"tendbot/pkg/bus"
	"tendbot/pkg/channels/core"
	"tendbot/pkg/config"
	"tendbot/pkg/delivery"
	"tendbot/pkg/format"
	"tendbot/pkg/logger"
)

// Channel implements the email channel adapter.
type Channel struct {
	*core.StatusTracker

	log    *logger.Logger
	bus    bus.Bus
	config config.EmailConfig
	pacer  *core.Pacer
	dialer *gomail.Dialer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an email channel adapter.
func New(log *logger.Logger, cfg config.EmailConfig, messageBus bus.Bus) (*Channel, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("email smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Channel{
		StatusTracker: core.NewStatusTracker(),
		log:           log,
		bus:           messageBus,
		config:        cfg,
		pacer:         core.NewPacer(time.Duration(cfg.MinSendIntervalMS) * time.Millisecond),
		dialer:        gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// ID returns the channel identifier.
func (c *Channel) ID() string {
	return "email"
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return "Email"
}

// IsEnabled returns whether the channel is enabled.
func (c *Channel) IsEnabled() bool {
	return c.config.Enabled
}

// Start verifies the SMTP connection and launches the IMAP poller.
func (c *Channel) Start(ctx context.Context) error {
	c.log.Info("Starting email channel")
	c.SetState(core.StateConnecting, "")

	closer, err := c.dialer.Dial()
	if err != nil {
		c.SetState(core.StateDegraded, err.Error())
		c.log.Warn("SMTP connection check failed", zap.Error(err))
	} else {
		closer.Close()
		c.SetState(core.StateConnected, "")
		c.log.Info("SMTP connection verified",
			zap.String("host", c.config.SMTPHost))
	}

	if c.config.IMAPHost != "" {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.pollLoop(c.ctx)
		}()
	} else {
		c.log.Warn("IMAP not configured, email channel is send-only")
	}

	return nil
}

// Stop stops the poller and marks the channel disconnected.
func (c *Channel) Stop(ctx context.Context) error {
	c.log.Info("Stopping email channel")
	c.cancel()
	c.wg.Wait()
	c.SetState(core.StateDisconnected, "")

	return nil
}

// Send delivers an outbound message as a multipart email with HTML and
// plain-text alternatives. SMTP errors are returned pre-classified.
func (c *Channel) Send(ctx context.Context, msg *bus.Message) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return delivery.Transient(err)
	}

	recipient := strings.TrimSpace(msg.ChatID)
	if recipient == "" || !strings.Contains(recipient, "@") {
		return delivery.UnknownRecipient(fmt.Errorf("invalid recipient address %q", recipient))
	}

	content := format.Email(msg.Response)

	m := gomail.NewMessage()
	m.SetHeader("From", c.config.From)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", content.Subject)
	m.SetBody("text/plain", content.Text)
	m.AddAlternative("text/html", content.HTML)

	if err := c.dialer.DialAndSend(m); err != nil {
		classified := classify(err)
		if delivery.Classify(classified) == delivery.KindTransient {
			c.SetState(core.StateDegraded, err.Error())
		}
		return classified
	}

	c.SetState(core.StateConnected, "")
	c.log.Debug("Sent email",
		zap.String("to", recipient),
		zap.String("subject", content.Subject))

	return nil
}

// isAllowed checks if a sender address may talk to the bot.
func (c *Channel) isAllowed(address string) bool {
	if len(c.config.AllowFrom) == 0 {
		return true
	}

	for _, allowed := range c.config.AllowFrom {
		if allowed == "*" || strings.EqualFold(allowed, address) {
			return true
		}
		// Domain allowlist entries start with "@".
		if strings.HasPrefix(allowed, "@") && strings.HasSuffix(strings.ToLower(address), strings.ToLower(allowed)) {
			return true
		}
	}

	return false
}

// classify maps SMTP errors onto the delivery failure taxonomy.
func classify(err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch {
		case protoErr.Code == 550, protoErr.Code == 551, protoErr.Code == 553:
			// No such mailbox.
			return delivery.UnknownRecipient(err)
		case protoErr.Code == 530, protoErr.Code == 535, protoErr.Code == 554:
			return delivery.PermissionDenied(err)
		case protoErr.Code >= 400 && protoErr.Code < 500:
			return delivery.Transient(err)
		}
		return delivery.Terminal(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return delivery.Transient(err)
	}

	return delivery.Transient(err)
}
