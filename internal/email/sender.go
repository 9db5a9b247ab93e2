// Package email renders transactional templates and delivers them over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/config"
)

// ErrDisabled is returned by NopSender. Callers record the message as skipped rather than failed.
var ErrDisabled = errors.New("email delivery is not configured")

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender returns an SMTP sender, or a NopSender when no SMTP host is configured.
func NewSender(cfg config.EmailConfig, logger *zap.Logger) (Sender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled() {
		logger.Warn("SMTP_HOST not set; emails will be logged and skipped")
		return NopSender{logger: logger}, nil
	}
	return NewSMTPSender(cfg)
}

// SMTPSender sends through an SMTP relay.
type SMTPSender struct {
	fromName    string
	fromAddress string

	mu     sync.Mutex
	client *mail.Client
}

// NewSMTPSender creates a sender for the configured relay.
func NewSMTPSender(cfg config.EmailConfig) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUser),
			mail.WithPassword(cfg.SMTPPass),
		)
	}
	c, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{fromName: cfg.FromName, fromAddress: cfg.FromAddress, client: c}, nil
}

// Send delivers msg. The underlying client holds one connection at a time, so sends are serialised.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.FromFormat(s.fromName, s.fromAddress); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// NopSender logs messages instead of sending them.
type NopSender struct {
	logger *zap.Logger
}

// NewNopSender creates a NopSender.
func NewNopSender(logger *zap.Logger) NopSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NopSender{logger: logger}
}

func (n NopSender) Send(_ context.Context, msg Message) error {
	n.logger.Warn("email not sent; SMTP not configured", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return ErrDisabled
}
