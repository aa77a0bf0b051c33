// Package notification renders emergency alerts and fans them out to
// recipients through a mail transport, tracking every delivery on its own.
package notification

import (
	"context"
	"strings"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/logger"
)

// Transports accepted by NewMailer.
const (
	TransportSendGrid = "sendgrid"
	TransportShoutrrr = "shoutrrr"
	TransportLog      = "log"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}

// Message is one rendered email.
type Message struct {
	ToName  string
	ToEmail string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers a single message. Any returned error is a failed delivery
// for that recipient only.
type Mailer interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// MailerConfig selects and configures a transport.
type MailerConfig struct {
	Transport string
	FromName  string
	FromEmail string
	SendGrid  SendGridConfig
	Shoutrrr  ShoutrrrConfig
}

// NewMailer builds the transport named by cfg.Transport.
func NewMailer(cfg MailerConfig) (Mailer, error) {
	switch strings.ToLower(cfg.Transport) {
	case TransportSendGrid:
		return NewSendGridMailer(cfg.SendGrid, cfg.FromName, cfg.FromEmail)
	case TransportShoutrrr:
		return NewShoutrrrMailer(cfg.Shoutrrr)
	case TransportLog, "":
		return NewLogMailer(), nil
	default:
		return nil, errors.Newf("unsupported mail transport %q", cfg.Transport).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	log logger.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer() *LogMailer {
	return &LogMailer{log: GetLogger().Module("logmailer")}
}

func (m *LogMailer) Name() string { return TransportLog }

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.log.Info("alert email",
		logger.String("to", msg.ToEmail),
		logger.String("subject", msg.Subject),
		logger.Int("html_bytes", len(msg.HTML)))
	m.log.Debug("alert email body", logger.String("text", msg.Text))
	return nil
}

// sanitizeError strips credentials that transports echo back in errors.
func sanitizeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.NewStd(logger.RedactSensitiveData(err.Error()))
}
