package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/tphakala/safewatch/internal/errors"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 256

// SendGridConfig holds SendGrid API settings.
type SendGridConfig struct {
	APIKey string
}

// SendGridMailer sends through the SendGrid v3 mail API. A client is built
// per send because sendgrid.Client stores the request body on itself.
type SendGridMailer struct {
	apiKey    string
	fromName  string
	fromEmail string
}

// NewSendGridMailer creates a SendGrid transport.
func NewSendGridMailer(cfg SendGridConfig, fromName, fromEmail string) (*SendGridMailer, error) {
	if cfg.APIKey == "" || fromEmail == "" {
		return nil, errors.Newf("sendgrid transport needs an API key and a sender address").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &SendGridMailer{
		apiKey:    cfg.APIKey,
		fromName:  fromName,
		fromEmail: fromEmail,
	}, nil
}

func (m *SendGridMailer) Name() string { return TransportSendGrid }

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(m.fromName, m.fromEmail))
	message.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.ToEmail))
	message.AddPersonalizations(p)

	message.AddContent(mail.NewContent("text/plain", msg.Text))
	message.AddContent(mail.NewContent("text/html", msg.HTML))

	resp, err := sendgrid.NewSendClient(m.apiKey).SendWithContext(ctx, message)
	if err != nil {
		return errors.New(sanitizeError(err)).
			Component("notification").
			Category(errors.CategoryNetwork).
			Context("transport", TransportSendGrid).
			Build()
	}
	if resp.StatusCode >= 400 {
		body := strings.TrimSpace(resp.Body)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return errors.New(fmt.Errorf("sendgrid rejected message: status %d: %s", resp.StatusCode, body)).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("transport", TransportSendGrid).
			Context("status_code", resp.StatusCode).
			Build()
	}
	return nil
}
