package notification

import (
	"context"
	"io"
	"log"
	"net/url"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/safewatch/internal/errors"
)

// ShoutrrrConfig lists the shoutrrr service URLs to send through.
type ShoutrrrConfig struct {
	URLs    []string
	Timeout time.Duration
}

// ShoutrrrMailer sends via nicholas-fedor/shoutrrr. With smtp:// URLs each
// message is addressed to its recipient; other services post the text part
// to their fixed channel.
type ShoutrrrMailer struct {
	urls     []string
	sender   *router.ServiceRouter
	smtpOnly bool
}

// NewShoutrrrMailer validates the URLs and builds a sender.
func NewShoutrrrMailer(cfg ShoutrrrConfig) (*ShoutrrrMailer, error) {
	if len(cfg.URLs) == 0 {
		return nil, errors.Newf("at least one shoutrrr URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(cfg.URLs...)
	if err != nil {
		return nil, errors.New(sanitizeError(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Timeout > 0 {
		sender.Timeout = cfg.Timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	return &ShoutrrrMailer{
		urls:     slices.Clone(cfg.URLs),
		sender:   sender,
		smtpOnly: allSMTP(cfg.URLs),
	}, nil
}

func allSMTP(urls []string) bool {
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || !strings.EqualFold(u.Scheme, "smtp") {
			return false
		}
	}
	return true
}

func (m *ShoutrrrMailer) Name() string { return TransportShoutrrr }

// Send ignores ctx; the router applies its own timeout and the dispatcher
// abandons the call at the send deadline.
func (m *ShoutrrrMailer) Send(_ context.Context, msg Message) error {
	params := stypes.Params{}
	params.SetTitle(msg.Subject)
	body := msg.Text
	if m.smtpOnly {
		params["toaddresses"] = msg.ToEmail
		params["usehtml"] = "yes"
		body = msg.HTML
	}

	for _, err := range m.sender.Send(body, &params) {
		if err != nil {
			return errors.New(sanitizeError(err)).
				Component("notification").
				Category(errors.CategoryNotification).
				Context("transport", TransportShoutrrr).
				Build()
		}
	}
	return nil
}
