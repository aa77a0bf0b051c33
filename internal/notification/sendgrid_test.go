package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/safewatch/internal/errors"
)

const sendGridURL = "https://api.sendgrid.com/v3/mail/send"

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func newSendGrid(t *testing.T) *SendGridMailer {
	t.Helper()
	m, err := NewSendGridMailer(SendGridConfig{APIKey: "SG.testkeytestkey.testsecrettestsecret"}, "SafeWatch", "alerts@safewatch.example")
	require.NoError(t, err)
	return m
}

func TestSendGridSend(t *testing.T) {
	setupHTTPMock(t)

	var payload map[string]any
	httpmock.RegisterResponder(http.MethodPost, sendGridURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer SG.testkeytestkey.testsecrettestsecret", req.Header.Get("Authorization"))
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
	})

	err := newSendGrid(t).Send(context.Background(), Message{
		ToName: "Bob", ToEmail: "bob@example.com",
		Subject: "Emergency alert", HTML: "<p>help</p>", Text: "help",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())

	require.NotNil(t, payload)
	assert.Equal(t, "Emergency alert", payload["subject"])
	from := payload["from"].(map[string]any)
	assert.Equal(t, "alerts@safewatch.example", from["email"])
	pers := payload["personalizations"].([]any)
	require.Len(t, pers, 1)
	to := pers[0].(map[string]any)["to"].([]any)
	assert.Equal(t, "bob@example.com", to[0].(map[string]any)["email"])
	assert.Len(t, payload["content"], 2)
}

func TestSendGridRejected(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"bad_request", http.StatusBadRequest},
		{"unauthorized", http.StatusUnauthorized},
		{"rate_limited", http.StatusTooManyRequests},
		{"server_error", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupHTTPMock(t)
			httpmock.RegisterResponder(http.MethodPost, sendGridURL,
				httpmock.NewStringResponder(tt.status, `{"errors":[{"message":"nope"}]}`))

			err := newSendGrid(t).Send(context.Background(), Message{ToEmail: "bob@example.com", Subject: "s", HTML: "h", Text: "t"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "sendgrid rejected message")
			assert.True(t, errors.IsCategory(err, errors.CategoryNotification))
		})
	}
}

func TestSendGridTransportError(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodPost, sendGridURL,
		httpmock.NewErrorResponder(io.ErrUnexpectedEOF))

	err := newSendGrid(t).Send(context.Background(), Message{ToEmail: "bob@example.com", Subject: "s", HTML: "h", Text: "t"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
	assert.NotContains(t, err.Error(), "testsecrettestsecret")
}

func TestSendGridThroughDispatcher(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodPost, sendGridURL, func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		if json.Valid(body) && containsEmail(body, "bob@example.com") {
			return httpmock.NewStringResponse(http.StatusBadRequest, `{"errors":[{"message":"bounced"}]}`), nil
		}
		return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
	})

	d := newTestDispatcher(t, newSendGrid(t), Config{}, nil)
	res := d.Dispatch(context.Background(), testRecipients(), testRecord(), testLocation())
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func containsEmail(body []byte, email string) bool {
	var payload struct {
		Personalizations []struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	for _, p := range payload.Personalizations {
		for _, to := range p.To {
			if to.Email == email {
				return true
			}
		}
	}
	return false
}
