package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSettings() *Settings {
	return &Settings{
		Scoring:   ScoringSettings{Countdown: 5 * time.Second, CrowdRadius: 500, CrowdWindow: 5 * time.Minute},
		Threshold: ThresholdSettings{MaxRetries: 5, CacheTTL: time.Minute},
		Alerting: AlertingSettings{
			OperatorEmail: "ops@safewatch.example", Transport: "log",
			Workers: 4, SendTimeout: time.Second, RateLimit: 10, Burst: 5,
		},
		Datastore: DatastoreSettings{Driver: "sqlite", SQLite: SQLiteSettings{Path: "sw.db"}},
		EventBus:  EventBusSettings{BufferSize: 10, Workers: 1},
	}
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"valid", func(*Settings) {}, ""},
		{"zero countdown", func(s *Settings) { s.Scoring.Countdown = 0 }, "scoring.countdown"},
		{"negative retries", func(s *Settings) { s.Threshold.MaxRetries = -1 }, "threshold.maxretries"},
		{"bad operator email", func(s *Settings) { s.Alerting.OperatorEmail = "not-an-email" }, "operatoremail"},
		{"sendgrid without key", func(s *Settings) {
			s.Alerting.Transport = "sendgrid"
			s.Alerting.FromEmail = "alerts@safewatch.example"
		}, "sendgrid.apikey"},
		{"shoutrrr without urls", func(s *Settings) { s.Alerting.Transport = "shoutrrr" }, "shoutrrr.urls"},
		{"no workers", func(s *Settings) { s.Alerting.Workers = 0 }, "alerting.workers"},
		{"rate without burst", func(s *Settings) { s.Alerting.Burst = 0 }, "alerting.burst"},
		{"rate disabled ignores burst", func(s *Settings) {
			s.Alerting.RateLimit = -1
			s.Alerting.Burst = 0
		}, ""},
		{"sqlite without path", func(s *Settings) { s.Datastore.SQLite.Path = "" }, "sqlite.path"},
		{"mysql without host", func(s *Settings) {
			s.Datastore.Driver = "mysql"
			s.Datastore.MySQL = MySQLSettings{Database: "sw", Username: "u"}
		}, "mysql.host"},
		{"memory store", func(s *Settings) { s.Datastore.Driver = "memory" }, ""},
		{"empty bus", func(s *Settings) { s.EventBus.Workers = 0 }, "eventbus.workers"},
		{"mqtt bad broker", func(s *Settings) {
			s.MQTT = MQTTSettings{Enabled: true, Broker: "broker", Topic: "t"}
		}, "mqtt.broker"},
		{"mqtt disabled ignores broker", func(s *Settings) { s.MQTT = MQTTSettings{Broker: "broker"} }, ""},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry.dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}
