package conf

import (
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings checks every section and reports all problems at once.
func ValidateSettings(s *Settings) error {
	ve := ValidationError{}
	for _, check := range []func(*Settings) []string{
		validateScoring,
		validateThreshold,
		validateAlerting,
		validateDatastore,
		validateEventBus,
		validateMQTT,
		validateSentry,
	} {
		ve.Errors = append(ve.Errors, check(s)...)
	}
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateScoring(s *Settings) []string {
	var errs []string
	if s.Scoring.Countdown <= 0 {
		errs = append(errs, "scoring.countdown must be positive")
	}
	if s.Scoring.CrowdRadius <= 0 {
		errs = append(errs, "scoring.crowdradius must be positive")
	}
	if s.Scoring.CrowdWindow <= 0 {
		errs = append(errs, "scoring.crowdwindow must be positive")
	}
	return errs
}

func validateThreshold(s *Settings) []string {
	var errs []string
	if s.Threshold.MaxRetries < 0 {
		errs = append(errs, "threshold.maxretries cannot be negative")
	}
	if s.Threshold.CacheTTL < 0 {
		errs = append(errs, "threshold.cachettl cannot be negative")
	}
	return errs
}

var transports = []string{"sendgrid", "shoutrrr", "log"}

func validateAlerting(s *Settings) []string {
	a := &s.Alerting
	var errs []string
	if a.OperatorEmail == "" {
		errs = append(errs, "alerting.operatoremail is required")
	} else if _, err := mail.ParseAddress(a.OperatorEmail); err != nil {
		errs = append(errs, fmt.Sprintf("alerting.operatoremail %q is not a valid address", a.OperatorEmail))
	}
	if !slices.Contains(transports, strings.ToLower(a.Transport)) {
		errs = append(errs, fmt.Sprintf("alerting.transport must be one of %v", transports))
	}
	switch strings.ToLower(a.Transport) {
	case "sendgrid":
		if a.SendGrid.APIKey == "" {
			errs = append(errs, "alerting.sendgrid.apikey is required for the sendgrid transport")
		}
		if a.FromEmail == "" {
			errs = append(errs, "alerting.fromemail is required for the sendgrid transport")
		}
	case "shoutrrr":
		if len(a.Shoutrrr.URLs) == 0 {
			errs = append(errs, "alerting.shoutrrr.urls needs at least one URL")
		}
	}
	if a.Workers < 1 {
		errs = append(errs, "alerting.workers must be at least 1")
	}
	if a.SendTimeout <= 0 {
		errs = append(errs, "alerting.sendtimeout must be positive")
	}
	if a.RateLimit > 0 && a.Burst < 1 {
		errs = append(errs, "alerting.burst must be at least 1 when rate limiting")
	}
	return errs
}

func validateDatastore(s *Settings) []string {
	d := &s.Datastore
	switch d.Driver {
	case "memory":
		return nil
	case "sqlite":
		if d.SQLite.Path == "" {
			return []string{"datastore.sqlite.path is required"}
		}
		return nil
	case "mysql":
		var errs []string
		if d.MySQL.Host == "" {
			errs = append(errs, "datastore.mysql.host is required")
		}
		if d.MySQL.Database == "" {
			errs = append(errs, "datastore.mysql.database is required")
		}
		if d.MySQL.Username == "" {
			errs = append(errs, "datastore.mysql.username is required")
		}
		return errs
	default:
		return []string{fmt.Sprintf("datastore.driver %q must be sqlite, mysql or memory", d.Driver)}
	}
}

func validateEventBus(s *Settings) []string {
	var errs []string
	if s.EventBus.BufferSize < 1 {
		errs = append(errs, "eventbus.buffersize must be at least 1")
	}
	if s.EventBus.Workers < 1 {
		errs = append(errs, "eventbus.workers must be at least 1")
	}
	return errs
}

func validateMQTT(s *Settings) []string {
	m := &s.MQTT
	if !m.Enabled {
		return nil
	}
	var errs []string
	if u, err := url.Parse(m.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "mqtt.broker must be a URL such as tcp://host:1883")
	}
	if m.Topic == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	if m.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1 or 2")
	}
	return errs
}

func validateSentry(s *Settings) []string {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return []string{"sentry.dsn is required when sentry is enabled"}
	}
	return nil
}
