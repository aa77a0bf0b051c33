package conf

import (
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SAFEWATCH_API_LISTEN.
const EnvPrefix = "SAFEWATCH"

type envBinding struct {
	ConfigKey string
	Validate  func(string) error
}

// envVar returns the variable name for a config key.
func envVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// getEnvBindings lists keys whose environment values are checked early so
// a typo is reported with the variable name rather than as a decode error.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.debug", validateEnvBool},
		{"alerting.operatoremail", validateEnvEmail},
		{"alerting.fromemail", validateEnvEmail},
		{"alerting.workers", validateEnvPositiveInt},
		{"alerting.burst", validateEnvPositiveInt},
		{"threshold.maxretries", validateEnvPositiveInt},
		{"eventbus.workers", validateEnvPositiveInt},
		{"mqtt.enabled", validateEnvBool},
		{"mqtt.broker", validateEnvURL},
		{"sentry.enabled", validateEnvBool},
	}
}

// bindEnvVars enables SAFEWATCH_ overrides for every key and validates the
// explicitly listed ones.
func bindEnvVars() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var warnings []string
	for _, b := range getEnvBindings() {
		name := envVar(b.ConfigKey)
		value := os.Getenv(name)
		if value == "" || b.Validate == nil {
			continue
		}
		if err := b.Validate(value); err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", name, value, err))
		}
	}
	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvEmail(value string) error {
	if _, err := mail.ParseAddress(value); err != nil {
		return fmt.Errorf("must be an email address")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be a URL such as tcp://host:1883")
	}
	return nil
}
