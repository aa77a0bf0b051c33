// Package conf loads SafeWatch settings from config.yaml, environment
// variables and defaults.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/logger"
)

// Settings is the root of the configuration.
type Settings struct {
	Main      MainSettings         `yaml:"main" mapstructure:"main"`
	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Scoring   ScoringSettings      `yaml:"scoring" mapstructure:"scoring"`
	Threshold ThresholdSettings    `yaml:"threshold" mapstructure:"threshold"`
	Alerting  AlertingSettings     `yaml:"alerting" mapstructure:"alerting"`
	Datastore DatastoreSettings    `yaml:"datastore" mapstructure:"datastore"`
	API       APISettings          `yaml:"api" mapstructure:"api"`
	EventBus  EventBusSettings     `yaml:"eventbus" mapstructure:"eventbus"`
	MQTT      MQTTSettings         `yaml:"mqtt" mapstructure:"mqtt"`
	Sentry    SentrySettings       `yaml:"sentry" mapstructure:"sentry"`
	Metrics   MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
}

type MainSettings struct {
	Name  string `yaml:"name" mapstructure:"name"`
	Debug bool   `yaml:"debug" mapstructure:"debug"`
}

// ScoringSettings tunes the countdown and crowd evaluation. Scoring weights
// are fixed and not configurable.
type ScoringSettings struct {
	Countdown   time.Duration `yaml:"countdown" mapstructure:"countdown"`
	CrowdRadius float64       `yaml:"crowdradius" mapstructure:"crowdradius"` // metres
	CrowdWindow time.Duration `yaml:"crowdwindow" mapstructure:"crowdwindow"`
}

type ThresholdSettings struct {
	MaxRetries int           `yaml:"maxretries" mapstructure:"maxretries"`
	CacheTTL   time.Duration `yaml:"cachettl" mapstructure:"cachettl"`
}

type AlertingSettings struct {
	OperatorName  string           `yaml:"operatorname" mapstructure:"operatorname"`
	OperatorEmail string           `yaml:"operatoremail" mapstructure:"operatoremail"`
	FromName      string           `yaml:"fromname" mapstructure:"fromname"`
	FromEmail     string           `yaml:"fromemail" mapstructure:"fromemail"`
	Transport     string           `yaml:"transport" mapstructure:"transport"` // sendgrid, shoutrrr or log
	Workers       int              `yaml:"workers" mapstructure:"workers"`
	SendTimeout   time.Duration    `yaml:"sendtimeout" mapstructure:"sendtimeout"`
	RateLimit     float64          `yaml:"ratelimit" mapstructure:"ratelimit"` // sends per second, negative disables
	Burst         int              `yaml:"burst" mapstructure:"burst"`
	SendGrid      SendGridSettings `yaml:"sendgrid" mapstructure:"sendgrid"`
	Shoutrrr      ShoutrrrSettings `yaml:"shoutrrr" mapstructure:"shoutrrr"`
}

type SendGridSettings struct {
	APIKey string `yaml:"apikey" mapstructure:"apikey"`
}

type ShoutrrrSettings struct {
	URLs    []string      `yaml:"urls" mapstructure:"urls"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type DatastoreSettings struct {
	Driver string         `yaml:"driver" mapstructure:"driver"` // sqlite, mysql or memory
	SQLite SQLiteSettings `yaml:"sqlite" mapstructure:"sqlite"`
	MySQL  MySQLSettings  `yaml:"mysql" mapstructure:"mysql"`
}

type SQLiteSettings struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type MySQLSettings struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     string `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

type APISettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

type EventBusSettings struct {
	BufferSize      int           `yaml:"buffersize" mapstructure:"buffersize"`
	Workers         int           `yaml:"workers" mapstructure:"workers"`
	ShutdownTimeout time.Duration `yaml:"shutdowntimeout" mapstructure:"shutdowntimeout"`
}

type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"`
	ClientID string `yaml:"clientid" mapstructure:"clientid"`
	Topic    string `yaml:"topic" mapstructure:"topic"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	QoS      byte   `yaml:"qos" mapstructure:"qos"`
	Retain   bool   `yaml:"retain" mapstructure:"retain"`
}

type SentrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

type MetricsSettings struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("conf")
}

// Load reads configFile (or config.yaml from the default paths when empty),
// applies SAFEWATCH_ environment overrides and defaults, and validates the
// result. A missing config file is not an error.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	settingsInstance = settings
	return settings, nil
}

func initViper(configFile string) error {
	setDefaultConfig(viper.GetViper())
	if err := bindEnvVars(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Info("no config file found, using defaults and environment")
			return nil
		}
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	GetLogger().Info("loaded config file", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// Defaults returns the built-in settings without reading a config file or
// the environment. The result is not validated.
func Defaults() (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling default config: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return settings, nil
}

// DefaultConfigPaths lists the directories searched for config.yaml.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "safewatch"))
	}
	return append(paths, "/etc/safewatch")
}

// GetSettings returns the last loaded settings or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Chmod(0o600); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error setting config file permissions: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
