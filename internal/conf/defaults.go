package conf

import (
	"time"

	"github.com/spf13/viper"
)

func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("main.name", "SafeWatch")
	v.SetDefault("main.debug", false)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "UTC")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/safewatch.log")
	v.SetDefault("logging.file_output.level", "info")

	v.SetDefault("scoring.countdown", 5*time.Second)
	v.SetDefault("scoring.crowdradius", 500.0)
	v.SetDefault("scoring.crowdwindow", 5*time.Minute)

	v.SetDefault("threshold.maxretries", 5)
	v.SetDefault("threshold.cachettl", 10*time.Minute)

	v.SetDefault("alerting.operatorname", "SafeWatch Operations")
	v.SetDefault("alerting.operatoremail", "")
	v.SetDefault("alerting.fromname", "SafeWatch Alerts")
	v.SetDefault("alerting.fromemail", "")
	v.SetDefault("alerting.transport", "log")
	v.SetDefault("alerting.workers", 4)
	v.SetDefault("alerting.sendtimeout", 15*time.Second)
	v.SetDefault("alerting.ratelimit", 10.0)
	v.SetDefault("alerting.burst", 5)
	v.SetDefault("alerting.sendgrid.apikey", "")
	v.SetDefault("alerting.shoutrrr.urls", []string{})
	v.SetDefault("alerting.shoutrrr.timeout", 10*time.Second)

	v.SetDefault("datastore.driver", "sqlite")
	v.SetDefault("datastore.sqlite.path", "safewatch.db")
	v.SetDefault("datastore.mysql.host", "localhost")
	v.SetDefault("datastore.mysql.port", "3306")
	v.SetDefault("datastore.mysql.username", "")
	v.SetDefault("datastore.mysql.password", "")
	v.SetDefault("datastore.mysql.database", "safewatch")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", ":8080")

	v.SetDefault("eventbus.buffersize", 1000)
	v.SetDefault("eventbus.workers", 4)
	v.SetDefault("eventbus.shutdowntimeout", 30*time.Second)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.clientid", "safewatch")
	v.SetDefault("mqtt.topic", "safewatch/emergencies")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("metrics.enabled", true)
}
