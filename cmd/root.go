// Package cmd holds the safewatch command line interface.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/safewatch/cmd/config"
	"github.com/tphakala/safewatch/cmd/contacts"
	"github.com/tphakala/safewatch/cmd/notify"
	"github.com/tphakala/safewatch/cmd/score"
	"github.com/tphakala/safewatch/cmd/serve"
	"github.com/tphakala/safewatch/internal/buildinfo"
	"github.com/tphakala/safewatch/internal/conf"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(build *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:          "safewatch",
		Short:        "SafeWatch emergency detection and alerting service",
		Version:      build.GetVersion(),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	_ = viper.BindPFlag("main.debug", rootCmd.PersistentFlags().Lookup("debug"))

	scoreCmd := score.Command()
	configCmd := config.Command()
	rootCmd.AddCommand(
		serve.Command(build),
		scoreCmd,
		notify.Command(),
		contacts.Command(),
		configCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Offline commands run without a valid config.
		if cmd == scoreCmd || cmd.Parent() == configCmd {
			return nil
		}
		switch cmd.Name() {
		case "help", "completion":
			return nil
		}

		settings, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		central, err = setupLogging(settings)
		return err
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if central == nil {
			return nil
		}
		return central.Close()
	}

	return rootCmd
}

// setupLogging replaces the bootstrap logger with one built from settings.
func setupLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Main.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, errors.New(err).
			Component("cmd").
			Category(errors.CategoryConfiguration).
			Build()
	}
	logger.SetGlobal(central)
	return central, nil
}
