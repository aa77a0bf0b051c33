// Package config writes a starter config.yaml.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/safewatch/internal/conf"
	"github.com/tphakala/safewatch/internal/errors"
)

// Command creates the config command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(initCommand())
	return cmd
}

func initCommand() *cobra.Command {
	var (
		output   string
		operator string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write config.yaml with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(output); err == nil {
					return errors.Newf("%s already exists, use --force to overwrite", output).
						Component("cmd").
						Category(errors.CategoryConflict).
						Build()
				}
			}

			settings, err := conf.Defaults()
			if err != nil {
				return err
			}
			settings.Alerting.OperatorEmail = operator
			if err := conf.ValidateSettings(settings); err != nil {
				return errors.New(err).
					Component("cmd").
					Category(errors.CategoryConfiguration).
					Build()
			}
			if err := conf.SaveYAMLConfig(output, settings); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "config.yaml", "Destination file")
	cmd.Flags().StringVar(&operator, "operator-email", "", "Operator address that receives every alert (required)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
