// Package notify sends a test alert through the configured transport.
package notify

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/safewatch/internal/app"
	"github.com/tphakala/safewatch/internal/conf"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/logger"
)

// Command returns a cobra command that sends a manual test alert for a user
// to the operator and the user's emergency contacts.
func Command() *cobra.Command {
	var (
		userID   string
		userName string
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test alert to the operator and a user's contacts",
		Long: `Send a test alert through the configured transport. No emergency record is stored.

Examples:
  # Alert the operator and every contact of user-1
  safewatch notify --user=user-1 --name="Alex"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.Newf("--user is required").
					Component("cmd").
					Category(errors.CategoryValidation).
					Build()
			}
			settings := conf.GetSettings()
			store, err := app.OpenStore(settings)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Global().Module("notify").Warn("failed to close datastore", logger.Error(err))
				}
			}()

			res, err := app.SendTestAlert(cmd.Context(), settings, store, nil, userID, userName)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, d := range res.PerRecipient {
				line := fmt.Sprintf("%-8s %-18s %s <%s>", d.Status, d.Recipient.Type, d.Recipient.Name, d.Recipient.Email)
				if d.Error != "" {
					line += ": " + d.Error
				}
				_, _ = fmt.Fprintln(out, line)
			}
			_, _ = fmt.Fprintf(out, "sent %d of %d\n", res.Successful, res.Total)
			if res.Failed > 0 {
				return errors.Newf("%d of %d deliveries failed", res.Failed, res.Total).
					Component("cmd").
					Category(errors.CategoryNotification).
					Build()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User whose contacts receive the alert")
	cmd.Flags().StringVar(&userName, "name", "", "Display name used in the message")
	return cmd
}
