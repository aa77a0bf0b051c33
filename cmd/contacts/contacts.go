// Package contacts manages users' emergency contacts.
package contacts

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/safewatch/internal/app"
	"github.com/tphakala/safewatch/internal/conf"
	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/model"
	"github.com/tphakala/safewatch/internal/recipients"
)

// Command creates the contacts command and its subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage emergency contacts",
	}
	cmd.AddCommand(addCommand(), listCommand())
	return cmd
}

// withBook opens the configured store for the duration of fn.
func withBook(fn func(b *recipients.ContactBook) error) error {
	store, err := app.OpenStore(conf.GetSettings())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Global().Module("contacts").Warn("failed to close datastore", logger.Error(err))
		}
	}()
	return fn(recipients.NewContactBook(datastore.NewRepositories(store).Contacts))
}

func addCommand() *cobra.Command {
	var c model.EmergencyContact

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an emergency contact for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBook(func(b *recipients.ContactBook) error {
				added, err := b.Add(cmd.Context(), c)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "added %s <%s> as %s\n", added.Name, added.Email, added.ID)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&c.UserID, "user", "", "User id")
	cmd.Flags().StringVar(&c.Name, "name", "", "Contact name")
	cmd.Flags().StringVar(&c.Email, "email", "", "Contact email address")
	cmd.Flags().StringVar(&c.Relationship, "relationship", "", "Relationship to the user")
	cmd.Flags().StringVar(&c.Phone, "phone", "", "Phone number")
	return cmd
}

func listCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's emergency contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBook(func(b *recipients.ContactBook) error {
				return printContacts(cmd.Context(), cmd, b, userID)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id")
	return cmd
}

func printContacts(ctx context.Context, cmd *cobra.Command, b *recipients.ContactBook, userID string) error {
	list, err := b.List(ctx, userID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tEMAIL\tRELATIONSHIP")
	for _, c := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Email, c.Relationship)
	}
	return w.Flush()
}
