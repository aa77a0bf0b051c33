// Package serve runs the SafeWatch service.
package serve

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/safewatch/internal/app"
	"github.com/tphakala/safewatch/internal/buildinfo"
	"github.com/tphakala/safewatch/internal/conf"
	"github.com/tphakala/safewatch/internal/logger"
)

// Command creates the serve command.
func Command(build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the detection API and alert pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.GetSettings()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(settings, app.WithBuildInfo(build))
			if err != nil {
				return err
			}
			logger.Global().Module("serve").Info("safewatch starting",
				logger.String("version", build.GetVersion()),
				logger.String("listen", settings.API.Listen),
				logger.String("datastore", settings.Datastore.Driver))
			return a.Run(ctx)
		},
	}

	// Bound before conf.Load so the flag overrides api.listen from the file.
	cmd.Flags().String("listen", "", "Address for the HTTP API, overrides api.listen")
	_ = viper.BindPFlag("api.listen", cmd.Flags().Lookup("listen"))
	return cmd
}
