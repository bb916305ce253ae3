package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/cfdproxy/internal/binder"
	"github.com/vyrodovalexey/cfdproxy/internal/destination"
	"github.com/vyrodovalexey/cfdproxy/internal/observability"
	"github.com/vyrodovalexey/cfdproxy/internal/platform"
)

// newBindCmd creates the bind command.
func newBindCmd() *cobra.Command {
	var (
		envPath string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "bind <route>",
		Short: "Discover credentials and destinations for a deployed route",
		Long: `bind logs in to the platform behind the given route, discovers the OAuth
client credentials and destination catalog bound to the application, and
writes them as a .env artifact for run. An existing artifact is never
overwritten; a uniquely suffixed sibling is written instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, envPath, port)
			if err != nil {
				return err
			}

			zapLogger, err := observability.BuildZap(buildLogConfig(settings))
			if err != nil {
				return err
			}
			defer func() { _ = zapLogger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b := binder.New(
				platform.NewCloudFoundry(platform.WithLogger(zapLogger)),
				destination.NewClient(destination.WithLogger(zapLogger)),
				binder.WithLogger(zapLogger),
			)

			path, err := b.Bind(ctx, args[0], binder.Options{
				Port:    settings.Port,
				EnvPath: settings.EnvPath,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&envPath, "env-path", ".", "directory to write the artifact into")
	cmd.Flags().IntVar(&port, "port", 5050, "local proxy port recorded in the artifact")

	return cmd
}
