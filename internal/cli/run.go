package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/cfdproxy/internal/config"
	"github.com/vyrodovalexey/cfdproxy/internal/forwarder"
	"github.com/vyrodovalexey/cfdproxy/internal/observability"
)

// newRunCmd creates the run command.
func newRunCmd() *cobra.Command {
	var (
		envPath     string
		port        int
		logRequests bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the local authenticated forwarder",
		Long: `run loads the .env artifact written by bind and starts the local reverse
proxy. Requests arriving for <destination>.<anything> hosts are authenticated
with a cached OAuth token and forwarded to the platform's destination routing
service. The proxy serves until interrupted, then drains in-flight requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, envPath, port)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log") {
				settings.Log.Requests = logRequests
			}

			zapLogger, err := observability.BuildZap(buildLogConfig(settings))
			if err != nil {
				return err
			}
			defer func() { _ = zapLogger.Sync() }()
			observability.SetGlobalLogger(observability.NewZapLogger(zapLogger))

			artifact, err := config.LoadArtifact(settings.EnvPath)
			if err != nil {
				return err
			}

			server, err := forwarder.NewServer(artifact, forwarder.ServerConfig{
				Port:        settings.Port,
				LogRequests: settings.Log.Requests,
			}, forwarder.WithServerLogger(zapLogger))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.Run(ctx, nil)
		},
	}

	cmd.Flags().StringVar(&envPath, "env-path", ".", "directory holding the artifact")
	cmd.Flags().IntVar(&port, "port", 5050, "local proxy port")
	cmd.Flags().BoolVar(&logRequests, "log", false, "log every forwarded request")

	return cmd
}
