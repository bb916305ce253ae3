// Package cli wires the bind and run commands to the underlying packages.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/cfdproxy/internal/config"
	"github.com/vyrodovalexey/cfdproxy/internal/observability"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cfdproxy",
		Short: "Local development proxy for platform destinations",
		Long: `cfdproxy runs deployed-platform destinations against locally running code.

bind discovers the OAuth credentials and destination catalog behind a deployed
route and records them in a local .env artifact. run starts a local reverse
proxy that authenticates requests with those credentials and forwards them to
the platform's destination routing service.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newBindCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

// Execute runs the root command, reporting any failure as a single error
// line on stderr.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[error] %v\n", err)
		os.Exit(1)
	}
}

// loadSettings reads the optional settings file from the working directory
// and applies flag overrides on top.
func loadSettings(cmd *cobra.Command, envPath string, port int) (*config.Settings, error) {
	settings, err := config.LoadSettings(config.SettingsFileName)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("env-path") {
		settings.EnvPath = envPath
	}
	if cmd.Flags().Changed("port") {
		settings.Port = port
	}

	return settings, nil
}

// buildLogConfig maps file settings to the logging configuration.
func buildLogConfig(settings *config.Settings) observability.LogConfig {
	cfg := observability.DefaultLogConfig()
	if settings.Log.Level != "" {
		cfg.Level = settings.Log.Level
	}
	if settings.Log.Format != "" {
		cfg.Format = settings.Log.Format
	}
	return cfg
}
