// Package root contains the root command for the application
package root

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dzs/taxi-etl/internal/config"
	"dzs/taxi-etl/internal/container"
	"dzs/taxi-etl/internal/logging"
)

var (
	// Log is the shared logger instance for commands. It is replaced by the
	// configured logger once the container is built.
	Log logging.Logger = logging.NewLogrusAdapter("info", "text")

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "taxi-etl",
		Short: "Incremental ETL for Chicago taxi trips and hourly weather.",
		Long: `taxi-etl extracts Chicago taxi trips and Open-Meteo weather for a day,
reconciles the payment type and company values against append-only map tables
and writes enriched CSV files to the configured object store.`,
		Run: func(cmd *cobra.Command, args []string) {
			Log.Info("Welcome to taxi-etl!")
			Log.Info("Use --help to see available commands")
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnv(Log)

			cfg, err := config.InitializeConfigWithFlags(cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			c, err := container.NewContainer(Context(cmd), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			appContainer = c
			Log = c.GetLogger()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if appContainer == nil {
				return
			}
			if err := appContainer.Close(); err != nil {
				Log.WithError(err).Warn("Failed to release resources")
			}
		},
	}

	appContainer *container.Container
)

// Init initializes the root command and all flags
func Init() {
	flags := Cmd.PersistentFlags()
	flags.String("config", "", "Config file (default is config.yaml in ., .taxi-etl or $HOME/.taxi-etl)")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text or json)")
	flags.String("csv-delimiter", ",", "Delimiter of the CSV files written")
	flags.String("storage-backend", config.BackendLocal, "Object store backend (local, memory or gcs)")
	flags.String("local-root", "data", "Root directory of the local backend")
	flags.String("bucket", "", "Bucket of the gcs backend")
}

// GetContainer returns the container built for the running command.
func GetContainer() *container.Container {
	return appContainer
}

// Context returns the command's context, or a background context.
func Context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
