// Package cli implements the towercollector command tree.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/towercollector/internal/config"
	"github.com/rshade/towercollector/internal/logging"
)

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the towercollector CLI.
// It wires up configuration overlays, logging, tracing and the subcommands.
func NewRootCmd(ver string) *cobra.Command {
	var logResult *logging.LogPathResult

	cmd := &cobra.Command{
		Use:   "towercollector",
		Short: "Collect cell tower measurements and upload them to OpenCellID",
		Long: `towercollector keeps a local database of cell tower measurements,
uploads them to OpenCellID in batches and exports them to GPX, CSV, XLSX or PDF.`,
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyConfigOverlay(cmd); err != nil {
				return err
			}
			result := setupLogging(cmd)
			logResult = &result
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return cleanupLogging(cmd, logResult)
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("config", "", "YAML file merged over the configuration file")
	cmd.AddCommand(
		NewUploadCmd(), NewExportCmd(), NewImportCmd(), NewStatsCmd(), NewServeCmd(),
		newConfigCmd(),
	)

	return cmd
}

const rootCmdExample = `  # Upload all pending measurements
  towercollector upload

  # Upload with an explicit API key and smaller parts
  towercollector upload --api-key 0123-4567 --part-size 100

  # Export pending measurements to GPX
  towercollector export --format gpx --output trip.gpx

  # Import measurements from an OpenCellID CSV file
  towercollector import measurements.csv

  # Show backlog statistics
  towercollector stats

  # Upload every hour and expose Prometheus metrics
  towercollector serve --listen 127.0.0.1:9464 --interval 1h

  # Initialize configuration
  towercollector config init`

// applyConfigOverlay merges the --config file over the global configuration.
// Environment overrides are applied again so they keep precedence.
func applyConfigOverlay(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil
	}
	cfg := config.GetGlobalConfig()
	if err := config.ShallowMergeYAML(cfg, path); err != nil {
		return fmt.Errorf("applying --config: %w", err)
	}
	cfg.ApplyEnv()
	config.SetGlobalConfig(cfg)
	return nil
}

// newConfigCmd creates the config command group with configuration subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration management commands"}
	cmd.AddCommand(NewConfigInitCmd(), NewConfigShowCmd(), NewConfigValidateCmd())
	return cmd
}
