package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/towercollector/internal/config"
)

// NewConfigValidateCmd creates the config validate command for validating configuration.
func NewConfigValidateCmd() *cobra.Command {
	var (
		verbose   bool
		forUpload bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validates the effective configuration for semantic correctness.

This includes:
- Upload URL, part size and timeouts
- Store driver and data source
- Export format and segment gap
- Logging format`,
		Example: `  # Validate current configuration
  towercollector config validate

  # Also require an API key, as upload does
  towercollector config validate --upload

  # Validate and show detailed information
  towercollector config validate --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd, verbose, forUpload)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed validation information")
	cmd.Flags().BoolVar(&forUpload, "upload", false, "also require upload.api_key")

	return cmd
}

// runConfigValidate executes the configuration validation logic.
func runConfigValidate(cmd *cobra.Command, verbose, forUpload bool) error {
	cfg := config.GetGlobalConfig()

	validate := cfg.Validate
	if forUpload {
		validate = cfg.ValidateForUpload
	}
	if err := validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cmd.Printf("Configuration is valid\n")

	if verbose {
		printVerboseDetails(cmd, cfg)
	}

	return nil
}

// printVerboseDetails prints detailed configuration information.
func printVerboseDetails(cmd *cobra.Command, cfg *config.Config) {
	cmd.Println()
	cmd.Println("Configuration details:")
	cmd.Printf("  Upload URL: %s\n", cfg.Upload.URL)
	cmd.Printf("  Part size: %d\n", cfg.Upload.PartSize)
	cmd.Printf("  API key set: %t\n", cfg.Upload.APIKey != "")
	cmd.Printf("  Store: %s\n", cfg.Store.Driver)
	cmd.Printf("  Export format: %s\n", cfg.Export.Format)
	cmd.Printf("  Logging level: %s\n", cfg.Logging.Level)
	cmd.Printf("  Log file: %s\n", cfg.Logging.File)
}
