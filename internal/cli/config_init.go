package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rshade/towercollector/internal/config"
)

// NewConfigInitCmd creates the config init command for initializing configuration.
func NewConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file with default values",
		Long: `Creates $TOWERCOLLECTOR_HOME/config.yaml (default ~/.towercollector/config.yaml)
with default values. Set upload.api_key before running "towercollector upload".`,
		Example: `  # Create configuration
  towercollector config init

  # Create configuration, overwriting existing
  towercollector config init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration file")

	return cmd
}

func initConfig(cmd *cobra.Command, force bool) error {
	cfg := config.Default()

	// Check if config already exists and force isn't set
	if !force {
		if _, err := os.Stat(cfg.ConfigPath()); err == nil {
			return errors.New("configuration file already exists, use --force to overwrite")
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("cannot access config path %s: %w", cfg.ConfigPath(), err)
		}
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	cmd.Printf("Configuration initialized successfully\n")
	cmd.Printf("Configuration file: %s\n", cfg.ConfigPath())

	return nil
}

// NewConfigShowCmd creates the config show command, which prints the
// effective configuration with the API key masked.
func NewConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Prints the configuration after the config file, --config overlay and
environment overrides were applied. The API key is masked.`,
		Example: `  # Show the configuration
  towercollector config show`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *config.GetGlobalConfig()
			cfg.Upload.APIKey = maskSecret(cfg.Upload.APIKey)
			data, err := yaml.Marshal(&cfg)
			if err != nil {
				return fmt.Errorf("encoding configuration: %w", err)
			}
			cmd.Printf("# %s\n", cfg.ConfigPath())
			cmd.Print(string(data))
			return nil
		},
	}
}

// maskSecret keeps the last four characters of s.
func maskSecret(s string) string {
	const visible = 4
	if s == "" {
		return ""
	}
	if len(s) <= visible {
		return "****"
	}
	return "****" + s[len(s)-visible:]
}
