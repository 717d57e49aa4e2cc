package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rshade/towercollector/internal/config"
	"github.com/rshade/towercollector/internal/format"
)

// NewImportCmd creates the import command, which loads measurements from an
// OpenCellID CSV file into the local database.
func NewImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE.csv",
		Short: "Import measurements from an OpenCellID CSV file",
		Long: `Reads an OpenCellID CSV file (as written by "towercollector export --format csv")
and adds its measurements to the local database. Columns are matched by the
header line; ta and psc are optional.`,
		Example: `  # Import a previous export
  towercollector import towercollector-20260101-120000.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0])
		},
	}
}

func runImport(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	ms, err := format.DecodeCSV(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	st, err := openStore(ctx, config.GetGlobalConfig().Store)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("closing measurement store")
		}
	}()

	n, err := st.Insert(ctx, ms)
	if err != nil {
		return fmt.Errorf("importing %s: %w", path, err)
	}
	logger.Info().Str("file", path).Int("measurements", n).Msg("measurements imported")
	cmd.Printf("Imported %d measurements from %s\n", n, path)
	return nil
}
