package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rshade/towercollector/internal/config"
	"github.com/rshade/towercollector/internal/export"
	"github.com/rshade/towercollector/internal/store"
	"github.com/rshade/towercollector/internal/tui"
	"github.com/rshade/towercollector/internal/upload"
	"github.com/rshade/towercollector/pkg/version"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	var (
		format string
		output string
		plain  bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export pending measurements to a file",
		Long: `Writes every pending measurement to a GPX, CSV, XLSX or PDF file. The
measurements stay in the local database. GPX tracks are split into segments
wherever two measurements are further apart than export.segment_gap.

Without --output the file is written to export.directory.`,
		Example: `  # Export to GPX in the configured export directory
  towercollector export

  # Export to a spreadsheet
  towercollector export --format xlsx --output measurements.xlsx`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *config.GetGlobalConfig()
			if cmd.Flags().Changed("format") {
				cfg.Export.Format = strings.ToLower(format)
			}
			if err := export.ValidateFormat(cfg.Export.Format); err != nil {
				return err
			}
			return runExport(cmd, &cfg, output, plain)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", config.DefaultExportFormat,
		"output format: "+strings.Join(export.Formats(), ", "))
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: export.directory)")
	cmd.Flags().BoolVar(&plain, "plain", false, "disable the interactive progress view")

	return cmd
}

func runExport(cmd *cobra.Command, cfg *config.Config, output string, plain bool) error {
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("closing measurement store")
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := cancelOnInterrupt(ctx, cancel)
	defer stop()

	mode := tui.DetectOutputMode(plain, false, false)
	update := func(int, int) {}

	var res export.Result
	if mode == tui.OutputModeInteractive {
		err = tui.RunWithProgress(cmd.OutOrStdout(), "Exporting measurements", "measurement", cancel,
			func(send func(current, total int)) {
				update = send
				res = exportTo(runCtx, st, cfg.Export, output, func(n, total int) { update(n, total) })
			})
		if err != nil {
			return err
		}
	} else {
		res = exportTo(runCtx, st, cfg.Export, output, nil)
	}

	return reportExport(cmd, res, mode)
}

// exportTo writes the pending measurements in the configured format. An
// empty path selects a timestamped file in the export directory.
func exportTo(
	ctx context.Context,
	st *store.Store,
	cfg config.ExportConfig,
	path string,
	progress export.ProgressFunc,
) export.Result {
	if path == "" {
		path = filepath.Join(cfg.Directory, defaultExportName(cfg.Format, time.Now()))
	}
	res := export.Result{Status: export.StatusFailed, Format: cfg.Format, Path: path}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		res.Err = fmt.Errorf("creating export directory: %w", err)
		return res
	}

	gen, err := export.NewGenerator(st, export.Options{
		Format:     cfg.Format,
		Path:       path,
		Creator:    config.DefaultAppID + " " + version.GetVersion(),
		SegmentGap: cfg.SegmentGap,
		Progress:   progress,
	})
	if err != nil {
		res.Err = err
		return res
	}
	return gen.Generate(ctx)
}

func defaultExportName(format string, now time.Time) string {
	return fmt.Sprintf("towercollector-%s.%s", now.Format("20060102-150405"), format)
}

func reportExport(cmd *cobra.Command, res export.Result, mode tui.OutputMode) error {
	view := tui.ResultView{Severity: tui.SeveritySuccess}
	switch res.Status {
	case export.StatusNoData:
		view.Title = "No data"
		view.Description = "There are no measurements to export."
	case export.StatusCancelled:
		view.Title = "Export cancelled"
		view.Description = "The incomplete file was removed."
		view.Severity = tui.SeverityWarning
	case export.StatusSucceeded:
		view.Title = "Export finished"
		view.Description = fmt.Sprintf("Exported %d measurements.", res.Exported)
		view.Details = []string{"File: " + res.Path}
	case export.StatusFailed:
		return fmt.Errorf("export failed: %w", res.Err)
	}
	view.Print(cmd.OutOrStdout(), mode)
	if res.Status == export.StatusCancelled {
		return &ResultExitError{ExitCode: upload.ExitCancelled, Reason: view.Title}
	}
	return nil
}
