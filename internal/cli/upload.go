package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rshade/towercollector/internal/config"
	"github.com/rshade/towercollector/internal/diagnostics"
	"github.com/rshade/towercollector/internal/ocid"
	"github.com/rshade/towercollector/internal/tui"
	"github.com/rshade/towercollector/internal/upload"
)

type uploadFlags struct {
	apiKey   string
	partSize int
	plain    bool
}

// NewUploadCmd creates the upload command, which sends every pending
// measurement to OpenCellID and removes the accepted ones.
func NewUploadCmd() *cobra.Command {
	var flags uploadFlags

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload pending measurements to OpenCellID",
		Long: `Uploads every pending measurement to OpenCellID in parts, oldest first.
Accepted parts are removed from the local database. The upload stops at the
first rejected part; press q or Ctrl+C to stop after the current part.

Exit codes: 0 success or nothing to upload, 1 failure, 2 partially
succeeded, 3 cancelled.`,
		Example: `  # Upload using the API key from the configuration file
  towercollector upload

  # Upload with an explicit API key
  towercollector upload --api-key 0123-4567

  # Upload in parts of 100 measurements without the progress bar
  towercollector upload --part-size 100 --plain`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *config.GetGlobalConfig()
			if cmd.Flags().Changed("api-key") {
				cfg.Upload.APIKey = flags.apiKey
			}
			if cmd.Flags().Changed("part-size") {
				cfg.Upload.PartSize = flags.partSize
			}
			if err := cfg.ValidateForUpload(); err != nil {
				return err
			}
			return runUpload(cmd, &cfg, flags.plain)
		},
	}

	cmd.Flags().StringVar(&flags.apiKey, "api-key", "", "OpenCellID API key (overrides upload.api_key)")
	cmd.Flags().IntVar(&flags.partSize, "part-size", config.DefaultPartSize,
		fmt.Sprintf("measurements per request (%d-%d)", config.MinPartSize, config.MaxPartSize))
	cmd.Flags().BoolVar(&flags.plain, "plain", false, "disable the interactive progress view")

	return cmd
}

func runUpload(cmd *cobra.Command, cfg *config.Config, plain bool) error {
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

	reporter := diagnostics.NewLogReporter(logger)
	client := ocid.New(cfg.Upload, ocid.WithReporter(reporter))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := cancelOnInterrupt(ctx, cancel)
	defer stop()

	mode := tui.DetectOutputMode(plain, false, false)

	// update is replaced by the progress view before the run starts.
	update := func(part, parts int) {
		cmd.Printf("Uploading part %d of %d\n", part, parts)
	}
	u, err := upload.New(st, client,
		upload.WithPartSize(cfg.Upload.PartSize),
		upload.WithReporter(reporter),
		upload.WithProgress(func(part, parts int) { update(part, parts) }),
	)
	if err != nil {
		return err
	}

	var report upload.Report
	if mode == tui.OutputModeInteractive {
		err = tui.RunWithProgress(cmd.OutOrStdout(), "Uploading measurements", "part", cancel,
			func(send func(current, total int)) {
				update = send
				report = u.Run(runCtx)
			})
		if err != nil {
			return err
		}
	} else {
		report = u.Run(runCtx)
	}

	uploadResultView(report).Print(cmd.OutOrStdout(), mode)
	return exitErrorFor(report.Result)
}

func uploadResultView(report upload.Report) tui.ResultView {
	view := tui.ResultView{
		Title:       report.Result.Message(),
		Description: report.Result.Description(),
		Severity:    severityFor(report.Result),
	}
	if report.PartsCount > 0 {
		view.Details = append(view.Details,
			fmt.Sprintf("Parts: %d of %d uploaded", report.SucceededParts, report.PartsCount),
			fmt.Sprintf("Measurements: %d", report.Uploaded),
		)
	}
	if !report.Statistics.IsZero() {
		view.Details = append(view.Details, fmt.Sprintf("Locations: %d, cells: %d, days: %d",
			report.Statistics.Locations, report.Statistics.Cells, report.Statistics.Days))
	}
	if report.Duration > 0 {
		view.Details = append(view.Details, "Duration: "+report.Duration.Round(time.Millisecond).String())
	}
	return view
}
