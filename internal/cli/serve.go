package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/towercollector/internal/config"
	"github.com/rshade/towercollector/internal/diagnostics"
	"github.com/rshade/towercollector/internal/export"
	"github.com/rshade/towercollector/internal/metrics"
	"github.com/rshade/towercollector/internal/ocid"
	"github.com/rshade/towercollector/internal/upload"
)

const (
	serveReadHeaderTimeout = 10 * time.Second
	serveShutdownTimeout   = 5 * time.Second
)

// NewServeCmd creates the serve command, which uploads on a schedule and
// exposes an HTTP API with Prometheus metrics.
func NewServeCmd() *cobra.Command {
	var (
		listen   string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Upload on a schedule and serve metrics and an HTTP API",
		Long: `Runs until interrupted. Every --interval an upload run is queued; at most one
run is active at a time. The HTTP API exposes:

  GET  /metrics        Prometheus metrics
  GET  /status         upload worker state and live progress
  POST /upload         queue an upload run
  POST /upload/cancel  withdraw a queued run or stop the active one after its part
  POST /export         write an export to export.directory (?format=gpx|csv|xlsx|pdf)

An interval of 0 disables scheduled uploads.`,
		Example: `  # Upload hourly and serve on the default address
  towercollector serve

  # Only upload on request
  towercollector serve --interval 0 --listen :9464`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *config.GetGlobalConfig()
			if cmd.Flags().Changed("listen") {
				cfg.Serve.Listen = listen
			}
			if cmd.Flags().Changed("interval") {
				cfg.Serve.Interval = interval
			}
			if err := cfg.ValidateForUpload(); err != nil {
				return err
			}
			return runServe(cmd, &cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", config.DefaultServeListen, "HTTP listen address")
	cmd.Flags().DurationVar(&interval, "interval", config.DefaultServeInterval, "time between scheduled uploads")

	return cmd
}

//nolint:funlen // Wiring of the daemon components reads best in one place.
func runServe(cmd *cobra.Command, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("closing measurement store")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}
	if err = m.RegisterPending(st.Count); err != nil {
		return err
	}

	reporter := diagnostics.Multi{diagnostics.NewLogReporter(logger), m}
	client := ocid.New(cfg.Upload, ocid.WithReporter(reporter))
	u, err := upload.New(st, client,
		upload.WithPartSize(cfg.Upload.PartSize),
		upload.WithObserver(m),
		upload.WithReporter(reporter),
	)
	if err != nil {
		return err
	}
	worker := upload.NewWorker(u, upload.WithOnFinished(func(rep upload.Report) {
		logger.Info().Str("run_id", rep.RunID).Str("result", rep.Result.String()).
			Msg(rep.Summary())
	}))

	exporter := func(ctx context.Context, format string) export.Result {
		exportCfg := cfg.Export
		exportCfg.Format = format
		return exportTo(ctx, st, exportCfg, "", nil)
	}
	onExport := func(res export.Result) {
		m.ExportFinished(res.Format, res.Status.String())
	}

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              cfg.Serve.Listen,
		Handler:           newServeMux(worker, exporter, onExport, reg),
		ReadHeaderTimeout: serveReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		logger.Info().Str("listen", srv.Addr).Msg("serving HTTP API")
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serving HTTP: %w", serveErr)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), serveShutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("shutting down HTTP: %w", shutdownErr)
		}
		return nil
	})
	if cfg.Serve.Interval > 0 {
		g.Go(func() error {
			return schedule(gctx, cfg.Serve.Interval, worker.Trigger)
		})
	}

	cmd.Printf("Serving on http://%s (Ctrl+C to stop)\n", cfg.Serve.Listen)
	if err = g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("serve stopped")
	return nil
}

// schedule calls trigger immediately and then every interval until ctx is done.
func schedule(ctx context.Context, interval time.Duration, trigger func() bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if !trigger() {
			logger.Debug().Msg("scheduled upload skipped, a run is already pending")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
