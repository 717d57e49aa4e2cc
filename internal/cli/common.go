package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rshade/towercollector/internal/config"
	"github.com/rshade/towercollector/internal/logging"
	"github.com/rshade/towercollector/internal/store"
	"github.com/rshade/towercollector/internal/tui"
	"github.com/rshade/towercollector/internal/upload"
)

// ResultExitError carries a non-zero process exit code for a run that
// finished without a Go error, such as a partially succeeded upload.
type ResultExitError struct {
	ExitCode int
	Reason   string
}

func (e *ResultExitError) Error() string {
	return e.Reason
}

// exitErrorFor returns the exit error for r, or nil when r exits cleanly.
func exitErrorFor(r upload.Result) error {
	code := r.ExitCode()
	if code == upload.ExitOK {
		return nil
	}
	return &ResultExitError{ExitCode: code, Reason: r.Message()}
}

// openStore opens the configured measurement database.
func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	if cfg.Driver == config.DriverSQLite && !strings.HasPrefix(cfg.DSN, "file:") && cfg.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	st, err := store.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening measurement store: %w", err)
	}
	return st, nil
}

// cancelOnInterrupt calls cancel on SIGINT or SIGTERM. The returned function
// stops listening.
func cancelOnInterrupt(ctx context.Context, cancel context.CancelFunc) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigs:
			logging.FromContext(ctx).Warn().Str("signal", sig.String()).
				Msg("cancelling after the current step")
			cancel()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// severityFor maps an upload result to the styling of its result box.
func severityFor(r upload.Result) tui.Severity {
	switch r {
	case upload.ResultSuccess, upload.ResultNoData, upload.ResultNotStarted:
		return tui.SeveritySuccess
	case upload.ResultPartiallySucceeded, upload.ResultCancelled:
		return tui.SeverityWarning
	default:
		return tui.SeverityError
	}
}
