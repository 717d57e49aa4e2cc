// Package diagnostics is the sink for unexpected errors worth reporting,
// with a suppression rule for network failures that are part of normal
// operation on a mobile connection.
package diagnostics

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/rshade/towercollector/internal/logging"
)

// Reporter receives errors that should reach the developers.
type Reporter interface {
	Report(ctx context.Context, err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, err error)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, err error) { f(ctx, err) }

// Nop discards reports.
//
//nolint:gochecknoglobals // Stateless.
var Nop Reporter = ReporterFunc(func(context.Context, error) {})

// LogReporter writes reports as error-level log lines.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter reports through logger.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logging.ComponentLogger(logger, "diagnostics")}
}

// Report logs err together with the context's trace id.
func (r *LogReporter) Report(ctx context.Context, err error) {
	ev := r.logger.Error().Err(err)
	if id := logging.TraceIDFromContext(ctx); id != "" {
		ev = ev.Str(logging.FieldTraceID, id)
	}
	ev.Msg("unexpected error reported")
}

// Multi fans a report out to several reporters.
type Multi []Reporter

// Report forwards err to every reporter.
func (m Multi) Report(ctx context.Context, err error) {
	for _, r := range m {
		r.Report(ctx, err)
	}
}

// Recorder keeps reports in memory.
type Recorder struct {
	mu   sync.Mutex
	errs []error
}

// Report records err.
func (r *Recorder) Report(_ context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

// Errors returns the recorded errors in order.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// IsSuppressed reports whether err is a known-benign network failure: host
// resolution failure, timeout, socket error or unexpected end of stream.
func IsSuppressed(err error) bool {
	if err == nil {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// ReportWithSuppress reports err unless IsSuppressed. It returns whether a
// report was made.
func ReportWithSuppress(ctx context.Context, r Reporter, err error) bool {
	if r == nil || err == nil || IsSuppressed(err) {
		return false
	}
	r.Report(ctx, err)
	return true
}
