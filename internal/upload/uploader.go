package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/rshade/towercollector/internal/batch"
	"github.com/rshade/towercollector/internal/diagnostics"
	"github.com/rshade/towercollector/internal/format"
	"github.com/rshade/towercollector/internal/logging"
	"github.com/rshade/towercollector/internal/measurement"
	"github.com/rshade/towercollector/internal/store"
)

// Store is the pending measurement backlog.
type Store interface {
	Count(ctx context.Context) (int, error)
	// Last returns the newest measurement or store.ErrEmpty.
	Last(ctx context.Context) (measurement.Measurement, error)
	Oldest(ctx context.Context, until time.Time, limit int) ([]measurement.Measurement, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int, error)
}

// StatsStore is implemented by stores that can summarize the backlog.
type StatsStore interface {
	Stats(ctx context.Context) (measurement.Statistics, error)
}

// Encoder serializes one part into the upload payload.
type Encoder interface {
	Encode(w io.Writer, ms []measurement.Measurement) error
}

// Client uploads one payload.
type Client interface {
	UploadMeasurements(ctx context.Context, payload []byte) Outcome
}

// ProgressFunc is called before each part with its 1-based index.
type ProgressFunc func(part, parts int)

// Observer receives per-part and per-run notifications.
type Observer interface {
	PartFinished(outcome Outcome, measurements int, elapsed time.Duration)
	RunFinished(report Report)
}

// Report describes a finished run.
type Report struct {
	RunID          string                 `json:"run_id"`
	Result         Result                 `json:"result"`
	PartsCount     int                    `json:"parts_count"`
	AttemptedParts int                    `json:"attempted_parts"`
	SucceededParts int                    `json:"succeeded_parts"`
	Uploaded       int                    `json:"uploaded"`
	Statistics     measurement.Statistics `json:"statistics"`
	StartedAt      time.Time              `json:"started_at"`
	Duration       time.Duration          `json:"duration"`
}

// Uploader runs upload passes over a Store.
type Uploader struct {
	store    Store
	client   Client
	encoder  Encoder
	partSize int
	progress ProgressFunc
	observer Observer
	reporter diagnostics.Reporter

	current atomic.Pointer[batch.Progress]
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithPartSize sets the number of measurements per part.
func WithPartSize(n int) Option {
	return func(u *Uploader) { u.partSize = n }
}

// WithEncoder replaces the OpenCellID CSV encoder.
func WithEncoder(e Encoder) Option {
	return func(u *Uploader) { u.encoder = e }
}

// WithProgress sets the progress callback. A nil fn is ignored.
func WithProgress(fn ProgressFunc) Option {
	return func(u *Uploader) {
		if fn != nil {
			u.progress = fn
		}
	}
}

// WithObserver sets the run observer.
func WithObserver(o Observer) Option {
	return func(u *Uploader) { u.observer = o }
}

// WithReporter sets the sink for unexpected store and encoding errors.
func WithReporter(r diagnostics.Reporter) Option {
	return func(u *Uploader) { u.reporter = r }
}

// New creates an uploader. The part size must be within
// [batch.MinPartSize, batch.MaxPartSize].
func New(s Store, c Client, opts ...Option) (*Uploader, error) {
	u := &Uploader{
		store:    s,
		client:   c,
		encoder:  format.CSVEncoder{},
		partSize: batch.DefaultPartSize,
		progress: func(int, int) {},
		reporter: diagnostics.Nop,
	}
	for _, opt := range opts {
		opt(u)
	}
	if err := batch.ValidatePartSize(u.partSize); err != nil {
		return nil, err
	}
	if u.store == nil || u.client == nil {
		return nil, errors.New("upload: store and client are required")
	}
	return u, nil
}

// Progress returns the state of the run in progress, if any.
func (u *Uploader) Progress() (batch.ProgressSnapshot, bool) {
	p := u.current.Load()
	if p == nil {
		return batch.ProgressSnapshot{}, false
	}
	return p.Snapshot(), true
}

// Run performs one upload pass. It never returns an error: every failure is
// expressed as the report's Result. ctx cancellation stops the run before
// the next part.
func (u *Uploader) Run(ctx context.Context) Report {
	report := Report{
		RunID:     ulid.Make().String(),
		Result:    ResultNotStarted,
		StartedAt: time.Now(),
	}
	ctx = logging.ContextWithTraceID(ctx, logging.GetOrGenerateTraceID(ctx))
	logger := logging.FromContext(ctx).With().
		Str(logging.FieldComponent, "upload").
		Str("run_id", report.RunID).
		Logger()

	// Store and network calls must complete once started.
	work := context.WithoutCancel(ctx)

	report.Result = u.run(ctx, work, &report, logger)
	report.Duration = time.Since(report.StartedAt)

	ev := logger.Info()
	if !report.Result.Succeeded() {
		ev = logger.Warn()
	}
	ev.Str("result", report.Result.String()).
		Int("parts", report.PartsCount).
		Int("attempted_parts", report.AttemptedParts).
		Int("succeeded_parts", report.SucceededParts).
		Int("uploaded", report.Uploaded).
		Dur("duration", report.Duration).
		Msg("upload finished")

	if u.observer != nil {
		u.observer.RunFinished(report)
	}
	return report
}

func (u *Uploader) run(ctx, work context.Context, report *Report, logger zerolog.Logger) Result {
	count, err := u.store.Count(work)
	if err != nil {
		u.reporter.Report(work, fmt.Errorf("counting measurements: %w", err))
		return ResultFailure
	}
	if count == 0 {
		logger.Debug().Msg("no measurements to upload")
		return ResultNoData
	}
	last, err := u.store.Last(work)
	if errors.Is(err, store.ErrEmpty) {
		return ResultNoData
	}
	if err != nil {
		u.reporter.Report(work, fmt.Errorf("reading newest measurement: %w", err))
		return ResultFailure
	}
	until := last.MeasuredAt

	statsStore, hasStats := u.store.(StatsStore)
	var statsBefore measurement.Statistics
	if hasStats {
		if statsBefore, err = statsStore.Stats(work); err != nil {
			logger.Warn().Err(err).Msg("reading statistics before upload")
			hasStats = false
		}
	}

	report.PartsCount = batch.PartsCount(count, u.partSize)
	progress := batch.NewProgress(count, report.PartsCount)
	u.current.Store(progress)
	defer u.current.Store(nil)

	logger.Info().
		Int("measurements", count).
		Int("parts", report.PartsCount).
		Int("part_size", u.partSize).
		Time("until", until).
		Msg("upload started")

	stopped := false
	stop := ResultSuccess
	for part := 1; part <= report.PartsCount; part++ {
		if ctx.Err() != nil {
			logger.Info().Int("part", part).Msg("upload cancelled")
			stopped, stop = true, ResultCancelled
			break
		}
		ms, err := u.store.Oldest(work, until, u.partSize)
		if err == nil && len(ms) == 0 {
			// The backlog shrank underneath us; nothing older than the
			// snapshot is left.
			logger.Debug().Int("part", part).Msg("backlog exhausted early")
			break
		}
		u.progress(part, report.PartsCount)
		report.AttemptedParts++
		if err != nil {
			u.reporter.Report(work, fmt.Errorf("fetching measurements: %w", err))
			stopped, stop = true, ResultFailure
			break
		}

		res, n := u.uploadPart(work, ms, logger.With().Int("part", part).Logger())
		if res == ResultSuccess || res == ResultDeleteFailed {
			report.SucceededParts++
			report.Uploaded += n
			progress.AddPart(n)
		}
		if res != ResultSuccess {
			stopped, stop = true, res
			break
		}
	}

	result := aggregate(stop, stopped, report.SucceededParts)

	if hasStats && (result == ResultSuccess || result == ResultPartiallySucceeded) {
		statsAfter, statsErr := statsStore.Stats(work)
		if statsErr != nil {
			logger.Warn().Err(statsErr).Msg("reading statistics after upload")
		} else {
			report.Statistics = statsBefore.Sub(statsAfter)
			logger.Info().
				Int("locations", report.Statistics.Locations).
				Int("cells", report.Statistics.Cells).
				Int("days", report.Statistics.Days).
				Msg("uploaded statistics")
		}
	}
	return result
}

// uploadPart uploads and deletes one fetched part. It returns
// ResultSuccess, ResultDeleteFailed or the result of a terminal outcome,
// and the number of measurements the server accepted.
func (u *Uploader) uploadPart(ctx context.Context, ms []measurement.Measurement, logger zerolog.Logger) (Result, int) {
	var payload bytes.Buffer
	if err := u.encoder.Encode(&payload, ms); err != nil {
		u.reporter.Report(ctx, fmt.Errorf("encoding measurements: %w", err))
		return ResultFailure, 0
	}

	start := time.Now()
	outcome := u.client.UploadMeasurements(ctx, payload.Bytes())
	elapsed := time.Since(start)
	if u.observer != nil {
		u.observer.PartFinished(outcome, len(ms), elapsed)
	}
	logger.Debug().
		Int("measurements", len(ms)).
		Str("outcome", outcome.String()).
		Dur("elapsed", elapsed).
		Msg("part uploaded")

	if outcome != OutcomeSuccess {
		return ResultOf(outcome), 0
	}

	deleted, err := u.store.DeleteByIDs(ctx, measurement.IDs(ms))
	if err != nil {
		u.reporter.Report(ctx, fmt.Errorf("deleting uploaded measurements: %w", err))
		return ResultDeleteFailed, len(ms)
	}
	if deleted == 0 {
		logger.Error().Int("measurements", len(ms)).Msg("uploaded measurements were not deleted")
		return ResultDeleteFailed, len(ms)
	}
	return ResultSuccess, len(ms)
}

// aggregate applies the precedence between stop reasons: a failed deletion
// always wins, any other stop after at least one accepted part is a partial
// success, and a loop that ran to completion is a success.
func aggregate(stop Result, stopped bool, succeededParts int) Result {
	switch {
	case !stopped:
		return ResultSuccess
	case stop == ResultDeleteFailed:
		return ResultDeleteFailed
	case succeededParts > 0:
		return ResultPartiallySucceeded
	default:
		return stop
	}
}
