// Package export writes the pending backlog to a file without removing it.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rshade/towercollector/internal/batch"
	"github.com/rshade/towercollector/internal/logging"
	"github.com/rshade/towercollector/internal/measurement"
	"github.com/rshade/towercollector/internal/store"
)

// DefaultSegmentGap is the pause between measurements that starts a new
// track segment.
const DefaultSegmentGap = 30 * time.Minute

// Source is the backlog being exported.
type Source interface {
	Count(ctx context.Context) (int, error)
	First(ctx context.Context) (measurement.Measurement, error)
	Last(ctx context.Context) (measurement.Measurement, error)
	Page(ctx context.Context, until time.Time, offset, limit int) ([]measurement.Measurement, error)
	Bounds(ctx context.Context, until time.Time) (measurement.Boundaries, error)
}

// Status is the outcome of an export.
type Status int

// Export statuses.
const (
	StatusNoData Status = iota
	StatusCancelled
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNoData:
		return "no_data"
	case StatusCancelled:
		return "cancelled"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes a finished export.
type Result struct {
	Status   Status
	Format   string
	Path     string
	Exported int
	Err      error
}

// ProgressFunc reports (processed, total) measurements.
type ProgressFunc func(processed, total int)

// Options configures a Generator.
type Options struct {
	Format     string
	Path       string
	Creator    string
	SegmentGap time.Duration
	PartSize   int
	Progress   ProgressFunc
}

// Generator exports a Source to a file.
type Generator struct {
	src  Source
	opts Options
}

// NewGenerator validates opts and returns a generator.
func NewGenerator(src Source, opts Options) (*Generator, error) {
	if opts.Path == "" {
		return nil, errors.New("export: output path is required")
	}
	if opts.SegmentGap <= 0 {
		opts.SegmentGap = DefaultSegmentGap
	}
	if opts.PartSize <= 0 {
		opts.PartSize = batch.DefaultPartSize
	}
	if err := batch.ValidatePartSize(opts.PartSize); err != nil {
		return nil, err
	}
	if opts.Progress == nil {
		opts.Progress = func(int, int) {}
	}
	if err := ValidateFormat(opts.Format); err != nil {
		return nil, err
	}
	return &Generator{src: src, opts: opts}, nil
}

// Generate writes every measurement not newer than the newest one at start.
// Cancellation is checked after each part; the incomplete file is removed
// when the export is cancelled or fails.
func (g *Generator) Generate(ctx context.Context) Result {
	logger := logging.FromContext(ctx).With().
		Str(logging.FieldComponent, "export").
		Str("format", g.opts.Format).
		Logger()
	res := Result{Format: g.opts.Format, Path: g.opts.Path}

	work := context.WithoutCancel(ctx)
	total, err := g.src.Count(work)
	if err != nil {
		return g.fail(res, fmt.Errorf("counting measurements: %w", err))
	}
	last, err := g.src.Last(work)
	if total == 0 || errors.Is(err, store.ErrEmpty) {
		logger.Debug().Msg("nothing to export")
		res.Status = StatusNoData
		return res
	}
	if err != nil {
		return g.fail(res, fmt.Errorf("reading newest measurement: %w", err))
	}
	first, err := g.src.First(work)
	if err != nil {
		return g.fail(res, fmt.Errorf("reading oldest measurement: %w", err))
	}
	bounds, err := g.src.Bounds(work, last.MeasuredAt)
	if err != nil {
		return g.fail(res, fmt.Errorf("reading bounds: %w", err))
	}

	if err = os.MkdirAll(filepath.Dir(g.opts.Path), 0o755); err != nil {
		return g.fail(res, fmt.Errorf("creating export directory: %w", err))
	}
	f, err := os.Create(g.opts.Path)
	if err != nil {
		return g.fail(res, fmt.Errorf("creating export file: %w", err))
	}

	exported, cancelled, writeErr := g.write(ctx, work, f, total, first, last, bounds)
	closeErr := f.Close()
	g.opts.Progress(total, total)
	res.Exported = exported

	switch {
	case writeErr != nil || closeErr != nil:
		_ = os.Remove(g.opts.Path)
		return g.fail(res, errors.Join(writeErr, closeErr))
	case cancelled:
		_ = os.Remove(g.opts.Path)
		logger.Info().Int("exported", exported).Int("total", total).Msg("export cancelled")
		res.Status = StatusCancelled
		return res
	default:
		logger.Info().Int("exported", exported).Str("path", g.opts.Path).Msg("export finished")
		res.Status = StatusSucceeded
		return res
	}
}

func (g *Generator) write(
	ctx, work context.Context,
	f *os.File,
	total int,
	first, last measurement.Measurement,
	bounds measurement.Boundaries,
) (int, bool, error) {
	w, err := NewWriter(g.opts.Format, f)
	if err != nil {
		return 0, false, err
	}
	g.opts.Progress(0, total)

	err = w.WriteHeader(Header{
		Creator: g.opts.Creator,
		First:   first.MeasuredAt,
		Last:    last.MeasuredAt,
		Count:   total,
		Bounds:  bounds,
	})
	if err != nil {
		return 0, false, fmt.Errorf("writing header: %w", err)
	}

	prev := first.MeasuredAt
	exported := 0
	cancelled := false
	for _, part := range batch.Parts(total, g.opts.PartSize) {
		ms, pageErr := g.src.Page(work, last.MeasuredAt, part.Offset, g.opts.PartSize)
		if pageErr != nil {
			return exported, false, fmt.Errorf("reading part %d: %w", part.Index, pageErr)
		}
		for _, m := range ms {
			if m.MeasuredAt.Sub(prev) > g.opts.SegmentGap {
				if err = w.NewSegment(); err != nil {
					return exported, false, fmt.Errorf("starting segment: %w", err)
				}
			}
			if err = w.Write(m); err != nil {
				return exported, false, fmt.Errorf("writing entry: %w", err)
			}
			prev = m.MeasuredAt
			exported++
		}
		g.opts.Progress(part.Offset+len(ms), total)
		if ctx.Err() != nil {
			cancelled = true
			break
		}
	}

	if err = w.WriteFooter(); err != nil {
		return exported, cancelled, fmt.Errorf("writing footer: %w", err)
	}
	return exported, cancelled, nil
}

func (g *Generator) fail(res Result, err error) Result {
	res.Status = StatusFailed
	res.Err = err
	return res
}
