package upload

import (
	"context"
	"sync"

	"github.com/rshade/towercollector/internal/batch"
	"github.com/rshade/towercollector/internal/logging"
)

// Runner performs one upload pass.
type Runner interface {
	Run(ctx context.Context) Report
}

// progressRunner is implemented by runners that expose live progress.
type progressRunner interface {
	Progress() (batch.ProgressSnapshot, bool)
}

// Status is a point-in-time view of a Worker.
type Status struct {
	Active   bool                   `json:"active"`
	Queued   bool                   `json:"queued"`
	Progress *batch.ProgressSnapshot `json:"progress,omitempty"`
	Last     *Report                `json:"last,omitempty"`
}

// Worker serializes upload runs: at most one is active, and at most one
// more is queued behind it.
type Worker struct {
	runner   Runner
	requests chan struct{}
	onDone   func(Report)

	mu     sync.Mutex
	queued bool
	active bool
	cancel context.CancelFunc
	last   *Report
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithOnFinished registers a callback invoked on the worker goroutine after
// each run.
func WithOnFinished(fn func(Report)) WorkerOption {
	return func(w *Worker) { w.onDone = fn }
}

// NewWorker creates a worker around r. Call Run to start serving requests.
func NewWorker(r Runner, opts ...WorkerOption) *Worker {
	w := &Worker{
		runner:   r,
		requests: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Trigger requests a run. It returns false when a run is already queued or
// active.
func (w *Worker) Trigger() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.queued || w.active {
		return false
	}
	w.queued = true
	w.requests <- struct{}{}
	return true
}

// Cancel stops the active run before its next part, or withdraws a queued
// run that has not started yet. It returns false when there is nothing to
// cancel.
func (w *Worker) Cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.cancel != nil:
		w.cancel()
		return true
	case w.queued:
		w.queued = false
		select {
		case <-w.requests:
		default:
		}
		return true
	default:
		return false
	}
}

// Last returns the report of the most recent finished run.
func (w *Worker) Last() (Report, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return Report{}, false
	}
	return *w.last, true
}

// Status returns the worker state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	st := Status{Active: w.active, Queued: w.queued}
	if w.last != nil {
		last := *w.last
		st.Last = &last
	}
	w.mu.Unlock()

	if pr, ok := w.runner.(progressRunner); ok && st.Active {
		if snap, running := pr.Progress(); running {
			st.Progress = &snap
		}
	}
	return st
}

// Run serves run requests until ctx is done. A run in progress when ctx ends
// is cancelled and allowed to finish its current part.
func (w *Worker) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).With().Str(logging.FieldComponent, "upload_worker").Logger()
	logger.Debug().Msg("upload worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("upload worker stopped")
			return nil
		case <-w.requests:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	if !w.queued {
		// Withdrawn by Cancel after Run took the request.
		w.mu.Unlock()
		return
	}
	w.queued = false
	w.active = true
	w.cancel = cancel
	w.mu.Unlock()

	report := w.runner.Run(runCtx)

	w.mu.Lock()
	w.active = false
	w.cancel = nil
	w.last = &report
	w.mu.Unlock()

	if w.onDone != nil {
		w.onDone(report)
	}
}
