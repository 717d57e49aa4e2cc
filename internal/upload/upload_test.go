package upload

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/towercollector/internal/diagnostics"
	"github.com/rshade/towercollector/internal/measurement"
	"github.com/rshade/towercollector/internal/store"
)

var epoch = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// memStore is an in-memory Store ordered by time then row id.
type memStore struct {
	mu      sync.Mutex
	ms      []measurement.Measurement
	nextID  int64
	fetches []int
	deletes int

	countErr   error
	fetchErr   error
	deleteErr  error
	deleteNone bool
	failDelete int // 1-based delete call that misbehaves, 0 for all
}

func newMemStore(n int) *memStore {
	s := &memStore{}
	for i := range n {
		s.add(epoch.Add(time.Duration(i) * time.Second))
	}
	return s
}

func (s *memStore) add(at time.Time) {
	s.nextID++
	s.ms = append(s.ms, measurement.Measurement{
		RowID:      s.nextID,
		MeasuredAt: at,
		Cell:       measurement.Cell{MCC: 260, MNC: 2, CID: s.nextID, NetworkType: measurement.NetworkGSM},
	})
	sort.SliceStable(s.ms, func(i, j int) bool { return s.ms[i].MeasuredAt.Before(s.ms[j].MeasuredAt) })
}

func (s *memStore) Add(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(at)
}

func (s *memStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ms)
}

// Truncate keeps only the n oldest measurements.
func (s *memStore) Truncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < len(s.ms) {
		s.ms = s.ms[:n]
	}
}

func (s *memStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ms), s.countErr
}

func (s *memStore) Last(context.Context) (measurement.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ms) == 0 {
		return measurement.Measurement{}, store.ErrEmpty
	}
	return s.ms[len(s.ms)-1], nil
}

func (s *memStore) Oldest(_ context.Context, until time.Time, limit int) ([]measurement.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []measurement.Measurement
	for _, m := range s.ms {
		if len(out) == limit {
			break
		}
		if !m.MeasuredAt.After(until) {
			out = append(out, m)
		}
	}
	s.fetches = append(s.fetches, len(out))
	return out, nil
}

func (s *memStore) DeleteByIDs(_ context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.failDelete == 0 || s.failDelete == s.deletes {
		if s.deleteErr != nil {
			return 0, s.deleteErr
		}
		if s.deleteNone {
			return 0, nil
		}
	}
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.ms[:0]
	deleted := 0
	for _, m := range s.ms {
		if drop[m.RowID] {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.ms = kept
	return deleted, nil
}

func (s *memStore) Stats(context.Context) (measurement.Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return measurement.Statistics{Locations: len(s.ms), Cells: len(s.ms), Days: min(len(s.ms), 1)}, nil
}

func (s *memStore) Fetches() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.fetches...)
}

// scriptedClient returns outcomes in order, then Success.
type scriptedClient struct {
	mu       sync.Mutex
	outcomes []Outcome
	calls    int
	onCall   func(call int)
}

func (c *scriptedClient) UploadMeasurements(context.Context, []byte) Outcome {
	c.mu.Lock()
	c.calls++
	call := c.calls
	hook := c.onCall
	outcome := OutcomeSuccess
	if call <= len(c.outcomes) {
		outcome = c.outcomes[call-1]
	}
	c.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return outcome
}

func (c *scriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingObserver struct {
	parts []Outcome
	runs  []Report
}

func (o *recordingObserver) PartFinished(outcome Outcome, _ int, _ time.Duration) {
	o.parts = append(o.parts, outcome)
}

func (o *recordingObserver) RunFinished(r Report) { o.runs = append(o.runs, r) }

type failingEncoder struct{}

func (failingEncoder) Encode(io.Writer, []measurement.Measurement) error {
	return errors.New("encode failed")
}

func newUploader(t *testing.T, s Store, c Client, opts ...Option) *Uploader {
	t.Helper()
	u, err := New(s, c, opts...)
	require.NoError(t, err)
	return u
}

func TestRunUploadsEverythingInParts(t *testing.T) {
	s := newMemStore(1000)
	c := &scriptedClient{}
	obs := &recordingObserver{}
	var progress [][2]int

	u := newUploader(t, s, c,
		WithPartSize(400),
		WithObserver(obs),
		WithProgress(func(part, parts int) { progress = append(progress, [2]int{part, parts}) }),
	)
	rep := u.Run(context.Background())

	assert.Equal(t, ResultSuccess, rep.Result)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
	assert.Equal(t, []int{400, 400, 200}, s.Fetches())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 3, rep.PartsCount)
	assert.Equal(t, 3, rep.AttemptedParts)
	assert.Equal(t, 3, rep.SucceededParts)
	assert.Equal(t, 1000, rep.Uploaded)
	assert.Equal(t, measurement.Statistics{Locations: 1000, Cells: 1000, Days: 1}, rep.Statistics)
	assert.NotEmpty(t, rep.RunID)
	assert.Len(t, obs.parts, 3)
	require.Len(t, obs.runs, 1)
	assert.Equal(t, ResultSuccess, obs.runs[0].Result)

	_, running := u.Progress()
	assert.False(t, running)
}

func TestRunSecondPassHasNoData(t *testing.T) {
	s := newMemStore(10)
	c := &scriptedClient{}
	u := newUploader(t, s, c)

	require.Equal(t, ResultSuccess, u.Run(context.Background()).Result)
	callsAfterFirst := c.Calls()

	rep := u.Run(context.Background())
	assert.Equal(t, ResultNoData, rep.Result)
	assert.Equal(t, callsAfterFirst, c.Calls())
	assert.Zero(t, rep.PartsCount)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	s := newMemStore(10)
	c := &scriptedClient{}
	u := newUploader(t, s, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := u.Run(ctx)

	assert.Equal(t, ResultCancelled, rep.Result)
	assert.Zero(t, c.Calls())
	assert.Zero(t, s.deletes)
	assert.Equal(t, 10, s.Len())
	assert.Zero(t, rep.AttemptedParts)
}

func TestRunStopsOnServerErrorAfterPartialSuccess(t *testing.T) {
	s := newMemStore(2000)
	c := &scriptedClient{outcomes: []Outcome{OutcomeSuccess, OutcomeSuccess, OutcomeServerError}}
	u := newUploader(t, s, c, WithPartSize(400))

	rep := u.Run(context.Background())

	assert.Equal(t, ResultPartiallySucceeded, rep.Result)
	assert.Equal(t, 5, rep.PartsCount)
	assert.Equal(t, 3, rep.AttemptedParts)
	assert.Equal(t, 2, rep.SucceededParts)
	assert.Equal(t, 800, rep.Uploaded)
	assert.Equal(t, 1200, s.Len())
	assert.Equal(t, []int{400, 400, 400}, s.Fetches(), "parts 4 and 5 are never fetched")
	assert.Equal(t, 2, s.deletes)
	assert.Equal(t, 3, c.Calls())
}

func TestRunBacklogShrinksDuringRun(t *testing.T) {
	s := newMemStore(1000)
	// Another writer removes everything but the part in flight.
	c := &scriptedClient{onCall: func(call int) {
		if call == 1 {
			s.Truncate(400)
		}
	}}
	var progress [][2]int
	u := newUploader(t, s, c,
		WithPartSize(400),
		WithProgress(func(part, parts int) { progress = append(progress, [2]int{part, parts}) }),
	)

	rep := u.Run(context.Background())

	assert.Equal(t, ResultSuccess, rep.Result)
	assert.Equal(t, 3, rep.PartsCount)
	assert.Equal(t, 1, rep.AttemptedParts, "an empty fetch is not an attempted part")
	assert.Equal(t, 1, rep.SucceededParts)
	assert.Equal(t, 400, rep.Uploaded)
	assert.Equal(t, [][2]int{{1, 3}}, progress)
	assert.Equal(t, []int{400, 0}, s.Fetches())
	assert.Equal(t, 1, c.Calls())
	assert.Zero(t, s.Len())
}

func TestRunTerminalOutcomeOnFirstPart(t *testing.T) {
	for _, outcome := range Outcomes() {
		if outcome == OutcomeSuccess {
			continue
		}
		t.Run(outcome.String(), func(t *testing.T) {
			s := newMemStore(900)
			c := &scriptedClient{outcomes: []Outcome{outcome}}
			u := newUploader(t, s, c, WithPartSize(400))

			rep := u.Run(context.Background())
			assert.Equal(t, ResultOf(outcome), rep.Result)
			assert.Equal(t, 900, s.Len())
			assert.Equal(t, 1, c.Calls())
			assert.Zero(t, s.deletes)
			assert.True(t, rep.Statistics.IsZero())
		})
	}
}

func TestRunDeleteFailedWins(t *testing.T) {
	t.Run("zero rows deleted", func(t *testing.T) {
		s := newMemStore(1000)
		s.deleteNone = true
		s.failDelete = 2
		c := &scriptedClient{}
		u := newUploader(t, s, c, WithPartSize(400))

		rep := u.Run(context.Background())
		assert.Equal(t, ResultDeleteFailed, rep.Result)
		assert.Equal(t, 2, c.Calls(), "run stops right after the failed deletion")
		assert.Equal(t, 2, rep.SucceededParts)
		assert.Equal(t, 600, s.Len())
	})

	t.Run("delete error", func(t *testing.T) {
		s := newMemStore(10)
		s.deleteErr = errors.New("disk I/O error")
		c := &scriptedClient{}
		rec := &diagnostics.Recorder{}
		u := newUploader(t, s, c, WithReporter(rec))

		rep := u.Run(context.Background())
		assert.Equal(t, ResultDeleteFailed, rep.Result)
		assert.Len(t, rec.Errors(), 1)
	})
}

func TestRunCancelDuringPartFinishesThatPart(t *testing.T) {
	s := newMemStore(1000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &scriptedClient{onCall: func(call int) {
		if call == 1 {
			cancel()
		}
	}}
	u := newUploader(t, s, c, WithPartSize(400))

	rep := u.Run(ctx)
	assert.Equal(t, ResultPartiallySucceeded, rep.Result)
	assert.Equal(t, 1, c.Calls())
	assert.Equal(t, 1, s.deletes)
	assert.Equal(t, 600, s.Len())
	assert.Equal(t, 400, rep.Uploaded)
}

func TestRunRespectsSnapshotBoundary(t *testing.T) {
	s := newMemStore(500)
	c := &scriptedClient{onCall: func(call int) {
		if call == 1 {
			s.Add(epoch.Add(24 * time.Hour))
		}
	}}
	u := newUploader(t, s, c, WithPartSize(400))

	rep := u.Run(context.Background())
	assert.Equal(t, ResultSuccess, rep.Result)
	assert.Equal(t, 500, rep.Uploaded)
	assert.Equal(t, []int{400, 100}, s.Fetches())
	assert.Equal(t, 1, s.Len(), "measurement recorded during the run stays pending")
}

func TestRunStoreAndEncoderFailures(t *testing.T) {
	t.Run("count", func(t *testing.T) {
		s := newMemStore(5)
		s.countErr = errors.New("database is locked")
		rec := &diagnostics.Recorder{}
		rep := newUploader(t, s, &scriptedClient{}, WithReporter(rec)).Run(context.Background())
		assert.Equal(t, ResultFailure, rep.Result)
		assert.Len(t, rec.Errors(), 1)
	})

	t.Run("fetch", func(t *testing.T) {
		s := newMemStore(5)
		s.fetchErr = errors.New("no such table")
		c := &scriptedClient{}
		rep := newUploader(t, s, c).Run(context.Background())
		assert.Equal(t, ResultFailure, rep.Result)
		assert.Zero(t, c.Calls())
	})

	t.Run("encode", func(t *testing.T) {
		s := newMemStore(5)
		c := &scriptedClient{}
		rep := newUploader(t, s, c, WithEncoder(failingEncoder{})).Run(context.Background())
		assert.Equal(t, ResultFailure, rep.Result)
		assert.Zero(t, c.Calls())
		assert.Equal(t, 5, s.Len())
	})

	t.Run("empty store", func(t *testing.T) {
		rep := newUploader(t, newMemStore(0), &scriptedClient{}).Run(context.Background())
		assert.Equal(t, ResultNoData, rep.Result)
	})
}

func TestNewValidatesPartSize(t *testing.T) {
	_, err := New(newMemStore(1), &scriptedClient{}, WithPartSize(0))
	require.Error(t, err)
	_, err = New(newMemStore(1), &scriptedClient{}, WithPartSize(1001))
	require.Error(t, err)
	_, err = New(nil, &scriptedClient{})
	require.Error(t, err)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name      string
		stop      Result
		stopped   bool
		succeeded int
		want      Result
	}{
		{"completed", ResultSuccess, false, 3, ResultSuccess},
		{"delete failed first part", ResultDeleteFailed, true, 1, ResultDeleteFailed},
		{"delete failed later part", ResultDeleteFailed, true, 4, ResultDeleteFailed},
		{"cancelled before any part", ResultCancelled, true, 0, ResultCancelled},
		{"cancelled after parts", ResultCancelled, true, 2, ResultPartiallySucceeded},
		{"server error first part", ResultServerError, true, 0, ResultServerError},
		{"invalid key after parts", ResultInvalidAPIKey, true, 1, ResultPartiallySucceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, aggregate(tt.stop, tt.stopped, tt.succeeded))
		})
	}
}
