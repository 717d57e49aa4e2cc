package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/towercollector/internal/upload"
)

func TestObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.PartFinished(upload.OutcomeSuccess, 400, 200*time.Millisecond)
	m.PartFinished(upload.OutcomeSuccess, 100, 100*time.Millisecond)
	m.PartFinished(upload.OutcomeServerError, 400, time.Second)
	m.RunFinished(upload.Report{Result: upload.ResultPartiallySucceeded})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.uploadParts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadParts.WithLabelValues("server_error")))
	assert.Equal(t, 500.0, testutil.ToFloat64(m.uploadedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadRuns.WithLabelValues("partially_succeeded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.uploadRuns.WithLabelValues("success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.partDuration))
}

func TestExportAndDiagnostics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ExportFinished("gpx", "succeeded")
	m.Report(context.Background(), errors.New("boom"))
	m.Report(context.Background(), errors.New("boom"))

	expected := `
# HELP towercollector_export_runs_total Export runs by format and status.
# TYPE towercollector_export_runs_total counter
towercollector_export_runs_total{format="gpx",status="succeeded"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "towercollector_export_runs_total"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.diagnosticsSent))
}

func TestRegisterPending(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	n := 42
	var countErr error
	require.NoError(t, m.RegisterPending(func(context.Context) (int, error) { return n, countErr }))

	expected := `
# HELP towercollector_pending_measurements Measurements waiting to be uploaded.
# TYPE towercollector_pending_measurements gauge
towercollector_pending_measurements 42
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "towercollector_pending_measurements"))

	countErr = errors.New("locked")
	expected = strings.Replace(expected, " 42", " -1", 1)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "towercollector_pending_measurements"))
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}
