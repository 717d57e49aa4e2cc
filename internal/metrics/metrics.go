// Package metrics exposes Prometheus collectors for upload runs, exports and
// reported errors.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rshade/towercollector/internal/upload"
)

const namespace = "towercollector"

// Metrics holds the collectors. It implements upload.Observer and
// diagnostics.Reporter.
type Metrics struct {
	reg prometheus.Registerer

	uploadRuns      *prometheus.CounterVec
	uploadParts     *prometheus.CounterVec
	uploadedTotal   prometheus.Counter
	partDuration    prometheus.Histogram
	exportRuns      *prometheus.CounterVec
	diagnosticsSent prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		reg: reg,
		uploadRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_runs_total",
			Help:      "Upload runs by aggregate result.",
		}, []string{"result"}),
		uploadParts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_parts_total",
			Help:      "Uploaded parts by outcome.",
		}, []string{"outcome"}),
		uploadedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_measurements_total",
			Help:      "Measurements accepted by OpenCellID.",
		}),
		partDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_part_duration_seconds",
			Help:      "Duration of a single part upload request.",
			Buckets:   prometheus.DefBuckets,
		}),
		exportRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_runs_total",
			Help:      "Export runs by format and status.",
		}, []string{"format", "status"}),
		diagnosticsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_reported_total",
			Help:      "Unexpected errors sent to the diagnostics sink.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.uploadRuns, m.uploadParts, m.uploadedTotal, m.partDuration, m.exportRuns, m.diagnosticsSent,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	// Pre-create label values so dashboards see zeroes before the first run.
	for _, r := range upload.Results() {
		m.uploadRuns.WithLabelValues(r.String())
	}
	for _, o := range upload.Outcomes() {
		m.uploadParts.WithLabelValues(o.String())
	}
	return m, nil
}

// RegisterPending exposes the backlog size, read from count on every scrape.
// Scrapes that fail to read the count report -1.
func (m *Metrics) RegisterPending(count func(ctx context.Context) (int, error)) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_measurements",
		Help:      "Measurements waiting to be uploaded.",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := count(ctx)
		if err != nil {
			return -1
		}
		return float64(n)
	})
	if err := m.reg.Register(g); err != nil {
		return fmt.Errorf("registering pending gauge: %w", err)
	}
	return nil
}

// PartFinished records one uploaded part.
func (m *Metrics) PartFinished(outcome upload.Outcome, measurements int, elapsed time.Duration) {
	m.uploadParts.WithLabelValues(outcome.String()).Inc()
	m.partDuration.Observe(elapsed.Seconds())
	if outcome == upload.OutcomeSuccess {
		m.uploadedTotal.Add(float64(measurements))
	}
}

// RunFinished records one upload run.
func (m *Metrics) RunFinished(report upload.Report) {
	m.uploadRuns.WithLabelValues(report.Result.String()).Inc()
}

// ExportFinished records one export run.
func (m *Metrics) ExportFinished(format, status string) {
	m.exportRuns.WithLabelValues(format, status).Inc()
}

// Report counts an error sent to the diagnostics sink.
func (m *Metrics) Report(context.Context, error) {
	m.diagnosticsSent.Inc()
}
