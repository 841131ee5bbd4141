// Package metrics defines the Sink the rest of the engine reports through,
// plus a Prometheus-backed implementation and a no-op default.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Sink receives counters from the orchestrator, including the count of
// rows probed during reverification. It exists
// as an interface so tests and the no-flags CLI don't have to stand up a
// real Prometheus registry to exercise the rest of the engine.
type Sink interface {
	BatchProcessed(schema, table string)
	BatchErrored(schema, table string)
	MismatchesFound(schema, table string, n int)
	RowsReverified(schema, table string, n int)
}

// NoopSink discards every observation. It is the default when metrics are
// not wired up by the caller.
type NoopSink struct{}

func (NoopSink) BatchProcessed(string, string)       {}
func (NoopSink) BatchErrored(string, string)         {}
func (NoopSink) MismatchesFound(string, string, int) {}
func (NoopSink) RowsReverified(string, string, int)   {}

// PrometheusSink registers and updates a small set of counters labeled by
// schema and table.
type PrometheusSink struct {
	batchesProcessed *prometheus.CounterVec
	batchesErrored   *prometheus.CounterVec
	mismatchesFound  *prometheus.CounterVec
	rowsReverified   *prometheus.CounterVec
}

// NewPrometheusSink creates and registers the counters against reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		batchesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbsentinel",
			Name:      "batches_processed_total",
			Help:      "Number of batches completed successfully, by table.",
		}, []string{"schema", "table"}),
		batchesErrored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbsentinel",
			Name:      "batches_errored_total",
			Help:      "Number of batches that failed, by table.",
		}, []string{"schema", "table"}),
		mismatchesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbsentinel",
			Name:      "mismatches_found_total",
			Help:      "Number of mismatched rows found, by table.",
		}, []string{"schema", "table"}),
		rowsReverified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbsentinel",
			Name:      "rows_reverified_total",
			Help:      "Number of rows probed during post-aggregation reverification, by table.",
		}, []string{"schema", "table"}),
	}
	reg.MustRegister(s.batchesProcessed, s.batchesErrored, s.mismatchesFound, s.rowsReverified)
	return s
}

func (s *PrometheusSink) BatchProcessed(schema, table string) {
	s.batchesProcessed.WithLabelValues(schema, table).Inc()
}

func (s *PrometheusSink) BatchErrored(schema, table string) {
	s.batchesErrored.WithLabelValues(schema, table).Inc()
}

func (s *PrometheusSink) MismatchesFound(schema, table string, n int) {
	s.mismatchesFound.WithLabelValues(schema, table).Add(float64(n))
}

func (s *PrometheusSink) RowsReverified(schema, table string, n int) {
	s.rowsReverified.WithLabelValues(schema, table).Add(float64(n))
}
