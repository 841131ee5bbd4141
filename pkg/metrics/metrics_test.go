package metrics

import (
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func TestPrometheusSinkCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.BatchProcessed("s", "t")
	sink.BatchProcessed("s", "t")
	sink.BatchErrored("s", "t")
	sink.MismatchesFound("s", "t", 3)
	sink.RowsReverified("s", "t", 5)

	assert.Equal(t, float64(2), testutil.ToFloat64(sink.batchesProcessed.WithLabelValues("s", "t")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.batchesErrored.WithLabelValues("s", "t")))
	assert.Equal(t, float64(3), testutil.ToFloat64(sink.mismatchesFound.WithLabelValues("s", "t")))
	assert.Equal(t, float64(5), testutil.ToFloat64(sink.rowsReverified.WithLabelValues("s", "t")))
}

func TestNoopSinkDoesNotPanic(t *testing.T) {
	var sink NoopSink
	sink.BatchProcessed("s", "t")
	sink.BatchErrored("s", "t")
	sink.MismatchesFound("s", "t", 1)
	sink.RowsReverified("s", "t", 1)
}
