package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("bulk_import").End(nil))
	running := m.Track("bulk_import")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight.WithLabelValues("bulk_import")))
	boom := errors.New("boom")
	assert.ErrorIs(t, running.End(boom), boom)
	assert.Zero(t, testutil.ToFloat64(m.inFlight.WithLabelValues("bulk_import")))
	m.Skip("bulk_import", "locked")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("bulk_import", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("bulk_import", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("bulk_import")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues("bulk_import", "locked")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("bulk_import").End(boom), boom)
	assert.NotPanics(t, func() { m.Skip("bulk_import", "locked") })
}
