package metrics

import (
	"strings"
	"testing"

	"sdwan-overlay/internal/dataplane"
	"sdwan-overlay/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// promauto registers on the default registry, so the test metrics are
// built once for the whole package.
var testMetrics = NewPrometheusMetrics()

func TestDataPlaneSnapshotsExportAsGauges(t *testing.T) {
	testMetrics.UpdateDataPlane(dataplane.Stats{
		PacketsForwarded: 3,
		BytesForwarded:   4096,
	})

	expected := `
# HELP sdwan_packets_forwarded Packets forwarded by the data plane
# TYPE sdwan_packets_forwarded gauge
sdwan_packets_forwarded 3
`
	require.NoError(t, testutil.CollectAndCompare(testMetrics.PacketsForwarded, strings.NewReader(expected)))

	expected = `
# HELP sdwan_bytes_forwarded Bytes forwarded by the data plane
# TYPE sdwan_bytes_forwarded gauge
sdwan_bytes_forwarded 4096
`
	require.NoError(t, testutil.CollectAndCompare(testMetrics.BytesForwarded, strings.NewReader(expected)))
}

func TestCompressionRatioGauge(t *testing.T) {
	testMetrics.UpdateDataPlane(dataplane.Stats{
		PacketsCompressed: 2,
		BytesBeforeComp:   1000,
		BytesAfterComp:    250,
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(testMetrics.PacketsCompressed))
	assert.Equal(t, 0.25, testutil.ToFloat64(testMetrics.CompressionRatio))
}

func TestRecordHealthExportsPathSeries(t *testing.T) {
	testMetrics.RecordHealth(model.PathHealth{
		PathID:      7,
		LatencyMs:   12,
		HealthScore: 90,
		Status:      model.StatusUp,
	})

	assert.Equal(t, 90.0, testutil.ToFloat64(testMetrics.PathHealthScore.WithLabelValues("7")))
	assert.Equal(t, 2.0, testutil.ToFloat64(testMetrics.PathStatus.WithLabelValues("7")))
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.HealthChecks.WithLabelValues("7")))
}
