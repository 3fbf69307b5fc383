package metrics

import (
	"sdwan-overlay/internal/dataplane"
	"sdwan-overlay/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusMetrics struct {
	// Path health metrics
	PathHealthScore *prometheus.GaugeVec
	PathLatency     *prometheus.GaugeVec
	PathPacketLoss  *prometheus.GaugeVec
	PathJitter      *prometheus.GaugeVec
	PathStatus      *prometheus.GaugeVec
	HealthChecks    *prometheus.CounterVec

	// Routing metrics
	Failovers     prometheus.Counter
	FlowsSelected *prometheus.CounterVec
	FlowsDenied   prometheus.Counter

	// Data plane metrics
	PacketsForwarded prometheus.Gauge
	BytesForwarded   prometheus.Gauge
	PacketsDropped   prometheus.Gauge
	PacketsReceived  prometheus.Gauge
	BytesReceived    prometheus.Gauge

	PacketsCompressed prometheus.Gauge
	CompressionRatio  prometheus.Gauge
}

func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		PathHealthScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sdwan_path_health_score",
				Help: "Current health score per path (0-100)",
			},
			[]string{"path_id"},
		),

		PathLatency: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sdwan_path_latency_ms",
				Help: "Current measured latency per path in milliseconds",
			},
			[]string{"path_id"},
		),

		PathPacketLoss: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sdwan_path_packet_loss_pct",
				Help: "Current packet loss per path in percent",
			},
			[]string{"path_id"},
		),

		PathJitter: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sdwan_path_jitter_ms",
				Help: "Current jitter per path in milliseconds",
			},
			[]string{"path_id"},
		),

		PathStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sdwan_path_status",
				Help: "Path status (0 down, 1 degraded, 2 up)",
			},
			[]string{"path_id"},
		),

		HealthChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sdwan_health_checks_total",
				Help: "Total health checks performed per path",
			},
			[]string{"path_id"},
		),

		Failovers: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sdwan_failovers_total",
				Help: "Total flow failovers between paths",
			},
		),

		FlowsSelected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sdwan_flows_selected_total",
				Help: "Total path selections per path",
			},
			[]string{"path_id"},
		),

		FlowsDenied: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sdwan_flows_denied_total",
				Help: "Total flows denied by admission control",
			},
		),

		PacketsForwarded: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sdwan_packets_forwarded",
				Help: "Packets forwarded by the data plane",
			},
		),

		BytesForwarded: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sdwan_bytes_forwarded",
				Help: "Bytes forwarded by the data plane",
			},
		),

		PacketsDropped: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sdwan_packets_dropped",
				Help: "Packets dropped by the data plane",
			},
		),

		PacketsReceived: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sdwan_packets_received",
				Help: "Packets received by the data plane",
			},
		),

		BytesReceived: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sdwan_bytes_received",
				Help: "Bytes received by the data plane",
			},
		),

		PacketsCompressed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sdwan_packets_compressed",
				Help: "Packets sent compressed by the data plane",
			},
		),

		CompressionRatio: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sdwan_compression_ratio",
				Help: "Compressed bytes out over bytes in for compressed packets",
			},
		),
	}
}

// RecordHealth exports one path health update
func (m *PrometheusMetrics) RecordHealth(h model.PathHealth) {
	id := h.PathID.String()
	m.PathHealthScore.WithLabelValues(id).Set(h.HealthScore)
	m.PathLatency.WithLabelValues(id).Set(h.LatencyMs)
	m.PathPacketLoss.WithLabelValues(id).Set(h.PacketLossPct)
	m.PathJitter.WithLabelValues(id).Set(h.JitterMs)

	status := 0.0
	switch h.Status {
	case model.StatusUp:
		status = 2
	case model.StatusDegraded:
		status = 1
	}
	m.PathStatus.WithLabelValues(id).Set(status)
	m.HealthChecks.WithLabelValues(id).Inc()
}

// RecordFailover counts one flow failover
func (m *PrometheusMetrics) RecordFailover(from, to model.PathID) {
	m.Failovers.Inc()
}

// RecordSelection counts one path selection
func (m *PrometheusMetrics) RecordSelection(path model.PathID) {
	m.FlowsSelected.WithLabelValues(path.String()).Inc()
}

// RecordDenied counts one admission denial
func (m *PrometheusMetrics) RecordDenied() {
	m.FlowsDenied.Inc()
}

// UpdateDataPlane exports the data plane counter snapshot
func (m *PrometheusMetrics) UpdateDataPlane(s dataplane.Stats) {
	m.PacketsForwarded.Set(float64(s.PacketsForwarded))
	m.BytesForwarded.Set(float64(s.BytesForwarded))
	m.PacketsDropped.Set(float64(s.PacketsDropped))
	m.PacketsReceived.Set(float64(s.PacketsReceived))
	m.BytesReceived.Set(float64(s.BytesReceived))
	m.PacketsCompressed.Set(float64(s.PacketsCompressed))
	if s.BytesBeforeComp > 0 {
		m.CompressionRatio.Set(float64(s.BytesAfterComp) / float64(s.BytesBeforeComp))
	}
}
