package admission

import (
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

// slotMetrics tracks connection slot usage and rejections
type slotMetrics struct {
	activeConnections        promext.RWGauge
	acceptedConnectionsTotal promext.RWCounter
	rejectedConnectionsTotal promext.RWCounter
}

func newSlotMetrics(metricCreator promreg.MetricCreator) slotMetrics {
	admissionMetricCreator := metricCreator.AddOrGetPrefix("admission_", nil, nil)

	metrics := slotMetrics{
		activeConnections:        admissionMetricCreator.AddOrGetGauge("active_connections", "Number of currently held connection slots", nil, nil),
		acceptedConnectionsTotal: admissionMetricCreator.AddOrGetCounter("accepted_connections_total", "Numbers of accepted connections", nil, nil),
		rejectedConnectionsTotal: admissionMetricCreator.AddOrGetCounter("rejected_connections_total", "Numbers of connections rejected due to the connection cap", nil, nil),
	}
	metrics.activeConnections.Set(0)

	return metrics
}

func (metrics *slotMetrics) OnAcquired() {
	metrics.acceptedConnectionsTotal.Inc()
	metrics.activeConnections.Inc()
}

func (metrics *slotMetrics) OnRejected() {
	metrics.rejectedConnectionsTotal.Inc()
}

func (metrics *slotMetrics) OnReleased() {
	metrics.activeConnections.Dec()
}

// gateMetrics tracks per-source rate limiting
type gateMetrics struct {
	admittedEventsTotal promext.RWCounter
	limitedEventsTotal  promext.RWCounter
	trackedSources      promext.RWGauge
}

func newGateMetrics(metricCreator promreg.MetricCreator) gateMetrics {
	gateMetricCreator := metricCreator.AddOrGetPrefix("rategate_", nil, nil)

	metrics := gateMetrics{
		admittedEventsTotal: gateMetricCreator.AddOrGetCounter("admitted_events_total", "Numbers of events admitted by the rate gate", nil, nil),
		limitedEventsTotal:  gateMetricCreator.AddOrGetCounter("limited_events_total", "Numbers of events rejected due to per-source rate limits", nil, nil),
		trackedSources:      gateMetricCreator.AddOrGetGauge("tracked_sources", "Number of source addresses currently tracked", nil, nil),
	}
	metrics.trackedSources.Set(0)

	return metrics
}
