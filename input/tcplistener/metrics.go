package tcplistener

import (
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

type listenerMetrics struct {
	receivedFragmentsTotal promext.RWCounter
	receivedBytesTotal     promext.RWCounter
	oversizedConnsTotal    promext.RWCounter
}

func newListenerMetrics(metricCreator promreg.MetricCreator) listenerMetrics {
	creator := metricCreator.AddOrGetPrefix("input_", nil, nil)
	return listenerMetrics{
		receivedFragmentsTotal: creator.AddOrGetCounter("received_fragments_total", "Numbers of event fragments received from all connections", nil, nil),
		receivedBytesTotal:     creator.AddOrGetCounter("received_bytes_total", "Numbers of fragment bytes received from all connections", nil, nil),
		oversizedConnsTotal:    creator.AddOrGetCounter("oversized_connections_total", "Numbers of connections dropped for exceeding the message size limit", nil, nil),
	}
}

func (metrics *listenerMetrics) OnFragment(length int) {
	metrics.receivedFragmentsTotal.Inc()
	metrics.receivedBytesTotal.Add(uint64(length))
}

func (metrics *listenerMetrics) OnOversized() {
	metrics.oversizedConnsTotal.Inc()
}
