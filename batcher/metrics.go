package batcher

import (
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

// rotatorMetrics tracks batch rotations by trigger
type rotatorMetrics struct {
	rotationsBySize       promext.RWCounter
	rotationsByTime       promext.RWCounter
	rotationsByShutdown   promext.RWCounter
	rotatedFragmentsTotal promext.RWCounter
	rotatedBytesTotal     promext.RWCounter
	formatErrorsTotal     promext.RWCounter
}

func newRotatorMetrics(metricCreator promreg.MetricCreator) rotatorMetrics {
	rotatorMetricCreator := metricCreator.AddOrGetPrefix("rotator_", nil, nil)
	rotations := rotatorMetricCreator.AddOrGetCounterVec("rotations_total", "Numbers of batch rotations", []string{"trigger"}, nil)

	return rotatorMetrics{
		rotationsBySize:       rotations.WithLabelValues("size"),
		rotationsByTime:       rotations.WithLabelValues("time"),
		rotationsByShutdown:   rotations.WithLabelValues("shutdown"),
		rotatedFragmentsTotal: rotatorMetricCreator.AddOrGetCounter("rotated_fragments_total", "Numbers of fragments sealed into batches", nil, nil),
		rotatedBytesTotal:     rotatorMetricCreator.AddOrGetCounter("rotated_bytes_total", "Total unframed bytes sealed into batches", nil, nil),
		formatErrorsTotal:     rotatorMetricCreator.AddOrGetCounter("format_errors_total", "Numbers of formatter failures falling back to raw upload", nil, nil),
	}
}

func (metrics *rotatorMetrics) OnRotated(trigger string, numFragments int, numBytes int) {
	switch trigger {
	case "size":
		metrics.rotationsBySize.Inc()
	case "time":
		metrics.rotationsByTime.Inc()
	default:
		metrics.rotationsByShutdown.Inc()
	}
	metrics.rotatedFragmentsTotal.Add(uint64(numFragments))
	metrics.rotatedBytesTotal.Add(uint64(numBytes))
}

func (metrics *rotatorMetrics) OnFormatError() {
	metrics.formatErrorsTotal.Inc()
}
