package s3output

import (
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

type uploaderMetrics struct {
	uploadedBatchesTotal  promext.RWCounter
	uploadedBytesTotal    promext.RWCounter
	abandonedBatchesTotal promext.RWCounter
	leftoverBatchesTotal  promext.RWCounter
	failedAttemptsTotal   map[errorClass]promext.RWCounter
}

func newUploaderMetrics(metricCreator promreg.MetricCreator) uploaderMetrics {
	creator := metricCreator.AddOrGetPrefix("uploader_", nil, nil)
	failedAttempts := creator.AddOrGetCounterVec("failed_attempts_total", "Numbers of failed storage calls", []string{"class"}, nil)

	return uploaderMetrics{
		uploadedBatchesTotal:  creator.AddOrGetCounter("uploaded_batches_total", "Numbers of batches uploaded to storage", nil, nil),
		uploadedBytesTotal:    creator.AddOrGetCounter("uploaded_bytes_total", "Numbers of batch bytes uploaded to storage", nil, nil),
		abandonedBatchesTotal: creator.AddOrGetCounter("abandoned_batches_total", "Numbers of batches abandoned after exhausting attempts", nil, nil),
		leftoverBatchesTotal:  creator.AddOrGetCounter("leftover_batches_total", "Numbers of batches left unattempted at shutdown", nil, nil),
		failedAttemptsTotal: map[errorClass]promext.RWCounter{
			errorClassAuth:     failedAttempts.WithLabelValues("auth"),
			errorClassThrottle: failedAttempts.WithLabelValues("throttle"),
			errorClassOther:    failedAttempts.WithLabelValues("other"),
		},
	}
}

func (metrics *uploaderMetrics) OnUploaded(numBytes int) {
	metrics.uploadedBatchesTotal.Inc()
	metrics.uploadedBytesTotal.Add(uint64(numBytes))
}

func (metrics *uploaderMetrics) OnFailedAttempt(class errorClass) {
	metrics.failedAttemptsTotal[class].Inc()
}

func (metrics *uploaderMetrics) OnAbandoned() {
	metrics.abandonedBatchesTotal.Inc()
}

func (metrics *uploaderMetrics) OnLeftover() {
	metrics.leftoverBatchesTotal.Inc()
}
