package base

import (
	"github.com/relex/gotils/channels"
)

// PipelineWorker represents a background worker in a stage of the ingestion pipeline, e.g. a listener or uploader
type PipelineWorker interface {
	Start()
	Stopped() channels.Awaitable
}
