package defs

import (
	"time"
)

var (
	// InputReadChunkBytes defines the size of a single read from a client socket
	//
	// Fragments are accumulated from chunks of this size until an end tag is seen
	InputReadChunkBytes = 4 * 1024

	// InputReadTimeout defines how long a connection may stay silent before its pending
	// fragment data is dropped and the connection is closed
	//
	// A peer that stops sending without closing must not pin a connection slot forever
	InputReadTimeout = 30 * time.Second

	// InputShutDownGracePeriod defines how long established connections may keep running
	// after a stop request before their sockets are closed forcibly
	InputShutDownGracePeriod = 5 * time.Second

	// RateGateSweepInterval defines how often stale per-source rate entries are evicted
	//
	// Entries are also reset lazily on access; the sweep only bounds memory for sources
	// that went away
	RateGateSweepInterval = 2 * time.Minute

	// RotatorCheckInterval defines how often the rotator examines its trigger conditions
	//
	// It must be short enough for oversized bursts to rotate promptly; both the size and
	// the time trigger are evaluated on every tick
	RotatorCheckInterval = 10 * time.Second

	// UploadQueueSize defines the max number of sealed batches waiting for upload
	//
	// Rotation hands off sealed batches through a channel of this size so a slow or
	// retrying upload does not stall the buffer swap path
	UploadQueueSize = 100

	// UploaderShutDownTimeout is the duration to wait for the uploader to resolve
	// pending tasks when shutting down; leftovers are spilled to disk
	UploaderShutDownTimeout = 30 * time.Second
)

// For testing and experiments
const (
	TestReadTimeout = 5 * time.Second
)

// EnableTestMode turns on test mode with very short timeouts and minimal retry delay
func EnableTestMode() {
	InputReadTimeout = 1 * time.Second
	InputShutDownGracePeriod = 500 * time.Millisecond
	RotatorCheckInterval = 100 * time.Millisecond
	UploaderShutDownTimeout = 3 * time.Second
}
