package batcher

import (
	"bytes"
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/klauspost/compress/gzip"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/xevent-aggregator/base"
	"github.com/relex/xevent-aggregator/defs"
)

// RotatorConfig defines the rotation section in config file
type RotatorConfig struct {
	Interval     time.Duration     `yaml:"interval"`     // time trigger, elapsed since the last rotation
	MaxBatchSize datasize.ByteSize `yaml:"maxBatchSize"` // size trigger on the open batch
	Compress     bool              `yaml:"compress"`     // gzip batches before upload
}

// VerifyConfig checks configuration
func (cfg *RotatorConfig) VerifyConfig() error {
	if cfg.Interval <= 0 {
		return fmt.Errorf(".interval is unspecified")
	}
	if cfg.MaxBatchSize.Bytes() == 0 {
		return fmt.Errorf(".maxBatchSize is unspecified")
	}
	return nil
}

// Rotator periodically seals the open batch into upload tasks
//
// Two trigger conditions are checked on every tick: batch size reaching the max, or
// elapsed time since the last rotation reaching the interval. Either one alone causes
// a rotation attempt; the timer resets relative to the last rotation attempt, not to a
// fixed clock boundary.
//
// Rotation and upload are decoupled through the task channel: a slow or retrying upload
// never stalls the append buffer swap path.
type Rotator struct {
	logger       logger.Logger
	interval     time.Duration
	maxBatchSize int
	compress     bool
	buffer       *AppendBuffer
	formatter    base.BatchFormatter // nil for raw XML output
	keys         *KeyMaker
	outChannel   chan<- base.UploadTask
	outClosed    *channels.SignalAwaitable
	metrics      rotatorMetrics
	stopRequest  channels.Awaitable
	stopped      *channels.SignalAwaitable
}

// NewRotator creates a Rotator sealing batches from the given buffer into the task channel
//
// The formatter may be nil to upload raw framed XML. The task channel is closed and
// outClosed signaled after the final rotation on shutdown.
func NewRotator(parentLogger logger.Logger, cfg RotatorConfig, buffer *AppendBuffer, formatter base.BatchFormatter,
	keys *KeyMaker, outChannel chan<- base.UploadTask, outClosed *channels.SignalAwaitable,
	metricCreator promreg.MetricCreator, stopRequest channels.Awaitable) *Rotator {

	return &Rotator{
		logger:       parentLogger.WithField(defs.LabelComponent, "Rotator"),
		interval:     cfg.Interval,
		maxBatchSize: int(cfg.MaxBatchSize.Bytes()),
		compress:     cfg.Compress,
		buffer:       buffer,
		formatter:    formatter,
		keys:         keys,
		outChannel:   outChannel,
		outClosed:    outClosed,
		metrics:      newRotatorMetrics(metricCreator),
		stopRequest:  stopRequest,
		stopped:      channels.NewSignalAwaitable(),
	}
}

// Start launches the trigger-check loop
func (rot *Rotator) Start() {
	go rot.run()
}

// Stopped returns an Awaitable which is signaled when the final rotation has been handed off
func (rot *Rotator) Stopped() channels.Awaitable {
	return rot.stopped
}

func (rot *Rotator) run() {
	defer rot.stopped.Signal()
	rot.logger.Info("started")

	lastRotation := time.Now()
	for {
		if rot.stopRequest.Wait(defs.RotatorCheckInterval) {
			break
		}

		var trigger string
		switch {
		case rot.buffer.Len() >= rot.maxBatchSize:
			trigger = "size"
		case time.Since(lastRotation) >= rot.interval:
			trigger = "time"
		default:
			continue
		}

		rot.rotate(trigger)
		lastRotation = time.Now()
	}

	// final forced rotation to flush buffered data before the uploader drains
	rot.rotate("shutdown")
	close(rot.outChannel)
	rot.outClosed.Signal()
	rot.logger.Info("stopped")
}

// rotate seals the open batch and hands it off for upload; empty buffer is a no-op
func (rot *Rotator) rotate(trigger string) {
	captured, numFragments := rot.buffer.Swap()
	if captured == nil {
		rot.logger.Debugf("skip rotation of empty buffer (%s)", trigger)
		return
	}

	// all slower work below happens on the captured copy, outside the buffer lock
	sealedAt := time.Now().UTC()
	framed := frameBatch(captured)

	data := framed
	extension := "xml"
	contentType := "application/xml"
	if rot.formatter != nil {
		converted, convertedExt, ferr := rot.formatter.Format(framed)
		if ferr != nil {
			// formatting errors fall back to the raw framed batch, never to data loss
			rot.logger.Errorf("formatter failed, uploading raw batch: %s", ferr.Error())
			rot.metrics.OnFormatError()
		} else {
			data = converted
			extension = convertedExt
			contentType = rot.formatter.ContentType()
		}
	}

	contentEncoding := ""
	if rot.compress {
		compressed, cerr := compressBatch(data)
		if cerr != nil {
			rot.logger.Errorf("compression failed, uploading uncompressed batch: %s", cerr.Error())
		} else {
			data = compressed
			contentEncoding = "gzip"
		}
	}

	task := base.UploadTask{
		Key:             rot.keys.Make(sealedAt, extension),
		Data:            data,
		ContentType:     contentType,
		ContentEncoding: contentEncoding,
		Metadata:        map[string]string{"source": defs.ObjectSourceTag},
		CreatedAt:       sealedAt,
	}

	rot.metrics.OnRotated(trigger, numFragments, len(captured))
	rot.logger.Infof("rotated batch (%s): fragments=%d bytes=%d key=%s", trigger, numFragments, len(captured), task.Key)

	// the channel is drained until after this loop ends, see run.Run shutdown ordering
	rot.outChannel <- task
}

func compressBatch(data []byte) ([]byte, error) {
	writeBuffer := &bytes.Buffer{}
	compressor := gzip.NewWriter(writeBuffer)
	if _, err := compressor.Write(data); err != nil {
		return nil, err
	}
	if err := compressor.Close(); err != nil {
		return nil, err
	}
	return writeBuffer.Bytes(), nil
}
