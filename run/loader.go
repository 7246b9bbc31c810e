package run

import (
	"context"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/xevent-aggregator/base"
	"github.com/relex/xevent-aggregator/batcher"
	"github.com/relex/xevent-aggregator/defs"
	"github.com/relex/xevent-aggregator/format"
	"github.com/relex/xevent-aggregator/input/admission"
	"github.com/relex/xevent-aggregator/input/tcplistener"
	"github.com/relex/xevent-aggregator/output/s3output"
)

// Loader loads configuration from file and prepares the environments to be launched
//
// Loader should take care of everything derived from the config file, but not trigger anything automatically
type Loader struct {
	filepath string // config file path

	Config
	MetricFactory *promreg.MetricFactory
	StoreOverride s3output.ObjectStore // replaces the real S3 client when set, for tests
}

// Pipeline is a running agent: listener, rotator and uploader wired together
type Pipeline struct {
	logger       logger.Logger
	Address      string // actual input address, e.g. assigned random port if it's 0 in config file
	listenerStop *channels.SignalAwaitable
	rotatorStop  *channels.SignalAwaitable
	listener     base.FragmentListener
	gate         *admission.RateGate
	rotator      *batcher.Rotator
	uploader     base.TaskConsumer
}

// NewLoaderFromConfigFile creates a Loader with verified configuration
func NewLoaderFromConfigFile(filepath string, metricPrefix string) (*Loader, error) {
	config, configErr := LoadConfigFile(filepath)
	if configErr != nil {
		return nil, configErr
	}

	return &Loader{
		filepath:      filepath,
		Config:        *config,
		MetricFactory: promreg.NewMetricFactory(metricPrefix, nil, nil),
	}, nil
}

// LaunchPipeline builds and starts all pipeline workers in background
//
// Spilled batches from a previous crash or shutdown are re-queued for upload first
func (loader *Loader) LaunchPipeline(plogger logger.Logger) (*Pipeline, error) {
	spill, spillErr := s3output.NewSpillDir(plogger, loader.Storage.SpillDir)
	if spillErr != nil {
		return nil, spillErr
	}

	store := loader.StoreOverride
	if store == nil {
		realStore, storeErr := s3output.NewS3Store(context.Background(), loader.Storage)
		if storeErr != nil {
			return nil, storeErr
		}
		store = realStore
	}

	formatter, _ := format.NewFormatter(loader.Format.Output) // verified in config parsing

	listenerStop := channels.NewSignalAwaitable()
	rotatorStop := channels.NewSignalAwaitable()
	taskChannel := make(chan base.UploadTask, defs.UploadQueueSize)
	taskChannelClosed := channels.NewSignalAwaitable()

	buffer := batcher.NewAppendBuffer()
	gate := admission.NewRateGate(plogger, loader.RateLimit, loader.MetricFactory, listenerStop)
	slots := admission.NewConnectionSlots(loader.Input.MaxConnections, loader.MetricFactory)

	listener, address, listenerErr := tcplistener.NewTCPFragmentListener(plogger, loader.Input,
		gate, slots, buffer, loader.MetricFactory, listenerStop)
	if listenerErr != nil {
		return nil, listenerErr
	}

	keys := batcher.NewKeyMaker(loader.Storage.Prefix, loader.Storage.DatePartition)
	rotator := batcher.NewRotator(plogger, loader.Rotation, buffer, formatter, keys,
		taskChannel, taskChannelClosed, loader.MetricFactory, rotatorStop)

	uploader := s3output.NewUploadWorker(plogger, loader.Storage, store, base.TaskConsumerArgs{
		InputChannel: taskChannel,
		InputClosed:  taskChannelClosed,
		OnTaskResolved: func(res base.UploadResult) {
			if res.Status == base.Uploaded {
				spill.Remove(res.Task.Key) // no-op unless the task was re-queued from disk
			} else {
				spill.Save(res.Task)
			}
		},
		OnTaskLeftover: func(task base.UploadTask) {
			spill.Save(task)
		},
		OnFinished: func() {
			spill.Close()
		},
	}, loader.MetricFactory)

	// the uploader must be consuming before spilled tasks are re-queued, in case there
	// are more of them than the queue holds
	uploader.Start()
	for _, task := range spill.Reload() {
		taskChannel <- task
	}
	rotator.Start()
	gate.Start()
	listener.Start()

	return &Pipeline{
		logger:       plogger.WithField(defs.LabelComponent, "Pipeline"),
		Address:      address,
		listenerStop: listenerStop,
		rotatorStop:  rotatorStop,
		listener:     listener,
		gate:         gate,
		rotator:      rotator,
		uploader:     uploader,
	}, nil
}

// Shutdown stops all workers in dependency order and blocks until pending work resolves
// or times out
//
// Order matters: the input side must be fully stopped before the final rotation, and the
// task channel is only closed by the rotator, after which the uploader drains and ends
func (pipeline *Pipeline) Shutdown() {
	pipeline.listenerStop.Signal()
	if !pipeline.listener.Stopped().Wait(2 * defs.InputShutDownGracePeriod) {
		pipeline.logger.Warn("timeout waiting for connections to close")
	}
	pipeline.gate.Stopped().WaitForever()

	pipeline.rotatorStop.Signal()
	pipeline.rotator.Stopped().WaitForever()

	if !pipeline.uploader.Stopped().Wait(2 * defs.UploaderShutDownTimeout) {
		pipeline.logger.Warn("timeout waiting for uploads to resolve")
	}
	pipeline.logger.Info("pipeline stopped")
}
