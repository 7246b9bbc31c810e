package s3output

import (
	"context"
	"time"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/xevent-aggregator/base"
	"github.com/relex/xevent-aggregator/defs"
)

// uploadedAtLayout is the timestamp form of the uploaded_at metadata tag
const uploadedAtLayout = "2006-01-02T15:04:05Z"

// UploadWorker is a TaskConsumer uploading sealed batches to an ObjectStore
//
// Every consumed task ends in exactly one report: resolved as uploaded, resolved as
// abandoned after classified retries, or leftover when shutdown cuts the drain short.
// Uploads run on this worker alone and never block rotation.
type UploadWorker struct {
	logger         logger.Logger
	store          ObjectStore
	maxAttempts    int
	retryBaseDelay time.Duration
	inputChannel   <-chan base.UploadTask
	inputClosed    channels.Awaitable
	onTaskResolved func(res base.UploadResult)
	onTaskLeftover func(task base.UploadTask)
	onFinished     func()
	metrics        uploaderMetrics
	stopped        *channels.SignalAwaitable
}

// NewUploadWorker creates an UploadWorker
func NewUploadWorker(parentLogger logger.Logger, cfg Config, store ObjectStore, args base.TaskConsumerArgs,
	metricCreator promreg.MetricCreator) base.TaskConsumer {

	return &UploadWorker{
		logger:         parentLogger.WithField(defs.LabelComponent, "UploadWorker"),
		store:          store,
		maxAttempts:    cfg.MaxAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		inputChannel:   args.InputChannel,
		inputClosed:    args.InputClosed,
		onTaskResolved: args.OnTaskResolved,
		onTaskLeftover: args.OnTaskLeftover,
		onFinished:     args.OnFinished,
		metrics:        newUploaderMetrics(metricCreator),
		stopped:        channels.NewSignalAwaitable(),
	}
}

// Start launches the consuming loop
func (worker *UploadWorker) Start() {
	go worker.run()
}

// Stopped returns an Awaitable which is signaled when all input tasks have been reported
func (worker *UploadWorker) Stopped() channels.Awaitable {
	return worker.stopped
}

func (worker *UploadWorker) run() {
	defer worker.stopped.Signal()
	defer worker.onFinished()
	worker.logger.Info("started")

	// the drain deadline starts ticking once the input end is closed; tasks not yet
	// attempted by then become leftovers
	drainCtx, cancelDrain := context.WithCancel(context.Background())
	go func() {
		worker.inputClosed.After(defs.UploaderShutDownTimeout).WaitForever()
		cancelDrain()
	}()
	defer cancelDrain()

	for task := range worker.inputChannel {
		if drainCtx.Err() != nil {
			worker.metrics.OnLeftover()
			worker.onTaskLeftover(task)
			continue
		}

		result := worker.uploadWithRetry(drainCtx, task)
		if result.Status == base.Uploaded {
			worker.metrics.OnUploaded(len(task.Data))
			worker.logger.WithField(defs.LabelKey, task.Key).Infof("uploaded batch: attempts=%d bytes=%d", result.Attempts, len(task.Data))
		} else {
			worker.metrics.OnAbandoned()
			worker.logger.WithField(defs.LabelKey, task.Key).Errorf("abandoned batch: attempts=%d lastErr=%s", result.Attempts, result.LastErr.Error())
		}
		worker.onTaskResolved(result)
	}

	worker.logger.Info("stopped")
}

// uploadWithRetry performs up to maxAttempts storage calls with exponential backoff
//
// An authentication error stops retrying immediately since no backoff would fix the
// credentials; an expired drain context abandons the task with whatever error came last
func (worker *UploadWorker) uploadWithRetry(ctx context.Context, task base.UploadTask) base.UploadResult {
	var lastErr error
	attempt := 0

	for attempt < worker.maxAttempts {
		attempt++

		// the tag reflects the attempt that actually stored the object, so it is
		// refreshed on every retry and on re-queued spilled tasks
		if task.Metadata == nil {
			task.Metadata = make(map[string]string, 2)
		}
		task.Metadata["uploaded_at"] = time.Now().UTC().Format(uploadedAtLayout)

		err := worker.store.Put(ctx, &task)
		if err == nil {
			return base.UploadResult{Task: task, Status: base.Uploaded, Attempts: attempt}
		}
		lastErr = err

		class := classifyError(err)
		worker.metrics.OnFailedAttempt(class)
		if !class.Retryable() {
			worker.logger.WithField(defs.LabelKey, task.Key).Errorf("storage rejected credentials, not retrying: %s", err.Error())
			break
		}
		worker.logger.WithField(defs.LabelKey, task.Key).Warnf("upload attempt %d/%d failed (%s): %s", attempt, worker.maxAttempts, class, err.Error())
		if attempt >= worker.maxAttempts {
			break
		}

		delay := worker.retryBaseDelay << (attempt - 1)
		select {
		case <-ctx.Done():
			return base.UploadResult{Task: task, Status: base.Abandoned, Attempts: attempt, LastErr: lastErr}
		case <-time.After(delay):
		}
	}

	return base.UploadResult{Task: task, Status: base.Abandoned, Attempts: attempt, LastErr: lastErr}
}
