package base

import (
	"github.com/relex/gotils/channels"
)

// TaskConsumer is a worker to consume sealed upload tasks for storage hand-off
// A consumer should be created with TaskConsumerArgs as input
// It should initiate shutdown by the end of InputChannel or the InputClosed signal,
// and never attempt to read any leftover task from InputChannel once it's closed
type TaskConsumer interface {
	PipelineWorker
}

// TaskConsumerArgs is the parameters to create a TaskConsumer
// For any task, either OnTaskResolved or OnTaskLeftover must be called
type TaskConsumerArgs struct {
	InputChannel   <-chan UploadTask      // channel of sealed tasks to consume
	InputClosed    channels.Awaitable     // signal when input channel is closed, in case consumer is not waiting on input
	OnTaskResolved func(res UploadResult) // to be called when a task reaches a terminal state
	OnTaskLeftover func(task UploadTask)  // to be called when a task is left unattempted at the end
	OnFinished     func()                 // to be called after the consumer ends
}
