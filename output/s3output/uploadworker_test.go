package s3output

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/xevent-aggregator/base"
	"github.com/relex/xevent-aggregator/defs"
	"github.com/stretchr/testify/assert"
)

// stubStore fails the first len(failures) calls with the given errors and succeeds after
type stubStore struct {
	mutex        sync.Mutex
	failures     []error
	callTimes    []time.Time
	lastMetadata map[string]string
}

func (store *stubStore) Put(_ context.Context, task *base.UploadTask) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.callTimes = append(store.callTimes, time.Now())
	store.lastMetadata = make(map[string]string, len(task.Metadata))
	for tag, value := range task.Metadata {
		store.lastMetadata[tag] = value
	}
	if len(store.callTimes) <= len(store.failures) {
		return store.failures[len(store.callTimes)-1]
	}
	return nil
}

func (store *stubStore) calls() []time.Time {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.callTimes
}

func (store *stubStore) metadata() map[string]string {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.lastMetadata
}

func runWorkerOnce(t *testing.T, store ObjectStore, cfg Config, task base.UploadTask) ([]base.UploadResult, []base.UploadTask) {
	inputChannel := make(chan base.UploadTask, 1)
	inputClosed := channels.NewSignalAwaitable()
	var results []base.UploadResult
	var leftovers []base.UploadTask

	worker := NewUploadWorker(logger.WithField("test", t.Name()), cfg, store, base.TaskConsumerArgs{
		InputChannel:   inputChannel,
		InputClosed:    inputClosed,
		OnTaskResolved: func(res base.UploadResult) { results = append(results, res) },
		OnTaskLeftover: func(left base.UploadTask) { leftovers = append(leftovers, left) },
		OnFinished:     func() {},
	}, promreg.NewMetricFactory("test_uploader_", nil, nil))

	inputChannel <- task
	close(inputChannel)
	inputClosed.Signal()
	worker.Start()
	assert.True(t, worker.Stopped().Wait(defs.TestReadTimeout))
	return results, leftovers
}

func TestUploadWorkerRetriesThrottle(t *testing.T) {
	store := &stubStore{failures: []error{
		&smithy.GenericAPIError{Code: "SlowDown", Message: "slow down"},
		&smithy.GenericAPIError{Code: "SlowDown", Message: "slow down"},
	}}
	results, leftovers := runWorkerOnce(t, store, Config{MaxAttempts: 5, RetryBaseDelay: 20 * time.Millisecond},
		base.UploadTask{Key: "a.xml", Data: []byte("<EVENTS></EVENTS>")})

	assert.Empty(t, leftovers)
	if assert.Len(t, results, 1) {
		assert.Equal(t, base.Uploaded, results[0].Status)
		assert.Equal(t, 3, results[0].Attempts)
		assert.Nil(t, results[0].LastErr)
	}
	callTimes := store.calls()
	if assert.Len(t, callTimes, 3) {
		// base delay before the first retry, doubled before the second
		assert.GreaterOrEqual(t, callTimes[1].Sub(callTimes[0]), 20*time.Millisecond)
		assert.GreaterOrEqual(t, callTimes[2].Sub(callTimes[1]), 40*time.Millisecond)
	}
	// the upload timestamp is stamped even when the task carries no metadata at all
	assert.NotEmpty(t, store.metadata()["uploaded_at"])
}

func TestUploadWorkerStampsUploadedAt(t *testing.T) {
	store := &stubStore{}
	results, _ := runWorkerOnce(t, store, Config{MaxAttempts: 3, RetryBaseDelay: time.Millisecond},
		base.UploadTask{
			Key:      "a.xml",
			Data:     []byte("<EVENTS></EVENTS>"),
			Metadata: map[string]string{"source": "xml-stream-aggregator"},
		})

	if assert.Len(t, results, 1) {
		assert.Equal(t, base.Uploaded, results[0].Status)
	}
	metadata := store.metadata()
	assert.Equal(t, "xml-stream-aggregator", metadata["source"])
	assert.NotEmpty(t, metadata["uploaded_at"])
	stampedAt, perr := time.Parse("2006-01-02T15:04:05Z", metadata["uploaded_at"])
	assert.Nil(t, perr)
	assert.WithinDuration(t, time.Now().UTC(), stampedAt, time.Minute)
}

func TestUploadWorkerAuthFailsFast(t *testing.T) {
	store := &stubStore{failures: []error{
		&smithy.GenericAPIError{Code: "AccessDenied", Message: "no"},
		&smithy.GenericAPIError{Code: "AccessDenied", Message: "no"},
		&smithy.GenericAPIError{Code: "AccessDenied", Message: "no"},
	}}
	results, _ := runWorkerOnce(t, store, Config{MaxAttempts: 5, RetryBaseDelay: time.Millisecond},
		base.UploadTask{Key: "a.xml", Data: []byte("x")})

	if assert.Len(t, results, 1) {
		assert.Equal(t, base.Abandoned, results[0].Status)
		assert.Equal(t, 1, results[0].Attempts)
		assert.NotNil(t, results[0].LastErr)
	}
	assert.Len(t, store.calls(), 1)
}

func TestUploadWorkerExhaustsRetries(t *testing.T) {
	store := &stubStore{failures: []error{
		&smithy.GenericAPIError{Code: "InternalError", Message: "oops"},
		&smithy.GenericAPIError{Code: "InternalError", Message: "oops"},
		&smithy.GenericAPIError{Code: "InternalError", Message: "oops"},
	}}
	results, _ := runWorkerOnce(t, store, Config{MaxAttempts: 3, RetryBaseDelay: time.Millisecond},
		base.UploadTask{Key: "a.xml", Data: []byte("x")})

	if assert.Len(t, results, 1) {
		assert.Equal(t, base.Abandoned, results[0].Status)
		assert.Equal(t, 3, results[0].Attempts)
	}
	assert.Len(t, store.calls(), 3)
}
