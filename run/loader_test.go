package run

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/relex/gotils/logger"
	"github.com/relex/xevent-aggregator/base"
	"github.com/stretchr/testify/assert"
)

const sampleConfTemplate = `
input:
  address: localhost:0
  maxConnections: 10
  maxMessageSize: 1MB
rateLimit:
  enabled: true
  window: 60s
  maxEvents: 1000
rotation:
  interval: 1h
  maxBatchSize: 10MB
format:
  output: xml
storage:
  bucket: test-bucket
  region: eu-west-1
  timeout: 5s
  maxAttempts: 3
  retryBaseDelay: 10ms
  spillDir: %s
`

// memStore is an in-memory ObjectStore; a non-nil putError fails every call
type memStore struct {
	mutex    sync.Mutex
	putError error
	objects  map[string][]byte
}

func newMemStore(putError error) *memStore {
	return &memStore{putError: putError, objects: make(map[string][]byte)}
}

func (store *memStore) Put(_ context.Context, task *base.UploadTask) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.putError != nil {
		return store.putError
	}
	store.objects[task.Key] = task.Data
	return nil
}

func (store *memStore) snapshot() map[string][]byte {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	copied := make(map[string][]byte, len(store.objects))
	for key, data := range store.objects {
		copied[key] = data
	}
	return copied
}

func writeTestConfig(t *testing.T, spillDir string) string {
	confPath := filepath.Join(t.TempDir(), "config.yml")
	assert.Nil(t, os.WriteFile(confPath, []byte(fmt.Sprintf(sampleConfTemplate, spillDir)), 0644))
	return confPath
}

func TestPipelineEndToEnd(t *testing.T) {
	spillDir := filepath.Join(t.TempDir(), "spill")
	loader, confErr := NewLoaderFromConfigFile(writeTestConfig(t, spillDir), t.Name()+"_")
	assert.Nil(t, confErr)
	store := newMemStore(nil)
	loader.StoreOverride = store

	pipeline, launchErr := loader.LaunchPipeline(logger.WithField("test", t.Name()))
	assert.Nil(t, launchErr)

	conn, dialErr := net.Dial("tcp", pipeline.Address)
	assert.Nil(t, dialErr)
	_, werr := conn.Write([]byte("<EVENT>A</EVENT>"))
	assert.Nil(t, werr)
	_, werr = conn.Write([]byte("<EVENT>B</EVENT>"))
	assert.Nil(t, werr)
	assert.Nil(t, conn.Close())
	time.Sleep(500 * time.Millisecond) // let the listener drain the connection

	// the rotation interval never fires in this test; shutdown forces the final rotation
	pipeline.Shutdown()

	objects := store.snapshot()
	if assert.Len(t, objects, 1) {
		for key, data := range objects {
			assert.Regexp(t, `^\d{8}_\d{6}\.xml$`, key)
			assert.Equal(t, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<EVENTS>\n<EVENT>A</EVENT>\n<EVENT>B</EVENT>\n</EVENTS>", string(data))
		}
	}
	assert.Empty(t, listSpilledFiles(t, spillDir))
}

func TestPipelineSpillAndRequeue(t *testing.T) {
	spillDir := filepath.Join(t.TempDir(), "spill")
	confPath := writeTestConfig(t, spillDir)

	// first run: credentials rejected, the batch must be abandoned after one attempt
	// and saved to the spill dir
	{
		loader, confErr := NewLoaderFromConfigFile(confPath, t.Name()+"_first_")
		assert.Nil(t, confErr)
		loader.StoreOverride = newMemStore(&smithy.GenericAPIError{Code: "AccessDenied", Message: "no"})

		pipeline, launchErr := loader.LaunchPipeline(logger.WithField("test", t.Name()))
		assert.Nil(t, launchErr)
		conn, dialErr := net.Dial("tcp", pipeline.Address)
		assert.Nil(t, dialErr)
		_, werr := conn.Write([]byte("<EVENT>saved</EVENT>"))
		assert.Nil(t, werr)
		assert.Nil(t, conn.Close())
		time.Sleep(500 * time.Millisecond)
		pipeline.Shutdown()
	}
	assert.Len(t, listSpilledFiles(t, spillDir), 1)

	// second run: the spilled batch is re-queued at startup, uploaded, and removed
	{
		loader, confErr := NewLoaderFromConfigFile(confPath, t.Name()+"_second_")
		assert.Nil(t, confErr)
		store := newMemStore(nil)
		loader.StoreOverride = store

		pipeline, launchErr := loader.LaunchPipeline(logger.WithField("test", t.Name()))
		assert.Nil(t, launchErr)
		pipeline.Shutdown()

		objects := store.snapshot()
		if assert.Len(t, objects, 1) {
			for _, data := range objects {
				assert.Contains(t, string(data), "<EVENT>saved</EVENT>")
			}
		}
	}
	assert.Empty(t, listSpilledFiles(t, spillDir))
}

func TestLoadConfigFileRejectsIncomplete(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), "config.yml")
	assert.Nil(t, os.WriteFile(confPath, []byte(`
input:
  address: localhost:0
  maxConnections: 10
  maxMessageSize: 1MB
rotation:
  interval: 1h
  maxBatchSize: 10MB
storage:
  timeout: 5s
  maxAttempts: 3
  retryBaseDelay: 1s
  spillDir: /tmp/spill
`), 0644))
	_, err := LoadConfigFile(confPath)
	if assert.NotNil(t, err) {
		assert.Contains(t, err.Error(), "storage: .bucket")
	}
}

func listSpilledFiles(t *testing.T, spillDir string) []string {
	entries, rerr := os.ReadDir(spillDir)
	if rerr != nil {
		if os.IsNotExist(rerr) {
			return nil
		}
		t.Fatal(rerr)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}
