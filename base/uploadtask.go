package base

import (
	"fmt"
	"time"
)

// UploadTask represents a sealed batch of event fragments ready for storage as its own object
//
// The data is never mutated once the task is created; retries re-read the same bytes
type UploadTask struct {
	Key             string            // storage key derived from the rotation timestamp, unique within the bucket
	Data            []byte            // framed and possibly formatted batch content
	ContentType     string            // MIME type of Data, e.g. application/xml
	ContentEncoding string            // "gzip" when Data is compressed, otherwise empty
	Metadata        map[string]string // object metadata tags attached on upload
	CreatedAt       time.Time         // UTC time the batch was sealed
}

// UploadStatus is the terminal state of an UploadTask
type UploadStatus int

const (
	// Uploaded means the object exists in the store
	Uploaded UploadStatus = iota
	// Abandoned means all permitted attempts failed; the task data is kept for the caller to dispose
	Abandoned
)

// UploadResult reports the outcome of one UploadTask; every task ends in exactly one result
type UploadResult struct {
	Task     UploadTask
	Status   UploadStatus
	Attempts int   // number of storage calls made, at least 1
	LastErr  error // last classified error, nil on success
}

func (status UploadStatus) String() string {
	switch status {
	case Uploaded:
		return "uploaded"
	case Abandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("UploadStatus(%d)", int(status))
	}
}

func (task UploadTask) String() string {
	return fmt.Sprintf("key=%s len=%d type=%s", task.Key, len(task.Data), task.ContentType)
}
