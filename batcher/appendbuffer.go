// Package batcher maintains the shared append buffer holding the currently open batch
// and the rotator that seals it into upload tasks
package batcher

import (
	"sync"
)

const initialBufferCapacity = 64 * 1024

// AppendBuffer is the mutable byte sink shared by all connection handlers; exactly one
// instance is live at a time
//
// The lock is held only for the duration of a single append or swap, never across I/O,
// so writer stalls are proportional to buffer size and not to network or storage latency
type AppendBuffer struct {
	mutex        sync.Mutex
	data         []byte
	numFragments int
}

// NewAppendBuffer creates an empty AppendBuffer
func NewAppendBuffer() *AppendBuffer {
	return &AppendBuffer{
		data: make([]byte, 0, initialBufferCapacity),
	}
}

// Accept appends one complete fragment and a trailing newline to the open batch
//
// The fragment is taken over wholly or not at all; it is never split across batches
func (buffer *AppendBuffer) Accept(fragment []byte) error {
	buffer.mutex.Lock()
	buffer.data = append(buffer.data, fragment...)
	buffer.data = append(buffer.data, '\n')
	buffer.numFragments++
	buffer.mutex.Unlock()
	return nil
}

// Len returns the current size of the open batch in bytes
func (buffer *AppendBuffer) Len() int {
	buffer.mutex.Lock()
	length := len(buffer.data)
	buffer.mutex.Unlock()
	return length
}

// Swap captures the open batch and resets the buffer to empty, returning ownership of
// the previous contents to the caller
//
// Returns nil and zero if the buffer is empty, so rotating without new data is a no-op
func (buffer *AppendBuffer) Swap() ([]byte, int) {
	buffer.mutex.Lock()
	if len(buffer.data) == 0 {
		buffer.mutex.Unlock()
		return nil, 0
	}
	captured := buffer.data
	numFragments := buffer.numFragments
	buffer.data = make([]byte, 0, initialBufferCapacity)
	buffer.numFragments = 0
	buffer.mutex.Unlock()
	return captured, numFragments
}
