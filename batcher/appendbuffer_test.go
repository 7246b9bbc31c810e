package batcher

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendBuffer(t *testing.T) {
	buffer := NewAppendBuffer()
	assert.Equal(t, 0, buffer.Len())

	assert.Nil(t, buffer.Accept([]byte("<EVENT>A</EVENT>")))
	assert.Nil(t, buffer.Accept([]byte("<EVENT>B</EVENT>")))
	assert.Equal(t, len("<EVENT>A</EVENT>\n<EVENT>B</EVENT>\n"), buffer.Len())

	captured, numFragments := buffer.Swap()
	assert.Equal(t, "<EVENT>A</EVENT>\n<EVENT>B</EVENT>\n", string(captured))
	assert.Equal(t, 2, numFragments)
	assert.Equal(t, 0, buffer.Len())
}

func TestAppendBufferSwapEmpty(t *testing.T) {
	buffer := NewAppendBuffer()
	captured, numFragments := buffer.Swap()
	assert.Nil(t, captured)
	assert.Equal(t, 0, numFragments)
}

func TestAppendBufferConcurrentNoLoss(t *testing.T) {
	const numWriters = 8
	const numPerWriter = 500
	buffer := NewAppendBuffer()

	wg := &sync.WaitGroup{}
	for w := 0; w < numWriters; w++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			for i := 0; i < numPerWriter; i++ {
				assert.Nil(t, buffer.Accept([]byte(fmt.Sprintf("<EVENT>%d-%d</EVENT>", writer, i))))
			}
		}(w)
	}

	// a concurrent reader swapping mid-stream must not lose or duplicate fragments
	swapped := make([][]byte, 0, 4)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for i := 0; i < 3; i++ {
			if captured, _ := buffer.Swap(); captured != nil {
				swapped = append(swapped, captured)
			}
		}
	}()
	wg.Wait()
	<-readerDone
	if captured, _ := buffer.Swap(); captured != nil {
		swapped = append(swapped, captured)
	}

	seen := make(map[string]bool, numWriters*numPerWriter)
	total := 0
	for _, batch := range swapped {
		for _, line := range strings.Split(strings.TrimRight(string(batch), "\n"), "\n") {
			assert.False(t, seen[line], "duplicated fragment: %s", line)
			seen[line] = true
			total++
		}
	}
	assert.Equal(t, numWriters*numPerWriter, total)
}
