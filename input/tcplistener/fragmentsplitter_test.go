package tcplistener

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func collectFragments(collected *[]string) fragmentConsumer {
	return func(fragment []byte) error {
		*collected = append(*collected, string(fragment))
		return nil
	}
}

func TestFragmentSplitter(t *testing.T) {
	var fragments []string
	sp := newFragmentSplitter(1024, collectFragments(&fragments))

	assert.Nil(t, sp.Feed([]byte("<EVENT>A</EVENT><EVENT>B</EVENT>")))
	assert.Equal(t, []string{"<EVENT>A</EVENT>", "<EVENT>B</EVENT>"}, fragments)
	assert.Equal(t, 0, sp.PendingBytes())
}

func TestFragmentSplitterPartial(t *testing.T) {
	var fragments []string
	sp := newFragmentSplitter(1024, collectFragments(&fragments))

	assert.Nil(t, sp.Feed([]byte("<EVENT>long ev")))
	assert.Empty(t, fragments)
	assert.Nil(t, sp.Feed([]byte("ent</EVE")))
	assert.Empty(t, fragments)
	assert.Nil(t, sp.Feed([]byte("NT><EVENT>next")))
	assert.Equal(t, []string{"<EVENT>long event</EVENT>"}, fragments)
	assert.Equal(t, len("<EVENT>next"), sp.PendingBytes())
}

func TestFragmentSplitterStripsDeclaration(t *testing.T) {
	var fragments []string
	sp := newFragmentSplitter(1024, collectFragments(&fragments))

	assert.Nil(t, sp.Feed([]byte("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<EVENT>A</EVENT>\n<?xml version=\"1.0\"?><EVENT>B</EVENT>")))
	assert.Equal(t, []string{"<EVENT>A</EVENT>", "<EVENT>B</EVENT>"}, fragments)
}

func TestFragmentSplitterSizeLimit(t *testing.T) {
	var fragments []string
	sp := newFragmentSplitter(16, collectFragments(&fragments))

	// a complete fragment keeps the pending buffer small
	assert.Nil(t, sp.Feed([]byte("<EVENT>A</EVENT>")))
	assert.Equal(t, 1, len(fragments))

	// an unterminated message crossing the ceiling is fatal
	assert.Nil(t, sp.Feed([]byte("<EVENT>waiting")))
	assert.NotNil(t, sp.Feed([]byte(" for an end tag that never comes")))
	// the fragment consumed before the ceiling was crossed is untouched
	assert.Equal(t, []string{"<EVENT>A</EVENT>"}, fragments)
}

func TestFragmentSplitterConsumerError(t *testing.T) {
	calls := 0
	sp := newFragmentSplitter(1024, func(fragment []byte) error {
		calls++
		return assert.AnError
	})

	assert.NotNil(t, sp.Feed([]byte("<EVENT>A</EVENT>")))
	assert.Equal(t, 1, calls)
}
