package tcplistener

import (
	"bytes"
	"fmt"
)

// fragmentConsumer takes one complete fragment; the slice is only valid during the call
type fragmentConsumer func(fragment []byte) error

var (
	fragmentEndTag = []byte("</EVENT>")
	xmlDeclStart   = []byte("<?xml")
	xmlDeclEnd     = []byte("?>")
)

// fragmentSplitter accumulates raw bytes from one connection and cuts out complete
// event fragments ending with the closing tag
//
// The stream is treated as opaque bytes; no XML parsing happens here. Each upstream
// fragment may carry its own XML declaration header, which is stripped so the sealed
// batch ends up with a single declaration.
type fragmentSplitter struct {
	consumeFragment fragmentConsumer
	maxPendingBytes int    // ceiling for one unterminated message
	pending         []byte // bytes received but not yet cut into fragments
}

func newFragmentSplitter(maxPendingBytes int, consume fragmentConsumer) *fragmentSplitter {
	return &fragmentSplitter{
		consumeFragment: consume,
		maxPendingBytes: maxPendingBytes,
		pending:         make([]byte, 0, 4096),
	}
}

// Feed appends one chunk of received bytes and consumes any complete fragments
//
// An error aborts the connection; fragments already consumed are kept and only the
// offending remainder is discarded by the caller
func (sp *fragmentSplitter) Feed(chunk []byte) error {
	sp.pending = append(sp.pending, chunk...)

	for {
		end := bytes.Index(sp.pending, fragmentEndTag)
		if end == -1 {
			break
		}
		fragment := trimFragment(sp.pending[:end+len(fragmentEndTag)])
		rest := sp.pending[end+len(fragmentEndTag):]

		if len(fragment) > 0 {
			if err := sp.consumeFragment(fragment); err != nil {
				return err
			}
		}
		sp.pending = append(sp.pending[:0], rest...)
	}

	if len(sp.pending) > sp.maxPendingBytes {
		return fmt.Errorf("message size limit exceeded: %d > %d bytes", len(sp.pending), sp.maxPendingBytes)
	}
	return nil
}

// PendingBytes returns the number of buffered bytes not forming a complete fragment
func (sp *fragmentSplitter) PendingBytes() int {
	return len(sp.pending)
}

// trimFragment cuts surrounding whitespace and a leading per-fragment XML declaration
func trimFragment(raw []byte) []byte {
	fragment := bytes.TrimSpace(raw)
	if bytes.HasPrefix(fragment, xmlDeclStart) {
		declEnd := bytes.Index(fragment, xmlDeclEnd)
		if declEnd != -1 {
			fragment = bytes.TrimSpace(fragment[declEnd+len(xmlDeclEnd):])
		}
	}
	return fragment
}
