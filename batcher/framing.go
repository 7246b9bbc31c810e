package batcher

var (
	batchHeader = []byte("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<EVENTS>\n")
	batchFooter = []byte("</EVENTS>")
)

// frameBatch wraps the captured fragment bytes in a single outer container element with
// one declaration header, making the batch a self-contained XML document
//
// Fragments already end with a newline each, added at append time
func frameBatch(captured []byte) []byte {
	framed := make([]byte, 0, len(batchHeader)+len(captured)+len(batchFooter))
	framed = append(framed, batchHeader...)
	framed = append(framed, captured...)
	framed = append(framed, batchFooter...)
	return framed
}
