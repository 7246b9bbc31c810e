package base

// FragmentListener represents an input endpoint for raw event fragments, e.g. a TCP listener
// Incoming fragments are delivered to a FragmentReceiver passed during construction
// FragmentListener always works in background as one or more goroutines
type FragmentListener interface {
	PipelineWorker
}

// FragmentReceiver accepts complete event fragments from listener connections
//
// Accept must be safe for concurrent use; a fragment is taken over wholly or not at all
type FragmentReceiver interface {
	Accept(fragment []byte) error
}
