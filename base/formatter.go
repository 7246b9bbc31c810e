package base

// BatchFormatter transforms a framed batch into its final serialization before upload
//
// Implementations must be stateless and safe for use from the rotator goroutine only.
// A failed Format never causes data loss: the caller falls back to the raw framed batch.
type BatchFormatter interface {
	// Format converts framed batch bytes, returning the converted bytes and the file
	// extension of the result without dot, e.g. "json"
	Format(framed []byte) ([]byte, string, error)

	// Extension returns the file extension produced by successful Format calls
	Extension() string

	// ContentType returns the MIME type of successful Format output
	ContentType() string
}
