package batcher

import (
	"fmt"
	"time"
)

const keyTimestampLayout = "20060102_150405"

// KeyMaker derives storage keys from rotation timestamps
//
// Keys within the same second get a monotonic suffix so upload keys are always unique.
// KeyMaker is used from the rotator goroutine only and needs no locking.
type KeyMaker struct {
	prefix        string
	datePartition bool
	lastStamp     string
	lastSeq       int
}

// NewKeyMaker creates a KeyMaker with the given key prefix and optional
// <prefix>/<YYYY>/<MM>/<DD>/ date partitioning
func NewKeyMaker(prefix string, datePartition bool) *KeyMaker {
	return &KeyMaker{
		prefix:        prefix,
		datePartition: datePartition,
	}
}

// Make builds the object key for a batch sealed at the given time
func (km *KeyMaker) Make(sealedAt time.Time, extension string) string {
	utc := sealedAt.UTC()
	stamp := utc.Format(keyTimestampLayout)
	if stamp == km.lastStamp {
		km.lastSeq++
		stamp = fmt.Sprintf("%s_%d", stamp, km.lastSeq)
	} else {
		km.lastStamp = stamp
		km.lastSeq = 0
	}

	if km.datePartition {
		return fmt.Sprintf("%s%04d/%02d/%02d/%s.%s", km.prefix, utc.Year(), utc.Month(), utc.Day(), stamp, extension)
	}
	return km.prefix + stamp + "." + extension
}
