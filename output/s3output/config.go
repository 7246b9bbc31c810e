// Package s3output uploads sealed batches to S3-compatible object storage with
// retry, error classification and disk spill for unrecoverable tasks
package s3output

import (
	"fmt"
	"time"
)

// Config defines the storage section in config file
type Config struct {
	Bucket         string        `yaml:"bucket"`
	Region         string        `yaml:"region"`
	Endpoint       string        `yaml:"endpoint"`       // optional custom endpoint for S3-compatible stores, e.g. MinIO
	Prefix         string        `yaml:"prefix"`         // optional key prefix, e.g. "events/"
	DatePartition  bool          `yaml:"datePartition"`  // nest keys under prefix/YYYY/MM/DD/
	Timeout        time.Duration `yaml:"timeout"`        // per-attempt timeout of one storage call
	MaxAttempts    int           `yaml:"maxAttempts"`    // upload attempts before a task is abandoned
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay"` // backoff delay of the first retry, doubled each attempt
	SpillDir       string        `yaml:"spillDir"`       // local dir for batches that could not be uploaded
}

// VerifyConfig checks configuration
func (cfg *Config) VerifyConfig() error {
	if len(cfg.Bucket) == 0 {
		return fmt.Errorf(".bucket is unspecified")
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf(".timeout is unspecified")
	}
	if cfg.MaxAttempts <= 0 {
		return fmt.Errorf(".maxAttempts is unspecified")
	}
	if cfg.RetryBaseDelay <= 0 {
		return fmt.Errorf(".retryBaseDelay is unspecified")
	}
	if len(cfg.SpillDir) == 0 {
		return fmt.Errorf(".spillDir is unspecified")
	}
	return nil
}
