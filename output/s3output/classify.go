package s3output

import (
	"errors"

	"github.com/aws/smithy-go"
)

// errorClass decides the retry policy of one failed storage call
type errorClass int

const (
	errorClassAuth     errorClass = iota // credentials or permissions, operator intervention needed
	errorClassThrottle                   // server-side throttling or timeout
	errorClassOther                      // anything else, assumed transient
)

// authErrorCodes never resolve by retrying
var authErrorCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
}

var throttleErrorCodes = map[string]bool{
	"SlowDown":             true,
	"Throttling":           true,
	"ThrottlingException":  true,
	"RequestTimeout":       true,
	"RequestTimeTooSkewed": true,
	"ServiceUnavailable":   true,
}

// classifyError maps a storage error to its retry class
//
// Errors without an API error code, e.g. connection failures or attempt timeouts, are
// treated as transient
func classifyError(err error) errorClass {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return errorClassOther
	}
	code := apiErr.ErrorCode()
	switch {
	case authErrorCodes[code]:
		return errorClassAuth
	case throttleErrorCodes[code]:
		return errorClassThrottle
	default:
		return errorClassOther
	}
}

// Retryable tells whether another attempt may succeed
func (class errorClass) Retryable() bool {
	return class != errorClassAuth
}

func (class errorClass) String() string {
	switch class {
	case errorClassAuth:
		return "auth"
	case errorClassThrottle:
		return "throttle"
	default:
		return "other"
	}
}
