// Package format provides the pluggable output serializations of framed batches
package format

import (
	"fmt"

	"github.com/relex/xevent-aggregator/base"
)

// NewFormatter returns the formatter for the given output format name, or nil for the
// default raw XML pass-through
func NewFormatter(name string) (base.BatchFormatter, error) {
	switch name {
	case "", "xml":
		return nil, nil
	case "json":
		return &jsonFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: '%s'", name)
	}
}
