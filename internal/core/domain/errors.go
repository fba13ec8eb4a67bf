package domain

import (
	"errors"
	"fmt"
)

// ErrTruncated reports that a wire payload ended before a descriptor was
// fully read. Callers treat the whole payload as malformed.
var ErrTruncated = errors.New("domain: truncated descriptor")

// PathError reports a data file path that cannot be mapped to a storage
// group and partition.
type PathError struct {
	Path string
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("domain: cannot resolve storage group/partition from path %q", e.Path)
}
