package services

import (
	"errors"
	"fmt"
)

// ErrMalformedDocument is returned by the splitter when the page count of an
// uploaded document cannot be determined.
var ErrMalformedDocument = errors.New("malformed document: page count could not be determined")

// ErrMergeInconsistency signals that the orchestrator produced a result set
// the merger cannot reconcile. It should not occur if the fan-out invariants
// hold.
var ErrMergeInconsistency = errors.New("inconsistent chunk results")

// ErrJobNotFound is returned by the registry for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// ChunkUploadError wraps the first error reported by a chunk upload. Chunk
// numbers are 1-based, matching the labels sent to the extraction service.
type ChunkUploadError struct {
	Chunk int
	Err   error
}

func (e *ChunkUploadError) Error() string {
	return fmt.Sprintf("upload failed for chunk %d: %v", e.Chunk, e.Err)
}

func (e *ChunkUploadError) Unwrap() error {
	return e.Err
}
