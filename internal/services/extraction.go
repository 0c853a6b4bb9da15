package services

import "context"

// ExtractionField is a single field returned by the extraction service for
// one chunk: the field name, the raw text found in the document (empty when
// nothing was extracted) and the extractor's confidence in [0,1].
type ExtractionField struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult maps field name to the extracted field for one chunk.
type ExtractionResult map[string]ExtractionField

// ExtractionClient uploads a document chunk to the extraction service and
// returns the extracted fields. Implementations own authentication, schema
// provisioning, polling and retries. A call returns either a usable field
// mapping or a non-nil error, never both empty.
//
// Upload must honor ctx cancellation where the underlying transport allows
// it; an upload that cannot be interrupted mid-request may finish, in which
// case its result is discarded by the caller.
type ExtractionClient interface {
	Upload(ctx context.Context, chunk []byte, label string) (ExtractionResult, error)
}
