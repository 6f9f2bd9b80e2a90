package extraction

import "fmt"

// ExtractionError reports an exhausted-retries failure for one chunk. The
// orchestrator records the chunk index so the chunk can be retried in a
// later run; it never silently skips.
type ExtractionError struct {
	ChunkIndex int
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for chunk %d: %v", e.ChunkIndex, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
