// Package scanner declares the RegionScanner contract consumed by the
// recovery core, plus a reference implementation that reads through
// lodc.Region's positional ReadAt.
package scanner

import (
	"github.com/sharedcode/lodc"
)

// Batch is one non-empty group of entries yielded by a scan step, or
// an end-of-stream/error signal. The recovery runner treats a scan as
// a pull sequence of these rather than a channel so a region's scan
// state (and the memory its buffered batch occupies) lives entirely
// in the caller's stack frame between calls.
type Batch struct {
	Entries []lodc.EntryInfo
	Done    bool
}

// RegionScanner produces a lazy sequence of entry batches from one
// region's persisted bytes. Implementations may surface a recoverable
// scan error (e.g. a partially written trailing record) without
// terminating the underlying region handle; callers decide whether to
// stop or keep going based on the error and the configured RecoverMode.
type RegionScanner interface {
	// Next returns the next batch of entries, or Batch{Done: true} once
	// the region has been fully consumed. A non-nil error means the
	// scan could not continue; no entries are returned alongside it.
	Next() (Batch, error)
}

// Factory constructs a RegionScanner bound to one region, reading
// blobIndexSize bytes of entry-index metadata per batch step.
type Factory interface {
	NewScanner(region lodc.Region, blobIndexSize int) (RegionScanner, error)
}
