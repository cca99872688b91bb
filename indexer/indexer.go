// Package indexer holds the process-wide view of which EntryAddress is
// currently live for a given key hash, published to by recovery and
// consulted by the read path thereafter.
package indexer

import (
	"sync"

	"github.com/sharedcode/lodc"
)

// MemIndexer is a thread-safe, process-local Indexer. A single writer
// (recovery, then the normal write path) mutates it; reads are lock-free.
type MemIndexer struct {
	m sync.Map // hash uint64 -> lodc.EntryAddress
}

// NewMemIndexer builds an empty indexer.
func NewMemIndexer() *MemIndexer {
	return &MemIndexer{}
}

// InsertBatch publishes a reconciled batch of resolved addresses,
// overwriting whatever was previously indexed for each hash.
func (idx *MemIndexer) InsertBatch(batch []lodc.HashedEntryAddress) {
	for _, h := range batch {
		idx.m.Store(h.Hash, h.Addr)
	}
}

// Lookup returns the live EntryAddress for hash, if any.
func (idx *MemIndexer) Lookup(hash uint64) (lodc.EntryAddress, bool) {
	v, ok := idx.m.Load(hash)
	if !ok {
		return lodc.EntryAddress{}, false
	}
	return v.(lodc.EntryAddress), true
}

// Remove drops hash from the index, used by the write path when a
// tombstone is appended after recovery has already completed.
func (idx *MemIndexer) Remove(hash uint64) {
	idx.m.Delete(hash)
}

// Len reports how many hashes are currently indexed. Intended for
// diagnostics; callers must not rely on an exact count under concurrent mutation.
func (idx *MemIndexer) Len() int {
	n := 0
	idx.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
