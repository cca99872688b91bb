// Package lodc implements the core of a hybrid on-disk block cache's
// large-object engine: crash recovery of the in-memory index from
// persisted regions and a tombstone log, and the data model both the
// recovery path and the I/O engine share.
package lodc

import (
	"os"
	"sync/atomic"
)

// RegionID identifies one contiguous byte range on a device.
type RegionID uint32

// Sequence is a monotonically increasing write-time version number.
type Sequence uint64

// EntryAddress is the physical location of a persisted entry together
// with the sequence it was written at.
type EntryAddress struct {
	Region RegionID
	Offset uint64
	Length uint32
	Seq    Sequence
}

// EntryInfo is emitted by a RegionScanner while walking one region.
type EntryInfo struct {
	Hash uint64
	Addr EntryAddress
}

// Tombstone is a logical deletion record sourced from the tombstone log.
type Tombstone struct {
	Hash uint64
	Seq  Sequence
}

// HashedEntryAddress is published to the Indexer after reconciliation.
type HashedEntryAddress struct {
	Hash uint64
	Addr EntryAddress
}

// AtomicSequence is the process-wide write-sequence counter. After
// recovery it holds max(all observed sequences)+1 so new writes never
// collide with recovered ones.
type AtomicSequence struct {
	v atomic.Uint64
}

// Store publishes seq with release ordering. Go's atomic package is
// sequentially consistent, a valid strengthening of release/acquire.
func (s *AtomicSequence) Store(seq Sequence) { s.v.Store(uint64(seq)) }

// Load reads the counter with acquire ordering.
func (s *AtomicSequence) Load() Sequence { return Sequence(s.v.Load()) }

// FetchAdd atomically reserves the next sequence number for a writer.
func (s *AtomicSequence) FetchAdd(delta uint64) Sequence {
	return Sequence(s.v.Add(delta) - delta)
}

// Partition is a logical slice of a Device. Translate maps a
// partition-local offset to the underlying raw file handle (borrowed,
// never closed by the caller — the Device owns its lifecycle) and a
// device-absolute offset.
type Partition interface {
	Translate(offset uint64) (file *os.File, absoluteOffset int64)
}

// Region is a handle exposing read access to a fixed-size byte range
// of a Partition. Immutable during recovery.
type Region interface {
	ID() RegionID
	Size() int64
	ReadAt(p []byte, off int64) (int, error)
}

// RegionManager supplies Region handles and is initialized with the
// set of clean region ids once recovery completes.
type RegionManager interface {
	Region(id RegionID) (Region, error)
	Init(cleanRegionIDs []RegionID) error
}

// Indexer is the thread-safe destination for reconciled recovery
// output: exactly one HashedEntryAddress per hash whose highest
// sequence event was an entry write, not a tombstone.
type Indexer interface {
	InsertBatch(batch []HashedEntryAddress)
}

// Executor runs blocking closures off the submitting goroutine,
// modeling Runtime's spawn_blocking semantics.
type Executor interface {
	SpawnBlocking(fn func() error) <-chan error
}

// Runtime exposes the three independent executor pools recovery and
// the I/O engine schedule work on.
type Runtime interface {
	User() Executor
	Read() Executor
	Write() Executor
}

// Metrics is the narrow sink the recovery path reports to.
type Metrics interface {
	RecordRecoverDuration(seconds float64)
}

// Logger is the narrow logging surface consumed across the module;
// satisfied trivially by log/slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}
