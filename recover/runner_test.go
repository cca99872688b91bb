package recover

import (
	"context"
	"errors"
	"testing"

	"github.com/sharedcode/lodc"
	"github.com/sharedcode/lodc/scanner"
	"github.com/stretchr/testify/require"
)

// fakeRegion is a no-op lodc.Region; fakeScanner never touches its bytes.
type fakeRegion struct {
	id lodc.RegionID
}

func (r fakeRegion) ID() lodc.RegionID                      { return r.id }
func (r fakeRegion) Size() int64                            { return 0 }
func (r fakeRegion) ReadAt(p []byte, off int64) (int, error) { return 0, nil }

// fakeScanner replays a fixed list of entries in a single batch, then
// an error (if any), matching the RegionScanner contract.
type fakeScanner struct {
	entries []lodc.EntryInfo
	err     error
	yielded bool
}

func (s *fakeScanner) Next() (scanner.Batch, error) {
	if !s.yielded {
		s.yielded = true
		return scanner.Batch{Entries: s.entries}, nil
	}
	if s.err != nil {
		err := s.err
		s.err = nil
		return scanner.Batch{}, err
	}
	return scanner.Batch{Done: true}, nil
}

type fakeFactory struct {
	byRegion map[lodc.RegionID]*fakeScanner
}

func (f *fakeFactory) NewScanner(region lodc.Region, blobIndexSize int) (scanner.RegionScanner, error) {
	s, ok := f.byRegion[region.ID()]
	if !ok {
		return &fakeScanner{}, nil
	}
	return s, nil
}

type fakeRegionManager struct {
	regions      map[lodc.RegionID]lodc.Region
	cleanRegions []lodc.RegionID
	initCalled   bool
}

func (m *fakeRegionManager) Region(id lodc.RegionID) (lodc.Region, error) {
	if r, ok := m.regions[id]; ok {
		return r, nil
	}
	return fakeRegion{id: id}, nil
}

func (m *fakeRegionManager) Init(cleanRegionIDs []lodc.RegionID) error {
	m.cleanRegions = cleanRegionIDs
	m.initCalled = true
	return nil
}

type fakeIndexer struct {
	entries map[uint64]lodc.EntryAddress
}

func (i *fakeIndexer) InsertBatch(batch []lodc.HashedEntryAddress) {
	if i.entries == nil {
		i.entries = make(map[uint64]lodc.EntryAddress)
	}
	for _, h := range batch {
		i.entries[h.Hash] = h.Addr
	}
}

// syncExecutor runs fn immediately on the calling goroutine, which is
// enough to exercise the recover package's fan-out/fan-in logic
// without depending on the io package's pool implementation.
type syncExecutor struct{}

func (syncExecutor) SpawnBlocking(fn func() error) <-chan error {
	done := make(chan error, 1)
	done <- fn()
	return done
}

type syncRuntime struct{}

func (syncRuntime) User() lodc.Executor  { return syncExecutor{} }
func (syncRuntime) Read() lodc.Executor  { return syncExecutor{} }
func (syncRuntime) Write() lodc.Executor { return syncExecutor{} }

type noopMetrics struct{ recorded []float64 }

func (m *noopMetrics) RecordRecoverDuration(seconds float64) { m.recorded = append(m.recorded, seconds) }

func addr(region lodc.RegionID, seq lodc.Sequence) lodc.EntryAddress {
	return lodc.EntryAddress{Region: region, Offset: 0, Length: 1, Seq: seq}
}

func TestRunner_CleanStartup(t *testing.T) {
	factory := &fakeFactory{byRegion: map[lodc.RegionID]*fakeScanner{}}
	regionMgr := &fakeRegionManager{}
	idx := &fakeIndexer{}
	var seq lodc.AtomicSequence
	runner := NewRunner(Config{Concurrency: 2, Mode: ModeStrict}, factory)

	err := runner.Run(context.Background(), []lodc.RegionID{0, 1, 2}, regionMgr, idx, &seq, nil, syncRuntime{}, &noopMetrics{})
	require.NoError(t, err)
	require.Len(t, regionMgr.cleanRegions, 3)
	require.Empty(t, idx.entries)
	require.Equal(t, lodc.Sequence(1), seq.Load())
}

func TestRunner_SimpleRecovery(t *testing.T) {
	factory := &fakeFactory{byRegion: map[lodc.RegionID]*fakeScanner{
		0: {entries: []lodc.EntryInfo{
			{Hash: 0xA, Addr: addr(0, 10)},
			{Hash: 0xB, Addr: addr(0, 11)},
		}},
	}}
	regionMgr := &fakeRegionManager{}
	idx := &fakeIndexer{}
	var seq lodc.AtomicSequence
	runner := NewRunner(Config{Concurrency: 1, Mode: ModeStrict}, factory)

	err := runner.Run(context.Background(), []lodc.RegionID{0}, regionMgr, idx, &seq, nil, syncRuntime{}, &noopMetrics{})
	require.NoError(t, err)
	require.Equal(t, lodc.Sequence(10), idx.entries[0xA].Seq)
	require.Equal(t, lodc.Sequence(11), idx.entries[0xB].Seq)
	require.Empty(t, regionMgr.cleanRegions)
	require.Equal(t, lodc.Sequence(12), seq.Load())
}

func TestRunner_TombstoneWins(t *testing.T) {
	factory := &fakeFactory{byRegion: map[lodc.RegionID]*fakeScanner{
		0: {entries: []lodc.EntryInfo{{Hash: 0xA, Addr: addr(0, 5)}}},
	}}
	regionMgr := &fakeRegionManager{}
	idx := &fakeIndexer{}
	var seq lodc.AtomicSequence
	runner := NewRunner(Config{Concurrency: 1, Mode: ModeStrict}, factory)

	tombstones := []lodc.Tombstone{{Hash: 0xA, Seq: 7}}
	err := runner.Run(context.Background(), []lodc.RegionID{0}, regionMgr, idx, &seq, tombstones, syncRuntime{}, &noopMetrics{})
	require.NoError(t, err)
	require.Empty(t, idx.entries)
	require.Equal(t, lodc.Sequence(8), seq.Load())
	require.NotContains(t, regionMgr.cleanRegions, lodc.RegionID(0), "region 0 held data and should not be clean")
}

func TestRunner_EntrySupersedesTombstone(t *testing.T) {
	factory := &fakeFactory{byRegion: map[lodc.RegionID]*fakeScanner{
		0: {entries: []lodc.EntryInfo{{Hash: 0xA, Addr: addr(0, 5)}}},
		1: {entries: []lodc.EntryInfo{{Hash: 0xA, Addr: addr(1, 20)}}},
	}}
	regionMgr := &fakeRegionManager{}
	idx := &fakeIndexer{}
	var seq lodc.AtomicSequence
	runner := NewRunner(Config{Concurrency: 2, Mode: ModeStrict}, factory)

	tombstones := []lodc.Tombstone{{Hash: 0xA, Seq: 10}}
	err := runner.Run(context.Background(), []lodc.RegionID{0, 1}, regionMgr, idx, &seq, tombstones, syncRuntime{}, &noopMetrics{})
	require.NoError(t, err)
	got, ok := idx.entries[0xA]
	require.True(t, ok)
	require.Equal(t, lodc.Sequence(20), got.Seq)
	require.Equal(t, lodc.RegionID(1), got.Region)
	require.Equal(t, lodc.Sequence(21), seq.Load())
}

func TestRegionRunner_TornWriteStopsAtInversion(t *testing.T) {
	factory := &fakeFactory{byRegion: map[lodc.RegionID]*fakeScanner{
		0: {entries: []lodc.EntryInfo{
			{Hash: 0x1, Addr: addr(0, 3)},
			{Hash: 0x2, Addr: addr(0, 4)},
			{Hash: 0x3, Addr: addr(0, 2)},
		}},
	}}
	rr := NewRegionRunner(factory, ModeStrict)
	recovered, err := rr.Run(fakeRegion{id: 0}, 0)
	require.NoError(t, err)
	require.Len(t, recovered, 2)
	require.Equal(t, lodc.Sequence(3), recovered[0].Addr.Seq)
	require.Equal(t, lodc.Sequence(4), recovered[1].Addr.Seq)
}

func TestRunner_StrictModeFailsAtomically(t *testing.T) {
	scanErr := errors.New("corrupt block")
	factory := &fakeFactory{byRegion: map[lodc.RegionID]*fakeScanner{
		0: {entries: []lodc.EntryInfo{{Hash: 0x1, Addr: addr(0, 1)}}},
		1: {entries: nil, err: scanErr},
	}}
	regionMgr := &fakeRegionManager{}
	idx := &fakeIndexer{}
	var seq lodc.AtomicSequence
	runner := NewRunner(Config{Concurrency: 2, Mode: ModeStrict}, factory)

	err := runner.Run(context.Background(), []lodc.RegionID{0, 1}, regionMgr, idx, &seq, nil, syncRuntime{}, &noopMetrics{})
	require.Error(t, err)
	var aggErr *lodc.AggregateError
	require.ErrorAs(t, err, &aggErr)
	require.Empty(t, idx.entries, "indexer must be untouched on strict failure")
	require.False(t, regionMgr.initCalled, "region manager Init must not be called on strict failure")
	require.Equal(t, lodc.Sequence(0), seq.Load(), "sequence must be untouched on strict failure")
}

func TestRunner_QuietModeSwallowsPerRegionError(t *testing.T) {
	scanErr := errors.New("corrupt block")
	factory := &fakeFactory{byRegion: map[lodc.RegionID]*fakeScanner{
		0: {entries: []lodc.EntryInfo{{Hash: 0x1, Addr: addr(0, 1)}}},
		1: {entries: []lodc.EntryInfo{{Hash: 0x2, Addr: addr(1, 2)}}, err: scanErr},
	}}
	regionMgr := &fakeRegionManager{}
	idx := &fakeIndexer{}
	var seq lodc.AtomicSequence
	runner := NewRunner(Config{Concurrency: 2, Mode: ModeQuiet}, factory)

	err := runner.Run(context.Background(), []lodc.RegionID{0, 1}, regionMgr, idx, &seq, nil, syncRuntime{}, &noopMetrics{})
	require.NoError(t, err, "quiet mode should not fail recovery")
	require.Len(t, idx.entries, 2)
}
