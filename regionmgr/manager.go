// Package regionmgr tracks which regions are clean (write targets)
// versus evictable (hold live data) and hands out Region handles
// backed by the io package's Device/Partition abstraction.
package regionmgr

import (
	"fmt"
	"sync"

	"github.com/sharedcode/lodc"
	"github.com/sharedcode/lodc/io"
)

// fileRegion adapts one partition offset range to lodc.Region.
type fileRegion struct {
	id        lodc.RegionID
	partition *io.FilePartition
	size      int64
}

func (r *fileRegion) ID() lodc.RegionID { return r.id }
func (r *fileRegion) Size() int64       { return r.size }

func (r *fileRegion) ReadAt(p []byte, off int64) (int, error) {
	file, abs := r.partition.Translate(uint64(off))
	return file.ReadAt(p, abs)
}

// Manager is the reference RegionManager: every region maps 1:1 to a
// partition file on one Device, sized uniformly at construction time.
type Manager struct {
	device     io.Device
	regionSize int64

	mu    sync.RWMutex
	clean map[lodc.RegionID]bool
}

// NewManager builds a Manager over device, where each region is
// regionSize bytes and named "region-<id>".
func NewManager(device io.Device, regionSize int64) *Manager {
	return &Manager{device: device, regionSize: regionSize, clean: make(map[lodc.RegionID]bool)}
}

// Region returns the handle for id, opening its backing partition file
// on first use.
func (m *Manager) Region(id lodc.RegionID) (lodc.Region, error) {
	partition, err := m.device.Partition(fmt.Sprintf("region-%d", id))
	if err != nil {
		return nil, err
	}
	return &fileRegion{id: id, partition: partition, size: m.regionSize}, nil
}

// Init records the set of regions recovery found to hold no live
// entries, making them available as write targets. Regions not in
// cleanRegionIDs are implicitly evictable: the indexer entries that
// still reference them are the manager's only record of that fact.
func (m *Manager) Init(cleanRegionIDs []lodc.RegionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clean = make(map[lodc.RegionID]bool, len(cleanRegionIDs))
	for _, id := range cleanRegionIDs {
		m.clean[id] = true
	}
	return nil
}

// IsClean reports whether id was classified clean by the most recent Init.
func (m *Manager) IsClean(id lodc.RegionID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clean[id]
}

// CleanCount reports how many regions are currently available as write targets.
func (m *Manager) CleanCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clean)
}
