package io

import (
	"fmt"
	"os"
	"sync"

	"github.com/ncw/directio"
)

// Device is a collection of Partitions backed by real files. One
// Device typically corresponds to one cache shard/disk.
type Device interface {
	Partition(name string) (*FilePartition, error)
}

// FileDevice opens partition files with O_DIRECT where the platform
// supports it (via github.com/ncw/directio), so large region I/O
// bypasses the page cache the way the teacher's filesystem backend
// does for registry segments.
type FileDevice struct {
	dir string

	mu         sync.Mutex
	partitions map[string]*FilePartition
}

// NewFileDevice roots all partitions under dir, which must already exist.
func NewFileDevice(dir string) *FileDevice {
	return &FileDevice{dir: dir, partitions: make(map[string]*FilePartition)}
}

// Partition opens (or returns the already-open) partition file "name"
// under the device's directory, creating it if necessary.
func (d *FileDevice) Partition(name string) (*FilePartition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.partitions[name]; ok {
		return p, nil
	}

	path := fmt.Sprintf("%s%c%s", d.dir, os.PathSeparator, name)
	f, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		// O_DIRECT is unavailable on some filesystems (tmpfs, overlay);
		// fall back to a buffered handle rather than failing recovery.
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, err
		}
	}
	p := &FilePartition{file: f}
	d.partitions[name] = p
	return p, nil
}

// Close closes every partition file opened by this device.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for _, p := range d.partitions {
		if err := p.file.Close(); err != nil && first == nil {
			first = err
		}
	}
	d.partitions = make(map[string]*FilePartition)
	return first
}

// FilePartition is a lodc.Partition backed by one *os.File. Offsets
// are partition-local; Translate is the identity mapping since each
// partition is its own file.
type FilePartition struct {
	file *os.File
}

// Translate returns the borrowed file handle and the offset unchanged
// (one partition == one file, so partition-local == file-absolute).
// The I/O engine must not close the returned handle.
func (p *FilePartition) Translate(offset uint64) (*os.File, int64) {
	return p.file, int64(offset)
}

// File exposes the underlying handle for region construction.
func (p *FilePartition) File() *os.File { return p.file }
