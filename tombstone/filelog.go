package tombstone

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sharedcode/lodc"
)

// record is the JSON shape written to disk, one per line, the same
// append-only single-file-with-buffered-encoder idiom the teacher uses
// for its transaction log.
type record struct {
	Hash uint64        `json:"hash"`
	Seq  lodc.Sequence `json:"seq"`
}

// FileLog is an append-only, newline-delimited JSON tombstone log
// backed by a single local file.
type FileLog struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
}

// NewFileLog opens (creating if necessary) the tombstone log at path.
func NewFileLog(path string) (*FileLog, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriter(f)
	return &FileLog{
		path:   path,
		file:   f,
		writer: w,
		enc:    json.NewEncoder(w),
	}, nil
}

// Append durably records one tombstone event.
func (l *FileLog) Append(hash uint64, seq lodc.Sequence) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(record{Hash: hash, Seq: seq}); err != nil {
		return err
	}
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

// Load reads every tombstone record from the start of the file.
func (l *FileLog) Load() ([]lodc.Tombstone, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var tombstones []lodc.Tombstone
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("tombstone log corrupt at entry %d: %w", len(tombstones), err)
		}
		tombstones = append(tombstones, lodc.Tombstone{Hash: rec.Hash, Seq: rec.Seq})
	}
	return tombstones, nil
}

// Close releases the underlying file handle.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
