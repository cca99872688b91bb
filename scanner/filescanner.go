package scanner

import (
	"encoding/binary"
	"io"

	"github.com/sharedcode/lodc"
	"github.com/sharedcode/lodc/erasure"
)

// headerSize is the fixed-length prefix written ahead of every entry's
// payload: hash(8) | sequence(8) | length(4) | checksum(16). The
// checksum covers the payload only and lets the scanner tell a torn
// write (checksum mismatch on a trailing, partially flushed record)
// apart from a well-formed record that merely precedes a later one.
const headerSize = 8 + 8 + 4 + erasure.ChecksumSize

// FileScanner reads entry records sequentially from one Region,
// batching blobIndexSize bytes of header+payload per Next() call so
// the recovery runner never buffers an entire region in memory at once.
type FileScanner struct {
	region lodc.Region
	stride int

	offset int64
	size   int64
	done   bool
}

// NewFileScanner builds the reference RegionScanner. blobIndexSize is
// the read window of one batch; a record larger than the window is
// read at its own size (see Next), so one batch can consume more.
func NewFileScanner(region lodc.Region, blobIndexSize int) (*FileScanner, error) {
	if blobIndexSize <= 0 {
		blobIndexSize = 64 * 1024
	}
	return &FileScanner{
		region: region,
		stride: blobIndexSize,
		size:   region.Size(),
	}, nil
}

// fileScannerFactory adapts NewFileScanner to the scanner.Factory contract.
type fileScannerFactory struct{}

// NewFileScannerFactory returns the reference scanner.Factory.
func NewFileScannerFactory() Factory { return fileScannerFactory{} }

func (fileScannerFactory) NewScanner(region lodc.Region, blobIndexSize int) (RegionScanner, error) {
	return NewFileScanner(region, blobIndexSize)
}

// Next reads up to one stride's worth of bytes starting at the
// scanner's current offset and decodes as many complete, checksum-valid
// records as fit. A record whose header or payload overruns the stride
// window is not assumed torn: readOverflowRecord re-reads it at its own
// size, since the stride is a memory bound on one Next() call, not a
// ceiling on entry size. Only a record that genuinely extends past the
// region's end, or fails its checksum, ends the batch (and the scan)
// without error — a torn trailing record at end-of-region is expected,
// not exceptional.
func (s *FileScanner) Next() (Batch, error) {
	if s.done {
		return Batch{Done: true}, nil
	}
	if s.offset >= s.size {
		s.done = true
		return Batch{Done: true}, nil
	}

	window := s.stride
	if remaining := s.size - s.offset; int64(window) > remaining {
		window = int(remaining)
	}
	buf := make([]byte, window)
	n, err := s.region.ReadAt(buf, s.offset)
	if err != nil && err != io.EOF {
		return Batch{}, lodc.Error{Code: lodc.ScanError, Err: err}
	}
	buf = buf[:n]

	var entries []lodc.EntryInfo
	consumed := 0
	overran := false
	for consumed+headerSize <= len(buf) {
		hdr := buf[consumed : consumed+headerSize]
		hash := binary.LittleEndian.Uint64(hdr[0:8])
		seq := binary.LittleEndian.Uint64(hdr[8:16])
		length := binary.LittleEndian.Uint32(hdr[16:20])
		checksum := hdr[20 : 20+erasure.ChecksumSize]

		recordEnd := consumed + headerSize + int(length)
		if recordEnd > len(buf) {
			// Record extends past what we read in this stride. Leave it
			// unconsumed; the caller below decides whether to widen the
			// read for it or treat it as a genuine end-of-region tear.
			overran = true
			break
		}
		payload := buf[consumed+headerSize : recordEnd]
		if !erasure.Verify(payload, checksum) {
			// Checksum mismatch: treat as a torn write and stop the scan
			// for this region entirely, matching the sequence-inversion
			// stop condition the recover runner already applies.
			s.done = true
			break
		}
		if hash == 0 && seq == 0 && length == 0 {
			// Zeroed padding at the tail of a partially used stride.
			break
		}

		entries = append(entries, lodc.EntryInfo{
			Hash: hash,
			Addr: lodc.EntryAddress{
				Region: s.region.ID(),
				Offset: uint64(s.offset) + uint64(consumed) + headerSize,
				Length: length,
				Seq:    lodc.Sequence(seq),
			},
		})
		consumed = recordEnd
	}
	if !overran && consumed < len(buf) && consumed+headerSize > len(buf) {
		// The loop exited because even the header didn't fit in this
		// stride's window, not because of a checksum failure or padding.
		overran = true
	}

	if overran && !s.done {
		entry, recordLen, ok, rerr := s.readOverflowRecord(s.offset + int64(consumed))
		if rerr != nil {
			return Batch{}, rerr
		}
		if ok {
			entries = append(entries, entry)
			consumed += recordLen
		} else {
			// Re-reading at the record's own size still doesn't fit
			// inside the region: a genuine torn trailing record.
			s.done = true
		}
	}

	if consumed == 0 {
		s.done = true
		if len(entries) == 0 {
			return Batch{Done: true}, nil
		}
	}
	s.offset += int64(consumed)
	if s.offset >= s.size {
		s.done = true
	}

	return Batch{Entries: entries}, nil
}

// readOverflowRecord decodes the single record starting at absOffset
// (region-absolute) when it didn't fit inside the scanner's stride
// window, by re-reading exactly that record's header-declared size
// instead of the fixed stride. ok is false, with no error, when the
// record's declared length would run past the region's end or fails
// its checksum — both cases the scan treats as a torn trailing record.
func (s *FileScanner) readOverflowRecord(absOffset int64) (entry lodc.EntryInfo, recordLen int, ok bool, err error) {
	if s.size-absOffset < headerSize {
		return lodc.EntryInfo{}, 0, false, nil
	}
	hdr := make([]byte, headerSize)
	n, rerr := s.region.ReadAt(hdr, absOffset)
	if rerr != nil && rerr != io.EOF {
		return lodc.EntryInfo{}, 0, false, lodc.Error{Code: lodc.ScanError, Err: rerr}
	}
	if n < headerSize {
		return lodc.EntryInfo{}, 0, false, nil
	}

	hash := binary.LittleEndian.Uint64(hdr[0:8])
	seq := binary.LittleEndian.Uint64(hdr[8:16])
	length := binary.LittleEndian.Uint32(hdr[16:20])
	checksum := hdr[20 : 20+erasure.ChecksumSize]

	recordLen = headerSize + int(length)
	if absOffset+int64(recordLen) > s.size {
		return lodc.EntryInfo{}, 0, false, nil
	}

	payload := make([]byte, length)
	pn, perr := s.region.ReadAt(payload, absOffset+headerSize)
	if perr != nil && perr != io.EOF {
		return lodc.EntryInfo{}, 0, false, lodc.Error{Code: lodc.ScanError, Err: perr}
	}
	payload = payload[:pn]
	if pn < int(length) || !erasure.Verify(payload, checksum) {
		return lodc.EntryInfo{}, 0, false, nil
	}
	if hash == 0 && seq == 0 && length == 0 {
		return lodc.EntryInfo{}, 0, false, nil
	}

	return lodc.EntryInfo{
		Hash: hash,
		Addr: lodc.EntryAddress{
			Region: s.region.ID(),
			Offset: uint64(absOffset) + headerSize,
			Length: length,
			Seq:    lodc.Sequence(seq),
		},
	}, recordLen, true, nil
}
