package recover

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharedcode/lodc"
	"github.com/sharedcode/lodc/erasure"
	"github.com/sharedcode/lodc/io"
	"github.com/sharedcode/lodc/regionmgr"
	"github.com/sharedcode/lodc/scanner"
)

// fileScannerHeaderSize mirrors scanner.headerSize (unexported), since
// this test writes raw region bytes the way the write path would.
const fileScannerHeaderSize = 8 + 8 + 4 + erasure.ChecksumSize

func appendFileScannerRecord(buf []byte, hash, seq uint64, payload []byte) []byte {
	hdr := make([]byte, fileScannerHeaderSize)
	binary.LittleEndian.PutUint64(hdr[0:8], hash)
	binary.LittleEndian.PutUint64(hdr[8:16], seq)
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(len(payload)))
	sum := erasure.Checksum(payload)
	copy(hdr[20:20+erasure.ChecksumSize], sum[:])
	buf = append(buf, hdr...)
	buf = append(buf, payload...)
	return buf
}

// writeRegionFile opens region 0's partition file through the real
// io.FileDevice (the same one regionmgr.Manager will hand back a Region
// for) and writes data to it, so the test drives the real
// io.FileDevice + scanner.FileScanner stack instead of in-memory fakes.
func writeRegionFile(t *testing.T, device *io.FileDevice, regionID lodc.RegionID, data []byte) {
	t.Helper()
	partition, err := device.Partition(regionPartitionName(regionID))
	require.NoError(t, err)
	_, err = partition.File().WriteAt(data, 0)
	require.NoError(t, err)
}

// regionPartitionName must match regionmgr.Manager's own region-to-file
// naming scheme exactly, since this test opens the same partition file
// the Manager will later hand a Region out for.
func regionPartitionName(id lodc.RegionID) string {
	return fmt.Sprintf("region-%d", id)
}

// TestRegionRunner_FileScanner_TornWriteAtEndOfRegion drives a real
// scanner.FileScanner reading a real file through io.FileDevice: two
// well-formed records followed by a header for a third record whose
// payload never made it to disk (a torn write, scenario S5). Recovery
// must surface the two intact records and stop cleanly, without error,
// at the torn one.
func TestRegionRunner_FileScanner_TornWriteAtEndOfRegion(t *testing.T) {
	dir := t.TempDir()
	var data []byte
	data = appendFileScannerRecord(data, 0xA, 1, []byte("first entry"))
	data = appendFileScannerRecord(data, 0xB, 2, []byte("second entry"))

	// A torn trailing record: the header claims a 64-byte payload, but
	// the file ends right after the header, as a crash mid-write would
	// leave it.
	hdr := make([]byte, fileScannerHeaderSize)
	binary.LittleEndian.PutUint64(hdr[0:8], 0xC)
	binary.LittleEndian.PutUint64(hdr[8:16], 3)
	binary.LittleEndian.PutUint32(hdr[16:20], 64)
	data = append(data, hdr...)

	device := io.NewFileDevice(dir)
	writeRegionFile(t, device, 0, data)

	mgr := regionmgr.NewManager(device, int64(len(data)))
	region, err := mgr.Region(0)
	require.NoError(t, err)

	rr := NewRegionRunner(scanner.NewFileScannerFactory(), ModeStrict)
	recovered, err := rr.Run(region, 4096)
	require.NoError(t, err, "a torn trailing record must not surface as a scan error")
	require.Len(t, recovered, 2)
	require.Equal(t, uint64(0xA), recovered[0].Hash)
	require.Equal(t, lodc.Sequence(1), recovered[0].Addr.Seq)
	require.Equal(t, uint64(0xB), recovered[1].Hash)
	require.Equal(t, lodc.Sequence(2), recovered[1].Addr.Seq)
}

// TestRegionRunner_FileScanner_OversizedRecordSurvivesNarrowStride
// exercises the window-widening fix: a record bigger than the
// scanner's blobIndexSize stride must still be recovered in full,
// along with whatever follows it, instead of being mistaken for a
// torn write and silently ending the scan.
func TestRegionRunner_FileScanner_OversizedRecordSurvivesNarrowStride(t *testing.T) {
	dir := t.TempDir()
	var data []byte
	data = appendFileScannerRecord(data, 0x1, 1, []byte("tiny"))
	big := make([]byte, 1024)
	for i := range big {
		big[i] = byte(i)
	}
	data = appendFileScannerRecord(data, 0x2, 2, big)
	data = appendFileScannerRecord(data, 0x3, 3, []byte("trailing"))

	device := io.NewFileDevice(dir)
	writeRegionFile(t, device, 0, data)

	mgr := regionmgr.NewManager(device, int64(len(data)))
	region, err := mgr.Region(0)
	require.NoError(t, err)

	// Stride only large enough for the first, small record.
	rr := NewRegionRunner(scanner.NewFileScannerFactory(), ModeStrict)
	recovered, err := rr.Run(region, fileScannerHeaderSize+16)
	require.NoError(t, err)
	require.Len(t, recovered, 3, "the oversized record must not be dropped, nor anything after it")
	require.Equal(t, uint64(0x1), recovered[0].Hash)
	require.Equal(t, uint64(0x2), recovered[1].Hash)
	require.Equal(t, uint32(len(big)), recovered[1].Addr.Length)
	require.Equal(t, uint64(0x3), recovered[2].Hash)
}
