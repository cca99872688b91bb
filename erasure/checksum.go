// Package erasure adapts the teacher's Reed-Solomon shard-metadata
// checksum scheme to the recovery core's needs: verifying that an
// on-disk entry record is intact rather than merely well-formed, and
// optionally computing parity shards so a region archived to the cold
// tier survives the loss of some of its shard objects.
package erasure

import (
	"bytes"
	"crypto/md5"

	"github.com/klauspost/reedsolomon"
)

// ChecksumSize is the digest length appended to every entry record.
const ChecksumSize = md5.Size

// Checksum returns the MD5 digest of data, the same per-shard
// integrity tag the teacher's blob-store erasure coding computes in
// ComputeShardMetadata.
func Checksum(data []byte) [ChecksumSize]byte {
	return md5.Sum(data)
}

// Verify reports whether want matches the checksum of data. The
// recovery scanner uses this to tell a genuine torn write (checksum
// mismatch on the last record) apart from a well-formed record whose
// sequence merely precedes an earlier one.
func Verify(data []byte, want []byte) bool {
	got := Checksum(data)
	return bytes.Equal(got[:], want)
}

// Mirror erasure-codes a region's bytes into dataShards+parityShards
// shards; regionmgr.ColdArchiver uses it to store a region as separate
// shard objects, the way the teacher's fs/erasure package does for blobs.
type Mirror struct {
	dataShards, parityShards int
	encoder                  reedsolomon.Encoder
}

// NewMirror builds a Mirror encoder. Sum of shard counts must not exceed 256.
func NewMirror(dataShards, parityShards int) (*Mirror, error) {
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &Mirror{dataShards: dataShards, parityShards: parityShards, encoder: enc}, nil
}

// Encode splits data into data+parity shards, each carrying an MD5
// tag so the decode path can distinguish missing from corrupted shards.
func (m *Mirror) Encode(data []byte) (shards [][]byte, tags [][ChecksumSize]byte, err error) {
	shards, err = m.encoder.Split(data)
	if err != nil {
		return nil, nil, err
	}
	if err := m.encoder.Encode(shards); err != nil {
		return nil, nil, err
	}
	tags = make([][ChecksumSize]byte, len(shards))
	for i, s := range shards {
		tags[i] = Checksum(s)
	}
	return shards, tags, nil
}

// Verify reports whether every shard still matches its recorded tag.
func (m *Mirror) Verify(shards [][]byte, tags [][ChecksumSize]byte) bool {
	if len(shards) != len(tags) {
		return false
	}
	for i, s := range shards {
		if s == nil || !Verify(s, tags[i][:]) {
			return false
		}
	}
	ok, _ := m.encoder.Verify(shards)
	return ok
}

// ShardCount returns the total number of shards (data+parity) a Mirror
// built with these parameters produces.
func (m *Mirror) ShardCount() int {
	return m.dataShards + m.parityShards
}

// Reconstruct rebuilds any shard whose tag doesn't match its content
// (or that is nil, standing in for a shard that couldn't be fetched at
// all) from the remaining ones, then reassembles the original dataSize
// bytes. It fails only when fewer than dataShards shards survive intact
// — the same threshold reedsolomon.Encoder itself enforces.
func (m *Mirror) Reconstruct(shards [][]byte, tags [][ChecksumSize]byte, dataSize int) ([]byte, error) {
	working := make([][]byte, len(shards))
	for i, s := range shards {
		if s != nil && i < len(tags) && Verify(s, tags[i][:]) {
			working[i] = s
		}
		// A nil entry tells reedsolomon this shard is missing and must
		// be rebuilt from parity.
	}
	if err := m.encoder.Reconstruct(working); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := m.encoder.Join(&buf, working, dataSize); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
