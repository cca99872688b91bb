package erasure

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	data := []byte("a region's worth of entry bytes")
	sum := Checksum(data)

	require.True(t, Verify(data, sum[:]), "expected checksum to verify against its own data")
	require.False(t, Verify([]byte("different bytes, same length!!!"), sum[:]), "expected checksum to reject mismatched data")
}

func TestMirror_EncodeVerifyRoundTrip(t *testing.T) {
	m, err := NewMirror(4, 2)
	require.NoError(t, err)
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}

	shards, tags, err := m.Encode(data)
	require.NoError(t, err)
	require.Len(t, shards, 6)
	require.True(t, m.Verify(shards, tags), "expected freshly encoded shards to verify")

	shards[0][0] ^= 0xFF
	require.False(t, m.Verify(shards, tags), "expected corrupted shard to fail verification")
}
