package io

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharedcode/lodc"
)

func TestPsyncIoEngine_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	device := NewFileDevice(dir)
	defer device.Close()

	partition, err := device.Partition("region-0")
	require.NoError(t, err)

	runtime := NewDefaultRuntime(2, 2, 2)
	engine := NewPsyncIoEngine(device, runtime)

	want := []byte("the quick brown fox jumps over the lazy dog")
	ctx := context.Background()

	wres := <-engine.Write(ctx, NewIoBuf(want), partition, 128)
	require.NoError(t, wres.Err)
	require.Same(t, &want[0], &wres.Buf.Bytes[0], "write completion must return the same buffer identity")

	readBuf := make([]byte, len(want))
	rres := <-engine.Read(ctx, NewIoBufMut(readBuf), partition, 128)
	require.NoError(t, rres.Err)
	require.Equal(t, want, rres.Buf.Bytes)
}

func TestPsyncIoEngine_ReadPastEndOfFileErrors(t *testing.T) {
	dir := t.TempDir()
	device := NewFileDevice(dir)
	defer device.Close()

	partition, err := device.Partition("region-0")
	require.NoError(t, err)
	runtime := NewDefaultRuntime(1, 1, 1)
	engine := NewPsyncIoEngine(device, runtime)

	buf := make([]byte, 64)
	res := <-engine.Read(context.Background(), NewIoBufMut(buf), partition, 0)
	require.Error(t, res.Err, "expected an error reading past end of an empty file")
	require.IsType(t, lodc.Error{}, res.Err)
}

func TestFileDevice_PartitionIsCachedByName(t *testing.T) {
	dir := t.TempDir()
	device := NewFileDevice(dir)
	defer device.Close()

	a, err := device.Partition("region-0")
	require.NoError(t, err)
	b, err := device.Partition("region-0")
	require.NoError(t, err)
	require.Same(t, a, b, "expected the same partition instance to be returned for the same name")

	_, err = os.Stat(dir + "/region-0")
	require.NoError(t, err, "expected partition file to exist on disk")
}
