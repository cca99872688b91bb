package io

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sharedcode/lodc"
)

// maxShortRetries bounds how many times a short (partial) read or
// write is resubmitted before the operation is surfaced as an error —
// mirrors the teacher's retryIO 5-attempt Fibonacci policy.
const maxShortRetries = 5

// PsyncIoEngine performs positional read/write of owned buffers using
// pread/pwrite-equivalent *os.File.ReadAt/WriteAt calls, offloaded to
// a Runtime's blocking-task executors so the submitting goroutine
// never blocks on the syscall itself.
type PsyncIoEngine struct {
	device  Device
	runtime lodc.Runtime
}

// NewPsyncIoEngine builds the synchronous positional I/O engine.
func NewPsyncIoEngine(device Device, runtime lodc.Runtime) *PsyncIoEngine {
	return &PsyncIoEngine{device: device, runtime: runtime}
}

// Device returns the backing Device.
func (e *PsyncIoEngine) Device() Device { return e.device }

// ReadResult is the completion value of a Read: the buffer is always
// returned to the caller, regardless of success.
type ReadResult struct {
	Buf IoBufMut
	Err error
}

// Read reads len(buf.Bytes) bytes from partition at offset into buf,
// without blocking the caller. On success buf contains exactly
// len(buf.Bytes) bytes; on failure buf is returned unchanged (its
// content is undefined on a partial failure).
func (e *PsyncIoEngine) Read(ctx context.Context, buf IoBufMut, partition *FilePartition, offset uint64) <-chan ReadResult {
	out := make(chan ReadResult, 1)
	file, absOffset := partition.Translate(offset)
	slice := buf.Bytes

	done := e.runtime.Read().SpawnBlocking(func() error {
		return fullReadAt(ctx, file, slice, absOffset)
	})

	go func() {
		err := <-done
		if err != nil {
			err = wrapIoError(err)
		}
		out <- ReadResult{Buf: buf, Err: err}
	}()
	return out
}

// WriteResult is the completion value of a Write.
type WriteResult struct {
	Buf IoBuf
	Err error
}

// Write writes len(buf.Bytes) bytes from buf to partition at offset,
// without blocking the caller. On success all bytes have been written.
func (e *PsyncIoEngine) Write(ctx context.Context, buf IoBuf, partition *FilePartition, offset uint64) <-chan WriteResult {
	out := make(chan WriteResult, 1)
	file, absOffset := partition.Translate(offset)
	slice := buf.Bytes

	done := e.runtime.Write().SpawnBlocking(func() error {
		return fullWriteAt(ctx, file, slice, absOffset)
	})

	go func() {
		err := <-done
		if err != nil {
			err = wrapIoError(err)
		}
		out <- WriteResult{Buf: buf, Err: err}
	}()
	return out
}

// fullReadAt retries a short read until len(p) bytes are satisfied or
// a non-transient error / retry budget is hit.
func fullReadAt(ctx context.Context, file interface {
	ReadAt(p []byte, off int64) (int, error)
}, p []byte, off int64) error {
	read := 0
	b := retry.NewFibonacci(1 * time.Millisecond)
	return retry.Do(ctx, retry.WithMaxRetries(maxShortRetries, b), func(ctx context.Context) error {
		n, err := file.ReadAt(p[read:], off+int64(read))
		read += n
		if err != nil {
			if read >= len(p) {
				return nil
			}
			if lodc.ShouldRetry(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		if read < len(p) {
			return retry.RetryableError(fmt.Errorf("short read: got %d of %d bytes", read, len(p)))
		}
		return nil
	})
}

// fullWriteAt retries a short write until len(p) bytes are flushed or
// a non-transient error / retry budget is hit.
func fullWriteAt(ctx context.Context, file interface {
	WriteAt(p []byte, off int64) (int, error)
}, p []byte, off int64) error {
	written := 0
	b := retry.NewFibonacci(1 * time.Millisecond)
	return retry.Do(ctx, retry.WithMaxRetries(maxShortRetries, b), func(ctx context.Context) error {
		n, err := file.WriteAt(p[written:], off+int64(written))
		written += n
		if err != nil {
			if lodc.ShouldRetry(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		if written < len(p) {
			return retry.RetryableError(fmt.Errorf("short write: wrote %d of %d bytes", written, len(p)))
		}
		return nil
	})
}

func wrapIoError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(lodc.Error); ok {
		return err
	}
	return lodc.Error{Code: lodc.IoError, Err: err}
}
