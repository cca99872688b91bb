// Package io provides the synchronous positional I/O engine: owned
// buffer handles, a bounded-executor Runtime, and a Device backed by
// github.com/ncw/directio for aligned, unbuffered file access.
package io

// IoBufMut is an owned, mutable buffer handle submitted to Read. Its
// ownership transfers into the engine for the duration of one
// operation and is returned to the caller in the completion tuple
// regardless of success — the buffer must not be accessible to any
// other goroutine while the operation is in flight.
type IoBufMut struct {
	Bytes []byte
}

// NewIoBufMut wraps a caller-owned byte slice for submission to Read.
func NewIoBufMut(b []byte) IoBufMut {
	return IoBufMut{Bytes: b}
}

// IoBuf is an owned, immutable buffer handle submitted to Write.
type IoBuf struct {
	Bytes []byte
}

// NewIoBuf wraps a caller-owned byte slice for submission to Write.
func NewIoBuf(b []byte) IoBuf {
	return IoBuf{Bytes: b}
}
