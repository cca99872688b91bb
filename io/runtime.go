package io

import (
	"fmt"
	"runtime"

	"github.com/sharedcode/lodc"
)

// pool is a bounded blocking-task executor: a fixed number of concurrent
// slots gated by a buffered channel, the same limiter-channel idiom the
// teacher used to bound fan-out before golang.org/x/sync/errgroup.SetLimit
// existed. Read and Write pools are sized independently so a saturated
// write path cannot starve reads or recovery scans.
type pool struct {
	slots chan struct{}
}

func newPool(size int) *pool {
	if size <= 0 {
		size = 1
	}
	return &pool{slots: make(chan struct{}, size)}
}

// SpawnBlocking runs fn on a goroutine gated by the pool's concurrency
// limit and reports completion (including a recovered panic, wrapped
// as lodc.JoinError) on the returned channel. It returns immediately;
// waiting for a free slot happens on the spawned goroutine.
func (p *pool) SpawnBlocking(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() {
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		defer func() {
			if r := recover(); r != nil {
				done <- lodc.Error{Code: lodc.JoinError, Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		done <- fn()
	}()
	return done
}

// DefaultRuntime is a Runtime whose three executors are bounded
// goroutine pools, approximating spawn_blocking against dedicated
// read/write/user thread pools.
type DefaultRuntime struct {
	user, read, write *pool
}

// NewDefaultRuntime builds a Runtime. A size <= 0 defaults to
// runtime.GOMAXPROCS(0), matching the teacher's "0 means auto-detect
// based on CPUs" convention.
func NewDefaultRuntime(userSize, readSize, writeSize int) *DefaultRuntime {
	cpus := runtime.GOMAXPROCS(0)
	if userSize <= 0 {
		userSize = cpus
	}
	if readSize <= 0 {
		readSize = cpus
	}
	if writeSize <= 0 {
		writeSize = cpus
	}
	return &DefaultRuntime{
		user:  newPool(userSize),
		read:  newPool(readSize),
		write: newPool(writeSize),
	}
}

func (r *DefaultRuntime) User() lodc.Executor  { return r.user }
func (r *DefaultRuntime) Read() lodc.Executor  { return r.read }
func (r *DefaultRuntime) Write() lodc.Executor { return r.write }
