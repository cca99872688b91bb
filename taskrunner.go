package lodc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TaskRunner bounds fan-out concurrency with errgroup.SetLimit. It is
// the concurrency primitive recovery uses to cap how many regions scan
// at once (the Concurrency field of recover.Config): enough regions
// scan in parallel to saturate the device's queue depth without turning
// recovery itself into the resource contention it's trying to get past.
type TaskRunner struct {
	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	limit  int
}

// NewTaskRunner creates a task runner scoped to ctx. limit <= 0 means
// unbounded fan-out: every Go call spawns immediately.
func NewTaskRunner(ctx context.Context, limit int) *TaskRunner {
	cancelable, cancel := context.WithCancel(ctx)
	eg, derived := errgroup.WithContext(cancelable)
	if limit > 0 {
		eg.SetLimit(limit)
	}
	return &TaskRunner{eg: eg, ctx: derived, cancel: cancel, limit: limit}
}

// Context returns the runner's context. It is canceled the moment any
// spawned task returns a non-nil error (errgroup's first-error
// semantics) or Stop is called explicitly. A long-running task should
// select on it and return promptly once it's done.
func (tr *TaskRunner) Context() context.Context {
	return tr.ctx
}

// Limit reports the concurrency bound this runner was built with, or 0
// if unbounded.
func (tr *TaskRunner) Limit() int {
	if tr.limit <= 0 {
		return 0
	}
	return tr.limit
}

// Go spawns task, blocking the caller only once the concurrency limit
// is already saturated.
func (tr *TaskRunner) Go(task func() error) {
	tr.eg.Go(task)
}

// Stop cancels Context(). It does not prevent Go from starting tasks;
// a task that checks Context() can skip or abandon its work. Strict-mode
// recovery calls this the moment one region scan fails, and its tasks
// check Context() before scanning, so the remaining regions don't keep
// reading disk for a run that's already going to be discarded.
func (tr *TaskRunner) Stop() {
	tr.cancel()
}

// Wait blocks until every spawned task has returned, yielding the first
// non-nil error, if any.
func (tr *TaskRunner) Wait() error {
	return tr.eg.Wait()
}
