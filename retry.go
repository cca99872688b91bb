package lodc

import (
	"context"
	"errors"
	log "log/slog"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

// nonRetryableErrno is the set of syscall-level failures this module
// treats as permanent rather than transient. Every one reflects a
// condition another attempt at the same call can't fix: the disk is
// full, the filesystem is read-only, a path argument is simply wrong.
// Retrying these only delays reporting a failure the caller needs to
// see now.
var nonRetryableErrno = map[syscall.Errno]bool{
	syscall.EROFS:        true,
	syscall.ENOSPC:       true,
	syscall.EDQUOT:       true,
	syscall.EMFILE:       true,
	syscall.ENFILE:       true,
	syscall.EACCES:       true,
	syscall.EPERM:        true,
	syscall.ENAMETOOLONG: true,
	syscall.ENOTDIR:      true,
	syscall.EISDIR:       true,
	syscall.EINVAL:       true,
	syscall.EXDEV:        true,
}

// ShouldRetry reports whether err is a transient condition worth another
// attempt. The positional I/O engine hits this for local disk
// syscalls; ColdArchiver hits it for S3 round trips, so a
// net.Error timeout or reset counts as retryable too, alongside the
// syscall table a pure local-disk engine would need on its own.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, os.ErrExist) {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) && nonRetryableErrno[errno] {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || isTemporary(netErr)
	}

	if strings.Contains(err.Error(), "read-only file system") {
		return false
	}

	return true
}

// isTemporary works around net.Error.Temporary's deprecation: the
// method still reports useful information for the transport errors this
// module actually sees against an S3-compatible endpoint, it's just no
// longer guaranteed universally accurate — which doesn't matter for a
// heuristic that already fails open toward retrying.
func isTemporary(err net.Error) bool {
	type temporary interface{ Temporary() bool }
	if t, ok := err.(temporary); ok {
		return t.Temporary()
	}
	return true
}

// Retry executes task with Fibonacci backoff, retrying up to maxAttempts
// times (5 when maxAttempts <= 0). If task does not succeed (its error
// is not retryable, or the budget runs out), gaveUpTask runs (when not
// nil) and the final error is returned. task
// itself decides retryability, typically by checking ShouldRetry and
// wrapping a transient error in retry.RetryableError.
func Retry(ctx context.Context, maxAttempts int, task func(ctx context.Context) error, gaveUpTask func(ctx context.Context)) error {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	b := retry.NewFibonacci(1 * time.Millisecond)
	if err := retry.Do(ctx, retry.WithMaxRetries(uint64(maxAttempts), b), task); err != nil {
		log.Warn("retry budget exhausted", "error", err, "attempts", maxAttempts)
		if gaveUpTask != nil {
			gaveUpTask(ctx)
		}
		return err
	}
	return nil
}
