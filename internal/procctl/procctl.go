// Package procctl terminates processes and waits a bounded time for them
// to exit.
package procctl

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/Dicklesworthstone/sysdiag/internal/errors"
)

// DefaultWait is how long Terminate waits for the process to exit.
const DefaultWait = 3 * time.Second

const pollInterval = 50 * time.Millisecond

// Outcome of a successful termination request.
type Outcome int

const (
	// Terminated means the process exited within the wait window.
	Terminated Outcome = iota + 1
	// AlreadyGone means the process did not exist, or vanished before the
	// signal could be delivered.
	AlreadyGone
)

func (o Outcome) String() string {
	switch o {
	case Terminated:
		return "terminated"
	case AlreadyGone:
		return "already gone"
	}
	return "unknown"
}

// Terminate asks pid to exit (SIGTERM on Unix) and waits up to wait for it
// to disappear. Failures carry the PERMISSION_DENIED, TIMED_OUT or
// INVALID_PID codes.
func Terminate(ctx context.Context, pid int32, wait time.Duration) (Outcome, error) {
	if pid <= 0 {
		return 0, errors.New(errors.ErrInvalidPID, fmt.Sprintf("invalid pid %d", pid), "pid must be a positive integer")
	}
	if wait <= 0 {
		wait = DefaultWait
	}

	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if gone(err) {
			return AlreadyGone, nil
		}
		return 0, classify(pid, err)
	}
	// Cache the start time so IsRunning can tell a reused pid apart.
	_, _ = p.CreateTimeWithContext(ctx)

	if err := p.TerminateWithContext(ctx); err != nil {
		if gone(err) {
			return AlreadyGone, nil
		}
		return 0, classify(pid, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		running, err := p.IsRunningWithContext(waitCtx)
		if (err == nil && !running) || gone(err) {
			return Terminated, nil
		}
		select {
		case <-waitCtx.Done():
			return 0, errors.New(errors.ErrTimedOut,
				fmt.Sprintf("pid %d did not exit within %s", pid, wait),
				"the process may be ignoring SIGTERM")
		case <-ticker.C:
		}
	}
}

func gone(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, process.ErrorProcessNotRunning) ||
		stderrors.Is(err, os.ErrProcessDone) ||
		stderrors.Is(err, os.ErrNotExist) ||
		stderrors.Is(err, syscall.ESRCH)
}

func classify(pid int32, err error) error {
	if stderrors.Is(err, os.ErrPermission) || stderrors.Is(err, syscall.EPERM) {
		return errors.WrapWithSuggestion(err, errors.ErrPermissionDenied,
			fmt.Sprintf("permission denied terminating pid %d", pid),
			"run with elevated privileges")
	}
	return errors.Wrap(err, errors.ErrIO, fmt.Sprintf("cannot terminate pid %d", pid))
}
