package procctl

import (
	"bufio"
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/sysdiag/internal/errors"
)

func TestTerminateInvalidPID(t *testing.T) {
	for _, pid := range []int32{0, -1} {
		_, err := Terminate(context.Background(), pid, time.Second)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrInvalidPID))
	}
}

func TestTerminateMissingPIDIsAlreadyGone(t *testing.T) {
	// Far above any default pid_max.
	outcome, err := Terminate(context.Background(), 1<<30, time.Second)
	require.NoError(t, err)
	assert.Equal(t, AlreadyGone, outcome)
}

func TestTerminateReapedChildIsAlreadyGone(t *testing.T) {
	requireUnix(t)
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	outcome, err := Terminate(context.Background(), int32(cmd.Process.Pid), time.Second)
	require.NoError(t, err)
	assert.Equal(t, AlreadyGone, outcome)
}

func TestTerminateRunningChild(t *testing.T) {
	requireUnix(t)
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-done
	})

	outcome, err := Terminate(context.Background(), int32(cmd.Process.Pid), 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Terminated, outcome)
}

func TestTerminateTimesOut(t *testing.T) {
	requireUnix(t)
	cmd := exec.Command("sh", "-c", `trap "" TERM; echo ready; sleep 5`)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	done := make(chan struct{})
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})

	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "ready\n", line)
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	start := time.Now()
	_, err = Terminate(context.Background(), int32(cmd.Process.Pid), 300*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTimedOut), "got %v", err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "terminated", Terminated.String())
	assert.Equal(t, "already gone", AlreadyGone.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	for _, bin := range []string{"sh", "sleep", "true"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available", bin)
		}
	}
}
