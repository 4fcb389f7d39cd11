package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dicklesworthstone/sysdiag/internal/config"
	"github.com/Dicklesworthstone/sysdiag/internal/errors"
	"github.com/Dicklesworthstone/sysdiag/internal/procctl"
	"github.com/Dicklesworthstone/sysdiag/internal/session"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// stubDashboard records the session config instead of opening a terminal.
func stubDashboard(t *testing.T) *config.Config {
	t.Helper()
	got := &config.Config{}
	prev := dashboard
	dashboard = func(_ context.Context, sess *session.Session, _ *zap.Logger) error {
		*got = sess.Config()
		return nil
	}
	t.Cleanup(func() { dashboard = prev })
	return got
}

func stubTerminate(t *testing.T, fn func(context.Context, int32, time.Duration) (procctl.Outcome, error)) {
	t.Helper()
	prev := terminate
	terminate = fn
	t.Cleanup(func() { terminate = prev })
}

func TestRootFlagsReachSession(t *testing.T) {
	got := stubDashboard(t)

	_, err := execute(t, "--interval", "5s", "--cpu-threshold", "90", "--sort", "cpu", "--top", "5", "--log-output", "discard", "--battery=false")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, got.Interval)
	assert.Equal(t, 90.0, got.Thresholds.CPU)
	assert.Equal(t, "cpu", got.Sort)
	assert.Equal(t, 5, got.Top)
	assert.False(t, got.Battery)
	assert.Equal(t, 85.0, got.Thresholds.Memory, "unset flags keep defaults")
}

func TestRootConfigFileAndEnv(t *testing.T) {
	got := stubDashboard(t)
	path := filepath.Join(t.TempDir(), "sysdiag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("top: 9\nthresholds:\n  disk: 80\nhistory_capacity: 12\n"), 0o644))
	t.Setenv("SYSDIAG_HISTORY_CAPACITY", "20")

	_, err := execute(t, "--config", path, "--top", "3", "--log-output", "discard")
	require.NoError(t, err)

	assert.Equal(t, 3, got.Top, "flag beats file")
	assert.Equal(t, 80.0, got.Thresholds.Disk)
	assert.Equal(t, 20, got.HistoryCapacity, "env beats file")
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	stubDashboard(t)

	_, err := execute(t, "--cpu-threshold", "150")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Equal(t, 2, exitCode(err))

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestRootBadLogLevel(t *testing.T) {
	stubDashboard(t)

	_, err := execute(t, "--log-level", "chatty")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestRootJSONOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("reads live host metrics")
	}

	out, err := execute(t, "--json", "--log-output", "discard", "--top", "3")
	require.NoError(t, err)

	var rec struct {
		Data struct {
			Snapshot struct {
				CPUPercent float64 `json:"cpu_percent"`
				Processes  []any   `json:"processes"`
			} `json:"snapshot"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.GreaterOrEqual(t, rec.Data.Snapshot.CPUPercent, 0.0)
	assert.LessOrEqual(t, len(rec.Data.Snapshot.Processes), 3)
}

func TestKillCommand(t *testing.T) {
	var gotPID int32
	var gotWait time.Duration
	stubTerminate(t, func(_ context.Context, pid int32, wait time.Duration) (procctl.Outcome, error) {
		gotPID, gotWait = pid, wait
		if pid == 99 {
			return procctl.AlreadyGone, nil
		}
		return procctl.Terminated, nil
	})

	out, err := execute(t, "kill", "4242", "--timeout", "7s")
	require.NoError(t, err)
	assert.Equal(t, "pid 4242 terminated\n", out)
	assert.Equal(t, int32(4242), gotPID)
	assert.Equal(t, 7*time.Second, gotWait)

	out, err = execute(t, "kill", "99")
	require.NoError(t, err)
	assert.Equal(t, "pid 99 had already exited\n", out)
	assert.Equal(t, procctl.DefaultWait, gotWait)
}

func TestKillCommandJSON(t *testing.T) {
	stubTerminate(t, func(context.Context, int32, time.Duration) (procctl.Outcome, error) {
		return 0, errors.New(errors.ErrPermissionDenied, "permission denied terminating pid 1", "")
	})

	out, err := execute(t, "kill", "1", "--json")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrPermissionDenied))

	var res killResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, killResult{PID: 1, Code: "PERMISSION_DENIED", Error: "permission denied terminating pid 1"}, res)
}

func TestKillCommandInvalidPID(t *testing.T) {
	called := false
	stubTerminate(t, func(context.Context, int32, time.Duration) (procctl.Outcome, error) {
		called = true
		return procctl.Terminated, nil
	})

	for _, arg := range []string{"abc", "0", "-5", "99999999999"} {
		t.Run(arg, func(t *testing.T) {
			_, err := execute(t, "kill", "--", arg)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrInvalidPID))
			assert.Equal(t, 2, exitCode(err))
		})
	}
	assert.False(t, called)

	_, err := execute(t, "kill", "12", "--timeout", "0s")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	_, err = execute(t, "kill")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	prev := [3]string{version, commit, date}
	t.Cleanup(func() { SetVersionInfo(prev[0], prev[1], prev[2]) })
	SetVersionInfo("1.2.0", "abc123", "2026-10-14")

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "sysdiag v1.2.0\ncommit: abc123\nbuilt: 2026-10-14\n"))

	out, err = execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0\n", out)
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
	assert.Equal(t, "v1.0.0", formatVersion("1.0.0"))
	assert.Equal(t, "v2.0.0", formatVersion("v2.0.0"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(errors.New(errors.ErrIO, "x", "")))
	assert.Equal(t, 2, exitCode(errors.New(errors.ErrConfig, "x", "")))
}
