package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/sysdiag/internal/errors"
	"github.com/Dicklesworthstone/sysdiag/internal/procctl"
)

// terminate is procctl.Terminate; tests replace it.
var terminate = procctl.Terminate

// killResult is the --json payload of the kill command.
type killResult struct {
	PID     int32  `json:"pid"`
	Outcome string `json:"outcome,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newKillCmd() *cobra.Command {
	var (
		timeout time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "kill PID",
		Short: "Terminate a process and wait for it to exit",
		Long: `Send a graceful termination request to PID and wait up to --timeout
for it to exit. A process that is already gone is reported, not treated as
an error.

Examples:
  sysdiag kill 4242
  sysdiag kill 4242 --timeout 10s --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return killCommand(cmd, args[0], timeout, asJSON)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", procctl.DefaultWait, "how long to wait for the process to exit")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func parsePID(s string) (int32, error) {
	pid, err := strconv.ParseInt(s, 10, 32)
	if err != nil || pid <= 0 {
		return 0, errors.New(errors.ErrInvalidPID,
			fmt.Sprintf("%q is not a valid process id", s),
			"pass a positive integer PID")
	}
	return int32(pid), nil
}

func killCommand(cmd *cobra.Command, arg string, timeout time.Duration, asJSON bool) error {
	pid, err := parsePID(arg)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		return errors.New(errors.ErrConfig, "--timeout must be positive", "")
	}

	outcome, err := terminate(cmd.Context(), pid, timeout)
	out := cmd.OutOrStdout()
	if asJSON {
		res := killResult{PID: pid}
		if err != nil {
			res.Code, res.Error = errors.Code(err), err.Error()
		} else {
			res.Outcome = outcome.String()
		}
		if werr := writeJSON(out, res); werr != nil {
			return werr
		}
		return err
	}
	if err != nil {
		return err
	}

	switch outcome {
	case procctl.AlreadyGone:
		fmt.Fprintf(out, "pid %d had already exited\n", pid)
	default:
		fmt.Fprintf(out, "pid %d terminated\n", pid)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, errors.ErrIO, "write json")
	}
	return nil
}
