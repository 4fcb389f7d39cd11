package ui

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/Dicklesworthstone/sysdiag/internal/errors"
	"github.com/Dicklesworthstone/sysdiag/internal/model"
	"github.com/Dicklesworthstone/sysdiag/internal/procctl"
	"github.com/Dicklesworthstone/sysdiag/internal/sampler"
	"github.com/Dicklesworthstone/sysdiag/internal/session"
)

// Refresh interval bounds for the +/- keys. Scheduling never goes below
// minInterval whatever the configured value.
const (
	minInterval  = 200 * time.Millisecond
	maxInterval  = 10 * time.Second
	intervalStep = 250 * time.Millisecond
)

// Model renders a live session and forwards user commands to it.
type Model struct {
	ctx       context.Context
	sess      *session.Session
	exportDir string
	log       *zap.Logger

	keys  keyMap
	help  help.Model
	table table.Model

	last     session.TickResult
	hasTick  bool
	ticking  bool
	paused   bool
	gen      int   // current timer; stale tickMsgs are dropped
	pending  int32 // pid awaiting confirmation, 0 when none
	status   string
	isErr    bool
	quitting bool
	width    int
	height   int
}

// New builds the dashboard for sess. Tick and process termination run with
// ctx.
func New(ctx context.Context, sess *session.Session, log *zap.Logger) *Model {
	return &Model{
		ctx:       ctx,
		sess:      sess,
		exportDir: sess.Config().ExportDir,
		log:       log,
		keys:      defaultKeys,
		help:      help.New(),
		table:     newProcessTable(),
		width:     120,
		height:    40,
	}
}

// Messages
type (
	tickMsg      struct{ gen int }
	resultMsg    session.TickResult
	terminateMsg struct {
		pid     int32
		outcome procctl.Outcome
		err     error
	}
	exportMsg struct {
		path string
		err  error
	}
)

// Init takes the first sample right away.
func (m *Model) Init() tea.Cmd { return m.sampleCmd() }

// sampleCmd runs one session tick off the UI goroutine. At most one is in
// flight; the next is scheduled once its result arrives.
func (m *Model) sampleCmd() tea.Cmd {
	m.ticking = true
	ctx, sess := context.WithoutCancel(m.ctx), m.sess
	return func() tea.Msg { return resultMsg(sess.Tick(ctx)) }
}

// scheduleTick arms the refresh timer, replacing any earlier one.
func (m *Model) scheduleTick() tea.Cmd {
	m.gen++
	gen := m.gen
	return tea.Tick(m.interval(), func(time.Time) tea.Msg { return tickMsg{gen: gen} })
}

// interval is the session's current refresh interval, floored at
// minInterval.
func (m *Model) interval() time.Duration {
	return max(m.sess.Config().Interval, minInterval)
}

// refresh takes a sample now unless one is already running.
func (m *Model) refresh() tea.Cmd {
	if m.ticking {
		return nil
	}
	return m.sampleCmd()
}

func (m *Model) terminateCmd(pid int32) tea.Cmd {
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		outcome, err := sess.TerminateProcess(ctx, pid)
		return terminateMsg{pid: pid, outcome: outcome, err: err}
	}
}

func (m *Model) exportCmd() tea.Cmd {
	dir, sess := m.exportDir, m.sess
	return func() tea.Msg {
		path, err := sess.ExportLogFile(dir)
		return exportMsg{path: path, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tickMsg:
		if msg.gen != m.gen || m.ticking || m.paused || m.quitting {
			return m, nil
		}
		return m, m.sampleCmd()
	case resultMsg:
		m.ticking = false
		m.apply(session.TickResult(msg))
		if m.quitting || m.paused {
			return m, nil
		}
		return m, m.scheduleTick()
	case terminateMsg:
		if m.applyTerminate(msg) {
			return m, m.refresh()
		}
	case exportMsg:
		if msg.err != nil {
			m.setStatus(describe(msg.err), true)
		} else {
			m.setStatus("exported "+msg.path, false)
		}
	}
	return m, nil
}

func (m *Model) apply(res session.TickResult) {
	m.last = res
	m.hasTick = true
	m.table.SetRows(processRows(res.Snapshot.Processes))

	switch {
	case res.Err != nil:
		m.setStatus(describe(res.Err), true)
	case len(res.NewlyFired) > 0:
		m.setStatus(fmt.Sprintf("ALERT %v crossed threshold", res.NewlyFired), true)
	}
}

// applyTerminate reports the outcome and whether the process list changed.
func (m *Model) applyTerminate(msg terminateMsg) bool {
	if msg.err != nil {
		m.setStatus(fmt.Sprintf("pid %d: %s", msg.pid, describe(msg.err)), true)
		return false
	}
	switch msg.outcome {
	case procctl.AlreadyGone:
		m.setStatus(fmt.Sprintf("pid %d had already exited", msg.pid), false)
	default:
		m.setStatus(fmt.Sprintf("pid %d terminated", msg.pid), false)
	}
	return true
}

func (m *Model) togglePause() tea.Cmd {
	m.paused = !m.paused
	if m.paused {
		m.gen++
		m.setStatus("auto-refresh paused", false)
		return nil
	}
	m.setStatus("auto-refresh resumed", false)
	if m.ticking {
		// The running tick schedules the next one.
		return nil
	}
	return m.scheduleTick()
}

// setInterval moves the refresh interval by delta within the key bounds.
func (m *Model) setInterval(delta time.Duration) tea.Cmd {
	cfg := m.sess.Config()
	next := min(max(cfg.Interval+delta, minInterval), maxInterval)
	if next == cfg.Interval {
		m.setStatus("refresh interval is "+cfg.Interval.String(), false)
		return nil
	}
	cfg.Interval = next
	if err := m.sess.Configure(cfg); err != nil {
		m.setStatus(describe(err), true)
		return nil
	}
	m.setStatus("refresh every "+next.String(), false)
	if m.paused || m.ticking {
		return nil
	}
	return m.scheduleTick()
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pending != 0 {
		pid := m.pending
		m.pending = 0
		if key.Matches(msg, m.keys.Confirm) {
			m.setStatus(fmt.Sprintf("terminating pid %d...", pid), false)
			return m, m.terminateCmd(pid)
		}
		m.setStatus("terminate cancelled", false)
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Pause):
		return m, m.togglePause()
	case key.Matches(msg, m.keys.Refresh):
		cmd := m.refresh()
		if cmd == nil {
			m.setStatus("a sample is already running", false)
		}
		return m, cmd
	case key.Matches(msg, m.keys.Slower):
		return m, m.setInterval(intervalStep)
	case key.Matches(msg, m.keys.Faster):
		return m, m.setInterval(-intervalStep)
	case key.Matches(msg, m.keys.ToggleLog):
		enable := !m.sess.Logging()
		if err := m.sess.SetLogging(enable); err != nil {
			m.setStatus(describe(err), true)
		} else if enable {
			m.setStatus("logging on", false)
		} else {
			m.setStatus("logging off", false)
		}
		return m, nil
	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()
	case key.Matches(msg, m.keys.Clear):
		m.sess.ClearLog()
		m.setStatus("log cleared", false)
		return m, nil
	case key.Matches(msg, m.keys.Sort):
		k := m.sess.SortKey().Toggle()
		m.sess.SetSortKey(k)
		procs := m.last.Snapshot.Processes
		m.last.Snapshot.Processes = sampler.RankProcesses(procs, len(procs), k)
		m.table.SetRows(processRows(m.last.Snapshot.Processes))
		m.setStatus("sorting by "+string(k), false)
		return m, nil
	case key.Matches(msg, m.keys.Kill):
		p, ok := m.selected()
		if !ok {
			m.setStatus("no process selected", true)
			return m, nil
		}
		m.pending = p.PID
		m.setStatus(fmt.Sprintf("terminate %s (pid %d)? y to confirm", displayName(p), p.PID), true)
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) selected() (model.Process, bool) {
	procs := m.last.Snapshot.Processes
	i := m.table.Cursor()
	if i < 0 || i >= len(procs) {
		return model.Process{}, false
	}
	return procs[i], true
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status, m.isErr = s, isErr
	if isErr {
		m.log.Debug("status", zap.String("message", s))
	}
}

// describe renders a coded error for the status line.
func describe(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		if e.Suggestion != "" {
			return e.Message + " (" + e.Suggestion + ")"
		}
		return e.Message
	}
	return err.Error()
}

func displayName(p model.Process) string {
	if p.Name == "" {
		return "<unknown>"
	}
	return p.Name
}

// Run starts the Bubble Tea program on the alternate screen and blocks until
// the user quits or ctx is cancelled.
func Run(ctx context.Context, sess *session.Session, log *zap.Logger) error {
	prog := tea.NewProgram(New(ctx, sess, log), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := prog.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
