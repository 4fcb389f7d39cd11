// Package session owns the state of one monitoring run: rolling history,
// alert hysteresis, the capped sample log and its optional CSV sink.
//
// A driver calls Tick at the refresh interval. Ticks are serialized; views
// and TerminateProcess may be called from other goroutines at any time.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/sysdiag/internal/alert"
	"github.com/Dicklesworthstone/sysdiag/internal/config"
	"github.com/Dicklesworthstone/sysdiag/internal/errors"
	"github.com/Dicklesworthstone/sysdiag/internal/history"
	"github.com/Dicklesworthstone/sysdiag/internal/model"
	"github.com/Dicklesworthstone/sysdiag/internal/procctl"
)

// Sampler produces snapshots. *sampler.Sampler satisfies it.
type Sampler interface {
	Sample(ctx context.Context, topN int, key model.SortKey) (model.Snapshot, error)
}

// Terminator ends a process with a bounded wait. procctl.Terminate
// satisfies it.
type Terminator func(ctx context.Context, pid int32, wait time.Duration) (procctl.Outcome, error)

// HistoryView is a copy of the three series, oldest first.
type HistoryView struct {
	CPU    []float64 `json:"cpu"`
	Memory []float64 `json:"mem"`
	Disk   []float64 `json:"disk"`
}

// TickResult is what a driver renders after each tick.
type TickResult struct {
	Snapshot model.Snapshot `json:"snapshot"`
	// NewlyFired lists metrics that started alerting on this tick, in
	// alert.Metrics order.
	NewlyFired []alert.Metric `json:"newly_fired"`
	History    HistoryView    `json:"history"`
	// Err is set when sampling was only partially successful or the CSV
	// sink failed. History, alerts and the log are untouched when sampling
	// failed.
	Err error `json:"-"`
}

// Session is one monitoring run.
type Session struct {
	sampler   Sampler
	terminate Terminator
	log       *zap.Logger
	now       func() time.Time

	tickMu sync.Mutex

	mu       sync.RWMutex
	cfg      config.Config
	sortKey  model.SortKey
	cpuHist  *history.Ring[float64]
	memHist  *history.Ring[float64]
	diskHist *history.Ring[float64]
	alerts   *alert.Tracker
	entries  *history.Ring[LogEntry]
	logging  bool
	sink     *csvSink
	closed   bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithTerminator replaces procctl.Terminate.
func WithTerminator(t Terminator) Option {
	return func(s *Session) { s.terminate = t }
}

// WithClock overrides time.Now for export file names.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New validates cfg and creates a session. Logging starts enabled when
// cfg.LogOnStart is set.
func New(cfg config.Config, sampler Sampler, opts ...Option) (*Session, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	s := &Session{
		sampler:   sampler,
		terminate: procctl.Terminate,
		log:       zap.NewNop(),
		now:       time.Now,
		cfg:       cfg,
		sortKey:   cfg.SortKey(),
		cpuHist:   history.NewRing[float64](cfg.HistoryCapacity),
		memHist:   history.NewRing[float64](cfg.HistoryCapacity),
		diskHist:  history.NewRing[float64](cfg.HistoryCapacity),
		alerts:    alert.NewTracker(thresholds(cfg), cfg.HysteresisMargin),
		entries:   history.NewRing[LogEntry](cfg.LogCap),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.LogOnStart {
		if err := s.SetLogging(true); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func thresholds(cfg config.Config) alert.Thresholds {
	return alert.Thresholds{
		alert.CPU:    cfg.Thresholds.CPU,
		alert.Memory: cfg.Thresholds.Memory,
		alert.Disk:   cfg.Thresholds.Disk,
	}
}

// Configure applies a new configuration to a live session. Buffers are
// resized keeping their most recent values; alert states are kept. An open
// CSV sink stays on its original file until logging is toggled.
func (s *Session) Configure(cfg config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.HistoryCapacity != s.cfg.HistoryCapacity {
		s.cpuHist = s.cpuHist.Resized(cfg.HistoryCapacity)
		s.memHist = s.memHist.Resized(cfg.HistoryCapacity)
		s.diskHist = s.diskHist.Resized(cfg.HistoryCapacity)
	}
	if cfg.LogCap != s.cfg.LogCap {
		s.entries = s.entries.Resized(cfg.LogCap)
	}
	if cfg.Sort != s.cfg.Sort {
		s.sortKey = cfg.SortKey()
	}
	s.alerts.Reconfigure(thresholds(cfg), cfg.HysteresisMargin)
	s.cfg = cfg
	return nil
}

// Tick samples once and folds the snapshot into session state.
func (s *Session) Tick(ctx context.Context) TickResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.RLock()
	closed, topN, key := s.closed, s.cfg.Top, s.sortKey
	s.mu.RUnlock()
	if closed {
		return TickResult{
			NewlyFired: []alert.Metric{},
			History:    s.History(),
			Err:        errors.New(errors.ErrSessionClosed, "session is shut down", ""),
		}
	}

	snap, err := s.sampler.Sample(ctx, topN, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	res := TickResult{Snapshot: snap, NewlyFired: []alert.Metric{}, Err: err}
	if err != nil {
		s.log.Warn("sample failed", zap.String("code", errors.Code(err)), zap.Error(err))
		res.History = s.historyLocked()
		return res
	}

	s.cpuHist.Push(snap.CPUPercent)
	s.memHist.Push(snap.Memory.Percent)
	s.diskHist.Push(snap.Disk.Percent)

	res.NewlyFired = s.alerts.ObserveAll(map[alert.Metric]float64{
		alert.CPU:    snap.CPUPercent,
		alert.Memory: snap.Memory.Percent,
		alert.Disk:   snap.Disk.Percent,
	})
	for _, m := range res.NewlyFired {
		s.log.Info("alert fired", zap.String("metric", string(m)), zap.Float64("threshold", s.alerts.Threshold(m)))
	}

	if s.logging {
		entry := entryFrom(snap)
		s.entries.Push(entry)
		if s.sink != nil {
			if werr := s.sink.write(entry); werr != nil {
				s.log.Error("csv sink write failed, closing it", zap.Error(werr))
				_ = s.sink.close()
				s.sink = nil
				res.Err = errors.Wrap(werr, errors.ErrIO, "write log file")
			}
		}
	}

	res.History = s.historyLocked()
	return res
}

func entryFrom(snap model.Snapshot) LogEntry {
	e := LogEntry{
		Timestamp:     snap.Timestamp,
		CPU:           snap.CPUPercent,
		MemPct:        snap.Memory.Percent,
		DiskPct:       snap.Disk.Percent,
		UploadBytes:   snap.Network.BytesSentDelta,
		DownloadBytes: snap.Network.BytesRecvDelta,
	}
	if snap.Battery != nil {
		pct := snap.Battery.Percent
		e.BatteryPct = &pct
	}
	return e
}

// SetLogging turns sample logging on or off. Repeating the current state is
// a no-op. Turning it on opens the configured CSV file in append mode;
// turning it off closes it.
func (s *Session) SetLogging(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enabled == s.logging {
		return nil
	}
	if !enabled {
		s.logging = false
		return s.closeSinkLocked()
	}
	if s.closed {
		return errors.New(errors.ErrSessionClosed, "session is shut down", "")
	}

	if s.cfg.LogFile != "" {
		sink, err := openCSVSink(s.cfg.LogFile, s.cfg.ExtendedCSV)
		if stderrors.Is(err, errHeaderMismatch) {
			return errors.WrapWithSuggestion(err, errors.ErrIO,
				"log file "+s.cfg.LogFile+" has different columns",
				"set extended_csv to match the file or choose a new log_file")
		}
		if err != nil {
			return errors.WrapWithSuggestion(err, errors.ErrIO,
				"cannot open log file "+s.cfg.LogFile,
				"check log_file points to a writable location")
		}
		s.sink = sink
	}
	s.logging = true
	s.log.Info("logging started", zap.String("file", s.cfg.LogFile))
	return nil
}

func (s *Session) closeSinkLocked() error {
	if s.sink == nil {
		return nil
	}
	err := s.sink.close()
	s.sink = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrIO, "close log file")
	}
	s.log.Info("logging stopped")
	return nil
}

// ExportLog writes every retained entry, oldest first, as CSV. It fails
// with EMPTY_LOG without touching w when there is nothing to export.
func (s *Session) ExportLog(w io.Writer) error {
	entries, extended, err := s.exportable()
	if err != nil {
		return err
	}
	if err := writeCSV(w, entries, extended); err != nil {
		return errors.Wrap(err, errors.ErrIO, "export log")
	}
	return nil
}

// maxExportSuffix bounds the numbered names tried when exports collide
// within one second.
const maxExportSuffix = 100

// ExportLogFile exports into a new timestamped file under dir and returns
// its path. An existing file is never overwritten: a later export in the
// same second gets a numbered name. No file is created for an empty log.
func (s *Session) ExportLogFile(dir string) (string, error) {
	entries, extended, err := s.exportable()
	if err != nil {
		return "", err
	}

	f, path, err := createExportFile(dir, s.now().Format("20060102-150405"))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrIO, "create export file")
	}
	werr := writeCSV(f, entries, extended)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return "", errors.Wrap(werr, errors.ErrIO, "write export file")
	}
	s.log.Info("log exported", zap.String("path", path), zap.Int("entries", len(entries)))
	return path, nil
}

func createExportFile(dir, stamp string) (*os.File, string, error) {
	for i := 0; i < maxExportSuffix; i++ {
		name := fmt.Sprintf("sysdiag-log-%s.csv", stamp)
		if i > 0 {
			name = fmt.Sprintf("sysdiag-log-%s-%d.csv", stamp, i)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !stderrors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("%d export files already exist for %s", maxExportSuffix, stamp)
}

func (s *Session) exportable() ([]LogEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entries.Len() == 0 {
		return nil, false, errors.New(errors.ErrEmptyLog,
			"there are no logged samples to export yet",
			"enable logging and wait for a few ticks")
	}
	return s.entries.Values(), s.cfg.ExtendedCSV, nil
}

// ClearLog drops every retained entry. History and alerts are unaffected.
func (s *Session) ClearLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Reset()
}

// TerminateProcess ends pid, waiting up to the configured timeout. It does
// not touch session state and is not serialized against Tick.
func (s *Session) TerminateProcess(ctx context.Context, pid int32) (procctl.Outcome, error) {
	s.mu.RLock()
	wait := s.cfg.TerminateTimeout
	s.mu.RUnlock()

	outcome, err := s.terminate(ctx, pid, wait)
	if err != nil {
		s.log.Warn("terminate failed", zap.Int32("pid", pid), zap.String("code", errors.Code(err)), zap.Error(err))
		return outcome, err
	}
	s.log.Info("terminate", zap.Int32("pid", pid), zap.Stringer("outcome", outcome))
	return outcome, nil
}

// SetSortKey changes the process ranking used by the next tick.
func (s *Session) SetSortKey(k model.SortKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortKey = k
}

// SortKey returns the current process ranking.
func (s *Session) SortKey() model.SortKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortKey
}

// Shutdown stops logging and closes the CSV sink. Later ticks fail with
// SESSION_CLOSED. Calling it twice is harmless.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logging = false
	return s.closeSinkLocked()
}

// History returns copies of the three series.
func (s *Session) History() HistoryView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyLocked()
}

func (s *Session) historyLocked() HistoryView {
	return HistoryView{
		CPU:    s.cpuHist.Values(),
		Memory: s.memHist.Values(),
		Disk:   s.diskHist.Values(),
	}
}

// Entries returns a copy of the retained log, oldest first.
func (s *Session) Entries() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Values()
}

// LastLogged returns the newest retained log entry, if any.
func (s *Session) LastLogged() (LogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Latest()
}

// LogLen is the number of retained log entries.
func (s *Session) LogLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Len()
}

// Logging reports whether ticks are being logged.
func (s *Session) Logging() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logging
}

// Alerting reports whether m is currently in the alerting state.
func (s *Session) Alerting(m alert.Metric) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alerts.State(m) == alert.Alerting
}

// Threshold returns the configured rising threshold for m.
func (s *Session) Threshold(m alert.Metric) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alerts.Threshold(m)
}

// Config returns the active configuration.
func (s *Session) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}
