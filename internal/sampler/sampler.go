// Package sampler turns OS metric queries into immutable model.Snapshots.
package sampler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/sysdiag/internal/errors"
	"github.com/Dicklesworthstone/sysdiag/internal/model"
)

// DefaultCPUWindow is the blocking window used to measure instantaneous CPU.
const DefaultCPUWindow = 100 * time.Millisecond

// DefaultMount is the disk usage mount point.
const DefaultMount = "/"

// Source is the OS metrics provider. Processes must already exclude
// processes that vanished during enumeration; unreadable attributes are
// reported as zero values.
type Source interface {
	CPUPercent(ctx context.Context, window time.Duration) (float64, error)
	Memory(ctx context.Context) (model.Memory, error)
	Disk(ctx context.Context, mount string) (model.Disk, error)
	NetCounters(ctx context.Context) (sent, recv uint64, err error)
	Battery(ctx context.Context) (*model.Battery, error)
	Processes(ctx context.Context) ([]model.Process, error)
}

// Sampler produces one Snapshot per Sample call and keeps the network
// counter baseline between calls.
type Sampler struct {
	src       Source
	mount     string
	cpuWindow time.Duration
	battery   bool
	now       func() time.Time
	log       *zap.Logger

	mu       sync.Mutex
	haveNet  bool
	prevSent uint64
	prevRecv uint64
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithMount sets the mount point whose usage is reported.
func WithMount(mount string) Option {
	return func(s *Sampler) { s.mount = mount }
}

// WithCPUWindow sets the CPU measurement window. Zero compares against the
// previous call instead of blocking.
func WithCPUWindow(d time.Duration) Option {
	return func(s *Sampler) { s.cpuWindow = d }
}

// WithBattery enables or disables battery reads.
func WithBattery(enabled bool) Option {
	return func(s *Sampler) { s.battery = enabled }
}

// WithClock overrides time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// WithLogger sets the logger used for debug output.
func WithLogger(log *zap.Logger) Option {
	return func(s *Sampler) { s.log = log }
}

// New creates a Sampler over src.
func New(src Source, opts ...Option) *Sampler {
	s := &Sampler{
		src:       src,
		mount:     DefaultMount,
		cpuWindow: DefaultCPUWindow,
		battery:   true,
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample reads every metric once. Per-process failures never fail the call.
// When a system-wide query fails the returned snapshot is still filled with
// whatever could be read and the error carries the METRICS_UNAVAILABLE code.
func (s *Sampler) Sample(ctx context.Context, topN int, key model.SortKey) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []string
	var causes []error
	fail := func(what string, err error) {
		failed = append(failed, what)
		causes = append(causes, fmt.Errorf("%s: %w", what, err))
	}

	cpuPct, err := s.src.CPUPercent(ctx, s.cpuWindow)
	if err != nil {
		fail("cpu", err)
	}
	snap := model.Snapshot{
		Timestamp:  s.now(),
		CPUPercent: model.ClampPercent(cpuPct),
	}

	if memStat, err := s.src.Memory(ctx); err != nil {
		fail("memory", err)
	} else {
		memStat.Percent = model.ClampPercent(memStat.Percent)
		snap.Memory = memStat
	}

	if du, err := s.src.Disk(ctx, s.mount); err != nil {
		fail("disk", err)
		snap.Disk = model.Disk{Mount: s.mount}
	} else {
		du.Mount = s.mount
		du.Percent = model.ClampPercent(du.Percent)
		snap.Disk = du
	}

	if sent, recv, err := s.src.NetCounters(ctx); err != nil {
		fail("network", err)
	} else {
		snap.Network = s.netDelta(sent, recv)
	}

	if s.battery {
		batt, err := s.src.Battery(ctx)
		if err != nil {
			s.log.Debug("battery read failed", zap.Error(err))
		} else if batt != nil {
			b := *batt
			b.Percent = model.ClampPercent(b.Percent)
			snap.Battery = &b
		}
	}

	procs, err := s.src.Processes(ctx)
	if err != nil {
		fail("processes", err)
	}
	snap.Processes = RankProcesses(procs, topN, key)

	if len(failed) > 0 {
		return snap, errors.Wrap(stderrors.Join(causes...), errors.ErrMetricsUnavailable,
			"metrics unavailable: "+strings.Join(failed, ", "))
	}
	return snap, nil
}

// netDelta converts cumulative counters into bytes since the previous call.
// Must be called with s.mu held.
func (s *Sampler) netDelta(sent, recv uint64) model.Network {
	var n model.Network
	if s.haveNet {
		// A counter that moved backwards was reset; report nothing for it.
		if sent >= s.prevSent {
			n.BytesSentDelta = sent - s.prevSent
		}
		if recv >= s.prevRecv {
			n.BytesRecvDelta = recv - s.prevRecv
		}
	}
	s.prevSent, s.prevRecv, s.haveNet = sent, recv, true
	return n
}

// RankProcesses returns the topN entries of procs ordered by key, highest
// first. Ties keep their input order. procs is not modified.
func RankProcesses(procs []model.Process, topN int, key model.SortKey) []model.Process {
	if topN <= 0 || len(procs) == 0 {
		return []model.Process{}
	}

	ranked := make([]model.Process, len(procs))
	copy(ranked, procs)
	sort.SliceStable(ranked, func(i, j int) bool {
		return key.Value(ranked[i]) > key.Value(ranked[j])
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
