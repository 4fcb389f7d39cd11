package sampler

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/Dicklesworthstone/sysdiag/internal/model"
)

// DefaultPowerSupplyDir is where Linux exposes battery state.
const DefaultPowerSupplyDir = "/sys/class/power_supply"

// HostSource reads the local host through gopsutil and sysfs. It keeps the
// process handles it has seen so per-process CPU usage is measured since the
// previous call rather than over the process lifetime.
type HostSource struct {
	PowerSupplyDir string

	mu    sync.Mutex
	procs map[int32]*process.Process
}

// NewHostSource returns a Source for the local host.
func NewHostSource() *HostSource {
	return &HostSource{PowerSupplyDir: DefaultPowerSupplyDir}
}

func (h *HostSource) CPUPercent(ctx context.Context, window time.Duration) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, fmt.Errorf("no cpu times reported")
	}
	return pcts[0], nil
}

func (h *HostSource) Memory(ctx context.Context) (model.Memory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return model.Memory{}, err
	}
	return model.Memory{
		Total:     vm.Total,
		Used:      vm.Used,
		Available: vm.Available,
		Percent:   vm.UsedPercent,
	}, nil
}

func (h *HostSource) Disk(ctx context.Context, mount string) (model.Disk, error) {
	du, err := disk.UsageWithContext(ctx, mount)
	if err != nil {
		return model.Disk{}, err
	}
	return model.Disk{
		Mount:   mount,
		Total:   du.Total,
		Used:    du.Used,
		Free:    du.Free,
		Percent: du.UsedPercent,
	}, nil
}

func (h *HostSource) NetCounters(ctx context.Context) (uint64, uint64, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, 0, err
	}
	if len(counters) == 0 {
		return 0, 0, fmt.Errorf("no network counters reported")
	}
	return counters[0].BytesSent, counters[0].BytesRecv, nil
}

// Battery returns the first BAT* supply, or nil when there is none.
func (h *HostSource) Battery(ctx context.Context) (*model.Battery, error) {
	dir := h.PowerSupplyDir
	if dir == "" {
		dir = DefaultPowerSupplyDir
	}
	capPaths, _ := filepath.Glob(filepath.Join(dir, "BAT*", "capacity"))
	sort.Strings(capPaths)
	for _, capPath := range capPaths {
		capBytes, err := os.ReadFile(capPath)
		if err != nil {
			continue
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(string(capBytes)), 64)
		if err != nil {
			continue
		}
		stateBytes, _ := os.ReadFile(filepath.Join(filepath.Dir(capPath), "status"))
		state := strings.TrimSpace(string(stateBytes))
		return &model.Battery{
			Percent: pct,
			// "Full" is reported while plugged in at 100%.
			Charging: state == "Charging" || state == "Full",
		}, nil
	}
	return nil, nil
}

// Processes enumerates every process. Processes that exit mid-read are
// dropped; attributes the OS refuses to reveal are left zero. CPU usage is
// the share since the previous call, so a pid seen for the first time
// reports 0.
func (h *HostSource) Processes(ctx context.Context) ([]model.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[int32]*process.Process, len(procs))
	out := make([]model.Process, 0, len(procs))
	for _, fresh := range procs {
		if fresh.Pid <= 0 {
			continue
		}
		p := h.tracked(ctx, fresh)
		name, err := p.NameWithContext(ctx)
		if vanished(err) {
			continue
		}
		cpuPct, err := p.PercentWithContext(ctx, 0)
		if vanished(err) {
			continue
		}
		memPct, err := p.MemoryPercentWithContext(ctx)
		if vanished(err) {
			continue
		}
		seen[p.Pid] = p
		out = append(out, model.Process{
			PID:           p.Pid,
			Name:          name,
			CPUPercent:    cpuPct,
			MemoryPercent: float64(memPct),
		})
	}
	h.procs = seen
	return out, nil
}

// tracked returns the handle kept from an earlier call for the same process,
// or fresh when the pid is new or has been reused.
func (h *HostSource) tracked(ctx context.Context, fresh *process.Process) *process.Process {
	prev, ok := h.procs[fresh.Pid]
	if !ok {
		return fresh
	}
	prevStart, err := prev.CreateTimeWithContext(ctx)
	if err != nil {
		return fresh
	}
	freshStart, err := fresh.CreateTimeWithContext(ctx)
	if err != nil || freshStart != prevStart {
		return fresh
	}
	return prev
}

func vanished(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, process.ErrorProcessNotRunning) || stderrors.Is(err, os.ErrNotExist)
}
