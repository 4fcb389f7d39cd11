package model

import (
	"fmt"
	"strings"
	"time"
)

// Memory captures RAM usage in bytes for precision.
type Memory struct {
	Total     uint64  `json:"total"`
	Used      uint64  `json:"used"`
	Available uint64  `json:"available"`
	Percent   float64 `json:"percent"` // 0-100
}

// Disk captures usage of a single mount point.
type Disk struct {
	Mount   string  `json:"mount"`
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Free    uint64  `json:"free"`
	Percent float64 `json:"percent"` // 0-100
}

// Network holds bytes moved since the previous sample.
type Network struct {
	BytesSentDelta uint64 `json:"bytes_sent_delta"`
	BytesRecvDelta uint64 `json:"bytes_recv_delta"`
}

// Battery shows power state.
type Battery struct {
	Percent  float64 `json:"percent"`
	Charging bool    `json:"charging"`
}

// Process is a lightweight top entry. Name is empty when the OS hides it.
type Process struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Snapshot is one point-in-time reading exchanged between sampler, session
// and drivers. It is passed by value and never modified once built; holders
// must treat Processes as read-only.
type Snapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpu_percent"`
	Memory     Memory    `json:"memory"`
	Disk       Disk      `json:"disk"`
	Network    Network   `json:"network"`
	Battery    *Battery  `json:"battery,omitempty"` // nil without a battery sensor
	Processes  []Process `json:"processes"`
}

// SortKey selects the process ranking field.
type SortKey string

const (
	SortCPU    SortKey = "cpu"
	SortMemory SortKey = "mem"
)

// ParseSortKey accepts "cpu", "mem" and "memory".
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return SortCPU, nil
	case "mem", "memory":
		return SortMemory, nil
	}
	return "", fmt.Errorf("unknown sort key %q (want cpu or mem)", s)
}

// Value returns the field of p that k ranks by.
func (k SortKey) Value(p Process) float64 {
	if k == SortMemory {
		return p.MemoryPercent
	}
	return p.CPUPercent
}

// Toggle flips between cpu and memory ordering.
func (k SortKey) Toggle() SortKey {
	if k == SortMemory {
		return SortCPU
	}
	return SortMemory
}

// ClampPercent bounds v into [0,100]. NaN becomes 0.
func ClampPercent(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
