package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dicklesworthstone/sysdiag/internal/errors"
	"github.com/Dicklesworthstone/sysdiag/internal/model"
)

// Thresholds are rising alert thresholds in percent.
type Thresholds struct {
	CPU    float64 `mapstructure:"cpu"`
	Memory float64 `mapstructure:"mem"`
	Disk   float64 `mapstructure:"disk"`
}

// Config carries runtime options for sysdiag.
type Config struct {
	Interval         time.Duration `mapstructure:"interval"`
	CPUWindow        time.Duration `mapstructure:"cpu_window"`
	Sort             string        `mapstructure:"sort"`
	Top              int           `mapstructure:"top"`
	MountPoint       string        `mapstructure:"mount_point"`
	Battery          bool          `mapstructure:"battery"`
	Thresholds       Thresholds    `mapstructure:"thresholds"`
	HysteresisMargin float64       `mapstructure:"hysteresis_margin"`
	HistoryCapacity  int           `mapstructure:"history_capacity"`
	LogCap           int           `mapstructure:"log_cap"`
	LogFile          string        `mapstructure:"log_file"`
	LogOnStart       bool          `mapstructure:"log_on_start"`
	ExtendedCSV      bool          `mapstructure:"extended_csv"`
	ExportDir        string        `mapstructure:"export_dir"`
	TerminateTimeout time.Duration `mapstructure:"terminate_timeout"`
	LogLevel         string        `mapstructure:"log_level"`
	LogOutput        string        `mapstructure:"log_output"`
	JSON             bool          `mapstructure:"json"`
	JSONStream       bool          `mapstructure:"json_stream"`
}

func Default() Config {
	return Config{
		Interval:   2 * time.Second,
		CPUWindow:  100 * time.Millisecond,
		Sort:       "mem",
		Top:        30,
		MountPoint: "/",
		Battery:    true,
		Thresholds: Thresholds{
			CPU:    85,
			Memory: 85,
			Disk:   95,
		},
		HysteresisMargin: 5,
		HistoryCapacity:  30,
		LogCap:           5000,
		ExtendedCSV:      false,
		ExportDir:        ".",
		TerminateTimeout: 3 * time.Second,
		LogLevel:         "info",
		LogOutput:        "stderr",
	}
}

// SortKey returns the parsed process sort key.
func (c Config) SortKey() model.SortKey {
	k, err := model.ParseSortKey(c.Sort)
	if err != nil {
		return model.SortMemory
	}
	return k
}

// Validate rejects configurations no session can run with.
func Validate(c Config) error {
	if c.Interval <= 0 {
		return invalid("interval must be positive, got %s", c.Interval)
	}
	if c.CPUWindow < 0 {
		return invalid("cpu_window must not be negative, got %s", c.CPUWindow)
	}
	if _, err := model.ParseSortKey(c.Sort); err != nil {
		return invalid("sort: %v", err)
	}
	if c.Top < 0 {
		return invalid("top must not be negative, got %d", c.Top)
	}
	if strings.TrimSpace(c.MountPoint) == "" {
		return invalid("mount_point must not be empty")
	}
	for _, th := range []struct {
		name  string
		value float64
	}{
		{"thresholds.cpu", c.Thresholds.CPU},
		{"thresholds.mem", c.Thresholds.Memory},
		{"thresholds.disk", c.Thresholds.Disk},
	} {
		if th.value < 0 || th.value > 100 || th.value != th.value {
			return invalid("%s must be between 0 and 100, got %v", th.name, th.value)
		}
	}
	if c.HysteresisMargin < 0 || c.HysteresisMargin != c.HysteresisMargin {
		return invalid("hysteresis_margin must not be negative, got %v", c.HysteresisMargin)
	}
	if c.HistoryCapacity <= 0 {
		return invalid("history_capacity must be positive, got %d", c.HistoryCapacity)
	}
	if c.LogCap <= 0 {
		return invalid("log_cap must be positive, got %d", c.LogCap)
	}
	if c.TerminateTimeout <= 0 {
		return invalid("terminate_timeout must be positive, got %s", c.TerminateTimeout)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.New(errors.ErrConfig, fmt.Sprintf(format, args...), "check flags, SYSDIAG_* variables and the config file")
}
