package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Dicklesworthstone/sysdiag/internal/errors"
)

// EnvPrefix prefixes every environment override, e.g. SYSDIAG_INTERVAL.
const EnvPrefix = "SYSDIAG"

// NewViper returns a viper instance seeded with Default values and
// environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("interval", d.Interval)
	v.SetDefault("cpu_window", d.CPUWindow)
	v.SetDefault("sort", d.Sort)
	v.SetDefault("top", d.Top)
	v.SetDefault("mount_point", d.MountPoint)
	v.SetDefault("battery", d.Battery)
	v.SetDefault("thresholds.cpu", d.Thresholds.CPU)
	v.SetDefault("thresholds.mem", d.Thresholds.Memory)
	v.SetDefault("thresholds.disk", d.Thresholds.Disk)
	v.SetDefault("hysteresis_margin", d.HysteresisMargin)
	v.SetDefault("history_capacity", d.HistoryCapacity)
	v.SetDefault("log_cap", d.LogCap)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("log_on_start", d.LogOnStart)
	v.SetDefault("extended_csv", d.ExtendedCSV)
	v.SetDefault("export_dir", d.ExportDir)
	v.SetDefault("terminate_timeout", d.TerminateTimeout)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_output", d.LogOutput)
	v.SetDefault("json", d.JSON)
	v.SetDefault("json_stream", d.JSONStream)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"interval":          "interval",
	"cpu-window":        "cpu_window",
	"sort":              "sort",
	"top":               "top",
	"mount":             "mount_point",
	"battery":           "battery",
	"cpu-threshold":     "thresholds.cpu",
	"mem-threshold":     "thresholds.mem",
	"disk-threshold":    "thresholds.disk",
	"margin":            "hysteresis_margin",
	"history":           "history_capacity",
	"log-cap":           "log_cap",
	"log-file":          "log_file",
	"log-on-start":      "log_on_start",
	"extended-csv":      "extended_csv",
	"export-dir":        "export_dir",
	"terminate-timeout": "terminate_timeout",
	"log-level":         "log_level",
	"log-output":        "log_output",
	"json":              "json",
	"json-stream":       "json_stream",
}

// BindFlags binds every known flag present in fs to its config key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrap(err, errors.ErrConfig, "bind flag --"+name)
		}
	}
	return nil
}

// Load reads the optional config file at path (YAML, TOML or JSON by
// extension) into v, decodes the result and validates it.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.WrapWithSuggestion(err, errors.ErrConfig,
				"failed to read config file "+path,
				"check the file exists and is valid YAML or TOML")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.ErrConfig, "cannot decode config")
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
