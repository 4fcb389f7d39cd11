// Package logger builds the zap logger used across sysdiag.
package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output targets understood by New besides a file path.
const (
	OutputStderr  = "stderr"
	OutputStdout  = "stdout"
	OutputDiscard = "discard"
)

// New creates a JSON logger at the given level ("debug", "info", "warn",
// "error", case-insensitive) writing to output. Output is one of the Output*
// constants or a file path opened in append mode. The returned close func
// releases the file, if any.
func New(level, output string) (*zap.Logger, func() error, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, nil, err
	}

	w, closeFn, err := openOutput(output)
	if err != nil {
		return nil, nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		zapLevel,
	)

	return zap.New(core, zap.AddCaller()), closeFn, nil
}

func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }
	switch strings.TrimSpace(output) {
	case "", OutputStderr:
		return os.Stderr, noop, nil
	case OutputStdout:
		return os.Stdout, noop, nil
	case OutputDiscard:
		return io.Discard, noop, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// Flush forces any buffered log entries to be written.
func Flush(l *zap.Logger) {
	// Sync on a terminal or pipe fails with EINVAL on some platforms; that
	// is harmless.
	_ = l.Sync()
}
