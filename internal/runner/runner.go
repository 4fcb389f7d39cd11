// Package runner drives a session without a terminal UI: a fixed-interval
// tick loop and the NDJSON output modes built on it.
package runner

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/sysdiag/internal/errors"
	"github.com/Dicklesworthstone/sysdiag/internal/session"
)

// Ticker is the part of a session a driver needs.
type Ticker interface {
	Tick(ctx context.Context) session.TickResult
}

// HandlerFunc receives every tick result. Returning an error stops Run.
type HandlerFunc func(session.TickResult) error

// Run ticks immediately and then every interval until ctx is done or fn
// returns an error. The timer is re-armed only after a tick completes, so a
// slow sample delays the next one instead of queueing ticks behind it.
// Cancelling ctx stops the loop before the next tick; a tick already in
// flight runs to completion. A cancelled context is not reported as an error.
func Run(ctx context.Context, t Ticker, interval time.Duration, fn HandlerFunc) error {
	if interval <= 0 {
		return errors.New(errors.ErrConfig, "interval must be positive", "")
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		res := t.Tick(context.WithoutCancel(ctx))
		if errors.IsCode(res.Err, errors.ErrSessionClosed) {
			return nil
		}
		if err := fn(res); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		timer.Reset(interval)
	}
}

// Record is one NDJSON line.
type Record struct {
	Success bool                `json:"success"`
	Data    *session.TickResult `json:"data,omitempty"`
	Error   *RecordError        `json:"error,omitempty"`
}

// RecordError carries a coded error for machine consumers.
type RecordError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// NewRecord builds the line for one tick. A partial sample still carries
// its data alongside the error.
func NewRecord(res session.TickResult) Record {
	rec := Record{Success: res.Err == nil, Data: &res}
	if res.Err != nil {
		rec.Error = toRecordError(res.Err)
	}
	return rec
}

func toRecordError(err error) *RecordError {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return &RecordError{Code: e.Code, Message: e.Message, Suggestion: e.Suggestion}
	}
	return &RecordError{Code: "UNKNOWN", Message: err.Error()}
}

// Stream writes one compact JSON object per tick to w until ctx is done.
func Stream(ctx context.Context, w io.Writer, t Ticker, interval time.Duration, log *zap.Logger) error {
	enc := json.NewEncoder(w)
	return Run(ctx, t, interval, func(res session.TickResult) error {
		if res.Err != nil {
			log.Warn("tick failed", zap.String("code", errors.Code(res.Err)), zap.Error(res.Err))
		}
		if err := enc.Encode(NewRecord(res)); err != nil {
			return errors.Wrap(err, errors.ErrIO, "write json stream")
		}
		return nil
	})
}

// Once takes a single tick and writes it to w as indented JSON.
func Once(ctx context.Context, w io.Writer, t Ticker) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewRecord(t.Tick(ctx))); err != nil {
		return errors.Wrap(err, errors.ErrIO, "write json")
	}
	return nil
}
