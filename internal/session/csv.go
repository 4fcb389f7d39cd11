package session

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// errHeaderMismatch reports an existing log file whose columns differ from
// the ones this session would write.
var errHeaderMismatch = stderrors.New("csv header mismatch")

// TimestampLayout is the CSV timestamp format (local time, seconds).
const TimestampLayout = "2006-01-02T15:04:05"

// LogEntry is one logged tick.
type LogEntry struct {
	Timestamp     time.Time
	CPU           float64
	MemPct        float64
	DiskPct       float64
	UploadBytes   uint64
	DownloadBytes uint64
	BatteryPct    *float64 // nil without a battery
}

var (
	baseHeader     = []string{"timestamp", "cpu", "mem_pct", "disk_pct"}
	extendedHeader = []string{"upload_bytes", "download_bytes", "battery_pct"}
)

func csvHeader(extended bool) []string {
	h := append([]string{}, baseHeader...)
	if extended {
		h = append(h, extendedHeader...)
	}
	return h
}

func csvRecord(e LogEntry, extended bool) []string {
	rec := []string{
		e.Timestamp.Format(TimestampLayout),
		formatFloat(e.CPU),
		formatFloat(e.MemPct),
		formatFloat(e.DiskPct),
	}
	if extended {
		batt := ""
		if e.BatteryPct != nil {
			batt = formatFloat(*e.BatteryPct)
		}
		rec = append(rec,
			strconv.FormatUint(e.UploadBytes, 10),
			strconv.FormatUint(e.DownloadBytes, 10),
			batt,
		)
	}
	return rec
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeCSV writes a header and one row per entry.
func writeCSV(w io.Writer, entries []LogEntry, extended bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader(extended)); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(csvRecord(e, extended)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvSink mirrors logged entries into an append-mode file.
type csvSink struct {
	f        *os.File
	w        *csv.Writer
	extended bool
}

// openCSVSink opens path for appending, writing the header only when the
// file is empty. A non-empty file must start with the same header.
func openCSVSink(path string, extended bool) (*csvSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	header := csvHeader(extended)
	if info.Size() > 0 {
		if err := checkHeader(f, header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	s := &csvSink{f: f, w: csv.NewWriter(f), extended: extended}
	if info.Size() == 0 {
		if err := s.writeRecord(header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

func checkHeader(r io.Reader, want []string) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	got, err := cr.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	if !slices.Equal(got, want) {
		return fmt.Errorf("%w: file has %q, want %q", errHeaderMismatch,
			strings.Join(got, ","), strings.Join(want, ","))
	}
	return nil
}

func (s *csvSink) write(e LogEntry) error {
	return s.writeRecord(csvRecord(e, s.extended))
}

// writeRecord writes and flushes one row.
func (s *csvSink) writeRecord(rec []string) error {
	if err := s.w.Write(rec); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *csvSink) close() error {
	s.w.Flush()
	return stderrors.Join(s.w.Error(), s.f.Close())
}
