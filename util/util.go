package util

import (
	"fmt"
	"io"
	"time"
)

///////////////////////////////////////////////////////////////////////////
// ReportingReader

// ReportingReader wraps an io.Reader and periodically reports how many
// bytes have been read and at what rate, driving the byte-count progress
// stream that verbose mode requires. A nil Log is fine: a nil *Logger
// writes every level to stderr, so both the periodic progress and the
// final summary on Close go there.
type ReportingReader struct {
	R                        io.Reader
	Msg                      string
	Log                      *Logger
	ReportEvery              int64 // bytes; 0 picks the default
	start                    time.Time
	reportCounter, readBytes int64
}

const defaultReportFrequency = 64 * 1024 * 1024

func (r *ReportingReader) Read(buf []byte) (int, error) {
	if r.start.IsZero() {
		r.start = time.Now()
		freq := r.ReportEvery
		if freq == 0 {
			freq = defaultReportFrequency
		}
		r.reportCounter = freq
		r.readBytes = 0
	}

	n, err := r.R.Read(buf)

	r.readBytes += int64(n)
	r.reportCounter -= int64(n)
	if r.reportCounter < 0 {
		r.report("")
		freq := r.ReportEvery
		if freq == 0 {
			freq = defaultReportFrequency
		}
		r.reportCounter += freq
	}

	return n, err
}

func (r *ReportingReader) report(prefix string) {
	delta := time.Since(r.start)
	bytesPerSec := int64(float64(r.readBytes) / delta.Seconds())
	r.Log.Verbose("%s%s %s [%s/s]", prefix, r.Msg, FmtBytes(r.readBytes),
		FmtBytes(bytesPerSec))
}

func (r *ReportingReader) Close() error {
	r.report("finished: ")
	if rc, ok := r.R.(io.ReadCloser); ok {
		return rc.Close()
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Utility Functions

func FmtBytes(n int64) string {
	switch {
	case n >= 1024*1024*1024*1024:
		return fmt.Sprintf("%.2f TiB", float64(n)/(1024.*1024.*1024.*1024.))
	case n >= 1024*1024*1024:
		return fmt.Sprintf("%.2f GiB", float64(n)/(1024.*1024.*1024.))
	case n > 1024*1024:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1024.*1024.))
	case n > 1024:
		return fmt.Sprintf("%.2f kiB", float64(n)/1024.)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
