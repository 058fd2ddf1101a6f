package job

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// LogReader replays and tails one job log.
type LogReader struct {
	job      *Job
	file     *os.File
	reader   *bufio.Reader
	partial  []byte
	interval time.Duration
	done     bool
}

func newLogReader(j *Job, interval time.Duration) (*LogReader, error) {
	f, err := os.Open(j.logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open job log: %w", err)
	}
	return &LogReader{
		job:      j,
		file:     f,
		reader:   bufio.NewReader(f),
		interval: interval,
	}, nil
}

// Next returns the next record, blocking until one is written. After the
// EOF record has been returned it returns io.EOF.
func (r *LogReader) Next(ctx context.Context) (Record, error) {
	if r.done {
		return Record{}, io.EOF
	}

	for {
		// Take the notification channel before reading so an append
		// between the read and the wait is not missed.
		changed := r.job.changed()

		line, err := r.reader.ReadBytes('\n')
		r.partial = append(r.partial, line...)
		if err == nil {
			raw := bytes.TrimSpace(r.partial)
			r.partial = r.partial[:0]
			if len(raw) == 0 {
				continue
			}
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return Record{}, fmt.Errorf("corrupt job log line: %w", err)
			}
			if rec.IsEOF() {
				r.done = true
			}
			return rec, nil
		}
		if !errors.Is(err, io.EOF) {
			return Record{}, fmt.Errorf("failed to read job log: %w", err)
		}

		select {
		case <-ctx.Done():
			return Record{}, ctx.Err()
		case <-changed:
		case <-time.After(r.interval):
		}
	}
}

// Close releases the log file.
func (r *LogReader) Close() error {
	return r.file.Close()
}
