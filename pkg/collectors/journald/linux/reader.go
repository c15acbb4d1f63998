//go:build linux && cgo

// Package linux implements the journal reader on top of the systemd journal
// via go-systemd's sdjournal bindings. Requires cgo and libsystemd.
package linux

import (
	"fmt"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/sdjournal"

	"github.com/yairfalse/logship/pkg/collectors/journald/core"
)

// Reader implements core.JournalReader against a live systemd journal.
type Reader struct {
	journal *sdjournal.Journal
}

// Open opens the journal at the given path and seeks to its tail so only
// records written after startup are streamed.
func Open(path core.JournalPath) (core.JournalReader, error) {
	var (
		journal *sdjournal.Journal
		err     error
	)

	if path.Directory != "" {
		journal, err = sdjournal.NewJournalFromDir(path.Directory)
		if err != nil {
			return nil, fmt.Errorf("failed to open journald reader for directory %s: %w", path.Directory, err)
		}
	} else {
		journal, err = sdjournal.NewJournalFromFiles(path.Files...)
		if err != nil {
			return nil, fmt.Errorf("failed to open journald reader for files: %w", err)
		}
	}

	if err := journal.SeekTail(); err != nil {
		journal.Close()
		return nil, fmt.Errorf("failed to seek to tail of journald logs: %w", err)
	}

	return &Reader{journal: journal}, nil
}

// NextRecord advances the journal and returns the next record, or
// core.ErrNoMoreRecords when caught up.
func (r *Reader) NextRecord() (*core.Record, error) {
	n, err := r.journal.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to advance journal: %w", err)
	}
	if n == 0 {
		return nil, core.ErrNoMoreRecords
	}

	entry, err := r.journal.GetEntry()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal entry: %w", err)
	}

	record := &core.Record{Fields: entry.Fields}
	if entry.RealtimeTimestamp != 0 {
		usec := entry.RealtimeTimestamp
		record.Timestamp = time.Unix(int64(usec/1e6), int64(usec%1e6)*1000)
	}
	return record, nil
}

// Wait blocks until the journal changes or the timeout elapses.
func (r *Reader) Wait(timeout time.Duration) error {
	status := r.journal.Wait(timeout)
	switch status {
	case sdjournal.SD_JOURNAL_NOP:
		return core.ErrWaitTimeout
	case sdjournal.SD_JOURNAL_APPEND, sdjournal.SD_JOURNAL_INVALIDATE:
		return nil
	default:
		if status < 0 {
			return fmt.Errorf("journal wait failed: %w", syscall.Errno(-status))
		}
		return fmt.Errorf("journal wait returned unexpected status %d", status)
	}
}

// Close releases the journal handle.
func (r *Reader) Close() error {
	return r.journal.Close()
}
