package core

import (
	"errors"
	"time"
)

// Sentinel errors returned by JournalReader implementations.
var (
	// ErrNoMoreRecords means the reader is at the end of the journal.
	ErrNoMoreRecords = errors.New("no more journal records")

	// ErrWaitTimeout means a Wait returned without new data.
	ErrWaitTimeout = errors.New("journal wait timed out")
)

// JournalReader reads raw records from a journal. Opening and seeking to the
// tail happen at construction; a constructor that returns an error means the
// journal is unusable and the stream must not start.
type JournalReader interface {
	// NextRecord advances to and returns the next record. Returns
	// ErrNoMoreRecords when the reader has caught up with the journal.
	// Any other error is an unrecoverable reader fault.
	NextRecord() (*Record, error)

	// Wait blocks until new journal data is available or the timeout
	// elapses. Returns ErrWaitTimeout on timeout, nil when data arrived,
	// and any other error on an unrecoverable reader fault.
	Wait(timeout time.Duration) error

	// Close releases the reader.
	Close() error
}

// OpenReader opens a journal at the given path and seeks to its tail.
type OpenReader func(path JournalPath) (JournalReader, error)
