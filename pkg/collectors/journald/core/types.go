package core

import (
	"time"
)

// JournalPath selects what the journal reader opens: a directory holding a
// unified journal, or an explicit set of journal files. Immutable once
// constructed; the stream clones it when it respawns a worker.
type JournalPath struct {
	// Directory is the journal directory to open. Empty when Files is set.
	Directory string

	// Files is an explicit list of journal files. Empty when Directory is set.
	Files []string
}

// DirectoryPath returns a JournalPath for a journal directory.
func DirectoryPath(dir string) JournalPath {
	return JournalPath{Directory: dir}
}

// FilesPath returns a JournalPath for an explicit set of journal files.
func FilesPath(files ...string) JournalPath {
	return JournalPath{Files: files}
}

// Clone returns an independent copy of the path.
func (p JournalPath) Clone() JournalPath {
	c := JournalPath{Directory: p.Directory}
	if p.Files != nil {
		c.Files = make([]string, len(p.Files))
		copy(c.Files, p.Files)
	}
	return c
}

// Record is one raw journal entry: its named fields plus the associated
// realtime timestamp. A zero Timestamp means the journal had no readable
// timestamp for the entry. Records are read-only once produced.
type Record struct {
	Fields    map[string]string
	Timestamp time.Time
}

// RecordStatus is the outcome of reading and formatting one record.
type RecordStatus int

const (
	// RecordAccepted means a line was produced.
	RecordAccepted RecordStatus = iota

	// RecordRejected means the record was dropped (missing field, unknown
	// transport). Already logged; the caller moves on to the next record.
	RecordRejected

	// RecordExhausted means no record is currently available and the caller
	// should wait for the journal to grow.
	RecordExhausted
)

// Config configures a journald stream.
type Config struct {
	// Path selects the journal to read.
	Path JournalPath

	// QueueCapacity bounds the worker-to-stream queue. A full queue blocks
	// the worker so the journal reader is throttled instead of buffering
	// without limit.
	QueueCapacity int

	// WaitTimeout is how long one reader wait blocks before the worker
	// rechecks for shutdown.
	WaitTimeout time.Duration
}

// Validate fills defaults for unset fields.
func (c *Config) Validate() error {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 100
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = time.Second
	}
	return nil
}
