// Package journald exposes the systemd journal as a stream of formatted
// log lines.
package journald

import (
	"go.uber.org/zap"

	"github.com/yairfalse/logship/pkg/collectors/journald/core"
	"github.com/yairfalse/logship/pkg/collectors/journald/internal"
	"github.com/yairfalse/logship/pkg/metrics"
)

// Config is the public configuration type.
type Config = core.Config

// JournalPath selects the journal to read.
type JournalPath = core.JournalPath

// Stream is the consumer-facing line stream.
type Stream = internal.Stream

// ErrStreamClosed is returned by Stream.Next after Close.
var ErrStreamClosed = internal.ErrStreamClosed

// DirectoryPath returns a JournalPath for a journal directory.
func DirectoryPath(dir string) JournalPath {
	return core.DirectoryPath(dir)
}

// FilesPath returns a JournalPath for explicit journal files.
func FilesPath(files ...string) JournalPath {
	return core.FilesPath(files...)
}

// DefaultConfig returns the default stream configuration, reading the
// system journal directory.
func DefaultConfig() Config {
	return Config{
		Path:          core.DirectoryPath("/var/log/journal"),
		QueueCapacity: 100,
	}
}

// NewStream opens the journal and starts streaming. Open or seek failure is
// fatal: no stream is created.
func NewStream(config Config, logger *zap.Logger, m *metrics.Journald) (*Stream, error) {
	return internal.NewStream(config, openReader, logger, m)
}
