package internal

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yairfalse/logship/pkg/collectors/journald/core"
	"github.com/yairfalse/logship/pkg/domain"
)

// Journald field names used to reconstruct a syslog-like line.
const (
	keyTransport = "_TRANSPORT"
	keyHostname  = "_HOSTNAME"
	keyComm      = "_COMM"
	keyPID       = "_PID"
	keyMessage   = "MESSAGE"
)

// Transport values the formatter understands.
const (
	transportAudit   = "audit"
	transportDriver  = "driver"
	transportSyslog  = "syslog"
	transportJournal = "journal"
	transportStdout  = "stdout"
	transportKernel  = "kernel"
)

// timestampLayout renders journal timestamps the way syslog does.
const timestampLayout = "Jan 02 15:04:05"

// source reads records from a journal and formats them into lines. It owns
// the reader for the lifetime of one worker.
type source struct {
	reader core.JournalReader
	logger *zap.Logger
}

func newSource(reader core.JournalReader, logger *zap.Logger) *source {
	return &source{reader: reader, logger: logger}
}

// processNextRecord reads one record and formats it. A non-nil error is an
// unrecoverable reader fault; RecordRejected outcomes are already logged.
func (s *source) processNextRecord() (core.RecordStatus, *domain.Line, error) {
	record, err := s.reader.NextRecord()
	if err != nil {
		if errors.Is(err, core.ErrNoMoreRecords) {
			return core.RecordExhausted, nil, nil
		}
		return core.RecordExhausted, nil, fmt.Errorf("failed to read next journald record: %w", err)
	}

	timestamp := s.displayTimestamp(record)

	transport, ok := record.Fields[keyTransport]
	if !ok {
		s.logger.Warn("unable to get transport of journald record")
		return core.RecordRejected, nil, nil
	}

	switch transport {
	case transportAudit:
		return s.processAuditRecord(record, timestamp)
	case transportDriver, transportSyslog, transportJournal, transportStdout:
		return s.processDefaultRecord(record, transport, timestamp)
	case transportKernel:
		return s.processKernelRecord(record, timestamp)
	default:
		s.logger.Warn("got unexpected transport for journald record",
			zap.String("transport", transport))
		return core.RecordRejected, nil, nil
	}
}

// displayTimestamp formats the record's timestamp, falling back to the
// current local time when the journal had none.
func (s *source) displayTimestamp(record *core.Record) string {
	if record.Timestamp.IsZero() {
		s.logger.Warn("unable to read timestamp associated with journald record")
		return time.Now().Local().Format(timestampLayout)
	}
	return record.Timestamp.Local().Format(timestampLayout)
}

func (s *source) processAuditRecord(record *core.Record, timestamp string) (core.RecordStatus, *domain.Line, error) {
	hostname, ok := record.Fields[keyHostname]
	if !ok {
		s.logger.Warn("unable to get hostname of journald audit record")
		return core.RecordRejected, nil, nil
	}

	pid, ok := record.Fields[keyPID]
	if !ok {
		s.logger.Warn("unable to get pid of journald audit record")
		return core.RecordRejected, nil, nil
	}

	message, ok := record.Fields[keyMessage]
	if !ok {
		s.logger.Warn("unable to get message of journald audit record")
		return core.RecordRejected, nil, nil
	}

	line := domain.NewLine(fmt.Sprintf("%s %s audit[%s]: %s", timestamp, hostname, pid, message)).
		WithFile(hostname)
	return core.RecordAccepted, line, nil
}

func (s *source) processDefaultRecord(record *core.Record, transport, timestamp string) (core.RecordStatus, *domain.Line, error) {
	hostname, ok := record.Fields[keyHostname]
	if !ok {
		s.logger.Warn("unable to get hostname of journald record",
			zap.String("transport", transport))
		return core.RecordRejected, nil, nil
	}

	comm, ok := record.Fields[keyComm]
	if !ok {
		s.logger.Warn("unable to get comm of journald record",
			zap.String("transport", transport))
		return core.RecordRejected, nil, nil
	}

	pid, ok := record.Fields[keyPID]
	if !ok {
		s.logger.Warn("unable to get pid of journald record",
			zap.String("transport", transport))
		return core.RecordRejected, nil, nil
	}

	message, ok := record.Fields[keyMessage]
	if !ok {
		s.logger.Warn("unable to get message of journald record",
			zap.String("transport", transport))
		return core.RecordRejected, nil, nil
	}

	line := domain.NewLine(fmt.Sprintf("%s %s %s[%s]: %s", timestamp, hostname, comm, pid, message)).
		WithFile(hostname)
	return core.RecordAccepted, line, nil
}

func (s *source) processKernelRecord(record *core.Record, timestamp string) (core.RecordStatus, *domain.Line, error) {
	hostname, ok := record.Fields[keyHostname]
	if !ok {
		s.logger.Warn("unable to get hostname of journald kernel record")
		return core.RecordRejected, nil, nil
	}

	message, ok := record.Fields[keyMessage]
	if !ok {
		s.logger.Warn("unable to get message of journald kernel record")
		return core.RecordRejected, nil, nil
	}

	line := domain.NewLine(fmt.Sprintf("%s %s kernel: %s", timestamp, hostname, message)).
		WithFile(hostname)
	return core.RecordAccepted, line, nil
}
