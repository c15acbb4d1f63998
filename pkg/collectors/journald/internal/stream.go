package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yairfalse/logship/pkg/collectors/journald/core"
	"github.com/yairfalse/logship/pkg/domain"
	"github.com/yairfalse/logship/pkg/metrics"
)

// ErrStreamClosed is returned by Next once the stream has no worker queue
// left and cannot produce further lines.
var ErrStreamClosed = errors.New("journald stream closed")

// sharedState holds at most one pending wake handle. The worker takes and
// fires the handle after delivering a line or on exit; the stream installs a
// fresh handle every time it is about to suspend.
type sharedState struct {
	mu    sync.Mutex
	waker chan<- struct{}
}

func (s *sharedState) install(waker chan<- struct{}) {
	s.mu.Lock()
	s.waker = waker
	s.mu.Unlock()
}

func (s *sharedState) wake() {
	s.mu.Lock()
	waker := s.waker
	s.waker = nil
	s.mu.Unlock()

	if waker != nil {
		select {
		case waker <- struct{}{}:
		default:
		}
	}
}

// worker is the per-spawn state of one background reader. The receive
// channel doubles as the liveness signal: the worker closes it on exit.
type worker struct {
	recv <-chan *domain.Line
	stop chan struct{}
	done chan struct{}
}

// Stream presents the journal as a sequence of one-line batches. A worker
// goroutine owns the blocking reader and feeds a bounded queue; Next drains
// the queue and respawns the worker whenever the queue disconnects, so a
// crashed worker never terminates the stream.
type Stream struct {
	config  core.Config
	open    core.OpenReader
	logger  *zap.Logger
	metrics *metrics.Journald

	shared *sharedState
	wake   chan struct{}
	worker *worker
}

// NewStream opens the journal and starts the first worker. An open or seek
// failure is a construction-time fault: no stream is returned.
func NewStream(config core.Config, open core.OpenReader, logger *zap.Logger, m *metrics.Journald) (*Stream, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	reader, err := open(config.Path.Clone())
	if err != nil {
		return nil, fmt.Errorf("failed to open journald source: %w", err)
	}

	s := &Stream{
		config:  config,
		open:    open,
		logger:  logger,
		metrics: m,
		shared:  &sharedState{},
		wake:    make(chan struct{}, 1),
	}
	s.spawnWorker(reader)
	return s, nil
}

// Next blocks until the worker delivers the next line, returning it as a
// one-element batch. It returns ctx.Err() on cancellation and
// ErrStreamClosed once the stream has been closed.
func (s *Stream) Next(ctx context.Context) ([]*domain.Line, error) {
	for {
		if s.worker == nil {
			s.logger.Warn("journald stream missing connection to worker, shutting down stream")
			return nil, ErrStreamClosed
		}

		select {
		case line, ok := <-s.worker.recv:
			if !ok {
				s.restartWorker(ctx)
				continue
			}
			return []*domain.Line{line}, nil
		default:
		}

		// Queue empty: install the wake handle, then check the queue once
		// more so a line enqueued in between is not missed.
		s.drainWake()
		s.shared.install(s.wake)

		select {
		case line, ok := <-s.worker.recv:
			if !ok {
				s.restartWorker(ctx)
				continue
			}
			return []*domain.Line{line}, nil
		case <-s.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close joins the worker and ends the stream. Safe to call once the consumer
// is done polling.
func (s *Stream) Close() {
	s.joinWorker()
}

func (s *Stream) restartWorker(ctx context.Context) {
	s.logger.Warn("journald stream unable to read from worker, restarting worker")
	s.metrics.IncrementRestarts(ctx)
	s.joinWorker()
	s.spawnWorker(nil)
}

// spawnWorker starts a background reader feeding a fresh bounded queue. A
// nil reader means the worker opens the journal itself from the immutable
// path; that is the respawn path, where an open failure must not be fatal.
func (s *Stream) spawnWorker(reader core.JournalReader) {
	send := make(chan *domain.Line, s.config.QueueCapacity)
	w := &worker{
		recv: send,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.worker = w
	go s.runWorker(reader, send, w.stop, w.done)
}

// joinWorker signals the current worker to stop and waits for it to exit.
func (s *Stream) joinWorker() {
	w := s.worker
	if w == nil {
		return
	}
	s.worker = nil
	close(w.stop)
	<-w.done
}

func (s *Stream) drainWake() {
	select {
	case <-s.wake:
	default:
	}
}

func (s *Stream) runWorker(reader core.JournalReader, send chan<- *domain.Line, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if reader == nil {
		var err error
		reader, err = s.open(s.config.Path.Clone())
		if err != nil {
			s.logger.Warn("journald worker unable to reopen journal", zap.Error(err))
			s.disconnect(send)
			return
		}
	}
	defer reader.Close()

	src := newSource(reader, s.logger)

loop:
	for {
		status, line, err := src.processNextRecord()
		if err != nil {
			s.logger.Warn("journald worker unable to read next record", zap.Error(err))
			break loop
		}

		switch status {
		case core.RecordAccepted:
			select {
			case send <- line:
				s.metrics.IncrementLines(context.Background())
				s.shared.wake()
			case <-stop:
				break loop
			}

		case core.RecordRejected:
			s.metrics.IncrementRejects(context.Background())

		case core.RecordExhausted:
			if err := reader.Wait(s.config.WaitTimeout); err != nil {
				if errors.Is(err, core.ErrWaitTimeout) {
					select {
					case <-stop:
						break loop
					default:
					}
					continue
				}
				s.logger.Warn("journald worker unable to poll journald for next record", zap.Error(err))
				break loop
			}
		}
	}

	s.disconnect(send)
}

// disconnect closes the sending half before the final wake. Waking first
// would let the stream observe a still-connected, empty queue and suspend
// again with no one left to wake it.
func (s *Stream) disconnect(send chan<- *domain.Line) {
	close(send)
	s.shared.wake()
}
