package internal

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yairfalse/logship/pkg/collectors/journald/core"
)

func kernelRecord(message string) *core.Record {
	return record(map[string]string{
		"_TRANSPORT": "kernel",
		"_HOSTNAME":  "host-a",
		"MESSAGE":    message,
	})
}

func testConfig() core.Config {
	return core.Config{
		Path:        core.DirectoryPath("/var/log/journal"),
		WaitTimeout: 5 * time.Millisecond,
	}
}

func openFake(reader *fakeReader) core.OpenReader {
	return func(core.JournalPath) (core.JournalReader, error) {
		return reader, nil
	}
}

func TestStreamDeliversLinesInOrder(t *testing.T) {
	reader := &fakeReader{records: []*core.Record{
		kernelRecord("one"),
		kernelRecord("two"),
		kernelRecord("three"),
	}}

	stream, err := NewStream(testConfig(), openFake(reader), zap.NewNop(), nil)
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, want := range []string{"one", "two", "three"} {
		batch, err := stream.Next(ctx)
		require.NoError(t, err)
		require.Len(t, batch, 1, "each poll yields a one-element batch")
		assert.Equal(t, testStamp+" host-a kernel: "+want, batch[0].Line)
	}
}

func TestStreamOpenFailureIsFatal(t *testing.T) {
	open := func(core.JournalPath) (core.JournalReader, error) {
		return nil, errors.New("permission denied")
	}

	stream, err := NewStream(testConfig(), open, zap.NewNop(), nil)
	require.Error(t, err)
	assert.Nil(t, stream)
}

func TestStreamWakesWhenLineArrives(t *testing.T) {
	reader := &fakeReader{}
	stream, err := NewStream(testConfig(), openFake(reader), zap.NewNop(), nil)
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		reader.append(kernelRecord("late"))
	}()

	batch, err := stream.Next(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, testStamp+" host-a kernel: late", batch[0].Line)
}

func TestStreamRestartsWorkerOnReaderFault(t *testing.T) {
	// First reader dies immediately with a reader-level fault; the stream
	// must respawn a worker with a fresh reader and keep going.
	var opens atomic.Int32
	broken := &fakeReader{readErr: errors.New("journal corrupted")}
	healthy := &fakeReader{records: []*core.Record{kernelRecord("recovered")}}

	open := func(core.JournalPath) (core.JournalReader, error) {
		if opens.Add(1) == 1 {
			return broken, nil
		}
		return healthy, nil
	}

	stream, err := NewStream(testConfig(), open, zap.NewNop(), nil)
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := stream.Next(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, testStamp+" host-a kernel: recovered", batch[0].Line)
	assert.GreaterOrEqual(t, opens.Load(), int32(2), "a replacement worker must have been spawned")
}

func TestStreamQueueIsBounded(t *testing.T) {
	reader := &fakeReader{}
	config := testConfig()
	require.NoError(t, config.Validate())

	stream, err := NewStream(config, openFake(reader), zap.NewNop(), nil)
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, 100, cap(stream.worker.recv))
}

func TestStreamNextHonorsContext(t *testing.T) {
	reader := &fakeReader{}
	stream, err := NewStream(testConfig(), openFake(reader), zap.NewNop(), nil)
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamClosedAfterClose(t *testing.T) {
	reader := &fakeReader{}
	stream, err := NewStream(testConfig(), openFake(reader), zap.NewNop(), nil)
	require.NoError(t, err)

	stream.Close()

	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)
}
