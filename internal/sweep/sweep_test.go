package sweep

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avstrong/slotreserve/internal/logger"
)

type engineStub struct {
	calls atomic.Int32
	err   error
}

func (e *engineStub) Sweep(context.Context) (int, error) {
	e.calls.Add(1)

	return 0, e.err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}

		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorker_RunsAtStartAndOnTick(t *testing.T) {
	engine := &engineStub{}
	w := New(Config{L: logger.New(log.New(&syncBuffer{}, "", 0)), Engine: engine, Interval: 10 * time.Millisecond})

	w.Start(context.Background())
	w.Start(context.Background())

	waitFor(t, func() bool { return engine.calls.Load() >= 3 })

	w.Stop()

	after := engine.calls.Load()
	time.Sleep(30 * time.Millisecond)

	if engine.calls.Load() != after {
		t.Fatal("sweeps continued after Stop")
	}

	w.Stop()
}

func TestWorker_StopsOnContext(t *testing.T) {
	engine := &engineStub{}
	w := New(Config{L: logger.New(log.New(&syncBuffer{}, "", 0)), Engine: engine, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	waitFor(t, func() bool { return engine.calls.Load() == 1 })

	cancel()
	w.Stop()

	if engine.calls.Load() != 1 {
		t.Fatalf("expected a single sweep, got %d", engine.calls.Load())
	}
}

func TestWorker_LogsFailures(t *testing.T) {
	buf := &syncBuffer{}
	engine := &engineStub{err: errors.New("store offline")}
	w := New(Config{L: logger.New(log.New(buf, "", 0)), Engine: engine, Interval: time.Hour})

	w.Start(context.Background())
	waitFor(t, func() bool { return strings.Contains(buf.String(), "Sweep failed: store offline") })
	w.Stop()

	if !strings.Contains(buf.String(), "[Error] sweep:") {
		t.Fatalf("unexpected log %q", buf.String())
	}
}

func TestWorker_CheckpointsAfterEachSweep(t *testing.T) {
	buf := &syncBuffer{}
	engine := &engineStub{}

	var checkpoints atomic.Int32

	w := New(Config{
		L:        logger.New(log.New(buf, "", 0)),
		Engine:   engine,
		Interval: 10 * time.Millisecond,
		Checkpoint: func(context.Context) error {
			if checkpoints.Add(1) == 2 {
				return errors.New("disk full")
			}

			return nil
		},
	})

	w.Start(context.Background())
	waitFor(t, func() bool { return checkpoints.Load() >= 3 })
	w.Stop()

	if engine.calls.Load() < checkpoints.Load() {
		t.Fatalf("checkpoint ran without a sweep: %d sweeps, %d checkpoints", engine.calls.Load(), checkpoints.Load())
	}

	if !strings.Contains(buf.String(), "Checkpoint failed: disk full") {
		t.Fatalf("checkpoint failure not logged: %q", buf.String())
	}
}
