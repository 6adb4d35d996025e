package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/avstrong/slotreserve/internal/logger"
)

const DefaultInterval = time.Minute

type sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Config struct {
	L        *logger.Logger
	Engine   sweeper
	Interval time.Duration
	// Checkpoint, when set, runs after every sweep, e.g. to persist what is left.
	Checkpoint func(ctx context.Context) error
}

// Worker runs the expiry sweep once on Start and then on every tick until
// Stop or the start context is cancelled.
type Worker struct {
	l          *logger.Logger
	engine     sweeper
	interval   time.Duration
	checkpoint func(ctx context.Context) error

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}
}

func New(conf Config) *Worker {
	interval := conf.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	//nolint:exhaustruct
	return &Worker{
		l:          conf.L.Named("sweep"),
		engine:     conf.Engine,
		interval:   interval,
		checkpoint: conf.Checkpoint,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stop != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.stop = cancel
	w.done = make(chan struct{})

	go w.loop(ctx, w.done)

	w.l.LogInfo("Sweeper started, interval %v", w.interval)
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	if _, err := w.engine.Sweep(ctx); err != nil && ctx.Err() == nil {
		w.l.LogErrorf("Sweep failed: %v", err)
	}

	if w.checkpoint == nil {
		return
	}

	if err := w.checkpoint(ctx); err != nil && ctx.Err() == nil {
		w.l.LogErrorf("Checkpoint failed: %v", err)
	}
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (w *Worker) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()

	if stop == nil {
		return
	}

	stop()
	<-done

	w.l.LogInfo("Sweeper stopped")
}
