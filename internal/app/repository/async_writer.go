package repository

import (
	"context"
	"sync"
	"time"

	"github.com/vendasb2b/cart-engine/internal/app/model"
	"github.com/vendasb2b/cart-engine/pkg/logger"
)

const asyncWriteTimeout = 10 * time.Second

type writeOp struct {
	clear    bool
	snapshot model.CartSnapshot
}

// AsyncCartWriter hands writes to a background goroutine so callers never wait
// on storage. Every operation carries the full cart state, so only the latest
// queued one needs to reach storage.
type AsyncCartWriter struct {
	next CartStateRepository

	mu      sync.Mutex
	pending *writeOp
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func NewAsyncCartWriter(next CartStateRepository) *AsyncCartWriter {
	w := &AsyncCartWriter{
		next: next,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

// Load reads synchronously; it only runs once when a cart is opened.
func (w *AsyncCartWriter) Load(ctx context.Context) (*model.PersistedCart, error) {
	return w.next.Load(ctx)
}

func (w *AsyncCartWriter) Save(_ context.Context, snapshot model.CartSnapshot) error {
	w.enqueue(writeOp{snapshot: snapshot})
	return nil
}

func (w *AsyncCartWriter) Clear(_ context.Context) error {
	w.enqueue(writeOp{clear: true})
	return nil
}

func (w *AsyncCartWriter) enqueue(op writeOp) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		logger.Warn("Dropping cart write after writer was closed", map[string]interface{}{
			"clear": op.clear,
		})
		return
	}
	w.pending = &op
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *AsyncCartWriter) run() {
	defer close(w.done)
	for range w.wake {
		for {
			w.mu.Lock()
			op := w.pending
			w.pending = nil
			w.mu.Unlock()
			if op == nil {
				break
			}
			w.apply(op)
		}
	}
}

func (w *AsyncCartWriter) apply(op *writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
	defer cancel()

	var err error
	if op.clear {
		err = w.next.Clear(ctx)
	} else {
		err = w.next.Save(ctx, op.snapshot)
	}
	if err != nil {
		logger.Error("Background cart write failed", err, map[string]interface{}{
			"clear": op.clear,
			"items": len(op.snapshot.Items),
		})
	}
}

// Close flushes the last queued write and stops the worker.
func (w *AsyncCartWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.wake)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ CartStateRepository = (*AsyncCartWriter)(nil)
