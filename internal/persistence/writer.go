package persistence

import (
	"context"
	"sync"
	"time"
)

// snapshotWriter runs snapshot writes on one goroutine.
//
// Requests coalesce: any number of Request calls made while a write is in
// flight produce at most one further write, which captures all of them.
// Callers never block on a write.
//
// The writer uses a channel for signaling (buffered, size 1) so the run
// loop can wait on both work and shutdown.
type snapshotWriter struct {
	write func(ctx context.Context) (int, error)

	mu        sync.Mutex
	requested uint64
	written   uint64
	lastErr   error
	lastAt    time.Time
	lastBytes int
	changed   chan struct{} // closed and replaced after every write

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// writerStatus is a point-in-time copy of the writer's bookkeeping.
type writerStatus struct {
	Requested uint64
	Written   uint64
	LastErr   error
	LastAt    time.Time
	LastBytes int
}

func newSnapshotWriter(write func(ctx context.Context) (int, error)) *snapshotWriter {
	return &snapshotWriter{
		write:   write,
		changed: make(chan struct{}),
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Request schedules a write covering every mutation made so far.
// Thread-safe: may be called from any goroutine.
func (w *snapshotWriter) Request() {
	w.mu.Lock()
	w.requested++
	w.mu.Unlock()

	// Non-blocking; the buffer of 1 coalesces multiple signals.
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Run processes requests until Stop. Pending requests are written before
// Run returns.
func (w *snapshotWriter) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.signal:
			w.drain(ctx)
		case <-w.stop:
			w.drain(ctx)
			return
		}
	}
}

// drain writes until no request is outstanding.
func (w *snapshotWriter) drain(ctx context.Context) {
	for {
		w.mu.Lock()
		target := w.requested
		pending := target > w.written
		w.mu.Unlock()
		if !pending {
			return
		}

		n, err := w.write(ctx)

		w.mu.Lock()
		w.written = target
		w.lastErr = err
		w.lastAt = time.Now()
		if err == nil {
			w.lastBytes = n
		}
		close(w.changed)
		w.changed = make(chan struct{})
		w.mu.Unlock()
	}
}

// Flush waits until every request made before the call has been written
// and returns the result of the latest write.
func (w *snapshotWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	target := w.requested
	w.mu.Unlock()

	for {
		w.mu.Lock()
		if w.written >= target {
			err := w.lastErr
			w.mu.Unlock()
			return err
		}
		ch := w.changed
		w.mu.Unlock()

		select {
		case <-ch:
		case <-w.done:
			w.mu.Lock()
			err := w.lastErr
			caughtUp := w.written >= target
			w.mu.Unlock()
			if caughtUp {
				return err
			}
			return errWriterStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop ends Run after a final drain and waits for it to return.
// Safe to call more than once.
func (w *snapshotWriter) Stop() {
	w.mu.Lock()
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	w.mu.Unlock()
	<-w.done
}

// Status returns the writer's bookkeeping.
func (w *snapshotWriter) Status() writerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return writerStatus{
		Requested: w.requested,
		Written:   w.written,
		LastErr:   w.lastErr,
		LastAt:    w.lastAt,
		LastBytes: w.lastBytes,
	}
}
