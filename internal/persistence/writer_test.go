package persistence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotWriter_Coalesces(t *testing.T) {
	var writes atomic.Int32
	gate := make(chan struct{})
	w := newSnapshotWriter(func(ctx context.Context) (int, error) {
		writes.Add(1)
		<-gate
		return 10, nil
	})
	go w.Run(context.Background())
	defer w.Stop()

	w.Request()
	require.Eventually(t, func() bool { return writes.Load() == 1 }, time.Second, time.Millisecond)

	// Requests made during the first write collapse into one more.
	for i := 0; i < 50; i++ {
		w.Request()
	}
	close(gate)

	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, int32(2), writes.Load())

	st := w.Status()
	assert.Equal(t, uint64(51), st.Requested)
	assert.Equal(t, uint64(51), st.Written)
	assert.Equal(t, 10, st.LastBytes)
}

func TestSnapshotWriter_RetainsLastError(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	w := newSnapshotWriter(func(ctx context.Context) (int, error) {
		if fail.Load() {
			return 0, errors.New("disk full")
		}
		return 1, nil
	})
	go w.Run(context.Background())
	defer w.Stop()

	w.Request()
	assert.EqualError(t, w.Flush(context.Background()), "disk full")
	assert.EqualError(t, w.Status().LastErr, "disk full")

	fail.Store(false)
	w.Request()
	assert.NoError(t, w.Flush(context.Background()))
	assert.NoError(t, w.Status().LastErr)
}

func TestSnapshotWriter_FlushHonorsContext(t *testing.T) {
	gate := make(chan struct{})
	w := newSnapshotWriter(func(ctx context.Context) (int, error) {
		<-gate
		return 0, nil
	})
	go w.Run(context.Background())

	w.Request()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Flush(ctx), context.DeadlineExceeded)

	close(gate)
	w.Stop()
	assert.NoError(t, w.Flush(context.Background()))
}

func TestSnapshotWriter_StopDrains(t *testing.T) {
	var mu sync.Mutex
	var writes int
	w := newSnapshotWriter(func(ctx context.Context) (int, error) {
		mu.Lock()
		writes++
		mu.Unlock()
		return 0, nil
	})
	go w.Run(context.Background())

	w.Request()
	w.Stop()
	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, writes, 1)
	assert.Equal(t, w.Status().Requested, w.Status().Written)
}
