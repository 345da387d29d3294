package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/feedstore/internal/snapshot"
	"github.com/roach88/feedstore/internal/store"
	"github.com/roach88/feedstore/internal/store/memory"
)

// initialize selects and loads the backend. Runs exactly once.
func (f *Facade) initialize(ctx context.Context) {
	defer close(f.ready)

	start := time.Now()
	switch f.opts.Mode {
	case ModeFallback:
		f.backend = f.openFallback(ctx)

	case ModeRelational:
		b, err := f.openRelational(ctx)
		if err != nil {
			f.initErr = store.NewEngineUnavailableError(err)
			f.logger.Error("relational backend unavailable", "error", err)
			return
		}
		f.backend = b

	default:
		b, err := f.openRelational(ctx)
		if err != nil {
			f.fellBack = store.NewEngineUnavailableError(err)
			f.logger.Warn("relational backend unavailable, using fallback", "error", err)
			b = f.openFallback(ctx)
		}
		f.backend = b
	}

	f.metrics.setActive(f.backend.Kind())
	if f.seeded {
		f.writer.Request()
	}
	f.logger.Info("ready",
		"backend", f.backend.Kind(),
		"mode", f.opts.Mode,
		"instance", f.instance,
		"duration", time.Since(start),
	)
}

// openRelational opens the engine and restores its slot, or the seed
// when the slot is empty. An image the engine rejects is an error.
func (f *Facade) openRelational(ctx context.Context) (store.Backend, error) {
	b, err := f.opts.OpenRelational(ctx)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}

	key := f.keys.main(store.KindRelational)
	payload, found, err := f.loadSlot(ctx, key, store.KindRelational)
	if err != nil {
		b.Close()
		return nil, err
	}

	if found {
		if err := b.Import(ctx, payload); err != nil {
			b.Close()
			return nil, fmt.Errorf("restore %s: %w", key, err)
		}
		f.logger.Info("restored snapshot", "key", key, "bytes", len(payload))
		return b, nil
	}

	if len(f.opts.Seed) > 0 {
		f.loadSeed(ctx, b)
	}
	return b, nil
}

// loadSeed imports the seed image. The seed is optional, so failures are
// logged and the backend keeps its fresh schema.
func (f *Facade) loadSeed(ctx context.Context, b store.Backend) {
	snap, err := snapshot.Decode(f.opts.Seed)
	if err == nil && snap.Kind != store.KindRelational {
		err = fmt.Errorf("seed holds a %s snapshot", snap.Kind)
	}
	if err == nil {
		err = b.Import(ctx, snap.Payload)
	}
	if err != nil {
		f.logger.Warn("seed not loaded, starting empty", "error", err)
		return
	}
	f.logger.Info("loaded seed", "bytes", len(f.opts.Seed))
	f.seeded = true
}

// openFallback creates the record store and restores its slot. It
// cannot fail: anything unreadable leaves it empty.
func (f *Facade) openFallback(ctx context.Context) store.Backend {
	b := memory.New(memory.WithClock(f.opts.Clock), memory.WithLogger(f.opts.Logger))

	key := f.keys.main(store.KindFallback)
	payload, found, err := f.loadSlot(ctx, key, store.KindFallback)
	if err != nil {
		f.logger.Warn("records not restored, starting empty", "key", key, "error", err)
		return b
	}
	if !found {
		return b
	}

	if err := b.Import(ctx, payload); err != nil {
		f.quarantine(ctx, key, payload, err)
		return b
	}
	f.logger.Info("restored snapshot", "key", key, "bytes", len(payload))
	return b
}

// loadSlot reads and decodes the snapshot at key. A blob that does not
// decode, or holds another backend's data, is quarantined and reported
// as absent.
func (f *Facade) loadSlot(ctx context.Context, key string, want store.Kind) ([]byte, bool, error) {
	blob, found, err := f.opts.Slots.Load(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return nil, false, nil
	}

	snap, err := snapshot.Decode(blob)
	if err == nil && snap.Kind != want {
		err = fmt.Errorf("%w: holds a %s snapshot", snapshot.ErrCorrupt, snap.Kind)
	}
	if err != nil {
		f.quarantine(ctx, key, blob, err)
		return nil, false, nil
	}

	f.logger.Debug("decoded snapshot",
		"key", key,
		"writer", snap.Instance,
		"created", snap.CreatedAt,
	)
	return snap.Payload, true, nil
}

// quarantine copies an unusable blob aside so the next snapshot does not
// destroy it.
func (f *Facade) quarantine(ctx context.Context, key string, blob []byte, cause error) {
	qkey := f.keys.quarantine(time.Now())
	corrupt := store.NewCorruptSnapshotError(key, cause)
	f.metrics.QuarantinedBlobsTotal.Inc()

	if err := f.opts.Slots.Save(ctx, qkey, blob); err != nil {
		f.logger.Error("quarantine failed", "key", key, "quarantine", qkey, "error", err, "cause", corrupt)
		return
	}
	f.logger.Warn("snapshot quarantined, starting empty", "key", key, "quarantine", qkey, "error", corrupt)
}

// encode exports the backend and frames it.
func (f *Facade) encode(ctx context.Context, b store.Backend) ([]byte, error) {
	payload, err := b.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", b.Kind(), err)
	}
	return snapshot.Encode(snapshot.Snapshot{
		Kind:      b.Kind(),
		Payload:   payload,
		Instance:  f.instance,
		CreatedAt: time.Now(),
	})
}

// writeSnapshot is the snapshot writer's unit of work.
func (f *Facade) writeSnapshot(ctx context.Context) (int, error) {
	b := f.backend
	if b == nil {
		return 0, nil
	}

	start := time.Now()
	kind := b.Kind().String()
	key := f.keys.main(b.Kind())

	data, err := f.encode(ctx, b)
	if err == nil {
		if serr := f.opts.Slots.Save(ctx, key, data); serr != nil {
			err = store.NewStorageWriteError(key, serr)
		}
	}
	f.metrics.SnapshotSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		f.metrics.SnapshotWritesTotal.WithLabelValues(kind, statusError).Inc()
		f.logger.Error("snapshot failed", "key", key, "error", err)
		return 0, err
	}

	f.metrics.SnapshotWritesTotal.WithLabelValues(kind, statusOK).Inc()
	f.metrics.SnapshotBytes.Set(float64(len(data)))
	f.logger.Debug("snapshot written", "key", key, "bytes", len(data))
	return len(data), nil
}

// Export returns an encoded snapshot of the active backend.
func (f *Facade) Export(ctx context.Context) ([]byte, error) {
	b, err := f.await(ctx)
	if err != nil {
		return nil, err
	}
	data, err := f.encode(ctx, b)
	f.metrics.observeOp("export", err)
	return data, err
}

// Import replaces the active backend's state with an encoded snapshot of
// the same kind, or a raw SQLite file when the backend is relational.
// An invalid image leaves the prior state intact.
func (f *Facade) Import(ctx context.Context, blob []byte) error {
	b, err := f.await(ctx)
	if err != nil {
		return err
	}

	err = f.importInto(ctx, b, blob)
	f.metrics.observeOp("import", err)
	return err
}

func (f *Facade) importInto(ctx context.Context, b store.Backend, blob []byte) error {
	snap, err := snapshot.Decode(blob)
	if err != nil {
		return store.NewCorruptSnapshotError("import", err)
	}
	if snap.Kind != b.Kind() {
		return fmt.Errorf("import: %s snapshot cannot be loaded into the %s backend", snap.Kind, b.Kind())
	}
	if err := b.Import(ctx, snap.Payload); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if f.users != nil {
		f.users.Purge()
	}
	f.mutated("import", "bytes", len(snap.Payload), "writer", snap.Instance)
	return nil
}

// Backup writes an encoded snapshot to the backup slot and returns the
// slot key.
func (f *Facade) Backup(ctx context.Context) (string, error) {
	b, err := f.await(ctx)
	if err != nil {
		return "", err
	}

	key := f.keys.backup(b.Kind())
	data, err := f.encode(ctx, b)
	if err == nil {
		if serr := f.opts.Slots.Save(ctx, key, data); serr != nil {
			err = store.NewStorageWriteError(key, serr)
		}
	}

	f.mu.Lock()
	f.lastBackupErr = err
	if err == nil {
		f.lastBackupAt = time.Now()
	}
	f.mu.Unlock()

	f.metrics.observeOp("backup", err)
	if err != nil {
		return "", err
	}
	f.logger.Debug("backup written", "key", key, "bytes", len(data))
	return key, nil
}

func (f *Facade) runBackups(ctx context.Context, interval time.Duration) {
	select {
	case <-f.ready:
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := f.Backup(ctx); err != nil && !errors.Is(err, context.Canceled) {
				f.logger.Warn("periodic backup failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
