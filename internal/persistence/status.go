package persistence

import (
	"context"
	"time"

	"github.com/roach88/feedstore/internal/store"
)

// SlotStatus describes one durable slot.
type SlotStatus struct {
	Key     string    `json:"key"`
	Present bool      `json:"present"`
	Size    int64     `json:"size,omitempty"`
	ModTime time.Time `json:"mod_time,omitempty"`
}

// Status is a point-in-time view of the Facade.
type Status struct {
	Mode     Mode       `json:"mode"`
	Backend  store.Kind `json:"backend,omitempty"`
	Ready    bool       `json:"ready"`
	Instance string     `json:"instance"`

	InitError      string `json:"init_error,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`

	SnapshotsRequested uint64    `json:"snapshots_requested"`
	SnapshotsWritten   uint64    `json:"snapshots_written"`
	LastSnapshotAt     time.Time `json:"last_snapshot_at,omitempty"`
	LastSnapshotBytes  int       `json:"last_snapshot_bytes,omitempty"`
	LastSnapshotError  string    `json:"last_snapshot_error,omitempty"`

	Snapshot SlotStatus `json:"snapshot"`
	Backup   SlotStatus `json:"backup"`

	LastBackupAt    time.Time `json:"last_backup_at,omitempty"`
	LastBackupError string    `json:"last_backup_error,omitempty"`

	// LastSnapshotErr is the typed form of LastSnapshotError.
	LastSnapshotErr error `json:"-"`
}

// Status reports the active backend, snapshot bookkeeping, and the
// durable slots in use. It does not wait for initialization.
func (f *Facade) Status(ctx context.Context) (Status, error) {
	st := Status{
		Mode:     f.opts.Mode,
		Instance: f.instance,
	}

	select {
	case <-f.ready:
		st.Ready = true
	default:
	}

	ws := f.writer.Status()
	st.SnapshotsRequested = ws.Requested
	st.SnapshotsWritten = ws.Written
	st.LastSnapshotAt = ws.LastAt
	st.LastSnapshotBytes = ws.LastBytes
	st.LastSnapshotErr = ws.LastErr
	if ws.LastErr != nil {
		st.LastSnapshotError = ws.LastErr.Error()
	}

	f.mu.Lock()
	st.LastBackupAt = f.lastBackupAt
	if f.lastBackupErr != nil {
		st.LastBackupError = f.lastBackupErr.Error()
	}
	f.mu.Unlock()

	if !st.Ready {
		return st, nil
	}

	if f.initErr != nil {
		st.InitError = f.initErr.Error()
		return st, nil
	}
	if f.fellBack != nil {
		st.FallbackReason = f.fellBack.Error()
	}

	kind := f.backend.Kind()
	st.Backend = kind

	var err error
	if st.Snapshot, err = f.slotStatus(ctx, f.keys.main(kind)); err != nil {
		return st, err
	}
	if st.Backup, err = f.slotStatus(ctx, f.keys.backup(kind)); err != nil {
		return st, err
	}
	return st, nil
}

func (f *Facade) slotStatus(ctx context.Context, key string) (SlotStatus, error) {
	info, found, err := f.opts.Slots.Stat(ctx, key)
	if err != nil {
		return SlotStatus{Key: key}, err
	}
	if !found {
		return SlotStatus{Key: key}, nil
	}
	return SlotStatus{Key: key, Present: true, Size: info.Size, ModTime: info.ModTime}, nil
}
