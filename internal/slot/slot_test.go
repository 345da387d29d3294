package slot

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	s, err := New(fsys, "/data")
	require.NoError(t, err)
	return s, fsys
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Save(ctx, "feedstore_database", []byte("one")))
	got, found, err := s.Load(ctx, "feedstore_database")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("one"), got)

	require.NoError(t, s.Save(ctx, "feedstore_database", []byte("two")))
	got, found, err = s.Load(ctx, "feedstore_database")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("two"), got)
}

func TestLoad_Missing(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	data, found, err := s.Load(ctx, "nothing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)

	_, found, err = s.Stat(ctx, "nothing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidKeys(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, key := range []string{"", "Upper", "../escape", "a/b", "_leading", "sp ace"} {
		t.Run(key, func(t *testing.T) {
			assert.False(t, ValidKey(key))
			assert.ErrorIs(t, s.Save(ctx, key, []byte("x")), ErrInvalidKey)
			_, _, err := s.Load(ctx, key)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	s, fsys := newTestStore(t)

	require.NoError(t, s.Save(ctx, "a", []byte("1")))
	require.NoError(t, s.Save(ctx, "a", []byte("2")))

	entries, err := afero.ReadDir(fsys, "/data")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.slot", entries[0].Name())
}

func TestSave_FailureKeepsOldValue(t *testing.T) {
	ctx := context.Background()
	s, fsys := newTestStore(t)
	require.NoError(t, s.Save(ctx, "a", []byte("old")))

	ro := &Store{fs: afero.NewReadOnlyFs(fsys), root: "/data"}
	require.Error(t, ro.Save(ctx, "a", []byte("new")))

	got, found, err := s.Load(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("old"), got)
}

func TestDeleteStatKeys(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Save(ctx, "feedstore_records", []byte("abc")))
	require.NoError(t, s.Save(ctx, "feedstore_database", []byte("abcd")))
	require.NoError(t, s.Save(ctx, "other_database", []byte("x")))

	info, found, err := s.Stat(ctx, "feedstore_database")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(4), info.Size)
	assert.Equal(t, "feedstore_database", info.Key)

	keys, err := s.Keys(ctx, "feedstore_")
	require.NoError(t, err)
	assert.Equal(t, []string{"feedstore_database", "feedstore_records"}, keys)

	require.NoError(t, s.Delete(ctx, "feedstore_records"))
	require.NoError(t, s.Delete(ctx, "feedstore_records"))

	keys, err = s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"feedstore_database", "other_database"}, keys)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, _ := newTestStore(t)
	assert.ErrorIs(t, s.Save(ctx, "a", []byte("x")), context.Canceled)
	_, _, err := s.Load(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMemory(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Save(ctx, "k", []byte("v")))
	got, found, err := s.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), got)
}
