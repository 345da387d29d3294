package snapshot

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedstore/internal/store"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		kind    store.Kind
		payload []byte
	}{
		{"empty fallback", store.KindFallback, []byte{}},
		{"fallback document", store.KindFallback, []byte(`{"users":[],"posts":[]}`)},
		{"relational image", store.KindRelational, bytes.Repeat([]byte{0x00, 0x01, 0xfe}, 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Snapshot{
				Kind:      tt.kind,
				Payload:   tt.payload,
				Instance:  "0190b4c2-0000-7000-8000-000000000001",
				CreatedAt: created,
			}

			data, err := Encode(in)
			require.NoError(t, err)

			out, err := Decode(data)
			require.NoError(t, err)

			assert.Equal(t, tt.kind, out.Kind)
			assert.True(t, bytes.Equal(tt.payload, out.Payload))
			assert.Equal(t, in.Instance, out.Instance)
			assert.True(t, created.Equal(out.CreatedAt))
		})
	}
}

func TestEncode_UnknownKind(t *testing.T) {
	_, err := Encode(Snapshot{Kind: "other"})
	require.Error(t, err)
}

func TestDecode_RawSQLiteImage(t *testing.T) {
	raw := append([]byte("SQLite format 3\x00"), make([]byte, 84)...)

	out, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, store.KindRelational, out.Kind)
	assert.Equal(t, raw, out.Payload)
	assert.True(t, IsSQLiteImage(raw))
}

func TestDecode_Corrupt(t *testing.T) {
	good, err := Encode(Snapshot{Kind: store.KindFallback, Payload: []byte(`{"users":[]}`)})
	require.NoError(t, err)

	flipped := append([]byte(nil), good...)
	flipped[10] ^= 0xff // inside the digest

	badVersion := append([]byte(nil), good...)
	badVersion[4] = 9

	badKind := append([]byte(nil), good...)
	badKind[5] = 7

	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"truncated header", good[:10]},
		{"bad magic", append([]byte("XXXX"), good[4:]...)},
		{"bad version", badVersion},
		{"bad kind", badKind},
		{"digest mismatch", flipped},
		{"truncated body", good[:len(good)-6]},
		{"garbage body", append(append([]byte(nil), good[:headerLen]...), []byte("not gzip at all")...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}
