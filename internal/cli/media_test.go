package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough of a PNG file for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDataURL(t *testing.T) {
	url, err := dataURL(writeTemp(t, "dot.bin", pngHeader), "image")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"), url)
	assert.Equal(t, "image/png", mediaType(url))
}

func TestDataURL_Empty(t *testing.T) {
	url, err := dataURL("", "video")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestDataURL_WrongFamily(t *testing.T) {
	_, err := dataURL(writeTemp(t, "notes.txt", []byte("just some text\n")), "image")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want image/*")

	_, err = dataURL(writeTemp(t, "dot.png", pngHeader), "audio")
	require.Error(t, err)
}

func TestDataURL_MissingFile(t *testing.T) {
	_, err := dataURL(filepath.Join(t.TempDir(), "gone.png"), "image")
	require.Error(t, err)
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "audio/mpeg", mediaType("data:audio/mpeg;base64,AAAA"))
	assert.Equal(t, "", mediaType("https://example.com/cat.png"))
	assert.Equal(t, "", mediaType(""))
}
