package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// dataURL reads a media file and encodes it as a base64 data URL. The
// detected type must belong to the family ("image", "audio" or "video").
func dataURL(path, family string) (string, error) {
	if path == "" {
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	mtype := mimetype.Detect(data)
	base, _, _ := strings.Cut(mtype.String(), ";")
	if !strings.HasPrefix(base, family+"/") {
		return "", fmt.Errorf("%s: detected %s, want %s/*", path, base, family)
	}

	return "data:" + base + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// mediaType returns the MIME type of a data URL, or "" if it has none.
func mediaType(url string) string {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return ""
	}
	mtype, _, _ := strings.Cut(rest, ";")
	return mtype
}
