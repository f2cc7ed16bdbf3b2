package blobstore

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// NewKey builds a unique attachment key that carries the original filename,
// so the dispatch worker can reconstruct the MIME part without a separate
// metadata record. Path separators are stripped to keep local-store keys
// flat.
func NewKey(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "attachment"
	}
	return uuid.NewString() + "_" + base
}

// Filename extracts the original filename from a key built by NewKey.
func Filename(key string) string {
	if i := strings.IndexByte(key, '_'); i >= 0 && i+1 < len(key) {
		return key[i+1:]
	}
	return key
}

// ContentType guesses the MIME type of an attachment from its filename
// extension, sniffing the content when the extension is unknown.
func ContentType(filename string, content []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return http.DetectContentType(content)
}
