// Package storage holds helpers shared by the embedded databases:
// HTML compression, URL hashing and the SQLite opener.
package storage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const (
	// CompressThreshold is the size below which HTML is stored raw.
	CompressThreshold = 10 * 1024

	// CompressLevel is the deflate level used for stored HTML.
	CompressLevel = 6
)

// CompressedHTML is HTML ready to be stored.
type CompressedHTML struct {
	Data         []byte
	Compressed   bool
	OriginalSize int
}

// CompressHTML deflates html when it is at least CompressThreshold bytes and
// the result is strictly smaller; otherwise the raw bytes are returned
// flagged as uncompressed.
func CompressHTML(html string) (CompressedHTML, error) {
	raw := []byte(html)
	out := CompressedHTML{Data: raw, OriginalSize: len(raw)}
	if len(raw) < CompressThreshold {
		return out, nil
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, CompressLevel)
	if err != nil {
		return out, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return out, fmt.Errorf("compress html: %w", err)
	}
	if err := w.Close(); err != nil {
		return out, fmt.Errorf("compress html: %w", err)
	}
	if buf.Len() >= len(raw) {
		return out, nil
	}
	out.Data = buf.Bytes()
	out.Compressed = true
	return out, nil
}

// DecompressHTML reverses CompressHTML using the stored flag. Errors mean the
// stored bytes are corrupt and are returned as is.
func DecompressHTML(data []byte, compressed bool) (string, error) {
	if !compressed {
		return string(data), nil
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open compressed html: %w", err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decompress html: %w", err)
	}
	return string(raw), nil
}
