package storage_test

import (
	"crypto/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raysh454/sitescore/internal/storage"
)

// ─── Compression ───────────────────────────────────────────────────────

func roundTrip(t *testing.T, html string) storage.CompressedHTML {
	t.Helper()
	c, err := storage.CompressHTML(html)
	if err != nil {
		t.Fatalf("CompressHTML: %v", err)
	}
	got, err := storage.DecompressHTML(c.Data, c.Compressed)
	if err != nil {
		t.Fatalf("DecompressHTML: %v", err)
	}
	if got != html {
		t.Fatalf("round trip mismatch (len %d vs %d)", len(got), len(html))
	}
	if c.OriginalSize != len(html) {
		t.Errorf("OriginalSize = %d, want %d", c.OriginalSize, len(html))
	}
	return c
}

func TestCompressHTML_SmallStaysRaw(t *testing.T) {
	c := roundTrip(t, "<html><body>tiny</body></html>")
	if c.Compressed {
		t.Error("small content must not be compressed")
	}
	c = roundTrip(t, "")
	if c.Compressed || len(c.Data) != 0 {
		t.Error("empty content must round-trip raw")
	}
}

func TestCompressHTML_BoundaryAtThreshold(t *testing.T) {
	below := strings.Repeat("a", storage.CompressThreshold-1)
	if c := roundTrip(t, below); c.Compressed {
		t.Error("one byte below threshold must stay raw")
	}
	at := strings.Repeat("a", storage.CompressThreshold)
	c := roundTrip(t, at)
	if !c.Compressed {
		t.Error("repetitive content at threshold should compress")
	}
	if len(c.Data) >= storage.CompressThreshold {
		t.Errorf("compressed size %d not smaller", len(c.Data))
	}
}

func TestCompressHTML_IncompressibleStaysRaw(t *testing.T) {
	buf := make([]byte, 3*storage.CompressThreshold)
	if _, err := rand.Read(buf); err != nil {
		t.Fatal(err)
	}
	html := string(buf)
	c := roundTrip(t, html)
	if c.Compressed {
		t.Error("random bytes should not shrink and must be stored raw")
	}
}

func TestCompressHTML_LargeMarkup(t *testing.T) {
	html := "<html><body>" + strings.Repeat("<p class=\"x\">Lorem ipsum dolor sit amet</p>\n", 2000) + "</body></html>"
	c := roundTrip(t, html)
	if !c.Compressed || len(c.Data) >= len(html) {
		t.Errorf("expected compression: compressed=%v size=%d/%d", c.Compressed, len(c.Data), len(html))
	}
}

func TestDecompressHTML_CorruptDataErrors(t *testing.T) {
	if _, err := storage.DecompressHTML([]byte("definitely not zlib"), true); err == nil {
		t.Fatal("expected error for corrupt compressed data")
	}
}

// ─── Hashing ───────────────────────────────────────────────────────────

func TestHashURL_FixedLengthDeterministic(t *testing.T) {
	a := storage.HashURL("https://example.com/a")
	if len(a) != storage.URLHashLen {
		t.Fatalf("len = %d", len(a))
	}
	if a != storage.HashURL("https://example.com/a") {
		t.Error("hash not deterministic")
	}
	if a == storage.HashURL("https://example.com/b") {
		t.Error("distinct URLs collided")
	}
	for _, r := range a {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("non-hex char in %q", a)
		}
	}
}

// ─── SQLite ────────────────────────────────────────────────────────────

func TestOpenSQLite_AppliesPragmasAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "x.db")
	db, err := storage.OpenSQLite(path, `CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY);`)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %s, want wal", mode)
	}
	var fk int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
	if _, err := db.Exec(`INSERT INTO t (id) VALUES (1)`); err != nil {
		t.Errorf("schema not applied: %v", err)
	}
}
