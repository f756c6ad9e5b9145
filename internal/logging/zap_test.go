package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "debug",
		"WARN":    "warn",
		"warning": "warn",
		"error":   "error",
		"":        "info",
		"bogus":   "info",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestZapLogger_WritesJSONWithComponentAndFields(t *testing.T) {
	out := filepath.Join(t.TempDir(), "log.jsonl")
	l, err := New(Config{Level: "debug", OutputPaths: []string{out}}, "storage")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.With(F("domain", "example.com")).Info("opened", F("pages", 3))
	_ = l.Sync()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, line)
	}
	if entry["component"] != "storage" || entry["domain"] != "example.com" || entry["msg"] != "opened" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["pages"].(float64) != 3 {
		t.Errorf("pages = %v, want 3", entry["pages"])
	}
}

func TestErrField(t *testing.T) {
	if f := Err(nil); f.Key != "error" || f.Value != "" {
		t.Errorf("Err(nil) = %+v", f)
	}
	if f := Err(os.ErrNotExist); f.Value != os.ErrNotExist.Error() {
		t.Errorf("Err value = %v", f.Value)
	}
}
