package safety

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// failingWriter always returns an error.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func Test_AuditLogger_Log_Cases(t *testing.T) {
	tests := []struct {
		name     string
		entry    AuditEntry
		validate func(t *testing.T, decoded map[string]any)
	}{
		{
			name: "full entry",
			entry: AuditEntry{
				Timestamp: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
				Surface:   "mcp",
				Tool:      "sensor_recent",
				Params:    map[string]any{"sensor_id": 3, "count": 10},
				Result:    "success",
				Duration:  150 * time.Millisecond,
			},
			validate: func(t *testing.T, decoded map[string]any) {
				t.Helper()
				if decoded["tool"] != "sensor_recent" || decoded["surface"] != "mcp" {
					t.Errorf("decoded = %v", decoded)
				}
				if decoded["duration_ns"] != float64(150*time.Millisecond) {
					t.Errorf("duration_ns = %v", decoded["duration_ns"])
				}
				params, ok := decoded["params"].(map[string]any)
				if !ok || params["count"] != float64(10) {
					t.Errorf("params = %v", decoded["params"])
				}
			},
		},
		{
			name: "nil params omitted",
			entry: AuditEntry{
				Timestamp: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
				Surface:   "http",
				Tool:      "station_start",
				Result:    "started",
			},
			validate: func(t *testing.T, decoded map[string]any) {
				t.Helper()
				if _, ok := decoded["params"]; ok {
					t.Error("params present for nil map")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewAuditLogger(&buf)
			if err := l.Log(tt.entry); err != nil {
				t.Fatalf("Log() error: %v", err)
			}
			out := buf.String()
			if !strings.HasSuffix(out, "\n") || strings.Count(out, "\n") != 1 {
				t.Fatalf("output %q is not a single JSON line", out)
			}
			var decoded map[string]any
			if err := json.Unmarshal([]byte(out), &decoded); err != nil {
				t.Fatalf("output is not JSON: %v", err)
			}
			tt.validate(t, decoded)
		})
	}
}

func Test_AuditLogger_NilWriter(t *testing.T) {
	if l := NewAuditLogger(nil); l != nil {
		t.Fatal("NewAuditLogger(nil) returned non-nil")
	}
	var l *AuditLogger
	if err := l.Log(AuditEntry{Tool: "x"}); !errors.Is(err, ErrNilWriter) {
		t.Errorf("nil logger Log() error = %v, want ErrNilWriter", err)
	}
}

func Test_AuditLogger_WriteError(t *testing.T) {
	l := NewAuditLogger(failingWriter{})
	if err := l.Log(AuditEntry{Tool: "x"}); err == nil {
		t.Error("expected write error, got nil")
	}
}

func Test_AuditLogger_ConcurrentLinesIntact(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditLogger(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Log(AuditEntry{Tool: "alerts_list", Params: map[string]any{"i": i}})
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Errorf("corrupt line %q", line)
		}
	}
}

func Test_OpenAuditLog_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.log")

	for i := 0; i < 2; i++ {
		l, closer, err := OpenAuditLog(path)
		if err != nil {
			t.Fatalf("OpenAuditLog: %v", err)
		}
		if err := l.Log(AuditEntry{Tool: "station_status"}); err != nil {
			t.Fatalf("Log: %v", err)
		}
		if err := closer.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Errorf("file has %d lines, want 2 (append mode)", n)
	}
}

func Test_OpenAuditLog_BadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := OpenAuditLog(filepath.Join(blocker, "audit.log")); err == nil {
		t.Error("expected error when parent is a regular file")
	}
}
