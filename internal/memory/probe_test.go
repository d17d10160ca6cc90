package memory

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Compile-time interface satisfaction checks
// ---------------------------------------------------------------------------

var (
	_ Probe = RuntimeProbe{}
	_ Probe = (*ProcessProbe)(nil)
	_ Probe = (*ProcfsProbe)(nil)
	_ Probe = (*SyntheticProbe)(nil)
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const sampleMeminfo = `MemTotal:       16384000 kB
MemFree:         2048000 kB
MemAvailable:    4096000 kB
Buffers:          512000 kB
SwapTotal:       8192000 kB
SwapFree:        8192000 kB
HugePages_Total:       0
`

// procfsFromString returns a ProcfsProbe whose meminfo is content.
func procfsFromString(content string) *ProcfsProbe {
	p := NewProcfsProbe("/unused")
	p.openMeminfo = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	}
	return p
}

// ---------------------------------------------------------------------------
// ProcfsProbe
// ---------------------------------------------------------------------------

func Test_ProcfsProbe_Cases(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		want        Usage
		wantErr     bool
		errContains string
	}{
		{
			name:    "uses MemAvailable",
			content: sampleMeminfo,
			want: Usage{
				Used:  (16384000 - 4096000) * 1024,
				Total: 16384000 * 1024,
				Free:  4096000 * 1024,
				Max:   16384000 * 1024,
			},
		},
		{
			name:    "falls back to MemFree",
			content: "MemTotal: 1000 kB\nMemFree: 250 kB\n",
			want: Usage{
				Used:  750 * 1024,
				Total: 1000 * 1024,
				Free:  250 * 1024,
				Max:   1000 * 1024,
			},
		},
		{
			name:    "garbage lines skipped",
			content: "nonsense\nMemTotal: 100 kB\nMemAvailable: lots kB\nMemFree: 40 kB\n",
			want: Usage{
				Used:  60 * 1024,
				Total: 100 * 1024,
				Free:  40 * 1024,
				Max:   100 * 1024,
			},
		},
		{
			name:        "missing MemTotal",
			content:     "MemFree: 40 kB\n",
			wantErr:     true,
			errContains: "MemTotal missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := procfsFromString(tt.content).Read(context.Background())
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("error = %v, want it to contain %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Read() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func Test_ProcfsProbe_ReadsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "meminfo"), []byte(sampleMeminfo), 0o644); err != nil {
		t.Fatalf("write meminfo: %v", err)
	}

	u, err := NewProcfsProbe(dir).Read(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Total != 16384000*1024 {
		t.Errorf("Total = %d, want %d", u.Total, 16384000*1024)
	}
}

func Test_ProcfsProbe_MissingFile(t *testing.T) {
	_, err := NewProcfsProbe(t.TempDir()).Read(context.Background())
	if err == nil || !strings.Contains(err.Error(), "open meminfo") {
		t.Fatalf("error = %v, want open meminfo error", err)
	}
}

func Test_ProcfsProbe_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := procfsFromString(sampleMeminfo).Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// ---------------------------------------------------------------------------
// RuntimeProbe
// ---------------------------------------------------------------------------

func Test_RuntimeProbe_Read(t *testing.T) {
	u, err := RuntimeProbe{Max: 1 << 40}.Read(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Max != 1<<40 {
		t.Errorf("Max = %d, want explicit override", u.Max)
	}
	if u.Used == 0 || u.Total < u.Used {
		t.Errorf("implausible heap figures: %+v", u)
	}
	if u.Free != u.Total-u.Used {
		t.Errorf("Free = %d, want Total-Used = %d", u.Free, u.Total-u.Used)
	}
}

func Test_RuntimeProbe_DerivesMax(t *testing.T) {
	u, err := RuntimeProbe{}.Read(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Max == 0 {
		t.Error("Max not derived")
	}
}

// ---------------------------------------------------------------------------
// ProcessProbe
// ---------------------------------------------------------------------------

func Test_ProcessProbe_Read(t *testing.T) {
	p := &ProcessProbe{}
	u, err := p.Read(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Used == 0 {
		t.Errorf("Used = 0, want the resident set size of this process: %+v", u)
	}
	if u.Max < u.Used || u.Total == 0 {
		t.Errorf("implausible host figures: %+v", u)
	}
	if u.Max != u.Total {
		t.Errorf("Max = %d, want host total %d without an override", u.Max, u.Total)
	}

	// The process handle is opened once and reused.
	again, err := p.Read(context.Background())
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if again.Used == 0 {
		t.Errorf("second read Used = 0: %+v", again)
	}
}

func Test_ProcessProbe_MaxOverride(t *testing.T) {
	u, err := (&ProcessProbe{Max: 1 << 50}).Read(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Max != 1<<50 {
		t.Errorf("Max = %d, want explicit override", u.Max)
	}
	if u.Max < u.Used {
		t.Errorf("Max %d below Used %d", u.Max, u.Used)
	}
}

// ---------------------------------------------------------------------------
// SyntheticProbe
// ---------------------------------------------------------------------------

func Test_SyntheticProbe_Cases(t *testing.T) {
	p := NewSyntheticProbe(1000)
	ctx := context.Background()

	u, _ := p.Read(ctx)
	if u.Used != 0 || u.Max != 1000 {
		t.Errorf("initial = %+v, want idle with Max 1000", u)
	}

	p.SetRatio(0.95)
	u, _ = p.Read(ctx)
	if u.Used != 950 || u.Free != 50 {
		t.Errorf("after SetRatio(0.95) = %+v", u)
	}

	p.SetRatio(7)
	u, _ = p.Read(ctx)
	if u.Used != 1000 {
		t.Errorf("SetRatio above 1 not clamped: %+v", u)
	}

	boom := errors.New("boom")
	p.SetError(boom)
	if _, err := p.Read(ctx); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	p.SetError(nil)

	p.Set(Usage{Used: 1, Total: 2, Max: 3, Free: 1})
	if u, err := p.Read(ctx); err != nil || u.Max != 3 {
		t.Errorf("after Set = %+v, %v", u, err)
	}
}
