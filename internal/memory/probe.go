package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// hostTotal returns the physical memory of the host.
func hostTotal(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	return vm.Total, nil
}

// ---------------------------------------------------------------------------
// RuntimeProbe
// ---------------------------------------------------------------------------

// RuntimeProbe reads the Go heap. Used is heap in use, Total is heap obtained
// from the OS. Max is, in order of preference: the Max field, the runtime soft
// memory limit, host memory, and finally everything the runtime has mapped.
type RuntimeProbe struct {
	Max uint64
}

// Read implements Probe.
func (p RuntimeProbe) Read(ctx context.Context) (Usage, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	u := Usage{
		Used:  ms.HeapInuse,
		Total: ms.HeapSys,
		Free:  ms.HeapSys - ms.HeapInuse,
		Max:   p.Max,
	}
	if u.Max == 0 {
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			u.Max = uint64(limit)
		}
	}
	if u.Max == 0 {
		if total, err := hostTotal(ctx); err == nil {
			u.Max = total
		} else {
			u.Max = ms.Sys
		}
	}
	return u, nil
}

// ---------------------------------------------------------------------------
// ProcessProbe
// ---------------------------------------------------------------------------

// ProcessProbe reads the resident set size of this process and compares it
// with host memory.
type ProcessProbe struct {
	// Max overrides host memory as the ceiling when non-zero.
	Max uint64

	once sync.Once
	proc *process.Process
	err  error
}

// Read implements Probe.
func (p *ProcessProbe) Read(ctx context.Context) (Usage, error) {
	p.once.Do(func() {
		p.proc, p.err = process.NewProcessWithContext(ctx, int32(os.Getpid()))
	})
	if p.err != nil {
		return Usage{}, fmt.Errorf("open process: %w", p.err)
	}

	info, err := p.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("process memory: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("virtual memory: %w", err)
	}

	u := Usage{
		Used:  info.RSS,
		Total: vm.Total,
		Free:  vm.Available,
		Max:   vm.Total,
	}
	if p.Max > 0 {
		u.Max = p.Max
	}
	return u, nil
}

// ---------------------------------------------------------------------------
// ProcfsProbe
// ---------------------------------------------------------------------------

// ProcfsProbe reads host-wide usage from {procPath}/meminfo. Used is
// MemTotal minus MemAvailable (MemFree on kernels without MemAvailable).
type ProcfsProbe struct {
	// Overridable for tests.
	openMeminfo func() (io.ReadCloser, error)
}

// NewProcfsProbe returns a probe rooted at procPath (normally /proc).
func NewProcfsProbe(procPath string) *ProcfsProbe {
	path := filepath.Join(procPath, "meminfo")
	return &ProcfsProbe{
		openMeminfo: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// meminfo holds the /proc/meminfo fields the probe uses, in kibibytes.
type meminfo struct {
	MemTotalKB     uint64
	MemFreeKB      uint64
	MemAvailableKB uint64
	hasAvailable   bool
}

// Read implements Probe.
func (p *ProcfsProbe) Read(ctx context.Context) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	f, err := p.openMeminfo()
	if err != nil {
		return Usage{}, fmt.Errorf("open meminfo: %w", err)
	}
	defer func() { _ = f.Close() }()

	mi, err := parseMemInfo(f)
	if err != nil {
		return Usage{}, fmt.Errorf("read meminfo: %w", err)
	}
	if mi.MemTotalKB == 0 {
		return Usage{}, errors.New("read meminfo: MemTotal missing")
	}

	free := mi.MemFreeKB
	if mi.hasAvailable {
		free = mi.MemAvailableKB
	}
	total := mi.MemTotalKB * 1024
	freeBytes := min(free*1024, total)
	return Usage{
		Used:  total - freeBytes,
		Total: total,
		Free:  freeBytes,
		Max:   total,
	}, nil
}

// parseMemInfo scans meminfo lines of the form "MemTotal:       32768000 kB".
// Lines it cannot parse are skipped.
func parseMemInfo(r io.Reader) (meminfo, error) {
	var mi meminfo
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		valStr := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(parts[1]), "kB"))

		val, err := strconv.ParseUint(valStr, 10, 64)
		if err != nil {
			continue
		}

		switch key {
		case "MemTotal":
			mi.MemTotalKB = val
		case "MemFree":
			mi.MemFreeKB = val
		case "MemAvailable":
			mi.MemAvailableKB = val
			mi.hasAvailable = true
		}
	}
	return mi, scanner.Err()
}

// ---------------------------------------------------------------------------
// SyntheticProbe
// ---------------------------------------------------------------------------

// SyntheticProbe reports whatever usage it was last given. It drives pressure
// drills and tests.
type SyntheticProbe struct {
	mu  sync.Mutex
	u   Usage
	err error
}

// NewSyntheticProbe returns a probe with the given ceiling and no usage.
func NewSyntheticProbe(max uint64) *SyntheticProbe {
	return &SyntheticProbe{u: Usage{Total: max, Max: max, Free: max}}
}

// Set replaces the reported usage.
func (p *SyntheticProbe) Set(u Usage) {
	p.mu.Lock()
	p.u = u
	p.mu.Unlock()
}

// SetRatio reports used = ratio * Max, keeping the current ceiling.
func (p *SyntheticProbe) SetRatio(ratio float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ratio = max(0, min(1, ratio))
	p.u.Used = uint64(ratio * float64(p.u.Max))
	p.u.Total = p.u.Max
	p.u.Free = p.u.Max - p.u.Used
}

// SetError makes subsequent reads fail with err; nil clears it.
func (p *SyntheticProbe) SetError(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Read implements Probe.
func (p *SyntheticProbe) Read(context.Context) (Usage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return Usage{}, p.err
	}
	return p.u, nil
}
