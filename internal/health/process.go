package health

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessFinder reports whether a process with the given name is running.
type ProcessFinder interface {
	Running(ctx context.Context, name string) (bool, error)
}

// SystemProcessFinder looks through the host process table.
type SystemProcessFinder struct{}

func (SystemProcessFinder) Running(ctx context.Context, name string) (bool, error) {
	pids, err := FindProcesses(ctx, name)
	if err != nil {
		return false, err
	}
	return len(pids) > 0, nil
}

// FindProcesses returns the PIDs of processes named name, ignoring case and
// a ".exe" suffix. Processes whose name cannot be read are skipped.
func FindProcesses(ctx context.Context, name string) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	want := normalizeProcessName(name)
	var pids []int32
	skipped := 0
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil || n == "" {
			skipped++
			continue
		}
		if normalizeProcessName(n) == want {
			pids = append(pids, p.Pid)
		}
	}

	if skipped > 0 {
		log.Debug("process scan skipped processes", "skipped", skipped, "total", len(procs))
	}
	return pids, nil
}

func normalizeProcessName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".exe")
}
