package ports

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessCwd returns the working directory of pid
func ProcessCwd(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return p.Cwd()
}

// IsWithin reports whether path lies inside root (or is root itself)
func IsWithin(path, root string) bool {
	if path == "" || root == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Describe returns a one-line summary of pid for status output
func Describe(pid int) string {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Sprintf("pid %d (gone)", pid)
	}

	name, _ := p.Name()
	cmdline, _ := p.Cmdline()
	if len(cmdline) > 80 {
		cmdline = cmdline[:77] + "..."
	}

	desc := fmt.Sprintf("pid %d %s", pid, name)
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		desc += fmt.Sprintf(" %.1fMB", float64(mem.RSS)/1024/1024)
	}
	if cmdline != "" {
		desc += " - " + cmdline
	}
	return desc
}
