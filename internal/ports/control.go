package ports

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// ErrNoListener is returned by ListListeners when nothing listens on the port
var ErrNoListener = errors.New("no process listening on port")

// ProcessControl enumerates and terminates OS processes. One implementation
// exists per OS family; NewProcessControl picks it.
type ProcessControl interface {
	// ListListeners returns the PIDs listening on a TCP port
	ListListeners(ctx context.Context, port int) ([]int, error)
	// ForceKill terminates a single process
	ForceKill(pid int) error
	// ForceKillTree terminates a process and everything it spawned
	ForceKillTree(pid int) error
}

// parsePIDs extracts unique positive PIDs, one per whitespace-separated field
func parsePIDs(output string) []int {
	var pids []int
	seen := map[int]bool{}
	for _, field := range strings.Fields(output) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids
}

// parseNetstat extracts the PIDs of LISTENING sockets bound to port from
// `netstat -ano` output:
//
//	TCP    0.0.0.0:3000    0.0.0.0:0    LISTENING    1234
func parseNetstat(output string, port int) []int {
	suffix := ":" + strconv.Itoa(port)
	var fields []string

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		cols := strings.Fields(scanner.Text())
		if len(cols) < 5 || !strings.EqualFold(cols[0], "TCP") {
			continue
		}
		if !strings.EqualFold(cols[3], "LISTENING") || !strings.HasSuffix(cols[1], suffix) {
			continue
		}
		fields = append(fields, cols[4])
	}
	return parsePIDs(strings.Join(fields, " "))
}

// listenersFromConnections asks the kernel tables directly. It backs up
// lsof/netstat when those tools are missing.
func listenersFromConnections(ctx context.Context, port int) ([]int, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	var fields []string
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) || c.Pid <= 0 {
			continue
		}
		fields = append(fields, strconv.Itoa(int(c.Pid)))
	}

	pids := parsePIDs(strings.Join(fields, " "))
	if len(pids) == 0 {
		return nil, ErrNoListener
	}
	return pids, nil
}
