package executor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// followInterval is how often a server log is checked for new output
const followInterval = 100 * time.Millisecond

// serverLogPath names the log a server on port writes to
func serverLogPath(dir string, kind Kind, port int) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%d.log", strings.ReplaceAll(kind.String(), " ", "-"), port))
}

// resetServerLog creates an empty log at path
func resetServerLog(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create server log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create server log: %w", err)
	}
	return f.Close()
}

// openServerLog opens path for a child's stdout and stderr. The child keeps
// its own descriptor, so the server does not depend on this process.
func openServerLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// follower reads what a server appends to its log and hands it to a
// lineWriter
type follower struct {
	mu     sync.Mutex
	f      *os.File
	w      *lineWriter
	buf    []byte
	closed bool
}

func newFollower(path string, w *lineWriter) (*follower, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open server log: %w", err)
	}
	return &follower{f: f, w: w, buf: make([]byte, 32*1024)}, nil
}

// poll copies everything appended since the last call
func (fl *follower) poll() {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.closed {
		return
	}
	for {
		n, err := fl.f.Read(fl.buf)
		if n > 0 {
			_, _ = fl.w.Write(fl.buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fl.closeLocked()
			}
			return
		}
	}
}

// sync polls and hands over a trailing partial line
func (fl *follower) sync() {
	fl.poll()
	fl.w.Flush()
}

// run follows the log until done is closed, then drains it
func (fl *follower) run(done <-chan struct{}) {
	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			fl.sync()
			fl.close()
			return
		case <-ticker.C:
			fl.poll()
		}
	}
}

func (fl *follower) close() {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.closeLocked()
}

func (fl *follower) closeLocked() {
	if !fl.closed {
		fl.closed = true
		_ = fl.f.Close()
	}
}
