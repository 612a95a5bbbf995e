package executor

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"github.com/harshul/octo-runner/internal/detect"
)

// tailLines is how much recent server output a startup summary shows
const tailLines = 20

// Collector accumulates a server's output: every completed line is kept in a
// bounded tail and, when detection is on, scanned for errors.
type Collector struct {
	cwd    string
	detect bool
	logger *slog.Logger

	mu    sync.Mutex
	errs  []detect.DetectedError
	tail  *lineBuffer
	lines int
}

func newCollector(cwd string, detectErrors bool, logger *slog.Logger) *Collector {
	return &Collector{
		cwd:    cwd,
		detect: detectErrors,
		logger: logger,
		tail:   newLineBuffer(tailLines),
	}
}

// writer returns a line-splitting writer feeding the collector. Each stream
// needs its own writer so partial lines from stdout and stderr never mix.
func (c *Collector) writer() *lineWriter {
	return &lineWriter{sink: c.appendLine, buffer: make([]byte, 0, 4096)}
}

func (c *Collector) appendLine(line string) {
	line = ansi.Strip(line)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines++
	c.tail.Append(line)
	if !c.detect {
		return
	}

	// A "File:" line locates the error above it; rescan the tail for it
	if strings.HasPrefix(strings.TrimSpace(line), "File:") {
		if located := detect.FromOutput(c.tail.Join(), c.cwd); len(located) > 0 {
			c.errs = mergeLocated(c.errs, located)
		}
		return
	}

	found := detect.FromLine(line, c.cwd)
	if len(found) == 0 {
		return
	}

	before := len(c.errs)
	c.errs = detect.Merge(c.errs, found)
	for _, e := range c.errs[before:] {
		c.logger.Info("detected startup error", "error.type", e.Type, "package", e.PackageName, "import", e.ImportPath)
	}
}

// mergeLocated fills positions on known errors from a rescan without adding
// new records
func mergeLocated(errs, located []detect.DetectedError) []detect.DetectedError {
	byKey := make(map[string]detect.DetectedError, len(located))
	for _, e := range located {
		byKey[e.Key()] = e
	}
	for i := range errs {
		l, ok := byKey[errs[i].Key()]
		if !ok || errs[i].Line > 0 || l.Line == 0 {
			continue
		}
		errs[i].FilePath, errs[i].Line, errs[i].Column = l.FilePath, l.Line, l.Column
	}
	return errs
}

// Errors returns the deduplicated errors seen so far
func (c *Collector) Errors() []detect.DetectedError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]detect.DetectedError(nil), c.errs...)
}

// Tail returns the most recent output lines
func (c *Collector) Tail() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tail.GetAll()
}

// Lines returns how many lines were seen in total
func (c *Collector) Lines() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines
}

// lineWriter is an io.Writer that hands complete lines to sink
type lineWriter struct {
	mu     sync.Mutex
	sink   func(string)
	buffer []byte
}

// Write implements io.Writer
func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = append(w.buffer, p...)
	for {
		idx := bytes.IndexByte(w.buffer, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buffer[:idx], "\r"))
		w.buffer = w.buffer[idx+1:]
		if line != "" {
			w.sink(line)
		}
	}
	return len(p), nil
}

// Flush hands over a trailing partial line
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buffer) > 0 {
		line := string(w.buffer)
		w.buffer = w.buffer[:0]
		w.sink(line)
	}
}

// lineBuffer is a fixed-size ring of recent lines
type lineBuffer struct {
	lines    []string
	maxLines int
}

func newLineBuffer(maxLines int) *lineBuffer {
	return &lineBuffer{lines: make([]string, 0, maxLines), maxLines: maxLines}
}

func (b *lineBuffer) Append(line string) {
	if len(b.lines) >= b.maxLines {
		copy(b.lines, b.lines[1:])
		b.lines = b.lines[:len(b.lines)-1]
	}
	b.lines = append(b.lines, line)
}

func (b *lineBuffer) GetAll() []string {
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

func (b *lineBuffer) Join() string {
	var buf bytes.Buffer
	for _, l := range b.lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.String()
}

// OutputLimit is a byte budget shared by a command's stdout and stderr
type OutputLimit struct {
	mu        sync.Mutex
	remaining int
	truncated bool
}

// CappedBuffer stores writes until the shared budget runs out, then drops
// the rest while still reporting success so the child never blocks.
type CappedBuffer struct {
	limit *OutputLimit
	buf   bytes.Buffer
}

func (c *CappedBuffer) Write(p []byte) (int, error) {
	c.limit.mu.Lock()
	defer c.limit.mu.Unlock()

	n := len(p)
	if n > c.limit.remaining {
		c.limit.truncated = true
		n = c.limit.remaining
	}
	if n > 0 {
		c.buf.Write(p[:n])
		c.limit.remaining -= n
	}
	return len(p), nil
}

func (c *CappedBuffer) String() string {
	c.limit.mu.Lock()
	defer c.limit.mu.Unlock()
	return c.buf.String()
}

// NewCappedPair returns stdout and stderr buffers sharing a size-byte budget
func NewCappedPair(size int) (stdout, stderr *CappedBuffer, limit *OutputLimit) {
	limit = &OutputLimit{remaining: size}
	return &CappedBuffer{limit: limit}, &CappedBuffer{limit: limit}, limit
}

// Truncated reports whether any output was dropped
func (l *OutputLimit) Truncated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.truncated
}

func (l *OutputLimit) note(size int) string {
	if !l.Truncated() {
		return ""
	}
	return fmt.Sprintf("\n[output truncated at %d bytes]", size)
}
