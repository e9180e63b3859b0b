// Package logging provides the match trace writer for the permissive
// classification policy.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// TraceWriter writes one diagnostic line per matched packet to a trace
// file with size-based rotation. It is the userspace analog of the
// kernel classifier's trace_pipe output and carries the same line
// format.
type TraceWriter struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxSize  int64 // bytes
	maxFiles int
	written  int64
}

// NewTraceWriter opens (or creates) the trace file. maxSize and
// maxFiles fall back to 10MB and 3 when zero or negative.
func NewTraceWriter(path string, maxSize int64, maxFiles int) (*TraceWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("no trace file specified")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join("/var/log", path)
	}
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	if maxFiles <= 0 {
		maxFiles = 3
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}

	tw := &TraceWriter{
		file:     f,
		path:     path,
		maxSize:  maxSize,
		maxFiles: maxFiles,
	}
	if info, err := f.Stat(); err == nil {
		tw.written = info.Size()
	}
	return tw, nil
}

// Match records a classified match. Safe for concurrent use.
func (tw *TraceWriter) Match(port uint16, pid uint32) {
	line := fmt.Sprintf("aetherless: port %d -> pid %d\n", port, pid)

	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.file == nil {
		return
	}
	n, err := tw.file.WriteString(line)
	if err != nil {
		return
	}
	tw.written += int64(n)
	if tw.written >= tw.maxSize {
		tw.rotate()
	}
}

// Close closes the trace file.
func (tw *TraceWriter) Close() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.file != nil {
		tw.file.Close()
		tw.file = nil
	}
}

func (tw *TraceWriter) rotate() {
	tw.file.Close()
	tw.file = nil

	// Shift existing files: .2 -> .3, .1 -> .2, current -> .1
	for i := tw.maxFiles - 1; i > 0; i-- {
		old := fmt.Sprintf("%s.%d", tw.path, i)
		next := fmt.Sprintf("%s.%d", tw.path, i+1)
		os.Rename(old, next)
	}
	os.Rename(tw.path, tw.path+".1")
	os.Remove(fmt.Sprintf("%s.%d", tw.path, tw.maxFiles+1))

	f, err := os.OpenFile(tw.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		slog.Warn("failed to open rotated trace file", "err", err)
		return
	}
	tw.file = f
	tw.written = 0
}
