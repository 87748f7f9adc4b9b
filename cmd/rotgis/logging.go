package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Log files are cut back to their newest keepLogBytes once they pass
// maxLogBytes.
const (
	maxLogBytes  = 6 << 20
	keepLogBytes = 5 << 20
)

// newLogger writes to stderr, or to path when set. stdout stays free for the
// stdio transport. The returned close func is never nil.
func newLogger(level, path string) (*slog.Logger, func()) {
	var out io.Writer = os.Stderr
	closeFn := func() {}
	if path != "" {
		f, err := openCappedFile(path, maxLogBytes, keepLogBytes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rotgis: log file %s: %v\n", path, err)
		} else {
			out = f
			closeFn = func() { _ = f.Close() }
		}
	}
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	return slog.New(slog.NewTextHandler(out, opts)), closeFn
}

// parseLogLevel accepts slog level names in any case and falls back to info.
func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if level == "" || l.UnmarshalText([]byte(level)) != nil {
		return slog.LevelInfo
	}
	return l
}

// cappedFile is an append-only log file that keeps only its tail.
type cappedFile struct {
	mu   sync.Mutex
	f    *os.File
	max  int64
	keep int64
}

func openCappedFile(path string, max, keep int64) (*cappedFile, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	c := &cappedFile{f: f, max: max, keep: keep}
	if err := c.trim(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return c, nil
}

// ensureDir creates the parent directory of path. ":memory:" and bare file
// names need nothing.
func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

func (c *cappedFile) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.f.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.trim()
}

func (c *cappedFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Close()
}

// trim rewrites the file as its newest keep bytes when it exceeds max.
func (c *cappedFile) trim() error {
	info, err := c.f.Stat()
	if err != nil {
		return err
	}
	if info.Size() <= c.max {
		return nil
	}
	tail := make([]byte, c.keep)
	n, err := c.f.ReadAt(tail, info.Size()-c.keep)
	if err != nil && err != io.EOF {
		return err
	}
	if err := c.f.Truncate(0); err != nil {
		return err
	}
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err = c.f.Write(tail[:n])
	return err
}
