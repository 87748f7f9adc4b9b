// Package assets is the file-system collaborator of the engine: asset probes,
// project file reads and writes, folder discovery and the missing-asset
// watcher.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	osfs "github.com/hack-pad/hackpadfs/os"
)

// DefaultPatterns match the entry files of converted point clouds.
var DefaultPatterns = []string{"**/metadata.json", "**/cloud.js"}

// Store reads and writes assets through a hackpadfs file system. Paths are
// slash separated and rooted at "/".
type Store struct {
	fs     hackpadfs.FS
	logger *slog.Logger
}

// NewStore wraps an existing file system.
func NewStore(fsys hackpadfs.FS, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{fs: fsys, logger: logger}
}

// NewOSStore returns a store over the host file system.
func NewOSStore(logger *slog.Logger) *Store {
	return NewStore(osfs.NewFS(), logger)
}

// NewMemStore returns a store over an empty in-memory file system.
func NewMemStore(logger *slog.Logger) (*Store, error) {
	fsys, err := mem.NewFS()
	if err != nil {
		return nil, fmt.Errorf("creating memory fs: %w", err)
	}
	return NewStore(fsys, logger), nil
}

// NormPath converts a host style path into a hackpadfs path.
func NormPath(p string) string {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "."
	}
	return p
}

// Exists reports whether the path exists. Only unexpected stat failures are
// returned as errors.
func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if strings.TrimSpace(p) == "" {
		return false, nil
	}
	_, err := hackpadfs.Stat(s.fs, NormPath(p))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, hackpadfs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("probing %s: %w", p, err)
	}
}

// ReadFile returns the contents of a file.
func (s *Store) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := hackpadfs.ReadFile(s.fs, NormPath(p))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	return data, nil
}

// WriteFile replaces a file, creating missing parent directories.
func (s *Store) WriteFile(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := NormPath(p)
	if dir := path.Dir(name); dir != "." {
		if err := hackpadfs.MkdirAll(s.fs, dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := hackpadfs.WriteFullFile(s.fs, name, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return nil
}

// RemoveAll deletes a file or directory tree. A missing path is not an error.
func (s *Store) RemoveAll(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := NormPath(p)
	if name == "." {
		return fmt.Errorf("refusing to remove the root")
	}
	if err := hackpadfs.RemoveAll(s.fs, name); err != nil && !errors.Is(err, hackpadfs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", p, err)
	}
	s.logger.Debug("removed asset path", "path", p)
	return nil
}

// Discover lists files under root matching any of the doublestar patterns,
// sorted and deduplicated. Patterns are relative to root; DefaultPatterns is
// used when none are given.
func (s *Store) Discover(ctx context.Context, root string, patterns ...string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	base := NormPath(root)
	sub, err := fs.Sub(s.fs, base)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", root, err)
	}

	seen := make(map[string]struct{})
	var found []string
	for _, pattern := range patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
		matches, err := doublestar.Glob(sub, pattern)
		if err != nil {
			return nil, fmt.Errorf("globbing %s in %s: %w", pattern, root, err)
		}
		for _, m := range matches {
			full := "/" + path.Join(base, m)
			if base == "." {
				full = "/" + m
			}
			if _, dup := seen[full]; dup {
				continue
			}
			seen[full] = struct{}{}
			found = append(found, full)
		}
	}
	sort.Strings(found)
	s.logger.Debug("discovered assets", "root", root, "count", len(found))
	return found, nil
}
