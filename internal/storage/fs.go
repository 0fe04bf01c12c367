package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// TempPrefix marks in-flight atomic writes.
const TempPrefix = ".memo-tmp-"

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the documents directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory does not need to exist yet; see EnsureDir.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute documents directory.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves path against the root and rejects any result that
// escapes it.
func (f *FS) safePath(path string) (string, error) {
	if path == "" {
		return f.root, nil
	}
	abs := filepath.Clean(path)
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(f.root, abs)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes documents root: %s", path)
	}
	return abs, nil
}

// EnsureDir creates dir (and parents) when absent.
func (f *FS) EnsureDir(dir string) error {
	abs, err := f.safePath(dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("storage: not a directory: %s", abs)
		}
		return nil
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	return nil
}

// Write atomically writes content: tmp file, fsync, rename, then fsync of
// the parent directory.
func (f *FS) Write(path string, content string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: cannot write to documents root")
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	if err := syncDir(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("storage: fsync dir: %w", err)
	}
	return nil
}

// syncDir flushes the directory entry created by a rename. Windows cannot
// fsync a directory handle.
var syncDir = func(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Read returns the content of path with every line, the last included,
// terminated by "\n". "\n", "\r\n" and a lone "\r" all end a line. Lines
// have no length limit. A missing file produces an error matching
// fs.ErrNotExist.
func (f *FS) Read(path string) (string, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return "", err
	}
	file, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("storage: read %s: %w", path, err)
	}
	defer file.Close()

	var b strings.Builder
	r := bufio.NewReader(file)
	for {
		chunk, err := r.ReadString('\n')
		if chunk != "" {
			writeLines(&b, chunk)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("storage: read %s: %w", path, err)
		}
	}
	return b.String(), nil
}

// writeLines appends chunk, which holds at most one "\n" at its end, with
// each line terminated by a single "\n".
func writeLines(b *strings.Builder, chunk string) {
	body, hasLF := strings.CutSuffix(chunk, "\n")
	if hasLF {
		body = strings.TrimSuffix(body, "\r")
	}
	for {
		i := strings.IndexByte(body, '\r')
		if i < 0 {
			break
		}
		b.WriteString(body[:i])
		b.WriteByte('\n')
		body = body[i+1:]
	}
	if body != "" || hasLF {
		b.WriteString(body)
		b.WriteByte('\n')
	}
}

// Exists reports whether path is present.
func (f *FS) Exists(path string) bool {
	abs, err := f.safePath(path)
	if err != nil {
		return false
	}
	_, err = os.Lstat(abs)
	return err == nil
}

// List returns sorted absolute paths of regular files under dir matching pattern.
func (f *FS) List(dir, pattern string) ([]string, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("storage: invalid pattern %q", pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(base), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.HasPrefix(filepath.Base(m), TempPrefix) {
			continue
		}
		out = append(out, filepath.Join(base, filepath.FromSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes a file.
func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}
