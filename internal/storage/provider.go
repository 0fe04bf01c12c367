// Package storage defines the content file-system abstraction.
package storage

// Provider is the interface for note content file operations.
// Paths may be absolute or relative to the store root; either way they must
// resolve inside the root.
type Provider interface {
	// EnsureDir creates dir and its parents if absent. An existing directory is not an error.
	EnsureDir(dir string) error
	// Write atomically replaces the file at path with content.
	Write(path string, content string) error
	// Read returns the file content reassembled line by line, each line terminated by "\n".
	Read(path string) (string, error)
	// Exists reports whether anything is present at path.
	Exists(path string) bool
	// List returns the absolute paths of files under dir matching a doublestar pattern.
	List(dir, pattern string) ([]string, error)
	// Delete removes the file at path.
	Delete(path string) error
}
