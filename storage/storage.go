// Package storage defines the capability every plan store provides.
//
// Paths are slash separated and relative to the store's root, e.g.
// "Day/20251019.md". Backends are free to map them onto directories, object
// keys or folder hierarchies.
package storage

import (
	"context"
	"time"

	"github.com/input-output-hk/planvault/errors"
)

// ErrNotFound is returned by Read and Stat when the path does not exist.
// Backends wrap it, so match it with errors.Is.
var ErrNotFound = errors.New(errors.CodeNotFound, "storage: not found")

// FileStats describes a stored plan file.
type FileStats struct {
	Size int64 `json:"size"`
	// CreatedAt falls back to ModifiedAt on stores that do not record a
	// creation time.
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	LineCount  int       `json:"line_count"`
}

// Backend is a plan store. Implementations must be safe for sequential use;
// concurrent use is only required where documented.
type Backend interface {
	// Read returns the file contents or an error wrapping ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write creates or replaces the file, creating parents as needed.
	Write(ctx context.Context, path string, data []byte) error

	// Exists reports whether the file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the file. It reports whether something was removed.
	Delete(ctx context.Context, path string) (bool, error)

	// EnsureDir makes sure the directory exists. Flat stores may no-op.
	EnsureDir(ctx context.Context, path string) error

	// Stat returns size, modification time and line count.
	Stat(ctx context.Context, path string) (FileStats, error)

	// List returns the names (not paths) of the entries directly inside
	// path. A missing directory yields an empty list.
	List(ctx context.Context, path string) ([]string, error)
}

// Hasher is implemented by backends that can report the MD5 hex digest of a
// file without transferring its contents.
type Hasher interface {
	MD5(ctx context.Context, path string) (string, error)
}

// CountLines returns the number of lines in data. Empty data has zero lines
// and a trailing newline does not start a new line.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// IsNotFound reports whether err means the path does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
