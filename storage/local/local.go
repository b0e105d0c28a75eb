// Package local implements storage.Backend on top of a go-billy filesystem.
//
// The same backend serves the on-disk plan corpus (osfs) and in-memory stores
// used in tests (memfs).
package local

import (
	"context"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/storage"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets a custom logger for the backend.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Backend stores plans in a go-billy filesystem.
type Backend struct {
	fs     billy.Filesystem
	logger *slog.Logger
}

var _ storage.Backend = (*Backend)(nil)

// New creates a Backend over fsys. Paths are resolved relative to the root
// of fsys.
func New(fsys billy.Filesystem, opts ...Option) *Backend {
	b := &Backend{
		fs:     fsys,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewOS creates a Backend rooted at dir on the host filesystem.
func NewOS(dir string, opts ...Option) *Backend {
	return New(osfs.New(dir), opts...)
}

// NewInMemory creates an empty in-memory Backend.
func NewInMemory(opts ...Option) *Backend {
	return New(memfs.New(), opts...)
}

// Filesystem returns the underlying go-billy filesystem.
//
//nolint:ireturn // exposes the adapter target.
func (b *Backend) Filesystem() billy.Filesystem {
	return b.fs
}

// Read implements storage.Backend.
func (b *Backend) Read(_ context.Context, p string) ([]byte, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	data, err := util.ReadFile(b.fs, clean)
	if err != nil {
		return nil, wrapErr("readfile", clean, err)
	}
	return data, nil
}

// Write implements storage.Backend.
func (b *Backend) Write(_ context.Context, p string, data []byte) error {
	clean, err := cleanPath(p)
	if err != nil {
		return err
	}
	if dir := path.Dir(clean); dir != "." {
		if err := b.fs.MkdirAll(dir, dirPerm); err != nil {
			return wrapErr("mkdirall", dir, err)
		}
	}
	if err := util.WriteFile(b.fs, clean, data, filePerm); err != nil {
		return wrapErr("writefile", clean, err)
	}
	b.logger.Debug("wrote file", "path", clean, "bytes", len(data))
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(_ context.Context, p string) (bool, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return false, err
	}
	_, err = b.fs.Stat(clean)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, iofs.ErrNotExist):
		return false, nil
	default:
		return false, wrapErr("stat", clean, err)
	}
}

// Delete implements storage.Backend.
func (b *Backend) Delete(_ context.Context, p string) (bool, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return false, err
	}
	err = b.fs.Remove(clean)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, iofs.ErrNotExist):
		return false, nil
	default:
		return false, wrapErr("remove", clean, err)
	}
}

// EnsureDir implements storage.Backend.
func (b *Backend) EnsureDir(_ context.Context, p string) error {
	clean, err := cleanPath(p)
	if err != nil {
		return err
	}
	if err := b.fs.MkdirAll(clean, dirPerm); err != nil {
		return wrapErr("mkdirall", clean, err)
	}
	return nil
}

// Stat implements storage.Backend.
func (b *Backend) Stat(_ context.Context, p string) (storage.FileStats, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return storage.FileStats{}, err
	}
	info, err := b.fs.Stat(clean)
	if err != nil {
		return storage.FileStats{}, wrapErr("stat", clean, err)
	}
	if info.IsDir() {
		return storage.FileStats{}, errors.Newf(errors.CodeInvalidInput, "billy: stat %q: is a directory", clean)
	}
	data, err := util.ReadFile(b.fs, clean)
	if err != nil {
		return storage.FileStats{}, wrapErr("readfile", clean, err)
	}
	return storage.FileStats{
		Size:       info.Size(),
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
		LineCount:  storage.CountLines(data),
	}, nil
}

// List implements storage.Backend.
func (b *Backend) List(_ context.Context, p string) ([]string, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	infos, err := b.fs.ReadDir(clean)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, wrapErr("readdir", clean, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

// cleanPath normalizes p and refuses anything that could leave the root.
func cleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	if p == "" || path.IsAbs(p) {
		return "", errors.Newf(errors.CodeSecurity, "billy: path %q is not relative", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", errors.Newf(errors.CodeSecurity, "billy: path %q escapes the root", p)
		}
	}
	return path.Clean(p), nil
}

func wrapErr(op, p string, err error) error {
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("billy: %s %q: %w", op, p, storage.ErrNotFound)
	}
	return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: %s %q", op, p))
}
