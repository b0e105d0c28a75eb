package archive

import (
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/go-git/go-billy/v5"
	"github.com/klauspost/compress/zip"

	"github.com/input-output-hk/planvault/errors"
)

// Extractor materializes archive entries below a destination root. Every
// target is resolved with symlinks taken into account and must stay the
// plain lexical target inside the root, otherwise the entry is rejected with
// a CodeSecurity error.
type Extractor struct {
	fs   billy.Filesystem
	root string
}

// NewExtractor creates an Extractor writing below root in fsys.
func NewExtractor(fsys billy.Filesystem, root string) *Extractor {
	return &Extractor{fs: fsys, root: cleanRoot(root)}
}

// Extract writes the content of f to relPath below the destination root.
// relPath is usually the entry name anchored at its category segment.
func (e *Extractor) Extract(f *zip.File, relPath string) error {
	if err := checkSecurity(f.Name); err != nil {
		return err
	}
	target, err := e.Resolve(relPath)
	if err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("archive: open entry %q", f.Name))
	}
	defer func() {
		_ = src.Close()
	}()

	if dir := path.Dir(target); dir != "." {
		if err := e.fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: mkdirall %q", dir))
		}
	}
	dst, err := e.fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: openfile %q", target))
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("archive: extract %q", f.Name))
	}
	if err := dst.Close(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: close %q", target))
	}
	return nil
}

// Resolve returns the filesystem path relPath maps to below the root. It
// fails with CodeSecurity when relPath is unsafe or when symlink resolution
// would land anywhere but the lexical target.
func (e *Extractor) Resolve(relPath string) (string, error) {
	if err := checkSecurity(relPath); err != nil {
		return "", err
	}
	rel := strings.ReplaceAll(relPath, `\`, "/")
	lexical := path.Clean(path.Join(e.root, rel))
	if e.root != "." && !strings.HasPrefix(lexical, e.root+"/") {
		return "", errors.Newf(errors.CodeSecurity, "archive entry %q escapes %q", relPath, e.root)
	}

	resolved, err := securejoin.SecureJoinVFS(e.root, rel, billyVFS{e.fs})
	if err != nil {
		return "", errors.Wrap(err, errors.CodeSecurity, fmt.Sprintf("archive: resolve %q", relPath))
	}
	if path.Clean(filepath.ToSlash(resolved)) != lexical {
		return "", errors.WrapWithContext(errUnsafeEntry, errors.CodeSecurity,
			fmt.Sprintf("archive entry %q resolves outside its target", relPath),
			map[string]any{"path": relPath, "resolved": resolved, "expected": lexical})
	}
	return lexical, nil
}

// billyVFS exposes a billy filesystem to securejoin.
type billyVFS struct {
	fs billy.Filesystem
}

func (v billyVFS) Lstat(name string) (iofs.FileInfo, error) {
	return v.fs.Lstat(filepath.ToSlash(name))
}

func (v billyVFS) Readlink(name string) (string, error) {
	return v.fs.Readlink(filepath.ToSlash(name))
}

func cleanRoot(root string) string {
	root = path.Clean(strings.ReplaceAll(root, `\`, "/"))
	if root == "/" || root == "" {
		return "."
	}
	return strings.TrimPrefix(root, "/")
}
