package importer

import (
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// exists reports whether p is present in fsys.
func exists(fsys billy.Filesystem, p string) (bool, error) {
	_, err := fsys.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("billy: stat %q: %w", p, err)
	}
}

// listFiles returns the slash separated paths of every regular file below
// root, relative to root.
func listFiles(fsys billy.Filesystem, root string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	prefix := strings.TrimSuffix(filepath.ToSlash(root), "/") + "/"
	err := util.Walk(fsys, root, func(p string, info iofs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		out[strings.TrimPrefix(filepath.ToSlash(p), prefix)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("billy: walk %q: %w", root, err)
	}
	return out, nil
}

// copyTree copies every directory and regular file below srcRoot in src to
// dstRoot in dst. dstRoot is created even when srcRoot is empty.
func copyTree(src billy.Filesystem, srcRoot string, dst billy.Filesystem, dstRoot string) error {
	if err := dst.MkdirAll(dstRoot, 0o755); err != nil {
		return fmt.Errorf("billy: mkdirall %q: %w", dstRoot, err)
	}
	base := strings.TrimSuffix(filepath.ToSlash(srcRoot), "/")
	return util.Walk(src, srcRoot, func(p string, info iofs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if filepath.ToSlash(p) == base {
			return nil
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), base+"/")
		target := path.Join(dstRoot, rel)
		if info.IsDir() {
			if err := dst.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("billy: mkdirall %q: %w", target, err)
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(src, p, dst, target)
	})
}

func copyFile(src billy.Filesystem, from string, dst billy.Filesystem, to string) (err error) {
	in, err := src.Open(from)
	if err != nil {
		return fmt.Errorf("billy: open %q: %w", from, err)
	}
	defer func() {
		_ = in.Close()
	}()

	if err := dst.MkdirAll(path.Dir(to), 0o755); err != nil {
		return fmt.Errorf("billy: mkdirall %q: %w", path.Dir(to), err)
	}
	out, err := dst.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("billy: openfile %q: %w", to, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("billy: close %q: %w", to, cerr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("billy: copy %q: %w", from, err)
	}
	return nil
}
