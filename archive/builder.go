package archive

import (
	"context"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zip"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/plan"
)

const exportPrefix = "plans_export_"

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuilderLogger sets a custom logger for the builder.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithClock overrides the time source used for archive names.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = now
	}
}

// Builder writes plan corpora into zip archives.
type Builder struct {
	out    billy.Filesystem
	now    func() time.Time
	logger *slog.Logger
}

// NewBuilder creates a Builder that stores archives in out.
func NewBuilder(out billy.Filesystem, opts ...BuilderOption) *Builder {
	b := &Builder{
		out:    out,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build archives every .md file below root in fsys into a new file in the
// builder's output filesystem. The file name embeds the build time; a
// numeric suffix is added if that name is taken. A partially written archive
// is removed before an error is returned.
func (b *Builder) Build(ctx context.Context, fsys billy.Filesystem, root string) (*ExportResult, error) {
	if err := requireDir(fsys, root); err != nil {
		return nil, err
	}

	createdAt := b.now()
	name, err := b.nextName(createdAt)
	if err != nil {
		return nil, err
	}

	f, err := b.out.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: create %q", name))
	}

	count, err := WriteArchive(ctx, fsys, root, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.Wrap(closeErr, errors.CodeInternal, fmt.Sprintf("billy: close %q", name))
	}
	if err != nil {
		if rmErr := b.out.Remove(name); rmErr != nil && !errors.Is(rmErr, iofs.ErrNotExist) {
			b.logger.Error("failed to remove partial archive", "file", name, "error", rmErr)
		}
		return nil, err
	}

	info, err := b.out.Stat(name)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: stat %q", name))
	}

	b.logger.Info("archive created", "file", name, "files", count, "bytes", info.Size())
	return &ExportResult{
		Filename:  name,
		Size:      info.Size(),
		CreatedAt: createdAt,
		FileCount: count,
	}, nil
}

// WriteArchive streams a zip archive of every .md file below root to w and
// returns the number of files written. The archive opens with a directory
// entry per category, followed by the files relative to root, sorted.
func (b *Builder) WriteArchive(ctx context.Context, fsys billy.Filesystem, root string, w io.Writer) (int, error) {
	if err := requireDir(fsys, root); err != nil {
		return 0, err
	}
	return WriteArchive(ctx, fsys, root, w)
}

// WriteArchive is the stateless form of Builder.WriteArchive.
func WriteArchive(ctx context.Context, fsys billy.Filesystem, root string, w io.Writer) (int, error) {
	files, err := CollectPlans(fsys, root)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	for _, c := range plan.Categories() {
		if _, err := zw.CreateHeader(&zip.FileHeader{Name: string(c) + "/", Method: zip.Store}); err != nil {
			return 0, errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("archive: add %q", c))
		}
	}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return 0, errors.Wrap(err, errors.CodeTimeout, "archive: build interrupted")
		}
		if err := addFile(zw, fsys, path.Join(root, rel), rel); err != nil {
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "archive: finish zip")
	}
	return len(files), nil
}

// CollectPlans returns the slash separated paths, relative to root, of every
// .md file below root, sorted.
func CollectPlans(fsys billy.Filesystem, root string) ([]string, error) {
	var files []string
	err := util.Walk(fsys, root, func(p string, info iofs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || path.Ext(info.Name()) != plan.Ext {
			return nil
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), strings.TrimSuffix(filepath.ToSlash(root), "/")+"/")
		files = append(files, rel)
		return nil
	})
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, errors.Wrap(err, errors.CodeNotFound, fmt.Sprintf("billy: walk %q", root))
		}
		return nil, errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: walk %q", root))
	}
	sort.Strings(files)
	return files, nil
}

func addFile(zw *zip.Writer, fsys billy.Filesystem, src, name string) error {
	f, err := fsys.Open(src)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: open %q", src))
	}
	defer func() {
		_ = f.Close()
	}()

	var modified time.Time
	if info, err := fsys.Stat(src); err == nil {
		modified = info.ModTime()
	}

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("archive: add %q", name))
	}
	if _, err := io.Copy(w, f); err != nil {
		return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("archive: write %q", name))
	}
	return nil
}

// nextName picks plans_export_YYYYMMDD_HHMMSS.zip, or the first free
// plans_export_YYYYMMDD_HHMMSS_N.zip.
func (b *Builder) nextName(t time.Time) (string, error) {
	base := exportPrefix + t.Format("20060102_150405")
	name := base + ".zip"
	for i := 1; ; i++ {
		_, err := b.out.Stat(name)
		if errors.Is(err, iofs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: stat %q", name))
		}
		name = fmt.Sprintf("%s_%d.zip", base, i)
	}
}

// requireDir reports CodeNotFound when root is missing from fsys.
func requireDir(fsys billy.Filesystem, root string) error {
	info, err := fsys.Stat(root)
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		return errors.WrapWithContext(err, errors.CodeNotFound, fmt.Sprintf("content root %q does not exist", root),
			map[string]any{"root": root})
	case err != nil:
		return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: stat %q", root))
	case !info.IsDir():
		return errors.Newf(errors.CodeInvalidInput, "content root %q is not a directory", root)
	}
	return nil
}
