package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/input-output-hk/planvault/archive"
	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/plan"
)

var (
	// ErrRolledBack is wrapped together with the cause when an import failed
	// and the destination was restored to its previous content.
	ErrRolledBack = errors.New(errors.CodeExecutionFailed, "import rolled back")

	// ErrBusy is returned when an import is already running on the same
	// Coordinator.
	ErrBusy = errors.New(errors.CodeConflict, "an import is already in progress")
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Transitions are logged at Debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithScratch sets the filesystem holding staging archives and backups.
// It defaults to an in-memory filesystem.
func WithScratch(fsys billy.Filesystem) Option {
	return func(c *Coordinator) {
		c.scratch = fsys
	}
}

// WithValidator sets the validator used for the size ceiling, the required
// categories and the entry name checks.
func WithValidator(v *archive.Validator) Option {
	return func(c *Coordinator) {
		c.validator = v
	}
}

// WithCategories sets the category directories recreated when the
// destination is cleared.
func WithCategories(categories []plan.Category) Option {
	return func(c *Coordinator) {
		c.categories = append([]plan.Category(nil), categories...)
	}
}

// WithTransitionHook registers fn to be called after every state change.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(c *Coordinator) {
		c.onTransition = fn
	}
}

// Coordinator imports archives into a destination root. A Coordinator runs
// at most one import at a time.
type Coordinator struct {
	fs           billy.Filesystem
	root         string
	scratch      billy.Filesystem
	validator    *archive.Validator
	categories   []plan.Category
	logger       *slog.Logger
	onTransition func(from, to State)
	newID        func() string

	mu sync.Mutex
}

// New creates a Coordinator importing into root within fsys. root must name
// a directory below the filesystem root.
func New(fsys billy.Filesystem, root string, opts ...Option) *Coordinator {
	c := &Coordinator{
		fs:         fsys,
		root:       path.Clean(strings.ReplaceAll(root, `\`, "/")),
		categories: plan.Categories(),
		logger:     slog.New(slog.DiscardHandler),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scratch == nil {
		c.scratch = memfs.New()
	}
	if c.validator == nil {
		c.validator = archive.NewValidator()
	}
	return c
}

type txn struct {
	id       string
	state    State
	hadPrior bool
	dirty    bool
	existing map[string]struct{}
	logger   *slog.Logger
}

func (t *txn) staging() string { return "staging-" + t.id + ".zip" }
func (t *txn) backup() string  { return "backup-" + t.id }

// Import replaces the destination content with the plan files of the
// archive read from r.
//
// Failures before the destination is touched return the validation or
// staging error. Later failures restore the destination: the returned error
// then wraps ErrRolledBack and the cause, or is an *errors.RollbackError
// when the restore itself failed.
func (c *Coordinator) Import(ctx context.Context, r io.Reader) (*archive.ImportResult, error) {
	if !c.mu.TryLock() {
		return nil, ErrBusy
	}
	defer c.mu.Unlock()

	if c.root == "." || c.root == "/" || strings.HasPrefix(c.root, "../") || c.root == ".." {
		return nil, errors.Newf(errors.CodeInvalidConfig, "import root %q must name a directory", c.root)
	}

	tx := &txn{id: c.newID(), state: StateIdle}
	tx.logger = c.logger.With("tx", tx.id, "root", c.root)

	if err := c.advance(tx, StateValidating); err != nil {
		return nil, err
	}

	defer c.removeScratch(tx.logger, tx.staging())
	staged, size, err := c.stage(ctx, r, tx.staging())
	if err != nil {
		return nil, c.abort(tx, err)
	}
	defer func() {
		_ = staged.Close()
	}()

	entries, err := c.validate(staged, size)
	if err != nil {
		return nil, c.abort(tx, err)
	}

	if err := c.advance(tx, StateBackingUp); err != nil {
		return nil, err
	}
	if err := c.snapshot(tx); err != nil {
		return nil, c.rollback(tx, err)
	}

	if err := c.advance(tx, StateClearing); err != nil {
		return nil, c.rollback(tx, err)
	}
	tx.dirty = true
	if err := c.clear(); err != nil {
		return nil, c.rollback(tx, err)
	}

	if err := c.advance(tx, StateExtracting); err != nil {
		return nil, c.rollback(tx, err)
	}
	imported, overwritten, err := c.extract(ctx, tx, entries)
	if err != nil {
		return nil, c.rollback(tx, err)
	}

	if err := c.advance(tx, StateCommitted); err != nil {
		return nil, c.rollback(tx, err)
	}
	c.removeScratch(tx.logger, tx.backup())

	tx.logger.Info("import committed", "imported", imported, "overwritten", overwritten)
	return &archive.ImportResult{
		Success:          true,
		Message:          fmt.Sprintf("imported %d files (%d overwritten)", imported, overwritten),
		FileCount:        imported,
		OverwrittenCount: overwritten,
	}, nil
}

func (c *Coordinator) advance(tx *txn, to State) error {
	from := tx.state
	if err := transition(&tx.state, from, to); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "import state machine")
	}
	tx.logger.Debug("import transition", "from", from, "to", to)
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
	return nil
}

// abort returns a transaction that never touched the destination to IDLE.
func (c *Coordinator) abort(tx *txn, cause error) error {
	if err := c.advance(tx, StateIdle); err != nil {
		return errors.Join(cause, err)
	}
	tx.logger.Info("import rejected", "error", cause)
	return cause
}

// stage copies the archive stream onto the scratch filesystem. At most one
// byte past the size ceiling is read.
func (c *Coordinator) stage(ctx context.Context, r io.Reader, name string) (billy.File, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeTimeout, "import cancelled")
	}

	f, err := c.scratch.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: create staging archive %q", name))
	}
	n, err := io.Copy(f, io.LimitReader(r, c.validator.MaxSize()+1))
	if err != nil {
		_ = f.Close()
		return nil, 0, errors.Wrap(err, errors.CodeInternal, "read archive stream")
	}
	return f, n, nil
}

// entry is a plan file of the archive and its path below the root.
type entry struct {
	file   *zip.File
	target string
}

// validate runs the checks that must pass before the destination is touched
// and returns the plan entries to extract.
func (c *Coordinator) validate(r io.ReaderAt, size int64) ([]entry, error) {
	if issue := c.validator.CheckSize("", size); issue != nil {
		return nil, &errors.PlatformError{Code: errors.CodeTooLarge, Message: issue.Message, Context: issue.Context}
	}

	zr, err := archive.OpenZip(r, size)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "not a valid zip archive")
	}

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if missing := c.validator.CheckRequiredCategories(names); len(missing) > 0 {
		dirs := make([]string, 0, len(missing))
		for _, m := range missing {
			dirs = append(dirs, string(m))
		}
		return nil, &errors.PlatformError{
			Code:    errors.CodeSchemaFailed,
			Message: "archive is missing required directories: " + strings.Join(dirs, ", "),
			Context: map[string]any{"missing_dirs": dirs},
		}
	}
	for _, name := range names {
		if err := c.validator.CheckSecurity(name); err != nil {
			return nil, err
		}
	}
	if dups := archive.DuplicateTargets(names); len(dups) > 0 {
		return nil, &errors.PlatformError{
			Code:    errors.CodeSchemaFailed,
			Message: fmt.Sprintf("archive holds more than one entry for %q", dups[0]),
			Context: map[string]any{"duplicates": dups},
		}
	}

	root := archive.EntryRoot(names)
	entries := make([]entry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") || path.Ext(f.Name) != plan.Ext {
			continue
		}
		entries = append(entries, entry{file: f, target: archive.EntryTarget(f.Name, root)})
	}
	return entries, nil
}

// snapshot records the files present under the root and copies the tree
// into the backup location.
func (c *Coordinator) snapshot(tx *txn) error {
	had, err := exists(c.fs, c.root)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "inspect destination")
	}
	tx.hadPrior = had
	tx.existing = map[string]struct{}{}
	if !had {
		tx.logger.Debug("no prior data")
		return nil
	}

	tx.existing, err = listFiles(c.fs, c.root)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "list destination")
	}
	if err := copyTree(c.fs, c.root, c.scratch, tx.backup()); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "back up destination")
	}
	tx.logger.Debug("destination backed up", "files", len(tx.existing), "backup", tx.backup())
	return nil
}

// clear removes the destination and recreates the category skeleton.
func (c *Coordinator) clear() error {
	if err := util.RemoveAll(c.fs, c.root); err != nil {
		return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: removeall %q", c.root))
	}
	for _, cat := range c.categories {
		dir := path.Join(c.root, string(cat))
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.CodeInternal, fmt.Sprintf("billy: mkdirall %q", dir))
		}
	}
	return nil
}

// extract writes every plan entry below the root.
func (c *Coordinator) extract(ctx context.Context, tx *txn, entries []entry) (int, int, error) {
	ex := archive.NewExtractor(c.fs, c.root)
	imported, overwritten := 0, 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return 0, 0, errors.Wrap(err, errors.CodeTimeout, "import cancelled")
		}
		if err := ex.Extract(e.file, e.target); err != nil {
			return 0, 0, err
		}
		imported++
		if _, ok := tx.existing[e.target]; ok {
			overwritten++
		}
	}
	return imported, overwritten, nil
}

// rollback restores the destination after a failure past VALIDATING.
func (c *Coordinator) rollback(tx *txn, cause error) error {
	failedIn := tx.state
	if err := c.advance(tx, StateRolledBack); err != nil {
		return &errors.RollbackError{Cause: cause, RollbackErr: err}
	}

	if err := c.restore(tx); err != nil {
		tx.logger.Error("import rollback failed",
			"state", failedIn, "error", cause, "rollback_error", err, "backup", tx.backup())
		return &errors.RollbackError{Cause: cause, RollbackErr: err}
	}
	c.removeScratch(tx.logger, tx.backup())

	tx.logger.Info("import rolled back", "state", failedIn, "error", cause)
	return fmt.Errorf("%w: %w", ErrRolledBack, cause)
}

// restore puts the backed up tree back. A root that did not exist before
// the import is left absent.
func (c *Coordinator) restore(tx *txn) error {
	if !tx.dirty {
		return nil
	}
	if err := util.RemoveAll(c.fs, c.root); err != nil {
		return fmt.Errorf("billy: removeall %q: %w", c.root, err)
	}
	if !tx.hadPrior {
		return nil
	}
	return copyTree(c.scratch, tx.backup(), c.fs, c.root)
}

func (c *Coordinator) removeScratch(logger *slog.Logger, name string) {
	if err := util.RemoveAll(c.scratch, name); err != nil {
		logger.Warn("failed to remove scratch data", "path", name, "error", err)
	}
}
