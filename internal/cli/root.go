// Package cli implements the planvault command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/input-output-hk/planvault/archive"
	"github.com/input-output-hk/planvault/config"
	"github.com/input-output-hk/planvault/plan"
	"github.com/input-output-hk/planvault/storage"
	"github.com/input-output-hk/planvault/storage/local"
	"github.com/input-output-hk/planvault/syncer"
)

// RemoteFactory opens the remote store described by cfg.
type RemoteFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Backend, error)

// App holds the environment commands run against.
type App struct {
	// FS resolves every path the commands touch.
	FS billy.Filesystem
	// Dir is the working directory relative paths are joined to.
	Dir string
	// Remote opens the store used by sync commands.
	Remote RemoteFactory
	// LookupEnv resolves configuration overrides.
	LookupEnv func(string) (string, bool)
	// Now is the clock used to name exports.
	Now func() time.Time
	// FindConfig locates a configuration file when --config is not given.
	// A nil FindConfig means defaults and environment only.
	FindConfig func() (string, bool)
	// StructuredLogs selects JSON log lines instead of text.
	StructuredLogs bool
}

// userConfigFile is searched for in the XDG config directories.
const userConfigFile = "planvault/config.yaml"

func findUserConfig() (string, bool) {
	p, err := xdg.SearchConfigFile(userConfigFile)
	if err != nil {
		return "", false
	}
	return p, true
}

// DefaultApp returns an App bound to the host filesystem and environment.
func DefaultApp() (*App, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("finding working directory: %w", err)
	}
	// JSON logs when stderr is not a terminal.
	fd := os.Stderr.Fd()
	structured := !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)

	return &App{
		FS:             osfs.New("/"),
		Dir:            wd,
		Remote:         NewRemote,
		LookupEnv:      os.LookupEnv,
		Now:            time.Now,
		FindConfig:     findUserConfig,
		StructuredLogs: structured,
	}, nil
}

type globalFlags struct {
	configPath string
	root       string
	logLevel   string
	json       bool
}

// NewRootCmd creates the top-level "planvault" command and registers all
// subcommands against app.
func NewRootCmd(app *App) *cobra.Command {
	flags := &globalFlags{}
	rt := &runtime{app: app, flags: flags}

	root := &cobra.Command{
		Use:           "planvault",
		Short:         "Archive, validate, import and sync calendar plan files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML configuration file")
	pf.StringVar(&flags.root, "root", "", "Plan corpus directory (overrides configuration)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.BoolVar(&flags.json, "json", false, "Print results as JSON")

	root.AddCommand(
		newExportCmd(rt),
		newValidateCmd(rt),
		newImportCmd(rt),
		newSyncCmd(rt),
	)

	return root
}

// runtime is the per-invocation state shared by subcommands.
type runtime struct {
	app    *App
	flags  *globalFlags
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func (r *runtime) init(cmd *cobra.Command) error {
	var cfgPath string
	switch {
	case r.flags.configPath != "":
		cfgPath = r.resolve(r.flags.configPath)
	case r.app.FindConfig != nil:
		if p, ok := r.app.FindConfig(); ok {
			cfgPath = p
		}
	}
	cfg, err := config.LoadWithOptions(r.app.FS, cfgPath, config.LoadOptions{
		SkipValidation: true,
		LookupEnv:      r.app.LookupEnv,
	})
	if err != nil {
		return err
	}
	if r.flags.root != "" {
		cfg.Root = r.flags.root
	}
	if r.flags.logLevel != "" {
		cfg.LogLevel = r.flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.cfg = cfg
	r.out = cmd.OutOrStdout()
	r.logger = newLogger(cmd.ErrOrStderr(), cfg.Level(), r.app.StructuredLogs)
	return nil
}

func newLogger(w io.Writer, level slog.Level, structured bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if structured {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (r *runtime) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(r.app.Dir, p)
}

// corpus returns the filesystem and directory holding the plan corpus.
//
//nolint:ireturn // billy is the filesystem abstraction throughout.
func (r *runtime) corpus() (billy.Filesystem, string) {
	return r.app.FS, r.resolve(r.cfg.Root)
}

//nolint:ireturn
func (r *runtime) chroot(dir string) (billy.Filesystem, error) {
	if err := r.app.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	return r.app.FS.Chroot(dir)
}

//nolint:ireturn
func (r *runtime) scratch() (billy.Filesystem, error) {
	return r.chroot(r.resolve(r.cfg.ScratchDir))
}

func (r *runtime) categories() []plan.Category {
	cats, err := r.cfg.PlanCategories()
	if err != nil {
		// Validate has already rejected unknown categories.
		return plan.Categories()
	}
	return cats
}

func (r *runtime) validator() *archive.Validator {
	return archive.NewValidator(
		archive.WithMaxSize(int64(r.cfg.MaxArchiveSize)),
		archive.WithRequiredCategories(r.categories()),
	)
}

func (r *runtime) syncService(ctx context.Context, modTimes bool) (*syncer.Service, error) {
	if err := r.cfg.ValidateRemote(); err != nil {
		return nil, err
	}
	_, root := r.corpus()
	localFS, err := r.chroot(root)
	if err != nil {
		return nil, err
	}
	remote, err := r.app.Remote(ctx, r.cfg, r.logger)
	if err != nil {
		return nil, err
	}
	return syncer.New(
		local.New(localFS, local.WithLogger(r.logger)),
		remote,
		syncer.WithLogger(r.logger),
		syncer.WithCategories(r.categories()),
		syncer.WithModTimes(modTimes),
	), nil
}

// print writes v as indented JSON when --json is set, otherwise the
// human rendering.
func (r *runtime) print(v any, human string) error {
	if r.flags.json {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprint(r.out, human)
	return err
}
