package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/planvault/archive"
	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/importer"
	"github.com/input-output-hk/planvault/internal/cli/formatter"
)

// errInvalidArchive is returned by validate so the exit status reflects the
// verdict.
var errInvalidArchive = errors.New(errors.CodeSchemaFailed, "archive failed validation")

func newExportCmd(rt *runtime) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the plan corpus to a timestamped zip archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := rt.cfg.ExportDir
			if outDir != "" {
				dir = outDir
			}
			dir = rt.resolve(dir)

			out, err := rt.chroot(dir)
			if err != nil {
				return err
			}
			fsys, root := rt.corpus()
			b := archive.NewBuilder(out,
				archive.WithBuilderLogger(rt.logger),
				archive.WithClock(rt.app.Now),
			)
			res, err := b.Build(cmd.Context(), fsys, root)
			if err != nil {
				return err
			}
			return rt.print(res, formatter.FormatExport(res, dir))
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory to write the archive to (overrides export_dir)")

	return cmd
}

func newValidateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <archive.zip>",
		Short: "Check an archive without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := rt.resolve(args[0])
			f, err := rt.app.FS.Open(name)
			if err != nil {
				return errors.WrapWithContext(err, errors.CodeNotFound, "failed to open archive",
					map[string]any{"path": name})
			}
			defer f.Close()

			info, err := rt.app.FS.Stat(name)
			if err != nil {
				return fmt.Errorf("stat %s: %w", name, err)
			}

			res := rt.validator().ValidateReaderAt(f, info.Size())
			rt.logger.Info("archive validated",
				"path", name, "valid", res.IsValid,
				"errors", len(res.Errors), "warnings", len(res.Warnings))
			if err := rt.print(res, formatter.FormatValidation(res)); err != nil {
				return err
			}
			if !res.IsValid {
				return errInvalidArchive
			}
			return nil
		},
	}
}

func newImportCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive.zip>",
		Short: "Replace the plan corpus with the contents of an archive",
		Long: "Validates the archive, backs up the current corpus, replaces it and\n" +
			"restores the backup if anything fails part way.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := rt.resolve(args[0])
			f, err := rt.app.FS.Open(name)
			if err != nil {
				return errors.WrapWithContext(err, errors.CodeNotFound, "failed to open archive",
					map[string]any{"path": name})
			}
			defer f.Close()

			scratch, err := rt.scratch()
			if err != nil {
				return err
			}
			fsys, root := rt.corpus()
			c := importer.New(fsys, root,
				importer.WithScratch(scratch),
				importer.WithValidator(rt.validator()),
				importer.WithCategories(rt.categories()),
				importer.WithLogger(rt.logger),
			)
			res, err := c.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			return rt.print(res, formatter.FormatImport(res))
		},
	}
}
