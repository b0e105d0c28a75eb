package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/planvault/errors"
	"github.com/input-output-hk/planvault/internal/cli/formatter"
	"github.com/input-output-hk/planvault/internal/sync/planner"
	"github.com/input-output-hk/planvault/synctypes"
)

func newSyncCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Compare and reconcile the corpus with the remote store",
	}

	cmd.AddCommand(
		newSyncCompareCmd(rt),
		newSyncDiffCmd(rt),
		newSyncExecuteCmd(rt),
	)

	return cmd
}

func newSyncCompareCmd(rt *runtime) *cobra.Command {
	var times bool

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Classify every plan file as local only, cloud only, same or different",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.syncService(cmd.Context(), times)
			if err != nil {
				return err
			}
			res, err := svc.Compare(cmd.Context())
			if err != nil {
				return err
			}
			return rt.print(res, formatter.FormatComparison(res))
		},
	}

	cmd.Flags().BoolVar(&times, "times", false, "Include modification times (slower on remote stores)")

	return cmd
}

func newSyncDiffCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <Category/TOKEN.md>",
		Short: "Show the local and cloud versions of one plan file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.syncService(cmd.Context(), false)
			if err != nil {
				return err
			}
			d, err := svc.Diff(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return rt.print(d, formatter.FormatDiff(d))
		},
	}
}

func newSyncExecuteCmd(rt *runtime) *cobra.Command {
	var (
		uploads   []string
		downloads []string
		suggested bool
		prefer    string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Upload or download plan files",
		Long: "Runs an explicit batch built from --upload and --download, or with\n" +
			"--apply-suggested the actions a comparison suggests. --prefer decides\n" +
			"files that differ on both sides.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := rt.syncService(ctx, false)
			if err != nil {
				return err
			}

			ops := explicitOps(uploads, downloads)
			if suggested {
				policy, err := planner.ParsePolicy(prefer)
				if err != nil {
					return err
				}
				planned, _, err := svc.Plan(ctx, policy)
				if err != nil {
					return err
				}
				ops = append(ops, planned...)
			}

			// An explicit empty batch is rejected by Execute; an empty
			// suggestion is simply nothing to do.
			if dryRun || (suggested && len(ops) == 0) {
				return rt.print(ops, formatter.FormatOperations(ops))
			}

			res, err := svc.Execute(ctx, ops)
			if err != nil {
				return err
			}
			if err := rt.print(res, formatter.FormatExecute(res)); err != nil {
				return err
			}
			if res.FailedCount > 0 {
				return errors.Newf(errors.CodeExecutionFailed, "%d of %d operations failed", res.FailedCount, res.Total)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&uploads, "upload", nil, "Plan file to upload (repeatable)")
	f.StringSliceVar(&downloads, "download", nil, "Plan file to download (repeatable)")
	f.BoolVar(&suggested, "apply-suggested", false, "Add the actions suggested by a comparison")
	f.StringVar(&prefer, "prefer", "", fmt.Sprintf("Side that wins for differing files: %s, %s or %s",
		planner.PolicySkip, planner.PolicyPreferLocal, planner.PolicyPreferCloud))
	f.BoolVar(&dryRun, "dry-run", false, "Print the batch without running it")

	return cmd
}

func explicitOps(uploads, downloads []string) []synctypes.Operation {
	ops := make([]synctypes.Operation, 0, len(uploads)+len(downloads))
	for _, p := range uploads {
		ops = append(ops, synctypes.Operation{RelativePath: p, Action: synctypes.ActionUpload})
	}
	for _, p := range downloads {
		ops = append(ops, synctypes.Operation{RelativePath: p, Action: synctypes.ActionDownload})
	}
	return ops
}
