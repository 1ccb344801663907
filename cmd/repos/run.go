package repos

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgekeep/reposync/internal/cliio"
	"github.com/forgekeep/reposync/internal/config"
	"github.com/forgekeep/reposync/internal/forge"
	"github.com/forgekeep/reposync/internal/listparser"
	"github.com/forgekeep/reposync/internal/model"
	"github.com/forgekeep/reposync/internal/pipeline"
	"github.com/forgekeep/reposync/internal/planner"
	"github.com/forgekeep/reposync/internal/reconcile"
	"github.com/forgekeep/reposync/internal/sortutil"
	"github.com/forgekeep/reposync/internal/strutil"
	"github.com/forgekeep/reposync/internal/termstyle"
	"github.com/forgekeep/reposync/internal/vcs"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a named script inside every resolved repository",
	Long:  "run plans the same targets setup would reconcile and executes a per-repository script inside each one, reporting a success/failure summary.",
	RunE:  runRun,
}

func init() {
	addPlanFileFlag(runCmd)
	runCmd.Flags().String("script", defaultPipelineScript, "script name to run inside each target directory")
	runCmd.Flags().StringP("include", "i", "", "comma-separated list or glob of target names to include")
	runCmd.Flags().StringP("exclude", "e", "", "comma-separated list or glob of target names to exclude")
	runCmd.Flags().Bool("ensure-setup", false, "reconcile the workspace before running the pipeline")
	runCmd.Flags().BoolP("skip-deps", "d", false, "set REPOS_SKIP_DEPS=1 in each script's environment")
	runCmd.Flags().BoolP("dry-run", "n", false, "print the scripts that would run without executing them")
	runCmd.Flags().Bool("continue-on-error", false, "run every target even after a failure")
	addFormatFlag(runCmd)
	addNoHeadersFlag(runCmd)
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	planFileFlag, _ := cmd.Flags().GetString("file")
	script, _ := cmd.Flags().GetString("script")
	includeRaw, _ := cmd.Flags().GetString("include")
	excludeRaw, _ := cmd.Flags().GetString("exclude")
	ensureSetup, _ := cmd.Flags().GetBool("ensure-setup")
	skipDeps, _ := cmd.Flags().GetBool("skip-deps")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	continueOnError, _ := cmd.Flags().GetBool("continue-on-error")
	format, _ := cmd.Flags().GetString("format")
	noHeaders, _ := cmd.Flags().GetBool("no-headers")
	setColorOutputMode(cmd, format)

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	planPath, err := resolvePlanFilePath(planFileFlag, cwd)
	if err != nil {
		return err
	}

	cfgPath, err := config.ResolveConfigPath(flagConfig, cwd)
	if err != nil {
		return err
	}
	cfg, err := loadConfigOrDefault(cfgPath)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("script") && cfg.Defaults.ScriptName != "" {
		script = cfg.Defaults.ScriptName
	}

	globalFlags, entries, err := listparser.ParseFile(planPath)
	if err != nil {
		return err
	}
	if globalFlags.DefaultVisibility == model.VisibilityUnset {
		globalFlags.DefaultVisibility = cfg.DefaultVisibility
	}

	ws := model.WorkspaceContext{WorkingDirectory: cwd, ParentDirectory: filepath.Dir(cwd)}
	adapter := vcs.NewGitAdapter(nil)
	initialFallback := detectInitialFallback(ctx, adapter, cwd)

	plan, planErrs := planner.Build(entries, globalFlags, ws, initialFallback)
	if len(planErrs) > 0 {
		for _, planErr := range planErrs {
			fmt.Fprintf(cmd.ErrOrStderr(), "line %d: %s\n", planErr.Line.Number, planErr.Message)
		}
		return fmt.Errorf("plan file has %d error(s)", len(planErrs))
	}
	if ensureSetup {
		creds := forge.LoadCredentials(ctx)
		client, err := forge.NewClient(ctx, creds, cfg.ForgeAPIURL)
		if err != nil {
			return err
		}
		if !creds.ReadOnlyLocal {
			if validity, err := client.ValidateToken(ctx); validity == forge.TokenInvalid {
				return err
			}
		}
		tally := reconcile.Apply(ctx, plan, client, adapter)
		if err := writeReconcileSummary(cmd, tally, format, noHeaders); err != nil {
			return fmt.Errorf("write reconcile summary: %w", err)
		}
		if tally.ErrorCount() > 0 {
			infof(cmd, "ensure-setup: %d of %d target(s) failed to reconcile, continuing to run", tally.ErrorCount(), len(tally.Results))
		}
	}

	// --ensure-setup above reconciles in plan-file order; the pipeline
	// walks the sorted order.
	sortutil.SortResolvedActions(plan.Actions)
	targets := make([]pipeline.Target, 0, len(plan.Actions))
	for _, action := range plan.Actions {
		targets = append(targets, pipeline.Target{Dir: action.TargetAbsolutePath})
	}

	summary, err := pipeline.Run(ctx, targets, pipeline.Options{
		DefaultScript:   script,
		Include:         strutil.SplitCSV(includeRaw),
		Exclude:         strutil.SplitCSV(excludeRaw),
		DryRun:          dryRun,
		ContinueOnError: continueOnError,
		SkipDeps:        skipDeps,
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	if err := writePipelineSummary(cmd, summary, format, noHeaders); err != nil {
		return fmt.Errorf("write pipeline summary: %w", err)
	}

	// The pipeline's own exit code (first failure's exit code, or 1 when
	// --continue-on-error ran the full list) bypasses rootCmd's generic
	// error-to-3 mapping: set it directly and return a nil error so
	// ExecuteWithExitCode reports exitCode as-is.
	if summary.HasFailures() {
		if continueOnError {
			raiseExitCode(1)
			return nil
		}
		raiseExitCode(summary.FailureExitCode())
	}
	return nil
}

// writePipelineSummary renders the Pipeline Summary in its default
// fixed emoji-line shape, or as a colorized table when format is
// "table".
func writePipelineSummary(cmd *cobra.Command, summary *pipeline.Summary, format string, noHeaders bool) error {
	if format != "table" {
		summary.Write(cmd.OutOrStdout())
		return nil
	}

	rows := make([][]string, 0, len(summary.Records))
	for _, r := range summary.Records {
		var status string
		switch r.Kind {
		case pipeline.RecordSuccess:
			status = termstyle.Colorize(colorOutputEnabled, "success", termstyle.Healthy)
		case pipeline.RecordFailure:
			status = termstyle.Colorize(colorOutputEnabled, fmt.Sprintf("failed (exit %d)", r.ExitCode), termstyle.Error)
		default:
			status = termstyle.Colorize(colorOutputEnabled, "skipped", termstyle.Warn)
		}
		rows = append(rows, []string{r.Dir, r.Script, status})
	}
	if err := cliio.WriteTable(cmd.OutOrStdout(), true, noHeaders, []string{"TARGET", "SCRIPT", "STATUS"}, rows); err != nil {
		return err
	}
	succeeded, failed, skipped := summary.Counts()
	fmt.Fprintf(cmd.OutOrStdout(), "Total: %d repositories | %d succeeded | %d failed | %d skipped\n", len(summary.Records), succeeded, failed, skipped)
	return nil
}
