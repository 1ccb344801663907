package repos

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgekeep/reposync/internal/cliio"
	"github.com/forgekeep/reposync/internal/config"
	"github.com/forgekeep/reposync/internal/devcontainer"
	"github.com/forgekeep/reposync/internal/forge"
	"github.com/forgekeep/reposync/internal/gitx"
	"github.com/forgekeep/reposync/internal/listparser"
	"github.com/forgekeep/reposync/internal/model"
	"github.com/forgekeep/reposync/internal/planner"
	"github.com/forgekeep/reposync/internal/reconcile"
	"github.com/forgekeep/reposync/internal/sortutil"
	"github.com/forgekeep/reposync/internal/termstyle"
	"github.com/forgekeep/reposync/internal/vcs"
	"github.com/forgekeep/reposync/internal/workspacefile"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Reconcile the plan file against the local workspace",
	Long:  "setup parses a plan file, creates or verifies each entry's remote repository and branch, clones or worktree-links the corresponding local directory, and optionally emits an editor workspace file and devcontainer permission grants.",
	RunE:  runSetup,
}

func init() {
	addPlanFileFlag(setupCmd)
	setupCmd.Flags().BoolP("public", "p", false, "invocation default visibility is public (plan file default-public/default-private still wins)")
	setupCmd.Flags().Bool("codespaces", false, "inject devcontainer permission grants into --devcontainer files")
	setupCmd.Flags().StringArrayP("devcontainer", "d", nil, "devcontainer config file to inject permission grants into (repeatable, implies --codespaces)")
	setupCmd.Flags().String("permissions", "", "permissions token passed through to the devcontainer injector")
	setupCmd.Flags().StringP("tool", "t", "", "tool token passed through to the devcontainer injector")
	setupCmd.Flags().Bool("debug", false, "enable diagnostic logging")
	setupCmd.Flags().String("debug-file", "", "write diagnostic logging to this file instead of stderr")
	setupCmd.Flags().Lookup("debug-file").NoOptDefVal = "repos-debug.log"
	addFormatFlag(setupCmd)
	addNoHeadersFlag(setupCmd)
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	planFileFlag, _ := cmd.Flags().GetString("file")
	public, _ := cmd.Flags().GetBool("public")
	codespaces, _ := cmd.Flags().GetBool("codespaces")
	devcontainerPaths, _ := cmd.Flags().GetStringArray("devcontainer")
	permissionsToken, _ := cmd.Flags().GetString("permissions")
	toolToken, _ := cmd.Flags().GetString("tool")
	format, _ := cmd.Flags().GetString("format")
	noHeaders, _ := cmd.Flags().GetBool("no-headers")
	if len(devcontainerPaths) > 0 {
		codespaces = true
	}
	setColorOutputMode(cmd, format)

	logDebug, closeDebug, err := newDebugLogger(cmd)
	if err != nil {
		return err
	}
	defer closeDebug()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	planPath, err := resolvePlanFilePath(planFileFlag, cwd)
	if err != nil {
		return err
	}
	debugf(cmd, "using plan file %s", planPath)
	logDebug("plan file: %s", planPath)

	cfgPath, err := config.ResolveConfigPath(flagConfig, cwd)
	if err != nil {
		return err
	}
	cfg, err := loadConfigOrDefault(cfgPath)
	if err != nil {
		return err
	}

	globalFlags, entries, err := listparser.ParseFile(planPath)
	if err != nil {
		return err
	}
	if public && globalFlags.DefaultVisibility == model.VisibilityUnset {
		globalFlags.DefaultVisibility = model.VisibilityPublic
	}
	if globalFlags.DefaultVisibility == model.VisibilityUnset {
		globalFlags.DefaultVisibility = cfg.DefaultVisibility
	}
	if codespaces {
		globalFlags.EnableCodespaces = true
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
	logDebug("resolved %d action(s)", len(plan.Actions))

	creds := forge.LoadCredentials(ctx)
	if creds.ReadOnlyLocal {
		logDebug("no forge credentials found, running read-only-local")
	}
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
	logDebug("tally: %d created, %d already existed, %d errors",
		tally.CreatedCount(), tally.AlreadyExistedCount(), tally.ErrorCount())

	// Actions are reconciled in plan-file order; only the listing is sorted.
	sortutil.SortResolvedActions(plan.Actions)
	targetDirs := make([]string, 0, len(plan.Actions))
	for _, action := range plan.Actions {
		targetDirs = append(targetDirs, action.TargetAbsolutePath)
	}
	workspacePath := filepath.Join(cwd, workspacefile.DefaultName)
	if err := workspacefile.Write(workspacePath, workspacefile.Build(targetDirs)); err != nil {
		return fmt.Errorf("write editor workspace file: %w", err)
	}

	if globalFlags.EnableCodespaces {
		grants := devcontainerGrants(plan, permissionsToken, toolToken)
		for _, path := range devcontainerPaths {
			if err := devcontainer.Inject(path, grants); err != nil {
				return fmt.Errorf("inject devcontainer config %s: %w", path, err)
			}
		}
	}

	if tally.ErrorCount() > 0 {
		raiseExitCode(2)
	}
	infof(cmd, "setup completed: %d created, %d already existed, %d failed",
		tally.CreatedCount(), tally.AlreadyExistedCount(), tally.ErrorCount())
	return tally.Err()
}

// newDebugLogger returns a diagnostic logger gated on --debug, writing to
// --debug-file when set (defaulting to repos-debug.log when the flag is
// passed with no value) or stderr otherwise. The returned close func is
// always safe to defer, even when no file was opened.
func newDebugLogger(cmd *cobra.Command) (func(format string, args ...any), func(), error) {
	enabled, _ := cmd.Flags().GetBool("debug")
	if !enabled {
		return func(string, ...any) {}, func() {}, nil
	}
	path, _ := cmd.Flags().GetString("debug-file")
	if path == "" {
		return func(format string, args ...any) {
			fmt.Fprintf(cmd.ErrOrStderr(), "debug: "+format+"\n", args...)
		}, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open debug file: %w", err)
	}
	return func(format string, args ...any) {
		fmt.Fprintf(f, "debug: "+format+"\n", args...)
	}, func() { _ = f.Close() }, nil
}

// resolvePlanFilePath honors an explicit -f/--file flag, falling back to
// the default plan filename and then the legacy one.
func resolvePlanFilePath(flag, cwd string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if path := filepath.Join(cwd, defaultPlanFile); fileExists(path) {
		return path, nil
	}
	if path := filepath.Join(cwd, legacyPlanFile); fileExists(path) {
		return path, nil
	}
	return "", fmt.Errorf("no plan file found (expected %s or %s)", defaultPlanFile, legacyPlanFile)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func loadConfigOrDefault(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			defaults := config.DefaultConfig()
			return &defaults, nil
		}
		return nil, err
	}
	return cfg, nil
}

// detectInitialFallback treats the working directory itself as the
// initial fallback repository when it is a git repo whose origin remote
// is forge-managed, matching a bare "@branch" line at the top of the
// plan file to a worktree of the directory the command runs from.
func detectInitialFallback(ctx context.Context, adapter vcs.Adapter, cwd string) model.FallbackRepo {
	isRepo, err := adapter.IsRepo(ctx, cwd)
	if err != nil || !isRepo {
		return model.FallbackRepo{}
	}
	origin, err := adapter.RemoteOriginURL(ctx, cwd)
	if err != nil || origin == "" {
		return model.FallbackRepo{}
	}
	remote := gitx.ClassifyRemote(origin)
	if !remote.IsForgeManaged() {
		return model.FallbackRepo{}
	}
	return model.FallbackRepo{Set: true, Remote: remote, Path: cwd}
}

func devcontainerGrants(plan *model.Plan, permissions, tool string) map[string]devcontainer.Grant {
	grants := make(map[string]devcontainer.Grant)
	for _, action := range plan.Actions {
		if !action.Remote.IsForgeManaged() {
			continue
		}
		grants[action.Remote.Canonical()] = devcontainer.Grant{Permissions: permissions, Tool: tool}
	}
	return grants
}

// writeReconcileSummary prints one line per ResolvedAction: plain
// infof/debugf lines by default, or a colorized cliio.WriteTable table
// when format is "table".
func writeReconcileSummary(cmd *cobra.Command, tally *reconcile.Tally, format string, noHeaders bool) error {
	if format != "table" {
		for _, result := range tally.Results {
			line := result.Action.TargetAbsolutePath
			switch result.Outcome {
			case reconcile.OutcomeCreated:
				if result.Demoted {
					infof(cmd, "created %s (%s)", line, result.Action.Reason)
					continue
				}
				infof(cmd, "created %s", line)
			case reconcile.OutcomeAlreadyExisted:
				debugf(cmd, "unchanged %s", line)
			case reconcile.OutcomeError:
				infof(cmd, "failed %s: %v", line, result.Err)
			}
		}
		return nil
	}

	rows := make([][]string, 0, len(tally.Results))
	for _, result := range tally.Results {
		var outcome, detail string
		switch result.Outcome {
		case reconcile.OutcomeCreated:
			outcome = termstyle.Colorize(colorOutputEnabled, "created", termstyle.Healthy)
			detail = result.Action.Reason
		case reconcile.OutcomeAlreadyExisted:
			outcome = termstyle.Colorize(colorOutputEnabled, "unchanged", termstyle.Info)
		case reconcile.OutcomeError:
			outcome = termstyle.Colorize(colorOutputEnabled, "error", termstyle.Error)
			detail = result.Err.Error()
		}
		rows = append(rows, []string{result.Action.TargetAbsolutePath, outcome, detail})
	}
	return cliio.WriteTable(cmd.OutOrStdout(), true, noHeaders, []string{"TARGET", "OUTCOME", "DETAIL"}, rows)
}
