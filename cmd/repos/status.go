package repos

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/forgekeep/reposync/internal/cliio"
	"github.com/forgekeep/reposync/internal/gitx"
	"github.com/forgekeep/reposync/internal/listparser"
	"github.com/forgekeep/reposync/internal/model"
	"github.com/forgekeep/reposync/internal/planner"
	"github.com/forgekeep/reposync/internal/sortutil"
	"github.com/forgekeep/reposync/internal/termstyle"
	"github.com/forgekeep/reposync/internal/vcs"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the local git state of every resolved repository",
	Long:  "status plans the same targets setup would reconcile and, for each one already present on disk, reports its HEAD, upstream tracking, worktree cleanliness, submodule presence, and primary remote.",
	RunE:  runStatus,
}

func init() {
	addPlanFileFlag(statusCmd)
	addFormatFlag(statusCmd)
	addNoHeadersFlag(statusCmd)
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	planFileFlag, _ := cmd.Flags().GetString("file")
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

	globalFlags, entries, err := listparser.ParseFile(planPath)
	if err != nil {
		return err
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
	sortutil.SortResolvedActions(plan.Actions)

	rows := make([][]string, 0, len(plan.Actions))
	for _, action := range plan.Actions {
		rows = append(rows, statusRow(ctx, adapter, action.TargetAbsolutePath))
	}

	return cliio.WriteTable(cmd.OutOrStdout(), true, noHeaders,
		[]string{"TARGET", "HEAD", "TRACKING", "WORKTREE", "SUBMODULES", "REMOTE"}, rows)
}

// statusRow renders one target's diagnostics, falling back to a "missing"
// row when the directory isn't a git repo yet (not cloned, or pending a
// worktree add that hasn't run).
func statusRow(ctx context.Context, adapter vcs.Adapter, dir string) []string {
	isRepo, err := adapter.IsRepo(ctx, dir)
	if err != nil || !isRepo {
		return []string{dir, termstyle.Colorize(colorOutputEnabled, "missing", termstyle.Warn), "", "", "", ""}
	}

	bare, _ := adapter.IsBare(ctx, dir)

	head, err := adapter.Head(ctx, dir)
	headCell := ""
	if err == nil {
		headCell = head.Branch
		if head.Detached {
			headCell += " (detached)"
		}
	}

	trackingCell := ""
	if !bare {
		if tracking, err := adapter.TrackingStatus(ctx, dir); err == nil {
			trackingCell = string(tracking.Status)
			if tracking.Ahead != nil && tracking.Behind != nil {
				trackingCell = fmt.Sprintf("%s (+%d/-%d)", trackingCell, *tracking.Ahead, *tracking.Behind)
			}
		}
	}

	worktreeCell := "bare"
	if !bare {
		worktreeCell = termstyle.Colorize(colorOutputEnabled, "clean", termstyle.Healthy)
		if wt, err := adapter.WorktreeStatus(ctx, dir); err == nil && wt.Dirty {
			worktreeCell = termstyle.Colorize(colorOutputEnabled, "dirty ("+strconv.Itoa(wt.Staged+wt.Unstaged+wt.Untracked)+")", termstyle.Warn)
		}
	}

	submodulesCell := "no"
	if hasSubs, err := adapter.HasSubmodules(ctx, dir); err == nil && hasSubs {
		submodulesCell = "yes"
	}

	remoteCell := ""
	if remotes, err := adapter.Remotes(ctx, dir); err == nil && len(remotes) > 0 {
		names := make([]string, 0, len(remotes))
		byName := make(map[string]string, len(remotes))
		for _, r := range remotes {
			names = append(names, r.Name)
			byName[r.Name] = r.URL
		}
		primary := gitx.PrimaryRemote(names)
		remoteCell = primary + " " + byName[primary]
	}

	return []string{dir, headCell, trackingCell, worktreeCell, submodulesCell, remoteCell}
}
