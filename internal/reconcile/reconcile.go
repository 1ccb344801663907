// Package reconcile walks a Plan and applies each action against the
// forge and the local filesystem, tallying results. It is the effectful
// twin of the Planner: the Planner decides what should happen, the
// Reconciler makes it happen and reports what actually did.
package reconcile

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/forgekeep/reposync/internal/forge"
	"github.com/forgekeep/reposync/internal/gitx"
	"github.com/forgekeep/reposync/internal/model"
	"github.com/forgekeep/reposync/internal/vcs"
)

// Outcome classifies how one ResolvedAction was resolved.
type Outcome string

const (
	OutcomeCreated        Outcome = "created"
	OutcomeAlreadyExisted Outcome = "already_existed"
	OutcomeError          Outcome = "error"
)

// Result is the per-action record appended to a Tally.
type Result struct {
	Action  model.ResolvedAction
	Outcome Outcome
	// Demoted is set when a Provisional WorktreeAdd was applied as a
	// SingleBranchClone instead, because its ref was unreachable from
	// the base repo.
	Demoted bool
	Err     error
}

// Tally aggregates the Results of a run.
type Tally struct {
	Results []Result
	errs    *multierror.Error
}

func (t *Tally) add(r Result) {
	t.Results = append(t.Results, r)
	if r.Err != nil {
		t.errs = multierror.Append(t.errs, fmt.Errorf("line %d: %w", r.Action.SourceLine.Number, r.Err))
	}
}

// ErrorCount is the number of actions that failed.
func (t *Tally) ErrorCount() int {
	if t.errs == nil {
		return 0
	}
	return len(t.errs.Errors)
}

// CreatedCount is the number of actions that created something new.
func (t *Tally) CreatedCount() int { return t.countOutcome(OutcomeCreated) }

// AlreadyExistedCount is the number of actions that were a no-op.
func (t *Tally) AlreadyExistedCount() int { return t.countOutcome(OutcomeAlreadyExisted) }

func (t *Tally) countOutcome(o Outcome) int {
	n := 0
	for _, r := range t.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Err returns the aggregated error, or nil if the tally has no errors.
// Per the failure policy, the Reconciler's overall result is non-zero
// iff this is non-nil.
func (t *Tally) Err() error {
	if t.errs == nil {
		return nil
	}
	return t.errs.ErrorOrNil()
}

// ForgeClient is the subset of *forge.Client the Reconciler depends on.
// Declaring it locally lets tests substitute a fake without importing
// go-github.
type ForgeClient interface {
	ClassifyOwner(ctx context.Context, owner string) (forge.OwnerKind, error)
	RepoExists(ctx context.Context, owner, repo string) (forge.Existence, error)
	CreateRepo(ctx context.Context, owner, repo string, kind forge.OwnerKind, visibility model.Visibility, autoInit bool) (forge.CreateOutcome, error)
	BranchExists(ctx context.Context, owner, repo, branch string) (forge.Existence, error)
	CreateBranch(ctx context.Context, owner, repo, branch string) (forge.CreateOutcome, error)
}

// Apply walks plan.Actions in order and applies each one, never aborting
// on a per-action failure. The returned Tally's Err reports whether any
// action failed; the caller uses that to set the process exit code.
func Apply(ctx context.Context, plan *model.Plan, client ForgeClient, adapter vcs.Adapter) *Tally {
	tally := &Tally{}
	for _, action := range plan.Actions {
		tally.add(applyAction(ctx, client, adapter, plan.Flags, action))
	}
	return tally
}

func applyAction(ctx context.Context, client ForgeClient, adapter vcs.Adapter, flags model.GlobalFlags, action model.ResolvedAction) Result {
	// A failed repo-creation does not suppress the local Git attempt
	// below — it's saved and only surfaces if the Git step also fails,
	// at which point both causes are tallied against this one action.
	var forgeErr error
	if action.Kind == model.ActionFullClone || action.Kind == model.ActionSingleBranchClone {
		forgeErr = ensureRemoteRepo(ctx, client, action.Remote, effectiveVisibility(action.Visibility, flags.DefaultVisibility), action.Ref != "")
	}

	if branch := refOf(action); branch != "" && action.Remote.IsForgeManaged() {
		// Per the failure policy, a branch-provisioning failure does not
		// block the clone/worktree step below; like a repo-creation
		// failure, it is reported with that step's error if it also fails.
		if err := ensureRemoteBranch(ctx, client, action.Remote, branch); err != nil {
			if forgeErr == nil {
				forgeErr = err
			} else {
				forgeErr = fmt.Errorf("%w; %v", forgeErr, err)
			}
		}
	}

	var result Result
	switch action.Kind {
	case model.ActionFullClone:
		result = applyClone(ctx, adapter, action, false)
	case model.ActionSingleBranchClone:
		result = applyClone(ctx, adapter, action, true)
	case model.ActionWorktreeAdd:
		result = applyWorktreeAdd(ctx, adapter, action)
	case model.ActionSkip:
		result = Result{Action: action, Outcome: OutcomeAlreadyExisted}
	default:
		result = Result{Action: action, Outcome: OutcomeError, Err: fmt.Errorf("unknown action kind %q", action.Kind)}
	}

	if forgeErr != nil && result.Err != nil {
		result.Err = fmt.Errorf("%w; %v", forgeErr, result.Err)
	}
	return result
}

func refOf(a model.ResolvedAction) string {
	if a.Kind == model.ActionWorktreeAdd {
		return a.Branch
	}
	return a.Ref
}

func effectiveVisibility(perLine, global model.Visibility) model.Visibility {
	if perLine != model.VisibilityUnset {
		return perLine
	}
	if global != model.VisibilityUnset {
		return global
	}
	return model.VisibilityPrivate
}

func ensureRemoteRepo(ctx context.Context, client ForgeClient, remote model.Remote, visibility model.Visibility, autoInit bool) error {
	if !remote.IsForgeManaged() {
		return nil
	}
	existence, err := client.RepoExists(ctx, remote.Owner, remote.Repo)
	if err != nil {
		return fmt.Errorf("check %s/%s exists: %w", remote.Owner, remote.Repo, err)
	}
	if existence == forge.Exists {
		return nil
	}
	kind, err := client.ClassifyOwner(ctx, remote.Owner)
	if err != nil {
		kind = forge.OwnerUser
	}
	if _, err := client.CreateRepo(ctx, remote.Owner, remote.Repo, kind, visibility, autoInit); err != nil {
		return fmt.Errorf("create %s/%s: %w", remote.Owner, remote.Repo, err)
	}
	return nil
}

func ensureRemoteBranch(ctx context.Context, client ForgeClient, remote model.Remote, branch string) error {
	existence, err := client.BranchExists(ctx, remote.Owner, remote.Repo, branch)
	if err != nil {
		return fmt.Errorf("check %s/%s@%s exists: %w", remote.Owner, remote.Repo, branch, err)
	}
	if existence == forge.Exists {
		return nil
	}
	if _, err := client.CreateBranch(ctx, remote.Owner, remote.Repo, branch); err != nil {
		return fmt.Errorf("create %s/%s@%s: %w", remote.Owner, remote.Repo, branch, err)
	}
	return nil
}

// applyClone clones action's remote into its target unless the target
// already holds a valid, matching clone. singleBranch selects
// CloneSingleBranch over CloneFull.
func applyClone(ctx context.Context, adapter vcs.Adapter, action model.ResolvedAction, singleBranch bool) Result {
	expectedURL := gitx.CloneURL(action.Remote)
	outcome, err := resolveCloneOutcome(ctx, adapter, action.TargetAbsolutePath, expectedURL, func() error {
		if singleBranch {
			return adapter.CloneSingleBranch(ctx, expectedURL, action.Ref, action.TargetAbsolutePath)
		}
		return adapter.CloneFull(ctx, expectedURL, action.TargetAbsolutePath, action.FetchAllRefs)
	})
	return Result{Action: action, Outcome: outcome, Err: err}
}

func resolveCloneOutcome(ctx context.Context, adapter vcs.Adapter, target, expectedURL string, clone func() error) (Outcome, error) {
	isRepo, _ := adapter.IsRepo(ctx, target)
	if isRepo {
		origin, _ := adapter.RemoteOriginURL(ctx, target)
		if gitx.NormalizeURL(origin) == gitx.NormalizeURL(expectedURL) {
			return OutcomeAlreadyExisted, nil
		}
		return OutcomeError, fmt.Errorf("%s is already a repository with origin %q, expected %q", target, origin, expectedURL)
	}
	nonEmpty, err := dirNonEmpty(target)
	if err != nil {
		return OutcomeError, err
	}
	if nonEmpty {
		return OutcomeError, fmt.Errorf("%s exists and is not empty", target)
	}
	if err := clone(); err != nil {
		return OutcomeError, err
	}
	return OutcomeCreated, nil
}

// applyWorktreeAdd links action's target as a worktree of its base repo.
// A Provisional action whose branch is unreachable from the base is
// demoted to a single-branch clone instead, per the Planner's decision to
// defer reachability checking to the Reconciler.
func applyWorktreeAdd(ctx context.Context, adapter vcs.Adapter, action model.ResolvedAction) Result {
	if live, err := isLiveWorktree(ctx, adapter, action); err != nil {
		return Result{Action: action, Outcome: OutcomeError, Err: err}
	} else if live {
		return Result{Action: action, Outcome: OutcomeAlreadyExisted}
	}

	if action.Provisional {
		reachable, err := adapter.RefExists(ctx, action.BaseRepoAbsolutePath, action.Branch)
		if err != nil {
			return Result{Action: action, Outcome: OutcomeError, Err: err}
		}
		if !reachable {
			_ = adapter.Fetch(ctx, action.BaseRepoAbsolutePath)
			if reachable, err = adapter.RefExists(ctx, action.BaseRepoAbsolutePath, action.Branch); err != nil {
				return Result{Action: action, Outcome: OutcomeError, Err: err}
			}
		}
		if !reachable {
			action.Reason = fmt.Sprintf("ref %q is not reachable from %s; cloned as a single branch instead of adding a worktree", action.Branch, action.BaseRepoAbsolutePath)
			result := applyClone(ctx, adapter, action, true)
			result.Demoted = true
			return result
		}
	}

	nonEmpty, err := dirNonEmpty(action.TargetAbsolutePath)
	if err != nil {
		return Result{Action: action, Outcome: OutcomeError, Err: err}
	}
	if nonEmpty {
		return Result{Action: action, Outcome: OutcomeError, Err: fmt.Errorf("%s exists and is not empty", action.TargetAbsolutePath)}
	}
	if err := adapter.WorktreeAdd(ctx, action.BaseRepoAbsolutePath, action.Branch, action.TargetAbsolutePath); err != nil {
		return Result{Action: action, Outcome: OutcomeError, Err: err}
	}
	return Result{Action: action, Outcome: OutcomeCreated}
}

func isLiveWorktree(ctx context.Context, adapter vcs.Adapter, action model.ResolvedAction) (bool, error) {
	entries, err := adapter.WorktreeList(ctx, action.BaseRepoAbsolutePath)
	if err != nil {
		return false, nil
	}
	for _, e := range entries {
		if e.Path == action.TargetAbsolutePath && e.Branch == action.Branch {
			return true, nil
		}
	}
	return false, nil
}

func dirNonEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}
