// Package gitx provides helpers for executing git commands and parsing
// their output. It shells out to the installed git binary.
package gitx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/uuid"

	"github.com/forgekeep/reposync/internal/model"
)

// Runner executes git commands in a given repo directory.
// This interface allows mocking in tests.
type Runner interface {
	// Run executes a git command in the given directory and returns
	// combined stdout/stderr output.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// GitRunner is the default Runner implementation that shells out to git.
type GitRunner struct {
	// GitBin is the path to the git binary. Defaults to "git".
	GitBin string
}

// Run executes a git command.
func (g *GitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.GitBin
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// IsRepo checks whether the given path is inside a git working tree.
func IsRepo(ctx context.Context, r Runner, dir string) (bool, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(out) == "true", nil
}

// IsBare checks whether the given path is a bare git repository.
func IsBare(ctx context.Context, r Runner, dir string) (bool, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--is-bare-repository")
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(out) == "true", nil
}

// Remotes returns all configured remotes for the repo.
func Remotes(ctx context.Context, r Runner, dir string) ([]model.GitRemote, error) {
	out, err := r.Run(ctx, dir, "remote")
	if err != nil {
		return nil, fmt.Errorf("git remote: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}
	names := strings.Split(strings.TrimSpace(out), "\n")
	var remotes []model.GitRemote
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		url, err := r.Run(ctx, dir, "remote", "get-url", name)
		if err != nil {
			continue
		}
		remotes = append(remotes, model.GitRemote{
			Name: name,
			URL:  strings.TrimSpace(url),
		})
	}
	return remotes, nil
}

// Head returns the current branch and detached state.
func Head(ctx context.Context, r Runner, dir string) (model.Head, error) {
	out, err := r.Run(ctx, dir, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		hash, hashErr := r.Run(ctx, dir, "rev-parse", "--short", "HEAD")
		if hashErr != nil {
			return model.Head{Detached: true}, nil
		}
		return model.Head{
			Branch:   strings.TrimSpace(hash),
			Detached: true,
		}, nil
	}
	return model.Head{
		Branch:   strings.TrimSpace(out),
		Detached: false,
	}, nil
}

// WorktreeStatus returns the working tree dirty/staged/unstaged/untracked counts.
func WorktreeStatus(ctx context.Context, r Runner, dir string) (*model.Worktree, error) {
	out, err := r.Run(ctx, dir, "status", "--porcelain=v1")
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}
	return ParsePorcelainStatus(out), nil
}

// TrackingStatus returns upstream tracking info for the current branch.
func TrackingStatus(ctx context.Context, r Runner, dir string) (model.Tracking, error) {
	out, err := r.Run(ctx, dir, "for-each-ref", "--format=%(refname:short)|%(upstream:short)|%(upstream:track)|%(upstream:trackshort)", "refs/heads")
	if err != nil {
		return model.Tracking{Status: model.TrackingNone}, nil
	}

	head, err := r.Run(ctx, dir, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		return model.Tracking{Status: model.TrackingNone}, nil
	}
	head = strings.TrimSpace(head)

	entries := ParseForEachRef(out)
	for _, e := range entries {
		if e.Branch != head {
			continue
		}
		if e.Upstream == "" {
			return model.Tracking{Status: model.TrackingNone}, nil
		}
		if strings.Contains(e.Track, "[gone]") {
			return model.Tracking{
				Upstream: e.Upstream,
				Status:   model.TrackingGone,
			}, nil
		}

		revOut, revErr := r.Run(ctx, dir, "rev-list", "--left-right", "--count", head+"..."+e.Upstream)
		if revErr != nil {
			return trackingFromShort(e), nil
		}
		ahead, behind := ParseRevListCount(revOut)
		aheadPtr := &ahead
		behindPtr := &behind

		var status model.TrackingStatus
		switch {
		case ahead > 0 && behind > 0:
			status = model.TrackingDiverged
		case ahead > 0:
			status = model.TrackingAhead
		case behind > 0:
			status = model.TrackingBehind
		default:
			status = model.TrackingEqual
		}

		return model.Tracking{
			Upstream: e.Upstream,
			Status:   status,
			Ahead:    aheadPtr,
			Behind:   behindPtr,
		}, nil
	}

	return model.Tracking{Status: model.TrackingNone}, nil
}

func trackingFromShort(e ForEachRefEntry) model.Tracking {
	var status model.TrackingStatus
	switch e.TrackShort {
	case ">":
		status = model.TrackingAhead
	case "<":
		status = model.TrackingBehind
	case "<>":
		status = model.TrackingDiverged
	case "=":
		status = model.TrackingEqual
	default:
		status = model.TrackingNone
	}
	return model.Tracking{
		Upstream: e.Upstream,
		Status:   status,
	}
}

// HasSubmodules checks for the presence of submodules without recursing.
func HasSubmodules(ctx context.Context, r Runner, dir string) (bool, error) {
	_, err := r.Run(ctx, dir, "config", "--file", ".gitmodules", "--get-regexp", "submodule")
	if err != nil {
		return false, nil
	}
	return true, nil
}

// Fetch runs a safe fetch with submodule recursion disabled.
func Fetch(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "-c", "fetch.recurseSubmodules=false", "fetch", "--all", "--prune", "--prune-tags", "--no-recurse-submodules")
	return err
}

// stageThenCommit runs clone into an unpredictable sibling staging
// directory and atomically renames it onto target only on success, so a
// failed clone never leaves a half-populated directory at target.
func stageThenCommit(target string, clone func(stagingDir string) error) error {
	parent := filepath.Dir(target)
	staging, err := securejoin.SecureJoin(parent, ".reposync-staging-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("stage path: %w", err)
	}
	if err := clone(staging); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	if err := os.Rename(staging, target); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("commit staged clone: %w", err)
	}
	return nil
}

// CloneFull performs a full clone of remoteURL into target, optionally
// fetching all refs.
func CloneFull(ctx context.Context, r Runner, remoteURL, target string, fetchAllRefs bool) error {
	return stageThenCommit(target, func(staging string) error {
		args := []string{"clone"}
		if !fetchAllRefs {
			args = append(args, "--no-tags")
		}
		args = append(args, remoteURL, staging)
		_, err := r.Run(ctx, "", args...)
		return err
	})
}

// CloneSingleBranch clones remoteURL tracking only ref into target. After
// the clone, it appends a wildcard refspec so subsequent worktree
// operations can resolve other branches; tracking-setup errors are
// non-fatal.
func CloneSingleBranch(ctx context.Context, r Runner, remoteURL, ref, target string) error {
	err := stageThenCommit(target, func(staging string) error {
		_, err := r.Run(ctx, "", "clone", "--branch", ref, "--single-branch", remoteURL, staging)
		return err
	})
	if err != nil {
		return err
	}
	_, _ = r.Run(ctx, target, "config", "--add", "remote.origin.fetch", "+refs/heads/*:refs/remotes/origin/*")
	return nil
}

// WorktreeAdd links target as a new worktree of baseRepo on branch. It
// always prunes stale worktree registrations first; if the add still fails
// with a stale-worktree error it prunes once more and retries.
func WorktreeAdd(ctx context.Context, r Runner, baseRepo, branch, target string) error {
	_, _ = r.Run(ctx, baseRepo, "worktree", "prune")

	_, err := r.Run(ctx, baseRepo, "worktree", "add", target, branch)
	if err == nil {
		return nil
	}
	if Classify(err) != ClassStaleWorktree {
		return err
	}
	_, _ = r.Run(ctx, baseRepo, "worktree", "prune")
	_, err = r.Run(ctx, baseRepo, "worktree", "add", target, branch)
	return err
}

// WorktreeEntry is one row of `git worktree list`.
type WorktreeEntry struct {
	Path   string
	Branch string
}

// WorktreeList returns the registered worktrees of repo.
func WorktreeList(ctx context.Context, r Runner, repo string) ([]WorktreeEntry, error) {
	out, err := r.Run(ctx, repo, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git worktree list: %w", err)
	}
	return parseWorktreeList(out), nil
}

func parseWorktreeList(output string) []WorktreeEntry {
	var entries []WorktreeEntry
	var current WorktreeEntry
	flush := func() {
		if current.Path != "" {
			entries = append(entries, current)
		}
		current = WorktreeEntry{}
	}
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return entries
}

// WorktreePrune removes stale worktree registrations on repo.
func WorktreePrune(ctx context.Context, r Runner, repo string) error {
	_, err := r.Run(ctx, repo, "worktree", "prune")
	return err
}

// RefExists reports whether ref resolves to a commit reachable from repo,
// without requiring the caller to know ahead of time whether ref is a
// local branch, a remote-tracking branch, or a tag.
func RefExists(ctx context.Context, r Runner, repo, ref string) (bool, error) {
	_, err := r.Run(ctx, repo, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// BranchExistsOnRemote probes remoteURL for branch without requiring a
// local clone. Used when the Forge Client is unavailable.
func BranchExistsOnRemote(ctx context.Context, r Runner, remoteURL, branch string) (bool, error) {
	out, err := r.Run(ctx, "", "ls-remote", "--heads", remoteURL, branch)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// RemoteOriginURL returns the origin remote URL of repo, or "" if repo has
// no origin.
func RemoteOriginURL(ctx context.Context, r Runner, repo string) (string, error) {
	out, err := r.Run(ctx, repo, "remote", "get-url", "origin")
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(out), nil
}

// DefaultBranch returns repo's configured default branch, as recorded by
// origin/HEAD.
func DefaultBranch(ctx context.Context, r Runner, repo string) (string, error) {
	out, err := r.Run(ctx, repo, "symbolic-ref", "--quiet", "--short", "refs/remotes/origin/HEAD")
	if err != nil {
		return "", fmt.Errorf("default branch: %w", err)
	}
	return strings.TrimPrefix(strings.TrimSpace(out), "origin/"), nil
}
