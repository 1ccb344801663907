package vcs

import (
	"context"

	"github.com/forgekeep/reposync/internal/gitx"
	"github.com/forgekeep/reposync/internal/model"
)

// Adapter defines the git operations the Reconciler relies on.
type Adapter interface {
	IsRepo(ctx context.Context, dir string) (bool, error)
	Remotes(ctx context.Context, dir string) ([]model.GitRemote, error)
	RemoteOriginURL(ctx context.Context, dir string) (string, error)
	DefaultBranch(ctx context.Context, dir string) (string, error)

	CloneFull(ctx context.Context, remoteURL, target string, fetchAllRefs bool) error
	CloneSingleBranch(ctx context.Context, remoteURL, ref, target string) error
	WorktreeAdd(ctx context.Context, baseRepo, branch, target string) error
	WorktreeList(ctx context.Context, repo string) ([]gitx.WorktreeEntry, error)
	BranchExistsOnRemote(ctx context.Context, remoteURL, branch string) (bool, error)
	RefExists(ctx context.Context, repo, ref string) (bool, error)
	Fetch(ctx context.Context, dir string) error

	// Diagnostics, used by the status command rather than the Reconciler.
	IsBare(ctx context.Context, dir string) (bool, error)
	Head(ctx context.Context, dir string) (model.Head, error)
	WorktreeStatus(ctx context.Context, dir string) (*model.Worktree, error)
	TrackingStatus(ctx context.Context, dir string) (model.Tracking, error)
	HasSubmodules(ctx context.Context, dir string) (bool, error)
}

// GitAdapter implements Adapter using the git CLI via gitx.
type GitAdapter struct {
	Runner gitx.Runner
}

func NewGitAdapter(runner gitx.Runner) *GitAdapter {
	if runner == nil {
		runner = &gitx.GitRunner{}
	}
	return &GitAdapter{Runner: runner}
}

func (g *GitAdapter) IsRepo(ctx context.Context, dir string) (bool, error) {
	return gitx.IsRepo(ctx, g.Runner, dir)
}

func (g *GitAdapter) Remotes(ctx context.Context, dir string) ([]model.GitRemote, error) {
	return gitx.Remotes(ctx, g.Runner, dir)
}

func (g *GitAdapter) RemoteOriginURL(ctx context.Context, dir string) (string, error) {
	return gitx.RemoteOriginURL(ctx, g.Runner, dir)
}

func (g *GitAdapter) DefaultBranch(ctx context.Context, dir string) (string, error) {
	return gitx.DefaultBranch(ctx, g.Runner, dir)
}

func (g *GitAdapter) CloneFull(ctx context.Context, remoteURL, target string, fetchAllRefs bool) error {
	return gitx.CloneFull(ctx, g.Runner, remoteURL, target, fetchAllRefs)
}

func (g *GitAdapter) CloneSingleBranch(ctx context.Context, remoteURL, ref, target string) error {
	return gitx.CloneSingleBranch(ctx, g.Runner, remoteURL, ref, target)
}

func (g *GitAdapter) WorktreeAdd(ctx context.Context, baseRepo, branch, target string) error {
	return gitx.WorktreeAdd(ctx, g.Runner, baseRepo, branch, target)
}

func (g *GitAdapter) WorktreeList(ctx context.Context, repo string) ([]gitx.WorktreeEntry, error) {
	return gitx.WorktreeList(ctx, g.Runner, repo)
}

func (g *GitAdapter) BranchExistsOnRemote(ctx context.Context, remoteURL, branch string) (bool, error) {
	return gitx.BranchExistsOnRemote(ctx, g.Runner, remoteURL, branch)
}

func (g *GitAdapter) RefExists(ctx context.Context, repo, ref string) (bool, error) {
	return gitx.RefExists(ctx, g.Runner, repo, ref)
}

func (g *GitAdapter) Fetch(ctx context.Context, dir string) error {
	return gitx.Fetch(ctx, g.Runner, dir)
}

func (g *GitAdapter) IsBare(ctx context.Context, dir string) (bool, error) {
	return gitx.IsBare(ctx, g.Runner, dir)
}

func (g *GitAdapter) Head(ctx context.Context, dir string) (model.Head, error) {
	return gitx.Head(ctx, g.Runner, dir)
}

func (g *GitAdapter) WorktreeStatus(ctx context.Context, dir string) (*model.Worktree, error) {
	return gitx.WorktreeStatus(ctx, g.Runner, dir)
}

func (g *GitAdapter) TrackingStatus(ctx context.Context, dir string) (model.Tracking, error) {
	return gitx.TrackingStatus(ctx, g.Runner, dir)
}

func (g *GitAdapter) HasSubmodules(ctx context.Context, dir string) (bool, error) {
	return gitx.HasSubmodules(ctx, g.Runner, dir)
}
