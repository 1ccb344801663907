// Package model defines the core data types shared by the list parser,
// planner, reconciler, and git driver.
package model

// GitRemote is a single configured git remote on a local repository (the
// output of `git remote`/`git remote get-url`), distinct from Remote, the
// plan file's own remote specifier.
type GitRemote struct {
	// Name is the configured remote name (for example, "origin").
	Name string `json:"name" yaml:"name"`
	// URL is the remote fetch/push URL.
	URL string `json:"url" yaml:"url"`
}

// Head represents the current HEAD state of a repo.
type Head struct {
	// Branch is the current branch name when HEAD is attached.
	Branch string `json:"branch" yaml:"branch"`
	// Detached reports whether HEAD is detached.
	Detached bool `json:"detached" yaml:"detached"`
}

// Worktree represents the working tree status. Nil for bare repos.
type Worktree struct {
	// Dirty indicates whether the worktree has any local modifications.
	Dirty bool `json:"dirty" yaml:"dirty"`
	// Staged is the count of staged file changes.
	Staged int `json:"staged" yaml:"staged"`
	// Unstaged is the count of unstaged file changes.
	Unstaged int `json:"unstaged" yaml:"unstaged"`
	// Untracked is the count of untracked files.
	Untracked int `json:"untracked" yaml:"untracked"`
}

// TrackingStatus enumerates the possible upstream tracking states.
type TrackingStatus string

const (
	TrackingAhead    TrackingStatus = "ahead"
	TrackingBehind   TrackingStatus = "behind"
	TrackingDiverged TrackingStatus = "diverged"
	TrackingEqual    TrackingStatus = "equal"
	TrackingGone     TrackingStatus = "gone"
	TrackingNone     TrackingStatus = "none"
)

// Tracking represents the upstream tracking relationship for the current branch.
type Tracking struct {
	// Upstream is the tracked upstream ref (for example, "origin/main").
	Upstream string `json:"upstream" yaml:"upstream"`
	// Status is the high-level relationship between local and upstream branches.
	Status TrackingStatus `json:"status" yaml:"status"`
	// Ahead is the number of commits local is ahead of upstream. Nil when unknown/not applicable.
	Ahead *int `json:"ahead" yaml:"ahead"`
	// Behind is the number of commits local is behind upstream. Nil when unknown/not applicable.
	Behind *int `json:"behind" yaml:"behind"`
}

// Submodules indicates whether the repo contains submodules.
type Submodules struct {
	// HasSubmodules indicates whether .gitmodules defines one or more submodules.
	HasSubmodules bool `json:"has_submodules" yaml:"has_submodules"`
}

// RawLine is one input line after comment stripping and whitespace
// trimming. The original text is preserved so Planner/Parser errors can
// quote the offending line verbatim.
type RawLine struct {
	Number int
	Text   string
}

// Visibility is the GlobalFlags/per-line repository visibility choice.
type Visibility string

const (
	VisibilityUnset   Visibility = ""
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// GlobalFlags holds the flags recognized at the top of the plan file. A
// line is a global-flag line iff after the flag token only blank space or
// a trailing comment remains.
type GlobalFlags struct {
	DefaultVisibility Visibility
	ForceWorktree     bool
	EnableCodespaces  bool
}

// RemoteKind discriminates the variants of Remote.
type RemoteKind string

const (
	RemoteOwnerRepo    RemoteKind = "owner_repo"
	RemoteFileURL      RemoteKind = "file_url"
	RemoteAbsolutePath RemoteKind = "absolute_path"
	RemoteHTTPSGithub  RemoteKind = "https_github"
	RemoteSSHGithub    RemoteKind = "ssh_github"
	RemoteOtherURL     RemoteKind = "other_url"
)

// Remote is a validated plan-file remote specifier. Owner/Repo are
// populated for OwnerRepo, HttpsGithub, and SshGithub — the only kinds for
// which Forge Client operations are valid. Path carries the filesystem
// path or opaque URL text for the remaining kinds.
type Remote struct {
	Kind  RemoteKind
	Owner string
	Repo  string
	Path  string
}

// IsForgeManaged reports whether Forge Client operations apply to r.
func (r Remote) IsForgeManaged() bool {
	switch r.Kind {
	case RemoteOwnerRepo, RemoteHTTPSGithub, RemoteSSHGithub:
		return true
	default:
		return false
	}
}

// Canonical returns the identity used for Pass 1 reference counting:
// "owner/repo" for forge-managed remotes, the path otherwise.
func (r Remote) Canonical() string {
	if r.IsForgeManaged() {
		return r.Owner + "/" + r.Repo
	}
	return r.Path
}

// EntryKind discriminates the variants of Entry.
type EntryKind string

const (
	EntryClone    EntryKind = "clone"
	EntryWorktree EntryKind = "worktree"
)

// Entry is one parsed plan item.
type Entry struct {
	Kind EntryKind
	Line RawLine

	// Clone fields.
	Remote            Remote
	Ref               string
	Target            string
	FetchAllRefs      bool
	PerLineVisibility Visibility
	WorktreePreferred bool

	// Worktree fields.
	Branch             string
	NoWorktreeOverride bool
}

// ActionKind discriminates the variants of ResolvedAction.
type ActionKind string

const (
	ActionFullClone         ActionKind = "full_clone"
	ActionSingleBranchClone ActionKind = "single_branch_clone"
	ActionWorktreeAdd       ActionKind = "worktree_add"
	ActionSkip              ActionKind = "skip"
)

// ResolvedAction is the Planner's output, one per Entry.
type ResolvedAction struct {
	Kind ActionKind

	Remote       Remote
	Ref          string
	FetchAllRefs bool
	Visibility   Visibility

	BaseRepoAbsolutePath string
	Branch               string

	TargetAbsolutePath string
	// Provisional marks a WorktreeAdd produced by converting a
	// ref-suffixed Clone entry under global/per-line --worktree: the
	// Planner cannot verify the ref is reachable from the base repo, so
	// the Reconciler must check reachability and may demote this action
	// to SingleBranchClone at execution time.
	Provisional bool
	// Reason explains an ActionSkip, or carries a non-fatal diagnostic
	// recorded when a provisional WorktreeAdd is demoted to
	// SingleBranchClone at reconcile time.
	Reason string

	SourceLine RawLine
}

// Plan is the ordered sequence of ResolvedAction plus the GlobalFlags that
// governed its resolution.
type Plan struct {
	Flags   GlobalFlags
	Actions []ResolvedAction
}

// PlanError is a Planner-detected error: duplicate target, undefined
// fallback, or an otherwise-unresolvable entry. The run aborts before any
// filesystem mutation when any PlanError is present.
type PlanError struct {
	Line    RawLine
	Message string
}

func (e PlanError) Error() string {
	return e.Message
}

// FallbackRepo is the current context for bare `@branch` lines.
type FallbackRepo struct {
	Set    bool
	Remote Remote
	Path   string
}

// WorkspaceContext carries the two directories every target resolves
// against: ParentDirectory is the OS-level parent of WorkingDirectory.
type WorkspaceContext struct {
	WorkingDirectory string
	ParentDirectory  string
}
