// Package planner walks a parsed plan file's Entries and resolves each
// one into a concrete filesystem ResolvedAction. It is pure and
// side-effect-free: every filesystem and network fact it needs (whether
// the working directory is itself a repo with an origin) is supplied by
// the caller as the initial FallbackRepo, never probed here.
package planner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forgekeep/reposync/internal/model"
)

// Build resolves entries, in order, into a Plan. initialFallback seeds
// the FallbackRepo state used by bare `@branch` lines; pass a zero-value
// model.FallbackRepo{} when the working directory is not itself a
// checked-out repository with an origin.
func Build(entries []model.Entry, flags model.GlobalFlags, ws model.WorkspaceContext, initialFallback model.FallbackRepo) (*model.Plan, []model.PlanError) {
	counts := countCloneReferences(entries)

	fallback := initialFallback
	seen := map[string]int{}
	var actions []model.ResolvedAction
	var errs []model.PlanError

	record := func(action model.ResolvedAction) {
		if line, ok := seen[action.TargetAbsolutePath]; ok {
			errs = append(errs, model.PlanError{
				Line:    action.SourceLine,
				Message: fmt.Sprintf("line %d: target %q duplicates the target resolved at line %d", action.SourceLine.Number, action.TargetAbsolutePath, line),
			})
		} else {
			seen[action.TargetAbsolutePath] = action.SourceLine.Number
		}
		actions = append(actions, action)
	}

	for _, e := range entries {
		switch e.Kind {
		case model.EntryClone:
			fallback = resolveCloneEntry(e, flags, ws, counts, fallback, record)
		case model.EntryWorktree:
			if !fallback.Set {
				errs = append(errs, model.PlanError{
					Line:    e.Line,
					Message: fmt.Sprintf("line %d: bare @%s has no fallback repository to attach to", e.Line.Number, e.Branch),
				})
				continue
			}
			resolveWorktreeEntry(e, ws, counts, fallback, record)
		}
	}

	return &model.Plan{Flags: flags, Actions: actions}, errs
}

// countCloneReferences builds Pass 1's multiset of canonical remotes
// referenced by Clone-variant entries. Bare `@branch` lines are never
// counted.
func countCloneReferences(entries []model.Entry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		if e.Kind != model.EntryClone {
			continue
		}
		counts[e.Remote.Canonical()]++
	}
	return counts
}

func resolveCloneEntry(e model.Entry, flags model.GlobalFlags, ws model.WorkspaceContext, counts map[string]int, fallback model.FallbackRepo, record func(model.ResolvedAction)) model.FallbackRepo {
	if e.Ref == "" {
		target := resolveTarget(ws.ParentDirectory, e.Target, baseName(e.Remote))
		record(model.ResolvedAction{
			Kind:               model.ActionFullClone,
			Remote:             e.Remote,
			FetchAllRefs:       e.FetchAllRefs,
			Visibility:         e.PerLineVisibility,
			TargetAbsolutePath: target,
			SourceLine:         e.Line,
		})
		return model.FallbackRepo{Set: true, Remote: e.Remote, Path: target}
	}

	effectiveWorktree := e.WorktreePreferred || flags.ForceWorktree
	suffix := counts[e.Remote.Canonical()] >= 2 || effectiveWorktree
	target := resolveRefTarget(ws.ParentDirectory, e.Target, baseName(e.Remote), e.Ref, suffix)

	if effectiveWorktree && fallback.Set {
		record(model.ResolvedAction{
			Kind:                 model.ActionWorktreeAdd,
			Remote:               e.Remote,
			Ref:                  e.Ref,
			BaseRepoAbsolutePath: fallback.Path,
			Branch:               e.Ref,
			TargetAbsolutePath:   target,
			Provisional:          true,
			SourceLine:           e.Line,
		})
	} else {
		record(model.ResolvedAction{
			Kind:               model.ActionSingleBranchClone,
			Remote:             e.Remote,
			Ref:                e.Ref,
			Visibility:         e.PerLineVisibility,
			TargetAbsolutePath: target,
			SourceLine:         e.Line,
		})
	}

	return model.FallbackRepo{Set: true, Remote: e.Remote, Path: target}
}

func resolveWorktreeEntry(e model.Entry, ws model.WorkspaceContext, counts map[string]int, fallback model.FallbackRepo, record func(model.ResolvedAction)) {
	if e.NoWorktreeOverride {
		// This line is one more reference to the fallback's remote, so the
		// clone is suffixed whenever a plan entry already clones that remote.
		suffix := counts[fallback.Remote.Canonical()]+1 >= 2
		target := resolveRefTarget(ws.ParentDirectory, e.Target, baseName(fallback.Remote), e.Branch, suffix)
		record(model.ResolvedAction{
			Kind:               model.ActionSingleBranchClone,
			Remote:             fallback.Remote,
			Ref:                e.Branch,
			TargetAbsolutePath: target,
			SourceLine:         e.Line,
		})
		return
	}

	defaultName := filepath.Base(ws.WorkingDirectory) + "-" + sanitize(e.Branch)
	target := resolveTarget(ws.ParentDirectory, e.Target, defaultName)
	record(model.ResolvedAction{
		Kind:                 model.ActionWorktreeAdd,
		Remote:               fallback.Remote,
		BaseRepoAbsolutePath: fallback.Path,
		Branch:               e.Branch,
		TargetAbsolutePath:   target,
		SourceLine:           e.Line,
	})
}

// resolveTarget joins an explicit target (or, absent one, defaultName)
// against parent.
func resolveTarget(parent, explicit, defaultName string) string {
	name := explicit
	if name == "" {
		name = defaultName
	}
	return filepath.Join(parent, name)
}

// resolveRefTarget is resolveTarget specialized for ref-bearing entries:
// the sanitized ref is appended to the default name when suffix is true.
func resolveRefTarget(parent, explicit, baseName, ref string, suffix bool) string {
	if explicit != "" {
		return filepath.Join(parent, explicit)
	}
	name := baseName
	if suffix {
		name = baseName + "-" + sanitize(ref)
	}
	return filepath.Join(parent, name)
}

// baseName returns the directory name a remote's clone defaults to:
// the repo name for forge-managed remotes, the final path segment
// (".git" suffix stripped) otherwise.
func baseName(r model.Remote) string {
	if r.IsForgeManaged() {
		return r.Repo
	}
	return strings.TrimSuffix(filepath.Base(r.Path), ".git")
}

// sanitize replaces every '/' in a branch name with '-', producing a
// filesystem-safe path segment. The corresponding Git command must
// still use the branch name verbatim.
func sanitize(ref string) string {
	return strings.ReplaceAll(ref, "/", "-")
}
