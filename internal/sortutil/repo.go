package sortutil

import (
	"sort"

	"github.com/forgekeep/reposync/internal/model"
)

// LessRepoIDPath provides deterministic ordering by repository identity
// first, then by path for multi-checkout scenarios.
func LessRepoIDPath(repoIDI, pathI, repoIDJ, pathJ string) bool {
	if repoIDI == repoIDJ {
		return pathI < pathJ
	}
	return repoIDI < repoIDJ
}

// SortResolvedActions orders a Plan's actions by remote canonical
// identity, then target path, so the Pipeline Summary and any
// `--format table` rendering are stable regardless of the plan file's
// original ordering.
func SortResolvedActions(actions []model.ResolvedAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		return LessRepoIDPath(
			actions[i].Remote.Canonical(), actions[i].TargetAbsolutePath,
			actions[j].Remote.Canonical(), actions[j].TargetAbsolutePath,
		)
	})
}
