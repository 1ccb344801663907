package gitx

import (
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	giturls "github.com/chainguard-dev/git-urls"

	"github.com/forgekeep/reposync/internal/model"
)

// NormalizeURL converts a git remote URL into a canonical repo_id.
//
// Rules:
//   - Strip protocol (https://, git://, ssh://) and user (git@)
//   - Convert git@host:path to host/path
//   - Lowercase the host portion
//   - Strip trailing ".git"
//   - Strip trailing slashes
//
// Examples:
//
//	git@github.com:Org/Repo.git  → github.com/Org/Repo
//	https://github.com/Org/Repo.git → github.com/Org/Repo
func NormalizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	var host, path string

	// Handle SSH shorthand: git@host:path
	if i := strings.Index(rawURL, "@"); i >= 0 && !strings.Contains(rawURL[:i], "://") {
		// SSH shorthand like git@github.com:Org/Repo.git
		rest := rawURL[i+1:]
		if colonIdx := strings.Index(rest, ":"); colonIdx >= 0 {
			host = rest[:colonIdx]
			path = rest[colonIdx+1:]
		}
	} else {
		// URL with protocol
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return rawURL
		}
		host = parsed.Hostname()
		path = strings.TrimPrefix(parsed.Path, "/")
	}

	host = strings.ToLower(host)
	path = strings.TrimSuffix(path, ".git")
	path = strings.TrimRight(path, "/")

	if host == "" {
		return path
	}
	return host + "/" + path
}

// PrimaryRemote selects the preferred remote from a list.
// Prefers "origin", falls back to first alphabetically.
func PrimaryRemote(remoteNames []string) string {
	if len(remoteNames) == 0 {
		return ""
	}
	for _, name := range remoteNames {
		if name == "origin" {
			return "origin"
		}
	}
	sorted := make([]string, len(remoteNames))
	copy(sorted, remoteNames)
	sort.Strings(sorted)
	return sorted[0]
}

var ownerRepoPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+/[A-Za-z0-9._-]+$`)

// ClassifyRemote classifies a plan-file remote specifier into one of
// model.RemoteKind's variants. Bare "owner/repo" shorthand and absolute
// filesystem paths are recognized by hand before falling back to
// git-urls for anything URL-shaped.
func ClassifyRemote(raw string) model.Remote {
	raw = strings.TrimSpace(raw)

	if ownerRepoPattern.MatchString(raw) {
		owner, repo := splitOwnerRepo(raw)
		return model.Remote{Kind: model.RemoteOwnerRepo, Owner: owner, Repo: repo}
	}

	if strings.HasPrefix(raw, "file://") {
		return model.Remote{Kind: model.RemoteFileURL, Path: strings.TrimPrefix(raw, "file://")}
	}

	if filepath.IsAbs(raw) {
		return model.Remote{Kind: model.RemoteAbsolutePath, Path: raw}
	}

	parsed, err := giturls.Parse(raw)
	if err != nil {
		return model.Remote{Kind: model.RemoteOtherURL, Path: raw}
	}

	host := strings.ToLower(parsed.Hostname())
	if host != "github.com" {
		return model.Remote{Kind: model.RemoteOtherURL, Path: raw}
	}

	owner, repo := splitOwnerRepo(strings.TrimSuffix(strings.TrimPrefix(parsed.Path, "/"), ".git"))
	if owner == "" || repo == "" {
		return model.Remote{Kind: model.RemoteOtherURL, Path: raw}
	}

	if parsed.Scheme == "ssh" || strings.HasPrefix(raw, "git@") {
		return model.Remote{Kind: model.RemoteSSHGithub, Owner: owner, Repo: repo}
	}
	return model.Remote{Kind: model.RemoteHTTPSGithub, Owner: owner, Repo: repo}
}

// CloneURL renders r back into a URL git clone/ls-remote/fetch accept.
// RemoteOwnerRepo shorthand clones over HTTPS, matching the CLI's own
// default transport when no scheme was specified in the plan file.
func CloneURL(r model.Remote) string {
	switch r.Kind {
	case model.RemoteOwnerRepo, model.RemoteHTTPSGithub:
		return "https://github.com/" + r.Owner + "/" + r.Repo + ".git"
	case model.RemoteSSHGithub:
		return "git@github.com:" + r.Owner + "/" + r.Repo + ".git"
	case model.RemoteFileURL:
		return "file://" + r.Path
	default:
		return r.Path
	}
}

func splitOwnerRepo(s string) (string, string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}
