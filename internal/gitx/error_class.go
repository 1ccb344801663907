// SPDX-License-Identifier: MIT
package gitx

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrAuthFailure marks authentication/authorization failures.
	ErrAuthFailure = errors.New("git auth error")
	// ErrNetworkFailure marks network/transport failures.
	ErrNetworkFailure = errors.New("git network error")
	// ErrCorruptRepo marks corrupt or invalid-repository failures.
	ErrCorruptRepo = errors.New("git corrupt repository")
	// ErrMissingRemoteRef marks missing upstream/ref/remote failures.
	ErrMissingRemoteRef = errors.New("git missing remote")
	// ErrNotEmpty marks a clone/add target that already has content.
	ErrNotEmpty = errors.New("git target not empty")
	// ErrStaleWorktree marks a worktree add rejected over a stale
	// administrative entry.
	ErrStaleWorktree = errors.New("git stale worktree")
	// ErrRefNotFound marks a requested branch/ref absent on the remote.
	ErrRefNotFound = errors.New("git ref not found")
)

// Class is the Git Driver's compact error taxonomy.
type Class string

const (
	ClassNone              Class = ""
	ClassAuthRequired      Class = "auth_required"
	ClassNotEmpty          Class = "not_empty"
	ClassStaleWorktree     Class = "stale_worktree"
	ClassRemoteUnreachable Class = "remote_unreachable"
	ClassRefNotFound       Class = "ref_not_found"
	ClassUnknown           Class = "unknown"
)

// Classify maps a git/process error to the compact Driver taxonomy;
// WorktreeAdd uses it to detect a stale worktree registration.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	switch ClassifyError(err) {
	case "auth":
		return ClassAuthRequired
	case "network", "timeout":
		return ClassRemoteUnreachable
	case "missing_remote":
		return ClassRefNotFound
	}

	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, ErrNotEmpty) || containsAny(msg, "already exists and is not an empty directory", "destination path", "already exists"):
		return ClassNotEmpty
	case errors.Is(err, ErrStaleWorktree) || containsAny(msg, "is already registered worktree", "is a missing but locked worktree", "use 'add -f'"):
		return ClassStaleWorktree
	case errors.Is(err, ErrRefNotFound) || containsAny(msg, "did not match any file(s) known to git", "invalid reference"):
		return ClassRefNotFound
	default:
		return ClassUnknown
	}
}

// ClassifyError maps git/process errors into broad actionable categories.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	if errors.Is(err, ErrAuthFailure) {
		return "auth"
	}
	if errors.Is(err, ErrNetworkFailure) {
		return "network"
	}
	if errors.Is(err, ErrCorruptRepo) {
		return "corrupt"
	}
	if errors.Is(err, ErrMissingRemoteRef) {
		return "missing_remote"
	}

	msg := strings.ToLower(err.Error())
	// Heuristics are intentionally broad to keep categories actionable for users.
	switch {
	case containsAny(msg, "permission denied", "authentication failed", "access denied", "publickey", "could not read username", "credential"):
		return "auth"
	case containsAny(msg, "could not resolve host", "network is unreachable", "connection timed out", "failed to connect", "temporary failure in name resolution", "tls handshake timeout"):
		return "network"
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return "timeout"
	case containsAny(msg, "not a git repository", "bad object", "corrupt", "object file"):
		return "corrupt"
	case containsAny(msg, "repository not found", "couldn't find remote ref", "remote ref does not exist", "no such remote"):
		return "missing_remote"
	default:
		return "unknown"
	}
}

func containsAny(msg string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
