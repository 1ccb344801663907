// Package forge wraps the hosted Git forge's REST API as a small set of
// typed operations, hiding HTTP (and the go-github client) from the
// rest of the engine.
package forge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/forgekeep/reposync/internal/model"
)

// OwnerKind is the result of classify_owner.
type OwnerKind string

const (
	OwnerUser         OwnerKind = "user"
	OwnerOrganization OwnerKind = "organization"
	OwnerUnknown      OwnerKind = "unknown"
)

// Existence is the result of a repo_exists/branch_exists probe.
type Existence string

const (
	Exists         Existence = "exists"
	NotFound       Existence = "not_found"
	ExistenceError Existence = "error"
)

// CreateOutcome is the result of create_repo/create_branch.
type CreateOutcome string

const (
	Created     CreateOutcome = "created"
	CreateError CreateOutcome = "error"
)

// TokenValidity is the result of validate_token.
type TokenValidity string

const (
	TokenValid   TokenValidity = "valid"
	TokenInvalid TokenValidity = "invalid"
	TokenNetwork TokenValidity = "network_error"
)

// NetworkError marks a transient failure: the caller should degrade to
// read-only-local mode for the remainder of the run rather than treat
// it as a hard rejection.
type NetworkError struct{ Err error }

func (e *NetworkError) Error() string { return fmt.Sprintf("forge: network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// InvalidCredentialsError marks a hard authentication rejection — the
// caller should abort the run rather than retry.
type InvalidCredentialsError struct{ Err error }

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("forge: invalid credentials: %v", e.Err)
}
func (e *InvalidCredentialsError) Unwrap() error { return e.Err }

var errReadOnlyLocal = &NetworkError{Err: errors.New("forge client has no usable credentials (read-only-local mode)")}

// Client is a typed wrapper around the forge's REST API.
type Client struct {
	gh            *github.Client
	readOnlyLocal bool
}

// NewClient builds a Client from creds. A read-only-local Credentials
// value produces a Client whose every method returns a NetworkError,
// per the degraded-mode contract.
func NewClient(ctx context.Context, creds Credentials, enterpriseBaseURL string) (*Client, error) {
	if creds.ReadOnlyLocal {
		return &Client{readOnlyLocal: true}, nil
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))
	if enterpriseBaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(enterpriseBaseURL, enterpriseBaseURL)
		if err != nil {
			return nil, fmt.Errorf("forge: configure enterprise base url: %w", err)
		}
	}
	return &Client{gh: gh}, nil
}

// ClassifyOwner reports whether owner is a user or organization account.
func (c *Client) ClassifyOwner(ctx context.Context, owner string) (OwnerKind, error) {
	if c.readOnlyLocal {
		return OwnerUnknown, errReadOnlyLocal
	}
	var kind OwnerKind
	err := c.withRetry(ctx, func() error {
		user, resp, err := c.gh.Users.Get(ctx, owner)
		if err != nil {
			return classifyTransient(resp, err)
		}
		switch user.GetType() {
		case "User":
			kind = OwnerUser
		case "Organization":
			kind = OwnerOrganization
		default:
			kind = OwnerUnknown
		}
		return nil
	})
	if err != nil {
		return OwnerUnknown, err
	}
	return kind, nil
}

// RepoExists probes whether owner/repo exists on the forge.
func (c *Client) RepoExists(ctx context.Context, owner, repo string) (Existence, error) {
	if c.readOnlyLocal {
		return ExistenceError, errReadOnlyLocal
	}
	var existence Existence
	err := c.withRetry(ctx, func() error {
		_, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
		if err == nil {
			existence = Exists
			return nil
		}
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			existence = NotFound
			return nil
		}
		return classifyTransient(resp, err)
	})
	if err != nil {
		return ExistenceError, err
	}
	return existence, nil
}

// CreateRepo creates owner/repo with the given visibility. The creation
// endpoint depends on owner's classification: organization repos are
// created under the org, user repos under the authenticated account
// (GitHub's API has no "create under another user" endpoint). autoInit
// is required whenever the caller will also create a branch immediately
// afterward, since a branch ref needs a tip commit to anchor to.
func (c *Client) CreateRepo(ctx context.Context, owner, repo string, kind OwnerKind, visibility model.Visibility, autoInit bool) (CreateOutcome, error) {
	if c.readOnlyLocal {
		return CreateError, errReadOnlyLocal
	}
	if visibility == model.VisibilityUnset {
		visibility = model.VisibilityPrivate
	}
	req := &github.Repository{
		Name:     github.Ptr(repo),
		Private:  github.Ptr(visibility == model.VisibilityPrivate),
		AutoInit: github.Ptr(autoInit),
	}
	org := owner
	if kind != OwnerOrganization {
		org = ""
	}
	err := c.withRetry(ctx, func() error {
		_, resp, err := c.gh.Repositories.Create(ctx, org, req)
		if err != nil {
			return classifyTransient(resp, err)
		}
		return nil
	})
	if err != nil {
		return CreateError, err
	}
	return Created, nil
}

// BranchExists probes whether owner/repo has a branch named branch.
func (c *Client) BranchExists(ctx context.Context, owner, repo, branch string) (Existence, error) {
	if c.readOnlyLocal {
		return ExistenceError, errReadOnlyLocal
	}
	var existence Existence
	err := c.withRetry(ctx, func() error {
		_, resp, err := c.gh.Repositories.GetBranch(ctx, owner, repo, branch, 0)
		if err == nil {
			existence = Exists
			return nil
		}
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			existence = NotFound
			return nil
		}
		return classifyTransient(resp, err)
	})
	if err != nil {
		return ExistenceError, err
	}
	return existence, nil
}

// CreateBranch reads owner/repo's default branch and its tip SHA, then
// creates refs/heads/branch anchored to that SHA. If the default-branch
// probe fails, branch creation fails without attempting the write.
func (c *Client) CreateBranch(ctx context.Context, owner, repo, branch string) (CreateOutcome, error) {
	if c.readOnlyLocal {
		return CreateError, errReadOnlyLocal
	}
	var defaultBranch, tipSHA string
	err := c.withRetry(ctx, func() error {
		r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return classifyTransient(resp, err)
		}
		defaultBranch = r.GetDefaultBranch()
		return nil
	})
	if err != nil {
		return CreateError, fmt.Errorf("forge: read default branch: %w", err)
	}

	err = c.withRetry(ctx, func() error {
		b, resp, err := c.gh.Repositories.GetBranch(ctx, owner, repo, defaultBranch, 0)
		if err != nil {
			return classifyTransient(resp, err)
		}
		tipSHA = b.GetCommit().GetSHA()
		return nil
	})
	if err != nil {
		return CreateError, fmt.Errorf("forge: read default branch tip: %w", err)
	}

	ref := "refs/heads/" + branch
	err = c.withRetry(ctx, func() error {
		_, resp, err := c.gh.Git.CreateRef(ctx, owner, repo, github.CreateRef{
			Ref: ref,
			SHA: tipSHA,
		})
		if err != nil {
			return classifyTransient(resp, err)
		}
		return nil
	})
	if err != nil {
		return CreateError, err
	}
	return Created, nil
}

// ValidateToken checks the configured credentials against the forge.
// An empty/malformed response is treated as a network issue (allowing
// retry); a response naming "Bad credentials" or "Requires
// authentication" is a hard rejection.
func (c *Client) ValidateToken(ctx context.Context) (TokenValidity, error) {
	if c.readOnlyLocal {
		return TokenNetwork, errReadOnlyLocal
	}
	_, resp, err := c.gh.Users.Get(ctx, "")
	if err == nil {
		return TokenValid, nil
	}
	msg := err.Error()
	if strings.Contains(msg, "Bad credentials") || strings.Contains(msg, "Requires authentication") {
		return TokenInvalid, &InvalidCredentialsError{Err: err}
	}
	if resp == nil || resp.StatusCode == 0 {
		return TokenNetwork, &NetworkError{Err: err}
	}
	return TokenNetwork, &NetworkError{Err: err}
}

func (c *Client) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(op, policy)
}

// classifyTransient distinguishes a retryable network/5xx failure from
// a permanent client error (4xx other than the 404s callers special-case
// before ever reaching this function).
func classifyTransient(resp *github.Response, err error) error {
	if resp == nil || resp.StatusCode == 0 || resp.StatusCode >= http.StatusInternalServerError {
		return &NetworkError{Err: err}
	}
	return backoff.Permanent(err)
}
