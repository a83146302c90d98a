// Package githubapi wraps the GitHub REST API behind the narrow capability
// the pipeline needs: typed reads, one body write for badge embedding, and
// rate-limit introspection. Callers never see HTTP details; not-found maps to
// ErrNotFound and transient failures are retried with exponential backoff.
package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v68/github"
)

// ErrNotFound is returned when the requested GitHub entity does not exist or
// is not visible to the installation.
var ErrNotFound = errors.New("github: not found")

// Client is the outbound GitHub capability consumed by the sync services.
type Client interface {
	GetUser(ctx context.Context, username string) (*github.User, error)
	GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error)
	GetIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	ListIssueTimeline(ctx context.Context, owner, repo string, number int) ([]*github.Timeline, error)
	UpdateIssueBody(ctx context.Context, owner, repo string, number int, body string) (*github.Issue, error)
	// RateLimitRemaining returns the core API quota left for this client's
	// credentials.
	RateLimitRemaining(ctx context.Context) (int, error)
}

// Factory hands out installation-scoped clients. Each organization's
// installation_id selects its own credentials and rate-limit bucket.
type Factory interface {
	ForInstallation(installationID int64) (Client, error)
}

// AppFactory builds installation clients from GitHub App credentials.
type AppFactory struct {
	appID      int64
	privateKey []byte

	mu      sync.Mutex
	clients map[int64]Client
}

// NewAppFactory creates a factory for the given GitHub App. privateKey is the
// PEM-encoded app key.
func NewAppFactory(appID int64, privateKey []byte) *AppFactory {
	return &AppFactory{
		appID:      appID,
		privateKey: privateKey,
		clients:    make(map[int64]Client),
	}
}

// ForInstallation returns a client authenticated as the given installation.
// Clients are cached per installation.
func (f *AppFactory) ForInstallation(installationID int64) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[installationID]; ok {
		return c, nil
	}

	transport, err := ghinstallation.New(http.DefaultTransport, f.appID, installationID, f.privateKey)
	if err != nil {
		return nil, fmt.Errorf("creating installation transport for %d: %w", installationID, err)
	}
	c := NewWithClient(github.NewClient(&http.Client{Transport: transport, Timeout: 30 * time.Second}))
	f.clients[installationID] = c
	return c, nil
}

// restClient implements Client on go-github.
type restClient struct {
	gh *github.Client
}

// NewWithClient wraps an already configured go-github client. Used directly
// in tests with an httptest-backed client.
func NewWithClient(gh *github.Client) Client {
	return &restClient{gh: gh}
}

func (c *restClient) GetUser(ctx context.Context, username string) (*github.User, error) {
	return callWithRetry(ctx, func() (*github.User, *github.Response, error) {
		return c.gh.Users.Get(ctx, username)
	})
}

func (c *restClient) GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error) {
	return callWithRetry(ctx, func() (*github.Repository, *github.Response, error) {
		return c.gh.Repositories.Get(ctx, owner, repo)
	})
}

func (c *restClient) GetIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error) {
	return callWithRetry(ctx, func() (*github.Issue, *github.Response, error) {
		return c.gh.Issues.Get(ctx, owner, repo, number)
	})
}

func (c *restClient) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	return callWithRetry(ctx, func() (*github.PullRequest, *github.Response, error) {
		return c.gh.PullRequests.Get(ctx, owner, repo, number)
	})
}

func (c *restClient) ListIssueTimeline(ctx context.Context, owner, repo string, number int) ([]*github.Timeline, error) {
	opts := &github.ListOptions{PerPage: 100}
	var all []*github.Timeline
	for {
		events, err := callWithRetryResp(ctx, func() ([]*github.Timeline, *github.Response, error) {
			return c.gh.Issues.ListIssueTimeline(ctx, owner, repo, number, opts)
		})
		if err != nil {
			return nil, err
		}
		all = append(all, events.value...)
		if events.resp == nil || events.resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = events.resp.NextPage
	}
}

func (c *restClient) UpdateIssueBody(ctx context.Context, owner, repo string, number int, body string) (*github.Issue, error) {
	return callWithRetry(ctx, func() (*github.Issue, *github.Response, error) {
		return c.gh.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{Body: &body})
	})
}

func (c *restClient) RateLimitRemaining(ctx context.Context) (int, error) {
	limits, err := callWithRetry(ctx, func() (*github.RateLimits, *github.Response, error) {
		return c.gh.RateLimit.Get(ctx)
	})
	if err != nil {
		return 0, err
	}
	if limits.Core == nil {
		return 0, fmt.Errorf("rate limit response missing core bucket")
	}
	return limits.Core.Remaining, nil
}

type valueResp[T any] struct {
	value T
	resp  *github.Response
}

func callWithRetry[T any](ctx context.Context, call func() (T, *github.Response, error)) (T, error) {
	vr, err := callWithRetryResp(ctx, call)
	return vr.value, err
}

// callWithRetryResp retries transient failures (network errors and 5xx) with
// bounded exponential backoff. Permanent outcomes, including 404, stop the
// retry loop immediately.
func callWithRetryResp[T any](ctx context.Context, call func() (T, *github.Response, error)) (valueResp[T], error) {
	var out valueResp[T]

	operation := func() error {
		value, resp, err := call()
		if err != nil {
			if resp != nil {
				switch {
				case resp.StatusCode == http.StatusNotFound:
					return backoff.Permanent(ErrNotFound)
				case resp.StatusCode >= 500:
					return err
				default:
					return backoff.Permanent(err)
				}
			}
			return err
		}
		out = valueResp[T]{value: value, resp: resp}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return out, err
	}
	return out, nil
}
