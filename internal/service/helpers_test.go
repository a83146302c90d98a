package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/require"

	"github.com/0xsirsaif/polar/internal/githubapi"
	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/storage/sqlite"
	"github.com/0xsirsaif/polar/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedOrg(t *testing.T, s storage.Store, externalID int64, name string) *types.Organization {
	t.Helper()
	installationID := externalID * 10
	org, err := s.UpsertOrganization(context.Background(), &types.Organization{
		Platform:       types.PlatformGitHub,
		ExternalID:     externalID,
		Name:           name,
		InstallationID: &installationID,
	})
	require.NoError(t, err)
	return org
}

func seedRepo(t *testing.T, s storage.Store, org *types.Organization, externalID int64, name string) *types.Repository {
	t.Helper()
	repos, err := s.UpsertRepositories(context.Background(), []*types.Repository{{
		Platform:       types.PlatformGitHub,
		ExternalID:     externalID,
		OrganizationID: org.ID,
		Name:           name,
	}})
	require.NoError(t, err)
	return repos[0]
}

func seedIssue(t *testing.T, s storage.Store, org *types.Organization, repo *types.Repository, externalID int64, number int, body string) *types.Issue {
	t.Helper()
	issues, err := s.UpsertIssues(context.Background(), []*types.Issue{{
		Platform:       types.PlatformGitHub,
		ExternalID:     externalID,
		OrganizationID: org.ID,
		RepositoryID:   repo.ID,
		Number:         number,
		Title:          "issue",
		Body:           body,
		State:          types.IssueStateOpen,
		IssueCreatedAt: time.Now().UTC(),
	}})
	require.NoError(t, err)
	return issues[0]
}

func seedPull(t *testing.T, s storage.Store, org *types.Organization, repo *types.Repository, externalID int64, number int, draft bool) *types.PullRequest {
	t.Helper()
	pulls, err := s.UpsertPullRequests(context.Background(), []*types.PullRequest{{
		Platform:       types.PlatformGitHub,
		ExternalID:     externalID,
		OrganizationID: org.ID,
		RepositoryID:   repo.ID,
		Number:         number,
		Title:          "pull",
		State:          "open",
		IsDraft:        draft,
	}})
	require.NoError(t, err)
	return pulls[0]
}

// fakeClient implements githubapi.Client from in-memory maps keyed on
// "owner/repo" and "owner/repo#number".
type fakeClient struct {
	repos    map[string]*github.Repository
	issues   map[string]*github.Issue
	pulls    map[string]*github.PullRequest
	timeline map[string][]*github.Timeline

	remaining   int
	bodyUpdates map[string]string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		repos:       make(map[string]*github.Repository),
		issues:      make(map[string]*github.Issue),
		pulls:       make(map[string]*github.PullRequest),
		timeline:    make(map[string][]*github.Timeline),
		remaining:   5000,
		bodyUpdates: make(map[string]string),
	}
}

func repoKey(owner, repo string) string          { return owner + "/" + repo }
func numberKey(owner, repo string, n int) string { return fmt.Sprintf("%s/%s#%d", owner, repo, n) }

func (f *fakeClient) GetUser(ctx context.Context, username string) (*github.User, error) {
	return &github.User{Login: github.Ptr(username)}, nil
}

func (f *fakeClient) GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error) {
	r, ok := f.repos[repoKey(owner, repo)]
	if !ok {
		return nil, githubapi.ErrNotFound
	}
	return r, nil
}

func (f *fakeClient) GetIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error) {
	issue, ok := f.issues[numberKey(owner, repo, number)]
	if !ok {
		return nil, githubapi.ErrNotFound
	}
	return issue, nil
}

func (f *fakeClient) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	pull, ok := f.pulls[numberKey(owner, repo, number)]
	if !ok {
		return nil, githubapi.ErrNotFound
	}
	return pull, nil
}

func (f *fakeClient) ListIssueTimeline(ctx context.Context, owner, repo string, number int) ([]*github.Timeline, error) {
	return f.timeline[numberKey(owner, repo, number)], nil
}

func (f *fakeClient) UpdateIssueBody(ctx context.Context, owner, repo string, number int, body string) (*github.Issue, error) {
	f.bodyUpdates[numberKey(owner, repo, number)] = body
	return &github.Issue{Number: github.Ptr(number), Body: github.Ptr(body)}, nil
}

func (f *fakeClient) RateLimitRemaining(ctx context.Context) (int, error) {
	return f.remaining, nil
}

// fakeFactory returns the same client for every installation.
type fakeFactory struct {
	client githubapi.Client
}

func (f *fakeFactory) ForInstallation(installationID int64) (githubapi.Client, error) {
	return f.client, nil
}
