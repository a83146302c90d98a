package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func installed(id int64) *int64 { return &id }

func seedOrg(t *testing.T, s *Store, externalID int64, name string, installationID *int64) *types.Organization {
	t.Helper()
	org, err := s.UpsertOrganization(context.Background(), &types.Organization{
		Platform:       types.PlatformGitHub,
		ExternalID:     externalID,
		Name:           name,
		InstallationID: installationID,
	})
	require.NoError(t, err)
	return org
}

func seedRepo(t *testing.T, s *Store, org *types.Organization, externalID int64, name string) *types.Repository {
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

func seedIssue(t *testing.T, s *Store, org *types.Organization, repo *types.Repository, externalID int64, number int) *types.Issue {
	t.Helper()
	issues, err := s.UpsertIssues(context.Background(), []*types.Issue{{
		Platform:       types.PlatformGitHub,
		ExternalID:     externalID,
		OrganizationID: org.ID,
		RepositoryID:   repo.ID,
		Number:         number,
		Title:          "issue",
		State:          types.IssueStateOpen,
		IssueCreatedAt: time.Now().UTC(),
	}})
	require.NoError(t, err)
	return issues[0]
}

func seedPull(t *testing.T, s *Store, org *types.Organization, repo *types.Repository, externalID int64, number int, draft bool) *types.PullRequest {
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

func TestUpsertOrganizationIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := seedOrg(t, s, 100, "acme", installed(1))
	second, err := s.UpsertOrganization(ctx, &types.Organization{
		Platform:   types.PlatformGitHub,
		ExternalID: 100,
		Name:       "acme-renamed",
	})
	require.NoError(t, err)

	if second.ID != first.ID {
		t.Errorf("got new id %s, want %s", second.ID, first.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed: got %v, want %v", second.CreatedAt, first.CreatedAt)
	}

	got, err := s.GetOrganization(ctx, first.ID)
	require.NoError(t, err)
	if got.Name != "acme-renamed" {
		t.Errorf("got name %q, want acme-renamed", got.Name)
	}
}

func TestUpsertOrganizationRevivesDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := seedOrg(t, s, 100, "acme", installed(1))
	require.NoError(t, s.SoftDeleteOrganization(ctx, org.ID))

	_, err := s.GetOrganization(ctx, org.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Reinstall.
	seedOrg(t, s, 100, "acme", installed(2))
	got, err := s.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	if got.DeletedAt != nil {
		t.Error("reinstall did not clear deleted_at")
	}
}

func TestUpsertOrganizationProfilePreservesInstallation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := seedOrg(t, s, 100, "acme", installed(55))

	// Profile updates come from owner resolution during reference sync and
	// carry no installation state. They must not wipe the one on record.
	_, err := s.UpsertOrganizationProfile(ctx, &types.Organization{
		Platform:   types.PlatformGitHub,
		ExternalID: 100,
		Name:       "acme",
		AvatarURL:  "https://avatars.example/acme.png",
	})
	require.NoError(t, err)

	got, err := s.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	if got.InstallationID == nil || *got.InstallationID != 55 {
		t.Fatalf("got installation %v, want 55", got.InstallationID)
	}
	if got.AvatarURL != "https://avatars.example/acme.png" {
		t.Errorf("got avatar %q, want the updated one", got.AvatarURL)
	}

	orgs, err := s.ListInstalledOrganizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
}

func TestUpsertOrganizationProfileDoesNotRevive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := seedOrg(t, s, 100, "acme", installed(55))
	require.NoError(t, s.SoftDeleteOrganization(ctx, org.ID))

	_, err := s.UpsertOrganizationProfile(ctx, &types.Organization{
		Platform:   types.PlatformGitHub,
		ExternalID: 100,
		Name:       "acme",
	})
	require.NoError(t, err)

	_, err = s.GetOrganization(ctx, org.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSuspendExcludesFromInstalled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedOrg(t, s, 100, "acme", installed(1))
	seedOrg(t, s, 200, "umbrella", installed(2))
	seedOrg(t, s, 300, "no-install", nil)

	require.NoError(t, s.SuspendOrganization(ctx, 2, 42, time.Now().UTC()))

	orgs, err := s.ListInstalledOrganizations(ctx)
	require.NoError(t, err)
	if len(orgs) != 1 || orgs[0].Name != "acme" {
		t.Fatalf("got %d installed orgs, want only acme", len(orgs))
	}

	require.NoError(t, s.UnsuspendOrganization(ctx, 2))
	orgs, err = s.ListInstalledOrganizations(ctx)
	require.NoError(t, err)
	if len(orgs) != 2 {
		t.Fatalf("got %d installed orgs after unsuspend, want 2", len(orgs))
	}
}

func TestUpsertIssuesPreservesDerivedFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := seedOrg(t, s, 100, "acme", installed(1))
	repo := seedRepo(t, s, org, 10, "widgets")
	issue := seedIssue(t, s, org, repo, 1000, 1)

	require.NoError(t, s.SetIssueReferenceState(ctx, issue.ID, true, true))
	now := time.Now().UTC()
	require.NoError(t, s.SetIssueBadgeEmbedded(ctx, issue.ID, true, &now))

	// A later webhook re-stores the issue with a new title.
	updated, err := s.UpsertIssues(ctx, []*types.Issue{{
		Platform:       types.PlatformGitHub,
		ExternalID:     1000,
		OrganizationID: org.ID,
		RepositoryID:   repo.ID,
		Number:         1,
		Title:          "retitled",
		State:          types.IssueStateOpen,
		IssueCreatedAt: issue.IssueCreatedAt,
	}})
	require.NoError(t, err)

	got := updated[0]
	if got.ID != issue.ID {
		t.Fatalf("upsert created new row %s, want %s", got.ID, issue.ID)
	}
	if got.Title != "retitled" {
		t.Errorf("got title %q, want retitled", got.Title)
	}
	if !got.HasInProgressRelationship || !got.HasPullRequestRelationship {
		t.Error("derived flags were clobbered by upsert")
	}
	if !got.PledgeBadgeCurrentlyEmbedded {
		t.Error("badge embed state was clobbered by upsert")
	}
}

func TestMarkIssueConfirmedSolvedOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := seedOrg(t, s, 100, "acme", installed(1))
	repo := seedRepo(t, s, org, 10, "widgets")
	issue := seedIssue(t, s, org, repo, 1000, 1)

	won, err := s.MarkIssueConfirmedSolved(ctx, issue.ID, "user-a", time.Now().UTC())
	require.NoError(t, err)
	if !won {
		t.Fatal("first confirmation did not win")
	}

	won, err = s.MarkIssueConfirmedSolved(ctx, issue.ID, "user-b", time.Now().UTC())
	require.NoError(t, err)
	if won {
		t.Fatal("second confirmation overwrote the first")
	}

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	if got.ConfirmedSolvedBy != "user-a" {
		t.Errorf("got confirmed_solved_by %q, want user-a", got.ConfirmedSolvedBy)
	}
}

func TestCreateIssueDependencyDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := seedOrg(t, s, 100, "acme", installed(1))
	repo := seedRepo(t, s, org, 10, "widgets")
	dependent := seedIssue(t, s, org, repo, 1000, 1)
	dependency := seedIssue(t, s, org, repo, 2000, 2)

	edge := &types.IssueDependency{
		OrganizationID:    org.ID,
		RepositoryID:      repo.ID,
		DependentIssueID:  dependent.ID,
		DependencyIssueID: dependency.ID,
	}
	require.NoError(t, s.CreateIssueDependency(ctx, edge))
	require.NoError(t, s.CreateIssueDependency(ctx, edge))

	deps, err := s.ListIssueDependencies(ctx, dependent.ID)
	require.NoError(t, err)
	if len(deps) != 1 {
		t.Fatalf("got %d edges, want 1", len(deps))
	}
}

func TestSoftDeleteIssueHidesRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := seedOrg(t, s, 100, "acme", installed(1))
	repo := seedRepo(t, s, org, 10, "widgets")
	issue := seedIssue(t, s, org, repo, 1000, 1)

	require.NoError(t, s.SoftDeleteIssue(ctx, issue.ID))

	_, err := s.GetIssue(ctx, issue.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetIssueByExternalID(ctx, types.PlatformGitHub, 1000)
	require.ErrorIs(t, err, storage.ErrNotFound)

	issues, err := s.ListIssuesByRepository(ctx, repo.ID)
	require.NoError(t, err)
	if len(issues) != 0 {
		t.Fatalf("got %d issues, want 0", len(issues))
	}
}

func TestListIssuesToCrawlSelectsStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := seedOrg(t, s, 100, "acme", installed(1))
	repo := seedRepo(t, s, org, 10, "widgets")

	stale := time.Now().UTC().Add(-48 * time.Hour)
	fresh := time.Now().UTC()

	_, err := s.UpsertIssues(ctx, []*types.Issue{
		{
			Platform: types.PlatformGitHub, ExternalID: 1, OrganizationID: org.ID, RepositoryID: repo.ID,
			Number: 1, State: types.IssueStateOpen, IssueCreatedAt: stale, IssueModifiedAt: &stale,
		},
		{
			Platform: types.PlatformGitHub, ExternalID: 2, OrganizationID: org.ID, RepositoryID: repo.ID,
			Number: 2, State: types.IssueStateOpen, IssueCreatedAt: fresh, IssueModifiedAt: &fresh,
		},
		{
			// Never synced.
			Platform: types.PlatformGitHub, ExternalID: 3, OrganizationID: org.ID, RepositoryID: repo.ID,
			Number: 3, State: types.IssueStateOpen, IssueCreatedAt: fresh,
		},
	})
	require.NoError(t, err)

	got, err := s.ListIssuesToCrawl(ctx, org.ID, time.Now().UTC().Add(-24*time.Hour), 10)
	require.NoError(t, err)
	if len(got) != 2 {
		t.Fatalf("got %d issues to crawl, want 2", len(got))
	}
	for _, issue := range got {
		if issue.Number == 2 {
			t.Error("fresh issue selected for crawl")
		}
	}
}

func TestListIssueReferencesJoinsPullRequest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := seedOrg(t, s, 100, "acme", installed(1))
	repo := seedRepo(t, s, org, 10, "widgets")
	issue := seedIssue(t, s, org, repo, 1000, 1)
	pull := seedPull(t, s, org, repo, 5000, 7, false)

	_, err := s.UpsertIssueReference(ctx, &types.IssueReference{
		IssueID:       issue.ID,
		ReferenceType: types.ReferencePullRequest,
		ExternalID:    "5000",
		PullRequestID: &pull.ID,
	})
	require.NoError(t, err)
	_, err = s.UpsertIssueReference(ctx, &types.IssueReference{
		IssueID:       issue.ID,
		ReferenceType: types.ReferenceExternalCommit,
		ExternalID:    "abc123",
		Source:        []byte(`{"commit_id":"abc123"}`),
	})
	require.NoError(t, err)

	refs, err := s.ListIssueReferences(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	var sawPull bool
	for _, ref := range refs {
		if ref.ReferenceType == types.ReferencePullRequest {
			sawPull = true
			if ref.PullRequest == nil || ref.PullRequest.Number != 7 {
				t.Fatal("pull reference did not join the pull request row")
			}
		}
	}
	if !sawPull {
		t.Fatal("pull reference missing")
	}

	linked, err := s.ListIssuesReferencingPullRequest(ctx, pull.ID)
	require.NoError(t, err)
	if len(linked) != 1 || linked[0].ID != issue.ID {
		t.Fatalf("got %d linked issues, want the referencing issue", len(linked))
	}
}

func TestUpsertIssueReferenceIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := seedOrg(t, s, 100, "acme", installed(1))
	repo := seedRepo(t, s, org, 10, "widgets")
	issue := seedIssue(t, s, org, repo, 1000, 1)

	ref := &types.IssueReference{
		IssueID:       issue.ID,
		ReferenceType: types.ReferenceExternalCommit,
		ExternalID:    "abc123",
	}
	_, err := s.UpsertIssueReference(ctx, ref)
	require.NoError(t, err)
	_, err = s.UpsertIssueReference(ctx, ref)
	require.NoError(t, err)

	refs, err := s.ListIssueReferences(ctx, issue.ID)
	require.NoError(t, err)
	if len(refs) != 1 {
		t.Fatalf("got %d references, want 1", len(refs))
	}
}

func TestUpdateRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := seedOrg(t, s, 100, "acme", installed(1))
	repo := seedRepo(t, s, org, 10, "widgets")

	name := "gadgets"
	archived := true
	require.NoError(t, s.UpdateRepository(ctx, repo.ID, storage.RepositoryUpdate{
		Name:       &name,
		IsArchived: &archived,
	}))

	got, err := s.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	if got.Name != "gadgets" || !got.IsArchived {
		t.Errorf("got name=%q archived=%v, want gadgets/true", got.Name, got.IsArchived)
	}
	if got.IsPrivate {
		t.Error("untouched field changed")
	}

	err = s.UpdateRepository(ctx, "no-such-id", storage.RepositoryUpdate{Name: &name})
	require.ErrorIs(t, err, storage.ErrNotFound)
}
