package service

import (
	"context"
	"testing"

	"github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/require"

	"github.com/0xsirsaif/polar/internal/types"
)

// refSpec seeds one reference for the derivation table below.
type refSpec struct {
	kind  types.ReferenceType
	draft bool // for pull_request references
}

func TestUpdateReferenceState(t *testing.T) {
	cases := []struct {
		name           string
		refs           []refSpec
		wantInProgress bool
		wantPull       bool
	}{
		{
			name: "no references",
		},
		{
			name:           "draft pull request only",
			refs:           []refSpec{{kind: types.ReferencePullRequest, draft: true}},
			wantInProgress: true,
		},
		{
			name:     "ready pull request only",
			refs:     []refSpec{{kind: types.ReferencePullRequest}},
			wantPull: true,
		},
		{
			name:           "commit only",
			refs:           []refSpec{{kind: types.ReferenceExternalCommit}},
			wantInProgress: true,
		},
		{
			name:           "external pull request only",
			refs:           []refSpec{{kind: types.ReferenceExternalPullRequest}},
			wantInProgress: true,
		},
		{
			name: "draft and ready pull requests",
			refs: []refSpec{
				{kind: types.ReferencePullRequest, draft: true},
				{kind: types.ReferencePullRequest},
			},
			wantInProgress: true,
			wantPull:       true,
		},
		{
			name: "ready pull request and commit",
			refs: []refSpec{
				{kind: types.ReferencePullRequest},
				{kind: types.ReferenceExternalCommit},
			},
			wantInProgress: true,
			wantPull:       true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := testStore(t)
			svc := NewIssues(store, testLogger(), "polar")

			org := seedOrg(t, store, 100, "acme")
			repo := seedRepo(t, store, org, 10, "widgets")
			issue := seedIssue(t, store, org, repo, 1000, 1, "")

			for i, spec := range tc.refs {
				ref := &types.IssueReference{
					IssueID:       issue.ID,
					ReferenceType: spec.kind,
					ExternalID:    string(rune('a' + i)),
				}
				if spec.kind == types.ReferencePullRequest {
					pull := seedPull(t, store, org, repo, int64(5000+i), 50+i, spec.draft)
					ref.PullRequestID = &pull.ID
				}
				_, err := store.UpsertIssueReference(ctx, ref)
				require.NoError(t, err)
			}

			// Reconciliation is idempotent; running it twice must not flip
			// anything.
			for i := 0; i < 2; i++ {
				require.NoError(t, svc.UpdateReferenceState(ctx, issue))

				got, err := store.GetIssue(ctx, issue.ID)
				require.NoError(t, err)
				if got.HasInProgressRelationship != tc.wantInProgress {
					t.Errorf("run %d: got in_progress=%v, want %v", i, got.HasInProgressRelationship, tc.wantInProgress)
				}
				if got.HasPullRequestRelationship != tc.wantPull {
					t.Errorf("run %d: got pull_request=%v, want %v", i, got.HasPullRequestRelationship, tc.wantPull)
				}
			}
		})
	}
}

func TestUpdateReferenceStateFollowsDraftFlip(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := NewIssues(store, testLogger(), "polar")

	org := seedOrg(t, store, 100, "acme")
	repo := seedRepo(t, store, org, 10, "widgets")
	issue := seedIssue(t, store, org, repo, 1000, 1, "")
	pull := seedPull(t, store, org, repo, 5000, 50, true)

	_, err := store.UpsertIssueReference(ctx, &types.IssueReference{
		IssueID:       issue.ID,
		ReferenceType: types.ReferencePullRequest,
		ExternalID:    "5000",
		PullRequestID: &pull.ID,
	})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateReferenceState(ctx, issue))
	got, err := store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	if !got.HasInProgressRelationship || got.HasPullRequestRelationship {
		t.Fatal("draft pull request should count as in progress only")
	}

	// The pull request leaves draft; a re-store plus reconciliation flips the
	// derived flags.
	pull.IsDraft = false
	_, err = store.UpsertPullRequests(ctx, []*types.PullRequest{pull})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateReferenceState(ctx, issue))
	got, err = store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	if !got.HasPullRequestRelationship {
		t.Fatal("ready pull request should set the pull_request flag")
	}
}

func TestStoreManySkipsPullRequestPayloads(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := NewIssues(store, testLogger(), "polar")

	org := seedOrg(t, store, 100, "acme")
	repo := seedRepo(t, store, org, 10, "widgets")

	out, err := svc.StoreMany(ctx, org, repo, []*github.Issue{
		{
			ID: github.Ptr(int64(1)), Number: github.Ptr(1), Title: github.Ptr("real issue"),
			State: github.Ptr("open"),
		},
		{
			ID: github.Ptr(int64(2)), Number: github.Ptr(2), Title: github.Ptr("actually a pull"),
			State:            github.Ptr("open"),
			PullRequestLinks: &github.PullRequestLinks{URL: github.Ptr("https://api.github.com/repos/acme/widgets/pulls/2")},
		},
	})
	require.NoError(t, err)
	if len(out) != 1 || out[0].Title != "real issue" {
		t.Fatalf("got %d stored issues, want only the real issue", len(out))
	}
}

func TestMarkConfirmedSolvedFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := NewIssues(store, testLogger(), "polar")

	org := seedOrg(t, store, 100, "acme")
	repo := seedRepo(t, store, org, 10, "widgets")
	issue := seedIssue(t, store, org, repo, 1000, 1, "")

	won, err := svc.MarkConfirmedSolved(ctx, issue.ID, "user-a")
	require.NoError(t, err)
	require.True(t, won)

	won, err = svc.MarkConfirmedSolved(ctx, issue.ID, "user-b")
	require.NoError(t, err)
	require.False(t, won)
}

func TestSetLabelsDetectsBadgeLabel(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := NewIssues(store, testLogger(), "polar")

	org := seedOrg(t, store, 100, "acme")
	repo := seedRepo(t, store, org, 10, "widgets")
	issue := seedIssue(t, store, org, repo, 1000, 1, "")

	issue, err := svc.SetLabels(ctx, issue, []*github.Label{
		{Name: github.Ptr("bug")},
		{Name: github.Ptr("polar")},
	})
	require.NoError(t, err)
	require.True(t, issue.HasPledgeBadgeLabel)

	issue, err = svc.SetLabels(ctx, issue, []*github.Label{{Name: github.Ptr("bug")}})
	require.NoError(t, err)
	require.False(t, issue.HasPledgeBadgeLabel)

	got, err := store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.False(t, got.HasPledgeBadgeLabel)
}
