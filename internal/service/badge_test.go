package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBadgeEmbedAndRemove(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	badgeSvc := NewBadge(store, testLogger(), "https://polar.sh")

	org := seedOrg(t, store, 100, "acme")
	repo := seedRepo(t, store, org, 10, "widgets")
	issue := seedIssue(t, store, org, repo, 1000, 42, "Please fix this.")

	client := newFakeClient()
	require.NoError(t, badgeSvc.Embed(ctx, client, org, repo, issue))

	body := client.bodyUpdates[numberKey("acme", "widgets", 42)]
	if !strings.Contains(body, badgeMarkerStart) || !strings.Contains(body, badgeMarkerEnd) {
		t.Fatal("badge markers missing from updated body")
	}
	if !strings.HasPrefix(body, "Please fix this.") {
		t.Error("original body not preserved")
	}

	got, err := store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.True(t, got.PledgeBadgeCurrentlyEmbedded)
	require.NotNil(t, got.PledgeBadgeEmbeddedAt)

	// Embedding again is a no-op: no second body edit.
	delete(client.bodyUpdates, numberKey("acme", "widgets", 42))
	require.NoError(t, badgeSvc.Embed(ctx, client, org, repo, issue))
	if _, edited := client.bodyUpdates[numberKey("acme", "widgets", 42)]; edited {
		t.Fatal("idempotent embed edited the body again")
	}

	require.NoError(t, badgeSvc.Remove(ctx, client, org, repo, issue, false))
	body = client.bodyUpdates[numberKey("acme", "widgets", 42)]
	if strings.Contains(body, badgeMarkerStart) {
		t.Fatal("badge still present after removal")
	}
	if !strings.Contains(body, "Please fix this.") {
		t.Error("removal dropped the original body")
	}

	got, err = store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.False(t, got.PledgeBadgeCurrentlyEmbedded)
}

func TestBadgeRemoveSuppressedByAutoEmbed(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	badgeSvc := NewBadge(store, testLogger(), "https://polar.sh")

	org := seedOrg(t, store, 100, "acme")
	repo := seedRepo(t, store, org, 10, "widgets")
	repo.PledgeBadgeAutoEmbed = true
	issue := seedIssue(t, store, org, repo, 1000, 42, "body")

	client := newFakeClient()
	require.NoError(t, badgeSvc.Embed(ctx, client, org, repo, issue))

	// Label removal must not strip the badge on auto-embed repositories.
	require.NoError(t, badgeSvc.Remove(ctx, client, org, repo, issue, true))

	got, err := store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.True(t, got.PledgeBadgeCurrentlyEmbedded)
}

func TestStripBadge(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "no badge",
			body: "plain body",
			want: "plain body",
		},
		{
			name: "badge at end",
			body: "text\n\n" + badgeMarkerStart + "\nbadge\n" + badgeMarkerEnd,
			want: "text",
		},
		{
			name: "badge in middle",
			body: "above\n\n" + badgeMarkerStart + "\nbadge\n" + badgeMarkerEnd + "\n\nbelow",
			want: "above\n\nbelow",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripBadge(tc.body); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
