// Package service implements the reconciliation pipeline's domain operations
// on top of the storage layer and the GitHub API capability: entity upserts
// from platform payloads, reference and dependency sync, status derivation,
// and badge embedding.
package service

import (
	"encoding/json"
	"time"

	"github.com/google/go-github/v68/github"

	"github.com/0xsirsaif/polar/internal/types"
)

// organizationFromInstallation maps an installation's account to an
// organization record.
func organizationFromInstallation(installation *github.Installation) *types.Organization {
	account := installation.GetAccount()
	installationID := installation.GetID()
	org := &types.Organization{
		Platform:       types.PlatformGitHub,
		ExternalID:     account.GetID(),
		Name:           account.GetLogin(),
		AvatarURL:      account.GetAvatarURL(),
		IsPersonal:     account.GetType() == "User",
		InstallationID: &installationID,
	}
	if created := installation.GetCreatedAt(); !created.IsZero() {
		t := created.Time.UTC()
		org.InstallationCreatedAt = &t
	}
	if installation.SuspendedAt != nil {
		t := installation.SuspendedAt.Time.UTC()
		org.InstallationSuspendedAt = &t
		if by := installation.GetSuspendedBy(); by != nil {
			id := by.GetID()
			org.InstallationSuspendedBy = &id
		}
	}
	return org
}

// organizationFromOwner maps a repository owner seen while resolving an
// external reference. No installation is recorded.
func organizationFromOwner(owner *github.User) *types.Organization {
	return &types.Organization{
		Platform:   types.PlatformGitHub,
		ExternalID: owner.GetID(),
		Name:       owner.GetLogin(),
		AvatarURL:  owner.GetAvatarURL(),
		IsPersonal: owner.GetType() == "User",
	}
}

func repositoryFromGitHub(organizationID string, repo *github.Repository) *types.Repository {
	return &types.Repository{
		Platform:       types.PlatformGitHub,
		ExternalID:     repo.GetID(),
		OrganizationID: organizationID,
		Name:           repo.GetName(),
		IsPrivate:      repo.GetPrivate(),
		IsArchived:     repo.GetArchived(),
		IsDisabled:     repo.GetDisabled(),
	}
}

// issueFromGitHub maps a platform issue payload. badgeLabel is the designated
// funding label; its presence sets HasPledgeBadgeLabel.
func issueFromGitHub(org *types.Organization, repo *types.Repository, issue *github.Issue, badgeLabel string) *types.Issue {
	out := &types.Issue{
		Platform:            types.PlatformGitHub,
		ExternalID:          issue.GetID(),
		OrganizationID:      org.ID,
		RepositoryID:        repo.ID,
		Number:              issue.GetNumber(),
		Title:               issue.GetTitle(),
		Body:                issue.GetBody(),
		State:               types.IssueState(issue.GetState()),
		IssueCreatedAt:      issue.GetCreatedAt().Time.UTC(),
		HasPledgeBadgeLabel: hasLabel(issue.Labels, badgeLabel),
	}
	if updated := issue.GetUpdatedAt(); !updated.IsZero() {
		t := updated.Time.UTC()
		out.IssueModifiedAt = &t
	}
	if closed := issue.GetClosedAt(); !closed.IsZero() {
		t := closed.Time.UTC()
		out.IssueClosedAt = &t
	}
	out.Assignee = marshalOpaque(issue.Assignee)
	out.Assignees = marshalOpaque(issue.Assignees)
	out.Labels = marshalOpaque(issue.Labels)
	return out
}

func pullRequestFromGitHub(org *types.Organization, repo *types.Repository, pull *github.PullRequest) *types.PullRequest {
	out := &types.PullRequest{
		Platform:       types.PlatformGitHub,
		ExternalID:     pull.GetID(),
		OrganizationID: org.ID,
		RepositoryID:   repo.ID,
		Number:         pull.GetNumber(),
		Title:          pull.GetTitle(),
		State:          pull.GetState(),
		IsDraft:        pull.GetDraft(),
		IsMerged:       pull.GetMerged(),
	}
	if merged := pull.GetMergedAt(); !merged.IsZero() {
		t := merged.Time.UTC()
		out.MergedAt = &t
	}
	return out
}

func hasLabel(labels []*github.Label, name string) bool {
	for _, label := range labels {
		if label.GetName() == name {
			return true
		}
	}
	return false
}

// marshalOpaque stores platform sub-objects as opaque JSON. Marshal failures
// cannot happen for go-github types; a nil input stays nil.
func marshalOpaque(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func timePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
