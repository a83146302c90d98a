// Package storage defines the persistence interface for the reconciliation
// pipeline.
//
// The concrete implementation lives in the sqlite sub-package. Consumers
// depend on the Store interface rather than the concrete type so that mocks
// can be substituted in tests.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/0xsirsaif/polar/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist, or exists
// only as a soft-deleted row and the caller did not ask for deleted rows.
var ErrNotFound = errors.New("not found")

// Store is the persistence surface for all pipeline entities.
//
// Every Upsert* method is a conflict-safe create-or-update against the
// entity's natural key: new rows are inserted, existing rows have only their
// mutable fields overwritten, and identity/creation fields are preserved.
// Upserts are safe under concurrent callers racing on the same key and return
// the persisted records in input order.
type Store interface {
	// Organizations
	UpsertOrganization(ctx context.Context, org *types.Organization) (*types.Organization, error)
	// UpsertOrganizationProfile creates or updates an organization from its
	// public owner profile only: name, avatar and the personal flag.
	// Installation and deletion state are never written, so resolving a
	// cross-organization reference cannot uninstall, unsuspend or revive an
	// organization already tracked through the installation path.
	UpsertOrganizationProfile(ctx context.Context, org *types.Organization) (*types.Organization, error)
	GetOrganization(ctx context.Context, id string) (*types.Organization, error)
	GetOrganizationByExternalID(ctx context.Context, platform types.Platform, externalID int64) (*types.Organization, error)
	GetOrganizationByName(ctx context.Context, platform types.Platform, name string) (*types.Organization, error)
	ListInstalledOrganizations(ctx context.Context) ([]*types.Organization, error)
	SuspendOrganization(ctx context.Context, installationID int64, suspendedBy int64, suspendedAt time.Time) error
	UnsuspendOrganization(ctx context.Context, installationID int64) error
	SoftDeleteOrganization(ctx context.Context, id string) error

	// Repositories
	UpsertRepositories(ctx context.Context, repos []*types.Repository) ([]*types.Repository, error)
	GetRepository(ctx context.Context, id string) (*types.Repository, error)
	GetRepositoryByExternalID(ctx context.Context, platform types.Platform, externalID int64) (*types.Repository, error)
	GetRepositoryByOrgAndName(ctx context.Context, organizationID, name string) (*types.Repository, error)
	UpdateRepository(ctx context.Context, id string, updates RepositoryUpdate) error
	SoftDeleteRepository(ctx context.Context, id string) error

	// Issues
	UpsertIssues(ctx context.Context, issues []*types.Issue) ([]*types.Issue, error)
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	GetIssueByExternalID(ctx context.Context, platform types.Platform, externalID int64) (*types.Issue, error)
	GetIssueByNumber(ctx context.Context, repositoryID string, number int) (*types.Issue, error)
	ListIssuesByRepository(ctx context.Context, repositoryID string) ([]*types.Issue, error)
	SetIssueAssignees(ctx context.Context, id string, assignee, assignees []byte, issueModifiedAt *time.Time) error
	SetIssueLabels(ctx context.Context, id string, labels []byte, hasPledgeBadgeLabel bool) error
	SetIssueReferenceState(ctx context.Context, id string, inProgress, pullRequest bool) error
	SetIssueBadgeEmbedded(ctx context.Context, id string, embedded bool, embeddedAt *time.Time) error
	SetIssueReferencesSyncedAt(ctx context.Context, id string, syncedAt time.Time) error
	// MarkIssueConfirmedSolved sets confirmed-solved metadata if and only if
	// it has never been set. Returns true when this call won the write.
	MarkIssueConfirmedSolved(ctx context.Context, id string, byUserID string, at time.Time) (bool, error)
	SoftDeleteIssue(ctx context.Context, id string) error
	// ListIssuesToCrawl returns non-deleted issues in the organization whose
	// issue_modified_at is older than the staleness window (or never set).
	ListIssuesToCrawl(ctx context.Context, organizationID string, olderThan time.Time, limit int) ([]*types.Issue, error)
	// ListIssuesToSyncReferences is the same selection keyed on
	// issue_references_synced_at.
	ListIssuesToSyncReferences(ctx context.Context, organizationID string, olderThan time.Time, limit int) ([]*types.Issue, error)

	// Pull requests
	UpsertPullRequests(ctx context.Context, pulls []*types.PullRequest) ([]*types.PullRequest, error)
	GetPullRequest(ctx context.Context, id string) (*types.PullRequest, error)
	GetPullRequestByExternalID(ctx context.Context, platform types.Platform, externalID int64) (*types.PullRequest, error)

	// Issue references
	UpsertIssueReference(ctx context.Context, ref *types.IssueReference) (*types.IssueReference, error)
	// ListIssueReferences returns the issue's references with any linked pull
	// request populated.
	ListIssueReferences(ctx context.Context, issueID string) ([]*types.IssueReference, error)
	// ListIssuesReferencingPullRequest returns the issues whose reference set
	// links the given pull request. Used to recompute derived flags after the
	// pull request changes.
	ListIssuesReferencingPullRequest(ctx context.Context, pullRequestID string) ([]*types.Issue, error)

	// Issue dependencies. CreateIssueDependency tolerates duplicate edges:
	// inserting an existing (dependent, dependency) pair is a no-op.
	CreateIssueDependency(ctx context.Context, dep *types.IssueDependency) error
	ListIssueDependencies(ctx context.Context, dependentIssueID string) ([]*types.IssueDependency, error)

	// Lifecycle
	Close() error
}

// RepositoryUpdate carries the mutable repository fields touched by repository
// webhooks. Nil fields are left unchanged.
type RepositoryUpdate struct {
	Name       *string
	IsPrivate  *bool
	IsArchived *bool
	AutoEmbed  *bool
}
