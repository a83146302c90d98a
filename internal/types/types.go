// Package types defines the core entities of the funding backend: organizations,
// repositories, issues, pull requests, and the reference/dependency edges that
// drive issue status derivation.
package types

import (
	"encoding/json"
	"time"
)

// Platform identifies the code-hosting platform an entity came from.
type Platform string

const (
	PlatformGitHub Platform = "github"
)

// Valid reports whether the platform is a known value.
func (p Platform) Valid() bool {
	return p == PlatformGitHub
}

// IssueState mirrors the platform's open/closed issue state.
type IssueState string

const (
	IssueStateOpen   IssueState = "open"
	IssueStateClosed IssueState = "closed"
)

// ReferenceType classifies the evidence an IssueReference records.
type ReferenceType string

const (
	// ReferencePullRequest links the issue to a pull request row we have synced.
	ReferencePullRequest ReferenceType = "pull_request"
	// ReferenceExternalPullRequest is a mention from a pull request that lives
	// outside the synced set (for example in a fork or an uninstalled repo).
	ReferenceExternalPullRequest ReferenceType = "external_github_pull_request"
	// ReferenceExternalCommit is a commit that mentioned the issue.
	ReferenceExternalCommit ReferenceType = "external_github_commit"
)

// Valid reports whether the reference type is a known value.
func (t ReferenceType) Valid() bool {
	switch t {
	case ReferencePullRequest, ReferenceExternalPullRequest, ReferenceExternalCommit:
		return true
	}
	return false
}

// Organization is a platform organization (or user account) that the app is,
// or has been, installed on. InstallationID is nil until the app is installed.
type Organization struct {
	ID             string     `json:"id"`
	Platform       Platform   `json:"platform"`
	ExternalID     int64      `json:"external_id"`
	Name           string     `json:"name"`
	AvatarURL      string     `json:"avatar_url,omitempty"`
	IsPersonal     bool       `json:"is_personal,omitempty"`
	InstallationID *int64     `json:"installation_id,omitempty"`
	InstallationCreatedAt   *time.Time `json:"installation_created_at,omitempty"`
	InstallationSuspendedAt *time.Time `json:"installation_suspended_at,omitempty"`
	InstallationSuspendedBy *int64     `json:"installation_suspended_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ModifiedAt     time.Time  `json:"modified_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Installed reports whether the app is currently installed and not suspended.
func (o *Organization) Installed() bool {
	return o.InstallationID != nil && o.InstallationSuspendedAt == nil && o.DeletedAt == nil
}

// Repository belongs to exactly one Organization.
type Repository struct {
	ID             string     `json:"id"`
	Platform       Platform   `json:"platform"`
	ExternalID     int64      `json:"external_id"`
	OrganizationID string     `json:"organization_id"`
	Name           string     `json:"name"`
	IsPrivate      bool       `json:"is_private"`
	IsArchived     bool       `json:"is_archived,omitempty"`
	IsDisabled     bool       `json:"is_disabled,omitempty"`
	// PledgeBadgeAutoEmbed embeds the funding badge on every new issue; when
	// set, label-triggered badge removal is suppressed.
	PledgeBadgeAutoEmbed bool       `json:"pledge_badge_auto_embed,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	ModifiedAt           time.Time  `json:"modified_at"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty"`
}

// Issue is a platform issue tracked for funding. Assignee, Assignees and
// Labels are stored as the platform's JSON, opaque to the pipeline except for
// funding-label detection.
type Issue struct {
	ID             string          `json:"id"`
	Platform       Platform        `json:"platform"`
	ExternalID     int64           `json:"external_id"`
	OrganizationID string          `json:"organization_id"`
	RepositoryID   string          `json:"repository_id"`
	Number         int             `json:"number"`
	Title          string          `json:"title"`
	Body           string          `json:"body,omitempty"`
	State          IssueState      `json:"state"`
	IssueCreatedAt  time.Time       `json:"issue_created_at"`
	IssueModifiedAt *time.Time      `json:"issue_modified_at,omitempty"`
	IssueClosedAt   *time.Time      `json:"issue_closed_at,omitempty"`
	Assignee        json.RawMessage `json:"assignee,omitempty"`
	Assignees       json.RawMessage `json:"assignees,omitempty"`
	Labels          json.RawMessage `json:"labels,omitempty"`
	FundingGoal     *int64          `json:"funding_goal,omitempty"` // smallest currency unit

	HasPledgeBadgeLabel          bool       `json:"has_pledge_badge_label,omitempty"`
	PledgeBadgeCurrentlyEmbedded bool       `json:"pledge_badge_currently_embedded,omitempty"`
	PledgeBadgeEmbeddedAt        *time.Time `json:"pledge_badge_embedded_at,omitempty"`

	// Derived flags, recomputed from the issue's reference set. See
	// service.Issues.UpdateReferenceState.
	HasInProgressRelationship  bool `json:"issue_has_in_progress_relationship,omitempty"`
	HasPullRequestRelationship bool `json:"issue_has_pull_request_relationship,omitempty"`

	ReferencesSyncedAt *time.Time `json:"issue_references_synced_at,omitempty"`

	ConfirmedSolvedAt *time.Time `json:"confirmed_solved_at,omitempty"`
	ConfirmedSolvedBy string     `json:"confirmed_solved_by,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ModifiedAt time.Time  `json:"modified_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// PullRequest is a platform pull request referenced by issues.
type PullRequest struct {
	ID             string     `json:"id"`
	Platform       Platform   `json:"platform"`
	ExternalID     int64      `json:"external_id"`
	OrganizationID string     `json:"organization_id"`
	RepositoryID   string     `json:"repository_id"`
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	State          string     `json:"state"`
	IsDraft        bool       `json:"is_draft"`
	IsMerged       bool       `json:"is_merged,omitempty"`
	MergedAt       *time.Time `json:"merged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ModifiedAt     time.Time  `json:"modified_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// IssueReference is evidence that an issue is being worked on: a link to a
// synced pull request, or an external PR/commit mention. ExternalID is the
// stable key of the source (pull request external ID or commit SHA), making
// repeated syncs idempotent.
type IssueReference struct {
	IssueID       string        `json:"issue_id"`
	ReferenceType ReferenceType `json:"reference_type"`
	ExternalID    string        `json:"external_id"`
	PullRequestID *string       `json:"pull_request_id,omitempty"`
	// PullRequest is populated by reads that join the linked pull request.
	PullRequest *PullRequest    `json:"pull_request,omitempty"`
	Source      json.RawMessage `json:"external_source,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ModifiedAt  time.Time       `json:"modified_at"`
}

// IssueDependency records that a dependent issue's body references an issue in
// a different organization. OrganizationID and RepositoryID are those of the
// dependent issue.
type IssueDependency struct {
	OrganizationID    string    `json:"organization_id"`
	RepositoryID      string    `json:"repository_id"`
	DependentIssueID  string    `json:"dependent_issue_id"`
	DependencyIssueID string    `json:"dependency_issue_id"`
	CreatedAt         time.Time `json:"created_at"`
	ModifiedAt        time.Time `json:"modified_at"`
}
