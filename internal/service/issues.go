package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-github/v68/github"

	"github.com/0xsirsaif/polar/internal/githubapi"
	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
)

// Issues stores platform issues and derives their relationship status flags.
type Issues struct {
	store      storage.Store
	logger     *slog.Logger
	badgeLabel string
}

func NewIssues(store storage.Store, logger *slog.Logger, badgeLabel string) *Issues {
	return &Issues{store: store, logger: logger, badgeLabel: badgeLabel}
}

// Store upserts one issue from a platform payload.
func (s *Issues) Store(ctx context.Context, org *types.Organization, repo *types.Repository, issue *github.Issue) (*types.Issue, error) {
	out, err := s.StoreMany(ctx, org, repo, []*github.Issue{issue})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// StoreMany upserts a batch of issues from platform payloads. Pull requests
// masquerading as issues in the payload are skipped; the returned slice holds
// only persisted issues.
func (s *Issues) StoreMany(ctx context.Context, org *types.Organization, repo *types.Repository, issues []*github.Issue) ([]*types.Issue, error) {
	records := make([]*types.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		records = append(records, issueFromGitHub(org, repo, issue, s.badgeLabel))
	}
	if len(records) == 0 {
		return nil, nil
	}

	out, err := s.store.UpsertIssues(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("storing issues for %s/%s: %w", org.Name, repo.Name, err)
	}
	return out, nil
}

// Sync refreshes one issue from the API. Used by the crawl sweep for issues
// whose webhook-delivered state has gone stale.
func (s *Issues) Sync(ctx context.Context, client githubapi.Client, org *types.Organization, repo *types.Repository, issue *types.Issue) (*types.Issue, error) {
	fetched, err := client.GetIssue(ctx, org.Name, repo.Name, issue.Number)
	if err != nil {
		return nil, fmt.Errorf("fetching issue %s/%s#%d: %w", org.Name, repo.Name, issue.Number, err)
	}
	return s.Store(ctx, org, repo, fetched)
}

// UpdateReferenceState recomputes the issue's derived flags from its current
// reference set and persists both in one write.
//
// A reference with a linked non-draft pull request proves a fix is up for
// review; any other reference (draft PR, external PR mention, commit) proves
// work in progress. The flags are independent: one reference set can assert
// both.
func (s *Issues) UpdateReferenceState(ctx context.Context, issue *types.Issue) error {
	refs, err := s.store.ListIssueReferences(ctx, issue.ID)
	if err != nil {
		return fmt.Errorf("listing references for issue %s: %w", issue.ID, err)
	}

	var inProgress, pullRequest bool
	for _, ref := range refs {
		if ref.PullRequest != nil && !ref.PullRequest.IsDraft {
			pullRequest = true
		} else {
			inProgress = true
		}
	}

	if err := s.store.SetIssueReferenceState(ctx, issue.ID, inProgress, pullRequest); err != nil {
		return fmt.Errorf("updating reference state for issue %s: %w", issue.ID, err)
	}

	if inProgress != issue.HasInProgressRelationship || pullRequest != issue.HasPullRequestRelationship {
		s.logger.Info("issues.reference_state_changed",
			"issue_id", issue.ID,
			"in_progress", inProgress,
			"pull_request", pullRequest)
	}
	return nil
}

// SetLabels records the issue's labels and recomputes the funding-label flag.
func (s *Issues) SetLabels(ctx context.Context, issue *types.Issue, labels []*github.Label) (*types.Issue, error) {
	hasBadgeLabel := hasLabel(labels, s.badgeLabel)
	if err := s.store.SetIssueLabels(ctx, issue.ID, marshalOpaque(labels), hasBadgeLabel); err != nil {
		return nil, fmt.Errorf("setting labels for issue %s: %w", issue.ID, err)
	}
	issue.Labels = marshalOpaque(labels)
	issue.HasPledgeBadgeLabel = hasBadgeLabel
	return issue, nil
}

// SetAssignees records the issue's assignee fields.
func (s *Issues) SetAssignees(ctx context.Context, issue *types.Issue, ghIssue *github.Issue) error {
	var modifiedAt *time.Time
	if updated := ghIssue.GetUpdatedAt(); !updated.IsZero() {
		modifiedAt = timePtr(updated.Time)
	}
	return s.store.SetIssueAssignees(ctx, issue.ID,
		marshalOpaque(ghIssue.Assignee), marshalOpaque(ghIssue.Assignees), modifiedAt)
}

// MarkConfirmedSolved records who confirmed the issue solved. The first
// confirmation wins; later calls are no-ops and report false.
func (s *Issues) MarkConfirmedSolved(ctx context.Context, issueID, byUserID string) (bool, error) {
	won, err := s.store.MarkIssueConfirmedSolved(ctx, issueID, byUserID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("confirming issue %s solved: %w", issueID, err)
	}
	if won {
		s.logger.Info("issues.confirmed_solved", "issue_id", issueID, "by", byUserID)
	}
	return won, nil
}

// Remove soft-deletes the issue. The final payload state is recorded first so
// the deleted row still reflects what the issue looked like when it vanished.
func (s *Issues) Remove(ctx context.Context, org *types.Organization, repo *types.Repository, ghIssue *github.Issue) error {
	issue, err := s.Store(ctx, org, repo, ghIssue)
	if err != nil {
		return err
	}
	if issue == nil {
		return nil
	}
	if err := s.store.SoftDeleteIssue(ctx, issue.ID); err != nil {
		return fmt.Errorf("removing issue %s: %w", issue.ID, err)
	}
	s.logger.Info("issues.removed", "issue_id", issue.ID)
	return nil
}

// GetByExternalID resolves a webhook payload's issue to our row.
func (s *Issues) GetByExternalID(ctx context.Context, externalID int64) (*types.Issue, error) {
	return s.store.GetIssueByExternalID(ctx, types.PlatformGitHub, externalID)
}
