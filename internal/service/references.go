package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"

	"github.com/0xsirsaif/polar/internal/githubapi"
	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
)

// References syncs issue references from the platform timeline: pull requests
// and commits that mention an issue. The reference set is what the status
// reconciler derives the issue's relationship flags from.
type References struct {
	store  storage.Store
	issues *Issues
	pulls  *PullRequests
	logger *slog.Logger
}

func NewReferences(store storage.Store, issues *Issues, pulls *PullRequests, logger *slog.Logger) *References {
	return &References{store: store, issues: issues, pulls: pulls, logger: logger}
}

// externalPullRequestSource is the opaque payload stored with references to
// pull requests outside the synced set.
type externalPullRequestSource struct {
	Owner      string `json:"organization_name"`
	Repository string `json:"repository_name"`
	Number     int    `json:"number"`
	Title      string `json:"title,omitempty"`
	State      string `json:"state,omitempty"`
	UserLogin  string `json:"user_login,omitempty"`
}

// externalCommitSource is the opaque payload stored with commit references.
type externalCommitSource struct {
	Owner      string `json:"organization_name,omitempty"`
	Repository string `json:"repository_name,omitempty"`
	SHA        string `json:"commit_id"`
}

// SyncIssueReferences walks the issue's timeline and upserts one reference per
// referencing pull request or commit, then recomputes the issue's relationship
// flags and stamps issue_references_synced_at.
func (s *References) SyncIssueReferences(ctx context.Context, client githubapi.Client, org *types.Organization, repo *types.Repository, issue *types.Issue) error {
	events, err := client.ListIssueTimeline(ctx, org.Name, repo.Name, issue.Number)
	if err != nil {
		return fmt.Errorf("listing timeline for %s/%s#%d: %w", org.Name, repo.Name, issue.Number, err)
	}

	for _, event := range events {
		var err error
		switch event.GetEvent() {
		case "cross-referenced":
			err = s.syncCrossReference(ctx, client, org, repo, issue, event)
		case "referenced":
			err = s.syncCommitReference(ctx, org, repo, issue, event)
		}
		if err != nil {
			return err
		}
	}

	if err := s.store.SetIssueReferencesSyncedAt(ctx, issue.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("stamping references sync for issue %s: %w", issue.ID, err)
	}
	return s.issues.UpdateReferenceState(ctx, issue)
}

// syncCrossReference handles a mention from another issue or pull request.
// Mentions from plain issues carry no work signal and are skipped. Pull
// requests in repositories we sync become first-class pull_request references;
// everything else (forks, uninstalled repositories) is recorded as an external
// pull request reference.
func (s *References) syncCrossReference(ctx context.Context, client githubapi.Client, org *types.Organization, repo *types.Repository, issue *types.Issue, event *github.Timeline) error {
	source := event.GetSource().GetIssue()
	if source == nil || !source.IsPullRequest() {
		return nil
	}

	sourceRepo := source.GetRepository()
	sourceOwner := sourceRepo.GetOwner().GetLogin()
	sourceName := sourceRepo.GetName()
	if sourceOwner == "" || sourceName == "" {
		return nil
	}

	if strings.EqualFold(sourceOwner, org.Name) {
		if err := s.syncInternalPullReference(ctx, client, org, issue, source, sourceName); err == nil {
			return nil
		} else if !errors.Is(err, githubapi.ErrNotFound) && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		// The pull request or its repository is not syncable after all (for
		// example access was revoked mid-flight). Record it externally below
		// so the evidence is not lost.
	}

	ref := &types.IssueReference{
		IssueID:       issue.ID,
		ReferenceType: types.ReferenceExternalPullRequest,
		ExternalID:    strconv.FormatInt(source.GetID(), 10),
		Source: marshalOpaque(externalPullRequestSource{
			Owner:      sourceOwner,
			Repository: sourceName,
			Number:     source.GetNumber(),
			Title:      source.GetTitle(),
			State:      source.GetState(),
			UserLogin:  source.GetUser().GetLogin(),
		}),
	}
	if _, err := s.store.UpsertIssueReference(ctx, ref); err != nil {
		return fmt.Errorf("storing external pull reference for issue %s: %w", issue.ID, err)
	}
	return nil
}

// syncInternalPullReference resolves a same-organization pull request mention
// to a synced pull request row and links the reference to it.
func (s *References) syncInternalPullReference(ctx context.Context, client githubapi.Client, org *types.Organization, issue *types.Issue, source *github.Issue, repoName string) error {
	sourceRepo, err := s.store.GetRepositoryByOrgAndName(ctx, org.ID, repoName)
	if err != nil {
		return err
	}

	pull, err := s.pulls.GetByExternalID(ctx, source.GetID())
	if errors.Is(err, storage.ErrNotFound) {
		// First sighting of this pull request; fetch it before linking.
		pull, err = s.pulls.Sync(ctx, client, org, sourceRepo, source.GetNumber())
	}
	if err != nil {
		return err
	}

	ref := &types.IssueReference{
		IssueID:       issue.ID,
		ReferenceType: types.ReferencePullRequest,
		ExternalID:    strconv.FormatInt(pull.ExternalID, 10),
		PullRequestID: &pull.ID,
	}
	if _, err := s.store.UpsertIssueReference(ctx, ref); err != nil {
		return fmt.Errorf("storing pull reference for issue %s: %w", issue.ID, err)
	}
	return nil
}

// syncCommitReference records a commit that mentioned the issue.
func (s *References) syncCommitReference(ctx context.Context, org *types.Organization, repo *types.Repository, issue *types.Issue, event *github.Timeline) error {
	sha := event.GetCommitID()
	if sha == "" {
		return nil
	}

	owner, name := splitCommitURL(event.GetCommitURL())
	if owner == "" {
		owner, name = org.Name, repo.Name
	}

	ref := &types.IssueReference{
		IssueID:       issue.ID,
		ReferenceType: types.ReferenceExternalCommit,
		ExternalID:    sha,
		Source:        marshalOpaque(externalCommitSource{Owner: owner, Repository: name, SHA: sha}),
	}
	if _, err := s.store.UpsertIssueReference(ctx, ref); err != nil {
		return fmt.Errorf("storing commit reference for issue %s: %w", issue.ID, err)
	}
	return nil
}

// SyncRepositoryReferences re-syncs references for every tracked issue in the
// repository. Fanned out when a pull request changes, since the platform does
// not tell us which issues it mentions.
func (s *References) SyncRepositoryReferences(ctx context.Context, client githubapi.Client, org *types.Organization, repo *types.Repository) error {
	issues, err := s.store.ListIssuesByRepository(ctx, repo.ID)
	if err != nil {
		return fmt.Errorf("listing issues of %s/%s: %w", org.Name, repo.Name, err)
	}

	for _, issue := range issues {
		if err := s.SyncIssueReferences(ctx, client, org, repo, issue); err != nil {
			return err
		}
	}
	s.logger.Debug("references.repository_synced", "repository", repo.Name, "issues", len(issues))
	return nil
}

// splitCommitURL extracts owner and repository from an API commit URL of the
// form https://api.github.com/repos/{owner}/{repo}/commits/{sha}.
func splitCommitURL(url string) (owner, repo string) {
	_, rest, ok := strings.Cut(url, "/repos/")
	if !ok {
		return "", ""
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 3 {
		return "", ""
	}
	return parts[0], parts[1]
}
