package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/0xsirsaif/polar/internal/githubapi"
	"github.com/0xsirsaif/polar/internal/reference"
	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
)

// Dependencies maintains cross-organization dependency edges parsed from
// issue bodies.
type Dependencies struct {
	store  storage.Store
	issues *Issues
	api    githubapi.Factory
	logger *slog.Logger
}

func NewDependencies(store storage.Store, issues *Issues, api githubapi.Factory, logger *slog.Logger) *Dependencies {
	return &Dependencies{store: store, issues: issues, api: api, logger: logger}
}

// SyncIssueDependencies parses the issue body for references to issues in
// other organizations, resolves each referenced issue through the API
// (creating organization, repository and issue rows as needed), and records a
// dependency edge. References that cannot name a foreign repository, or that
// point at the issue's own organization, are skipped. References to deleted or
// invisible issues are skipped rather than failed: a dangling mention is not
// an error.
func (s *Dependencies) SyncIssueDependencies(ctx context.Context, org *types.Organization, repo *types.Repository, issue *types.Issue) error {
	if issue.Body == "" {
		return nil
	}
	if !org.Installed() {
		s.logger.Debug("dependencies.skip_uninstalled", "organization", org.Name)
		return nil
	}

	client, err := s.api.ForInstallation(*org.InstallationID)
	if err != nil {
		return fmt.Errorf("building client for %s: %w", org.Name, err)
	}

	for ref := range reference.ParseRefs(issue.Body) {
		if ref.Owner == "" || ref.Repo == "" || strings.EqualFold(ref.Owner, org.Name) {
			continue
		}

		dependency, err := s.resolveExternalIssue(ctx, client, ref)
		if errors.Is(err, githubapi.ErrNotFound) {
			s.logger.Debug("dependencies.skip_unresolvable",
				"issue_id", issue.ID,
				"owner", ref.Owner, "repo", ref.Repo, "number", ref.Number)
			continue
		}
		if err != nil {
			return err
		}
		if dependency.ID == issue.ID {
			continue
		}

		edge := &types.IssueDependency{
			OrganizationID:    org.ID,
			RepositoryID:      repo.ID,
			DependentIssueID:  issue.ID,
			DependencyIssueID: dependency.ID,
		}
		if err := s.store.CreateIssueDependency(ctx, edge); err != nil {
			return fmt.Errorf("recording dependency %s -> %s: %w", issue.ID, dependency.ID, err)
		}
	}
	return nil
}

// resolveExternalIssue ensures the referenced organization, repository and
// issue exist locally, fetching whatever is missing.
func (s *Dependencies) resolveExternalIssue(ctx context.Context, client githubapi.Client, ref reference.Ref) (*types.Issue, error) {
	ghRepo, err := client.GetRepository(ctx, ref.Owner, ref.Repo)
	if err != nil {
		return nil, err
	}

	org, err := s.store.UpsertOrganizationProfile(ctx, organizationFromOwner(ghRepo.GetOwner()))
	if err != nil {
		return nil, fmt.Errorf("upserting organization %s: %w", ref.Owner, err)
	}

	repos, err := s.store.UpsertRepositories(ctx, []*types.Repository{repositoryFromGitHub(org.ID, ghRepo)})
	if err != nil {
		return nil, fmt.Errorf("upserting repository %s/%s: %w", ref.Owner, ref.Repo, err)
	}
	repo := repos[0]

	ghIssue, err := client.GetIssue(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return nil, err
	}
	if ghIssue.IsPullRequest() {
		// Pull requests are not dependency targets.
		return nil, githubapi.ErrNotFound
	}
	return s.issues.Store(ctx, org, repo, ghIssue)
}
