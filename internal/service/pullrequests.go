package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v68/github"

	"github.com/0xsirsaif/polar/internal/githubapi"
	"github.com/0xsirsaif/polar/internal/hooks"
	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
)

// PullRequests stores platform pull requests.
type PullRequests struct {
	store  storage.Store
	logger *slog.Logger

	// Upserted fires after a pull request row is created or updated, letting
	// the bootstrap wire reference-state recomputation for issues that link to
	// the pull request.
	Upserted hooks.Hook[*types.PullRequest]
}

func NewPullRequests(store storage.Store, logger *slog.Logger) *PullRequests {
	return &PullRequests{store: store, logger: logger}
}

// Store upserts one pull request from a platform payload and fires the
// Upserted hook.
func (s *PullRequests) Store(ctx context.Context, org *types.Organization, repo *types.Repository, pull *github.PullRequest) (*types.PullRequest, error) {
	out, err := s.store.UpsertPullRequests(ctx, []*types.PullRequest{pullRequestFromGitHub(org, repo, pull)})
	if err != nil {
		return nil, fmt.Errorf("storing pull request %s/%s#%d: %w", org.Name, repo.Name, pull.GetNumber(), err)
	}

	stored := out[0]
	if err := s.Upserted.Call(ctx, stored); err != nil {
		s.logger.Error("pullrequests.upserted_hook_failed", "pull_request_id", stored.ID, "err", err)
	}
	return stored, nil
}

// Sync fetches a pull request from the API and stores it. Used when a
// reference points at a pull request no webhook has delivered yet.
func (s *PullRequests) Sync(ctx context.Context, client githubapi.Client, org *types.Organization, repo *types.Repository, number int) (*types.PullRequest, error) {
	fetched, err := client.GetPullRequest(ctx, org.Name, repo.Name, number)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request %s/%s#%d: %w", org.Name, repo.Name, number, err)
	}
	return s.Store(ctx, org, repo, fetched)
}

// GetByExternalID resolves a platform pull request ID to our row.
func (s *PullRequests) GetByExternalID(ctx context.Context, externalID int64) (*types.PullRequest, error) {
	return s.store.GetPullRequestByExternalID(ctx, types.PlatformGitHub, externalID)
}
