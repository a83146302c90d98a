package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v68/github"

	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
)

// Repositories handles repository membership of an installation.
type Repositories struct {
	store  storage.Store
	logger *slog.Logger
}

func NewRepositories(store storage.Store, logger *slog.Logger) *Repositories {
	return &Repositories{store: store, logger: logger}
}

// InstallForOrganization upserts the repositories granted to an installation.
// Called both on installation.created with the full repository list and on
// installation_repositories.added with the delta.
func (s *Repositories) InstallForOrganization(ctx context.Context, org *types.Organization, repos []*github.Repository) ([]*types.Repository, error) {
	if len(repos) == 0 {
		return nil, nil
	}

	records := make([]*types.Repository, 0, len(repos))
	for _, repo := range repos {
		records = append(records, repositoryFromGitHub(org.ID, repo))
	}

	out, err := s.store.UpsertRepositories(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("installing repositories for %s: %w", org.Name, err)
	}
	s.logger.Info("repositories.installed", "organization", org.Name, "count", len(out))
	return out, nil
}

// Remove soft-deletes a repository by its platform ID. Removal events for
// repositories we never synced are ignored.
func (s *Repositories) Remove(ctx context.Context, externalID int64) error {
	repo, err := s.store.GetRepositoryByExternalID(ctx, types.PlatformGitHub, externalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.SoftDeleteRepository(ctx, repo.ID); err != nil {
		return fmt.Errorf("removing repository %s: %w", repo.Name, err)
	}
	s.logger.Info("repositories.removed", "repository", repo.Name)
	return nil
}

// Rename records a repository rename.
func (s *Repositories) Rename(ctx context.Context, repo *types.Repository, name string) error {
	return s.store.UpdateRepository(ctx, repo.ID, storage.RepositoryUpdate{Name: &name})
}

// UpdateVisibility records a private/public flip from repository.edited or
// the public event.
func (s *Repositories) UpdateVisibility(ctx context.Context, repo *types.Repository, private bool) error {
	return s.store.UpdateRepository(ctx, repo.ID, storage.RepositoryUpdate{IsPrivate: &private})
}

// Archive marks the repository archived. Its issues stay tracked; archiving
// only flips the flag.
func (s *Repositories) Archive(ctx context.Context, repo *types.Repository) error {
	archived := true
	return s.store.UpdateRepository(ctx, repo.ID, storage.RepositoryUpdate{IsArchived: &archived})
}

// GetByExternalID resolves a webhook payload's repository to our row.
func (s *Repositories) GetByExternalID(ctx context.Context, externalID int64) (*types.Repository, error) {
	return s.store.GetRepositoryByExternalID(ctx, types.PlatformGitHub, externalID)
}
