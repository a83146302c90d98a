package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-github/v68/github"

	"github.com/0xsirsaif/polar/internal/hooks"
	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
)

// Organizations handles app installation lifecycle for organizations.
type Organizations struct {
	store  storage.Store
	logger *slog.Logger

	// Upserted fires after an organization row is created or updated from an
	// installation event. Subscribers are registered at bootstrap, for example
	// to refresh the installing user's admin-organization memberships.
	Upserted hooks.Hook[*types.Organization]
}

func NewOrganizations(store storage.Store, logger *slog.Logger) *Organizations {
	return &Organizations{store: store, logger: logger}
}

// UpdateOrCreateFromInstallation records the installation on the organization,
// reviving a previously soft-deleted row if the app was reinstalled, and fires
// the Upserted hook.
func (s *Organizations) UpdateOrCreateFromInstallation(ctx context.Context, installation *github.Installation) (*types.Organization, error) {
	if installation.GetAccount() == nil {
		return nil, fmt.Errorf("installation %d has no account", installation.GetID())
	}

	org, err := s.store.UpsertOrganization(ctx, organizationFromInstallation(installation))
	if err != nil {
		return nil, fmt.Errorf("upserting organization for installation %d: %w", installation.GetID(), err)
	}

	s.logger.Info("organizations.installed",
		"organization", org.Name,
		"installation_id", installation.GetID())

	if err := s.Upserted.Call(ctx, org); err != nil {
		// Hook subscribers are side effects; the installation itself succeeded.
		s.logger.Error("organizations.upserted_hook_failed", "organization", org.Name, "err", err)
	}
	return org, nil
}

// RemoveInstallation soft-deletes the organization after the app was
// uninstalled. Unknown installations are ignored; the deletion webhook can
// arrive for organizations we never finished syncing.
func (s *Organizations) RemoveInstallation(ctx context.Context, installation *github.Installation) error {
	account := installation.GetAccount()
	if account == nil {
		return nil
	}

	org, err := s.store.GetOrganizationByExternalID(ctx, types.PlatformGitHub, account.GetID())
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("organizations.remove_unknown", "installation_id", installation.GetID())
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.SoftDeleteOrganization(ctx, org.ID); err != nil {
		return fmt.Errorf("removing organization %s: %w", org.Name, err)
	}
	s.logger.Info("organizations.removed", "organization", org.Name)
	return nil
}

// Suspend marks the installation suspended. Sync sweeps skip suspended
// organizations until an unsuspend event arrives.
func (s *Organizations) Suspend(ctx context.Context, installationID int64, suspendedBy int64, suspendedAt time.Time) error {
	if err := s.store.SuspendOrganization(ctx, installationID, suspendedBy, suspendedAt); err != nil {
		return fmt.Errorf("suspending installation %d: %w", installationID, err)
	}
	s.logger.Info("organizations.suspended", "installation_id", installationID)
	return nil
}

// Unsuspend clears a previous suspension.
func (s *Organizations) Unsuspend(ctx context.Context, installationID int64) error {
	if err := s.store.UnsuspendOrganization(ctx, installationID); err != nil {
		return fmt.Errorf("unsuspending installation %d: %w", installationID, err)
	}
	s.logger.Info("organizations.unsuspended", "installation_id", installationID)
	return nil
}

// ListInstalled returns organizations with an active, unsuspended
// installation: the set the periodic sync sweeps iterate.
func (s *Organizations) ListInstalled(ctx context.Context) ([]*types.Organization, error) {
	return s.store.ListInstalledOrganizations(ctx)
}
