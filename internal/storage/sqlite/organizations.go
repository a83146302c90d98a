package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
)

var organizationUpsert = upsertSpec{
	table: "organizations",
	columns: []string{
		"id", "platform", "external_id", "name", "avatar_url", "is_personal",
		"installation_id", "installation_created_at",
		"installation_suspended_at", "installation_suspended_by",
		"created_at", "modified_at", "deleted_at",
	},
	conflict: []string{"platform", "external_id"},
	// deleted_at is mutable here: a reinstall revives a previously removed
	// organization.
	mutable: []string{
		"name", "avatar_url", "is_personal",
		"installation_id", "installation_created_at",
		"installation_suspended_at", "installation_suspended_by",
		"modified_at", "deleted_at",
	},
}

// organizationProfileUpsert is the restricted variant for organizations seen
// only as owners of referenced repositories. Installation and deletion columns
// are not in the mutable set: a cross-organization reference must never wipe
// an existing installation or revive a removed organization.
var organizationProfileUpsert = upsertSpec{
	table:    "organizations",
	columns:  organizationUpsert.columns,
	conflict: organizationUpsert.conflict,
	mutable:  []string{"name", "avatar_url", "is_personal", "modified_at"},
}

const organizationColumns = `id, platform, external_id, name, avatar_url, is_personal,
	installation_id, installation_created_at, installation_suspended_at, installation_suspended_by,
	created_at, modified_at, deleted_at`

// UpsertOrganization creates or updates an organization keyed on
// (platform, external_id), installation state included.
func (s *Store) UpsertOrganization(ctx context.Context, org *types.Organization) (*types.Organization, error) {
	return s.upsertOrganization(ctx, organizationUpsert, org)
}

// UpsertOrganizationProfile creates or updates only the organization's public
// profile fields, leaving installation and deletion state untouched.
func (s *Store) UpsertOrganizationProfile(ctx context.Context, org *types.Organization) (*types.Organization, error) {
	return s.upsertOrganization(ctx, organizationProfileUpsert, org)
}

func (s *Store) upsertOrganization(ctx context.Context, spec upsertSpec, org *types.Organization) (*types.Organization, error) {
	now := time.Now().UTC()
	id := org.ID
	if id == "" {
		id = uuid.NewString()
	}

	row := s.db.QueryRowContext(ctx, spec.sql("id", "created_at"),
		id, org.Platform, org.ExternalID, org.Name, org.AvatarURL, org.IsPersonal,
		org.InstallationID, fmtTimePtr(org.InstallationCreatedAt),
		fmtTimePtr(org.InstallationSuspendedAt), org.InstallationSuspendedBy,
		fmtTime(now), fmtTime(now), fmtTimePtr(org.DeletedAt),
	)

	out := *org
	var created scanTime
	if err := row.Scan(&out.ID, &created); err != nil {
		return nil, fmt.Errorf("upserting organization %d: %w", org.ExternalID, err)
	}
	out.CreatedAt = created.t
	out.ModifiedAt = now
	return &out, nil
}

func (s *Store) GetOrganization(ctx context.Context, id string) (*types.Organization, error) {
	return s.getOrganization(ctx, "id = ? AND deleted_at IS NULL", id)
}

func (s *Store) GetOrganizationByExternalID(ctx context.Context, platform types.Platform, externalID int64) (*types.Organization, error) {
	return s.getOrganization(ctx, "platform = ? AND external_id = ? AND deleted_at IS NULL", platform, externalID)
}

func (s *Store) GetOrganizationByName(ctx context.Context, platform types.Platform, name string) (*types.Organization, error) {
	return s.getOrganization(ctx, "platform = ? AND name = ? AND deleted_at IS NULL", platform, name)
}

func (s *Store) getOrganization(ctx context.Context, where string, args ...any) (*types.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE `+where, args...)
	org, err := scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return org, err
}

// ListInstalledOrganizations returns organizations with an active, unsuspended
// installation.
func (s *Store) ListInstalledOrganizations(ctx context.Context) ([]*types.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations
		 WHERE installation_id IS NOT NULL
		   AND installation_suspended_at IS NULL
		   AND deleted_at IS NULL
		 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing installed organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*types.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// SuspendOrganization marks the installation suspended. Unknown installation
// IDs are a no-op: the suspend webhook can arrive for an organization we never
// finished installing.
func (s *Store) SuspendOrganization(ctx context.Context, installationID int64, suspendedBy int64, suspendedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE organizations
		 SET installation_suspended_at = ?, installation_suspended_by = ?, modified_at = ?
		 WHERE installation_id = ? AND deleted_at IS NULL`,
		fmtTime(suspendedAt), suspendedBy, fmtTime(time.Now().UTC()), installationID)
	if err != nil {
		return fmt.Errorf("suspending installation %d: %w", installationID, err)
	}
	return nil
}

func (s *Store) UnsuspendOrganization(ctx context.Context, installationID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE organizations
		 SET installation_suspended_at = NULL, installation_suspended_by = NULL, modified_at = ?
		 WHERE installation_id = ? AND deleted_at IS NULL`,
		fmtTime(time.Now().UTC()), installationID)
	if err != nil {
		return fmt.Errorf("unsuspending installation %d: %w", installationID, err)
	}
	return nil
}

func (s *Store) SoftDeleteOrganization(ctx context.Context, id string) error {
	now := fmtTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`UPDATE organizations SET deleted_at = ?, modified_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("soft-deleting organization %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (*types.Organization, error) {
	var (
		org         types.Organization
		installID   sql.NullInt64
		suspendedBy sql.NullInt64
		installedAt, suspendedAt, deletedAt nullTime
		created, modified                   scanTime
	)
	err := row.Scan(
		&org.ID, &org.Platform, &org.ExternalID, &org.Name, &org.AvatarURL, &org.IsPersonal,
		&installID, &installedAt, &suspendedAt, &suspendedBy,
		&created, &modified, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if installID.Valid {
		org.InstallationID = &installID.Int64
	}
	if suspendedBy.Valid {
		org.InstallationSuspendedBy = &suspendedBy.Int64
	}
	org.InstallationCreatedAt = installedAt.t
	org.InstallationSuspendedAt = suspendedAt.t
	org.DeletedAt = deletedAt.t
	org.CreatedAt = created.t
	org.ModifiedAt = modified.t
	return &org, nil
}
