package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
)

var repositoryUpsert = upsertSpec{
	table: "repositories",
	columns: []string{
		"id", "platform", "external_id", "organization_id", "name",
		"is_private", "is_archived", "is_disabled",
		"created_at", "modified_at", "deleted_at",
	},
	conflict: []string{"platform", "external_id"},
	// pledge_badge_auto_embed is a user setting, never touched by sync.
	// deleted_at is mutable so a reinstall revives removed repositories.
	mutable: []string{
		"organization_id", "name", "is_private", "is_archived", "is_disabled",
		"modified_at", "deleted_at",
	},
}

const repositoryColumns = `id, platform, external_id, organization_id, name,
	is_private, is_archived, is_disabled, pledge_badge_auto_embed,
	created_at, modified_at, deleted_at`

// UpsertRepositories creates or updates repositories keyed on
// (platform, external_id), returning persisted records in input order.
func (s *Store) UpsertRepositories(ctx context.Context, repos []*types.Repository) ([]*types.Repository, error) {
	if len(repos) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	query := repositoryUpsert.sql("id", "created_at", "pledge_badge_auto_embed")
	out := make([]*types.Repository, 0, len(repos))
	for _, repo := range repos {
		id := repo.ID
		if id == "" {
			id = uuid.NewString()
		}
		r := *repo
		var created scanTime
		err := tx.QueryRowContext(ctx, query,
			id, repo.Platform, repo.ExternalID, repo.OrganizationID, repo.Name,
			repo.IsPrivate, repo.IsArchived, repo.IsDisabled,
			fmtTime(now), fmtTime(now), fmtTimePtr(repo.DeletedAt),
		).Scan(&r.ID, &created, &r.PledgeBadgeAutoEmbed)
		if err != nil {
			return nil, fmt.Errorf("upserting repository %s: %w", repo.Name, err)
		}
		r.CreatedAt = created.t
		r.ModifiedAt = now
		out = append(out, &r)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing repository upsert: %w", err)
	}
	return out, nil
}

func (s *Store) GetRepository(ctx context.Context, id string) (*types.Repository, error) {
	return s.getRepository(ctx, "id = ? AND deleted_at IS NULL", id)
}

func (s *Store) GetRepositoryByExternalID(ctx context.Context, platform types.Platform, externalID int64) (*types.Repository, error) {
	return s.getRepository(ctx, "platform = ? AND external_id = ? AND deleted_at IS NULL", platform, externalID)
}

func (s *Store) GetRepositoryByOrgAndName(ctx context.Context, organizationID, name string) (*types.Repository, error) {
	return s.getRepository(ctx, "organization_id = ? AND name = ? AND deleted_at IS NULL", organizationID, name)
}

func (s *Store) getRepository(ctx context.Context, where string, args ...any) (*types.Repository, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE `+where, args...)
	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return repo, err
}

// UpdateRepository applies the non-nil fields of updates to a single row.
func (s *Store) UpdateRepository(ctx context.Context, id string, updates storage.RepositoryUpdate) error {
	sets := []string{"modified_at = ?"}
	args := []any{fmtTime(time.Now().UTC())}

	if updates.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *updates.Name)
	}
	if updates.IsPrivate != nil {
		sets = append(sets, "is_private = ?")
		args = append(args, *updates.IsPrivate)
	}
	if updates.IsArchived != nil {
		sets = append(sets, "is_archived = ?")
		args = append(args, *updates.IsArchived)
	}
	if updates.AutoEmbed != nil {
		sets = append(sets, "pledge_badge_auto_embed = ?")
		args = append(args, *updates.AutoEmbed)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET `+strings.Join(sets, ", ")+` WHERE id = ? AND deleted_at IS NULL`, args...)
	if err != nil {
		return fmt.Errorf("updating repository %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeleteRepository(ctx context.Context, id string) error {
	now := fmtTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET deleted_at = ?, modified_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("soft-deleting repository %s: %w", id, err)
	}
	return nil
}

func scanRepository(row rowScanner) (*types.Repository, error) {
	var (
		repo              types.Repository
		created, modified scanTime
		deleted           nullTime
	)
	err := row.Scan(
		&repo.ID, &repo.Platform, &repo.ExternalID, &repo.OrganizationID, &repo.Name,
		&repo.IsPrivate, &repo.IsArchived, &repo.IsDisabled, &repo.PledgeBadgeAutoEmbed,
		&created, &modified, &deleted,
	)
	if err != nil {
		return nil, err
	}
	repo.CreatedAt = created.t
	repo.ModifiedAt = modified.t
	repo.DeletedAt = deleted.t
	return &repo, nil
}
