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

var pullRequestUpsert = upsertSpec{
	table: "pull_requests",
	columns: []string{
		"id", "platform", "external_id", "organization_id", "repository_id", "number",
		"title", "state", "is_draft", "is_merged", "merged_at",
		"created_at", "modified_at",
	},
	conflict: []string{"platform", "external_id"},
	mutable: []string{
		"title", "state", "is_draft", "is_merged", "merged_at",
		"modified_at",
	},
}

const pullRequestColumns = `id, platform, external_id, organization_id, repository_id, number,
	title, state, is_draft, is_merged, merged_at, created_at, modified_at, deleted_at`

// UpsertPullRequests creates or updates pull requests keyed on
// (platform, external_id), returning persisted records in input order.
func (s *Store) UpsertPullRequests(ctx context.Context, pulls []*types.PullRequest) ([]*types.PullRequest, error) {
	if len(pulls) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	query := pullRequestUpsert.sql("id", "created_at")
	out := make([]*types.PullRequest, 0, len(pulls))
	for _, pull := range pulls {
		id := pull.ID
		if id == "" {
			id = uuid.NewString()
		}
		p := *pull
		var created scanTime
		err := tx.QueryRowContext(ctx, query,
			id, pull.Platform, pull.ExternalID, pull.OrganizationID, pull.RepositoryID, pull.Number,
			pull.Title, pull.State, pull.IsDraft, pull.IsMerged, fmtTimePtr(pull.MergedAt),
			fmtTime(now), fmtTime(now),
		).Scan(&p.ID, &created)
		if err != nil {
			return nil, fmt.Errorf("upserting pull request #%d: %w", pull.Number, err)
		}
		p.CreatedAt = created.t
		p.ModifiedAt = now
		out = append(out, &p)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing pull request upsert: %w", err)
	}
	return out, nil
}

func (s *Store) GetPullRequest(ctx context.Context, id string) (*types.PullRequest, error) {
	return s.getPullRequest(ctx, "id = ? AND deleted_at IS NULL", id)
}

func (s *Store) GetPullRequestByExternalID(ctx context.Context, platform types.Platform, externalID int64) (*types.PullRequest, error) {
	return s.getPullRequest(ctx, "platform = ? AND external_id = ? AND deleted_at IS NULL", platform, externalID)
}

func (s *Store) getPullRequest(ctx context.Context, where string, args ...any) (*types.PullRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pullRequestColumns+` FROM pull_requests WHERE `+where, args...)
	pull, err := scanPullRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return pull, err
}

func scanPullRequest(row rowScanner) (*types.PullRequest, error) {
	var (
		pull              types.PullRequest
		mergedAt, deleted nullTime
		created, modified scanTime
	)
	err := row.Scan(
		&pull.ID, &pull.Platform, &pull.ExternalID, &pull.OrganizationID, &pull.RepositoryID, &pull.Number,
		&pull.Title, &pull.State, &pull.IsDraft, &pull.IsMerged, &mergedAt,
		&created, &modified, &deleted,
	)
	if err != nil {
		return nil, err
	}
	pull.MergedAt = mergedAt.t
	pull.CreatedAt = created.t
	pull.ModifiedAt = modified.t
	pull.DeletedAt = deleted.t
	return &pull, nil
}
