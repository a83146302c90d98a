package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/0xsirsaif/polar/internal/types"
)

var issueReferenceUpsert = upsertSpec{
	table: "issue_references",
	columns: []string{
		"issue_id", "reference_type", "external_id", "pull_request_id", "external_source",
		"created_at", "modified_at",
	},
	conflict: []string{"issue_id", "reference_type", "external_id"},
	mutable:  []string{"pull_request_id", "external_source", "modified_at"},
}

// UpsertIssueReference records evidence idempotently: re-syncing the same
// source updates the link and source blob, never duplicates the row.
func (s *Store) UpsertIssueReference(ctx context.Context, ref *types.IssueReference) (*types.IssueReference, error) {
	now := time.Now().UTC()

	var pullRequestID any
	if ref.PullRequestID != nil {
		pullRequestID = *ref.PullRequestID
	}

	var created scanTime
	err := s.db.QueryRowContext(ctx, issueReferenceUpsert.sql("created_at"),
		ref.IssueID, ref.ReferenceType, ref.ExternalID, pullRequestID, nullBytes(ref.Source),
		fmtTime(now), fmtTime(now),
	).Scan(&created)
	if err != nil {
		return nil, fmt.Errorf("upserting reference %s/%s on issue %s: %w",
			ref.ReferenceType, ref.ExternalID, ref.IssueID, err)
	}

	out := *ref
	out.CreatedAt = created.t
	out.ModifiedAt = now
	return &out, nil
}

// ListIssuesReferencingPullRequest returns the non-deleted issues whose
// reference set links the pull request.
func (s *Store) ListIssuesReferencingPullRequest(ctx context.Context, pullRequestID string) ([]*types.Issue, error) {
	return s.listIssues(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE deleted_at IS NULL AND id IN (
			SELECT issue_id FROM issue_references WHERE pull_request_id = ?
		 )
		 ORDER BY number`, pullRequestID)
}

// ListIssueReferences returns the issue's references with any linked pull
// request populated.
func (s *Store) ListIssueReferences(ctx context.Context, issueID string) ([]*types.IssueReference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.issue_id, r.reference_type, r.external_id, r.pull_request_id, r.external_source,
		        r.created_at, r.modified_at,
		        p.id, p.platform, p.external_id, p.organization_id, p.repository_id, p.number,
		        p.title, p.state, p.is_draft, p.is_merged, p.merged_at,
		        p.created_at, p.modified_at, p.deleted_at
		 FROM issue_references r
		 LEFT JOIN pull_requests p ON p.id = r.pull_request_id
		 WHERE r.issue_id = ?
		 ORDER BY r.created_at, r.external_id`, issueID)
	if err != nil {
		return nil, fmt.Errorf("listing references for issue %s: %w", issueID, err)
	}
	defer rows.Close()

	var refs []*types.IssueReference
	for rows.Next() {
		var (
			ref               types.IssueReference
			pullRequestID     sql.NullString
			source            sql.NullString
			created, modified scanTime

			pID, pOrgID, pRepoID, pTitle, pState sql.NullString
			pPlatform                            sql.NullString
			pExternalID, pNumber                 sql.NullInt64
			pDraft, pMerged                      sql.NullBool
			pMergedAt, pDeleted                  nullTime
			pCreated, pModified                  nullTime
		)
		err := rows.Scan(
			&ref.IssueID, &ref.ReferenceType, &ref.ExternalID, &pullRequestID, &source,
			&created, &modified,
			&pID, &pPlatform, &pExternalID, &pOrgID, &pRepoID, &pNumber,
			&pTitle, &pState, &pDraft, &pMerged, &pMergedAt,
			&pCreated, &pModified, &pDeleted,
		)
		if err != nil {
			return nil, err
		}
		if pullRequestID.Valid {
			id := pullRequestID.String
			ref.PullRequestID = &id
		}
		if source.Valid {
			ref.Source = []byte(source.String)
		}
		ref.CreatedAt = created.t
		ref.ModifiedAt = modified.t

		if pID.Valid {
			pull := &types.PullRequest{
				ID:             pID.String,
				Platform:       types.Platform(pPlatform.String),
				ExternalID:     pExternalID.Int64,
				OrganizationID: pOrgID.String,
				RepositoryID:   pRepoID.String,
				Number:         int(pNumber.Int64),
				Title:          pTitle.String,
				State:          pState.String,
				IsDraft:        pDraft.Bool,
				IsMerged:       pMerged.Bool,
				MergedAt:       pMergedAt.t,
				DeletedAt:      pDeleted.t,
			}
			if pCreated.t != nil {
				pull.CreatedAt = *pCreated.t
			}
			if pModified.t != nil {
				pull.ModifiedAt = *pModified.t
			}
			ref.PullRequest = pull
		}
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}
