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

var issueUpsert = upsertSpec{
	table: "issues",
	columns: []string{
		"id", "platform", "external_id", "organization_id", "repository_id", "number",
		"title", "body", "state", "issue_created_at", "issue_modified_at", "issue_closed_at",
		"assignee", "assignees", "labels", "has_pledge_badge_label",
		"created_at", "modified_at",
	},
	conflict: []string{"platform", "external_id"},
	// Identity (org, repo, number), creation metadata, derived flags, badge
	// embed state, funding goal and confirmed-solved metadata are all
	// preserved across upserts; only platform-sourced fields are overwritten.
	mutable: []string{
		"title", "body", "state", "issue_modified_at", "issue_closed_at",
		"assignee", "assignees", "labels", "has_pledge_badge_label",
		"modified_at",
	},
}

const issueColumns = `id, platform, external_id, organization_id, repository_id, number,
	title, body, state, issue_created_at, issue_modified_at, issue_closed_at,
	assignee, assignees, labels, funding_goal,
	has_pledge_badge_label, pledge_badge_currently_embedded, pledge_badge_embedded_at,
	issue_has_in_progress_relationship, issue_has_pull_request_relationship,
	issue_references_synced_at, confirmed_solved_at, confirmed_solved_by,
	created_at, modified_at, deleted_at`

// UpsertIssues creates or updates issues keyed on (platform, external_id),
// returning the persisted records (including preserved fields such as badge
// state and derived flags) in input order.
func (s *Store) UpsertIssues(ctx context.Context, issues []*types.Issue) ([]*types.Issue, error) {
	if len(issues) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	query := issueUpsert.sql(issueColumns)
	out := make([]*types.Issue, 0, len(issues))
	for _, issue := range issues {
		id := issue.ID
		if id == "" {
			id = uuid.NewString()
		}
		row := tx.QueryRowContext(ctx, query,
			id, issue.Platform, issue.ExternalID, issue.OrganizationID, issue.RepositoryID, issue.Number,
			issue.Title, issue.Body, issue.State,
			fmtTime(issue.IssueCreatedAt), fmtTimePtr(issue.IssueModifiedAt), fmtTimePtr(issue.IssueClosedAt),
			nullBytes(issue.Assignee), nullBytes(issue.Assignees), nullBytes(issue.Labels),
			issue.HasPledgeBadgeLabel,
			fmtTime(now), fmtTime(now),
		)
		persisted, err := scanIssue(row)
		if err != nil {
			return nil, fmt.Errorf("upserting issue #%d: %w", issue.Number, err)
		}
		out = append(out, persisted)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing issue upsert: %w", err)
	}
	return out, nil
}

func (s *Store) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	return s.getIssue(ctx, "id = ? AND deleted_at IS NULL", id)
}

func (s *Store) GetIssueByExternalID(ctx context.Context, platform types.Platform, externalID int64) (*types.Issue, error) {
	return s.getIssue(ctx, "platform = ? AND external_id = ? AND deleted_at IS NULL", platform, externalID)
}

func (s *Store) GetIssueByNumber(ctx context.Context, repositoryID string, number int) (*types.Issue, error) {
	return s.getIssue(ctx, "repository_id = ? AND number = ? AND deleted_at IS NULL", repositoryID, number)
}

func (s *Store) getIssue(ctx context.Context, where string, args ...any) (*types.Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE `+where, args...)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return issue, err
}

func (s *Store) ListIssuesByRepository(ctx context.Context, repositoryID string) ([]*types.Issue, error) {
	return s.listIssues(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE repository_id = ? AND deleted_at IS NULL ORDER BY number`, repositoryID)
}

// ListIssuesToCrawl selects non-deleted issues in the organization whose last
// known platform modification is older than olderThan, never-crawled issues
// first.
func (s *Store) ListIssuesToCrawl(ctx context.Context, organizationID string, olderThan time.Time, limit int) ([]*types.Issue, error) {
	return s.listIssues(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE organization_id = ? AND deleted_at IS NULL
		   AND (issue_modified_at IS NULL OR issue_modified_at < ?)
		 ORDER BY issue_modified_at ASC
		 LIMIT ?`, organizationID, fmtTime(olderThan), limit)
}

// ListIssuesToSyncReferences selects issues whose references have not been
// synced since olderThan (or ever).
func (s *Store) ListIssuesToSyncReferences(ctx context.Context, organizationID string, olderThan time.Time, limit int) ([]*types.Issue, error) {
	return s.listIssues(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE organization_id = ? AND deleted_at IS NULL
		   AND (issue_references_synced_at IS NULL OR issue_references_synced_at < ?)
		 ORDER BY issue_references_synced_at ASC
		 LIMIT ?`, organizationID, fmtTime(olderThan), limit)
}

func (s *Store) listIssues(ctx context.Context, query string, args ...any) ([]*types.Issue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}
	defer rows.Close()

	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// SetIssueAssignees patches the assignee blobs without touching other fields.
func (s *Store) SetIssueAssignees(ctx context.Context, id string, assignee, assignees []byte, issueModifiedAt *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE issues SET assignee = ?, assignees = ?, issue_modified_at = ?, modified_at = ?
		 WHERE id = ?`,
		nullBytes(assignee), nullBytes(assignees), fmtTimePtr(issueModifiedAt),
		fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("setting assignees on issue %s: %w", id, err)
	}
	return nil
}

func (s *Store) SetIssueLabels(ctx context.Context, id string, labels []byte, hasPledgeBadgeLabel bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE issues SET labels = ?, has_pledge_badge_label = ?, modified_at = ? WHERE id = ?`,
		nullBytes(labels), hasPledgeBadgeLabel, fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("setting labels on issue %s: %w", id, err)
	}
	return nil
}

// SetIssueReferenceState writes both derived flags in one update.
func (s *Store) SetIssueReferenceState(ctx context.Context, id string, inProgress, pullRequest bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE issues
		 SET issue_has_in_progress_relationship = ?, issue_has_pull_request_relationship = ?, modified_at = ?
		 WHERE id = ?`,
		inProgress, pullRequest, fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("setting reference state on issue %s: %w", id, err)
	}
	return nil
}

func (s *Store) SetIssueBadgeEmbedded(ctx context.Context, id string, embedded bool, embeddedAt *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE issues
		 SET pledge_badge_currently_embedded = ?, pledge_badge_embedded_at = COALESCE(?, pledge_badge_embedded_at), modified_at = ?
		 WHERE id = ?`,
		embedded, fmtTimePtr(embeddedAt), fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("setting badge state on issue %s: %w", id, err)
	}
	return nil
}

func (s *Store) SetIssueReferencesSyncedAt(ctx context.Context, id string, syncedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE issues SET issue_references_synced_at = ?, modified_at = ? WHERE id = ?`,
		fmtTime(syncedAt), fmtTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("setting references synced on issue %s: %w", id, err)
	}
	return nil
}

// MarkIssueConfirmedSolved is a conditional single-shot write: the condition
// on confirmed_solved_at makes concurrent attempts race-safe, with only the
// first committed writer changing the row.
func (s *Store) MarkIssueConfirmedSolved(ctx context.Context, id string, byUserID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE issues SET confirmed_solved_at = ?, confirmed_solved_by = ?, modified_at = ?
		 WHERE id = ? AND confirmed_solved_at IS NULL`,
		fmtTime(at), byUserID, fmtTime(time.Now().UTC()), id)
	if err != nil {
		return false, fmt.Errorf("marking issue %s confirmed solved: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) SoftDeleteIssue(ctx context.Context, id string) error {
	now := fmtTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`UPDATE issues SET deleted_at = ?, modified_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("soft-deleting issue %s: %w", id, err)
	}
	return nil
}

func scanIssue(row rowScanner) (*types.Issue, error) {
	var (
		issue                           types.Issue
		body                            string
		issueModified, issueClosed      nullTime
		assignee, assignees, labels     sql.NullString
		fundingGoal                     sql.NullInt64
		badgeEmbeddedAt, refsSynced     nullTime
		confirmedAt                     nullTime
		confirmedBy                     sql.NullString
		issueCreated, created, modified scanTime
		deleted                         nullTime
	)
	err := row.Scan(
		&issue.ID, &issue.Platform, &issue.ExternalID, &issue.OrganizationID, &issue.RepositoryID, &issue.Number,
		&issue.Title, &body, &issue.State, &issueCreated, &issueModified, &issueClosed,
		&assignee, &assignees, &labels, &fundingGoal,
		&issue.HasPledgeBadgeLabel, &issue.PledgeBadgeCurrentlyEmbedded, &badgeEmbeddedAt,
		&issue.HasInProgressRelationship, &issue.HasPullRequestRelationship,
		&refsSynced, &confirmedAt, &confirmedBy,
		&created, &modified, &deleted,
	)
	if err != nil {
		return nil, err
	}
	issue.ConfirmedSolvedBy = confirmedBy.String
	issue.Body = body
	issue.IssueCreatedAt = issueCreated.t
	issue.IssueModifiedAt = issueModified.t
	issue.IssueClosedAt = issueClosed.t
	if assignee.Valid {
		issue.Assignee = []byte(assignee.String)
	}
	if assignees.Valid {
		issue.Assignees = []byte(assignees.String)
	}
	if labels.Valid {
		issue.Labels = []byte(labels.String)
	}
	if fundingGoal.Valid {
		issue.FundingGoal = &fundingGoal.Int64
	}
	issue.PledgeBadgeEmbeddedAt = badgeEmbeddedAt.t
	issue.ReferencesSyncedAt = refsSynced.t
	issue.ConfirmedSolvedAt = confirmedAt.t
	issue.CreatedAt = created.t
	issue.ModifiedAt = modified.t
	issue.DeletedAt = deleted.t
	return &issue, nil
}
