package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/0xsirsaif/polar/internal/types"
)

// CreateIssueDependency inserts a dependency edge. The insert resolves
// duplicate (dependent, dependency) pairs at the primary key with DO NOTHING,
// so concurrent creators of the same edge both succeed and exactly one row
// exists afterwards. A check-then-insert would race; the constraint is the
// arbiter.
func (s *Store) CreateIssueDependency(ctx context.Context, dep *types.IssueDependency) error {
	now := time.Now().UTC()
	spec := upsertSpec{
		table: "issue_dependencies",
		columns: []string{
			"organization_id", "repository_id",
			"dependent_issue_id", "dependency_issue_id",
			"created_at", "modified_at",
		},
		conflict: []string{"dependent_issue_id", "dependency_issue_id"},
		// No mutable columns: an existing edge is left untouched.
	}
	_, err := s.db.ExecContext(ctx, spec.sql(),
		dep.OrganizationID, dep.RepositoryID,
		dep.DependentIssueID, dep.DependencyIssueID,
		fmtTime(now), fmtTime(now))
	if err != nil {
		return fmt.Errorf("creating dependency %s -> %s: %w",
			dep.DependentIssueID, dep.DependencyIssueID, err)
	}
	return nil
}

func (s *Store) ListIssueDependencies(ctx context.Context, dependentIssueID string) ([]*types.IssueDependency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT organization_id, repository_id, dependent_issue_id, dependency_issue_id,
		        created_at, modified_at
		 FROM issue_dependencies
		 WHERE dependent_issue_id = ?
		 ORDER BY created_at`, dependentIssueID)
	if err != nil {
		return nil, fmt.Errorf("listing dependencies for issue %s: %w", dependentIssueID, err)
	}
	defer rows.Close()

	var deps []*types.IssueDependency
	for rows.Next() {
		var (
			dep               types.IssueDependency
			created, modified scanTime
		)
		err := rows.Scan(
			&dep.OrganizationID, &dep.RepositoryID,
			&dep.DependentIssueID, &dep.DependencyIssueID,
			&created, &modified,
		)
		if err != nil {
			return nil, err
		}
		dep.CreatedAt = created.t
		dep.ModifiedAt = modified.t
		deps = append(deps, &dep)
	}
	return deps, rows.Err()
}
