package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/0xsirsaif/polar/internal/githubapi"
	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
	"github.com/0xsirsaif/polar/internal/worker"
)

// RegisterTasks binds the refresh tasks the sweeps and webhook handlers
// enqueue.
func (c *Crawler) RegisterTasks(registry *worker.Registry) {
	registry.Register(TaskSyncIssue, c.issueTask(c.syncIssue))
	registry.Register(TaskSyncIssueReferences, c.issueTask(c.syncIssueReferences))
	registry.Register(TaskSyncIssueDependencies, c.issueTask(c.syncIssueDependencies))
	registry.Register(TaskSyncRepositoryReferences, c.syncRepositoryReferences)
}

// issueTask decodes an issue ID argument and resolves the issue with its
// repository and organization. Rows deleted between enqueue and execution are
// skipped, not failed.
func (c *Crawler) issueTask(fn func(ctx context.Context, org *types.Organization, repo *types.Repository, issue *types.Issue) error) worker.Handler {
	return func(ctx context.Context, args []json.RawMessage) error {
		var issueID string
		if err := worker.DecodeArgs(args, &issueID); err != nil {
			return err
		}

		issue, err := c.store.GetIssue(ctx, issueID)
		if errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("crawl.issue_gone", "issue_id", issueID)
			return nil
		}
		if err != nil {
			return err
		}

		repo, err := c.store.GetRepository(ctx, issue.RepositoryID)
		if err != nil {
			return fmt.Errorf("resolving repository of issue %s: %w", issueID, err)
		}
		org, err := c.store.GetOrganization(ctx, issue.OrganizationID)
		if err != nil {
			return fmt.Errorf("resolving organization of issue %s: %w", issueID, err)
		}
		return fn(ctx, org, repo, issue)
	}
}

// clientFor returns an installation client for the organization, or nil when
// the organization has no active installation. Sync work for uninstalled
// organizations is silently dropped.
func (c *Crawler) clientFor(org *types.Organization) (githubapi.Client, error) {
	if !org.Installed() {
		c.logger.Debug("crawl.skip_uninstalled", "organization", org.Name)
		return nil, nil
	}
	return c.api.ForInstallation(*org.InstallationID)
}

func (c *Crawler) syncIssue(ctx context.Context, org *types.Organization, repo *types.Repository, issue *types.Issue) error {
	client, err := c.clientFor(org)
	if err != nil || client == nil {
		return err
	}

	synced, err := c.issues.Sync(ctx, client, org, repo, issue)
	if errors.Is(err, githubapi.ErrNotFound) {
		// Deleted upstream without a webhook reaching us.
		return c.store.SoftDeleteIssue(ctx, issue.ID)
	}
	if err != nil {
		return err
	}

	// Enqueue failure is returned so the queue retries the whole task; the
	// sync above is idempotent.
	if _, err := c.enqueuer.Enqueue(ctx, TaskSyncIssueDependencies, synced.ID); err != nil {
		return fmt.Errorf("enqueueing %s for issue %s: %w", TaskSyncIssueDependencies, synced.ID, err)
	}
	return nil
}

func (c *Crawler) syncIssueReferences(ctx context.Context, org *types.Organization, repo *types.Repository, issue *types.Issue) error {
	client, err := c.clientFor(org)
	if err != nil || client == nil {
		return err
	}
	return c.refs.SyncIssueReferences(ctx, client, org, repo, issue)
}

func (c *Crawler) syncIssueDependencies(ctx context.Context, org *types.Organization, repo *types.Repository, issue *types.Issue) error {
	return c.deps.SyncIssueDependencies(ctx, org, repo, issue)
}

func (c *Crawler) syncRepositoryReferences(ctx context.Context, args []json.RawMessage) error {
	var repoID string
	if err := worker.DecodeArgs(args, &repoID); err != nil {
		return err
	}

	repo, err := c.store.GetRepository(ctx, repoID)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Warn("crawl.repository_gone", "repository_id", repoID)
		return nil
	}
	if err != nil {
		return err
	}

	org, err := c.store.GetOrganization(ctx, repo.OrganizationID)
	if err != nil {
		return fmt.Errorf("resolving organization of repository %s: %w", repoID, err)
	}

	client, err := c.clientFor(org)
	if err != nil || client == nil {
		return err
	}
	return c.refs.SyncRepositoryReferences(ctx, client, org, repo)
}
