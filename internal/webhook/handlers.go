package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-github/v68/github"

	"github.com/0xsirsaif/polar/internal/crawl"
	"github.com/0xsirsaif/polar/internal/githubapi"
	"github.com/0xsirsaif/polar/internal/service"
	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
	"github.com/0xsirsaif/polar/internal/worker"
)

// Handlers executes queued webhook tasks against the services.
type Handlers struct {
	Store         storage.Store
	Organizations *service.Organizations
	Repositories  *service.Repositories
	Issues        *service.Issues
	PullRequests  *service.PullRequests
	Badge         *service.Badge
	API           githubapi.Factory
	Enqueuer      worker.Enqueuer
	Logger        *slog.Logger
}

// RegisterHandlers binds one task per implemented webhook. Task names mirror
// the delivery keys, so a queue inspector reads like the GitHub event log.
func RegisterHandlers(registry *worker.Registry, h *Handlers) {
	registry.Register(taskPrefix+"installation.created", handle(h.installationCreated))
	registry.Register(taskPrefix+"installation.deleted", handle(h.installationDeleted))
	registry.Register(taskPrefix+"installation.suspend", handle(h.installationSuspend))
	registry.Register(taskPrefix+"installation.unsuspend", handle(h.installationUnsuspend))

	registry.Register(taskPrefix+"installation_repositories.added", handle(h.installationRepositoriesAdded))
	registry.Register(taskPrefix+"installation_repositories.removed", handle(h.installationRepositoriesRemoved))

	for _, action := range []string{"opened", "edited", "closed", "reopened"} {
		registry.Register(taskPrefix+"issues."+action, handle(h.issueUpserted))
	}
	registry.Register(taskPrefix+"issues.deleted", handle(h.issueDeleted))
	registry.Register(taskPrefix+"issues.labeled", handle(h.issueLabeled))
	registry.Register(taskPrefix+"issues.unlabeled", handle(h.issueLabeled))
	registry.Register(taskPrefix+"issues.assigned", handle(h.issueAssigned))
	registry.Register(taskPrefix+"issues.unassigned", handle(h.issueAssigned))

	for _, action := range []string{"opened", "edited", "closed", "reopened", "synchronize"} {
		registry.Register(taskPrefix+"pull_request."+action, handle(h.pullRequestUpserted))
	}

	registry.Register(taskPrefix+"repository.renamed", handle(h.repositoryRenamed))
	registry.Register(taskPrefix+"repository.edited", handle(h.repositoryEdited))
	registry.Register(taskPrefix+"repository.archived", handle(h.repositoryArchived))
	registry.Register(taskPrefix+"repository.deleted", handle(h.repositoryDeleted))
	registry.Register(taskPrefix+"public", handle(h.repositoryPublic))
}

// handle adapts an event-typed handler to the queue's positional-argument
// calling convention.
func handle[T any](fn func(ctx context.Context, event T) error) worker.Handler {
	return func(ctx context.Context, args []json.RawMessage) error {
		var (
			scope, action string
			payload       json.RawMessage
		)
		if err := worker.DecodeArgs(args, &scope, &action, &payload); err != nil {
			return err
		}
		event, err := expectEvent[T](scope, payload)
		if err != nil {
			return err
		}
		return fn(ctx, event)
	}
}

// resolveRepository maps a payload repository to our rows. Deliveries for
// repositories we have never synced are skipped, not failed: GitHub keeps
// sending events during the window between app installation and the first
// repository sync.
func (h *Handlers) resolveRepository(ctx context.Context, ghRepo *github.Repository) (*types.Organization, *types.Repository, error) {
	repo, err := h.Store.GetRepositoryByExternalID(ctx, types.PlatformGitHub, ghRepo.GetID())
	if errors.Is(err, storage.ErrNotFound) {
		h.Logger.Warn("webhook.unknown_repository", "repository", ghRepo.GetFullName())
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	org, err := h.Store.GetOrganization(ctx, repo.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	return org, repo, nil
}

func (h *Handlers) installationCreated(ctx context.Context, event *github.InstallationEvent) error {
	org, err := h.Organizations.UpdateOrCreateFromInstallation(ctx, event.GetInstallation())
	if err != nil {
		return err
	}
	_, err = h.Repositories.InstallForOrganization(ctx, org, event.Repositories)
	return err
}

func (h *Handlers) installationDeleted(ctx context.Context, event *github.InstallationEvent) error {
	return h.Organizations.RemoveInstallation(ctx, event.GetInstallation())
}

func (h *Handlers) installationSuspend(ctx context.Context, event *github.InstallationEvent) error {
	installation := event.GetInstallation()
	suspendedAt := time.Now().UTC()
	if installation.SuspendedAt != nil {
		suspendedAt = installation.SuspendedAt.Time.UTC()
	}
	return h.Organizations.Suspend(ctx, installation.GetID(), installation.GetSuspendedBy().GetID(), suspendedAt)
}

func (h *Handlers) installationUnsuspend(ctx context.Context, event *github.InstallationEvent) error {
	return h.Organizations.Unsuspend(ctx, event.GetInstallation().GetID())
}

func (h *Handlers) installationRepositoriesAdded(ctx context.Context, event *github.InstallationRepositoriesEvent) error {
	org, err := h.Organizations.UpdateOrCreateFromInstallation(ctx, event.GetInstallation())
	if err != nil {
		return err
	}
	_, err = h.Repositories.InstallForOrganization(ctx, org, event.RepositoriesAdded)
	return err
}

func (h *Handlers) installationRepositoriesRemoved(ctx context.Context, event *github.InstallationRepositoriesEvent) error {
	for _, repo := range event.RepositoriesRemoved {
		if err := h.Repositories.Remove(ctx, repo.GetID()); err != nil {
			return err
		}
	}
	return nil
}

// issueUpserted records the issue's payload state, applies badge policy, and
// schedules a dependency re-parse plus a repository-wide reference re-sync
// since the body may have changed. Enqueue failures are returned so the queue
// retries the handler; a re-run is idempotent.
func (h *Handlers) issueUpserted(ctx context.Context, event *github.IssuesEvent) error {
	org, repo, err := h.resolveRepository(ctx, event.GetRepo())
	if err != nil || org == nil {
		return err
	}

	issue, err := h.Issues.Store(ctx, org, repo, event.GetIssue())
	if err != nil || issue == nil {
		return err
	}

	if err := h.applyBadgePolicy(ctx, org, repo, issue, false); err != nil {
		return err
	}

	if _, err := h.Enqueuer.Enqueue(ctx, crawl.TaskSyncIssueDependencies, issue.ID); err != nil {
		return fmt.Errorf("enqueueing %s for issue %s: %w", crawl.TaskSyncIssueDependencies, issue.ID, err)
	}
	if _, err := h.Enqueuer.Enqueue(ctx, crawl.TaskSyncRepositoryReferences, repo.ID); err != nil {
		return fmt.Errorf("enqueueing %s for repository %s: %w", crawl.TaskSyncRepositoryReferences, repo.ID, err)
	}
	return nil
}

// issueDeleted soft-deletes the issue and re-syncs the repository's
// references: other issues may have referenced the deleted one.
func (h *Handlers) issueDeleted(ctx context.Context, event *github.IssuesEvent) error {
	org, repo, err := h.resolveRepository(ctx, event.GetRepo())
	if err != nil || org == nil {
		return err
	}

	if err := h.Issues.Remove(ctx, org, repo, event.GetIssue()); err != nil {
		return err
	}

	if _, err := h.Enqueuer.Enqueue(ctx, crawl.TaskSyncRepositoryReferences, repo.ID); err != nil {
		return fmt.Errorf("enqueueing %s for repository %s: %w", crawl.TaskSyncRepositoryReferences, repo.ID, err)
	}
	return nil
}

// issueLabeled handles both labeled and unlabeled: the payload carries the
// full label set either way, so one re-store plus badge policy covers both.
func (h *Handlers) issueLabeled(ctx context.Context, event *github.IssuesEvent) error {
	org, repo, err := h.resolveRepository(ctx, event.GetRepo())
	if err != nil || org == nil {
		return err
	}

	issue, err := h.Issues.Store(ctx, org, repo, event.GetIssue())
	if err != nil || issue == nil {
		return err
	}
	return h.applyBadgePolicy(ctx, org, repo, issue, true)
}

func (h *Handlers) issueAssigned(ctx context.Context, event *github.IssuesEvent) error {
	org, repo, err := h.resolveRepository(ctx, event.GetRepo())
	if err != nil || org == nil {
		return err
	}

	issue, err := h.Issues.GetByExternalID(ctx, event.GetIssue().GetID())
	if errors.Is(err, storage.ErrNotFound) {
		_, err = h.Issues.Store(ctx, org, repo, event.GetIssue())
		return err
	}
	if err != nil {
		return err
	}
	return h.Issues.SetAssignees(ctx, issue, event.GetIssue())
}

// applyBadgePolicy embeds the badge when the funding label is present or the
// repository auto-embeds, and removes it when a label removal calls for it.
func (h *Handlers) applyBadgePolicy(ctx context.Context, org *types.Organization, repo *types.Repository, issue *types.Issue, fromLabel bool) error {
	if !org.Installed() {
		return nil
	}

	client, err := h.API.ForInstallation(*org.InstallationID)
	if err != nil {
		return err
	}

	if issue.HasPledgeBadgeLabel || repo.PledgeBadgeAutoEmbed {
		return h.Badge.Embed(ctx, client, org, repo, issue)
	}
	if fromLabel {
		return h.Badge.Remove(ctx, client, org, repo, issue, true)
	}
	return nil
}

// pullRequestUpserted stores the pull request and fans out a reference
// re-sync across the repository's issues: the platform does not say which
// issues this pull request mentions.
func (h *Handlers) pullRequestUpserted(ctx context.Context, event *github.PullRequestEvent) error {
	org, repo, err := h.resolveRepository(ctx, event.GetRepo())
	if err != nil || org == nil {
		return err
	}

	if _, err := h.PullRequests.Store(ctx, org, repo, event.GetPullRequest()); err != nil {
		return err
	}

	if _, err := h.Enqueuer.Enqueue(ctx, crawl.TaskSyncRepositoryReferences, repo.ID); err != nil {
		return fmt.Errorf("enqueueing %s for repository %s: %w", crawl.TaskSyncRepositoryReferences, repo.ID, err)
	}
	return nil
}

func (h *Handlers) repositoryRenamed(ctx context.Context, event *github.RepositoryEvent) error {
	_, repo, err := h.resolveRepository(ctx, event.GetRepo())
	if err != nil || repo == nil {
		return err
	}
	return h.Repositories.Rename(ctx, repo, event.GetRepo().GetName())
}

func (h *Handlers) repositoryEdited(ctx context.Context, event *github.RepositoryEvent) error {
	_, repo, err := h.resolveRepository(ctx, event.GetRepo())
	if err != nil || repo == nil {
		return err
	}
	return h.Repositories.UpdateVisibility(ctx, repo, event.GetRepo().GetPrivate())
}

func (h *Handlers) repositoryArchived(ctx context.Context, event *github.RepositoryEvent) error {
	_, repo, err := h.resolveRepository(ctx, event.GetRepo())
	if err != nil || repo == nil {
		return err
	}
	return h.Repositories.Archive(ctx, repo)
}

func (h *Handlers) repositoryDeleted(ctx context.Context, event *github.RepositoryEvent) error {
	return h.Repositories.Remove(ctx, event.GetRepo().GetID())
}

func (h *Handlers) repositoryPublic(ctx context.Context, event *github.PublicEvent) error {
	_, repo, err := h.resolveRepository(ctx, event.GetRepo())
	if err != nil || repo == nil {
		return err
	}
	return h.Repositories.UpdateVisibility(ctx, repo, false)
}
