// Package crawl is the pull side of the pipeline: periodic sweeps that find
// stale issues across installed organizations and the queued tasks that
// refresh them from the API. Webhooks keep the data fresh in the common case;
// the crawl repairs whatever deliveries missed.
package crawl

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0xsirsaif/polar/internal/githubapi"
	"github.com/0xsirsaif/polar/internal/service"
	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
	"github.com/0xsirsaif/polar/internal/worker"
)

// Task names for the refresh jobs. The webhook handlers enqueue the same
// tasks for their follow-up work.
const (
	TaskSyncIssue                = "github.issue.sync"
	TaskSyncIssueReferences      = "github.issue.sync.issue_references"
	TaskSyncIssueDependencies    = "github.issue.sync.issue_dependencies"
	TaskSyncRepositoryReferences = "github.repo.sync.issue_references"
)

// Config tunes the sweep cadence and selection.
type Config struct {
	// IssueStaleness is how old an issue's issue_modified_at may get before
	// the sweep re-fetches it.
	IssueStaleness time.Duration
	// ReferenceStaleness is the same window keyed on the last reference sync.
	ReferenceStaleness time.Duration
	// BatchLimit caps how many issues one sweep enqueues per organization.
	BatchLimit int
	// RateLimitFloor skips an organization for the tick when its remaining
	// API quota drops below it, leaving headroom for webhook-driven work.
	RateLimitFloor int
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		IssueStaleness:     24 * time.Hour,
		ReferenceStaleness: 24 * time.Hour,
		BatchLimit:         100,
		RateLimitFloor:     1000,
	}
}

// Crawler owns the sweeps and the task handlers they feed.
type Crawler struct {
	store    storage.Store
	orgs     *service.Organizations
	issues   *service.Issues
	refs     *service.References
	deps     *service.Dependencies
	api      githubapi.Factory
	enqueuer worker.Enqueuer
	logger   *slog.Logger
	cfg      Config
}

func New(store storage.Store, orgs *service.Organizations, issues *service.Issues, refs *service.References, deps *service.Dependencies, api githubapi.Factory, enqueuer worker.Enqueuer, logger *slog.Logger, cfg Config) *Crawler {
	return &Crawler{
		store:    store,
		orgs:     orgs,
		issues:   issues,
		refs:     refs,
		deps:     deps,
		api:      api,
		enqueuer: enqueuer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run drives both sweeps until ctx is cancelled. The two loops are offset
// within the five-minute period so one organization's quota is not hit by
// both at once.
func (c *Crawler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.RunInterval(ctx, c.logger, "issue_crawl", 5*time.Minute, 2*time.Minute, c.sweepIssues)
	})
	g.Go(func() error {
		return worker.RunInterval(ctx, c.logger, "reference_crawl", 5*time.Minute, 0, c.sweepReferences)
	})
	return g.Wait()
}

func (c *Crawler) sweepIssues(ctx context.Context) error {
	return c.sweep(ctx, "issues", TaskSyncIssue, func(ctx context.Context, org *types.Organization, olderThan time.Time) ([]*types.Issue, error) {
		return c.store.ListIssuesToCrawl(ctx, org.ID, olderThan, c.cfg.BatchLimit)
	}, c.cfg.IssueStaleness)
}

func (c *Crawler) sweepReferences(ctx context.Context) error {
	return c.sweep(ctx, "references", TaskSyncIssueReferences, func(ctx context.Context, org *types.Organization, olderThan time.Time) ([]*types.Issue, error) {
		return c.store.ListIssuesToSyncReferences(ctx, org.ID, olderThan, c.cfg.BatchLimit)
	}, c.cfg.ReferenceStaleness)
}

// sweep enqueues one task per stale issue across all installed organizations.
// Organizations low on API quota are skipped for the tick; the next sweep
// picks them up once the quota window resets.
func (c *Crawler) sweep(ctx context.Context, name, task string, list func(context.Context, *types.Organization, time.Time) ([]*types.Issue, error), staleness time.Duration) error {
	orgs, err := c.orgs.ListInstalled(ctx)
	if err != nil {
		return err
	}
	olderThan := time.Now().UTC().Add(-staleness)

	for _, org := range orgs {
		client, err := c.api.ForInstallation(*org.InstallationID)
		if err != nil {
			c.logger.Error("crawl.client_failed", "sweep", name, "organization", org.Name, "err", err)
			continue
		}

		remaining, err := client.RateLimitRemaining(ctx)
		if err != nil {
			c.logger.Error("crawl.rate_limit_check_failed", "sweep", name, "organization", org.Name, "err", err)
			continue
		}
		if remaining < c.cfg.RateLimitFloor {
			c.logger.Warn("crawl.skip_low_quota",
				"sweep", name,
				"organization", org.Name,
				"remaining", remaining)
			continue
		}

		issues, err := list(ctx, org, olderThan)
		if err != nil {
			c.logger.Error("crawl.list_failed", "sweep", name, "organization", org.Name, "err", err)
			continue
		}

		for _, issue := range issues {
			if _, err := c.enqueuer.Enqueue(ctx, task, issue.ID); err != nil {
				c.logger.Error("crawl.enqueue_failed", "task", task, "issue_id", issue.ID, "err", err)
			}
		}
		if len(issues) > 0 {
			c.logger.Info("crawl.swept", "sweep", name, "organization", org.Name, "enqueued", len(issues))
		}
	}
	return nil
}
