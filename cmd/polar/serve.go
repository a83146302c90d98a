package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0xsirsaif/polar/internal/config"
	"github.com/0xsirsaif/polar/internal/crawl"
	"github.com/0xsirsaif/polar/internal/githubapi"
	"github.com/0xsirsaif/polar/internal/service"
	"github.com/0xsirsaif/polar/internal/storage/sqlite"
	"github.com/0xsirsaif/polar/internal/types"
	"github.com/0xsirsaif/polar/internal/webhook"
	"github.com/0xsirsaif/polar/internal/worker"
)

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server, workers and crawl",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := sqlite.Open(ctx, cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			privateKey, err := cfg.GitHub.PrivateKey()
			if err != nil {
				return err
			}
			api := githubapi.NewAppFactory(cfg.GitHub.AppID, privateKey)

			registry := worker.NewRegistry()
			pool := worker.NewPool(registry, logger, cfg.Worker.Count, cfg.Worker.QueueDepth)

			orgs := service.NewOrganizations(store, logger)
			repos := service.NewRepositories(store, logger)
			issues := service.NewIssues(store, logger, cfg.Badge.Label)
			pulls := service.NewPullRequests(store, logger)
			refs := service.NewReferences(store, issues, pulls, logger)
			deps := service.NewDependencies(store, issues, api, logger)
			badge := service.NewBadge(store, logger, cfg.Badge.BaseURL)

			// A pull request flipping out of draft (or gaining a link) changes
			// the derived flags of every issue referencing it.
			pulls.Upserted.Add(func(ctx context.Context, pull *types.PullRequest) error {
				linked, err := store.ListIssuesReferencingPullRequest(ctx, pull.ID)
				if err != nil {
					return err
				}
				for _, issue := range linked {
					if err := issues.UpdateReferenceState(ctx, issue); err != nil {
						return err
					}
				}
				return nil
			})
			orgs.Upserted.Add(func(ctx context.Context, org *types.Organization) error {
				logger.Info("organization.ready", "organization", org.Name, "installed", org.Installed())
				return nil
			})

			crawler := crawl.New(store, orgs, issues, refs, deps, api, pool, logger, crawl.Config{
				IssueStaleness:     cfg.Crawl.IssueStaleness,
				ReferenceStaleness: cfg.Crawl.ReferenceStaleness,
				BatchLimit:         cfg.Crawl.BatchLimit,
				RateLimitFloor:     cfg.Crawl.RateLimitFloor,
			})
			crawler.RegisterTasks(registry)

			webhook.RegisterHandlers(registry, &webhook.Handlers{
				Store:         store,
				Organizations: orgs,
				Repositories:  repos,
				Issues:        issues,
				PullRequests:  pulls,
				Badge:         badge,
				API:           api,
				Enqueuer:      pool,
				Logger:        logger,
			})

			server := webhook.NewServer(webhook.ServerConfig{
				Addr:     cfg.ListenAddr,
				Secret:   cfg.GitHub.WebhookSecret,
				Enqueuer: pool,
				Logger:   logger,
			})

			logger.Info("serve.starting", "addr", cfg.ListenAddr, "db", cfg.DatabasePath)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return pool.Run(ctx) })
			g.Go(func() error { return crawler.Run(ctx) })
			g.Go(func() error { return server.ListenAndServe(ctx) })

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("serve.stopped")
			return nil
		},
	}
}
