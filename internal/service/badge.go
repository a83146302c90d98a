package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/0xsirsaif/polar/internal/githubapi"
	"github.com/0xsirsaif/polar/internal/storage"
	"github.com/0xsirsaif/polar/internal/types"
)

const (
	badgeMarkerStart = "<!-- POLAR PLEDGE BADGE START -->"
	badgeMarkerEnd   = "<!-- POLAR PLEDGE BADGE END -->"
)

// Badge embeds and removes the funding badge in issue bodies. All operations
// are idempotent: embedding an already badged issue and removing an unbadged
// one are no-ops, so webhook redeliveries cannot double-edit a body.
type Badge struct {
	store  storage.Store
	logger *slog.Logger
	// baseURL is the funding site the badge image and link point at.
	baseURL string
}

func NewBadge(store storage.Store, logger *slog.Logger, baseURL string) *Badge {
	return &Badge{store: store, logger: logger, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *Badge) markdown(org *types.Organization, repo *types.Repository, issue *types.Issue) string {
	issueURL := fmt.Sprintf("%s/%s/%s/issues/%d", s.baseURL, org.Name, repo.Name, issue.Number)
	badgeURL := fmt.Sprintf("%s/api/github/%s/%s/issues/%d/pledge.svg", s.baseURL, org.Name, repo.Name, issue.Number)
	return fmt.Sprintf("%s\n[![Fund with Polar](%s)](%s)\n%s", badgeMarkerStart, badgeURL, issueURL, badgeMarkerEnd)
}

func badgeIsEmbedded(body string) bool {
	return strings.Contains(body, badgeMarkerStart)
}

// Embed appends the badge to the issue body on the platform and records the
// embed locally.
func (s *Badge) Embed(ctx context.Context, client githubapi.Client, org *types.Organization, repo *types.Repository, issue *types.Issue) error {
	if issue.PledgeBadgeCurrentlyEmbedded {
		return nil
	}

	if !badgeIsEmbedded(issue.Body) {
		body := issue.Body + "\n\n" + s.markdown(org, repo, issue)
		updated, err := client.UpdateIssueBody(ctx, org.Name, repo.Name, issue.Number, body)
		if err != nil {
			return fmt.Errorf("embedding badge on %s/%s#%d: %w", org.Name, repo.Name, issue.Number, err)
		}
		issue.Body = updated.GetBody()
	}

	now := time.Now().UTC()
	if err := s.store.SetIssueBadgeEmbedded(ctx, issue.ID, true, &now); err != nil {
		return fmt.Errorf("recording badge embed for issue %s: %w", issue.ID, err)
	}
	issue.PledgeBadgeCurrentlyEmbedded = true
	issue.PledgeBadgeEmbeddedAt = &now
	s.logger.Info("badge.embedded", "issue_id", issue.ID)
	return nil
}

// Remove strips the badge from the issue body. triggeredFromLabel marks
// removals caused by the funding label coming off; those are suppressed when
// the repository auto-embeds badges on all issues.
func (s *Badge) Remove(ctx context.Context, client githubapi.Client, org *types.Organization, repo *types.Repository, issue *types.Issue, triggeredFromLabel bool) error {
	if triggeredFromLabel && repo.PledgeBadgeAutoEmbed {
		return nil
	}
	if !issue.PledgeBadgeCurrentlyEmbedded {
		return nil
	}

	if badgeIsEmbedded(issue.Body) {
		updated, err := client.UpdateIssueBody(ctx, org.Name, repo.Name, issue.Number, stripBadge(issue.Body))
		if err != nil {
			return fmt.Errorf("removing badge from %s/%s#%d: %w", org.Name, repo.Name, issue.Number, err)
		}
		issue.Body = updated.GetBody()
	}

	if err := s.store.SetIssueBadgeEmbedded(ctx, issue.ID, false, nil); err != nil {
		return fmt.Errorf("recording badge removal for issue %s: %w", issue.ID, err)
	}
	issue.PledgeBadgeCurrentlyEmbedded = false
	s.logger.Info("badge.removed", "issue_id", issue.ID)
	return nil
}

// stripBadge removes the marker-delimited badge block, including surrounding
// blank lines the embed added.
func stripBadge(body string) string {
	start := strings.Index(body, badgeMarkerStart)
	end := strings.Index(body, badgeMarkerEnd)
	if start == -1 || end == -1 || end < start {
		return body
	}
	before := strings.TrimRight(body[:start], "\n")
	after := strings.TrimLeft(body[end+len(badgeMarkerEnd):], "\n")
	if after == "" {
		return before
	}
	return before + "\n\n" + after
}
