package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != ":8000" {
		t.Errorf("got listen_addr %q, want :8000", cfg.ListenAddr)
	}
	if cfg.Badge.Label != "polar" {
		t.Errorf("got badge label %q, want polar", cfg.Badge.Label)
	}
	if cfg.Crawl.IssueStaleness != 24*time.Hour {
		t.Errorf("got issue staleness %v, want 24h", cfg.Crawl.IssueStaleness)
	}
	if cfg.Crawl.RateLimitFloor != 1000 {
		t.Errorf("got rate limit floor %d, want 1000", cfg.Crawl.RateLimitFloor)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polar.yaml")
	data := []byte(`
listen_addr: ":9999"
github:
  app_id: 1234
  webhook_secret: shh
crawl:
  batch_limit: 7
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("got listen_addr %q, want :9999", cfg.ListenAddr)
	}
	if cfg.GitHub.AppID != 1234 {
		t.Errorf("got app_id %d, want 1234", cfg.GitHub.AppID)
	}
	if cfg.Crawl.BatchLimit != 7 {
		t.Errorf("got batch_limit %d, want 7", cfg.Crawl.BatchLimit)
	}
	// Untouched keys keep their defaults.
	if cfg.Worker.Count != 8 {
		t.Errorf("got worker count %d, want 8", cfg.Worker.Count)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("POLAR_LISTEN_ADDR", ":7777")
	t.Setenv("POLAR_GITHUB_WEBHOOK_SECRET", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("got listen_addr %q, want :7777", cfg.ListenAddr)
	}
	if cfg.GitHub.WebhookSecret != "from-env" {
		t.Errorf("got webhook secret %q, want from-env", cfg.GitHub.WebhookSecret)
	}
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("config without webhook secret validated")
	}
}
