package sqlite

const schema = `
-- Organizations (platform accounts the app is installed on)
CREATE TABLE IF NOT EXISTS organizations (
    id TEXT PRIMARY KEY,
    platform TEXT NOT NULL,
    external_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    avatar_url TEXT NOT NULL DEFAULT '',
    is_personal INTEGER NOT NULL DEFAULT 0,
    installation_id INTEGER,
    installation_created_at TEXT,
    installation_suspended_at TEXT,
    installation_suspended_by INTEGER,
    created_at TEXT NOT NULL,
    modified_at TEXT NOT NULL,
    deleted_at TEXT,
    UNIQUE (platform, external_id)
);

CREATE INDEX IF NOT EXISTS idx_organizations_name ON organizations(platform, name);
CREATE INDEX IF NOT EXISTS idx_organizations_installation ON organizations(installation_id);

-- Repositories, owned by exactly one organization
CREATE TABLE IF NOT EXISTS repositories (
    id TEXT PRIMARY KEY,
    platform TEXT NOT NULL,
    external_id INTEGER NOT NULL,
    organization_id TEXT NOT NULL REFERENCES organizations(id),
    name TEXT NOT NULL,
    is_private INTEGER NOT NULL DEFAULT 0,
    is_archived INTEGER NOT NULL DEFAULT 0,
    is_disabled INTEGER NOT NULL DEFAULT 0,
    pledge_badge_auto_embed INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    modified_at TEXT NOT NULL,
    deleted_at TEXT,
    UNIQUE (platform, external_id)
);

CREATE INDEX IF NOT EXISTS idx_repositories_org_name ON repositories(organization_id, name);

-- Issues
CREATE TABLE IF NOT EXISTS issues (
    id TEXT PRIMARY KEY,
    platform TEXT NOT NULL,
    external_id INTEGER NOT NULL,
    organization_id TEXT NOT NULL REFERENCES organizations(id),
    repository_id TEXT NOT NULL REFERENCES repositories(id),
    number INTEGER NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'open',
    issue_created_at TEXT NOT NULL,
    issue_modified_at TEXT,
    issue_closed_at TEXT,
    assignee TEXT,
    assignees TEXT,
    labels TEXT,
    funding_goal INTEGER,
    has_pledge_badge_label INTEGER NOT NULL DEFAULT 0,
    pledge_badge_currently_embedded INTEGER NOT NULL DEFAULT 0,
    pledge_badge_embedded_at TEXT,
    issue_has_in_progress_relationship INTEGER NOT NULL DEFAULT 0,
    issue_has_pull_request_relationship INTEGER NOT NULL DEFAULT 0,
    issue_references_synced_at TEXT,
    confirmed_solved_at TEXT,
    confirmed_solved_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    modified_at TEXT NOT NULL,
    deleted_at TEXT,
    UNIQUE (platform, external_id),
    UNIQUE (platform, organization_id, repository_id, number)
);

CREATE INDEX IF NOT EXISTS idx_issues_repository ON issues(repository_id);
CREATE INDEX IF NOT EXISTS idx_issues_modified ON issues(issue_modified_at);
CREATE INDEX IF NOT EXISTS idx_issues_refs_synced ON issues(issue_references_synced_at);

-- Pull requests
CREATE TABLE IF NOT EXISTS pull_requests (
    id TEXT PRIMARY KEY,
    platform TEXT NOT NULL,
    external_id INTEGER NOT NULL,
    organization_id TEXT NOT NULL REFERENCES organizations(id),
    repository_id TEXT NOT NULL REFERENCES repositories(id),
    number INTEGER NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'open',
    is_draft INTEGER NOT NULL DEFAULT 0,
    is_merged INTEGER NOT NULL DEFAULT 0,
    merged_at TEXT,
    created_at TEXT NOT NULL,
    modified_at TEXT NOT NULL,
    deleted_at TEXT,
    UNIQUE (platform, external_id)
);

CREATE INDEX IF NOT EXISTS idx_pull_requests_repository ON pull_requests(repository_id);

-- Issue references: evidence that an issue is being worked on. The primary
-- key makes repeated syncs of the same source idempotent.
CREATE TABLE IF NOT EXISTS issue_references (
    issue_id TEXT NOT NULL REFERENCES issues(id),
    reference_type TEXT NOT NULL,
    external_id TEXT NOT NULL,
    pull_request_id TEXT REFERENCES pull_requests(id),
    external_source TEXT,
    created_at TEXT NOT NULL,
    modified_at TEXT NOT NULL,
    PRIMARY KEY (issue_id, reference_type, external_id)
);

CREATE INDEX IF NOT EXISTS idx_issue_references_pull ON issue_references(pull_request_id);

-- Cross-organization dependency edges parsed from issue bodies. Duplicate
-- inserts are tolerated as no-ops.
CREATE TABLE IF NOT EXISTS issue_dependencies (
    organization_id TEXT NOT NULL REFERENCES organizations(id),
    repository_id TEXT NOT NULL REFERENCES repositories(id),
    dependent_issue_id TEXT NOT NULL REFERENCES issues(id),
    dependency_issue_id TEXT NOT NULL REFERENCES issues(id),
    created_at TEXT NOT NULL,
    modified_at TEXT NOT NULL,
    PRIMARY KEY (dependent_issue_id, dependency_issue_id)
);

CREATE INDEX IF NOT EXISTS idx_issue_dependencies_dependency ON issue_dependencies(dependency_issue_id);
`
