// Package webhook receives GitHub webhook deliveries, verifies them, and
// turns each implemented event into a queued task. Handlers for those tasks
// live here too; they parse the stored payload and drive the services.
package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v68/github"
)

// taskPrefix namespaces every webhook-derived task.
const taskPrefix = "github.webhook."

// implementedWebhooks is the closed set of scope.action pairs the pipeline
// handles. Everything else is acknowledged and dropped at the HTTP layer.
var implementedWebhooks = map[string]struct{}{
	"installation.created":    {},
	"installation.deleted":    {},
	"installation.suspend":    {},
	"installation.unsuspend":  {},

	"installation_repositories.added":   {},
	"installation_repositories.removed": {},

	"issues.opened":     {},
	"issues.edited":     {},
	"issues.closed":     {},
	"issues.reopened":   {},
	"issues.deleted":    {},
	"issues.labeled":    {},
	"issues.unlabeled":  {},
	"issues.assigned":   {},
	"issues.unassigned": {},

	"pull_request.opened":      {},
	"pull_request.edited":      {},
	"pull_request.closed":      {},
	"pull_request.reopened":    {},
	"pull_request.synchronize": {},

	"repository.renamed":  {},
	"repository.edited":   {},
	"repository.archived": {},
	"repository.deleted":  {},

	"public": {},
}

// eventKey builds the scope.action key a delivery is dispatched on. Events
// without an action field (like public) use the bare scope.
func eventKey(scope, action string) string {
	if action == "" {
		return scope
	}
	return scope + "." + action
}

// implemented reports whether a delivery should be enqueued.
func implemented(scope, action string) bool {
	_, ok := implementedWebhooks[eventKey(scope, action)]
	return ok
}

// peekAction extracts the action field from a raw delivery without committing
// to an event-specific type.
func peekAction(payload []byte) string {
	var probe struct {
		Action string `json:"action"`
	}
	_ = json.Unmarshal(payload, &probe)
	return probe.Action
}

// parsePayload decodes a stored delivery into its event-specific go-github
// type. The task handler asserts the concrete type it expects; a mismatch is
// a contract violation between enqueue and handler, not a user error.
func parsePayload(scope string, payload []byte) (any, error) {
	event, err := github.ParseWebHook(scope, payload)
	if err != nil {
		return nil, fmt.Errorf("parsing %s payload: %w", scope, err)
	}
	return event, nil
}

// expectEvent asserts the parsed payload type for a task handler.
func expectEvent[T any](scope string, payload []byte) (T, error) {
	var zero T
	parsed, err := parsePayload(scope, payload)
	if err != nil {
		return zero, err
	}
	event, ok := parsed.(T)
	if !ok {
		return zero, fmt.Errorf("%s payload parsed to %T, want %T", scope, parsed, zero)
	}
	return event, nil
}
