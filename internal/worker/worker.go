// Package worker provides the task-queue seam the pipeline is written
// against: enqueue-by-name with JSON arguments, a handler registry, and an
// in-process worker pool. A durable queue transport can replace the pool
// without touching handlers, which only depend on Enqueuer and Registry.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Handler executes one task. Args arrive as the JSON-encoded values passed to
// Enqueue, in order. A returned error marks the job failed; retry policy
// belongs to the queue layer, not the handler.
type Handler func(ctx context.Context, args []json.RawMessage) error

// Enqueuer enqueues a task by name. The returned job ID identifies the
// accepted job; an error means the job was not accepted.
type Enqueuer interface {
	Enqueue(ctx context.Context, task string, args ...any) (string, error)
}

// Job is one queued task invocation.
type Job struct {
	ID   string
	Task string
	Args []json.RawMessage
}

// Registry maps task names to handlers. Registration happens at bootstrap,
// before the pool starts; lookups are read-only afterwards.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a task name to a handler. Registering the same name twice is
// a bootstrap bug and panics.
func (r *Registry) Register(task string, h Handler) {
	if _, ok := r.handlers[task]; ok {
		panic(fmt.Sprintf("worker: task %q registered twice", task))
	}
	r.handlers[task] = h
}

// Lookup returns the handler for a task name.
func (r *Registry) Lookup(task string) (Handler, bool) {
	h, ok := r.handlers[task]
	return h, ok
}

// Pool is an in-memory queue plus a fixed set of worker goroutines. Handlers
// run to completion; there is no shared mutable state between jobs beyond the
// stores they are constructed with.
type Pool struct {
	registry *Registry
	logger   *slog.Logger
	queue    chan Job
	workers  int
}

// NewPool creates a pool with the given concurrency and queue depth.
func NewPool(registry *Registry, logger *slog.Logger, workers, depth int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		registry: registry,
		logger:   logger,
		queue:    make(chan Job, depth),
		workers:  workers,
	}
}

// Enqueue validates the task name, encodes the arguments and queues the job.
// A full queue or unknown task is an enqueue failure surfaced to the caller.
func (p *Pool) Enqueue(ctx context.Context, task string, args ...any) (string, error) {
	if _, ok := p.registry.Lookup(task); !ok {
		return "", fmt.Errorf("unknown task %q", task)
	}

	encoded := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("encoding argument %d for %s: %w", i, task, err)
		}
		encoded = append(encoded, raw)
	}

	job := Job{ID: uuid.NewString(), Task: task, Args: encoded}
	select {
	case p.queue <- job:
		return job.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return "", fmt.Errorf("queue full, rejecting %s", task)
	}
}

// Run consumes jobs until ctx is cancelled. Handler errors are logged and
// reported as job failures; they do not stop the pool.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case job := <-p.queue:
					p.execute(ctx, job)
				}
			}
		})
	}
	return g.Wait()
}

func (p *Pool) execute(ctx context.Context, job Job) {
	handler, ok := p.registry.Lookup(job.Task)
	if !ok {
		p.logger.Error("worker.unknown_task", "task", job.Task, "job_id", job.ID)
		return
	}
	if err := handler(ctx, job.Args); err != nil {
		p.logger.Error("worker.job_failed", "task", job.Task, "job_id", job.ID, "err", err)
		return
	}
	p.logger.Debug("worker.job_done", "task", job.Task, "job_id", job.ID)
}

// DecodeArgs unpacks positional JSON arguments into the given pointers.
// Handlers may pass fewer destinations than there are arguments.
func DecodeArgs(args []json.RawMessage, dests ...any) error {
	if len(args) < len(dests) {
		return fmt.Errorf("got %d arguments, want at least %d", len(args), len(dests))
	}
	for i, dest := range dests {
		if err := json.Unmarshal(args[i], dest); err != nil {
			return fmt.Errorf("decoding argument %d: %w", i, err)
		}
	}
	return nil
}
