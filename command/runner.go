// Package command holds event command bindings and runs them on a small
// worker pool, decoupled from the notification path that queues them.
package command

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/julez-dev/encore/event"
)

// ErrQueueFull is returned when the job buffer is saturated; the caller
// logs and drops, commands are best-effort.
var ErrQueueFull = errors.New("command queue full")

const defaultQueueSize = 64

// Binding ties an action to an event kind. At most one binding exists
// per kind.
type Binding struct {
	ID      uuid.UUID
	Name    string
	Kind    event.Kind
	Enabled bool
	Action  func(ctx context.Context, params event.CommandParameters) error
}

type job struct {
	binding *Binding
	params  event.CommandParameters
}

// Runner queues bound commands and executes them on a fixed number of
// workers. It satisfies the dispatcher's queue contract.
type Runner struct {
	logger  zerolog.Logger
	workers int

	mu       sync.RWMutex
	bindings map[event.Kind]*Binding

	jobs chan job
}

func NewRunner(logger zerolog.Logger, workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}

	return &Runner{
		logger:   logger.With().Str("component", "command-runner").Logger(),
		workers:  workers,
		bindings: map[event.Kind]*Binding{},
		jobs:     make(chan job, defaultQueueSize),
	}
}

// Bind registers the binding, replacing any previous one for the kind.
func (r *Runner) Bind(b *Binding) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.bindings[b.Kind] = b
}

// Unbind removes the binding for the kind, if any.
func (r *Runner) Unbind(kind event.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.bindings, kind)
}

// Binding returns the binding for the kind.
func (r *Runner) Binding(kind event.Kind) (*Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[kind]

	return b, ok
}

// Enqueue queues the bound command for the kind. It reports false without
// error when no enabled binding exists.
func (r *Runner) Enqueue(ctx context.Context, kind event.Kind, params event.CommandParameters) (bool, error) {
	r.mu.RLock()
	b, ok := r.bindings[kind]
	r.mu.RUnlock()

	if !ok || !b.Enabled {
		return false, nil
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	select {
	case r.jobs <- job{binding: b, params: params}:
		return true, nil
	default:
		return false, ErrQueueFull
	}
}

// Run executes queued commands until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	for range r.workers {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case j := <-r.jobs:
					r.execute(ctx, j)
				}
			}
		})
	}

	return group.Wait()
}

func (r *Runner) execute(ctx context.Context, j job) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("command", j.binding.Name).
				Any("panic", rec).
				Msg("recovered panic while running command")
		}
	}()

	if j.binding.Action == nil {
		return
	}

	if err := j.binding.Action(ctx, j.params); err != nil {
		r.logger.Error().Err(err).
			Str("command", j.binding.Name).
			Stringer("kind", j.binding.Kind).
			Msg("command failed")
	}
}
