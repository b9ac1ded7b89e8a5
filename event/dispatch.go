package event

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/julez-dev/encore/user"
)

// CommandQueue hands a triggered event to whatever runs bound commands.
// The boolean reports whether a command is bound to the kind at all.
type CommandQueue interface {
	Enqueue(ctx context.Context, kind Kind, params CommandParameters) (bool, error)
}

// Statistics records a sample per dispatched event.
type Statistics interface {
	RecordEvent(kind Kind, params CommandParameters)
}

// UserTracker is the slice of the user directory the dispatcher needs.
type UserTracker interface {
	Owner() *user.User
	Touch(*user.User)
	MarkActive(*user.User)
}

// Dispatcher turns canonical events into side effects: single-use
// bookkeeping, presence updates, command enqueues and statistics. One
// dispatcher serves one session.
type Dispatcher struct {
	logger   zerolog.Logger
	dedup    *Deduplicator
	users    UserTracker
	commands CommandQueue
	stats    Statistics
}

func NewDispatcher(logger zerolog.Logger, dedup *Deduplicator, users UserTracker, commands CommandQueue, stats Statistics) *Dispatcher {
	return &Dispatcher{
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		dedup:    dedup,
		users:    users,
		commands: commands,
		stats:    stats,
	}
}

// Dispatch performs the event and reports whether it actually fired.
// Suppressed single-use repeats and any failure along the way return
// false. Side effects already performed before a failure are not rolled
// back; dispatch is not transactional.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, params CommandParameters) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Stringer("kind", kind).
				Any("panic", r).
				Msg("recovered panic while dispatching event")
			fired = false
		}
	}()

	u := params.User
	if u == nil {
		u = d.users.Owner()
		params.User = u
	}

	if !d.dedup.TryMarkFired(kind, u.ID) {
		d.logger.Debug().
			Stringer("kind", kind).
			Str("user", u.Login).
			Msg("single-use event already fired for user, suppressing")

		return false
	}

	d.users.Touch(u)

	// a leave event must not resurrect presence
	if kind != ChatUserLeft {
		d.users.MarkActive(u)
	}

	queued, err := d.commands.Enqueue(ctx, kind, params)
	if err != nil {
		d.logger.Error().Err(err).
			Stringer("kind", kind).
			Str("user", u.Login).
			Msg("failed enqueueing event command")

		return false
	}

	if queued {
		d.logger.Debug().Stringer("kind", kind).Msg("queued platform event command")
	}

	// the generic counterpart fires independently of whether a platform
	// command is bound
	if generic := kind.Generic(); generic != KindNone {
		queued, err := d.commands.Enqueue(ctx, generic, params)
		if err != nil {
			d.logger.Error().Err(err).
				Stringer("kind", generic).
				Str("user", u.Login).
				Msg("failed enqueueing generic event command")

			return false
		}

		if queued {
			d.logger.Debug().Stringer("kind", generic).Msg("queued generic event command")
		}
	}

	if d.stats != nil {
		d.stats.RecordEvent(kind, params)
	}

	return true
}
