package conn

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrAlreadyRunning is returned when Run is called while a previous Run
// for the same supervisor is still active.
var ErrAlreadyRunning = errors.New("supervisor already running")

// Notifier is told about connection losses and recoveries, for alerting
// and status surfaces. Calls happen from the supervisor goroutine.
type Notifier interface {
	DisconnectionOccurred(transport string)
	ReconnectionOccurred(transport string)
}

// Supervisor keeps one transport connected for the lifetime of its Run
// call. At most one Run loop is active per supervisor.
type Supervisor struct {
	logger    zerolog.Logger
	transport Transport
	backoff   Backoff
	notifier  Notifier

	running atomic.Bool
	state   atomic.Int32
}

func NewSupervisor(logger zerolog.Logger, transport Transport, backoff Backoff, notifier Notifier) *Supervisor {
	return &Supervisor{
		logger: logger.With().
			Str("component", "supervisor").
			Str("transport", transport.Name()).
			Logger(),
		transport: transport,
		backoff:   backoff,
		notifier:  notifier,
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(state State) {
	s.state.Store(int32(state))
}

// Run connects the transport and reconnects it whenever it drops, until
// ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)
	defer s.setState(Disconnected)

	var dropped bool

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if dropped {
			s.setState(Reconnecting)
		} else {
			s.setState(Connecting)
		}

		handle, err := s.transport.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			delay := s.backoff.Next()
			s.logger.Error().Err(err).
				Dur("retry-in", delay).
				Msg("failed to connect, retrying")

			if err := sleep(ctx, delay); err != nil {
				return err
			}

			continue
		}

		s.setState(Connected)
		s.backoff.Reset()
		s.logger.Info().Msg("connected")

		if dropped && s.notifier != nil {
			s.notifier.ReconnectionOccurred(s.transport.Name())
		}

		select {
		case <-ctx.Done():
			if err := handle.Close(); err != nil {
				s.logger.Warn().Err(err).Msg("failed closing connection on shutdown")
			}

			return ctx.Err()
		case <-handle.Done():
			dropped = true
			s.setState(Reconnecting)

			s.logger.Warn().Err(handle.Err()).Msg("connection lost")

			if s.notifier != nil {
				s.notifier.DisconnectionOccurred(s.transport.Name())
			}

			if err := sleep(ctx, s.backoff.Next()); err != nil {
				return err
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
