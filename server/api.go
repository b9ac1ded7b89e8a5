// Package server exposes the running session over a small local HTTP
// API: connection status, event statistics and a live alert feed.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/julez-dev/encore/alert"
	"github.com/julez-dev/encore/conn"
	"github.com/julez-dev/encore/event"
)

type Config struct {
	HostAndPort string
}

// AlertSource provides the retained alert history and a live feed.
type AlertSource interface {
	History() []alert.Alert
	Subscribe() (<-chan alert.Alert, func())
}

// StatsSource reports how often each event kind fired this session.
type StatsSource interface {
	CountByKind() (map[event.Kind]int, error)
}

// StatusSource reports the state of every supervised connection.
type StatusSource interface {
	ConnectionStates() map[string]conn.State
}

type API struct {
	logger zerolog.Logger
	conf   Config

	alerts  AlertSource
	stats   StatsSource
	status  StatusSource
	limiter *RateLimiter
}

func New(logger zerolog.Logger, config Config, alerts AlertSource, stats StatsSource, status StatusSource, limiter *RateLimiter) *API {
	return &API{
		logger:  logger.With().Str("component", "server").Logger(),
		conf:    config,
		alerts:  alerts,
		stats:   stats,
		status:  status,
		limiter: limiter,
	}
}

func (a *API) Launch(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:           a.conf.HostAndPort,
		WriteTimeout:   time.Second * 15,
		ReadTimeout:    time.Second * 15,
		IdleTimeout:    time.Second * 60,
		MaxHeaderBytes: 2 * 1024,
		Handler:        router(a.logger, a),
	}

	httpSrv.RegisterOnShutdown(func() {
		a.logger.Info().Msg("http shutdown started")
	})

	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		a.logger.Info().
			Str("addr", httpSrv.Addr).
			Msg("starting http server")

		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	wg.Go(func() error {
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*15)
		defer cancel()

		if err := httpSrv.Shutdown(ctx); err != nil {
			return err
		}

		a.logger.Info().Msg("shutdown done")

		return nil
	})

	if err := wg.Wait(); err != nil {
		return err
	}

	return nil
}

func (a *API) getLoggerFrom(ctx context.Context) zerolog.Logger {
	if logger := ctx.Value(loggerKey); logger != nil {
		typed, ok := logger.(zerolog.Logger)

		if ok {
			return typed
		}
	}

	return a.logger
}
