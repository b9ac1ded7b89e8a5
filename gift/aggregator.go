// Package gift folds individual gift subscriptions into the mass
// announcements that produced them, so a 20-sub bomb triggers one event
// plus twenty quiet per-recipient updates instead of twenty-one alerts.
package gift

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/julez-dev/encore/user"
)

const (
	// drainInterval paces the matching pass; individual gifts trail
	// their announcement by up to a few seconds on the wire.
	drainInterval = 3 * time.Second

	// staleAfter bounds how long an incomplete announcement waits for
	// its remaining gifts before being flushed as-is.
	staleAfter = 5 * time.Minute
)

// Gift is one gifted subscription to one recipient.
type Gift struct {
	Gifter      *user.User
	Recipient   *user.User
	Platform    user.Platform
	Tier        int
	Months      int
	IsAnonymous bool
	ReceivedAt  time.Time
}

// MassGift is the announcement that a gifter bought a batch of
// subscriptions. The individual gifts arrive separately and are collected
// against it.
type MassGift struct {
	Gifter         *user.User
	Platform       user.Platform
	Tier           int
	AnnouncedTotal int
	LifetimeGifted int
	IsAnonymous    bool
	AnnouncedAt    time.Time

	Collected []*Gift
}

// RecipientLogins lists the logins of every collected recipient, in
// arrival order.
func (m *MassGift) RecipientLogins() []string {
	logins := make([]string, 0, len(m.Collected))
	for _, g := range m.Collected {
		if g.Recipient == nil {
			continue
		}

		logins = append(logins, g.Recipient.Login)
	}

	return logins
}

// Sink receives the aggregator's output. DispatchGift with
// fireEventCommand=false still applies the per-recipient side effects but
// must not trigger the gift event command; the mass event covers it.
type Sink interface {
	DispatchGift(ctx context.Context, g *Gift, fireEventCommand bool)
	DispatchMassGift(ctx context.Context, m *MassGift)
}

// Aggregator buffers gifts and announcements when a threshold is
// configured and matches them on a fixed tick. A threshold of 0 disables
// batching entirely: everything dispatches on arrival.
type Aggregator struct {
	logger    zerolog.Logger
	sink      Sink
	threshold int

	mu          sync.Mutex
	pendingGift []*Gift
	pendingMass []*MassGift

	now func() time.Time
}

func NewAggregator(logger zerolog.Logger, sink Sink, threshold int) *Aggregator {
	return &Aggregator{
		logger:    logger.With().Str("component", "gift-aggregator").Logger(),
		sink:      sink,
		threshold: threshold,
		now:       time.Now,
	}
}

// SubmitGift hands over one received gift subscription.
func (a *Aggregator) SubmitGift(ctx context.Context, g *Gift) {
	if g.ReceivedAt.IsZero() {
		g.ReceivedAt = a.now()
	}

	if a.threshold <= 0 {
		a.sink.DispatchGift(ctx, g, true)
		return
	}

	a.mu.Lock()
	a.pendingGift = append(a.pendingGift, g)
	a.mu.Unlock()
}

// SubmitMassGift hands over a mass gift announcement. Announcements at or
// below the threshold are dropped outright; their individual gifts later
// dispatch one by one without a matching batch.
func (a *Aggregator) SubmitMassGift(ctx context.Context, m *MassGift) {
	if m.AnnouncedAt.IsZero() {
		m.AnnouncedAt = a.now()
	}

	if a.threshold <= 0 {
		a.sink.DispatchMassGift(ctx, m)
		return
	}

	if m.AnnouncedTotal <= a.threshold {
		a.logger.Debug().
			Int("total", m.AnnouncedTotal).
			Int("threshold", a.threshold).
			Msg("mass gift announcement below threshold, dropping")

		return
	}

	a.mu.Lock()
	a.pendingMass = append(a.pendingMass, m)
	a.mu.Unlock()
}

// Run drives the matching pass until ctx is canceled.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.drain(ctx)
		}
	}
}

func (a *Aggregator) drain(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Any("panic", r).Msg("recovered panic while draining gifts")
		}
	}()

	a.mu.Lock()
	gifts := a.pendingGift
	a.pendingGift = nil
	mass := slices.Clone(a.pendingMass)
	a.mu.Unlock()

	slices.SortStableFunc(gifts, func(x, y *Gift) int {
		return x.ReceivedAt.Compare(y.ReceivedAt)
	})
	slices.SortStableFunc(mass, func(x, y *MassGift) int {
		return x.AnnouncedAt.Compare(y.AnnouncedAt)
	})

	for _, g := range gifts {
		batch := a.matchBatch(mass, g)

		if batch == nil {
			a.sink.DispatchGift(ctx, g, true)
			continue
		}

		// covered by the mass event, no own event command
		a.sink.DispatchGift(ctx, g, false)

		batch.Collected = append(batch.Collected, g)
		if len(batch.Collected) >= batch.AnnouncedTotal {
			mass = slices.DeleteFunc(mass, func(m *MassGift) bool { return m == batch })
			a.removePending(batch)
			a.sink.DispatchMassGift(ctx, batch)
		}
	}

	a.flushStale(ctx)
}

func (a *Aggregator) matchBatch(mass []*MassGift, g *Gift) *MassGift {
	if g.IsAnonymous || g.Gifter == nil {
		for _, m := range mass {
			if m.IsAnonymous {
				return m
			}
		}

		return nil
	}

	for _, m := range mass {
		if !m.IsAnonymous && m.Gifter != nil && m.Gifter.ID == g.Gifter.ID {
			return m
		}
	}

	return nil
}

func (a *Aggregator) removePending(batch *MassGift) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pendingMass = slices.DeleteFunc(a.pendingMass, func(m *MassGift) bool { return m == batch })
}

// flushStale dispatches announcements whose remaining gifts never
// arrived, with whatever subset was collected.
func (a *Aggregator) flushStale(ctx context.Context) {
	cutoff := a.now().Add(-staleAfter)

	a.mu.Lock()
	var stale []*MassGift
	a.pendingMass = slices.DeleteFunc(a.pendingMass, func(m *MassGift) bool {
		if m.AnnouncedAt.Before(cutoff) {
			stale = append(stale, m)
			return true
		}

		return false
	})
	a.mu.Unlock()

	for _, m := range stale {
		a.logger.Warn().
			Int("announced", m.AnnouncedTotal).
			Int("collected", len(m.Collected)).
			Msg("mass gift batch never completed, flushing partial batch")

		a.sink.DispatchMassGift(ctx, m)
	}
}
