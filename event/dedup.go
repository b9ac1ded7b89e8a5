package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// packetTTL bounds how long a processed packet ID is remembered. Services
// retransmit within minutes of the original delivery, so a short window is
// enough.
const packetTTL = 15 * time.Minute

type firedKey struct {
	kind   Kind
	userID uuid.UUID
}

// Deduplicator suppresses retransmitted packets and repeat firings of
// single-use kinds. One instance belongs to one session; both registries
// die with it.
type Deduplicator struct {
	packets *ttlcache.Cache[string, struct{}]

	mu    sync.Mutex
	fired map[firedKey]struct{}
}

func NewDeduplicator() *Deduplicator {
	packets := ttlcache.New(
		ttlcache.WithTTL[string, struct{}](packetTTL),
	)
	go packets.Start()

	return &Deduplicator{
		packets: packets,
		fired:   map[firedKey]struct{}{},
	}
}

// ShouldProcess reports whether the packet ID is new and records it.
// Empty IDs are never deduplicated; not every transport assigns one.
func (d *Deduplicator) ShouldProcess(packetID string) bool {
	if packetID == "" {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.packets.Has(packetID) {
		return false
	}

	d.packets.Set(packetID, struct{}{}, ttlcache.DefaultTTL)

	return true
}

// TryMarkFired records that kind fired for the user and reports whether
// the firing is allowed. Kinds outside the single-use table always pass.
// Check and record happen under one lock so concurrent notifications
// cannot both fire.
func (d *Deduplicator) TryMarkFired(kind Kind, userID uuid.UUID) bool {
	if !kind.SingleUse() {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := firedKey{kind: kind, userID: userID}
	if _, ok := d.fired[key]; ok {
		return false
	}

	d.fired[key] = struct{}{}

	return true
}

// HasFired reports whether the single-use kind already fired for the
// user, without recording anything.
func (d *Deduplicator) HasFired(kind Kind, userID uuid.UUID) bool {
	if !kind.SingleUse() {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.fired[firedKey{kind: kind, userID: userID}]

	return ok
}

// Close stops the packet cache janitor.
func (d *Deduplicator) Close() {
	d.packets.Stop()
}
