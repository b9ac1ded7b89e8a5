package user

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"resenje.org/singleflight"
)

// followTTL bounds how long a follow is remembered for duplicate
// suppression; services re-deliver follow notifications on reconnect.
const followTTL = time.Hour

// Directory tracks every user seen during a session, keyed by platform
// identity. It owns the active-user presence set and the recent-follow
// cache. All methods are safe for concurrent use.
type Directory struct {
	logger zerolog.Logger
	owner  *User

	mu     sync.Mutex
	byKey  map[string]*User
	active map[uuid.UUID]*User

	follows *ttlcache.Cache[string, struct{}]
	resolve singleflight.Group[string, *User]
}

func NewDirectory(logger zerolog.Logger, owner *User) *Directory {
	follows := ttlcache.New(
		ttlcache.WithTTL[string, struct{}](followTTL),
	)
	go follows.Start()

	return &Directory{
		logger:  logger.With().Str("component", "user-directory").Logger(),
		owner:   owner,
		byKey:   map[string]*User{},
		active:  map[uuid.UUID]*User{},
		follows: follows,
	}
}

// Owner returns the channel owner, the fallback subject for events that
// arrive without an attributable user.
func (d *Directory) Owner() *User {
	return d.owner
}

func identityKey(platform Platform, platformID string) string {
	return string(platform) + ":" + platformID
}

// Ensure returns the tracked user for the given platform identity,
// creating one when unseen. Login and display name are refreshed from the
// latest packet since users rename.
func (d *Directory) Ensure(platform Platform, platformID, login, displayName string) *User {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := identityKey(platform, platformID)

	if u, ok := d.byKey[key]; ok {
		if login != "" {
			u.Login = login
		}
		if displayName != "" {
			u.DisplayName = displayName
		}

		return u
	}

	u := &User{
		ID:          uuid.New(),
		Platform:    platform,
		PlatformID:  platformID,
		Login:       login,
		DisplayName: displayName,
	}
	d.byKey[key] = u

	return u
}

// LookupOrFetch returns the tracked user for the platform identity,
// calling fetch on a miss. Concurrent misses for the same identity are
// collapsed into a single fetch.
func (d *Directory) LookupOrFetch(ctx context.Context, platform Platform, platformID string, fetch func(context.Context) (*User, error)) (*User, error) {
	key := identityKey(platform, platformID)

	d.mu.Lock()
	if u, ok := d.byKey[key]; ok {
		d.mu.Unlock()
		return u, nil
	}
	d.mu.Unlock()

	u, _, err := d.resolve.Do(ctx, key, func(ctx context.Context) (*User, error) {
		fetched, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed fetching user %s: %w", key, err)
		}

		if fetched.ID == uuid.Nil {
			fetched.ID = uuid.New()
		}

		d.mu.Lock()
		d.byKey[key] = fetched
		d.mu.Unlock()

		return fetched, nil
	})
	if err != nil {
		return nil, err
	}

	return u, nil
}

// Touch records activity for the user.
func (d *Directory) Touch(u *User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u.LastActivity = time.Now()
}

// MarkActive adds the user to the presence set.
func (d *Directory) MarkActive(u *User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.active[u.ID] = u
}

// MarkLeft removes the user from the presence set.
func (d *Directory) MarkLeft(u *User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.active, u.ID)
}

func (d *Directory) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.active)
}

// MarkFollowed records a follow and reports whether it is new. Repeat
// notifications inside the cache window return false so follow events do
// not re-fire.
func (d *Directory) MarkFollowed(u *User) bool {
	key := identityKey(u.Platform, u.PlatformID)

	if d.follows.Has(key) {
		d.logger.Debug().Str("user", u.Login).Msg("follow already recorded, skipping")
		return false
	}

	d.follows.Set(key, struct{}{}, ttlcache.DefaultTTL)
	u.IsFollower = true

	return true
}

// Close stops the follow cache janitor.
func (d *Directory) Close() {
	d.follows.Stop()
}
