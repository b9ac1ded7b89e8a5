package user

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies the streaming service a user belongs to.
type Platform string

const (
	PlatformNone   Platform = ""
	PlatformTwitch Platform = "twitch"
	PlatformTrovo  Platform = "trovo"
)

func (p Platform) String() string {
	if p == PlatformNone {
		return "none"
	}

	return string(p)
}

// User is a chatter or broadcaster as tracked for one session. The ID is
// assigned locally; PlatformID is the service's own identifier.
type User struct {
	ID          uuid.UUID
	Platform    Platform
	PlatformID  string
	Login       string
	DisplayName string

	IsFollower   bool
	IsSubscriber bool
	SubTier      int

	IsAnonymous  bool
	LastActivity time.Time
}

// Name returns the display name, falling back to the login.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}

	return u.Login
}

// Anonymous returns the stand-in user for events without an attributable
// sender, such as anonymous gift subscriptions.
func Anonymous(platform Platform) *User {
	return &User{
		ID:          uuid.Nil,
		Platform:    platform,
		Login:       "anonymous",
		DisplayName: "Anonymous",
		IsAnonymous: true,
	}
}
