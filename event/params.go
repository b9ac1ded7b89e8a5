package event

import (
	"github.com/julez-dev/encore/user"
)

// CommandParameters is the canonical payload built by a classifier and
// consumed by the dispatcher. It is treated as immutable once built.
type CommandParameters struct {
	User       *user.User
	TargetUser *user.User

	Platform user.Platform

	// Arguments are the positional words handed to a triggered command,
	// usually the chat message split on whitespace.
	Arguments []string

	// SpecialIdentifiers carry named substitution values for command
	// text, e.g. "messagenocheermotes" or "raidviewercount".
	SpecialIdentifiers map[string]string
}

// NewParameters builds a payload for the given user, with the identifier
// map allocated.
func NewParameters(u *user.User, platform user.Platform) CommandParameters {
	return CommandParameters{
		User:               u,
		Platform:           platform,
		SpecialIdentifiers: map[string]string{},
	}
}
