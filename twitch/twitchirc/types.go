package twitchirc

import (
	"fmt"
	"time"
)

// AnonymousGifterLogin is the login Twitch substitutes for gifters who
// chose to stay anonymous.
const AnonymousGifterLogin = "ananonymousgifter"

// IRCer is any message that can be written to the IRC connection.
// Inbound-only messages return an empty string.
type IRCer interface {
	IRC() string
}

type Badge struct {
	Name    string
	Version int
}

type PrivateMessage struct {
	ID              string
	RoomID          string
	ChannelUserName string
	UserID          string
	Login           string
	DisplayName     string
	Color           string
	Badges          []Badge
	Bits            int
	FirstMessage    bool
	SentAt          time.Time

	Message string
}

func (p *PrivateMessage) IRC() string {
	return fmt.Sprintf("PRIVMSG #%s :%s", p.ChannelUserName, p.Message)
}

type PingMessage struct{}

func (p PingMessage) IRC() string {
	return "PING :tmi.twitch.tv"
}

type PongMessage struct{}

func (p PongMessage) IRC() string {
	return "PONG :tmi.twitch.tv"
}

type JoinMessage struct {
	Channel string
}

func (j JoinMessage) IRC() string {
	return "JOIN #" + j.Channel
}

// UserJoined is another chatter entering the channel, delivered through
// the membership capability.
type UserJoined struct {
	Login   string
	Channel string
}

func (u *UserJoined) IRC() string {
	return ""
}

// UserParted is a chatter leaving the channel.
type UserParted struct {
	Login   string
	Channel string
}

func (u *UserParted) IRC() string {
	return ""
}

type MsgID string

const (
	Sub            MsgID = "sub"
	ReSub          MsgID = "resub"
	SubGift        MsgID = "subgift"
	SubMysteryGift MsgID = "submysterygift"
	Raid           MsgID = "raid"
	UnRaid         MsgID = "unraid"
	Announcement   MsgID = "announcement"
)

type SubPlan string

const (
	Prime SubPlan = "Prime"
	Tier1 SubPlan = "1000"
	Tier2 SubPlan = "2000"
	Tier3 SubPlan = "3000"
)

func (s SubPlan) String() string {
	switch s {
	case Prime:
		return "Prime"
	case Tier1:
		return "Tier 1"
	case Tier2:
		return "Tier 2"
	case Tier3:
		return "Tier 3"
	}

	return ""
}

// TierNumber maps the wire plan to the numeric tier. Prime counts as
// tier 1.
func (s SubPlan) TierNumber() int {
	switch s {
	case Prime, Tier1:
		return 1
	case Tier2:
		return 2
	case Tier3:
		return 3
	}

	return 1
}

type UserNotice struct {
	ID          string
	RoomID      string
	Login       string
	DisplayName string
	UserID      string
	MsgID       MsgID
	SystemMsg   string
	Badges      []Badge
	SentAt      time.Time
}

func (u *UserNotice) IRC() string {
	return ""
}

type SubMessage struct {
	UserNotice
	Message           string
	CumulativeMonths  int
	StreakMonths      int
	ShouldShareStreak bool
	SubPlan           SubPlan
	SubPlanName       string
}

type SubGiftMessage struct {
	UserNotice
	Months               int
	GiftMonths           int
	RecipientID          string
	RecipientUserName    string
	RecipientDisplayName string
	SubPlan              SubPlan
	SubPlanName          string
}

// IsAnonymous reports whether the gifter hid their identity.
func (s *SubGiftMessage) IsAnonymous() bool {
	return s.Login == AnonymousGifterLogin
}

// SubMysteryGiftMessage announces a batch of gifted subscriptions; the
// individual SubGiftMessages follow separately.
type SubMysteryGiftMessage struct {
	UserNotice
	MassGiftCount int
	SenderCount   int
	SubPlan       SubPlan
}

func (s *SubMysteryGiftMessage) IsAnonymous() bool {
	return s.Login == AnonymousGifterLogin
}

type RaidMessage struct {
	UserNotice
	DisplayName string
	Login       string
	ViewerCount int
}

type ClearChat struct {
	RoomID       string
	TargetUserID string
	UserName     string
	BanDuration  int // in seconds, 0 for permanent bans
	SentAt       time.Time
}

func (c *ClearChat) IRC() string {
	return ""
}

type ClearMessage struct {
	Login       string
	RoomID      string
	TargetMsgID string
	SentAt      time.Time
}

func (c *ClearMessage) IRC() string {
	return ""
}
