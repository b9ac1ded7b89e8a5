package event

import (
	"strconv"

	"github.com/julez-dev/encore/user"
)

// Kind identifies a trigger in the closed event catalog. Kinds are grouped
// by numeric range: 1-99 platform-agnostic, 100-199 application lifecycle,
// 200-299 Twitch, 400-499 Trovo, 1000-1999 donation services. Range
// membership infers the originating platform when nothing else does.
type Kind int

const (
	KindNone Kind = 0

	ChannelStreamStart Kind = 1
	ChannelStreamStop  Kind = 2
	ChannelRaided      Kind = 4

	ChannelFollowed   Kind = 10
	ChannelUnfollowed Kind = 11

	ChannelSubscribed             Kind = 20
	ChannelResubscribed           Kind = 21
	ChannelSubscriptionGifted     Kind = 22
	ChannelMassSubscriptionsGifted Kind = 23

	ChatUserFirstJoin   Kind = 50
	ChatUserPurge       Kind = 51
	ChatUserBan         Kind = 52
	ChatMessageReceived Kind = 53
	ChatUserJoined      Kind = 54
	ChatUserLeft        Kind = 55
	ChatMessageDeleted  Kind = 56
	ChatUserTimeout     Kind = 57
	ChatWhisperReceived Kind = 58
	ChatUserFirstMessage Kind = 60

	ApplicationLaunch Kind = 100
	ApplicationExit   Kind = 101

	TwitchChannelStreamStart           Kind = 200
	TwitchChannelStreamStop            Kind = 201
	TwitchChannelRaided                Kind = 203
	TwitchChannelOutgoingRaidCompleted Kind = 204
	TwitchChannelUpdated               Kind = 205

	TwitchChannelFollowed   Kind = 210
	TwitchChannelUnfollowed Kind = 211

	TwitchChannelSubscribed              Kind = 220
	TwitchChannelResubscribed            Kind = 221
	TwitchChannelSubscriptionGifted      Kind = 222
	TwitchChannelMassSubscriptionsGifted Kind = 223

	TwitchChannelBitsCheered    Kind = 270
	TwitchChannelPointsRedeemed Kind = 271

	TrovoChannelStreamStart Kind = 400
	TrovoChannelStreamStop  Kind = 401
	TrovoChannelRaided      Kind = 403

	TrovoChannelFollowed Kind = 410

	TrovoChannelSubscribed              Kind = 420
	TrovoChannelResubscribed            Kind = 421
	TrovoChannelSubscriptionGifted      Kind = 422
	TrovoChannelMassSubscriptionsGifted Kind = 423

	TrovoChannelSpellCast Kind = 470
	TrovoChannelMagicChat Kind = 471

	StreamlabsDonation     Kind = 1000
	TiltifyDonation        Kind = 1020
	TipeeeStreamDonation   Kind = 1040
	TreatStreamDonation    Kind = 1050
	PatreonSubscribed      Kind = 1060
	RainmakerDonation      Kind = 1070
	JustGivingDonation     Kind = 1080
	StreamElementsDonation Kind = 1100
	GenericDonation        Kind = 1999
)

var kindNames = map[Kind]string{
	ChannelStreamStart:             "channel-stream-start",
	ChannelStreamStop:              "channel-stream-stop",
	ChannelRaided:                  "channel-raided",
	ChannelFollowed:                "channel-followed",
	ChannelUnfollowed:              "channel-unfollowed",
	ChannelSubscribed:              "channel-subscribed",
	ChannelResubscribed:            "channel-resubscribed",
	ChannelSubscriptionGifted:      "channel-subscription-gifted",
	ChannelMassSubscriptionsGifted: "channel-mass-subscriptions-gifted",
	ChatUserFirstJoin:              "chat-user-first-join",
	ChatUserPurge:                  "chat-user-purge",
	ChatUserBan:                    "chat-user-ban",
	ChatMessageReceived:            "chat-message-received",
	ChatUserJoined:                 "chat-user-joined",
	ChatUserLeft:                   "chat-user-left",
	ChatMessageDeleted:             "chat-message-deleted",
	ChatUserTimeout:                "chat-user-timeout",
	ChatWhisperReceived:            "chat-whisper-received",
	ChatUserFirstMessage:           "chat-user-first-message",

	ApplicationLaunch: "application-launch",
	ApplicationExit:   "application-exit",

	TwitchChannelStreamStart:             "twitch-channel-stream-start",
	TwitchChannelStreamStop:              "twitch-channel-stream-stop",
	TwitchChannelRaided:                  "twitch-channel-raided",
	TwitchChannelOutgoingRaidCompleted:   "twitch-channel-outgoing-raid-completed",
	TwitchChannelUpdated:                 "twitch-channel-updated",
	TwitchChannelFollowed:                "twitch-channel-followed",
	TwitchChannelUnfollowed:              "twitch-channel-unfollowed",
	TwitchChannelSubscribed:              "twitch-channel-subscribed",
	TwitchChannelResubscribed:            "twitch-channel-resubscribed",
	TwitchChannelSubscriptionGifted:      "twitch-channel-subscription-gifted",
	TwitchChannelMassSubscriptionsGifted: "twitch-channel-mass-subscriptions-gifted",
	TwitchChannelBitsCheered:             "twitch-channel-bits-cheered",
	TwitchChannelPointsRedeemed:          "twitch-channel-points-redeemed",

	TrovoChannelStreamStart:             "trovo-channel-stream-start",
	TrovoChannelStreamStop:              "trovo-channel-stream-stop",
	TrovoChannelRaided:                  "trovo-channel-raided",
	TrovoChannelFollowed:                "trovo-channel-followed",
	TrovoChannelSubscribed:              "trovo-channel-subscribed",
	TrovoChannelResubscribed:            "trovo-channel-resubscribed",
	TrovoChannelSubscriptionGifted:      "trovo-channel-subscription-gifted",
	TrovoChannelMassSubscriptionsGifted: "trovo-channel-mass-subscriptions-gifted",
	TrovoChannelSpellCast:               "trovo-channel-spell-cast",
	TrovoChannelMagicChat:               "trovo-channel-magic-chat",

	StreamlabsDonation:     "streamlabs-donation",
	TiltifyDonation:        "tiltify-donation",
	TipeeeStreamDonation:   "tipeeestream-donation",
	TreatStreamDonation:    "treatstream-donation",
	PatreonSubscribed:      "patreon-subscribed",
	RainmakerDonation:      "rainmaker-donation",
	JustGivingDonation:     "justgiving-donation",
	StreamElementsDonation: "streamelements-donation",
	GenericDonation:        "generic-donation",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "kind(" + strconv.Itoa(int(k)) + ")"
}

var kindsByName = func() map[string]Kind {
	byName := make(map[string]Kind, len(kindNames))
	for kind, name := range kindNames {
		byName[name] = kind
	}

	return byName
}()

// ParseKind resolves a kind by its canonical name, the inverse of
// String.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}

// Platform infers the originating platform from the kind's numeric range.
// Generic, application and donation kinds carry no platform of their own.
func (k Kind) Platform() user.Platform {
	switch {
	case k >= 200 && k <= 299:
		return user.PlatformTwitch
	case k >= 400 && k <= 499:
		return user.PlatformTrovo
	default:
		return user.PlatformNone
	}
}

// genericByKind maps a platform kind to the cross-platform kind fired
// alongside it.
var genericByKind = map[Kind]Kind{
	TwitchChannelStreamStart: ChannelStreamStart,
	TrovoChannelStreamStart:  ChannelStreamStart,

	TwitchChannelStreamStop: ChannelStreamStop,
	TrovoChannelStreamStop:  ChannelStreamStop,

	TwitchChannelRaided: ChannelRaided,
	TrovoChannelRaided:  ChannelRaided,

	TwitchChannelFollowed: ChannelFollowed,
	TrovoChannelFollowed:  ChannelFollowed,

	TwitchChannelSubscribed: ChannelSubscribed,
	TrovoChannelSubscribed:  ChannelSubscribed,

	TwitchChannelResubscribed: ChannelResubscribed,
	TrovoChannelResubscribed:  ChannelResubscribed,

	TwitchChannelSubscriptionGifted: ChannelSubscriptionGifted,
	TrovoChannelSubscriptionGifted:  ChannelSubscriptionGifted,

	TwitchChannelMassSubscriptionsGifted: ChannelMassSubscriptionsGifted,
	TrovoChannelMassSubscriptionsGifted:  ChannelMassSubscriptionsGifted,
}

// Generic returns the cross-platform kind fired in addition to k, or
// KindNone when k has no generic counterpart.
func (k Kind) Generic() Kind {
	return genericByKind[k]
}

// singleUseKinds lists the kinds that fire at most once per user per
// session.
var singleUseKinds = map[Kind]struct{}{
	ChatUserFirstJoin: {},
	ChatUserJoined:    {},
	ChatUserLeft:      {},

	ApplicationLaunch: {},
	ApplicationExit:   {},

	TwitchChannelStreamStart:           {},
	TwitchChannelStreamStop:            {},
	TwitchChannelFollowed:              {},
	TwitchChannelRaided:                {},
	TwitchChannelOutgoingRaidCompleted: {},
	TwitchChannelSubscribed:            {},
	TwitchChannelResubscribed:          {},

	TrovoChannelStreamStart:  {},
	TrovoChannelStreamStop:   {},
	TrovoChannelFollowed:     {},
	TrovoChannelRaided:       {},
	TrovoChannelSubscribed:   {},
	TrovoChannelResubscribed: {},
}

// SingleUse reports whether k may fire at most once per user per session.
func (k Kind) SingleUse() bool {
	_, ok := singleUseKinds[k]
	return ok
}
