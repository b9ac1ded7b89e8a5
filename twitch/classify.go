package twitch

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/julez-dev/encore/event"
	"github.com/julez-dev/encore/gift"
	"github.com/julez-dev/encore/twitch/eventsub"
	"github.com/julez-dev/encore/twitch/twitchirc"
	"github.com/julez-dev/encore/user"
)

// cheermoteRE matches cheer tokens like "Cheer100" or "Kappa500" inside a
// message, so command text can use the message with the amounts removed.
var cheermoteRE = regexp.MustCompile(`^[A-Za-z]+\d+$`)

// EventDispatcher performs a classified event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, kind event.Kind, params event.CommandParameters) bool
}

// UserDirectory is the slice of the session user directory the classifier
// needs.
type UserDirectory interface {
	Owner() *user.User
	Ensure(platform user.Platform, platformID, login, displayName string) *user.User
	Touch(u *user.User)
	MarkFollowed(u *user.User) bool
	MarkLeft(u *user.User)
}

// Alerter publishes human-readable notifications.
type Alerter interface {
	AddAlert(message, color string)
}

// UserAPI resolves users the wire protocol only names by login.
type UserAPI interface {
	GetUsers(ctx context.Context, logins []string, ids []string) (UserResponse, error)
}

// Classifier turns raw Twitch packets, both IRC messages and EventSub
// notifications, into canonical events. Retransmitted packets are dropped
// by ID before any side effect happens. One classifier serves one
// channel.
type Classifier struct {
	logger     zerolog.Logger
	dispatcher EventDispatcher
	users      UserDirectory
	dedup      *event.Deduplicator
	gifts      *gift.Aggregator
	alerts     Alerter
	api        UserAPI

	channelID string

	mu       sync.Mutex
	loginIDs map[string]string
}

func NewClassifier(logger zerolog.Logger, dispatcher EventDispatcher, users UserDirectory, dedup *event.Deduplicator, alerts Alerter, api UserAPI, channelID string, massGiftThreshold int) *Classifier {
	c := &Classifier{
		logger:     logger.With().Str("component", "twitch-classifier").Logger(),
		dispatcher: dispatcher,
		users:      users,
		dedup:      dedup,
		alerts:     alerts,
		api:        api,
		channelID:  channelID,
		loginIDs:   map[string]string{},
	}

	c.gifts = gift.NewAggregator(logger, c, massGiftThreshold)

	return c
}

// Gifts exposes the gift aggregator so the session can drive its
// matching loop.
func (c *Classifier) Gifts() *gift.Aggregator {
	return c.gifts
}

// HandleIRC classifies one parsed IRC message. Unknown message types are
// ignored.
func (c *Classifier) HandleIRC(ctx context.Context, msg twitchirc.IRCer) {
	switch m := msg.(type) {
	case *twitchirc.PrivateMessage:
		c.handlePrivateMessage(ctx, m)
	case *twitchirc.SubMessage:
		c.handleSub(ctx, m)
	case *twitchirc.SubGiftMessage:
		c.handleSubGift(ctx, m)
	case *twitchirc.SubMysteryGiftMessage:
		c.handleMysteryGift(ctx, m)
	case *twitchirc.RaidMessage:
		c.handleIncomingRaid(ctx, m.UserID, m.Login, m.DisplayName, m.ViewerCount, m.ID)
	case *twitchirc.UserJoined:
		c.handleUserJoined(ctx, m.Login)
	case *twitchirc.UserParted:
		c.handleUserParted(ctx, m.Login)
	case *twitchirc.ClearChat:
		c.handleClearChat(ctx, m)
	case *twitchirc.ClearMessage:
		c.handleClearMessage(ctx, m)
	}
}

func (c *Classifier) handlePrivateMessage(ctx context.Context, m *twitchirc.PrivateMessage) {
	if !c.dedup.ShouldProcess(m.ID) {
		return
	}

	u := c.ensure(m.UserID, m.Login, m.DisplayName)
	applyBadges(u, m.Badges)

	params := event.NewParameters(u, user.PlatformTwitch)
	params.Arguments = strings.Fields(m.Message)
	params.SpecialIdentifiers["message"] = m.Message

	if m.Bits > 0 {
		params.SpecialIdentifiers["bitsamount"] = strconv.Itoa(m.Bits)
	}

	if m.FirstMessage {
		c.dispatcher.Dispatch(ctx, event.ChatUserFirstMessage, params)
	}

	c.dispatcher.Dispatch(ctx, event.ChatMessageReceived, params)
}

func (c *Classifier) handleSub(ctx context.Context, m *twitchirc.SubMessage) {
	if !c.dedup.ShouldProcess(m.ID) {
		return
	}

	u := c.ensure(m.UserID, m.Login, m.DisplayName)
	u.IsSubscriber = true
	u.SubTier = m.SubPlan.TierNumber()

	params := event.NewParameters(u, user.PlatformTwitch)
	params.SpecialIdentifiers["message"] = m.Message
	params.SpecialIdentifiers["usersubplan"] = m.SubPlan.String()
	params.SpecialIdentifiers["usersubplanname"] = m.SubPlanName
	params.SpecialIdentifiers["usersubmonths"] = strconv.Itoa(m.CumulativeMonths)
	if m.ShouldShareStreak {
		params.SpecialIdentifiers["usersubstreak"] = strconv.Itoa(m.StreakMonths)
	}

	if m.MsgID == twitchirc.Sub {
		if c.dispatcher.Dispatch(ctx, event.TwitchChannelSubscribed, params) {
			c.alert(u.Name()+" subscribed", "purple")
		}

		return
	}

	if c.dispatcher.Dispatch(ctx, event.TwitchChannelResubscribed, params) {
		c.alert(u.Name()+" resubscribed for the "+humanize.Ordinal(m.CumulativeMonths)+" month", "purple")
	}
}

func (c *Classifier) handleSubGift(ctx context.Context, m *twitchirc.SubGiftMessage) {
	if !c.dedup.ShouldProcess(m.ID) {
		return
	}

	recipient := c.ensure(m.RecipientID, m.RecipientUserName, m.RecipientDisplayName)
	recipient.IsSubscriber = true
	recipient.SubTier = m.SubPlan.TierNumber()

	gifter := user.Anonymous(user.PlatformTwitch)
	if !m.IsAnonymous() {
		gifter = c.ensure(m.UserID, m.Login, m.DisplayName)
	}

	c.gifts.SubmitGift(ctx, &gift.Gift{
		Gifter:      gifter,
		Recipient:   recipient,
		Platform:    user.PlatformTwitch,
		Tier:        m.SubPlan.TierNumber(),
		Months:      m.GiftMonths,
		IsAnonymous: m.IsAnonymous(),
		ReceivedAt:  m.SentAt,
	})
}

func (c *Classifier) handleMysteryGift(ctx context.Context, m *twitchirc.SubMysteryGiftMessage) {
	if !c.dedup.ShouldProcess(m.ID) {
		return
	}

	gifter := user.Anonymous(user.PlatformTwitch)
	if !m.IsAnonymous() {
		gifter = c.ensure(m.UserID, m.Login, m.DisplayName)
	}

	c.gifts.SubmitMassGift(ctx, &gift.MassGift{
		Gifter:         gifter,
		Platform:       user.PlatformTwitch,
		Tier:           m.SubPlan.TierNumber(),
		AnnouncedTotal: m.MassGiftCount,
		LifetimeGifted: m.SenderCount,
		IsAnonymous:    m.IsAnonymous(),
		AnnouncedAt:    m.SentAt,
	})
}

func (c *Classifier) handleIncomingRaid(ctx context.Context, raiderID, login, displayName string, viewers int, packetID string) {
	if !c.dedup.ShouldProcess(packetID) {
		return
	}

	u := c.ensure(raiderID, login, displayName)

	params := event.NewParameters(u, user.PlatformTwitch)
	params.SpecialIdentifiers["raidviewercount"] = strconv.Itoa(viewers)
	params.SpecialIdentifiers["hostviewercount"] = strconv.Itoa(viewers)

	if c.dispatcher.Dispatch(ctx, event.TwitchChannelRaided, params) {
		c.alert(u.Name()+" raided with "+humanize.Comma(int64(viewers))+" viewers", "orange")
	}
}

func (c *Classifier) handleUserJoined(ctx context.Context, login string) {
	u, err := c.resolveLogin(ctx, login)
	if err != nil {
		c.logger.Debug().Err(err).Str("login", login).Msg("could not resolve joined user")
		return
	}

	params := event.NewParameters(u, user.PlatformTwitch)
	c.dispatcher.Dispatch(ctx, event.ChatUserFirstJoin, params)
	c.dispatcher.Dispatch(ctx, event.ChatUserJoined, params)
}

func (c *Classifier) handleUserParted(ctx context.Context, login string) {
	// never fetch for a part, an unknown user was never tracked
	c.mu.Lock()
	id, ok := c.loginIDs[login]
	c.mu.Unlock()

	if !ok {
		return
	}

	u := c.ensure(id, login, "")

	c.dispatcher.Dispatch(ctx, event.ChatUserLeft, event.NewParameters(u, user.PlatformTwitch))
	c.users.MarkLeft(u)
}

func (c *Classifier) handleClearChat(ctx context.Context, m *twitchirc.ClearChat) {
	// a CLEARCHAT without a target clears the whole room
	if m.TargetUserID == "" {
		return
	}

	u := c.ensure(m.TargetUserID, m.UserName, "")
	params := event.NewParameters(u, user.PlatformTwitch)

	switch {
	case m.BanDuration == 1:
		// one second timeouts are how moderation tools purge messages
		c.dispatcher.Dispatch(ctx, event.ChatUserPurge, params)
	case m.BanDuration > 1:
		params.SpecialIdentifiers["timeoutduration"] = strconv.Itoa(m.BanDuration)
		c.dispatcher.Dispatch(ctx, event.ChatUserTimeout, params)
	default:
		c.dispatcher.Dispatch(ctx, event.ChatUserBan, params)
	}
}

func (c *Classifier) handleClearMessage(ctx context.Context, m *twitchirc.ClearMessage) {
	c.mu.Lock()
	id, ok := c.loginIDs[m.Login]
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Str("login", m.Login).Msg("deleted message from untracked user")
		return
	}

	u := c.ensure(id, m.Login, "")

	params := event.NewParameters(u, user.PlatformTwitch)
	params.SpecialIdentifiers["targetmessageid"] = m.TargetMsgID

	c.dispatcher.Dispatch(ctx, event.ChatMessageDeleted, params)
}

// HandleEventSub classifies one EventSub notification.
func (c *Classifier) HandleEventSub(ctx context.Context, msg eventsub.Message[eventsub.NotificationPayload]) {
	if !c.dedup.ShouldProcess(msg.Metadata.MessageID) {
		c.logger.Debug().Str("message-id", msg.Metadata.MessageID).Msg("dropping retransmitted notification")
		return
	}

	ev := msg.Payload.Event

	switch msg.Metadata.SubscriptionType {
	case "stream.online":
		params := event.NewParameters(c.users.Owner(), user.PlatformTwitch)
		if c.dispatcher.Dispatch(ctx, event.TwitchChannelStreamStart, params) {
			c.alert("stream went live", "green")
		}
	case "stream.offline":
		params := event.NewParameters(c.users.Owner(), user.PlatformTwitch)
		c.dispatcher.Dispatch(ctx, event.TwitchChannelStreamStop, params)
	case "channel.update":
		params := event.NewParameters(c.users.Owner(), user.PlatformTwitch)
		c.dispatcher.Dispatch(ctx, event.TwitchChannelUpdated, params)
	case "channel.follow":
		u := c.ensure(ev.UserID, ev.UserLogin, ev.UserName)
		if !c.users.MarkFollowed(u) {
			return
		}

		params := event.NewParameters(u, user.PlatformTwitch)
		if c.dispatcher.Dispatch(ctx, event.TwitchChannelFollowed, params) {
			c.alert(u.Name()+" followed", "blue")
		}
	case "channel.raid":
		c.handleRaidNotification(ctx, ev)
	case "channel.cheer":
		c.handleCheer(ctx, ev)
	case "channel.channel_points_custom_reward_redemption.add":
		c.handleRedemption(ctx, ev)
	default:
		c.logger.Debug().Str("type", msg.Metadata.SubscriptionType).Msg("unhandled notification type")
	}
}

func (c *Classifier) handleRaidNotification(ctx context.Context, ev eventsub.Event) {
	if ev.ToBroadcasterUserID == c.channelID {
		// whichever transport announced the raid first wins, the kind is
		// single use per raider
		c.handleIncomingRaid(ctx, ev.FromBroadcasterUserID, ev.FromBroadcasterUserLogin, ev.FromBroadcasterUserName, ev.Viewers, "")
		return
	}

	target := c.ensure(ev.ToBroadcasterUserID, ev.ToBroadcasterUserLogin, ev.ToBroadcasterUserName)

	params := event.NewParameters(c.users.Owner(), user.PlatformTwitch)
	params.TargetUser = target
	params.SpecialIdentifiers["raidviewercount"] = strconv.Itoa(ev.Viewers)

	c.dispatcher.Dispatch(ctx, event.TwitchChannelOutgoingRaidCompleted, params)
}

func (c *Classifier) handleCheer(ctx context.Context, ev eventsub.Event) {
	u := user.Anonymous(user.PlatformTwitch)
	if !ev.IsAnonymous {
		u = c.ensure(ev.UserID, ev.UserLogin, ev.UserName)
	}

	stripped := stripCheermotes(ev.Message)

	params := event.NewParameters(u, user.PlatformTwitch)
	params.Arguments = strings.Fields(stripped)
	params.SpecialIdentifiers["message"] = ev.Message
	params.SpecialIdentifiers["messagenocheermotes"] = stripped
	params.SpecialIdentifiers["bitsamount"] = strconv.Itoa(ev.Bits)

	if c.dispatcher.Dispatch(ctx, event.TwitchChannelBitsCheered, params) {
		c.alert(u.Name()+" cheered "+humanize.Comma(int64(ev.Bits))+" bits", "purple")
	}
}

func (c *Classifier) handleRedemption(ctx context.Context, ev eventsub.Event) {
	u := c.ensure(ev.UserID, ev.UserLogin, ev.UserName)

	params := event.NewParameters(u, user.PlatformTwitch)
	params.Arguments = strings.Fields(ev.UserInput)
	params.SpecialIdentifiers["message"] = ev.UserInput

	if ev.Reward != nil {
		params.SpecialIdentifiers["rewardname"] = ev.Reward.Title
		params.SpecialIdentifiers["rewardcost"] = strconv.Itoa(ev.Reward.Cost)
	}

	if c.dispatcher.Dispatch(ctx, event.TwitchChannelPointsRedeemed, params) && ev.Reward != nil {
		c.alert(u.Name()+" redeemed "+ev.Reward.Title, "blue")
	}
}

// DispatchGift performs one gifted subscription. When the gift belongs to
// an announced batch the per-recipient bookkeeping still happens but the
// mass event covers the command.
func (c *Classifier) DispatchGift(ctx context.Context, g *gift.Gift, fireEventCommand bool) {
	c.users.Touch(g.Recipient)

	if !fireEventCommand {
		c.logger.Debug().
			Str("recipient", g.Recipient.Login).
			Msg("gift covered by mass announcement, skipping event command")

		return
	}

	params := event.NewParameters(g.Gifter, user.PlatformTwitch)
	params.TargetUser = g.Recipient
	params.SpecialIdentifiers["usersubplan"] = "Tier " + strconv.Itoa(g.Tier)
	params.SpecialIdentifiers["usersubmonthsgifted"] = strconv.Itoa(g.Months)

	if c.dispatcher.Dispatch(ctx, event.TwitchChannelSubscriptionGifted, params) {
		c.alert(g.Gifter.Name()+" gifted a sub to "+g.Recipient.Name(), "purple")
	}
}

// DispatchMassGift performs one completed or flushed gift batch.
func (c *Classifier) DispatchMassGift(ctx context.Context, m *gift.MassGift) {
	params := event.NewParameters(m.Gifter, user.PlatformTwitch)
	params.Arguments = m.RecipientLogins()
	params.SpecialIdentifiers["subsgiftedamount"] = strconv.Itoa(m.AnnouncedTotal)
	params.SpecialIdentifiers["subsgiftedlifetimeamount"] = strconv.Itoa(m.LifetimeGifted)

	if c.dispatcher.Dispatch(ctx, event.TwitchChannelMassSubscriptionsGifted, params) {
		c.alert(m.Gifter.Name()+" gifted "+humanize.Comma(int64(m.AnnouncedTotal))+" subs", "purple")
	}
}

// ensure registers the user and remembers the login to ID mapping for
// packets that only carry a login.
func (c *Classifier) ensure(platformID, login, displayName string) *user.User {
	u := c.users.Ensure(user.PlatformTwitch, platformID, login, displayName)

	if login != "" && platformID != "" {
		c.mu.Lock()
		c.loginIDs[login] = platformID
		c.mu.Unlock()
	}

	return u
}

// resolveLogin finds the platform ID for a login, asking the API when the
// login has not been seen yet.
func (c *Classifier) resolveLogin(ctx context.Context, login string) (*user.User, error) {
	c.mu.Lock()
	id, ok := c.loginIDs[login]
	c.mu.Unlock()

	if ok {
		return c.ensure(id, login, ""), nil
	}

	resp, err := c.api.GetUsers(ctx, []string{login}, nil)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, ErrUserNotFound
	}

	data := resp.Data[0]

	return c.ensure(data.ID, data.Login, data.DisplayName), nil
}

func (c *Classifier) alert(message, color string) {
	if c.alerts == nil {
		return
	}

	c.alerts.AddAlert(message, color)
}

func applyBadges(u *user.User, badges []twitchirc.Badge) {
	for _, b := range badges {
		switch b.Name {
		case "subscriber", "founder":
			u.IsSubscriber = true
		}
	}
}

func stripCheermotes(message string) string {
	fields := strings.Fields(message)
	kept := fields[:0]

	for _, f := range fields {
		if cheermoteRE.MatchString(f) {
			continue
		}

		kept = append(kept, f)
	}

	return strings.Join(kept, " ")
}
