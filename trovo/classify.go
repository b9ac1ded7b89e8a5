package trovo

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/julez-dev/encore/event"
	"github.com/julez-dev/encore/gift"
	"github.com/julez-dev/encore/user"
)

const renewedSubscriptionText = "has renewed subscription"

var subMonthsRE = regexp.MustCompile(`(\d+) months`)

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
}

// Alerter publishes human-readable notifications.
type Alerter interface {
	AddAlert(message, color string)
}

// UserResolver resolves users the chat service only names by username.
type UserResolver interface {
	GetUsers(ctx context.Context, usernames []string) (GetUsersResponse, error)
}

// Classifier turns raw Trovo chat messages into canonical events.
// Retransmitted messages are dropped by ID before any side effect
// happens. One classifier serves one channel.
type Classifier struct {
	logger     zerolog.Logger
	dispatcher EventDispatcher
	users      UserDirectory
	dedup      *event.Deduplicator
	gifts      *gift.Aggregator
	alerts     Alerter
	api        UserResolver
}

func NewClassifier(logger zerolog.Logger, dispatcher EventDispatcher, users UserDirectory, dedup *event.Deduplicator, alerts Alerter, api UserResolver, massGiftThreshold int) *Classifier {
	c := &Classifier{
		logger:     logger.With().Str("component", "trovo-classifier").Logger(),
		dispatcher: dispatcher,
		users:      users,
		dedup:      dedup,
		alerts:     alerts,
		api:        api,
	}

	c.gifts = gift.NewAggregator(logger, c, massGiftThreshold)

	return c
}

// Gifts exposes the gift aggregator so the session can drive its
// matching loop.
func (c *Classifier) Gifts() *gift.Aggregator {
	return c.gifts
}

// HandleChat classifies one chat service message.
func (c *Classifier) HandleChat(ctx context.Context, msg ChatMessage) {
	if !c.dedup.ShouldProcess(msg.MessageID) {
		return
	}

	switch msg.Type {
	case TypeNormal:
		c.handleChatMessage(ctx, msg, event.KindNone)
	case TypeMagicChatSuperCapChat, TypeMagicChatColorfulChat, TypeMagicChatSpellChat, TypeMagicChatBulletScreenChat:
		c.handleChatMessage(ctx, msg, event.TrovoChannelMagicChat)
	case TypeStreamOnOff:
		c.handleStreamOnOff(ctx, msg)
	case TypeFollowAlert:
		c.handleFollow(ctx, msg)
	case TypeSubscriptionAlert:
		c.handleSubscription(ctx, msg)
	case TypeGiftedSubscriptionSentMessage:
		c.handleMassGiftAnnouncement(ctx, msg)
	case TypeGiftedSubscriptionMessage:
		c.handleGiftedSubscription(ctx, msg)
	case TypeWelcomeMessageFromRaid:
		c.handleRaidWelcome(ctx, msg)
	case TypeSpell, TypeCustomSpell:
		c.handleSpell(ctx, msg)
	case TypeWelcomeMessage:
		c.handleWelcome(ctx, msg)
	default:
		c.logger.Debug().Int("type", int(msg.Type)).Msg("unhandled chat message type")
	}
}

func (c *Classifier) handleChatMessage(ctx context.Context, msg ChatMessage, extraKind event.Kind) {
	u := c.ensure(msg)

	params := event.NewParameters(u, user.PlatformTrovo)
	params.Arguments = strings.Fields(msg.Content)
	params.SpecialIdentifiers["message"] = msg.Content

	c.dispatcher.Dispatch(ctx, event.ChatMessageReceived, params)

	if extraKind != event.KindNone {
		c.dispatcher.Dispatch(ctx, extraKind, params)
	}
}

// handleStreamOnOff fires the stream lifecycle events; the chat service
// announces them with a plain text payload.
func (c *Classifier) handleStreamOnOff(ctx context.Context, msg ChatMessage) {
	params := event.NewParameters(c.users.Owner(), user.PlatformTrovo)

	switch strings.ToLower(msg.Content) {
	case "stream_on":
		if c.dispatcher.Dispatch(ctx, event.TrovoChannelStreamStart, params) {
			c.alert("stream went live", "green")
		}
	case "stream_off":
		c.dispatcher.Dispatch(ctx, event.TrovoChannelStreamStop, params)
	}
}

func (c *Classifier) handleFollow(ctx context.Context, msg ChatMessage) {
	u := c.ensure(msg)
	if !c.users.MarkFollowed(u) {
		return
	}

	params := event.NewParameters(u, user.PlatformTrovo)
	if c.dispatcher.Dispatch(ctx, event.TrovoChannelFollowed, params) {
		c.alert(u.Name()+" followed", "blue")
	}
}

// handleSubscription fires sub or resub. The chat service carries no
// structured fields, everything is parsed out of the announcement text.
func (c *Classifier) handleSubscription(ctx context.Context, msg ChatMessage) {
	u := c.ensure(msg)

	tier := parseSubLevel(msg.SubLevel)
	isResub := strings.Contains(strings.ToLower(msg.Content), renewedSubscriptionText)

	months := 1
	if isResub {
		if m := subMonthsRE.FindStringSubmatch(msg.Content); m != nil {
			months, _ = strconv.Atoi(m[1])
		}
	}

	u.IsSubscriber = true
	u.SubTier = tier

	params := event.NewParameters(u, user.PlatformTrovo)
	params.SpecialIdentifiers["message"] = msg.Content
	params.SpecialIdentifiers["usersubmonths"] = strconv.Itoa(months)
	params.SpecialIdentifiers["usersubplan"] = "Tier " + strconv.Itoa(tier)

	if isResub {
		if c.dispatcher.Dispatch(ctx, event.TrovoChannelResubscribed, params) {
			c.alert(u.Name()+" resubscribed for the "+humanize.Ordinal(months)+" month", "purple")
		}

		return
	}

	if c.dispatcher.Dispatch(ctx, event.TrovoChannelSubscribed, params) {
		c.alert(u.Name()+" subscribed", "purple")
	}
}

// handleMassGiftAnnouncement submits the batch announcement; its content
// is the announced total.
func (c *Classifier) handleMassGiftAnnouncement(ctx context.Context, msg ChatMessage) {
	total, err := strconv.Atoi(strings.TrimSpace(msg.Content))
	if err != nil || total < 1 {
		total = 1
	}

	gifter := c.ensure(msg)

	c.gifts.SubmitMassGift(ctx, &gift.MassGift{
		Gifter:         gifter,
		Platform:       user.PlatformTrovo,
		Tier:           1,
		AnnouncedTotal: total,
		AnnouncedAt:    msg.SentAt(),
	})
}

// handleGiftedSubscription submits one gifted sub; its content is
// "<gifter>,<giftee>".
func (c *Classifier) handleGiftedSubscription(ctx context.Context, msg ChatMessage) {
	splits := strings.Split(msg.Content, ",")
	if len(splits) != 2 {
		c.logger.Warn().Str("content", msg.Content).Msg("unexpected gifted subscription content")
		return
	}

	gifter := c.ensure(msg)
	recipient := c.resolveUsername(ctx, strings.TrimSpace(splits[1]))
	if recipient == nil {
		recipient = gifter
	}

	recipient.IsSubscriber = true
	if recipient.SubTier == 0 {
		recipient.SubTier = 1
	}

	c.gifts.SubmitGift(ctx, &gift.Gift{
		Gifter:     gifter,
		Recipient:  recipient,
		Platform:   user.PlatformTrovo,
		Tier:       1,
		Months:     1,
		ReceivedAt: msg.SentAt(),
	})
}

func (c *Classifier) handleRaidWelcome(ctx context.Context, msg ChatMessage) {
	raw, ok := msg.ContentData["raiderNum"]
	if !ok {
		return
	}

	var viewers int
	if err := json.Unmarshal(raw, &viewers); err != nil {
		c.logger.Warn().Err(err).Msg("unparsable raider count")
		return
	}

	u := c.ensure(msg)

	params := event.NewParameters(u, user.PlatformTrovo)
	params.SpecialIdentifiers["raidviewercount"] = strconv.Itoa(viewers)

	if c.dispatcher.Dispatch(ctx, event.TrovoChannelRaided, params) {
		c.alert(u.Name()+" raided with "+humanize.Comma(int64(viewers))+" viewers", "orange")
	}
}

func (c *Classifier) handleSpell(ctx context.Context, msg ChatMessage) {
	var spell SpellContent
	if err := json.Unmarshal([]byte(msg.Content), &spell); err != nil {
		c.logger.Warn().Err(err).Msg("unparsable spell content")
		return
	}

	u := c.ensure(msg)

	params := event.NewParameters(u, user.PlatformTrovo)
	params.SpecialIdentifiers["spellname"] = spell.Gift
	params.SpecialIdentifiers["spellquantity"] = strconv.Itoa(spell.Num)
	params.SpecialIdentifiers["spellvalue"] = strconv.Itoa(spell.GiftValue)
	params.SpecialIdentifiers["spelltotalvalue"] = strconv.Itoa(spell.TotalValue())
	params.SpecialIdentifiers["spellvaluetype"] = spell.ValueType

	if c.dispatcher.Dispatch(ctx, event.TrovoChannelSpellCast, params) {
		c.alert(u.Name()+" cast "+spell.Gift+" for "+humanize.Comma(int64(spell.TotalValue()))+" "+spell.ValueType, "orange")
	}
}

func (c *Classifier) handleWelcome(ctx context.Context, msg ChatMessage) {
	u := c.ensure(msg)

	params := event.NewParameters(u, user.PlatformTrovo)
	c.dispatcher.Dispatch(ctx, event.ChatUserFirstJoin, params)
	c.dispatcher.Dispatch(ctx, event.ChatUserJoined, params)
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

	params := event.NewParameters(g.Gifter, user.PlatformTrovo)
	params.TargetUser = g.Recipient
	params.Arguments = []string{g.Recipient.Login}

	if c.dispatcher.Dispatch(ctx, event.TrovoChannelSubscriptionGifted, params) {
		c.alert(g.Gifter.Name()+" gifted a sub to "+g.Recipient.Name(), "purple")
	}
}

// DispatchMassGift performs one completed or flushed gift batch.
func (c *Classifier) DispatchMassGift(ctx context.Context, m *gift.MassGift) {
	params := event.NewParameters(m.Gifter, user.PlatformTrovo)
	params.Arguments = m.RecipientLogins()
	params.SpecialIdentifiers["subsgiftedamount"] = strconv.Itoa(m.AnnouncedTotal)
	params.SpecialIdentifiers["isanonymous"] = strconv.FormatBool(m.IsAnonymous)

	if c.dispatcher.Dispatch(ctx, event.TrovoChannelMassSubscriptionsGifted, params) {
		c.alert(m.Gifter.Name()+" gifted "+humanize.Comma(int64(m.AnnouncedTotal))+" subs", "purple")
	}
}

func (c *Classifier) ensure(msg ChatMessage) *user.User {
	u := c.users.Ensure(user.PlatformTrovo, strconv.FormatInt(msg.SenderID, 10), msg.UserName, msg.NickName)

	for _, role := range msg.Roles {
		if strings.EqualFold(role, "subscriber") {
			u.IsSubscriber = true
		}
	}

	return u
}

// resolveUsername finds the user by username, asking the API when the
// username has not been seen in chat.
func (c *Classifier) resolveUsername(ctx context.Context, username string) *user.User {
	if username == "" {
		return nil
	}

	resp, err := c.api.GetUsers(ctx, []string{username})
	if err != nil || len(resp.Users) == 0 {
		c.logger.Debug().Err(err).Str("username", username).Msg("could not resolve user")
		return nil
	}

	data := resp.Users[0]

	return c.users.Ensure(user.PlatformTrovo, data.UserID, data.UserName, data.NickName)
}

func (c *Classifier) alert(message, color string) {
	if c.alerts == nil {
		return
	}

	c.alerts.AddAlert(message, color)
}

// parseSubLevel maps a wire level like "L3" to the numeric tier.
func parseSubLevel(level string) int {
	tier, err := strconv.Atoi(strings.TrimPrefix(level, "L"))
	if err != nil || tier < 1 {
		return 1
	}

	return tier
}
