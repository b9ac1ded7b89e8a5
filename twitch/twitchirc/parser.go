package twitchirc

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrZeroLengthMessage is returned when parsing if the input is
	// zero-length.
	ErrZeroLengthMessage = errors.New("irc: cannot parse zero-length message")

	// ErrMissingDataAfterPrefix is returned when parsing if there is
	// no message data after the prefix.
	ErrMissingDataAfterPrefix = errors.New("irc: no message data after prefix")

	// ErrMissingDataAfterTags is returned when parsing if there is no
	// message data after the tags.
	ErrMissingDataAfterTags = errors.New("irc: no message data after tags")

	// ErrMissingCommand is returned when parsing if there is no
	// command in the parsed message.
	ErrMissingCommand = errors.New("irc: missing message command")

	ErrUnhandledCommand = errors.New("irc: message command not handled by parser")
)

type tagValue string

type tags map[string]tagValue

type rawTMI struct {
	tags
	*prefix

	Command string
	Params  []string
}

type prefix struct {
	// Name will contain the nick of who sent the message, the
	// server who sent the message, or a blank string
	Name string

	// User will either contain the user who sent the message or a blank string
	User string

	// Host will either contain the host of who sent the message or a blank string
	Host string
}

var tagDecodeSlashMap = map[rune]rune{
	':':  ';',
	's':  ' ',
	'\\': '\\',
	'r':  '\r',
	'n':  '\n',
}

// ParseIRC turns one raw IRC line into a typed message.
func ParseIRC(message string) (IRCer, error) {
	message = strings.TrimRight(message, "\r\n")
	if len(message) == 0 {
		return nil, ErrZeroLengthMessage
	}

	c := &rawTMI{
		tags:   tags{},
		prefix: &prefix{},
	}

	if message[0] == '@' {
		loc := strings.Index(message, " ")
		if loc == -1 {
			return nil, ErrMissingDataAfterTags
		}

		c.tags = parseTags(message[1:loc])
		message = message[loc+1:]
	}

	if message[0] == ':' {
		loc := strings.Index(message, " ")
		if loc == -1 {
			return nil, ErrMissingDataAfterPrefix
		}

		c.prefix = parsePrefix(message[1:loc])
		message = message[loc+1:]
	}

	// Split out the trailing then the rest of the args. Because
	// we expect there to be at least one result as an arg (the
	// command) we don't need to special case the trailing arg and
	// can just attempt a split on " :"
	split := strings.SplitN(message, " :", 2)
	c.Params = strings.FieldsFunc(split[0], func(r rune) bool {
		return r == ' '
	})

	if len(c.Params) == 0 {
		return nil, ErrMissingCommand
	}

	if len(split) == 2 {
		c.Params = append(c.Params, split[1])
	}

	// Because of how it's parsed, the Command will show up as the
	// first arg.
	c.Command = strings.ToUpper(c.Params[0])
	c.Params = c.Params[1:]

	if len(c.Params) == 0 {
		c.Params = nil
	}

	switch c.Command {
	case "PING":
		return PingMessage{}, nil
	case "JOIN":
		if len(c.Params) == 0 {
			return nil, ErrMissingCommand
		}

		return &UserJoined{
			Login:   c.prefix.Name,
			Channel: strings.TrimPrefix(c.Params[0], "#"),
		}, nil
	case "PART":
		if len(c.Params) == 0 {
			return nil, ErrMissingCommand
		}

		return &UserParted{
			Login:   c.prefix.Name,
			Channel: strings.TrimPrefix(c.Params[0], "#"),
		}, nil
	case "PRIVMSG":
		return c.toPrivateMessage()
	case "USERNOTICE":
		return c.toUserNotice()
	case "CLEARCHAT":
		return c.toClearChat()
	case "CLEARMSG":
		return &ClearMessage{
			Login:       string(c.tags["login"]),
			RoomID:      string(c.tags["room-id"]),
			TargetMsgID: string(c.tags["target-msg-id"]),
			SentAt:      parseTimestamp(string(c.tags["tmi-sent-ts"])),
		}, nil
	}

	return nil, ErrUnhandledCommand
}

func (c *rawTMI) toPrivateMessage() (IRCer, error) {
	if len(c.Params) < 2 {
		return nil, ErrMissingCommand
	}

	p := PrivateMessage{
		ID:              string(c.tags["id"]),
		RoomID:          string(c.tags["room-id"]),
		ChannelUserName: strings.TrimPrefix(c.Params[0], "#"),
		UserID:          string(c.tags["user-id"]),
		Login:           c.prefix.Name,
		DisplayName:     string(c.tags["display-name"]),
		Color:           string(c.tags["color"]),
		SentAt:          parseTimestamp(string(c.tags["tmi-sent-ts"])),
		Message:         c.Params[1],
	}

	if badgeStr := c.tags["badges"]; badgeStr != "" {
		p.Badges = parseBadges(string(badgeStr))
	}

	if bits, err := strconv.Atoi(string(c.tags["bits"])); err == nil {
		p.Bits = bits
	}

	if firstMsg, err := strconv.ParseBool(string(c.tags["first-msg"])); err == nil {
		p.FirstMessage = firstMsg
	}

	return &p, nil
}

func (c *rawTMI) toUserNotice() (IRCer, error) {
	u := UserNotice{
		ID:          string(c.tags["id"]),
		RoomID:      string(c.tags["room-id"]),
		Login:       string(c.tags["login"]),
		DisplayName: string(c.tags["display-name"]),
		UserID:      string(c.tags["user-id"]),
		MsgID:       MsgID(c.tags["msg-id"]),
		SystemMsg:   string(c.tags["system-msg"]),
		Badges:      parseBadges(string(c.tags["badges"])),
		SentAt:      parseTimestamp(string(c.tags["tmi-sent-ts"])),
	}

	switch u.MsgID {
	case Sub, ReSub:
		cumMonths, err := strconv.Atoi(emptyStringZero(string(c.tags["msg-param-cumulative-months"])))
		if err != nil {
			return nil, err
		}

		streakMonths, err := strconv.Atoi(emptyStringZero(string(c.tags["msg-param-streak-months"])))
		if err != nil {
			return nil, err
		}

		shouldShare, _ := strconv.ParseBool(string(c.tags["msg-param-should-share-streak"]))

		sub := &SubMessage{
			UserNotice:        u,
			CumulativeMonths:  cumMonths,
			StreakMonths:      streakMonths,
			ShouldShareStreak: shouldShare,
			SubPlan:           SubPlan(c.tags["msg-param-sub-plan"]),
			SubPlanName:       string(c.tags["msg-param-sub-plan-name"]),
		}

		if len(c.Params) > 1 {
			sub.Message = c.Params[1]
		}

		return sub, nil
	case SubGift:
		months, err := strconv.Atoi(emptyStringZero(string(c.tags["msg-param-months"])))
		if err != nil {
			return nil, err
		}

		giftMonths, err := strconv.Atoi(emptyStringZero(string(c.tags["msg-param-gift-months"])))
		if err != nil {
			return nil, err
		}

		gift := SubGiftMessage{
			UserNotice:           u,
			Months:               months,
			GiftMonths:           giftMonths,
			RecipientID:          string(c.tags["msg-param-recipient-id"]),
			RecipientUserName:    string(c.tags["msg-param-recipient-user-name"]),
			RecipientDisplayName: string(c.tags["msg-param-recipient-display-name"]),
			SubPlan:              SubPlan(c.tags["msg-param-sub-plan"]),
			SubPlanName:          string(c.tags["msg-param-sub-plan-name"]),
		}

		return &gift, nil
	case SubMysteryGift:
		count, err := strconv.Atoi(emptyStringZero(string(c.tags["msg-param-mass-gift-count"])))
		if err != nil {
			return nil, err
		}

		senderCount, err := strconv.Atoi(emptyStringZero(string(c.tags["msg-param-sender-count"])))
		if err != nil {
			return nil, err
		}

		mass := SubMysteryGiftMessage{
			UserNotice:    u,
			MassGiftCount: count,
			SenderCount:   senderCount,
			SubPlan:       SubPlan(c.tags["msg-param-sub-plan"]),
		}

		return &mass, nil
	case Raid:
		viewerCount, err := strconv.Atoi(emptyStringZero(string(c.tags["msg-param-viewerCount"])))
		if err != nil {
			return nil, err
		}

		raid := RaidMessage{
			UserNotice:  u,
			DisplayName: string(c.tags["msg-param-displayName"]),
			Login:       string(c.tags["msg-param-login"]),
			ViewerCount: viewerCount,
		}

		return &raid, nil
	}

	return &u, nil
}

func (c *rawTMI) toClearChat() (IRCer, error) {
	cc := ClearChat{
		RoomID:       string(c.tags["room-id"]),
		TargetUserID: string(c.tags["target-user-id"]),
		SentAt:       parseTimestamp(string(c.tags["tmi-sent-ts"])),
	}

	if duration, err := strconv.Atoi(string(c.tags["ban-duration"])); err == nil {
		cc.BanDuration = duration
	}

	if len(c.Params) > 1 {
		cc.UserName = c.Params[1]
	}

	return &cc, nil
}

func emptyStringZero(s string) string {
	if s == "" {
		return "0"
	}

	return s
}

func parseBadges(badgeStr string) []Badge {
	badgeSplit := strings.Split(badgeStr, ",")
	badges := make([]Badge, 0, len(badgeSplit))

	for _, badge := range badgeSplit {
		parts := strings.SplitN(badge, "/", 2)
		if len(parts) == 1 {
			badges = append(badges, Badge{Name: parts[0]})
			continue
		}

		version, err := strconv.Atoi(parts[1])
		if err != nil {
			badges = append(badges, Badge{Name: parts[0]})
			continue
		}

		badges = append(badges, Badge{Name: parts[0], Version: version})
	}

	return badges
}

func parseTimestamp(timeStr string) time.Time {
	i, err := strconv.ParseInt(timeStr, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, i*1e6)
}

func parsePrefix(line string) *prefix {
	id := &prefix{
		Name: line,
	}

	uh := strings.SplitN(id.Name, "@", 2)
	if len(uh) == 2 {
		id.Name, id.Host = uh[0], uh[1]
	}

	nu := strings.SplitN(id.Name, "!", 2)
	if len(nu) == 2 {
		id.Name, id.User = nu[0], nu[1]
	}

	return id
}

func parseTagValue(v string) tagValue {
	ret := &bytes.Buffer{}

	input := bytes.NewBufferString(v)

	for {
		c, _, err := input.ReadRune()
		if err != nil {
			break
		}

		if c == '\\' {
			c2, _, err := input.ReadRune()
			// a backslash at the end of the tag value is dropped
			if err != nil {
				break
			}

			if replacement, ok := tagDecodeSlashMap[c2]; ok {
				ret.WriteRune(replacement)
			} else {
				ret.WriteRune(c2)
			}
		} else {
			ret.WriteRune(c)
		}
	}

	return tagValue(ret.String())
}

func parseTags(line string) tags {
	ret := tags{}

	tagList := strings.Split(line, ";")
	for _, tag := range tagList {
		parts := strings.SplitN(tag, "=", 2)
		if len(parts) < 2 {
			ret[parts[0]] = ""
			continue
		}

		ret[parts[0]] = parseTagValue(parts[1])
	}

	return ret
}
