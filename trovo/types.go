package trovo

import (
	"encoding/json"
	"time"
)

// ChatMessageType is the numeric message type of the Trovo chat service.
type ChatMessageType int

const (
	TypeNormal ChatMessageType = 0

	TypeSpell                     ChatMessageType = 5
	TypeMagicChatSuperCapChat     ChatMessageType = 6
	TypeMagicChatColorfulChat     ChatMessageType = 7
	TypeMagicChatSpellChat        ChatMessageType = 8
	TypeMagicChatBulletScreenChat ChatMessageType = 9

	TypeSubscriptionAlert             ChatMessageType = 5001
	TypeSystemMessage                 ChatMessageType = 5002
	TypeFollowAlert                   ChatMessageType = 5003
	TypeWelcomeMessage                ChatMessageType = 5004
	TypeGiftedSubscriptionMessage     ChatMessageType = 5005
	TypeGiftedSubscriptionSentMessage ChatMessageType = 5006
	TypeActivityEventMessage          ChatMessageType = 5007
	TypeWelcomeMessageFromRaid        ChatMessageType = 5008
	TypeCustomSpell                   ChatMessageType = 5009
	TypeStreamOnOff                   ChatMessageType = 5012
	TypeUnfollowAlert                 ChatMessageType = 5013
)

// frame is the envelope of every message on the chat socket, both
// directions.
type frame struct {
	Type    string          `json:"type"`
	Nonce   string          `json:"nonce,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Channel *ChannelInfo    `json:"channel_info,omitempty"`
}

type ChannelInfo struct {
	ChannelID string `json:"channel_id"`
}

type authData struct {
	Token string `json:"token"`
}

type pongData struct {
	// Gap is the ping interval in seconds the server asks for.
	Gap int `json:"gap"`
}

type chatData struct {
	EID   string        `json:"eid"`
	Chats []ChatMessage `json:"chats"`
}

// ChatMessage is one entry of a CHAT frame.
type ChatMessage struct {
	Type        ChatMessageType            `json:"type"`
	Content     string                     `json:"content"`
	NickName    string                     `json:"nick_name"`
	Avatar      string                     `json:"avatar"`
	SubLevel    string                     `json:"sub_lv"`
	SubTier     string                     `json:"sub_tier"`
	Medals      []string                   `json:"medals"`
	Roles       []string                   `json:"roles"`
	MessageID   string                     `json:"message_id"`
	SenderID    int64                      `json:"sender_id"`
	SendTime    int64                      `json:"send_time"`
	UID         int64                      `json:"uid"`
	UserName    string                     `json:"user_name"`
	ContentData map[string]json.RawMessage `json:"content_data"`
}

// SentAt converts the wire timestamp.
func (c ChatMessage) SentAt() time.Time {
	return time.Unix(c.SendTime, 0)
}

// SpellContent is the JSON carried in the content of a spell message.
type SpellContent struct {
	Gift      string `json:"gift"`
	Num       int    `json:"num"`
	GiftValue int    `json:"gift_value"`
	ValueType string `json:"value_type"`
}

// TotalValue is the spent amount across the whole cast.
func (s SpellContent) TotalValue() int {
	return s.Num * s.GiftValue
}
