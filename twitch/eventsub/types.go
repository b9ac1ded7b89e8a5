package eventsub

import (
	"encoding/json"
	"time"
)

type Metadata struct {
	MessageID           string    `json:"message_id"`
	MessageType         string    `json:"message_type"`
	MessageTimeStamp    time.Time `json:"message_timestamp"`
	SubscriptionType    string    `json:"subscription_type"`
	SubscriptionVersion string    `json:"subscription_version"`
}

type untypedMessagePayload struct {
	Metadata Metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

type Message[T any] struct {
	Metadata Metadata `json:"metadata"`
	Payload  T        `json:"payload"`
}

type (
	SessionPayload struct {
		Session Session `json:"session"`
	}
	Session struct {
		ID                      string    `json:"id"`
		Status                  string    `json:"status"`
		ConnectedAt             time.Time `json:"connected_at"`
		KeepAliveTimeoutSeconds int       `json:"keepalive_timeout_seconds"`
		ReconnectURL            string    `json:"reconnect_url"`
	}
)

type NotificationPayload struct {
	Subscription Subscription `json:"subscription"`
	Event        Event        `json:"event"`
}

type Transport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id"`
}

type Subscription struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Cost      int               `json:"cost"`
	Condition map[string]string `json:"condition"`
	Transport Transport         `json:"transport"`
	CreatedAt time.Time         `json:"created_at"`
}

// Event is the union of the notification payloads this application
// subscribes to; unused fields stay zero.
type Event struct {
	UserID               string `json:"user_id"`
	UserLogin            string `json:"user_login"`
	UserName             string `json:"user_name"`
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`

	// channel.follow
	FollowedAt time.Time `json:"followed_at"`

	// channel.raid
	FromBroadcasterUserID    string `json:"from_broadcaster_user_id"`
	FromBroadcasterUserLogin string `json:"from_broadcaster_user_login"`
	FromBroadcasterUserName  string `json:"from_broadcaster_user_name"`
	ToBroadcasterUserID      string `json:"to_broadcaster_user_id"`
	ToBroadcasterUserLogin   string `json:"to_broadcaster_user_login"`
	ToBroadcasterUserName    string `json:"to_broadcaster_user_name"`
	Viewers                  int    `json:"viewers"`

	// channel.cheer
	IsAnonymous bool   `json:"is_anonymous"`
	Bits        int    `json:"bits"`
	Message     string `json:"message"`

	// channel.channel_points_custom_reward_redemption.add
	UserInput string  `json:"user_input"`
	Reward    *Reward `json:"reward,omitempty"`

	// stream.online
	StartedAt time.Time `json:"started_at"`
	Type      string    `json:"type"`
}

type Reward struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Cost   int    `json:"cost"`
	Prompt string `json:"prompt"`
}

// https://dev.twitch.tv/docs/api/reference/#create-eventsub-subscription
type (
	CreateSubscriptionRequest struct {
		Type      string            `json:"type"`
		Version   string            `json:"version"`
		Condition map[string]string `json:"condition"`
		Transport TransportRequest  `json:"transport"`
	}

	TransportRequest struct {
		Method    string `json:"method"`
		Callback  string `json:"callback,omitempty"`
		Secret    string `json:"secret,omitempty"`
		SessionID string `json:"session_id,omitempty"`
	}

	CreateSubscriptionResponse struct {
		Data         []Subscription `json:"data"`
		Total        int            `json:"total"`
		TotalCost    int            `json:"total_cost"`
		MaxTotalCost int            `json:"max_total_cost"`
	}
)

// https://dev.twitch.tv/docs/api/reference/#get-eventsub-subscriptions
type (
	GetSubscriptionsResponse struct {
		Total        int            `json:"total"`
		TotalCost    int            `json:"total_cost"`
		MaxTotalCost int            `json:"max_total_cost"`
		Pagination   Pagination     `json:"pagination"`
		Data         []Subscription `json:"data"`
	}

	Pagination struct {
		Cursor string `json:"cursor"`
	}
)
