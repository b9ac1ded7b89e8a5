package twitch

import (
	"fmt"
	"time"
)

// error response
type (
	APIError struct {
		ErrorText string `json:"error"`
		Status    int    `json:"status"`
		Message   string `json:"message"`
	}
)

func (a APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", a.ErrorText, a.Status, a.Message)
}

// https://dev.twitch.tv/docs/api/reference/#get-users
type (
	UserResponse struct {
		Data []UserData `json:"data"`
	}

	UserData struct {
		ID              string    `json:"id"`
		Login           string    `json:"login"`
		DisplayName     string    `json:"display_name"`
		Type            string    `json:"type"`
		BroadcasterType string    `json:"broadcaster_type"`
		Description     string    `json:"description"`
		ProfileImageURL string    `json:"profile_image_url"`
		OfflineImageURL string    `json:"offline_image_url"`
		CreatedAt       time.Time `json:"created_at"`
	}
)

// https://api.twitch.tv/helix/streams
type (
	GetStreamsResponse struct {
		Data       []StreamData `json:"data"`
		Pagination Pagination   `json:"pagination"`
	}

	StreamData struct {
		ID           string    `json:"id"`
		UserID       string    `json:"user_id"`
		UserLogin    string    `json:"user_login"`
		UserName     string    `json:"user_name"`
		GameID       string    `json:"game_id"`
		GameName     string    `json:"game_name"`
		Type         string    `json:"type"`
		Title        string    `json:"title"`
		Tags         []string  `json:"tags"`
		ViewerCount  int       `json:"viewer_count"`
		StartedAt    time.Time `json:"started_at"`
		Language     string    `json:"language"`
		ThumbnailURL string    `json:"thumbnail_url"`
		IsMature     bool      `json:"is_mature"`
	}

	Pagination struct {
		Cursor string `json:"cursor"`
	}
)

type ChatAnnouncementColor string

const (
	ChatAnnouncementColorBlue    ChatAnnouncementColor = "blue"
	ChatAnnouncementColorGreen   ChatAnnouncementColor = "green"
	ChatAnnouncementColorOrange  ChatAnnouncementColor = "orange"
	ChatAnnouncementColorPurple  ChatAnnouncementColor = "purple"
	ChatAnnouncementColorPrimary ChatAnnouncementColor = "primary"
)

// https://dev.twitch.tv/docs/api/reference/#send-chat-announcement
type (
	CreateChatAnnouncementRequest struct {
		Message string                `json:"message"`
		Color   ChatAnnouncementColor `json:"color"`
	}
)
