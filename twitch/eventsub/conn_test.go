package eventsub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubService struct {
	mu      sync.Mutex
	created []CreateSubscriptionRequest
}

func (f *fakeSubService) CreateEventSubSubscription(_ context.Context, reqData CreateSubscriptionRequest) (CreateSubscriptionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, reqData)

	return CreateSubscriptionResponse{Total: 1}, nil
}

func (f *fakeSubService) createdRequests() []CreateSubscriptionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]CreateSubscriptionRequest(nil), f.created...)
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// newTestEventSubServer sends a session_welcome on connect, then relays
// every frame queued on sends.
func newTestEventSubServer(t *testing.T, sends <-chan string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()

		ctx := r.Context()

		welcome := `{"metadata":{"message_id":"welcome-1","message_type":"session_welcome"},"payload":{"session":{"id":"sess-123","status":"connected"}}}`
		if err := ws.Write(ctx, websocket.MessageText, []byte(welcome)); err != nil {
			return
		}

		for frame := range sends {
			if err := ws.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}

		ws.Close(websocket.StatusNormalClosure, "bye")
	}))
}

func TestConnCreatesSubscriptions(t *testing.T) {
	t.Parallel()

	sends := make(chan string)
	server := newTestEventSubServer(t, sends)
	defer server.Close()
	defer close(sends)

	service := &fakeSubService{}
	requests := []CreateSubscriptionRequest{
		{Type: "stream.online", Version: "1", Condition: map[string]string{"broadcaster_user_id": "123"}},
		{Type: "channel.follow", Version: "2", Condition: map[string]string{"broadcaster_user_id": "123"}},
	}

	c := NewConn(zerolog.Nop(), "twitch-eventsub", nil, service, requests, func(Message[NotificationPayload]) {})
	c.WSURL = wsURL(server)

	handle, err := c.Connect(t.Context())
	require.NoError(t, err)
	defer handle.Close()

	created := service.createdRequests()
	require.Len(t, created, 2)
	assert.Equal(t, "stream.online", created[0].Type)
	// the session id from the welcome is stamped onto the transport
	assert.Equal(t, "sess-123", created[0].Transport.SessionID)
	assert.Equal(t, "websocket", created[0].Transport.Method)
}

func TestConnDeliversNotifications(t *testing.T) {
	t.Parallel()

	sends := make(chan string)
	server := newTestEventSubServer(t, sends)
	defer server.Close()
	defer close(sends)

	received := make(chan Message[NotificationPayload], 4)

	c := NewConn(zerolog.Nop(), "twitch-eventsub", nil, &fakeSubService{}, nil, func(msg Message[NotificationPayload]) {
		received <- msg
	})
	c.WSURL = wsURL(server)

	handle, err := c.Connect(t.Context())
	require.NoError(t, err)
	defer handle.Close()

	notification := map[string]any{
		"metadata": map[string]any{
			"message_id":        "notif-1",
			"message_type":      "notification",
			"subscription_type": "channel.follow",
		},
		"payload": map[string]any{
			"subscription": map[string]any{"type": "channel.follow"},
			"event": map[string]any{
				"user_id":    "444",
				"user_login": "fan",
			},
		},
	}
	frame, err := json.Marshal(notification)
	require.NoError(t, err)

	sends <- string(frame)

	select {
	case msg := <-received:
		assert.Equal(t, "notif-1", msg.Metadata.MessageID)
		assert.Equal(t, "fan", msg.Payload.Event.UserLogin)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestConnForcedReconnect(t *testing.T) {
	t.Parallel()

	sends := make(chan string)
	server := newTestEventSubServer(t, sends)
	defer server.Close()

	c := NewConn(zerolog.Nop(), "twitch-eventsub", nil, &fakeSubService{}, nil, func(Message[NotificationPayload]) {})
	c.WSURL = wsURL(server)

	handle, err := c.Connect(t.Context())
	require.NoError(t, err)

	sends <- `{"metadata":{"message_id":"rec-1","message_type":"session_reconnect"},"payload":{"session":{"id":"sess-123","reconnect_url":"wss://next.example.com/ws"}}}`
	close(sends)

	select {
	case <-handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handle to complete")
	}

	var forced ErrForcedReconnect
	require.ErrorAs(t, handle.Err(), &forced)
	assert.Equal(t, "wss://next.example.com/ws", forced.NewWSURL)

	// the next attempt targets the announced edge
	assert.Equal(t, "wss://next.example.com/ws", c.dialURL())
	assert.Equal(t, c.WSURL, c.dialURL())
}
