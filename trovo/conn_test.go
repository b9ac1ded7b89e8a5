package trovo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	token string
	err   error
}

func (f *fakeTokens) ChatToken(context.Context) (string, error) {
	return f.token, f.err
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// newTestChatServer acknowledges the AUTH frame, reports the received
// token on authTokens and relays every frame queued on sends.
func newTestChatServer(t *testing.T, authTokens chan<- string, sends <-chan string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()

		ctx := r.Context()

		_, raw, err := ws.Read(ctx)
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			return
		}

		var auth authData
		if err := json.Unmarshal(f.Data, &auth); err != nil {
			return
		}

		select {
		case authTokens <- auth.Token:
		default:
		}

		ack := `{"type":"RESPONSE","nonce":"` + f.Nonce + `"}`
		if err := ws.Write(ctx, websocket.MessageText, []byte(ack)); err != nil {
			return
		}

		for send := range sends {
			if err := ws.Write(ctx, websocket.MessageText, []byte(send)); err != nil {
				return
			}
		}

		ws.Close(websocket.StatusNormalClosure, "bye")
	}))
}

func TestChatConnAuthAndDelivery(t *testing.T) {
	t.Parallel()

	authTokens := make(chan string, 1)
	sends := make(chan string)
	server := newTestChatServer(t, authTokens, sends)
	defer server.Close()
	defer close(sends)

	received := make(chan ChatMessage, 4)

	c := NewChatConn(zerolog.Nop(), "trovo-chat", &fakeTokens{token: "secret-token"}, func(msg ChatMessage) {
		received <- msg
	})
	c.WSURL = wsURL(server)

	handle, err := c.Connect(t.Context())
	require.NoError(t, err)
	defer handle.Close()

	assert.Equal(t, "secret-token", <-authTokens)

	sends <- `{"type":"CHAT","channel_info":{"channel_id":"1"},"data":{"eid":"e1","chats":[` +
		`{"type":0,"message_id":"m-1","sender_id":100,"user_name":"chatter","content":"hi"},` +
		`{"type":5003,"message_id":"m-2","sender_id":200,"user_name":"fan"}]}}`

	first := waitForMessage(t, received)
	assert.Equal(t, "m-1", first.MessageID)
	assert.Equal(t, "chatter", first.UserName)

	second := waitForMessage(t, received)
	assert.Equal(t, TypeFollowAlert, second.Type)
}

func TestChatConnAuthRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()

		if _, _, err := ws.Read(r.Context()); err != nil {
			return
		}

		reject := `{"type":"RESPONSE","error":"invalid token"}`
		_ = ws.Write(r.Context(), websocket.MessageText, []byte(reject))
	}))
	defer server.Close()

	c := NewChatConn(zerolog.Nop(), "trovo-chat", &fakeTokens{token: "bad"}, func(ChatMessage) {})
	c.WSURL = wsURL(server)

	_, err := c.Connect(t.Context())
	require.ErrorContains(t, err, "invalid token")
}

func TestChatConnHandleFailsOnServerClose(t *testing.T) {
	t.Parallel()

	authTokens := make(chan string, 1)
	sends := make(chan string)
	server := newTestChatServer(t, authTokens, sends)
	defer server.Close()

	c := NewChatConn(zerolog.Nop(), "trovo-chat", &fakeTokens{token: "secret"}, func(ChatMessage) {})
	c.WSURL = wsURL(server)

	handle, err := c.Connect(t.Context())
	require.NoError(t, err)

	close(sends)

	select {
	case <-handle.Done():
		assert.Error(t, handle.Err())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handle to complete")
	}
}

func waitForMessage(t *testing.T, ch <-chan ChatMessage) ChatMessage {
	t.Helper()

	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat message")
		return ChatMessage{}
	}
}
