package twitchirc

import (
	"context"
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

type fakeCreds struct{}

func (fakeCreds) IRCCredentials(context.Context) (Credentials, error) {
	return Credentials{Login: "bot", AccessToken: "token"}, nil
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// newTestIRCServer runs a fake chat endpoint. Every inbound line lands
// on clientLines; frames sent to serverSends go to the client.
func newTestIRCServer(t *testing.T, clientLines chan<- string, serverSends <-chan string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()

		ctx := r.Context()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case frame, ok := <-serverSends:
					if !ok {
						ws.Close(websocket.StatusNormalClosure, "bye")
						return
					}
					if err := ws.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
						return
					}
				}
			}
		}()

		for {
			_, data, err := ws.Read(ctx)
			if err != nil {
				return
			}

			for _, line := range strings.Split(string(data), "\r\n") {
				if line == "" {
					continue
				}

				select {
				case clientLines <- line:
				case <-ctx.Done():
					return
				}
			}
		}
	}))
}

func TestConnConnect(t *testing.T) {
	t.Parallel()

	clientLines := make(chan string, 16)
	serverSends := make(chan string, 16)

	server := newTestIRCServer(t, clientLines, serverSends)
	defer server.Close()

	received := make(chan IRCer, 16)

	c := NewConn(zerolog.Nop(), "twitch-chat", "channel", fakeCreds{}, func(msg IRCer) {
		received <- msg
	})
	c.WSURL = wsURL(server)

	handle, err := c.Connect(t.Context())
	require.NoError(t, err)
	defer handle.Close()

	// authentication handshake then join
	assert.Equal(t, "PASS oauth:token", <-clientLines)
	assert.Equal(t, "NICK bot", <-clientLines)
	assert.Equal(t, "CAP REQ :twitch.tv/membership twitch.tv/tags twitch.tv/commands", <-clientLines)
	assert.Equal(t, "JOIN #channel", <-clientLines)

	serverSends <- "@display-name=Fan;id=msg-1;room-id=123;user-id=456 :fan!fan@fan.tmi.twitch.tv PRIVMSG #channel :hello"

	select {
	case msg := <-received:
		priv, ok := msg.(*PrivateMessage)
		require.True(t, ok)
		assert.Equal(t, "hello", priv.Message)
		assert.Equal(t, "fan", priv.Login)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	// outbound messages go through the write loop
	require.NoError(t, c.Send(&PrivateMessage{ChannelUserName: "channel", Message: "hi chat"}))
	assert.Equal(t, "PRIVMSG #channel :hi chat", <-clientLines)
}

func TestConnRepliesToPing(t *testing.T) {
	t.Parallel()

	clientLines := make(chan string, 16)
	serverSends := make(chan string, 16)

	server := newTestIRCServer(t, clientLines, serverSends)
	defer server.Close()

	c := NewConn(zerolog.Nop(), "twitch-chat", "channel", fakeCreds{}, func(IRCer) {})
	c.WSURL = wsURL(server)

	handle, err := c.Connect(t.Context())
	require.NoError(t, err)
	defer handle.Close()

	// drain handshake
	for range 4 {
		<-clientLines
	}

	serverSends <- "PING :tmi.twitch.tv"

	select {
	case line := <-clientLines:
		assert.Equal(t, "PONG", line)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pong")
	}
}

func TestConnHandleFailsOnServerClose(t *testing.T) {
	t.Parallel()

	clientLines := make(chan string, 16)
	serverSends := make(chan string, 16)

	server := newTestIRCServer(t, clientLines, serverSends)
	defer server.Close()

	c := NewConn(zerolog.Nop(), "twitch-chat", "channel", fakeCreds{}, func(IRCer) {})
	c.WSURL = wsURL(server)

	handle, err := c.Connect(t.Context())
	require.NoError(t, err)

	close(serverSends)

	select {
	case <-handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handle to complete")
	}
}
