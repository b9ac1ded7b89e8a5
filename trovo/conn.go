package trovo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/julez-dev/encore/conn"
)

const (
	DefaultChatWSURL = "wss://open-chat.trovo.tv/chat"

	dialTimeout         = 5 * time.Second
	authTimeout         = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	maxMessageSize      = 1 * 1024 * 1024 // 1MiB
)

// ChatTokenProvider hands out a fresh chat token per connection attempt.
type ChatTokenProvider interface {
	ChatToken(ctx context.Context) (string, error)
}

// ChatConn is one Trovo chat websocket connection. It satisfies the
// supervisor's transport contract; reconnecting is the supervisor's
// business.
type ChatConn struct {
	logger  zerolog.Logger
	name    string
	tokens  ChatTokenProvider
	handler func(msg ChatMessage)

	nonce atomic.Int64

	// WSURL allows overriding the WebSocket URL for testing
	WSURL string
}

// NewChatConn creates a chat connection. handler is called for every
// chat entry of every CHAT frame.
func NewChatConn(logger zerolog.Logger, name string, tokens ChatTokenProvider, handler func(msg ChatMessage)) *ChatConn {
	return &ChatConn{
		logger:  logger.With().Str("conn", name).Logger(),
		name:    name,
		tokens:  tokens,
		handler: handler,
		WSURL:   DefaultChatWSURL,
	}
}

func (c *ChatConn) Name() string {
	return c.name
}

func (c *ChatConn) nextNonce() string {
	return "encore-" + strconv.FormatInt(c.nonce.Add(1), 10)
}

// Connect dials the chat service and authenticates with a chat token.
// The returned handle completes once any of the connection loops dies.
func (c *ChatConn) Connect(ctx context.Context) (*conn.Handle, error) {
	token, err := c.tokens.ChatToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chat token: %w", err)
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	defer dialCancel()

	ws, _, err := websocket.Dial(dialCtx, c.WSURL, &websocket.DialOptions{
		HTTPClient: &http.Client{Timeout: dialTimeout * 2},
	})
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	ws.SetReadLimit(maxMessageSize)

	if err := c.authenticate(ctx, ws, token); err != nil {
		ws.Close(websocket.StatusNormalClosure, "closing")
		return nil, fmt.Errorf("auth failed: %w", err)
	}

	handle := conn.NewHandle(func() error {
		return ws.Close(websocket.StatusNormalClosure, "closing")
	})

	go func() {
		g, gctx := errgroup.WithContext(ctx)

		// the server may shorten the ping interval via PONG gap
		gapCh := make(chan time.Duration, 1)

		g.Go(func() error {
			return c.readLoop(gctx, ws, gapCh)
		})

		g.Go(func() error {
			return c.pingLoop(gctx, ws, gapCh)
		})

		err := g.Wait()
		ws.Close(websocket.StatusNormalClosure, "closing")
		handle.Fail(err)
	}()

	return handle, nil
}

func (c *ChatConn) authenticate(ctx context.Context, ws *websocket.Conn, token string) error {
	data, err := json.Marshal(authData{Token: token})
	if err != nil {
		return err
	}

	if err := c.writeFrame(ctx, ws, frame{Type: "AUTH", Nonce: c.nextNonce(), Data: data}); err != nil {
		return err
	}

	authCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	// the first RESPONSE acknowledges the AUTH; chats may arrive before
	// it and are dropped, Trovo resends recent history after auth
	for {
		_, raw, err := ws.Read(authCtx)
		if err != nil {
			return fmt.Errorf("read auth response: %w", err)
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}

		if f.Type != "RESPONSE" {
			continue
		}

		if f.Error != "" {
			return fmt.Errorf("auth rejected: %s", f.Error)
		}

		return nil
	}
}

func (c *ChatConn) writeFrame(ctx context.Context, ws *websocket.Conn, f frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}

	return ws.Write(ctx, websocket.MessageText, raw)
}

func (c *ChatConn) readLoop(ctx context.Context, ws *websocket.Conn, gapCh chan<- time.Duration) error {
	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			return err
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.logger.Warn().Err(err).Msg("failed parsing chat frame")
			continue
		}

		switch f.Type {
		case "PONG":
			var pong pongData
			if err := json.Unmarshal(f.Data, &pong); err == nil && pong.Gap > 0 {
				select {
				case gapCh <- time.Duration(pong.Gap) * time.Second:
				default:
				}
			}
		case "CHAT":
			var chat chatData
			if err := json.Unmarshal(f.Data, &chat); err != nil {
				c.logger.Warn().Err(err).Msg("failed parsing chat data")
				continue
			}

			for _, msg := range chat.Chats {
				c.handler(msg)
			}
		case "RESPONSE":
			// acknowledgements outside of auth carry nothing useful
		default:
			c.logger.Debug().Str("type", f.Type).Msg("unhandled chat frame type")
		}
	}
}

func (c *ChatConn) pingLoop(ctx context.Context, ws *websocket.Conn, gapCh <-chan time.Duration) error {
	interval := defaultPingInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case gap := <-gapCh:
			if gap != interval {
				c.logger.Debug().Dur("interval", gap).Msg("adjusting ping interval")
				interval = gap
			}
		case <-timer.C:
			if err := c.writeFrame(ctx, ws, frame{Type: "PING", Nonce: c.nextNonce()}); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}

			timer.Reset(interval)
		}
	}
}
