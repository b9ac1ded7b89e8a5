package twitchirc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/julez-dev/encore/conn"
)

const (
	DefaultWSURL   = "wss://irc-ws.chat.twitch.tv:443"
	dialTimeout    = 5 * time.Second
	pingInterval   = 10 * time.Second
	pingTimeout    = 5 * time.Second
	maxMessageSize = 1 * 1024 * 1024 // 1MiB
	sendBufferSize = 64
)

// Credentials authenticate one IRC login.
type Credentials struct {
	Login       string
	AccessToken string
}

// CredentialsProvider hands out fresh credentials per connection
// attempt, so token refreshes between reconnects are picked up.
type CredentialsProvider interface {
	IRCCredentials(ctx context.Context) (Credentials, error)
}

// Conn is one IRC-over-websocket chat connection joined to one channel.
// It satisfies the supervisor's transport contract; reconnecting is the
// supervisor's business.
type Conn struct {
	logger  zerolog.Logger
	name    string
	channel string
	creds   CredentialsProvider
	handler func(IRCer)

	sendCh chan IRCer

	// WSURL allows overriding the WebSocket URL for testing
	WSURL string
}

// NewConn creates a chat connection for the given channel. handler is
// called for every inbound parsed message.
func NewConn(logger zerolog.Logger, name, channel string, creds CredentialsProvider, handler func(IRCer)) *Conn {
	return &Conn{
		logger:  logger.With().Str("conn", name).Str("channel", channel).Logger(),
		name:    name,
		channel: channel,
		creds:   creds,
		handler: handler,
		sendCh:  make(chan IRCer, sendBufferSize),
		WSURL:   DefaultWSURL,
	}
}

func (c *Conn) Name() string {
	return c.name
}

// Send queues a message for the write loop. The queue survives
// reconnects.
func (c *Conn) Send(msg IRCer) error {
	select {
	case c.sendCh <- msg:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

// Connect dials, authenticates and joins the channel. The returned
// handle completes once any of the connection loops dies.
func (c *Conn) Connect(ctx context.Context) (*conn.Handle, error) {
	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	defer dialCancel()

	ws, _, err := websocket.Dial(dialCtx, c.WSURL, &websocket.DialOptions{
		HTTPClient: &http.Client{Timeout: dialTimeout * 2},
	})
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	ws.SetReadLimit(maxMessageSize)

	if err := c.authenticate(ctx, ws); err != nil {
		ws.Close(websocket.StatusNormalClosure, "closing")
		return nil, fmt.Errorf("auth failed: %w", err)
	}

	joinMsg := JoinMessage{Channel: c.channel}
	if err := ws.Write(ctx, websocket.MessageText, []byte(joinMsg.IRC())); err != nil {
		ws.Close(websocket.StatusNormalClosure, "closing")
		return nil, fmt.Errorf("join failed: %w", err)
	}

	handle := conn.NewHandle(func() error {
		return ws.Close(websocket.StatusNormalClosure, "closing")
	})

	go func() {
		g, gctx := errgroup.WithContext(ctx)

		// internal channel for PONG replies (reader → writer)
		pongCh := make(chan struct{}, 1)

		g.Go(func() error {
			return c.readLoop(gctx, ws, pongCh)
		})

		g.Go(func() error {
			return c.writeLoop(gctx, ws, pongCh)
		})

		g.Go(func() error {
			return c.pingLoop(gctx, ws)
		})

		err := g.Wait()
		ws.Close(websocket.StatusNormalClosure, "closing")
		handle.Fail(err)
	}()

	return handle, nil
}

func (c *Conn) authenticate(ctx context.Context, ws *websocket.Conn) error {
	creds, err := c.creds.IRCCredentials(ctx)
	if err != nil {
		return fmt.Errorf("get credentials: %w", err)
	}

	oauth := creds.AccessToken
	if !strings.HasPrefix(oauth, "oauth:") {
		oauth = "oauth:" + oauth
	}

	authMsgs := []string{
		fmt.Sprintf("PASS %s", oauth),
		fmt.Sprintf("NICK %s", creds.Login),
		"CAP REQ :twitch.tv/membership twitch.tv/tags twitch.tv/commands",
	}

	for _, msg := range authMsgs {
		if err := ws.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
			return err
		}
	}

	return nil
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn, pongCh chan<- struct{}) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}

		// Twitch may send multiple messages in one frame
		for _, line := range strings.Split(string(data), "\r\n") {
			if line == "" {
				continue
			}

			parsed, err := ParseIRC(line)
			if err != nil {
				if errors.Is(err, ErrUnhandledCommand) {
					// numeric replies and capability acks are noise
					if !strings.HasPrefix(line, ":tmi.twitch.tv") {
						c.logger.Debug().Str("line", line).Msg("unhandled IRC command")
					}
					continue
				}

				c.logger.Warn().Err(err).Str("line", line).Msg("failed parsing IRC line")
				continue
			}

			// PING → signal writer to send PONG
			if _, ok := parsed.(PingMessage); ok {
				select {
				case pongCh <- struct{}{}:
				default:
				}
				continue
			}

			c.handler(parsed)
		}
	}
}

func (c *Conn) writeLoop(ctx context.Context, ws *websocket.Conn, pongCh <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pongCh:
			if err := ws.Write(ctx, websocket.MessageText, []byte("PONG")); err != nil {
				return err
			}
		case msg := <-c.sendCh:
			if err := ws.Write(ctx, websocket.MessageText, []byte(msg.IRC())); err != nil {
				return err
			}
		}
	}
}

func (c *Conn) pingLoop(ctx context.Context, ws *websocket.Conn) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping timeout: %w", err)
			}
		}
	}
}
