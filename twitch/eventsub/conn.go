package eventsub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/julez-dev/encore/conn"
)

const (
	maxMessageSize = 5 * 1024 * 1024 // 5MB
	DefaultWSURL   = "wss://eventsub.wss.twitch.tv/ws?keepalive_timeout_seconds=30"

	dialTimeout = 30 * time.Second
)

// ErrForcedReconnect is the handle failure cause when the service asks
// the client to move to a new edge; the next Connect dials the announced
// URL.
type ErrForcedReconnect struct {
	NewWSURL string
}

func (e ErrForcedReconnect) Error() string {
	return "twitch forced reconnect"
}

// SubscriptionService creates EventSub subscriptions for a session.
type SubscriptionService interface {
	CreateEventSubSubscription(ctx context.Context, reqData CreateSubscriptionRequest) (CreateSubscriptionResponse, error)
}

// Conn is one EventSub websocket session. After the welcome message it
// creates the configured subscriptions; Twitch drops sessions that stay
// silent for 10 seconds. Notifications are handed to the handler,
// including retransmitted ones; duplicate filtering happens downstream
// by message ID.
type Conn struct {
	logger     zerolog.Logger
	name       string
	httpClient *http.Client
	service    SubscriptionService
	requests   []CreateSubscriptionRequest
	handler    func(msg Message[NotificationPayload])

	mu      sync.Mutex
	nextURL string

	// WSURL allows overriding the WebSocket URL for testing
	WSURL string
}

func NewConn(logger zerolog.Logger, name string, httpClient *http.Client, service SubscriptionService, requests []CreateSubscriptionRequest, handler func(msg Message[NotificationPayload])) *Conn {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Conn{
		logger:     logger.With().Str("conn", name).Logger(),
		name:       name,
		httpClient: httpClient,
		service:    service,
		requests:   requests,
		handler:    handler,
		WSURL:      DefaultWSURL,
	}
}

func (c *Conn) Name() string {
	return c.name
}

// dialURL returns the URL for the next attempt, preferring a pending
// forced-reconnect target.
func (c *Conn) dialURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nextURL != "" {
		url := c.nextURL
		c.nextURL = ""
		return url
	}

	return c.WSURL
}

// Connect dials the EventSub websocket and waits for the session
// welcome. Subscriptions are created before returning so the session is
// not reaped for inactivity.
func (c *Conn) Connect(ctx context.Context) (*conn.Handle, error) {
	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	defer dialCancel()

	ws, _, err := websocket.Dial(dialCtx, c.dialURL(), &websocket.DialOptions{
		HTTPClient: c.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial eventsub: %w", err)
	}

	ws.SetReadLimit(maxMessageSize)

	session, err := c.awaitWelcome(ctx, ws)
	if err != nil {
		ws.Close(websocket.StatusNormalClosure, "closing")
		return nil, err
	}

	c.logger.Info().Str("session-id", session.ID).Msg("eventsub session established")

	for _, req := range c.requests {
		resp, err := c.service.CreateEventSubSubscription(ctx, withSessionTransport(req, session.ID))
		if err != nil {
			ws.Close(websocket.StatusNormalClosure, "closing")
			return nil, fmt.Errorf("failed to create subscription %s: %w", req.Type, err)
		}

		c.logger.Debug().Str("type", req.Type).Any("resp-event", resp).Msg("subscription created")
	}

	handle := conn.NewHandle(func() error {
		return ws.Close(websocket.StatusNormalClosure, "closing")
	})

	go func() {
		handle.Fail(c.readLoop(ctx, ws))
		ws.Close(websocket.StatusNormalClosure, "closing")
	}()

	return handle, nil
}

func (c *Conn) awaitWelcome(ctx context.Context, ws *websocket.Conn) (Session, error) {
	welcomeCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	for {
		_, data, err := ws.Read(welcomeCtx)
		if err != nil {
			return Session{}, fmt.Errorf("failed to read welcome message: %w", err)
		}

		var untypedData untypedMessagePayload
		if err := json.Unmarshal(data, &untypedData); err != nil {
			continue
		}

		if untypedData.Metadata.MessageType != "session_welcome" {
			c.logger.Debug().Any("event-message", untypedData).Msg("unexpected message before welcome")
			continue
		}

		welcome, err := convertUntyped[SessionPayload](untypedData)
		if err != nil {
			return Session{}, fmt.Errorf("failed to convert to session welcome: %w", err)
		}

		return welcome.Payload.Session, nil
	}
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}

		var untypedData untypedMessagePayload
		if err := json.Unmarshal(data, &untypedData); err != nil {
			continue
		}

		switch untypedData.Metadata.MessageType {
		case "session_reconnect":
			reconnect, err := convertUntyped[SessionPayload](untypedData)
			if err != nil {
				return fmt.Errorf("failed to convert to session reconnect: %w", err)
			}

			c.mu.Lock()
			c.nextURL = reconnect.Payload.Session.ReconnectURL
			c.mu.Unlock()

			return ErrForcedReconnect{NewWSURL: reconnect.Payload.Session.ReconnectURL}
		case "session_keepalive":
			c.logger.Debug().Msg("session_keepalive")
		case "notification":
			typedData, err := convertUntyped[NotificationPayload](untypedData)
			if err != nil {
				c.logger.Error().Err(err).Msg("failed to convert to notification")
				continue
			}

			c.handler(typedData)
		default:
			c.logger.Info().Any("event-message", untypedData).Msg("unhandled message type")
		}
	}
}

func withSessionTransport(input CreateSubscriptionRequest, sessionID string) CreateSubscriptionRequest {
	input.Transport = TransportRequest{
		Method:    "websocket",
		SessionID: sessionID,
	}
	return input
}

func convertUntyped[T any](untyped untypedMessagePayload) (Message[T], error) {
	typedMessage := Message[T]{
		Metadata: untyped.Metadata,
	}

	if err := json.Unmarshal(untyped.Payload, &typedMessage.Payload); err != nil {
		return Message[T]{}, err
	}

	return typedMessage, nil
}
