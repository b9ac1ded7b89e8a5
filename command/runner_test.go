package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julez-dev/encore/event"
	"github.com/julez-dev/encore/user"
)

func TestRunnerEnqueueWithoutBinding(t *testing.T) {
	t.Parallel()

	runner := NewRunner(zerolog.Nop(), 1)

	queued, err := runner.Enqueue(t.Context(), event.TwitchChannelFollowed, event.CommandParameters{})
	require.NoError(t, err)
	assert.False(t, queued)
}

func TestRunnerDisabledBindingNotQueued(t *testing.T) {
	t.Parallel()

	runner := NewRunner(zerolog.Nop(), 1)
	runner.Bind(&Binding{
		Name: "follow alert",
		Kind: event.TwitchChannelFollowed,
		Action: func(context.Context, event.CommandParameters) error {
			t.Error("disabled command must not run")
			return nil
		},
	})

	queued, err := runner.Enqueue(t.Context(), event.TwitchChannelFollowed, event.CommandParameters{})
	require.NoError(t, err)
	assert.False(t, queued)
}

func TestRunnerExecutesQueuedCommands(t *testing.T) {
	t.Parallel()

	runner := NewRunner(zerolog.Nop(), 2)

	var mu sync.Mutex
	var gotLogins []string

	runner.Bind(&Binding{
		Name:    "follow alert",
		Kind:    event.TwitchChannelFollowed,
		Enabled: true,
		Action: func(_ context.Context, params event.CommandParameters) error {
			mu.Lock()
			defer mu.Unlock()
			gotLogins = append(gotLogins, params.User.Login)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	params := event.NewParameters(&user.User{Login: "fan"}, user.PlatformTwitch)
	queued, err := runner.Enqueue(ctx, event.TwitchChannelFollowed, params)
	require.NoError(t, err)
	assert.True(t, queued)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotLogins) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"fan"}, gotLogins)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestRunnerQueueFull(t *testing.T) {
	t.Parallel()

	runner := NewRunner(zerolog.Nop(), 1)
	runner.Bind(&Binding{
		Name:    "spam",
		Kind:    event.ChatMessageReceived,
		Enabled: true,
		Action:  func(context.Context, event.CommandParameters) error { return nil },
	})

	// no Run loop draining, fill the buffer
	for range defaultQueueSize {
		queued, err := runner.Enqueue(t.Context(), event.ChatMessageReceived, event.CommandParameters{})
		require.NoError(t, err)
		require.True(t, queued)
	}

	_, err := runner.Enqueue(t.Context(), event.ChatMessageReceived, event.CommandParameters{})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestRunnerSurvivesFailingCommands(t *testing.T) {
	t.Parallel()

	runner := NewRunner(zerolog.Nop(), 1)

	var mu sync.Mutex
	var ran int

	runner.Bind(&Binding{
		Name:    "panicky",
		Kind:    event.ChatMessageReceived,
		Enabled: true,
		Action: func(context.Context, event.CommandParameters) error {
			panic("boom")
		},
	})
	runner.Bind(&Binding{
		Name:    "broken",
		Kind:    event.ChatUserJoined,
		Enabled: true,
		Action: func(context.Context, event.CommandParameters) error {
			return errors.New("nope")
		},
	})
	runner.Bind(&Binding{
		Name:    "fine",
		Kind:    event.ChatUserLeft,
		Enabled: true,
		Action: func(context.Context, event.CommandParameters) error {
			mu.Lock()
			defer mu.Unlock()
			ran++
			return nil
		},
	})

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	for _, kind := range []event.Kind{event.ChatMessageReceived, event.ChatUserJoined, event.ChatUserLeft} {
		queued, err := runner.Enqueue(ctx, kind, event.CommandParameters{})
		require.NoError(t, err)
		require.True(t, queued)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ran == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}
