package alert

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubHistoryBounded(t *testing.T) {
	t.Parallel()

	hub := NewHub(zerolog.Nop())

	for range historySize + 10 {
		hub.AddAlert("someone followed", "blue")
	}

	history := hub.History()
	assert.Len(t, history, historySize)
}

func TestHubFanOut(t *testing.T) {
	t.Parallel()

	hub := NewHub(zerolog.Nop())

	first, cancelFirst := hub.Subscribe()
	second, cancelSecond := hub.Subscribe()
	defer cancelSecond()

	hub.AddAlert("someone subscribed", "purple")

	a := <-first
	assert.Equal(t, "someone subscribed", a.Message)
	assert.Equal(t, "purple", a.Color)
	assert.NotZero(t, a.ID)

	b := <-second
	assert.Equal(t, a.ID, b.ID)

	// canceled subscriber no longer receives and its channel closes
	cancelFirst()
	hub.AddAlert("another one", "purple")

	_, open := <-first
	assert.False(t, open)

	got := <-second
	assert.Equal(t, "another one", got.Message)
}

func TestHubSlowSubscriberDropped(t *testing.T) {
	t.Parallel()

	hub := NewHub(zerolog.Nop())

	ch, cancel := hub.Subscribe()
	defer cancel()

	// nobody reads; overflow past the buffer must not block
	for range subscriberCap + 5 {
		hub.AddAlert("spam", "red")
	}

	require.Len(t, hub.History(), subscriberCap+5)
	assert.Len(t, ch, subscriberCap)
}
