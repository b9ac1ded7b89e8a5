package event

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDeduplicatorShouldProcess(t *testing.T) {
	t.Parallel()

	dedup := NewDeduplicator()
	defer dedup.Close()

	assert.True(t, dedup.ShouldProcess("packet-1"))
	assert.False(t, dedup.ShouldProcess("packet-1"))
	assert.True(t, dedup.ShouldProcess("packet-2"))

	// transports without packet IDs are never deduplicated
	assert.True(t, dedup.ShouldProcess(""))
	assert.True(t, dedup.ShouldProcess(""))
}

func TestDeduplicatorTryMarkFired(t *testing.T) {
	t.Parallel()

	dedup := NewDeduplicator()
	defer dedup.Close()

	userID := uuid.New()

	assert.True(t, dedup.TryMarkFired(ChatUserFirstJoin, userID))
	assert.False(t, dedup.TryMarkFired(ChatUserFirstJoin, userID))
	assert.True(t, dedup.HasFired(ChatUserFirstJoin, userID))

	// another user is unaffected
	assert.True(t, dedup.TryMarkFired(ChatUserFirstJoin, uuid.New()))

	// kinds outside the single-use table always pass and record nothing
	assert.True(t, dedup.TryMarkFired(ChatMessageReceived, userID))
	assert.True(t, dedup.TryMarkFired(ChatMessageReceived, userID))
	assert.False(t, dedup.HasFired(ChatMessageReceived, userID))
}

func TestDeduplicatorTryMarkFiredConcurrent(t *testing.T) {
	t.Parallel()

	dedup := NewDeduplicator()
	defer dedup.Close()

	userID := uuid.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var fired int

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if dedup.TryMarkFired(TwitchChannelFollowed, userID) {
				mu.Lock()
				fired++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, fired)
}
