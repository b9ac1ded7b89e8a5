// Package alert fans out short human-readable notifications to whoever
// is watching, typically the local overlay feed.
package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	historySize   = 100
	subscriberCap = 16
)

// Alert is one displayable notification.
type Alert struct {
	ID        uuid.UUID `json:"id"`
	Message   string    `json:"message"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// Hub collects alerts, keeps a bounded history and fans new alerts out to
// subscribers. Delivery is best-effort; a slow subscriber misses alerts
// rather than blocking the pipeline.
type Hub struct {
	logger zerolog.Logger

	mu          sync.Mutex
	history     []Alert
	subscribers map[int]chan Alert
	nextSubID   int
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:      logger.With().Str("component", "alert-hub").Logger(),
		subscribers: map[int]chan Alert{},
	}
}

// AddAlert records and publishes an alert.
func (h *Hub) AddAlert(message, color string) {
	a := Alert{
		ID:        uuid.New(),
		Message:   message,
		Color:     color,
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, a)
	if len(h.history) > historySize {
		h.history = h.history[len(h.history)-historySize:]
	}

	for id, ch := range h.subscribers {
		select {
		case ch <- a:
		default:
			h.logger.Debug().Int("subscriber", id).Msg("subscriber lagging, dropping alert")
		}
	}
}

// History returns a copy of the retained alerts, oldest first.
func (h *Hub) History() []Alert {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Alert, len(h.history))
	copy(out, h.history)

	return out
}

// Subscribe registers a listener for future alerts. The cancel func must
// be called when done; afterwards the channel is closed.
func (h *Hub) Subscribe() (<-chan Alert, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++

	ch := make(chan Alert, subscriberCap)
	h.subscribers[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if sub, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(sub)
		}
	}

	return ch, cancel
}
