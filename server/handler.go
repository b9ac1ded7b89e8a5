package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func (a *API) handleGetHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "UP")
	}
}

func (a *API) handleGetStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		states := a.status.ConnectionStates()

		resp := make(map[string]string, len(states))
		for transport, state := range states {
			resp[transport] = state.String()
		}

		writeJSON(a, w, r, map[string]any{"connections": resp})
	}
}

func (a *API) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := a.getLoggerFrom(r.Context())

		counts, err := a.stats.CountByKind()
		if err != nil {
			logger.Err(err).Msg("could not read event counts")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		resp := make(map[string]int, len(counts))
		for kind, count := range counts {
			resp[kind.String()] = count
		}

		writeJSON(a, w, r, map[string]any{"events": resp})
	}
}

func (a *API) handleGetAlerts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(a, w, r, map[string]any{"alerts": a.alerts.History()})
	}
}

// handleAlertFeed upgrades to a websocket and streams every alert
// published after the upgrade, one JSON object per message.
func (a *API) handleAlertFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := a.getLoggerFrom(r.Context())

		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Err(err).Msg("could not accept websocket connection")
			return
		}

		defer ws.CloseNow()

		feed, unsubscribe := a.alerts.Subscribe()
		defer unsubscribe()

		ctx := r.Context()

		for {
			select {
			case <-ctx.Done():
				ws.Close(websocket.StatusGoingAway, "shutting down")
				return
			case alert, ok := <-feed:
				if !ok {
					ws.Close(websocket.StatusGoingAway, "shutting down")
					return
				}

				if err := wsjson.Write(ctx, ws, alert); err != nil {
					logger.Debug().Err(err).Msg("alert feed subscriber gone")
					return
				}
			}
		}
	}
}

func writeJSON(a *API, w http.ResponseWriter, r *http.Request, data any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger := a.getLoggerFrom(r.Context())
		logger.Err(err).Msg("could not encode response")
	}
}
