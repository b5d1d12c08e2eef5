package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kalambet/prefsets/internal/settings"
)

const (
	watchBuffer    = 256
	watchWriteWait = 10 * time.Second
	watchPingEvery = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is a frame of the /watch stream.
type Event struct {
	// Type is "hello", "change" or "active".
	Type         string `json:"type"`
	Subscription string `json:"subscription,omitempty"`
	Preset       string `json:"preset"`
	Key          string `json:"key,omitempty"`
}

// handleWatch streams change events for one preset over a websocket. Without
// ?preset= the preset active at connect time is watched. Active preset
// switches are always reported.
func handleWatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("preset")
		if name == "" {
			active, err := deps.Registry.ActiveName()
			if err != nil {
				presetError(w, err)
				return
			}
			name = active
		}
		ok, err := deps.Registry.Has(name)
		if err != nil {
			presetError(w, err)
			return
		}
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "preset %q not found", name)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			deps.Logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		id := uuid.New().String()
		logger := deps.Logger.With("subscription", id, "preset", name)

		// Listeners run on committing goroutines; never block them.
		events := make(chan Event, watchBuffer)
		push := func(ev Event) {
			select {
			case events <- ev:
			default:
				logger.Warn("watch client too slow, dropping event", "key", ev.Key)
			}
		}

		view := deps.Registry.Preset(name)
		cancelView := view.Listen(func(_ settings.Settings, key string) {
			push(Event{Type: "change", Preset: name, Key: key})
		})
		defer cancelView()
		cancelActive := deps.Registry.OnActiveChanged(func(active string) {
			push(Event{Type: "active", Preset: active})
		})
		defer cancelActive()

		logger.Info("watch client connected")
		defer logger.Info("watch client disconnected")

		// Reader: only needed to notice the client going away.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		write := func(v any) error {
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			return conn.WriteJSON(v)
		}
		if err := write(Event{Type: "hello", Subscription: id, Preset: name}); err != nil {
			return
		}

		ping := time.NewTicker(watchPingEvery)
		defer ping.Stop()
		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case ev := <-events:
				if err := write(ev); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteWait)); err != nil {
					return
				}
			}
		}
	}
}
