package stream

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// WSHandler serves the push channel at /ws/workspaces/{id}. Each accepted
// connection holds one hub subscription for the requested workspace.
func WSHandler(hub *Hub, onSubscribe func(delta int), logger zerolog.Logger) http.Handler {
	log := logger.With().Str("component", "stream_ws").Logger()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// Browser origin policy is enforced upstream; the stream itself
		// carries no mutations.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workspaceID := strings.TrimPrefix(r.URL.Path, "/ws/workspaces/")
		if workspaceID == "" || strings.Contains(workspaceID, "/") {
			http.Error(w, "workspace id required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		sub := hub.Subscribe(workspaceID)
		if onSubscribe != nil {
			onSubscribe(1)
		}
		log.Info().Str("workspace_id", workspaceID).Msg("stream subscriber connected")

		done := make(chan struct{})
		go func() {
			// Reads are discarded; their only job is detecting the close.
			defer close(done)
			conn.SetReadLimit(512)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		go func() {
			defer func() {
				sub.Close()
				conn.Close()
				if onSubscribe != nil {
					onSubscribe(-1)
				}
				log.Debug().Str("workspace_id", workspaceID).Msg("stream subscriber gone")
			}()

			ticker := time.NewTicker(pingPeriod)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case ev, ok := <-sub.C():
					if !ok {
						return
					}
					data, err := json.Marshal(ev)
					if err != nil {
						log.Error().Err(err).Msg("encode envelope")
						continue
					}
					conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				case <-ticker.C:
					conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()
	})
}
