package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/gsaplatform/orchestrator/internal/streaming"
)

// newUpgrader builds a websocket.Upgrader that validates Origin against
// an allowlist; "*" permits any origin (development convenience).
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := false
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
		originSet[o] = struct{}{}
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return false
			}
			_, ok := originSet[origin]
			return ok
		},
	}
}

// StreamHandler handles GET /0.1/ws/status/{id} -- the optional
// live-push alternative to polling /status/{id}: it upgrades to a
// WebSocket and pre-subscribes the connection to the job_id named in
// the path, so a client only needs to read, never send a subscribe
// message first.
type StreamHandler struct {
	hub      *streaming.Hub
	upgrader websocket.Upgrader
}

// NewStreamHandler builds the WebSocket upgrade handler.
func NewStreamHandler(hub *streaming.Hub, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		hub:      hub,
		upgrader: newUpgrader(allowedOrigins),
	}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := streaming.NewClient(h.hub, conn)
	if jobID != "" {
		if err := client.SubscribeJobID(jobID); err != nil {
			slog.Warn("subscribe on connect failed", "job_id", jobID, "error", err)
		}
	}

	go client.WritePump()
	go client.ReadPump()
}
