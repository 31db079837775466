package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liveclass/classroom/internal/config"
	"github.com/liveclass/classroom/internal/signaling"
)

// NewRouter wires the HTTP surface of the signaling server.
func NewRouter(hub *signaling.Hub, cfg *config.ServerConfig, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /rooms", roomsHandler(hub))
	mux.HandleFunc("GET /turn-credentials", turnCredentialsHandler(cfg))
	mux.HandleFunc("GET /ws", ServeWs(hub, newUpgrader(cfg.AllowedOrigins), logger))
	return mux
}

// Health Check endpoint
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

func roomsHandler(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := hub.Stats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, stats)
	}
}

func turnCredentialsHandler(cfg *config.ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.TURNSecret == "" {
			http.Error(w, "TURN credentials are not configured", http.StatusNotFound)
			return
		}
		user := r.URL.Query().Get("user")
		if user == "" {
			user = "anonymous"
		}
		writeJSON(w, NewTURNCredentials(cfg.TURNSecret, user, cfg.TURNTTL, cfg.TURNURLs, time.Now()))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// newUpgrader accepts any origin when allowed is empty, otherwise only the
// listed ones. Requests without an Origin header are not from browsers and
// are accepted.
func newUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(allowed) == 0 || origin == "" {
				return true
			}
			for _, o := range allowed {
				if strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
func ServeWs(hub *signaling.Hub, upgrader *websocket.Upgrader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := signaling.NewClient(hub, conn)
		if !hub.Attach(client) {
			logger.Debug("Hub stopped, closing connection", "remote", r.RemoteAddr)
			conn.Close()
			return
		}
		logger.Debug("Websocket connected", "conn", client.ID, "remote", r.RemoteAddr)

		// The pumps own the client's lifecycle from here on.
		go client.WritePump()
		go client.ReadPump()
	}
}
