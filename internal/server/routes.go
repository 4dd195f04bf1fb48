package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/Rogue-56/pinch/internal/protocol"
	"github.com/Rogue-56/pinch/internal/signaling"
)

// Options configure the HTTP surface.
type Options struct {
	ReadBufferSize  int
	WriteBufferSize int
	// AllowedOrigins may read the HTTP API from a browser. Empty allows any.
	AllowedOrigins []string
}

// NewRouter wires the relay endpoints.
func NewRouter(hub *signaling.Hub, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(opts)))

	r.Get("/ws", ServeWs(hub, newUpgrader(opts)))
	r.Get("/health", healthCheckHandler)
	r.Get("/api/rooms", listRoomsHandler(hub))

	return r
}

func corsOptions(opts Options) cors.Options {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}
}

func newUpgrader(opts Options) *websocket.Upgrader {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = 64 * 1024
	}
	if opts.WriteBufferSize <= 0 {
		opts.WriteBufferSize = 64 * 1024
	}
	return &websocket.Upgrader{
		ReadBufferSize:  opts.ReadBufferSize,
		WriteBufferSize: opts.WriteBufferSize,
		// Browsers join from whatever origin serves the page; there is no auth
		// to protect.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}

// ServeWs returns an http.HandlerFunc that upgrades to a websocket and hands
// the connection to hub. The frame codec is picked with ?codec=json|msgpack.
func ServeWs(hub *signaling.Hub, upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, protocol.ErrorPayload{Error: err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Debug("websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
			return
		}

		client := hub.NewClient(conn, codec)
		if !hub.Register(client) {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			conn.Close()
			return
		}
		slog.Debug("websocket connected", "conn", client.ID, "remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()))

		go client.WritePump()
		go client.ReadPump()
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func listRoomsHandler(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Registry().Rooms())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
