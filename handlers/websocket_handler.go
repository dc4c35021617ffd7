package handlers

import (
	"log/slog"
	"net/http"

	"github.com/agentclash/arena/realtime"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// spectator streams carry no credentials and no inbound commands;
		// origin enforcement belongs to the gateway
		return true
	},
}

type WebSocketHandler struct {
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{hub: hub, logger: logger}
}

// ServeMatch attaches a spectator to a single match's event stream.
func (h *WebSocketHandler) ServeMatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	if matchID == "" {
		http.Error(w, "Missing matchID", http.StatusBadRequest)
		return
	}
	h.serve(w, r, realtime.MatchRoom(matchID))
}

// ServeArena attaches a spectator to the arena-wide announcement stream.
func (h *WebSocketHandler) ServeArena(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, realtime.ArenaRoom)
}

func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, room string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		h.logger.Warn("websocket upgrade failed",
			slog.String("room", room), slog.Any("error", err))
		return
	}

	client := realtime.NewClient(h.hub, conn, room)
	h.hub.Register(client)
}
