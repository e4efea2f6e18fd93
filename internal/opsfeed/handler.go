package opsfeed

import (
	"net/http"

	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Handler upgrades GET /internal/tasks/stream into a websocket connection
// registered with the hub, adapted from the teacher's per-workspace
// WebSocketHandler: authentication here is the surrounding Auth0 middleware
// (manual triggers and the stream share the same /internal/tasks group), so
// Handler itself only checks origin and performs the upgrade.
type Handler struct {
	hub            *Hub
	allowedOrigins map[string]bool
	upgrader       ws.Upgrader
}

// NewHandler builds a Handler broadcasting hub's events to connecting
// operators, restricted to allowedOrigins (empty means allow all, matching
// same-origin ops tooling with no browser Origin header).
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	originMap := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originMap[origin] = true
	}

	h := &Handler{hub: hub, allowedOrigins: originMap}
	h.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	if h.allowedOrigins[origin] {
		return true
	}
	log.Warn().Str("origin", origin).Msg("ops feed connection rejected: origin not allowed")
	return false
}

// HandleStream upgrades the request and registers the resulting client with
// the hub, handled at GET /internal/tasks/stream.
func (h *Handler) HandleStream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error().Err(err).Msg("ops feed websocket upgrade failed")
		return err
	}

	client := NewClient(conn, h.hub)
	h.hub.Register(client)
	log.Info().Str("client_id", client.ID()).Msg("ops feed client connected")

	go client.WritePump()
	go client.ReadPump()

	return nil
}
