package board

import (
	"context"
	"encoding/json"
	"net/http"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// SnapshotSource serves the current board state for a structure.
type SnapshotSource interface {
	Snapshot(ctx context.Context, structureID string) (*Event, error)
}

// Handler upgrades display connections and wires them into the hub.
type Handler struct {
	hub       *Hub
	snapshots SnapshotSource
	logger    zerolog.Logger
}

func NewHandler(hub *Hub, snapshots SnapshotSource, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, snapshots: snapshots, logger: logger}
}

// RegisterRoutes registers the board WebSocket endpoint.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/board/:structure_id", h.HandleConnect)
}

// HandleConnect upgrades the connection, replays the cached snapshot, then
// streams live events until the display disconnects.
func (h *Handler) HandleConnect(c echo.Context) error {
	structureID := c.Param("structure_id")
	if structureID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "structure_id is required")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{
		structureID: structureID,
		send:        make(chan []byte, 256),
	}
	h.hub.register(cl)

	if h.snapshots != nil {
		snap, err := h.snapshots.Snapshot(c.Request().Context(), structureID)
		if err != nil {
			h.logger.Warn().Err(err).Str("structure_id", structureID).Msg("board: snapshot unavailable")
		} else if snap != nil {
			if data, err := json.Marshal(snap); err == nil {
				cl.send <- data
			}
		}
	}

	go h.writePump(cl, ws)
	go h.readPump(cl, ws)

	return nil
}

// readPump drains inbound frames so pings are answered; displays never send
// meaningful payloads.
func (h *Handler) readPump(cl *client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.unregister(cl)
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Handler) writePump(cl *client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range cl.send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}
