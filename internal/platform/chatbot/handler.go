package chatbot

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the waiting-room assistant over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers chatbot endpoints on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/chat/sessions/:session_id/start", h.Start)
	g.POST("/chat/sessions/:session_id/messages", h.Send)
	g.GET("/chat/sessions/:session_id/history", h.History)
	g.DELETE("/chat/sessions/:session_id", h.End)
}

type messageRequest struct {
	Message string `json:"message"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

func (h *Handler) Start(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	greeting := h.svc.Start(sessionID)
	return c.JSON(http.StatusCreated, replyResponse{Reply: greeting})
}

func (h *Handler) Send(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	reply, err := h.svc.Reply(c.Request().Context(), sessionID, req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "assistant unavailable")
	}
	return c.JSON(http.StatusOK, replyResponse{Reply: reply})
}

func (h *Handler) History(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	return c.JSON(http.StatusOK, h.svc.History(sessionID))
}

func (h *Handler) End(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	h.svc.End(sessionID)
	return c.NoContent(http.StatusNoContent)
}
