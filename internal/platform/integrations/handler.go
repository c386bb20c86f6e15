package integrations

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

// Handler exposes integration management routes.
type Handler struct {
	forwarder *Forwarder
	log       DeliveryLog
}

func NewHandler(forwarder *Forwarder, log DeliveryLog) *Handler {
	return &Handler{forwarder: forwarder, log: log}
}

// RegisterRoutes binds integration routes to the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/targets", h.ListTargets)
	g.POST("/targets/:name/test", h.TestTarget)
	g.GET("/deliveries", h.ListDeliveries)
	g.GET("/deliveries/:id", h.GetDelivery)
}

// ListTargets handles GET /integrations/targets.
func (h *Handler) ListTargets(c echo.Context) error {
	return c.JSON(http.StatusOK, h.forwarder.Targets())
}

// TestTarget handles POST /integrations/targets/:name/test.
func (h *Handler) TestTarget(c echo.Context) error {
	name := c.Param("name")
	delivery, err := h.forwarder.TestTarget(c.Request().Context(), name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, delivery)
}

// ListDeliveries handles GET /integrations/deliveries.
func (h *Handler) ListDeliveries(c echo.Context) error {
	p := pagination.FromContext(c)
	target := c.QueryParam("target")

	deliveries, total, err := h.log.List(c.Request().Context(), target, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(deliveries, total, p.Limit, p.Offset))
}

// GetDelivery handles GET /integrations/deliveries/:id.
func (h *Handler) GetDelivery(c echo.Context) error {
	id := c.Param("id")
	delivery, err := h.log.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "delivery not found")
	}
	return c.JSON(http.StatusOK, delivery)
}
