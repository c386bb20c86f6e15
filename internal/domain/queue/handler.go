package queue

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "doctor", "assistant", "receptionist"))
	read.GET("/queue", h.ListEntries)
	read.GET("/queue/:id", h.GetEntry)
	read.GET("/queue/:id/journey", h.GetJourney)
	read.GET("/queue/:id/allowed-targets", h.GetAllowedTargets)

	write := api.Group("", auth.RequireRole("admin", "doctor", "assistant", "receptionist"))
	write.POST("/queue/check-in", h.CheckIn)
	write.POST("/queue/:id/transition", h.Transition)

	// Physical removal is reserved for front-desk admins.
	api.DELETE("/queue/:id", h.RemoveEntry, auth.RequireRole("admin", "receptionist"))
}

type checkInRequest struct {
	PatientID string `json:"patient_id"`
	Priority  int    `json:"priority"`
}

func (h *Handler) CheckIn(c echo.Context) error {
	var req checkInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}

	ctx := c.Request().Context()
	entry, err := h.svc.CheckIn(ctx, patientID, db.StructureFromContext(ctx), req.Priority, auth.UserIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, entry)
}

type transitionRequest struct {
	Target Status `json:"target"`
	Notes  string `json:"notes"`
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	entry, err := h.svc.RecordTransition(ctx, id, req.Target, auth.UserIDFromContext(ctx), req.Notes)
	if err != nil {
		var denied *TransitionDeniedError
		switch {
		case errors.As(err, &denied):
			return echo.NewHTTPError(http.StatusConflict, denied.Error())
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
		case errors.Is(err, ErrConcurrentModification):
			return echo.NewHTTPError(http.StatusConflict, "entry changed, re-read and retry")
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) GetEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entry, err := h.svc.Entry(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) ListEntries(c echo.Context) error {
	p := pagination.FromContext(c)
	ctx := c.Request().Context()

	if status := c.QueryParam("status"); status != "" {
		entries, total, err := h.svc.ListByStatus(ctx, Status(status), p.Limit, p.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, p.Limit, p.Offset))
	}

	entries, total, err := h.svc.List(ctx, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, p.Limit, p.Offset))
}

func (h *Handler) GetJourney(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	steps, err := h.svc.JourneySteps(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, steps)
}

func (h *Handler) GetAllowedTargets(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entry, err := h.svc.Entry(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  entry.Status,
		"targets": AllowedTargets(entry.Status),
	})
}

func (h *Handler) RemoveEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Remove(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
