package encounter

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
	read := api.Group("", auth.RequireRole("admin", "doctor", "assistant"))
	read.GET("/encounters", h.ListEncounters)
	read.GET("/encounters/:id", h.GetEncounter)
	read.GET("/encounters/:id/history", h.GetHistory)
	read.GET("/encounters/:id/allowed-targets", h.GetAllowedTargets)

	write := api.Group("", auth.RequireRole("admin", "doctor", "assistant"))
	write.POST("/encounters/open", h.Open)
	write.POST("/encounters/:id/status", h.UpdateStatus)
}

type openRequest struct {
	PatientID string `json:"patient_id"`
	Mode      Mode   `json:"mode"`
	Linkage
}

type openResponse struct {
	Encounter *Encounter `json:"encounter"`
	Resumed   bool       `json:"resumed"`
}

func (h *Handler) Open(c echo.Context) error {
	var req openRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}

	ctx := c.Request().Context()
	enc, resumed, err := h.svc.OpenOrCreate(ctx, patientID, db.StructureFromContext(ctx), req.Mode, req.Linkage, auth.UserIDFromContext(ctx))
	if err != nil {
		var failed *CreationFailedError
		if errors.As(err, &failed) && failed.Err == nil {
			return echo.NewHTTPError(http.StatusBadRequest, failed.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	status := http.StatusCreated
	if resumed {
		status = http.StatusOK
	}
	return c.JSON(status, openResponse{Encounter: enc, Resumed: resumed})
}

type statusRequest struct {
	Target EncStatus `json:"target"`
	Notes  string    `json:"notes"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	enc, err := h.svc.UpdateStatus(ctx, id, req.Target, auth.UserIDFromContext(ctx), req.Notes)
	if err != nil {
		var denied *TransitionDeniedError
		switch {
		case errors.As(err, &denied):
			return echo.NewHTTPError(http.StatusConflict, denied.Error())
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "encounter not found")
		case errors.Is(err, ErrConcurrentModification):
			return echo.NewHTTPError(http.StatusConflict, "encounter changed, re-read and retry")
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusOK, enc)
}

func (h *Handler) GetEncounter(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	enc, err := h.svc.Encounter(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "encounter not found")
	}
	return c.JSON(http.StatusOK, enc)
}

func (h *Handler) ListEncounters(c echo.Context) error {
	p := pagination.FromContext(c)
	ctx := c.Request().Context()

	if raw := c.QueryParam("patient_id"); raw != "" {
		patientID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		encounters, total, err := h.svc.ListByPatient(ctx, patientID, p.Limit, p.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(encounters, total, p.Limit, p.Offset))
	}

	encounters, total, err := h.svc.List(ctx, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(encounters, total, p.Limit, p.Offset))
}

func (h *Handler) GetHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	hist, err := h.svc.StatusHistory(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, hist)
}

func (h *Handler) GetAllowedTargets(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	enc, err := h.svc.Encounter(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "encounter not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  enc.Status,
		"targets": AllowedTargets(enc.Status),
	})
}
