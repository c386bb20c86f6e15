package admin

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole("admin"))
	admin.POST("/structures", h.CreateStructure)
	admin.GET("/structures", h.ListStructures)
	admin.GET("/structures/:id", h.GetStructure)
	admin.PUT("/structures/:id", h.UpdateStructure)
	admin.GET("/structures/:id/members", h.ListMembers)
	admin.POST("/structures/:id/members", h.AddMember)
	admin.DELETE("/members/:id", h.RemoveMember)
	admin.GET("/structures/:id/permissions", h.ListPermissions)
	admin.POST("/structures/:id/permissions", h.GrantPermission)
	admin.DELETE("/structures/:id/permissions", h.RevokePermission)
}

func (h *Handler) CreateStructure(c echo.Context) error {
	var st Structure
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateStructure(c.Request().Context(), &st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, st)
}

func (h *Handler) GetStructure(c echo.Context) error {
	st, err := h.svc.Structure(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "structure not found")
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) UpdateStructure(c echo.Context) error {
	var st Structure
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st.ID = c.Param("id")
	if err := h.svc.UpdateStructure(c.Request().Context(), &st); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "structure not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListStructures(c echo.Context) error {
	p := pagination.FromContext(c)
	structures, total, err := h.svc.ListStructures(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(structures, total, p.Limit, p.Offset))
}

func (h *Handler) AddMember(c echo.Context) error {
	var m TeamMember
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.StructureID = c.Param("id")
	if err := h.svc.AddMember(c.Request().Context(), &m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) RemoveMember(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.RemoveMember(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "member not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListMembers(c echo.Context) error {
	p := pagination.FromContext(c)
	members, total, err := h.svc.ListMembers(c.Request().Context(), c.Param("id"), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(members, total, p.Limit, p.Offset))
}

func (h *Handler) GrantPermission(c echo.Context) error {
	var p RolePermission
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.StructureID = c.Param("id")
	if err := h.svc.GrantPermission(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) RevokePermission(c echo.Context) error {
	role := c.QueryParam("role")
	permission := c.QueryParam("permission")
	if role == "" || permission == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "role and permission query params are required")
	}
	if err := h.svc.RevokePermission(c.Request().Context(), c.Param("id"), role, permission); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "permission not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPermissions(c echo.Context) error {
	role := c.QueryParam("role")
	if role == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "role query param is required")
	}
	perms, err := h.svc.ListPermissions(c.Request().Context(), c.Param("id"), role)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, perms)
}
