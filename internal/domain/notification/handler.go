package notification

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/julia/julia/internal/platform/auth"
	"github.com/julia/julia/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	pro := api.Group("", auth.RequireProfessional())
	pro.GET("/notifications", h.List)
	pro.PUT("/notifications/read-all", h.MarkAllRead)
	pro.PUT("/notifications/:id/read", h.MarkRead)
	pro.DELETE("/notifications/:id", h.Delete)
	pro.POST("/notifications/register-token", h.RegisterPushToken)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	professionalID := auth.IdentityFromContext(c.Request().Context())
	unreadOnly := c.QueryParam("unread") == "true"
	items, total, err := h.svc.List(c.Request().Context(), professionalID, unreadOnly, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	n, err := h.svc.MarkRead(c.Request().Context(), professionalID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	professionalID := auth.IdentityFromContext(c.Request().Context())
	if err := h.svc.MarkAllRead(c.Request().Context(), professionalID); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "all notifications marked as read"})
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	if err := h.svc.Delete(c.Request().Context(), professionalID, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RegisterPushToken(c echo.Context) error {
	var in struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	if err := h.svc.RegisterPushToken(c.Request().Context(), professionalID, in.Token); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "push token registered"})
}
