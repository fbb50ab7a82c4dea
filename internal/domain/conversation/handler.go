package conversation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/julia/julia/internal/domain/identity"
	"github.com/julia/julia/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	pat := api.Group("", auth.RequirePatient())
	pat.POST("/conversations", h.Start)
	pat.POST("/conversations/:id/messages", h.SendMessage)
	pat.POST("/conversations/:id/close", h.Close)
	pat.GET("/conversations/active", h.Active)
	pat.GET("/conversations/history", h.History)

	pro := api.Group("", auth.RequireProfessional())
	pro.GET("/conversations/professional", h.ListForProfessional)
	pro.GET("/conversations/:id", h.Get)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, identity.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, identity.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrDependency):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) Start(c echo.Context) error {
	var in struct {
		FirstMessage string `json:"first_message"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID := auth.IdentityFromContext(c.Request().Context())
	result, err := h.svc.Start(c.Request().Context(), patientID, in.FirstMessage)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) SendMessage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID := auth.IdentityFromContext(c.Request().Context())
	result, err := h.svc.SendMessage(c.Request().Context(), patientID, id, in.Message)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Close(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in struct {
		GravityLevel int `json:"gravity_level"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID := auth.IdentityFromContext(c.Request().Context())
	conv, err := h.svc.Close(c.Request().Context(), patientID, id, in.GravityLevel)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"conversation": conv, "message": "conversation closed"})
}

func (h *Handler) Active(c echo.Context) error {
	patientID := auth.IdentityFromContext(c.Request().Context())
	conv, err := h.svc.Active(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"conversation": conv})
}

func (h *Handler) History(c echo.Context) error {
	patientID := auth.IdentityFromContext(c.Request().Context())
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.svc.History(c.Request().Context(), patientID, limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"count": len(items), "conversations": items})
}

func (h *Handler) ListForProfessional(c echo.Context) error {
	professionalID := auth.IdentityFromContext(c.Request().Context())

	var patientID *uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = &pid
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	items, err := h.svc.ListForProfessional(c.Request().Context(), professionalID, patientID, c.QueryParam("status"), limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"count": len(items), "conversations": items})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	conv, err := h.svc.Get(c.Request().Context(), professionalID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, conv)
}
