package evaluation

import (
	"errors"
	"net/http"
	"strconv"
	"time"

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
	pat.POST("/evaluations", h.Record)
	pat.GET("/evaluations", h.History)
	pat.GET("/evaluations/today", h.Today)

	pro := api.Group("", auth.RequireProfessional())
	pro.GET("/evaluations/patient/:id", h.ListForPatient)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, identity.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) Record(c echo.Context) error {
	var in RecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID := auth.IdentityFromContext(c.Request().Context())
	e, err := h.svc.Record(c.Request().Context(), patientID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) Today(c echo.Context) error {
	patientID := auth.IdentityFromContext(c.Request().Context())
	e, err := h.svc.Today(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"evaluation": e})
}

// dateRange parses the optional start_date and end_date query params.
func dateRange(c echo.Context) (startDate, endDate *time.Time, err error) {
	if raw := c.QueryParam("start_date"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid start_date")
		}
		startDate = &d
	}
	if raw := c.QueryParam("end_date"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid end_date")
		}
		endDate = &d
	}
	return startDate, endDate, nil
}

func (h *Handler) History(c echo.Context) error {
	patientID := auth.IdentityFromContext(c.Request().Context())
	startDate, endDate, err := dateRange(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	evals, err := h.svc.ListMine(c.Request().Context(), patientID, startDate, endDate, limit)
	if err != nil {
		return httpError(err)
	}
	if evals == nil {
		evals = []*DailyEvaluation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"count": len(evals), "evaluations": evals})
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())

	startDate, endDate, err := dateRange(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	evals, stats, err := h.svc.ListForPatient(c.Request().Context(), professionalID, patientID, startDate, endDate, limit)
	if err != nil {
		return httpError(err)
	}
	if evals == nil {
		evals = []*DailyEvaluation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"evaluations": evals, "stats": stats})
}
