package sessionnote

import (
	"errors"
	"net/http"
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
	pro := api.Group("", auth.RequireProfessional())
	pro.POST("/sessions", h.Upload)
	pro.POST("/sessions/:id/process", h.Process)
	pro.GET("/sessions/patient/:patientId", h.ListForPatient)
	pro.GET("/sessions/:id", h.Get)
	pro.DELETE("/sessions/:id", h.Delete)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, identity.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDependency):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) Upload(c echo.Context) error {
	patientID, err := uuid.Parse(c.FormValue("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}

	var sessionDate *time.Time
	if raw := c.FormValue("session_date"); raw != "" {
		d, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid session_date")
		}
		sessionDate = &d
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	var rawText *string
	if raw := c.FormValue("raw_text"); raw != "" {
		rawText = &raw
	}

	professionalID := auth.IdentityFromContext(c.Request().Context())
	note, err := h.svc.Upload(c.Request().Context(), professionalID, UploadInput{
		PatientID:   patientID,
		SessionDate: sessionDate,
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        src,
		RawText:     rawText,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"session_note": note, "message": "file uploaded"})
}

func (h *Handler) Process(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	note, err := h.svc.Process(c.Request().Context(), professionalID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session_note": note})
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	notes, err := h.svc.ListForPatient(c.Request().Context(), professionalID, patientID)
	if err != nil {
		return httpError(err)
	}
	if notes == nil {
		notes = []*SessionNote{}
	}
	return c.JSON(http.StatusOK, echo.Map{"count": len(notes), "session_notes": notes})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	note, url, err := h.svc.Get(c.Request().Context(), professionalID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session_note": note, "download_url": url})
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
	return c.JSON(http.StatusOK, echo.Map{"message": "session note deleted"})
}
