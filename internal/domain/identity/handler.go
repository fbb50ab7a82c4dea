package identity

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
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/verify-magic-link", h.VerifyMagicLink)
	api.GET("/auth/me", h.Me)

	pro := api.Group("", auth.RequireProfessional())
	pro.POST("/auth/magic-link", h.SendMagicLink)
	pro.GET("/professionals/me", h.MyProfessionalProfile)
	pro.PUT("/professionals/me", h.UpdateProfessionalProfile)
	pro.GET("/professionals/dashboard", h.Dashboard)
	pro.POST("/patients", h.CreatePatient)
	pro.GET("/patients", h.ListPatients)
	pro.GET("/patients/:id", h.GetPatient)
	pro.PUT("/patients/:id", h.UpdatePatient)
	pro.DELETE("/patients/:id", h.DeletePatient)
	pro.POST("/patients/:id/resend-magic-link", h.ResendMagicLink)

	pat := api.Group("", auth.RequirePatient())
	pat.GET("/patients/me", h.MyProfile)
	pat.PUT("/patients/me/consent", h.UpdateConsent)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAuthentication):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// -- Auth --

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, token, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"token": token, "professional": p})
}

func (h *Handler) Login(c echo.Context) error {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, token, err := h.svc.Login(c.Request().Context(), in.Email, in.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token, "professional": p})
}

func (h *Handler) SendMagicLink(c echo.Context) error {
	var in struct {
		PatientID uuid.UUID `json:"patient_id"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	link, err := h.svc.ResendMagicLink(c.Request().Context(), professionalID, in.PatientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "sign-in email sent", "magic_link": link})
}

func (h *Handler) VerifyMagicLink(c echo.Context) error {
	var in struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, token, err := h.svc.VerifyMagicLink(c.Request().Context(), in.Token)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token, "patient": p})
}

func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	id := auth.IdentityFromContext(ctx)
	switch auth.ActorFromContext(ctx) {
	case auth.ActorProfessional:
		p, err := h.svc.GetProfessional(ctx, id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, echo.Map{"professional": p})
	case auth.ActorPatient:
		p, err := h.svc.MyProfile(ctx, id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, echo.Map{"patient": p})
	}
	return echo.NewHTTPError(http.StatusUnauthorized, "missing credential")
}

// -- Professional self-service --

func (h *Handler) MyProfessionalProfile(c echo.Context) error {
	professionalID := auth.IdentityFromContext(c.Request().Context())
	p, err := h.svc.GetProfessional(c.Request().Context(), professionalID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"professional": p})
}

func (h *Handler) UpdateProfessionalProfile(c echo.Context) error {
	var in ProfessionalUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	p, err := h.svc.UpdateProfile(c.Request().Context(), professionalID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"professional": p})
}

func (h *Handler) Dashboard(c echo.Context) error {
	professionalID := auth.IdentityFromContext(c.Request().Context())
	stats, err := h.svc.Dashboard(c.Request().Context(), professionalID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"stats": stats})
}

// -- Patients --

func (h *Handler) CreatePatient(c echo.Context) error {
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	p, link, err := h.svc.CreatePatient(c.Request().Context(), professionalID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"patient": p, "magic_link": link})
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	professionalID := auth.IdentityFromContext(c.Request().Context())
	items, total, err := h.svc.ListPatients(c.Request().Context(), professionalID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	p, err := h.svc.GetPatient(c.Request().Context(), professionalID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in PatientUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	p, err := h.svc.UpdatePatient(c.Request().Context(), professionalID, id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	if err := h.svc.DeletePatient(c.Request().Context(), professionalID, id); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "patient deactivated"})
}

func (h *Handler) ResendMagicLink(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	professionalID := auth.IdentityFromContext(c.Request().Context())
	link, err := h.svc.ResendMagicLink(c.Request().Context(), professionalID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "sign-in email sent", "magic_link": link})
}

// -- Patient self-service --

func (h *Handler) MyProfile(c echo.Context) error {
	patientID := auth.IdentityFromContext(c.Request().Context())
	p, err := h.svc.MyProfile(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateConsent(c echo.Context) error {
	var in struct {
		Consent bool    `json:"consent"`
		Reason  *string `json:"reason"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID := auth.IdentityFromContext(c.Request().Context())
	p, err := h.svc.UpdateConsent(c.Request().Context(), patientID, in.Consent, in.Reason, c.RealIP())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}
