package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	IdentityIDKey contextKey = "identity_id"
	ActorKey      contextKey = "actor"
)

// Middleware validates the bearer token on every request and places the
// resolved identity on the request context. Routes listed in skip are served
// without a credential (login, register, magic-link verification, health).
func Middleware(m *Manager, skip ...string) echo.MiddlewareFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipped[c.Path()] {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := m.Parse(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			id, err := uuid.Parse(claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, IdentityIDKey, id)
			ctx = context.WithValue(ctx, ActorKey, claims.Actor)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// RequireProfessional rejects requests whose credential does not belong to a
// professional.
func RequireProfessional() echo.MiddlewareFunc {
	return requireActor(ActorProfessional)
}

// RequirePatient rejects requests whose credential does not belong to a
// patient.
func RequirePatient() echo.MiddlewareFunc {
	return requireActor(ActorPatient)
}

func requireActor(want Actor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if ActorFromContext(c.Request().Context()) != want {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
			}
			return next(c)
		}
	}
}

// IdentityFromContext returns the authenticated identity id, or uuid.Nil.
func IdentityFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(IdentityIDKey).(uuid.UUID)
	return id
}

// ActorFromContext returns the authenticated actor kind, or the empty string.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(ActorKey).(Actor)
	return actor
}
