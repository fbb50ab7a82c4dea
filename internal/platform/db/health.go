package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const pingTimeout = 5 * time.Second

// PoolStats is a point-in-time snapshot of the connection pool, exposed
// on the database health endpoint.
type PoolStats struct {
	Total       int32  `json:"total"`
	Idle        int32  `json:"idle"`
	Acquired    int32  `json:"acquired"`
	Max         int32  `json:"max"`
	AcquireWait string `json:"acquire_wait_total"`
}

func Snapshot(pool *pgxpool.Pool) PoolStats {
	s := pool.Stat()
	return PoolStats{
		Total:       s.TotalConns(),
		Idle:        s.IdleConns(),
		Acquired:    s.AcquiredConns(),
		Max:         s.MaxConns(),
		AcquireWait: s.AcquireDuration().String(),
	}
}

// HealthHandler pings the database and reports pool state. A failed ping
// answers 503.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   Snapshot(pool),
			})
		}
		return c.JSON(http.StatusOK, echo.Map{
			"status": "healthy",
			"pool":   Snapshot(pool),
		})
	}
}
