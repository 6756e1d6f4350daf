package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

// Check is a named readiness check; nil means healthy.
type Check func(ctx context.Context) error

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// HealthReport is the body returned by the health endpoints. Checks maps
// each check name to "ok" or its error text.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Pool   *PoolStats        `json:"pool,omitempty"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// LivenessHandler reports that the process is serving requests.
func LivenessHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthReport{Status: "ok"})
	}
}

// HealthHandler pings the database, then runs every extra check. Any
// failure turns the response into a 503.
func HealthHandler(database Pinger, checks map[string]Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		report := HealthReport{Status: "healthy", Checks: make(map[string]string, len(checks)+1)}
		run := func(name string, check Check) {
			if err := check(ctx); err != nil {
				report.Status = "unhealthy"
				report.Checks[name] = err.Error()
				return
			}
			report.Checks[name] = "ok"
		}

		run("database", database.Ping)
		if report.Status == "healthy" {
			for name, check := range checks {
				run(name, check)
			}
		}
		if pool, ok := database.(*pgxpool.Pool); ok && pool != nil {
			report.Pool = GetPoolStats(pool)
		}

		status := http.StatusOK
		if report.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, report)
	}
}
