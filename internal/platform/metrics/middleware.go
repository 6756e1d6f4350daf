package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Middleware records request count, latency and in-flight requests. Paths
// are labelled by route pattern so ids do not explode cardinality; requests
// that matched no route are labelled "unmatched".
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			c.InFlightGauge.Inc()
			start := time.Now()

			err := next(ctx)

			c.InFlightGauge.Dec()
			status := ctx.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			code := strconv.Itoa(status)
			c.RequestsTotal.WithLabelValues(method, route, code).Inc()
			c.RequestDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// EchoHandler serves Handler through echo.
func (c *Collector) EchoHandler() echo.HandlerFunc {
	return echo.WrapHandler(c.Handler())
}
