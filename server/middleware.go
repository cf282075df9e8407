package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
)

// corsHeaders are the headers the web widget sends.
const corsHeaders = "Content-Type, Accept"

// corsMiddleware echoes the request origin when it is in the
// allow-list, falls back to the first configured origin otherwise, and
// short-circuits preflight requests.
func (s *Server) corsMiddleware() echo.MiddlewareFunc {
	allowed := s.cfg.AllowedOrigins
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			origin := c.Request().Header.Get("Origin")
			c.Response().Header().Set("Access-Control-Allow-Origin", s.allowOrigin(origin, allowed))
			c.Response().Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			c.Response().Header().Set("Access-Control-Allow-Headers", corsHeaders)

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}

func (s *Server) allowOrigin(origin string, allowed []string) string {
	if len(allowed) == 0 {
		return "*"
	}
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if a == origin {
			return origin
		}
	}
	return allowed[0]
}

// rateLimitMiddleware applies the global throughput limiter and the
// per-IP hourly quota. The hourly counters live in the session store so
// the quota holds across process restarts and multiple instances.
func (s *Server) rateLimitMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if s.limiter != nil && !s.limiter.Allow() {
				s.metrics.RecordRateLimited("global")
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error":   "rate_limited",
					"message": "Il servizio e' momentaneamente sovraccarico, riprova tra poco.",
				})
			}

			if s.cfg.IPHourlyLimit > 0 {
				key := fmt.Sprintf("ip:%s:%s", c.RealIP(), s.now().UTC().Format("2006010215"))
				n, err := s.store.Incr(c.Request().Context(), key, time.Hour)
				if err != nil {
					// quota check is best effort, never blocks traffic
					s.logger.Warn("ip quota check failed", "error", err)
				} else if n > int64(s.cfg.IPHourlyLimit) {
					s.metrics.RecordRateLimited("ip")
					return c.JSON(http.StatusTooManyRequests, map[string]string{
						"error":   "rate_limited",
						"message": "Hai raggiunto il limite di richieste per questa ora. Riprova piu' tardi o chiamaci allo 039 2847 101.",
					})
				}
			}
			return next(c)
		}
	}
}
