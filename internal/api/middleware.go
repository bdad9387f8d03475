package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// UserHeader carries the signed-in user's email.
const UserHeader = "X-User-Email"

// loggingMiddleware logs every request once it has been handled.
func (s *Server) loggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo write the response so the logged status is final.
				c.Error(err)
			}

			req := c.Request()
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("query", req.URL.RawQuery),
				zap.Int("status", c.Response().Status),
				zap.String("ip", c.RealIP()),
				zap.String("user", req.Header.Get(UserHeader)),
				zap.Duration("latency", time.Since(start)),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			s.logger.Info("api request", fields...)
			return nil
		}
	}
}

// metricsMiddleware records request counts by route pattern.
func (s *Server) metricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			s.deps.Metrics.RecordHTTPRequest(c.Request().Method, path, status, time.Since(start))
			return err
		}
	}
}

// emailGate admits only allowlisted users when an allowlist is configured.
func (s *Server) emailGate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if len(s.allowed) == 0 {
			return next(c)
		}
		email := normalizeEmail(c.Request().Header.Get(UserHeader))
		if email == "" {
			return s.handleError(c, nil, "Authentication required", http.StatusUnauthorized)
		}
		if !s.allowed[email] {
			return s.handleError(c, nil, "User is not allowed to access this dashboard", http.StatusForbidden)
		}
		return next(c)
	}
}

// rateLimiter returns a per-client limiter, nil when disabled.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	if s.opts.RPS <= 0 {
		return nil
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(s.opts.RPS),
				Burst:     s.opts.Burst,
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if email := normalizeEmail(c.Request().Header.Get(UserHeader)); email != "" {
				return email, nil
			}
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return s.handleError(c, err, "Rate limiter unavailable", http.StatusForbidden)
		},
		DenyHandler: func(c echo.Context, _ string, err error) error {
			return s.handleError(c, err, "Too many requests, please slow down", http.StatusTooManyRequests)
		},
	})
}
