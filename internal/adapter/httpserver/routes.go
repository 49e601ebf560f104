package httpserver

import (
	"crypto/subtle"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apperrors "github.com/WamalwaSydney/civicpulse/internal/platform/errors"
)

const apiBodyLimit = "64K"

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware(s.httpMetrics))
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            63072000, // 2 years; only sent over HTTPS
		HSTSPreloadEnabled:    true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}))

	s.registerHealthRoutes()
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}

	api := s.echo.Group("/api", middleware.BodyLimit(apiBodyLimit))
	publicWrite := newRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst, s.rateLimits)
	staff := s.requireStaffKey()

	s.registerFeedbackRoutes(api, publicWrite)
	s.registerPollRoutes(api, publicWrite, staff)
	s.registerInsightRoutes(api)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

// requireStaffKey guards staff-only routes with "Authorization: Bearer <ADMIN_API_TOKEN>".
func (s *Server) requireStaffKey() echo.MiddlewareFunc {
	token := []byte(s.config.AdminAPIToken)
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			return len(token) > 0 && subtle.ConstantTimeCompare([]byte(key), token) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return apperrors.UnauthorizedError("valid staff API key required").WithCause(err)
		},
	})
}
