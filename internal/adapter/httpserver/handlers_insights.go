package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/WamalwaSydney/civicpulse/internal/platform/errors"
)

const defaultAlertLimit = 10

func (s *Server) registerInsightRoutes(api *echo.Group) {
	api.GET("/alerts", s.handleRecentAlerts)
	api.GET("/dashboard", s.handleDashboard)
}

func (s *Server) handleRecentAlerts(c echo.Context) error {
	limit := defaultAlertLimit
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return apperrors.ValidationError("limit must be an integer").WithCause(err)
	}

	alerts, err := s.alerts.Recent(c.Request().Context(), limit)
	if err != nil {
		return domainError(err, "failed to list alerts")
	}

	return writeJSON(c, http.StatusOK, map[string]any{"alerts": toAlertResponses(alerts)})
}

func (s *Server) handleDashboard(c echo.Context) error {
	snap, err := s.dashboard.Snapshot(c.Request().Context())
	if err != nil {
		return domainError(err, "failed to build dashboard")
	}
	return writeJSON(c, http.StatusOK, toDashboardResponse(snap))
}
